package stt

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/api"
	"parley/internal/chat"
)

func newTestClient(t *testing.T, handler http.HandlerFunc, methods chat.MethodSet) (*Client, *int) {
	t.Helper()
	calls := 0
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		handler(w, r)
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(logger, api.NewClient(logger, srv.URL, "", nil), methods), &calls
}

func TestTranscribeSendsRawAudio(t *testing.T) {
	var gotMethod, gotContentType string
	var gotBody []byte
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.URL.Query().Get("method")
		gotContentType = r.Header.Get("Content-Type")
		gotBody, _ = io.ReadAll(r.Body)
		w.Write([]byte(`{"transcript":" hello there "}`))
	}, chat.MethodSet{})

	text, err := client.Transcribe(context.Background(), []byte{1, 2, 3}, "", "whisper")
	require.NoError(t, err)
	require.Equal(t, "hello there", text)
	require.Equal(t, "whisper", gotMethod)
	require.Equal(t, DefaultContentType, gotContentType)
	require.Equal(t, []byte{1, 2, 3}, gotBody)
}

func TestTranscribeEmptyResultIsNoSpeech(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transcript":""}`))
	}, chat.MethodSet{})

	_, err := client.Transcribe(context.Background(), []byte{1}, "audio/wav", "whisper")
	require.Error(t, err)
	require.True(t, chat.IsKind(err, chat.KindApplication))
	require.Equal(t, "No speech detected.", FallbackText(err))
}

func TestTranscribeDisabledMethodRejectedBeforeNetwork(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"transcript":"x"}`))
	}, chat.MethodSet{STT: []string{"whisper"}})

	_, err := client.Transcribe(context.Background(), []byte{1}, "", "vosk")
	require.True(t, chat.IsKind(err, chat.KindValidation))
	require.Zero(t, *calls)
}

func TestTranscribeEmptyBlobRejected(t *testing.T) {
	client, calls := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {}, chat.MethodSet{})

	_, err := client.Transcribe(context.Background(), nil, "", "whisper")
	require.True(t, chat.IsKind(err, chat.KindValidation))
	require.Zero(t, *calls)
}

func TestFallbackTextTransport(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}, chat.MethodSet{})

	_, err := client.Transcribe(context.Background(), []byte{1}, "", "whisper")
	require.Error(t, err)
	require.Equal(t, "Error transcribing audio.", FallbackText(err))
	require.Empty(t, FallbackText(nil))
}
