package store

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/api"
	"parley/internal/chat"
)

type recordedRequest struct {
	method string
	path   string
	body   []byte
}

func newTestClient(t *testing.T, respond func(w http.ResponseWriter, r *http.Request)) (*Client, *[]recordedRequest) {
	t.Helper()
	var recorded []recordedRequest
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		body, _ := io.ReadAll(r.Body)
		recorded = append(recorded, recordedRequest{method: r.Method, path: r.URL.Path, body: body})
		respond(w, r)
	}))
	t.Cleanup(srv.Close)

	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewClient(logger, api.NewClient(logger, srv.URL, "", nil)), &recorded
}

func TestCreateReturnsServerID(t *testing.T) {
	client, recorded := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"c-77"}`))
	})

	id, err := client.Create(context.Background())
	require.NoError(t, err)
	require.Equal(t, "c-77", id)
	require.Equal(t, http.MethodPost, (*recorded)[0].method)
	require.Equal(t, "/chats", (*recorded)[0].path)
}

func TestCreateRejectsSentinelID(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"id":"null"}`))
	})

	_, err := client.Create(context.Background())
	require.True(t, chat.IsKind(err, chat.KindApplication))
}

func TestPutSuggestionSendsOnlySetFields(t *testing.T) {
	client, recorded := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	translation := "Hola"
	err := client.PutSuggestion(context.Background(), "c-1", chat.SuggestionPatch{Translation: &translation})
	require.NoError(t, err)

	var sent map[string]any
	require.NoError(t, json.Unmarshal((*recorded)[0].body, &sent))
	require.Equal(t, map[string]any{"translate_suggestion": "Hola"}, sent)
}

func TestPatchTurnAudioURL(t *testing.T) {
	client, recorded := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{}`))
	})

	require.NoError(t, client.PatchTurnAudioURL(context.Background(), "c-1", 3, "/audio/x.mp3"))

	req := (*recorded)[0]
	require.Equal(t, http.MethodPatch, req.method)
	require.Equal(t, "/chats/c-1/audioUrl", req.path)

	var sent map[string]any
	require.NoError(t, json.Unmarshal(req.body, &sent))
	require.Equal(t, float64(3), sent["index"])
	require.Equal(t, "/audio/x.mp3", sent["audioUrl"])
}

func TestAppendTurnRejectsPlaceholder(t *testing.T) {
	client, recorded := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	err := client.AppendTurn(context.Background(), "c-1", chat.Turn{User: "Hi", AI: chat.PlaceholderReply})
	require.True(t, chat.IsKind(err, chat.KindValidation))
	require.Empty(t, *recorded)
}

func TestSentinelIDsRejectedBeforeNetwork(t *testing.T) {
	client, recorded := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {})

	for _, id := range []string{"", "null", "undefined"} {
		_, err := client.History(context.Background(), id)
		require.Truef(t, chat.IsKind(err, chat.KindValidation), "id %q", id)

		err = client.AppendTurn(context.Background(), id, chat.Turn{User: "A", AI: "B"})
		require.True(t, chat.IsKind(err, chat.KindValidation))

		_, err = client.GetSuggestion(context.Background(), id)
		require.True(t, chat.IsKind(err, chat.KindValidation))
	}
	require.Empty(t, *recorded)
}

func TestHistoryRoundTrip(t *testing.T) {
	client, _ := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`[{"user":"Hi","ai":"Hello!","audioUrl":"/audio/a.mp3"},{"user":"Bye","ai":"See you"}]`))
	})

	turns, err := client.History(context.Background(), "c-1")
	require.NoError(t, err)
	require.Len(t, turns, 2)
	require.Equal(t, "Hello!", turns[0].AI)
	require.Equal(t, "/audio/a.mp3", turns[0].AudioURL)
}

func TestTranslateTurn(t *testing.T) {
	client, recorded := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"translation":"Hallo!"}`))
	})

	out, err := client.TranslateTurn(context.Background(), "c-1", 2, "Hello!", "de")
	require.NoError(t, err)
	require.Equal(t, "Hallo!", out)

	var sent map[string]any
	require.NoError(t, json.Unmarshal((*recorded)[0].body, &sent))
	require.Equal(t, "c-1", sent["chat_id"])
	require.Equal(t, float64(2), sent["index"])
	require.Equal(t, "de", sent["target_lang"])
}
