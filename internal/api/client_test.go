package api

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/require"

	"parley/internal/chat"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestBearerTokenInjected(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	c := NewClient(testLogger(), srv.URL, "tok-123", nil)
	require.NoError(t, c.GetJSON(context.Background(), "test", "/x", nil))
	require.Equal(t, "Bearer tok-123", gotAuth)
}

func TestNon2xxDetailNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
		w.Write([]byte(`{"detail":"upstream exploded"}`))
	}))
	defer srv.Close()

	c := NewClient(testLogger(), srv.URL, "", nil)
	err := c.GetJSON(context.Background(), "test", "/x", nil)
	require.Error(t, err)
	require.True(t, chat.IsKind(err, chat.KindTransport))
	require.Contains(t, err.Error(), "upstream exploded")
}

func TestEmbeddedErrorIn2xxNormalized(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"model unavailable"}`))
	}))
	defer srv.Close()

	c := NewClient(testLogger(), srv.URL, "", nil)
	var out struct {
		Response string `json:"response"`
	}
	err := c.GetJSON(context.Background(), "test", "/x", &out)
	require.Error(t, err)
	require.True(t, chat.IsKind(err, chat.KindApplication))
	require.Contains(t, err.Error(), "model unavailable")
}

func TestUnauthorizedIsPermission(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	c := NewClient(testLogger(), srv.URL, "", nil)
	err := c.GetJSON(context.Background(), "test", "/x", nil)
	require.True(t, chat.IsKind(err, chat.KindPermission))
}

func TestIsNotFound(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer srv.Close()

	c := NewClient(testLogger(), srv.URL, "", nil)
	err := c.GetJSON(context.Background(), "test", "/missing", nil)
	require.True(t, IsNotFound(err))

	require.False(t, IsNotFound(nil))
	require.False(t, IsNotFound(chat.E(chat.KindTransport, "x", "", nil)))
}

func TestURLResolution(t *testing.T) {
	c := NewClient(testLogger(), "http://api.local/", "", nil)
	require.Equal(t, "http://api.local/stt", c.URL("/stt", nil))
	require.Equal(t, "http://api.local/stt", c.URL("stt", nil))
	// Absolute URLs pass through so stored audio URLs resolve either way.
	require.Equal(t, "https://cdn.local/a.mp3", c.URL("https://cdn.local/a.mp3", nil))
}
