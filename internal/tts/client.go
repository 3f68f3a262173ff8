package tts

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"parley/internal/api"
	"parley/internal/chat"
)

// Resolution is a playable audio resource: the stable URL to persist back
// onto the owning turn or suggestion, plus the fetched payload.
type Resolution struct {
	URL      string
	Filename string
	Data     []byte
}

// Client resolves text to playable audio. Resolution order:
//
//  1. a known URL from a prior turn is fetched directly, no synthesis;
//  2. single-word text is looked up in the server's audio file cache under a
//     normalized filename;
//  3. anything else (cache miss, 404, empty payload, multi-word text) goes
//     through remote synthesis.
//
// Cache misses and empty payloads are soft; only the synthesis endpoint
// itself produces hard failures.
type Client struct {
	logger  *slog.Logger
	api     *api.Client
	methods chat.MethodSet
}

// NewClient constructs a synthesis client constrained by the
// server-advertised method allow-list.
func NewClient(logger *slog.Logger, apiClient *api.Client, methods chat.MethodSet) *Client {
	return &Client{logger: logger, api: apiClient, methods: methods}
}

type synthesizeRequest struct {
	Text string `json:"text"`
}

// Resolve fetches a known audio URL without synthesizing. The URL may be
// relative to the API base. A missing or empty resource is reported via ok
// so callers can fall back to Synthesize.
func (c *Client) Resolve(ctx context.Context, audioURL string) (Resolution, bool) {
	const op = "tts.resolve"

	data, err := c.fetchAudio(ctx, op, audioURL)
	if err != nil || len(data) == 0 {
		if err != nil && !api.IsNotFound(err) {
			c.logger.Warn("audio fetch failed", slog.String("url", audioURL), slog.String("error", err.Error()))
		}
		return Resolution{}, false
	}
	return Resolution{URL: audioURL, Data: data}, true
}

// Synthesize resolves text to audio using the policy above. knownURL, when
// non-empty, short-circuits everything; it is the caller's job to persist
// returned URLs so that short-circuit works on the next play.
func (c *Client) Synthesize(ctx context.Context, text, method, knownURL string) (Resolution, error) {
	const op = "tts.synthesize"

	if strings.TrimSpace(text) == "" {
		return Resolution{}, chat.E(chat.KindValidation, op, "empty text", nil)
	}

	if knownURL != "" {
		if res, ok := c.Resolve(ctx, knownURL); ok {
			return res, nil
		}
		// Stale or empty resource; fall through to the cache/synthesis path.
	}

	if key, ok := cacheKey(text); ok {
		if res, hit := c.lookupCached(ctx, key); hit {
			return res, nil
		}
	}

	return c.synthesizeRemote(ctx, op, text, method)
}

// lookupCached attempts the filename-cache path for a single-word text.
func (c *Client) lookupCached(ctx context.Context, key string) (Resolution, bool) {
	const op = "tts.cache"

	path := "/audio/" + key
	data, err := c.fetchAudio(ctx, op, path)
	if err != nil {
		if !api.IsNotFound(err) {
			c.logger.Warn("audio cache lookup failed", slog.String("key", key), slog.String("error", err.Error()))
		}
		return Resolution{}, false
	}
	if len(data) == 0 {
		// Zero-byte cache entries count as misses.
		return Resolution{}, false
	}
	return Resolution{URL: path, Filename: key, Data: data}, true
}

func (c *Client) synthesizeRemote(ctx context.Context, op, text, method string) (Resolution, error) {
	if !c.methods.Allows(chat.MethodTTS, method) {
		return Resolution{}, chat.E(chat.KindValidation, op, "method "+method+" is not enabled", nil)
	}

	body, err := json.Marshal(synthesizeRequest{Text: text})
	if err != nil {
		return Resolution{}, chat.E(chat.KindValidation, op, "marshal request", err)
	}

	query := url.Values{"method": {method}}
	req, err := c.api.NewRequest(ctx, http.MethodPost, "/tts", query, "application/json", body)
	if err != nil {
		return Resolution{}, chat.E(chat.KindTransport, op, "", err)
	}

	_, header, err := c.api.DoRaw(op, req)
	if err != nil {
		return Resolution{}, err
	}

	audioURL := header.Get("x-audio-url")
	filename := header.Get("x-audio-filename")
	if audioURL == "" {
		return Resolution{}, chat.E(chat.KindApplication, op, "response carried no audio url", nil)
	}

	data, err := c.fetchAudio(ctx, op, audioURL)
	if err != nil {
		return Resolution{}, err
	}

	c.logger.Debug("synthesis complete",
		slog.String("method", method),
		slog.String("filename", filename),
		slog.Int("audio_bytes", len(data)),
	)
	return Resolution{URL: audioURL, Filename: filename, Data: data}, nil
}

func (c *Client) fetchAudio(ctx context.Context, op, audioURL string) ([]byte, error) {
	req, err := c.api.NewRequest(ctx, http.MethodGet, audioURL, nil, "", nil)
	if err != nil {
		return nil, chat.E(chat.KindTransport, op, "", err)
	}
	data, _, err := c.api.DoRaw(op, req)
	return data, err
}

// cacheKey normalizes a single-word text to a filesystem-safe audio
// filename. Multi-word texts never hit the cache.
func cacheKey(text string) (string, bool) {
	fields := strings.Fields(strings.TrimSpace(text))
	if len(fields) != 1 {
		return "", false
	}

	word := strings.ToLower(fields[0])
	var b strings.Builder
	for _, r := range word {
		switch {
		case r >= 'a' && r <= 'z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		case r >= 0x80:
			// Non-ASCII letters are kept; the server stores unicode names.
			b.WriteRune(r)
		}
	}
	if b.Len() == 0 {
		return "", false
	}
	return b.String() + ".mp3", true
}
