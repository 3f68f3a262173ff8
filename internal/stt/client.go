package stt

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"parley/internal/api"
	"parley/internal/chat"
)

// DefaultContentType matches the browser recorder's encoding. Capture from
// the terminal client sends audio/wav instead.
const DefaultContentType = "audio/webm"

// Client transcribes recorded audio through the remote STT endpoint.
type Client struct {
	logger  *slog.Logger
	api     *api.Client
	methods chat.MethodSet
}

// NewClient constructs a transcription client constrained by the
// server-advertised method allow-list.
func NewClient(logger *slog.Logger, apiClient *api.Client, methods chat.MethodSet) *Client {
	return &Client{logger: logger, api: apiClient, methods: methods}
}

type transcriptResponse struct {
	Transcript string `json:"transcript"`
}

// Transcribe sends the encoded audio blob to /stt and returns the recognized
// text. An empty transcript from the service is reported as chat.ErrNoSpeech
// so callers can show a fallback instead of failing the turn.
func (c *Client) Transcribe(ctx context.Context, blob []byte, contentType, method string) (string, error) {
	const op = "stt.transcribe"

	if len(blob) == 0 {
		return "", chat.E(chat.KindValidation, op, "empty audio blob", nil)
	}
	if !c.methods.Allows(chat.MethodSTT, method) {
		return "", chat.E(chat.KindValidation, op, "method "+method+" is not enabled", nil)
	}
	if contentType == "" {
		contentType = DefaultContentType
	}

	query := url.Values{"method": {method}}
	req, err := c.api.NewRequest(ctx, http.MethodPost, "/stt", query, contentType, blob)
	if err != nil {
		return "", chat.E(chat.KindTransport, op, "", err)
	}

	var resp transcriptResponse
	if err := c.api.DoJSON(op, req, &resp); err != nil {
		return "", err
	}

	transcript := strings.TrimSpace(resp.Transcript)
	if transcript == "" {
		return "", chat.E(chat.KindApplication, op, "", chat.ErrNoSpeech)
	}

	c.logger.Debug("transcription complete",
		slog.String("method", method),
		slog.Int("audio_bytes", len(blob)),
		slog.Int("transcript_length", len(transcript)),
	)
	return transcript, nil
}

// FallbackText renders a human-readable stand-in transcript for a failed
// transcription. The turn pipeline shows this instead of crashing.
func FallbackText(err error) string {
	if err == nil {
		return ""
	}
	if errors.Is(err, chat.ErrNoSpeech) {
		return "No speech detected."
	}
	return "Error transcribing audio."
}
