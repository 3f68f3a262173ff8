package llm

import (
	"context"
	"log/slog"
	"net/url"
	"strings"

	"parley/internal/api"
	"parley/internal/chat"
)

// Client produces assistant replies through the remote /generate endpoint.
type Client struct {
	logger  *slog.Logger
	api     *api.Client
	methods chat.MethodSet
}

// NewClient constructs a generation client constrained by the
// server-advertised method allow-list.
func NewClient(logger *slog.Logger, apiClient *api.Client, methods chat.MethodSet) *Client {
	return &Client{logger: logger, api: apiClient, methods: methods}
}

type generateRequest struct {
	Transcript string `json:"transcript"`
	ChatID     string `json:"chat_id"`
}

type generateResponse struct {
	Response string `json:"response"`
}

// Generate sends the user utterance to the selected model backend and
// returns the assistant reply. The endpoint may embed a failure inside a 2xx
// body; the shared client surfaces that as chat.KindApplication, never as a
// reply. A single failure is terminal, no retry.
func (c *Client) Generate(ctx context.Context, utterance, conversationID, method string) (string, error) {
	const op = "llm.generate"

	if strings.TrimSpace(utterance) == "" {
		return "", chat.E(chat.KindValidation, op, "empty utterance", nil)
	}
	if !chat.HasConversation(conversationID) {
		return "", chat.E(chat.KindValidation, op, "missing conversation id", nil)
	}
	if !c.methods.Allows(chat.MethodGeneration, method) {
		return "", chat.E(chat.KindValidation, op, "method "+method+" is not enabled", nil)
	}

	query := url.Values{"method": {method}}
	in := generateRequest{Transcript: utterance, ChatID: conversationID}

	var resp generateResponse
	if err := c.api.PostJSON(ctx, op, "/generate", query, in, &resp); err != nil {
		return "", err
	}

	reply := strings.TrimSpace(resp.Response)
	if reply == "" {
		return "", chat.E(chat.KindApplication, op, "empty reply", nil)
	}

	c.logger.Debug("generation complete",
		slog.String("method", method),
		slog.String("chat_id", conversationID),
		slog.Int("reply_length", len(reply)),
	)
	return reply, nil
}
