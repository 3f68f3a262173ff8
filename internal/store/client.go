package store

import (
	"context"
	"fmt"
	"log/slog"

	"parley/internal/api"
	"parley/internal/chat"
)

// Client adapts the remote chats API. Every call is an independent network
// round trip; callers must not assume one succeeding implies the next will.
type Client struct {
	logger *slog.Logger
	api    *api.Client
}

// NewClient constructs the conversation store adapter.
func NewClient(logger *slog.Logger, apiClient *api.Client) *Client {
	return &Client{logger: logger, api: apiClient}
}

type createResponse struct {
	ID string `json:"id"`
}

// Create starts a new conversation and returns its server-issued id.
func (c *Client) Create(ctx context.Context) (string, error) {
	const op = "store.create"

	var resp createResponse
	if err := c.api.PostJSON(ctx, op, "/chats", nil, struct{}{}, &resp); err != nil {
		return "", err
	}
	if !chat.HasConversation(resp.ID) {
		return "", chat.E(chat.KindApplication, op, "server returned no conversation id", nil)
	}
	c.logger.Debug("conversation created", slog.String("chat_id", resp.ID))
	return resp.ID, nil
}

// List returns all stored conversations.
func (c *Client) List(ctx context.Context) ([]chat.Conversation, error) {
	var out []chat.Conversation
	if err := c.api.GetJSON(ctx, "store.list", "/chats", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// Rename updates a conversation's title.
func (c *Client) Rename(ctx context.Context, id, title string) error {
	const op = "store.rename"
	if !chat.HasConversation(id) {
		return chat.E(chat.KindValidation, op, "missing conversation id", nil)
	}
	in := struct {
		Title string `json:"title"`
	}{Title: title}
	return c.api.PutJSON(ctx, op, "/chats/"+id, in, nil)
}

// Delete removes a conversation and its history.
func (c *Client) Delete(ctx context.Context, id string) error {
	const op = "store.delete"
	if !chat.HasConversation(id) {
		return chat.E(chat.KindValidation, op, "missing conversation id", nil)
	}
	return c.api.Delete(ctx, op, "/chats/"+id)
}

// History returns the ordered turn sequence for a conversation.
func (c *Client) History(ctx context.Context, id string) ([]chat.Turn, error) {
	const op = "store.history"
	if !chat.HasConversation(id) {
		return nil, chat.E(chat.KindValidation, op, "missing conversation id", nil)
	}
	var out []chat.Turn
	if err := c.api.GetJSON(ctx, op, "/chats/"+id+"/history", &out); err != nil {
		return nil, err
	}
	return out, nil
}

// AppendTurn persists a resolved turn at the end of the history.
func (c *Client) AppendTurn(ctx context.Context, id string, turn chat.Turn) error {
	const op = "store.append_turn"
	if !chat.HasConversation(id) {
		return chat.E(chat.KindValidation, op, "missing conversation id", nil)
	}
	if turn.InFlight() {
		return chat.E(chat.KindValidation, op, "refusing to persist an unresolved turn", nil)
	}
	return c.api.PostJSON(ctx, op, "/chats/"+id+"/history", nil, turn, nil)
}

// PatchTurnAudioURL writes a resolved audio URL onto an already stored turn.
func (c *Client) PatchTurnAudioURL(ctx context.Context, id string, index int, audioURL string) error {
	const op = "store.patch_audio_url"
	if !chat.HasConversation(id) {
		return chat.E(chat.KindValidation, op, "missing conversation id", nil)
	}
	if index < 0 {
		return chat.E(chat.KindValidation, op, fmt.Sprintf("invalid turn index %d", index), nil)
	}
	in := struct {
		Index    int    `json:"index"`
		AudioURL string `json:"audioUrl"`
	}{Index: index, AudioURL: audioURL}
	return c.api.PatchJSON(ctx, op, "/chats/"+id+"/audioUrl", in, nil)
}

// GetSuggestion reads the stored suggestion state for a conversation.
func (c *Client) GetSuggestion(ctx context.Context, id string) (chat.SuggestionState, error) {
	const op = "store.get_suggestion"
	if !chat.HasConversation(id) {
		return chat.SuggestionState{}, chat.E(chat.KindValidation, op, "missing conversation id", nil)
	}
	var out chat.SuggestionState
	if err := c.api.GetJSON(ctx, op, "/chats/"+id+"/suggestion", &out); err != nil {
		return chat.SuggestionState{}, err
	}
	return out, nil
}

// PutSuggestion upserts the given fields of the suggestion state. Unset
// fields keep their stored values; this is a partial update, never a full
// overwrite.
func (c *Client) PutSuggestion(ctx context.Context, id string, patch chat.SuggestionPatch) error {
	const op = "store.put_suggestion"
	if !chat.HasConversation(id) {
		return chat.E(chat.KindValidation, op, "missing conversation id", nil)
	}
	return c.api.PutJSON(ctx, op, "/chats/"+id+"/suggestion", patch, nil)
}

type translateTurnResponse struct {
	Translation string `json:"translation"`
}

// TranslateTurn translates a stored assistant reply and records the result
// server-side against the turn index.
func (c *Client) TranslateTurn(ctx context.Context, id string, index int, text, targetLang string) (string, error) {
	const op = "store.translate_turn"
	if !chat.HasConversation(id) {
		return "", chat.E(chat.KindValidation, op, "missing conversation id", nil)
	}
	in := struct {
		Text       string `json:"text"`
		TargetLang string `json:"target_lang"`
		ChatID     string `json:"chat_id"`
		Index      int    `json:"index"`
	}{Text: text, TargetLang: targetLang, ChatID: id, Index: index}

	var out translateTurnResponse
	if err := c.api.PostJSON(ctx, op, "/chats/"+id+"/translate-ai", nil, in, &out); err != nil {
		return "", err
	}
	return out.Translation, nil
}
