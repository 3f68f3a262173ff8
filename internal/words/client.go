package words

import (
	"context"
	"log/slog"
	"strings"

	"parley/internal/api"
	"parley/internal/chat"
)

const defaultLookupLimit = 5

// Entry is one dictionary sense for a looked-up word.
type Entry struct {
	Word         string   `json:"word"`
	Translation  string   `json:"translation"`
	PartOfSpeech string   `json:"part_of_speech,omitempty"`
	Examples     []string `json:"examples,omitempty"`
}

// Client backs the vocabulary side panel: dictionary lookups and generic
// text translation.
type Client struct {
	logger *slog.Logger
	api    *api.Client
	source string
	limit  int
}

// NewClient constructs a words client. source selects the dictionary
// backend; it is fixed at construction rather than read from ambient state.
func NewClient(logger *slog.Logger, apiClient *api.Client, source string, limit int) *Client {
	if limit <= 0 {
		limit = defaultLookupLimit
	}
	return &Client{logger: logger, api: apiClient, source: source, limit: limit}
}

type lookupRequest struct {
	Word   string `json:"word"`
	Source string `json:"source"`
	Limit  int    `json:"limit"`
}

type lookupResponse struct {
	Entries []Entry `json:"entries"`
}

// Lookup fetches dictionary entries for a single word.
func (c *Client) Lookup(ctx context.Context, word string) ([]Entry, error) {
	const op = "words.lookup"

	word = strings.TrimSpace(word)
	if word == "" {
		return nil, chat.E(chat.KindValidation, op, "empty word", nil)
	}
	if len(strings.Fields(word)) != 1 {
		return nil, chat.E(chat.KindValidation, op, "lookup takes a single word", nil)
	}

	in := lookupRequest{Word: word, Source: c.source, Limit: c.limit}
	var out lookupResponse
	if err := c.api.PostJSON(ctx, op, "/word-info", nil, in, &out); err != nil {
		return nil, err
	}
	return out.Entries, nil
}

type translateRequest struct {
	Text       string `json:"text"`
	TargetLang string `json:"target_lang"`
}

type translateResponse struct {
	Translation string `json:"translation"`
}

// Translate converts free text into the target language.
func (c *Client) Translate(ctx context.Context, text, targetLang string) (string, error) {
	const op = "words.translate"

	if strings.TrimSpace(text) == "" {
		return "", chat.E(chat.KindValidation, op, "empty text", nil)
	}
	if targetLang == "" {
		return "", chat.E(chat.KindValidation, op, "missing target language", nil)
	}

	var out translateResponse
	if err := c.api.PostJSON(ctx, op, "/translate", nil, translateRequest{Text: text, TargetLang: targetLang}, &out); err != nil {
		return "", err
	}

	translation := strings.TrimSpace(out.Translation)
	if translation == "" {
		return "", chat.E(chat.KindApplication, op, "empty translation", nil)
	}
	return translation, nil
}
