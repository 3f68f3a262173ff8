package suggest

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"parley/internal/chat"
	"parley/internal/tts"
)

// Generator produces an assistant reply for a prompt (the generation client).
type Generator interface {
	Generate(ctx context.Context, utterance, conversationID, method string) (string, error)
}

// Translator converts text into the learner's language.
type Translator interface {
	Translate(ctx context.Context, text, targetLang string) (string, error)
}

// Synthesizer resolves text to playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, method, knownURL string) (tts.Resolution, error)
}

// Persister stores suggestion state server-side.
type Persister interface {
	PutSuggestion(ctx context.Context, id string, patch chat.SuggestionPatch) error
	GetSuggestion(ctx context.Context, id string) (chat.SuggestionState, error)
}

// Outcome reports a best-effort mutation: the resulting local state and
// whether the server confirmed the write. An uncommitted outcome is not an
// error; the local state stands either way.
type Outcome struct {
	State     chat.SuggestionState
	Committed bool
}

// Engine derives a short follow-up utterance from the latest assistant reply
// and lazily fills in its translation and audio. Translation and audio are
// fetched at most once per suggestion text; repeat requests only toggle
// visibility.
type Engine struct {
	logger     *slog.Logger
	generator  Generator
	translator Translator
	synth      Synthesizer
	persister  Persister
	targetLang string

	mu              sync.Mutex
	conversationID  string
	state           chat.SuggestionState
	showTranslation bool
}

// NewEngine constructs a suggestion engine.
func NewEngine(logger *slog.Logger, g Generator, t Translator, s Synthesizer, p Persister, targetLang string) *Engine {
	return &Engine{
		logger:     logger,
		generator:  g,
		translator: t,
		synth:      s,
		persister:  p,
		targetLang: targetLang,
	}
}

// followUpPrompt embeds the latest assistant reply into the fixed derivation
// template.
func followUpPrompt(latestReply string) string {
	return fmt.Sprintf(
		"Suggest one short, natural sentence a language learner could say next in this conversation, "+
			"responding to: %q. Answer with the sentence only, no commentary.", latestReply)
}

// Refresh derives a fresh suggestion from the latest assistant reply and
// persists it, clearing the now-stale translation and audio fields. It
// returns ok=false on any failure; callers never block a turn on this.
func (e *Engine) Refresh(ctx context.Context, latestReply, conversationID, method string) (Outcome, bool) {
	if strings.TrimSpace(latestReply) == "" || !chat.HasConversation(conversationID) {
		return Outcome{}, false
	}

	text, err := e.generator.Generate(ctx, followUpPrompt(latestReply), conversationID, method)
	if err != nil {
		e.logger.Warn("suggestion derivation failed", slog.String("error", err.Error()))
		return Outcome{}, false
	}
	text = strings.Trim(strings.TrimSpace(text), "\"")
	if text == "" {
		return Outcome{}, false
	}

	fresh := chat.SuggestionState{Latest: text}

	e.mu.Lock()
	e.conversationID = conversationID
	e.state = fresh
	e.showTranslation = false
	e.mu.Unlock()

	committed := true
	empty := ""
	patch := chat.SuggestionPatch{Latest: &text, Translation: &empty, AudioURL: &empty}
	if err := e.persister.PutSuggestion(ctx, conversationID, patch); err != nil {
		e.logger.Warn("suggestion persist failed", slog.String("chat_id", conversationID), slog.String("error", err.Error()))
		committed = false
	}

	return Outcome{State: fresh, Committed: committed}, true
}

// Rehydrate loads the stored suggestion state when switching conversations.
// A load failure leaves an empty local state; the next reply regenerates it.
func (e *Engine) Rehydrate(ctx context.Context, conversationID string) {
	var state chat.SuggestionState
	if chat.HasConversation(conversationID) {
		loaded, err := e.persister.GetSuggestion(ctx, conversationID)
		if err != nil {
			e.logger.Warn("suggestion rehydrate failed", slog.String("chat_id", conversationID), slog.String("error", err.Error()))
		} else {
			state = loaded
		}
	}

	e.mu.Lock()
	e.conversationID = conversationID
	e.state = state
	e.showTranslation = false
	e.mu.Unlock()
}

// State returns the current suggestion and whether its translation is shown.
func (e *Engine) State() (chat.SuggestionState, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state, e.showTranslation
}

// Translate fills in the suggestion's translation on first request and
// toggles its visibility on every subsequent one. The translation endpoint
// is never called twice for the same suggestion text.
func (e *Engine) Translate(ctx context.Context) (Outcome, error) {
	const op = "suggest.translate"

	e.mu.Lock()
	id := e.conversationID
	state := e.state
	if state.Latest == "" {
		e.mu.Unlock()
		return Outcome{}, chat.E(chat.KindValidation, op, "no suggestion to translate", nil)
	}
	if state.Translation != "" {
		e.showTranslation = !e.showTranslation
		e.mu.Unlock()
		return Outcome{State: state, Committed: true}, nil
	}
	e.mu.Unlock()

	translated, err := e.translator.Translate(ctx, state.Latest, e.targetLang)
	if err != nil {
		return Outcome{}, err
	}

	e.mu.Lock()
	// The suggestion may have been regenerated while we were translating.
	if e.state.Latest != state.Latest {
		e.mu.Unlock()
		return Outcome{}, chat.E(chat.KindValidation, op, "suggestion changed during translation", nil)
	}
	e.state.Translation = translated
	e.showTranslation = true
	state = e.state
	e.mu.Unlock()

	committed := true
	if err := e.persister.PutSuggestion(ctx, id, chat.SuggestionPatch{Translation: &translated}); err != nil {
		e.logger.Warn("suggestion translation persist failed", slog.String("chat_id", id), slog.String("error", err.Error()))
		committed = false
	}
	return Outcome{State: state, Committed: committed}, nil
}

// Audio resolves the suggestion to playable audio, synthesizing only when no
// URL is stored yet, and persists a freshly synthesized URL best-effort.
func (e *Engine) Audio(ctx context.Context, method string) (tts.Resolution, Outcome, error) {
	const op = "suggest.audio"

	e.mu.Lock()
	id := e.conversationID
	state := e.state
	e.mu.Unlock()

	if state.Latest == "" {
		return tts.Resolution{}, Outcome{}, chat.E(chat.KindValidation, op, "no suggestion to play", nil)
	}

	res, err := e.synth.Synthesize(ctx, state.Latest, method, state.AudioURL)
	if err != nil {
		return tts.Resolution{}, Outcome{}, err
	}

	if state.AudioURL == res.URL {
		return res, Outcome{State: state, Committed: true}, nil
	}

	e.mu.Lock()
	if e.state.Latest == state.Latest {
		e.state.AudioURL = res.URL
	}
	state = e.state
	e.mu.Unlock()

	committed := true
	if err := e.persister.PutSuggestion(ctx, id, chat.SuggestionPatch{AudioURL: &res.URL}); err != nil {
		e.logger.Warn("suggestion audio persist failed", slog.String("chat_id", id), slog.String("error", err.Error()))
		committed = false
	}
	return res, Outcome{State: state, Committed: committed}, nil
}
