package orchestrator

import (
	"context"
	"log/slog"
	"strings"
	"sync"

	"parley/internal/chat"
	"parley/internal/suggest"
	"parley/internal/tts"
)

// Transcriber converts an encoded audio blob to text.
type Transcriber interface {
	Transcribe(ctx context.Context, blob []byte, contentType, method string) (string, error)
}

// Generator produces an assistant reply for a user utterance.
type Generator interface {
	Generate(ctx context.Context, utterance, conversationID, method string) (string, error)
}

// Synthesizer resolves text to playable audio.
type Synthesizer interface {
	Synthesize(ctx context.Context, text, method, knownURL string) (tts.Resolution, error)
}

// Store is the conversation persistence adapter. Calls are remote and fail
// independently of each other.
type Store interface {
	Create(ctx context.Context) (string, error)
	History(ctx context.Context, id string) ([]chat.Turn, error)
	AppendTurn(ctx context.Context, id string, turn chat.Turn) error
	PatchTurnAudioURL(ctx context.Context, id string, index int, audioURL string) error
}

// Suggestions is the follow-up engine driven after each settled turn.
type Suggestions interface {
	Refresh(ctx context.Context, latestReply, conversationID, method string) (suggest.Outcome, bool)
	Rehydrate(ctx context.Context, conversationID string)
	State() (chat.SuggestionState, bool)
}

// Selection fixes the backend method for each pipeline stage. The
// allow-list check happens before any network call.
type Selection struct {
	STT        string
	Generation string
	TTS        string
}

// Deps collects the orchestrator's collaborators.
type Deps struct {
	Logger      *slog.Logger
	Transcriber Transcriber
	Generator   Generator
	Synthesizer Synthesizer
	Store       Store
	Suggestions Suggestions
	Methods     chat.MethodSet
	Selection   Selection
}

// TurnResult is what a settled send returns: the turn's position, its final
// content, and the audio resolution when synthesis succeeded.
type TurnResult struct {
	Index int
	Turn  chat.Turn
	Audio *tts.Resolution
}

// Orchestrator sequences one conversational turn: recording text in,
// generation, synthesis, persistence, suggestion. The turn counts as
// delivered once the assistant text exists; synthesis and persistence are
// best-effort after that. At most one turn runs at a time; a second send is
// rejected with chat.ErrBusy rather than queued.
type Orchestrator struct {
	logger *slog.Logger
	deps   Deps
	events *broadcaster

	mu             sync.Mutex
	state          State
	conversationID string
	history        []chat.Turn
}

// New constructs an idle orchestrator with no active conversation.
func New(deps Deps) *Orchestrator {
	return &Orchestrator{
		logger: deps.Logger,
		deps:   deps,
		events: newBroadcaster(),
		state:  StateIdle,
	}
}

// Subscribe registers an event listener. The returned cancel func must be
// called when the listener goes away.
func (o *Orchestrator) Subscribe() (<-chan Event, func()) {
	return o.events.subscribe()
}

// State returns the current lifecycle phase.
func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.state
}

// ConversationID returns the active conversation id, or "" before the first
// send lazily creates one.
func (o *Orchestrator) ConversationID() string {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.conversationID
}

// History returns a copy of the in-memory ordered turn history.
func (o *Orchestrator) History() []chat.Turn {
	o.mu.Lock()
	defer o.mu.Unlock()
	out := make([]chat.Turn, len(o.history))
	copy(out, o.history)
	return out
}

// Suggestion exposes the current suggestion-display state.
func (o *Orchestrator) Suggestion() (chat.SuggestionState, bool) {
	return o.deps.Suggestions.State()
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
	o.events.publish(Event{Kind: EventState, State: s})
}

// acquire claims the pipeline for a new turn. A pending suggestion does not
// hold the pipeline; its late result simply arrives alongside the new turn.
func (o *Orchestrator) acquire() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state != StateIdle && o.state != StateSuggestionPending {
		return chat.E(chat.KindValidation, "orchestrator.send", "", chat.ErrBusy)
	}
	o.state = StateSending
	return nil
}

// Send runs one full conversational turn for a typed utterance.
func (o *Orchestrator) Send(ctx context.Context, text string) (TurnResult, error) {
	const op = "orchestrator.send"

	text = chat.CapitalizeFirst(strings.TrimSpace(text))
	if text == "" {
		return TurnResult{}, chat.E(chat.KindValidation, op, "empty utterance", nil)
	}
	if !o.deps.Methods.Allows(chat.MethodGeneration, o.deps.Selection.Generation) {
		return TurnResult{}, chat.E(chat.KindValidation, op, "generation method "+o.deps.Selection.Generation+" is not enabled", nil)
	}

	if err := o.acquire(); err != nil {
		return TurnResult{}, err
	}

	// Lazy conversation creation before any persistence call.
	o.mu.Lock()
	id := o.conversationID
	o.mu.Unlock()
	if !chat.HasConversation(id) {
		o.setState(StateAwaitingConversation)
		created, err := o.deps.Store.Create(ctx)
		if err != nil {
			index, turn := o.appendResolved(chat.Turn{User: text, AI: chat.ErrorReply})
			o.publishTurn(index, turn)
			o.setState(StateIdle)
			return TurnResult{Index: index, Turn: turn}, err
		}
		o.mu.Lock()
		o.conversationID = created
		id = created
		o.mu.Unlock()
	}

	o.setState(StateSending)
	index, turn := o.appendPlaceholder(text)
	o.publishTurn(index, turn)

	o.setState(StateGenerating)
	reply, err := o.deps.Generator.Generate(ctx, text, id, o.deps.Selection.Generation)
	if err != nil {
		index, turn = o.resolvePlaceholder(chat.ErrorReply)
		o.publishTurn(index, turn)
		o.setState(StateIdle)
		return TurnResult{Index: index, Turn: turn}, err
	}

	index, turn = o.resolvePlaceholder(reply)
	o.publishTurn(index, turn)

	// The turn is delivered from here on; audio and persistence are
	// best-effort.
	result := TurnResult{Index: index, Turn: turn}

	o.setState(StateSynthesizing)
	res, synthErr := o.deps.Synthesizer.Synthesize(ctx, reply, o.deps.Selection.TTS, "")
	if synthErr != nil {
		o.logger.Warn("turn synthesis failed", slog.String("chat_id", id), slog.String("error", synthErr.Error()))
		o.publishBestEffort("synthesize", false, synthErr)
	} else {
		index, turn = o.setTurnAudio(index, res.URL)
		o.publishTurn(index, turn)
		result.Turn = turn
		result.Audio = &res
	}

	o.setState(StatePersisting)
	if err := o.deps.Store.AppendTurn(ctx, id, result.Turn); err != nil {
		o.logger.Warn("turn persist failed", slog.String("chat_id", id), slog.String("error", err.Error()))
		o.publishBestEffort("persist", false, err)
	} else {
		o.publishBestEffort("persist", true, nil)
	}

	o.setState(StateSuggestionPending)
	go o.refreshSuggestion(context.WithoutCancel(ctx), reply, id)

	return result, nil
}

// SendAudio transcribes a recorded blob and runs a turn with the result.
// Transcription failures return before any turn state is touched; the
// caller renders stt.FallbackText instead of crashing the pipeline.
func (o *Orchestrator) SendAudio(ctx context.Context, blob []byte, contentType string) (TurnResult, error) {
	transcript, err := o.deps.Transcriber.Transcribe(ctx, blob, contentType, o.deps.Selection.STT)
	if err != nil {
		return TurnResult{}, err
	}
	return o.Send(ctx, transcript)
}

// refreshSuggestion runs after the turn settles and never affects its
// outcome. A late result for a conversation the user already left is
// dropped.
func (o *Orchestrator) refreshSuggestion(ctx context.Context, reply, id string) {
	outcome, ok := o.deps.Suggestions.Refresh(ctx, reply, id, o.deps.Selection.Generation)

	o.mu.Lock()
	stale := o.conversationID != id
	settled := o.state == StateSuggestionPending
	if settled {
		o.state = StateIdle
	}
	o.mu.Unlock()
	if settled {
		o.events.publish(Event{Kind: EventState, State: StateIdle})
	}

	if !ok || stale {
		return
	}
	o.events.publish(Event{
		Kind:       EventSuggestion,
		Suggestion: &outcome.State,
		Committed:  outcome.Committed,
	})
}

// PlayTurn resolves audio for a stored turn, synthesizing only when the turn
// carries no URL yet, and patches a fresh URL back best-effort.
func (o *Orchestrator) PlayTurn(ctx context.Context, index int) (tts.Resolution, error) {
	const op = "orchestrator.play_turn"

	o.mu.Lock()
	id := o.conversationID
	if index < 0 || index >= len(o.history) {
		o.mu.Unlock()
		return tts.Resolution{}, chat.E(chat.KindValidation, op, "turn index out of range", nil)
	}
	turn := o.history[index]
	o.mu.Unlock()

	if turn.InFlight() {
		return tts.Resolution{}, chat.E(chat.KindValidation, op, "turn is still in flight", nil)
	}

	res, err := o.deps.Synthesizer.Synthesize(ctx, turn.AI, o.deps.Selection.TTS, turn.AudioURL)
	if err != nil {
		return tts.Resolution{}, err
	}

	if res.URL != turn.AudioURL {
		index, updated := o.setTurnAudio(index, res.URL)
		o.publishTurn(index, updated)
		if err := o.deps.Store.PatchTurnAudioURL(ctx, id, index, res.URL); err != nil {
			o.logger.Warn("audio url patch failed", slog.String("chat_id", id), slog.String("error", err.Error()))
			o.publishBestEffort("patch_audio_url", false, err)
		} else {
			o.publishBestEffort("patch_audio_url", true, nil)
		}
	}
	return res, nil
}

// SwitchConversation discards the in-memory history and rehydrates from the
// store for the given id. An empty id starts over with no conversation.
func (o *Orchestrator) SwitchConversation(ctx context.Context, id string) error {
	const op = "orchestrator.switch"

	o.mu.Lock()
	busy := o.state != StateIdle && o.state != StateSuggestionPending
	o.mu.Unlock()
	if busy {
		return chat.E(chat.KindValidation, op, "", chat.ErrBusy)
	}

	var history []chat.Turn
	if chat.HasConversation(id) {
		loaded, err := o.deps.Store.History(ctx, id)
		if err != nil {
			return err
		}
		history = loaded
	} else {
		id = ""
	}

	o.mu.Lock()
	o.conversationID = id
	o.history = history
	o.state = StateIdle
	o.mu.Unlock()

	o.deps.Suggestions.Rehydrate(ctx, id)

	suggestion, show := o.deps.Suggestions.State()
	o.events.publish(Event{Kind: EventState, State: StateIdle})
	o.events.publish(Event{Kind: EventSuggestion, Suggestion: &suggestion, ShowTranslation: show, Committed: true})
	return nil
}

// appendPlaceholder adds the in-flight turn. The single-placeholder
// invariant holds because the pipeline is single-flight; if a stray
// placeholder survives a crash path it is resolved instead of duplicated.
func (o *Orchestrator) appendPlaceholder(user string) (int, chat.Turn) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.history) - 1; i >= 0; i-- {
		if o.history[i].InFlight() {
			o.history[i].User = user
			return i, o.history[i]
		}
	}
	o.history = append(o.history, chat.Turn{User: user, AI: chat.PlaceholderReply})
	return len(o.history) - 1, o.history[len(o.history)-1]
}

// resolvePlaceholder writes the assistant reply into the last in-flight
// turn, or appends a resolved turn if none exists.
func (o *Orchestrator) resolvePlaceholder(ai string) (int, chat.Turn) {
	o.mu.Lock()
	defer o.mu.Unlock()
	for i := len(o.history) - 1; i >= 0; i-- {
		if o.history[i].InFlight() {
			o.history[i].AI = ai
			return i, o.history[i]
		}
	}
	o.history = append(o.history, chat.Turn{AI: ai})
	return len(o.history) - 1, o.history[len(o.history)-1]
}

func (o *Orchestrator) appendResolved(turn chat.Turn) (int, chat.Turn) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.history = append(o.history, turn)
	return len(o.history) - 1, turn
}

func (o *Orchestrator) setTurnAudio(index int, url string) (int, chat.Turn) {
	o.mu.Lock()
	defer o.mu.Unlock()
	if index >= 0 && index < len(o.history) {
		o.history[index].AudioURL = url
		return index, o.history[index]
	}
	return index, chat.Turn{}
}

func (o *Orchestrator) publishTurn(index int, turn chat.Turn) {
	o.events.publish(Event{Kind: EventTurn, Index: index, Turn: &turn})
}

func (o *Orchestrator) publishBestEffort(step string, committed bool, err error) {
	ev := Event{Kind: EventBestEffort, Step: step, Committed: committed}
	if err != nil {
		ev.Error = err.Error()
	}
	o.events.publish(ev)
}
