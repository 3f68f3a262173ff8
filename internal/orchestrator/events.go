package orchestrator

import (
	"sync"

	"github.com/google/uuid"

	"parley/internal/chat"
)

// State is the orchestrator's externally observable lifecycle phase.
type State string

const (
	StateIdle                 State = "idle"
	StateAwaitingConversation State = "awaiting_conversation"
	StateSending              State = "sending"
	StateGenerating           State = "generating"
	StateSynthesizing         State = "synthesizing"
	StatePersisting           State = "persisting"
	StateSuggestionPending    State = "suggestion_pending"
)

// EventKind distinguishes the event stream entries.
type EventKind string

const (
	// EventState announces a lifecycle transition.
	EventState EventKind = "state"
	// EventTurn announces a created or mutated history turn.
	EventTurn EventKind = "turn"
	// EventSuggestion announces updated suggestion-display state.
	EventSuggestion EventKind = "suggestion"
	// EventBestEffort announces the outcome of a non-fatal step (synthesis,
	// persistence, audio patch) so failures there stay observable.
	EventBestEffort EventKind = "best_effort"
)

// Event is what the presentation layer subscribes to instead of sharing
// mutable cells with the orchestrator.
type Event struct {
	Kind  EventKind `json:"kind"`
	State State     `json:"state,omitempty"`

	Index int        `json:"index,omitempty"`
	Turn  *chat.Turn `json:"turn,omitempty"`

	Suggestion      *chat.SuggestionState `json:"suggestion,omitempty"`
	ShowTranslation bool                  `json:"show_translation,omitempty"`

	Step      string `json:"step,omitempty"`
	Committed bool   `json:"committed,omitempty"`
	Error     string `json:"error,omitempty"`
}

// broadcaster fans events out to subscribers without ever blocking the turn
// pipeline; a subscriber that stops draining loses events, not the pipeline.
type broadcaster struct {
	mu   sync.Mutex
	subs map[string]chan Event
}

func newBroadcaster() *broadcaster {
	return &broadcaster{subs: make(map[string]chan Event)}
}

func (b *broadcaster) subscribe() (<-chan Event, func()) {
	ch := make(chan Event, 32)
	id := uuid.NewString()

	b.mu.Lock()
	b.subs[id] = ch
	b.mu.Unlock()

	cancel := func() {
		b.mu.Lock()
		if sub, ok := b.subs[id]; ok {
			delete(b.subs, id)
			close(sub)
		}
		b.mu.Unlock()
	}
	return ch, cancel
}

func (b *broadcaster) publish(ev Event) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, ch := range b.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}
