package chat

import "strings"

// PlaceholderReply marks a turn whose assistant reply has not resolved yet.
// At most one turn in a conversation's history may carry it at a time.
const PlaceholderReply = "…"

// ErrorReply is the assistant text recorded when generation fails terminally.
const ErrorReply = "Error processing response"

// Turn is one user-utterance/assistant-reply pair.
type Turn struct {
	User     string `json:"user"`
	AI       string `json:"ai"`
	AudioURL string `json:"audioUrl,omitempty"`
}

// InFlight reports whether the turn still awaits its assistant reply.
func (t Turn) InFlight() bool {
	return t.AI == PlaceholderReply
}

// SuggestionState is the per-conversation follow-up proposal. Translation and
// audio are filled lazily and never regenerated while the suggestion text
// stands; a new assistant reply resets all three.
type SuggestionState struct {
	Latest      string `json:"latest_suggestion"`
	Translation string `json:"translate_suggestion"`
	AudioURL    string `json:"suggestion_audio_url"`
}

// SuggestionPatch carries a partial suggestion update. Nil fields are left
// untouched by the server.
type SuggestionPatch struct {
	Latest      *string `json:"latest_suggestion,omitempty"`
	Translation *string `json:"translate_suggestion,omitempty"`
	AudioURL    *string `json:"suggestion_audio_url,omitempty"`
}

// Conversation is a stored chat summary as returned by the chats API.
type Conversation struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// MethodKind distinguishes the three backend selections.
type MethodKind string

const (
	MethodSTT        MethodKind = "stt"
	MethodGeneration MethodKind = "generation"
	MethodTTS        MethodKind = "tts"
)

// MethodSet mirrors the server-advertised enabled-methods allow-list.
type MethodSet struct {
	STT        []string `json:"stt"`
	Generation []string `json:"generation"`
	TTS        []string `json:"tts"`
}

// Allows reports whether method is enabled for the given kind. An empty list
// for a kind means the server advertised no restriction.
func (m MethodSet) Allows(kind MethodKind, method string) bool {
	var list []string
	switch kind {
	case MethodSTT:
		list = m.STT
	case MethodGeneration:
		list = m.Generation
	case MethodTTS:
		list = m.TTS
	default:
		return false
	}
	if len(list) == 0 {
		return true
	}
	for _, v := range list {
		if v == method {
			return true
		}
	}
	return false
}

// HasConversation reports whether id names an existing conversation. The
// literal strings "null" and "undefined" leak out of loosely typed frontends
// and are treated as absent, same as the empty string.
func HasConversation(id string) bool {
	switch strings.TrimSpace(id) {
	case "", "null", "undefined":
		return false
	}
	return true
}

// CapitalizeFirst upper-cases the first rune of an utterance before it enters
// the turn history.
func CapitalizeFirst(s string) string {
	if s == "" {
		return s
	}
	runes := []rune(s)
	runes[0] = []rune(strings.ToUpper(string(runes[0])))[0]
	return string(runes)
}
