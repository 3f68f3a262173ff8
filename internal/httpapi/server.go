package httpapi

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"parley/internal/chat"
	"parley/internal/orchestrator"
	"parley/internal/stt"
	"parley/internal/suggest"
	"parley/internal/tts"
	"parley/internal/words"
)

// maxAudioUpload bounds recorded-blob uploads (bytes).
const maxAudioUpload = 16 << 20

// Conversations is the subset of the store the gateway exposes directly.
type Conversations interface {
	List(ctx context.Context) ([]chat.Conversation, error)
	Rename(ctx context.Context, id, title string) error
	Delete(ctx context.Context, id string) error
	TranslateTurn(ctx context.Context, id string, index int, text, targetLang string) (string, error)
}

// SuggestionEngine is the gateway's view of the suggestion side panel.
type SuggestionEngine interface {
	Translate(ctx context.Context) (suggest.Outcome, error)
	Audio(ctx context.Context, method string) (tts.Resolution, suggest.Outcome, error)
}

// Server wires the JSON API the browser frontend talks to. It only calls the
// orchestrator and the side-panel clients; rendering lives entirely in the
// frontend.
type Server struct {
	logger        *slog.Logger
	orch          *orchestrator.Orchestrator
	suggestions   SuggestionEngine
	words         *words.Client
	conversations Conversations
	ttsMethod     string
	targetLang    string
}

// NewServer constructs a chi router implementing http.Handler.
func NewServer(logger *slog.Logger, orch *orchestrator.Orchestrator, sugg SuggestionEngine, wordsClient *words.Client, convs Conversations, ttsMethod, targetLang string) http.Handler {
	srv := &Server{
		logger:        logger,
		orch:          orch,
		suggestions:   sugg,
		words:         wordsClient,
		conversations: convs,
		ttsMethod:     ttsMethod,
		targetLang:    targetLang,
	}

	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)

	r.Route("/api", func(r chi.Router) {
		r.Post("/turns", srv.handleSendText)
		r.Post("/turns/audio", srv.handleSendAudio)
		r.Post("/turns/{index}/audio", srv.handlePlayTurn)
		r.Post("/turns/{index}/translate", srv.handleTranslateTurn)
		r.Get("/history", srv.handleHistory)

		r.Get("/conversations", srv.handleListConversations)
		r.Post("/conversations/switch", srv.handleSwitch)
		r.Put("/conversations/{id}", srv.handleRename)
		r.Delete("/conversations/{id}", srv.handleDelete)

		r.Post("/suggestion/translate", srv.handleTranslateSuggestion)
		r.Post("/suggestion/audio", srv.handleSuggestionAudio)

		r.Post("/words/lookup", srv.handleLookup)
		r.Post("/translate", srv.handleTranslate)

		r.Get("/events", srv.handleEvents)
	})

	return r
}

type turnResponse struct {
	Index int       `json:"index"`
	Turn  chat.Turn `json:"turn"`
	Error string    `json:"error,omitempty"`
}

func (s *Server) handleSendText(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text string `json:"text"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid json body")
		return
	}

	result, err := s.orch.Send(r.Context(), in.Text)
	s.respondTurn(w, result, err)
}

func (s *Server) handleSendAudio(w http.ResponseWriter, r *http.Request) {
	blob, err := io.ReadAll(io.LimitReader(r.Body, maxAudioUpload))
	if err != nil {
		s.clientError(w, http.StatusBadRequest, "could not read audio body")
		return
	}

	result, err := s.orch.SendAudio(r.Context(), blob, r.Header.Get("Content-Type"))
	if err != nil && result.Turn.User == "" {
		// Transcription never reached the turn pipeline; hand the frontend a
		// printable fallback instead of an error page.
		s.respondJSON(w, http.StatusOK, map[string]string{"fallback": stt.FallbackText(err)})
		return
	}
	s.respondTurn(w, result, err)
}

// respondTurn reports a settled turn. A generation failure still carries the
// error turn that entered the history, so it is a 200 with an error field.
func (s *Server) respondTurn(w http.ResponseWriter, result orchestrator.TurnResult, err error) {
	if err != nil {
		if result.Turn.User == "" && result.Turn.AI == "" {
			s.errorStatus(w, err)
			return
		}
		s.respondJSON(w, http.StatusOK, turnResponse{Index: result.Index, Turn: result.Turn, Error: err.Error()})
		return
	}
	s.respondJSON(w, http.StatusOK, turnResponse{Index: result.Index, Turn: result.Turn})
}

func (s *Server) handlePlayTurn(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid turn index")
		return
	}

	res, err := s.orch.PlayTurn(r.Context(), index)
	if err != nil {
		s.errorStatus(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"url": res.URL, "filename": res.Filename})
}

// handleTranslateTurn translates a stored assistant reply into the learner's
// language; the store records the result against the turn index.
func (s *Server) handleTranslateTurn(w http.ResponseWriter, r *http.Request) {
	index, err := strconv.Atoi(chi.URLParam(r, "index"))
	if err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid turn index")
		return
	}

	history := s.orch.History()
	if index < 0 || index >= len(history) {
		s.clientError(w, http.StatusBadRequest, "turn index out of range")
		return
	}
	turn := history[index]
	if turn.InFlight() {
		s.clientError(w, http.StatusBadRequest, "turn is still in flight")
		return
	}

	translation, err := s.conversations.TranslateTurn(r.Context(), s.orch.ConversationID(), index, turn.AI, s.targetLang)
	if err != nil {
		s.errorStatus(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"translation": translation})
}

func (s *Server) handleHistory(w http.ResponseWriter, r *http.Request) {
	suggestion, show := s.orch.Suggestion()
	s.respondJSON(w, http.StatusOK, map[string]any{
		"conversation_id":  s.orch.ConversationID(),
		"state":            s.orch.State(),
		"turns":            s.orch.History(),
		"suggestion":       suggestion,
		"show_translation": show,
	})
}

func (s *Server) handleListConversations(w http.ResponseWriter, r *http.Request) {
	list, err := s.conversations.List(r.Context())
	if err != nil {
		s.errorStatus(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, list)
}

func (s *Server) handleSwitch(w http.ResponseWriter, r *http.Request) {
	var in struct {
		ID string `json:"id"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.orch.SwitchConversation(r.Context(), in.ID); err != nil {
		s.errorStatus(w, err)
		return
	}
	s.handleHistory(w, r)
}

func (s *Server) handleRename(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Title string `json:"title"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	if err := s.conversations.Rename(r.Context(), chi.URLParam(r, "id"), in.Title); err != nil {
		s.errorStatus(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDelete(w http.ResponseWriter, r *http.Request) {
	if err := s.conversations.Delete(r.Context(), chi.URLParam(r, "id")); err != nil {
		s.errorStatus(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleTranslateSuggestion(w http.ResponseWriter, r *http.Request) {
	outcome, err := s.suggestions.Translate(r.Context())
	if err != nil {
		s.errorStatus(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"suggestion": outcome.State, "committed": outcome.Committed})
}

func (s *Server) handleSuggestionAudio(w http.ResponseWriter, r *http.Request) {
	res, outcome, err := s.suggestions.Audio(r.Context(), s.ttsMethod)
	if err != nil {
		s.errorStatus(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"url": res.URL, "committed": outcome.Committed})
}

func (s *Server) handleLookup(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Word string `json:"word"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	entries, err := s.words.Lookup(r.Context(), in.Word)
	if err != nil {
		s.errorStatus(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]any{"entries": entries})
}

func (s *Server) handleTranslate(w http.ResponseWriter, r *http.Request) {
	var in struct {
		Text       string `json:"text"`
		TargetLang string `json:"target_lang"`
	}
	if err := json.NewDecoder(r.Body).Decode(&in); err != nil {
		s.clientError(w, http.StatusBadRequest, "invalid json body")
		return
	}
	translation, err := s.words.Translate(r.Context(), in.Text, in.TargetLang)
	if err != nil {
		s.errorStatus(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"translation": translation})
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("encode response failed", slog.String("error", err.Error()))
	}
}

func (s *Server) clientError(w http.ResponseWriter, status int, msg string) {
	s.respondJSON(w, status, map[string]string{"detail": msg})
}

// errorStatus maps the pipeline error taxonomy onto HTTP statuses.
func (s *Server) errorStatus(w http.ResponseWriter, err error) {
	status := http.StatusInternalServerError
	switch chat.KindOf(err) {
	case chat.KindValidation:
		status = http.StatusBadRequest
		if errors.Is(err, chat.ErrBusy) {
			status = http.StatusConflict
		}
	case chat.KindPermission:
		status = http.StatusForbidden
	case chat.KindTransport, chat.KindApplication:
		status = http.StatusBadGateway
	}

	if status >= 500 {
		s.logger.Error("request error", slog.String("error", err.Error()))
	}
	s.respondJSON(w, status, map[string]string{"detail": err.Error()})
}
