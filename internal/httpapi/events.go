package httpapi

import (
	"log/slog"
	"net/http"

	"github.com/gorilla/websocket"
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The gateway serves the same origin as the frontend in deployment;
	// cross-origin access is the reverse proxy's concern.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// handleEvents streams orchestrator events over a websocket so the frontend
// subscribes to turn lifecycle updates instead of polling.
func (s *Server) handleEvents(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", slog.String("error", err.Error()))
		return
	}
	defer conn.Close()

	events, cancel := s.orch.Subscribe()
	defer cancel()

	// Drain client frames so close/ping handling works; the stream is
	// one-way otherwise.
	done := make(chan struct{})
	go func() {
		defer close(done)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	for {
		select {
		case <-done:
			return
		case <-r.Context().Done():
			return
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := conn.WriteJSON(ev); err != nil {
				s.logger.Debug("event subscriber dropped", slog.String("error", err.Error()))
				return
			}
		}
	}
}
