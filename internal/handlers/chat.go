package handlers

import (
	"log/slog"
	"net/http"
	"strings"
)

// HandleChats accepts a user message through the "message" form field and starts a turn in the
// background. Responses reach the page through the event stream, not through this handler.
//
// A blank message is a no-op answered with 204. Submissions over the configured rate are refused
// with 429. Accepted messages are answered with 202.
func (m Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		m.logger.Error("Method not allowed", slog.String("method", r.Method))
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	msg := strings.TrimSpace(r.FormValue("message"))
	if msg == "" {
		w.WriteHeader(http.StatusNoContent)
		return
	}

	if !m.submitLimiter.Allow() {
		m.logger.Warn("Submission rate exceeded")
		http.Error(w, "Too many messages", http.StatusTooManyRequests)
		return
	}

	m.turns.Add(1)
	go func() {
		defer m.turns.Done()
		m.session.SubmitTurn(m.turnCtx, msg)
	}()

	w.WriteHeader(http.StatusAccepted)
}

// HandleSSE streams bubble events to the page.
func (m Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.broadcaster.ServeHTTP(w, r)
}
