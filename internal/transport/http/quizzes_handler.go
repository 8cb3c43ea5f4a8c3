package http

import (
	"log/slog"
	"net/http"

	"live-quiz-service/internal/app"
)

// QuizzesHandler serves quiz-level lookups and cache control.
type QuizzesHandler struct {
	sessions app.SessionLister
	cache    app.QuizCache
	logger   *slog.Logger
}

func NewQuizzesHandler(sessions app.SessionLister, cache app.QuizCache, logger *slog.Logger) *QuizzesHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &QuizzesHandler{sessions: sessions, cache: cache, logger: logger}
}

type quizSessionsResponse struct {
	QuizID     string   `json:"quizId"`
	SessionIDs []string `json:"sessionIds"`
}

// ListSessions handles GET /quizzes/{id}/sessions.
func (h *QuizzesHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	ids, err := h.sessions.QuizSessions(r.Context(), quizID)
	if err != nil {
		h.logger.Error("list quiz sessions", "quiz", quizID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, quizSessionsResponse{QuizID: quizID, SessionIDs: ids})
}

// InvalidateCache handles DELETE /quizzes/{id}/cache. Rooms created after
// this see the quiz as currently stored.
func (h *QuizzesHandler) InvalidateCache(w http.ResponseWriter, r *http.Request) {
	quizID := r.PathValue("id")
	if err := h.cache.Invalidate(r.Context(), quizID); err != nil {
		h.logger.Error("invalidate quiz cache", "quiz", quizID, "error", err)
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	h.logger.Info("quiz cache invalidated", "quiz", quizID)
	w.WriteHeader(http.StatusNoContent)
}
