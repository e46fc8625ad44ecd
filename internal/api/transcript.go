package api

import (
	"errors"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/ashureev/shsh-chat/internal/domain"
	"github.com/ashureev/shsh-chat/internal/store"
	"github.com/go-chi/chi/v5"
)

// TranscriptHandler serves stored transcripts read-only.
type TranscriptHandler struct {
	repo store.Repository
}

// NewTranscriptHandler creates a transcript handler over repo.
func NewTranscriptHandler(repo store.Repository) *TranscriptHandler {
	return &TranscriptHandler{repo: repo}
}

// RegisterRoutes registers transcript routes.
func (h *TranscriptHandler) RegisterRoutes(r chi.Router) {
	r.Route("/api/transcripts", func(r chi.Router) {
		r.Get("/", h.List)
		r.Get("/{sessionID}", h.Get)
	})
}

// List returns recent sessions. The optional limit query parameter caps the count.
func (h *TranscriptHandler) List(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			Error(w, http.StatusBadRequest, "invalid limit")
			return
		}
		limit = n
	}

	sessions, err := h.repo.ListSessions(r.Context(), limit)
	if err != nil {
		slog.Error("Failed to list transcripts", "error", err)
		Error(w, http.StatusInternalServerError, "failed to list transcripts")
		return
	}
	if sessions == nil {
		sessions = []domain.TranscriptSession{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{"sessions": sessions})
}

// Get returns one session and its messages in history order.
func (h *TranscriptHandler) Get(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	sess, err := h.repo.GetSession(r.Context(), sessionID)
	if errors.Is(err, store.ErrSessionNotFound) {
		Error(w, http.StatusNotFound, "transcript not found")
		return
	}
	if err != nil {
		slog.Error("Failed to load transcript", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}

	entries, err := h.repo.ListMessages(r.Context(), sessionID)
	if err != nil {
		slog.Error("Failed to load transcript messages", "session_id", sessionID, "error", err)
		Error(w, http.StatusInternalServerError, "failed to load transcript")
		return
	}
	if entries == nil {
		entries = []domain.TranscriptEntry{}
	}
	JSON(w, http.StatusOK, map[string]interface{}{
		"session":  sess,
		"messages": entries,
	})
}
