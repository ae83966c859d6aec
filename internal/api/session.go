package api

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/koopa0/docent/internal/session"
)

type sessionHandler struct {
	store  *session.Store
	logger *slog.Logger
}

type sessionMessage struct {
	Role      string       `json:"role"`
	Content   string       `json:"content"`
	Timestamp time.Time    `json:"timestamp"`
	Sources   []sourceItem `json:"sources,omitempty"`
}

type sessionSnapshot struct {
	SessionID  string           `json:"sessionId"`
	Messages   []sessionMessage `json:"messages"`
	CreatedAt  *time.Time       `json:"createdAt,omitempty"`
	LastActive *time.Time       `json:"lastActiveAt,omitempty"`
}

// history handles GET /api/v1/sessions/{id}/history. An unknown or
// evicted session is not an error: it renders as an empty message
// list, matching what conversation memory would answer with.
func (h *sessionHandler) history(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")

	snap, ok := h.store.Get(id)
	if !ok {
		WriteJSON(w, http.StatusOK, sessionSnapshot{
			SessionID: id,
			Messages:  []sessionMessage{},
		}, h.logger)
		return
	}

	msgs := make([]sessionMessage, len(snap.Messages))
	for i, m := range snap.Messages {
		msgs[i] = sessionMessage{
			Role:      m.Role,
			Content:   m.Content,
			Timestamp: m.Time,
		}
		if len(m.Sources) > 0 {
			msgs[i].Sources = toSourceItems(m.Sources)
		}
	}

	WriteJSON(w, http.StatusOK, sessionSnapshot{
		SessionID:  id,
		Messages:   msgs,
		CreatedAt:  &snap.CreatedAt,
		LastActive: &snap.LastActive,
	}, h.logger)
}

// clear handles DELETE /api/v1/sessions/{id}. Deleting an unknown
// session succeeds: the desired state is already true.
func (h *sessionHandler) clear(w http.ResponseWriter, r *http.Request) {
	id := r.PathValue("id")
	if h.store.Clear(id) {
		h.logger.Info("session cleared", "session_id", id)
	}
	w.WriteHeader(http.StatusNoContent)
}
