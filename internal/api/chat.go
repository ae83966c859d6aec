package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/koopa0/docent/internal/agent"
	"github.com/koopa0/docent/internal/session"
)

// maxChatBody caps the chat request body. Generous: the message limit
// is 5000 characters plus an optional history override.
const maxChatBody = 256 << 10

// Answerer is the slice of the agent the chat endpoint depends on.
// *agent.Agent satisfies it.
type Answerer interface {
	Answer(ctx context.Context, req agent.Request) (agent.Response, error)
}

type chatHandler struct {
	agent  Answerer
	logger *slog.Logger
}

// chatRequest is the wire shape of POST /api/v1/chat.
type chatRequest struct {
	SessionID string           `json:"sessionId"`
	Message   string           `json:"message"`
	History   []historyMessage `json:"history,omitempty"`
}

type historyMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// sourceItem is one citation as rendered to callers: enough to show a
// clickable source with a verbatim excerpt.
type sourceItem struct {
	Document string  `json:"document"`
	Page     int     `json:"page"`
	Score    float64 `json:"score"`
	Excerpt  string  `json:"excerpt"`
}

type chatResponse struct {
	SessionID string       `json:"sessionId"`
	Response  string       `json:"response"`
	Sources   []sourceItem `json:"sources"`
	Retrieved bool         `json:"retrieved"`
	Degraded  bool         `json:"degraded,omitempty"`
	Timestamp time.Time    `json:"timestamp"`
}

// answer handles POST /api/v1/chat.
func (h *chatHandler) answer(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxChatBody)

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		var maxErr *http.MaxBytesError
		if errors.As(err, &maxErr) {
			WriteError(w, http.StatusRequestEntityTooLarge, "body_too_large", "request body too large", h.logger)
			return
		}
		WriteError(w, http.StatusBadRequest, "invalid_body", "invalid request body", h.logger)
		return
	}

	resp, err := h.agent.Answer(r.Context(), agent.Request{
		SessionID: req.SessionID,
		Message:   req.Message,
		History:   toSessionMessages(req.History),
	})
	if err != nil {
		h.writeAnswerError(w, r, req.SessionID, err)
		return
	}

	WriteJSON(w, http.StatusOK, chatResponse{
		SessionID: resp.SessionID,
		Response:  resp.Answer,
		Sources:   toSourceItems(resp.Sources),
		Retrieved: resp.Retrieved,
		Degraded:  resp.Degraded,
		Timestamp: resp.Timestamp,
	}, h.logger)
}

// writeAnswerError maps the agent's sentinel errors to status codes.
func (h *chatHandler) writeAnswerError(w http.ResponseWriter, r *http.Request, sessionID string, err error) {
	switch {
	case errors.Is(err, agent.ErrInvalidSessionID),
		errors.Is(err, agent.ErrEmptyMessage),
		errors.Is(err, agent.ErrMessageTooLong),
		errors.Is(err, agent.ErrInvalidHistory):
		WriteError(w, http.StatusBadRequest, "invalid_request", err.Error(), h.logger)

	case errors.Is(err, agent.ErrSessionBusy):
		w.Header().Set("Retry-After", "1")
		WriteError(w, http.StatusTooManyRequests, "session_busy", "another request for this session is in flight", h.logger)

	case errors.Is(err, agent.ErrGeneration):
		h.logger.Error("generation failed",
			"session_id", sessionID,
			"request_id", requestIDFromContext(r.Context()),
			"error", err)
		WriteError(w, http.StatusBadGateway, "generation_failed", "no answer could be generated", h.logger)

	case errors.Is(err, context.DeadlineExceeded):
		WriteError(w, http.StatusGatewayTimeout, "timeout", "request deadline exceeded", h.logger)

	default:
		h.logger.Error("answering message",
			"session_id", sessionID,
			"request_id", requestIDFromContext(r.Context()),
			"error", err)
		WriteError(w, http.StatusInternalServerError, "internal_error", "internal server error", h.logger)
	}
}

// toSessionMessages converts a caller-supplied history override. Role
// strings pass through unchanged; the agent validates them.
func toSessionMessages(history []historyMessage) []session.Message {
	if len(history) == 0 {
		return nil
	}
	msgs := make([]session.Message, len(history))
	for i, m := range history {
		msgs[i] = session.Message{Role: m.Role, Content: m.Content}
	}
	return msgs
}

// toSourceItems renders citations. The slice is never nil so callers
// always see a JSON array.
func toSourceItems(sources []session.Source) []sourceItem {
	items := make([]sourceItem, len(sources))
	for i, s := range sources {
		items[i] = sourceItem{
			Document: s.Name,
			Page:     s.Page,
			Score:    s.Similarity,
			Excerpt:  s.Excerpt,
		}
	}
	return items
}
