package agent

import (
	"fmt"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/koopa0/docent/internal/session"
)

// Validation limits for incoming requests.
const (
	MinSessionIDLen = 3
	MaxSessionIDLen = 100
	MaxMessageLen   = 5000
)

// Request is one question against a session.
type Request struct {
	SessionID string `json:"sessionId"`
	Message   string `json:"message"`

	// History is an optional caller-supplied override. The agent's own
	// store is canonical: the override only seeds a session the store
	// does not know yet and is ignored otherwise.
	History []session.Message `json:"history,omitempty"`
}

// validate rejects malformed requests before any side effect.
func (r Request) validate() error {
	if n := utf8.RuneCountInString(r.SessionID); n < MinSessionIDLen || n > MaxSessionIDLen {
		return fmt.Errorf("%w: length must be %d-%d characters, got %d",
			ErrInvalidSessionID, MinSessionIDLen, MaxSessionIDLen, n)
	}
	if strings.TrimSpace(r.Message) == "" {
		return ErrEmptyMessage
	}
	if n := utf8.RuneCountInString(r.Message); n > MaxMessageLen {
		return fmt.Errorf("%w: %d characters exceeds the %d limit",
			ErrMessageTooLong, n, MaxMessageLen)
	}
	for i, m := range r.History {
		if m.Role != session.RoleUser && m.Role != session.RoleModel {
			return fmt.Errorf("%w: message %d has unknown role %q", ErrInvalidHistory, i, m.Role)
		}
		if utf8.RuneCountInString(m.Content) > MaxMessageLen {
			return fmt.Errorf("%w: message %d exceeds the %d character limit",
				ErrInvalidHistory, i, MaxMessageLen)
		}
	}
	return nil
}

// Response is the outcome of one completed turn.
type Response struct {
	SessionID string `json:"sessionId"`
	Answer    string `json:"response"`

	// Sources lists the retrieved passages that grounded the answer.
	// Empty when the turn used no evidence.
	Sources []session.Source `json:"sources"`

	// Retrieved is true only when at least one passage cleared the
	// similarity threshold and was supplied to the generator.
	Retrieved bool `json:"retrieved"`

	// Degraded is true when retrieval failed and the answer was
	// produced from conversation memory alone.
	Degraded bool `json:"degraded"`

	Timestamp time.Time `json:"timestamp"`
}
