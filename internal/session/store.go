// Package session keeps bounded, in-process conversation memory.
//
// A session holds the most recent user/model exchange pairs plus a
// last-activity timestamp. The store is safe for concurrent use and is
// intentionally ephemeral: a restart clears all sessions, and the
// Sweeper evicts sessions idle past the configured timeout.
package session

import (
	"sync"
	"time"
)

// Message roles, matching the roles the generation provider expects.
const (
	RoleUser  = "user"
	RoleModel = "model"
)

// Message is one turn of a conversation. Messages are immutable once
// appended.
type Message struct {
	Role    string    `json:"role"`
	Content string    `json:"content"`
	Time    time.Time `json:"time"`

	// Sources carries the citations of a model message. Empty for user
	// messages and for answers produced without evidence.
	Sources []Source `json:"sources,omitempty"`
}

// Source identifies a retrieved passage that grounded an answer.
type Source struct {
	Name       string  `json:"name"`
	Page       int     `json:"page"`
	Excerpt    string  `json:"excerpt"`
	Similarity float64 `json:"similarity"`
}

// Session is a snapshot of one conversation's memory.
type Session struct {
	ID         string    `json:"id"`
	Messages   []Message `json:"messages"`
	CreatedAt  time.Time `json:"created_at"`
	LastActive time.Time `json:"last_active"`
}

// entry is the store's mutable record behind a Session snapshot.
type entry struct {
	messages   []Message
	created    time.Time
	lastActive time.Time
}

// Store holds all live sessions. A single RWMutex guards the map;
// per-session write contention is handled upstream by the agent's turn
// locks, so reads here vastly outnumber writes.
type Store struct {
	mu          sync.RWMutex
	sessions    map[string]*entry
	maxPairs    int
	idleTimeout time.Duration
}

// NewStore creates a session store keeping at most maxPairs exchange
// pairs per session and treating sessions idle longer than idleTimeout
// as evictable.
func NewStore(maxPairs int, idleTimeout time.Duration) *Store {
	return &Store{
		sessions:    make(map[string]*entry),
		maxPairs:    maxPairs,
		idleTimeout: idleTimeout,
	}
}

// Get returns a snapshot of one session. The snapshot's message slice
// is a copy; callers may mutate it freely.
func (s *Store) Get(id string) (Session, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return Session{}, false
	}
	return Session{
		ID:         id,
		Messages:   copyMessages(e.messages),
		CreatedAt:  e.created,
		LastActive: e.lastActive,
	}, true
}

// History returns a copy of the session's messages in chronological
// order, or nil for an unknown session.
func (s *Store) History(id string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	e, ok := s.sessions[id]
	if !ok {
		return nil
	}
	return copyMessages(e.messages)
}

// copyMessages deep-copies a message slice. Citation slices are copied
// too, so no caller can reach the store's backing arrays.
func copyMessages(msgs []Message) []Message {
	if msgs == nil {
		return nil
	}
	out := make([]Message, len(msgs))
	for i, m := range msgs {
		out[i] = m
		if m.Sources != nil {
			out[i].Sources = append([]Source(nil), m.Sources...)
		}
	}
	return out
}

// Append adds one message, creating the session if needed.
func (s *Store) Append(id string, msg Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.upsertLocked(id)
	e.messages = append(e.messages, msg)
	s.trimLocked(e)
	e.lastActive = time.Now()
}

// AppendExchange records a completed user/model turn as one atomic
// update, so a concurrent reader never observes a question without
// its answer.
func (s *Store) AppendExchange(id string, user, model Message) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e := s.upsertLocked(id)
	e.messages = append(e.messages, user, model)
	s.trimLocked(e)
	e.lastActive = time.Now()
}

// Seed installs caller-supplied history for a session that does not
// exist yet. It reports false, and changes nothing, when the session
// already has memory of its own: server-side history is canonical and
// is never overwritten by replayed client state.
func (s *Store) Seed(id string, msgs []Message) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.sessions[id]; ok {
		return false
	}
	e := s.upsertLocked(id)
	e.messages = append([]Message(nil), msgs...)
	s.trimLocked(e)
	e.lastActive = time.Now()
	return true
}

// Clear removes one session and reports whether it existed.
func (s *Store) Clear(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	_, ok := s.sessions[id]
	delete(s.sessions, id)
	return ok
}

// Count returns the number of live sessions.
func (s *Store) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// Touch bumps a session's last-activity time if it exists.
func (s *Store) Touch(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if e, ok := s.sessions[id]; ok {
		e.lastActive = time.Now()
	}
}

// EvictIdle removes every session whose last activity is older than
// the idle timeout relative to now, returning how many were removed.
func (s *Store) EvictIdle(now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	evicted := 0
	for id, e := range s.sessions {
		if now.Sub(e.lastActive) > s.idleTimeout {
			delete(s.sessions, id)
			evicted++
		}
	}
	return evicted
}

func (s *Store) upsertLocked(id string) *entry {
	e, ok := s.sessions[id]
	if !ok {
		e = &entry{created: time.Now()}
		s.sessions[id] = e
	}
	return e
}

// trimLocked drops the oldest exchanges until the session fits the
// pair budget. Trimming never splits a pair: if the window would open
// on a model message, that message goes too.
func (s *Store) trimLocked(e *entry) {
	limit := s.maxPairs * 2
	if len(e.messages) <= limit {
		return
	}
	msgs := e.messages[len(e.messages)-limit:]
	if len(msgs) > 0 && msgs[0].Role == RoleModel {
		msgs = msgs[1:]
	}
	e.messages = append([]Message(nil), msgs...)
}
