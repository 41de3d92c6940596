// Package sessions threads multi-turn "response" conversations.
package sessions

import (
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"relayd/pkg/types"
)

// DefaultCapacity bounds the number of live sessions.
const DefaultCapacity = 64

// IDPrefix starts every session id.
const IDPrefix = "resp_"

type session struct {
	modelID   string
	history   []types.Message
	updatedAt time.Time
	// seq breaks updatedAt ties in LRU order.
	seq uint64
}

// Store keeps response sessions in memory, evicting the least recently
// updated session once capacity is exceeded.
type Store struct {
	mu       sync.Mutex
	capacity int
	sessions map[string]*session
	seq      uint64
	now      func() time.Time
}

// New returns a Store holding at most capacity sessions (DefaultCapacity if <= 0).
func New(capacity int) *Store {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Store{
		capacity: capacity,
		sessions: make(map[string]*session),
		now:      time.Now,
	}
}

// NewID returns a fresh session id.
func NewID() string { return IDPrefix + ulid.Make().String() }

// Context returns the id to persist under and the history to send. A known
// prevID bound to modelID continues that session; anything else starts a new
// one. Nothing is stored until Persist.
func (s *Store) Context(prevID, modelID string, msg types.Message) (string, []types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if sess, ok := s.sessions[prevID]; ok && prevID != "" && sess.modelID == modelID {
		out := make([]types.Message, 0, len(sess.history)+1)
		out = append(out, sess.history...)
		return prevID, append(out, msg)
	}
	return NewID(), []types.Message{msg}
}

// Persist appends the user/assistant exchange to session id, creating it if needed.
func (s *Store) Persist(id, modelID string, user, assistant types.Message) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok || sess.modelID != modelID {
		sess = &session{modelID: modelID}
		s.sessions[id] = sess
	}
	sess.history = append(sess.history, user, assistant)
	s.seq++
	sess.seq = s.seq
	sess.updatedAt = s.now()
	s.trimLocked()
}

func (s *Store) trimLocked() {
	for len(s.sessions) > s.capacity {
		var oldestID string
		var oldest *session
		for id, sess := range s.sessions {
			if oldest == nil || older(sess, oldest) {
				oldestID, oldest = id, sess
			}
		}
		delete(s.sessions, oldestID)
	}
}

func older(a, b *session) bool {
	if !a.updatedAt.Equal(b.updatedAt) {
		return a.updatedAt.Before(b.updatedAt)
	}
	return a.seq < b.seq
}

// Len returns the number of live sessions.
func (s *Store) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sessions)
}

// History returns a copy of session id's messages.
func (s *Store) History(id string) ([]types.Message, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[id]
	if !ok {
		return nil, false
	}
	return append([]types.Message(nil), sess.history...), true
}
