package chat

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
)

// MemorySessionStore keeps transcripts in process memory.
type MemorySessionStore struct {
	mu       sync.RWMutex
	sessions map[string]*Session
	messages map[string][]Message
}

func NewMemorySessionStore() *MemorySessionStore {
	return &MemorySessionStore{
		sessions: make(map[string]*Session),
		messages: make(map[string][]Message),
	}
}

func (s *MemorySessionStore) Append(_ context.Context, sessionID, role, content string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := time.Now()
	session, ok := s.sessions[sessionID]
	if !ok {
		session = &Session{ID: sessionID, CreatedAt: now}
		s.sessions[sessionID] = session
	}
	session.LastMessageAt = now

	s.messages[sessionID] = append(s.messages[sessionID], Message{
		ID:        uuid.New(),
		SessionID: sessionID,
		Role:      role,
		Content:   content,
		CreatedAt: now,
	})
	return nil
}

func (s *MemorySessionStore) Recent(_ context.Context, sessionID string, n int) ([]Message, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[sessionID]
	if n <= 0 || len(all) == 0 {
		return nil, nil
	}
	if n > len(all) {
		n = len(all)
	}

	recent := make([]Message, n)
	copy(recent, all[len(all)-n:])
	return recent, nil
}

// Messages returns the full transcript of a session, oldest first.
func (s *MemorySessionStore) Messages(sessionID string) []Message {
	s.mu.RLock()
	defer s.mu.RUnlock()

	all := s.messages[sessionID]
	out := make([]Message, len(all))
	copy(out, all)
	return out
}

var _ SessionStore = (*MemorySessionStore)(nil)
