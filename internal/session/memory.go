package session

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps sessions in process memory.
type MemoryStore struct {
	ttl time.Duration
	now func() time.Time

	mu       sync.Mutex
	sessions map[int64]Session
}

// NewMemoryStore creates an in-process store; sessions idle longer than ttl are forgotten.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{ttl: ttl, now: time.Now, sessions: make(map[int64]Session)}
}

// Get implements Store.
func (m *MemoryStore) Get(_ context.Context, userID int64) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, ok := m.sessions[userID]
	if !ok {
		return &Session{}, nil
	}
	if m.now().Sub(s.UpdatedAt) > m.ttl {
		delete(m.sessions, userID)
		return &Session{}, nil
	}
	return &s, nil
}

// Save implements Store.
func (m *MemoryStore) Save(_ context.Context, userID int64, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if s.Idle() {
		delete(m.sessions, userID)
		return nil
	}
	stored := *s
	stored.UpdatedAt = m.now()
	m.sessions[userID] = stored
	return nil
}

// Clear implements Store.
func (m *MemoryStore) Clear(_ context.Context, userID int64) error {
	m.mu.Lock()
	delete(m.sessions, userID)
	m.mu.Unlock()
	return nil
}
