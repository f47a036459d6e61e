package store

import (
	"sync"

	"github.com/ro11032005/mediaingest/internal/upload"
)

// MemoryStore is a SessionStore implementation backed by an in-process
// map. It satisfies the same contract as SQLiteStore and exists for unit
// tests that shouldn't pay for cgo/sqlite3 setup per-case.
type MemoryStore struct {
	mu       sync.RWMutex
	sessions map[string]upload.Session
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]upload.Session)}
}

func (m *MemoryStore) Close() error { return nil }

func (m *MemoryStore) Create(s *upload.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.sessions[s.ID]; exists {
		return upload.ErrConflict
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) Get(id string) (*upload.Session, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	s, ok := m.sessions[id]
	if !ok {
		return nil, upload.ErrNotFound
	}
	cp := s
	return &cp, nil
}

func (m *MemoryStore) Update(s *upload.Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sessions[s.ID]; !ok {
		return upload.ErrNotFound
	}
	m.sessions[s.ID] = *s
	return nil
}

func (m *MemoryStore) ListByState(states ...upload.State) ([]*upload.Session, error) {
	want := make(map[upload.State]bool, len(states))
	for _, st := range states {
		want[st] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*upload.Session
	for _, s := range m.sessions {
		if want[s.State] {
			cp := s
			out = append(out, &cp)
		}
	}
	return out, nil
}
