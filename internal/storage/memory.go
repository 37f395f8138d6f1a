package storage

import (
	"context"
	"sort"
	"sync"
)

// MemoryStore keeps participant history in process memory.
type MemoryStore struct {
	mu      sync.RWMutex
	players map[string][]Record
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{players: make(map[string][]Record)}
}

func (m *MemoryStore) Append(_ context.Context, nickname string, rec Record) error {
	if err := rec.Validate(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.players[nickname] = append(m.players[nickname], rec)
	return nil
}

// ReadAll returns a copy; callers may modify it freely.
func (m *MemoryStore) ReadAll(_ context.Context, nickname string) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rs := m.players[nickname]
	out := make([]Record, len(rs))
	copy(out, rs)
	return out, nil
}

func (m *MemoryStore) Nicknames(_ context.Context) ([]string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]string, 0, len(m.players))
	for n := range m.players {
		out = append(out, n)
	}
	sort.Strings(out)
	return out, nil
}

func (m *MemoryStore) Close() error { return nil }
