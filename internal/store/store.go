package store

import (
	"context"
	"sync"
	"time"
)

// Store is the command ledger: which command ids have already been handed
// to a handler, and the last state the gateway reported for each.
type Store interface {
	IsProcessed(ctx context.Context, commandID string) (bool, error)
	MarkProcessed(ctx context.Context, commandID string, ttl time.Duration) error
	SetCommandState(ctx context.Context, commandID, state string, ttl time.Duration) error
	CommandState(ctx context.Context, commandID string) (string, error)
}

type stateEntry struct {
	state    string
	expireAt time.Time
}

// sweepEvery bounds how many writes may pass between expiry sweeps.
const sweepEvery = 256

type MemoryStore struct {
	mu        sync.RWMutex
	processed map[string]time.Time
	states    map[string]stateEntry
	writes    int
	now       func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		processed: make(map[string]time.Time),
		states:    make(map[string]stateEntry),
		now:       time.Now,
	}
}

func (m *MemoryStore) IsProcessed(_ context.Context, commandID string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	expireAt, ok := m.processed[commandID]
	if !ok {
		return false, nil
	}
	return m.now().Before(expireAt), nil
}

func (m *MemoryStore) MarkProcessed(_ context.Context, commandID string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.processed[commandID] = m.now().Add(ttl)
	m.wrote()
	return nil
}

func (m *MemoryStore) SetCommandState(_ context.Context, commandID, state string, ttl time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[commandID] = stateEntry{state: state, expireAt: m.now().Add(ttl)}
	m.wrote()
	return nil
}

func (m *MemoryStore) CommandState(_ context.Context, commandID string) (string, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	entry, ok := m.states[commandID]
	if !ok || !m.now().Before(entry.expireAt) {
		return "", nil
	}
	return entry.state, nil
}

// wrote runs with mu held.
func (m *MemoryStore) wrote() {
	m.writes++
	if m.writes < sweepEvery {
		return
	}
	m.writes = 0
	now := m.now()
	for id, expireAt := range m.processed {
		if !now.Before(expireAt) {
			delete(m.processed, id)
		}
	}
	for id, entry := range m.states {
		if !now.Before(entry.expireAt) {
			delete(m.states, id)
		}
	}
}

func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.processed) + len(m.states)
}
