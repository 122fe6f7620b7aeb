package lockout

import (
	"context"
	"sync"
)

// MemoryTracker keeps State in a map. State is lost on restart, which is
// fine for tests and single-process development.
type MemoryTracker struct {
	mu     sync.Mutex
	states map[string]State
}

var _ Tracker = (*MemoryTracker)(nil)

func NewMemoryTracker() *MemoryTracker {
	return &MemoryTracker{states: make(map[string]State)}
}

func (m *MemoryTracker) Get(_ context.Context, key string) (State, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.states[key], nil
}

func (m *MemoryTracker) Record(_ context.Context, key string, s State) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.states[key] = s
	return nil
}

func (m *MemoryTracker) Clear(_ context.Context, key string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.states, key)
	return nil
}
