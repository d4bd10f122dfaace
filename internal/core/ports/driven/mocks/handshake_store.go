package mocks

import (
	"context"
	"sync"
	"time"

	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

var _ driven.HandshakeStore = (*MockHandshakeStore)(nil)

// MockHandshakeStore is an in-memory HandshakeStore for testing
type MockHandshakeStore struct {
	mu     sync.Mutex
	states map[string]*driven.HandshakeState
}

func NewMockHandshakeStore() *MockHandshakeStore {
	return &MockHandshakeStore{states: make(map[string]*driven.HandshakeState)}
}

func (m *MockHandshakeStore) Save(ctx context.Context, state *driven.HandshakeState) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *state
	m.states[state.State] = &cp
	return nil
}

func (m *MockHandshakeStore) GetAndDelete(ctx context.Context, state string) (*driven.HandshakeState, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.states[state]
	if !ok {
		return nil, nil
	}
	delete(m.states, state)
	if !s.ExpiresAt.IsZero() && time.Now().After(s.ExpiresAt) {
		return nil, nil
	}
	return s, nil
}

// Len returns the number of pending states
func (m *MockHandshakeStore) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.states)
}
