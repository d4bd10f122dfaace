package mocks

import (
	"context"
	"sort"
	"sync"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

var _ driven.ServiceConfigStore = (*MockServiceConfigStore)(nil)

// MockServiceConfigStore is an in-memory ServiceConfigStore for testing
type MockServiceConfigStore struct {
	mu      sync.RWMutex
	configs map[string]*domain.ServiceConfig

	ListErr   error
	InsertErr error
	SaveErr   error
	DeleteErr error

	// SaveHook runs before every Save is applied
	SaveHook func(cfg *domain.ServiceConfig)
}

// NewMockServiceConfigStore creates a new MockServiceConfigStore
func NewMockServiceConfigStore() *MockServiceConfigStore {
	return &MockServiceConfigStore{configs: make(map[string]*domain.ServiceConfig)}
}

func (m *MockServiceConfigStore) List(ctx context.Context) ([]*domain.ServiceConfig, error) {
	if m.ListErr != nil {
		return nil, m.ListErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*domain.ServiceConfig, 0, len(m.configs))
	for _, c := range m.configs {
		cp := *c
		out = append(out, &cp)
	}
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID < out[j].ID
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out, nil
}

func (m *MockServiceConfigStore) Get(ctx context.Context, id string) (*domain.ServiceConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.configs[id]
	if !ok {
		return nil, nil
	}
	cp := *c
	return &cp, nil
}

func (m *MockServiceConfigStore) Insert(ctx context.Context, cfg *domain.ServiceConfig) error {
	if m.InsertErr != nil {
		return m.InsertErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := *cfg
	m.configs[cfg.ID] = &cp
	return nil
}

func (m *MockServiceConfigStore) Save(ctx context.Context, cfg *domain.ServiceConfig) error {
	if m.SaveHook != nil {
		m.SaveHook(cfg)
	}
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[cfg.ID]; !ok {
		return domain.ErrNotFound
	}
	cp := *cfg
	m.configs[cfg.ID] = &cp
	return nil
}

func (m *MockServiceConfigStore) Delete(ctx context.Context, id string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.configs[id]; !ok {
		return domain.ErrNotFound
	}
	delete(m.configs, id)
	return nil
}

// PrimaryIDs returns the ids of every record flagged primary
func (m *MockServiceConfigStore) PrimaryIDs() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var ids []string
	for id, c := range m.configs {
		if c.Primary {
			ids = append(ids, id)
		}
	}
	sort.Strings(ids)
	return ids
}
