package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

var (
	_ driven.SaveResultPublisher = (*MockPublisher)(nil)
	_ driven.PostStatePublisher  = (*MockPublisher)(nil)

	_ driven.RegistryChangePublisher = (*MockPublisher)(nil)
)

// MockPublisher records everything published to it
type MockPublisher struct {
	mu          sync.Mutex
	SaveResults []*domain.SaveResult
	PostStates  []*domain.PostSnapshot
	Err         error

	registryChanges int
}

func NewMockPublisher() *MockPublisher {
	return &MockPublisher{}
}

func (m *MockPublisher) PublishSaveResult(ctx context.Context, result *domain.SaveResult) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SaveResults = append(m.SaveResults, result)
	return m.Err
}

func (m *MockPublisher) PublishPostState(ctx context.Context, snapshot *domain.PostSnapshot) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.PostStates = append(m.PostStates, snapshot)
	return m.Err
}

// LastSaveResult returns the most recent save result, if any
func (m *MockPublisher) LastSaveResult() *domain.SaveResult {
	m.mu.Lock()
	defer m.mu.Unlock()
	if len(m.SaveResults) == 0 {
		return nil
	}
	return m.SaveResults[len(m.SaveResults)-1]
}

func (m *MockPublisher) PublishRegistryChanged(ctx context.Context) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.registryChanges++
	return m.Err
}

// RegistryChanges returns how many registry changes were announced
func (m *MockPublisher) RegistryChanges() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.registryChanges
}
