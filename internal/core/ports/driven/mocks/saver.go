package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

var (
	_ driven.Saver        = (*MockSaver)(nil)
	_ driven.SaverFactory = (*MockSaverFactory)(nil)
)

// MockSaver is a mock implementation of Saver for testing
type MockSaver struct {
	ProviderType domain.ProviderType
	ID           string

	IsAuthenticatedFn func() bool
	AuthenticateFn    func(ctx context.Context) error
	SaveFn            func(ctx context.Context, url, title string) (*domain.SaveReceipt, error)
	LoadCredentialFn  func(ctx context.Context) error

	mu        sync.Mutex
	SaveCalls int
}

func NewMockSaver(provider domain.ProviderType, configID string) *MockSaver {
	return &MockSaver{ProviderType: provider, ID: configID}
}

func (m *MockSaver) Type() domain.ProviderType {
	return m.ProviderType
}

func (m *MockSaver) ConfigID() string {
	return m.ID
}

func (m *MockSaver) IsAuthenticated() bool {
	if m.IsAuthenticatedFn != nil {
		return m.IsAuthenticatedFn()
	}
	return true
}

func (m *MockSaver) Authenticate(ctx context.Context) error {
	if m.AuthenticateFn != nil {
		return m.AuthenticateFn(ctx)
	}
	return nil
}

func (m *MockSaver) Save(ctx context.Context, url, title string) (*domain.SaveReceipt, error) {
	m.mu.Lock()
	m.SaveCalls++
	m.mu.Unlock()
	if m.SaveFn != nil {
		return m.SaveFn(ctx, url, title)
	}
	return &domain.SaveReceipt{ItemID: "item-1"}, nil
}

func (m *MockSaver) LoadCredential(ctx context.Context) error {
	if m.LoadCredentialFn != nil {
		return m.LoadCredentialFn(ctx)
	}
	return nil
}

// Calls returns the number of Save invocations
func (m *MockSaver) Calls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.SaveCalls
}

// MockSaverFactory hands out MockSavers, one per configuration id
type MockSaverFactory struct {
	mu     sync.Mutex
	savers map[string]*MockSaver

	CreateFn func(cfg *domain.ServiceConfig, creds driven.CredentialStore) (driven.Saver, error)

	// Configure is applied to every newly created saver
	Configure func(s *MockSaver)
}

func NewMockSaverFactory() *MockSaverFactory {
	return &MockSaverFactory{savers: make(map[string]*MockSaver)}
}

func (m *MockSaverFactory) Create(cfg *domain.ServiceConfig, creds driven.CredentialStore) (driven.Saver, error) {
	if m.CreateFn != nil {
		return m.CreateFn(cfg, creds)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	s := NewMockSaver(cfg.ProviderType, cfg.ID)
	if m.Configure != nil {
		m.Configure(s)
	}
	m.savers[cfg.ID] = s
	return s, nil
}

func (m *MockSaverFactory) SupportedTypes() []domain.ProviderType {
	return domain.AllProviders()
}

// Saver returns the saver built for configID
func (m *MockSaverFactory) Saver(configID string) *MockSaver {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.savers[configID]
}
