package mocks

import (
	"context"
	"sync"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

var _ driven.CredentialStore = (*MockCredentialStore)(nil)

// MockCredentialStore is an in-memory CredentialStore for testing
type MockCredentialStore struct {
	mu      sync.RWMutex
	secrets map[string]string

	SaveErr   error
	GetErr    error
	DeleteErr error
}

// NewMockCredentialStore creates a new MockCredentialStore
func NewMockCredentialStore() *MockCredentialStore {
	return &MockCredentialStore{secrets: make(map[string]string)}
}

func credentialKey(provider domain.ProviderType, configID string) string {
	return string(provider) + "/" + configID
}

func (m *MockCredentialStore) Save(ctx context.Context, secret string, provider domain.ProviderType, configID string) error {
	if m.SaveErr != nil {
		return m.SaveErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.secrets[credentialKey(provider, configID)] = secret
	return nil
}

func (m *MockCredentialStore) Get(ctx context.Context, provider domain.ProviderType, configID string) (string, error) {
	if m.GetErr != nil {
		return "", m.GetErr
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.secrets[credentialKey(provider, configID)], nil
}

func (m *MockCredentialStore) Delete(ctx context.Context, provider domain.ProviderType, configID string) error {
	if m.DeleteErr != nil {
		return m.DeleteErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.secrets, credentialKey(provider, configID))
	return nil
}

// Has reports whether a secret is stored
func (m *MockCredentialStore) Has(provider domain.ProviderType, configID string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	_, ok := m.secrets[credentialKey(provider, configID)]
	return ok
}

// Len returns the number of stored secrets
func (m *MockCredentialStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.secrets)
}
