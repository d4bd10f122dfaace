package savers

import (
	"context"
	"fmt"
	"sync"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Credential is the in-memory copy of one configuration's secret.
// Adapters embed it; reads never touch the store.
type Credential struct {
	provider domain.ProviderType
	configID string
	store    driven.CredentialStore

	mu     sync.RWMutex
	secret string
}

// NewCredential binds a cache to (provider, configID) in store.
func NewCredential(provider domain.ProviderType, configID string, store driven.CredentialStore) *Credential {
	return &Credential{
		provider: provider,
		configID: configID,
		store:    store,
	}
}

// Type returns the provider the credential belongs to.
func (c *Credential) Type() domain.ProviderType {
	return c.provider
}

// ConfigID returns the configuration the credential belongs to.
func (c *Credential) ConfigID() string {
	return c.configID
}

// Secret returns the cached secret, or "" when none is loaded.
func (c *Credential) Secret() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.secret
}

// LoadCredential replaces the cache with the stored secret.
func (c *Credential) LoadCredential(ctx context.Context) error {
	secret, err := c.store.Get(ctx, c.provider, c.configID)
	if err != nil {
		return fmt.Errorf("load %s credential: %w", c.provider, err)
	}
	c.mu.Lock()
	c.secret = secret
	c.mu.Unlock()
	return nil
}

// Persist writes secret to the store and then to the cache.
// The cache is untouched when the write fails.
func (c *Credential) Persist(ctx context.Context, secret string) error {
	if err := c.store.Save(ctx, secret, c.provider, c.configID); err != nil {
		return fmt.Errorf("store %s credential: %w", c.provider, err)
	}
	c.mu.Lock()
	c.secret = secret
	c.mu.Unlock()
	return nil
}
