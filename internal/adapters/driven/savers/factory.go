// Package savers holds the registry of read-later provider adapters and the
// pieces they share. Each provider lives in its own subpackage.
package savers

import (
	"fmt"
	"sort"
	"sync"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Ensure Factory implements the interface.
var _ driven.SaverFactory = (*Factory)(nil)

// Factory creates provider adapters from configurations.
// It maintains a registry of SaverBuilders keyed by provider type.
type Factory struct {
	mu       sync.RWMutex
	builders map[domain.ProviderType]driven.SaverBuilder
}

// NewFactory creates a factory with the given builders registered.
func NewFactory(builders ...driven.SaverBuilder) *Factory {
	f := &Factory{
		builders: make(map[domain.ProviderType]driven.SaverBuilder),
	}
	for _, b := range builders {
		f.Register(b)
	}
	return f
}

// Register registers a builder for its provider type, replacing any previous one.
func (f *Factory) Register(builder driven.SaverBuilder) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.builders[builder.Type()] = builder
}

// Create builds an adapter for cfg. The credential is not loaded.
func (f *Factory) Create(cfg *domain.ServiceConfig, creds driven.CredentialStore) (driven.Saver, error) {
	builder, err := f.GetBuilder(cfg.ProviderType)
	if err != nil {
		return nil, err
	}

	saver, err := builder.Build(cfg, creds)
	if err != nil {
		return nil, fmt.Errorf("build %s adapter: %w", cfg.ProviderType, err)
	}
	return saver, nil
}

// SupportedTypes returns all registered provider types in a stable order.
func (f *Factory) SupportedTypes() []domain.ProviderType {
	f.mu.RLock()
	defer f.mu.RUnlock()
	types := make([]domain.ProviderType, 0, len(f.builders))
	for t := range f.builders {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool { return types[i] < types[j] })
	return types
}

// GetBuilder returns the builder for a provider type.
func (f *Factory) GetBuilder(providerType domain.ProviderType) (driven.SaverBuilder, error) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	builder, ok := f.builders[providerType]
	if !ok {
		return nil, fmt.Errorf("%w: unsupported provider %q", domain.ErrInvalidInput, providerType)
	}
	return builder, nil
}
