package driven

import (
	"context"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// ServiceConfigStore persists read-later service configurations.
// It does not enforce the single-primary invariant.
type ServiceConfigStore interface {
	// List returns every configuration ordered by creation time
	List(ctx context.Context) ([]*domain.ServiceConfig, error)

	// Get retrieves a configuration by ID (nil, nil if absent)
	Get(ctx context.Context, id string) (*domain.ServiceConfig, error)

	// Insert stores a new configuration
	Insert(ctx context.Context, cfg *domain.ServiceConfig) error

	// Save updates an existing configuration
	Save(ctx context.Context, cfg *domain.ServiceConfig) error

	// Delete removes a configuration
	Delete(ctx context.Context, id string) error
}
