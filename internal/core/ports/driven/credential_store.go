package driven

import (
	"context"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// CredentialStore is the secure secret store keyed by (provider, config id).
// Implementations must be safe for concurrent use and must round-trip a
// secret byte-for-byte, including composite "a:b" secrets.
type CredentialStore interface {
	// Save stores or replaces the secret for a configuration
	Save(ctx context.Context, secret string, provider domain.ProviderType, configID string) error

	// Get returns the stored secret, or "", nil when none exists
	Get(ctx context.Context, provider domain.ProviderType, configID string) (string, error)

	// Delete erases the secret. Deleting a missing secret is not an error.
	Delete(ctx context.Context, provider domain.ProviderType, configID string) error
}
