package driving

import (
	"context"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// SaveService orchestrates saves across the configured read-later services.
// It is the only mutation surface for the service registry.
type SaveService interface {
	// LoadConfigurations rebuilds the registry from storage.
	// Storage failures are logged and leave an empty registry.
	LoadConfigurations(ctx context.Context)

	// Save sends a URL to the configured service of the given type.
	// Returns domain.ErrNotConfigured without any network call when absent.
	Save(ctx context.Context, req SaveRequest) (*domain.SaveResult, error)

	// SaveToPrimary sends a URL to the primary service.
	SaveToPrimary(ctx context.Context, url, title string) (*domain.SaveResult, error)

	// ConfigureService persists a new configuration and its credential.
	ConfigureService(ctx context.Context, req ConfigureServiceRequest) (*domain.ServiceSummary, error)

	// RemoveService erases the credential and configuration.
	RemoveService(ctx context.Context, id string) error

	// SetPrimary makes id the only primary configuration. Idempotent.
	SetPrimary(ctx context.Context, id string) error

	// UpdateService changes the enabled flag or settings of a configuration.
	UpdateService(ctx context.Context, id string, req UpdateServiceRequest) (*domain.ServiceSummary, error)

	// Reauthenticate runs the provider's default handshake again.
	Reauthenticate(ctx context.Context, id string) error

	// Snapshot returns the read-only registry state.
	Snapshot() *RegistrySnapshot

	// IsBusy reports whether a save is in flight.
	IsBusy() bool
}

// SaveRequest represents a request to save a URL.
// @Description Request to save a URL to a read-later service
type SaveRequest struct {
	// URL is the article to save
	URL string `json:"url" example:"https://example.com/article"`

	// Title is optional; providers that don't use it ignore it
	Title string `json:"title,omitempty" example:"An article"`

	// Provider selects the service. Empty means the primary service.
	Provider domain.ProviderType `json:"provider,omitempty" example:"pocket"`
}

// ConfigureServiceRequest represents a newly connected service.
type ConfigureServiceRequest struct {
	ProviderType domain.ProviderType    `json:"provider_type"`
	Credential   string                 `json:"-"`
	Settings     domain.ServiceSettings `json:"settings"`
}

// UpdateServiceRequest represents changes to a configuration.
// @Description Request to update a connected service
type UpdateServiceRequest struct {
	Enabled  *bool                   `json:"enabled,omitempty"`
	Settings *domain.ServiceSettings `json:"settings,omitempty"`
}

// RegistrySnapshot is the observable registry state.
type RegistrySnapshot struct {
	Services   []*domain.ServiceSummary `json:"configured_services"`
	Primary    *domain.ServiceSummary   `json:"primary_service,omitempty"`
	IsLoading  bool                     `json:"is_loading"`
	IsBusy     bool                     `json:"is_busy"`
	LastResult *domain.SaveResult       `json:"last_save_result,omitempty"`
}
