package savers

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/custodia-labs/readlater/internal/adapters/driven/savers/apiclient"
	"github.com/custodia-labs/readlater/internal/core/domain"
)

// Options configures the transport every builder creates.
type Options struct {
	// BaseURL overrides the provider's public API host (tests, self-hosted)
	BaseURL string

	// Timeout bounds each provider request
	Timeout time.Duration

	// RatePerSecond limits outbound calls per provider. Zero disables limiting.
	RatePerSecond float64

	// HTTPClient overrides the underlying client
	HTTPClient *http.Client

	Logger *slog.Logger
}

// NewClient creates the shared transport for one provider.
func (o Options) NewClient(provider domain.ProviderType, defaultBaseURL string) *apiclient.Client {
	baseURL := o.BaseURL
	if baseURL == "" {
		baseURL = defaultBaseURL
	}
	logger := o.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return apiclient.New(apiclient.Config{
		Provider:      provider,
		BaseURL:       baseURL,
		Timeout:       o.Timeout,
		RatePerSecond: o.RatePerSecond,
		Burst:         2,
		HTTPClient:    o.HTTPClient,
		Logger:        logger,
	})
}

// NotAuthenticated is returned by Save when no usable credential is loaded.
func NotAuthenticated(provider domain.ProviderType) error {
	return domain.NewProviderError(provider, domain.ErrCredentialInvalid, 0, "no credential loaded")
}
