package driven

import (
	"context"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// Saver is the capability every read-later provider adapter exposes.
type Saver interface {
	// Type returns the provider this adapter talks to
	Type() domain.ProviderType

	// ConfigID returns the configuration the adapter was built for
	ConfigID() string

	// IsAuthenticated reports whether a usable credential is loaded. No I/O.
	IsAuthenticated() bool

	// Authenticate runs the provider's default handshake.
	// Returns domain.ErrSetupRequired when the provider needs its setup flow first.
	Authenticate(ctx context.Context) error

	// Save issues one authenticated save call. title may be empty.
	Save(ctx context.Context, url, title string) (*domain.SaveReceipt, error)

	// LoadCredential reads the secret from the credential store into memory
	LoadCredential(ctx context.Context) error
}

// SaverBuilder constructs an adapter for one configuration.
type SaverBuilder interface {
	// Type returns the provider type this builder creates
	Type() domain.ProviderType

	// Build creates an adapter bound to cfg; the credential is not loaded yet
	Build(cfg *domain.ServiceConfig, creds CredentialStore) (Saver, error)
}

// SaverFactory resolves builders by provider type.
type SaverFactory interface {
	// Create builds an adapter for the configuration's provider
	Create(cfg *domain.ServiceConfig, creds CredentialStore) (Saver, error)

	// SupportedTypes returns registered provider types
	SupportedTypes() []domain.ProviderType
}

// RequestTokenFlow is the setup flow for request-token providers (Pocket).
type RequestTokenFlow interface {
	// RequestCode obtains a short-lived request code for the consumer key
	RequestCode(ctx context.Context, consumerKey, redirectURI string) (string, error)

	// AuthorizeURL is where the user approves the request code
	AuthorizeURL(code, redirectURI string) string

	// ExchangeCode trades an approved request code for an access token
	ExchangeCode(ctx context.Context, consumerKey, code string) (accessToken, username string, err error)
}

// PasswordExchange is the setup flow for username/password providers (Instapaper).
type PasswordExchange interface {
	// Login verifies the credentials and returns the secret to store
	Login(ctx context.Context, username, password string) (string, error)
}

// TokenVerifier is the setup flow for verified-token providers (Readwise).
type TokenVerifier interface {
	// VerifyToken accepts the token only if the provider confirms it
	VerifyToken(ctx context.Context, token string) error
}

// OAuth2Flow is the setup flow for OAuth2 providers (Raindrop).
type OAuth2Flow interface {
	// AuthCodeURL builds the authorization URL for the user
	AuthCodeURL(clientID, redirectURI, state string) string

	// Exchange trades the authorization code for the secret to store
	Exchange(ctx context.Context, clientID, clientSecret, redirectURI, code string) (string, error)
}
