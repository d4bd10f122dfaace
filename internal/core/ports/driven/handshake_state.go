package driven

import (
	"context"
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// HandshakeState is a pending provider setup flow.
type HandshakeState struct {
	// State is the random key handed to the browser
	State string `json:"state"`

	// ProviderType is the provider being connected
	ProviderType domain.ProviderType `json:"provider_type"`

	// RequestCode is the Pocket request code awaiting approval
	RequestCode string `json:"request_code,omitempty"`

	// ClientSecret is held for the OAuth2 code exchange only
	ClientSecret string `json:"client_secret,omitempty"`

	// RedirectURI is the callback URL used for the flow
	RedirectURI string `json:"redirect_uri,omitempty"`

	// Settings are applied to the configuration once the flow completes
	Settings domain.ServiceSettings `json:"settings"`

	CreatedAt time.Time `json:"created_at"`
	ExpiresAt time.Time `json:"expires_at"`
}

// HandshakeStore holds pending setup flows. States are single-use.
type HandshakeStore interface {
	// Save stores a new state until ExpiresAt
	Save(ctx context.Context, state *HandshakeState) error

	// GetAndDelete atomically retrieves and deletes the state.
	// Returns nil, nil if the state doesn't exist or has expired.
	GetAndDelete(ctx context.Context, state string) (*HandshakeState, error)
}
