package driving

import (
	"context"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// ConnectService runs the provider-specific setup flows.
// Each successful flow ends in SaveService.ConfigureService.
type ConnectService interface {
	// BeginPocket obtains a request code and returns the approval URL
	BeginPocket(ctx context.Context, req BeginPocketRequest) (*AuthorizeResponse, error)

	// CompletePocket exchanges the approved request code for an access token
	CompletePocket(ctx context.Context, state string) (*ConnectResponse, error)

	// ConnectInstapaper exchanges a username and password
	ConnectInstapaper(ctx context.Context, req ConnectInstapaperRequest) (*ConnectResponse, error)

	// ConnectOmnivore stores an API key as-is
	ConnectOmnivore(ctx context.Context, req ConnectTokenRequest) (*ConnectResponse, error)

	// ConnectReadwise verifies a token before storing it
	ConnectReadwise(ctx context.Context, req ConnectTokenRequest) (*ConnectResponse, error)

	// BeginRaindrop returns the OAuth2 authorization URL
	BeginRaindrop(ctx context.Context, req BeginRaindropRequest) (*AuthorizeResponse, error)

	// CompleteRaindrop handles the OAuth2 callback
	CompleteRaindrop(ctx context.Context, req CallbackRequest) (*ConnectResponse, error)
}

// BeginPocketRequest starts the Pocket request-token flow.
// @Description Request to start connecting Pocket
type BeginPocketRequest struct {
	ConsumerKey string                 `json:"consumer_key" example:"1234-abcd1234abcd1234abcd1234"`
	RedirectURI string                 `json:"redirect_uri,omitempty"`
	Settings    domain.ServiceSettings `json:"settings"`
}

// ConnectInstapaperRequest carries Instapaper login details.
// @Description Request to connect Instapaper
type ConnectInstapaperRequest struct {
	Username string                 `json:"username" example:"reader@example.com"`
	Password string                 `json:"password"`
	Settings domain.ServiceSettings `json:"settings"`
}

// ConnectTokenRequest carries a personal key or token.
// @Description Request to connect a token-based service
type ConnectTokenRequest struct {
	Token    string                 `json:"token"`
	Settings domain.ServiceSettings `json:"settings"`
}

// BeginRaindropRequest starts the Raindrop OAuth2 flow.
// @Description Request to start connecting Raindrop.io
type BeginRaindropRequest struct {
	ClientID     string                 `json:"client_id"`
	ClientSecret string                 `json:"client_secret"`
	RedirectURI  string                 `json:"redirect_uri,omitempty"`
	Settings     domain.ServiceSettings `json:"settings"`
}

// AuthorizeResponse contains the authorization URL and state.
// @Description Response containing the provider approval URL
type AuthorizeResponse struct {
	// AuthorizationURL is the URL to redirect the user to for approval.
	AuthorizationURL string `json:"authorization_url"`

	// State identifies the pending flow.
	State string `json:"state"`

	// ExpiresAt is when the pending flow expires (typically 10 minutes).
	ExpiresAt string `json:"expires_at"`
}

// CallbackRequest represents the OAuth2 callback from the provider.
type CallbackRequest struct {
	Code             string `json:"code"`
	State            string `json:"state"`
	Error            string `json:"error,omitempty"`
	ErrorDescription string `json:"error_description,omitempty"`
}

// ConnectResponse contains the newly configured service.
// @Description Response after a service is connected
type ConnectResponse struct {
	Service *domain.ServiceSummary `json:"service"`
	Message string                 `json:"message"`
}

// ConnectError represents a setup-flow error.
type ConnectError struct {
	Code        string `json:"error" example:"invalid_state"`
	Description string `json:"error_description" example:"The state parameter is invalid or expired"`
}

func (e *ConnectError) Error() string {
	if e.Description != "" {
		return e.Code + ": " + e.Description
	}
	return e.Code
}

// Common setup-flow errors
var (
	ErrConnectInvalidState   = &ConnectError{Code: "invalid_state", Description: "The state parameter is invalid or expired"}
	ErrConnectDenied         = &ConnectError{Code: "access_denied", Description: "The provider denied access"}
	ErrConnectExchangeFailed = &ConnectError{Code: "exchange_failed", Description: "Failed to exchange the approval for a credential"}
)
