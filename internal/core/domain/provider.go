package domain

// ProviderType identifies a read-later service
type ProviderType string

const (
	// Request-token flow with a caller-supplied consumer key
	ProviderTypePocket ProviderType = "pocket"

	// Username/password exchange, basic auth on every save
	ProviderTypeInstapaper ProviderType = "instapaper"

	// Static API key, GraphQL document API
	ProviderTypeOmnivore ProviderType = "omnivore"

	// Static token accepted after one verification call
	ProviderTypeReadwise ProviderType = "readwise"

	// OAuth2 authorization code with refresh
	ProviderTypeRaindrop ProviderType = "raindrop"
)

// AuthMethod defines how a provider authenticates
type AuthMethod string

const (
	AuthMethodRequestToken AuthMethod = "request_token"
	AuthMethodBasic        AuthMethod = "basic"
	AuthMethodAPIKey       AuthMethod = "api_key"
	AuthMethodToken        AuthMethod = "token"
	AuthMethodOAuth2       AuthMethod = "oauth2"
)

// ProviderInfo provides metadata about a provider
type ProviderInfo struct {
	Type        ProviderType `json:"type"`
	Name        string       `json:"name"`
	AuthMethod  AuthMethod   `json:"auth_method"`
	DocsURL     string       `json:"docs_url,omitempty"`
	NeedsSetup  bool         `json:"needs_setup"` // Generic Authenticate cannot start the handshake
	UsesTitle   bool         `json:"uses_title"`
	Description string       `json:"description"`
}

var providerInfo = map[ProviderType]ProviderInfo{
	ProviderTypePocket: {
		Type:        ProviderTypePocket,
		Name:        "Pocket",
		AuthMethod:  AuthMethodRequestToken,
		DocsURL:     "https://getpocket.com/developer/docs/authentication",
		NeedsSetup:  true,
		UsesTitle:   true,
		Description: "Consumer key plus request-token approval",
	},
	ProviderTypeInstapaper: {
		Type:        ProviderTypeInstapaper,
		Name:        "Instapaper",
		AuthMethod:  AuthMethodBasic,
		DocsURL:     "https://www.instapaper.com/api/simple",
		UsesTitle:   true,
		Description: "Username and password",
	},
	ProviderTypeOmnivore: {
		Type:        ProviderTypeOmnivore,
		Name:        "Omnivore",
		AuthMethod:  AuthMethodAPIKey,
		DocsURL:     "https://docs.omnivore.app/integrations/api.html",
		NeedsSetup:  true,
		Description: "Personal API key",
	},
	ProviderTypeReadwise: {
		Type:        ProviderTypeReadwise,
		Name:        "Readwise Reader",
		AuthMethod:  AuthMethodToken,
		DocsURL:     "https://readwise.io/reader_api",
		UsesTitle:   true,
		Description: "Access token, verified once",
	},
	ProviderTypeRaindrop: {
		Type:        ProviderTypeRaindrop,
		Name:        "Raindrop.io",
		AuthMethod:  AuthMethodOAuth2,
		DocsURL:     "https://developer.raindrop.io/v1/authentication/token",
		UsesTitle:   true,
		Description: "OAuth2 with client id and secret",
	},
}

// AllProviders returns the closed set of supported providers
func AllProviders() []ProviderType {
	return []ProviderType{
		ProviderTypePocket,
		ProviderTypeInstapaper,
		ProviderTypeOmnivore,
		ProviderTypeReadwise,
		ProviderTypeRaindrop,
	}
}

// IsValid reports whether p is one of the supported providers
func (p ProviderType) IsValid() bool {
	_, ok := providerInfo[p]
	return ok
}

// Info returns the provider metadata
func (p ProviderType) Info() ProviderInfo {
	if info, ok := providerInfo[p]; ok {
		return info
	}
	return ProviderInfo{Type: p, Name: string(p)}
}

// DisplayName returns the human readable provider name
func (p ProviderType) DisplayName() string {
	return p.Info().Name
}
