// Package raindrop implements the Raindrop.io adapter: an OAuth2
// authorization-code flow, with one silent refresh and replay when a save
// is rejected as unauthorized.
package raindrop

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"sync"
	"time"

	"golang.org/x/oauth2"

	"github.com/custodia-labs/readlater/internal/adapters/driven/savers"
	"github.com/custodia-labs/readlater/internal/adapters/driven/savers/apiclient"
	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

const (
	// DefaultAPIBaseURL serves the REST API.
	DefaultAPIBaseURL = "https://api.raindrop.io"

	// DefaultAuthBaseURL serves the OAuth2 endpoints.
	DefaultAuthBaseURL = "https://raindrop.io"
)

// Ensure interfaces are implemented.
var (
	_ driven.SaverBuilder = (*Builder)(nil)
	_ driven.OAuth2Flow   = (*Builder)(nil)
	_ driven.Saver        = (*Saver)(nil)
)

// Builder creates Raindrop adapters and drives the OAuth2 flow.
type Builder struct {
	client     *apiclient.Client
	authBase   string
	httpClient *http.Client
}

// NewBuilder creates a Raindrop builder. A BaseURL in opts replaces both the
// API and the OAuth2 host.
func NewBuilder(opts savers.Options) *Builder {
	authBase := DefaultAuthBaseURL
	if opts.BaseURL != "" {
		authBase = opts.BaseURL
	}

	httpClient := opts.HTTPClient
	if httpClient == nil {
		timeout := opts.Timeout
		if timeout <= 0 {
			timeout = apiclient.DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	return &Builder{
		client:     opts.NewClient(domain.ProviderTypeRaindrop, DefaultAPIBaseURL),
		authBase:   strings.TrimSuffix(authBase, "/"),
		httpClient: httpClient,
	}
}

// Type returns the provider type.
func (b *Builder) Type() domain.ProviderType {
	return domain.ProviderTypeRaindrop
}

// Build creates an adapter for cfg.
func (b *Builder) Build(cfg *domain.ServiceConfig, creds driven.CredentialStore) (driven.Saver, error) {
	return &Saver{
		Credential: savers.NewCredential(domain.ProviderTypeRaindrop, cfg.ID, creds),
		builder:    b,
		clientID:   cfg.Settings.ClientID,
		collection: cfg.Settings.CollectionID,
		tags:       cfg.Settings.Tags,
	}, nil
}

func (b *Builder) oauthConfig(clientID, clientSecret, redirectURI string) *oauth2.Config {
	return &oauth2.Config{
		ClientID:     clientID,
		ClientSecret: clientSecret,
		RedirectURL:  redirectURI,
		Endpoint: oauth2.Endpoint{
			AuthURL:   b.authBase + "/oauth/authorize",
			TokenURL:  b.authBase + "/oauth/access_token",
			AuthStyle: oauth2.AuthStyleInParams,
		},
	}
}

func (b *Builder) oauthContext(ctx context.Context) context.Context {
	return context.WithValue(ctx, oauth2.HTTPClient, b.httpClient)
}

// AuthCodeURL builds the authorization URL.
func (b *Builder) AuthCodeURL(clientID, redirectURI, state string) string {
	return b.oauthConfig(clientID, "", redirectURI).AuthCodeURL(state)
}

// Exchange trades code for tokens and returns the encoded credential.
func (b *Builder) Exchange(ctx context.Context, clientID, clientSecret, redirectURI, code string) (string, error) {
	cfg := b.oauthConfig(clientID, clientSecret, redirectURI)
	tok, err := cfg.Exchange(b.oauthContext(ctx), code)
	if err != nil {
		return "", tokenError(err)
	}
	return encodeToken(tok, clientSecret)
}

// refresh obtains a new access token with the stored refresh token.
func (b *Builder) refresh(ctx context.Context, clientID string, cred *domain.OAuth2Credential) (string, error) {
	if cred.RefreshToken == "" {
		return "", domain.NewProviderError(domain.ProviderTypeRaindrop, domain.ErrCredentialInvalid, 0, "no refresh token")
	}
	cfg := b.oauthConfig(clientID, cred.ClientSecret, "")
	src := cfg.TokenSource(b.oauthContext(ctx), &oauth2.Token{
		RefreshToken: cred.RefreshToken,
		Expiry:       time.Unix(1, 0),
	})
	tok, err := src.Token()
	if err != nil {
		return "", tokenError(err)
	}
	return encodeToken(tok, cred.ClientSecret)
}

func encodeToken(tok *oauth2.Token, clientSecret string) (string, error) {
	if tok.AccessToken == "" {
		return "", domain.NewProviderError(domain.ProviderTypeRaindrop, domain.ErrMalformedResponse, 0, "missing access token")
	}
	cred := &domain.OAuth2Credential{
		AccessToken:  tok.AccessToken,
		RefreshToken: tok.RefreshToken,
		TokenType:    tok.TokenType,
		Expiry:       tok.Expiry,
		ClientSecret: clientSecret,
	}
	return cred.Encode()
}

// tokenError maps oauth2 failures. Rejected grants mean the user must reconnect.
func tokenError(err error) error {
	var re *oauth2.RetrieveError
	if errors.As(err, &re) && re.Response != nil {
		status := re.Response.StatusCode
		msg := re.ErrorCode
		if msg == "" {
			msg = apiclient.Snippet(re.Body)
		}
		switch {
		case status == http.StatusBadRequest || status == http.StatusUnauthorized:
			return domain.NewProviderError(domain.ProviderTypeRaindrop, domain.ErrCredentialInvalid, status, msg)
		case status == http.StatusTooManyRequests:
			return domain.NewProviderError(domain.ProviderTypeRaindrop, domain.ErrRateLimited, status, msg)
		case status >= 500:
			return domain.NewProviderError(domain.ProviderTypeRaindrop, domain.ErrProviderUnavailable, status, msg)
		default:
			return domain.NewProviderError(domain.ProviderTypeRaindrop, domain.ErrProviderRejected, status, msg)
		}
	}
	return domain.NewProviderError(domain.ProviderTypeRaindrop, domain.ErrProviderUnavailable, 0, err.Error())
}

// Saver saves bookmarks to one Raindrop.io account.
type Saver struct {
	*savers.Credential
	builder    *Builder
	clientID   string
	collection *int64
	tags       []string

	// refreshMu serializes refreshes so concurrent 401s spend one refresh token.
	refreshMu sync.Mutex
}

func (s *Saver) credential() (*domain.OAuth2Credential, bool) {
	secret := s.Secret()
	if secret == "" {
		return nil, false
	}
	cred, err := domain.DecodeOAuth2Credential(secret)
	if err != nil || cred.AccessToken == "" {
		return nil, false
	}
	return cred, true
}

// IsAuthenticated reports whether an access token is loaded.
func (s *Saver) IsAuthenticated() bool {
	_, ok := s.credential()
	return ok
}

// Authenticate refreshes the access token with the stored refresh token.
func (s *Saver) Authenticate(ctx context.Context) error {
	cred, ok := s.credential()
	if !ok || cred.RefreshToken == "" {
		return fmt.Errorf("%w: raindrop must be connected through OAuth", domain.ErrSetupRequired)
	}
	_, err := s.refreshAndStore(ctx, cred.AccessToken)
	return err
}

// refreshAndStore refreshes unless another caller already replaced staleToken.
// The new credential is written to the store before it is used.
func (s *Saver) refreshAndStore(ctx context.Context, staleToken string) (*domain.OAuth2Credential, error) {
	s.refreshMu.Lock()
	defer s.refreshMu.Unlock()

	cred, ok := s.credential()
	if !ok {
		return nil, savers.NotAuthenticated(domain.ProviderTypeRaindrop)
	}
	if cred.AccessToken != staleToken {
		return cred, nil
	}

	secret, err := s.builder.refresh(ctx, s.clientID, cred)
	if err != nil {
		return nil, err
	}
	if err := s.Persist(ctx, secret); err != nil {
		return nil, err
	}
	fresh, _ := s.credential()
	return fresh, nil
}

type collectionRef struct {
	ID int64 `json:"$id"`
}

type raindropRequest struct {
	Link        string         `json:"link"`
	Title       string         `json:"title,omitempty"`
	Collection  *collectionRef `json:"collection,omitempty"`
	Tags        []string       `json:"tags,omitempty"`
	PleaseParse struct{}       `json:"pleaseParse"`
}

type raindropResponse struct {
	Result       bool   `json:"result"`
	ErrorMessage string `json:"errorMessage"`
	Item         struct {
		ID   apiclient.FlexString `json:"_id"`
		Link string               `json:"link"`
	} `json:"item"`
}

// Save creates a raindrop. A 401 triggers exactly one refresh and one replay.
func (s *Saver) Save(ctx context.Context, rawURL, title string) (*domain.SaveReceipt, error) {
	cred, ok := s.credential()
	if !ok {
		return nil, savers.NotAuthenticated(domain.ProviderTypeRaindrop)
	}

	body := raindropRequest{Link: rawURL, Title: title, Tags: s.tags}
	if s.collection != nil {
		body.Collection = &collectionRef{ID: *s.collection}
	}

	resp, err := s.post(ctx, cred.AccessToken, body)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode == http.StatusUnauthorized {
		fresh, err := s.refreshAndStore(ctx, cred.AccessToken)
		if err != nil {
			return nil, err
		}
		resp, err = s.post(ctx, fresh.AccessToken, body)
		if err != nil {
			return nil, err
		}
	}

	client := s.builder.client
	if !resp.OK() {
		return nil, client.StatusError(resp)
	}

	var out raindropResponse
	if err := client.DecodeJSON(resp, &out); err != nil {
		return nil, err
	}
	if !out.Result {
		return nil, domain.NewProviderError(domain.ProviderTypeRaindrop, domain.ErrProviderRejected, resp.StatusCode, out.ErrorMessage)
	}
	return &domain.SaveReceipt{ItemID: string(out.Item.ID), URL: out.Item.Link}, nil
}

func (s *Saver) post(ctx context.Context, accessToken string, body raindropRequest) (*apiclient.Response, error) {
	client := s.builder.client
	req, err := client.NewJSONRequest(ctx, http.MethodPost, "/rest/v1/raindrop", body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)
	return client.Do(req)
}
