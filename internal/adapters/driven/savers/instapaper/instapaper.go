// Package instapaper implements the Instapaper adapter. The user's username
// and password are exchanged once and then sent as basic auth on every call.
package instapaper

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/custodia-labs/readlater/internal/adapters/driven/savers"
	"github.com/custodia-labs/readlater/internal/adapters/driven/savers/apiclient"
	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// DefaultBaseURL is Instapaper's public host.
const DefaultBaseURL = "https://www.instapaper.com"

// Ensure interfaces are implemented.
var (
	_ driven.SaverBuilder     = (*Builder)(nil)
	_ driven.PasswordExchange = (*Builder)(nil)
	_ driven.Saver            = (*Saver)(nil)
)

// Builder creates Instapaper adapters and performs the credential exchange.
type Builder struct {
	client *apiclient.Client
}

// NewBuilder creates an Instapaper builder.
func NewBuilder(opts savers.Options) *Builder {
	return &Builder{client: opts.NewClient(domain.ProviderTypeInstapaper, DefaultBaseURL)}
}

// Type returns the provider type.
func (b *Builder) Type() domain.ProviderType {
	return domain.ProviderTypeInstapaper
}

// Build creates an adapter for cfg.
func (b *Builder) Build(cfg *domain.ServiceConfig, creds driven.CredentialStore) (driven.Saver, error) {
	return &Saver{
		Credential: savers.NewCredential(domain.ProviderTypeInstapaper, cfg.ID, creds),
		client:     b.client,
	}, nil
}

// Login verifies the pair and returns it joined for storage.
func (b *Builder) Login(ctx context.Context, username, password string) (string, error) {
	if username == "" {
		return "", fmt.Errorf("%w: username is required", domain.ErrInvalidInput)
	}
	if err := authenticate(ctx, b.client, username, password); err != nil {
		return "", err
	}
	return domain.JoinSecretPair(username, password), nil
}

// Saver saves links to one Instapaper account.
type Saver struct {
	*savers.Credential
	client *apiclient.Client
}

// IsAuthenticated reports whether a username/password pair is loaded.
func (s *Saver) IsAuthenticated() bool {
	username, _, ok := domain.SplitSecretPair(s.Secret())
	return ok && username != ""
}

// Authenticate re-verifies the stored pair.
func (s *Saver) Authenticate(ctx context.Context) error {
	secret := s.Secret()
	username, password, ok := domain.SplitSecretPair(secret)
	if !ok || username == "" {
		return fmt.Errorf("%w: instapaper needs a username and password", domain.ErrSetupRequired)
	}
	if err := authenticate(ctx, s.client, username, password); err != nil {
		return err
	}
	return s.Persist(ctx, secret)
}

// Save adds url to the Instapaper account.
func (s *Saver) Save(ctx context.Context, rawURL, title string) (*domain.SaveReceipt, error) {
	username, password, ok := domain.SplitSecretPair(s.Secret())
	if !ok || username == "" {
		return nil, savers.NotAuthenticated(domain.ProviderTypeInstapaper)
	}

	form := url.Values{"url": {rawURL}}
	if title != "" {
		form.Set("title", title)
	}

	resp, err := postForm(ctx, s.client, "/api/add", username, password, form)
	if err != nil {
		return nil, err
	}
	return &domain.SaveReceipt{URL: resp.Header.Get("Content-Location")}, nil
}

func authenticate(ctx context.Context, client *apiclient.Client, username, password string) error {
	_, err := postForm(ctx, client, "/api/authenticate", username, password, url.Values{})
	return err
}

func postForm(ctx context.Context, client *apiclient.Client, path, username, password string, form url.Values) (*apiclient.Response, error) {
	req, err := client.NewRequest(ctx, http.MethodPost, path, strings.NewReader(form.Encode()))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(username, password)

	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, statusError(resp)
	}
	return resp, nil
}

// statusError classifies failures into the three cases the UI words
// differently: bad input, expired login, and everything else.
func statusError(resp *apiclient.Response) error {
	msg := apiclient.Snippet(resp.Body)
	switch resp.StatusCode {
	case http.StatusBadRequest:
		return domain.NewProviderError(domain.ProviderTypeInstapaper, domain.ErrBadRequest, resp.StatusCode, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewProviderError(domain.ProviderTypeInstapaper, domain.ErrCredentialInvalid, resp.StatusCode, msg)
	default:
		return domain.NewProviderError(domain.ProviderTypeInstapaper, domain.ErrProviderUnavailable, resp.StatusCode, msg)
	}
}
