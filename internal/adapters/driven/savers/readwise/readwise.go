// Package readwise implements the Readwise Reader adapter. Tokens are only
// accepted after a verification call succeeds.
package readwise

import (
	"context"
	"fmt"
	"net/http"

	"github.com/custodia-labs/readlater/internal/adapters/driven/savers"
	"github.com/custodia-labs/readlater/internal/adapters/driven/savers/apiclient"
	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

const (
	// DefaultBaseURL is Readwise's public host.
	DefaultBaseURL = "https://readwise.io"

	// DefaultCategory is the document category saves are filed under.
	DefaultCategory = "article"
)

// Ensure interfaces are implemented.
var (
	_ driven.SaverBuilder  = (*Builder)(nil)
	_ driven.TokenVerifier = (*Builder)(nil)
	_ driven.Saver         = (*Saver)(nil)
)

// Builder creates Readwise adapters and verifies tokens.
type Builder struct {
	client *apiclient.Client
}

// NewBuilder creates a Readwise builder.
func NewBuilder(opts savers.Options) *Builder {
	return &Builder{client: opts.NewClient(domain.ProviderTypeReadwise, DefaultBaseURL)}
}

// Type returns the provider type.
func (b *Builder) Type() domain.ProviderType {
	return domain.ProviderTypeReadwise
}

// Build creates an adapter for cfg.
func (b *Builder) Build(cfg *domain.ServiceConfig, creds driven.CredentialStore) (driven.Saver, error) {
	category := cfg.Settings.Category
	if category == "" {
		category = DefaultCategory
	}
	return &Saver{
		Credential: savers.NewCredential(domain.ProviderTypeReadwise, cfg.ID, creds),
		client:     b.client,
		category:   category,
		tags:       cfg.Settings.Tags,
	}, nil
}

// VerifyToken accepts token only when Readwise answers 204.
func (b *Builder) VerifyToken(ctx context.Context, token string) error {
	return verify(ctx, b.client, token)
}

// Saver saves documents to one Readwise Reader account.
type Saver struct {
	*savers.Credential
	client   *apiclient.Client
	category string
	tags     []string
}

// IsAuthenticated reports whether a token is loaded.
func (s *Saver) IsAuthenticated() bool {
	return s.Secret() != ""
}

// Authenticate re-runs the verification call with the stored token.
func (s *Saver) Authenticate(ctx context.Context) error {
	token := s.Secret()
	if token == "" {
		return fmt.Errorf("%w: readwise needs an access token", domain.ErrSetupRequired)
	}
	if err := verify(ctx, s.client, token); err != nil {
		return err
	}
	return s.Persist(ctx, token)
}

type saveRequest struct {
	URL      string   `json:"url"`
	Title    string   `json:"title,omitempty"`
	Category string   `json:"category"`
	Tags     []string `json:"tags,omitempty"`
}

type saveResponse struct {
	ID  apiclient.FlexString `json:"id"`
	URL string               `json:"url"`
}

// Save creates a document for url.
func (s *Saver) Save(ctx context.Context, rawURL, title string) (*domain.SaveReceipt, error) {
	token := s.Secret()
	if token == "" {
		return nil, savers.NotAuthenticated(domain.ProviderTypeReadwise)
	}

	req, err := s.client.NewJSONRequest(ctx, http.MethodPost, "/api/v3/save/", saveRequest{
		URL:      rawURL,
		Title:    title,
		Category: s.category,
		Tags:     s.tags,
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", "Token "+token)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, s.client.StatusError(resp)
	}

	var out saveResponse
	if err := s.client.DecodeJSON(resp, &out); err != nil {
		return nil, err
	}
	return &domain.SaveReceipt{ItemID: string(out.ID), URL: out.URL}, nil
}

func verify(ctx context.Context, client *apiclient.Client, token string) error {
	if token == "" {
		return fmt.Errorf("%w: token is required", domain.ErrInvalidInput)
	}

	req, err := client.NewRequest(ctx, http.MethodGet, "/api/v2/auth/", nil)
	if err != nil {
		return err
	}
	req.Header.Set("Authorization", "Token "+token)

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	switch {
	case resp.StatusCode == http.StatusNoContent:
		return nil
	case resp.OK():
		return domain.NewProviderError(domain.ProviderTypeReadwise, domain.ErrProviderRejected, resp.StatusCode, "unexpected verification status")
	default:
		return client.StatusError(resp)
	}
}
