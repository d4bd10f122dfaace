// Package omnivore implements the Omnivore adapter: a static API key and a
// single GraphQL mutation per save.
package omnivore

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"github.com/google/uuid"

	"github.com/custodia-labs/readlater/internal/adapters/driven/savers"
	"github.com/custodia-labs/readlater/internal/adapters/driven/savers/apiclient"
	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// DefaultBaseURL is Omnivore's hosted API.
const DefaultBaseURL = "https://api-prod.omnivore.app"

// saveSource identifies this client in Omnivore's records.
const saveSource = "api"

const saveURLMutation = `mutation SaveUrl($input: SaveUrlInput!) {
  saveUrl(input: $input) {
    ... on SaveSuccess { url clientRequestId }
    ... on SaveError { errorCodes message }
  }
}`

// Ensure interfaces are implemented.
var (
	_ driven.SaverBuilder = (*Builder)(nil)
	_ driven.Saver        = (*Saver)(nil)
)

// Builder creates Omnivore adapters.
type Builder struct {
	client *apiclient.Client
}

// NewBuilder creates an Omnivore builder.
func NewBuilder(opts savers.Options) *Builder {
	return &Builder{client: opts.NewClient(domain.ProviderTypeOmnivore, DefaultBaseURL)}
}

// Type returns the provider type.
func (b *Builder) Type() domain.ProviderType {
	return domain.ProviderTypeOmnivore
}

// Build creates an adapter for cfg.
func (b *Builder) Build(cfg *domain.ServiceConfig, creds driven.CredentialStore) (driven.Saver, error) {
	return &Saver{
		Credential: savers.NewCredential(domain.ProviderTypeOmnivore, cfg.ID, creds),
		client:     b.client,
		labels:     cfg.Settings.Tags,
		newID:      uuid.NewString,
	}, nil
}

// Saver saves links to one Omnivore account.
type Saver struct {
	*savers.Credential
	client *apiclient.Client
	labels []string
	newID  func() string
}

// IsAuthenticated reports whether a non-empty key is loaded.
func (s *Saver) IsAuthenticated() bool {
	return strings.TrimSpace(s.Secret()) != ""
}

// Authenticate has no handshake; it succeeds only when a key is loaded.
func (s *Saver) Authenticate(ctx context.Context) error {
	if !s.IsAuthenticated() {
		return fmt.Errorf("%w: omnivore needs an API key", domain.ErrSetupRequired)
	}
	return nil
}

type labelInput struct {
	Name string `json:"name"`
}

type saveURLInput struct {
	URL             string       `json:"url"`
	Source          string       `json:"source"`
	ClientRequestID string       `json:"clientRequestId"`
	Labels          []labelInput `json:"labels,omitempty"`
}

type graphQLRequest struct {
	Query     string         `json:"query"`
	Variables map[string]any `json:"variables"`
}

type graphQLResponse struct {
	Data *struct {
		SaveURL *struct {
			URL             string   `json:"url"`
			ClientRequestID string   `json:"clientRequestId"`
			ErrorCodes      []string `json:"errorCodes"`
			Message         string   `json:"message"`
		} `json:"saveUrl"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

// Save issues the saveUrl mutation. A 2xx response can still carry
// application errors, which are reported as domain.ErrProviderRejected.
func (s *Saver) Save(ctx context.Context, rawURL, title string) (*domain.SaveReceipt, error) {
	key := strings.TrimSpace(s.Secret())
	if key == "" {
		return nil, savers.NotAuthenticated(domain.ProviderTypeOmnivore)
	}

	input := saveURLInput{
		URL:             rawURL,
		Source:          saveSource,
		ClientRequestID: s.newID(),
	}
	for _, l := range s.labels {
		input.Labels = append(input.Labels, labelInput{Name: l})
	}

	req, err := s.client.NewJSONRequest(ctx, http.MethodPost, "/api/graphql", graphQLRequest{
		Query:     saveURLMutation,
		Variables: map[string]any{"input": input},
	})
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", key)

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, err
	}
	if !resp.OK() {
		return nil, s.client.StatusError(resp)
	}

	var out graphQLResponse
	if err := s.client.DecodeJSON(resp, &out); err != nil {
		return nil, err
	}
	if len(out.Errors) > 0 {
		msgs := make([]string, 0, len(out.Errors))
		for _, e := range out.Errors {
			msgs = append(msgs, e.Message)
		}
		return nil, domain.NewProviderError(domain.ProviderTypeOmnivore, domain.ErrProviderRejected, resp.StatusCode, strings.Join(msgs, "; "))
	}
	if out.Data == nil || out.Data.SaveURL == nil {
		return nil, domain.NewProviderError(domain.ProviderTypeOmnivore, domain.ErrMalformedResponse, resp.StatusCode, "missing saveUrl payload")
	}

	result := out.Data.SaveURL
	if len(result.ErrorCodes) > 0 {
		msg := strings.Join(result.ErrorCodes, ", ")
		if result.Message != "" {
			msg += ": " + result.Message
		}
		kind := domain.ErrProviderRejected
		for _, code := range result.ErrorCodes {
			if code == "UNAUTHORIZED" {
				kind = domain.ErrCredentialInvalid
			}
		}
		return nil, domain.NewProviderError(domain.ProviderTypeOmnivore, kind, resp.StatusCode, msg)
	}

	id := result.ClientRequestID
	if id == "" {
		id = input.ClientRequestID
	}
	return &domain.SaveReceipt{ItemID: id, URL: result.URL}, nil
}
