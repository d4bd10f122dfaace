// Package pocket implements the Pocket adapter: a consumer-key request-token
// handshake followed by JSON saves that carry both key and token.
package pocket

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/custodia-labs/readlater/internal/adapters/driven/savers"
	"github.com/custodia-labs/readlater/internal/adapters/driven/savers/apiclient"
	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// DefaultBaseURL is Pocket's public host.
const DefaultBaseURL = "https://getpocket.com"

// Ensure interfaces are implemented.
var (
	_ driven.SaverBuilder     = (*Builder)(nil)
	_ driven.RequestTokenFlow = (*Builder)(nil)
	_ driven.Saver            = (*Saver)(nil)
)

// Builder creates Pocket adapters and drives the request-token flow.
type Builder struct {
	client *apiclient.Client
}

// NewBuilder creates a Pocket builder.
func NewBuilder(opts savers.Options) *Builder {
	return &Builder{client: opts.NewClient(domain.ProviderTypePocket, DefaultBaseURL)}
}

// Type returns the provider type.
func (b *Builder) Type() domain.ProviderType {
	return domain.ProviderTypePocket
}

// Build creates an adapter for cfg.
func (b *Builder) Build(cfg *domain.ServiceConfig, creds driven.CredentialStore) (driven.Saver, error) {
	return &Saver{
		Credential:  savers.NewCredential(domain.ProviderTypePocket, cfg.ID, creds),
		client:      b.client,
		consumerKey: cfg.Settings.ConsumerKey,
		tags:        cfg.Settings.Tags,
	}, nil
}

// RequestCode obtains a request code for consumerKey.
func (b *Builder) RequestCode(ctx context.Context, consumerKey, redirectURI string) (string, error) {
	var out struct {
		Code string `json:"code"`
	}
	if err := b.post(ctx, "/v3/oauth/request", map[string]string{
		"consumer_key": consumerKey,
		"redirect_uri": redirectURI,
	}, &out); err != nil {
		return "", err
	}
	if out.Code == "" {
		return "", domain.NewProviderError(domain.ProviderTypePocket, domain.ErrMalformedResponse, 0, "missing request code")
	}
	return out.Code, nil
}

// AuthorizeURL is where the user approves code.
func (b *Builder) AuthorizeURL(code, redirectURI string) string {
	params := url.Values{
		"request_token": {code},
		"redirect_uri":  {redirectURI},
	}
	return b.client.URL("/auth/authorize") + "?" + params.Encode()
}

// ExchangeCode trades an approved code for an access token.
func (b *Builder) ExchangeCode(ctx context.Context, consumerKey, code string) (string, string, error) {
	var out struct {
		AccessToken string `json:"access_token"`
		Username    string `json:"username"`
	}
	if err := b.post(ctx, "/v3/oauth/authorize", map[string]string{
		"consumer_key": consumerKey,
		"code":         code,
	}, &out); err != nil {
		return "", "", err
	}
	if out.AccessToken == "" {
		return "", "", domain.NewProviderError(domain.ProviderTypePocket, domain.ErrMalformedResponse, 0, "missing access token")
	}
	return out.AccessToken, out.Username, nil
}

func (b *Builder) post(ctx context.Context, path string, body, out any) error {
	return post(ctx, b.client, path, body, out)
}

// Saver saves links to one Pocket account.
type Saver struct {
	*savers.Credential
	client      *apiclient.Client
	consumerKey string
	tags        []string
}

// IsAuthenticated reports whether both consumer key and access token are present.
func (s *Saver) IsAuthenticated() bool {
	return s.consumerKey != "" && s.Secret() != ""
}

// Authenticate cannot run without user approval of a fresh request code.
func (s *Saver) Authenticate(ctx context.Context) error {
	return fmt.Errorf("%w: pocket must be connected through the consumer key approval flow", domain.ErrSetupRequired)
}

// Save adds url to the Pocket list.
func (s *Saver) Save(ctx context.Context, rawURL, title string) (*domain.SaveReceipt, error) {
	if !s.IsAuthenticated() {
		return nil, savers.NotAuthenticated(domain.ProviderTypePocket)
	}

	body := map[string]string{
		"url":          rawURL,
		"consumer_key": s.consumerKey,
		"access_token": s.Secret(),
	}
	if title != "" {
		body["title"] = title
	}
	if len(s.tags) > 0 {
		body["tags"] = strings.Join(s.tags, ",")
	}

	var out struct {
		Item struct {
			ItemID      apiclient.FlexString `json:"item_id"`
			ResolvedURL string               `json:"resolved_url"`
			NormalURL   string               `json:"normal_url"`
		} `json:"item"`
		Status int `json:"status"`
	}
	if err := post(ctx, s.client, "/v3/add", body, &out); err != nil {
		return nil, err
	}
	if out.Status != 1 {
		return nil, domain.NewProviderError(domain.ProviderTypePocket, domain.ErrProviderRejected, http.StatusOK,
			fmt.Sprintf("status %d", out.Status))
	}

	receipt := &domain.SaveReceipt{ItemID: string(out.Item.ItemID), URL: out.Item.ResolvedURL}
	if receipt.URL == "" {
		receipt.URL = out.Item.NormalURL
	}
	return receipt, nil
}

func post(ctx context.Context, client *apiclient.Client, path string, body, out any) error {
	req, err := client.NewJSONRequest(ctx, http.MethodPost, path, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json; charset=UTF-8")
	req.Header.Set("X-Accept", "application/json")

	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	if !resp.OK() {
		return statusError(client, resp)
	}
	return client.DecodeJSON(resp, out)
}

// statusError maps Pocket's statuses. Pocket reports rate limits as 403 with
// X-Limit-* headers and puts the reason in X-Error.
func statusError(client *apiclient.Client, resp *apiclient.Response) error {
	msg := resp.Header.Get("X-Error")
	if msg == "" {
		msg = apiclient.Snippet(resp.Body)
	}

	if resp.StatusCode == http.StatusForbidden && isRateLimited(resp.Header) {
		pe := domain.NewProviderError(domain.ProviderTypePocket, domain.ErrRateLimited, resp.StatusCode, msg)
		pe.RetryAfter = resetAfter(resp.Header)
		return pe
	}

	switch resp.StatusCode {
	case http.StatusBadRequest:
		return domain.NewProviderError(domain.ProviderTypePocket, domain.ErrBadRequest, resp.StatusCode, msg)
	case http.StatusUnauthorized, http.StatusForbidden:
		return domain.NewProviderError(domain.ProviderTypePocket, domain.ErrCredentialInvalid, resp.StatusCode, msg)
	}
	return client.StatusError(resp)
}

func isRateLimited(h http.Header) bool {
	return h.Get("X-Limit-User-Remaining") == "0" || h.Get("X-Limit-Key-Remaining") == "0"
}

func resetAfter(h http.Header) time.Duration {
	for _, key := range []string{"X-Limit-User-Reset", "X-Limit-Key-Reset"} {
		if secs, err := strconv.Atoi(h.Get(key)); err == nil && secs > 0 {
			return time.Duration(secs) * time.Second
		}
	}
	return 0
}
