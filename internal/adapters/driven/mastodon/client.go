// Package mastodon implements the social client used by the interaction
// service against a Mastodon-compatible server.
package mastodon

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Ensure Client implements SocialClient
var _ driven.SocialClient = (*Client)(nil)

const maxBodySize = 1 << 20

// Config configures a Client.
type Config struct {
	// BaseURL is the instance root, e.g. https://mastodon.social
	BaseURL string

	// Token is the user's bearer token
	Token string

	Timeout    time.Duration
	HTTPClient *http.Client
	Logger     *slog.Logger
}

// Client provides the Mastodon status interaction endpoints.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewClient creates a new Mastodon client.
func NewClient(cfg Config) *Client {
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 30 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Client{
		baseURL:    strings.TrimSuffix(cfg.BaseURL, "/"),
		token:      cfg.Token,
		httpClient: httpClient,
		logger:     logger,
	}
}

// Status is the subset of a Mastodon status the client reads.
type Status struct {
	ID              string  `json:"id"`
	Favourited      bool    `json:"favourited"`
	FavouritesCount int     `json:"favourites_count"`
	Reblogged       bool    `json:"reblogged"`
	ReblogsCount    int     `json:"reblogs_count"`
	Bookmarked      bool    `json:"bookmarked"`
	Reblog          *Status `json:"reblog"`
}

// snapshot converts the status to the post state under postID.
// A boost answers with a wrapper status; the counts live on the wrapped one.
func (s *Status) snapshot(postID string) *domain.PostSnapshot {
	src := s
	if s.Reblog != nil {
		src = s.Reblog
	}
	return &domain.PostSnapshot{
		PostID:          postID,
		Favourited:      src.Favourited,
		FavouritesCount: max(0, src.FavouritesCount),
		Reblogged:       src.Reblogged || s.Reblog != nil,
		ReblogsCount:    max(0, src.ReblogsCount),
		Bookmarked:      src.Bookmarked,
		FetchedAt:       time.Now(),
	}
}

// action returns the endpoint verb for a toggle.
func action(kind domain.InteractionKind, active bool) (string, error) {
	var on, off string
	switch kind {
	case domain.InteractionFavourite:
		on, off = "favourite", "unfavourite"
	case domain.InteractionBoost:
		on, off = "reblog", "unreblog"
	case domain.InteractionBookmark:
		on, off = "bookmark", "unbookmark"
	default:
		return "", fmt.Errorf("%w: unknown interaction %q", domain.ErrInvalidInput, kind)
	}
	if active {
		return on, nil
	}
	return off, nil
}

// SetInteraction activates or deactivates one interaction.
func (c *Client) SetInteraction(ctx context.Context, postID string, kind domain.InteractionKind, active bool) (*domain.PostSnapshot, error) {
	verb, err := action(kind, active)
	if err != nil {
		return nil, err
	}
	path := fmt.Sprintf("/api/v1/statuses/%s/%s", url.PathEscape(postID), verb)

	var status Status
	if err := c.doRequest(ctx, http.MethodPost, path, &status); err != nil {
		return nil, err
	}
	return status.snapshot(postID), nil
}

// GetPost fetches the current post state.
func (c *Client) GetPost(ctx context.Context, postID string) (*domain.PostSnapshot, error) {
	path := "/api/v1/statuses/" + url.PathEscape(postID)

	var status Status
	if err := c.doRequest(ctx, http.MethodGet, path, &status); err != nil {
		return nil, err
	}
	return status.snapshot(postID), nil
}

// doRequest performs one authenticated request and decodes the JSON answer.
// There are no retries: a toggle is one call per user action.
func (c *Client) doRequest(ctx context.Context, method, path string, out any) error {
	if c.token == "" {
		return fmt.Errorf("%w: no social access token configured", domain.ErrUnauthorized)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, nil)
	if err != nil {
		return fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.token)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("social request failed", "method", method, "path", path, "error", err)
		return fmt.Errorf("%w: %v", domain.ErrProviderUnavailable, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return fmt.Errorf("%w: read body: %v", domain.ErrProviderUnavailable, err)
	}

	c.logger.Debug("social request",
		"method", method,
		"path", path,
		"status", resp.StatusCode,
		"duration", time.Since(start),
	)

	if resp.StatusCode >= 400 {
		return statusError(resp.StatusCode, body)
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("%w: decode status: %v", domain.ErrMalformedResponse, err)
	}
	return nil
}

type apiError struct {
	Error string `json:"error"`
}

func statusError(status int, body []byte) error {
	var e apiError
	msg := strings.TrimSpace(string(body))
	if json.Unmarshal(body, &e) == nil && e.Error != "" {
		msg = e.Error
	}
	if len(msg) > 200 {
		msg = msg[:200]
	}

	var kind error
	switch {
	case status == http.StatusUnauthorized || status == http.StatusForbidden:
		kind = domain.ErrUnauthorized
	case status == http.StatusNotFound:
		kind = domain.ErrNotFound
	case status == http.StatusTooManyRequests:
		kind = domain.ErrRateLimited
	case status == http.StatusUnprocessableEntity || status == http.StatusBadRequest:
		kind = domain.ErrBadRequest
	default:
		kind = domain.ErrProviderUnavailable
	}
	return fmt.Errorf("%w: status %d: %s", kind, status, msg)
}
