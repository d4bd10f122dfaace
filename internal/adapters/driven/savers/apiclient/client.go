// Package apiclient is the HTTP transport shared by the read-later provider
// adapters. Each provider gets its own rate limiter and circuit breaker.
package apiclient

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sony/gobreaker"
	"golang.org/x/time/rate"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

const (
	// DefaultTimeout is the per-request timeout when none is configured.
	DefaultTimeout = 30 * time.Second

	// maxBodySize caps how much of a response body is read.
	maxBodySize = 1 << 20

	// RequestIDHeader carries the id logged for each call.
	RequestIDHeader = "X-Request-Id"
)

// errServerStatus marks 5xx responses as failures for the breaker.
var errServerStatus = errors.New("server error status")

// Config configures a Client.
type Config struct {
	// Provider names the upstream in logs and errors
	Provider domain.ProviderType

	// BaseURL is prefixed to every request path
	BaseURL string

	// Timeout bounds each request. Zero means DefaultTimeout.
	Timeout time.Duration

	// RatePerSecond limits outbound calls. Zero disables limiting.
	RatePerSecond float64

	// Burst is the limiter bucket size. Defaults to 1.
	Burst int

	// BreakerTimeout is how long the breaker stays open. Zero means 60s.
	BreakerTimeout time.Duration

	// HTTPClient overrides the underlying client (tests)
	HTTPClient *http.Client

	Logger *slog.Logger
}

// Response is a fully-read HTTP response.
type Response struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// OK reports whether the status is 2xx.
func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 300
}

// Client sends requests to one provider. It never retries.
type Client struct {
	provider domain.ProviderType
	baseURL  string
	http     *http.Client
	limiter  *rate.Limiter
	breaker  *gobreaker.CircuitBreaker
	logger   *slog.Logger
}

// New creates a Client.
func New(cfg Config) *Client {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = DefaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	var limiter *rate.Limiter
	if cfg.RatePerSecond > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		limiter = rate.NewLimiter(rate.Limit(cfg.RatePerSecond), burst)
	}

	breakerTimeout := cfg.BreakerTimeout
	if breakerTimeout <= 0 {
		breakerTimeout = 60 * time.Second
	}

	name := string(cfg.Provider)
	breaker := gobreaker.NewCircuitBreaker(gobreaker.Settings{
		Name:        name,
		MaxRequests: 1,
		Interval:    60 * time.Second,
		Timeout:     breakerTimeout,
		ReadyToTrip: func(counts gobreaker.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from gobreaker.State, to gobreaker.State) {
			logger.Warn("circuit breaker state changed",
				"provider", name,
				"from", from.String(),
				"to", to.String(),
			)
		},
	})

	return &Client{
		provider: cfg.Provider,
		baseURL:  strings.TrimSuffix(cfg.BaseURL, "/"),
		http:     httpClient,
		limiter:  limiter,
		breaker:  breaker,
		logger:   logger.With("provider", name),
	}
}

// Provider returns the provider this client talks to.
func (c *Client) Provider() domain.ProviderType {
	return c.provider
}

// BaseURL returns the configured base URL.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// URL joins path onto the base URL.
func (c *Client) URL(path string) string {
	return c.baseURL + path
}

// NewRequest builds a request against the base URL.
func (c *Client) NewRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.URL(path), body)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	return req, nil
}

// NewJSONRequest builds a request with v encoded as a JSON body.
func (c *Client) NewJSONRequest(ctx context.Context, method, path string, v any) (*http.Request, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := c.NewRequest(ctx, method, path, bytes.NewReader(data))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	return req, nil
}

// Do sends req and reads the whole body. Any HTTP status is returned as a
// Response; errors are reserved for calls that never got an answer, and
// those are reported as domain.ErrProviderUnavailable.
func (c *Client) Do(req *http.Request) (*Response, error) {
	ctx := req.Context()

	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return nil, c.unavailable(fmt.Sprintf("rate limiter: %v", err))
		}
	}

	requestID := uuid.NewString()
	req.Header.Set(RequestIDHeader, requestID)
	logger := c.logger.With("request_id", requestID, "method", req.Method, "path", req.URL.Path)

	start := time.Now()
	var resp *Response
	_, err := c.breaker.Execute(func() (interface{}, error) {
		httpResp, err := c.http.Do(req)
		if err != nil {
			return nil, err
		}
		defer httpResp.Body.Close()

		body, err := io.ReadAll(io.LimitReader(httpResp.Body, maxBodySize))
		if err != nil {
			return nil, fmt.Errorf("read response: %w", err)
		}
		resp = &Response{
			StatusCode: httpResp.StatusCode,
			Header:     httpResp.Header,
			Body:       body,
		}
		if httpResp.StatusCode >= 500 {
			return resp, errServerStatus
		}
		return resp, nil
	})
	duration := time.Since(start)

	switch {
	case errors.Is(err, gobreaker.ErrOpenState), errors.Is(err, gobreaker.ErrTooManyRequests):
		logger.Warn("provider call short-circuited", "error", err)
		return nil, c.unavailable("circuit open")
	case err != nil && !errors.Is(err, errServerStatus):
		logger.Warn("provider call failed", "duration", duration, "error", err)
		return nil, c.unavailable(err.Error())
	}

	logger.Debug("provider call", "status", resp.StatusCode, "duration", duration)
	return resp, nil
}

func (c *Client) unavailable(msg string) error {
	return domain.NewProviderError(c.provider, domain.ErrProviderUnavailable, 0, msg)
}

// StatusError maps a non-2xx response to the shared taxonomy.
// Providers with their own conventions map the statuses they know first.
func (c *Client) StatusError(resp *Response) error {
	msg := Snippet(resp.Body)
	switch {
	case resp.StatusCode == http.StatusBadRequest:
		return domain.NewProviderError(c.provider, domain.ErrBadRequest, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return domain.NewProviderError(c.provider, domain.ErrCredentialInvalid, resp.StatusCode, msg)
	case resp.StatusCode == http.StatusTooManyRequests:
		pe := domain.NewProviderError(c.provider, domain.ErrRateLimited, resp.StatusCode, msg)
		pe.RetryAfter = RetryAfter(resp.Header, time.Now())
		return pe
	case resp.StatusCode >= 500:
		return domain.NewProviderError(c.provider, domain.ErrProviderUnavailable, resp.StatusCode, msg)
	default:
		return domain.NewProviderError(c.provider, domain.ErrProviderRejected, resp.StatusCode, msg)
	}
}

// DecodeJSON unmarshals a response body, reporting failures as
// domain.ErrMalformedResponse.
func (c *Client) DecodeJSON(resp *Response, v any) error {
	if err := json.Unmarshal(resp.Body, v); err != nil {
		return domain.NewProviderError(c.provider, domain.ErrMalformedResponse, resp.StatusCode, err.Error())
	}
	return nil
}

// RetryAfter parses a Retry-After header given in seconds or as an HTTP date.
func RetryAfter(h http.Header, now time.Time) time.Duration {
	v := strings.TrimSpace(h.Get("Retry-After"))
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil {
		if secs < 0 {
			return 0
		}
		return time.Duration(secs) * time.Second
	}
	if t, err := http.ParseTime(v); err == nil {
		if d := t.Sub(now); d > 0 {
			return d
		}
	}
	return 0
}

// Snippet returns a short single-line excerpt of a body for error messages.
func Snippet(body []byte) string {
	s := strings.Join(strings.Fields(string(body)), " ")
	if len(s) > 200 {
		s = s[:200] + "..."
	}
	return s
}

// FlexString decodes a JSON string or number into a string.
// Providers are inconsistent about how they encode item ids.
type FlexString string

// UnmarshalJSON implements json.Unmarshaler.
func (f *FlexString) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*f = ""
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*f = FlexString(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return fmt.Errorf("expected string or number, got %s", data)
	}
	*f = FlexString(n.String())
	return nil
}
