package pocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/custodia-labs/readlater/internal/adapters/driven/savers"
	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven/mocks"
)

func setup(t *testing.T, handler http.HandlerFunc) (*Builder, *mocks.MockCredentialStore) {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewBuilder(savers.Options{BaseURL: srv.URL}), mocks.NewMockCredentialStore()
}

func newSaver(t *testing.T, b *Builder, creds *mocks.MockCredentialStore, token string) *Saver {
	t.Helper()
	cfg := &domain.ServiceConfig{
		ID:           "cfg-1",
		ProviderType: domain.ProviderTypePocket,
		Settings:     domain.ServiceSettings{ConsumerKey: "ck-1", Tags: []string{"a", "b"}},
	}
	if token != "" {
		require.NoError(t, creds.Save(context.Background(), token, domain.ProviderTypePocket, "cfg-1"))
	}
	s, err := b.Build(cfg, creds)
	require.NoError(t, err)
	require.NoError(t, s.LoadCredential(context.Background()))
	return s.(*Saver)
}

func TestSaver_Save(t *testing.T) {
	b, creds := setup(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v3/add", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("X-Accept"))

		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "https://example.com/a", body["url"])
		assert.Equal(t, "A title", body["title"])
		assert.Equal(t, "ck-1", body["consumer_key"])
		assert.Equal(t, "tok", body["access_token"])
		assert.Equal(t, "a,b", body["tags"])

		_, _ = w.Write([]byte(`{"item":{"item_id":"229279689","resolved_url":"https://example.com/a"},"status":1}`))
	})
	s := newSaver(t, b, creds, "tok")
	assert.True(t, s.IsAuthenticated())

	receipt, err := s.Save(context.Background(), "https://example.com/a", "A title")
	require.NoError(t, err)
	assert.Equal(t, "229279689", receipt.ItemID)
}

func TestSaver_OmitsEmptyTitle(t *testing.T) {
	b, creds := setup(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		_, hasTitle := body["title"]
		assert.False(t, hasTitle)
		_, _ = w.Write([]byte(`{"item":{"item_id":1},"status":1}`))
	})
	s := newSaver(t, b, creds, "tok")

	_, err := s.Save(context.Background(), "https://example.com/a", "")
	require.NoError(t, err)
}

func TestSaver_NotAuthenticatedMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	b, creds := setup(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	s := newSaver(t, b, creds, "")

	assert.False(t, s.IsAuthenticated())
	_, err := s.Save(context.Background(), "https://example.com", "")
	assert.ErrorIs(t, err, domain.ErrCredentialInvalid)
	assert.Zero(t, calls.Load())
}

func TestSaver_AuthenticateRequiresSetup(t *testing.T) {
	b, creds := setup(t, func(http.ResponseWriter, *http.Request) {})
	s := newSaver(t, b, creds, "tok")
	assert.ErrorIs(t, s.Authenticate(context.Background()), domain.ErrSetupRequired)
}

func TestSaver_StatusMapping(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		headers map[string]string
		want    error
		retry   time.Duration
	}{
		{"bad request", http.StatusBadRequest, map[string]string{"X-Error": "Invalid URL"}, domain.ErrBadRequest, 0},
		{"unauthorized", http.StatusUnauthorized, nil, domain.ErrCredentialInvalid, 0},
		{"forbidden", http.StatusForbidden, nil, domain.ErrCredentialInvalid, 0},
		{"rate limited", http.StatusForbidden, map[string]string{"X-Limit-User-Remaining": "0", "X-Limit-User-Reset": "120"}, domain.ErrRateLimited, 2 * time.Minute},
		{"server error", http.StatusServiceUnavailable, nil, domain.ErrProviderUnavailable, 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			b, creds := setup(t, func(w http.ResponseWriter, r *http.Request) {
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.status)
			})
			s := newSaver(t, b, creds, "tok")

			_, err := s.Save(context.Background(), "https://example.com", "")
			require.ErrorIs(t, err, tt.want)

			var pe *domain.ProviderError
			require.ErrorAs(t, err, &pe)
			assert.Equal(t, tt.retry, pe.RetryAfter)
			if msg := tt.headers["X-Error"]; msg != "" {
				assert.Equal(t, msg, pe.Message)
			}
		})
	}
}

func TestSaver_RejectedStatus(t *testing.T) {
	b, creds := setup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"status":0}`))
	})
	s := newSaver(t, b, creds, "tok")

	_, err := s.Save(context.Background(), "https://example.com", "")
	assert.ErrorIs(t, err, domain.ErrProviderRejected)
}

func TestSaver_MalformedResponse(t *testing.T) {
	b, creds := setup(t, func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`not json`))
	})
	s := newSaver(t, b, creds, "tok")

	_, err := s.Save(context.Background(), "https://example.com", "")
	assert.ErrorIs(t, err, domain.ErrMalformedResponse)
}

func TestBuilder_RequestTokenFlow(t *testing.T) {
	b, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		var body map[string]string
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Equal(t, "ck-1", body["consumer_key"])

		switch r.URL.Path {
		case "/v3/oauth/request":
			assert.Equal(t, "https://app.example/cb", body["redirect_uri"])
			_, _ = w.Write([]byte(`{"code":"req-code"}`))
		case "/v3/oauth/authorize":
			assert.Equal(t, "req-code", body["code"])
			_, _ = w.Write([]byte(`{"access_token":"tok","username":"reader"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
		}
	})
	ctx := context.Background()

	code, err := b.RequestCode(ctx, "ck-1", "https://app.example/cb")
	require.NoError(t, err)
	assert.Equal(t, "req-code", code)

	u, err := url.Parse(b.AuthorizeURL(code, "https://app.example/cb"))
	require.NoError(t, err)
	assert.Equal(t, "/auth/authorize", u.Path)
	assert.Equal(t, "req-code", u.Query().Get("request_token"))
	assert.Equal(t, "https://app.example/cb", u.Query().Get("redirect_uri"))

	token, username, err := b.ExchangeCode(ctx, "ck-1", code)
	require.NoError(t, err)
	assert.Equal(t, "tok", token)
	assert.Equal(t, "reader", username)
}

func TestBuilder_ExchangeDenied(t *testing.T) {
	b, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("X-Error", "User rejected code.")
		w.WriteHeader(http.StatusForbidden)
	})

	_, _, err := b.ExchangeCode(context.Background(), "ck-1", "code")
	assert.ErrorIs(t, err, domain.ErrCredentialInvalid)
}
