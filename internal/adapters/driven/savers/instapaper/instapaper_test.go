package instapaper

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"

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

func newSaver(t *testing.T, b *Builder, creds *mocks.MockCredentialStore, secret string) *Saver {
	t.Helper()
	ctx := context.Background()
	if secret != "" {
		require.NoError(t, creds.Save(ctx, secret, domain.ProviderTypeInstapaper, "cfg-1"))
	}
	s, err := b.Build(&domain.ServiceConfig{ID: "cfg-1", ProviderType: domain.ProviderTypeInstapaper}, creds)
	require.NoError(t, err)
	require.NoError(t, s.LoadCredential(ctx))
	return s.(*Saver)
}

func TestSaver_SaveUsesBasicAuthAndForm(t *testing.T) {
	b, creds := setup(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/add", r.URL.Path)
		user, pass, ok := r.BasicAuth()
		assert.True(t, ok)
		assert.Equal(t, "reader@example.com", user)
		assert.Equal(t, "pa:ss", pass)

		assert.NoError(t, r.ParseForm())
		assert.Equal(t, "https://example.com/a", r.PostForm.Get("url"))
		assert.Equal(t, "Title", r.PostForm.Get("title"))

		w.Header().Set("Content-Location", "https://example.com/a")
		w.WriteHeader(http.StatusCreated)
	})
	s := newSaver(t, b, creds, domain.JoinSecretPair("reader@example.com", "pa:ss"))
	assert.True(t, s.IsAuthenticated())

	receipt, err := s.Save(context.Background(), "https://example.com/a", "Title")
	require.NoError(t, err)
	assert.Equal(t, "https://example.com/a", receipt.URL)
}

func TestSaver_StatusClassification(t *testing.T) {
	tests := []struct {
		status  int
		want    error
		message string
	}{
		{http.StatusBadRequest, domain.ErrBadRequest, "could not save this link"},
		{http.StatusForbidden, domain.ErrCredentialInvalid, "Reconnect"},
		{http.StatusInternalServerError, domain.ErrProviderUnavailable, "Try again later"},
	}

	for _, tt := range tests {
		t.Run(http.StatusText(tt.status), func(t *testing.T) {
			b, creds := setup(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
			})
			s := newSaver(t, b, creds, "user:pass")

			_, err := s.Save(context.Background(), "https://example.com", "")
			require.ErrorIs(t, err, tt.want)
			assert.Contains(t, domain.UserMessage(err), tt.message)
		})
	}
}

func TestSaver_NoCredentialMakesNoCall(t *testing.T) {
	var calls atomic.Int32
	b, creds := setup(t, func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })
	s := newSaver(t, b, creds, "")

	assert.False(t, s.IsAuthenticated())
	_, err := s.Save(context.Background(), "https://example.com", "")
	assert.ErrorIs(t, err, domain.ErrCredentialInvalid)
	assert.ErrorIs(t, s.Authenticate(context.Background()), domain.ErrSetupRequired)
	assert.Zero(t, calls.Load())
}

func TestSaver_AuthenticateReverifies(t *testing.T) {
	b, creds := setup(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/authenticate", r.URL.Path)
		w.WriteHeader(http.StatusOK)
	})
	s := newSaver(t, b, creds, "user:pass")
	require.NoError(t, s.Authenticate(context.Background()))
}

func TestBuilder_Login(t *testing.T) {
	b, _ := setup(t, func(w http.ResponseWriter, r *http.Request) {
		user, pass, _ := r.BasicAuth()
		if user == "reader" && pass == "right" {
			w.WriteHeader(http.StatusOK)
			return
		}
		w.WriteHeader(http.StatusForbidden)
	})
	ctx := context.Background()

	secret, err := b.Login(ctx, "reader", "right")
	require.NoError(t, err)
	user, pass, ok := domain.SplitSecretPair(secret)
	require.True(t, ok)
	assert.Equal(t, "reader", user)
	assert.Equal(t, "right", pass)

	_, err = b.Login(ctx, "reader", "wrong")
	assert.ErrorIs(t, err, domain.ErrCredentialInvalid)

	_, err = b.Login(ctx, "", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
}
