package omnivore

import (
	"context"
	"encoding/json"
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

func newSaver(t *testing.T, key string, handler http.HandlerFunc) *Saver {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)

	creds := mocks.NewMockCredentialStore()
	ctx := context.Background()
	require.NoError(t, creds.Save(ctx, key, domain.ProviderTypeOmnivore, "cfg-1"))

	b := NewBuilder(savers.Options{BaseURL: srv.URL})
	s, err := b.Build(&domain.ServiceConfig{
		ID:           "cfg-1",
		ProviderType: domain.ProviderTypeOmnivore,
		Settings:     domain.ServiceSettings{Tags: []string{"later"}},
	}, creds)
	require.NoError(t, err)
	require.NoError(t, s.LoadCredential(ctx))

	saver := s.(*Saver)
	saver.newID = func() string { return "req-123" }
	return saver
}

func TestSaver_SendsMutation(t *testing.T) {
	s := newSaver(t, "omni-key", func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/graphql", r.URL.Path)
		assert.Equal(t, "omni-key", r.Header.Get("Authorization"))

		var body struct {
			Query     string `json:"query"`
			Variables struct {
				Input saveURLInput `json:"input"`
			} `json:"variables"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&body))
		assert.Contains(t, body.Query, "saveUrl")
		assert.Equal(t, "https://example.com/a", body.Variables.Input.URL)
		assert.Equal(t, "api", body.Variables.Input.Source)
		assert.Equal(t, "req-123", body.Variables.Input.ClientRequestID)
		assert.Equal(t, []labelInput{{Name: "later"}}, body.Variables.Input.Labels)

		_, _ = w.Write([]byte(`{"data":{"saveUrl":{"url":"https://omnivore.app/x","clientRequestId":"req-123"}}}`))
	})

	receipt, err := s.Save(context.Background(), "https://example.com/a", "ignored title")
	require.NoError(t, err)
	assert.Equal(t, "req-123", receipt.ItemID)
	assert.Equal(t, "https://omnivore.app/x", receipt.URL)
}

func TestSaver_ErrorCodesOnSuccessStatus(t *testing.T) {
	s := newSaver(t, "omni-key", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"saveUrl":{"errorCodes":["BAD_REQUEST"],"message":"invalid url"}}}`))
	})

	_, err := s.Save(context.Background(), "nope", "")
	require.ErrorIs(t, err, domain.ErrProviderRejected)
	assert.Contains(t, err.Error(), "BAD_REQUEST")
}

func TestSaver_UnauthorizedErrorCode(t *testing.T) {
	s := newSaver(t, "omni-key", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"data":{"saveUrl":{"errorCodes":["UNAUTHORIZED"]}}}`))
	})

	_, err := s.Save(context.Background(), "https://example.com", "")
	assert.ErrorIs(t, err, domain.ErrCredentialInvalid)
}

func TestSaver_GraphQLErrors(t *testing.T) {
	s := newSaver(t, "omni-key", func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"errors":[{"message":"Cannot query field"}]}`))
	})

	_, err := s.Save(context.Background(), "https://example.com", "")
	require.ErrorIs(t, err, domain.ErrProviderRejected)
	assert.Contains(t, err.Error(), "Cannot query field")
}

func TestSaver_MalformedPayload(t *testing.T) {
	tests := map[string]string{
		"not json":     `<html>`,
		"missing data": `{}`,
	}
	for name, body := range tests {
		t.Run(name, func(t *testing.T) {
			s := newSaver(t, "omni-key", func(w http.ResponseWriter, r *http.Request) {
				_, _ = w.Write([]byte(body))
			})
			_, err := s.Save(context.Background(), "https://example.com", "")
			assert.ErrorIs(t, err, domain.ErrMalformedResponse)
		})
	}
}

func TestSaver_EmptyKeyIsUnauthenticated(t *testing.T) {
	var calls atomic.Int32
	s := newSaver(t, "", func(w http.ResponseWriter, r *http.Request) { calls.Add(1) })

	assert.False(t, s.IsAuthenticated())
	assert.ErrorIs(t, s.Authenticate(context.Background()), domain.ErrSetupRequired)

	_, err := s.Save(context.Background(), "https://example.com", "")
	assert.ErrorIs(t, err, domain.ErrCredentialInvalid)
	assert.Zero(t, calls.Load())
}

func TestSaver_HTTPStatusErrors(t *testing.T) {
	s := newSaver(t, "omni-key", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
	})

	_, err := s.Save(context.Background(), "https://example.com", "")
	assert.ErrorIs(t, err, domain.ErrCredentialInvalid)
}
