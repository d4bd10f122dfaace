package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven/mocks"
)

func TestAuthService_IssueAndValidate(t *testing.T) {
	svc := NewAuthService(mocks.NewMockAuthAdapter())

	token, err := svc.IssueToken(context.Background(), "reader", []string{domain.ScopeSave}, time.Hour)
	if err != nil {
		t.Fatalf("issue: %v", err)
	}

	authCtx, err := svc.ValidateToken(context.Background(), token)
	if err != nil {
		t.Fatalf("validate: %v", err)
	}
	if authCtx.Subject != "reader" {
		t.Errorf("expected subject reader, got %s", authCtx.Subject)
	}
	if !authCtx.HasScope(domain.ScopeSave) || authCtx.HasScope(domain.ScopePosts) {
		t.Errorf("unexpected scopes %v", authCtx.Scopes)
	}
}

func TestAuthService_ValidateToken_Errors(t *testing.T) {
	adapter := mocks.NewMockAuthAdapter()
	svc := NewAuthService(adapter)

	if _, err := svc.ValidateToken(context.Background(), ""); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid for empty token, got %v", err)
	}
	if _, err := svc.ValidateToken(context.Background(), "%%%"); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid for garbage, got %v", err)
	}

	expired, _ := adapter.GenerateToken(&domain.TokenClaims{
		Subject:   "reader",
		ExpiresAt: time.Now().Add(-time.Minute).Unix(),
	})
	if _, err := svc.ValidateToken(context.Background(), expired); !errors.Is(err, domain.ErrTokenExpired) {
		t.Errorf("expected ErrTokenExpired, got %v", err)
	}

	anonymous, _ := adapter.GenerateToken(&domain.TokenClaims{ExpiresAt: time.Now().Add(time.Hour).Unix()})
	if _, err := svc.ValidateToken(context.Background(), anonymous); !errors.Is(err, domain.ErrTokenInvalid) {
		t.Errorf("expected ErrTokenInvalid without subject, got %v", err)
	}
}

func TestAuthService_IssueToken_InvalidInput(t *testing.T) {
	svc := NewAuthService(mocks.NewMockAuthAdapter())
	if _, err := svc.IssueToken(context.Background(), "", nil, time.Hour); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
	if _, err := svc.IssueToken(context.Background(), "x", nil, 0); !errors.Is(err, domain.ErrInvalidInput) {
		t.Errorf("expected ErrInvalidInput, got %v", err)
	}
}

func TestAuthService_IssueToken_AdapterError(t *testing.T) {
	adapter := mocks.NewMockAuthAdapter()
	adapter.GenerateErr = errors.New("no signing key")
	svc := NewAuthService(adapter)

	if _, err := svc.IssueToken(context.Background(), "reader", nil, time.Hour); err == nil {
		t.Fatal("expected error")
	}
	if adapter.Issued() != 0 {
		t.Errorf("expected no tokens issued, got %d", adapter.Issued())
	}
}
