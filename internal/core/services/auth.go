package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
	"github.com/custodia-labs/readlater/internal/core/ports/driving"
)

// Ensure authService implements AuthService
var _ driving.AuthService = (*authService)(nil)

// authService validates API bearer tokens
type authService struct {
	authAdapter driven.AuthAdapter
}

// NewAuthService creates a new AuthService
func NewAuthService(authAdapter driven.AuthAdapter) driving.AuthService {
	return &authService{authAdapter: authAdapter}
}

// ValidateToken validates a JWT token and returns the auth context
func (s *authService) ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error) {
	if token == "" {
		return nil, domain.ErrTokenInvalid
	}

	claims, err := s.authAdapter.ParseToken(token)
	if err != nil {
		if errors.Is(err, domain.ErrTokenExpired) {
			return nil, domain.ErrTokenExpired
		}
		return nil, domain.ErrTokenInvalid
	}

	if claims.ExpiresAt > 0 && time.Now().Unix() > claims.ExpiresAt {
		return nil, domain.ErrTokenExpired
	}
	if claims.Subject == "" {
		return nil, domain.ErrTokenInvalid
	}

	return &domain.AuthContext{
		Subject: claims.Subject,
		Scopes:  claims.Scopes,
	}, nil
}

// IssueToken creates a token for subject valid for ttl
func (s *authService) IssueToken(ctx context.Context, subject string, scopes []string, ttl time.Duration) (string, error) {
	if subject == "" || ttl <= 0 {
		return "", domain.ErrInvalidInput
	}
	now := time.Now()
	token, err := s.authAdapter.GenerateToken(&domain.TokenClaims{
		Subject:   subject,
		Scopes:    scopes,
		IssuedAt:  now.Unix(),
		ExpiresAt: now.Add(ttl).Unix(),
	})
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}
