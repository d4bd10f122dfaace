package mocks

import (
	"fmt"
	"sync"
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Ensure MockAuthAdapter implements AuthAdapter
var _ driven.AuthAdapter = (*MockAuthAdapter)(nil)

// MockAuthAdapter hands out opaque sequential tokens and remembers the claims
// issued for each. Expiry is checked on parse like a signed token would be.
type MockAuthAdapter struct {
	mu     sync.Mutex
	next   int
	issued map[string]domain.TokenClaims

	// GenerateErr, when set, fails every GenerateToken call
	GenerateErr error
}

// NewMockAuthAdapter creates a new MockAuthAdapter
func NewMockAuthAdapter() *MockAuthAdapter {
	return &MockAuthAdapter{issued: make(map[string]domain.TokenClaims)}
}

// GenerateToken records claims under a new token
func (m *MockAuthAdapter) GenerateToken(claims *domain.TokenClaims) (string, error) {
	if m.GenerateErr != nil {
		return "", m.GenerateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.next++
	token := fmt.Sprintf("mock-token-%d", m.next)
	m.issued[token] = *claims
	return token, nil
}

// ParseToken returns the claims recorded for token
func (m *MockAuthAdapter) ParseToken(token string) (*domain.TokenClaims, error) {
	m.mu.Lock()
	claims, ok := m.issued[token]
	m.mu.Unlock()
	if !ok {
		return nil, domain.ErrTokenInvalid
	}
	if claims.ExpiresAt > 0 && time.Now().Unix() > claims.ExpiresAt {
		return nil, domain.ErrTokenExpired
	}
	return &claims, nil
}

// Issued returns how many tokens were generated
func (m *MockAuthAdapter) Issued() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.issued)
}
