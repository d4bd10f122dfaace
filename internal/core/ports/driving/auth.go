package driving

import (
	"context"
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// AuthService validates API bearer tokens
type AuthService interface {
	// ValidateToken validates a JWT token and returns the auth context
	ValidateToken(ctx context.Context, token string) (*domain.AuthContext, error)

	// IssueToken creates a token for subject valid for ttl
	IssueToken(ctx context.Context, subject string, scopes []string, ttl time.Duration) (string, error)
}
