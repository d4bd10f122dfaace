package driven

import (
	"context"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// SocialClient applies toggle interactions on the federated server.
// Every call returns the post as the server sees it after the request.
type SocialClient interface {
	// SetInteraction activates or deactivates one interaction
	SetInteraction(ctx context.Context, postID string, kind domain.InteractionKind, active bool) (*domain.PostSnapshot, error)

	// GetPost fetches the current post state
	GetPost(ctx context.Context, postID string) (*domain.PostSnapshot, error)
}
