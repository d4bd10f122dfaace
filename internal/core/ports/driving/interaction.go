package driving

import (
	"context"

	"github.com/custodia-labs/readlater/internal/core/domain"
)

// InteractionService toggles favourites, boosts and bookmarks with
// optimistic updates and reconciles the server response.
type InteractionService interface {
	// Toggle flips one interaction and returns both generations of state
	Toggle(ctx context.Context, req ToggleRequest) (*ToggleResponse, error)

	// Refresh fetches the post and broadcasts its canonical state
	Refresh(ctx context.Context, postID string) (*domain.PostSnapshot, error)

	// IsBusy reports whether a toggle for (postID, kind) is in flight
	IsBusy(postID string, kind domain.InteractionKind) bool
}

// ToggleRequest carries the displayed state before the toggle.
// @Description Request to toggle an interaction on a post
type ToggleRequest struct {
	PostID string                 `json:"post_id"`
	Kind   domain.InteractionKind `json:"kind" example:"favourite"`
	Active bool                   `json:"active"`
	Count  int                    `json:"count"`
}

// ToggleResponse holds the speculative and authoritative generations.
type ToggleResponse struct {
	Optimistic domain.InteractionState `json:"optimistic"`
	Final      domain.InteractionState `json:"final"`
	Snapshot   *domain.PostSnapshot    `json:"snapshot,omitempty"`
}
