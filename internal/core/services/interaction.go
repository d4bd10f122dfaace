package services

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
	"github.com/custodia-labs/readlater/internal/core/ports/driving"
)

// Ensure interactionService implements InteractionService
var _ driving.InteractionService = (*interactionService)(nil)

// InteractionServiceConfig holds dependencies for the interaction service.
type InteractionServiceConfig struct {
	Client    driven.SocialClient
	Publisher driven.PostStatePublisher
	Metrics   driven.SaveMetrics
	Logger    *slog.Logger
}

// interactionService applies toggles with an optimistic value first and a
// reconciled value once the server answers.
// Toggles on different posts are independent. Repeated toggles on the same
// post are not deduplicated; IsBusy lets callers disable the control.
type interactionService struct {
	client    driven.SocialClient
	publisher driven.PostStatePublisher
	metrics   driven.SaveMetrics
	logger    *slog.Logger

	mu       sync.Mutex
	inFlight map[string]int
}

// NewInteractionService creates a new interaction service.
func NewInteractionService(cfg InteractionServiceConfig) driving.InteractionService {
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	metrics := cfg.Metrics
	if metrics == nil {
		metrics = driven.NopMetrics{}
	}
	return &interactionService{
		client:    cfg.Client,
		publisher: cfg.Publisher,
		metrics:   metrics,
		logger:    logger,
		inFlight:  make(map[string]int),
	}
}

// Toggle flips one interaction. On failure the final state is the original
// state and the error is returned alongside it.
func (s *interactionService) Toggle(ctx context.Context, req driving.ToggleRequest) (*driving.ToggleResponse, error) {
	if req.PostID == "" {
		return nil, fmt.Errorf("%w: post id is required", domain.ErrInvalidInput)
	}
	if !req.Kind.IsValid() {
		return nil, fmt.Errorf("%w: unknown interaction %q", domain.ErrInvalidInput, req.Kind)
	}

	before := domain.InteractionState{
		PostID: req.PostID,
		Kind:   req.Kind,
		Active: req.Active,
		Count:  max(0, req.Count),
	}
	optimistic := before.Optimistic()
	resp := &driving.ToggleResponse{Optimistic: optimistic, Final: before}

	key := busyKey(req.PostID, req.Kind)
	s.begin(key)
	defer s.end(key)

	start := time.Now()
	server, err := s.client.SetInteraction(ctx, req.PostID, req.Kind, optimistic.Active)
	s.metrics.RecordToggle(req.Kind, err == nil, time.Since(start))
	if err != nil {
		s.logger.Warn("toggle failed",
			"post_id", req.PostID,
			"kind", req.Kind,
			"error", err,
		)
		return resp, fmt.Errorf("%s post %s: %w", req.Kind, req.PostID, err)
	}

	serverActive, serverCount := server.State(req.Kind)
	resp.Final = before.Reconcile(serverActive, serverCount)

	snapshot := server.WithState(resp.Final)
	snapshot.PostID = req.PostID
	if snapshot.FetchedAt.IsZero() {
		snapshot.FetchedAt = time.Now()
	}
	resp.Snapshot = &snapshot

	s.publish(ctx, &snapshot)
	return resp, nil
}

// Refresh fetches the post and broadcasts its canonical state.
func (s *interactionService) Refresh(ctx context.Context, postID string) (*domain.PostSnapshot, error) {
	if postID == "" {
		return nil, fmt.Errorf("%w: post id is required", domain.ErrInvalidInput)
	}
	snapshot, err := s.client.GetPost(ctx, postID)
	if err != nil {
		return nil, fmt.Errorf("get post %s: %w", postID, err)
	}
	if snapshot.FetchedAt.IsZero() {
		snapshot.FetchedAt = time.Now()
	}
	s.publish(ctx, snapshot)
	return snapshot, nil
}

// IsBusy reports whether a toggle for (postID, kind) is in flight.
func (s *interactionService) IsBusy(postID string, kind domain.InteractionKind) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.inFlight[busyKey(postID, kind)] > 0
}

func (s *interactionService) publish(ctx context.Context, snapshot *domain.PostSnapshot) {
	if s.publisher == nil {
		return
	}
	if err := s.publisher.PublishPostState(ctx, snapshot); err != nil {
		s.logger.Warn("failed to publish post state", "post_id", snapshot.PostID, "error", err)
	}
}

func (s *interactionService) begin(key string) {
	s.mu.Lock()
	s.inFlight[key]++
	s.mu.Unlock()
}

func (s *interactionService) end(key string) {
	s.mu.Lock()
	if s.inFlight[key] <= 1 {
		delete(s.inFlight, key)
	} else {
		s.inFlight[key]--
	}
	s.mu.Unlock()
}

func busyKey(postID string, kind domain.InteractionKind) string {
	return postID + "/" + string(kind)
}
