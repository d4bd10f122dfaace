// Package eventbus provides the in-process channels that keep views in sync:
// one for save results and one for per-post interaction state.
package eventbus

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.SaveResultPublisher = (*SaveResults)(nil)
	_ driven.PostStatePublisher  = (*PostStates)(nil)
	_ driven.SaveResultPublisher = FanoutSaveResults(nil)
	_ driven.PostStatePublisher  = FanoutPostStates(nil)
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 16

// SaveResults broadcasts every save outcome to all subscribers.
// Slow subscribers miss events rather than block the publisher.
type SaveResults struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[int]chan *domain.SaveResult
}

// NewSaveResults creates an empty save-result bus.
func NewSaveResults(logger *slog.Logger) *SaveResults {
	if logger == nil {
		logger = slog.Default()
	}
	return &SaveResults{
		logger: logger,
		subs:   make(map[int]chan *domain.SaveResult),
	}
}

// Subscribe returns a channel of save results and a function that ends the
// subscription and closes the channel.
func (b *SaveResults) Subscribe(buffer int) (<-chan *domain.SaveResult, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan *domain.SaveResult, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	b.subs[id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs, id)
			b.mu.Unlock()
			close(ch)
		})
	}
}

// PublishSaveResult delivers result to every current subscriber.
func (b *SaveResults) PublishSaveResult(_ context.Context, result *domain.SaveResult) error {
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs {
		select {
		case ch <- result:
		default:
			b.logger.Warn("dropping save result for slow subscriber", "provider", result.ProviderType)
		}
	}
	return nil
}

// Subscribers reports the number of live subscriptions.
func (b *SaveResults) Subscribers() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// PostStates routes post snapshots to the subscribers of that post only.
type PostStates struct {
	logger *slog.Logger

	mu     sync.RWMutex
	nextID int
	subs   map[string]map[int]chan *domain.PostSnapshot
}

// NewPostStates creates an empty post-state bus.
func NewPostStates(logger *slog.Logger) *PostStates {
	if logger == nil {
		logger = slog.Default()
	}
	return &PostStates{
		logger: logger,
		subs:   make(map[string]map[int]chan *domain.PostSnapshot),
	}
}

// Subscribe returns a channel that receives snapshots for postID and a
// function that ends the subscription.
func (b *PostStates) Subscribe(postID string, buffer int) (<-chan *domain.PostSnapshot, func()) {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	ch := make(chan *domain.PostSnapshot, buffer)

	b.mu.Lock()
	id := b.nextID
	b.nextID++
	if b.subs[postID] == nil {
		b.subs[postID] = make(map[int]chan *domain.PostSnapshot)
	}
	b.subs[postID][id] = ch
	b.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			b.mu.Lock()
			delete(b.subs[postID], id)
			if len(b.subs[postID]) == 0 {
				delete(b.subs, postID)
			}
			b.mu.Unlock()
			close(ch)
		})
	}
}

// PublishPostState delivers snapshot to the subscribers of snapshot.PostID.
func (b *PostStates) PublishPostState(_ context.Context, snapshot *domain.PostSnapshot) error {
	if snapshot == nil || snapshot.PostID == "" {
		return errors.New("post snapshot without post id")
	}

	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, ch := range b.subs[snapshot.PostID] {
		select {
		case ch <- snapshot:
		default:
			b.logger.Warn("dropping post state for slow subscriber", "post_id", snapshot.PostID)
		}
	}
	return nil
}

// Subscribers reports the number of live subscriptions for postID.
func (b *PostStates) Subscribers(postID string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs[postID])
}

// FanoutSaveResults publishes to every publisher in order and joins the errors.
type FanoutSaveResults []driven.SaveResultPublisher

// PublishSaveResult implements driven.SaveResultPublisher.
func (f FanoutSaveResults) PublishSaveResult(ctx context.Context, result *domain.SaveResult) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishSaveResult(ctx, result); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// FanoutPostStates publishes to every publisher in order and joins the errors.
type FanoutPostStates []driven.PostStatePublisher

// PublishPostState implements driven.PostStatePublisher.
func (f FanoutPostStates) PublishPostState(ctx context.Context, snapshot *domain.PostSnapshot) error {
	var errs []error
	for _, p := range f {
		if err := p.PublishPostState(ctx, snapshot); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
