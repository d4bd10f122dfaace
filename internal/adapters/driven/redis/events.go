package redis

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Verify interface compliance
var (
	_ driven.SaveResultPublisher = (*EventPublisher)(nil)
	_ driven.PostStatePublisher  = (*EventPublisher)(nil)

	_ driven.RegistryChangePublisher = (*EventPublisher)(nil)
)

// Pub/sub channel names.
const (
	SaveResultsChannel = "readlater:save-results"
	PostStatesChannel  = "readlater:post-states"
	RegistryChannel    = "readlater:registry"
)

// envelope tags each message with the publishing instance so a relay can
// skip events that were already delivered locally.
type envelope struct {
	Origin     string               `json:"origin"`
	SaveResult *domain.SaveResult   `json:"save_result,omitempty"`
	PostState  *domain.PostSnapshot `json:"post_state,omitempty"`
	Registry   bool                 `json:"registry,omitempty"`
}

// EventPublisher publishes save results and post states to Redis pub/sub
// so every instance serving the same user sees them.
type EventPublisher struct {
	client   *redis.Client
	originID string
	logger   *slog.Logger
}

// NewEventPublisher creates a publisher with a unique origin id.
func NewEventPublisher(client *redis.Client, logger *slog.Logger) *EventPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &EventPublisher{
		client:   client,
		originID: generateOriginID(),
		logger:   logger,
	}
}

// generateOriginID creates a unique identifier for this process.
// Format: hostname:pid:random
func generateOriginID() string {
	hostname, _ := os.Hostname()
	randomBytes := make([]byte, 8)
	_, _ = rand.Read(randomBytes)
	return fmt.Sprintf("%s:%d:%s", hostname, os.Getpid(), hex.EncodeToString(randomBytes))
}

// OriginID returns the identifier stamped on published events.
func (p *EventPublisher) OriginID() string {
	return p.originID
}

// PublishSaveResult implements driven.SaveResultPublisher.
func (p *EventPublisher) PublishSaveResult(ctx context.Context, result *domain.SaveResult) error {
	return p.publish(ctx, SaveResultsChannel, envelope{Origin: p.originID, SaveResult: result})
}

// PublishPostState implements driven.PostStatePublisher.
func (p *EventPublisher) PublishPostState(ctx context.Context, snapshot *domain.PostSnapshot) error {
	return p.publish(ctx, PostStatesChannel, envelope{Origin: p.originID, PostState: snapshot})
}

// PublishRegistryChanged implements driven.RegistryChangePublisher.
func (p *EventPublisher) PublishRegistryChanged(ctx context.Context) error {
	return p.publish(ctx, RegistryChannel, envelope{Origin: p.originID, Registry: true})
}

func (p *EventPublisher) publish(ctx context.Context, channel string, env envelope) error {
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal event: %w", err)
	}
	if err := p.client.Publish(ctx, channel, data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", channel, err)
	}
	return nil
}

// Relay forwards events published by other instances into the local
// publishers and reloads the registry when another instance changed it.
// It blocks until ctx is cancelled.
func (p *EventPublisher) Relay(ctx context.Context, saves driven.SaveResultPublisher, posts driven.PostStatePublisher, registry driven.RegistryReloader) error {
	sub := p.client.Subscribe(ctx, SaveResultsChannel, PostStatesChannel, RegistryChannel)
	defer sub.Close()

	// Wait for the subscription to be confirmed
	if _, err := sub.Receive(ctx); err != nil {
		return fmt.Errorf("subscribe to events: %w", err)
	}

	ch := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			return nil
		case msg, ok := <-ch:
			if !ok {
				return nil
			}
			p.forward(ctx, msg, saves, posts, registry)
		}
	}
}

func (p *EventPublisher) forward(ctx context.Context, msg *redis.Message, saves driven.SaveResultPublisher, posts driven.PostStatePublisher, registry driven.RegistryReloader) {
	var env envelope
	if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
		p.logger.Warn("discarding malformed event", "channel", msg.Channel, "error", err)
		return
	}
	if env.Origin == p.originID {
		return
	}

	var err error
	switch {
	case msg.Channel == SaveResultsChannel && env.SaveResult != nil && saves != nil:
		err = saves.PublishSaveResult(ctx, env.SaveResult)
	case msg.Channel == PostStatesChannel && env.PostState != nil && posts != nil:
		err = posts.PublishPostState(ctx, env.PostState)
	case msg.Channel == RegistryChannel && env.Registry && registry != nil:
		p.logger.Info("reloading service registry", "origin", env.Origin)
		registry.LoadConfigurations(ctx)
	}
	if err != nil {
		p.logger.Warn("failed to relay event", "channel", msg.Channel, "error", err)
	}
}

// Ping checks if the Redis backend is healthy.
func (p *EventPublisher) Ping(ctx context.Context) error {
	return p.client.Ping(ctx).Err()
}
