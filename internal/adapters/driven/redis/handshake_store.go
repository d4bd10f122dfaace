package redis

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.HandshakeStore = (*HandshakeStore)(nil)

const (
	handshakePrefix = "readlater:handshake:"

	// DefaultHandshakeTTL bounds how long a pending setup flow may take.
	DefaultHandshakeTTL = 10 * time.Minute
)

// Sealer encrypts handshake payloads at rest. Pending flows carry client
// secrets, so production wiring always supplies one.
type Sealer interface {
	Encrypt(value any) ([]byte, error)
	Decrypt(blob []byte, value any) error
}

// HandshakeStore implements driven.HandshakeStore using Redis.
// Expiry is delegated to key TTLs; retrieval uses GETDEL so a state can be
// consumed exactly once.
type HandshakeStore struct {
	client *redis.Client
	sealer Sealer
	ttl    time.Duration
}

// NewHandshakeStore creates a new Redis-backed HandshakeStore.
// A nil sealer stores plain JSON.
func NewHandshakeStore(client *redis.Client, sealer Sealer) *HandshakeStore {
	return &HandshakeStore{
		client: client,
		sealer: sealer,
		ttl:    DefaultHandshakeTTL,
	}
}

// Save stores state with a TTL derived from ExpiresAt.
func (s *HandshakeStore) Save(ctx context.Context, state *driven.HandshakeState) error {
	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	if state.ExpiresAt.IsZero() {
		state.ExpiresAt = now.Add(s.ttl)
	}

	ttl := time.Until(state.ExpiresAt)
	if ttl <= 0 {
		// Already expired, nothing to keep
		return nil
	}

	data, err := s.encode(state)
	if err != nil {
		return err
	}

	if err := s.client.Set(ctx, handshakePrefix+state.State, data, ttl).Err(); err != nil {
		return fmt.Errorf("failed to save handshake state: %w", err)
	}
	return nil
}

// GetAndDelete consumes the state. Missing or expired states return (nil, nil).
func (s *HandshakeStore) GetAndDelete(ctx context.Context, state string) (*driven.HandshakeState, error) {
	data, err := s.client.GetDel(ctx, handshakePrefix+state).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get handshake state: %w", err)
	}

	hs, err := s.decode(data)
	if err != nil {
		return nil, err
	}
	if time.Now().After(hs.ExpiresAt) {
		return nil, nil
	}
	return hs, nil
}

func (s *HandshakeStore) encode(state *driven.HandshakeState) ([]byte, error) {
	if s.sealer != nil {
		data, err := s.sealer.Encrypt(state)
		if err != nil {
			return nil, fmt.Errorf("failed to seal handshake state: %w", err)
		}
		return data, nil
	}
	data, err := json.Marshal(state)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal handshake state: %w", err)
	}
	return data, nil
}

func (s *HandshakeStore) decode(data []byte) (*driven.HandshakeState, error) {
	var hs driven.HandshakeState
	if s.sealer != nil {
		if err := s.sealer.Decrypt(data, &hs); err != nil {
			return nil, fmt.Errorf("failed to open handshake state: %w", err)
		}
		return &hs, nil
	}
	if err := json.Unmarshal(data, &hs); err != nil {
		return nil, fmt.Errorf("failed to unmarshal handshake state: %w", err)
	}
	return &hs, nil
}
