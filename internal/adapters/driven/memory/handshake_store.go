// Package memory holds in-process adapters for single-instance deployments.
package memory

import (
	"context"
	"time"

	"github.com/jellydator/ttlcache/v3"

	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Verify interface compliance
var _ driven.HandshakeStore = (*HandshakeStore)(nil)

// DefaultHandshakeTTL bounds how long a pending setup flow may take.
const DefaultHandshakeTTL = 10 * time.Minute

// HandshakeStore implements driven.HandshakeStore using ttlcache.
// States are lost on restart, which only aborts flows that were in progress.
type HandshakeStore struct {
	cache *ttlcache.Cache[string, *driven.HandshakeState]
}

// NewHandshakeStore creates a store and starts its expiry loop.
// Call Close to stop it.
func NewHandshakeStore() *HandshakeStore {
	cache := ttlcache.New(
		ttlcache.WithTTL[string, *driven.HandshakeState](DefaultHandshakeTTL),
		ttlcache.WithDisableTouchOnHit[string, *driven.HandshakeState](),
	)

	go cache.Start()

	return &HandshakeStore{cache: cache}
}

// Save stores state until its ExpiresAt.
func (s *HandshakeStore) Save(_ context.Context, state *driven.HandshakeState) error {
	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	if state.ExpiresAt.IsZero() {
		state.ExpiresAt = now.Add(DefaultHandshakeTTL)
	}

	ttl := time.Until(state.ExpiresAt)
	if ttl <= 0 {
		return nil
	}

	stored := *state
	s.cache.Set(state.State, &stored, ttl)
	return nil
}

// GetAndDelete consumes the state. Missing or expired states return (nil, nil).
func (s *HandshakeStore) GetAndDelete(_ context.Context, state string) (*driven.HandshakeState, error) {
	item, ok := s.cache.GetAndDelete(state)
	if !ok || item == nil {
		return nil, nil
	}
	hs := item.Value()
	if time.Now().After(hs.ExpiresAt) {
		return nil, nil
	}
	return hs, nil
}

// Len returns the number of pending states.
func (s *HandshakeStore) Len() int {
	return s.cache.Len()
}

// Close stops the expiry loop.
func (s *HandshakeStore) Close() error {
	s.cache.Stop()
	return nil
}
