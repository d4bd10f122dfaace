package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/readlater/internal/adapters/driven/secrets"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Ensure HandshakeStore implements the interface.
var _ driven.HandshakeStore = (*HandshakeStore)(nil)

// DefaultHandshakeTTL is the default time-to-live for pending setup flows.
const DefaultHandshakeTTL = 10 * time.Minute

// HandshakeStore implements driven.HandshakeStore using PostgreSQL.
// The state payload carries client secrets, so it is stored encrypted.
type HandshakeStore struct {
	db        *sql.DB
	encryptor *secrets.Encryptor
	ttl       time.Duration
}

// NewHandshakeStore creates a new PostgreSQL-backed handshake store.
func NewHandshakeStore(db *sql.DB, encryptor *secrets.Encryptor) *HandshakeStore {
	return &HandshakeStore{
		db:        db,
		encryptor: encryptor,
		ttl:       DefaultHandshakeTTL,
	}
}

// Save stores a new pending flow.
func (s *HandshakeStore) Save(ctx context.Context, state *driven.HandshakeState) error {
	now := time.Now()
	if state.CreatedAt.IsZero() {
		state.CreatedAt = now
	}
	if state.ExpiresAt.IsZero() {
		state.ExpiresAt = now.Add(s.ttl)
	}

	payload, err := s.encryptor.Encrypt(state)
	if err != nil {
		return fmt.Errorf("encrypt handshake state: %w", err)
	}

	query := `
		INSERT INTO handshake_states (state, provider_type, payload, created_at, expires_at)
		VALUES ($1, $2, $3, $4, $5)
	`

	_, err = s.db.ExecContext(ctx, query,
		state.State,
		state.ProviderType,
		payload,
		state.CreatedAt,
		state.ExpiresAt,
	)
	if err != nil {
		return fmt.Errorf("save handshake state: %w", err)
	}

	return nil
}

// GetAndDelete atomically retrieves and deletes the state.
// Uses DELETE ... RETURNING for atomic single-use semantics.
func (s *HandshakeStore) GetAndDelete(ctx context.Context, state string) (*driven.HandshakeState, error) {
	query := `
		DELETE FROM handshake_states
		WHERE state = $1 AND expires_at > NOW()
		RETURNING payload
	`

	var payload []byte
	err := s.db.QueryRowContext(ctx, query, state).Scan(&payload)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // State not found or expired
	}
	if err != nil {
		return nil, fmt.Errorf("get and delete handshake state: %w", err)
	}

	var hs driven.HandshakeState
	if err := s.encryptor.Decrypt(payload, &hs); err != nil {
		return nil, fmt.Errorf("decrypt handshake state: %w", err)
	}
	return &hs, nil
}

// Cleanup removes expired states.
func (s *HandshakeStore) Cleanup(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM handshake_states WHERE expires_at < NOW()`); err != nil {
		return fmt.Errorf("cleanup handshake states: %w", err)
	}
	return nil
}
