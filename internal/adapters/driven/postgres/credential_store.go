package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/custodia-labs/readlater/internal/adapters/driven/secrets"
	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Ensure CredentialStore implements the interface.
var _ driven.CredentialStore = (*CredentialStore)(nil)

// CredentialStore implements driven.CredentialStore using PostgreSQL.
// Secrets are encrypted with AES-256-GCM before they reach the database.
type CredentialStore struct {
	db        *sql.DB
	encryptor *secrets.Encryptor
}

// NewCredentialStore creates a new PostgreSQL-backed credential store.
func NewCredentialStore(db *sql.DB, encryptor *secrets.Encryptor) *CredentialStore {
	return &CredentialStore{
		db:        db,
		encryptor: encryptor,
	}
}

// Save stores or replaces the secret (upsert).
func (s *CredentialStore) Save(ctx context.Context, secret string, provider domain.ProviderType, configID string) error {
	blob, err := s.encryptor.EncryptString(secret)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	query := `
		INSERT INTO service_credentials (provider_type, config_id, secret_blob, updated_at)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (provider_type, config_id) DO UPDATE SET
			secret_blob = EXCLUDED.secret_blob,
			updated_at = EXCLUDED.updated_at
	`

	if _, err := s.db.ExecContext(ctx, query, provider, configID, blob, time.Now()); err != nil {
		return fmt.Errorf("save credential: %w", err)
	}
	return nil
}

// Get returns the decrypted secret, or "" when none is stored.
func (s *CredentialStore) Get(ctx context.Context, provider domain.ProviderType, configID string) (string, error) {
	query := `SELECT secret_blob FROM service_credentials WHERE provider_type = $1 AND config_id = $2`

	var blob []byte
	err := s.db.QueryRowContext(ctx, query, provider, configID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get credential: %w", err)
	}

	secret, err := s.encryptor.DecryptString(blob)
	if err != nil {
		return "", fmt.Errorf("decrypt credential: %w", err)
	}
	return secret, nil
}

// Delete erases the secret. Missing rows are not an error.
func (s *CredentialStore) Delete(ctx context.Context, provider domain.ProviderType, configID string) error {
	query := `DELETE FROM service_credentials WHERE provider_type = $1 AND config_id = $2`
	if _, err := s.db.ExecContext(ctx, query, provider, configID); err != nil {
		return fmt.Errorf("delete credential: %w", err)
	}
	return nil
}
