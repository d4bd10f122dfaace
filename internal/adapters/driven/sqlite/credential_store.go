package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/custodia-labs/readlater/internal/adapters/driven/secrets"
	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Compile-time interface satisfaction check.
var _ driven.CredentialStore = (*CredentialStore)(nil)

// CredentialStore is the SQLite implementation of driven.CredentialStore.
// Secrets are encrypted before write and decrypted after read.
type CredentialStore struct {
	db        *DB
	encryptor *secrets.Encryptor
}

// NewCredentialStore creates a new CredentialStore.
func NewCredentialStore(db *DB, encryptor *secrets.Encryptor) *CredentialStore {
	return &CredentialStore{db: db, encryptor: encryptor}
}

// Save stores or replaces the secret for (provider, configID).
func (r *CredentialStore) Save(ctx context.Context, secret string, provider domain.ProviderType, configID string) error {
	blob, err := r.encryptor.EncryptString(secret)
	if err != nil {
		return fmt.Errorf("encrypt credential: %w", err)
	}

	const query = `INSERT OR REPLACE INTO service_credentials (provider_type, config_id, secret_blob, updated_at) VALUES (?, ?, ?, CURRENT_TIMESTAMP)`
	if _, err := r.db.Writer.ExecContext(ctx, query, string(provider), configID, blob); err != nil {
		return fmt.Errorf("save credential %s/%s: %w", provider, configID, err)
	}
	return nil
}

// Get returns the plaintext secret, or ("", nil) when none is stored.
func (r *CredentialStore) Get(ctx context.Context, provider domain.ProviderType, configID string) (string, error) {
	const query = `SELECT secret_blob FROM service_credentials WHERE provider_type = ? AND config_id = ?`

	var blob []byte
	err := r.db.Reader.QueryRowContext(ctx, query, string(provider), configID).Scan(&blob)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("get credential %s/%s: %w", provider, configID, err)
	}

	secret, err := r.encryptor.DecryptString(blob)
	if err != nil {
		return "", fmt.Errorf("decrypt credential %s/%s: %w", provider, configID, err)
	}
	return secret, nil
}

// Delete erases the secret. Deleting a missing secret succeeds.
func (r *CredentialStore) Delete(ctx context.Context, provider domain.ProviderType, configID string) error {
	const query = `DELETE FROM service_credentials WHERE provider_type = ? AND config_id = ?`
	if _, err := r.db.Writer.ExecContext(ctx, query, string(provider), configID); err != nil {
		return fmt.Errorf("delete credential %s/%s: %w", provider, configID, err)
	}
	return nil
}
