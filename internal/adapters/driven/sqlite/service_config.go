package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Compile-time interface satisfaction check.
var _ driven.ServiceConfigStore = (*ServiceConfigStore)(nil)

// ServiceConfigStore is the SQLite implementation of driven.ServiceConfigStore.
type ServiceConfigStore struct {
	db *DB
}

// NewServiceConfigStore creates a new ServiceConfigStore.
func NewServiceConfigStore(db *DB) *ServiceConfigStore {
	return &ServiceConfigStore{db: db}
}

const serviceConfigColumns = `id, provider_type, enabled, is_primary, settings, last_synced_at, created_at, updated_at`

// List returns all configurations ordered by creation time.
func (r *ServiceConfigStore) List(ctx context.Context) ([]*domain.ServiceConfig, error) {
	const query = `SELECT ` + serviceConfigColumns + ` FROM service_configs ORDER BY created_at, id`

	rows, err := r.db.Reader.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("list service configs: %w", err)
	}
	defer rows.Close()

	var configs []*domain.ServiceConfig
	for rows.Next() {
		cfg, err := scanServiceConfig(rows)
		if err != nil {
			return nil, err
		}
		configs = append(configs, cfg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate service configs: %w", err)
	}
	return configs, nil
}

// Get returns the configuration with id, or (nil, nil) when absent.
func (r *ServiceConfigStore) Get(ctx context.Context, id string) (*domain.ServiceConfig, error) {
	const query = `SELECT ` + serviceConfigColumns + ` FROM service_configs WHERE id = ?`

	cfg, err := scanServiceConfig(r.db.Reader.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Insert stores a new configuration.
func (r *ServiceConfigStore) Insert(ctx context.Context, cfg *domain.ServiceConfig) error {
	settings, err := cfg.MarshalSettings()
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	const query = `
		INSERT INTO service_configs (id, provider_type, enabled, is_primary, settings, last_synced_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`

	_, err = r.db.Writer.ExecContext(ctx, query,
		cfg.ID,
		string(cfg.ProviderType),
		cfg.Enabled,
		cfg.Primary,
		string(settings),
		nullTimeString(cfg),
		formatTime(cfg.CreatedAt),
		formatTime(cfg.UpdatedAt),
	)
	if err != nil {
		if strings.Contains(err.Error(), "UNIQUE constraint failed") {
			return fmt.Errorf("%w: service config %s already exists", domain.ErrInvalidInput, cfg.ID)
		}
		return fmt.Errorf("insert service config %q: %w", cfg.ID, err)
	}
	return nil
}

// Save updates an existing configuration.
func (r *ServiceConfigStore) Save(ctx context.Context, cfg *domain.ServiceConfig) error {
	settings, err := cfg.MarshalSettings()
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	const query = `
		UPDATE service_configs
		SET enabled = ?, is_primary = ?, settings = ?, last_synced_at = ?, updated_at = ?
		WHERE id = ?`

	result, err := r.db.Writer.ExecContext(ctx, query,
		cfg.Enabled,
		cfg.Primary,
		string(settings),
		nullTimeString(cfg),
		formatTime(cfg.UpdatedAt),
		cfg.ID,
	)
	if err != nil {
		return fmt.Errorf("save service config %q: %w", cfg.ID, err)
	}
	return requireRow(result)
}

// Delete removes a configuration.
func (r *ServiceConfigStore) Delete(ctx context.Context, id string) error {
	result, err := r.db.Writer.ExecContext(ctx, `DELETE FROM service_configs WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete service config %q: %w", id, err)
	}
	return requireRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServiceConfig(row rowScanner) (*domain.ServiceConfig, error) {
	var (
		cfg                  domain.ServiceConfig
		providerType         string
		settings             string
		lastSynced           sql.NullString
		createdAt, updatedAt string
	)

	err := row.Scan(&cfg.ID, &providerType, &cfg.Enabled, &cfg.Primary, &settings, &lastSynced, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan service config: %w", err)
	}

	cfg.ProviderType = domain.ProviderType(providerType)
	if err := cfg.UnmarshalSettings([]byte(settings)); err != nil {
		return nil, fmt.Errorf("unmarshal settings for %q: %w", cfg.ID, err)
	}
	if cfg.CreatedAt, err = parseTime(createdAt); err != nil {
		return nil, fmt.Errorf("parse created_at: %w", err)
	}
	if cfg.UpdatedAt, err = parseTime(updatedAt); err != nil {
		return nil, fmt.Errorf("parse updated_at: %w", err)
	}
	if lastSynced.Valid {
		t, err := parseTime(lastSynced.String)
		if err != nil {
			return nil, fmt.Errorf("parse last_synced_at: %w", err)
		}
		cfg.LastSyncedAt = &t
	}

	return &cfg, nil
}

func nullTimeString(cfg *domain.ServiceConfig) sql.NullString {
	if cfg.LastSyncedAt == nil {
		return sql.NullString{}
	}
	return sql.NullString{String: formatTime(*cfg.LastSyncedAt), Valid: true}
}

func requireRow(result sql.Result) error {
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if n == 0 {
		return domain.ErrNotFound
	}
	return nil
}
