package postgres

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/lib/pq"

	"github.com/custodia-labs/readlater/internal/core/domain"
	"github.com/custodia-labs/readlater/internal/core/ports/driven"
)

// Ensure ServiceConfigStore implements the interface.
var _ driven.ServiceConfigStore = (*ServiceConfigStore)(nil)

// uniqueViolation is the PostgreSQL error code for duplicate keys.
const uniqueViolation = "23505"

// ServiceConfigStore implements driven.ServiceConfigStore using PostgreSQL.
type ServiceConfigStore struct {
	db *sql.DB
}

// NewServiceConfigStore creates a new PostgreSQL-backed service config store.
func NewServiceConfigStore(db *sql.DB) *ServiceConfigStore {
	return &ServiceConfigStore{db: db}
}

const serviceConfigColumns = `id, provider_type, enabled, is_primary, settings, last_synced_at, created_at, updated_at`

// List returns all configurations ordered by creation time.
func (s *ServiceConfigStore) List(ctx context.Context) ([]*domain.ServiceConfig, error) {
	query := `SELECT ` + serviceConfigColumns + ` FROM service_configs ORDER BY created_at, id`

	rows, err := s.db.QueryContext(ctx, query)
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

// Get retrieves a configuration by ID.
func (s *ServiceConfigStore) Get(ctx context.Context, id string) (*domain.ServiceConfig, error) {
	query := `SELECT ` + serviceConfigColumns + ` FROM service_configs WHERE id = $1`

	cfg, err := scanServiceConfig(s.db.QueryRowContext(ctx, query, id))
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil // Not found returns nil, not error
	}
	if err != nil {
		return nil, err
	}
	return cfg, nil
}

// Insert stores a new configuration.
func (s *ServiceConfigStore) Insert(ctx context.Context, cfg *domain.ServiceConfig) error {
	settings, err := cfg.MarshalSettings()
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	query := `
		INSERT INTO service_configs (
			id, provider_type, enabled, is_primary, settings,
			last_synced_at, created_at, updated_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`

	_, err = s.db.ExecContext(ctx, query,
		cfg.ID,
		cfg.ProviderType,
		cfg.Enabled,
		cfg.Primary,
		settings,
		nullTime(cfg.LastSyncedAt),
		cfg.CreatedAt,
		cfg.UpdatedAt,
	)
	if err != nil {
		var pqErr *pq.Error
		if errors.As(err, &pqErr) && pqErr.Code == uniqueViolation {
			return fmt.Errorf("%w: service config %s already exists", domain.ErrInvalidInput, cfg.ID)
		}
		return fmt.Errorf("insert service config: %w", err)
	}

	return nil
}

// Save updates an existing configuration.
func (s *ServiceConfigStore) Save(ctx context.Context, cfg *domain.ServiceConfig) error {
	settings, err := cfg.MarshalSettings()
	if err != nil {
		return fmt.Errorf("marshal settings: %w", err)
	}

	query := `
		UPDATE service_configs SET
			enabled = $2,
			is_primary = $3,
			settings = $4,
			last_synced_at = $5,
			updated_at = $6
		WHERE id = $1
	`

	result, err := s.db.ExecContext(ctx, query,
		cfg.ID,
		cfg.Enabled,
		cfg.Primary,
		settings,
		nullTime(cfg.LastSyncedAt),
		cfg.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("save service config: %w", err)
	}

	return requireRow(result)
}

// Delete removes a configuration.
func (s *ServiceConfigStore) Delete(ctx context.Context, id string) error {
	result, err := s.db.ExecContext(ctx, "DELETE FROM service_configs WHERE id = $1", id)
	if err != nil {
		return fmt.Errorf("delete service config: %w", err)
	}
	return requireRow(result)
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanServiceConfig(row rowScanner) (*domain.ServiceConfig, error) {
	var cfg domain.ServiceConfig
	var settings []byte
	var lastSynced sql.NullTime

	err := row.Scan(
		&cfg.ID,
		&cfg.ProviderType,
		&cfg.Enabled,
		&cfg.Primary,
		&settings,
		&lastSynced,
		&cfg.CreatedAt,
		&cfg.UpdatedAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, err
	}
	if err != nil {
		return nil, fmt.Errorf("scan service config: %w", err)
	}

	if err := cfg.UnmarshalSettings(settings); err != nil {
		return nil, fmt.Errorf("unmarshal settings: %w", err)
	}
	cfg.LastSyncedAt = timePtr(lastSynced)

	return &cfg, nil
}

func requireRow(result sql.Result) error {
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("check rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return domain.ErrNotFound
	}
	return nil
}
