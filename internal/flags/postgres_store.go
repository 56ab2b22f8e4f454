package flags

import (
	"context"
	"database/sql"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL. Global flags live in a
// single row; tenant overrides are one row per (tenant, category).
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed flag store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the feature flag tables
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS feature_flags (
			id               SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			signups_enabled  BOOLEAN NOT NULL DEFAULT TRUE,
			ai_enabled       BOOLEAN NOT NULL DEFAULT TRUE,
			payments_enabled BOOLEAN NOT NULL DEFAULT TRUE,
			updated_at       TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE TABLE IF NOT EXISTS tenant_flag_overrides (
			tenant_id  VARCHAR(64) NOT NULL,
			category   VARCHAR(16) NOT NULL,
			enabled    BOOLEAN NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			PRIMARY KEY (tenant_id, category)
		);
	`)
	return err
}

// GetFlags returns the global flags, or enabled defaults when unset
func (p *PostgresStore) GetFlags(ctx context.Context) (*Flags, error) {
	f := &Flags{}
	err := p.db.QueryRowContext(ctx, `
		SELECT signups_enabled, ai_enabled, payments_enabled, updated_at
		FROM feature_flags WHERE id = 1
	`).Scan(&f.SignupsEnabled, &f.AIEnabled, &f.PaymentsEnabled, &f.UpdatedAt)

	if err == sql.ErrNoRows {
		return DefaultFlags(), nil
	}
	if err != nil {
		return nil, err
	}
	return f, nil
}

// SetFlags upserts the singleton flag row
func (p *PostgresStore) SetFlags(ctx context.Context, f *Flags) (*Flags, error) {
	updated := *f
	err := p.db.QueryRowContext(ctx, `
		INSERT INTO feature_flags (id, signups_enabled, ai_enabled, payments_enabled, updated_at)
		VALUES (1, $1, $2, $3, NOW())
		ON CONFLICT (id) DO UPDATE SET
			signups_enabled  = $1,
			ai_enabled       = $2,
			payments_enabled = $3,
			updated_at       = NOW()
		RETURNING updated_at
	`, f.SignupsEnabled, f.AIEnabled, f.PaymentsEnabled).Scan(&updated.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update feature flags: %w", err)
	}
	return &updated, nil
}

// GetOverrides returns all category overrides for a tenant
func (p *PostgresStore) GetOverrides(ctx context.Context, tenantID string) (map[Category]bool, error) {
	rows, err := p.db.QueryContext(ctx, `
		SELECT category, enabled FROM tenant_flag_overrides WHERE tenant_id = $1
	`, tenantID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	overrides := make(map[Category]bool)
	for rows.Next() {
		var (
			cat     string
			enabled bool
		)
		if err := rows.Scan(&cat, &enabled); err != nil {
			return nil, err
		}
		overrides[Category(cat)] = enabled
	}
	return overrides, rows.Err()
}

// SetOverride upserts a tenant's category override
func (p *PostgresStore) SetOverride(ctx context.Context, tenantID string, cat Category, enabled bool) error {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO tenant_flag_overrides (tenant_id, category, enabled, updated_at)
		VALUES ($1, $2, $3, NOW())
		ON CONFLICT (tenant_id, category) DO UPDATE SET
			enabled    = $3,
			updated_at = NOW()
	`, tenantID, string(cat), enabled)
	if err != nil {
		return fmt.Errorf("failed to set flag override: %w", err)
	}
	return nil
}

// ClearOverride removes a tenant's category override
func (p *PostgresStore) ClearOverride(ctx context.Context, tenantID string, cat Category) error {
	_, err := p.db.ExecContext(ctx, `
		DELETE FROM tenant_flag_overrides WHERE tenant_id = $1 AND category = $2
	`, tenantID, string(cat))
	if err != nil {
		return fmt.Errorf("failed to clear flag override: %w", err)
	}
	return nil
}
