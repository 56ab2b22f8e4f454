package tenant

import (
	"context"
	"database/sql"
	"encoding/json"

	"github.com/lib/pq"
)

// PostgresStore persists tenants in PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed tenant store.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

func (p *PostgresStore) Create(ctx context.Context, t *Tenant) error {
	settingsJSON, err := json.Marshal(t.Settings)
	if err != nil {
		return err
	}
	_, err = p.db.ExecContext(ctx, `
		INSERT INTO tenants (id, name, slug, persona, plan, status, settings, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		t.ID, t.Name, t.Slug, t.Persona, string(t.Plan), string(t.Status),
		settingsJSON, t.CreatedAt, t.UpdatedAt,
	)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return ErrSlugTaken
		}
		return err
	}
	return nil
}

func (p *PostgresStore) Get(ctx context.Context, id string) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT id, name, slug, persona, plan, status, settings, created_at, updated_at
		FROM tenants WHERE id = $1`, id))
}

func (p *PostgresStore) GetBySlug(ctx context.Context, slug string) (*Tenant, error) {
	return p.scanTenant(p.db.QueryRowContext(ctx, `
		SELECT id, name, slug, persona, plan, status, settings, created_at, updated_at
		FROM tenants WHERE slug = $1`, slug))
}

func (p *PostgresStore) Update(ctx context.Context, t *Tenant) error {
	settingsJSON, err := json.Marshal(t.Settings)
	if err != nil {
		return err
	}
	result, err := p.db.ExecContext(ctx, `
		UPDATE tenants SET name = $1, persona = $2, plan = $3, status = $4,
			settings = $5, updated_at = $6
		WHERE id = $7`,
		t.Name, t.Persona, string(t.Plan), string(t.Status),
		settingsJSON, t.UpdatedAt, t.ID,
	)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return ErrTenantNotFound
	}
	return nil
}

func (p *PostgresStore) List(ctx context.Context, limit int) ([]*Tenant, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := p.db.QueryContext(ctx, `
		SELECT id, name, slug, persona, plan, status, settings, created_at, updated_at
		FROM tenants ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var tenants []*Tenant
	for rows.Next() {
		t, err := scanTenantRow(rows)
		if err != nil {
			return nil, err
		}
		tenants = append(tenants, t)
	}
	return tenants, rows.Err()
}

func (p *PostgresStore) scanTenant(row *sql.Row) (*Tenant, error) {
	t := &Tenant{}
	var (
		plan, status string
		persona      sql.NullString
		settingsJSON []byte
	)
	err := row.Scan(&t.ID, &t.Name, &t.Slug, &persona, &plan, &status, &settingsJSON,
		&t.CreatedAt, &t.UpdatedAt)
	if err == sql.ErrNoRows {
		return nil, ErrTenantNotFound
	}
	if err != nil {
		return nil, err
	}
	t.Persona = persona.String
	t.Plan = Plan(plan)
	t.Status = Status(status)
	if len(settingsJSON) > 0 {
		_ = json.Unmarshal(settingsJSON, &t.Settings)
	}
	return t, nil
}

func scanTenantRow(rows *sql.Rows) (*Tenant, error) {
	t := &Tenant{}
	var (
		plan, status string
		persona      sql.NullString
		settingsJSON []byte
	)
	err := rows.Scan(&t.ID, &t.Name, &t.Slug, &persona, &plan, &status, &settingsJSON,
		&t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		return nil, err
	}
	t.Persona = persona.String
	t.Plan = Plan(plan)
	t.Status = Status(status)
	if len(settingsJSON) > 0 {
		_ = json.Unmarshal(settingsJSON, &t.Settings)
	}
	return t, nil
}

// Migrate creates the tenants table (used in dev/test; prod uses migration files).
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS tenants (
			id          TEXT PRIMARY KEY,
			name        TEXT NOT NULL,
			slug        TEXT NOT NULL UNIQUE,
			persona     TEXT,
			plan        TEXT NOT NULL DEFAULT 'free',
			status      TEXT NOT NULL DEFAULT 'active',
			settings    JSONB NOT NULL DEFAULT '{}',
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_tenants_slug ON tenants(slug);
		CREATE INDEX IF NOT EXISTS idx_tenants_status ON tenants(status);
	`)
	return err
}

var _ Store = (*PostgresStore)(nil)
