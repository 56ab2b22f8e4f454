package pricing

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore implements Store with PostgreSQL. The rules live in a single
// row guarded by a CHECK (id = 1) constraint.
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed pricing store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the pricing_rules table
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS pricing_rules (
			id                  SMALLINT PRIMARY KEY DEFAULT 1 CHECK (id = 1),
			cost_per_1k_tokens  NUMERIC(20,4) NOT NULL CHECK (cost_per_1k_tokens > 0),
			action_multipliers  JSONB NOT NULL DEFAULT '{}',
			persona_multipliers JSONB NOT NULL DEFAULT '{}',
			version             BIGINT NOT NULL DEFAULT 1,
			updated_at          TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
	`)
	return err
}

// GetRules returns the active pricing rules
func (p *PostgresStore) GetRules(ctx context.Context) (*Rules, error) {
	var (
		r          Rules
		actionJSON []byte
		personJSON []byte
	)
	err := p.db.QueryRowContext(ctx, `
		SELECT cost_per_1k_tokens, action_multipliers, persona_multipliers, version, updated_at
		FROM pricing_rules WHERE id = 1
	`).Scan(&r.CostPerThousandTokens, &actionJSON, &personJSON, &r.Version, &r.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrRulesNotFound
	}
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal(actionJSON, &r.ActionMultipliers); err != nil {
		return nil, fmt.Errorf("failed to decode action multipliers: %w", err)
	}
	if err := json.Unmarshal(personJSON, &r.PersonaMultipliers); err != nil {
		return nil, fmt.Errorf("failed to decode persona multipliers: %w", err)
	}
	return &r, nil
}

// UpdateRules upserts the singleton rules row and bumps the version
func (p *PostgresStore) UpdateRules(ctx context.Context, rules *Rules) (*Rules, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	actionJSON, err := json.Marshal(multiplierMap(rules.ActionMultipliers))
	if err != nil {
		return nil, fmt.Errorf("failed to encode action multipliers: %w", err)
	}
	personJSON, err := json.Marshal(multiplierMap(rules.PersonaMultipliers))
	if err != nil {
		return nil, fmt.Errorf("failed to encode persona multipliers: %w", err)
	}

	updated := *rules
	err = p.db.QueryRowContext(ctx, `
		INSERT INTO pricing_rules (id, cost_per_1k_tokens, action_multipliers, persona_multipliers, version, updated_at)
		VALUES (1, $1::NUMERIC(20,4), $2::JSONB, $3::JSONB, 1, NOW())
		ON CONFLICT (id) DO UPDATE SET
			cost_per_1k_tokens  = $1::NUMERIC(20,4),
			action_multipliers  = $2::JSONB,
			persona_multipliers = $3::JSONB,
			version             = pricing_rules.version + 1,
			updated_at          = NOW()
		RETURNING version, updated_at
	`, rules.CostPerThousandTokens, actionJSON, personJSON).Scan(&updated.Version, &updated.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to update pricing rules: %w", err)
	}

	return &updated, nil
}

// multiplierMap normalizes nil maps to empty so JSONB columns never hold null.
func multiplierMap(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}
