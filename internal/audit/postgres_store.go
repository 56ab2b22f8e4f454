package audit

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
)

// PostgresStore writes audit events to PostgreSQL.
type PostgresStore struct {
	db *sql.DB
}

func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the audit_events table if needed.
func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS audit_events (
			id BIGSERIAL PRIMARY KEY,
			tenant_id TEXT NOT NULL DEFAULT '',
			actor_type TEXT NOT NULL,
			actor_id TEXT NOT NULL DEFAULT '',
			event_type TEXT NOT NULL,
			entity_type TEXT NOT NULL DEFAULT '',
			entity_id TEXT NOT NULL DEFAULT '',
			metadata JSONB NOT NULL DEFAULT '{}',
			request_id TEXT NOT NULL DEFAULT '',
			ip_address TEXT NOT NULL DEFAULT '',
			created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS idx_audit_events_tenant ON audit_events(tenant_id, created_at DESC);
		CREATE INDEX IF NOT EXISTS idx_audit_events_type ON audit_events(event_type, created_at DESC);
	`)
	return err
}

func (s *PostgresStore) Insert(ctx context.Context, e *Event) error {
	meta := e.Metadata
	if meta == nil {
		meta = map[string]string{}
	}
	metaJSON, err := json.Marshal(meta)
	if err != nil {
		return fmt.Errorf("marshal metadata: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO audit_events (tenant_id, actor_type, actor_id, event_type, entity_type, entity_id, metadata, request_id, ip_address, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::JSONB, $8, $9, NOW())
	`, e.TenantID, e.ActorType, e.ActorID, e.EventType, e.EntityType, e.EntityID,
		string(metaJSON), e.RequestID, e.IPAddress)
	return err
}

func (s *PostgresStore) Search(ctx context.Context, q Query) ([]*Event, error) {
	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	query := `SELECT id, tenant_id, actor_type, actor_id, event_type, entity_type, entity_id,
		metadata::TEXT, request_id, ip_address, created_at
		FROM audit_events WHERE 1=1`
	var args []interface{}
	n := 0

	if q.TenantID != "" {
		n++
		query += fmt.Sprintf(" AND tenant_id = $%d", n)
		args = append(args, q.TenantID)
	}
	if q.EventType != "" {
		n++
		query += fmt.Sprintf(" AND event_type = $%d", n)
		args = append(args, q.EventType)
	}
	if !q.From.IsZero() {
		n++
		query += fmt.Sprintf(" AND created_at >= $%d", n)
		args = append(args, q.From)
	}
	if !q.To.IsZero() {
		n++
		query += fmt.Sprintf(" AND created_at <= $%d", n)
		args = append(args, q.To)
	}
	n++
	query += fmt.Sprintf(" ORDER BY created_at DESC, id DESC LIMIT $%d", n)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var events []*Event
	for rows.Next() {
		e := &Event{}
		var metaJSON string
		if err := rows.Scan(&e.ID, &e.TenantID, &e.ActorType, &e.ActorID, &e.EventType,
			&e.EntityType, &e.EntityID, &metaJSON, &e.RequestID, &e.IPAddress, &e.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(metaJSON), &e.Metadata); err != nil {
			return nil, fmt.Errorf("unmarshal metadata: %w", err)
		}
		events = append(events, e)
	}
	return events, rows.Err()
}
