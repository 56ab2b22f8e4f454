package wallet

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/lib/pq"

	"github.com/meterline/meterline/internal/idgen"
	"github.com/meterline/meterline/internal/pagination"
)

// PostgresStore implements Store with PostgreSQL
type PostgresStore struct {
	db *sql.DB
}

// NewPostgresStore creates a new PostgreSQL-backed wallet store
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{db: db}
}

// Migrate creates the wallet tables with NUMERIC columns
func (p *PostgresStore) Migrate(ctx context.Context) error {
	_, err := p.db.ExecContext(ctx, `
		CREATE TABLE IF NOT EXISTS wallets (
			tenant_id   TEXT PRIMARY KEY,
			balance     NUMERIC(20,4) NOT NULL DEFAULT 0,
			frozen      BOOLEAN NOT NULL DEFAULT FALSE,
			total_in    NUMERIC(20,4) NOT NULL DEFAULT 0,
			total_out   NUMERIC(20,4) NOT NULL DEFAULT 0,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
			CONSTRAINT chk_balance_nonneg  CHECK (balance >= 0),
			CONSTRAINT chk_total_in_nonneg CHECK (total_in >= 0)
		);

		CREATE TABLE IF NOT EXISTS ledger_entries (
			id          VARCHAR(36) PRIMARY KEY,
			tenant_id   TEXT NOT NULL,
			type        VARCHAR(20) NOT NULL,
			amount      NUMERIC(20,4) NOT NULL,
			reference   VARCHAR(255),
			description TEXT,
			created_at  TIMESTAMPTZ NOT NULL DEFAULT NOW()
		);

		CREATE INDEX IF NOT EXISTS idx_ledger_tenant ON ledger_entries(tenant_id, created_at DESC);
		CREATE UNIQUE INDEX IF NOT EXISTS idx_ledger_reference ON ledger_entries(reference) WHERE reference IS NOT NULL;
	`)
	return err
}

// CreateWallet provisions a wallet row.
func (p *PostgresStore) CreateWallet(ctx context.Context, tenantID, openingBalance string) (*Wallet, error) {
	_, err := p.db.ExecContext(ctx, `
		INSERT INTO wallets (tenant_id, balance, total_in, created_at, updated_at)
		VALUES ($1, $2::NUMERIC(20,4), $2::NUMERIC(20,4), NOW(), NOW())
	`, tenantID, openingBalance)
	if err != nil {
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrWalletExists
		}
		return nil, fmt.Errorf("failed to create wallet: %w", err)
	}
	return p.GetWallet(ctx, tenantID)
}

// GetWallet retrieves a tenant's wallet
func (p *PostgresStore) GetWallet(ctx context.Context, tenantID string) (*Wallet, error) {
	w := &Wallet{TenantID: tenantID}

	err := p.db.QueryRowContext(ctx, `
		SELECT balance, frozen, total_in, total_out, created_at, updated_at
		FROM wallets WHERE tenant_id = $1
	`, tenantID).Scan(&w.Balance, &w.Frozen, &w.TotalIn, &w.TotalOut, &w.CreatedAt, &w.UpdatedAt)

	if err == sql.ErrNoRows {
		return nil, ErrWalletNotFound
	}
	if err != nil {
		return nil, err
	}
	return w, nil
}

// Credit adds funds to a wallet and appends a positive entry
func (p *PostgresStore) Credit(ctx context.Context, tenantID, amount, entryType, reference, description string) (*Entry, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET
			balance    = balance  + $2::NUMERIC(20,4),
			total_in   = total_in + $2::NUMERIC(20,4),
			updated_at = NOW()
		WHERE tenant_id = $1
	`, tenantID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return nil, ErrWalletNotFound
	}

	entry := &Entry{
		ID:          idgen.WithPrefix("le_"),
		TenantID:    tenantID,
		Type:        entryType,
		Amount:      amount,
		Reference:   reference,
		Description: description,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (id, tenant_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, $3, $4::NUMERIC(20,4), NULLIF($5, ''), $6, NOW())
		RETURNING created_at
	`, entry.ID, tenantID, entryType, amount, reference, description).Scan(&entry.CreatedAt)
	if err != nil {
		// The unique index on reference is the cross-process idempotency
		// guarantee. A replayed reference fails here and rolls back the
		// balance update with it.
		if pqErr, ok := err.(*pq.Error); ok && pqErr.Code == "23505" {
			return nil, ErrDuplicateReference
		}
		return nil, fmt.Errorf("failed to record entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// Debit removes funds with a conditional update. The WHERE clause carries
// the sufficiency check, so concurrent debits serialize on the row and the
// loser of a race sees zero rows instead of a negative balance. The CHECK
// constraint on balance >= 0 is the backstop.
func (p *PostgresStore) Debit(ctx context.Context, tenantID, amount, reference, description string) (*Entry, error) {
	tx, err := p.db.BeginTx(ctx, &sql.TxOptions{Isolation: sql.LevelSerializable})
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()

	result, err := tx.ExecContext(ctx, `
		UPDATE wallets SET
			balance    = balance   - $2::NUMERIC(20,4),
			total_out  = total_out + $2::NUMERIC(20,4),
			updated_at = NOW()
		WHERE tenant_id = $1 AND NOT frozen AND balance >= $2::NUMERIC(20,4)
	`, tenantID, amount)
	if err != nil {
		return nil, fmt.Errorf("failed to update balance: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		// Zero rows: missing wallet, frozen wallet, or not enough funds.
		var frozen bool
		err := tx.QueryRowContext(ctx, `SELECT frozen FROM wallets WHERE tenant_id = $1`, tenantID).Scan(&frozen)
		if err == sql.ErrNoRows {
			return nil, ErrWalletNotFound
		}
		if err != nil {
			return nil, err
		}
		if frozen {
			return nil, ErrWalletFrozen
		}
		return nil, ErrInsufficientBalance
	}

	entry := &Entry{
		ID:          idgen.WithPrefix("le_"),
		TenantID:    tenantID,
		Type:        EntryDebit,
		Amount:      "-" + amount,
		Reference:   reference,
		Description: description,
	}
	err = tx.QueryRowContext(ctx, `
		INSERT INTO ledger_entries (id, tenant_id, type, amount, reference, description, created_at)
		VALUES ($1, $2, $3, -($4::NUMERIC(20,4)), NULLIF($5, ''), $6, NOW())
		RETURNING created_at
	`, entry.ID, tenantID, EntryDebit, amount, reference, description).Scan(&entry.CreatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to record entry: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return nil, err
	}
	return entry, nil
}

// GetHistory retrieves ledger entries for a tenant, newest first
func (p *PostgresStore) GetHistory(ctx context.Context, tenantID string, limit int, cursor *pagination.Cursor) ([]*Entry, error) {
	var rows *sql.Rows
	var err error

	if cursor != nil {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, tenant_id, type, amount, reference, description, created_at
			FROM ledger_entries
			WHERE tenant_id = $1 AND (created_at, id) < ($2, $3)
			ORDER BY created_at DESC, id DESC
			LIMIT $4
		`, tenantID, cursor.CreatedAt, cursor.ID, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `
			SELECT id, tenant_id, type, amount, reference, description, created_at
			FROM ledger_entries
			WHERE tenant_id = $1
			ORDER BY created_at DESC, id DESC
			LIMIT $2
		`, tenantID, limit)
	}
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	var entries []*Entry
	for rows.Next() {
		e := &Entry{}
		var reference, description sql.NullString
		if err := rows.Scan(&e.ID, &e.TenantID, &e.Type, &e.Amount, &reference, &description, &e.CreatedAt); err != nil {
			return nil, err
		}
		e.Reference = reference.String
		e.Description = description.String
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// HasReference checks if an entry with this reference was already recorded
func (p *PostgresStore) HasReference(ctx context.Context, reference string) (bool, error) {
	var count int
	err := p.db.QueryRowContext(ctx, `
		SELECT COUNT(*) FROM ledger_entries WHERE reference = $1
	`, reference).Scan(&count)
	return count > 0, err
}

// SetFrozen toggles the freeze switch on a wallet
func (p *PostgresStore) SetFrozen(ctx context.Context, tenantID string, frozen bool) error {
	result, err := p.db.ExecContext(ctx, `
		UPDATE wallets SET frozen = $2, updated_at = NOW() WHERE tenant_id = $1
	`, tenantID, frozen)
	if err != nil {
		return err
	}
	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrWalletNotFound
	}
	return nil
}

// Reconcile compares the sum of wallet balances against the sum of entries.
func (p *PostgresStore) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report := &ReconcileReport{CheckedAt: time.Now().UTC()}

	err := p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(balance), 0)::TEXT, COUNT(*) FROM wallets
	`).Scan(&report.WalletTotal, &report.WalletCount)
	if err != nil {
		return nil, err
	}

	err = p.db.QueryRowContext(ctx, `
		SELECT COALESCE(SUM(amount), 0)::TEXT, COUNT(*) FROM ledger_entries
	`).Scan(&report.LedgerTotal, &report.EntryCount)
	if err != nil {
		return nil, err
	}

	var drift string
	err = p.db.QueryRowContext(ctx, `
		SELECT ((SELECT COALESCE(SUM(balance), 0) FROM wallets) -
		        (SELECT COALESCE(SUM(amount), 0) FROM ledger_entries))::TEXT
	`).Scan(&drift)
	if err != nil {
		return nil, err
	}
	report.Drift = drift
	report.Consistent = drift == "0" || drift == "0.0000"
	return report, nil
}
