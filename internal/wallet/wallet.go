// Package wallet tracks tenant credit balances.
//
// Flow:
//  1. Tenant is provisioned with a wallet (optionally seeded with a bonus)
//  2. Top-ups credit the balance
//  3. Metered actions debit the balance atomically
//  4. Failed actions are compensated with a refund credit
//
// Every balance change appends a ledger entry in the same transaction, so
// the wallet balance is always the sum of its entries.
package wallet

import (
	"context"
	"errors"
	"time"

	"github.com/meterline/meterline/internal/pagination"
)

var (
	ErrInsufficientBalance = errors.New("insufficient balance")
	ErrWalletNotFound      = errors.New("wallet not found")
	ErrWalletExists        = errors.New("wallet already exists")
	ErrWalletFrozen        = errors.New("wallet frozen")
	ErrInvalidAmount       = errors.New("invalid amount")
	ErrDuplicateReference  = errors.New("reference already processed")
)

// Entry types recorded in the ledger.
const (
	EntryDebit       = "debit"
	EntryRefund      = "refund"
	EntryTopup       = "topup"
	EntrySignupBonus = "signup_bonus"
	EntryAdjustment  = "adjustment"
)

// Wallet is a tenant's credit balance.
type Wallet struct {
	TenantID  string    `json:"tenantId"`
	Balance   string    `json:"balance"`
	Frozen    bool      `json:"frozen"`
	TotalIn   string    `json:"totalIn"`  // lifetime credits
	TotalOut  string    `json:"totalOut"` // lifetime debits
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Entry is one append-only ledger record. Amount is signed: credits are
// positive, debits negative, so a wallet's entries sum to its balance.
type Entry struct {
	ID          string    `json:"id"`
	TenantID    string    `json:"tenantId"`
	Type        string    `json:"type"`
	Amount      string    `json:"amount"`
	Reference   string    `json:"reference,omitempty"` // action ID, payment intent ID, etc.
	Description string    `json:"description,omitempty"`
	CreatedAt   time.Time `json:"createdAt"`
}

// ReconcileReport compares wallet balances against the entry sums.
type ReconcileReport struct {
	WalletTotal string    `json:"walletTotal"`
	LedgerTotal string    `json:"ledgerTotal"`
	Drift       string    `json:"drift"`
	WalletCount int64     `json:"walletCount"`
	EntryCount  int64     `json:"entryCount"`
	Consistent  bool      `json:"consistent"`
	CheckedAt   time.Time `json:"checkedAt"`
}

// Store persists wallets and ledger entries. Amounts are non-negative
// decimal strings; the store applies the sign by operation.
type Store interface {
	// CreateWallet provisions a wallet with an opening balance. Returns
	// ErrWalletExists when the tenant already has one.
	CreateWallet(ctx context.Context, tenantID, openingBalance string) (*Wallet, error)

	// GetWallet returns ErrWalletNotFound for unknown tenants.
	GetWallet(ctx context.Context, tenantID string) (*Wallet, error)

	// Credit adds amount to the balance and appends an entry, atomically.
	Credit(ctx context.Context, tenantID, amount, entryType, reference, description string) (*Entry, error)

	// Debit subtracts amount, guarded by a conditional update so two
	// concurrent debits can never overdraw. Returns ErrInsufficientBalance,
	// ErrWalletFrozen or ErrWalletNotFound without writing anything.
	Debit(ctx context.Context, tenantID, amount, reference, description string) (*Entry, error)

	// GetHistory returns entries newest first, keyed for cursor pagination.
	GetHistory(ctx context.Context, tenantID string, limit int, cursor *pagination.Cursor) ([]*Entry, error)

	// HasReference reports whether any entry carries this reference.
	// Used to make top-up crediting idempotent.
	HasReference(ctx context.Context, reference string) (bool, error)

	SetFrozen(ctx context.Context, tenantID string, frozen bool) error

	Reconcile(ctx context.Context) (*ReconcileReport, error)
}
