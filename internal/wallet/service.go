package wallet

import (
	"context"
	"errors"
	"strconv"
	"time"

	"github.com/meterline/meterline/internal/credits"
	"github.com/meterline/meterline/internal/pagination"
	"github.com/meterline/meterline/internal/syncutil"
)

// Service validates amounts and fronts the store for the rest of the system.
type Service struct {
	store    Store
	refLocks syncutil.ContextShardedMutex
}

func NewService(store Store) *Service {
	return &Service{store: store}
}

// Provision creates a wallet for a new tenant. A positive signup bonus is
// recorded as the opening balance with its own ledger entry.
func (s *Service) Provision(ctx context.Context, tenantID, signupBonus string) (*Wallet, error) {
	if signupBonus == "" {
		signupBonus = "0"
	}
	bonus, ok := credits.Parse(signupBonus)
	if !ok {
		return nil, ErrInvalidAmount
	}

	w, err := s.store.CreateWallet(ctx, tenantID, "0")
	if err != nil {
		return nil, err
	}

	if bonus.Sign() > 0 {
		if _, err := s.store.Credit(ctx, tenantID, credits.Format(bonus), EntrySignupBonus, "", "signup bonus"); err != nil {
			return nil, err
		}
		return s.store.GetWallet(ctx, tenantID)
	}
	return w, nil
}

// Get returns a tenant's wallet.
func (s *Service) Get(ctx context.Context, tenantID string) (*Wallet, error) {
	return s.store.GetWallet(ctx, tenantID)
}

// HasSufficientBalance reports whether the wallet could cover amount.
// Advisory only; Deduct is the authoritative check.
func (s *Service) HasSufficientBalance(ctx context.Context, tenantID, amount string) (bool, error) {
	amt, ok := credits.Parse(amount)
	if !ok {
		return false, ErrInvalidAmount
	}

	w, err := s.store.GetWallet(ctx, tenantID)
	if err != nil {
		return false, err
	}
	if w.Frozen {
		return false, nil
	}

	bal, _ := credits.Parse(w.Balance)
	return bal.Cmp(amt) >= 0, nil
}

// Deduct atomically charges the wallet. A zero amount still appends an
// entry so the action is visible in the history.
func (s *Service) Deduct(ctx context.Context, tenantID, amount, reference, description string) (*Entry, error) {
	defer observeOp("debit")()

	amt, ok := credits.Parse(amount)
	if !ok {
		return nil, ErrInvalidAmount
	}
	entry, err := s.store.Debit(ctx, tenantID, credits.Format(amt), reference, description)
	if errors.Is(err, ErrInsufficientBalance) {
		InsufficientTotal.Inc()
	}
	return entry, err
}

// Credit adds funds with the given entry type.
func (s *Service) Credit(ctx context.Context, tenantID, amount, entryType, reference, description string) (*Entry, error) {
	defer observeOp("credit")()

	amt, ok := credits.Parse(amount)
	if !ok || amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.store.Credit(ctx, tenantID, credits.Format(amt), entryType, reference, description)
}

// Refund compensates a previously charged action.
func (s *Service) Refund(ctx context.Context, tenantID, amount, reference, description string) (*Entry, error) {
	defer observeOp("refund")()

	amt, ok := credits.Parse(amount)
	if !ok || amt.Sign() <= 0 {
		return nil, ErrInvalidAmount
	}
	return s.store.Credit(ctx, tenantID, credits.Format(amt), EntryRefund, reference, description)
}

// CreditIdempotent credits only if reference has never been seen. Returns
// ErrDuplicateReference on replay; callers treat that as success.
func (s *Service) CreditIdempotent(ctx context.Context, tenantID, amount, entryType, reference, description string) (*Entry, error) {
	if reference == "" {
		return nil, ErrInvalidAmount
	}
	// Concurrent replays of the same reference serialize here so that the
	// check below and the credit that follows act as one step. Webhook
	// providers deliver at least once, often in quick succession.
	unlock, err := s.refLocks.LockContext(ctx, reference)
	if err != nil {
		return nil, err
	}
	defer unlock()

	seen, err := s.store.HasReference(ctx, reference)
	if err != nil {
		return nil, err
	}
	if seen {
		return nil, ErrDuplicateReference
	}
	return s.Credit(ctx, tenantID, amount, entryType, reference, description)
}

// History returns a page of ledger entries plus the next cursor.
func (s *Service) History(ctx context.Context, tenantID string, limit int, cursorStr string) ([]*Entry, string, bool, error) {
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	cursor, err := pagination.Decode(cursorStr)
	if err != nil {
		return nil, "", false, err
	}

	// Fetch one extra row to detect whether another page exists.
	entries, err := s.store.GetHistory(ctx, tenantID, limit+1, cursor)
	if err != nil {
		return nil, "", false, err
	}

	page, next, hasMore := pagination.ComputePage(entries, limit, func(e *Entry) (time.Time, string) {
		return e.CreatedAt, e.ID
	})
	return page, next, hasMore, nil
}

// SetFrozen toggles the wallet freeze switch.
func (s *Service) SetFrozen(ctx context.Context, tenantID string, frozen bool) error {
	return s.store.SetFrozen(ctx, tenantID, frozen)
}

// Reconcile verifies that wallet balances match the entry sums.
func (s *Service) Reconcile(ctx context.Context) (*ReconcileReport, error) {
	report, err := s.store.Reconcile(ctx)
	if err != nil {
		return nil, err
	}
	if drift, err := strconv.ParseFloat(report.Drift, 64); err == nil {
		ReconcileDrift.Set(drift)
	}
	return report, nil
}
