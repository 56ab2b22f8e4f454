package wallet

import (
	"context"
	"math/big"
	"sync"
	"time"

	"github.com/meterline/meterline/internal/credits"
	"github.com/meterline/meterline/internal/idgen"
	"github.com/meterline/meterline/internal/pagination"
)

// MemoryStore implements Store in memory for demo/testing.
type MemoryStore struct {
	mu      sync.RWMutex
	wallets map[string]*memWallet
	entries []*Entry
}

type memWallet struct {
	balance  *big.Int
	totalIn  *big.Int
	totalOut *big.Int
	frozen   bool
	created  time.Time
	updated  time.Time
}

// NewMemoryStore creates an in-memory wallet store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{wallets: make(map[string]*memWallet)}
}

func (m *MemoryStore) CreateWallet(_ context.Context, tenantID, openingBalance string) (*Wallet, error) {
	bal, ok := credits.Parse(openingBalance)
	if !ok {
		return nil, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	if _, exists := m.wallets[tenantID]; exists {
		return nil, ErrWalletExists
	}
	now := time.Now()
	m.wallets[tenantID] = &memWallet{
		balance:  new(big.Int).Set(bal),
		totalIn:  new(big.Int).Set(bal),
		totalOut: big.NewInt(0),
		created:  now,
		updated:  now,
	}
	return m.snapshotLocked(tenantID), nil
}

func (m *MemoryStore) GetWallet(_ context.Context, tenantID string) (*Wallet, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if _, ok := m.wallets[tenantID]; !ok {
		return nil, ErrWalletNotFound
	}
	return m.snapshotLocked(tenantID), nil
}

func (m *MemoryStore) Credit(_ context.Context, tenantID, amount, entryType, reference, description string) (*Entry, error) {
	amt, ok := credits.Parse(amount)
	if !ok {
		return nil, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.wallets[tenantID]
	if !exists {
		return nil, ErrWalletNotFound
	}
	w.balance.Add(w.balance, amt)
	w.totalIn.Add(w.totalIn, amt)
	w.updated = time.Now()

	return m.appendLocked(tenantID, entryType, credits.Format(amt), reference, description), nil
}

func (m *MemoryStore) Debit(_ context.Context, tenantID, amount, reference, description string) (*Entry, error) {
	amt, ok := credits.Parse(amount)
	if !ok {
		return nil, ErrInvalidAmount
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.wallets[tenantID]
	if !exists {
		return nil, ErrWalletNotFound
	}
	if w.frozen {
		return nil, ErrWalletFrozen
	}
	if w.balance.Cmp(amt) < 0 {
		return nil, ErrInsufficientBalance
	}
	w.balance.Sub(w.balance, amt)
	w.totalOut.Add(w.totalOut, amt)
	w.updated = time.Now()

	neg := new(big.Int).Neg(amt)
	return m.appendLocked(tenantID, EntryDebit, credits.Format(neg), reference, description), nil
}

func (m *MemoryStore) GetHistory(_ context.Context, tenantID string, limit int, cursor *pagination.Cursor) ([]*Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var result []*Entry
	for i := len(m.entries) - 1; i >= 0 && len(result) < limit; i-- {
		e := m.entries[i]
		if e.TenantID != tenantID {
			continue
		}
		if cursor != nil {
			if e.CreatedAt.After(cursor.CreatedAt) {
				continue
			}
			if e.CreatedAt.Equal(cursor.CreatedAt) && e.ID >= cursor.ID {
				continue
			}
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

func (m *MemoryStore) HasReference(_ context.Context, reference string) (bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	for _, e := range m.entries {
		if e.Reference == reference {
			return true, nil
		}
	}
	return false, nil
}

func (m *MemoryStore) SetFrozen(_ context.Context, tenantID string, frozen bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	w, exists := m.wallets[tenantID]
	if !exists {
		return ErrWalletNotFound
	}
	w.frozen = frozen
	w.updated = time.Now()
	return nil
}

func (m *MemoryStore) Reconcile(_ context.Context) (*ReconcileReport, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	walletTotal := big.NewInt(0)
	for _, w := range m.wallets {
		walletTotal.Add(walletTotal, w.balance)
	}
	ledgerTotal := big.NewInt(0)
	for _, e := range m.entries {
		amt, ok := credits.ParseSigned(e.Amount)
		if !ok {
			continue
		}
		ledgerTotal.Add(ledgerTotal, amt)
	}
	drift := new(big.Int).Sub(walletTotal, ledgerTotal)

	return &ReconcileReport{
		WalletTotal: credits.Format(walletTotal),
		LedgerTotal: credits.Format(ledgerTotal),
		Drift:       credits.Format(drift),
		WalletCount: int64(len(m.wallets)),
		EntryCount:  int64(len(m.entries)),
		Consistent:  drift.Sign() == 0,
		CheckedAt:   time.Now().UTC(),
	}, nil
}

// appendLocked records an entry; callers hold m.mu.
func (m *MemoryStore) appendLocked(tenantID, entryType, amount, reference, description string) *Entry {
	e := &Entry{
		ID:          idgen.WithPrefix("le_"),
		TenantID:    tenantID,
		Type:        entryType,
		Amount:      amount,
		Reference:   reference,
		Description: description,
		CreatedAt:   time.Now(),
	}
	m.entries = append(m.entries, e)
	return e
}

// snapshotLocked builds a Wallet view; callers hold m.mu.
func (m *MemoryStore) snapshotLocked(tenantID string) *Wallet {
	w := m.wallets[tenantID]
	return &Wallet{
		TenantID:  tenantID,
		Balance:   credits.Format(w.balance),
		Frozen:    w.frozen,
		TotalIn:   credits.Format(w.totalIn),
		TotalOut:  credits.Format(w.totalOut),
		CreatedAt: w.created,
		UpdatedAt: w.updated,
	}
}
