package flags

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for demo mode and tests.
type MemoryStore struct {
	flags     *Flags
	overrides map[string]map[Category]bool
	mu        sync.RWMutex
}

// NewMemoryStore creates an in-memory flag store with default (all enabled) flags.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		overrides: make(map[string]map[Category]bool),
	}
}

func (m *MemoryStore) GetFlags(_ context.Context) (*Flags, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.flags == nil {
		return DefaultFlags(), nil
	}
	f := *m.flags
	return &f, nil
}

func (m *MemoryStore) SetFlags(_ context.Context, f *Flags) (*Flags, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	cp := *f
	cp.UpdatedAt = time.Now().UTC()
	m.flags = &cp
	out := cp
	return &out, nil
}

func (m *MemoryStore) GetOverrides(_ context.Context, tenantID string) (map[Category]bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	result := make(map[Category]bool, len(m.overrides[tenantID]))
	for k, v := range m.overrides[tenantID] {
		result[k] = v
	}
	return result, nil
}

func (m *MemoryStore) SetOverride(_ context.Context, tenantID string, cat Category, enabled bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.overrides[tenantID] == nil {
		m.overrides[tenantID] = make(map[Category]bool)
	}
	m.overrides[tenantID][cat] = enabled
	return nil
}

func (m *MemoryStore) ClearOverride(_ context.Context, tenantID string, cat Category) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	delete(m.overrides[tenantID], cat)
	return nil
}
