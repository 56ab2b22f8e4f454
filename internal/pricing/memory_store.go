package pricing

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is an in-memory Store for demo mode and tests.
type MemoryStore struct {
	rules *Rules
	mu    sync.RWMutex
}

// NewMemoryStore creates an empty in-memory pricing store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (m *MemoryStore) GetRules(_ context.Context) (*Rules, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if m.rules == nil {
		return nil, ErrRulesNotFound
	}
	cp := cloneRules(m.rules)
	return cp, nil
}

func (m *MemoryStore) UpdateRules(_ context.Context, rules *Rules) (*Rules, error) {
	if err := rules.Validate(); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()

	cp := cloneRules(rules)
	if m.rules == nil {
		cp.Version = 1
	} else {
		cp.Version = m.rules.Version + 1
	}
	cp.UpdatedAt = time.Now().UTC()
	m.rules = cp
	return cloneRules(cp), nil
}

func cloneRules(r *Rules) *Rules {
	cp := *r
	cp.ActionMultipliers = make(map[string]string, len(r.ActionMultipliers))
	for k, v := range r.ActionMultipliers {
		cp.ActionMultipliers[k] = v
	}
	cp.PersonaMultipliers = make(map[string]string, len(r.PersonaMultipliers))
	for k, v := range r.PersonaMultipliers {
		cp.PersonaMultipliers[k] = v
	}
	return &cp
}
