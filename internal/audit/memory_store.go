package audit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps audit events in memory for demo/testing.
type MemoryStore struct {
	events []*Event
	nextID int64
	mu     sync.RWMutex
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Insert(_ context.Context, e *Event) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.nextID++
	cp := *e
	cp.ID = s.nextID
	if cp.CreatedAt.IsZero() {
		cp.CreatedAt = time.Now()
	}
	if cp.Metadata != nil {
		m := make(map[string]string, len(cp.Metadata))
		for k, v := range cp.Metadata {
			m[k] = v
		}
		cp.Metadata = m
	}
	s.events = append(s.events, &cp)
	return nil
}

func (s *MemoryStore) Search(_ context.Context, q Query) ([]*Event, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	limit := q.Limit
	if limit <= 0 {
		limit = 100
	}

	var result []*Event
	// Iterate in reverse for descending order
	for i := len(s.events) - 1; i >= 0 && len(result) < limit; i-- {
		e := s.events[i]
		if q.TenantID != "" && e.TenantID != q.TenantID {
			continue
		}
		if q.EventType != "" && e.EventType != q.EventType {
			continue
		}
		if !q.From.IsZero() && e.CreatedAt.Before(q.From) {
			continue
		}
		if !q.To.IsZero() && e.CreatedAt.After(q.To) {
			continue
		}
		cp := *e
		result = append(result, &cp)
	}
	return result, nil
}

// Events returns all stored events (for testing).
func (s *MemoryStore) Events() []*Event {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*Event, len(s.events))
	copy(result, s.events)
	return result
}
