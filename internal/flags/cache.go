package flags

import (
	"context"
	"sync"
	"time"
)

// CachedStore wraps a Store with a read-through TTL cache. Admin toggles go
// through the same wrapper and invalidate immediately, so a single process
// never serves its own stale writes; other processes converge within the TTL.
type CachedStore struct {
	inner Store
	ttl   time.Duration

	mu         sync.RWMutex
	flags      *Flags
	flagsUntil time.Time
	overrides  map[string]overrideEntry
}

type overrideEntry struct {
	values map[Category]bool
	until  time.Time
}

// NewCachedStore wraps inner with a TTL cache. A zero ttl disables caching
// (every read hits the inner store).
func NewCachedStore(inner Store, ttl time.Duration) *CachedStore {
	return &CachedStore{
		inner:     inner,
		ttl:       ttl,
		overrides: make(map[string]overrideEntry),
	}
}

// GetFlags returns cached global flags, refreshing after the TTL.
func (c *CachedStore) GetFlags(ctx context.Context) (*Flags, error) {
	now := time.Now()

	c.mu.RLock()
	if c.flags != nil && now.Before(c.flagsUntil) {
		f := *c.flags
		c.mu.RUnlock()
		CacheHitsTotal.WithLabelValues("flags").Inc()
		return &f, nil
	}
	c.mu.RUnlock()

	CacheMissesTotal.WithLabelValues("flags").Inc()
	fresh, err := c.inner.GetFlags(ctx)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.flags = fresh
	c.flagsUntil = now.Add(c.ttl)
	c.mu.Unlock()

	f := *fresh
	return &f, nil
}

// SetFlags writes through and invalidates the cache.
func (c *CachedStore) SetFlags(ctx context.Context, f *Flags) (*Flags, error) {
	updated, err := c.inner.SetFlags(ctx, f)
	if err != nil {
		return nil, err
	}
	c.Invalidate()
	return updated, nil
}

// GetOverrides returns cached tenant overrides, refreshing after the TTL.
func (c *CachedStore) GetOverrides(ctx context.Context, tenantID string) (map[Category]bool, error) {
	now := time.Now()

	c.mu.RLock()
	entry, ok := c.overrides[tenantID]
	c.mu.RUnlock()
	if ok && now.Before(entry.until) {
		CacheHitsTotal.WithLabelValues("overrides").Inc()
		return copyOverrides(entry.values), nil
	}

	CacheMissesTotal.WithLabelValues("overrides").Inc()
	fresh, err := c.inner.GetOverrides(ctx, tenantID)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.overrides[tenantID] = overrideEntry{values: copyOverrides(fresh), until: now.Add(c.ttl)}
	c.mu.Unlock()

	return fresh, nil
}

// SetOverride writes through and invalidates the tenant's cache entry.
func (c *CachedStore) SetOverride(ctx context.Context, tenantID string, cat Category, enabled bool) error {
	if err := c.inner.SetOverride(ctx, tenantID, cat, enabled); err != nil {
		return err
	}
	c.invalidateTenant(tenantID)
	return nil
}

// ClearOverride writes through and invalidates the tenant's cache entry.
func (c *CachedStore) ClearOverride(ctx context.Context, tenantID string, cat Category) error {
	if err := c.inner.ClearOverride(ctx, tenantID, cat); err != nil {
		return err
	}
	c.invalidateTenant(tenantID)
	return nil
}

// Invalidate drops all cached state. Exposed for admin tooling.
func (c *CachedStore) Invalidate() {
	c.mu.Lock()
	c.flags = nil
	c.overrides = make(map[string]overrideEntry)
	c.mu.Unlock()
}

func (c *CachedStore) invalidateTenant(tenantID string) {
	c.mu.Lock()
	delete(c.overrides, tenantID)
	c.mu.Unlock()
}

func copyOverrides(m map[Category]bool) map[Category]bool {
	cp := make(map[Category]bool, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
