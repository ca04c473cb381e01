package auth

import (
	"sync"
	"time"
)

// DefaultRoleCacheTTL is how long a resolved role stays fresh.
const DefaultRoleCacheTTL = 5 * time.Minute

// RoleCache stores resolved RoleData keyed by identity id. Implementations
// must be safe for concurrent use; the resolver and explicit invalidation
// calls both mutate it.
type RoleCache interface {
	Get(identityID string) (RoleData, bool)
	Set(identityID string, data RoleData)
	Invalidate(identityID string)
	Purge()
}

type roleCacheEntry struct {
	data     RoleData
	storedAt time.Time
}

type memoryRoleCache struct {
	mu      sync.RWMutex
	entries map[string]roleCacheEntry
	ttl     time.Duration
	now     func() time.Time
}

// RoleCacheOption configures the in-memory role cache.
type RoleCacheOption func(*memoryRoleCache)

// WithRoleCacheTTL overrides the entry freshness window.
func WithRoleCacheTTL(ttl time.Duration) RoleCacheOption {
	return func(c *memoryRoleCache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// WithRoleCacheClock injects a deterministic clock (useful for tests).
func WithRoleCacheClock(now func() time.Time) RoleCacheOption {
	return func(c *memoryRoleCache) {
		if now != nil {
			c.now = now
		}
	}
}

// NewMemoryRoleCache returns a TTL cache scoped to the instance, not the
// package, so independent sessions never bleed state into each other.
func NewMemoryRoleCache(opts ...RoleCacheOption) RoleCache {
	c := &memoryRoleCache{
		entries: make(map[string]roleCacheEntry),
		ttl:     DefaultRoleCacheTTL,
		now:     time.Now,
	}
	for _, opt := range opts {
		if opt != nil {
			opt(c)
		}
	}
	return c
}

func (c *memoryRoleCache) Get(identityID string) (RoleData, bool) {
	c.mu.RLock()
	entry, ok := c.entries[identityID]
	c.mu.RUnlock()

	if !ok {
		return RoleData{}, false
	}

	if c.now().Sub(entry.storedAt) >= c.ttl {
		c.Invalidate(identityID)
		return RoleData{}, false
	}

	return entry.data, true
}

func (c *memoryRoleCache) Set(identityID string, data RoleData) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[identityID] = roleCacheEntry{data: data, storedAt: c.now()}
}

func (c *memoryRoleCache) Invalidate(identityID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.entries, identityID)
}

func (c *memoryRoleCache) Purge() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]roleCacheEntry)
}
