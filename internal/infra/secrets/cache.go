// Where: internal/infra/secrets/cache.go
// What: TTL cache in front of a Store.
// Why: deploy and env files both read the same group within one run.
package secrets

import (
	"context"
	"sync"
	"time"
)

type cacheEntry struct {
	value      string
	expiration time.Time
}

// Cached wraps a Store and memoizes successful Get calls for ttl.
// It is safe for concurrent use.
type Cached struct {
	store Store
	ttl   time.Duration
	now   func() time.Time

	mu      sync.Mutex
	entries map[string]cacheEntry
}

// NewCached returns store behind a cache with the given ttl.
func NewCached(store Store, ttl time.Duration) *Cached {
	return &Cached{
		store:   store,
		ttl:     ttl,
		now:     time.Now,
		entries: map[string]cacheEntry{},
	}
}

func (c *Cached) Get(ctx context.Context, id string) (string, error) {
	c.mu.Lock()
	entry, ok := c.entries[id]
	if ok && c.now().Before(entry.expiration) {
		c.mu.Unlock()
		return entry.value, nil
	}
	delete(c.entries, id)
	c.mu.Unlock()

	value, err := c.store.Get(ctx, id)
	if err != nil {
		return "", err
	}

	c.mu.Lock()
	c.entries[id] = cacheEntry{value: value, expiration: c.now().Add(c.ttl)}
	c.mu.Unlock()
	return value, nil
}

// List is not cached.
func (c *Cached) List(ctx context.Context, prefix string) ([]string, error) {
	return c.store.List(ctx, prefix)
}

// Len returns the number of unexpired entries.
func (c *Cached) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	now := c.now()
	count := 0
	for id, entry := range c.entries {
		if now.Before(entry.expiration) {
			count++
			continue
		}
		delete(c.entries, id)
	}
	return count
}
