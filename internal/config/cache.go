package config

import (
	"context"
	"sync"
	"time"
)

// Loader loads the effective configuration for a chat. *Store implements
// it; tests substitute an in-memory loader.
type Loader interface {
	Load(ctx context.Context, chatID int64) (*ChatConfig, error)
}

// DefaultCacheTTL bounds how stale a cached configuration can get without
// an explicit invalidation.
const DefaultCacheTTL = 5 * time.Minute

type cacheEntry struct {
	cfg      *ChatConfig
	loadedAt time.Time
}

// Cache is a TTL read-through cache in front of a Loader. Configuration is
// read on every event but changes rarely; administrative writes publish an
// invalidation so changes take effect immediately rather than at TTL
// expiry.
type Cache struct {
	loader Loader
	ttl    time.Duration

	mu      sync.RWMutex
	entries map[int64]cacheEntry
}

// NewCache creates a cache over the given loader. A non-positive ttl falls
// back to DefaultCacheTTL.
func NewCache(loader Loader, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	return &Cache{
		loader:  loader,
		ttl:     ttl,
		entries: make(map[int64]cacheEntry),
	}
}

// Get returns the chat's configuration, loading it on a miss or after TTL
// expiry. On a load error a stale entry is returned if one exists, so a
// storage blip degrades to stale configuration instead of no moderation.
func (c *Cache) Get(ctx context.Context, chatID int64) (*ChatConfig, error) {
	c.mu.RLock()
	entry, ok := c.entries[chatID]
	c.mu.RUnlock()

	if ok && time.Since(entry.loadedAt) < c.ttl {
		return entry.cfg, nil
	}

	cfg, err := c.loader.Load(ctx, chatID)
	if err != nil {
		if ok {
			return entry.cfg, nil
		}
		return nil, err
	}

	c.mu.Lock()
	c.entries[chatID] = cacheEntry{cfg: cfg, loadedAt: time.Now()}
	c.mu.Unlock()
	return cfg, nil
}

// Invalidate drops the cached entry for a chat. The next Get reloads.
func (c *Cache) Invalidate(chatID int64) {
	c.mu.Lock()
	delete(c.entries, chatID)
	c.mu.Unlock()
}

// InvalidateAll clears the entire cache.
func (c *Cache) InvalidateAll() {
	c.mu.Lock()
	c.entries = make(map[int64]cacheEntry)
	c.mu.Unlock()
}
