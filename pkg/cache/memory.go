package cache

import (
	"context"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
)

// MemoryConfig configures a MemoryCache.
type MemoryConfig struct {
	// MaxEntries bounds the number of entries; the least recently used entry
	// is evicted first. Defaults to 10000.
	MaxEntries int

	// CleanupInterval is how often expired entries are purged. Defaults to one
	// minute. Expired entries are never returned regardless of cleanup.
	CleanupInterval time.Duration
}

// entry is a single cached value.
type entry struct {
	value     []byte
	expiresAt time.Time // zero = no expiry
	tags      []string
}

func (e *entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && !now.Before(e.expiresAt)
}

// MemoryCache is an in-process Cache backed by an LRU.
type MemoryCache struct {
	// mu serialises all access to items and tags
	mu sync.Mutex

	// items holds the entries keyed by namespace:key
	items *lru.Cache[string, *entry]

	// tags maps a tag to the set of keys associated with it
	tags map[string]map[string]struct{}

	// now returns the current time
	now func() time.Time

	// stopCh signals the cleanup goroutine to stop
	stopCh chan struct{}
	once   sync.Once
}

// NewMemoryCache creates an in-memory cache and starts its cleanup goroutine.
func NewMemoryCache(cfg MemoryConfig) (*MemoryCache, error) {
	if cfg.MaxEntries <= 0 {
		cfg.MaxEntries = 10000
	}
	if cfg.CleanupInterval <= 0 {
		cfg.CleanupInterval = time.Minute
	}

	c := &MemoryCache{
		tags:   make(map[string]map[string]struct{}),
		now:    time.Now,
		stopCh: make(chan struct{}),
	}

	items, err := lru.NewWithEvict[string, *entry](cfg.MaxEntries, c.onEvict)
	if err != nil {
		return nil, fmt.Errorf("failed to create lru: %w", err)
	}
	c.items = items

	go c.cleanupExpired(cfg.CleanupInterval)
	return c, nil
}

// onEvict drops an evicted key from the tag index.
// It is only reached through calls on items, which are made with mu held.
func (c *MemoryCache) onEvict(key string, e *entry) {
	for _, tag := range e.tags {
		keys := c.tags[tag]
		delete(keys, key)
		if len(keys) == 0 {
			delete(c.tags, tag)
		}
	}
}

// Get implements Cache.
func (c *MemoryCache) Get(_ context.Context, namespace, key string) ([]byte, bool, error) {
	k := fullKey(namespace, key)

	c.mu.Lock()
	defer c.mu.Unlock()

	e, ok := c.items.Get(k)
	if !ok {
		return nil, false, nil
	}
	if e.expired(c.now()) {
		c.items.Remove(k)
		return nil, false, nil
	}

	out := make([]byte, len(e.value))
	copy(out, e.value)
	return out, true, nil
}

// Set implements Cache.
func (c *MemoryCache) Set(_ context.Context, namespace, key string, value []byte, ttl time.Duration, tags []string) error {
	k := fullKey(namespace, key)

	e := &entry{
		value: make([]byte, len(value)),
		tags:  append([]string(nil), tags...),
	}
	copy(e.value, value)
	if ttl > 0 {
		e.expiresAt = c.now().Add(ttl)
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	// Replacing a key does not run the eviction callback, so drop the old
	// tags explicitly.
	if old, ok := c.items.Peek(k); ok {
		c.onEvict(k, old)
	}
	c.items.Add(k, e)
	for _, tag := range e.tags {
		keys, ok := c.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			c.tags[tag] = keys
		}
		keys[k] = struct{}{}
	}
	return nil
}

// DeleteByTag implements Cache.
func (c *MemoryCache) DeleteByTag(_ context.Context, tag string) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	keys := c.tags[tag]
	if len(keys) == 0 {
		return 0, nil
	}

	victims := make([]string, 0, len(keys))
	for k := range keys {
		victims = append(victims, k)
	}

	removed := 0
	for _, k := range victims {
		if c.items.Remove(k) {
			removed++
		}
	}
	delete(c.tags, tag)
	return removed, nil
}

// Len returns the number of entries, including expired ones not yet purged.
func (c *MemoryCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.items.Len()
}

// Close stops the cleanup goroutine.
func (c *MemoryCache) Close() error {
	c.once.Do(func() { close(c.stopCh) })
	return nil
}

func (c *MemoryCache) cleanupExpired(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			c.removeExpired()
		case <-c.stopCh:
			return
		}
	}
}

// removeExpired removes all expired entries and returns how many were removed.
func (c *MemoryCache) removeExpired() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	removed := 0
	for _, k := range c.items.Keys() {
		if e, ok := c.items.Peek(k); ok && e.expired(now) {
			c.items.Remove(k)
			removed++
		}
	}
	return removed
}
