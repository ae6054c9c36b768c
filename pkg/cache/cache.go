package cache

import (
	"context"
	"time"
)

// Cache is a namespaced key-value store with per-entry TTL and tag-based
// invalidation.
//
// Example usage:
//
//	c := cache.NewMemoryCache(cache.MemoryConfig{MaxEntries: 10000})
//	defer c.Close()
//
//	err := c.Set(ctx, "ai_responses", key, body, time.Hour, []string{"ai", "contact_scoring"})
//	body, ok, err := c.Get(ctx, "ai_responses", key)
//	removed, err := c.DeleteByTag(ctx, "contact_scoring")
type Cache interface {
	// Get returns the value stored under namespace/key.
	// ok is false when the key is absent or expired.
	Get(ctx context.Context, namespace, key string) (value []byte, ok bool, err error)

	// Set stores value under namespace/key for ttl and associates it with tags.
	// A ttl of zero or less stores the value without expiry.
	Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration, tags []string) error

	// DeleteByTag removes every entry associated with tag and returns the
	// number of entries removed.
	DeleteByTag(ctx context.Context, tag string) (int, error)
}

// fullKey joins a namespace and key into a single store key.
func fullKey(namespace, key string) string {
	return namespace + ":" + key
}
