package cache

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisConfig configures a RedisCache.
type RedisConfig struct {
	// Prefix namespaces every key written by the cache. Defaults to "conductor".
	Prefix string

	// TagTTL is how long tag index sets are kept after their last write.
	// It should exceed the longest entry TTL. Defaults to 25 hours.
	TagTTL time.Duration
}

// RedisCache is a Cache shared between processes through Redis.
// Entries are plain string keys with a PX expiry; tags are Redis sets of
// entry keys.
type RedisCache struct {
	client redis.UniversalClient
	prefix string
	tagTTL time.Duration
}

// NewRedisCache creates a cache on top of an existing client.
func NewRedisCache(client redis.UniversalClient, cfg RedisConfig) *RedisCache {
	if cfg.Prefix == "" {
		cfg.Prefix = "conductor"
	}
	if cfg.TagTTL <= 0 {
		cfg.TagTTL = 25 * time.Hour
	}
	return &RedisCache{client: client, prefix: cfg.Prefix, tagTTL: cfg.TagTTL}
}

func (c *RedisCache) entryKey(namespace, key string) string {
	return c.prefix + ":cache:" + fullKey(namespace, key)
}

func (c *RedisCache) tagKey(tag string) string {
	return c.prefix + ":tag:" + tag
}

// Get implements Cache.
func (c *RedisCache) Get(ctx context.Context, namespace, key string) ([]byte, bool, error) {
	val, err := c.client.Get(ctx, c.entryKey(namespace, key)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("redis get: %w", err)
	}
	return val, true, nil
}

// Set implements Cache.
func (c *RedisCache) Set(ctx context.Context, namespace, key string, value []byte, ttl time.Duration, tags []string) error {
	k := c.entryKey(namespace, key)
	if ttl < 0 {
		ttl = 0
	}

	pipe := c.client.TxPipeline()
	pipe.Set(ctx, k, value, ttl)
	for _, tag := range tags {
		tk := c.tagKey(tag)
		pipe.SAdd(ctx, tk, k)
		pipe.Expire(ctx, tk, c.tagTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis set: %w", err)
	}
	return nil
}

// DeleteByTag implements Cache. Keys that already expired are not counted.
func (c *RedisCache) DeleteByTag(ctx context.Context, tag string) (int, error) {
	tk := c.tagKey(tag)
	keys, err := c.client.SMembers(ctx, tk).Result()
	if err != nil {
		return 0, fmt.Errorf("redis smembers: %w", err)
	}

	removed := int64(0)
	if len(keys) > 0 {
		removed, err = c.client.Del(ctx, keys...).Result()
		if err != nil {
			return 0, fmt.Errorf("redis del: %w", err)
		}
	}
	if err := c.client.Del(ctx, tk).Err(); err != nil {
		return int(removed), fmt.Errorf("redis del tag: %w", err)
	}
	return int(removed), nil
}

// Ping checks connectivity.
func (c *RedisCache) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}
