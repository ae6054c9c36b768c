package ratelimit

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"
)

// RedisLimiter is a Checker shared between processes. It counts requests in
// fixed windows aligned to the Unix epoch: INCR on the window key plus a
// PEXPIRE so stale windows disappear on their own.
type RedisLimiter struct {
	client redis.UniversalClient
	prefix string
	now    func() time.Time
}

// NewRedisLimiter creates a limiter on top of an existing client.
// An empty prefix defaults to "conductor".
func NewRedisLimiter(client redis.UniversalClient, prefix string) *RedisLimiter {
	if prefix == "" {
		prefix = "conductor"
	}
	return &RedisLimiter{client: client, prefix: prefix, now: time.Now}
}

// windowKey returns the Redis key of the window containing now, and the
// window's end.
func (l *RedisLimiter) windowKey(key string, window time.Duration, now time.Time) (string, time.Time) {
	start := now.Truncate(window)
	return l.prefix + ":rl:" + key + ":" + strconv.FormatInt(start.UnixMilli(), 10), start.Add(window)
}

// CheckLimit implements Checker. A denied request does not consume quota.
func (l *RedisLimiter) CheckLimit(ctx context.Context, scope, subScope, endpoint string, rule Rule) (*CheckResult, error) {
	if !rule.Enabled() {
		return &CheckResult{Allowed: true, Limit: -1, Remaining: -1}, nil
	}

	now := l.now()
	rk, reset := l.windowKey(Key(scope, subScope, endpoint), rule.Window, now)
	limit := int64(rule.MaxRequests)

	pipe := l.client.TxPipeline()
	incr := pipe.Incr(ctx, rk)
	pipe.PExpire(ctx, rk, rule.Window)
	if _, err := pipe.Exec(ctx); err != nil {
		return nil, fmt.Errorf("redis rate limit: %w", err)
	}

	count := incr.Val()
	if count > limit {
		if err := l.client.Decr(ctx, rk).Err(); err != nil {
			return nil, fmt.Errorf("redis rate limit rollback: %w", err)
		}
		retry := reset.Sub(now)
		return &CheckResult{
			Allowed:    false,
			Reason:     fmt.Sprintf("%d requests per %s exceeded", limit, rule.Window),
			Limit:      limit,
			Remaining:  0,
			Reset:      reset,
			RetryAfter: retry,
		}, nil
	}

	return &CheckResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - count,
		Reset:     reset,
	}, nil
}
