package ratelimit

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// MemoryLimiter is an in-process Checker that keeps one SlidingWindow per key.
type MemoryLimiter struct {
	mu      sync.Mutex
	windows map[string]*limitedWindow
	now     func() time.Time
}

type limitedWindow struct {
	window *SlidingWindow
	rule   Rule
}

// NewMemoryLimiter creates an empty in-memory limiter.
func NewMemoryLimiter() *MemoryLimiter {
	return &MemoryLimiter{
		windows: make(map[string]*limitedWindow),
		now:     time.Now,
	}
}

// bucketSizeFor picks a bucket granularity of 1/60 of the window, at least
// one millisecond.
func bucketSizeFor(window time.Duration) time.Duration {
	size := window / 60
	if size < time.Millisecond {
		size = time.Millisecond
	}
	return size
}

// CheckLimit implements Checker.
func (l *MemoryLimiter) CheckLimit(_ context.Context, scope, subScope, endpoint string, rule Rule) (*CheckResult, error) {
	if !rule.Enabled() {
		return &CheckResult{Allowed: true, Limit: -1, Remaining: -1}, nil
	}

	key := Key(scope, subScope, endpoint)

	l.mu.Lock()
	defer l.mu.Unlock()

	lw, ok := l.windows[key]
	if !ok || lw.rule != rule {
		sw := NewSlidingWindow(rule.Window, bucketSizeFor(rule.Window))
		sw.now = l.now
		lw = &limitedWindow{window: sw, rule: rule}
		l.windows[key] = lw
	}

	limit := int64(rule.MaxRequests)
	now := l.now()

	used := lw.window.Sum()
	if used >= limit {
		retry := lw.window.NextExpiry()
		return &CheckResult{
			Allowed:    false,
			Reason:     fmt.Sprintf("%d requests per %s exceeded", limit, rule.Window),
			Limit:      limit,
			Remaining:  0,
			Reset:      now.Add(retry),
			RetryAfter: retry,
		}, nil
	}

	lw.window.Add(1)
	return &CheckResult{
		Allowed:   true,
		Limit:     limit,
		Remaining: limit - used - 1,
		Reset:     now.Add(rule.Window),
	}, nil
}
