package ratelimit

import (
	"context"
	"errors"
	"os"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.now = c.now.Add(d)
	c.mu.Unlock()
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)}
}

// ============================================================================
// Sliding Window Tests
// ============================================================================

func TestSlidingWindow_Basic(t *testing.T) {
	sw := NewSlidingWindow(time.Minute, time.Second)

	sw.Add(100)
	sw.Add(200)
	sw.Add(300)

	if sum := sw.Sum(); sum != 600 {
		t.Errorf("Sum() = %d, want 600", sum)
	}
}

func TestSlidingWindow_RollingWindow(t *testing.T) {
	clock := newFakeClock()
	sw := NewSlidingWindow(time.Second, 100*time.Millisecond)
	sw.now = clock.Now

	sw.Add(100)
	clock.Advance(500 * time.Millisecond)
	sw.Add(200)

	if sum := sw.Sum(); sum != 300 {
		t.Errorf("Sum() = %d, want 300 before expiry", sum)
	}

	clock.Advance(600 * time.Millisecond)
	if sum := sw.Sum(); sum != 200 {
		t.Errorf("Sum() = %d, want 200 after first bucket expired", sum)
	}

	clock.Advance(time.Second)
	if sum := sw.Sum(); sum != 0 {
		t.Errorf("Sum() = %d, want 0 after window", sum)
	}
}

func TestSlidingWindow_NextExpiry(t *testing.T) {
	clock := newFakeClock()
	sw := NewSlidingWindow(time.Minute, time.Second)
	sw.now = clock.Now

	if got := sw.NextExpiry(); got != 0 {
		t.Errorf("NextExpiry() on empty window = %v, want 0", got)
	}

	sw.Add(1)
	clock.Advance(20 * time.Second)
	sw.Add(1)

	if got, want := sw.NextExpiry(), 40*time.Second; got != want {
		t.Errorf("NextExpiry() = %v, want %v", got, want)
	}
}

func TestSlidingWindow_Reset(t *testing.T) {
	sw := NewSlidingWindow(time.Minute, time.Second)

	sw.Add(100)
	sw.Reset()

	if sum := sw.Sum(); sum != 0 {
		t.Errorf("Sum() = %d, want 0 after reset", sum)
	}
}

func TestSlidingWindow_Concurrent(t *testing.T) {
	sw := NewSlidingWindow(time.Minute, time.Second)

	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sw.Add(1)
		}()
	}
	wg.Wait()

	if sum := sw.Sum(); sum != 100 {
		t.Errorf("Sum() = %d, want 100", sum)
	}
}

// ============================================================================
// Concurrent Limiter Tests
// ============================================================================

func TestConcurrentLimiter_AcquireN(t *testing.T) {
	cl := NewConcurrentLimiter(5)

	tests := []struct {
		name    string
		acquire int
		want    bool
		current int64
	}{
		{name: "take 3", acquire: 3, want: true, current: 3},
		{name: "take 3 more rejected", acquire: 3, want: false, current: 3},
		{name: "take remaining 2", acquire: 2, want: true, current: 5},
		{name: "full", acquire: 1, want: false, current: 5},
		{name: "zero always succeeds", acquire: 0, want: true, current: 5},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := cl.AcquireN(tt.acquire); got != tt.want {
				t.Errorf("AcquireN(%d) = %v, want %v", tt.acquire, got, tt.want)
			}
			if got := cl.Current(); got != tt.current {
				t.Errorf("Current() = %d, want %d", got, tt.current)
			}
		})
	}

	cl.ReleaseN(4)
	if cl.Remaining() != 4 {
		t.Errorf("Remaining() = %d, want 4", cl.Remaining())
	}
	cl.ReleaseN(10)
	if cl.Current() != 0 {
		t.Errorf("Current() = %d, want 0 after over-release", cl.Current())
	}
}

func TestConcurrentLimiter_Concurrent(t *testing.T) {
	cl := NewConcurrentLimiter(10)

	var wg sync.WaitGroup
	var mu sync.Mutex
	acquired := 0
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if cl.Acquire() {
				mu.Lock()
				acquired++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	if acquired != 10 {
		t.Errorf("acquired = %d, want 10", acquired)
	}
	if cl.Current() != 10 {
		t.Errorf("Current() = %d, want 10", cl.Current())
	}
}

// ============================================================================
// Memory Limiter Tests
// ============================================================================

func TestMemoryLimiter_CheckLimit(t *testing.T) {
	clock := newFakeClock()
	l := NewMemoryLimiter()
	l.now = clock.Now
	ctx := context.Background()
	rule := Rule{MaxRequests: 2, Window: time.Minute}

	for i := 0; i < 2; i++ {
		res, err := l.CheckLimit(ctx, "openai", "contact_scoring", "/ai/score-contact", rule)
		if err != nil {
			t.Fatalf("CheckLimit() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("CheckLimit() #%d denied, want allowed", i+1)
		}
		if res.Remaining != int64(1-i) {
			t.Errorf("Remaining = %d, want %d", res.Remaining, 1-i)
		}
	}

	res, _ := l.CheckLimit(ctx, "openai", "contact_scoring", "/ai/score-contact", rule)
	if res.Allowed {
		t.Fatal("CheckLimit() allowed over limit")
	}
	if res.RetryAfter != time.Minute {
		t.Errorf("RetryAfter = %v, want 1m", res.RetryAfter)
	}
	if err := res.Err("openai"); !errors.Is(err, ErrRateLimitDenied) {
		t.Errorf("Err() = %v, want ErrRateLimitDenied", err)
	}

	other, _ := l.CheckLimit(ctx, "gemini", "contact_scoring", "/ai/score-contact", rule)
	if !other.Allowed {
		t.Error("CheckLimit() for other scope denied, want independent keys")
	}

	clock.Advance(time.Minute + time.Second)
	res, _ = l.CheckLimit(ctx, "openai", "contact_scoring", "/ai/score-contact", rule)
	if !res.Allowed {
		t.Error("CheckLimit() denied after window elapsed")
	}
}

func TestMemoryLimiter_DisabledRule(t *testing.T) {
	l := NewMemoryLimiter()
	for i := 0; i < 100; i++ {
		res, err := l.CheckLimit(context.Background(), "a", "b", "c", Rule{})
		if err != nil || !res.Allowed {
			t.Fatalf("CheckLimit() with disabled rule = %+v, %v", res, err)
		}
	}
}

func TestCheckResult_ErrAllowed(t *testing.T) {
	if err := (&CheckResult{Allowed: true}).Err("k"); err != nil {
		t.Errorf("Err() = %v, want nil", err)
	}
	var nilResult *CheckResult
	if err := nilResult.Err("k"); err != nil {
		t.Errorf("nil Err() = %v, want nil", err)
	}
}

// ============================================================================
// Redis Limiter Tests
// ============================================================================

func TestRedisLimiter_WindowKey(t *testing.T) {
	l := NewRedisLimiter(nil, "")
	now := time.Date(2025, 1, 1, 10, 0, 30, 0, time.UTC)

	key, reset := l.windowKey(Key("openai", "contact_scoring", "/ai/score-contact"), time.Minute, now)

	start := time.Date(2025, 1, 1, 10, 0, 0, 0, time.UTC)
	want := "conductor:rl:openai|contact_scoring|/ai/score-contact:" + strconv.FormatInt(start.UnixMilli(), 10)
	if key != want {
		t.Errorf("windowKey() = %q, want %q", key, want)
	}
	if !reset.Equal(start.Add(time.Minute)) {
		t.Errorf("reset = %v, want %v", reset, start.Add(time.Minute))
	}
}

func TestRedisLimiter_CheckLimit(t *testing.T) {
	addr := os.Getenv("CONDUCTOR_TEST_REDIS_ADDR")
	if addr == "" {
		t.Skip("CONDUCTOR_TEST_REDIS_ADDR not set")
	}
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()

	l := NewRedisLimiter(client, "conductor-test-"+uuid.NewString())
	ctx := context.Background()
	rule := Rule{MaxRequests: 2, Window: time.Hour}

	for i := 0; i < 2; i++ {
		res, err := l.CheckLimit(ctx, "s", "t", "e", rule)
		if err != nil {
			t.Fatalf("CheckLimit() error = %v", err)
		}
		if !res.Allowed {
			t.Fatalf("CheckLimit() #%d denied", i+1)
		}
	}

	res, err := l.CheckLimit(ctx, "s", "t", "e", rule)
	if err != nil {
		t.Fatalf("CheckLimit() error = %v", err)
	}
	if res.Allowed {
		t.Error("CheckLimit() allowed over limit")
	}
}
