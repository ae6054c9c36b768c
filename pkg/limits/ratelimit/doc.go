// Package ratelimit grants request quota per provider scope.
//
// # Overview
//
// A Checker admits or denies a request for a (scope, sub-scope, endpoint)
// key under a Rule of MaxRequests per Window. Admitted requests consume one
// unit of quota. Denials carry a RetryAfter hint and convert to an error
// matching ErrRateLimitDenied through CheckResult.Err.
//
// Two Checkers are provided:
//
//   - MemoryLimiter: per-process sliding windows
//   - RedisLimiter: fixed windows shared through Redis
//
// # Sliding Window
//
// MemoryLimiter keeps one SlidingWindow per key with 60 buckets per window:
//
//	limiter := ratelimit.NewMemoryLimiter()
//	res, err := limiter.CheckLimit(ctx, "openai", "contact_scoring", "/ai/score-contact",
//	    ratelimit.Rule{MaxRequests: 60, Window: time.Minute})
//	if err == nil && !res.Allowed {
//	    time.Sleep(res.RetryAfter)
//	}
//
// # Concurrent Limiter
//
// ConcurrentLimiter is a counting semaphore with all-or-nothing AcquireN,
// used by the task queue to bound processing tasks.
//
// # Thread Safety
//
// All types in this package are safe for concurrent use.
package ratelimit
