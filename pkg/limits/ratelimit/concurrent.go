package ratelimit

import (
	"sync/atomic"
)

// ConcurrentLimiter bounds the number of simultaneously processing units of
// work. The task queue uses it to enforce its concurrency limit.
//
// Acquisition is all-or-nothing: AcquireN either takes n slots or none.
// The counter never exceeds the limit.
type ConcurrentLimiter struct {
	limit   atomic.Int64 // Maximum concurrent units
	current atomic.Int64 // Units currently held
}

// NewConcurrentLimiter creates a limiter with the given number of slots.
//
// Example:
//
//	slots := NewConcurrentLimiter(5)
//	if slots.AcquireN(3) {
//	    defer slots.ReleaseN(3)
//	    // process three tasks
//	}
func NewConcurrentLimiter(limit int) *ConcurrentLimiter {
	cl := &ConcurrentLimiter{}
	cl.limit.Store(int64(limit))
	return cl
}

// Acquire takes a single slot.
func (cl *ConcurrentLimiter) Acquire() bool {
	return cl.AcquireN(1)
}

// AcquireN takes n slots if they are all free.
func (cl *ConcurrentLimiter) AcquireN(n int) bool {
	if n <= 0 {
		return true
	}
	for {
		cur := cl.current.Load()
		if cur+int64(n) > cl.limit.Load() {
			return false
		}
		if cl.current.CompareAndSwap(cur, cur+int64(n)) {
			return true
		}
	}
}

// Release returns a single slot.
func (cl *ConcurrentLimiter) Release() {
	cl.ReleaseN(1)
}

// ReleaseN returns n slots. The counter never drops below zero.
func (cl *ConcurrentLimiter) ReleaseN(n int) {
	for {
		cur := cl.current.Load()
		next := cur - int64(n)
		if next < 0 {
			next = 0
		}
		if cl.current.CompareAndSwap(cur, next) {
			return
		}
	}
}

// Current returns the number of held slots.
func (cl *ConcurrentLimiter) Current() int64 {
	return cl.current.Load()
}

// Limit returns the total number of slots.
func (cl *ConcurrentLimiter) Limit() int64 {
	return cl.limit.Load()
}

// Remaining returns the number of free slots.
func (cl *ConcurrentLimiter) Remaining() int64 {
	remaining := cl.limit.Load() - cl.current.Load()
	if remaining < 0 {
		return 0
	}
	return remaining
}
