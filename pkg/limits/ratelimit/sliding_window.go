package ratelimit

import (
	"sync"
	"time"
)

// SlidingWindow counts admitted requests over a rolling time period.
//
// Time is cut into buckets of bucketSize. A bucket lives in the ring slot
// given by its bucket number modulo the ring length, so writing to a slot
// whose bucket is stale simply starts it over. A bucket counts while its start
// is no older than the window, so a burst at the end of one minute still
// counts against the start of the next.
//
// A one-minute window with one-second buckets keeps 61 slots regardless of
// traffic. SlidingWindow is safe for concurrent use.
type SlidingWindow struct {
	mu         sync.Mutex
	window     time.Duration
	bucketSize time.Duration
	slots      []slot
	now        func() time.Time
}

type slot struct {
	start time.Time // zero when unused
	count int64
}

// NewSlidingWindow creates a window of the given length with bucketSize
// granularity. Smaller buckets track the window edge more closely.
//
//	// one minute, one-second buckets
//	sw := NewSlidingWindow(time.Minute, time.Second)
func NewSlidingWindow(window, bucketSize time.Duration) *SlidingWindow {
	if bucketSize <= 0 {
		bucketSize = window
	}
	n := int(window / bucketSize)
	if n < 1 {
		n = 1
	}
	return &SlidingWindow{
		window:     window,
		bucketSize: bucketSize,
		// one spare slot so the bucket leaving the window is never
		// overwritten while it still counts
		slots: make([]slot, n+1),
		now:   time.Now,
	}
}

// Add adds value to the current bucket.
func (sw *SlidingWindow) Add(value int64) {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	start := sw.now().Truncate(sw.bucketSize)
	s := &sw.slots[sw.index(start)]
	if !s.start.Equal(start) {
		*s = slot{start: start}
	}
	s.count += value
}

// Sum returns the total of all buckets still inside the window.
func (sw *SlidingWindow) Sum() int64 {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	cutoff := sw.now().Add(-sw.window)
	var sum int64
	for _, s := range sw.slots {
		if sw.live(s, cutoff) {
			sum += s.count
		}
	}
	return sum
}

// NextExpiry returns how long until the oldest live bucket leaves the window,
// or zero when nothing is counted.
func (sw *SlidingWindow) NextExpiry() time.Duration {
	sw.mu.Lock()
	defer sw.mu.Unlock()

	now := sw.now()
	cutoff := now.Add(-sw.window)
	var oldest time.Time
	for _, s := range sw.slots {
		if sw.live(s, cutoff) && (oldest.IsZero() || s.start.Before(oldest)) {
			oldest = s.start
		}
	}
	if oldest.IsZero() {
		return 0
	}
	return max(oldest.Add(sw.window).Sub(now), 0)
}

// Reset clears all buckets.
func (sw *SlidingWindow) Reset() {
	sw.mu.Lock()
	defer sw.mu.Unlock()
	clear(sw.slots)
}

func (sw *SlidingWindow) index(start time.Time) int {
	n := start.UnixNano() / int64(sw.bucketSize)
	return int(n % int64(len(sw.slots)))
}

func (sw *SlidingWindow) live(s slot, cutoff time.Time) bool {
	return !s.start.IsZero() && s.count != 0 && !s.start.Before(cutoff)
}
