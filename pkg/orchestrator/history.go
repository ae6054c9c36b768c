package orchestrator

import (
	"sync"
	"time"

	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/routing"
)

// historyEntry records one Execute outcome.
type historyEntry struct {
	RequestID      string
	Type           ai.RequestType
	Provider       string
	ProcessingTime time.Duration
	Cached         bool
	Failed         bool
	Timestamp      time.Time
}

// history is a fixed-size ring of the most recent outcomes.
type history struct {
	mu      sync.Mutex
	entries []historyEntry
	next    int
	full    bool
}

func newHistory(size int) *history {
	if size < 1 {
		size = 1
	}
	return &history{entries: make([]historyEntry, size)}
}

func (h *history) add(e historyEntry) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.entries[h.next] = e
	h.next = (h.next + 1) % len(h.entries)
	if h.next == 0 {
		h.full = true
	}
}

// snapshot returns the entries oldest first.
func (h *history) snapshot() []historyEntry {
	h.mu.Lock()
	defer h.mu.Unlock()

	if !h.full {
		return append([]historyEntry(nil), h.entries[:h.next]...)
	}
	out := make([]historyEntry, 0, len(h.entries))
	out = append(out, h.entries[h.next:]...)
	return append(out, h.entries[:h.next]...)
}

// PerformanceMetrics aggregates the request history.
type PerformanceMetrics struct {
	TotalRequests  int `json:"total_requests"`
	CachedRequests int `json:"cached_requests"`
	FailedRequests int `json:"failed_requests"`

	// CacheHitRate and ErrorRate are fractions of TotalRequests.
	CacheHitRate float64 `json:"cache_hit_rate"`
	ErrorRate    float64 `json:"error_rate"`

	// AverageProcessingTime covers successful, non-cached requests.
	AverageProcessingTime time.Duration `json:"average_processing_time"`

	RequestsLastMinute int `json:"requests_last_minute"`

	ByProvider map[string]int         `json:"by_provider"`
	ByType     map[ai.RequestType]int `json:"by_type"`

	// PendingRequests is the number of submitted requests not yet started.
	PendingRequests int `json:"pending_requests"`

	Providers []routing.Provider `json:"providers"`
}

func aggregate(entries []historyEntry, now time.Time) PerformanceMetrics {
	m := PerformanceMetrics{
		TotalRequests: len(entries),
		ByProvider:    make(map[string]int),
		ByType:        make(map[ai.RequestType]int),
	}

	var total time.Duration
	var timed int
	cutoff := now.Add(-time.Minute)

	for _, e := range entries {
		switch {
		case e.Failed:
			m.FailedRequests++
		case e.Cached:
			m.CachedRequests++
		default:
			total += e.ProcessingTime
			timed++
		}
		if e.Provider != "" {
			m.ByProvider[e.Provider]++
		}
		m.ByType[e.Type]++
		if e.Timestamp.After(cutoff) {
			m.RequestsLastMinute++
		}
	}

	if m.TotalRequests > 0 {
		m.CacheHitRate = float64(m.CachedRequests) / float64(m.TotalRequests)
		m.ErrorRate = float64(m.FailedRequests) / float64(m.TotalRequests)
	}
	if timed > 0 {
		m.AverageProcessingTime = total / time.Duration(timed)
	}
	return m
}
