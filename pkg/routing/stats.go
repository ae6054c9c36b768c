package routing

import (
	"sync"
	"sync/atomic"
	"time"
)

// AtomicSelectionStats implements thread-safe selector statistics using atomic operations.
type AtomicSelectionStats struct {
	// totalSelections is the number of SelectProvider calls
	totalSelections atomic.Int64

	// selectionsPerProvider tracks selections of each provider
	selectionsPerProvider sync.Map // map[string]*atomic.Int64

	// preferredCount is the number of selections that honoured a pinned provider
	preferredCount atomic.Int64

	// noProviderCount is the number of selections without any candidate
	noProviderCount atomic.Int64

	// lastResetTime is when statistics were last reset
	lastResetTime time.Time

	// mu protects lastResetTime
	mu sync.RWMutex
}

// NewAtomicSelectionStats creates a new statistics tracker.
func NewAtomicSelectionStats() *AtomicSelectionStats {
	return &AtomicSelectionStats{
		lastResetTime: time.Now(),
	}
}

// IncrementTotal increments the total selection counter.
func (s *AtomicSelectionStats) IncrementTotal() {
	s.totalSelections.Add(1)
}

// IncrementProvider increments the counter for a specific provider.
func (s *AtomicSelectionStats) IncrementProvider(providerName string) {
	val, _ := s.selectionsPerProvider.LoadOrStore(providerName, &atomic.Int64{})
	val.(*atomic.Int64).Add(1)
}

// IncrementPreferred increments the pinned-provider counter.
func (s *AtomicSelectionStats) IncrementPreferred() {
	s.preferredCount.Add(1)
}

// IncrementNoProvider increments the no-candidate counter.
func (s *AtomicSelectionStats) IncrementNoProvider() {
	s.noProviderCount.Add(1)
}

// Snapshot returns a point-in-time snapshot of the statistics.
func (s *AtomicSelectionStats) Snapshot() *SelectionStats {
	s.mu.RLock()
	defer s.mu.RUnlock()

	perProvider := make(map[string]int64)
	s.selectionsPerProvider.Range(func(key, value any) bool {
		perProvider[key.(string)] = value.(*atomic.Int64).Load()
		return true
	})

	return &SelectionStats{
		TotalSelections:       s.totalSelections.Load(),
		SelectionsPerProvider: perProvider,
		PreferredCount:        s.preferredCount.Load(),
		NoProviderCount:       s.noProviderCount.Load(),
		LastResetTime:         s.lastResetTime,
	}
}

// Reset resets all statistics to zero.
func (s *AtomicSelectionStats) Reset() {
	s.totalSelections.Store(0)
	s.preferredCount.Store(0)
	s.noProviderCount.Store(0)

	s.selectionsPerProvider.Range(func(key, value any) bool {
		s.selectionsPerProvider.Delete(key)
		return true
	})

	s.mu.Lock()
	s.lastResetTime = time.Now()
	s.mu.Unlock()
}
