package providers

import (
	"context"
	"log/slog"
	"sync"
	"time"
)

// AvailabilitySetter receives availability changes from the health monitor.
// It is implemented by *routing.Registry.
type AvailabilitySetter interface {
	SetAvailable(name string, available bool) error
}

// Health is the health state of a single provider.
type Health struct {
	// IsHealthy is false after FailureThreshold consecutive failed checks.
	IsHealthy bool

	// LastCheck is when the provider was last checked.
	LastCheck time.Time

	// ConsecutiveFailures is the number of failed checks since the last success.
	ConsecutiveFailures int

	// LastError is the error of the most recent failed check.
	LastError error
}

// HealthMonitor periodically checks providers through a Transport and
// flips their availability after repeated failures.
type HealthMonitor struct {
	transport Transport
	target    AvailabilitySetter
	interval  time.Duration

	// FailureThreshold is the number of consecutive failures that marks a
	// provider unhealthy.
	FailureThreshold int

	// CheckTimeout bounds a single health check.
	CheckTimeout time.Duration

	mu     sync.RWMutex
	health map[string]*Health

	wg     sync.WaitGroup
	stopCh chan struct{}
	once   sync.Once

	logger *slog.Logger
}

// NewHealthMonitor creates a monitor for the given provider names.
// A zero interval defaults to 30 seconds.
func NewHealthMonitor(transport Transport, target AvailabilitySetter, names []string, interval time.Duration) *HealthMonitor {
	if interval <= 0 {
		interval = 30 * time.Second
	}
	m := &HealthMonitor{
		transport:        transport,
		target:           target,
		interval:         interval,
		FailureThreshold: 3,
		CheckTimeout:     5 * time.Second,
		health:           make(map[string]*Health, len(names)),
		stopCh:           make(chan struct{}),
		logger:           slog.Default().With("component", "providers.health"),
	}
	now := time.Now()
	for _, name := range names {
		m.health[name] = &Health{IsHealthy: true, LastCheck: now}
	}
	return m
}

// Start launches one checker goroutine per provider.
func (m *HealthMonitor) Start(ctx context.Context) {
	m.mu.RLock()
	names := make([]string, 0, len(m.health))
	for name := range m.health {
		names = append(names, name)
	}
	m.mu.RUnlock()

	for _, name := range names {
		m.wg.Add(1)
		go m.run(ctx, name)
	}
	m.logger.Info("health monitor started",
		"providers", len(names),
		"interval", m.interval,
	)
}

// Stop stops all checker goroutines and waits for them to exit.
func (m *HealthMonitor) Stop() {
	m.once.Do(func() { close(m.stopCh) })
	m.wg.Wait()
}

// Health returns a copy of the health state of a provider.
func (m *HealthMonitor) Health(name string) (Health, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	h, ok := m.health[name]
	if !ok {
		return Health{}, false
	}
	return *h, true
}

func (m *HealthMonitor) run(ctx context.Context, name string) {
	defer m.wg.Done()

	ticker := time.NewTicker(m.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-m.stopCh:
			return
		case <-ticker.C:
			m.Check(ctx, name)

			h, _ := m.Health(name)
			if !h.IsHealthy {
				backoff := calculateBackoff(h.ConsecutiveFailures, m.interval)
				ticker.Reset(backoff)
				m.logger.Debug("health check backoff",
					"provider", name,
					"consecutive_failures", h.ConsecutiveFailures,
					"next_check_in", backoff,
				)
			} else {
				ticker.Reset(m.interval)
			}
		}
	}
}

// Check runs a single health check for the named provider and applies the
// result.
func (m *HealthMonitor) Check(ctx context.Context, name string) error {
	checkCtx, cancel := context.WithTimeout(ctx, m.CheckTimeout)
	defer cancel()

	start := time.Now()
	err := m.transport.HealthCheck(checkCtx, name)
	latency := time.Since(start)

	m.mu.Lock()
	h, ok := m.health[name]
	if !ok {
		h = &Health{IsHealthy: true}
		m.health[name] = h
	}
	h.LastCheck = time.Now()
	wasHealthy := h.IsHealthy
	previousFailures := h.ConsecutiveFailures

	if err != nil {
		h.ConsecutiveFailures++
		h.LastError = err
		if h.ConsecutiveFailures >= m.FailureThreshold {
			h.IsHealthy = false
		}
	} else {
		h.ConsecutiveFailures = 0
		h.LastError = nil
		h.IsHealthy = true
	}
	nowHealthy := h.IsHealthy
	failures := h.ConsecutiveFailures
	m.mu.Unlock()

	if err != nil {
		m.logger.Error("health check failed",
			"provider", name,
			"error", err,
			"latency", latency,
			"consecutive_failures", failures,
		)
	} else {
		m.logger.Debug("health check passed",
			"provider", name,
			"latency", latency,
		)
	}

	if wasHealthy != nowHealthy && m.target != nil {
		if nowHealthy {
			m.logger.Info("provider marked healthy",
				"provider", name,
				"previous_failures", previousFailures,
			)
		} else {
			m.logger.Warn("provider marked unhealthy",
				"provider", name,
				"consecutive_failures", failures,
			)
		}
		if setErr := m.target.SetAvailable(name, nowHealthy); setErr != nil {
			m.logger.Error("failed to update provider availability",
				"provider", name,
				"error", setErr,
			)
		}
	}

	return err
}

// calculateBackoff calculates the backoff interval based on consecutive failures.
// It uses exponential backoff capped at 10x the base interval and 5 minutes.
func calculateBackoff(consecutiveFailures int, baseInterval time.Duration) time.Duration {
	if consecutiveFailures <= 0 {
		return baseInterval
	}

	multiplier := 10
	if consecutiveFailures < 4 {
		multiplier = 1 << uint(consecutiveFailures)
	}

	backoff := baseInterval * time.Duration(multiplier)

	maxBackoff := 5 * time.Minute
	if backoff > maxBackoff {
		backoff = maxBackoff
	}

	return backoff
}
