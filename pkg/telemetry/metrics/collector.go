package metrics

import (
	"fmt"
	"sync"
	"time"

	"smartcrm-hq/conductor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// Collector owns the Prometheus registry and every metric the service
// exports. A nil *Collector is valid and records nothing, so components can
// hold one unconditionally.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	requestMetrics  *RequestMetrics
	providerMetrics *ProviderMetrics
	queueMetrics    *QueueMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector registering into registry, or a fresh
// registry when nil.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle("/metrics", collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}

	if cfg.Namespace == "" {
		cfg.Namespace = "conductor"
	}
	if len(cfg.RequestDurationBuckets) == 0 {
		// AI provider latencies (50ms - 60s)
		cfg.RequestDurationBuckets = []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60}
	}

	c := &Collector{
		config:             cfg,
		registry:           registry,
		cardinalityLimiter: NewCardinalityLimiter(1000),
	}

	c.requestMetrics = NewRequestMetrics(cfg, registry)
	c.providerMetrics = NewProviderMetrics(cfg, registry)
	c.queueMetrics = NewQueueMetrics(cfg, registry)

	return c
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// RecordRequest records an orchestrated AI request.
//
// Parameters:
//   - requestType: AI request type (e.g., "contact_scoring")
//   - provider: provider that served the request, "cache" for cache hits
//   - status: "success", "cached", "error" or "no_provider"
//   - duration: end-to-end duration
func (c *Collector) RecordRequest(requestType, provider, status string, duration time.Duration) {
	if !c.enabled() {
		return
	}

	labelSet := fmt.Sprintf("request:%s:%s:%s", requestType, provider, status)
	if !c.cardinalityLimiter.Allow(labelSet) {
		provider = "other"
	}

	c.requestMetrics.observe(requestType, provider, status, duration)
}

// RecordCacheLookup records a response cache lookup. result is CacheHit,
// CacheMiss or CacheError.
func (c *Collector) RecordCacheLookup(namespace, result string) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.lookups.WithLabelValues(namespace, result).Inc()
}

// RecordCacheInvalidation records n cached responses removed for tag.
func (c *Collector) RecordCacheInvalidation(tag string, n int) {
	if !c.enabled() {
		return
	}
	c.requestMetrics.invalidated.WithLabelValues(tag).Add(float64(n))
}

// UpdateProvider publishes a provider's registry state.
func (c *Collector) UpdateProvider(provider string, available bool, avgResponse time.Duration, quotaRemaining int) {
	if !c.enabled() {
		return
	}
	c.providerMetrics.Update(provider, available, avgResponse, quotaRemaining)
}

// RecordProviderError records a failed provider call.
//
// errorType is one of "auth", "rate_limit", "timeout", "parse" or "server_error".
func (c *Collector) RecordProviderError(provider, errorType string) {
	if !c.enabled() {
		return
	}
	c.providerMetrics.RecordError(provider, errorType)
}

// SetQueueTasks sets the number of queue tasks in state.
func (c *Collector) SetQueueTasks(state string, n int) {
	if !c.enabled() {
		return
	}
	c.queueMetrics.SetTasks(state, n)
}

// RecordBatch records a dispatched batch.
func (c *Collector) RecordBatch(taskType string, size int) {
	if !c.enabled() {
		return
	}
	c.queueMetrics.RecordBatch(taskType, size)
}

// RecordRetry records a task scheduled for another attempt.
func (c *Collector) RecordRetry(taskType string) {
	if !c.enabled() {
		return
	}
	c.queueMetrics.RecordRetry(taskType)
}

// RecordRateLimitDenial records a batch or request deferred by the limiter.
func (c *Collector) RecordRateLimitDenial(component string) {
	if !c.enabled() {
		return
	}
	c.queueMetrics.RecordRateLimitDenial(component)
}

// RecordTaskDuration records the execution time of a finished task attempt.
func (c *Collector) RecordTaskDuration(taskType, status string, d time.Duration) {
	if !c.enabled() {
		return
	}
	c.queueMetrics.RecordTaskDuration(taskType, status, d)
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter bounds the number of unique label combinations.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a limiter admitting maxCardinality label sets.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow reports whether labelSet is already known or still fits.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}

	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
