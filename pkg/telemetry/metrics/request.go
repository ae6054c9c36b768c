package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"smartcrm-hq/conductor/pkg/config"
)

// Cache lookup results.
const (
	CacheHit   = "hit"
	CacheMiss  = "miss"
	CacheError = "error"
)

// RequestMetrics covers the orchestrator's Execute path: the request itself
// and the response cache in front of it.
//
//   - conductor_requests_total{type,provider,status}
//   - conductor_request_duration_seconds{type,provider}
//   - conductor_cache_lookups_total{namespace,result}
//   - conductor_cache_invalidated_entries_total{tag}
//
// Hit rate in PromQL:
//
//	sum(rate(conductor_cache_lookups_total{result="hit"}[5m]))
//	  / sum(rate(conductor_cache_lookups_total[5m]))
type RequestMetrics struct {
	requests    *prometheus.CounterVec
	duration    *prometheus.HistogramVec
	lookups     *prometheus.CounterVec
	invalidated *prometheus.CounterVec
}

// NewRequestMetrics registers the request metrics with registry.
func NewRequestMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RequestMetrics {
	counter := func(name, help string, labels ...string) *prometheus.CounterVec {
		return prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      name,
			Help:      help,
		}, labels)
	}

	rm := &RequestMetrics{
		requests: counter("requests_total",
			"AI requests by type, serving provider and outcome", "type", "provider", "status"),
		duration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: cfg.Namespace,
			Subsystem: cfg.Subsystem,
			Name:      "request_duration_seconds",
			Help:      "End-to-end duration of AI requests",
			Buckets:   cfg.RequestDurationBuckets,
		}, []string{"type", "provider"}),
		lookups: counter("cache_lookups_total",
			"Response cache lookups by result (hit, miss, error)", "namespace", "result"),
		invalidated: counter("cache_invalidated_entries_total",
			"Cached responses removed by tag invalidation", "tag"),
	}

	registry.MustRegister(rm.requests, rm.duration, rm.lookups, rm.invalidated)
	return rm
}

func (rm *RequestMetrics) observe(requestType, provider, status string, d time.Duration) {
	rm.requests.WithLabelValues(requestType, provider, status).Inc()
	rm.duration.WithLabelValues(requestType, provider).Observe(d.Seconds())
}
