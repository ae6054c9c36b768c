package metrics

import (
	"time"

	"smartcrm-hq/conductor/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// ProviderMetrics mirrors the provider registry.
//
// Metrics:
//   - conductor_provider_available: 1 when selectable, 0 otherwise
//   - conductor_provider_avg_response_seconds: moving average response time
//   - conductor_provider_quota_remaining: requests left in the current window
//   - conductor_provider_errors_total: failed calls by error type
type ProviderMetrics struct {
	available      *prometheus.GaugeVec
	avgResponse    *prometheus.GaugeVec
	quotaRemaining *prometheus.GaugeVec
	errors         *prometheus.CounterVec
}

// NewProviderMetrics creates and registers provider metrics with the provided registry.
func NewProviderMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ProviderMetrics {
	pm := &ProviderMetrics{
		available: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_available",
				Help:      "Provider availability (1=available, 0=unavailable)",
			},
			[]string{"provider"},
		),

		avgResponse: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_avg_response_seconds",
				Help:      "Exponential moving average of provider response time",
			},
			[]string{"provider"},
		),

		quotaRemaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_quota_remaining",
				Help:      "Requests remaining in the provider's rate limit window",
			},
			[]string{"provider"},
		),

		errors: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: cfg.Subsystem,
				Name:      "provider_errors_total",
				Help:      "Total number of provider errors by type",
			},
			[]string{"provider", "error_type"},
		),
	}

	registry.MustRegister(pm.available, pm.avgResponse, pm.quotaRemaining, pm.errors)

	return pm
}

// Update sets every gauge for provider.
func (pm *ProviderMetrics) Update(provider string, available bool, avgResponse time.Duration, quotaRemaining int) {
	value := 0.0
	if available {
		value = 1.0
	}
	pm.available.WithLabelValues(provider).Set(value)
	pm.avgResponse.WithLabelValues(provider).Set(avgResponse.Seconds())
	pm.quotaRemaining.WithLabelValues(provider).Set(float64(quotaRemaining))
}

// RecordError records a provider error.
func (pm *ProviderMetrics) RecordError(provider, errorType string) {
	pm.errors.WithLabelValues(provider, errorType).Inc()
}
