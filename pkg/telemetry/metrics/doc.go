// Package metrics exports Prometheus metrics for the conductor service.
//
// # Metrics Categories
//
//   - Request Metrics: orchestrated request count and duration by type/provider
//   - Cache Metrics: response cache lookups by result, invalidated entries
//   - Provider Metrics: availability, moving average latency, quota, errors
//   - Queue Metrics: task states, batches, retries, rate limit denials
//
// # Usage
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	collector.RecordRequest("contact_scoring", "gemini", "success", time.Second)
//	router.Handle("/metrics", collector.Handler())
//
// A nil *Collector, or one whose config has Enabled=false, records nothing.
package metrics
