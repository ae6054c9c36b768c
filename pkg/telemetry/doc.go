// Package telemetry groups the service's observability packages.
//
//   - logging: slog loggers with context correlation fields and PII redaction
//   - metrics: Prometheus collector for requests, cache, providers and the queue
//   - tracing: OpenTelemetry spans over OTLP/gRPC with W3C propagation
//   - health: liveness, readiness and version endpoints
package telemetry
