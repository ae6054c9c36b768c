// Package server exposes the orchestrator and the task queue over HTTP.
//
// # Routes
//
//	POST   /v1/requests          execute a request and wait for the response
//	POST   /v1/requests/async    submit a request, 202 with its id
//	GET    /v1/requests/{id}     outcome of a submitted request
//	GET    /v1/requests/metrics  performance metrics and provider snapshot
//	DELETE /v1/cache[?type=]     invalidate cached responses
//	POST   /v1/tasks             enqueue a task, 202 with its id
//	GET    /v1/tasks/{id}        task status, falling back to the archive
//	DELETE /v1/tasks/{id}        cancel a queued task
//	GET    /v1/tasks/metrics     queue metrics and the next retention sweep
//	GET    /v1/providers         provider registry snapshot
//	GET    /health, /ready       liveness and readiness probes
//	GET    /version              build information
//	GET    /metrics              Prometheus metrics
//
// Request bodies are JSON and checked with go-playground/validator before
// reaching the domain layer. Errors are returned as
//
//	{"error": "failed \"oneof\" validation", "field": "priority", "request_id": "..."}
//
// Validation failures map to 400, duplicate task ids to 409, an exhausted
// provider pool to 503 and provider call failures to 502.
//
// # Lifecycle
//
// Start listens on ListenAddress and serves until its context is cancelled,
// then drains in-flight requests for up to ShutdownTimeout. Signal handling is
// left to the caller.
package server
