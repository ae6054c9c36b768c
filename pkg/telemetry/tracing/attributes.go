package tracing

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Span attribute keys. Custom keys use the "conductor.*" namespace.
const (
	AttrRequestID   = "conductor.request_id"
	AttrRequestType = "conductor.request_type"
	AttrPriority    = "conductor.priority"

	AttrProvider = "conductor.provider"
	AttrModel    = "conductor.model"

	AttrCacheHit  = "conductor.cache.hit"
	AttrCacheName = "conductor.cache.name"

	AttrTaskID      = "conductor.task.id"
	AttrTaskType    = "conductor.task.type"
	AttrTaskAttempt = "conductor.task.attempt"
	AttrBatchSize   = "conductor.batch.size"

	AttrErrorType    = "conductor.error.type"
	AttrErrorMessage = "error.message"
)

// SetRequestAttributes tags a span with an AI request's identity.
func SetRequestAttributes(span trace.Span, requestID, requestType, priority string) {
	span.SetAttributes(
		attribute.String(AttrRequestID, requestID),
		attribute.String(AttrRequestType, requestType),
		attribute.String(AttrPriority, priority),
	)
}

// SetProviderAttributes tags a span with the selected provider.
func SetProviderAttributes(span trace.Span, provider, model string) {
	attrs := []attribute.KeyValue{attribute.String(AttrProvider, provider)}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrModel, model))
	}
	span.SetAttributes(attrs...)
}

// SetCacheAttributes records a cache lookup outcome.
func SetCacheAttributes(span trace.Span, hit bool, cacheName string) {
	span.SetAttributes(
		attribute.Bool(AttrCacheHit, hit),
		attribute.String(AttrCacheName, cacheName),
	)
}

// SetTaskAttributes tags a span with a queue task attempt.
func SetTaskAttributes(span trace.Span, taskID, taskType string, attempt int) {
	span.SetAttributes(
		attribute.String(AttrTaskID, taskID),
		attribute.String(AttrTaskType, taskType),
		attribute.Int(AttrTaskAttempt, attempt),
	)
}

// SetBatchAttributes tags a batch dispatch span.
func SetBatchAttributes(span trace.Span, taskType string, size int) {
	span.SetAttributes(
		attribute.String(AttrTaskType, taskType),
		attribute.Int(AttrBatchSize, size),
	)
}

// SetErrorAttributes records err with a classification such as "timeout".
func SetErrorAttributes(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.SetAttributes(attribute.String(AttrErrorType, errorType))
	SetError(span, err)
}
