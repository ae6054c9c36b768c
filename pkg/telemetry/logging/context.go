package logging

import (
	"context"
	"log/slog"
)

// Context keys for correlation fields.
type contextKey string

const (
	// RequestIDKey is the context key for AI request IDs.
	RequestIDKey contextKey = "request_id"

	// TaskIDKey is the context key for queue task IDs.
	TaskIDKey contextKey = "task_id"

	// ProviderKey is the context key for provider names.
	ProviderKey contextKey = "provider"

	// RequestTypeKey is the context key for AI request types.
	RequestTypeKey contextKey = "request_type"
)

// fieldKeys is the order in which context fields are emitted.
var fieldKeys = []contextKey{RequestIDKey, TaskIDKey, ProviderKey, RequestTypeKey}

// WithRequestID adds a request ID to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return context.WithValue(ctx, RequestIDKey, requestID)
}

// GetRequestID retrieves the request ID from the context.
func GetRequestID(ctx context.Context) string {
	return getString(ctx, RequestIDKey)
}

// WithTaskID adds a task ID to the context.
func WithTaskID(ctx context.Context, taskID string) context.Context {
	return context.WithValue(ctx, TaskIDKey, taskID)
}

// GetTaskID retrieves the task ID from the context.
func GetTaskID(ctx context.Context) string {
	return getString(ctx, TaskIDKey)
}

// WithProvider adds a provider name to the context.
func WithProvider(ctx context.Context, provider string) context.Context {
	return context.WithValue(ctx, ProviderKey, provider)
}

// GetProvider retrieves the provider name from the context.
func GetProvider(ctx context.Context) string {
	return getString(ctx, ProviderKey)
}

// WithRequestType adds a request type to the context.
func WithRequestType(ctx context.Context, requestType string) context.Context {
	return context.WithValue(ctx, RequestTypeKey, requestType)
}

// GetRequestType retrieves the request type from the context.
func GetRequestType(ctx context.Context) string {
	return getString(ctx, RequestTypeKey)
}

func getString(ctx context.Context, key contextKey) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(key).(string); ok {
		return v
	}
	return ""
}

// Attrs returns the correlation fields stored in ctx as slog attributes.
func Attrs(ctx context.Context) []slog.Attr {
	var attrs []slog.Attr
	for _, k := range fieldKeys {
		if v := getString(ctx, k); v != "" {
			attrs = append(attrs, slog.String(string(k), v))
		}
	}
	return attrs
}
