// Package middleware holds the HTTP middleware of the API server.
//
// The server chains them outermost first:
//
//	RequestID -> Recovery -> Logging -> tracing.HTTPMiddleware -> BodyLimit -> router
//
// Auth, when API keys are configured, wraps only the /v1 routes.
package middleware
