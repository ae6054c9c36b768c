package providers

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ProviderError is a failed call that fits no narrower type: a transport
// failure or an unexpected HTTP status from the gateway.
type ProviderError struct {
	Provider   string
	StatusCode int // 0 when no response was received
	Message    string
	Cause      error
}

func (e *ProviderError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("provider %q error (status %d): %s", e.Provider, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("provider %q error: %s", e.Provider, e.Message)
}

func (e *ProviderError) Unwrap() error { return e.Cause }

// AuthError is a rejected credential (HTTP 401 or 403).
type AuthError struct {
	Provider string
	Message  string
}

func (e *AuthError) Error() string {
	return fmt.Sprintf("provider %q authentication failed: %s", e.Provider, e.Message)
}

// RateLimitError is an upstream HTTP 429. RetryAfter is zero when the
// provider sent no Retry-After header. The registry quota is tracked
// separately and is not adjusted by this error.
type RateLimitError struct {
	Provider   string
	RetryAfter time.Duration
	Message    string
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("provider %q rate limited, retry after %s: %s", e.Provider, e.RetryAfter, e.Message)
	}
	return fmt.Sprintf("provider %q rate limited: %s", e.Provider, e.Message)
}

// TimeoutError is a call that outlived its per-request timeout.
type TimeoutError struct {
	Provider string
	Timeout  time.Duration
}

func (e *TimeoutError) Error() string {
	return fmt.Sprintf("provider %q timed out after %s", e.Provider, e.Timeout)
}

// ParseError is a response that could not be decoded into a Result.
type ParseError struct {
	Provider    string
	RawResponse string
	Cause       error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("provider %q returned an unreadable response: %v", e.Provider, e.Cause)
}

func (e *ParseError) Unwrap() error { return e.Cause }

// UnknownProviderError is returned by a Mux for a provider without a transport.
type UnknownProviderError struct {
	Provider string
}

func (e *UnknownProviderError) Error() string {
	return fmt.Sprintf("no transport registered for provider %q", e.Provider)
}

// ConfigError rejects a transport configuration at construction time.
type ConfigError struct {
	Provider string
	Field    string
	Message  string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("provider %q: invalid %s: %s", e.Provider, e.Field, e.Message)
}

// Classify returns a low-cardinality label for a transport error, used as
// the error_type metric label and span attribute.
func Classify(err error) string {
	var (
		authErr    *AuthError
		rateErr    *RateLimitError
		timeoutErr *TimeoutError
		parseErr   *ParseError
		unknownErr *UnknownProviderError
		provErr    *ProviderError
	)
	switch {
	case err == nil:
		return ""
	case errors.As(err, &authErr):
		return "auth"
	case errors.As(err, &rateErr):
		return "rate_limit"
	case errors.As(err, &timeoutErr), errors.Is(err, context.DeadlineExceeded):
		return "timeout"
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.As(err, &parseErr):
		return "parse"
	case errors.As(err, &unknownErr):
		return "unknown_provider"
	case errors.As(err, &provErr):
		return "provider"
	default:
		return "error"
	}
}
