package ratelimit

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrRateLimitDenied indicates that a rate limit check rejected the request.
var ErrRateLimitDenied = errors.New("rate limit denied")

// Rule is the limit applied to a single scope/sub-scope/endpoint key.
type Rule struct {
	// MaxRequests is the number of requests admitted per Window.
	// Zero or less disables the rule.
	MaxRequests int

	// Window is the period MaxRequests applies to.
	Window time.Duration
}

// Enabled reports whether the rule limits anything.
func (r Rule) Enabled() bool {
	return r.MaxRequests > 0 && r.Window > 0
}

// CheckResult contains the result of a rate limit check.
type CheckResult struct {
	// Allowed indicates if the request is permitted.
	Allowed bool

	// Reason explains why the request was rejected (if Allowed=false).
	Reason string

	// Limit is the configured limit value.
	Limit int64

	// Remaining is how many requests remain in the window.
	Remaining int64

	// Reset is when the limit window resets.
	Reset time.Time

	// RetryAfter suggests how long to wait before retrying.
	RetryAfter time.Duration
}

// Err returns a *DeniedError when the check rejected the request, else nil.
func (r *CheckResult) Err(key string) error {
	if r == nil || r.Allowed {
		return nil
	}
	return &DeniedError{Key: key, RetryAfter: r.RetryAfter, Reason: r.Reason}
}

// Checker grants request quota per scope.
//
// A successful check consumes one unit of quota. Implementations must be safe
// for concurrent use.
type Checker interface {
	CheckLimit(ctx context.Context, scope, subScope, endpoint string, rule Rule) (*CheckResult, error)
}

// DeniedError describes a rejected check.
type DeniedError struct {
	// Key identifies the limited scope.
	Key string

	// RetryAfter suggests how long to wait before retrying.
	RetryAfter time.Duration

	// Reason explains the rejection.
	Reason string
}

// Error implements the error interface.
func (e *DeniedError) Error() string {
	return fmt.Sprintf("rate limit denied for %s: %s (retry after %s)", e.Key, e.Reason, e.RetryAfter)
}

// Is implements error matching for errors.Is().
func (e *DeniedError) Is(target error) bool {
	return target == ErrRateLimitDenied
}

// Key joins a scope, sub-scope and endpoint into a limiter key.
func Key(scope, subScope, endpoint string) string {
	return scope + "|" + subScope + "|" + endpoint
}
