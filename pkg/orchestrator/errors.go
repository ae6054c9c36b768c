package orchestrator

import (
	"errors"
	"fmt"

	"smartcrm-hq/conductor/pkg/ai"
)

var (
	// ErrProviderCallFailed is returned when the selected provider's transport
	// call fails. The request is not retried.
	ErrProviderCallFailed = errors.New("provider call failed")

	// ErrAlreadyRunning is returned by Start when the submit loop is running.
	ErrAlreadyRunning = errors.New("orchestrator already running")
)

// ProviderCallFailedError wraps a transport failure with the provider that
// was selected for the request.
type ProviderCallFailedError struct {
	// Provider is the name of the provider that failed.
	Provider string

	// RequestType is the type of the failed request.
	RequestType ai.RequestType

	// Cause is the transport error.
	Cause error
}

// Error implements the error interface.
func (e *ProviderCallFailedError) Error() string {
	return fmt.Sprintf("provider %s failed for %s: %v", e.Provider, e.RequestType, e.Cause)
}

// Is implements error matching for errors.Is().
func (e *ProviderCallFailedError) Is(target error) bool {
	return target == ErrProviderCallFailed
}

// Unwrap returns the transport error.
func (e *ProviderCallFailedError) Unwrap() error {
	return e.Cause
}
