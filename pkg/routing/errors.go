package routing

import (
	"errors"
	"fmt"
	"strings"

	"smartcrm-hq/conductor/pkg/ai"
)

// Common routing errors that can be checked with errors.Is().
var (
	// ErrNoProviderAvailable is returned when no provider is available with quota left.
	ErrNoProviderAvailable = errors.New("no provider available")

	// ErrProviderNotFound is returned when a named provider is not registered.
	ErrProviderNotFound = errors.New("provider not found")
)

// NoProviderAvailableError is returned when selection finds no candidate.
type NoProviderAvailableError struct {
	// RequestType is the type of the request being routed.
	RequestType ai.RequestType

	// Registered contains the names of all registered providers.
	Registered []string
}

// Error implements the error interface.
func (e *NoProviderAvailableError) Error() string {
	if len(e.Registered) == 0 {
		return fmt.Sprintf("no provider available for %s (no providers registered)", e.RequestType)
	}
	return fmt.Sprintf("no provider available for %s (registered: %s)",
		e.RequestType, strings.Join(e.Registered, ", "))
}

// Is implements error matching for errors.Is().
func (e *NoProviderAvailableError) Is(target error) bool {
	return target == ErrNoProviderAvailable
}

// ProviderNotFoundError is returned when an operation names a provider that
// is not registered.
type ProviderNotFoundError struct {
	// ProviderName is the requested provider that was not found.
	ProviderName string

	// AvailableProviders contains the names of registered providers.
	AvailableProviders []string
}

// Error implements the error interface.
func (e *ProviderNotFoundError) Error() string {
	return fmt.Sprintf("provider %q not found (available providers: %s)",
		e.ProviderName, strings.Join(e.AvailableProviders, ", "))
}

// Is implements error matching for errors.Is().
func (e *ProviderNotFoundError) Is(target error) bool {
	return target == ErrProviderNotFound
}
