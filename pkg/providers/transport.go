package providers

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Transport performs calls against one or more AI providers.
//
// Implementations must respect context cancellation and must not retry:
// a failed call is returned to the caller as an error.
type Transport interface {
	// Invoke sends the call and returns the normalized result.
	Invoke(ctx context.Context, call *Call) (*Result, error)

	// HealthCheck verifies that the named provider is reachable.
	HealthCheck(ctx context.Context, provider string) error
}

// Call is a single provider invocation.
type Call struct {
	// Provider is the name of the provider to call.
	Provider string

	// Model is the provider model to use.
	Model string

	// Endpoint is the operation endpoint (see EndpointFor).
	Endpoint string

	// Payload is the JSON-encodable request data.
	Payload any

	// Context carries correlation identifiers forwarded to the provider.
	Context map[string]string

	// Timeout bounds the call. Zero means the transport default.
	Timeout time.Duration
}

// Result is the normalized result of a provider call.
type Result struct {
	// Data is the decoded provider output.
	Data any

	// Model is the model that produced the output, when reported.
	Model string

	// Confidence is the provider-reported confidence, when reported.
	Confidence *float64

	// Cost is the provider-reported cost in USD, when reported.
	Cost *float64

	// Units is the number of billable units (tokens) consumed.
	Units int
}

// Mux dispatches calls to the transport registered for the call's provider.
type Mux struct {
	mu         sync.RWMutex
	transports map[string]Transport
}

// NewMux creates an empty Mux.
func NewMux() *Mux {
	return &Mux{transports: make(map[string]Transport)}
}

// Register routes calls for provider to t, replacing any previous transport.
func (m *Mux) Register(provider string, t Transport) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.transports[provider] = t
}

// Providers returns the registered provider names, sorted.
func (m *Mux) Providers() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()

	names := make([]string, 0, len(m.transports))
	for name := range m.transports {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

func (m *Mux) lookup(provider string) (Transport, error) {
	m.mu.RLock()
	t, ok := m.transports[provider]
	m.mu.RUnlock()
	if !ok {
		return nil, &UnknownProviderError{Provider: provider}
	}
	return t, nil
}

// Invoke implements Transport.
func (m *Mux) Invoke(ctx context.Context, call *Call) (*Result, error) {
	t, err := m.lookup(call.Provider)
	if err != nil {
		return nil, err
	}
	return t.Invoke(ctx, call)
}

// HealthCheck implements Transport.
func (m *Mux) HealthCheck(ctx context.Context, provider string) error {
	t, err := m.lookup(provider)
	if err != nil {
		return err
	}
	return t.HealthCheck(ctx, provider)
}

// Close closes every registered transport that implements io.Closer.
func (m *Mux) Close() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var firstErr error
	for _, t := range m.transports {
		if c, ok := t.(interface{ Close() error }); ok {
			if err := c.Close(); err != nil && firstErr == nil {
				firstErr = err
			}
		}
	}
	return firstErr
}
