package providers

import (
	"context"
	"fmt"
	"sync"
	"time"

	"smartcrm-hq/conductor/pkg/providers"
)

// ResultFunc produces the outcome of a mocked call.
type ResultFunc func(ctx context.Context, call *providers.Call) (*providers.Result, error)

// MockTransport is an in-memory providers.Transport for tests. Calls for
// providers without a configured behaviour echo the payload back.
type MockTransport struct {
	mu        sync.Mutex
	behaviour map[string]ResultFunc
	health    map[string]error
	delay     time.Duration
	calls     []providers.Call
}

// NewMockTransport creates an empty mock transport.
func NewMockTransport() *MockTransport {
	return &MockTransport{
		behaviour: make(map[string]ResultFunc),
		health:    make(map[string]error),
	}
}

// On sets the behaviour for calls to provider.
func (m *MockTransport) On(provider string, fn ResultFunc) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.behaviour[provider] = fn
}

// Fail makes every call to provider return err.
func (m *MockTransport) Fail(provider string, err error) {
	m.On(provider, func(context.Context, *providers.Call) (*providers.Result, error) {
		return nil, err
	})
}

// FailTimes makes the first n calls to provider return err; later calls echo.
func (m *MockTransport) FailTimes(provider string, n int, err error) {
	var mu sync.Mutex
	remaining := n
	m.On(provider, func(_ context.Context, call *providers.Call) (*providers.Result, error) {
		mu.Lock()
		defer mu.Unlock()
		if remaining > 0 {
			remaining--
			return nil, err
		}
		return echo(call), nil
	})
}

// SetDelay delays every call by d, honouring context cancellation.
func (m *MockTransport) SetDelay(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.delay = d
}

// SetHealth sets the HealthCheck result for provider.
func (m *MockTransport) SetHealth(provider string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.health[provider] = err
}

// Calls returns the calls received so far.
func (m *MockTransport) Calls() []providers.Call {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]providers.Call(nil), m.calls...)
}

// CallCount returns the number of calls received.
func (m *MockTransport) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Invoke implements providers.Transport.
func (m *MockTransport) Invoke(ctx context.Context, call *providers.Call) (*providers.Result, error) {
	m.mu.Lock()
	m.calls = append(m.calls, *call)
	fn := m.behaviour[call.Provider]
	delay := m.delay
	m.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, &providers.TimeoutError{Provider: call.Provider, Timeout: call.Timeout}
		}
	}

	if fn != nil {
		return fn(ctx, call)
	}
	return echo(call), nil
}

// HealthCheck implements providers.Transport.
func (m *MockTransport) HealthCheck(_ context.Context, provider string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.health[provider]
}

func echo(call *providers.Call) *providers.Result {
	return &providers.Result{
		Data:  map[string]any{"echo": fmt.Sprint(call.Payload), "endpoint": call.Endpoint},
		Model: call.Model,
	}
}
