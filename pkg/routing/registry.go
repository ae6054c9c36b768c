package routing

import (
	"fmt"
	"log/slog"
	"sync"
	"time"
)

// emaAlpha is the weight of a new sample in the moving averages.
const emaAlpha = 0.1

// Registry holds the set of known providers, their rate-limit windows and
// their observed performance. All mutations of a provider happen in a single
// critical section.
//
// Example usage:
//
//	reg := routing.NewRegistry()
//	reg.RegisterProvider(routing.ProviderSpec{
//	    Name:      "openai",
//	    Model:     "gpt-4o-mini",
//	    Available: true,
//	    Quota:     60,
//	    Window:    time.Minute,
//	})
//	candidates := reg.Candidates()
type Registry struct {
	// mu protects order and byName
	mu sync.Mutex

	// order preserves first registration order, used for tie-breaking
	order []*Provider

	// byName indexes order by provider name
	byName map[string]*Provider

	// now returns the current time
	now func() time.Time

	// onChange is notified after every provider update, outside the lock
	onChange func(Provider)
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithClock sets the clock used for rate-limit windows.
func WithClock(now func() time.Time) RegistryOption {
	return func(r *Registry) {
		if now != nil {
			r.now = now
		}
	}
}

// WithChangeHook registers a function called with a copy of a provider after
// every update. It is used to mirror provider state into metrics.
func WithChangeHook(fn func(Provider)) RegistryOption {
	return func(r *Registry) {
		r.onChange = fn
	}
}

// NewRegistry creates an empty provider registry.
func NewRegistry(opts ...RegistryOption) *Registry {
	r := &Registry{
		byName: make(map[string]*Provider),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RegisterProvider adds a provider or updates the static fields of an
// existing one. Observed performance and the current window of an existing
// provider are kept, with Remaining clamped to the new quota.
func (r *Registry) RegisterProvider(spec ProviderSpec) error {
	if spec.Name == "" {
		return fmt.Errorf("provider name cannot be empty")
	}
	if spec.Quota < 0 {
		return fmt.Errorf("provider %q: quota cannot be negative", spec.Name)
	}
	if spec.Window <= 0 {
		return fmt.Errorf("provider %q: window must be positive", spec.Name)
	}

	r.mu.Lock()
	now := r.now()
	p, exists := r.byName[spec.Name]
	if !exists {
		p = &Provider{
			Name: spec.Name,
			RateLimit: RateLimit{
				Remaining: spec.Quota,
				ResetAt:   now.Add(spec.Window),
			},
			Performance: Performance{
				AvgResponseTime: spec.AvgResponseTime,
				SuccessRate:     spec.SuccessRate,
			},
		}
		r.order = append(r.order, p)
		r.byName[spec.Name] = p
	}
	p.Model = spec.Model
	p.Available = spec.Available
	p.RateLimit.Quota = spec.Quota
	p.RateLimit.Window = spec.Window
	if p.RateLimit.Remaining > spec.Quota {
		p.RateLimit.Remaining = spec.Quota
	}
	p.Performance.CostPer1K = spec.CostPer1K
	snapshot := *p
	r.mu.Unlock()

	slog.Debug("provider registered",
		"provider", spec.Name,
		"model", spec.Model,
		"new", !exists,
	)
	r.notify(snapshot)
	return nil
}

// SetAvailable marks a provider available or unavailable.
func (r *Registry) SetAvailable(name string, available bool) error {
	r.mu.Lock()
	p, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return &ProviderNotFoundError{ProviderName: name, AvailableProviders: r.names()}
	}
	changed := p.Available != available
	p.Available = available
	snapshot := *p
	r.mu.Unlock()

	if changed {
		slog.Info("provider availability changed",
			"provider", name,
			"available", available,
		)
	}
	r.notify(snapshot)
	return nil
}

// Get returns a copy of the named provider.
func (r *Registry) Get(name string) (Provider, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	p, ok := r.byName[name]
	if !ok {
		return Provider{}, false
	}
	return *p, true
}

// Snapshot returns copies of all providers in registration order.
func (r *Registry) Snapshot() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]Provider, len(r.order))
	for i, p := range r.order {
		out[i] = *p
	}
	return out
}

// Candidates returns copies of the providers that are available and have
// quota left, in registration order. Elapsed windows are rolled first.
func (r *Registry) Candidates() []Provider {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	out := make([]Provider, 0, len(r.order))
	for _, p := range r.order {
		rollWindow(p, now)
		if p.Available && p.RateLimit.Remaining > 0 {
			out = append(out, *p)
		}
	}
	return out
}

// RecordOutcome folds a call result into the provider's statistics and
// consumes one unit of quota.
func (r *Registry) RecordOutcome(name string, duration time.Duration, success bool) error {
	r.mu.Lock()
	p, ok := r.byName[name]
	if !ok {
		r.mu.Unlock()
		return &ProviderNotFoundError{ProviderName: name, AvailableProviders: r.names()}
	}

	rollWindow(p, r.now())

	avg := float64(p.Performance.AvgResponseTime)*(1-emaAlpha) + float64(duration)*emaAlpha
	p.Performance.AvgResponseTime = time.Duration(avg)

	outcome := 0.0
	if success {
		outcome = 1.0
	}
	p.Performance.SuccessRate = p.Performance.SuccessRate*(1-emaAlpha) + outcome*emaAlpha

	if p.RateLimit.Remaining > 0 {
		p.RateLimit.Remaining--
	}
	snapshot := *p
	r.mu.Unlock()

	r.notify(snapshot)
	return nil
}

// names returns the registered provider names. Must be called with mu held.
func (r *Registry) names() []string {
	out := make([]string, len(r.order))
	for i, p := range r.order {
		out[i] = p.Name
	}
	return out
}

func (r *Registry) notify(p Provider) {
	if r.onChange != nil {
		r.onChange(p)
	}
}

// rollWindow restores the quota when the current window has elapsed,
// advancing ResetAt by whole windows until it lies in the future.
func rollWindow(p *Provider, now time.Time) {
	if p.RateLimit.Window <= 0 || now.Before(p.RateLimit.ResetAt) {
		return
	}
	p.RateLimit.Remaining = p.RateLimit.Quota
	elapsed := now.Sub(p.RateLimit.ResetAt)
	windows := elapsed/p.RateLimit.Window + 1
	p.RateLimit.ResetAt = p.RateLimit.ResetAt.Add(windows * p.RateLimit.Window)
}
