package providerfactory

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"time"

	"smartcrm-hq/conductor/pkg/config"
	"smartcrm-hq/conductor/pkg/providers"
	"smartcrm-hq/conductor/pkg/routing"
)

// Manager owns the provider side of the service: the transport mux, the
// registry and selector built from configuration, and the health monitor.
//
// LoadFromConfig may be called again on configuration reload. Providers that
// disappear from the configuration are marked unavailable, never removed.
//
// Manager is thread-safe and can be used concurrently.
type Manager struct {
	mux      *providers.Mux
	registry *routing.Registry
	selector *routing.Selector
	logger   *slog.Logger

	mu      sync.Mutex
	applied map[string]config.ProviderConfig
	monitor *providers.HealthMonitor
}

// NewManager creates a manager over registry. The selector starts with the
// default weights until LoadFromConfig applies the configured ones.
func NewManager(registry *routing.Registry, logger *slog.Logger) *Manager {
	if registry == nil {
		registry = routing.NewRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		mux:      providers.NewMux(),
		registry: registry,
		selector: routing.NewSelector(registry, routing.DefaultWeights()),
		logger:   logger.With("component", "providerfactory"),
		applied:  make(map[string]config.ProviderConfig),
	}
}

// Registry returns the provider registry.
func (m *Manager) Registry() *routing.Registry { return m.registry }

// Selector returns the scoring selector.
func (m *Manager) Selector() *routing.Selector { return m.selector }

// Transport returns the mux routing calls to each provider's transport.
func (m *Manager) Transport() *providers.Mux { return m.mux }

// LoadFromConfig registers every configured provider and applies the
// selector weights. Transports are rebuilt only for providers whose
// connection settings changed. Errors are collected and returned together;
// providers that loaded successfully stay in place.
func (m *Manager) LoadFromConfig(ctx context.Context, cfgs []config.ProviderConfig, selector config.SelectorConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	var errs []error
	seen := make(map[string]bool, len(cfgs))
	for _, cfg := range cfgs {
		seen[cfg.Name] = true
		if err := m.apply(ctx, cfg); err != nil {
			errs = append(errs, err)
			m.logger.Error("failed to load provider",
				"provider", cfg.Name,
				"error", err,
			)
		}
	}

	for name := range m.applied {
		if seen[name] {
			continue
		}
		if err := m.registry.SetAvailable(name, false); err != nil {
			errs = append(errs, err)
			continue
		}
		delete(m.applied, name)
		m.logger.Warn("provider removed from configuration, marked unavailable", "provider", name)
	}

	m.selector.SetWeights(Weights(selector))

	if len(errs) > 0 {
		return fmt.Errorf("failed to load %d provider(s): %w", len(errs), errors.Join(errs...))
	}
	m.logger.Info("providers loaded", "count", len(cfgs))
	return nil
}

func (m *Manager) apply(ctx context.Context, cfg config.ProviderConfig) error {
	prev, known := m.applied[cfg.Name]
	if !known || connectionChanged(prev, cfg) {
		t, err := NewTransport(ctx, cfg)
		if err != nil {
			return err
		}
		m.mux.Register(cfg.Name, t)
		if known {
			m.logger.Info("provider transport replaced", "provider", cfg.Name)
		}
	}

	spec := Spec(cfg)
	// An unhealthy provider stays unavailable until the monitor sees it recover.
	if spec.Available && m.monitor != nil {
		if h, ok := m.monitor.Health(cfg.Name); ok && !h.IsHealthy {
			spec.Available = false
		}
	}
	if err := m.registry.RegisterProvider(spec); err != nil {
		return fmt.Errorf("failed to register provider %q: %w", cfg.Name, err)
	}
	m.applied[cfg.Name] = cfg
	return nil
}

// connectionChanged reports whether the transport of a provider must be
// rebuilt to pick up cfg.
func connectionChanged(prev, cfg config.ProviderConfig) bool {
	return prev.Transport != cfg.Transport ||
		prev.BaseURL != cfg.BaseURL ||
		prev.APIKey != cfg.APIKey ||
		prev.Timeout != cfg.Timeout ||
		prev.HealthPath != cfg.HealthPath ||
		!maps.Equal(prev.Headers, cfg.Headers)
}

// ProviderCount returns the number of providers loaded from configuration.
func (m *Manager) ProviderCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.applied)
}

// StartHealthMonitor starts periodic health checks for the enabled providers
// with health_check set. It is a no-op when none qualify or a monitor is
// already running.
func (m *Manager) StartHealthMonitor(ctx context.Context, interval time.Duration) *providers.HealthMonitor {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.monitor != nil {
		return m.monitor
	}
	var names []string
	for name, cfg := range m.applied {
		if cfg.HealthCheck && !cfg.Disabled {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		m.logger.Debug("no providers with health checks enabled")
		return nil
	}

	m.monitor = providers.NewHealthMonitor(m.mux, m.registry, names, interval)
	m.monitor.Start(ctx)
	return m.monitor
}

// HealthSummary counts monitored providers by health state.
type HealthSummary struct {
	Total     int
	Healthy   int
	Unhealthy int
	Details   map[string]providers.Health
}

// GetHealthSummary returns the health of the monitored providers. It is
// empty when no monitor is running.
func (m *Manager) GetHealthSummary() HealthSummary {
	m.mu.Lock()
	monitor := m.monitor
	names := make([]string, 0, len(m.applied))
	for name := range m.applied {
		names = append(names, name)
	}
	m.mu.Unlock()

	summary := HealthSummary{Details: make(map[string]providers.Health)}
	if monitor == nil {
		return summary
	}
	for _, name := range names {
		h, ok := monitor.Health(name)
		if !ok {
			continue
		}
		summary.Details[name] = h
		summary.Total++
		if h.IsHealthy {
			summary.Healthy++
		}
	}
	summary.Unhealthy = summary.Total - summary.Healthy
	return summary
}

// Close stops the health monitor and closes every transport.
func (m *Manager) Close() error {
	m.mu.Lock()
	monitor := m.monitor
	m.monitor = nil
	m.mu.Unlock()

	if monitor != nil {
		monitor.Stop()
	}
	if err := m.mux.Close(); err != nil {
		return fmt.Errorf("errors closing providers: %w", err)
	}
	m.logger.Info("provider manager closed")
	return nil
}
