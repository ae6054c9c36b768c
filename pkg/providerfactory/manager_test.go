package providerfactory

import (
	"context"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	mockproviders "smartcrm-hq/conductor/internal/providers"
	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/config"
	"smartcrm-hq/conductor/pkg/providers"
	"smartcrm-hq/conductor/pkg/routing"
)

func newTestManager(t *testing.T) *Manager {
	t.Helper()
	m := NewManager(routing.NewRegistry(), slog.New(slog.NewTextHandler(io.Discard, nil)))
	t.Cleanup(func() { m.Close() })
	return m
}

func providerConfig(name, baseURL string) config.ProviderConfig {
	p := config.ProviderConfig{Name: name, BaseURL: baseURL, Model: name + "-model"}
	cfg := &config.Config{Providers: []config.ProviderConfig{p}}
	config.ApplyDefaults(cfg)
	return cfg.Providers[0]
}

func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}

func TestManager_LoadFromConfig(t *testing.T) {
	m := newTestManager(t)

	disabled := providerConfig("anthropic", "http://localhost:1")
	disabled.Disabled = true
	cfgs := []config.ProviderConfig{
		providerConfig("openai", "http://localhost:1"),
		disabled,
	}

	if err := m.LoadFromConfig(context.Background(), cfgs, config.SelectorConfig{SuccessWeight: 25}); err != nil {
		t.Fatalf("LoadFromConfig() error = %v", err)
	}

	if got := m.ProviderCount(); got != 2 {
		t.Errorf("ProviderCount() = %d, want 2", got)
	}

	snap := m.Registry().Snapshot()
	if len(snap) != 2 || snap[0].Name != "openai" || snap[1].Name != "anthropic" {
		t.Fatalf("Snapshot() = %+v, want openai then anthropic", snap)
	}
	if !snap[0].Available || snap[1].Available {
		t.Errorf("availability = %v/%v, want true/false", snap[0].Available, snap[1].Available)
	}
	if snap[0].Model != "openai-model" {
		t.Errorf("Model = %q, want openai-model", snap[0].Model)
	}

	if got := strings.Join(m.Transport().Providers(), ","); got != "anthropic,openai" {
		t.Errorf("Transport().Providers() = %q, want anthropic,openai", got)
	}
	if got := m.Selector().Weights().SuccessWeight; got != 25 {
		t.Errorf("selector SuccessWeight = %v, want 25", got)
	}
}

func TestManager_LoadFromConfig_PartialFailure(t *testing.T) {
	m := newTestManager(t)

	bad := providerConfig("broken", "http://localhost:1")
	bad.Transport = "smtp"

	err := m.LoadFromConfig(context.Background(), []config.ProviderConfig{
		providerConfig("openai", "http://localhost:1"),
		bad,
	}, config.SelectorConfig{})
	if err == nil {
		t.Fatal("LoadFromConfig() error = nil, want error for unsupported transport")
	}
	if !strings.Contains(err.Error(), "broken") {
		t.Errorf("error %q does not name the failing provider", err)
	}
	if _, ok := m.Registry().Get("openai"); !ok {
		t.Error("valid provider should stay registered")
	}
	if _, ok := m.Registry().Get("broken"); ok {
		t.Error("failed provider should not be registered")
	}
}

func TestManager_Reload(t *testing.T) {
	first := mockproviders.NewMockServer()
	defer first.Close()
	second := mockproviders.NewMockServer()
	defer second.Close()

	endpoint := providers.EndpointFor(ai.TypeContactScoring)
	for _, s := range []*mockproviders.MockServer{first, second} {
		s.SetResponse(endpoint, mockproviders.MockResponse{
			Body: mockproviders.GatewayResult(map[string]any{"score": 80}, "openai-model", 0.9, 10),
		})
	}

	m := newTestManager(t)
	ctx := context.Background()
	openai := providerConfig("openai", first.URL())
	gemini := providerConfig("gemini-proxy", first.URL())
	if err := m.LoadFromConfig(ctx, []config.ProviderConfig{openai, gemini}, config.SelectorConfig{}); err != nil {
		t.Fatalf("LoadFromConfig() error = %v", err)
	}

	invoke := func() {
		t.Helper()
		_, err := m.Transport().Invoke(ctx, &providers.Call{Provider: "openai", Endpoint: endpoint, Payload: map[string]any{}})
		if err != nil {
			t.Fatalf("Invoke() error = %v", err)
		}
	}
	invoke()

	// Quota change keeps the transport; base URL change replaces it.
	openai.Quota = 5
	openai.BaseURL = second.URL()
	if err := m.LoadFromConfig(ctx, []config.ProviderConfig{openai}, config.SelectorConfig{}); err != nil {
		t.Fatalf("LoadFromConfig() reload error = %v", err)
	}
	invoke()

	if got := first.RequestCount(); got != 1 {
		t.Errorf("first server requests = %d, want 1", got)
	}
	if got := second.RequestCount(); got != 1 {
		t.Errorf("second server requests = %d, want 1", got)
	}

	p, _ := m.Registry().Get("openai")
	if p.RateLimit.Quota != 5 {
		t.Errorf("Quota = %d, want 5", p.RateLimit.Quota)
	}
	removed, ok := m.Registry().Get("gemini-proxy")
	if !ok {
		t.Fatal("removed provider should stay in the registry")
	}
	if removed.Available {
		t.Error("provider dropped from configuration should be unavailable")
	}
	if got := m.ProviderCount(); got != 1 {
		t.Errorf("ProviderCount() = %d, want 1", got)
	}
}

func TestManager_HealthMonitor(t *testing.T) {
	server := mockproviders.NewMockServer()
	defer server.Close()
	server.SetResponse("/health", mockproviders.MockResponse{StatusCode: http.StatusServiceUnavailable})

	m := newTestManager(t)
	ctx := context.Background()

	if mon := m.StartHealthMonitor(ctx, 5*time.Millisecond); mon != nil {
		t.Fatal("StartHealthMonitor() with no providers should return nil")
	}

	watched := providerConfig("openai", server.URL())
	watched.HealthCheck = true
	cfgs := []config.ProviderConfig{watched, providerConfig("anthropic", server.URL())}
	if err := m.LoadFromConfig(ctx, cfgs, config.SelectorConfig{}); err != nil {
		t.Fatalf("LoadFromConfig() error = %v", err)
	}

	mon := m.StartHealthMonitor(ctx, 5*time.Millisecond)
	if mon == nil {
		t.Fatal("StartHealthMonitor() = nil, want a running monitor")
	}
	if again := m.StartHealthMonitor(ctx, 5*time.Millisecond); again != mon {
		t.Error("StartHealthMonitor() should return the running monitor")
	}

	waitFor(t, "openai marked unavailable", func() bool {
		p, _ := m.Registry().Get("openai")
		return !p.Available
	})

	summary := m.GetHealthSummary()
	if summary.Total != 1 || summary.Unhealthy != 1 {
		t.Errorf("GetHealthSummary() = %+v, want 1 monitored unhealthy provider", summary)
	}
	if p, _ := m.Registry().Get("anthropic"); !p.Available {
		t.Error("unmonitored provider should stay available")
	}

	// Reloading must not resurrect an unhealthy provider.
	if err := m.LoadFromConfig(ctx, cfgs, config.SelectorConfig{}); err != nil {
		t.Fatalf("LoadFromConfig() reload error = %v", err)
	}
	if p, _ := m.Registry().Get("openai"); p.Available {
		t.Error("reload made an unhealthy provider available")
	}
}
