package providers_test

import (
	"context"
	"errors"
	"net/http"
	"testing"
	"time"

	"go.opentelemetry.io/otel/trace"

	mockproviders "smartcrm-hq/conductor/internal/providers"
	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/providers"
)

func TestHTTPTransport_AgainstGateway(t *testing.T) {
	server := mockproviders.NewMockServer()
	defer server.Close()

	endpoint := providers.EndpointFor(ai.TypeContactEnrichment)
	server.SetResponse(endpoint, mockproviders.MockResponse{
		Body: mockproviders.GatewayResult(map[string]any{"company": "Acme"}, "claude-3-haiku", 0.7, 120),
	})
	server.SetResponse("/health", mockproviders.MockResponse{StatusCode: http.StatusOK})

	transport := providers.NewHTTPTransport(providers.Config{
		Name:    "anthropic",
		BaseURL: server.URL(),
		Headers: map[string]string{"X-Tenant": "smartcrm"},
		Timeout: 2 * time.Second,
	})
	defer transport.Close()

	traceID, _ := trace.TraceIDFromHex("4bf92f3577b34da6a3ce929d0e0e4736")
	spanID, _ := trace.SpanIDFromHex("00f067aa0ba902b7")
	ctx := trace.ContextWithSpanContext(context.Background(), trace.NewSpanContext(trace.SpanContextConfig{
		TraceID:    traceID,
		SpanID:     spanID,
		TraceFlags: trace.FlagsSampled,
	}))

	res, err := transport.Invoke(ctx, &providers.Call{
		Provider: "anthropic",
		Model:    "claude-3-haiku",
		Endpoint: endpoint,
		Payload:  map[string]any{"email": "jane@example.com"},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}
	if res.Units != 120 {
		t.Errorf("Units = %d, want 120", res.Units)
	}

	if err := transport.HealthCheck(context.Background(), "anthropic"); err != nil {
		t.Errorf("HealthCheck() error = %v", err)
	}

	reqs := server.Requests()
	if len(reqs) != 2 {
		t.Fatalf("requests = %d, want 2", len(reqs))
	}
	got := reqs[0]
	if got.Header.Get("X-Tenant") != "smartcrm" {
		t.Errorf("X-Tenant = %q, want smartcrm", got.Header.Get("X-Tenant"))
	}
	if tp := got.Header.Get("traceparent"); tp != "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01" {
		t.Errorf("traceparent = %q, want propagated span context", tp)
	}
	if got.Body["model"] != "claude-3-haiku" {
		t.Errorf("body model = %v, want claude-3-haiku", got.Body["model"])
	}
}

func TestHTTPTransport_GatewayErrors(t *testing.T) {
	server := mockproviders.NewMockServer()
	defer server.Close()

	server.SetResponse("/ai/generate-email", mockproviders.MockResponse{
		StatusCode: http.StatusTooManyRequests,
		Headers:    map[string]string{"Retry-After": "7"},
		Body:       mockproviders.GatewayError("slow down"),
	})

	transport := providers.NewHTTPTransport(providers.Config{Name: "openai", BaseURL: server.URL()})
	defer transport.Close()

	_, err := transport.Invoke(context.Background(), &providers.Call{
		Provider: "openai",
		Endpoint: "/ai/generate-email",
	})

	var rateErr *providers.RateLimitError
	if !errors.As(err, &rateErr) {
		t.Fatalf("Invoke() error = %v, want *RateLimitError", err)
	}
	if rateErr.RetryAfter != 7*time.Second {
		t.Errorf("RetryAfter = %v, want 7s", rateErr.RetryAfter)
	}
	if got := providers.Classify(err); got != "rate_limit" {
		t.Errorf("Classify() = %q, want rate_limit", got)
	}

	_, err = transport.Invoke(context.Background(), &providers.Call{Provider: "openai", Endpoint: "/ai/unknown"})
	var provErr *providers.ProviderError
	if !errors.As(err, &provErr) || provErr.StatusCode != http.StatusNotFound {
		t.Errorf("Invoke() error = %v, want 404 *ProviderError", err)
	}
}
