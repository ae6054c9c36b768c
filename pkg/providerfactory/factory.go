package providerfactory

import (
	"context"
	"fmt"
	"log/slog"

	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/config"
	"smartcrm-hq/conductor/pkg/providers"
	"smartcrm-hq/conductor/pkg/routing"
)

// Transport kinds accepted in config.ProviderConfig.Transport.
const (
	TransportHTTP   = "http"
	TransportGemini = "gemini"
)

// NewTransport creates the transport for one configured provider.
//
// The kind is taken from cfg.Transport:
//   - "http": an AI gateway speaking the endpoint table (default)
//   - "gemini": Google Gemini through the genai SDK
//
// Example:
//
//	t, err := NewTransport(ctx, config.ProviderConfig{
//	    Name:    "openai",
//	    BaseURL: "https://gateway.internal/openai",
//	    APIKey:  os.Getenv("OPENAI_KEY"),
//	})
func NewTransport(ctx context.Context, cfg config.ProviderConfig) (providers.Transport, error) {
	kind := cfg.Transport
	if kind == "" {
		kind = TransportHTTP
	}

	slog.Debug("creating provider transport",
		"provider", cfg.Name,
		"transport", kind,
		"base_url", cfg.BaseURL,
	)

	pc := transportConfig(cfg)
	switch kind {
	case TransportHTTP:
		return providers.NewHTTPTransport(pc), nil
	case TransportGemini:
		t, err := providers.NewGeminiTransport(ctx, pc)
		if err != nil {
			return nil, fmt.Errorf("failed to create provider %q: %w", cfg.Name, err)
		}
		return t, nil
	default:
		return nil, &providers.ConfigError{
			Provider: cfg.Name,
			Field:    "transport",
			Message:  fmt.Sprintf("unsupported transport: %q (supported: http, gemini)", kind),
		}
	}
}

func transportConfig(cfg config.ProviderConfig) providers.Config {
	return providers.Config{
		Name:       cfg.Name,
		BaseURL:    cfg.BaseURL,
		APIKey:     cfg.APIKey,
		Timeout:    cfg.Timeout,
		HealthPath: cfg.HealthPath,
		Headers:    cfg.Headers,
	}
}

// Spec converts a provider config into its registry description.
func Spec(cfg config.ProviderConfig) routing.ProviderSpec {
	return routing.ProviderSpec{
		Name:            cfg.Name,
		Model:           cfg.Model,
		Available:       !cfg.Disabled,
		Quota:           cfg.Quota,
		Window:          cfg.Window,
		AvgResponseTime: cfg.AvgResponseTime,
		SuccessRate:     cfg.SuccessRate,
		CostPer1K:       cfg.CostPer1K,
	}
}

// Weights converts selector config into scoring weights. Zero fields keep
// the defaults, and a configured affinity table replaces the built-in one.
func Weights(cfg config.SelectorConfig) routing.Weights {
	w := routing.DefaultWeights()
	setIfPositive(&w.SuccessWeight, cfg.SuccessWeight)
	setIfPositive(&w.LatencyBaselineMs, cfg.LatencyBaselineMs)
	setIfPositive(&w.LatencyDivisor, cfg.LatencyDivisor)
	setIfPositive(&w.UrgentLatencyDivisor, cfg.UrgentLatencyDivisor)
	setIfPositive(&w.CostBaseline, cfg.CostBaseline)
	setIfPositive(&w.CostMultiplier, cfg.CostMultiplier)

	if len(cfg.Affinity) > 0 {
		w.Affinity = make(map[ai.RequestType]map[string]float64, len(cfg.Affinity))
		for t, bonuses := range cfg.Affinity {
			m := make(map[string]float64, len(bonuses))
			for provider, bonus := range bonuses {
				m[provider] = bonus
			}
			w.Affinity[ai.RequestType(t)] = m
		}
	}
	return w
}

func setIfPositive(dst *float64, v float64) {
	if v > 0 {
		*dst = v
	}
}
