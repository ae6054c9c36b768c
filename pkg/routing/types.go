package routing

import (
	"time"

	"smartcrm-hq/conductor/pkg/ai"
)

// RateLimit tracks the request quota of a provider within a fixed window.
type RateLimit struct {
	// Quota is the number of requests allowed per window.
	Quota int `json:"quota"`

	// Remaining is the number of requests left in the current window.
	// Never negative.
	Remaining int `json:"remaining"`

	// Window is the length of the quota window.
	Window time.Duration `json:"window"`

	// ResetAt is when the current window ends and Remaining is restored to Quota.
	ResetAt time.Time `json:"reset_at"`
}

// Performance holds the observed behaviour of a provider.
type Performance struct {
	// AvgResponseTime is an exponential moving average of call durations.
	AvgResponseTime time.Duration `json:"avg_response_time"`

	// SuccessRate is an exponential moving average of call outcomes in [0,1].
	SuccessRate float64 `json:"success_rate"`

	// CostPer1K is the configured cost in USD per 1000 units.
	CostPer1K float64 `json:"cost_per_1k"`
}

// Provider is the registry's view of an external AI provider.
// Providers are never removed from the registry, only updated in place.
type Provider struct {
	// Name uniquely identifies the provider (e.g. "openai", "gemini").
	Name string `json:"name"`

	// Model is the model used for calls to this provider.
	Model string `json:"model"`

	// Available is false when the provider is administratively disabled or
	// marked unhealthy by the health monitor.
	Available bool `json:"available"`

	RateLimit   RateLimit   `json:"rate_limit"`
	Performance Performance `json:"performance"`
}

// ProviderSpec is the static description used to register a provider.
type ProviderSpec struct {
	Name      string
	Model     string
	Available bool

	// Quota and Window configure the per-provider request quota.
	Quota  int
	Window time.Duration

	// Initial performance figures, replaced by observations over time.
	AvgResponseTime time.Duration
	SuccessRate     float64
	CostPer1K       float64
}

// Weights are the tunables of the scoring selector.
type Weights struct {
	// SuccessWeight multiplies the provider success rate.
	SuccessWeight float64

	// LatencyBaselineMs is the response time (ms) that scores zero.
	LatencyBaselineMs float64

	// LatencyDivisor scales the latency bonus for every request.
	LatencyDivisor float64

	// UrgentLatencyDivisor scales the extra latency bonus for urgent requests.
	UrgentLatencyDivisor float64

	// CostBaseline is the cost per 1K that scores zero for low priority requests.
	CostBaseline float64

	// CostMultiplier scales the cost bonus for low priority requests.
	CostMultiplier float64

	// Affinity adds a fixed bonus for a provider on a request type.
	Affinity map[ai.RequestType]map[string]float64
}

// DefaultWeights returns the default scoring tunables.
func DefaultWeights() Weights {
	return Weights{
		SuccessWeight:        40,
		LatencyBaselineMs:    3000,
		LatencyDivisor:       100,
		UrgentLatencyDivisor: 50,
		CostBaseline:         0.01,
		CostMultiplier:       1000,
		Affinity:             DefaultAffinity(),
	}
}

// DefaultAffinity returns the static request-type to provider bonus table.
func DefaultAffinity() map[ai.RequestType]map[string]float64 {
	return map[ai.RequestType]map[string]float64{
		ai.TypeContactScoring:        {"gemini": 5},
		ai.TypeContactEnrichment:     {"gemini": 8},
		ai.TypeEmailGeneration:       {"openai": 10},
		ai.TypeEmailAnalysis:         {"openai": 5},
		ai.TypeInsightsGeneration:    {"anthropic": 8},
		ai.TypeCommunicationAnalysis: {"anthropic": 5},
		ai.TypeAutomationSuggestions: {"openai": 5},
		ai.TypePredictiveAnalytics:   {"gemini": 5},
		ai.TypeRelationshipMapping:   {"anthropic": 5},
	}
}

// SelectionStats is a point-in-time view of selector activity.
type SelectionStats struct {
	// TotalSelections is the number of SelectProvider calls.
	TotalSelections int64 `json:"total_selections"`

	// SelectionsPerProvider counts successful selections by provider name.
	SelectionsPerProvider map[string]int64 `json:"selections_per_provider"`

	// PreferredCount is the number of selections that honoured a pinned provider.
	PreferredCount int64 `json:"preferred_count"`

	// NoProviderCount is the number of selections that found no candidate.
	NoProviderCount int64 `json:"no_provider_count"`

	// LastResetTime is when the statistics were last reset.
	LastResetTime time.Time `json:"last_reset_time"`
}
