package providers

import "smartcrm-hq/conductor/pkg/ai"

var endpoints = map[ai.RequestType]string{
	ai.TypeContactScoring:        "/ai/score-contact",
	ai.TypeContactEnrichment:     "/ai/enrich-contact",
	ai.TypeEmailGeneration:       "/ai/generate-email",
	ai.TypeEmailAnalysis:         "/ai/analyze-email",
	ai.TypeInsightsGeneration:    "/ai/generate-insights",
	ai.TypeCommunicationAnalysis: "/ai/analyze-communication",
	ai.TypeAutomationSuggestions: "/ai/suggest-automations",
	ai.TypePredictiveAnalytics:   "/ai/predictive-analytics",
	ai.TypeRelationshipMapping:   "/ai/map-relationships",
}

// DefaultEndpoint is used for request types without a dedicated endpoint.
const DefaultEndpoint = "/ai/process"

// EndpointFor returns the provider endpoint of a request type.
func EndpointFor(t ai.RequestType) string {
	if ep, ok := endpoints[t]; ok {
		return ep
	}
	return DefaultEndpoint
}
