// Package ai defines the provider-agnostic request and response types shared by
// the orchestrator, the task queue and the HTTP API.
//
// # Request Types
//
// The set of AI operations is closed. Each RequestType maps to exactly one
// provider endpoint (see providers.EndpointFor) and one cache TTL:
//
//   - contact_scoring, contact_enrichment
//   - email_generation, email_analysis
//   - insights_generation, communication_analysis
//   - automation_suggestions, predictive_analytics, relationship_mapping
//
// # Priorities
//
// Priorities are totally ordered (low < medium < high < urgent). Every pending
// list in this module orders by Priority.Rank() first and by enqueue order
// second.
//
// # Usage
//
//	req := &ai.Request{
//	    Type:     ai.TypeContactScoring,
//	    Priority: ai.PriorityHigh,
//	    Data:     map[string]any{"id": "c1"},
//	}
//	if err := req.Validate(); err != nil {
//	    return err
//	}
//	resp, err := orch.Execute(ctx, req)
package ai
