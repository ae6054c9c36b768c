package ai

import (
	"fmt"
	"strings"
	"time"
)

// RequestType identifies the kind of AI operation requested.
type RequestType string

// Supported request types.
const (
	TypeContactScoring        RequestType = "contact_scoring"
	TypeContactEnrichment     RequestType = "contact_enrichment"
	TypeEmailGeneration       RequestType = "email_generation"
	TypeEmailAnalysis         RequestType = "email_analysis"
	TypeInsightsGeneration    RequestType = "insights_generation"
	TypeCommunicationAnalysis RequestType = "communication_analysis"
	TypeAutomationSuggestions RequestType = "automation_suggestions"
	TypePredictiveAnalytics   RequestType = "predictive_analytics"
	TypeRelationshipMapping   RequestType = "relationship_mapping"
)

// AllRequestTypes lists every supported request type in declaration order.
var AllRequestTypes = []RequestType{
	TypeContactScoring,
	TypeContactEnrichment,
	TypeEmailGeneration,
	TypeEmailAnalysis,
	TypeInsightsGeneration,
	TypeCommunicationAnalysis,
	TypeAutomationSuggestions,
	TypePredictiveAnalytics,
	TypeRelationshipMapping,
}

// Valid reports whether t is one of the supported request types.
func (t RequestType) Valid() bool {
	for _, known := range AllRequestTypes {
		if t == known {
			return true
		}
	}
	return false
}

// Priority is the urgency of a request or task.
type Priority string

// Supported priorities, lowest first.
const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Rank returns the ordering weight of the priority. Higher ranks are served first.
// Unknown priorities rank as medium.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityHigh:
		return 2
	case PriorityUrgent:
		return 3
	default:
		return 1
	}
}

// Valid reports whether p is one of the supported priorities.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent:
		return true
	default:
		return false
	}
}

// ParsePriority parses a priority name case-insensitively.
// Empty and unknown values parse as PriorityMedium.
func ParsePriority(s string) Priority {
	p := Priority(strings.ToLower(strings.TrimSpace(s)))
	if !p.Valid() {
		return PriorityMedium
	}
	return p
}

// ProviderAuto requests automatic provider selection.
const ProviderAuto = "auto"

// Options controls how a single request is executed.
type Options struct {
	// UseCache enables the read-through response cache.
	// nil means true.
	UseCache *bool `json:"use_cache,omitempty"`

	// Provider pins the request to a named provider. Empty or "auto" lets the
	// selector choose.
	Provider string `json:"provider,omitempty"`

	// Timeout bounds the provider call. Zero uses the orchestrator default.
	Timeout time.Duration `json:"timeout,omitempty"`
}

// CacheEnabled reports whether the response cache should be consulted.
func (o Options) CacheEnabled() bool {
	return o.UseCache == nil || *o.UseCache
}

// ProviderPreference returns the pinned provider name, or ProviderAuto.
func (o Options) ProviderPreference() string {
	if o.Provider == "" {
		return ProviderAuto
	}
	return o.Provider
}

// Request is a single AI operation. It must not be modified after submission.
type Request struct {
	// ID uniquely identifies the request. Assigned on submission when empty.
	ID string `json:"id"`

	// Type is the AI operation requested.
	Type RequestType `json:"type"`

	// Priority orders the request among pending work. Empty means medium.
	Priority Priority `json:"priority"`

	// Data is the opaque, JSON-encodable payload forwarded to the provider.
	Data any `json:"data"`

	// Context carries correlation identifiers (contact id, deal id, user id).
	Context map[string]string `json:"context,omitempty"`

	// Options controls caching, provider pinning and timeout.
	Options Options `json:"options"`
}

// Validate checks the request for structural errors.
func (r *Request) Validate() error {
	if r == nil {
		return fmt.Errorf("request cannot be nil")
	}
	if !r.Type.Valid() {
		return &ValidationError{Field: "type", Message: fmt.Sprintf("unsupported request type %q", r.Type)}
	}
	if r.Priority != "" && !r.Priority.Valid() {
		return &ValidationError{Field: "priority", Message: fmt.Sprintf("unsupported priority %q", r.Priority)}
	}
	if r.Options.Timeout < 0 {
		return &ValidationError{Field: "options.timeout", Message: "must not be negative"}
	}
	return nil
}

// EffectivePriority returns the request priority, defaulting to medium.
func (r *Request) EffectivePriority() Priority {
	if r.Priority == "" {
		return PriorityMedium
	}
	return r.Priority
}

// Metadata describes how a response was produced.
type Metadata struct {
	// Provider is the name of the provider that produced the result.
	Provider string `json:"provider"`

	// Model is the provider model that produced the result.
	Model string `json:"model"`

	// ProcessingTime is measured from the start of provider selection to
	// response assembly.
	ProcessingTime time.Duration `json:"processing_time"`

	// Confidence is the provider-reported (or default) confidence in [0,1].
	Confidence float64 `json:"confidence"`

	// Cached is true when the response was served from the cache.
	Cached bool `json:"cached"`

	// Timestamp is when the response was produced.
	Timestamp time.Time `json:"timestamp"`

	// Cost is the estimated cost in USD, when known.
	Cost *float64 `json:"cost,omitempty"`
}

// Response is the result of executing a Request.
type Response struct {
	ID       string      `json:"id"`
	Type     RequestType `json:"type"`
	Result   any         `json:"result"`
	Metadata Metadata    `json:"metadata"`
}

// Clone returns a shallow copy of the response with its own Metadata.
func (r *Response) Clone() *Response {
	if r == nil {
		return nil
	}
	c := *r
	if r.Metadata.Cost != nil {
		cost := *r.Metadata.Cost
		c.Metadata.Cost = &cost
	}
	return &c
}

// Bool returns a pointer to b. It is a convenience for Options.UseCache.
func Bool(b bool) *bool {
	return &b
}
