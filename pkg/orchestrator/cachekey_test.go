package orchestrator

import (
	"testing"
	"time"

	"smartcrm-hq/conductor/pkg/ai"
)

func TestCacheKey(t *testing.T) {
	base := &ai.Request{
		Type: ai.TypeContactScoring,
		Data: map[string]any{"name": "Ada", "company": "Analytical", "score": 3},
	}

	tests := []struct {
		name  string
		other *ai.Request
		same  bool
	}{
		{
			name: "same data different insertion order",
			other: &ai.Request{
				Type: ai.TypeContactScoring,
				Data: map[string]any{"score": 3, "company": "Analytical", "name": "Ada"},
			},
			same: true,
		},
		{
			name: "id and priority ignored",
			other: &ai.Request{
				ID:       "other",
				Priority: ai.PriorityUrgent,
				Type:     ai.TypeContactScoring,
				Data:     map[string]any{"name": "Ada", "company": "Analytical", "score": 3},
			},
			same: true,
		},
		{
			name: "auto provider equals empty provider",
			other: &ai.Request{
				Type:    ai.TypeContactScoring,
				Data:    map[string]any{"name": "Ada", "company": "Analytical", "score": 3},
				Options: ai.Options{Provider: ai.ProviderAuto},
			},
			same: true,
		},
		{
			name: "different type",
			other: &ai.Request{
				Type: ai.TypeContactEnrichment,
				Data: map[string]any{"name": "Ada", "company": "Analytical", "score": 3},
			},
		},
		{
			name: "different data",
			other: &ai.Request{
				Type: ai.TypeContactScoring,
				Data: map[string]any{"name": "Grace", "company": "Analytical", "score": 3},
			},
		},
		{
			name: "pinned provider",
			other: &ai.Request{
				Type:    ai.TypeContactScoring,
				Data:    map[string]any{"name": "Ada", "company": "Analytical", "score": 3},
				Options: ai.Options{Provider: "gemini"},
			},
		},
	}

	want, err := CacheKey(base)
	if err != nil {
		t.Fatalf("CacheKey() error = %v", err)
	}
	if len(want) != 64 {
		t.Errorf("CacheKey() length = %d, want 64 hex chars", len(want))
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := CacheKey(tt.other)
			if err != nil {
				t.Fatalf("CacheKey() error = %v", err)
			}
			if (got == want) != tt.same {
				t.Errorf("CacheKey() equal = %v, want %v", got == want, tt.same)
			}
		})
	}
}

func TestCacheKey_Unencodable(t *testing.T) {
	req := &ai.Request{Type: ai.TypeEmailGeneration, Data: map[string]any{"ch": make(chan int)}}
	if _, err := CacheKey(req); err == nil {
		t.Error("CacheKey() error = nil for unencodable data")
	}
}

func TestCacheTTL(t *testing.T) {
	tests := []struct {
		requestType ai.RequestType
		want        time.Duration
	}{
		{ai.TypeContactScoring, time.Hour},
		{ai.TypeContactEnrichment, 24 * time.Hour},
		{ai.TypeEmailGeneration, 30 * time.Minute},
		{ai.TypeEmailAnalysis, 2 * time.Hour},
		{ai.TypeRelationshipMapping, 24 * time.Hour},
		{"unknown", time.Hour},
	}

	for _, tt := range tests {
		t.Run(string(tt.requestType), func(t *testing.T) {
			if got := CacheTTL(tt.requestType); got != tt.want {
				t.Errorf("CacheTTL(%s) = %v, want %v", tt.requestType, got, tt.want)
			}
		})
	}

	for _, rt := range ai.AllRequestTypes {
		if _, ok := cacheTTLs[rt]; !ok {
			t.Errorf("request type %s has no cache TTL", rt)
		}
	}
}
