package routing

import (
	"errors"
	"testing"
	"time"

	"smartcrm-hq/conductor/pkg/ai"
)

func newTestSelector(t *testing.T, specs ...ProviderSpec) *Selector {
	t.Helper()
	reg := NewRegistry()
	for _, s := range specs {
		if err := reg.RegisterProvider(s); err != nil {
			t.Fatalf("RegisterProvider(%s) error = %v", s.Name, err)
		}
	}
	return NewSelector(reg, DefaultWeights())
}

func TestSelector_SelectProvider(t *testing.T) {
	fast := ProviderSpec{Name: "fast", Available: true, Quota: 10, Window: time.Minute,
		AvgResponseTime: 500 * time.Millisecond, SuccessRate: 0.9, CostPer1K: 0.005}
	cheap := ProviderSpec{Name: "cheap", Available: true, Quota: 10, Window: time.Minute,
		AvgResponseTime: 900 * time.Millisecond, SuccessRate: 0.9, CostPer1K: 0.0001}
	reliable := ProviderSpec{Name: "reliable", Available: true, Quota: 10, Window: time.Minute,
		AvgResponseTime: 900 * time.Millisecond, SuccessRate: 0.99, CostPer1K: 0.005}

	tests := []struct {
		name    string
		specs   []ProviderSpec
		request *ai.Request
		want    string
		wantErr error
	}{
		{
			name:    "no providers",
			request: &ai.Request{Type: ai.TypeContactScoring},
			wantErr: ErrNoProviderAvailable,
		},
		{
			name:    "medium prefers latency",
			specs:   []ProviderSpec{cheap, fast},
			request: &ai.Request{Type: ai.TypeContactScoring, Priority: ai.PriorityMedium},
			want:    "fast",
		},
		{
			name:    "low priority prefers cost",
			specs:   []ProviderSpec{fast, cheap},
			request: &ai.Request{Type: ai.TypeContactScoring, Priority: ai.PriorityLow},
			want:    "cheap",
		},
		{
			name:    "success rate dominates small latency gap",
			specs:   []ProviderSpec{cheap, reliable},
			request: &ai.Request{Type: ai.TypeContactScoring},
			want:    "reliable",
		},
		{
			name:    "pinned provider honoured",
			specs:   []ProviderSpec{fast, cheap},
			request: &ai.Request{Type: ai.TypeContactScoring, Options: ai.Options{Provider: "cheap"}},
			want:    "cheap",
		},
		{
			name:    "unknown pinned provider falls back to scoring",
			specs:   []ProviderSpec{cheap, fast},
			request: &ai.Request{Type: ai.TypeContactScoring, Options: ai.Options{Provider: "nope"}},
			want:    "fast",
		},
		{
			name:    "tie keeps registration order",
			specs:   []ProviderSpec{{Name: "a", Available: true, Quota: 1, Window: time.Minute}, {Name: "b", Available: true, Quota: 1, Window: time.Minute}},
			request: &ai.Request{Type: ai.TypeContactScoring},
			want:    "a",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newTestSelector(t, tt.specs...)
			got, err := s.SelectProvider(tt.request)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("SelectProvider() error = %v, want %v", err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("SelectProvider() error = %v", err)
			}
			if got.Name != tt.want {
				t.Errorf("SelectProvider() = %s, want %s", got.Name, tt.want)
			}
		})
	}
}

func TestSelector_Affinity(t *testing.T) {
	openai := ProviderSpec{Name: "openai", Available: true, Quota: 10, Window: time.Minute,
		AvgResponseTime: time.Second, SuccessRate: 0.9}
	gemini := ProviderSpec{Name: "gemini", Available: true, Quota: 10, Window: time.Minute,
		AvgResponseTime: time.Second, SuccessRate: 0.9}

	s := newTestSelector(t, openai, gemini)

	got, err := s.SelectProvider(&ai.Request{Type: ai.TypeContactEnrichment})
	if err != nil {
		t.Fatalf("SelectProvider() error = %v", err)
	}
	if got.Name != "gemini" {
		t.Errorf("SelectProvider(enrichment) = %s, want gemini", got.Name)
	}

	got, _ = s.SelectProvider(&ai.Request{Type: ai.TypeEmailGeneration})
	if got.Name != "openai" {
		t.Errorf("SelectProvider(email_generation) = %s, want openai", got.Name)
	}
}

func TestSelector_ExhaustedProviders(t *testing.T) {
	spec := ProviderSpec{Name: "openai", Available: true, Quota: 1, Window: time.Hour, SuccessRate: 1}
	s := newTestSelector(t, spec)

	if err := s.Registry().RecordOutcome("openai", time.Second, true); err != nil {
		t.Fatalf("RecordOutcome() error = %v", err)
	}

	_, err := s.SelectProvider(&ai.Request{Type: ai.TypeContactScoring})
	var npe *NoProviderAvailableError
	if !errors.As(err, &npe) {
		t.Fatalf("SelectProvider() error = %v, want *NoProviderAvailableError", err)
	}
	if len(npe.Registered) != 1 || npe.Registered[0] != "openai" {
		t.Errorf("Registered = %v, want [openai]", npe.Registered)
	}

	stats := s.Stats()
	if stats.NoProviderCount != 1 {
		t.Errorf("NoProviderCount = %d, want 1", stats.NoProviderCount)
	}
}

func TestSelector_Resolve(t *testing.T) {
	fast := ProviderSpec{Name: "fast", Available: true, Quota: 10, Window: time.Minute,
		AvgResponseTime: 500 * time.Millisecond, SuccessRate: 0.9}
	slow := ProviderSpec{Name: "slow", Available: true, Quota: 10, Window: time.Minute,
		AvgResponseTime: 2 * time.Second, SuccessRate: 0.9}
	s := newTestSelector(t, slow, fast)

	req := &ai.Request{Type: ai.TypeContactScoring}
	got, err := s.Resolve(req)
	if err != nil {
		t.Fatalf("Resolve() error = %v", err)
	}
	want, err := s.SelectProvider(req)
	if err != nil {
		t.Fatalf("SelectProvider() error = %v", err)
	}
	if got.Name != want.Name {
		t.Errorf("Resolve() = %s, want %s", got.Name, want.Name)
	}

	stats := s.Stats()
	if stats.TotalSelections != 1 || stats.SelectionsPerProvider["fast"] != 1 {
		t.Errorf("stats = %+v, want only the SelectProvider call counted", stats)
	}

	empty := newTestSelector(t)
	if _, err := empty.Resolve(req); !errors.Is(err, ErrNoProviderAvailable) {
		t.Errorf("Resolve() error = %v, want ErrNoProviderAvailable", err)
	}
	if n := empty.Stats().NoProviderCount; n != 0 {
		t.Errorf("NoProviderCount = %d, want 0", n)
	}
}

func TestScore(t *testing.T) {
	p := Provider{
		Name: "openai",
		Performance: Performance{
			AvgResponseTime: time.Second,
			SuccessRate:     0.5,
			CostPer1K:       0.002,
		},
	}
	w := DefaultWeights()
	w.Affinity = nil

	tests := []struct {
		name     string
		priority ai.Priority
		want     float64
	}{
		{name: "medium", priority: ai.PriorityMedium, want: 20 + 20},
		{name: "low adds cost bonus", priority: ai.PriorityLow, want: 20 + 20 + 8},
		{name: "urgent adds latency bonus", priority: ai.PriorityUrgent, want: 20 + 20 + 40},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Score(p, ai.TypeContactScoring, tt.priority, w)
			if !floatEq(got, tt.want) {
				t.Errorf("Score() = %v, want %v", got, tt.want)
			}
		})
	}
}
