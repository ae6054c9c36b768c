package routing

import (
	"log/slog"
	"sync"

	"smartcrm-hq/conductor/pkg/ai"
)

// Selector picks the best provider for a request by scoring the registry's
// candidates.
type Selector struct {
	// registry supplies the candidate providers
	registry *Registry

	// weights holds the scoring tunables, replaceable at runtime
	weights Weights

	// mu protects weights
	mu sync.RWMutex

	// stats tracks selector activity
	stats *AtomicSelectionStats
}

// NewSelector creates a selector over the registry using the given weights.
// A nil Affinity table disables affinity bonuses.
func NewSelector(registry *Registry, weights Weights) *Selector {
	return &Selector{
		registry: registry,
		weights:  weights,
		stats:    NewAtomicSelectionStats(),
	}
}

// SetWeights replaces the scoring tunables.
func (s *Selector) SetWeights(w Weights) {
	s.mu.Lock()
	s.weights = w
	s.mu.Unlock()
}

// Weights returns the current scoring tunables.
func (s *Selector) Weights() Weights {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.weights
}

// Registry returns the registry the selector draws from.
func (s *Selector) Registry() *Registry {
	return s.registry
}

// Stats returns a snapshot of selector statistics.
func (s *Selector) Stats() *SelectionStats {
	return s.stats.Snapshot()
}

// SelectProvider returns the provider that should serve req.
//
// A pinned provider (req.Options.Provider) is returned when it is a
// candidate. Otherwise each candidate is scored and the highest score wins;
// ties keep registration order. Returns *NoProviderAvailableError when the
// registry has no candidate.
func (s *Selector) SelectProvider(req *ai.Request) (Provider, error) {
	s.stats.IncrementTotal()

	p, preferred, err := s.choose(req)
	if err != nil {
		s.stats.IncrementNoProvider()
		slog.Warn("no provider available",
			"request_type", req.Type,
			"registered", len(err.Registered),
		)
		return Provider{}, err
	}
	if preferred {
		s.stats.IncrementPreferred()
	}
	s.stats.IncrementProvider(p.Name)
	return p, nil
}

// Resolve returns the provider SelectProvider would pick for req right now
// without recording selection statistics.
func (s *Selector) Resolve(req *ai.Request) (Provider, error) {
	p, _, err := s.choose(req)
	if err != nil {
		return Provider{}, err
	}
	return p, nil
}

func (s *Selector) choose(req *ai.Request) (Provider, bool, *NoProviderAvailableError) {
	candidates := s.registry.Candidates()
	if len(candidates) == 0 {
		registered := s.registry.Snapshot()
		names := make([]string, len(registered))
		for i, p := range registered {
			names[i] = p.Name
		}
		return Provider{}, false, &NoProviderAvailableError{RequestType: req.Type, Registered: names}
	}

	if pref := req.Options.Provider; pref != "" && pref != ai.ProviderAuto {
		for _, c := range candidates {
			if c.Name == pref {
				return c, true, nil
			}
		}
		slog.Debug("preferred provider not a candidate, scoring",
			"provider", pref,
			"request_type", req.Type,
		)
	}

	w := s.Weights()
	priority := req.EffectivePriority()

	best := candidates[0]
	bestScore := Score(best, req.Type, priority, w)
	for _, c := range candidates[1:] {
		score := Score(c, req.Type, priority, w)
		if score > bestScore {
			best, bestScore = c, score
		}
	}

	slog.Debug("provider selected",
		"provider", best.Name,
		"score", bestScore,
		"request_type", req.Type,
		"priority", priority,
		"candidates", len(candidates),
	)
	return best, false, nil
}

// Score computes the selection score of provider p for a request of the
// given type and priority.
func Score(p Provider, t ai.RequestType, priority ai.Priority, w Weights) float64 {
	avgMs := float64(p.Performance.AvgResponseTime.Milliseconds())

	score := p.Performance.SuccessRate * w.SuccessWeight
	if w.LatencyDivisor != 0 {
		score += (w.LatencyBaselineMs - avgMs) / w.LatencyDivisor
	}

	if priority == ai.PriorityLow {
		score += (w.CostBaseline - p.Performance.CostPer1K) * w.CostMultiplier
	}

	if bonus, ok := w.Affinity[t]; ok {
		score += bonus[p.Name]
	}

	if priority == ai.PriorityUrgent && w.UrgentLatencyDivisor != 0 {
		score += (w.LatencyBaselineMs - avgMs) / w.UrgentLatencyDivisor
	}

	return score
}
