// Package routing keeps the registry of AI providers and selects which
// provider serves each request.
//
// # Registry
//
// The Registry is the single source of truth for provider state: availability,
// the per-provider request quota and observed performance. Providers are
// registered once (re-registration updates static fields) and never removed.
// Every update to a provider happens in one critical section:
//
//  1. roll the quota window if it has elapsed
//  2. fold the call duration into AvgResponseTime (EMA, alpha 0.1)
//  3. fold the outcome into SuccessRate (EMA, alpha 0.1)
//  4. consume one unit of quota (never below zero)
//
// # Selection
//
// Candidates are providers that are available and have quota left. A request
// pinned to a candidate provider gets that provider. Otherwise candidates are
// scored:
//
//	score = successRate*SuccessWeight
//	      + (LatencyBaselineMs - avgMs)/LatencyDivisor
//	      + (CostBaseline - costPer1K)*CostMultiplier      (low priority only)
//	      + Affinity[type][provider]
//	      + (LatencyBaselineMs - avgMs)/UrgentLatencyDivisor (urgent only)
//
// The highest score wins; ties keep registration order. When there are no
// candidates SelectProvider returns an error matching ErrNoProviderAvailable.
//
// # Thread Safety
//
// Registry and Selector are safe for concurrent use. Returned Provider values
// are copies.
package routing
