package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"time"

	"smartcrm-hq/conductor/pkg/ai"
)

// CacheNamespace is the cache namespace holding AI responses.
const CacheNamespace = "ai_responses"

// CacheTag is attached to every cached response so the whole response cache
// can be invalidated at once.
const CacheTag = "ai"

// defaultCacheTTL applies to request types missing from cacheTTLs.
const defaultCacheTTL = time.Hour

var cacheTTLs = map[ai.RequestType]time.Duration{
	ai.TypeContactScoring:        time.Hour,
	ai.TypeContactEnrichment:     24 * time.Hour,
	ai.TypeEmailGeneration:       30 * time.Minute,
	ai.TypeEmailAnalysis:         2 * time.Hour,
	ai.TypeInsightsGeneration:    time.Hour,
	ai.TypeCommunicationAnalysis: 30 * time.Minute,
	ai.TypeAutomationSuggestions: 2 * time.Hour,
	ai.TypePredictiveAnalytics:   30 * time.Minute,
	ai.TypeRelationshipMapping:   24 * time.Hour,
}

// CacheTTL returns how long responses of type t stay cached.
func CacheTTL(t ai.RequestType) time.Duration {
	if ttl, ok := cacheTTLs[t]; ok {
		return ttl
	}
	return defaultCacheTTL
}

// CacheKey returns the hex SHA-256 of the request type, its JSON-encoded
// data and its provider preference. encoding/json sorts map keys, so equal
// payloads built in different orders share a key.
func CacheKey(req *ai.Request) (string, error) {
	data, err := json.Marshal(req.Data)
	if err != nil {
		return "", fmt.Errorf("failed to encode request data: %w", err)
	}

	h := sha256.New()
	h.Write([]byte(req.Type))
	h.Write([]byte{0})
	h.Write(data)
	h.Write([]byte{0})
	h.Write([]byte(req.Options.ProviderPreference()))
	return hex.EncodeToString(h.Sum(nil)), nil
}
