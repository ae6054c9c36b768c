package middleware

import (
	"context"
	"crypto/sha256"
	"encoding/json"
	"log/slog"
	"net/http"
	"strings"
)

// APIKey is an accepted API key.
type APIKey struct {
	Name    string
	Key     string
	Enabled bool
}

// APIKeys validates API keys. Keys are indexed by their SHA-256 digest so the
// plaintext is not kept as a map key. It is immutable after creation.
type APIKeys struct {
	keys map[[32]byte]APIKey
}

// NewAPIKeys creates a validator holding keys.
func NewAPIKeys(keys []APIKey) *APIKeys {
	v := &APIKeys{keys: make(map[[32]byte]APIKey, len(keys))}
	for _, k := range keys {
		v.keys[sha256.Sum256([]byte(k.Key))] = k
	}
	return v
}

// Validate returns the key entry for key. It reports false for unknown and
// disabled keys.
func (v *APIKeys) Validate(key string) (APIKey, bool) {
	k, ok := v.keys[sha256.Sum256([]byte(key))]
	if !ok || !k.Enabled {
		return APIKey{}, false
	}
	return k, true
}

const apiKeyNameKey contextKey = "api_key_name"

// Auth rejects requests without a valid API key with 401. header names the
// header carrying the key; "Authorization" expects the Bearer scheme.
func Auth(keys *APIKeys, header string, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	if header == "" {
		header = "Authorization"
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			key := extractKey(r, header)
			if key == "" {
				logger.WarnContext(r.Context(), "Missing API key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				unauthorized(w, r, "missing API key")
				return
			}
			k, ok := keys.Validate(key)
			if !ok {
				logger.WarnContext(r.Context(), "Invalid API key", "remote_addr", r.RemoteAddr, "path", r.URL.Path)
				unauthorized(w, r, "invalid API key")
				return
			}
			ctx := context.WithValue(r.Context(), apiKeyNameKey, k.Name)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func extractKey(r *http.Request, header string) string {
	value := strings.TrimSpace(r.Header.Get(header))
	if !strings.EqualFold(header, "Authorization") {
		return value
	}
	scheme, token, ok := strings.Cut(value, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return ""
	}
	return strings.TrimSpace(token)
}

func unauthorized(w http.ResponseWriter, r *http.Request, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.Header().Set("WWW-Authenticate", `Bearer realm="conductor"`)
	w.WriteHeader(http.StatusUnauthorized)
	_ = json.NewEncoder(w).Encode(map[string]string{
		"error":      msg,
		"request_id": GetRequestID(r.Context()),
	})
}

// GetAPIKeyName returns the name of the authenticated key, or "" outside
// Auth.
func GetAPIKeyName(ctx context.Context) string {
	name, _ := ctx.Value(apiKeyNameKey).(string)
	return name
}
