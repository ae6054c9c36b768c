package providers

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestHTTPTransport_Invoke(t *testing.T) {
	var gotAuth, gotPath string
	var gotBody callBody

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		gotPath = r.URL.Path
		_ = json.NewDecoder(r.Body).Decode(&gotBody)
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"result":{"score":87},"model":"gpt-4o","confidence":0.93,"usage":{"total_tokens":420}}`))
	}))
	defer server.Close()

	transport := NewHTTPTransport(Config{
		Name:    "openai",
		BaseURL: server.URL,
		APIKey:  "test-key",
		Timeout: 5 * time.Second,
	})
	defer transport.Close()

	res, err := transport.Invoke(context.Background(), &Call{
		Provider: "openai",
		Model:    "gpt-4o-mini",
		Endpoint: "/ai/score-contact",
		Payload:  map[string]any{"id": "c1"},
		Context:  map[string]string{"contact_id": "c1"},
	})
	if err != nil {
		t.Fatalf("Invoke() error = %v", err)
	}

	if gotAuth != "Bearer test-key" {
		t.Errorf("Authorization = %q, want %q", gotAuth, "Bearer test-key")
	}
	if gotPath != "/ai/score-contact" {
		t.Errorf("path = %q, want /ai/score-contact", gotPath)
	}
	if gotBody.Model != "gpt-4o-mini" {
		t.Errorf("body model = %q, want gpt-4o-mini", gotBody.Model)
	}
	if gotBody.Context["contact_id"] != "c1" {
		t.Errorf("body context = %v, want contact_id=c1", gotBody.Context)
	}

	data, ok := res.Data.(map[string]any)
	if !ok || data["score"] != float64(87) {
		t.Errorf("Data = %v, want map with score 87", res.Data)
	}
	if res.Model != "gpt-4o" {
		t.Errorf("Model = %q, want gpt-4o", res.Model)
	}
	if res.Confidence == nil || *res.Confidence != 0.93 {
		t.Errorf("Confidence = %v, want 0.93", res.Confidence)
	}
	if res.Units != 420 {
		t.Errorf("Units = %d, want 420", res.Units)
	}
}

func TestHTTPTransport_StatusErrors(t *testing.T) {
	tests := []struct {
		name       string
		statusCode int
		headers    map[string]string
		check      func(t *testing.T, err error)
	}{
		{
			name:       "401 unauthorized",
			statusCode: http.StatusUnauthorized,
			check: func(t *testing.T, err error) {
				var authErr *AuthError
				if !errors.As(err, &authErr) {
					t.Errorf("error = %T, want *AuthError", err)
				}
			},
		},
		{
			name:       "429 rate limited",
			statusCode: http.StatusTooManyRequests,
			headers:    map[string]string{"Retry-After": "7"},
			check: func(t *testing.T, err error) {
				var rlErr *RateLimitError
				if !errors.As(err, &rlErr) {
					t.Fatalf("error = %T, want *RateLimitError", err)
				}
				if rlErr.RetryAfter != 7*time.Second {
					t.Errorf("RetryAfter = %v, want 7s", rlErr.RetryAfter)
				}
			},
		},
		{
			name:       "500 server error",
			statusCode: http.StatusInternalServerError,
			check: func(t *testing.T, err error) {
				var pErr *ProviderError
				if !errors.As(err, &pErr) {
					t.Fatalf("error = %T, want *ProviderError", err)
				}
				if pErr.StatusCode != http.StatusInternalServerError {
					t.Errorf("StatusCode = %d, want 500", pErr.StatusCode)
				}
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var calls int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&calls, 1)
				for k, v := range tt.headers {
					w.Header().Set(k, v)
				}
				w.WriteHeader(tt.statusCode)
				_, _ = w.Write([]byte(`{"error":"boom"}`))
			}))
			defer server.Close()

			transport := NewHTTPTransport(Config{Name: "p", BaseURL: server.URL})
			_, err := transport.Invoke(context.Background(), &Call{Provider: "p", Endpoint: "/ai/process"})
			if err == nil {
				t.Fatal("Invoke() error = nil, want error")
			}
			tt.check(t, err)

			if got := atomic.LoadInt32(&calls); got != 1 {
				t.Errorf("server called %d times, want 1 (no retries)", got)
			}
		})
	}
}

func TestHTTPTransport_Timeout(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		select {
		case <-time.After(time.Second):
		case <-r.Context().Done():
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	transport := NewHTTPTransport(Config{Name: "slow", BaseURL: server.URL})
	_, err := transport.Invoke(context.Background(), &Call{
		Provider: "slow",
		Endpoint: "/ai/process",
		Timeout:  50 * time.Millisecond,
	})

	var timeoutErr *TimeoutError
	if !errors.As(err, &timeoutErr) {
		t.Fatalf("Invoke() error = %v, want *TimeoutError", err)
	}
	if timeoutErr.Timeout != 50*time.Millisecond {
		t.Errorf("Timeout = %v, want 50ms", timeoutErr.Timeout)
	}
}

func TestHTTPTransport_ParseError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`not json`))
	}))
	defer server.Close()

	transport := NewHTTPTransport(Config{Name: "p", BaseURL: server.URL})
	_, err := transport.Invoke(context.Background(), &Call{Provider: "p", Endpoint: "/ai/process"})

	var parseErr *ParseError
	if !errors.As(err, &parseErr) {
		t.Fatalf("Invoke() error = %v, want *ParseError", err)
	}
	if parseErr.RawResponse != "not json" {
		t.Errorf("RawResponse = %q, want %q", parseErr.RawResponse, "not json")
	}
}

func TestParseRetryAfter(t *testing.T) {
	tests := []struct {
		header string
		want   time.Duration
	}{
		{"", 0},
		{"30", 30 * time.Second},
		{"garbage", 0},
	}

	for _, tt := range tests {
		if got := parseRetryAfter(tt.header); got != tt.want {
			t.Errorf("parseRetryAfter(%q) = %v, want %v", tt.header, got, tt.want)
		}
	}
}
