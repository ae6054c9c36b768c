package providers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"smartcrm-hq/conductor/pkg/telemetry/tracing"
)

// Config contains the configuration of a single provider transport.
type Config struct {
	// Name is the provider identifier (e.g., "openai", "anthropic")
	Name string

	// BaseURL is the API endpoint base URL
	BaseURL string

	// APIKey is the bearer token sent with every call
	APIKey string

	// Timeout is the default call timeout
	Timeout time.Duration

	// HealthPath is appended to BaseURL for health checks (default "/health")
	HealthPath string

	// Headers are extra headers sent with every call
	Headers map[string]string

	// MaxIdleConns is the maximum number of idle connections in the pool
	MaxIdleConns int

	// MaxIdleConnsPerHost is the maximum idle connections per host
	MaxIdleConnsPerHost int

	// IdleConnTimeout is how long an idle connection remains in the pool
	IdleConnTimeout time.Duration
}

// callBody is the JSON body sent to an HTTP provider.
type callBody struct {
	Model   string            `json:"model,omitempty"`
	Data    any               `json:"data"`
	Context map[string]string `json:"context,omitempty"`
}

// resultBody is the JSON body returned by an HTTP provider.
type resultBody struct {
	Result     json.RawMessage `json:"result"`
	Model      string          `json:"model,omitempty"`
	Confidence *float64        `json:"confidence,omitempty"`
	Cost       *float64        `json:"cost,omitempty"`
	Usage      struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// HTTPTransport calls a provider that speaks JSON over HTTP.
// It pools connections and maps HTTP status codes to typed errors.
type HTTPTransport struct {
	// config contains the transport configuration
	config Config

	// client is the HTTP client with connection pooling
	client *http.Client
}

// NewHTTPTransport creates an HTTP transport with connection pooling.
func NewHTTPTransport(config Config) *HTTPTransport {
	if config.Timeout <= 0 {
		config.Timeout = 30 * time.Second
	}
	if config.HealthPath == "" {
		config.HealthPath = "/health"
	}

	transport := &http.Transport{
		MaxIdleConns:        config.MaxIdleConns,
		MaxIdleConnsPerHost: config.MaxIdleConnsPerHost,
		IdleConnTimeout:     config.IdleConnTimeout,
		ForceAttemptHTTP2:   true,
	}

	return &HTTPTransport{
		config: config,
		client: &http.Client{Transport: transport},
	}
}

// Name returns the configured provider name.
func (t *HTTPTransport) Name() string {
	return t.config.Name
}

// Invoke implements Transport.
func (t *HTTPTransport) Invoke(ctx context.Context, call *Call) (*Result, error) {
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = t.config.Timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	body, err := json.Marshal(callBody{Model: call.Model, Data: call.Payload, Context: call.Context})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal payload: %w", err)
	}

	url := strings.TrimRight(t.config.BaseURL, "/") + call.Endpoint
	resp, err := t.do(ctx, http.MethodPost, url, body, timeout)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &ParseError{
			Provider: t.config.Name,
			Cause:    fmt.Errorf("failed to read response: %w", err),
		}
	}

	var rb resultBody
	if err := json.Unmarshal(raw, &rb); err != nil {
		return nil, &ParseError{
			Provider:    t.config.Name,
			RawResponse: string(raw),
			Cause:       fmt.Errorf("failed to unmarshal response: %w", err),
		}
	}

	var data any
	if len(rb.Result) > 0 {
		if err := json.Unmarshal(rb.Result, &data); err != nil {
			return nil, &ParseError{
				Provider:    t.config.Name,
				RawResponse: string(raw),
				Cause:       fmt.Errorf("failed to unmarshal result: %w", err),
			}
		}
	}

	model := rb.Model
	if model == "" {
		model = call.Model
	}

	return &Result{
		Data:       data,
		Model:      model,
		Confidence: rb.Confidence,
		Cost:       rb.Cost,
		Units:      rb.Usage.TotalTokens,
	}, nil
}

// HealthCheck implements Transport. It issues a GET against the health path.
func (t *HTTPTransport) HealthCheck(ctx context.Context, _ string) error {
	url := strings.TrimRight(t.config.BaseURL, "/") + t.config.HealthPath
	resp, err := t.do(ctx, http.MethodGet, url, nil, t.config.Timeout)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

// Close closes idle connections.
func (t *HTTPTransport) Close() error {
	t.client.CloseIdleConnections()
	slog.Debug("transport closed", "provider", t.config.Name)
	return nil
}

// do performs a single HTTP request and maps failures to typed errors.
// On success the caller owns the response body.
func (t *HTTPTransport) do(ctx context.Context, method, url string, body []byte, timeout time.Duration) (*http.Response, error) {
	var bodyReader io.Reader
	if body != nil {
		bodyReader = bytes.NewReader(body)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, bodyReader)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	for key, value := range t.config.Headers {
		req.Header.Set(key, value)
	}
	if t.config.APIKey != "" {
		req.Header.Set("Authorization", "Bearer "+t.config.APIKey)
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	tracing.Inject(ctx, req.Header)

	slog.Debug("sending request to provider",
		"provider", t.config.Name,
		"method", method,
		"url", url,
	)

	resp, err := t.client.Do(req)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Provider: t.config.Name, Timeout: timeout}
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, &ProviderError{Provider: t.config.Name, Message: "request failed", Cause: err}
	}

	if resp.StatusCode >= 200 && resp.StatusCode < 300 {
		return resp, nil
	}

	errorBody, _ := io.ReadAll(resp.Body)
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusUnauthorized, http.StatusForbidden:
		return nil, &AuthError{Provider: t.config.Name, Message: string(errorBody)}
	case http.StatusTooManyRequests:
		return nil, &RateLimitError{
			Provider:   t.config.Name,
			RetryAfter: parseRetryAfter(resp.Header.Get("Retry-After")),
			Message:    string(errorBody),
		}
	default:
		return nil, &ProviderError{
			Provider:   t.config.Name,
			StatusCode: resp.StatusCode,
			Message:    string(errorBody),
		}
	}
}

// parseRetryAfter parses the Retry-After header value.
// It supports both delay-seconds and HTTP-date formats.
func parseRetryAfter(header string) time.Duration {
	if header == "" {
		return 0
	}

	var seconds int
	if _, err := fmt.Sscanf(header, "%d", &seconds); err == nil {
		return time.Duration(seconds) * time.Second
	}

	if t, err := http.ParseTime(header); err == nil {
		return time.Until(t)
	}

	return 0
}
