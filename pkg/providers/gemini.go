package providers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"google.golang.org/genai"
)

// instructions tells the model what each endpoint is expected to produce.
var instructions = map[string]string{
	"/ai/score-contact":         "Score the contact from 0 to 100 and explain the main factors.",
	"/ai/enrich-contact":        "Enrich the contact with missing company, role and social profile details.",
	"/ai/generate-email":        "Write an email for the given purpose and recipient.",
	"/ai/analyze-email":         "Analyze the email for sentiment, intent and required follow-ups.",
	"/ai/generate-insights":     "Generate actionable sales insights from the data.",
	"/ai/analyze-communication": "Analyze the communication history for tone, engagement and risk.",
	"/ai/suggest-automations":   "Suggest workflow automations that fit the data.",
	"/ai/predictive-analytics":  "Produce predictions with probabilities for the given records.",
	"/ai/map-relationships":     "Map relationships between the given people and organizations.",
}

// GeminiTransport calls Google Gemini through the genai SDK.
type GeminiTransport struct {
	client  *genai.Client
	name    string
	timeout time.Duration
}

// NewGeminiTransport creates a Gemini transport. The API key is read from
// config.APIKey, falling back to the SDK's environment lookup when empty.
func NewGeminiTransport(ctx context.Context, config Config) (*GeminiTransport, error) {
	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, &ConfigError{Provider: config.Name, Field: "api_key", Message: err.Error()}
	}
	return NewGeminiTransportFromClient(client, config), nil
}

// NewGeminiTransportFromClient wraps an existing genai client.
func NewGeminiTransportFromClient(client *genai.Client, config Config) *GeminiTransport {
	timeout := config.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &GeminiTransport{client: client, name: config.Name, timeout: timeout}
}

// Invoke implements Transport. The payload is sent as JSON together with the
// endpoint instruction and the model is asked for a JSON answer.
func (g *GeminiTransport) Invoke(ctx context.Context, call *Call) (*Result, error) {
	timeout := call.Timeout
	if timeout <= 0 {
		timeout = g.timeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	prompt, err := buildPrompt(call)
	if err != nil {
		return nil, err
	}

	resp, err := g.client.Models.GenerateContent(ctx, call.Model,
		genai.Text(prompt),
		&genai.GenerateContentConfig{ResponseMIMEType: "application/json"},
	)
	if err != nil {
		if errors.Is(ctx.Err(), context.DeadlineExceeded) {
			return nil, &TimeoutError{Provider: g.name, Timeout: timeout}
		}
		return nil, &ProviderError{Provider: g.name, Message: "generate content failed", Cause: err}
	}

	text := resp.Text()
	if text == "" {
		return nil, &ParseError{Provider: g.name, Cause: fmt.Errorf("empty response")}
	}

	var data any
	if err := json.Unmarshal([]byte(text), &data); err != nil {
		data = text
	}

	res := &Result{Data: data, Model: call.Model}
	if resp.ModelVersion != "" {
		res.Model = resp.ModelVersion
	}
	if resp.UsageMetadata != nil {
		res.Units = int(resp.UsageMetadata.TotalTokenCount)
	}
	return res, nil
}

// HealthCheck implements Transport by listing a single model page.
func (g *GeminiTransport) HealthCheck(ctx context.Context, _ string) error {
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()

	if _, err := g.client.Models.List(ctx, &genai.ListModelsConfig{PageSize: 1}); err != nil {
		return &ProviderError{Provider: g.name, Message: "health check failed", Cause: err}
	}
	return nil
}

func buildPrompt(call *Call) (string, error) {
	in, err := json.MarshalIndent(call.Payload, "", "  ")
	if err != nil {
		return "", fmt.Errorf("failed to marshal payload: %w", err)
	}

	instruction, ok := instructions[call.Endpoint]
	if !ok {
		instruction = "Process the input and answer in JSON."
	}

	var b strings.Builder
	b.WriteString(instruction)
	b.WriteString(" Respond with a single JSON object.\n\n[INPUT JSON]\n")
	b.Write(in)
	if len(call.Context) > 0 {
		ctxJSON, _ := json.Marshal(call.Context)
		b.WriteString("\n\n[CONTEXT]\n")
		b.Write(ctxJSON)
	}
	return b.String(), nil
}
