// Package providers performs the network calls to external AI providers.
//
// # Overview
//
// Everything above this package is provider-agnostic. A Call names the
// provider, the model and the endpoint of the operation; a Transport turns it
// into a network request and returns a normalized Result. The endpoint of each
// request type is fixed (see EndpointFor).
//
// # Architecture
//
//  1. Transport interface - Invoke a call, check provider health
//  2. HTTPTransport - JSON over HTTP with connection pooling and typed errors
//  3. GeminiTransport - Google Gemini through the official genai SDK
//  4. Mux - dispatches calls to the transport registered for the provider name
//  5. HealthMonitor - periodic health checks that flip provider availability
//
// Transports do not retry. Retries are the responsibility of the task queue.
//
// # Basic Usage
//
//	mux := providers.NewMux()
//	mux.Register("openai", providers.NewHTTPTransport(providers.Config{
//	    Name:    "openai",
//	    BaseURL: "https://ai.example.com/openai",
//	    APIKey:  os.Getenv("OPENAI_API_KEY"),
//	    Timeout: 30 * time.Second,
//	}))
//
//	res, err := mux.Invoke(ctx, &providers.Call{
//	    Provider: "openai",
//	    Model:    "gpt-4o-mini",
//	    Endpoint: providers.EndpointFor(ai.TypeEmailGeneration),
//	    Payload:  data,
//	})
//
// # Error Handling
//
// HTTP status codes are mapped to typed errors:
//
//   - 401/403: *AuthError
//   - 429: *RateLimitError (with RetryAfter)
//   - other non-2xx: *ProviderError
//   - deadline exceeded: *TimeoutError
//   - malformed body: *ParseError
//
// Unknown provider names passed to a Mux return *UnknownProviderError.
package providers
