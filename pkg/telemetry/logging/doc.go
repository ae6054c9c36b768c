// Package logging builds the service's structured loggers on log/slog.
//
// # Usage
//
//	logger, err := logging.New(logging.Config{
//	    Level:     "info",
//	    Format:    "json",
//	    RedactPII: true,
//	})
//	slog.SetDefault(logger)
//
// Components log through slog.Default().With("component", ...) and pass a
// context so correlation fields are attached:
//
//	ctx = logging.WithRequestID(ctx, req.ID)
//	ctx = logging.WithRequestType(ctx, string(req.Type))
//	logger.InfoContext(ctx, "request completed", "provider", name)
//
// # PII Redaction
//
// With RedactPII enabled, string attributes are scrubbed before output:
//
//   - Emails: jane@acme.com → ***@acme.com
//   - Phone numbers: +1 415 555 0100 → ***-***-****
//   - API keys and bearer tokens
//
// Attributes whose key names a credential (api_key, token, secret) keep only
// a four character prefix.
package logging
