package config

import (
	"fmt"
	"net"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"

	"smartcrm-hq/conductor/pkg/ai"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "server.listen_address").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
// It implements the error interface and provides access to all field errors.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. It returns nil if the configuration is valid.
// All validation errors are collected and returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateProviders(cfg.Providers)...)
	errs = append(errs, validateSelector(&cfg.Selector)...)
	errs = append(errs, validateOrchestrator(&cfg.Orchestrator)...)
	errs = append(errs, validateQueue(&cfg.Queue)...)
	errs = append(errs, validateStores(cfg)...)
	errs = append(errs, validateIntake(&cfg.Intake)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}

	return nil
}

func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{Field: "server.listen_address", Message: "listen address is required"})
	} else if _, _, err := net.SplitHostPort(cfg.ListenAddress); err != nil {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: fmt.Sprintf("invalid listen address %q: %v", cfg.ListenAddress, err),
		})
	}

	timeouts := []struct {
		field string
		d     time.Duration
	}{
		{"server.read_timeout", cfg.ReadTimeout},
		{"server.write_timeout", cfg.WriteTimeout},
		{"server.idle_timeout", cfg.IdleTimeout},
		{"server.shutdown_timeout", cfg.ShutdownTimeout},
	}
	for _, t := range timeouts {
		if t.d < 0 {
			errs = append(errs, FieldError{Field: t.field, Message: "timeout must not be negative"})
		}
	}

	if cfg.MaxHeaderBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_header_bytes", Message: "must not be negative"})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{Field: "server.max_body_bytes", Message: "must not be negative"})
	}

	return append(errs, validateAuth(&cfg.Auth)...)
}

func validateAuth(cfg *AuthConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}
	var errs []FieldError
	if len(cfg.Keys) == 0 {
		errs = append(errs, FieldError{Field: "server.auth.keys", Message: "at least one key is required when auth is enabled"})
	}
	seen := make(map[string]bool, len(cfg.Keys))
	for i, k := range cfg.Keys {
		field := fmt.Sprintf("server.auth.keys[%d]", i)
		if k.Name == "" {
			errs = append(errs, FieldError{Field: field + ".name", Message: "name is required"})
		}
		switch {
		case k.Key == "":
			errs = append(errs, FieldError{Field: field + ".key", Message: "key is required"})
		case seen[k.Key]:
			errs = append(errs, FieldError{Field: field + ".key", Message: "duplicate key"})
		}
		seen[k.Key] = true
	}
	return errs
}

func validateProviders(providers []ProviderConfig) []FieldError {
	var errs []FieldError
	seen := make(map[string]bool, len(providers))

	for i, p := range providers {
		prefix := fmt.Sprintf("providers[%d]", i)

		if p.Name == "" {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: "provider name is required"})
		} else if seen[p.Name] {
			errs = append(errs, FieldError{Field: prefix + ".name", Message: fmt.Sprintf("duplicate provider %q", p.Name)})
		}
		seen[p.Name] = true

		switch p.Transport {
		case "http":
			if p.BaseURL == "" {
				errs = append(errs, FieldError{Field: prefix + ".base_url", Message: "base URL is required for http transport"})
			} else if u, err := url.Parse(p.BaseURL); err != nil || u.Scheme == "" || u.Host == "" {
				errs = append(errs, FieldError{
					Field:   prefix + ".base_url",
					Message: fmt.Sprintf("invalid base URL %q: must be absolute", p.BaseURL),
				})
			}
		case "gemini":
			if p.Model == "" {
				errs = append(errs, FieldError{Field: prefix + ".model", Message: "model is required for gemini transport"})
			}
		default:
			errs = append(errs, FieldError{
				Field:   prefix + ".transport",
				Message: fmt.Sprintf("invalid transport %q: must be 'http' or 'gemini'", p.Transport),
			})
		}

		if p.Timeout < 0 {
			errs = append(errs, FieldError{Field: prefix + ".timeout", Message: "timeout must not be negative"})
		}
		if p.Quota < 0 {
			errs = append(errs, FieldError{Field: prefix + ".quota", Message: "quota must not be negative"})
		}
		if p.Window < 0 {
			errs = append(errs, FieldError{Field: prefix + ".window", Message: "window must not be negative"})
		}
		if p.SuccessRate < 0 || p.SuccessRate > 1 {
			errs = append(errs, FieldError{Field: prefix + ".success_rate", Message: "success rate must be between 0 and 1"})
		}
		if p.CostPer1K < 0 {
			errs = append(errs, FieldError{Field: prefix + ".cost_per_1k", Message: "cost must not be negative"})
		}
	}

	return errs
}

func validateSelector(cfg *SelectorConfig) []FieldError {
	var errs []FieldError

	if cfg.LatencyDivisor <= 0 {
		errs = append(errs, FieldError{Field: "selector.latency_divisor", Message: "must be positive"})
	}
	if cfg.UrgentLatencyDivisor <= 0 {
		errs = append(errs, FieldError{Field: "selector.urgent_latency_divisor", Message: "must be positive"})
	}
	for reqType := range cfg.Affinity {
		if !ai.RequestType(reqType).Valid() {
			errs = append(errs, FieldError{
				Field:   "selector.affinity." + reqType,
				Message: fmt.Sprintf("unknown request type %q", reqType),
			})
		}
	}

	return errs
}

func validateOrchestrator(cfg *OrchestratorConfig) []FieldError {
	var errs []FieldError

	if cfg.DefaultTimeout <= 0 {
		errs = append(errs, FieldError{Field: "orchestrator.default_timeout", Message: "must be positive"})
	}
	if cfg.HistorySize <= 0 {
		errs = append(errs, FieldError{Field: "orchestrator.history_size", Message: "must be positive"})
	}
	if cfg.ResultStoreSize <= 0 {
		errs = append(errs, FieldError{Field: "orchestrator.result_store_size", Message: "must be positive"})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, FieldError{Field: "orchestrator.poll_interval", Message: "must be positive"})
	}

	return errs
}

func validateQueue(cfg *QueueConfig) []FieldError {
	var errs []FieldError

	if cfg.MaxBatchSize < 1 {
		errs = append(errs, FieldError{Field: "queue.max_batch_size", Message: "must be at least 1"})
	}
	if cfg.MaxConcurrency < 1 {
		errs = append(errs, FieldError{Field: "queue.max_concurrency", Message: "must be at least 1"})
	}
	if cfg.MaxRetries < 1 {
		errs = append(errs, FieldError{Field: "queue.max_retries", Message: "must be at least 1"})
	}
	if cfg.RetryDelay < 0 {
		errs = append(errs, FieldError{Field: "queue.retry_delay", Message: "must not be negative"})
	}
	if cfg.PollInterval <= 0 {
		errs = append(errs, FieldError{Field: "queue.poll_interval", Message: "must be positive"})
	}
	if cfg.Retention <= 0 {
		errs = append(errs, FieldError{Field: "queue.retention", Message: "must be positive"})
	}
	if _, err := cron.ParseStandard(cfg.SweepSchedule); err != nil {
		errs = append(errs, FieldError{
			Field:   "queue.sweep_schedule",
			Message: fmt.Sprintf("invalid cron schedule %q: %v", cfg.SweepSchedule, err),
		})
	}

	return errs
}

func validateStores(cfg *Config) []FieldError {
	var errs []FieldError
	usesRedis := false

	switch cfg.Cache.Backend {
	case "memory":
	case "redis":
		usesRedis = true
	default:
		errs = append(errs, FieldError{
			Field:   "cache.backend",
			Message: fmt.Sprintf("invalid cache backend %q: must be 'memory' or 'redis'", cfg.Cache.Backend),
		})
	}
	if cfg.Cache.MaxEntries < 1 {
		errs = append(errs, FieldError{Field: "cache.max_entries", Message: "must be at least 1"})
	}

	switch cfg.RateLimit.Backend {
	case "memory":
	case "redis":
		usesRedis = usesRedis || cfg.RateLimit.Enabled
	default:
		errs = append(errs, FieldError{
			Field:   "rate_limit.backend",
			Message: fmt.Sprintf("invalid rate limit backend %q: must be 'memory' or 'redis'", cfg.RateLimit.Backend),
		})
	}
	if cfg.RateLimit.Enabled && (cfg.RateLimit.MaxRequests < 1 || cfg.RateLimit.Window <= 0) {
		errs = append(errs, FieldError{
			Field:   "rate_limit",
			Message: "max_requests and window must be positive when rate limiting is enabled",
		})
	}

	if usesRedis && len(cfg.Redis.Addrs) == 0 {
		errs = append(errs, FieldError{Field: "redis.addrs", Message: "at least one address is required for redis backends"})
	}

	if cfg.Archive.Enabled && cfg.Archive.Path == "" {
		errs = append(errs, FieldError{Field: "archive.path", Message: "path is required when the archive is enabled"})
	}

	return errs
}

func validateIntake(cfg *IntakeConfig) []FieldError {
	if !cfg.Enabled {
		return nil
	}

	var errs []FieldError
	if u, err := url.Parse(cfg.URL); err != nil || (u.Scheme != "amqp" && u.Scheme != "amqps") {
		errs = append(errs, FieldError{
			Field:   "intake.url",
			Message: fmt.Sprintf("invalid broker URL %q: scheme must be amqp or amqps", cfg.URL),
		})
	}
	if cfg.TaskQueue == "" {
		errs = append(errs, FieldError{Field: "intake.task_queue", Message: "task queue is required"})
	}
	if cfg.Prefetch < 0 {
		errs = append(errs, FieldError{Field: "intake.prefetch", Message: "must not be negative"})
	}
	return errs
}

func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid logging level %q: must be 'debug', 'info', 'warn', or 'error'", cfg.Logging.Level),
		})
	}

	validFormats := map[string]bool{"json": true, "text": true, "console": true}
	if !validFormats[strings.ToLower(cfg.Logging.Format)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid logging format %q: must be 'json', 'text', or 'console'", cfg.Logging.Format),
		})
	}

	for i, p := range cfg.Logging.RedactPatterns {
		if p.Name == "" || p.Pattern == "" {
			errs = append(errs, FieldError{
				Field:   fmt.Sprintf("telemetry.logging.redact_patterns[%d]", i),
				Message: "name and pattern are required",
			})
		}
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with '/' when metrics are enabled",
		})
	}

	if cfg.Tracing.Enabled {
		switch cfg.Tracing.Sampler {
		case "always", "never", "ratio":
		default:
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sampler",
				Message: fmt.Sprintf("invalid sampler %q: must be 'always', 'never', or 'ratio'", cfg.Tracing.Sampler),
			})
		}
		if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.sample_ratio",
				Message: "sample ratio must be between 0 and 1",
			})
		}
		if cfg.Tracing.Exporter != "otlp" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.exporter",
				Message: fmt.Sprintf("invalid exporter %q: must be 'otlp'", cfg.Tracing.Exporter),
			})
		}
		if cfg.Tracing.Endpoint == "" {
			errs = append(errs, FieldError{
				Field:   "telemetry.tracing.endpoint",
				Message: "endpoint is required when tracing is enabled",
			})
		}
	}

	if cfg.Health.CheckTimeout <= 0 {
		errs = append(errs, FieldError{Field: "telemetry.health.check_timeout", Message: "must be positive"})
	}

	return errs
}
