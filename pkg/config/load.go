package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvPrefix prefixes every environment variable override.
const EnvPrefix = "CONDUCTOR_"

// LoadConfig loads configuration from a YAML file at the specified path.
// It applies default values, validates the configuration, and returns any errors.
// The configuration is not modified by environment variables; use LoadConfigWithEnvOverrides
// for that functionality.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return cfg, nil
}

// Parse decodes YAML configuration and applies defaults. It does not validate.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	presetDefaults(&cfg)
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(&cfg)
	return &cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CONDUCTOR_SECTION_FIELD (e.g., CONDUCTOR_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from Default().
//
// The loading sequence is:
// 1. Load YAML from file
// 2. Apply default values
// 3. Apply environment variable overrides
// 4. Validate final configuration
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		var err error
		if cfg, err = LoadConfig(path); err != nil {
			return nil, err
		}
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}

	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)
	envBool("SERVER_AUTH_ENABLED", &cfg.Server.Auth.Enabled)
	if val := os.Getenv(EnvPrefix + "SERVER_AUTH_KEYS"); val != "" {
		cfg.Server.Auth.Keys = nil
		for i, key := range splitList(val) {
			cfg.Server.Auth.Keys = append(cfg.Server.Auth.Keys, APIKeyConfig{Name: fmt.Sprintf("env-%d", i), Key: key})
		}
	}

	for i := range cfg.Providers {
		applyProviderEnvOverrides(&cfg.Providers[i])
	}

	// Orchestrator overrides
	envDuration("ORCHESTRATOR_DEFAULT_TIMEOUT", &cfg.Orchestrator.DefaultTimeout)
	envInt("ORCHESTRATOR_HISTORY_SIZE", &cfg.Orchestrator.HistorySize)

	// Queue overrides
	envInt("QUEUE_MAX_BATCH_SIZE", &cfg.Queue.MaxBatchSize)
	envInt("QUEUE_MAX_CONCURRENCY", &cfg.Queue.MaxConcurrency)
	envInt("QUEUE_MAX_RETRIES", &cfg.Queue.MaxRetries)
	envDuration("QUEUE_RETRY_DELAY", &cfg.Queue.RetryDelay)
	envDuration("QUEUE_RETENTION", &cfg.Queue.Retention)

	// Cache overrides
	envString("CACHE_BACKEND", &cfg.Cache.Backend)
	envInt("CACHE_MAX_ENTRIES", &cfg.Cache.MaxEntries)

	// Rate limit overrides
	envBool("RATE_LIMIT_ENABLED", &cfg.RateLimit.Enabled)
	envString("RATE_LIMIT_BACKEND", &cfg.RateLimit.Backend)
	envInt("RATE_LIMIT_MAX_REQUESTS", &cfg.RateLimit.MaxRequests)
	envDuration("RATE_LIMIT_WINDOW", &cfg.RateLimit.Window)

	// Redis overrides
	if val := os.Getenv(EnvPrefix + "REDIS_ADDRS"); val != "" {
		cfg.Redis.Addrs = splitList(val)
	}
	envString("REDIS_PASSWORD", &cfg.Redis.Password)
	envInt("REDIS_DB", &cfg.Redis.DB)

	// Archive overrides
	envBool("ARCHIVE_ENABLED", &cfg.Archive.Enabled)
	envString("ARCHIVE_PATH", &cfg.Archive.Path)

	// Intake overrides
	envBool("INTAKE_ENABLED", &cfg.Intake.Enabled)
	envString("INTAKE_URL", &cfg.Intake.URL)
	envString("INTAKE_TASK_QUEUE", &cfg.Intake.TaskQueue)
	envString("INTAKE_RESULT_QUEUE", &cfg.Intake.ResultQueue)

	// Telemetry overrides
	envString("TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("TELEMETRY_LOGGING_REDACT_PII", &cfg.Telemetry.Logging.RedactPII)
	envBool("TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	envString("TELEMETRY_TRACING_SAMPLER", &cfg.Telemetry.Tracing.Sampler)
	if val := os.Getenv(EnvPrefix + "TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

// applyProviderEnvOverrides applies CONDUCTOR_PROVIDERS_<NAME>_* overrides to
// a configured provider. Dashes in the name become underscores.
func applyProviderEnvOverrides(p *ProviderConfig) {
	prefix := "PROVIDERS_" + strings.ToUpper(strings.ReplaceAll(p.Name, "-", "_")) + "_"

	envString(prefix+"API_KEY", &p.APIKey)
	envString(prefix+"BASE_URL", &p.BaseURL)
	envString(prefix+"MODEL", &p.Model)
	envDuration(prefix+"TIMEOUT", &p.Timeout)
	envBool(prefix+"DISABLED", &p.Disabled)
}

func envString(name string, dst *string) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		*dst = val
	}
}

func envInt(name string, dst *int) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(name string, dst *bool) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(name string, dst *time.Duration) {
	if val := os.Getenv(EnvPrefix + name); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func splitList(val string) []string {
	var out []string
	for _, part := range strings.Split(val, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
