// Package config loads, validates and hot-reloads conductor configuration.
//
// # Configuration Loading
//
//	cfg, err := config.LoadConfig("conductor.yaml")              // file only
//	cfg, err := config.LoadConfigWithEnvOverrides("conductor.yaml") // file + env
//	cfg := config.Default()                                       // no file
//
// Values are applied in this order, later overriding earlier:
//
//  1. Default values (defaults.go)
//  2. Values from the YAML file
//  3. Environment variable overrides
//  4. Validation, which collects every FieldError before failing
//
// # Environment Variable Overrides
//
// Variables follow CONDUCTOR_SECTION_FIELD:
//
//   - CONDUCTOR_SERVER_LISTEN_ADDRESS overrides server.listen_address
//   - CONDUCTOR_QUEUE_MAX_CONCURRENCY overrides queue.max_concurrency
//   - CONDUCTOR_PROVIDERS_OPENAI_API_KEY overrides the api_key of the
//     provider named "openai"
//
// Provider overrides only apply to providers listed in the file.
//
// # Singleton and Reload
//
// Initialize stores the configuration for process-wide access through
// GetConfig. A Watcher observes the file and calls ReloadConfig after
// writes settle; OnReload listeners then receive the new configuration.
// A file that fails validation leaves the current configuration in place.
package config
