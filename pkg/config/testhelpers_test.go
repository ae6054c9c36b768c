package config

import (
	"os"
	"path/filepath"
	"testing"
)

// validConfig returns a defaulted configuration with one http provider.
func validConfig() *Config {
	cfg := Default()
	cfg.Providers = []ProviderConfig{{
		Name:    "openai",
		BaseURL: "https://gateway.example.com",
		APIKey:  "test-key",
	}}
	ApplyDefaults(cfg)
	return cfg
}

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "conductor.yaml")
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

const minimalYAML = `
server:
  listen_address: "127.0.0.1:8080"

providers:
  - name: openai
    base_url: "https://gateway.example.com"
    api_key: "file-key"
    cost_per_1k: 0.002
  - name: gemini
    transport: gemini
    model: gemini-2.0-flash
`
