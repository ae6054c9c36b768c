package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"smartcrm-hq/conductor/pkg/cli"
	"smartcrm-hq/conductor/pkg/config"
)

var (
	// Global flags
	cfgFile string
	envFile string
)

var rootCmd = &cobra.Command{
	Use:   "conductor",
	Short: "Conductor - AI request orchestration and task queue",
	Long: `Conductor routes the CRM's AI operations (contact scoring, enrichment,
email generation, insights and more) to the best available provider.

It provides:
  - Provider selection by success rate, latency, cost and affinity
  - Response caching and per-provider quotas
  - A prioritized, batching task queue with retries
  - Task intake from RabbitMQ and a JSON HTTP API`,
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		return loadEnvFile(envFile, cmd.Flags().Changed("env-file"))
	},
}

// Execute runs the root command and exits with a code matching the error.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.ExitCode(err))
	}
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "", "config file path (defaults and CONDUCTOR_* variables when empty)")
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before the configuration")
}

// loadEnvFile loads path into the environment without overriding variables
// that are already set. A missing default file is ignored.
func loadEnvFile(path string, explicit bool) error {
	if path == "" {
		return nil
	}
	if err := godotenv.Load(path); err != nil {
		if errors.Is(err, fs.ErrNotExist) && !explicit {
			return nil
		}
		return cli.NewConfigError("env-file", fmt.Errorf("failed to load %s: %w", path, err))
	}
	return nil
}

// loadConfig initializes the global configuration from cfgFile.
func loadConfig() (*config.Config, error) {
	if err := config.Initialize(cfgFile); err != nil {
		return nil, cli.NewConfigError("", err)
	}
	return config.GetConfig(), nil
}
