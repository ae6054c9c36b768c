package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"

	"smartcrm-hq/conductor/pkg/cli"
	"smartcrm-hq/conductor/pkg/config"
)

var runFlags struct {
	listenAddress string
	logLevel      string
	dryRun        bool
	watch         bool
}

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the conductor service",
	Long: `Start the conductor service with the specified configuration.

The service serves the HTTP API, runs the request submit loop and the
batching task queue, and optionally consumes tasks from RabbitMQ. When a
configuration file is given it is watched, and provider settings and
selector weights are re-applied on change.

Examples:
  # Start with defaults and CONDUCTOR_* environment overrides
  conductor run

  # Start with a configuration file
  conductor run --config /etc/conductor/config.yaml

  # Override listen address
  conductor run --listen 0.0.0.0:8080

  # Validate config without starting
  conductor run --dry-run`,
	RunE: runServer,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVarP(&runFlags.listenAddress, "listen", "l", "", "override listen address")
	runCmd.Flags().StringVar(&runFlags.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	runCmd.Flags().BoolVar(&runFlags.dryRun, "dry-run", false, "validate config without starting the service")
	runCmd.Flags().BoolVar(&runFlags.watch, "watch", true, "reload provider settings when the config file changes")
}

func runServer(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}

	if runFlags.listenAddress != "" {
		cfg.Server.ListenAddress = runFlags.listenAddress
	}
	if runFlags.logLevel != "" {
		cfg.Telemetry.Logging.Level = runFlags.logLevel
	}
	if err := config.Validate(cfg); err != nil {
		return cli.NewConfigError("", err)
	}

	logger, err := newLogger(cfg.Telemetry.Logging)
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err)
	}
	slog.SetDefault(logger)

	out := cmd.OutOrStdout()
	if runFlags.dryRun {
		fmt.Fprintln(out, "✓ Configuration valid")
		return nil
	}

	printBanner(out, cfg)

	ctx, stop := cli.SetupSignalHandler(cmd.Context())
	defer stop()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return cli.NewCommandError("run", err)
	}
	defer func() {
		if err := a.close(); err != nil {
			logger.Error("shutdown incomplete", "error", err)
		}
	}()
	fmt.Fprintf(out, "✓ Providers initialized (%d providers)\n", a.providers.ProviderCount())
	if a.archive != nil {
		fmt.Fprintf(out, "✓ Task archive opened (%s)\n", cfg.Archive.Path)
	}
	if a.intake != nil {
		fmt.Fprintf(out, "✓ Task intake enabled (queue %s)\n", cfg.Intake.TaskQueue)
	}

	if runFlags.watch && cfgFile != "" {
		stopWatch := watchConfig(ctx, a, logger)
		defer stopWatch()
	}

	fmt.Fprintln(out)
	fmt.Fprintf(out, "✓ Listening on %s\n", cfg.Server.ListenAddress)
	fmt.Fprintf(out, "✓ Health endpoint: http://%s/health\n", cfg.Server.ListenAddress)
	if a.metrics != nil {
		fmt.Fprintf(out, "✓ Metrics endpoint: http://%s%s\n", cfg.Server.ListenAddress, cfg.Telemetry.Metrics.Path)
	}
	fmt.Fprintln(out, "\nPress Ctrl+C to stop")

	if err := a.run(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	fmt.Fprintln(out, "✓ Conductor stopped")
	return nil
}

// watchConfig reloads the configuration file on change and hands each new
// configuration to the app. The returned func stops watching.
func watchConfig(ctx context.Context, a *app, logger *slog.Logger) func() {
	w, err := config.NewWatcher(cfgFile, 0, logger)
	if err != nil {
		logger.Warn("configuration watcher disabled", "error", err)
		return func() {}
	}
	unsubscribe := config.OnReload(a.reload)

	go func() {
		if err := w.WatchAndReload(ctx); err != nil {
			logger.Error("configuration watcher stopped", "error", err)
		}
	}()
	return func() {
		unsubscribe()
		if err := w.Stop(); err != nil {
			logger.Warn("failed to stop configuration watcher", "error", err)
		}
	}
}

func printBanner(out io.Writer, cfg *config.Config) {
	fmt.Fprintf(out, "Conductor v%s\n", Version)
	if cfgFile != "" {
		fmt.Fprintf(out, "Loading configuration from: %s\n", cfgFile)
	}
	fmt.Fprintln(out, "✓ Configuration loaded")

	slog.Debug("configuration summary",
		"providers", len(cfg.Providers),
		"cache_backend", cfg.Cache.Backend,
		"rate_limit", cfg.RateLimit.Enabled,
		"archive", cfg.Archive.Enabled,
		"intake", cfg.Intake.Enabled,
	)
}
