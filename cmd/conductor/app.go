package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/redis/go-redis/v9"

	"smartcrm-hq/conductor/pkg/cache"
	"smartcrm-hq/conductor/pkg/config"
	"smartcrm-hq/conductor/pkg/intake"
	"smartcrm-hq/conductor/pkg/limits/ratelimit"
	"smartcrm-hq/conductor/pkg/orchestrator"
	"smartcrm-hq/conductor/pkg/providerfactory"
	"smartcrm-hq/conductor/pkg/routing"
	"smartcrm-hq/conductor/pkg/server"
	"smartcrm-hq/conductor/pkg/taskqueue"
	"smartcrm-hq/conductor/pkg/taskqueue/archive"
	"smartcrm-hq/conductor/pkg/telemetry/health"
	"smartcrm-hq/conductor/pkg/telemetry/logging"
	"smartcrm-hq/conductor/pkg/telemetry/metrics"
	"smartcrm-hq/conductor/pkg/telemetry/tracing"
)

// app holds every long-lived component of the service.
type app struct {
	cfg    *config.Config
	logger *slog.Logger

	metrics *metrics.Collector
	tracer  *tracing.Tracer
	redis   redis.UniversalClient

	providers *providerfactory.Manager
	orch      *orchestrator.Orchestrator
	archive   *archive.Archive
	queue     *taskqueue.Queue
	intake    *intake.Intake
	health    *health.Checker
	server    *server.Server

	// closers run in reverse order on shutdown
	closers []func() error
}

func newLogger(cfg config.LoggingConfig) (*slog.Logger, error) {
	patterns := make([]logging.RedactPattern, len(cfg.RedactPatterns))
	for i, p := range cfg.RedactPatterns {
		patterns[i] = logging.RedactPattern{Name: p.Name, Pattern: p.Pattern, Replacement: p.Replacement}
	}
	return logging.New(logging.Config{
		Level:          cfg.Level,
		Format:         cfg.Format,
		AddSource:      cfg.AddSource,
		RedactPII:      cfg.RedactPII,
		RedactPatterns: patterns,
	})
}

// newApp builds the service from cfg. On error, components built so far are
// closed.
func newApp(ctx context.Context, cfg *config.Config, logger *slog.Logger) (_ *app, err error) {
	a := &app{cfg: cfg, logger: logger}
	defer func() {
		if err != nil {
			a.close()
		}
	}()

	if cfg.Telemetry.Metrics.Enabled {
		a.metrics = metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
	}

	cfg.Telemetry.Tracing.ServiceVersion = Version
	if a.tracer, err = tracing.New(&cfg.Telemetry.Tracing); err != nil {
		return nil, fmt.Errorf("failed to initialize tracing: %w", err)
	}
	a.onClose(func() error { return a.tracer.Shutdown(context.Background()) })

	if usesRedis(cfg) {
		a.redis = redis.NewUniversalClient(&redis.UniversalOptions{
			Addrs:    cfg.Redis.Addrs,
			Username: cfg.Redis.Username,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		a.onClose(a.redis.Close)
	}

	// Providers
	registry := routing.NewRegistry(routing.WithChangeHook(func(p routing.Provider) {
		a.metrics.UpdateProvider(p.Name, p.Available, p.Performance.AvgResponseTime, p.RateLimit.Remaining)
	}))
	a.providers = providerfactory.NewManager(registry, logger)
	a.onClose(a.providers.Close)
	if err := a.providers.LoadFromConfig(ctx, cfg.Providers, cfg.Selector); err != nil {
		logger.Warn("some providers failed to initialize", "error", err)
	}
	if a.providers.ProviderCount() == 0 {
		logger.Warn("no providers configured")
	}

	// Orchestrator
	respCache, err := a.newCache()
	if err != nil {
		return nil, err
	}
	orchOpts := []orchestrator.Option{
		orchestrator.WithCache(respCache),
		orchestrator.WithMetrics(a.metrics),
		orchestrator.WithTracer(a.tracer),
		orchestrator.WithLogger(logger),
	}
	queueOpts := []taskqueue.Option{
		taskqueue.WithMetrics(a.metrics),
		taskqueue.WithTracer(a.tracer),
		taskqueue.WithLogger(logger),
	}
	if cfg.RateLimit.Enabled {
		limiter := a.newLimiter()
		rule := ratelimit.Rule{MaxRequests: cfg.RateLimit.MaxRequests, Window: cfg.RateLimit.Window}
		orchOpts = append(orchOpts, orchestrator.WithRateLimiter(limiter, rule))
		queueOpts = append(queueOpts, taskqueue.WithRateLimiter(limiter, rule))
	}
	a.orch, err = orchestrator.New(&cfg.Orchestrator, a.providers.Selector(), a.providers.Transport(), orchOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create orchestrator: %w", err)
	}

	// Task queue
	if cfg.Archive.Enabled {
		if a.archive, err = archive.New(&cfg.Archive); err != nil {
			return nil, fmt.Errorf("failed to open task archive: %w", err)
		}
		a.onClose(a.archive.Close)
		queueOpts = append(queueOpts, taskqueue.WithArchive(a.archive))
	}
	a.queue, err = taskqueue.New(&cfg.Queue, taskqueue.NewOrchestratorExecutor(a.orch), queueOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create task queue: %w", err)
	}

	if cfg.Intake.Enabled {
		a.intake, err = intake.New(&cfg.Intake, a.queue, intake.WithLogger(logger), intake.WithTracer(a.tracer))
		if err != nil {
			return nil, fmt.Errorf("failed to create task intake: %w", err)
		}
	}

	// Health
	a.health = health.New(cfg.Telemetry.Health.CheckTimeout)
	a.health.RegisterCheck("providers", health.ProvidersCheck(registry))
	if a.redis != nil {
		client := a.redis
		a.health.RegisterCheck("redis", func(ctx context.Context) error { return client.Ping(ctx).Err() })
	}
	if a.archive != nil {
		a.health.RegisterCheck("archive", health.PingCheck(a.archive))
	}
	if a.intake != nil {
		a.health.RegisterCheck("intake", health.PingCheck(a.intake))
	}

	deps := server.Deps{
		Orchestrator: a.orch,
		Queue:        a.queue,
		Providers:    registry,
		Health:       a.health,
		Metrics:      a.metrics,
		MetricsPath:  cfg.Telemetry.Metrics.Path,
		Version:      versionInfo(),
	}
	if a.archive != nil {
		deps.Archive = a.archive
	}
	if a.server, err = server.NewServer(&cfg.Server, deps, logger); err != nil {
		return nil, fmt.Errorf("failed to create server: %w", err)
	}
	return a, nil
}

func usesRedis(cfg *config.Config) bool {
	return cfg.Cache.Backend == "redis" || (cfg.RateLimit.Enabled && cfg.RateLimit.Backend == "redis")
}

func (a *app) newCache() (cache.Cache, error) {
	if a.cfg.Cache.Backend == "redis" {
		return cache.NewRedisCache(a.redis, cache.RedisConfig{
			Prefix: a.cfg.Redis.Prefix,
			TagTTL: a.cfg.Cache.TagTTL,
		}), nil
	}
	mc, err := cache.NewMemoryCache(cache.MemoryConfig{
		MaxEntries:      a.cfg.Cache.MaxEntries,
		CleanupInterval: a.cfg.Cache.CleanupInterval,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create response cache: %w", err)
	}
	a.onClose(mc.Close)
	return mc, nil
}

func (a *app) newLimiter() ratelimit.Checker {
	if a.cfg.RateLimit.Backend == "redis" {
		return ratelimit.NewRedisLimiter(a.redis, a.cfg.Redis.Prefix)
	}
	return ratelimit.NewMemoryLimiter()
}

func (a *app) onClose(fn func() error) {
	a.closers = append(a.closers, fn)
}

// run starts the background components and serves HTTP until ctx is
// cancelled. Background components are stopped before it returns.
func (a *app) run(ctx context.Context) error {
	if err := a.orch.Start(ctx); err != nil {
		return fmt.Errorf("failed to start orchestrator: %w", err)
	}
	defer a.orch.Stop()

	if err := a.queue.Start(ctx); err != nil {
		return fmt.Errorf("failed to start task queue: %w", err)
	}
	defer a.queue.Stop()

	a.providers.StartHealthMonitor(ctx, 0)

	var wg sync.WaitGroup
	defer wg.Wait()
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	if a.intake != nil {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if err := a.intake.Run(runCtx); err != nil {
				a.logger.Error("task intake stopped", "error", err)
			}
		}()
	}

	return a.server.Start(runCtx)
}

// reload applies a reloaded configuration to the provider registry and the
// selector. Other sections require a restart.
func (a *app) reload(cfg *config.Config) {
	if err := a.providers.LoadFromConfig(context.Background(), cfg.Providers, cfg.Selector); err != nil {
		a.logger.Error("provider reload incomplete", "error", err)
		return
	}
	a.logger.Info("configuration reloaded", "providers", len(cfg.Providers))
}

// close releases every component, most recently built first.
func (a *app) close() error {
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
