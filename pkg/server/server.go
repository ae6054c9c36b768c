package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"smartcrm-hq/conductor/pkg/ai"
	"smartcrm-hq/conductor/pkg/config"
	"smartcrm-hq/conductor/pkg/orchestrator"
	"smartcrm-hq/conductor/pkg/routing"
	"smartcrm-hq/conductor/pkg/server/middleware"
	"smartcrm-hq/conductor/pkg/taskqueue"
	"smartcrm-hq/conductor/pkg/telemetry/health"
	"smartcrm-hq/conductor/pkg/telemetry/metrics"
)

// Orchestrator is the request API the server exposes.
type Orchestrator interface {
	Execute(ctx context.Context, req *ai.Request) (*ai.Response, error)
	SubmitRequest(req *ai.Request) (string, error)
	GetResult(id string) (orchestrator.Outcome, bool)
	InvalidateCache(ctx context.Context, t ai.RequestType) (int, error)
	GetPerformanceMetrics() orchestrator.PerformanceMetrics
}

// TaskQueue is the task API the server exposes.
type TaskQueue interface {
	AddTask(spec taskqueue.TaskSpec) (string, error)
	GetTaskStatus(id string) (taskqueue.TaskSnapshot, bool)
	CancelTask(id string) bool
	GetMetrics() taskqueue.Metrics
	NextSweep() *time.Time
}

// TaskArchive looks up tasks evicted from the queue.
type TaskArchive interface {
	Get(ctx context.Context, id string) (*taskqueue.TaskSnapshot, error)
}

// ProviderSource lists registered providers.
type ProviderSource interface {
	Snapshot() []routing.Provider
}

// Deps are the components behind the API. Archive, Health and Metrics are
// optional. MetricsPath defaults to "/metrics".
type Deps struct {
	Orchestrator Orchestrator
	Queue        TaskQueue
	Providers    ProviderSource
	Archive      TaskArchive
	Health       *health.Checker
	Metrics      *metrics.Collector
	MetricsPath  string
	Version      health.VersionInfo
}

// Server is the HTTP API server.
type Server struct {
	config *config.ServerConfig
	deps   Deps
	logger *slog.Logger
	keys   *middleware.APIKeys

	httpServer   *http.Server
	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
	addr         net.Addr
}

// NewServer creates a server. It does not listen until Start.
func NewServer(cfg *config.ServerConfig, deps Deps, logger *slog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("server config cannot be nil")
	}
	if deps.Orchestrator == nil || deps.Queue == nil || deps.Providers == nil {
		return nil, fmt.Errorf("server requires an orchestrator, a task queue and a provider source")
	}
	if logger == nil {
		logger = slog.Default()
	}
	s := &Server{
		config: cfg,
		deps:   deps,
		logger: logger.With("component", "server"),
	}
	if cfg.Auth.Enabled {
		keys := make([]middleware.APIKey, len(cfg.Auth.Keys))
		for i, k := range cfg.Auth.Keys {
			keys[i] = middleware.APIKey{Name: k.Name, Key: k.Key, Enabled: !k.Disabled}
		}
		s.keys = middleware.NewAPIKeys(keys)
	}
	return s, nil
}

// Start serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}

	ln, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		s.mu.Unlock()
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	s.httpServer = &http.Server{
		Handler:        s.Handler(),
		ReadTimeout:    s.config.ReadTimeout,
		WriteTimeout:   s.config.WriteTimeout,
		IdleTimeout:    s.config.IdleTimeout,
		MaxHeaderBytes: s.config.MaxHeaderBytes,
	}
	s.addr = ln.Addr()
	s.isRunning = true
	s.mu.Unlock()

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info("API server listening", "address", ln.Addr().String())
		if err := s.httpServer.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("server error: %w", err)
		}
	}()

	select {
	case <-ctx.Done():
		return s.Shutdown(context.Background())
	case err := <-errChan:
		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		return err
	}
}

// Shutdown stops accepting connections and waits up to ShutdownTimeout for
// in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		s.logger.Info("Shutting down API server", "timeout", s.config.ShutdownTimeout)
		shutdownCtx, cancel := context.WithTimeout(ctx, s.config.ShutdownTimeout)
		defer cancel()

		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
		}

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()
		s.logger.Info("API server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}

// Addr returns the listening address once started.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.addr
}
