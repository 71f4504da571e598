package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"

	"mercator-hq/corsgate/pkg/config"
	"mercator-hq/corsgate/pkg/history"
	"mercator-hq/corsgate/pkg/middleware"
	"mercator-hq/corsgate/pkg/origin"
	"mercator-hq/corsgate/pkg/telemetry/health"
	"mercator-hq/corsgate/pkg/telemetry/logging"
	"mercator-hq/corsgate/pkg/telemetry/metrics"
	"mercator-hq/corsgate/pkg/telemetry/tracing"
)

// HistoryReader lists recorded policy changes.
type HistoryReader interface {
	List(ctx context.Context, limit int) ([]history.Record, error)
}

// Dependencies are the components the server routes requests to.
type Dependencies struct {
	// Policies is the active CORS policy store. Required.
	Policies *config.Store

	// Validator decides origins for the gate. Default: a validator with a
	// fresh cache.
	Validator *origin.Validator

	// Metrics records gate and request metrics. Default: a disabled
	// collector.
	Metrics *metrics.Collector

	// History backs GET /admin/cors/history. Nil disables the endpoint.
	History HistoryReader

	// Health serves /health, /ready and /version. Default: a checker with
	// no checks.
	Health *health.Checker

	// Logger receives diagnostic and access logs. Default: logging.Default().
	Logger *logging.Logger

	// Tracer records a span per public request. Nil disables tracing.
	Tracer *tracing.Tracer

	// App is the application behind the gate. Default: a reverse proxy to
	// the configured upstream, or a 404 handler when there is none.
	App http.Handler

	// Version is reported by /version.
	Version health.VersionInfo
}

// Server owns the public listener, which serves the application through the
// CORS gate, and the optional admin listener.
type Server struct {
	config *config.ServerConfig
	deps   Dependencies

	publicServer *http.Server
	adminServer  *http.Server

	shutdownOnce sync.Once
	mu           sync.RWMutex
	isRunning    bool
}

// New creates a server. It does not listen until Start is called.
func New(cfg *config.ServerConfig, deps Dependencies) (*Server, error) {
	if cfg == nil {
		return nil, errors.New("server config is required")
	}
	if deps.Policies == nil {
		return nil, errors.New("policy store is required")
	}
	if deps.Logger == nil {
		deps.Logger = logging.Default()
	}
	if deps.Validator == nil {
		deps.Validator = origin.NewValidator(nil)
	}
	if deps.Metrics == nil {
		deps.Metrics = metrics.NewCollector(&config.MetricsConfig{Enabled: false}, nil)
	}
	if deps.Health == nil {
		deps.Health = health.New(0)
	}
	if deps.App == nil {
		app, err := newApp(cfg.Upstream, deps.Logger)
		if err != nil {
			return nil, err
		}
		deps.App = app
	}

	s := &Server{config: cfg, deps: deps}

	s.publicServer = &http.Server{
		Addr:        cfg.ListenAddress,
		Handler:     s.Handler(),
		ReadTimeout: cfg.ReadTimeout,
		IdleTimeout: cfg.IdleTimeout,
	}
	if cfg.AdminAddress != "" {
		s.adminServer = &http.Server{
			Addr:        cfg.AdminAddress,
			Handler:     s.AdminHandler(),
			ReadTimeout: cfg.ReadTimeout,
			IdleTimeout: cfg.IdleTimeout,
		}
	}
	return s, nil
}

// Handler returns the public request pipeline: Recovery, RequestID, the
// tracing span when a Tracer is set, AccessLog, TimeoutGuard, Gate, then the
// application.
func (s *Server) Handler() http.Handler {
	logger := s.deps.Logger
	collector := s.deps.Metrics

	gate := middleware.NewGate(s.deps.Policies, s.deps.Validator, logger, middleware.WithRecorder(collector))
	guard := middleware.NewTimeoutGuard(s.config.RequestTimeout, s.deps.Policies, logger, middleware.WithRecorder(collector))

	chain := []middleware.Middleware{
		middleware.Recovery(logger.Slog()),
		middleware.RequestID,
	}
	if s.deps.Tracer != nil {
		chain = append(chain, s.deps.Tracer.Middleware)
	}
	chain = append(chain,
		middleware.AccessLog(logger.Slog(), collector),
		guard.Middleware,
		gate.Middleware,
	)
	return middleware.Chain(s.deps.App, chain...)
}

// Start listens on the configured addresses and serves until ctx is
// canceled or a listener fails, then shuts down gracefully.
func (s *Server) Start(ctx context.Context) error {
	publicLn, err := net.Listen("tcp", s.config.ListenAddress)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.config.ListenAddress, err)
	}
	var adminLn net.Listener
	if s.adminServer != nil {
		adminLn, err = net.Listen("tcp", s.config.AdminAddress)
		if err != nil {
			publicLn.Close()
			return fmt.Errorf("failed to listen on %s: %w", s.config.AdminAddress, err)
		}
	}
	return s.Serve(ctx, publicLn, adminLn)
}

// Serve serves on the given listeners until ctx is canceled or a listener
// fails. adminLn may be nil.
func (s *Server) Serve(ctx context.Context, publicLn, adminLn net.Listener) error {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return fmt.Errorf("server is already running")
	}
	s.isRunning = true
	s.mu.Unlock()

	logger := s.deps.Logger.Slog()
	errChan := make(chan error, 2)

	go func() {
		logger.Info("starting public listener", "address", publicLn.Addr().String())
		if err := s.publicServer.Serve(publicLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- fmt.Errorf("public server error: %w", err)
		}
	}()

	if adminLn != nil && s.adminServer != nil {
		go func() {
			logger.Info("starting admin listener", "address", adminLn.Addr().String())
			if err := s.adminServer.Serve(adminLn); err != nil && !errors.Is(err, http.ErrServerClosed) {
				errChan <- fmt.Errorf("admin server error: %w", err)
			}
		}()
	}

	select {
	case <-ctx.Done():
		logger.Info("context cancelled, initiating shutdown")
		return s.Shutdown(context.Background())
	case err := <-errChan:
		if shutdownErr := s.Shutdown(context.Background()); shutdownErr != nil {
			logger.Error("error during shutdown", "error", shutdownErr)
		}
		return err
	}
}

// Shutdown gracefully stops both listeners, waiting at most the configured
// shutdown timeout for in-flight requests.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error

	s.shutdownOnce.Do(func() {
		s.mu.Lock()
		if !s.isRunning {
			s.mu.Unlock()
			return
		}
		s.mu.Unlock()

		logger := s.deps.Logger.Slog()
		logger.Info("initiating graceful shutdown", "timeout", s.config.ShutdownTimeout.String())

		shutdownCtx := ctx
		if s.config.ShutdownTimeout > 0 {
			var cancel context.CancelFunc
			shutdownCtx, cancel = context.WithTimeout(ctx, s.config.ShutdownTimeout)
			defer cancel()
		}

		var errs []error
		if err := s.publicServer.Shutdown(shutdownCtx); err != nil {
			errs = append(errs, fmt.Errorf("public server shutdown: %w", err))
		}
		if s.adminServer != nil {
			if err := s.adminServer.Shutdown(shutdownCtx); err != nil {
				errs = append(errs, fmt.Errorf("admin server shutdown: %w", err))
			}
		}
		shutdownErr = errors.Join(errs...)

		s.mu.Lock()
		s.isRunning = false
		s.mu.Unlock()

		logger.Info("server stopped")
	})

	return shutdownErr
}

// IsRunning reports whether the server is serving.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.isRunning
}
