package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"mercator-hq/corsgate/pkg/cli"
	"mercator-hq/corsgate/pkg/config"
	"mercator-hq/corsgate/pkg/history"
	"mercator-hq/corsgate/pkg/origin"
	"mercator-hq/corsgate/pkg/server"
	"mercator-hq/corsgate/pkg/telemetry/health"
	"mercator-hq/corsgate/pkg/telemetry/logging"
	"mercator-hq/corsgate/pkg/telemetry/metrics"
	"mercator-hq/corsgate/pkg/telemetry/tracing"
)

type runOptions struct {
	listenAddress string
	adminAddress  string
	upstream      string
	logLevel      string
	dryRun        bool
}

func newRunCmd() *cobra.Command {
	var opts runOptions

	cmd := &cobra.Command{
		Use:   "run",
		Short: "Start the gateway",
		Long: `Start the gateway with the specified configuration.

The public listener passes every request through the CORS gate and the
timeout guard before it reaches the upstream application. The admin
listener serves the policy API, /metrics and health endpoints.

Examples:
  # Start with defaults and the policy from the environment
  ALLOWED_ORIGINS=https://app.example.com corsgate run

  # Start with a config file
  corsgate run --config /etc/corsgate/config.yaml

  # Proxy accepted requests to an application
  corsgate run --upstream http://127.0.0.1:3000

  # Validate config without starting the server
  corsgate run --dry-run`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServer(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.listenAddress, "listen", "l", "", "override public listen address")
	cmd.Flags().StringVar(&opts.adminAddress, "admin", "", "override admin listen address")
	cmd.Flags().StringVar(&opts.upstream, "upstream", "", "override upstream application URL")
	cmd.Flags().StringVar(&opts.logLevel, "log-level", "", "override log level (debug, info, warn, error)")
	cmd.Flags().BoolVar(&opts.dryRun, "dry-run", false, "validate config without starting server")
	return cmd
}

// loadRunConfig loads the process configuration and applies flag overrides.
func loadRunConfig(opts runOptions) (*config.Config, error) {
	cfg, err := config.LoadConfigWithEnvOverrides(cfgFile, config.OSLookup)
	if err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}

	if opts.listenAddress != "" {
		cfg.Server.ListenAddress = opts.listenAddress
	}
	if opts.adminAddress != "" {
		cfg.Server.AdminAddress = opts.adminAddress
	}
	if opts.upstream != "" {
		cfg.Server.Upstream = opts.upstream
	}
	if opts.logLevel != "" {
		cfg.Telemetry.Logging.Level = opts.logLevel
	}

	if err := config.Validate(cfg); err != nil {
		return nil, cli.NewConfigError("", err.Error())
	}
	return cfg, nil
}

func runServer(cmd *cobra.Command, opts runOptions) error {
	cfg, err := loadRunConfig(opts)
	if err != nil {
		return err
	}

	logger, err := logging.New(logging.Config{
		Level:  cfg.Telemetry.Logging.Level,
		Format: cfg.Telemetry.Logging.Format,
	})
	if err != nil {
		return cli.NewConfigError("telemetry.logging", err.Error())
	}
	slog.SetDefault(logger.Slog())

	if opts.dryRun {
		fmt.Fprintln(cmd.OutOrStdout(), "✓ Configuration valid")
		return nil
	}

	ctx, stop := cli.SetupSignalHandler()
	defer stop()

	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)

	tracer, err := tracing.New(&cfg.Telemetry.Tracing, Version)
	if err != nil {
		return cli.NewConfigError("telemetry.tracing", err.Error())
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := tracer.Shutdown(shutdownCtx); err != nil {
			logger.Slog().Warn("failed to flush traces", "error", err)
		}
	}()

	cache := origin.NewCache(
		origin.WithCacheLogger(logger),
		origin.WithObserver(collector),
	)
	validator := origin.NewValidator(cache)

	storeOpts := []config.StoreOption{
		config.WithLookup(config.OSLookup),
		config.WithLogger(logger),
	}
	if cfg.Policy.File != "" {
		storeOpts = append(storeOpts, config.WithPolicyFile(cfg.Policy.File))
	}
	store := config.NewStore(storeOpts...)
	store.OnChange(origin.ClearOnChange(cache))
	store.OnChange(collector.ConfigListener())

	checker := health.New(0)
	checker.RegisterCheck("policy", health.PolicyCheck(store))

	deps := server.Dependencies{
		Policies:  store,
		Validator: validator,
		Metrics:   collector,
		Health:    checker,
		Logger:    logger,
		Tracer:    tracer,
		Version:   versionInfo(),
	}

	if cfg.Policy.HistoryPath != "" {
		hs, err := history.NewSQLiteStore(history.SQLiteConfig{
			DBPath: cfg.Policy.HistoryPath,
			Logger: logger.Slog(),
		})
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to open policy history: %w", err))
		}
		defer hs.Close()

		store.OnChange(hs.Listener())
		checker.RegisterCheck("history", hs.Ping)
		deps.History = hs
	}

	policy := store.Get()
	printBanner(cmd.OutOrStdout(), cfg, policy)

	if cfg.Policy.Watch && cfg.Policy.File != "" {
		watcher, err := config.NewFileWatcher(cfg.Policy.File, cfg.Policy.Debounce, logger.Slog())
		if err != nil {
			return cli.NewCommandError("run", fmt.Errorf("failed to watch policy file: %w", err))
		}
		defer watcher.Stop()

		go func() {
			if err := watcher.Watch(ctx, store.Reload); err != nil {
				logger.Slog().Error("policy file watcher exited", "error", err)
			}
		}()
	}

	go reloadOnHangup(ctx, store, logger.Slog())

	sweeper := origin.NewSweeper(cache, cfg.Cache.SweepSchedule, logger.Slog())
	if err := sweeper.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	defer sweeper.Stop()

	srv, err := server.New(&cfg.Server, deps)
	if err != nil {
		return cli.NewCommandError("run", err)
	}

	if err := srv.Start(ctx); err != nil {
		return cli.NewCommandError("run", err)
	}
	return nil
}

// reloadOnHangup reloads the policy on every SIGHUP until ctx is done.
func reloadOnHangup(ctx context.Context, store *config.Store, logger *slog.Logger) {
	hangup, stop := cli.NotifyReload()
	defer stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-hangup:
			logger.Info("SIGHUP received, reloading policy")
			if err := store.Reload(); err != nil {
				logger.Error("policy reload failed", "error", err)
			}
		}
	}
}

func printBanner(w io.Writer, cfg *config.Config, policy config.Policy) {
	fmt.Fprintf(w, "Corsgate %s\n", Version)
	fmt.Fprintf(w, "  Listening:       %s\n", cfg.Server.ListenAddress)
	if cfg.Server.AdminAddress != "" {
		fmt.Fprintf(w, "  Admin:           %s\n", cfg.Server.AdminAddress)
	}
	if cfg.Server.Upstream != "" {
		fmt.Fprintf(w, "  Upstream:        %s\n", cfg.Server.Upstream)
	}
	fmt.Fprintf(w, "  Allowed origins: %s\n", strings.Join(policy.AllowedOrigins, ", "))
	fmt.Fprintf(w, "  Request timeout: %s\n", cfg.Server.RequestTimeout)
	if policy.DevelopmentMode {
		fmt.Fprintln(w, "  ⚠ Development mode: unlisted origins are allowed")
	}
}
