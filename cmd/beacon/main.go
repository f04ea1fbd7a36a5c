package main

import (
	"context"
	"net/http"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/platinummonkey/beacon/pkg/api"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/jobs"
	"github.com/platinummonkey/beacon/pkg/middleware"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/platform"
	"github.com/platinummonkey/beacon/pkg/sample"
)

func main() {
	// A missing .env file is fine
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	logger := observability.NewLoggerWithFormat(cfg.Observability.LogLevel, cfg.LogFormat(), os.Stdout).
		WithField("service", "beacon")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Server exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	ctx := context.Background()

	var (
		registry *prometheus.Registry
		metrics  *observability.Metrics
	)
	if cfg.Observability.MetricsEnabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
		metrics = observability.NewMetrics(registry)
	}

	telemetry, err := observability.InitTracing(ctx, cfg.Observability.Tracing, logger)
	if err != nil {
		return err
	}

	p, err := platform.Open(cfg, logger, metrics)
	if err != nil {
		return err
	}
	logger.WithField("healthy", p.Store.Healthy(ctx)).Info("Redis store initialized")

	queueOpts := []jobs.Option{jobs.WithLogger(logger)}
	if metrics != nil {
		queueOpts = append(queueOpts, jobs.WithMetrics(metrics))
	}
	queue := jobs.NewQueue(ctx, cfg.Jobs, queueOpts...)
	queue.Register(sample.JobName, p.Generator.JobHandler())

	keys := middleware.NewKeyStore(cfg.Auth.AdminKey)
	if cfg.Auth.KeysFile != "" {
		if err := keys.LoadFile(cfg.Auth.KeysFile); err != nil {
			return err
		}
		logger.Infof("Loaded %d API keys", keys.Len())
	}

	watchCtx, stopWatching := context.WithCancel(ctx)
	defer stopWatching()
	if cfg.Auth.WatchKeysFile {
		if err := keys.WatchFile(watchCtx, cfg.Auth.KeysFile, logger, nil); err != nil {
			return err
		}
	}
	limiterOpts := []middleware.RateLimiterOption{middleware.WithLimiterLogger(logger)}
	if metrics != nil {
		limiterOpts = append(limiterOpts, middleware.WithLimiterMetrics(metrics))
	}
	auth := middleware.NewAuthenticator(keys,
		middleware.WithRateLimiter(middleware.NewRateLimiter(p.Store, limiterOpts...)),
		middleware.WithAuthDisabled(cfg.AuthDisabled()),
		middleware.WithAuthLogger(logger),
	)
	if cfg.AuthDisabled() {
		logger.Warn("SKIP_AUTH is set: API key checks are disabled")
	}

	srv := api.NewServer(api.Deps{
		Events:    p.Events,
		Analytics: p.Analytics,
		Jobs:      queue,
		Auth:      auth,
		Health:    observability.NewHealthChecker(api.ServiceName, p.Store),
		Metrics:   metrics,
		Registry:  registry,
		Logger:    logger,
	})

	server := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      srv.Handler(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("job queue", func(ctx context.Context) error {
		return queue.Shutdown(remaining(ctx, cfg.Server.ShutdownTimeout))
	})
	shutdown.RegisterShutdownFunc("telemetry", telemetry.Shutdown)
	shutdown.RegisterShutdownFunc("redis", func(context.Context) error { return p.Close() })

	waitCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	serveErr := make(chan error, 1)
	go func() {
		if err := observability.ListenAndServe(server, logger); err != nil {
			logger.WithError(err).Error("HTTP server failed")
			serveErr <- err
			cancel()
		}
	}()

	logger.WithField("env", cfg.Env).Infof("%s started", api.ServiceName)

	if err := shutdown.WaitForShutdown(waitCtx); err != nil {
		return err
	}
	select {
	case err := <-serveErr:
		return err
	default:
		return nil
	}
}

// remaining is the time left before ctx's deadline, or fallback without one
func remaining(ctx context.Context, fallback time.Duration) time.Duration {
	if deadline, ok := ctx.Deadline(); ok {
		return time.Until(deadline)
	}
	return fallback
}
