package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/gorilla/mux"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/robfig/cron/v3"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/async"
	"github.com/platinummonkey/beacon/pkg/config"
	"github.com/platinummonkey/beacon/pkg/observability"
	"github.com/platinummonkey/beacon/pkg/platform"
)

const taskTimeout = 10 * time.Minute

var (
	runOnce     = flag.Bool("run-once", false, "Run the selected task once and exit")
	task        = flag.String("task", "all", "Task for --run-once: aggregate, cleanup or all")
	metricsAddr = flag.String("metrics-addr", "", "Serve /metrics and /health on this address (disabled when empty)")
)

func main() {
	flag.Parse()
	_ = godotenv.Load()

	cfg, err := config.LoadConfig()
	if err != nil {
		observability.NewLogger(observability.ErrorLevel, os.Stderr).WithError(err).Error("Invalid configuration")
		os.Exit(1)
	}

	logger := observability.NewLoggerWithFormat(cfg.Observability.LogLevel, cfg.LogFormat(), os.Stdout).
		WithField("service", "beacon-worker")

	if err := run(cfg, logger); err != nil {
		logger.WithError(err).Error("Worker exited with error")
		os.Exit(1)
	}
}

func run(cfg *config.Config, logger *observability.Logger) error {
	registry := prometheus.NewRegistry()
	metrics := observability.NewMetrics(registry)

	p, err := platform.Open(cfg, logger, metrics)
	if err != nil {
		return err
	}
	defer p.Close()

	tasks := map[string]func(context.Context) error{
		"aggregate": func(ctx context.Context) error {
			_, err := p.Aggregator.ProcessHourly(ctx)
			return err
		},
		"cleanup": func(ctx context.Context) error {
			_, err := p.Aggregator.Cleanup(ctx, analytics.CleanupOptions{Compact: cfg.Worker.CompactIndexes})
			return err
		},
	}

	if *runOnce {
		return runTasks(logger, metrics, tasks, *task)
	}

	ctx, stop := observability.ExitOnSignal(context.Background())
	defer stop()

	var server *http.Server
	if *metricsAddr != "" {
		router := mux.NewRouter()
		observability.NewHealthChecker("Event Analytics Worker", p.Store).RegisterRoutes(router)
		router.Handle("/metrics", observability.MetricsHandler(registry)).Methods(http.MethodGet)
		server = &http.Server{Addr: *metricsAddr, Handler: router, ReadTimeout: 10 * time.Second}
		go func() {
			if err := observability.ListenAndServe(server, logger); err != nil {
				logger.WithError(err).Error("Metrics server failed")
			}
		}()
	}

	c := cron.New(cron.WithLogger(cronLogger{logger.WithComponent("cron")}), cron.WithChain(
		cron.Recover(cronLogger{logger}),
		cron.SkipIfStillRunning(cronLogger{logger}),
	))

	schedules := map[string]string{
		"aggregate": cfg.Worker.AggregationSchedule,
		"cleanup":   cfg.Worker.CleanupSchedule,
	}
	for name, spec := range schedules {
		fn := tasks[name]
		taskName := name
		if _, err := c.AddFunc(spec, func() {
			if err := runTask(ctx, logger, metrics, taskName, fn); err != nil {
				logger.WithError(err).WithField("task", taskName).Error("Scheduled task failed")
			}
		}); err != nil {
			return fmt.Errorf("schedule %s (%q): %w", name, spec, err)
		}
		logger.WithField("task", name).Infof("Scheduled with %q", spec)
	}

	c.Start()
	logger.Info("Beacon worker started")

	// Record the current hour right away instead of waiting for the first tick
	async.SafeGo(ctx, logger, taskTimeout, "startup aggregation", tasks["aggregate"])

	<-ctx.Done()
	logger.Info("Shutting down gracefully...")

	shutdown := observability.NewShutdownManager(logger, server, cfg.Server.ShutdownTimeout)
	shutdown.RegisterShutdownFunc("cron", func(ctx context.Context) error {
		select {
		case <-c.Stop().Done():
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	})
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	return shutdown.Shutdown(shutdownCtx)
}

func runTasks(logger *observability.Logger, metrics *observability.Metrics, tasks map[string]func(context.Context) error, which string) error {
	ctx, stop := observability.ExitOnSignal(context.Background())
	defer stop()

	order := []string{"aggregate", "cleanup"}
	if which != "all" {
		if _, ok := tasks[which]; !ok {
			return fmt.Errorf("unknown task %q", which)
		}
		order = []string{which}
	}

	var errs []error
	for _, name := range order {
		if err := runTask(ctx, logger, metrics, name, tasks[name]); err != nil {
			errs = append(errs, fmt.Errorf("%s: %w", name, err))
		}
	}
	return errors.Join(errs...)
}

// runTask runs fn with a timeout and records it like a queued job
func runTask(parent context.Context, logger *observability.Logger, metrics *observability.Metrics, name string, fn func(context.Context) error) (err error) {
	ctx, cancel := context.WithTimeout(parent, taskTimeout)
	defer cancel()

	start := time.Now()
	metrics.JobsInFlight.Inc()
	defer func() {
		if r := recover(); r != nil {
			err = observability.MustRecover(r)
			logger.WithField("task", name).WithError(err).Error("Task panicked")
		}
		metrics.JobsInFlight.Dec()
		metrics.JobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
		status := "finished"
		if err != nil {
			status = "failed"
		}
		metrics.JobsTotal.WithLabelValues(name, status).Inc()
	}()

	logger.WithField("task", name).Info("Running task")
	return fn(ctx)
}

// cronLogger adapts the service logger to cron.Logger
type cronLogger struct {
	logger *observability.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.WithFields(kvFields(keysAndValues)).Debug(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.WithError(err).WithFields(kvFields(keysAndValues)).Error(msg)
}

func kvFields(keysAndValues []interface{}) map[string]interface{} {
	fields := make(map[string]interface{}, len(keysAndValues)/2)
	for i := 0; i+1 < len(keysAndValues); i += 2 {
		fields[fmt.Sprint(keysAndValues[i])] = keysAndValues[i+1]
	}
	return fields
}
