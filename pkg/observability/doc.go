// Package observability holds the ambient plumbing shared by every beacon
// binary: structured logging, Prometheus metrics, OpenTelemetry tracing,
// health probes, panic recovery and graceful shutdown.
//
// # Logging
//
// Logger wraps log/slog. JSON is the default; development uses text.
//
//	logger := observability.NewLoggerWithFormat(observability.InfoLevel, observability.TextFormat, nil)
//	logger.WithComponent("api").WithField("event_id", id).Info("Event stored")
//
// Request-scoped loggers travel in the context:
//
//	ctx = observability.WithLogger(ctx, logger)
//	observability.FromContext(ctx).Warn("slow dashboard")
//
// # Metrics
//
// NewMetrics registers every collector on the given registerer. Pass a fresh
// prometheus.NewRegistry() in tests so that collectors never collide.
//
//	registry := prometheus.NewRegistry()
//	metrics := observability.NewMetrics(registry)
//	router.Handle("/metrics", observability.MetricsHandler(registry))
//
// # Tracing
//
// InitTracing installs OTLP/gRPC exporters when enabled. Otherwise the global
// no-op providers remain and spans are free.
//
// # Health
//
// HealthChecker serves /health, /health/live and /health/ready. Redis being
// unreachable reports "degraded" with 503; the process keeps serving.
//
// # Shutdown
//
// ShutdownManager drains the HTTP server, then runs the registered shutdown
// functions in order under one deadline.
package observability
