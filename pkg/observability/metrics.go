package observability

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics holds all Prometheus metrics
type Metrics struct {
	// HTTP metrics
	HTTPRequestsTotal   *prometheus.CounterVec
	HTTPRequestDuration *prometheus.HistogramVec

	// Redis metrics
	RedisCommandsTotal     *prometheus.CounterVec
	RedisCommandDuration   *prometheus.HistogramVec
	RedisHealthy           prometheus.Gauge
	RedisConnectionsActive prometheus.Gauge

	// Event pipeline metrics
	EventsStoredTotal    *prometheus.CounterVec
	EventStoreFailures   *prometheus.CounterVec
	EventsEnrichedTotal  prometheus.Counter
	SampleEventsTotal    *prometheus.CounterVec
	DashboardRenderTotal prometheus.Counter

	// Job metrics
	JobsTotal    *prometheus.CounterVec
	JobDuration  *prometheus.HistogramVec
	JobsInFlight prometheus.Gauge

	// Rate limiting
	RateLimitedTotal prometheus.Counter
}

// NewMetrics creates all metrics and registers them with registry
func NewMetrics(registry prometheus.Registerer) *Metrics {
	m := &Metrics{
		HTTPRequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_http_requests_total",
				Help: "Total number of HTTP requests",
			},
			[]string{"method", "route", "status"},
		),
		HTTPRequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_http_request_duration_seconds",
				Help:    "HTTP request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"method", "route"},
		),

		RedisCommandsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_redis_commands_total",
				Help: "Total number of Redis commands",
			},
			[]string{"command", "status"},
		),
		RedisCommandDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_redis_command_duration_seconds",
				Help:    "Redis command duration in seconds",
				Buckets: []float64{.001, .005, .01, .025, .05, .1, .25, .5, 1},
			},
			[]string{"command"},
		),
		RedisHealthy: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "beacon_redis_healthy",
				Help: "1 when the last Redis health probe succeeded",
			},
		),
		RedisConnectionsActive: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "beacon_redis_connections_active",
				Help: "Number of open Redis connections in the pool",
			},
		),

		EventsStoredTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_events_stored_total",
				Help: "Total number of events stored, by event type",
			},
			[]string{"event_type"},
		),
		EventStoreFailures: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_event_store_failures_total",
				Help: "Event writes that failed, by fan-out step",
			},
			[]string{"step"},
		),
		EventsEnrichedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "beacon_events_enriched_total",
				Help: "Total number of successful event enrichments",
			},
		),
		SampleEventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_sample_events_total",
				Help: "Synthetic events produced by the sample generator",
			},
			[]string{"status"},
		),
		DashboardRenderTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "beacon_dashboard_renders_total",
				Help: "Total number of dashboard snapshots computed",
			},
		),

		JobsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "beacon_jobs_total",
				Help: "Background jobs by name and final status",
			},
			[]string{"job", "status"},
		),
		JobDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "beacon_job_duration_seconds",
				Help:    "Background job duration in seconds",
				Buckets: []float64{.1, .5, 1, 5, 15, 30, 60, 120, 300, 600},
			},
			[]string{"job"},
		),
		JobsInFlight: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Name: "beacon_jobs_in_flight",
				Help: "Background jobs currently executing",
			},
		),

		RateLimitedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Name: "beacon_rate_limited_total",
				Help: "Requests rejected by the rate limiter",
			},
		),
	}

	registry.MustRegister(
		m.HTTPRequestsTotal,
		m.HTTPRequestDuration,
		m.RedisCommandsTotal,
		m.RedisCommandDuration,
		m.RedisHealthy,
		m.RedisConnectionsActive,
		m.EventsStoredTotal,
		m.EventStoreFailures,
		m.EventsEnrichedTotal,
		m.SampleEventsTotal,
		m.DashboardRenderTotal,
		m.JobsTotal,
		m.JobDuration,
		m.JobsInFlight,
		m.RateLimitedTotal,
	)

	return m
}

// responseWriter wraps http.ResponseWriter to capture the status code
type responseWriter struct {
	http.ResponseWriter
	statusCode int
}

func (rw *responseWriter) WriteHeader(code int) {
	rw.statusCode = code
	rw.ResponseWriter.WriteHeader(code)
}

// HTTPMetricsMiddleware instruments HTTP requests. Requests are labelled by
// their mux route template so that event ids never become label values.
func HTTPMetricsMiddleware(metrics *Metrics) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			rw := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}

			next.ServeHTTP(rw, r)

			route := routeTemplate(r)
			status := strconv.Itoa(rw.statusCode)
			metrics.HTTPRequestsTotal.WithLabelValues(r.Method, route, status).Inc()
			metrics.HTTPRequestDuration.WithLabelValues(r.Method, route).Observe(time.Since(start).Seconds())
		})
	}
}

func routeTemplate(r *http.Request) string {
	if route := mux.CurrentRoute(r); route != nil {
		if tpl, err := route.GetPathTemplate(); err == nil {
			return tpl
		}
	}
	return "unmatched"
}

// MetricsHandler returns the /metrics handler for registry
func MetricsHandler(registry *prometheus.Registry) http.Handler {
	return promhttp.HandlerFor(registry, promhttp.HandlerOpts{})
}
