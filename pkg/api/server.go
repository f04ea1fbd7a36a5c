package api

import (
	"context"
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/platinummonkey/beacon/pkg/analytics"
	"github.com/platinummonkey/beacon/pkg/events"
	"github.com/platinummonkey/beacon/pkg/httputil"
	"github.com/platinummonkey/beacon/pkg/jobs"
	"github.com/platinummonkey/beacon/pkg/middleware"
	"github.com/platinummonkey/beacon/pkg/observability"
)

// ServiceName is reported by /health
const ServiceName = "Event Analytics Platform"

// maxBodyBytes bounds event and enrichment payloads
const maxBodyBytes = 1 << 20

// EventStore is the event repository as used by the handlers
type EventStore interface {
	StoreEvent(ctx context.Context, req events.StoreRequest) (string, error)
	GetEvent(ctx context.Context, id string) (*events.Event, bool, error)
	EnrichEvent(ctx context.Context, id string, props map[string]interface{}) (bool, error)
}

// AnalyticsReader serves the dashboard and per-user views
type AnalyticsReader interface {
	Dashboard(ctx context.Context) (*analytics.Dashboard, error)
	UserAnalytics(ctx context.Context, userID string, limit int) (*analytics.UserAnalytics, error)
}

// JobQueue accepts background work
type JobQueue interface {
	Enqueue(name string, args jobs.Args) (*jobs.Job, error)
	Get(id string) (*jobs.Job, bool)
}

// Deps are the collaborators of a Server. Metrics and Registry are optional.
type Deps struct {
	Events    EventStore
	Analytics AnalyticsReader
	Jobs      JobQueue
	Auth      *middleware.Authenticator
	Health    *observability.HealthChecker
	Metrics   *observability.Metrics
	Registry  *prometheus.Registry
	Logger    *observability.Logger
}

// Server represents our API server
type Server struct {
	router    *mux.Router
	events    EventStore
	analytics AnalyticsReader
	jobs      JobQueue
	auth      *middleware.Authenticator
	health    *observability.HealthChecker
	metrics   *observability.Metrics
	registry  *prometheus.Registry
	logger    *observability.Logger
}

// NewServer creates a new API server
func NewServer(deps Deps) *Server {
	s := &Server{
		router:    mux.NewRouter(),
		events:    deps.Events,
		analytics: deps.Analytics,
		jobs:      deps.Jobs,
		auth:      deps.Auth,
		health:    deps.Health,
		metrics:   deps.Metrics,
		registry:  deps.Registry,
		logger:    deps.Logger,
	}
	if s.logger == nil {
		s.logger = observability.NewNopLogger()
	}
	s.logger = s.logger.WithComponent("api")

	s.setupRoutes()
	return s
}

// setupRoutes configures all the API routes
func (s *Server) setupRoutes() {
	s.router.Use(
		httputil.RequestIDMiddleware(s.logger),
		httputil.RecoveryMiddleware,
		httputil.LoggingMiddleware,
		httputil.MaxBytesMiddleware(maxBodyBytes),
	)
	if s.metrics != nil {
		s.router.Use(observability.HTTPMetricsMiddleware(s.metrics))
	}

	if s.health != nil {
		s.health.RegisterRoutes(s.router)
	}
	if s.registry != nil {
		s.router.Handle("/metrics", observability.MetricsHandler(s.registry)).Methods(http.MethodGet)
	}

	read := s.auth.Require(middleware.PermRead)
	write := s.auth.Require(middleware.PermWrite)
	admin := s.auth.Require(middleware.PermAdmin)

	// Events
	s.router.Handle("/events/", write(http.HandlerFunc(s.createEvent))).Methods(http.MethodPost)
	s.router.Handle("/events/{event_id}/", read(http.HandlerFunc(s.getEvent))).Methods(http.MethodGet)
	s.router.Handle("/events/{event_id}/enrich/", write(http.HandlerFunc(s.enrichEvent))).Methods(http.MethodPut)

	// Analytics
	s.router.Handle("/analytics/", read(http.HandlerFunc(s.getAnalytics))).Methods(http.MethodGet)

	// Sample data and jobs
	s.router.Handle("/generate-sample-data/{num_events}/", admin(http.HandlerFunc(s.generateSampleData))).Methods(http.MethodPost)
	s.router.Handle("/jobs/{job_id}", read(http.HandlerFunc(s.getJob))).Methods(http.MethodGet)

	s.router.Handle("/auth/info", read(http.HandlerFunc(s.authInfo))).Methods(http.MethodGet)
}

// Router exposes the mux router, mainly for tests
func (s *Server) Router() *mux.Router {
	return s.router
}

// Handler returns the server wrapped in OpenTelemetry HTTP instrumentation
func (s *Server) Handler() http.Handler {
	return otelhttp.NewHandler(s.router, "beacon-api",
		otelhttp.WithSpanNameFormatter(func(_ string, r *http.Request) string {
			if route := mux.CurrentRoute(r); route != nil {
				if tpl, err := route.GetPathTemplate(); err == nil {
					return r.Method + " " + tpl
				}
			}
			return r.Method + " " + r.URL.Path
		}),
	)
}

// ServeHTTP implements http.Handler
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// writeServiceError maps repository and analytics errors onto responses.
// platformTitle labels known platform failures and fallbackTitle anything
// unexpected.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error, platformTitle, fallbackTitle string) {
	logger := observability.FromContext(r.Context()).WithError(err)

	switch {
	case events.IsConnectivity(err):
		logger.Error("Redis unavailable")
		httputil.WriteServiceUnavailable(w, "Database connection failed", "Unable to connect to analytics database")
	case events.IsValidation(err):
		httputil.WriteBadRequest(w, err.Error())
	case events.IsPlatform(err), events.IsCorruption(err):
		logger.Error(platformTitle)
		httputil.WriteInternalError(w, platformTitle, err)
	default:
		logger.Error(fallbackTitle)
		httputil.WriteInternalError(w, fallbackTitle, err)
	}
}
