package observability

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gorilla/mux"
)

// Health states
const (
	StatusHealthy   = "healthy"
	StatusDegraded  = "degraded"
	StatusUnhealthy = "unhealthy"
)

// Prober reports whether a dependency is currently usable
type Prober interface {
	Healthy(ctx context.Context) bool
}

// HealthChecker answers liveness and readiness probes for the service
type HealthChecker struct {
	service string
	redis   Prober
	timeout time.Duration
}

// NewHealthChecker creates a health checker for service backed by the Redis prober
func NewHealthChecker(service string, redis Prober) *HealthChecker {
	return &HealthChecker{
		service: service,
		redis:   redis,
		timeout: 5 * time.Second,
	}
}

// HealthStatus is the body of the /health response
type HealthStatus struct {
	Status          string    `json:"status"`
	Service         string    `json:"service"`
	RedisConnection string    `json:"redis_connection"`
	Message         string    `json:"message"`
	Timestamp       time.Time `json:"timestamp"`
}

// Check evaluates the dependencies. A Redis outage leaves the process up but
// degraded.
func (h *HealthChecker) Check(ctx context.Context) HealthStatus {
	ctx, cancel := context.WithTimeout(ctx, h.timeout)
	defer cancel()

	status := HealthStatus{
		Status:          StatusHealthy,
		Service:         h.service,
		RedisConnection: StatusHealthy,
		Message:         "Analytics platform is operational",
		Timestamp:       time.Now().UTC(),
	}
	if h.redis == nil || !h.redis.Healthy(ctx) {
		status.Status = StatusDegraded
		status.RedisConnection = StatusUnhealthy
		status.Message = "Redis connection issues detected"
	}
	return status
}

// Health serves /health: 200 when healthy, 503 otherwise
func (h *HealthChecker) Health(w http.ResponseWriter, r *http.Request) {
	status := h.Check(r.Context())
	code := http.StatusOK
	if status.Status != StatusHealthy {
		code = http.StatusServiceUnavailable
	}
	writeHealth(w, code, status)
}

// Liveness always returns 200 while the process is serving
func (h *HealthChecker) Liveness(w http.ResponseWriter, r *http.Request) {
	writeHealth(w, http.StatusOK, map[string]interface{}{
		"status":    StatusHealthy,
		"service":   h.service,
		"timestamp": time.Now().UTC(),
	})
}

// Readiness returns 503 until the service can reach Redis
func (h *HealthChecker) Readiness(w http.ResponseWriter, r *http.Request) {
	h.Health(w, r)
}

// RegisterRoutes mounts /health, /health/live and /health/ready
func (h *HealthChecker) RegisterRoutes(router *mux.Router) {
	router.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	router.HandleFunc("/health/live", h.Liveness).Methods(http.MethodGet)
	router.HandleFunc("/health/ready", h.Readiness).Methods(http.MethodGet)
}

func writeHealth(w http.ResponseWriter, code int, body interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(body)
}
