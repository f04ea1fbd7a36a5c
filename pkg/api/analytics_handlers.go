package api

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/platinummonkey/beacon/pkg/httputil"
	"github.com/platinummonkey/beacon/pkg/index"
	"github.com/platinummonkey/beacon/pkg/jobs"
	"github.com/platinummonkey/beacon/pkg/middleware"
	"github.com/platinummonkey/beacon/pkg/sample"
)

// Analytics response types
const (
	AnalyticsTypeDashboard = "platform_dashboard"
	AnalyticsTypeUser      = "user_specific"
)

// AnalyticsResponse wraps the dashboard or a user view
type AnalyticsResponse struct {
	AnalyticsType string                `json:"analytics_type"`
	Data          interface{}           `json:"data"`
	ClientInfo    middleware.ClientInfo `json:"client_info"`
}

// SampleDataResponse is returned when a generation job is accepted
type SampleDataResponse struct {
	Message             string                `json:"message"`
	JobID               string                `json:"job_id"`
	Status              string                `json:"status"`
	EstimatedCompletion string                `json:"estimated_completion"`
	ClientInfo          middleware.ClientInfo `json:"client_info"`
}

// AuthInfoResponse is returned by GET /auth/info
type AuthInfoResponse struct {
	Message    string                `json:"message"`
	ClientInfo middleware.ClientInfo `json:"client_info"`
}

// getAnalytics handles GET /analytics/
// Query params:
//   - user_id: switch to the per-user view
//   - limit: how many recent index entries to resolve for the user (default 100)
func (s *Server) getAnalytics(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	query := r.URL.Query()

	if query.Has("user_id") {
		userID := strings.TrimSpace(query.Get("user_id"))
		if userID == "" {
			httputil.WriteBadRequest(w, "user_id must be a non-empty string")
			return
		}
		limit, err := httputil.ParseQueryInt(r, "limit", index.DefaultLimit)
		if err != nil || limit <= 0 {
			httputil.WriteBadRequest(w, "limit must be a positive integer")
			return
		}

		view, err := s.analytics.UserAnalytics(ctx, userID, limit)
		if err != nil {
			writeServiceError(w, r, err, "Analytics error", "Failed to generate analytics")
			return
		}
		_ = httputil.WriteJSON(w, http.StatusOK, AnalyticsResponse{
			AnalyticsType: AnalyticsTypeUser,
			Data:          view,
			ClientInfo:    middleware.GetClientInfo(r),
		})
		return
	}

	dashboard, err := s.analytics.Dashboard(ctx)
	if err != nil {
		writeServiceError(w, r, err, "Analytics error", "Failed to generate analytics")
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, AnalyticsResponse{
		AnalyticsType: AnalyticsTypeDashboard,
		Data:          dashboard,
		ClientInfo:    middleware.GetClientInfo(r),
	})
}

// generateSampleData handles POST /generate-sample-data/{num_events}/
func (s *Server) generateSampleData(w http.ResponseWriter, r *http.Request) {
	n, err := httputil.ParsePathInt(r, "num_events")
	if err != nil {
		httputil.WriteBadRequest(w, "Number of events must be an integer")
		return
	}
	if n <= 0 {
		httputil.WriteBadRequest(w, "Number of events must be positive")
		return
	}
	if n > sample.MaxEventsPerJob {
		httputil.WriteBadRequest(w, "Maximum 10,000 events per request for performance reasons")
		return
	}

	job, err := s.jobs.Enqueue(sample.JobName, sample.JobArgs(n))
	if err != nil {
		if errors.Is(err, jobs.ErrQueueFull) {
			httputil.WriteServiceUnavailable(w, "Failed to start sample data generation", "Job queue is full, retry later")
			return
		}
		httputil.WriteInternalError(w, "Failed to start sample data generation", err)
		return
	}

	_ = httputil.WriteJSON(w, http.StatusAccepted, SampleDataResponse{
		Message:             fmt.Sprintf("Sample data generation started for %d events", n),
		JobID:               job.ID,
		Status:              "enqueued",
		EstimatedCompletion: "1-5 minutes",
		ClientInfo:          middleware.GetClientInfo(r),
	})
}

// getJob handles GET /jobs/{job_id}
func (s *Server) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := httputil.ParsePathString(r, "job_id")
	if err != nil {
		httputil.WriteBadRequest(w, "Invalid job_id")
		return
	}

	job, ok := s.jobs.Get(id)
	if !ok {
		_ = httputil.WriteJSON(w, http.StatusNotFound, map[string]string{
			"error":  "Job not found",
			"job_id": id,
		})
		return
	}
	_ = httputil.WriteJSON(w, http.StatusOK, job)
}

// authInfo handles GET /auth/info
func (s *Server) authInfo(w http.ResponseWriter, r *http.Request) {
	_ = httputil.WriteJSON(w, http.StatusOK, AuthInfoResponse{
		Message:    "Authentication information retrieved successfully",
		ClientInfo: middleware.GetClientInfo(r),
	})
}
