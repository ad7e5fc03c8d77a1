// Package api provides the HTTP API handlers and routing for the job-run
// service.
package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"emrjobs/internal/apperrors"
	"emrjobs/internal/health"
	"emrjobs/internal/job"
)

// maxRequestBodySize limits request body to 1MB to prevent memory exhaustion
const maxRequestBodySize = 1 << 20 // 1 MB

// defaultWaitWindow applies when a wait request omits the timeout parameter.
const defaultWaitWindow = 30 * time.Second

// ServiceResolver hands out the job service bound to a named connection
// profile. The empty name means the deployment's default profile.
// Resolution happens per request so one service instance can submit to
// several accounts and regions.
type ServiceResolver interface {
	Resolve(ctx context.Context, connection string) (*job.Service, error)
}

// ResolverFunc adapts a function to the ServiceResolver interface.
type ResolverFunc func(ctx context.Context, connection string) (*job.Service, error)

// Resolve calls f.
func (f ResolverFunc) Resolve(ctx context.Context, connection string) (*job.Service, error) {
	return f(ctx, connection)
}

// Handler contains HTTP handlers for the job-run API
type Handler struct {
	services ServiceResolver
	health   *health.Checker
	maxWait  time.Duration
}

// NewHandler creates a new API handler
func NewHandler(services ServiceResolver, healthChecker *health.Checker, maxWait time.Duration) *Handler {
	if maxWait <= 0 {
		maxWait = 2 * time.Minute
	}
	return &Handler{
		services: services,
		health:   healthChecker,
		maxWait:  maxWait,
	}
}

// submitRequest is the POST /v1/runs payload: a run request plus the
// optional connection profile that should execute it.
type submitRequest struct {
	job.RunRequest
	Connection string `json:"connection,omitempty"`
}

// CreateRun handles POST /v1/runs. Submission is asynchronous: 202 means
// the control plane accepted the run, not that it finished. Callers follow
// up with the run endpoints using the returned job id.
func (h *Handler) CreateRun(w http.ResponseWriter, r *http.Request) {
	// Limit request body size to prevent memory exhaustion
	r.Body = http.MaxBytesReader(w, r.Body, maxRequestBodySize)

	var req submitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		h.writeError(w, http.StatusBadRequest, "Invalid request body: "+err.Error())
		return
	}

	svc, err := h.services.Resolve(r.Context(), req.Connection)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	run, err := svc.Start(r.Context(), &req.RunRequest)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusAccepted, &job.SubmitResponse{
		JobID:            run.JobID,
		VirtualClusterID: run.VirtualClusterID,
		Name:             run.Name,
		State:            "submitted",
	})
}

// GetRun handles GET /v1/virtualclusters/{virtualClusterId}/runs/{jobId}.
// One describe call, no blocking; the poll-again decision stays with the
// caller. Re-attaching to a run after a client restart is this same call.
func (h *Handler) GetRun(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services.Resolve(r.Context(), r.URL.Query().Get("connection"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	status, err := svc.CheckOnce(r.Context(), r.PathValue("virtualClusterId"), r.PathValue("jobId"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// WaitRun handles GET /v1/virtualclusters/{virtualClusterId}/runs/{jobId}/wait.
// It long-polls until the run is terminal or the window closes, then reports
// the last observed status. The window is an observation bound: its expiry
// never cancels the run. Callers re-issue the request while terminal is
// false.
func (h *Handler) WaitRun(w http.ResponseWriter, r *http.Request) {
	window := defaultWaitWindow
	if raw := r.URL.Query().Get("timeout"); raw != "" {
		parsed, err := time.ParseDuration(raw)
		if err != nil || parsed <= 0 {
			h.writeError(w, http.StatusBadRequest, "Invalid timeout: want a positive duration such as 30s")
			return
		}
		window = parsed
	}
	if window > h.maxWait {
		window = h.maxWait
	}

	svc, err := h.services.Resolve(r.Context(), r.URL.Query().Get("connection"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	status, err := svc.Watch(r.Context(), r.PathValue("virtualClusterId"), r.PathValue("jobId"), window)
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	h.writeJSON(w, http.StatusOK, status)
}

// CancelRun handles DELETE /v1/virtualclusters/{virtualClusterId}/runs/{jobId}.
// Cancellation is advisory, so the response is 202: the remote system tears
// the run down on its own schedule, and callers keep checking the run until
// a terminal state appears.
func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	svc, err := h.services.Resolve(r.Context(), r.URL.Query().Get("connection"))
	if err != nil {
		h.handleError(w, r, err)
		return
	}

	if err := svc.Cancel(r.Context(), r.PathValue("virtualClusterId"), r.PathValue("jobId")); err != nil {
		h.handleError(w, r, err)
		return
	}

	w.WriteHeader(http.StatusAccepted)
}

// Livez handles GET /livez - liveness probe.
// Returns 200 if the process is alive. Does not check dependencies.
func (h *Handler) Livez(w http.ResponseWriter, r *http.Request) {
	response := h.health.Liveness(r.Context())
	h.writeJSON(w, http.StatusOK, response)
}

// Readyz handles GET /readyz - readiness probe.
// Returns 200 if the service is ready to accept traffic.
// Returns 503 while shutting down or when the control plane is unreachable.
func (h *Handler) Readyz(w http.ResponseWriter, r *http.Request) {
	response := h.health.Readiness(r.Context())

	status := http.StatusOK
	if !response.IsHealthy() {
		status = http.StatusServiceUnavailable
	}

	h.writeJSON(w, status, response)
}

// writeJSON writes a JSON response
func (h *Handler) writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

// writeError writes an error response
func (h *Handler) writeError(w http.ResponseWriter, status int, message string) {
	h.writeJSON(w, status, map[string]string{"error": message})
}

// handleError handles errors from the service layer with appropriate HTTP
// status codes.
func (h *Handler) handleError(w http.ResponseWriter, r *http.Request, err error) {
	status := apperrors.HTTPStatus(err)
	if status >= 500 {
		slog.Error("Internal error", "error", err, "path", r.URL.Path)
	} else {
		slog.Warn("Client error", "error", err, "path", r.URL.Path, "status", status)
	}
	h.writeError(w, status, err.Error())
}
