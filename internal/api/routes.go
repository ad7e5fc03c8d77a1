package api

import (
	"net/http"
	"time"

	"emrjobs/internal/health"
	"emrjobs/internal/observability"
)

// RouterConfig holds dependencies for the router.
type RouterConfig struct {
	Services      ServiceResolver
	Metrics       *observability.Metrics
	HealthChecker *health.Checker
	APIKey        string
	MaxWaitWindow time.Duration
}

// NewRouter creates a new HTTP router with all routes configured.
func NewRouter(cfg RouterConfig) http.Handler {
	handler := NewHandler(cfg.Services, cfg.HealthChecker, cfg.MaxWaitWindow)

	mux := http.NewServeMux()

	// Health check endpoints (liveness/readiness probes) - no auth required
	mux.HandleFunc("GET /livez", handler.Livez)
	mux.HandleFunc("GET /readyz", handler.Readyz)

	// Run endpoints - auth required
	authMiddleware := AuthMiddleware(cfg.APIKey)
	mux.Handle("POST /v1/runs", authMiddleware(http.HandlerFunc(handler.CreateRun)))
	mux.Handle("GET /v1/virtualclusters/{virtualClusterId}/runs/{jobId}", authMiddleware(http.HandlerFunc(handler.GetRun)))
	mux.Handle("GET /v1/virtualclusters/{virtualClusterId}/runs/{jobId}/wait", authMiddleware(http.HandlerFunc(handler.WaitRun)))
	mux.Handle("DELETE /v1/virtualclusters/{virtualClusterId}/runs/{jobId}", authMiddleware(http.HandlerFunc(handler.CancelRun)))

	// Apply middleware chain (order matters: outermost first)
	var h http.Handler = mux
	h = ContentTypeMiddleware()(h)
	h = CORSMiddleware()(h)
	if cfg.Metrics != nil {
		h = MetricsMiddleware(cfg.Metrics)(h)
	}
	h = LoggingMiddleware()(h)
	h = RecoveryMiddleware()(h)

	return h
}
