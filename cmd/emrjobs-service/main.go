// emrjobs-service is the HTTP API server for submitting, tracking and
// cancelling job runs on remote virtual clusters.
package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"emrjobs/internal/api"
	"emrjobs/internal/config"
	"emrjobs/internal/connection"
	"emrjobs/internal/controlplane/emr"
	"emrjobs/internal/health"
	"emrjobs/internal/job"
	"emrjobs/internal/notify"
	"emrjobs/internal/observability"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	if err := run(); err != nil {
		slog.Error("Service failed", "error", err)
		os.Exit(1)
	}
}

// serviceRegistry resolves connection profile names to job services. Each
// profile gets one control-plane client, constructed on first use and
// shared by every later request for that profile.
type serviceRegistry struct {
	store       *connection.Store
	defaultName string
	jobCfg      job.Config
	metrics     *observability.Metrics
	notifier    *notify.Notifier

	mu       sync.Mutex
	services map[string]*job.Service
	clients  []*emr.Client
}

func newServiceRegistry(store *connection.Store, defaultName string, jobCfg job.Config, metrics *observability.Metrics, notifier *notify.Notifier) *serviceRegistry {
	if defaultName == "" {
		defaultName = connection.DefaultName
	}
	return &serviceRegistry{
		store:       store,
		defaultName: defaultName,
		jobCfg:      jobCfg,
		metrics:     metrics,
		notifier:    notifier,
		services:    make(map[string]*job.Service),
	}
}

// Resolve implements api.ServiceResolver.
func (r *serviceRegistry) Resolve(ctx context.Context, name string) (*job.Service, error) {
	if name == "" {
		name = r.defaultName
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	if svc, ok := r.services[name]; ok {
		return svc, nil
	}

	profile, err := r.store.Resolve(name)
	if err != nil {
		return nil, err
	}
	client, err := emr.NewFromProfile(ctx, profile)
	if err != nil {
		return nil, err
	}

	svc := job.NewService(client, profile, r.jobCfg, r.metrics, r.notifier)
	r.services[name] = svc
	r.clients = append(r.clients, client)
	slog.Info("Connection profile resolved", "connection", name)
	return svc, nil
}

// Close releases every control-plane client the registry created.
func (r *serviceRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, c := range r.clients {
		if err := c.Close(); err != nil {
			slog.Warn("Control plane client close error", "error", err)
		}
	}
}

func run() error {
	ctx := context.Background()

	// Load configuration
	svcCfg := config.LoadServiceConfig()
	jobCfg := job.LoadConfigFromEnv()
	notifyCfg := notify.LoadConfigFromEnv()

	// Setup metrics
	metrics, metricsHandler, err := observability.NewMetrics(ctx)
	if err != nil {
		return err
	}

	// Create callback notifier
	notifier := notify.New(svcCfg.EventSource, notifyCfg, metrics)

	// Resolve the default connection profile up front so a misconfigured
	// deployment fails at startup, not on the first request.
	registry := newServiceRegistry(connection.NewStoreFromEnv(), svcCfg.Connection, jobCfg, metrics, notifier)
	defer registry.Close()

	defaultSvc, err := registry.Resolve(ctx, "")
	if err != nil {
		return err
	}

	// Create health checker probing the default profile's control plane
	healthChecker := health.NewChecker(defaultSvc)

	// Create API router
	router := api.NewRouter(api.RouterConfig{
		Services:      registry,
		Metrics:       metrics,
		HealthChecker: healthChecker,
		APIKey:        svcCfg.APIKey,
		MaxWaitWindow: svcCfg.MaxWaitWindow,
	})

	if svcCfg.APIKey != "" {
		slog.Info("API authentication enabled")
	} else {
		slog.Warn("API authentication disabled - no API_KEY_FILE configured")
	}

	// Create API server
	apiServer := &http.Server{
		Addr:         ":" + svcCfg.Port,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: svcCfg.MaxWaitWindow + 30*time.Second, // wait requests hold the connection for a full window
		IdleTimeout:  60 * time.Second,
	}

	// Create metrics server
	metricsMux := http.NewServeMux()
	metricsMux.Handle("GET /metrics", metricsHandler)
	metricsServer := &http.Server{
		Addr:         ":" + svcCfg.MetricsPort,
		Handler:      metricsMux,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	// Channel to capture server errors
	serverErr := make(chan error, 1)

	// Start API server
	go func() {
		slog.Info("Starting API server", "port", svcCfg.Port)
		if err := apiServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// Start metrics server
	go func() {
		slog.Info("Starting metrics server", "port", svcCfg.MetricsPort)
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverErr <- err
		}
	}()

	// shutdown closes both servers gracefully
	shutdown := func(timeout time.Duration) {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
		defer cancel()

		if err := apiServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("API server shutdown error", "error", err)
		}
		if err := metricsServer.Shutdown(shutdownCtx); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("Metrics server shutdown error", "error", err)
		}
	}

	// Wait for interrupt signal or server error
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-quit:
		slog.Info("Received shutdown signal", "signal", sig)
	case err := <-serverErr:
		slog.Error("Server failed to start", "error", err)
		shutdown(5 * time.Second)
		return err
	}

	// Phase 1: Mark service as unhealthy for load balancer draining
	healthChecker.SetShuttingDown()

	// Wait for load balancers to stop sending traffic
	if svcCfg.ShutdownDrainWait > 0 {
		slog.Info("Waiting for traffic to drain", "duration", svcCfg.ShutdownDrainWait)
		time.Sleep(svcCfg.ShutdownDrainWait)
	}

	// Phase 2: Graceful shutdown - stop accepting new connections, finish in-flight requests
	slog.Info("Starting graceful shutdown")
	shutdown(svcCfg.MaxWaitWindow + 25*time.Second)

	// Phase 3: Drain the callback notifier
	slog.Info("Draining callback notifier")
	notifierCtx, notifierCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer notifierCancel()
	if err := notifier.Close(notifierCtx); err != nil {
		slog.Warn("Notifier shutdown error", "error", err)
	}

	// Log final notifier stats
	stats := notifier.Stats()
	slog.Info("Notifier stats",
		"delivered", stats.Delivered,
		"failed", stats.Failed,
		"dropped", stats.Dropped,
	)

	// Submitted runs keep executing on the remote control plane. Clients
	// holding a job id re-attach and keep polling on their own.
	slog.Info("Submitted runs continue on the control plane")
	slog.Info("Shutdown complete")
	return nil
}
