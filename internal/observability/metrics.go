package observability

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
)

// Metrics holds all application metrics covering the golden 4 signals:
// - Latency: How long requests and runs take
// - Traffic: Request/submit/poll throughput
// - Errors: Rate of failures by class
// - Saturation: Runs in flight, notifier queue depth
type Metrics struct {
	meter metric.Meter

	// HTTP metrics (Latency, Traffic, Errors)
	HTTPRequestDuration metric.Float64Histogram
	HTTPRequestsTotal   metric.Int64Counter
	HTTPErrorsTotal     metric.Int64Counter

	// Run lifecycle metrics (Latency, Traffic, Errors, Saturation)
	RunDuration       metric.Float64Histogram
	SubmitsTotal      metric.Int64Counter
	SubmitErrorsTotal metric.Int64Counter
	RunsTerminal      metric.Int64Counter
	RunsActive        metric.Int64UpDownCounter
	CancelsTotal      metric.Int64Counter

	// Poll metrics (Traffic, Errors)
	PollsTotal      metric.Int64Counter
	PollErrorsTotal metric.Int64Counter

	// Notifier metrics (Latency, Traffic, Errors, Saturation)
	NotifyDuration  metric.Float64Histogram
	NotifyDelivered metric.Int64Counter
	NotifyFailed    metric.Int64Counter
	NotifyDropped   metric.Int64Counter
	NotifyQueueSize metric.Int64Gauge
}

// NewMetrics creates and registers all metrics with a Prometheus exporter.
func NewMetrics(ctx context.Context) (*Metrics, http.Handler, error) {
	exporter, err := prometheus.New()
	if err != nil {
		return nil, nil, err
	}

	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(exporter))
	otel.SetMeterProvider(provider)

	meter := provider.Meter("emrjobs")
	m := &Metrics{meter: meter}

	// HTTP metrics
	m.HTTPRequestDuration, err = meter.Float64Histogram(
		"http_request_duration_seconds",
		metric.WithDescription("HTTP request latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.001, 0.005, 0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPRequestsTotal, err = meter.Int64Counter(
		"http_requests_total",
		metric.WithDescription("Total number of HTTP requests"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.HTTPErrorsTotal, err = meter.Int64Counter(
		"http_errors_total",
		metric.WithDescription("Total number of HTTP errors (4xx and 5xx)"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Run lifecycle metrics
	m.RunDuration, err = meter.Float64Histogram(
		"run_duration_seconds",
		metric.WithDescription("Job run duration from submit to terminal state in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(30, 60, 120, 300, 600, 1200, 1800, 3600, 7200, 14400),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SubmitsTotal, err = meter.Int64Counter(
		"submits_total",
		metric.WithDescription("Total job runs submitted to the control plane"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.SubmitErrorsTotal, err = meter.Int64Counter(
		"submit_errors_total",
		metric.WithDescription("Total submit calls that failed, by error class"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsTerminal, err = meter.Int64Counter(
		"runs_terminal_total",
		metric.WithDescription("Total job runs reaching a terminal state, by state"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.RunsActive, err = meter.Int64UpDownCounter(
		"runs_active",
		metric.WithDescription("Job runs currently being polled (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.CancelsTotal, err = meter.Int64Counter(
		"cancels_total",
		metric.WithDescription("Total cancel requests issued to the control plane"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Poll metrics
	m.PollsTotal, err = meter.Int64Counter(
		"polls_total",
		metric.WithDescription("Total describe calls that returned a state"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.PollErrorsTotal, err = meter.Int64Counter(
		"poll_errors_total",
		metric.WithDescription("Total describe calls that failed, by error class"),
	)
	if err != nil {
		return nil, nil, err
	}

	// Notifier metrics
	m.NotifyDuration, err = meter.Float64Histogram(
		"notify_duration_seconds",
		metric.WithDescription("Callback delivery latency in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.01, 0.025, 0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDelivered, err = meter.Int64Counter(
		"notify_delivered_total",
		metric.WithDescription("Total events successfully delivered"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyFailed, err = meter.Int64Counter(
		"notify_failed_total",
		metric.WithDescription("Total events failed after retries"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyDropped, err = meter.Int64Counter(
		"notify_dropped_total",
		metric.WithDescription("Total events dropped (queue full or circuit open)"),
	)
	if err != nil {
		return nil, nil, err
	}

	m.NotifyQueueSize, err = meter.Int64Gauge(
		"notify_queue_size",
		metric.WithDescription("Current number of events in the notifier queue (saturation)"),
	)
	if err != nil {
		return nil, nil, err
	}

	return m, promhttp.Handler(), nil
}

// RecordHTTPRequest records HTTP request metrics.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, durationSeconds float64) {
	attrs := metric.WithAttributes(
		methodAttr(method),
		pathAttr(path),
		statusAttr(statusCode),
	)

	m.HTTPRequestDuration.Record(ctx, durationSeconds, attrs)
	m.HTTPRequestsTotal.Add(ctx, 1, attrs)

	if statusCode >= 400 {
		m.HTTPErrorsTotal.Add(ctx, 1, attrs)
	}
}

// RecordSubmit records a run submitted to the control plane.
func (m *Metrics) RecordSubmit(ctx context.Context) {
	m.SubmitsTotal.Add(ctx, 1)
}

// RecordSubmitError records a submit call that failed.
func (m *Metrics) RecordSubmitError(ctx context.Context, class string) {
	m.SubmitErrorsTotal.Add(ctx, 1, metric.WithAttributes(classAttr(class)))
}

// RecordAttach records a poll loop attaching to a run.
func (m *Metrics) RecordAttach(ctx context.Context) {
	m.RunsActive.Add(ctx, 1)
}

// RecordTerminal records a run reaching a terminal state.
func (m *Metrics) RecordTerminal(ctx context.Context, state string, success bool, durationSeconds float64) {
	attrs := metric.WithAttributes(stateAttr(state), successAttr(success))
	m.RunDuration.Record(ctx, durationSeconds, attrs)
	m.RunsTerminal.Add(ctx, 1, metric.WithAttributes(stateAttr(state)))
	m.RunsActive.Add(ctx, -1)
}

// RecordCancel records a cancel request issued to the control plane.
func (m *Metrics) RecordCancel(ctx context.Context) {
	m.CancelsTotal.Add(ctx, 1)
}

// RecordPoll records a describe call that returned a remote state.
func (m *Metrics) RecordPoll(ctx context.Context, state string) {
	m.PollsTotal.Add(ctx, 1, metric.WithAttributes(stateAttr(state)))
}

// RecordPollError records a describe call that failed.
func (m *Metrics) RecordPollError(ctx context.Context, class string) {
	m.PollErrorsTotal.Add(ctx, 1, metric.WithAttributes(classAttr(class)))
}

// RecordNotifyDelivered records a successful event delivery with its duration.
func (m *Metrics) RecordNotifyDelivered(ctx context.Context, durationSeconds float64) {
	m.NotifyDelivered.Add(ctx, 1)
	m.NotifyDuration.Record(ctx, durationSeconds)
}

// RecordNotifyFailed records an event delivery that failed after retries.
func (m *Metrics) RecordNotifyFailed(ctx context.Context) {
	m.NotifyFailed.Add(ctx, 1)
}

// RecordNotifyDropped records a dropped event.
func (m *Metrics) RecordNotifyDropped(ctx context.Context) {
	m.NotifyDropped.Add(ctx, 1)
}

// RecordNotifyQueueSize records the current queue depth.
func (m *Metrics) RecordNotifyQueueSize(ctx context.Context, size int64) {
	m.NotifyQueueSize.Record(ctx, size)
}
