// Package notify delivers run lifecycle callbacks as CloudEvents over HTTP.
// Delivery is asynchronous: events are queued in a bounded channel and sent
// by a worker pool with per-host circuit breaking, so a dead callback
// endpoint never stalls polling.
package notify

import (
	"context"
	"log/slog"
	"net/url"
	"sync"
	"sync/atomic"
	"time"

	"emrjobs/internal/job"
	"emrjobs/internal/observability"
	"emrjobs/pkg/backoff"
	"emrjobs/pkg/circuitbreaker"
	"emrjobs/pkg/cloudevent"
)

// Delivery defaults. These rarely need tuning.
const (
	defaultMaxRetries       = 3
	defaultBreakerThreshold = 5
	defaultBreakerCooldown  = 30 * time.Second
	defaultMaxRequeues      = 10
)

// retryPolicy paces in-flight delivery retries. Callbacks are advisory, so
// the pacing is much tighter than the control-plane backoff.
var retryPolicy = backoff.Config{
	Initial: 100 * time.Millisecond,
	Max:     5 * time.Second,
}

// delivery is one queued callback send.
type delivery struct {
	event      *cloudevent.Event
	url        string
	signingKey string
	requeues   int
}

// Notifier implements job.Notifier by posting lifecycle CloudEvents to the
// callback URL attached to each run. Runs without a callback cost nothing.
type Notifier struct {
	source   string
	queue    chan *delivery
	sender   *cloudevent.Sender
	breakers *circuitbreaker.Registry
	cfg      Config
	logger   *slog.Logger
	metrics  *observability.Metrics

	delivered atomic.Int64
	failed    atomic.Int64
	dropped   atomic.Int64
	requeued  atomic.Int64

	wg       sync.WaitGroup
	shutdown chan struct{}
	closed   atomic.Bool
}

// Stats holds notifier counters for introspection.
type Stats struct {
	QueueDepth   int
	Delivered    int64
	Failed       int64
	Dropped      int64
	Requeued     int64
	Breakers     int
	BreakersOpen int
}

// New creates a notifier and starts its delivery workers. source becomes the
// CloudEvents source attribute on every event. metrics may be nil.
func New(source string, cfg Config, metrics *observability.Metrics) *Notifier {
	cfg = cfg.withDefaults()

	n := &Notifier{
		source: source,
		queue:  make(chan *delivery, cfg.QueueSize),
		sender: cloudevent.NewSender(cfg.HTTPTimeout),
		breakers: circuitbreaker.NewRegistry(circuitbreaker.Config{
			Threshold: defaultBreakerThreshold,
			Cooldown:  defaultBreakerCooldown,
		}),
		cfg:      cfg,
		logger:   slog.With("component", "notify"),
		metrics:  metrics,
		shutdown: make(chan struct{}),
	}

	n.wg.Add(cfg.Workers)
	for range cfg.Workers {
		go n.worker()
	}
	if metrics != nil {
		go n.reportQueueSize()
	}

	n.logger.Info("Notifier started", "workers", cfg.Workers, "queue", cfg.QueueSize)
	return n
}

// RunSubmitted posts the submission event for a run with a callback.
func (n *Notifier) RunSubmitted(run *job.Run) {
	if run.Callback == nil {
		return
	}
	ev := job.NewEventBuilder(n.source, run).BuildSubmittedEvent(run.ClientToken)
	n.enqueue(run.Callback, ev)
}

// RunState posts a progress event for a non-terminal observation.
func (n *Notifier) RunState(run *job.Run, attempt job.PollAttempt) {
	if run.Callback == nil {
		return
	}
	ev := job.NewEventBuilder(n.source, run).BuildStateEvent(attempt)
	n.enqueue(run.Callback, ev)
}

// RunTerminal posts the final outcome event for a run with a callback.
func (n *Notifier) RunTerminal(run *job.Run, out *job.Outcome) {
	if run.Callback == nil {
		return
	}
	ev := job.NewEventBuilder(n.source, run).BuildTerminalEvent(out)
	n.enqueue(run.Callback, ev)
}

// enqueue queues an event for async delivery, honoring the run's event
// filter. A full queue drops the event rather than blocking the poll loop.
func (n *Notifier) enqueue(cb *job.Callback, ev *cloudevent.Event) {
	if !job.FilteredEvents(ev.Type, cb.Events) {
		return
	}
	if n.closed.Load() {
		return
	}

	d := &delivery{event: ev, url: cb.URL, signingKey: cb.Key}
	select {
	case n.queue <- d:
	default:
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyDropped(context.Background())
		}
		n.logger.Warn("Callback dropped, queue full",
			"destination", extractHost(cb.URL),
			"type", ev.Type,
		)
	}
}

// Stats returns current notifier counters.
func (n *Notifier) Stats() Stats {
	counts := n.breakers.Counts()
	return Stats{
		QueueDepth:   len(n.queue),
		Delivered:    n.delivered.Load(),
		Failed:       n.failed.Load(),
		Dropped:      n.dropped.Load(),
		Requeued:     n.requeued.Load(),
		Breakers:     n.breakers.Len(),
		BreakersOpen: counts[circuitbreaker.Open],
	}
}

// Close stops accepting events and drains the queue. The context deadline
// bounds how long the drain may take.
func (n *Notifier) Close(ctx context.Context) error {
	if n.closed.Swap(true) {
		return nil
	}

	n.logger.Info("Notifier shutting down", "queued", len(n.queue))
	close(n.shutdown)

	done := make(chan struct{})
	go func() {
		n.wg.Wait()
		close(done)
	}()

	select {
	case <-done:
		n.logger.Info("Notifier shutdown complete",
			"delivered", n.delivered.Load(),
			"failed", n.failed.Load(),
			"dropped", n.dropped.Load(),
		)
		return nil
	case <-ctx.Done():
		n.logger.Warn("Notifier shutdown timed out", "remaining", len(n.queue))
		return ctx.Err()
	}
}

func (n *Notifier) reportQueueSize() {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-n.shutdown:
			return
		case <-ticker.C:
			n.metrics.RecordNotifyQueueSize(context.Background(), int64(len(n.queue)))
		}
	}
}

func (n *Notifier) worker() {
	defer n.wg.Done()

	for {
		select {
		case <-n.shutdown:
			n.drainQueue()
			return
		case d := <-n.queue:
			n.deliver(d)
		}
	}
}

// drainQueue delivers whatever is still queued after the shutdown signal.
func (n *Notifier) drainQueue() {
	for {
		select {
		case d := <-n.queue:
			n.deliver(d)
		default:
			return
		}
	}
}

// deliver sends one event with retry, tracking the destination's breaker.
func (n *Notifier) deliver(d *delivery) {
	host := extractHost(d.url)
	breaker := n.breakers.Get(host)

	if !breaker.Allow() {
		n.requeue(d, host)
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	start := time.Now()
	if err := n.sendWithRetry(ctx, d); err != nil {
		breaker.RecordFailure()
		n.failed.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyFailed(ctx)
		}
		n.logger.Warn("Callback delivery failed", "destination", host, "type", d.event.Type, "error", err)
		return
	}

	breaker.RecordSuccess()
	n.delivered.Add(1)
	if n.metrics != nil {
		n.metrics.RecordNotifyDelivered(ctx, time.Since(start).Seconds())
	}
}

// requeue defers an event while the destination's circuit is open. Events
// that wait out too many cooldowns are dropped.
func (n *Notifier) requeue(d *delivery, host string) {
	if d.requeues >= defaultMaxRequeues {
		n.dropped.Add(1)
		if n.metrics != nil {
			n.metrics.RecordNotifyDropped(context.Background())
		}
		n.logger.Warn("Callback dropped, max requeues reached",
			"destination", host,
			"type", d.event.Type,
			"requeues", d.requeues,
		)
		return
	}

	d.requeues++
	requeues := d.requeues
	n.requeued.Add(1)

	go func() {
		select {
		case <-n.shutdown:
			return
		case <-time.After(defaultBreakerCooldown):
		}

		select {
		case n.queue <- d:
			n.logger.Debug("Callback requeued", "destination", host, "type", d.event.Type, "requeues", requeues)
		case <-n.shutdown:
		default:
			n.dropped.Add(1)
			if n.metrics != nil {
				n.metrics.RecordNotifyDropped(context.Background())
			}
			n.logger.Warn("Callback dropped on requeue, queue full", "destination", host, "type", d.event.Type)
		}
	}()
}

func (n *Notifier) sendWithRetry(ctx context.Context, d *delivery) error {
	var lastErr error
	for attempt := range defaultMaxRetries + 1 {
		if attempt > 0 {
			delay, _ := backoff.Next(attempt, true, &retryPolicy)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		lastErr = n.sender.Send(ctx, d.url, d.event, d.signingKey)
		if lastErr == nil {
			return nil
		}
		// 4xx responses will not improve on retry.
		if cloudevent.IsClientError(lastErr) {
			return lastErr
		}
	}
	return lastErr
}

// extractHost keys circuit breakers by destination host.
func extractHost(rawURL string) string {
	parsed, err := url.Parse(rawURL)
	if err != nil || parsed.Host == "" {
		return rawURL
	}
	return parsed.Host
}

var _ job.Notifier = (*Notifier)(nil)
