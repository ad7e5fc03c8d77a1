package job

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"emrjobs/internal/apperrors"
	"emrjobs/internal/observability"
	"emrjobs/pkg/backoff"
)

// Poller drives runs from submission to a terminal outcome.
//
// One Poller serves many concurrent runs: it holds no per-run state, so no
// locking is needed beyond the shared ControlPlane handle. Each Run or Wait
// call owns its loop variables exclusively.
//
// Waits are cancellable: both the inter-poll interval and the error backoff
// delay are context-aware, so an external abort interrupts them immediately.
type Poller struct {
	cp       ControlPlane
	cfg      Config
	metrics  *observability.Metrics // optional
	notifier Notifier               // optional
}

// Notifier receives run lifecycle notifications. Implementations must not
// block; delivery is best-effort and never affects the poll loop.
type Notifier interface {
	RunSubmitted(run *Run)
	RunState(run *Run, attempt PollAttempt)
	RunTerminal(run *Run, outcome *Outcome)
}

// NewPoller creates a poller. metrics may be nil.
func NewPoller(cp ControlPlane, cfg Config, metrics *observability.Metrics) *Poller {
	return &Poller{cp: cp, cfg: cfg.withDefaults(), metrics: metrics}
}

// Run submits the run, then polls it to a terminal outcome.
//
// The returned Outcome is always set for a submitted run. The error is set
// for failure outcomes: a fatal or exhausted submission error, an exhausted
// or fatal polling error, or a remote job failure (apperrors.ErrRemoteFailure
// with the verbatim reason). Completed and Cancelled outcomes, and aborts
// requested by the caller, return a nil error.
func (p *Poller) Run(ctx context.Context, run *Run) (*Outcome, error) {
	start := time.Now()

	if err := p.submit(ctx, run); err != nil {
		out := &Outcome{
			JobID:            run.JobID,
			VirtualClusterID: run.VirtualClusterID,
			State:            StateAborted,
			FailureReason:    err.Error(),
			Elapsed:          time.Since(start),
		}
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
			// Aborted before the control plane assigned an id, so there is
			// nothing remote to cancel or poll.
			out.FailureReason = abortReason(err)
			return out, nil
		}
		return out, err
	}

	if p.metrics != nil {
		p.metrics.RecordAttach(ctx)
	}
	return p.poll(ctx, run, start)
}

// Wait polls an already submitted run to a terminal outcome. It serves
// hosts that restart mid-run and re-attach using a stored job id.
func (p *Poller) Wait(ctx context.Context, virtualClusterID, jobID string) (*Outcome, error) {
	if virtualClusterID == "" {
		return nil, apperrors.Validation("virtualClusterId", "virtual cluster ID is required")
	}
	if jobID == "" {
		return nil, apperrors.Validation("jobId", "job ID is required")
	}
	if p.metrics != nil {
		p.metrics.RecordAttach(ctx)
	}
	run := &Run{VirtualClusterID: virtualClusterID, JobID: jobID}
	return p.poll(ctx, run, time.Now())
}

// submit issues StartJobRun with backoff on transient failures. On success
// the control plane's job id is attached to the run.
func (p *Poller) submit(ctx context.Context, run *Run) error {
	logger := slog.With("component", "poller", "virtualClusterId", run.VirtualClusterID, "name", run.Name)

	for attempt := 1; ; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}

		callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		jobID, err := p.cp.Submit(callCtx, run)
		cancel()

		if err == nil {
			run.JobID = jobID
			if p.metrics != nil {
				p.metrics.RecordSubmit(ctx)
			}
			logger.Info("Run submitted", "jobId", jobID, "attempt", attempt, "clientToken", run.ClientToken)
			if p.notifier != nil {
				p.notifier.RunSubmitted(run)
			}
			return nil
		}
		if ctx.Err() != nil {
			// The call failed because the caller gave up, not a verdict
			// from the control plane.
			return ctx.Err()
		}
		if p.metrics != nil {
			p.metrics.RecordSubmitError(ctx, apperrors.Class(err))
		}

		delay, ok := backoff.Next(attempt, apperrors.Retryable(err), &p.cfg.SubmitBackoff)
		if !ok {
			if apperrors.Retryable(err) {
				err = apperrors.Exhausted("submit", attempt, err)
			}
			logger.Error("Run submission failed", "attempt", attempt, "error", err)
			return err
		}

		logger.Warn("Submission failed, backing off", "attempt", attempt, "delay", delay, "error", err)
		if werr := sleepCtx(ctx, delay); werr != nil {
			return werr
		}
	}
}

// poll is the describe loop. It exits on a terminal remote state, an
// exhausted retry budget, a fatal error class, or caller abort.
func (p *Poller) poll(ctx context.Context, run *Run, start time.Time) (*Outcome, error) {
	logger := slog.With("component", "poller", "virtualClusterId", run.VirtualClusterID, "jobId", run.JobID)

	var (
		polls    int // observations that returned a state
		attempts int // describe calls, failures included
		failures int // consecutive transient failures
	)

	for {
		if ctx.Err() != nil {
			return p.abort(ctx, run, polls, start, logger)
		}

		callCtx, cancel := context.WithTimeout(ctx, p.cfg.RequestTimeout)
		remote, err := p.cp.Describe(callCtx, run.VirtualClusterID, run.JobID)
		cancel()
		attempts++

		if err != nil {
			if ctx.Err() != nil {
				return p.abort(ctx, run, polls, start, logger)
			}
			failures++
			if p.metrics != nil {
				p.metrics.RecordPollError(ctx, apperrors.Class(err))
			}

			delay, ok := backoff.Next(failures, apperrors.Retryable(err), &p.cfg.PollBackoff)
			if !ok {
				if apperrors.Retryable(err) {
					err = apperrors.Exhausted("describe", failures, err)
				}
				logger.Error("Polling stopped", "polls", polls, "error", err)
				return p.finish(ctx, run, StateAborted, err.Error(), polls, start), err
			}

			logger.Warn("Describe failed, backing off", "failures", failures, "delay", delay, "error", err)
			if werr := sleepCtx(ctx, delay); werr != nil {
				return p.abort(ctx, run, polls, start, logger)
			}
			continue
		}

		failures = 0
		polls++
		state, known := p.cfg.States.Classify(remote.State)
		if !known {
			logger.Warn("Unrecognized remote state, still polling", "remoteState", remote.State)
		}
		if p.metrics != nil {
			p.metrics.RecordPoll(ctx, remote.State)
		}
		logger.Info("Run state observed", "remoteState", remote.State, "state", state, "poll", polls, "elapsed", time.Since(start))

		if state.Terminal() {
			out := p.finish(ctx, run, state, remote.FailureReason, polls, start)
			if state == StateFailed {
				return out, apperrors.RemoteFailure(run.JobID, remote.FailureReason)
			}
			return out, nil
		}

		if p.notifier != nil {
			p.notifier.RunState(run, PollAttempt{
				Attempt:     attempts,
				Elapsed:     time.Since(start),
				RemoteState: remote.State,
				State:       state,
			})
		}

		if werr := sleepCtx(ctx, p.cfg.PollInterval); werr != nil {
			return p.abort(ctx, run, polls, start, logger)
		}
	}
}

// abort handles the cancellation path once the caller's context is done:
// issue one best-effort remote cancel, then keep polling on a grace context
// until the remote system reports a terminal state or the grace period
// elapses, after which the run is reported Aborted regardless.
func (p *Poller) abort(ctx context.Context, run *Run, polls int, start time.Time, logger *slog.Logger) (*Outcome, error) {
	cause := context.Cause(ctx)
	logger.Info("Abort requested, cancelling run", "cause", cause)

	// The caller's context is done; the remaining calls get a fresh one
	// bounded by the grace period.
	grace, cancelGrace := context.WithTimeout(context.WithoutCancel(ctx), p.cfg.CancelGrace)
	defer cancelGrace()

	callCtx, cancel := context.WithTimeout(grace, p.cfg.RequestTimeout)
	err := p.cp.Cancel(callCtx, run.VirtualClusterID, run.JobID)
	cancel()
	if err != nil {
		// Best effort: failures here are logged, never raised.
		logger.Warn("Cancel request failed", "error", err)
	} else {
		if p.metrics != nil {
			p.metrics.RecordCancel(grace)
		}
		logger.Info("Cancel requested")
	}

	for {
		callCtx, cancel := context.WithTimeout(grace, p.cfg.RequestTimeout)
		remote, err := p.cp.Describe(callCtx, run.VirtualClusterID, run.JobID)
		cancel()

		if err != nil {
			logger.Warn("Describe failed during abort", "error", err)
		} else {
			polls++
			state, _ := p.cfg.States.Classify(remote.State)
			logger.Info("Run state observed during abort", "remoteState", remote.State, "state", state)
			if state.Terminal() {
				out := p.finish(grace, run, state, remote.FailureReason, polls, start)
				if state == StateFailed {
					return out, apperrors.RemoteFailure(run.JobID, remote.FailureReason)
				}
				return out, nil
			}
		}

		if werr := sleepCtx(grace, p.cfg.PollInterval); werr != nil {
			logger.Info("Abort grace elapsed, reporting aborted", "polls", polls)
			return p.finish(context.WithoutCancel(grace), run, StateAborted, abortReason(cause), polls, start), nil
		}
	}
}

// finish builds the terminal outcome and records terminal metrics and
// notifications. Every submitted run passes through here exactly once.
func (p *Poller) finish(ctx context.Context, run *Run, state RunState, reason string, polls int, start time.Time) *Outcome {
	elapsed := time.Since(start)
	out := &Outcome{
		JobID:            run.JobID,
		VirtualClusterID: run.VirtualClusterID,
		State:            state,
		FailureReason:    reason,
		Polls:            polls,
		Elapsed:          elapsed,
	}
	if p.metrics != nil {
		p.metrics.RecordTerminal(ctx, string(state), state == StateCompleted, elapsed.Seconds())
	}
	if p.notifier != nil {
		p.notifier.RunTerminal(run, out)
	}
	return out
}

// abortReason renders the cause of an abort for the outcome report.
func abortReason(cause error) string {
	switch {
	case errors.Is(cause, context.DeadlineExceeded):
		return "timed out waiting for terminal state"
	case cause != nil && !errors.Is(cause, context.Canceled):
		return "aborted: " + cause.Error()
	default:
		return "aborted by caller"
	}
}

// sleepCtx waits for d or until ctx is done, whichever comes first.
func sleepCtx(ctx context.Context, d time.Duration) error {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
