package job

import (
	"context"
	"log/slog"
	"time"

	"emrjobs/internal/apperrors"
	"emrjobs/internal/connection"
	"emrjobs/internal/observability"
)

// Service is the orchestration adapter: the operations a host scheduler
// calls to run, track, and cancel job runs.
//
// The Service is stateless. All run state lives in the remote control
// plane, so service restarts never lose runs, multiple instances can
// coexist, and a host that stored a job id can re-attach after its own
// restart.
type Service struct {
	cp      ControlPlane
	profile connection.Profile
	cfg     Config
	poller  *Poller
	metrics *observability.Metrics
}

// NewService creates a service bound to one connection profile. metrics and
// notifier may be nil.
func NewService(cp ControlPlane, profile connection.Profile, cfg Config, metrics *observability.Metrics, notifier Notifier) *Service {
	cfg = cfg.withDefaults()
	poller := NewPoller(cp, cfg, metrics)
	poller.notifier = notifier
	return &Service{
		cp:      cp,
		profile: profile,
		cfg:     cfg,
		poller:  poller,
		metrics: metrics,
	}
}

// RunToCompletion builds and submits a run, then drives it synchronously to
// a terminal outcome. When timeout is positive and elapses first,
// cancellation is requested and the outcome reports the timeout as an
// abort. An external abort arrives through ctx and takes the same path.
func (s *Service) RunToCompletion(ctx context.Context, req *RunRequest, timeout time.Duration) (*Outcome, error) {
	run, err := BuildRun(s.profile, req)
	if err != nil {
		return nil, err
	}

	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.poller.Run(ctx, run)
}

// Start builds and submits a run without waiting for it. The returned Run
// carries the control plane's job id; hosts pair it with CheckOnce on
// their own cadence.
//
// When the request carries a callback, the run is also tracked in the
// background so lifecycle events fire without a waiting client.
func (s *Service) Start(ctx context.Context, req *RunRequest) (*Run, error) {
	run, err := BuildRun(s.profile, req)
	if err != nil {
		return nil, err
	}
	if err := s.poller.submit(ctx, run); err != nil {
		return nil, err
	}
	if run.Callback != nil && s.poller.notifier != nil {
		s.track(run)
	}
	return run, nil
}

// track follows a submitted run in the background for event delivery. The
// tracker is detached from the submitting request: it polls until the run
// is terminal or the poll budget runs out, and dies with the process. A
// tracker lost to a restart is not a correctness problem, only missed
// events; the run itself lives on the control plane.
func (s *Service) track(run *Run) {
	if s.metrics != nil {
		s.metrics.RecordAttach(context.Background())
	}
	go func() {
		if _, err := s.poller.poll(context.Background(), run, time.Now()); err != nil {
			slog.Warn("Background run tracking ended with error", "jobId", run.JobID, "error", err)
		}
	}()
}

// CheckOnce performs a single describe and classifies the result. It is the
// non-blocking probe for hosts that schedule their own re-checks, including
// hosts re-attaching to a run after a restart.
func (s *Service) CheckOnce(ctx context.Context, virtualClusterID, jobID string) (*Status, error) {
	if virtualClusterID == "" {
		return nil, apperrors.Validation("virtualClusterId", "virtual cluster ID is required")
	}
	if jobID == "" {
		return nil, apperrors.Validation("jobId", "job ID is required")
	}

	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	remote, err := s.cp.Describe(callCtx, virtualClusterID, jobID)
	if err != nil {
		return nil, err
	}

	state, known := s.cfg.States.Classify(remote.State)
	if !known {
		slog.Warn("Unrecognized remote state", "jobId", jobID, "remoteState", remote.State)
	}
	if s.metrics != nil {
		s.metrics.RecordPoll(ctx, remote.State)
	}

	return &Status{
		JobID:            jobID,
		VirtualClusterID: virtualClusterID,
		RemoteState:      remote.State,
		State:            state,
		Terminal:         state.Terminal(),
		FailureReason:    remote.FailureReason,
	}, nil
}

// Wait polls an already submitted run to a terminal outcome, bounded by
// timeout when positive.
func (s *Service) Wait(ctx context.Context, virtualClusterID, jobID string, timeout time.Duration) (*Outcome, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	return s.poller.Wait(ctx, virtualClusterID, jobID)
}

// Watch observes a run until it reaches a terminal state or the window
// elapses, whichever comes first. Unlike Wait, an expired window does not
// request cancellation: Watch is an observation bound, and the run keeps
// executing. The returned status is the last one observed; callers re-invoke
// Watch while Terminal is false. A window of zero or less means no bound.
func (s *Service) Watch(ctx context.Context, virtualClusterID, jobID string, window time.Duration) (*Status, error) {
	if window > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, window)
		defer cancel()
	}

	var (
		last    *Status
		lastErr error
	)
	for {
		status, err := s.CheckOnce(ctx, virtualClusterID, jobID)
		switch {
		case err == nil:
			if status.Terminal {
				return status, nil
			}
			last = status
		case ctx.Err() == nil && apperrors.Retryable(err):
			// Transient failures ride out the window; there is no
			// separate retry budget because the window bounds the
			// total time spent.
			lastErr = err
		default:
			if ctx.Err() != nil {
				switch {
				case last != nil:
					return last, nil
				case lastErr != nil:
					return nil, lastErr
				}
			}
			return nil, err
		}

		if sleepCtx(ctx, s.cfg.PollInterval) != nil {
			switch {
			case last != nil:
				return last, nil
			case lastErr != nil:
				return nil, lastErr
			default:
				return nil, ctx.Err()
			}
		}
	}
}

// Cancel issues an advisory cancellation. The remote system may still
// finish the run; callers keep checking until a terminal state appears.
func (s *Service) Cancel(ctx context.Context, virtualClusterID, jobID string) error {
	if virtualClusterID == "" {
		return apperrors.Validation("virtualClusterId", "virtual cluster ID is required")
	}
	if jobID == "" {
		return apperrors.Validation("jobId", "job ID is required")
	}

	logger := slog.With("virtualClusterId", virtualClusterID, "jobId", jobID)
	callCtx, cancel := context.WithTimeout(ctx, s.cfg.RequestTimeout)
	defer cancel()
	if err := s.cp.Cancel(callCtx, virtualClusterID, jobID); err != nil {
		logger.Error("Run cancellation failed", "error", err)
		return err
	}
	if s.metrics != nil {
		s.metrics.RecordCancel(ctx)
	}
	logger.Info("Run cancellation requested")
	return nil
}

// Ready reports whether the control plane is reachable.
func (s *Service) Ready(ctx context.Context) error {
	return s.cp.Ready(ctx)
}
