// Package job implements the run lifecycle: request building, submission,
// polling to a terminal state, and cancellation.
package job

import "context"

// ControlPlane is the transport to the remote job-management API.
//
// Implementations perform network calls only. They hold no mutable run
// state beyond a connection handle acquired once and reused; a single
// ControlPlane is shared read-only by every concurrent poll loop and must
// be safe for concurrent calls.
//
// Error classification is the contract the poller depends on: transient
// failures come back matching apperrors.ErrThrottled or
// apperrors.ErrUnavailable, fatal ones matching apperrors.ErrUnauthorized,
// apperrors.ErrInvalidRequest or apperrors.ErrNotFound.
type ControlPlane interface {
	// Submit starts a job run and returns the remote job id. Submission is
	// idempotent under ClientToken reuse: if the token is already known the
	// existing run's id is returned and no duplicate is created.
	Submit(ctx context.Context, run *Run) (string, error)

	// Describe returns the current remote status of a run.
	Describe(ctx context.Context, virtualClusterID, jobID string) (*RemoteStatus, error)

	// Cancel requests cancellation of a run. The request is advisory: the
	// remote system may finish the run before honoring it, so callers keep
	// polling until a terminal state is observed.
	Cancel(ctx context.Context, virtualClusterID, jobID string) error

	// Ready checks that the control plane is reachable, for readiness probes.
	Ready(ctx context.Context) error

	// Close releases the connection handle. In-flight runs are not affected.
	Close() error
}
