package job

import (
	"encoding/json"
	"time"
)

// RunState is the local classification of a job run.
type RunState string

const (
	StateSubmitting RunState = "submitting"
	StatePending    RunState = "pending"
	StateRunning    RunState = "running"
	StateCompleted  RunState = "completed"
	StateFailed     RunState = "failed"
	StateCancelled  RunState = "cancelled"
	StateAborted    RunState = "aborted"
)

// Terminal reports whether no further transition can occur from s.
func (s RunState) Terminal() bool {
	switch s {
	case StateCompleted, StateFailed, StateCancelled, StateAborted:
		return true
	}
	return false
}

// StateMap classifies remote state strings into local run states.
// The remote vocabulary is owned by the control plane; keeping the mapping
// as data lets deployments track remote API changes without a rebuild.
type StateMap map[string]RunState

// DefaultStateMap covers the emr-containers job run states.
// CANCEL_PENDING is grouped with cancellation: once the remote system is
// unwinding a run there is nothing left to wait for.
var DefaultStateMap = StateMap{
	"PENDING":        StatePending,
	"SUBMITTED":      StatePending,
	"RUNNING":        StateRunning,
	"COMPLETED":      StateCompleted,
	"FAILED":         StateFailed,
	"CANCELLED":      StateCancelled,
	"CANCEL_PENDING": StateCancelled,
}

// Classify maps a remote state string to a local state. Unknown remote
// states map to Pending with ok=false so callers keep polling and can log
// the gap.
func (m StateMap) Classify(remote string) (RunState, bool) {
	if s, ok := m[remote]; ok {
		return s, true
	}
	return StatePending, false
}

// RemoteStatus is one observation of a run from the control plane.
type RemoteStatus struct {
	State         string // remote state string, e.g. "RUNNING"
	FailureReason string // verbatim remote failure text, set when the run failed
}

// RunRequest is the caller-supplied submission payload. Fields left empty
// are filled from the connection profile by BuildRun.
type RunRequest struct {
	VirtualClusterID       string            `json:"virtualClusterId"`
	Name                   string            `json:"name"`
	ExecutionRoleArn       string            `json:"executionRoleArn,omitempty"`
	ReleaseLabel           string            `json:"releaseLabel,omitempty"`
	Driver                 json.RawMessage   `json:"jobDriver"`
	ConfigurationOverrides json.RawMessage   `json:"configurationOverrides,omitempty"`
	Tags                   map[string]string `json:"tags,omitempty"`
	ClientToken            string            `json:"clientToken,omitempty"`
	Callback               *Callback         `json:"callback,omitempty"`
}

// Run is one submission to the remote cluster, immutable once submitted.
// The driver and configuration payloads are opaque here; their shape is
// owned by the remote job engine.
type Run struct {
	VirtualClusterID       string            `json:"virtualClusterId"`
	Name                   string            `json:"name"`
	ExecutionRoleArn       string            `json:"executionRoleArn"`
	ReleaseLabel           string            `json:"releaseLabel,omitempty"`
	Driver                 json.RawMessage   `json:"jobDriver"`
	ConfigurationOverrides json.RawMessage   `json:"configurationOverrides,omitempty"`
	Tags                   map[string]string `json:"tags,omitempty"`
	ClientToken            string            `json:"clientToken"`
	Callback               *Callback         `json:"callback,omitempty"`

	// JobID is assigned by the control plane on submit and carries the
	// run's remote identity for the rest of its life.
	JobID string `json:"jobId,omitempty"`
}

// Callback configures lifecycle event delivery for a run.
type Callback struct {
	URL    string   `json:"url"`
	Events []string `json:"events,omitempty"`
	Key    string   `json:"key,omitempty"` // HMAC signing key
}

// Status is a point-in-time snapshot of a run, the answer to "check once".
type Status struct {
	JobID            string   `json:"jobId"`
	VirtualClusterID string   `json:"virtualClusterId"`
	RemoteState      string   `json:"remoteState"`
	State            RunState `json:"state"`
	Terminal         bool     `json:"terminal"`
	FailureReason    string   `json:"failureReason,omitempty"`
}

// Outcome is the terminal report for one run.
type Outcome struct {
	JobID            string        `json:"jobId"`
	VirtualClusterID string        `json:"virtualClusterId"`
	State            RunState      `json:"state"`
	FailureReason    string        `json:"failureReason,omitempty"`
	Polls            int           `json:"polls"`
	Elapsed          time.Duration `json:"elapsed"`
}

// PollAttempt is one observation inside a poll loop. It exists for logging
// and callbacks only; nothing persists it.
type PollAttempt struct {
	Attempt     int           // 1-based observation counter, errors included
	Elapsed     time.Duration // since the loop started
	RemoteState string        // empty when the describe call failed
	State       RunState
	Err         error
}

// SubmitResponse acknowledges an async submission.
type SubmitResponse struct {
	JobID            string `json:"jobId"`
	VirtualClusterID string `json:"virtualClusterId"`
	Name             string `json:"name"`
	State            string `json:"state"` // "submitted"
}
