// emrjobs-run submits one job run and waits for its terminal state. It is
// the command-line adapter for CI pipelines and cron-style schedulers: logs
// go to stderr, the terminal outcome is printed as JSON on stdout, and the
// exit code reports how the run ended.
//
// Exit codes: 0 the run completed, 3 the run was cancelled remotely,
// 1 anything else (failed, aborted, submission or polling error).
//
// SIGINT and SIGTERM abort the run: cancellation is requested remotely and
// the process waits out the grace period for a terminal state.
package main

import (
	"context"
	"encoding/json"
	"flag"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"emrjobs/internal/connection"
	"emrjobs/internal/controlplane/emr"
	"emrjobs/internal/job"
)

func main() {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
	os.Exit(run())
}

func run() int {
	var (
		file    = flag.String("f", "", "run request JSON file, empty or \"-\" for stdin")
		conn    = flag.String("connection", "", "connection profile name")
		timeout = flag.Duration("timeout", 0, "bound on the whole run, 0 for none; on expiry cancellation is requested")
		jobID   = flag.String("job-id", "", "re-attach to this job run instead of submitting a new one")
		vcID    = flag.String("virtual-cluster", "", "virtual cluster for -job-id, defaults to the profile's")
	)
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	profile, err := connection.NewStoreFromEnv().Resolve(*conn)
	if err != nil {
		slog.Error("Connection profile not resolved", "connection", *conn, "error", err)
		return 1
	}

	client, err := emr.NewFromProfile(ctx, profile)
	if err != nil {
		slog.Error("Control plane client failed", "error", err)
		return 1
	}
	defer client.Close()

	svc := job.NewService(client, profile, job.LoadConfigFromEnv(), nil, nil)

	var outcome *job.Outcome
	if *jobID != "" {
		vc := *vcID
		if vc == "" {
			vc = profile.VirtualClusterID
		}
		outcome, err = svc.Wait(ctx, vc, *jobID, *timeout)
	} else {
		req, rerr := readRequest(*file)
		if rerr != nil {
			slog.Error("Run request not readable", "file", *file, "error", rerr)
			return 1
		}
		outcome, err = svc.RunToCompletion(ctx, req, *timeout)
	}

	return report(outcome, err)
}

// readRequest loads the run request JSON from a file or stdin.
func readRequest(path string) (*job.RunRequest, error) {
	var r io.Reader = os.Stdin
	if path != "" && path != "-" {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	var req job.RunRequest
	if err := json.NewDecoder(r).Decode(&req); err != nil {
		return nil, err
	}
	return &req, nil
}

// report prints the outcome and maps it to the process exit code.
func report(outcome *job.Outcome, err error) int {
	if outcome == nil {
		slog.Error("Run did not reach submission", "error", err)
		return 1
	}

	if encErr := json.NewEncoder(os.Stdout).Encode(outcome); encErr != nil {
		slog.Error("Failed to encode outcome", "error", encErr)
	}

	logger := slog.With(
		"jobId", outcome.JobID,
		"state", outcome.State,
		"polls", outcome.Polls,
		"elapsed", outcome.Elapsed.Round(time.Millisecond),
	)
	switch outcome.State {
	case job.StateCompleted:
		logger.Info("Run completed")
		return 0
	case job.StateCancelled:
		logger.Warn("Run cancelled", "reason", outcome.FailureReason)
		return 3
	default:
		logger.Error("Run did not complete", "reason", outcome.FailureReason, "error", err)
		return 1
	}
}
