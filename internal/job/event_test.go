package job

import (
	"testing"
	"time"
)

func TestFilteredEvents(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name      string
		eventType string
		filter    []string
		want      bool
	}{
		{"empty filter allows all", EventTypeSubmitted, nil, true},
		{"matching filter", EventTypeTerminal, []string{EventTypeTerminal}, true},
		{"non-matching filter", EventTypeState, []string{EventTypeTerminal}, false},
		{"multi-entry filter", EventTypeState, []string{EventTypeSubmitted, EventTypeState}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := FilteredEvents(tt.eventType, tt.filter); got != tt.want {
				t.Errorf("FilteredEvents(%q, %v) = %v, want %v", tt.eventType, tt.filter, got, tt.want)
			}
		})
	}
}

func eventRun() *Run {
	return &Run{
		JobID:            "jr-42",
		VirtualClusterID: "vc-1",
		Name:             "nightly-etl",
		ClientToken:      "tok-1",
	}
}

func TestEventBuilder_SubmittedEvent(t *testing.T) {
	t.Parallel()
	b := NewEventBuilder("/emrjobs", eventRun())

	ev := b.BuildSubmittedEvent("tok-1")
	if ev.Type != EventTypeSubmitted {
		t.Errorf("Type = %q", ev.Type)
	}
	if ev.Source != "/emrjobs" {
		t.Errorf("Source = %q", ev.Source)
	}
	if ev.Subject != "jr-42" {
		t.Errorf("Subject = %q, want the job id", ev.Subject)
	}
	if ev.SpecVersion != "1.0" {
		t.Errorf("SpecVersion = %q", ev.SpecVersion)
	}
	if ev.ID == "" {
		t.Error("expected a generated event id")
	}

	data, ok := ev.Data.(map[string]any)
	if !ok {
		t.Fatalf("Data is %T, want map", ev.Data)
	}
	if data["jobId"] != "jr-42" || data["virtualClusterId"] != "vc-1" {
		t.Errorf("data identifies wrong run: %v", data)
	}
	if data["clientToken"] != "tok-1" {
		t.Errorf("clientToken = %v", data["clientToken"])
	}
}

func TestEventBuilder_StateEvent(t *testing.T) {
	t.Parallel()
	b := NewEventBuilder("/emrjobs", eventRun())

	ev := b.BuildStateEvent(PollAttempt{
		Attempt:     3,
		Elapsed:     1500 * time.Millisecond,
		RemoteState: "RUNNING",
		State:       StateRunning,
	})
	if ev.Type != EventTypeState {
		t.Errorf("Type = %q", ev.Type)
	}
	data := ev.Data.(map[string]any)
	if data["remoteState"] != "RUNNING" || data["state"] != "running" {
		t.Errorf("state fields wrong: %v", data)
	}
	if data["attempt"] != 3 {
		t.Errorf("attempt = %v", data["attempt"])
	}
	if data["elapsedMs"] != int64(1500) {
		t.Errorf("elapsedMs = %v", data["elapsedMs"])
	}
}

func TestEventBuilder_TerminalEvent(t *testing.T) {
	t.Parallel()
	b := NewEventBuilder("/emrjobs", eventRun())

	ev := b.BuildTerminalEvent(&Outcome{
		JobID:         "jr-42",
		State:         StateFailed,
		FailureReason: "Driver pod OOMKilled",
		Polls:         7,
		Elapsed:       2 * time.Second,
	})
	if ev.Type != EventTypeTerminal {
		t.Errorf("Type = %q", ev.Type)
	}
	data := ev.Data.(map[string]any)
	if data["state"] != "failed" {
		t.Errorf("state = %v", data["state"])
	}
	if data["failureReason"] != "Driver pod OOMKilled" {
		t.Errorf("failureReason = %v, want the verbatim remote text", data["failureReason"])
	}
	if data["polls"] != 7 {
		t.Errorf("polls = %v", data["polls"])
	}
}

func TestEventBuilder_TerminalEventOmitsEmptyReason(t *testing.T) {
	t.Parallel()
	b := NewEventBuilder("/emrjobs", eventRun())

	ev := b.BuildTerminalEvent(&Outcome{JobID: "jr-42", State: StateCompleted})
	data := ev.Data.(map[string]any)
	if _, present := data["failureReason"]; present {
		t.Error("failureReason must be omitted for runs without one")
	}
}

func TestEventBuilder_UniqueIDs(t *testing.T) {
	t.Parallel()
	b := NewEventBuilder("/emrjobs", eventRun())

	first := b.BuildSubmittedEvent("tok-1")
	time.Sleep(time.Millisecond)
	second := b.BuildSubmittedEvent("tok-1")
	if first.ID == second.ID {
		t.Error("successive events must carry distinct ids")
	}
}
