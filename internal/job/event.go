package job

import (
	"fmt"
	"slices"
	"time"

	"emrjobs/pkg/cloudevent"
)

// Event types for run lifecycle callbacks
const (
	EventTypeSubmitted = "emrjobs.run.submitted"
	EventTypeState     = "emrjobs.run.state"
	EventTypeTerminal  = "emrjobs.run.terminal"
)

// FilteredEvents returns true if the event type should be sent based on the
// filter. An empty filter allows all events.
func FilteredEvents(eventType string, filter []string) bool {
	if len(filter) == 0 {
		return true
	}
	return slices.Contains(filter, eventType)
}

// EventBuilder builds CloudEvents for run lifecycle events. The subject is
// the remote job id.
type EventBuilder struct {
	source  string
	subject string
	vc      string
	name    string
}

// NewEventBuilder creates an EventBuilder for one run.
func NewEventBuilder(source string, run *Run) *EventBuilder {
	return &EventBuilder{
		source:  source,
		subject: run.JobID,
		vc:      run.VirtualClusterID,
		name:    run.Name,
	}
}

// Build creates a CloudEvent with the given type and data.
func (b *EventBuilder) Build(eventType string, data map[string]any) *cloudevent.Event {
	eventID := fmt.Sprintf("%s-%d", b.subject, time.Now().UnixNano())
	return cloudevent.New(eventType, b.source, b.subject, eventID, data)
}

// BuildSubmittedEvent creates the event sent when the control plane accepts
// a submission.
func (b *EventBuilder) BuildSubmittedEvent(clientToken string) *cloudevent.Event {
	return b.Build(EventTypeSubmitted, map[string]any{
		"jobId":            b.subject,
		"virtualClusterId": b.vc,
		"name":             b.name,
		"clientToken":      clientToken,
	})
}

// BuildStateEvent creates a per-observation progress event.
func (b *EventBuilder) BuildStateEvent(a PollAttempt) *cloudevent.Event {
	return b.Build(EventTypeState, map[string]any{
		"jobId":            b.subject,
		"virtualClusterId": b.vc,
		"name":             b.name,
		"remoteState":      a.RemoteState,
		"state":            string(a.State),
		"attempt":          a.Attempt,
		"elapsedMs":        a.Elapsed.Milliseconds(),
	})
}

// BuildTerminalEvent creates the event sent once a run reaches a terminal
// state.
func (b *EventBuilder) BuildTerminalEvent(out *Outcome) *cloudevent.Event {
	data := map[string]any{
		"jobId":            b.subject,
		"virtualClusterId": b.vc,
		"name":             b.name,
		"state":            string(out.State),
		"polls":            out.Polls,
		"elapsedMs":        out.Elapsed.Milliseconds(),
	}
	if out.FailureReason != "" {
		data["failureReason"] = out.FailureReason
	}
	return b.Build(EventTypeTerminal, data)
}
