package job

import "testing"

func TestRunState_Terminal(t *testing.T) {
	t.Parallel()
	tests := []struct {
		state RunState
		want  bool
	}{
		{StateSubmitting, false},
		{StatePending, false},
		{StateRunning, false},
		{StateCompleted, true},
		{StateFailed, true},
		{StateCancelled, true},
		{StateAborted, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.state), func(t *testing.T) {
			t.Parallel()
			if got := tt.state.Terminal(); got != tt.want {
				t.Errorf("%s.Terminal() = %v, want %v", tt.state, got, tt.want)
			}
		})
	}
}

func TestDefaultStateMap_Classify(t *testing.T) {
	t.Parallel()
	tests := []struct {
		remote    string
		want      RunState
		wantKnown bool
	}{
		{"PENDING", StatePending, true},
		{"SUBMITTED", StatePending, true},
		{"RUNNING", StateRunning, true},
		{"COMPLETED", StateCompleted, true},
		{"FAILED", StateFailed, true},
		{"CANCELLED", StateCancelled, true},
		{"CANCEL_PENDING", StateCancelled, true},
		{"SOMETHING_NEW", StatePending, false},
		{"", StatePending, false},
	}

	for _, tt := range tests {
		name := tt.remote
		if name == "" {
			name = "empty"
		}
		t.Run(name, func(t *testing.T) {
			t.Parallel()
			got, known := DefaultStateMap.Classify(tt.remote)
			if got != tt.want || known != tt.wantKnown {
				t.Errorf("Classify(%q) = (%s, %v), want (%s, %v)", tt.remote, got, known, tt.want, tt.wantKnown)
			}
		})
	}
}

func TestStateMap_CustomMapping(t *testing.T) {
	t.Parallel()
	custom := StateMap{"DONE": StateCompleted}

	if got, known := custom.Classify("DONE"); got != StateCompleted || !known {
		t.Errorf("Classify(DONE) = (%s, %v), want (completed, true)", got, known)
	}
	// Entries absent from a custom map stay non-terminal.
	if got, known := custom.Classify("COMPLETED"); got != StatePending || known {
		t.Errorf("Classify(COMPLETED) = (%s, %v), want (pending, false)", got, known)
	}
}

func TestConfig_WithDefaults(t *testing.T) {
	t.Parallel()
	cfg := Config{}.withDefaults()

	if cfg.PollInterval <= 0 {
		t.Error("PollInterval default missing")
	}
	if cfg.RequestTimeout <= 0 {
		t.Error("RequestTimeout default missing")
	}
	if cfg.CancelGrace <= 0 {
		t.Error("CancelGrace default missing")
	}
	if cfg.States == nil {
		t.Error("States default missing")
	}

	// Explicit values survive.
	cfg = Config{PollInterval: 5}.withDefaults()
	if cfg.PollInterval != 5 {
		t.Errorf("PollInterval = %v, want 5", cfg.PollInterval)
	}
}
