package job

import (
	"time"

	"emrjobs/internal/config"
	"emrjobs/pkg/backoff"
)

// Config holds poller tuning. Zero values fall back to defaults, so an
// empty Config is usable.
type Config struct {
	PollInterval   time.Duration  // cadence between successful describe calls
	RequestTimeout time.Duration  // budget for one control-plane call
	CancelGrace    time.Duration  // polling window after an abort-triggered cancel
	SubmitBackoff  backoff.Config // retry policy for transient submit failures
	PollBackoff    backoff.Config // retry policy for transient describe failures
	States         StateMap       // remote state classification
}

// LoadConfigFromEnv loads poller configuration from environment variables.
func LoadConfigFromEnv() Config {
	jitter := config.GetFloatEnv("BACKOFF_JITTER", 0.5)
	cfg := Config{
		PollInterval:   config.GetDurationEnv("POLL_INTERVAL", 30*time.Second),
		RequestTimeout: config.GetDurationEnv("REQUEST_TIMEOUT", 30*time.Second),
		CancelGrace:    config.GetDurationEnv("CANCEL_GRACE", 2*time.Minute),
		SubmitBackoff: backoff.Config{
			Initial:     config.GetDurationEnv("SUBMIT_BACKOFF_INITIAL", time.Second),
			Max:         config.GetDurationEnv("SUBMIT_BACKOFF_MAX", time.Minute),
			MaxAttempts: config.GetIntEnv("SUBMIT_MAX_ATTEMPTS", 10),
			Jitter:      jitter,
		},
		PollBackoff: backoff.Config{
			Initial:     config.GetDurationEnv("POLL_BACKOFF_INITIAL", time.Second),
			Max:         config.GetDurationEnv("POLL_BACKOFF_MAX", time.Minute),
			MaxAttempts: config.GetIntEnv("POLL_MAX_ATTEMPTS", 20),
			Jitter:      jitter,
		},
	}
	return cfg.withDefaults()
}

// withDefaults fills in zero values with defaults.
func (c Config) withDefaults() Config {
	if c.PollInterval <= 0 {
		c.PollInterval = 30 * time.Second
	}
	if c.RequestTimeout <= 0 {
		c.RequestTimeout = 30 * time.Second
	}
	if c.CancelGrace <= 0 {
		c.CancelGrace = 2 * time.Minute
	}
	if c.States == nil {
		c.States = DefaultStateMap
	}
	return c
}
