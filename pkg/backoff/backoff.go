// Package backoff provides exponential backoff with jitter and a bounded
// attempt budget for retrying transient control-plane failures.
package backoff

import (
	"math"
	"math/rand/v2"
	"time"
)

// Config for exponential backoff. Zero values use defaults.
type Config struct {
	Initial     time.Duration // first delay (default: 1s)
	Max         time.Duration // delay cap (default: 60s)
	MaxAttempts int           // retry budget before Next reports exhaustion (default: 20)
	Jitter      float64       // multiplicative jitter half-width in (0,1] (default: 0.5)
}

const (
	defaultInitial     = 1 * time.Second
	defaultMax         = 60 * time.Second
	defaultMaxAttempts = 20
	defaultJitter      = 0.5
)

func (c *Config) initial() time.Duration {
	if c != nil && c.Initial > 0 {
		return c.Initial
	}
	return defaultInitial
}

func (c *Config) max() time.Duration {
	if c != nil && c.Max > 0 {
		return c.Max
	}
	return defaultMax
}

func (c *Config) maxAttempts() int {
	if c != nil && c.MaxAttempts > 0 {
		return c.MaxAttempts
	}
	return defaultMaxAttempts
}

func (c *Config) jitter() float64 {
	if c != nil && c.Jitter > 0 && c.Jitter <= 1 {
		return c.Jitter
	}
	return defaultJitter
}

// Exponential calculates the deterministic exponential delay for a given
// attempt, before jitter. Attempt 1 returns initial, attempt 2 returns
// initial*2, etc., capped at max. This is also the expected value of the
// jittered delay returned by Next, so it is non-decreasing up to the cap.
func Exponential(attempt int, cfg *Config) time.Duration {
	initial := cfg.initial()
	maxDelay := cfg.max()

	if attempt < 1 {
		return initial
	}
	delay := float64(initial) * math.Pow(2.0, float64(attempt-1))
	if delay > float64(maxDelay) {
		delay = float64(maxDelay)
	}
	return time.Duration(delay)
}

// Next returns the delay to wait before the given retry attempt, with
// multiplicative jitter applied, and true while the attempt budget holds.
// It returns (0, false) once attempt exceeds the configured maximum, or
// immediately when retryable is false: fatal error classes get no retry.
func Next(attempt int, retryable bool, cfg *Config) (time.Duration, bool) {
	if !retryable {
		return 0, false
	}
	if attempt > cfg.maxAttempts() {
		return 0, false
	}

	base := Exponential(attempt, cfg)
	j := cfg.jitter()
	// Uniform multiplier in [1-j, 1+j]; mean 1, so E[delay] == Exponential.
	factor := 1 - j + 2*j*rand.Float64()
	return time.Duration(float64(base) * factor), true
}
