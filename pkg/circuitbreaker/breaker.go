// Package circuitbreaker provides a minimal circuit breaker for callers
// that talk to flaky remote endpoints.
//
// The breaker counts consecutive failures. Once the count reaches the
// configured threshold the circuit opens and calls are rejected until the
// cooldown elapses, after which a single probe is let through. A successful
// probe closes the circuit; a failed one reopens it for another cooldown.
package circuitbreaker

import (
	"sync"
	"time"
)

// State is the position of the circuit.
type State int

const (
	Closed State = iota
	Open
	HalfOpen
)

func (s State) String() string {
	switch s {
	case Closed:
		return "closed"
	case Open:
		return "open"
	case HalfOpen:
		return "half-open"
	default:
		return "unknown"
	}
}

// Config holds breaker tuning knobs. Zero values fall back to defaults.
type Config struct {
	Threshold int           // consecutive failures before the circuit opens (default 5)
	Cooldown  time.Duration // how long the circuit stays open before probing (default 30s)
}

func (c Config) threshold() int {
	if c.Threshold <= 0 {
		return 5
	}
	return c.Threshold
}

func (c Config) cooldown() time.Duration {
	if c.Cooldown <= 0 {
		return 30 * time.Second
	}
	return c.Cooldown
}

// Breaker guards a single endpoint.
type Breaker struct {
	mu       sync.Mutex
	cfg      Config
	state    State
	failures int
	openedAt time.Time
	probing  bool // a half-open probe is in flight
}

// New creates a breaker in the closed state.
func New(cfg Config) *Breaker {
	return &Breaker{cfg: cfg}
}

// Allow reports whether a call may proceed. In the half-open state only a
// single probe is admitted until its outcome is recorded.
func (b *Breaker) Allow() bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	switch b.state {
	case Closed:
		return true
	case Open:
		if time.Since(b.openedAt) < b.cfg.cooldown() {
			return false
		}
		b.state = HalfOpen
		b.probing = true
		return true
	case HalfOpen:
		if b.probing {
			return false
		}
		b.probing = true
		return true
	default:
		return true
	}
}

// RecordSuccess closes the circuit and clears the failure count.
func (b *Breaker) RecordSuccess() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.state = Closed
	b.failures = 0
	b.probing = false
}

// RecordFailure bumps the failure count and opens the circuit when the
// threshold is reached. A failed half-open probe reopens immediately.
func (b *Breaker) RecordFailure() {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.failures++

	if b.state == HalfOpen {
		b.state = Open
		b.openedAt = time.Now()
		b.probing = false
		return
	}
	if b.failures >= b.cfg.threshold() {
		b.state = Open
		b.openedAt = time.Now()
	}
}

// State returns the current position of the circuit.
func (b *Breaker) State() State {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.state
}

// Failures returns the consecutive failure count.
func (b *Breaker) Failures() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.failures
}

// Reset forces the circuit closed.
func (b *Breaker) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.state = Closed
	b.failures = 0
	b.probing = false
}
