// Package health provides liveness and readiness probes for the service.
package health

import (
	"context"
	"sync"
	"time"
)

// Prober is the readiness dependency: the control-plane client implements
// it by issuing a cheap authenticated call.
type Prober interface {
	Ready(ctx context.Context) error
}

// Status represents the health status of a component.
type Status string

const (
	StatusHealthy   Status = "healthy"
	StatusUnhealthy Status = "unhealthy"
)

// CheckResult contains the result of a single dependency check.
type CheckResult struct {
	Status  Status `json:"status"`
	Message string `json:"message,omitempty"`
}

// Response is the health check response.
type Response struct {
	Status Status                 `json:"status"`
	Checks map[string]CheckResult `json:"checks,omitempty"`
}

// IsHealthy reports whether the overall status is healthy.
func (r *Response) IsHealthy() bool {
	return r.Status == StatusHealthy
}

// Checker performs health checks against the control plane. Readiness
// results are cached briefly because the probe is a real, metered API call.
type Checker struct {
	prober   Prober
	timeout  time.Duration
	cacheTTL time.Duration

	mu           sync.RWMutex
	lastCheck    time.Time
	cachedReady  *Response
	shuttingDown bool
}

// NewChecker creates a health checker for the given control plane.
func NewChecker(prober Prober) *Checker {
	return &Checker{
		prober:   prober,
		timeout:  5 * time.Second,
		cacheTTL: 5 * time.Second,
	}
}

// Liveness reports process health only. It never touches the control plane,
// so a broken AWS connection cannot restart the service.
func (c *Checker) Liveness(ctx context.Context) *Response {
	return &Response{Status: StatusHealthy}
}

// Readiness reports whether the service should receive traffic. It fails
// while shutting down and when the control plane is unreachable.
func (c *Checker) Readiness(ctx context.Context) *Response {
	c.mu.RLock()
	if c.shuttingDown {
		c.mu.RUnlock()
		return &Response{
			Status: StatusUnhealthy,
			Checks: map[string]CheckResult{
				"shutdown": {Status: StatusUnhealthy, Message: "service is shutting down"},
			},
		}
	}
	if c.cachedReady != nil && time.Since(c.lastCheck) < c.cacheTTL {
		cached := c.cachedReady
		c.mu.RUnlock()
		return cached
	}
	c.mu.RUnlock()

	check := c.checkControlPlane(ctx)
	status := StatusHealthy
	if check.Status != StatusHealthy {
		status = StatusUnhealthy
	}
	response := &Response{
		Status: status,
		Checks: map[string]CheckResult{"controlPlane": check},
	}

	c.mu.Lock()
	c.cachedReady = response
	c.lastCheck = time.Now()
	c.mu.Unlock()

	return response
}

func (c *Checker) checkControlPlane(ctx context.Context) CheckResult {
	if c.prober == nil {
		return CheckResult{Status: StatusUnhealthy, Message: "control plane not configured"}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	if err := c.prober.Ready(ctx); err != nil {
		return CheckResult{Status: StatusUnhealthy, Message: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}

// SetShuttingDown makes readiness fail so load balancers drain traffic
// before the listeners stop.
func (c *Checker) SetShuttingDown() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.shuttingDown = true
	c.cachedReady = nil
}
