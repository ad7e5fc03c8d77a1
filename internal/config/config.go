// Package config provides configuration loading from environment variables.
package config

import (
	"time"
)

// ServiceConfig holds configuration for the job-run service.
type ServiceConfig struct {
	Port              string
	MetricsPort       string
	APIKey            string
	ShutdownDrainWait time.Duration // Time to wait for load balancer to drain (0 to skip)
	Connection        string        // Name of the default connection profile
	EventSource       string        // CloudEvents source URI for emitted events
	MaxWaitWindow     time.Duration // Upper bound for the wait endpoint's long-poll window
}

// LoadServiceConfig loads service configuration from environment variables.
func LoadServiceConfig() *ServiceConfig {
	return &ServiceConfig{
		Port:              GetEnv("PORT", "8080"),
		MetricsPort:       GetEnv("METRICS_PORT", "9090"),
		APIKey:            GetSecretFile(GetEnv("API_KEY_FILE", "")),
		ShutdownDrainWait: GetDurationEnv("SHUTDOWN_DRAIN_WAIT", 5*time.Second),
		Connection:        GetEnv("CONNECTION", "default"),
		EventSource:       GetEnv("EVENT_SOURCE", "/emrjobs"),
		MaxWaitWindow:     GetDurationEnv("MAX_WAIT_WINDOW", 2*time.Minute),
	}
}
