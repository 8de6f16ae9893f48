package server

import "time"

const (
	DefaultReadTimeout     = 5 * time.Second
	DefaultWriteTimeout    = 10 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 5 * time.Second

	MetricsPath   = "/metrics"
	LivenessPath  = "/health/live"
	ReadinessPath = "/health/ready"
)
