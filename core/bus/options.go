package bus

import (
	"log/slog"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

// Option configures a Bus.
type Option func(*Bus)

// WithLogger sets the logger for the bus.
// If not set, slog.Default() is used.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// WithMiddleware sets middleware applied to every action in the order provided.
//
// Example:
//
//	b := bus.New(bus.WithMiddleware(bus.LoggingMiddleware(logger)))
func WithMiddleware(middleware ...Middleware) Option {
	return func(b *Bus) {
		b.middleware = middleware
	}
}

// WithMetrics registers act counters and latency histograms with reg.
// Collectors already registered by another bus are reused.
//
// Example:
//
//	b := bus.New(bus.WithMetrics(prometheus.DefaultRegisterer))
//	http.Handle("/metrics", promhttp.Handler())
func WithMetrics(reg prometheus.Registerer) Option {
	return func(b *Bus) {
		if reg != nil {
			b.metrics = newMetrics(reg)
		}
	}
}

// WithShutdownTimeout bounds how long Close waits for transports to close.
// Default is 30 seconds.
func WithShutdownTimeout(timeout time.Duration) Option {
	return func(b *Bus) {
		if timeout > 0 {
			b.shutdownTimeout = timeout
		}
	}
}
