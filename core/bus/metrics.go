package bus

import (
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

type metrics struct {
	acts     *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

func newMetrics(reg prometheus.Registerer) *metrics {
	acts := prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "actkit_acts_total",
			Help: "Total number of acts by pattern and outcome",
		},
		[]string{"pattern", "outcome"},
	)
	duration := prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "actkit_act_duration_seconds",
			Help:    "Time from dispatch to reply",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"pattern"},
	)

	return &metrics{
		acts:     register(reg, acts),
		duration: register(reg, duration),
	}
}

// register registers c or returns the collector already registered under
// the same descriptor.
func register[C prometheus.Collector](reg prometheus.Registerer, c C) C {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing
			}
		}
		panic(err)
	}
	return c
}

func (m *metrics) observe(pattern string, err error, d time.Duration) {
	if m == nil {
		return
	}
	outcome := "success"
	if err != nil {
		outcome = "failure"
	}
	m.acts.WithLabelValues(pattern, outcome).Inc()
	m.duration.WithLabelValues(pattern).Observe(d.Seconds())
}
