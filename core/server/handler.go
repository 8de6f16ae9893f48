package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/dmitrymomot/actkit/core/logger"
)

// readinessTimeout bounds one readiness probe.
const readinessTimeout = 2 * time.Second

// Handler serves Prometheus metrics from gatherer, a liveness probe that
// always answers ALIVE and a readiness probe that answers READY when every
// check passes and 503 otherwise. A nil gatherer uses the default registry.
func Handler(gatherer prometheus.Gatherer, log *slog.Logger, checks ...func(context.Context) error) http.Handler {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if log == nil {
		log = slog.Default()
	}

	mux := http.NewServeMux()
	mux.Handle(MetricsPath, promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	mux.HandleFunc(LivenessPath, func(w http.ResponseWriter, _ *http.Request) {
		writeText(w, http.StatusOK, "ALIVE")
	})
	mux.HandleFunc(ReadinessPath, func(w http.ResponseWriter, r *http.Request) {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		for _, check := range checks {
			if err := check(ctx); err != nil {
				log.ErrorContext(ctx, "readiness check failed", logger.Error(err))
				writeText(w, http.StatusServiceUnavailable, http.StatusText(http.StatusServiceUnavailable))
				return
			}
		}
		writeText(w, http.StatusOK, "READY")
	})
	return mux
}

func writeText(w http.ResponseWriter, status int, body string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = w.Write([]byte(body))
}
