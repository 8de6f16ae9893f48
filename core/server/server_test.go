package server_test

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/dmitrymomot/actkit/core/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type syncBuffer struct {
	mu  sync.Mutex
	buf []byte
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.buf = append(b.buf, p...)
	return len(p), nil
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return string(b.buf)
}

func TestHandler(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	counter := prometheus.NewCounter(prometheus.CounterOpts{Name: "test_hits_total", Help: "hits"})
	reg.MustRegister(counter)
	counter.Inc()

	quiet := slog.New(slog.NewTextHandler(io.Discard, nil))
	serve := func(h http.Handler, path string) *httptest.ResponseRecorder {
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
		return rec
	}

	t.Run("metrics", func(t *testing.T) {
		t.Parallel()

		rec := serve(server.Handler(reg, quiet), server.MetricsPath)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), "test_hits_total 1")
	})

	t.Run("liveness ignores checks", func(t *testing.T) {
		t.Parallel()

		h := server.Handler(reg, quiet, func(context.Context) error { return errors.New("down") })
		rec := serve(h, server.LivenessPath)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "ALIVE", rec.Body.String())
	})

	t.Run("ready", func(t *testing.T) {
		t.Parallel()

		h := server.Handler(reg, quiet, func(context.Context) error { return nil })
		rec := serve(h, server.ReadinessPath)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "READY", rec.Body.String())
	})

	t.Run("not ready", func(t *testing.T) {
		t.Parallel()

		var buf syncBuffer
		log := slog.New(slog.NewTextHandler(&buf, nil))
		h := server.Handler(reg, log,
			func(context.Context) error { return nil },
			func(context.Context) error { return errors.New("bus is closed") },
		)
		rec := serve(h, server.ReadinessPath)
		assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
		assert.Contains(t, buf.String(), "bus is closed")
	})
}

func TestServerRun(t *testing.T) {
	t.Parallel()

	srv := server.New("127.0.0.1:0", server.WithShutdownTimeout(time.Second))
	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error, 1)
	go func() { done <- srv.Run(ctx, server.Handler(prometheus.NewRegistry(), nil))() }()

	var resp *http.Response
	require.Eventually(t, func() bool {
		r, err := http.Get("http://" + srv.Addr() + server.LivenessPath)
		if err != nil {
			return false
		}
		resp = r
		return true
	}, 2*time.Second, 10*time.Millisecond)
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, "ALIVE", string(body))

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(3 * time.Second):
		t.Fatal("server did not stop")
	}
}

func TestServerErrors(t *testing.T) {
	t.Parallel()

	t.Run("missing address", func(t *testing.T) {
		t.Parallel()

		_, err := server.NewFromConfig(server.Config{})
		assert.ErrorIs(t, err, server.ErrMissingAddress)
	})

	t.Run("already running", func(t *testing.T) {
		t.Parallel()

		srv, err := server.NewFromConfig(server.Config{Addr: "127.0.0.1:0"})
		require.NoError(t, err)
		ctx, cancel := context.WithCancel(context.Background())
		t.Cleanup(func() {
			cancel()
			_ = srv.Stop()
		})

		go func() { _ = srv.Start(ctx, http.NotFoundHandler()) }()
		require.Eventually(t, func() bool {
			return srv.Addr() != "127.0.0.1:0"
		}, 2*time.Second, 10*time.Millisecond)

		assert.ErrorIs(t, srv.Start(ctx, http.NotFoundHandler()), server.ErrServerAlreadyRunning)
	})

	t.Run("canceled context", func(t *testing.T) {
		t.Parallel()

		ctx, cancel := context.WithCancel(context.Background())
		cancel()
		err := server.New("127.0.0.1:0").Start(ctx, http.NotFoundHandler())
		assert.ErrorIs(t, err, context.Canceled)
	})
}
