package lifecycle_test

import (
	"bytes"
	"context"
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"syscall"
	"testing"
	"time"

	"github.com/dmitrymomot/actkit/core/lifecycle"
	"github.com/dmitrymomot/actkit/core/logger"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	closes atomic.Int32
	mu     sync.Mutex
	codes  []int
	sigs   chan chan<- os.Signal
	log    bytes.Buffer
	logMu  sync.Mutex
}

func (h *harness) Write(p []byte) (int, error) {
	h.logMu.Lock()
	defer h.logMu.Unlock()
	return h.log.Write(p)
}

func (h *harness) output() string {
	h.logMu.Lock()
	defer h.logMu.Unlock()
	return h.log.String()
}

func (h *harness) exitCodes() []int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]int(nil), h.codes...)
}

func newHarness(t *testing.T, shutdownErr error) (*harness, *lifecycle.Handler) {
	t.Helper()

	h := &harness{sigs: make(chan chan<- os.Signal, 1)}
	handler, err := lifecycle.New(
		func(ctx context.Context) error {
			h.closes.Add(1)
			return shutdownErr
		},
		lifecycle.WithLogger(logger.New(logger.WithOutput(h))),
		lifecycle.WithNotify(
			func(c chan<- os.Signal, _ ...os.Signal) { h.sigs <- c },
			func(chan<- os.Signal) {},
		),
		lifecycle.WithExit(func(code int) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.codes = append(h.codes, code)
		}),
		lifecycle.WithShutdownTimeout(time.Second),
	)
	require.NoError(t, err)
	return h, handler
}

func TestWait(t *testing.T) {
	t.Parallel()

	t.Run("sigterm shuts down without exit", func(t *testing.T) {
		t.Parallel()

		h, handler := newHarness(t, nil)
		done := make(chan error, 1)
		go func() { done <- handler.Wait(context.Background()) }()

		c := <-h.sigs
		c <- syscall.SIGTERM

		require.NoError(t, <-done)
		assert.Equal(t, int32(1), h.closes.Load())
		assert.Empty(t, h.exitCodes())
		assert.Contains(t, h.output(), "closing on signal")
	})

	t.Run("sigint shuts down and exits 0", func(t *testing.T) {
		t.Parallel()

		h, handler := newHarness(t, nil)
		done := make(chan error, 1)
		go func() { done <- handler.Wait(context.Background()) }()

		c := <-h.sigs
		c <- syscall.SIGINT

		require.NoError(t, <-done)
		assert.Equal(t, int32(1), h.closes.Load())
		assert.Equal(t, []int{0}, h.exitCodes())
	})

	t.Run("context end returns without shutdown", func(t *testing.T) {
		t.Parallel()

		h, handler := newHarness(t, nil)
		ctx, cancel := context.WithCancel(context.Background())
		done := make(chan error, 1)
		go func() { done <- handler.Wait(ctx) }()

		<-h.sigs
		cancel()

		require.NoError(t, <-done)
		assert.Zero(t, h.closes.Load())
	})
}

func TestRecover(t *testing.T) {
	t.Parallel()

	t.Run("panic shuts down and exits 1", func(t *testing.T) {
		t.Parallel()

		h, handler := newHarness(t, nil)
		func() {
			defer handler.Recover()
			panic("boom")
		}()

		assert.Equal(t, int32(1), h.closes.Load())
		assert.Equal(t, []int{1}, h.exitCodes())
		out := h.output()
		assert.Contains(t, out, "panic recovered")
		assert.Contains(t, out, "boom")
		assert.Contains(t, out, "stack=")
	})

	t.Run("no panic is a no-op", func(t *testing.T) {
		t.Parallel()

		h, handler := newHarness(t, nil)
		func() {
			defer handler.Recover()
		}()

		assert.Zero(t, h.closes.Load())
		assert.Empty(t, h.exitCodes())
	})
}

func TestShutdown(t *testing.T) {
	t.Parallel()

	t.Run("runs once", func(t *testing.T) {
		t.Parallel()

		shutdownErr := errors.New("close failed")
		h, handler := newHarness(t, shutdownErr)

		assert.ErrorIs(t, handler.Shutdown(), shutdownErr)
		assert.ErrorIs(t, handler.Signal(syscall.SIGTERM), shutdownErr)
		assert.Equal(t, int32(1), h.closes.Load())
		assert.Contains(t, h.output(), "shutdown failed")
	})

	t.Run("requires a shutdown function", func(t *testing.T) {
		t.Parallel()

		_, err := lifecycle.New(nil)
		assert.ErrorIs(t, err, lifecycle.ErrNilShutdown)
	})
}
