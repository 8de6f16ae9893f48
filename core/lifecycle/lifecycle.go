// Package lifecycle ties process signals and panics to a service shutdown.
//
// SIGTERM shuts the service down and lets the caller return normally.
// SIGINT shuts it down and exits with status 0. A panic recovered by
// Recover is logged with its stack, the service is shut down and the
// process exits with status 1.
//
//	h, err := lifecycle.New(svc.Close, lifecycle.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	defer h.Recover()
//	return h.Wait(ctx)
package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/dmitrymomot/actkit/core/logger"
)

// ShutdownFunc releases the service. It must honor ctx.
type ShutdownFunc func(ctx context.Context) error

// NotifyFunc subscribes c to the given signals. Matches signal.Notify.
type NotifyFunc func(c chan<- os.Signal, sig ...os.Signal)

// Handler reacts to termination signals and panics.
type Handler struct {
	shutdown ShutdownFunc
	logger   *slog.Logger
	notify   NotifyFunc
	stop     func(c chan<- os.Signal)
	exit     func(code int)
	timeout  time.Duration

	once sync.Once
	err  error
}

// Option configures a Handler.
type Option func(*Handler)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(h *Handler) {
		if l != nil {
			h.logger = l
		}
	}
}

// WithNotify replaces the signal source. Default is signal.Notify.
func WithNotify(notify NotifyFunc, stop func(c chan<- os.Signal)) Option {
	return func(h *Handler) {
		if notify != nil {
			h.notify = notify
		}
		if stop != nil {
			h.stop = stop
		}
	}
}

// WithExit replaces the process exit function. Default is os.Exit.
func WithExit(exit func(code int)) Option {
	return func(h *Handler) {
		if exit != nil {
			h.exit = exit
		}
	}
}

// WithShutdownTimeout bounds the shutdown call. Default is 30 seconds.
func WithShutdownTimeout(d time.Duration) Option {
	return func(h *Handler) {
		if d > 0 {
			h.timeout = d
		}
	}
}

// New creates a handler that calls shutdown on termination.
func New(shutdown ShutdownFunc, opts ...Option) (*Handler, error) {
	if shutdown == nil {
		return nil, ErrNilShutdown
	}
	h := &Handler{
		shutdown: shutdown,
		logger:   slog.Default(),
		notify:   signal.Notify,
		stop:     signal.Stop,
		exit:     os.Exit,
		timeout:  30 * time.Second,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h, nil
}

// Wait blocks until a termination signal arrives or ctx is done.
// SIGTERM returns the shutdown error; SIGINT exits the process after
// shutdown. When ctx ends first, Wait returns nil without shutting down.
func (h *Handler) Wait(ctx context.Context) error {
	sigs := make(chan os.Signal, 1)
	h.notify(sigs, syscall.SIGTERM, syscall.SIGINT)
	defer h.stop(sigs)

	select {
	case <-ctx.Done():
		return nil
	case sig := <-sigs:
		return h.Signal(sig)
	}
}

// Run provides errgroup compatibility for Wait.
func (h *Handler) Run(ctx context.Context) func() error {
	return func() error {
		return h.Wait(ctx)
	}
}

// Signal handles sig as if it were delivered to the process.
func (h *Handler) Signal(sig os.Signal) error {
	switch sig {
	case syscall.SIGINT:
		h.logger.Info("closing on SIGINT")
		err := h.Shutdown()
		h.exit(0)
		return err
	default:
		h.logger.Info("closing on signal", slog.String("signal", sig.String()))
		return h.Shutdown()
	}
}

// Recover must be deferred. It turns a panic into a logged fault,
// shuts the service down and exits with status 1.
func (h *Handler) Recover() {
	r := recover()
	if r == nil {
		return
	}
	err, ok := r.(error)
	if !ok {
		err = fmt.Errorf("%w: %v", ErrPanic, r)
	}
	h.logger.Error("panic recovered", logger.Error(err), logger.Stack())
	_ = h.Shutdown()
	h.exit(1)
}

// Shutdown runs the shutdown function once, bounded by the timeout.
// Later calls return the first result.
func (h *Handler) Shutdown() error {
	h.once.Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), h.timeout)
		defer cancel()
		if err := h.shutdown(ctx); err != nil {
			h.logger.Error("shutdown failed", logger.Error(err))
			h.err = err
		}
	})
	return h.err
}
