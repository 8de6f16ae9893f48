package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/dmitrymomot/actkit/core/logger"
	"github.com/dmitrymomot/actkit/pkg/async"
	"github.com/dmitrymomot/actkit/pkg/pin"
)

// ServeFunc executes an inbound message against local actions.
type ServeFunc func(ctx context.Context, msg Message) (any, error)

// Transport moves messages between buses.
// Listen sets up consumption and returns once messages are accepted;
// consumers stop when ctx is done.
type Transport interface {
	Listen(ctx context.Context, cfg ListenConfig, serve ServeFunc) error
	Dial(ctx context.Context, cfg ClientConfig) (Sender, error)
	Close() error
}

// HealthChecker is implemented by transports that can report the state of
// their connections.
type HealthChecker interface {
	Healthcheck(ctx context.Context) error
}

// Sender delivers messages to remote listeners and waits for their reply.
type Sender interface {
	Send(ctx context.Context, msg Message) (any, error)
	Close() error
}

// ListenConfig describes an inbound endpoint.
// Empty fields fall back to the transport defaults.
type ListenConfig struct {
	Type     string
	Pin      pin.Pin
	URL      string
	Name     string
	Exchange string
	Queue    string
	Timeout  time.Duration
}

// ClientConfig describes an outbound route.
type ClientConfig struct {
	Type     string
	Pin      pin.Pin
	URL      string
	Exchange string
	Timeout  time.Duration
}

// RegisterTransport makes t available to Listen and Client under name.
// Plugins call it from Init.
func (b *Bus) RegisterTransport(name string, t Transport) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if _, ok := b.transports[name]; ok {
		return fmt.Errorf("%w: %s", ErrTransportRegistered, name)
	}
	b.transports[name] = t
	return nil
}

func (b *Bus) transport(name string) (Transport, error) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	t, ok := b.transports[name]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, name)
	}
	return t, nil
}

// Listen starts serving local actions matching cfg.Pin through the
// transport named cfg.Type. Startup runs in the background; use Ready to
// wait for it.
func (b *Bus) Listen(cfg ListenConfig) {
	task := async.Exec(b.ctx, cfg, b.listen)

	b.mu.Lock()
	b.startup = append(b.startup, task)
	b.mu.Unlock()
}

func (b *Bus) listen(ctx context.Context, cfg ListenConfig) error {
	if b.closed.Load() {
		return ErrClosed
	}
	t, err := b.transport(cfg.Type)
	if err != nil {
		return err
	}
	if err := t.Listen(ctx, cfg, b.serve(cfg.Timeout)); err != nil {
		return fmt.Errorf("listen %s: %w", cfg.Type, err)
	}

	b.logger.Info("listening",
		logger.Transport(cfg.Type),
		slog.String("pin", cfg.Pin.String()))
	return nil
}

func (b *Bus) serve(timeout time.Duration) ServeFunc {
	type result struct {
		out any
		err error
	}

	return func(ctx context.Context, msg Message) (any, error) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}

		done := make(chan result, 1)
		b.dispatch(ctx, msg, func(err error, out any) {
			done <- result{out: out, err: err}
		}, true)

		select {
		case r := <-done:
			return r.out, r.err
		case <-ctx.Done():
			return nil, fmt.Errorf("%w: %w", ErrTimeout, ctx.Err())
		}
	}
}

// Client dials the transport named cfg.Type and routes messages matching
// cfg.Pin to remote listeners. cb receives the bus itself.
// An empty cfg.Type keeps every message local.
func (b *Bus) Client(cfg ClientConfig, cb func(error, *Bus)) {
	if cfg.Type == "" {
		go cb(nil, b)
		return
	}

	go func() {
		if err := b.dial(cfg); err != nil {
			cb(err, nil)
			return
		}
		cb(nil, b)
	}()
}

func (b *Bus) dial(cfg ClientConfig) error {
	if b.closed.Load() {
		return ErrClosed
	}
	t, err := b.transport(cfg.Type)
	if err != nil {
		return err
	}
	s, err := t.Dial(b.ctx, cfg)
	if err != nil {
		return fmt.Errorf("dial %s: %w", cfg.Type, err)
	}

	b.mu.Lock()
	b.senders = append(b.senders, s)
	b.mu.Unlock()

	b.addRoute(cfg.Pin, remoteAction(s, cfg.Timeout), true)
	b.logger.Info("client route added",
		logger.Transport(cfg.Type),
		slog.String("pin", cfg.Pin.String()))
	return nil
}

func remoteAction(s Sender, timeout time.Duration) ActionFunc {
	return func(ctx context.Context, msg Message, reply Reply) {
		if timeout > 0 {
			var cancel context.CancelFunc
			ctx, cancel = context.WithTimeout(ctx, timeout)
			defer cancel()
		}
		out, err := s.Send(ctx, msg)
		if err != nil && errors.Is(err, context.DeadlineExceeded) && !errors.Is(err, ErrTimeout) {
			err = fmt.Errorf("%w: %w", ErrTimeout, err)
		}
		reply(err, out)
	}
}

// Healthcheck reports ErrClosed for a closed bus and otherwise joins the
// errors of every registered transport implementing HealthChecker.
func (b *Bus) Healthcheck(ctx context.Context) error {
	if b.closed.Load() {
		return ErrClosed
	}

	b.mu.RLock()
	checks := make([]HealthChecker, 0, len(b.transports))
	for _, t := range b.transports {
		if hc, ok := t.(HealthChecker); ok {
			checks = append(checks, hc)
		}
	}
	b.mu.RUnlock()

	var errs []error
	for _, hc := range checks {
		if err := hc.Healthcheck(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
