package bus

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/dmitrymomot/actkit/core/logger"
	"github.com/dmitrymomot/actkit/pkg/async"
	"github.com/dmitrymomot/actkit/pkg/pin"
)

// Message is the unit routed by the bus.
type Message map[string]any

// Reply receives the outcome of an action. It is called at most once.
type Reply func(err error, out any)

// ActionFunc handles a message and reports the outcome through reply.
// reply may be called after ActionFunc returns.
type ActionFunc func(ctx context.Context, msg Message, reply Reply)

type route struct {
	pattern pin.Pin
	key     string
	seq     uint64
	action  ActionFunc
	remote  bool
}

// Bus routes messages to actions by pin.
type Bus struct {
	mu         sync.RWMutex
	pluginMu   sync.Mutex
	routes     []*route
	seq        uint64
	plugins    map[string]Plugin
	transports map[string]Transport
	senders    []Sender
	startup    []*async.ExecFuture

	fireAndForget atomic.Bool
	closed        atomic.Bool

	middleware      []Middleware
	logger          *slog.Logger
	metrics         *metrics
	shutdownTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	received  atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
}

// New creates a bus.
//
// Example:
//
//	b := bus.New(
//	    bus.WithLogger(logger),
//	    bus.WithMetrics(prometheus.DefaultRegisterer),
//	    bus.WithMiddleware(bus.LoggingMiddleware(logger)),
//	)
func New(opts ...Option) *Bus {
	b := &Bus{
		plugins:         make(map[string]Plugin),
		transports:      make(map[string]Transport),
		logger:          slog.Default(),
		shutdownTimeout: 30 * time.Second,
	}
	for _, opt := range opts {
		opt(b)
	}
	b.ctx, b.cancel = context.WithCancel(context.Background())
	return b
}

// Add registers action under pattern. An action already registered under an
// identical pattern is replaced.
func (b *Bus) Add(pattern pin.Pin, action ActionFunc) {
	b.addRoute(pattern, action, false)
}

func (b *Bus) addRoute(pattern pin.Pin, action ActionFunc, remote bool) {
	pattern = pattern.Clone()
	key := pattern.String()

	b.mu.Lock()
	defer b.mu.Unlock()

	b.seq++
	r := &route{pattern: pattern, key: key, seq: b.seq, action: action, remote: remote}
	for i, existing := range b.routes {
		if existing.key == key && existing.remote == remote {
			b.routes[i] = r
			return
		}
	}
	b.routes = append(b.routes, r)
}

// Has reports whether a local action is registered under exactly pattern.
func (b *Bus) Has(pattern pin.Pin) bool {
	key := pattern.String()
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, r := range b.routes {
		if r.key == key && !r.remote {
			return true
		}
	}
	return false
}

// find returns the best route for msg. Local actions are preferred over
// client routes; localOnly excludes client routes entirely.
func (b *Bus) find(msg Message, localOnly bool) (*route, bool) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	var local, remote *route
	for _, r := range b.routes {
		if (localOnly && r.remote) || !r.pattern.Matches(msg) {
			continue
		}
		best := &local
		if r.remote {
			best = &remote
		}
		if *best == nil || moreSpecific(r, *best) {
			*best = r
		}
	}
	if local != nil {
		return local, true
	}
	return remote, remote != nil
}

func moreSpecific(a, b *route) bool {
	if len(a.pattern) != len(b.pattern) {
		return len(a.pattern) > len(b.pattern)
	}
	return a.seq > b.seq
}

// Act routes msg to the matching action. reply is called exactly once with
// the outcome; it may be nil only when the FireAndForget plugin is loaded.
func (b *Bus) Act(ctx context.Context, msg Message, reply Reply) {
	b.dispatch(ctx, msg, reply, false)
}

func (b *Bus) dispatch(ctx context.Context, msg Message, reply Reply, localOnly bool) {
	if reply == nil {
		if !b.fireAndForget.Load() {
			b.logger.ErrorContext(ctx, "act dropped",
				logger.Pattern(pin.Pin(msg).String()),
				logger.Error(ErrReplyRequired))
			return
		}
		reply = b.orphanReply(ctx, msg)
	}

	if b.closed.Load() {
		reply(ErrClosed, nil)
		return
	}

	r, ok := b.find(msg, localOnly)
	if !ok {
		b.failed.Add(1)
		reply(fmt.Errorf("%w: %s", ErrNoHandler, pin.Pin(msg).String()), nil)
		return
	}

	b.received.Add(1)
	action := b.chain(r)
	reply = b.track(r, reply)

	if r.remote {
		go safeAct(ctx, action, msg, reply)
		return
	}
	safeAct(ctx, action, msg, reply)
}

// track guards reply so only the first call has an effect and records the outcome.
func (b *Bus) track(r *route, reply Reply) Reply {
	start := time.Now()
	var once sync.Once
	return func(err error, out any) {
		once.Do(func() {
			if err != nil {
				b.failed.Add(1)
			} else {
				b.processed.Add(1)
			}
			b.metrics.observe(r.key, err, time.Since(start))
			reply(err, out)
		})
	}
}

func (b *Bus) orphanReply(ctx context.Context, msg Message) Reply {
	return func(err error, _ any) {
		if err != nil {
			b.logger.ErrorContext(ctx, "fire and forget act failed",
				logger.Pattern(pin.Pin(msg).String()),
				logger.Error(err))
		}
	}
}

func (b *Bus) chain(r *route) ActionFunc {
	b.mu.RLock()
	middleware := b.middleware
	b.mu.RUnlock()
	return chainMiddleware(r.pattern, r.action, middleware)
}

// Ready calls cb once every listener started so far is ready,
// with the first startup error if any.
func (b *Bus) Ready(cb func(error)) {
	b.mu.RLock()
	tasks := append([]*async.ExecFuture(nil), b.startup...)
	b.mu.RUnlock()

	go func() {
		cb(async.ExecAll(tasks...))
	}()
}

// Close stops listeners, closes clients and transports, then calls cb.
// Closing a closed bus calls cb with nil.
func (b *Bus) Close(cb func(error)) {
	if !b.closed.CompareAndSwap(false, true) {
		if cb != nil {
			go cb(nil)
		}
		return
	}

	b.cancel()

	b.mu.Lock()
	senders := b.senders
	transports := make([]Transport, 0, len(b.transports))
	for _, t := range b.transports {
		transports = append(transports, t)
	}
	b.senders = nil
	b.mu.Unlock()

	go func() {
		done := make(chan error, 1)
		go func() {
			var errs []error
			for _, s := range senders {
				if err := s.Close(); err != nil {
					errs = append(errs, err)
				}
			}
			for _, t := range transports {
				if err := t.Close(); err != nil {
					errs = append(errs, err)
				}
			}
			done <- errors.Join(errs...)
		}()

		var err error
		select {
		case err = <-done:
		case <-time.After(b.shutdownTimeout):
			err = fmt.Errorf("shutdown timeout exceeded after %s", b.shutdownTimeout)
		}

		if err != nil {
			b.logger.Error("bus closed with errors", logger.Error(err))
		} else {
			b.logger.Info("bus closed")
		}
		if cb != nil {
			cb(err)
		}
	}()
}

// Logger returns the bus logger. Plugins use it as their default.
func (b *Bus) Logger() *slog.Logger {
	return b.logger
}

// Closed reports whether Close has been called.
func (b *Bus) Closed() bool {
	return b.closed.Load()
}

// Stats holds act counters.
type Stats struct {
	Received  uint64 // Messages routed to an action
	Processed uint64 // Acts that replied without error
	Failed    uint64 // Acts that failed, including unroutable messages
}

// Stats returns the current act counters.
func (b *Bus) Stats() Stats {
	return Stats{
		Received:  b.received.Load(),
		Processed: b.processed.Load(),
		Failed:    b.failed.Load(),
	}
}
