package action

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"maps"
	"sync"
	"sync/atomic"

	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/core/dto"
	"github.com/dmitrymomot/actkit/core/logger"
	"github.com/dmitrymomot/actkit/core/registry"
	"github.com/dmitrymomot/actkit/pkg/fault"
)

// Wrapper turns command handlers into bus actions that always reply with
// an Envelope.
type Wrapper struct {
	logger   *slog.Logger
	registry *registry.Registry
}

// Option configures a Wrapper.
type Option func(*Wrapper)

// WithLogger sets the logger. Default is slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(w *Wrapper) {
		if logger != nil {
			w.logger = logger
		}
	}
}

// WithRegistry sets the registry DTOs are resolved from.
// Default is an empty registry.
func WithRegistry(reg *registry.Registry) Option {
	return func(w *Wrapper) {
		if reg != nil {
			w.registry = reg
		}
	}
}

// New creates a Wrapper.
func New(opts ...Option) *Wrapper {
	w := &Wrapper{
		logger:   slog.Default(),
		registry: registry.New(),
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

type wrapConfig struct {
	input  dto.Binding
	output dto.Binding
}

// WrapOption configures a single wrapped command.
type WrapOption func(*wrapConfig)

// InputDTO transforms the command params with the DTO registered for
// type/subtype before the handler runs.
func InputDTO(typ, subtype string) WrapOption {
	return func(c *wrapConfig) {
		c.input = dto.Binding{Type: typ, Subtype: subtype}
	}
}

// OutputDTO transforms the handler result with the DTO registered for
// type/subtype before it is replied.
func OutputDTO(typ, subtype string) WrapOption {
	return func(c *wrapConfig) {
		c.output = dto.Binding{Type: typ, Subtype: subtype}
	}
}

// Wrap builds the bus action for the command name.
//
// The handler receives the message params as map[string]any, or the input
// DTO result when InputDTO is set. Whatever way it completes, reply is
// called exactly once, with a nil error and an Envelope.
//
// Example:
//
//	w := action.New(action.WithLogger(logger), action.WithRegistry(reg))
//	b.Add(p, w.Wrap("user.create", createUser, action.InputDTO("user", "create")))
func (w *Wrapper) Wrap(name string, fn HandlerFunc, opts ...WrapOption) bus.ActionFunc {
	var cfg wrapConfig
	for _, opt := range opts {
		opt(&cfg)
	}

	return func(ctx context.Context, msg bus.Message, reply bus.Reply) {
		params := maps.Clone(map[string]any(msg))
		if params == nil {
			params = map[string]any{}
		}
		inv := &invocation{
			w:      w,
			ctx:    ctx,
			name:   name,
			params: encodeParams(params),
			output: cfg.output,
			reply:  reply,
		}

		w.logger.InfoContext(ctx, "command invoking",
			logger.Command(name),
			slog.String("params", inv.params))

		if fn == nil {
			inv.fail(fmt.Errorf("%w: %s", ErrNilHandler, name))
			return
		}

		in, err := dto.Apply(ctx, w.registry, cfg.input, params).Await()
		if err != nil {
			inv.fail(err)
			return
		}

		c := inv.invoke(fn, in)
		switch {
		case c == nil || c.kind == kindLater:
		case c.kind == kindValue:
			inv.settle(nil, c.value)
		case c.kind == kindDeferred:
			go func() {
				v, err := c.deferred.Await()
				inv.settle(err, v)
			}()
		case c.kind == kindFault:
			err := c.err
			if err == nil {
				err = ErrFailed
			}
			inv.settle(err, nil)
		}
	}
}

// invoke runs the handler, turning a panic into a fault completion that
// carries the panic value as its message.
func (i *invocation) invoke(fn HandlerFunc, in any) (c *Completion) {
	defer func() {
		if r := recover(); r != nil {
			i.w.logger.ErrorContext(i.ctx, ErrHandlerPanicked.Error(),
				logger.Command(i.name),
				slog.Any("panic", r),
				logger.Stack())
			if err, ok := r.(error); ok {
				c = Fail(err)
				return
			}
			c = Fail(fault.New(r))
		}
	}()
	return fn(i.ctx, in, i.settle)
}

// invocation tracks one call of a wrapped command.
type invocation struct {
	w       *Wrapper
	ctx     context.Context
	name    string
	params  string
	output  dto.Binding
	reply   bus.Reply
	settled atomic.Bool
	once    sync.Once
}

// settle accepts the first completion signal and drops the rest.
func (i *invocation) settle(err error, data any) {
	if !i.settled.CompareAndSwap(false, true) {
		return
	}
	if err != nil {
		i.fail(err)
		return
	}
	i.succeed(data)
}

func (i *invocation) succeed(data any) {
	out, err := dto.Apply(i.ctx, i.w.registry, i.output, data).Await()
	if err != nil {
		i.fail(err)
		return
	}
	i.respond(Ok(out))
}

func (i *invocation) fail(err error) {
	i.w.logger.ErrorContext(i.ctx, "command failed",
		logger.Command(i.name),
		slog.String("error", fault.Message(err)),
		slog.String("params", i.params))
	i.respond(Failed(fault.Flatten(err)))
}

func (i *invocation) respond(env Envelope) {
	i.once.Do(func() {
		i.reply(nil, env)
	})
}

func encodeParams(params map[string]any) string {
	data, err := json.Marshal(params)
	if err != nil {
		return fmt.Sprint(params)
	}
	return string(data)
}
