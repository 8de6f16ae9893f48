// Package deferred turns the callback primitives of an action bus into
// operations that return futures.
//
// Invoke applies the business convention of wrapped commands: an envelope
// with success=false rejects with its data, success=true resolves with it.
//
//	a := deferred.New[*bus.Bus](b)
//	if _, err := a.Ready().Await(); err != nil { ... }
//	user, err := a.Invoke(ctx, bus.Message{"role": "user", "cmd": "get", "id": 1}).Await()
//
// Every call issues exactly one primitive call. Nothing is retried or cached.
package deferred

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/actkit/core/action"
	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/pkg/async"
	"github.com/dmitrymomot/actkit/pkg/fault"
)

// Primitives are the callback-style operations of an action bus.
// H is the client handle type returned by Client.
type Primitives[H any] interface {
	Ready(cb func(error))
	Close(cb func(error))
	Act(ctx context.Context, msg bus.Message, reply bus.Reply)
	Client(cfg bus.ClientConfig, cb func(error, H))
}

// Adapter exposes Primitives as futures.
type Adapter[H any] struct {
	p Primitives[H]
}

// New creates an Adapter over p.
func New[H any](p Primitives[H]) *Adapter[H] {
	return &Adapter[H]{p: p}
}

// Ready resolves once the bus reports ready and rejects with its error.
func (a *Adapter[H]) Ready() *async.Future[struct{}] {
	return settleErr(a.p.Ready)
}

// Shutdown resolves once the bus closed and rejects with its error.
func (a *Adapter[H]) Shutdown() *async.Future[struct{}] {
	return settleErr(a.p.Close)
}

func settleErr(call func(func(error))) *async.Future[struct{}] {
	f, resolve, reject := async.Promise[struct{}]()
	call(func(err error) {
		if err != nil {
			reject(err)
			return
		}
		resolve(struct{}{})
	})
	return f
}

// Invoke sends msg and settles with the outcome:
//   - a reply error rejects with that error;
//   - a panic in Act rejects with ErrActPanicked;
//   - an envelope with success=false rejects with fault.New(data);
//   - an envelope with success=true resolves with data;
//   - any other payload resolves with the payload itself.
func (a *Adapter[H]) Invoke(ctx context.Context, msg bus.Message) *async.Future[any] {
	f, resolve, reject := async.Promise[any]()

	defer func() {
		if r := recover(); r != nil {
			reject(fmt.Errorf("%w: %v", ErrActPanicked, r))
		}
	}()

	a.p.Act(ctx, msg, func(err error, out any) {
		if err != nil {
			reject(err)
			return
		}
		env, ok := action.AsEnvelope(out)
		if !ok {
			resolve(out)
			return
		}
		if !env.Success {
			reject(failure(env.Data))
			return
		}
		resolve(env.Data)
	})

	return f
}

// failure converts the data of a negative envelope into an error.
// A nil value is still a failure.
func failure(data any) error {
	if err := fault.New(data); err != nil {
		return err
	}
	return ErrFailed
}

// AcquireClient waits for Ready, then asks for a client handle.
// When Ready fails, Client is never called and the future rejects with the
// readiness error.
func (a *Adapter[H]) AcquireClient(cfg bus.ClientConfig) *async.Future[H] {
	f, resolve, reject := async.Promise[H]()

	go func() {
		if _, err := a.Ready().Await(); err != nil {
			reject(err)
			return
		}
		a.p.Client(cfg, func(err error, h H) {
			if err != nil {
				reject(err)
				return
			}
			resolve(h)
		})
	}()

	return f
}
