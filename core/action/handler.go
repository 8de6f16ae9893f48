package action

import "context"

// Callback delivers a handler result. A non-nil err, or a non-nil failure
// value boxed with fault.New, fails the command.
type Callback func(err error, data any)

// HandlerFunc is a command handler. It completes in one of four ways:
// calling done and returning Later (or nil), returning Return(v),
// returning Defer(future), or returning Fail(err) / panicking.
// Only the first completion signal counts.
type HandlerFunc func(ctx context.Context, in any, done Callback) *Completion

// Typed adapts a synchronous typed function into a HandlerFunc.
// The input must already have type T, which an input DTO usually ensures.
func Typed[T, U any](fn func(ctx context.Context, in T) (U, error)) HandlerFunc {
	return func(ctx context.Context, in any, _ Callback) *Completion {
		v, ok := in.(T)
		if !ok {
			var zero T
			return Fail(errInput(zero, in))
		}
		out, err := fn(ctx, v)
		if err != nil {
			return Fail(err)
		}
		return Return(out)
	}
}
