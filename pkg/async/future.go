package async

import (
	"context"
	"sync"
	"time"
)

// Future represents the eventual result of an asynchronous computation.
// A Future settles exactly once; later attempts to settle it are ignored.
type Future[T any] struct {
	val  T
	err  error
	once sync.Once
	done chan struct{}
}

func newFuture[T any]() *Future[T] {
	return &Future[T]{done: make(chan struct{})}
}

// settle stores the outcome if the future has not settled yet.
// Reports whether this call settled it.
func (f *Future[T]) settle(val T, err error) bool {
	settled := false
	f.once.Do(func() {
		f.val = val
		f.err = err
		settled = true
		close(f.done)
	})
	return settled
}

// Await blocks until the future settles and returns its value and error.
func (f *Future[T]) Await() (T, error) {
	<-f.done
	return f.val, f.err
}

// AwaitContext blocks until the future settles or ctx is done.
// The computation itself is not cancelled when ctx is done.
func (f *Future[T]) AwaitContext(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// AwaitWithTimeout waits for the future with a timeout.
// Returns ErrTimeout if the future does not settle in time.
func (f *Future[T]) AwaitWithTimeout(timeout time.Duration) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-time.After(timeout):
		var zero T
		return zero, ErrTimeout
	}
}

// IsComplete checks if the future has settled without blocking.
func (f *Future[T]) IsComplete() bool {
	select {
	case <-f.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed once the future settles.
func (f *Future[T]) Done() <-chan struct{} {
	return f.done
}

// Async executes fn in a new goroutine and returns a Future for its result.
func Async[T, U any](ctx context.Context, param T, fn func(context.Context, T) (U, error)) *Future[U] {
	f := newFuture[U]()

	go func() {
		// Early exit prevents goroutine work when context is pre-canceled
		select {
		case <-ctx.Done():
			var zero U
			f.settle(zero, ctx.Err())
			return
		default:
		}

		val, err := fn(ctx, param)
		f.settle(val, err)
	}()

	return f
}

// WaitAll waits for all futures and returns their values in order.
// Returns the first error encountered, in future order.
func WaitAll[T any](futures ...*Future[T]) ([]T, error) {
	results := make([]T, len(futures))
	for i, future := range futures {
		val, err := future.Await()
		if err != nil {
			return nil, err
		}
		results[i] = val
	}
	return results, nil
}

// WaitAny returns the index, value and error of the first future to settle.
func WaitAny[T any](futures ...*Future[T]) (int, T, error) {
	if len(futures) == 0 {
		var zero T
		return -1, zero, ErrNoFutures
	}

	type result struct {
		index int
		val   T
		err   error
	}

	done := make(chan result, len(futures))
	for i, future := range futures {
		go func(index int, f *Future[T]) {
			val, err := f.Await()
			done <- result{index, val, err}
		}(i, future)
	}

	res := <-done
	return res.index, res.val, res.err
}
