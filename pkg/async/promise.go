package async

import "fmt"

// Promise returns an unsettled Future together with the functions that settle it.
// Only the first call to resolve or reject has an effect.
//
// Example:
//
//	f, resolve, reject := async.Promise[string]()
//	client.Get(key, func(err error, val string) {
//		if err != nil {
//			reject(err)
//			return
//		}
//		resolve(val)
//	})
//	val, err := f.Await()
func Promise[T any]() (*Future[T], func(T), func(error)) {
	f := newFuture[T]()
	resolve := func(val T) {
		f.settle(val, nil)
	}
	reject := func(err error) {
		var zero T
		if err == nil {
			err = ErrNilRejection
		}
		f.settle(zero, err)
	}
	return f, resolve, reject
}

// Resolved returns a Future already settled with val.
func Resolved[T any](val T) *Future[T] {
	f := newFuture[T]()
	f.settle(val, nil)
	return f
}

// Rejected returns a Future already settled with err.
func Rejected[T any](err error) *Future[T] {
	f, _, reject := Promise[T]()
	reject(err)
	return f
}

// Then chains fn onto f. The returned Future settles with fn's result once f
// resolves, or with f's error if f rejects. A panic in fn rejects the result.
func Then[T, U any](f *Future[T], fn func(T) (U, error)) *Future[U] {
	next := newFuture[U]()

	go func() {
		var zero U
		val, err := f.Await()
		if err != nil {
			next.settle(zero, err)
			return
		}

		defer func() {
			if r := recover(); r != nil {
				next.settle(zero, fmt.Errorf("%w: %v", ErrPanic, r))
			}
		}()

		out, err := fn(val)
		next.settle(out, err)
	}()

	return next
}
