package async

import "errors"

var (
	// ErrTimeout is returned by AwaitWithTimeout when the future does not settle in time.
	ErrTimeout = errors.New("async: timeout waiting for result")

	// ErrNoFutures is returned by WaitAny and ExecAny when called without futures.
	ErrNoFutures = errors.New("async: no futures provided")

	// ErrNilRejection is used when a promise is rejected with a nil error.
	ErrNilRejection = errors.New("async: rejected without reason")

	// ErrPanic wraps a panic recovered from a continuation.
	ErrPanic = errors.New("async: continuation panicked")
)
