package lifecycle

import "errors"

var (
	// ErrNilShutdown is returned by New when no shutdown function is given.
	ErrNilShutdown = errors.New("lifecycle: shutdown function is required")

	// ErrPanic wraps a recovered panic value.
	ErrPanic = errors.New("panic")
)
