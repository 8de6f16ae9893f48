package action

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidInput is returned by Typed handlers receiving input of another type.
	ErrInvalidInput = errors.New("invalid command input")

	// ErrHandlerPanicked is logged when a handler panics.
	ErrHandlerPanicked = errors.New("handler panicked")

	// ErrNilHandler is returned when a nil handler is wrapped.
	ErrNilHandler = errors.New("handler is nil")

	// ErrFailed is used when a handler fails without a reason.
	ErrFailed = errors.New("command failed")
)

func errInput(want, got any) error {
	return fmt.Errorf("%w: want %T, got %T", ErrInvalidInput, want, got)
}
