package deferred

import "errors"

var (
	// ErrActPanicked wraps a panic raised by Act before it replied.
	ErrActPanicked = errors.New("act panicked")

	// ErrFailed is used for a negative envelope without data.
	ErrFailed = errors.New("act failed")
)
