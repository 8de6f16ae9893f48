package action

import (
	"github.com/dmitrymomot/actkit/pkg/async"
)

type completionKind int

const (
	kindLater completionKind = iota
	kindValue
	kindDeferred
	kindFault
)

// Completion tells the wrapper how a handler finishes.
// A nil Completion is the same as Later.
type Completion struct {
	kind     completionKind
	value    any
	deferred *async.Future[any]
	err      error
}

// Later reports that the handler delivers its result through the callback.
func Later() *Completion {
	return &Completion{kind: kindLater}
}

// Return completes the command with v.
func Return(v any) *Completion {
	return &Completion{kind: kindValue, value: v}
}

// Defer completes the command when f settles.
// A nil future is the same as Return(nil).
func Defer(f *async.Future[any]) *Completion {
	if f == nil {
		return Return(nil)
	}
	return &Completion{kind: kindDeferred, deferred: f}
}

// Fail completes the command with a failure.
func Fail(err error) *Completion {
	return &Completion{kind: kindFault, err: err}
}
