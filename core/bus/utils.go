package bus

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/actkit/pkg/pin"
)

// chainMiddleware applies middleware in order.
// The first middleware in the slice is the outermost (executed first).
func chainMiddleware(pattern pin.Pin, action ActionFunc, middleware []Middleware) ActionFunc {
	for i := len(middleware) - 1; i >= 0; i-- {
		action = middleware[i](pattern, action)
	}
	return action
}

// safeAct executes an action with panic recovery.
// A panic before the action replied is reported through reply.
func safeAct(ctx context.Context, action ActionFunc, msg Message, reply Reply) {
	defer func() {
		if r := recover(); r != nil {
			reply(fmt.Errorf("%w: %v", ErrActionPanicked, r), nil)
		}
	}()
	action(ctx, msg, reply)
}
