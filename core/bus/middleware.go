package bus

import (
	"context"
	"log/slog"
	"time"

	"github.com/dmitrymomot/actkit/core/logger"
	"github.com/dmitrymomot/actkit/pkg/pin"
)

// Middleware wraps the action registered under pattern.
type Middleware func(pattern pin.Pin, next ActionFunc) ActionFunc

// LoggingMiddleware returns a middleware that logs each act with its
// pattern, duration and error.
//
// Example:
//
//	b := bus.New(bus.WithMiddleware(bus.LoggingMiddleware(log)))
func LoggingMiddleware(log *slog.Logger) Middleware {
	return func(pattern pin.Pin, next ActionFunc) ActionFunc {
		name := pattern.String()
		return func(ctx context.Context, msg Message, reply Reply) {
			start := time.Now()
			log.DebugContext(ctx, "act started", logger.Pattern(name))

			next(ctx, msg, func(err error, out any) {
				duration := logger.Duration(time.Since(start))
				if err != nil {
					log.ErrorContext(ctx, "act failed", logger.Pattern(name), duration, logger.Error(err))
				} else {
					log.DebugContext(ctx, "act completed", logger.Pattern(name), duration)
				}
				reply(err, out)
			})
		}
	}
}
