// Package logger builds slog loggers and provides attribute helpers.
//
//	log := logger.New(
//		logger.WithProduction("billing"),
//		logger.WithContextExtractors(logger.CorrelationIDExtractor),
//	)
//	log.InfoContext(ctx, "service started", logger.Component("service"))
//
// Transports stamp the id of each remote request into the context with
// WithCorrelationID; CorrelationIDExtractor adds it to every record logged
// with that context.
//
// Helpers such as Error and CorrelationID return an empty attribute for nil
// or empty input, which slog drops.
package logger
