package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/actkit/app/service"
	"github.com/dmitrymomot/actkit/core/logger"
)

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "actkit",
		Short:         "actkit runs pin-routed command services",
		Long:          `actkit loads commands onto an action bus, exposes them over AMQP, Redis or NATS and sends acts to remote services.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newServeCmd(), newActCmd())
	return root
}

// Execute runs the root command and exits non-zero on failure.
func Execute() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newLogger(cfg service.Config, opts ...logger.Option) *slog.Logger {
	preset := logger.WithDevelopment(cfg.Name)
	if cfg.Env == "production" {
		preset = logger.WithProduction(cfg.Name)
	}
	return logger.New(append([]logger.Option{
		preset,
		logger.WithLevelName(cfg.LogLevel),
		logger.WithOutput(os.Stderr),
		logger.WithContextExtractors(logger.CorrelationIDExtractor),
	}, opts...)...)
}
