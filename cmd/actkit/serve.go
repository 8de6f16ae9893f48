package main

import (
	"context"
	"errors"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/dmitrymomot/actkit/app/service"
	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/core/config"
	"github.com/dmitrymomot/actkit/core/lifecycle"
	"github.com/dmitrymomot/actkit/core/server"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the service with the built-in commands",
		Long:  `Loads the ping, echo and delay commands under SERVICE_PIN, listens on TRANSPORT and exposes metrics and health on the ops address.`,
		RunE:  runServe,
	}
	cmd.Flags().String("ops-addr", "", "Address of the metrics and health endpoint (overrides OPS_ADDR)")
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	var cfg service.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}
	var opsCfg server.Config
	if err := config.Load(&opsCfg); err != nil {
		return err
	}
	if addr, _ := cmd.Flags().GetString("ops-addr"); addr != "" {
		opsCfg.Addr = addr
	}

	log := newLogger(cfg)

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	b := bus.New(
		bus.WithLogger(log),
		bus.WithMetrics(reg),
		bus.WithMiddleware(bus.LoggingMiddleware(log)),
		bus.WithShutdownTimeout(cfg.ShutdownTimeout),
	)
	svc, err := service.New(service.WithConfig(cfg), service.WithLogger(log), service.WithBus(b))
	if err != nil {
		return err
	}
	if err := loadDemoCommands(svc); err != nil {
		return err
	}

	h, err := lifecycle.New(svc.Close,
		lifecycle.WithLogger(log),
		lifecycle.WithShutdownTimeout(cfg.ShutdownTimeout),
	)
	if err != nil {
		return err
	}
	defer h.Recover()

	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	if _, err := svc.Listen(ctx); err != nil {
		return errors.Join(err, h.Shutdown())
	}

	ops, err := server.NewFromConfig(opsCfg, server.WithLogger(log))
	if err != nil {
		return errors.Join(err, h.Shutdown())
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(ops.Run(gctx, server.Handler(reg, log, svc.Healthcheck)))
	g.Go(func() error {
		defer cancel()
		return h.Wait(gctx)
	})

	return errors.Join(g.Wait(), h.Shutdown())
}
