package main

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/dmitrymomot/actkit/app/service"
	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/core/config"
	"github.com/dmitrymomot/actkit/core/logger"
	"github.com/dmitrymomot/actkit/pkg/pin"
)

func newActCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "act <message>",
		Short: "Send a message and print the result",
		Long: `Sends a message written in pin syntax, e.g. "service:math,cmd:sum,a:1,b:2".
With TRANSPORT set the message goes to the listener of --target (default SERVICE_PIN);
without it the built-in commands answer in process.`,
		Args: cobra.ExactArgs(1),
		RunE: runAct,
	}
	cmd.Flags().String("target", "", "Pin of the remote listener (defaults to SERVICE_PIN)")
	cmd.Flags().Duration("timeout", 10*time.Second, "Overall timeout")
	return cmd
}

func runAct(cmd *cobra.Command, args []string) error {
	msg, err := pin.Parse(args[0])
	if err != nil {
		return err
	}

	var cfg service.Config
	if err := config.Load(&cfg); err != nil {
		return err
	}
	target, _ := cmd.Flags().GetString("target")
	if target == "" {
		target = cfg.Pin
	}
	timeout, _ := cmd.Flags().GetDuration("timeout")

	svc, err := service.New(
		service.WithConfig(cfg),
		service.WithLogger(newLogger(cfg, logger.WithLevelName("warn"), logger.WithOutput(cmd.ErrOrStderr()))),
	)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
	defer cancel()
	defer func() { _ = svc.Close(context.Background()) }()

	if cfg.Transport == "" {
		if err := loadDemoCommands(svc); err != nil {
			return err
		}
	} else if _, err := svc.Client(ctx, pin.Raw(target)); err != nil {
		return fmt.Errorf("client %s: %w", target, err)
	}

	out, err := svc.Act(ctx, bus.Message(msg))
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(out)
}
