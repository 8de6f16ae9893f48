package main

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/dmitrymomot/actkit/app/service"
	"github.com/dmitrymomot/actkit/core/action"
	"github.com/dmitrymomot/actkit/core/dto"
	"github.com/dmitrymomot/actkit/pkg/async"
	"github.com/dmitrymomot/actkit/pkg/pin"
)

const maxDelay = 10 * time.Second

type echoInput struct {
	Text  string `json:"text"`
	Times int    `json:"times"`
}

func (in *echoInput) Validate() error {
	if in.Text == "" {
		return errors.New("text is required")
	}
	if in.Times < 0 || in.Times > 10 {
		return errors.New("times must be between 0 and 10")
	}
	if in.Times == 0 {
		in.Times = 1
	}
	return nil
}

type echoOutput struct {
	Text string `json:"text"`
}

func echo(_ context.Context, in echoInput) (echoOutput, error) {
	return echoOutput{Text: strings.TrimSpace(strings.Repeat(in.Text+" ", in.Times))}, nil
}

func ping(context.Context, any, action.Callback) *action.Completion {
	return action.Return(map[string]any{"pong": true})
}

// delay replies after ms milliseconds without blocking the bus.
func delay(ctx context.Context, in any, _ action.Callback) *action.Completion {
	params, _ := in.(map[string]any)
	ms, _ := params["ms"].(float64)
	d := time.Duration(ms) * time.Millisecond
	if d < 0 || d > maxDelay {
		return action.Fail(errors.New("ms must be between 0 and 10000"))
	}
	return action.Defer(async.Async(ctx, d, func(ctx context.Context, d time.Duration) (any, error) {
		select {
		case <-time.After(d):
			return map[string]any{"waited_ms": d.Milliseconds()}, nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}))
}

// loadDemoCommands registers the built-in commands: ping, echo and delay.
func loadDemoCommands(svc *service.Service) error {
	svc.Registry().RegisterDTO("echo", "in", dto.Struct[echoInput]())
	svc.Registry().RegisterDTO("echo", "out", dto.Map("json"))

	cmds := []service.Command{
		{Name: "ping", Pin: pin.Raw("cmd:ping"), Handler: ping},
		{
			Name:    "echo",
			Pin:     pin.Raw("cmd:echo"),
			Handler: action.Typed(echo),
			Input:   dto.Binding{Type: "echo", Subtype: "in"},
			Output:  dto.Binding{Type: "echo", Subtype: "out"},
		},
		{Name: "delay", Pin: pin.Raw("cmd:delay"), Handler: delay},
	}
	for _, cmd := range cmds {
		if err := svc.LoadCommand(cmd); err != nil {
			return err
		}
	}
	return nil
}
