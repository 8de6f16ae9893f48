package main

import (
	"bytes"
	"context"
	"encoding/json"
	"testing"
	"time"

	"github.com/dmitrymomot/actkit/app/service"
	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/core/dto"
	"github.com/dmitrymomot/actkit/core/logger"
	"github.com/dmitrymomot/actkit/pkg/fault"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newDemoService(t *testing.T) *service.Service {
	t.Helper()

	svc, err := service.New(
		service.WithConfig(service.Config{Name: "demo", Pin: "service:demo"}),
		service.WithLogger(logger.New(logger.WithOutput(&bytes.Buffer{}))),
	)
	require.NoError(t, err)
	require.NoError(t, loadDemoCommands(svc))
	t.Cleanup(func() { _ = svc.Close(context.Background()) })

	_, err = svc.Listen(context.Background())
	require.NoError(t, err)
	return svc
}

func TestDemoCommands(t *testing.T) {
	t.Parallel()

	svc := newDemoService(t)
	ctx := context.Background()

	t.Run("ping", func(t *testing.T) {
		t.Parallel()

		out, err := svc.Act(ctx, bus.Message{"service": "demo", "cmd": "ping"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"pong": true}, out)
	})

	t.Run("echo repeats text", func(t *testing.T) {
		t.Parallel()

		out, err := svc.Act(ctx, bus.Message{"service": "demo", "cmd": "echo", "text": "hi", "times": "2"})
		require.NoError(t, err)
		assert.Equal(t, map[string]any{"text": "hi hi"}, out)
	})

	t.Run("echo validates input", func(t *testing.T) {
		t.Parallel()

		_, err := svc.Act(ctx, bus.Message{"service": "demo", "cmd": "echo"})
		require.Error(t, err)
		assert.Contains(t, fault.Message(err), "text is required")
		assert.Contains(t, fault.Message(err), dto.ErrValidation.Error())
	})

	t.Run("delay defers the reply", func(t *testing.T) {
		t.Parallel()

		start := time.Now()
		out, err := svc.Act(ctx, bus.Message{"service": "demo", "cmd": "delay", "ms": 20.0})
		require.NoError(t, err)
		assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
		assert.Equal(t, map[string]any{"waited_ms": int64(20)}, out)
	})

	t.Run("delay rejects out of range", func(t *testing.T) {
		t.Parallel()

		_, err := svc.Act(ctx, bus.Message{"service": "demo", "cmd": "delay", "ms": -1.0})
		require.Error(t, err)
		assert.Contains(t, fault.Message(err), "ms must be between")
	})
}

func TestActCommand(t *testing.T) {
	t.Parallel()

	var stdout, stderr bytes.Buffer
	root := newRootCmd()
	root.SetOut(&stdout)
	root.SetErr(&stderr)
	root.SetArgs([]string{"act", "cmd:echo,text:hey,times:3", "--timeout", "2s"})

	require.NoError(t, root.ExecuteContext(context.Background()))

	var out map[string]any
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &out))
	assert.Equal(t, "hey hey hey", out["text"])
}

func TestActCommandRejectsBadMessage(t *testing.T) {
	t.Parallel()

	root := newRootCmd()
	root.SetOut(&bytes.Buffer{})
	root.SetErr(&bytes.Buffer{})
	root.SetArgs([]string{"act", "a:{b"})

	assert.Error(t, root.ExecuteContext(context.Background()))
}
