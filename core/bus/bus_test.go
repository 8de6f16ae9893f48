package bus_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/pkg/pin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type result struct {
	out any
	err error
}

// act sends msg and waits for the reply.
func act(t *testing.T, b *bus.Bus, msg bus.Message) (any, error) {
	t.Helper()

	done := make(chan result, 1)
	b.Act(context.Background(), msg, func(err error, out any) {
		done <- result{out: out, err: err}
	})

	select {
	case r := <-done:
		return r.out, r.err
	case <-time.After(2 * time.Second):
		t.Fatal("no reply")
		return nil, nil
	}
}

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func echo(tag string) bus.ActionFunc {
	return func(_ context.Context, msg bus.Message, reply bus.Reply) {
		reply(nil, tag)
	}
}

func TestBusRouting(t *testing.T) {
	t.Parallel()

	t.Run("routes by pin", func(t *testing.T) {
		t.Parallel()

		b := bus.New(bus.WithLogger(quietLogger()))
		b.Add(pin.Pin{"role": "math", "cmd": "sum"}, func(_ context.Context, msg bus.Message, reply bus.Reply) {
			reply(nil, msg["a"].(float64)+msg["b"].(float64))
		})

		out, err := act(t, b, bus.Message{"role": "math", "cmd": "sum", "a": 1.0, "b": 2.0})
		require.NoError(t, err)
		assert.Equal(t, 3.0, out)
	})

	t.Run("most specific pattern wins", func(t *testing.T) {
		t.Parallel()

		b := bus.New(bus.WithLogger(quietLogger()))
		b.Add(pin.Pin{"role": "user"}, echo("generic"))
		b.Add(pin.Pin{"role": "user", "cmd": "create"}, echo("specific"))

		out, err := act(t, b, bus.Message{"role": "user", "cmd": "create"})
		require.NoError(t, err)
		assert.Equal(t, "specific", out)

		out, err = act(t, b, bus.Message{"role": "user", "cmd": "delete"})
		require.NoError(t, err)
		assert.Equal(t, "generic", out)
	})

	t.Run("same pattern overwrites", func(t *testing.T) {
		t.Parallel()

		b := bus.New(bus.WithLogger(quietLogger()))
		b.Add(pin.Pin{"cmd": "x"}, echo("first"))
		b.Add(pin.Pin{"cmd": "x"}, echo("second"))

		out, err := act(t, b, bus.Message{"cmd": "x"})
		require.NoError(t, err)
		assert.Equal(t, "second", out)
		assert.True(t, b.Has(pin.Pin{"cmd": "x"}))
		assert.False(t, b.Has(pin.Pin{"cmd": "y"}))
	})

	t.Run("no handler", func(t *testing.T) {
		t.Parallel()

		b := bus.New(bus.WithLogger(quietLogger()))
		_, err := act(t, b, bus.Message{"cmd": "missing"})
		assert.ErrorIs(t, err, bus.ErrNoHandler)
		assert.Equal(t, uint64(1), b.Stats().Failed)
	})

	t.Run("panic becomes error", func(t *testing.T) {
		t.Parallel()

		b := bus.New(bus.WithLogger(quietLogger()))
		b.Add(pin.Pin{"cmd": "boom"}, func(context.Context, bus.Message, bus.Reply) {
			panic("boom")
		})

		_, err := act(t, b, bus.Message{"cmd": "boom"})
		assert.ErrorIs(t, err, bus.ErrActionPanicked)
	})

	t.Run("only first reply counts", func(t *testing.T) {
		t.Parallel()

		b := bus.New(bus.WithLogger(quietLogger()))
		b.Add(pin.Pin{"cmd": "twice"}, func(_ context.Context, _ bus.Message, reply bus.Reply) {
			reply(nil, 1)
			reply(errors.New("late"), 2)
		})

		var calls atomic.Int32
		b.Act(context.Background(), bus.Message{"cmd": "twice"}, func(err error, out any) {
			calls.Add(1)
			assert.NoError(t, err)
			assert.Equal(t, 1, out)
		})
		assert.Equal(t, int32(1), calls.Load())

		stats := b.Stats()
		assert.Equal(t, uint64(1), stats.Received)
		assert.Equal(t, uint64(1), stats.Processed)
		assert.Equal(t, uint64(0), stats.Failed)
	})
}

func TestFireAndForget(t *testing.T) {
	t.Parallel()

	t.Run("nil reply is dropped without plugin", func(t *testing.T) {
		t.Parallel()

		var called atomic.Bool
		b := bus.New(bus.WithLogger(quietLogger()))
		b.Add(pin.Pin{"cmd": "x"}, func(_ context.Context, _ bus.Message, reply bus.Reply) {
			called.Store(true)
			reply(nil, nil)
		})

		b.Act(context.Background(), bus.Message{"cmd": "x"}, nil)
		assert.False(t, called.Load())
	})

	t.Run("nil reply runs with plugin and logs failures", func(t *testing.T) {
		t.Parallel()

		var logs bytes.Buffer
		b := bus.New(bus.WithLogger(slog.New(slog.NewTextHandler(&logs, nil))))
		require.NoError(t, b.Use(bus.FireAndForget()))
		assert.True(t, b.Loaded(bus.FireAndForgetPlugin))

		b.Add(pin.Pin{"cmd": "x"}, func(_ context.Context, _ bus.Message, reply bus.Reply) {
			reply(errors.New("nobody listens"), nil)
		})

		b.Act(context.Background(), bus.Message{"cmd": "x"}, nil)
		assert.Contains(t, logs.String(), "nobody listens")
	})
}

func TestUse(t *testing.T) {
	t.Parallel()

	b := bus.New(bus.WithLogger(quietLogger()))

	var inits atomic.Int32
	p := bus.NewPlugin("counter", func(*bus.Bus) error {
		inits.Add(1)
		return nil
	})

	require.NoError(t, b.Use(p))
	require.NoError(t, b.Use(p))
	assert.Equal(t, int32(1), inits.Load())

	failing := bus.NewPlugin("failing", func(*bus.Bus) error { return errors.New("nope") })
	assert.Error(t, b.Use(failing))
	assert.False(t, b.Loaded("failing"))

	assert.ErrorIs(t, b.Use(nil), bus.ErrInvalidPlugin)
}

func TestMiddleware(t *testing.T) {
	t.Parallel()

	var order []string
	mw := func(tag string) bus.Middleware {
		return func(pattern pin.Pin, next bus.ActionFunc) bus.ActionFunc {
			return func(ctx context.Context, msg bus.Message, reply bus.Reply) {
				order = append(order, tag)
				next(ctx, msg, reply)
			}
		}
	}

	b := bus.New(
		bus.WithLogger(quietLogger()),
		bus.WithMiddleware(mw("outer"), mw("inner"), bus.LoggingMiddleware(quietLogger())),
	)
	b.Add(pin.Pin{"cmd": "x"}, echo("done"))

	out, err := act(t, b, bus.Message{"cmd": "x"})
	require.NoError(t, err)
	assert.Equal(t, "done", out)
	assert.Equal(t, []string{"outer", "inner"}, order)
}

func TestMetrics(t *testing.T) {
	t.Parallel()

	reg := prometheus.NewRegistry()
	b := bus.New(bus.WithLogger(quietLogger()), bus.WithMetrics(reg))
	// A second bus on the same registry reuses the collectors.
	other := bus.New(bus.WithLogger(quietLogger()), bus.WithMetrics(reg))

	b.Add(pin.Pin{"cmd": "ok"}, echo("ok"))
	other.Add(pin.Pin{"cmd": "ok"}, echo("ok"))

	_, err := act(t, b, bus.Message{"cmd": "ok"})
	require.NoError(t, err)
	_, err = act(t, other, bus.Message{"cmd": "ok"})
	require.NoError(t, err)

	count, err := testutil.GatherAndCount(reg, "actkit_acts_total")
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestMemoryTransport(t *testing.T) {
	t.Parallel()

	hub := bus.NewMemoryHub(10)
	p := pin.Pin{"role": "remote", "cmd": "greet"}

	server := bus.New(bus.WithLogger(quietLogger()))
	require.NoError(t, server.Use(bus.Memory(hub, 2)))
	server.Add(p, func(_ context.Context, msg bus.Message, reply bus.Reply) {
		if msg["name"] == "" {
			reply(errors.New("name is required"), nil)
			return
		}
		reply(nil, map[string]any{"greeting": "hello " + msg["name"].(string)})
	})
	server.Listen(bus.ListenConfig{Type: bus.MemoryTransportType, Pin: p, Timeout: time.Second})

	ready := make(chan error, 1)
	server.Ready(func(err error) { ready <- err })
	require.NoError(t, <-ready)

	client := bus.New(bus.WithLogger(quietLogger()))
	require.NoError(t, client.Use(bus.Memory(hub, 1)))

	dialed := make(chan error, 1)
	client.Client(bus.ClientConfig{Type: bus.MemoryTransportType, Pin: p, Timeout: time.Second}, func(err error, c *bus.Bus) {
		assert.Same(t, client, c)
		dialed <- err
	})
	require.NoError(t, <-dialed)

	out, err := act(t, client, bus.Message{"role": "remote", "cmd": "greet", "name": "bob"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"greeting": "hello bob"}, out)

	_, err = act(t, client, bus.Message{"role": "remote", "cmd": "greet", "name": ""})
	var remote *bus.RemoteError
	require.ErrorAs(t, err, &remote)
	assert.Equal(t, "name is required", remote.Message)

	closed := make(chan error, 1)
	server.Close(func(err error) { closed <- err })
	require.NoError(t, <-closed)
	client.Close(func(err error) { closed <- err })
	require.NoError(t, <-closed)
}

func TestListenUnknownTransport(t *testing.T) {
	t.Parallel()

	b := bus.New(bus.WithLogger(quietLogger()))
	b.Listen(bus.ListenConfig{Type: "carrier-pigeon", Pin: pin.Pin{"a": 1.0}})

	ready := make(chan error, 1)
	b.Ready(func(err error) { ready <- err })
	assert.ErrorIs(t, <-ready, bus.ErrUnknownTransport)
}

func TestClient(t *testing.T) {
	t.Parallel()

	t.Run("empty type returns the bus", func(t *testing.T) {
		t.Parallel()

		b := bus.New(bus.WithLogger(quietLogger()))
		done := make(chan *bus.Bus, 1)
		b.Client(bus.ClientConfig{}, func(err error, c *bus.Bus) {
			assert.NoError(t, err)
			done <- c
		})
		assert.Same(t, b, <-done)
	})

	t.Run("unknown transport", func(t *testing.T) {
		t.Parallel()

		b := bus.New(bus.WithLogger(quietLogger()))
		done := make(chan error, 1)
		b.Client(bus.ClientConfig{Type: "nope"}, func(err error, c *bus.Bus) {
			assert.Nil(t, c)
			done <- err
		})
		assert.ErrorIs(t, <-done, bus.ErrUnknownTransport)
	})

	t.Run("local actions win over client routes", func(t *testing.T) {
		t.Parallel()

		hub := bus.NewMemoryHub(1)
		b := bus.New(bus.WithLogger(quietLogger()))
		require.NoError(t, b.Use(bus.Memory(hub, 1)))

		done := make(chan error, 1)
		b.Client(bus.ClientConfig{Type: bus.MemoryTransportType, Pin: pin.Pin{"cmd": "x"}}, func(err error, _ *bus.Bus) {
			done <- err
		})
		require.NoError(t, <-done)
		b.Add(pin.Pin{"cmd": "x"}, echo("local"))

		out, err := act(t, b, bus.Message{"cmd": "x"})
		require.NoError(t, err)
		assert.Equal(t, "local", out)
	})

	t.Run("remote timeout", func(t *testing.T) {
		t.Parallel()

		hub := bus.NewMemoryHub(1)
		b := bus.New(bus.WithLogger(quietLogger()))
		require.NoError(t, b.Use(bus.Memory(hub, 1)))

		done := make(chan error, 1)
		b.Client(bus.ClientConfig{
			Type:    bus.MemoryTransportType,
			Pin:     pin.Pin{"cmd": "nobody"},
			Timeout: 20 * time.Millisecond,
		}, func(err error, _ *bus.Bus) {
			done <- err
		})
		require.NoError(t, <-done)

		_, err := act(t, b, bus.Message{"cmd": "nobody"})
		assert.ErrorIs(t, err, bus.ErrTimeout)
	})
}

func TestClose(t *testing.T) {
	t.Parallel()

	b := bus.New(bus.WithLogger(quietLogger()))
	b.Add(pin.Pin{"cmd": "x"}, echo("x"))

	done := make(chan error, 1)
	b.Close(func(err error) { done <- err })
	require.NoError(t, <-done)
	assert.True(t, b.Closed())

	b.Close(func(err error) { done <- err })
	require.NoError(t, <-done)

	_, err := act(t, b, bus.Message{"cmd": "x"})
	assert.ErrorIs(t, err, bus.ErrClosed)
}

type healthTransport struct {
	err error
}

func (h *healthTransport) Listen(context.Context, bus.ListenConfig, bus.ServeFunc) error { return nil }
func (h *healthTransport) Dial(context.Context, bus.ClientConfig) (bus.Sender, error) {
	return nil, errors.New("not supported")
}
func (h *healthTransport) Close() error { return nil }
func (h *healthTransport) Healthcheck(context.Context) error { return h.err }

func TestHealthcheck(t *testing.T) {
	t.Parallel()

	down := errors.New("broker down")
	b := bus.New(bus.WithLogger(quietLogger()))
	require.NoError(t, b.Use(bus.Memory(bus.NewMemoryHub(1), 1)))
	require.NoError(t, b.Healthcheck(context.Background()))

	require.NoError(t, b.RegisterTransport("flaky", &healthTransport{err: down}))
	assert.ErrorIs(t, b.Healthcheck(context.Background()), down)

	done := make(chan error, 1)
	b.Close(func(err error) { done <- err })
	require.NoError(t, <-done)
	assert.ErrorIs(t, b.Healthcheck(context.Background()), bus.ErrClosed)
}
