package nats_test

import (
	"bytes"
	"context"
	"encoding/hex"
	"log/slog"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/integration/transport/nats"
	"github.com/dmitrymomot/actkit/pkg/pin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSubject(t *testing.T) {
	t.Parallel()

	tr := nats.New(nats.WithConfig(nats.Config{SubjectPrefix: "svc"}))
	p := pin.Pin{"role": "user", "cmd": "create account"}

	subject := tr.Subject(p)
	require.True(t, strings.HasPrefix(subject, "svc.act."))
	assert.NotContains(t, subject, " ")

	raw, err := hex.DecodeString(strings.TrimPrefix(subject, "svc.act."))
	require.NoError(t, err)
	assert.Equal(t, p.String(), string(raw))

	assert.Equal(t, subject, tr.Subject(pin.Pin{"cmd": "create account", "role": "user"}))
}

func TestConnectFailure(t *testing.T) {
	t.Parallel()

	tr := nats.New(nats.WithConfig(nats.Config{
		URL:            "nats://127.0.0.1:1",
		ConnectTimeout: 200 * time.Millisecond,
	}))
	_, err := tr.Dial(context.Background(), bus.ClientConfig{Pin: pin.Pin{"a": "b"}})
	assert.ErrorIs(t, err, nats.ErrConnect)
	assert.NoError(t, tr.Close())
}

// TestRoundTrip needs a running server: NATS_TEST_URL=nats://localhost:4222
func TestRoundTrip(t *testing.T) {
	url := os.Getenv("NATS_TEST_URL")
	if url == "" {
		t.Skip("NATS_TEST_URL not set")
	}

	logger := slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
	cfg := nats.Config{URL: url, SubjectPrefix: "actkit-test"}
	p := pin.Pin{"role": "nats-test", "cmd": "upper"}

	server := bus.New(bus.WithLogger(logger))
	require.NoError(t, server.Use(nats.Plugin(nats.WithConfig(cfg))))
	server.Add(p, func(_ context.Context, msg bus.Message, reply bus.Reply) {
		reply(nil, strings.ToUpper(msg["text"].(string)))
	})
	server.Listen(bus.ListenConfig{Type: nats.TransportType, Pin: p})

	ready := make(chan error, 1)
	server.Ready(func(err error) { ready <- err })
	require.NoError(t, <-ready)

	caller := bus.New(bus.WithLogger(logger))
	require.NoError(t, caller.Use(nats.Plugin(nats.WithConfig(cfg))))
	dialed := make(chan error, 1)
	caller.Client(bus.ClientConfig{Type: nats.TransportType, Pin: p, Timeout: 2 * time.Second}, func(err error, _ *bus.Bus) {
		dialed <- err
	})
	require.NoError(t, <-dialed)

	type result struct {
		out any
		err error
	}
	done := make(chan result, 1)
	caller.Act(context.Background(), bus.Message{"role": "nats-test", "cmd": "upper", "text": "hi"}, func(err error, out any) {
		done <- result{out, err}
	})
	r := <-done
	require.NoError(t, r.err)
	assert.Equal(t, "HI", r.out)

	closed := make(chan error, 2)
	caller.Close(func(err error) { closed <- err })
	server.Close(func(err error) { closed <- err })
	require.NoError(t, <-closed)
	require.NoError(t, <-closed)
}
