// Package nats implements a bus transport over NATS request/reply.
//
// A listener joins a queue group on the subject derived from its pin, so
// each request is served by one listener of the group. Clients use
// RequestWithContext on the same subject.
//
//	b.Use(nats.Plugin(nats.WithConfig(nats.Config{URL: "nats://localhost:4222"})))
//	b.Listen(bus.ListenConfig{Type: nats.TransportType, Pin: p, Name: "users"})
package nats

import (
	"context"
	"encoding/hex"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/core/logger"
	"github.com/dmitrymomot/actkit/pkg/pin"
)

// TransportType is the bus transport type registered by Plugin.
const TransportType = "nats"

// Config holds NATS transport settings.
type Config struct {
	URL            string        `env:"NATS_URL" envDefault:"nats://localhost:4222"`
	SubjectPrefix  string        `env:"NATS_SUBJECT_PREFIX" envDefault:"actkit"`
	QueueGroup     string        `env:"NATS_QUEUE_GROUP" envDefault:"actkit"`
	ConnectTimeout time.Duration `env:"NATS_CONNECT_TIMEOUT" envDefault:"5s"`
}

func (c Config) applyDefaults() Config {
	if c.URL == "" {
		c.URL = nats.DefaultURL
	}
	if c.SubjectPrefix == "" {
		c.SubjectPrefix = "actkit"
	}
	if c.QueueGroup == "" {
		c.QueueGroup = "actkit"
	}
	if c.ConnectTimeout <= 0 {
		c.ConnectTimeout = 5 * time.Second
	}
	return c
}

var (
	// ErrConnect is returned when the NATS server cannot be reached.
	ErrConnect = errors.New("nats: failed to connect")

	// ErrUnhealthy is reported by Healthcheck for a lost connection.
	ErrUnhealthy = errors.New("nats: connection unhealthy")
)

// Option configures the transport.
type Option func(*Transport)

// WithConfig sets the transport settings.
func WithConfig(cfg Config) Option {
	return func(t *Transport) {
		t.config = cfg.applyDefaults()
	}
}

// WithConn uses an existing connection for endpoints without their own URL.
// The transport does not close it.
func WithConn(conn *nats.Conn) Option {
	return func(t *Transport) {
		t.shared = conn
	}
}

// WithLogger sets the logger. Default is the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport is a bus.Transport backed by NATS.
type Transport struct {
	config Config
	shared *nats.Conn
	logger *slog.Logger

	mu    sync.Mutex
	conns map[string]*nats.Conn
	subs  []*nats.Subscription
}

// New creates a transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		config: Config{}.applyDefaults(),
		conns:  make(map[string]*nats.Conn),
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.logger == nil {
		t.logger = slog.Default()
	}
	return t
}

// Plugin registers the transport with a bus.
func Plugin(opts ...Option) bus.Plugin {
	return bus.NewPlugin("nats-transport", func(b *bus.Bus) error {
		t := New(append([]Option{WithLogger(b.Logger())}, opts...)...)
		return b.RegisterTransport(TransportType, t)
	})
}

// Subject returns the subject of a pin. The canonical pin form is hex
// encoded since NATS subjects cannot carry spaces or wildcards.
func (t *Transport) Subject(p pin.Pin) string {
	return t.config.SubjectPrefix + ".act." + hex.EncodeToString([]byte(p.String()))
}

// conn returns the connection for url, reusing connections per URL.
func (t *Transport) conn(url string) (*nats.Conn, error) {
	if url == "" {
		if t.shared != nil {
			return t.shared, nil
		}
		url = t.config.URL
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if c, ok := t.conns[url]; ok && !c.IsClosed() {
		return c, nil
	}

	c, err := nats.Connect(url,
		nats.Timeout(t.config.ConnectTimeout),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				t.logger.Warn("nats disconnected", logger.Error(err))
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			t.logger.Info("nats reconnected")
		}),
	)
	if err != nil {
		return nil, errors.Join(ErrConnect, err)
	}
	t.conns[url] = c
	return c, nil
}

// Listen subscribes the queue group to the pin subject.
func (t *Transport) Listen(ctx context.Context, cfg bus.ListenConfig, serve bus.ServeFunc) error {
	c, err := t.conn(cfg.URL)
	if err != nil {
		return err
	}

	group := t.config.QueueGroup
	if cfg.Queue != "" {
		group = cfg.Queue
	} else if cfg.Name != "" {
		group = cfg.Name
	}

	subject := t.Subject(cfg.Pin)
	sub, err := c.QueueSubscribe(subject, group, func(m *nats.Msg) {
		_, resp, err := bus.Handle(ctx, serve, m.Data)
		if err != nil {
			t.logger.ErrorContext(ctx, "dropping undecodable request",
				slog.String("subject", m.Subject),
				logger.Error(err))
			return
		}
		if m.Reply == "" {
			return
		}
		if err := m.Respond(resp); err != nil {
			t.logger.ErrorContext(ctx, "nats reply failed",
				slog.String("subject", m.Subject),
				logger.Error(err))
		}
	})
	if err != nil {
		return fmt.Errorf("nats: subscribe %s: %w", subject, err)
	}
	if err := c.Flush(); err != nil {
		_ = sub.Unsubscribe()
		return fmt.Errorf("nats: flush: %w", err)
	}

	t.mu.Lock()
	t.subs = append(t.subs, sub)
	t.mu.Unlock()

	go func() {
		<-ctx.Done()
		_ = sub.Unsubscribe()
	}()

	t.logger.InfoContext(ctx, "nats listener started",
		slog.String("subject", subject),
		slog.String("queue", group))
	return nil
}

// Dial returns a sender issuing requests on the pin subject.
func (t *Transport) Dial(_ context.Context, cfg bus.ClientConfig) (bus.Sender, error) {
	c, err := t.conn(cfg.URL)
	if err != nil {
		return nil, err
	}
	return &sender{conn: c, subject: t.Subject(cfg.Pin)}, nil
}

// Healthcheck reports connections that are not connected.
func (t *Transport) Healthcheck(_ context.Context) error {
	t.mu.Lock()
	conns := make([]*nats.Conn, 0, len(t.conns)+1)
	for _, c := range t.conns {
		conns = append(conns, c)
	}
	t.mu.Unlock()
	if t.shared != nil {
		conns = append(conns, t.shared)
	}

	var errs []error
	for _, c := range conns {
		if !c.IsConnected() {
			errs = append(errs, fmt.Errorf("%w: %s is %s", ErrUnhealthy, c.ConnectedUrlRedacted(), c.Status()))
		}
	}
	return errors.Join(errs...)
}

// Close drains subscriptions and closes connections the transport opened.
func (t *Transport) Close() error {
	t.mu.Lock()
	subs := t.subs
	conns := t.conns
	t.subs = nil
	t.conns = make(map[string]*nats.Conn)
	t.mu.Unlock()

	var errs []error
	for _, s := range subs {
		if err := s.Unsubscribe(); err != nil && !errors.Is(err, nats.ErrConnectionClosed) && !errors.Is(err, nats.ErrBadSubscription) {
			errs = append(errs, err)
		}
	}
	for _, c := range conns {
		c.Close()
	}
	return errors.Join(errs...)
}

type sender struct {
	conn    *nats.Conn
	subject string
}

func (s *sender) Send(ctx context.Context, msg bus.Message) (any, error) {
	data, err := bus.EncodeRequest(bus.NewRequest(msg, ""))
	if err != nil {
		return nil, err
	}

	if _, ok := ctx.Deadline(); !ok {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, nats.DefaultTimeout)
		defer cancel()
	}

	resp, err := s.conn.RequestWithContext(ctx, s.subject, data)
	if err != nil {
		if errors.Is(err, nats.ErrNoResponders) {
			return nil, fmt.Errorf("%w: %s", bus.ErrNoHandler, s.subject)
		}
		return nil, err
	}
	return bus.DecodeResponse(resp.Data)
}

func (s *sender) Close() error {
	return nil
}
