// Package redis implements a bus transport over Redis lists.
//
// Each listened pin owns a request list. Clients LPUSH requests onto it and
// block on a per-request reply list; listeners BRPOP requests, serve them
// and LPUSH the response onto the reply list, which expires after ReplyTTL.
//
//	b.Use(redis.Plugin(redis.WithClient(client)))
//	b.Listen(bus.ListenConfig{Type: redis.TransportType, Pin: p})
package redis

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/core/logger"
	redisdb "github.com/dmitrymomot/actkit/integration/database/redis"
)

// TransportType is the bus transport type registered by Plugin.
const TransportType = "redis"

// Config holds transport settings.
type Config struct {
	Prefix       string        `env:"REDIS_TRANSPORT_PREFIX" envDefault:"actkit"`
	Workers      int           `env:"REDIS_TRANSPORT_WORKERS" envDefault:"4"`
	PollInterval time.Duration `env:"REDIS_TRANSPORT_POLL_INTERVAL" envDefault:"1s"`
	ReplyTTL     time.Duration `env:"REDIS_TRANSPORT_REPLY_TTL" envDefault:"1m"`
	SendTimeout  time.Duration `env:"REDIS_TRANSPORT_SEND_TIMEOUT" envDefault:"5s"`
}

func (c Config) applyDefaults() Config {
	if c.Prefix == "" {
		c.Prefix = "actkit"
	}
	if c.Workers <= 0 {
		c.Workers = 4
	}
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.ReplyTTL <= 0 {
		c.ReplyTTL = time.Minute
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = 5 * time.Second
	}
	return c
}

// Option configures the transport.
type Option func(*Transport)

// WithClient uses an existing client for every listener and sender.
// The transport does not close it.
func WithClient(client redis.UniversalClient) Option {
	return func(t *Transport) {
		t.client = client
	}
}

// WithConfig sets the transport settings.
func WithConfig(cfg Config) Option {
	return func(t *Transport) {
		t.config = cfg.applyDefaults()
	}
}

// WithConnectConfig sets how clients are created. Its ConnectionURL is used
// when neither a shared client nor an endpoint URL is given.
func WithConnectConfig(cfg redisdb.Config) Option {
	return func(t *Transport) {
		t.connect = cfg
	}
}

// WithLogger sets the logger. Default is the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport is a bus.Transport backed by Redis.
type Transport struct {
	client  redis.UniversalClient
	config  Config
	connect redisdb.Config
	logger  *slog.Logger

	mu    sync.Mutex
	owned map[string]*redis.Client
	wg    sync.WaitGroup
}

// New creates a transport.
func New(opts ...Option) *Transport {
	t := &Transport{
		config:  Config{}.applyDefaults(),
		connect: redisdb.Config{RetryAttempts: 3, RetryInterval: time.Second, ConnectTimeout: 30 * time.Second},
		owned:   make(map[string]*redis.Client),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Plugin registers the transport with a bus.
func Plugin(opts ...Option) bus.Plugin {
	return bus.NewPlugin("redis-transport", func(b *bus.Bus) error {
		t := New(opts...)
		if t.logger == nil {
			t.logger = b.Logger()
		}
		return b.RegisterTransport(TransportType, t)
	})
}

// RequestKey returns the request list of a pin.
func (t *Transport) RequestKey(p string) string {
	return fmt.Sprintf("%s:act:%s", t.config.Prefix, p)
}

func (t *Transport) replyKey(id string) string {
	return fmt.Sprintf("%s:reply:%s", t.config.Prefix, id)
}

// clientFor returns the shared client, or a client connected to url.
// An empty url falls back to the shared client, then to the connect config.
// Connections are reused per url.
func (t *Transport) clientFor(ctx context.Context, url string) (redis.UniversalClient, error) {
	if url == "" {
		if t.client != nil {
			return t.client, nil
		}
		url = t.connect.ConnectionURL
	}
	if url == "" {
		return nil, ErrNoClient
	}

	t.mu.Lock()
	defer t.mu.Unlock()
	if c, ok := t.owned[url]; ok {
		return c, nil
	}

	cfg := t.connect
	cfg.ConnectionURL = url
	client, err := redisdb.Connect(ctx, cfg)
	if err != nil {
		return nil, err
	}
	t.owned[url] = client
	return client, nil
}

// Healthcheck pings every client the transport uses.
func (t *Transport) Healthcheck(ctx context.Context) error {
	t.mu.Lock()
	clients := make([]redis.UniversalClient, 0, len(t.owned)+1)
	for _, c := range t.owned {
		clients = append(clients, c)
	}
	t.mu.Unlock()
	if t.client != nil {
		clients = append(clients, t.client)
	}

	var errs []error
	for _, c := range clients {
		if err := redisdb.Healthcheck(c)(ctx); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// Listen starts Workers consumers on the request list of cfg.Pin.
func (t *Transport) Listen(ctx context.Context, cfg bus.ListenConfig, serve bus.ServeFunc) error {
	client, err := t.clientFor(ctx, cfg.URL)
	if err != nil {
		return err
	}

	key := t.RequestKey(cfg.Pin.String())
	for range t.config.Workers {
		t.wg.Add(1)
		go t.consume(ctx, client, key, serve)
	}
	return nil
}

func (t *Transport) consume(ctx context.Context, client redis.UniversalClient, key string, serve bus.ServeFunc) {
	defer t.wg.Done()

	for {
		if ctx.Err() != nil {
			return
		}

		res, err := client.BRPop(ctx, t.config.PollInterval, key).Result()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				continue
			}
			if ctx.Err() != nil {
				return
			}
			t.logger.ErrorContext(ctx, "redis transport receive failed",
				slog.String("key", key),
				logger.Error(err))
			select {
			case <-ctx.Done():
				return
			case <-time.After(t.config.PollInterval):
			}
			continue
		}

		// res is [key, value]
		req, resp, err := bus.Handle(ctx, serve, []byte(res[1]))
		if err != nil {
			t.logger.ErrorContext(ctx, "dropping undecodable request",
				slog.String("key", key),
				logger.Error(err))
			continue
		}
		if req.ReplyTo == "" {
			continue
		}

		_, err = client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.LPush(ctx, req.ReplyTo, resp)
			pipe.Expire(ctx, req.ReplyTo, t.config.ReplyTTL)
			return nil
		})
		if err != nil {
			t.logger.ErrorContext(ctx, "redis transport reply failed",
				slog.String("reply_to", req.ReplyTo),
				logger.Error(err))
		}
	}
}

// Dial returns a sender pushing to the request list of cfg.Pin.
func (t *Transport) Dial(ctx context.Context, cfg bus.ClientConfig) (bus.Sender, error) {
	client, err := t.clientFor(ctx, cfg.URL)
	if err != nil {
		return nil, err
	}
	return &sender{t: t, client: client, key: t.RequestKey(cfg.Pin.String())}, nil
}

// Close waits for consumers to stop and closes clients the transport created.
func (t *Transport) Close() error {
	t.wg.Wait()

	t.mu.Lock()
	owned := t.owned
	t.owned = make(map[string]*redis.Client)
	t.mu.Unlock()

	var errs []error
	for _, c := range owned {
		if err := c.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

type sender struct {
	t      *Transport
	client redis.UniversalClient
	key    string
}

func (s *sender) Send(ctx context.Context, msg bus.Message) (any, error) {
	req := bus.NewRequest(msg, "")
	req.ReplyTo = s.t.replyKey(req.ID)
	data, err := bus.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	if err := s.client.LPush(ctx, s.key, data).Err(); err != nil {
		return nil, fmt.Errorf("push request: %w", err)
	}

	wait := s.t.config.SendTimeout
	if deadline, ok := ctx.Deadline(); ok {
		wait = time.Until(deadline)
	}
	if wait <= 0 {
		return nil, fmt.Errorf("%w: %w", bus.ErrTimeout, context.DeadlineExceeded)
	}

	res, err := s.client.BLPop(ctx, wait, req.ReplyTo).Result()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("%w: no reply within %s", bus.ErrTimeout, wait)
		}
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("wait reply: %w", err)
	}
	return bus.DecodeResponse([]byte(res[1]))
}

func (s *sender) Close() error {
	return nil
}
