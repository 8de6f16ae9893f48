// Package service loads commands onto an action bus and exposes the bus
// over the configured transport.
//
//	svc, err := service.New(service.WithLogger(log))
//	if err != nil {
//		return err
//	}
//	err = svc.LoadCommand(service.Command{
//		Name:    "ping",
//		Pin:     pin.Raw("cmd:ping"),
//		Handler: action.Typed(ping),
//	})
//	...
//	if _, err := svc.Listen(ctx); err != nil {
//		return err
//	}
//	defer svc.Close(context.Background())
package service

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/dmitrymomot/actkit/core/action"
	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/core/config"
	"github.com/dmitrymomot/actkit/core/deferred"
	"github.com/dmitrymomot/actkit/core/dto"
	"github.com/dmitrymomot/actkit/core/logger"
	"github.com/dmitrymomot/actkit/core/registry"
	"github.com/dmitrymomot/actkit/integration/transport/amqp"
	"github.com/dmitrymomot/actkit/integration/transport/nats"
	"github.com/dmitrymomot/actkit/integration/transport/redis"
	"github.com/dmitrymomot/actkit/pkg/async"
	"github.com/dmitrymomot/actkit/pkg/pin"
)

// Registry keys used by the service.
const (
	BusKey       = "bus"
	clientPrefix = "client-"
)

// Command is a handler loaded under the service pin.
type Command struct {
	Name    string
	Pin     pin.Input
	Handler action.HandlerFunc
	Input   dto.Binding
	Output  dto.Binding
}

// Service owns a bus, its registry and the command wrapper.
type Service struct {
	config    Config
	bus       *bus.Bus
	adapter   *deferred.Adapter[*bus.Bus]
	registry  *registry.Registry
	wrapper   *action.Wrapper
	logger    *slog.Logger
	pin       pin.Pin
	transport bus.Plugin

	configured bool
	listenOnce sync.Once
	listenErr  error
	clientMu   sync.Mutex
	dialing    map[string]*async.Future[*bus.Bus]
}

// Option configures a Service.
type Option func(*Service) error

// WithConfig sets the configuration instead of loading it from the environment.
func WithConfig(cfg Config) Option {
	return func(s *Service) error {
		s.config = cfg
		s.configured = true
		return nil
	}
}

// WithLogger sets the logger used by the service, its bus and its commands.
func WithLogger(l *slog.Logger) Option {
	return func(s *Service) error {
		if l == nil {
			return fmt.Errorf("%w: logger", ErrNilOption)
		}
		s.logger = l
		return nil
	}
}

// WithRegistry shares a registry with other components.
func WithRegistry(reg *registry.Registry) Option {
	return func(s *Service) error {
		if reg == nil {
			return fmt.Errorf("%w: registry", ErrNilOption)
		}
		s.registry = reg
		return nil
	}
}

// WithBus uses an existing bus.
func WithBus(b *bus.Bus) Option {
	return func(s *Service) error {
		if b == nil {
			return fmt.Errorf("%w: bus", ErrNilOption)
		}
		s.bus = b
		return nil
	}
}

// WithTransport sets the plugin registering the configured transport.
// Without it the plugin is derived from Config.Transport.
func WithTransport(p bus.Plugin) Option {
	return func(s *Service) error {
		if p == nil {
			return fmt.Errorf("%w: transport", ErrNilOption)
		}
		s.transport = p
		return nil
	}
}

// New creates a service. Configuration is loaded from the environment
// unless WithConfig is given.
func New(opts ...Option) (*Service, error) {
	s := &Service{dialing: make(map[string]*async.Future[*bus.Bus])}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}

	if !s.configured {
		if err := config.Load(&s.config); err != nil {
			return nil, err
		}
	}
	s.config = s.config.withDefaults()

	p, err := pin.Normalize(pin.Raw(s.config.Pin))
	if err != nil {
		return nil, fmt.Errorf("service pin: %w", err)
	}
	s.pin = p

	if s.logger == nil {
		s.logger = logger.New(
			logger.WithLevelName(s.config.LogLevel),
			logger.WithAttr(logger.Component(s.config.Name)),
			logger.WithContextExtractors(logger.CorrelationIDExtractor),
		)
	}
	if s.registry == nil {
		s.registry = registry.New()
	}
	if s.bus == nil {
		s.bus = bus.New(
			bus.WithLogger(s.logger),
			bus.WithShutdownTimeout(s.config.ShutdownTimeout),
		)
	}
	if s.transport == nil && s.config.Transport != "" {
		t, err := s.transportPlugin()
		if err != nil {
			return nil, err
		}
		s.transport = t
	}

	s.adapter = deferred.New[*bus.Bus](s.bus)
	s.wrapper = action.New(action.WithLogger(s.logger), action.WithRegistry(s.registry))
	s.registry.Register("logger", s.logger)
	return s, nil
}

func (s *Service) transportPlugin() (bus.Plugin, error) {
	switch s.config.Transport {
	case amqp.TransportType:
		return amqp.Plugin(amqp.WithConfig(s.config.AMQP), amqp.WithLogger(s.logger)), nil
	case redis.TransportType:
		return redis.Plugin(
			redis.WithConfig(s.config.RedisTransport),
			redis.WithConnectConfig(s.config.Redis),
			redis.WithLogger(s.logger),
		), nil
	case nats.TransportType:
		return nats.Plugin(nats.WithConfig(s.config.NATS), nats.WithLogger(s.logger)), nil
	case bus.MemoryTransportType:
		return bus.Memory(bus.NewMemoryHub(0), 1), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownTransport, s.config.Transport)
	}
}

// LoadCommand registers cmd under the service pin merged with cmd.Pin.
func (s *Service) LoadCommand(cmd Command) error {
	if cmd.Handler == nil {
		return fmt.Errorf("%w: %s has no handler", ErrInvalidCommand, cmd.Name)
	}
	p, err := pin.Merge(s.pin, cmd.Pin)
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrInvalidCommand, cmd.Name, err)
	}

	var opts []action.WrapOption
	if !cmd.Input.IsZero() {
		opts = append(opts, action.InputDTO(cmd.Input.Type, cmd.Input.Subtype))
	}
	if !cmd.Output.IsZero() {
		opts = append(opts, action.OutputDTO(cmd.Output.Type, cmd.Output.Subtype))
	}

	s.bus.Add(p, s.wrapper.Wrap(cmd.Name, cmd.Handler, opts...))
	s.logger.Info("command loaded", logger.Command(cmd.Name), logger.Pattern(p.String()))
	return nil
}

// Listen enables fire-and-forget acts, starts the configured transport and
// waits until the bus is ready. The bus is registered as BusKey.
// The transport is started once; later calls only wait for readiness.
func (s *Service) Listen(ctx context.Context) (*bus.Bus, error) {
	s.listenOnce.Do(func() { s.listenErr = s.start() })
	if s.listenErr != nil {
		return nil, s.listenErr
	}

	if _, err := s.adapter.Ready().AwaitContext(ctx); err != nil {
		return nil, err
	}

	s.registry.Register(BusKey, s.bus)
	s.logger.InfoContext(ctx, "service started",
		logger.Transport(s.config.Transport),
		logger.Pattern(s.pin.String()))
	return s.bus, nil
}

func (s *Service) start() error {
	if err := s.bus.Use(bus.FireAndForget()); err != nil {
		return err
	}
	if s.transport == nil {
		return nil
	}
	if err := s.bus.Use(s.transport); err != nil {
		return err
	}
	s.bus.Listen(s.config.listenConfig(s.pin))
	return nil
}

// Client returns a bus that routes messages matching p to their remote
// listener. Clients are cached per pin. Without a transport the service bus
// itself is returned.
//
// ctx bounds the wait only. A dial outlives a canceled ctx, and its client
// is cached for the next call.
func (s *Service) Client(ctx context.Context, p pin.Input) (*bus.Bus, error) {
	target, err := pin.Normalize(p)
	if err != nil {
		return nil, err
	}
	key := clientPrefix + target.String()

	f, err := s.acquire(key, target)
	if err != nil {
		return nil, err
	}
	return f.AwaitContext(ctx)
}

// acquire returns the cached client for key, the dial already in flight for
// it, or starts a new dial.
func (s *Service) acquire(key string, target pin.Pin) (*async.Future[*bus.Bus], error) {
	s.clientMu.Lock()
	defer s.clientMu.Unlock()

	if c, ok := registry.Lookup[*bus.Bus](s.registry, key); ok {
		return async.Resolved(c), nil
	}
	if f, ok := s.dialing[key]; ok {
		return f, nil
	}

	cfg := s.config.clientConfig(target)
	if s.transport == nil {
		cfg.Type = ""
	} else if err := s.bus.Use(s.transport); err != nil {
		return nil, err
	}

	f, resolve, reject := async.Promise[*bus.Bus]()
	s.dialing[key] = f
	go func() {
		c, err := s.adapter.AcquireClient(cfg).Await()

		s.clientMu.Lock()
		delete(s.dialing, key)
		if err == nil {
			s.registry.Register(key, c)
		}
		s.clientMu.Unlock()

		if err != nil {
			s.logger.Error("client dial failed", logger.Pattern(target.String()), logger.Error(err))
			reject(err)
			return
		}
		resolve(c)
	}()
	return f, nil
}

// Act sends msg through the bus and unwraps the command envelope.
func (s *Service) Act(ctx context.Context, msg bus.Message) (any, error) {
	return s.adapter.Invoke(ctx, msg).AwaitContext(ctx)
}

// Close shuts the bus down.
func (s *Service) Close(ctx context.Context) error {
	_, err := s.adapter.Shutdown().AwaitContext(ctx)
	return err
}

// Bus returns the service bus.
func (s *Service) Bus() *bus.Bus {
	return s.bus
}

// Registry returns the service registry.
func (s *Service) Registry() *registry.Registry {
	return s.registry
}

// Logger returns the service logger.
func (s *Service) Logger() *slog.Logger {
	return s.logger
}

// Config returns the effective configuration.
func (s *Service) Config() Config {
	return s.config
}

// Healthcheck reports the state of the bus and its transports.
func (s *Service) Healthcheck(ctx context.Context) error {
	return s.bus.Healthcheck(ctx)
}
