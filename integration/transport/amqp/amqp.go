// Package amqp implements a bus transport over RabbitMQ.
//
// Every endpoint shares one topic exchange. A listener declares a queue
// bound with the canonical form of its pin as routing key; a client
// publishes requests under the same key with a reply-to queue and a
// correlation id, and waits for the response on its exclusive reply queue.
//
//	b.Use(amqp.Plugin(amqp.WithConfig(cfg)))
//	b.Listen(bus.ListenConfig{Type: amqp.TransportType, Pin: p, Name: "users"})
//	b.Client(bus.ClientConfig{Type: amqp.TransportType, Pin: p}, cb)
package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/core/logger"
	"github.com/dmitrymomot/actkit/pkg/pin"
)

// TransportType is the bus transport type registered by Plugin.
const TransportType = "amqp"

// Option configures the transport.
type Option func(*Transport)

// WithConfig sets the transport settings.
func WithConfig(cfg Config) Option {
	return func(t *Transport) {
		t.config = cfg.applyDefaults()
	}
}

// WithLogger sets the logger. Default is the bus logger.
func WithLogger(logger *slog.Logger) Option {
	return func(t *Transport) {
		t.logger = logger
	}
}

// Transport is a bus.Transport backed by RabbitMQ.
type Transport struct {
	config Config
	logger *slog.Logger

	mu    sync.Mutex
	conns []*amqp.Connection
	wg    sync.WaitGroup
}

// New creates a transport.
func New(opts ...Option) *Transport {
	t := &Transport{config: Config{}.applyDefaults()}
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
	return bus.NewPlugin("amqp-transport", func(b *bus.Bus) error {
		t := New(append([]Option{WithLogger(b.Logger())}, opts...)...)
		return b.RegisterTransport(TransportType, t)
	})
}

// RoutingKey returns the routing key of a pin.
func RoutingKey(p pin.Pin) string {
	return p.String()
}

// QueueName returns the queue a listener consumes from: the configured
// queue, else the listener name, else a name derived from the pin.
func (t *Transport) QueueName(cfg bus.ListenConfig) string {
	switch {
	case cfg.Queue != "":
		return cfg.Queue
	case cfg.Name != "":
		return t.config.QueuePrefix + "." + cfg.Name
	default:
		return t.config.QueuePrefix + "." + RoutingKey(cfg.Pin)
	}
}

func (t *Transport) exchange(name string) string {
	if name != "" {
		return name
	}
	return t.config.Exchange
}

func (t *Transport) dial(url string) (*amqp.Connection, *amqp.Channel, error) {
	if url == "" {
		url = t.config.URL
	}

	conn, err := amqp.DialConfig(url, amqp.Config{Dial: amqp.DefaultDial(t.config.DialTimeout)})
	if err != nil {
		return nil, nil, errors.Join(ErrConnect, err)
	}
	ch, err := conn.Channel()
	if err != nil {
		_ = conn.Close()
		return nil, nil, errors.Join(ErrConnect, err)
	}

	t.mu.Lock()
	t.conns = append(t.conns, conn)
	t.mu.Unlock()
	return conn, ch, nil
}

func (t *Transport) declareExchange(ch *amqp.Channel, name string) error {
	err := ch.ExchangeDeclare(
		name,             // name
		"topic",          // type
		t.config.Durable, // durable
		false,            // auto-deleted
		false,            // internal
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return fmt.Errorf("%w: exchange %s: %w", ErrTopology, name, err)
	}
	return nil
}

// Listen declares the listener queue, binds it and starts consuming.
func (t *Transport) Listen(ctx context.Context, cfg bus.ListenConfig, serve bus.ServeFunc) error {
	_, ch, err := t.dial(cfg.URL)
	if err != nil {
		return err
	}

	if err := ch.Qos(t.config.PrefetchCount, 0, false); err != nil {
		return fmt.Errorf("%w: qos: %w", ErrTopology, err)
	}

	exchange := t.exchange(cfg.Exchange)
	if err := t.declareExchange(ch, exchange); err != nil {
		return err
	}

	q, err := ch.QueueDeclare(
		t.QueueName(cfg), // name
		t.config.Durable, // durable
		false,            // auto-delete when unused
		false,            // exclusive
		false,            // no-wait
		nil,              // arguments
	)
	if err != nil {
		return fmt.Errorf("%w: queue: %w", ErrTopology, err)
	}

	key := RoutingKey(cfg.Pin)
	if err := ch.QueueBind(q.Name, key, exchange, false, nil); err != nil {
		return fmt.Errorf("%w: bind %s: %w", ErrTopology, key, err)
	}

	deliveries, err := ch.Consume(
		q.Name, // queue
		"",     // consumer tag (auto-generated)
		false,  // auto-ack
		false,  // exclusive
		false,  // no-local
		false,  // no-wait
		nil,    // args
	)
	if err != nil {
		return fmt.Errorf("%w: consume: %w", ErrTopology, err)
	}

	t.logger.InfoContext(ctx, "amqp listener started",
		slog.String("queue", q.Name),
		slog.String("exchange", exchange),
		slog.String("binding", key))

	t.wg.Add(1)
	go t.consume(ctx, ch, deliveries, serve)
	return nil
}

func (t *Transport) consume(ctx context.Context, ch *amqp.Channel, deliveries <-chan amqp.Delivery, serve bus.ServeFunc) {
	defer t.wg.Done()

	var inflight sync.WaitGroup
	defer inflight.Wait()

	for {
		select {
		case <-ctx.Done():
			return
		case d, ok := <-deliveries:
			if !ok {
				return
			}
			inflight.Add(1)
			go func() {
				defer inflight.Done()
				t.handle(ctx, ch, d, serve)
			}()
		}
	}
}

func (t *Transport) handle(ctx context.Context, ch *amqp.Channel, d amqp.Delivery, serve bus.ServeFunc) {
	req, resp, err := bus.Handle(ctx, serve, d.Body)
	if err != nil {
		t.logger.ErrorContext(ctx, "dropping undecodable request",
			slog.Uint64("delivery_tag", d.DeliveryTag),
			logger.Error(err))
		_ = d.Nack(false, false)
		return
	}

	replyTo := d.ReplyTo
	if replyTo == "" {
		replyTo = req.ReplyTo
	}
	if replyTo != "" {
		correlationID := d.CorrelationId
		if correlationID == "" {
			correlationID = req.ID
		}
		err := ch.PublishWithContext(ctx,
			"",      // default exchange routes by queue name
			replyTo, // routing key
			false,   // mandatory
			false,   // immediate
			amqp.Publishing{
				ContentType:   "application/json",
				CorrelationId: correlationID,
				Timestamp:     time.Now(),
				Body:          resp,
			})
		if err != nil {
			t.logger.ErrorContext(ctx, "amqp reply failed",
				slog.String("reply_to", replyTo),
				logger.Error(err))
		}
	}

	if err := d.Ack(false); err != nil {
		t.logger.ErrorContext(ctx, "failed to ack message",
			slog.Uint64("delivery_tag", d.DeliveryTag),
			logger.Error(err))
	}
}

// Dial opens a channel with an exclusive reply queue.
func (t *Transport) Dial(ctx context.Context, cfg bus.ClientConfig) (bus.Sender, error) {
	conn, ch, err := t.dial(cfg.URL)
	if err != nil {
		return nil, err
	}

	exchange := t.exchange(cfg.Exchange)
	if err := t.declareExchange(ch, exchange); err != nil {
		return nil, err
	}

	q, err := ch.QueueDeclare(
		"",    // server-generated name
		false, // durable
		true,  // auto-delete
		true,  // exclusive
		false, // no-wait
		nil,   // arguments
	)
	if err != nil {
		return nil, fmt.Errorf("%w: reply queue: %w", ErrTopology, err)
	}

	replies, err := ch.Consume(q.Name, "", true, true, false, false, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: consume replies: %w", ErrTopology, err)
	}

	s := newSender(conn, ch, exchange, RoutingKey(cfg.Pin), q.Name, t.logger)
	go s.dispatch(replies)
	return s, nil
}

// Healthcheck reports connections closed by the broker.
func (t *Transport) Healthcheck(_ context.Context) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, c := range t.conns {
		if c.IsClosed() {
			return ErrUnhealthy
		}
	}
	return nil
}

// Close closes every connection the transport opened and waits for consumers.
func (t *Transport) Close() error {
	t.mu.Lock()
	conns := t.conns
	t.conns = nil
	t.mu.Unlock()

	var errs []error
	for _, c := range conns {
		if c.IsClosed() {
			continue
		}
		if err := c.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
			errs = append(errs, err)
		}
	}
	t.wg.Wait()
	return errors.Join(errs...)
}
