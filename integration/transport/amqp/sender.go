package amqp

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"sync"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/dmitrymomot/actkit/core/bus"
	"github.com/dmitrymomot/actkit/core/logger"
)

// sender publishes requests and matches replies by correlation id.
type sender struct {
	conn       *amqp.Connection
	ch         *amqp.Channel
	exchange   string
	routingKey string
	replyQueue string
	logger     *slog.Logger

	mu      sync.Mutex
	pending map[string]chan []byte
	closed  bool
}

func newSender(conn *amqp.Connection, ch *amqp.Channel, exchange, routingKey, replyQueue string, logger *slog.Logger) *sender {
	return &sender{
		conn:       conn,
		ch:         ch,
		exchange:   exchange,
		routingKey: routingKey,
		replyQueue: replyQueue,
		logger:     logger,
		pending:    make(map[string]chan []byte),
	}
}

// dispatch routes replies to waiting Send calls until the reply queue closes.
func (s *sender) dispatch(replies <-chan amqp.Delivery) {
	for d := range replies {
		s.mu.Lock()
		waiter, ok := s.pending[d.CorrelationId]
		delete(s.pending, d.CorrelationId)
		s.mu.Unlock()

		if !ok {
			s.logger.Warn("amqp reply without waiter", logger.CorrelationID(d.CorrelationId))
			continue
		}
		waiter <- d.Body
	}

	s.mu.Lock()
	s.closed = true
	for id, waiter := range s.pending {
		close(waiter)
		delete(s.pending, id)
	}
	s.mu.Unlock()
}

func (s *sender) Send(ctx context.Context, msg bus.Message) (any, error) {
	req := bus.NewRequest(msg, s.replyQueue)
	body, err := bus.EncodeRequest(req)
	if err != nil {
		return nil, err
	}

	waiter := make(chan []byte, 1)
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil, ErrSenderClosed
	}
	s.pending[req.ID] = waiter
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.pending, req.ID)
		s.mu.Unlock()
	}()

	publishing := amqp.Publishing{
		ContentType:   "application/json",
		CorrelationId: req.ID,
		MessageId:     req.ID,
		ReplyTo:       s.replyQueue,
		Timestamp:     time.Now(),
		Body:          body,
	}
	if deadline, ok := ctx.Deadline(); ok {
		publishing.Expiration = expiration(time.Until(deadline))
	}

	if err := s.ch.PublishWithContext(ctx, s.exchange, s.routingKey, false, false, publishing); err != nil {
		return nil, fmt.Errorf("amqp: publish request: %w", err)
	}

	select {
	case resp, ok := <-waiter:
		if !ok {
			return nil, ErrSenderClosed
		}
		return bus.DecodeResponse(resp)
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *sender) Close() error {
	if s.conn.IsClosed() {
		return nil
	}
	if err := s.conn.Close(); err != nil && !errors.Is(err, amqp.ErrClosed) {
		return err
	}
	return nil
}

// expiration formats a per-message TTL so the broker drops requests
// nobody is waiting for anymore.
func expiration(d time.Duration) string {
	return strconv.FormatInt(max(d.Milliseconds(), 1), 10)
}
