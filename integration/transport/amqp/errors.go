package amqp

import "errors"

var (
	// ErrConnect is returned when the broker cannot be reached.
	ErrConnect = errors.New("amqp: failed to connect")

	// ErrTopology is returned when the exchange, queue or binding cannot be declared.
	ErrTopology = errors.New("amqp: failed to declare topology")

	// ErrSenderClosed is returned by Send after the sender's connection closed.
	ErrSenderClosed = errors.New("amqp: sender is closed")

	// ErrUnhealthy is reported by Healthcheck when a connection was lost.
	ErrUnhealthy = errors.New("amqp: connection closed")
)
