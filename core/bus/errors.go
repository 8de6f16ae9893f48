package bus

import "errors"

var (
	// ErrNoHandler is returned when no local action or client route matches a message.
	ErrNoHandler = errors.New("no action matches message")

	// ErrClosed is returned for operations on a closed bus.
	ErrClosed = errors.New("bus is closed")

	// ErrReplyRequired is logged when a message is sent without a reply callback
	// and the fire-and-forget plugin is not loaded.
	ErrReplyRequired = errors.New("reply callback is required")

	// ErrUnknownTransport is returned when listen or client names a transport
	// type that no plugin registered.
	ErrUnknownTransport = errors.New("unknown transport type")

	// ErrTransportRegistered is returned when two plugins register the same transport type.
	ErrTransportRegistered = errors.New("transport already registered")

	// ErrInvalidPlugin is returned by Use for a nil plugin or a plugin without a name.
	ErrInvalidPlugin = errors.New("invalid plugin")

	// ErrActionPanicked wraps a panic recovered from an action.
	ErrActionPanicked = errors.New("action panicked")

	// ErrTimeout is returned when a remote reply does not arrive in time.
	ErrTimeout = errors.New("act timed out")
)
