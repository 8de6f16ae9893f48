// Package bus implements a pin-routed action bus.
//
// Actions are registered under a pin (a set of field/value pairs) and
// receive every message that carries at least those fields. When several
// patterns match, the most specific one (the one with most fields) wins;
// among equally specific patterns the most recently added one wins.
//
// The bus exposes callback-style primitives:
//
//	b := bus.New(bus.WithLogger(logger))
//	b.Add(pin.Pin{"role": "math", "cmd": "sum"}, func(ctx context.Context, msg bus.Message, reply bus.Reply) {
//		reply(nil, msg["a"].(float64)+msg["b"].(float64))
//	})
//	b.Act(ctx, bus.Message{"role": "math", "cmd": "sum", "a": 1.0, "b": 2.0}, func(err error, out any) {
//		// out == 3.0
//	})
//
// # Transports
//
// Remote delivery is pluggable. A plugin registers a Transport under a type
// name; Listen exposes local actions through it and Client adds an outbound
// route that forwards matching messages to remote listeners:
//
//	_ = b.Use(amqp.Plugin(amqp.WithURL(url)))
//	b.Listen(bus.ListenConfig{Type: "amqp", Pin: p})
//	b.Ready(func(err error) { ... })
//
// Listen and Client start work in the background; Ready reports once every
// listener started so far is accepting messages.
//
// # Fire and forget
//
// Act requires a reply callback unless the FireAndForget plugin is loaded.
// With the plugin loaded, failures of acts sent without a callback are logged.
//
// # Plugins
//
// Use initializes a plugin once per name. Calling Use again with a plugin of
// the same name is a no-op.
package bus
