// Package pin implements routing keys ("pins") for the action bus.
//
// A pin is a flat set of field/value pairs that addresses a class of messages:
// an action registered under {role:"user", cmd:"create"} receives every message
// carrying at least those two fields with those values.
//
// Pins are accepted in two forms, a Raw string and a Structured mapping, and
// both normalize to Pin:
//
//	p, err := pin.Merge(pin.Raw("service:chat"), pin.Structured{"cmd": "send"})
//	// p == pin.Pin{"service": "chat", "cmd": "send"}
//
// Merge is right-biased: fields present in both operands take the second
// operand's value. Numbers in the string form parse to float64 so that pins
// compare equal to JSON-decoded messages.
package pin
