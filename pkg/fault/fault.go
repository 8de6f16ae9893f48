// Package fault carries failure values that are not Go errors.
//
// Message handlers and remote peers may fail with arbitrary values (a string,
// a number, a map). Value boxes such a value into an error so it can travel
// through error returns, and Raw unboxes it again without losing its type.
// Flatten produces the representation that is safe to put on the wire:
// the message of an error, or the raw value itself.
package fault

import "fmt"

// Value is an error that carries a non-error failure value.
type Value struct {
	V any
}

func (v *Value) Error() string {
	if s, ok := v.V.(string); ok {
		return s
	}
	return fmt.Sprint(v.V)
}

// New converts an arbitrary failure value into an error.
// Errors are returned unchanged, nil stays nil.
func New(v any) error {
	switch t := v.(type) {
	case nil:
		return nil
	case error:
		return t
	default:
		return &Value{V: v}
	}
}

// Raw returns the failure value carried by err: the boxed value for a *Value,
// err itself for any other error.
func Raw(err error) any {
	if v, ok := err.(*Value); ok {
		return v.V
	}
	if err == nil {
		return nil
	}
	return err
}

// Flatten returns the wire representation of err: the boxed value for a
// *Value, the error message otherwise.
func Flatten(err error) any {
	if v, ok := err.(*Value); ok {
		return v.V
	}
	if err == nil {
		return nil
	}
	return err.Error()
}

// Message returns a printable message for err.
func Message(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}
