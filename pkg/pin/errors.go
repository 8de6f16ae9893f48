package pin

import "errors"

// ErrInvalidPin is returned when a pin operand is neither a string nor a mapping,
// or when a pin string cannot be parsed.
var ErrInvalidPin = errors.New("pin is either string or object")
