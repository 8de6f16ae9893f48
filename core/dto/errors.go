package dto

import (
	"errors"
	"fmt"
)

var (
	// ErrNotFound is matched by NotFoundError.
	ErrNotFound = errors.New("dto not found")

	// ErrNotTransformer is returned when the registry holds a value under a DTO
	// key that does not implement Transformer.
	ErrNotTransformer = errors.New("registered dto is not a transformer")

	// ErrDecode is returned when a view model cannot be decoded into the DTO struct.
	ErrDecode = errors.New("failed to decode view model")

	// ErrValidation wraps errors returned by Validator implementations.
	ErrValidation = errors.New("dto validation failed")
)

// NotFoundError is returned when no DTO is registered for a binding.
// Its message is part of the negative envelope callers receive.
type NotFoundError struct {
	Type    string
	Subtype string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("Dto %s is not found", e.Type)
}

// Is reports whether target is ErrNotFound.
func (e *NotFoundError) Is(target error) bool {
	return target == ErrNotFound
}
