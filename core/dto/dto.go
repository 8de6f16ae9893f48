// Package dto binds commands to data transfer objects kept in the registry.
//
// A DTO turns the raw view model a command receives (or returns) into the
// shape the other side expects. DTOs are registered under
// registry.DTOKey(type, subtype) and looked up when a command is invoked,
// so a DTO may be registered after the command that uses it.
//
//	reg.RegisterDTO("user", "create", dto.Struct[CreateUser]())
//	out, err := dto.Apply(ctx, reg, dto.Binding{Type: "user", Subtype: "create"}, raw).Await()
package dto

import (
	"context"
	"fmt"

	"github.com/dmitrymomot/actkit/core/registry"
	"github.com/dmitrymomot/actkit/pkg/async"
)

// Transformer converts a raw view model into a DTO value.
type Transformer interface {
	FromViewModel(ctx context.Context, raw any) *async.Future[any]
}

// TransformerFunc adapts a synchronous function to Transformer.
type TransformerFunc func(ctx context.Context, raw any) (any, error)

// FromViewModel implements Transformer.
func (f TransformerFunc) FromViewModel(ctx context.Context, raw any) *async.Future[any] {
	return async.Async(ctx, raw, f)
}

// Binding names a DTO in the registry.
type Binding struct {
	Type    string
	Subtype string
}

// IsZero reports whether the binding names no DTO.
func (b Binding) IsZero() bool {
	return b.Type == ""
}

// Key returns the registry key of the binding.
func (b Binding) Key() string {
	return registry.DTOKey(b.Type, b.Subtype)
}

// Resolve looks up the transformer bound to b.
func Resolve(reg *registry.Registry, b Binding) (Transformer, error) {
	obj, ok := reg.ResolveDTO(b.Type, b.Subtype)
	if !ok || obj == nil {
		return nil, &NotFoundError{Type: b.Type, Subtype: b.Subtype}
	}
	t, ok := obj.(Transformer)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNotTransformer, b.Key())
	}
	return t, nil
}

// Apply transforms raw with the DTO bound to b.
// A zero binding passes raw through unchanged.
func Apply(ctx context.Context, reg *registry.Registry, b Binding, raw any) (f *async.Future[any]) {
	if b.IsZero() {
		return async.Resolved(raw)
	}

	t, err := Resolve(reg, b)
	if err != nil {
		return async.Rejected[any](err)
	}

	defer func() {
		if r := recover(); r != nil {
			f = async.Rejected[any](fmt.Errorf("dto %s panicked: %v", b.Key(), r))
		}
	}()

	f = t.FromViewModel(ctx, raw)
	if f == nil {
		return async.Resolved[any](nil)
	}
	return f
}
