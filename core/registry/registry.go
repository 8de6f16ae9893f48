// Package registry provides the name→object store shared by the service
// loader, the command wrapper and the DTO layer.
//
// A Registry is created once at startup and passed to every component that
// needs it. Writers register before readers resolve; concurrent access is
// safe and the last writer wins.
package registry

import (
	"fmt"
	"sync"
)

// Registry is a concurrent-safe key/value store.
type Registry struct {
	mu    sync.RWMutex
	items map[string]any
}

// New creates an empty registry.
func New() *Registry {
	return &Registry{items: make(map[string]any)}
}

// Register stores obj under name, replacing any previous value.
func (r *Registry) Register(name string, obj any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.items[name] = obj
}

// Resolve returns the object registered under name.
func (r *Registry) Resolve(name string) (any, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	obj, ok := r.items[name]
	return obj, ok
}

// Remove deletes name from the registry. Reports whether it was present.
func (r *Registry) Remove(name string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[name]; !ok {
		return false
	}
	delete(r.items, name)
	return true
}

// RegisterDTO stores a DTO under its type/subtype key.
func (r *Registry) RegisterDTO(typ, subtype string, obj any) {
	r.Register(DTOKey(typ, subtype), obj)
}

// ResolveDTO returns the DTO registered for type/subtype.
func (r *Registry) ResolveDTO(typ, subtype string) (any, bool) {
	return r.Resolve(DTOKey(typ, subtype))
}

// DTOKey returns the registry key of a DTO: dto-<type>-<subtype>.
func DTOKey(typ, subtype string) string {
	return fmt.Sprintf("dto-%s-%s", typ, subtype)
}

// Lookup resolves name and asserts its type.
// Returns false if the name is missing or holds a value of another type.
func Lookup[T any](r *Registry, name string) (T, bool) {
	obj, ok := r.Resolve(name)
	if !ok {
		var zero T
		return zero, false
	}
	v, ok := obj.(T)
	return v, ok
}
