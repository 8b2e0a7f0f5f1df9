package storage

import (
	"context"
	"fmt"
	"slices"
	"sync"
)

// Registry maps plugin names to factories for one kind of component
// (state backends, event sinks, snapshot targets). Plugins register
// themselves from init.
type Registry[T any] struct {
	kind string

	mu      sync.RWMutex
	entries map[string]registryEntry[T]
}

type registryEntry[T any] struct {
	open     func(ctx context.Context, config map[string]string) (T, error)
	defaults func() map[string]string
}

// NewRegistry returns an empty registry. kind names the component in errors.
func NewRegistry[T any](kind string) *Registry[T] {
	return &Registry[T]{kind: kind, entries: make(map[string]registryEntry[T])}
}

// Register adds a plugin. It panics when name is taken.
func (r *Registry[T]) Register(name string, open func(context.Context, map[string]string) (T, error), defaults func() map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.entries[name]; ok {
		panic(fmt.Sprintf("%s %q already registered", r.kind, name))
	}
	r.entries[name] = registryEntry[T]{open: open, defaults: defaults}
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, ok := r.entries[name]
	return ok
}

// Names returns the registered names, sorted.
func (r *Registry[T]) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.entries))
	for name := range r.entries {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Open builds the named plugin with config layered over its defaults.
func (r *Registry[T]) Open(ctx context.Context, name string, config map[string]string) (T, error) {
	r.mu.RLock()
	e, ok := r.entries[name]
	r.mu.RUnlock()
	if !ok {
		var zero T
		return zero, NewConfigError(name, "", fmt.Sprintf("unknown %s %q (available: %v)", r.kind, name, r.Names()))
	}
	var defaults map[string]string
	if e.defaults != nil {
		defaults = e.defaults()
	}
	return e.open(ctx, Merge(defaults, config))
}
