// Package registry implements the plugin registry used for all three
// strategy kinds (EventDetector, FundSelector, SignalFilter). One
// Registry[T] instance is created per kind; registration happens at
// startup wiring time, lookups happen on every scan.
package registry

import (
	"fmt"
	"sort"
	"sync"

	"github.com/kestrelfin/etf-arbiter/internal/model"
)

// Factory builds a strategy value of type T from its config subtree.
type Factory[T any] func(config map[string]any) (T, error)

type entry[T any] struct {
	factory  Factory[T]
	metadata model.PluginMetadata
}

// Registry is a name -> factory map for one strategy kind, safe for
// concurrent use. Registration is meant to happen once at startup;
// lookups happen continuously thereafter.
type Registry[T any] struct {
	mu      sync.RWMutex
	entries map[string]entry[T]
}

// New creates an empty registry.
func New[T any]() *Registry[T] {
	return &Registry[T]{entries: make(map[string]entry[T])}
}

// ErrDuplicateName is returned by Register when the name is already taken.
type ErrDuplicateName struct{ Name string }

func (e *ErrDuplicateName) Error() string {
	return fmt.Sprintf("registry: name %q already registered", e.Name)
}

// ErrNotFound is returned by Lookup when the name is unknown.
type ErrNotFound struct{ Name string }

func (e *ErrNotFound) Error() string {
	return fmt.Sprintf("registry: name %q not found", e.Name)
}

// Register adds a new named factory. Re-registering an existing name is a
// DuplicateName error; silent overwrites are never allowed.
func (r *Registry[T]) Register(name string, factory Factory[T], metadata model.PluginMetadata) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.entries[name]; exists {
		return &ErrDuplicateName{Name: name}
	}
	r.entries[name] = entry[T]{factory: factory, metadata: metadata}
	return nil
}

// Lookup resolves name to its factory.
func (r *Registry[T]) Lookup(name string) (Factory[T], error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, exists := r.entries[name]
	if !exists {
		return nil, &ErrNotFound{Name: name}
	}
	return e.factory, nil
}

// Build resolves name and immediately constructs the strategy value.
func (r *Registry[T]) Build(name string, config map[string]any) (T, error) {
	var zero T
	factory, err := r.Lookup(name)
	if err != nil {
		return zero, err
	}
	return factory(config)
}

// Has reports whether name is registered.
func (r *Registry[T]) Has(name string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	_, exists := r.entries[name]
	return exists
}

// NamedMetadata pairs a registered name with its metadata, for List.
type NamedMetadata struct {
	Name     string
	Metadata model.PluginMetadata
}

// List returns every registered name and its metadata, ordered by
// descending priority then ascending name.
func (r *Registry[T]) List() []NamedMetadata {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]NamedMetadata, 0, len(r.entries))
	for name, e := range r.entries {
		out = append(out, NamedMetadata{Name: name, Metadata: e.metadata})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Metadata.Priority != out[j].Metadata.Priority {
			return out[i].Metadata.Priority > out[j].Metadata.Priority
		}
		return out[i].Name < out[j].Name
	})
	return out
}
