package processors

import (
	"errors"
	"fmt"
	"slices"
	"sync"
)

// ErrNoProcessor is returned by Lookup when no integration registered a
// builder under the requested backend name.
var ErrNoProcessor = errors.New("no logits processor registered")

// Builder constructs a processor for pattern from a backend's native handle.
// Builders type-assert native to the handle type their backend exposes.
type Builder func(pattern string, native any) (LogitsProcessor, error)

// Registry maps backend names to processor builders. Integrations register
// from their package init, so only linked backends resolve.
type Registry struct {
	mu       sync.RWMutex
	builders map[string]Builder
}

func NewRegistry() *Registry {
	return &Registry{builders: make(map[string]Builder)}
}

// Register adds b under name. It panics if b is nil or name is taken.
func (r *Registry) Register(name string, b Builder) {
	if b == nil {
		panic("processors: Register builder is nil")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.builders[name]; dup {
		panic("processors: Register called twice for backend " + name)
	}
	r.builders[name] = b
}

func (r *Registry) Lookup(name string) (Builder, error) {
	r.mu.RLock()
	b, ok := r.builders[name]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w for backend %q", ErrNoProcessor, name)
	}
	return b, nil
}

// Names returns the registered backend names, sorted.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.builders))
	for name := range r.builders {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

var defaultRegistry = NewRegistry()

// Default returns the process-wide registry integrations register into.
func Default() *Registry { return defaultRegistry }

func Register(name string, b Builder) { defaultRegistry.Register(name, b) }

func Lookup(name string) (Builder, error) { return defaultRegistry.Lookup(name) }

func Names() []string { return defaultRegistry.Names() }
