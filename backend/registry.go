package backend

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpuplay/id"
)

// Factory opens an adapter for one backend tag. Factories are registered
// via Register and called by NewAdapter.
type Factory func() (Adapter, error)

// Registry state, protected by registryMu.
var (
	registryMu sync.RWMutex
	factories  = make(map[id.Backend]Factory)
)

// Register binds a factory to a backend tag. It is typically called from
// init() or from program setup:
//
//	func init() {
//	    backend.Register(id.Vulkan, halbridge.Vulkan())
//	}
//
// Register panics if:
//   - factory is nil
//   - b is not a defined backend tag
//   - a factory for b is already registered
func Register(b id.Backend, factory Factory) {
	registryMu.Lock()
	defer registryMu.Unlock()

	if factory == nil {
		panic("backend: Register factory is nil")
	}
	if !b.Valid() {
		panic(fmt.Sprintf("backend: Register called with undefined tag %s", b))
	}
	if _, dup := factories[b]; dup {
		panic("backend: Register called twice for " + b.String())
	}
	factories[b] = factory
}

// Unregister removes the factory for b. Unregistering an unknown tag is a
// no-op.
func Unregister(b id.Backend) {
	registryMu.Lock()
	defer registryMu.Unlock()
	delete(factories, b)
}

// Lookup returns the factory registered for b.
func Lookup(b id.Backend) (Factory, bool) {
	registryMu.RLock()
	defer registryMu.RUnlock()
	f, ok := factories[b]
	return f, ok
}

// NewAdapter opens an adapter with the factory registered for b.
// The error wraps ErrBackendNotAvailable when no factory is registered.
func NewAdapter(b id.Backend) (Adapter, error) {
	factory, ok := Lookup(b)
	if !ok {
		return nil, fmt.Errorf("%w: %s (forgotten registration?)", ErrBackendNotAvailable, b)
	}
	return factory()
}

// Backends returns the registered tags in ascending order.
func Backends() []id.Backend {
	registryMu.RLock()
	defer registryMu.RUnlock()

	tags := make([]id.Backend, 0, len(factories))
	for b := range factories {
		tags = append(tags, b)
	}
	slices.Sort(tags)
	return tags
}

// IsRegistered reports whether a factory is registered for b.
func IsRegistered(b id.Backend) bool {
	_, ok := Lookup(b)
	return ok
}
