package hub

import (
	"fmt"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/id"
)

const numBackends = int(id.Dx11) + 1

// compiled marks the backends this build carries a hub for. The
// backend_*.go files set it from build-constrained init functions.
var compiled [numBackends]bool

// CompiledBackends returns the backend tags compiled into this build, in
// ascending order.
func CompiledBackends() []id.Backend {
	var out []id.Backend
	for b, ok := range compiled {
		if ok {
			out = append(out, id.Backend(b))
		}
	}
	return out
}

// Option configures a Global.
type Option func(*Global)

// WithFactory makes the Global open devices for backend b with factory f
// instead of the factory registered in package backend.
func WithFactory(b id.Backend, f backend.Factory) Option {
	return func(g *Global) {
		g.factories[b] = f
	}
}

// Global owns one Hub per compiled backend and routes every operation to
// the hub selected by the backend tag embedded in its id.
//
// A Global carries all identity state; independent Globals share nothing.
type Global struct {
	hubs      [numBackends]*Hub
	factories map[id.Backend]backend.Factory
}

// NewGlobal returns a Global with empty hubs for the compiled backends.
func NewGlobal(opts ...Option) *Global {
	g := &Global{factories: make(map[id.Backend]backend.Factory)}
	for _, b := range CompiledBackends() {
		g.hubs[b] = NewHub(b)
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// HasBackend reports whether g has a hub for backend b, that is whether b
// is compiled into this build.
func (g *Global) HasBackend(b id.Backend) bool {
	return int(b) < numBackends && g.hubs[b] != nil
}

// Hub returns the hub for backend b. It panics when b is not compiled in.
func (g *Global) Hub(b id.Backend) *Hub {
	return g.hubFor(id.Zip(0, 0, b))
}

// HubFor returns the hub that owns the object named by i.
func HubFor[K id.Kind](g *Global, i id.ID[K]) *Hub {
	return g.hubFor(i.Raw())
}

// hubFor dispatches on the backend tag of r. A tag without a compiled hub
// can only come from a corrupted id and panics.
func (g *Global) hubFor(r id.RawID) *Hub {
	var h *Hub
	switch r.Backend() {
	case id.Vulkan:
		h = g.hubs[id.Vulkan]
	case id.Metal:
		h = g.hubs[id.Metal]
	case id.Dx12:
		h = g.hubs[id.Dx12]
	case id.Dx11:
		h = g.hubs[id.Dx11]
	case id.Empty:
	}
	if h == nil {
		panic(fmt.Sprintf("hub: unreachable backend %s in id %s", r.Backend(), r))
	}
	return h
}

func (g *Global) factory(b id.Backend) (backend.Factory, error) {
	if f, ok := g.factories[b]; ok {
		return f, nil
	}
	if f, ok := backend.Lookup(b); ok {
		return f, nil
	}
	return nil, fmt.Errorf("%w: %s", backend.ErrBackendNotAvailable, b)
}
