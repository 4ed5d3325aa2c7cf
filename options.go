package gpuplay

import (
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/hub"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/player"
)

// Option configures Replay.
//
// Example:
//
//	// Replay a Vulkan capture on the recording software backend
//	err := gpuplay.Replay(ctx, dir, gpuplay.WithBackendFactory(id.Vulkan, software.Factory))
type Option func(*options)

// options holds optional configuration for Replay.
type options struct {
	factories []hub.Option
	player    []player.Option
	keep      bool
	global    *hub.Global
}

// WithBackendFactory opens devices for backend b with f instead of the
// factory registered through [backend.Register]. Traces name the backend
// they were captured on, so this is how a capture is replayed elsewhere.
func WithBackendFactory(b id.Backend, f backend.Factory) Option {
	return func(o *options) {
		o.factories = append(o.factories, hub.WithFactory(b, f))
	}
}

// WithTracer sets the OpenTelemetry tracer replay spans are recorded on.
func WithTracer(t oteltrace.Tracer) Option {
	return func(o *options) {
		o.player = append(o.player, player.WithTracer(t))
	}
}

// WithGlobal replays on g instead of a fresh Global. Backend factories
// given with WithBackendFactory are ignored.
//
// The replayed device is left open so the caller can inspect the objects
// it owns; see [Replayed.Close].
func WithGlobal(g *hub.Global) Option {
	return func(o *options) {
		o.global = g
		o.keep = true
	}
}
