package hub

import (
	"sync"
	"sync/atomic"

	"github.com/gogpu/wgpu/core"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/internal/logging"
	"github.com/gogpu/gpuplay/trace"
)

// Owned links a resource to the device that created it.
type Owned struct {
	Device id.DeviceID
}

func (o Owned) owner() id.DeviceID { return o.Device }

type owned interface {
	owner() id.DeviceID
}

// Adapter is an opened execution-layer adapter.
type Adapter struct {
	Raw  backend.Adapter
	Info backend.AdapterInfo
}

// Device is a logical device and its queue. The queue shares the device
// id.
type Device struct {
	Adapter id.AdapterID
	Raw     backend.Device
	Queue   backend.Queue
	Desc    gpucore.DeviceDescriptor

	capture atomic.Pointer[trace.Writer]

	mu sync.Mutex
	// submitted counts queue submissions; idleAt is the count at the last
	// completed wait.
	submitted uint64
	idleAt    uint64
	// submitIndex numbers recorded Submit actions.
	submitIndex uint64
}

// Trace returns the attached capture, or nil.
func (d *Device) Trace() *trace.Writer { return d.capture.Load() }

func (d *Device) record(a trace.Action) {
	if w := d.capture.Load(); w != nil {
		w.Add(a)
	}
}

// recordBlob stores data next to the capture and records the action built
// from the blob name.
func (d *Device) recordBlob(ext string, data []byte, build func(name string) trace.Action) {
	if w := d.capture.Load(); w != nil {
		w.Add(build(w.MakeBinary(ext, data)))
	}
}

func (d *Device) submittedOnce() {
	d.mu.Lock()
	d.submitted++
	d.mu.Unlock()
}

func (d *Device) nextSubmitIndex() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.submitIndex++
	return d.submitIndex
}

// waitIdle blocks until every submission so far has completed. It returns
// at once when nothing was submitted since the last wait.
func (d *Device) waitIdle() error {
	d.mu.Lock()
	pending := d.submitted
	busy := pending > d.idleAt
	d.mu.Unlock()
	if !busy {
		return nil
	}
	if err := d.Raw.WaitIdle(); err != nil {
		return err
	}
	d.mu.Lock()
	if pending > d.idleAt {
		d.idleAt = pending
	}
	d.mu.Unlock()
	logging.Logger().Debug("hub: device idle", "device", d.Desc.Label, "submissions", pending)
	return nil
}

// SwapChain is a configured presentation surface.
type SwapChain struct {
	Owned
	Desc gpucore.SwapChainDescriptor
}

// Buffer is a linear memory resource.
type Buffer struct {
	Owned
	Raw  backend.Buffer
	Desc gpucore.BufferDescriptor

	use atomic.Uint32
}

// Use returns the usage the buffer was left in by the last submitted
// command buffer, or by mapping at creation.
func (b *Buffer) Use() gpucore.BufferUse { return gpucore.BufferUse(b.use.Load()) }

// Transition records a new device-wide usage and returns the transition
// from the previous one.
func (b *Buffer) Transition(to gpucore.BufferUse) gpucore.BufferUseTransition {
	from := gpucore.BufferUse(b.use.Swap(uint32(to)))
	return gpucore.BufferUseTransition{From: from, To: to}
}

// BufferTracker holds the buffer usages of one command buffer. A buffer
// the command buffer has not used yet starts from its device-wide usage.
// Recording never changes the device-wide usage; submission does.
type BufferTracker struct {
	uses map[*Buffer]gpucore.BufferUse
}

// Transition moves b to use to within the command buffer and returns the
// transition from its previous usage there.
func (t *BufferTracker) Transition(b *Buffer, to gpucore.BufferUse) gpucore.BufferUseTransition {
	from, ok := t.uses[b]
	if !ok {
		from = b.Use()
	}
	if t.uses == nil {
		t.uses = make(map[*Buffer]gpucore.BufferUse)
	}
	t.uses[b] = to
	return gpucore.BufferUseTransition{From: from, To: to}
}

// merge makes the command buffer's final usages device-wide.
func (t *BufferTracker) merge() {
	for b, u := range t.uses {
		b.use.Store(uint32(u))
	}
}

// Texture is an image resource.
type Texture struct {
	Owned
	Raw  backend.Texture
	Desc gpucore.TextureDescriptor
}

// TextureView is a view of a subresource range of Texture.
type TextureView struct {
	Owned
	Texture id.TextureID
	Raw     backend.TextureView
	Desc    gpucore.TextureViewDescriptor
}

// Sampler holds texture filtering and addressing state.
type Sampler struct {
	Owned
	Raw  backend.Sampler
	Desc gpucore.SamplerDescriptor
}

// BindGroupLayout declares the bindings a bind group supplies. Entries
// keeps the declaration for validating bind groups against it.
type BindGroupLayout struct {
	Owned
	Raw     backend.BindGroupLayout
	Label   string
	Entries []gpucore.BindGroupLayoutEntry
}

// PipelineLayout lists the bind group layouts a pipeline binds, in slot
// order.
type PipelineLayout struct {
	Owned
	Raw              backend.PipelineLayout
	Label            string
	BindGroupLayouts []id.BindGroupLayoutID
}

// BindGroup is a set of resources bound together under Layout.
type BindGroup struct {
	Owned
	Raw    backend.BindGroup
	Label  string
	Layout id.BindGroupLayoutID
	// DynamicOffsets is the number of dynamic-offset bindings in the
	// layout.
	DynamicOffsets int
	// Buffers are the bound buffers with the usage their binding implies.
	Buffers []BoundBuffer
}

// BoundBuffer is a buffer used through a bind group.
type BoundBuffer struct {
	Buffer *Buffer
	Use    gpucore.BufferUse
}

// ShaderModule is compiled shader code.
type ShaderModule struct {
	Owned
	Raw   backend.ShaderModule
	Label string
}

// ComputePipeline is a compute shader entry point bound to Layout.
type ComputePipeline struct {
	Owned
	Raw    backend.ComputePipeline
	Label  string
	Layout id.PipelineLayoutID
}

// RenderPipeline is the full render state of a draw, bound to Layout.
type RenderPipeline struct {
	Owned
	Raw    backend.RenderPipeline
	Label  string
	Layout id.PipelineLayoutID
}

// RenderBundle holds recorded render commands. They are encoded into each
// render pass that executes the bundle.
type RenderBundle struct {
	Owned
	Desc trace.RenderBundleDescriptor
	Base trace.BasePass
}

// QuerySet is a fixed pool of query slots of one type.
type QuerySet struct {
	Owned
	Raw  backend.QuerySet
	Desc gpucore.QuerySetDescriptor
}

// CommandBuffer is a command encoder and, once finished, the command
// buffer it produced. Both share one id.
type CommandBuffer struct {
	Owned
	Label   string
	Encoder backend.CommandEncoder
	Raw     backend.CommandBuffer
	Status  core.CommandEncoderStatus
	// Buffers tracks buffer usages recorded so far.
	Buffers BufferTracker

	// Capture is set when the device was being captured as the encoder
	// opened; Commands then collects every encoded command.
	Capture  bool
	Commands trace.CommandList
}
