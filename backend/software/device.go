// Package software provides an in-memory execution layer.
//
// Buffers and textures are plain byte slices, copies and query resolves are
// executed on the CPU when a command buffer is submitted, and every call is
// appended to a log that tests and tools can inspect with [Device.Calls].
// Passes are recorded but nothing is rasterized or dispatched; draws and
// dispatches only advance the pipeline-statistics counters.
package software

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/id"
)

// Software device errors.
var (
	// ErrDestroyed is returned when a destroyed resource is used.
	ErrDestroyed = errors.New("software: resource destroyed")

	// ErrOutOfBounds is returned when a write or copy exceeds a resource.
	ErrOutOfBounds = errors.New("software: range out of bounds")

	// ErrConsumed is returned when a command buffer is submitted twice.
	ErrConsumed = errors.New("software: command buffer already submitted")

	// ErrEncoderFinished is returned when a finished encoder is reused.
	ErrEncoderFinished = errors.New("software: encoder already finished")

	// ErrUnsupportedLayout is returned for texture copies the device cannot
	// lay out linearly (non-zero mip levels, compressed or undefined formats).
	ErrUnsupportedLayout = errors.New("software: unsupported texture layout")

	// ErrNoPipeline is returned when a draw or dispatch is recorded before
	// a pipeline is set.
	ErrNoPipeline = errors.New("software: no pipeline set")
)

// Adapter is the single software adapter.
type Adapter struct{}

// NewAdapter returns the software adapter.
func NewAdapter() *Adapter { return &Adapter{} }

// Factory opens the software adapter. It can be registered for any
// backend tag, which lets a trace captured on a native API replay on the
// CPU.
func Factory() (backend.Adapter, error) { return NewAdapter(), nil }

// Info describes the adapter.
func (a *Adapter) Info() backend.AdapterInfo {
	return backend.AdapterInfo{Name: "software", Backend: id.Empty}
}

// Open creates a device and its queue.
func (a *Adapter) Open(desc *gpucore.DeviceDescriptor) (backend.Device, backend.Queue, error) {
	d := &Device{}
	if desc != nil {
		d.label = desc.Label
	}
	d.record("OpenDevice %q", d.label)
	return d, &Queue{device: d}, nil
}

// Destroy is a no-op.
func (a *Adapter) Destroy() {}

// Device is an in-memory device. It is safe for concurrent use.
type Device struct {
	mu    sync.Mutex
	label string
	calls []string

	// clock advances on every timestamp write.
	clock uint64

	// stats accumulate per-counter totals as work executes.
	stats [5]uint64

	submissions uint64
	destroyed   bool
}

var (
	_ backend.Device = (*Device)(nil)
	_ backend.Queue  = (*Queue)(nil)
)

// Calls returns a copy of the call log.
func (d *Device) Calls() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.calls)
}

// Submissions returns the number of command buffers executed.
func (d *Device) Submissions() uint64 {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.submissions
}

func (d *Device) record(format string, args ...any) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
}

// CreateBuffer allocates a zeroed buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (backend.Buffer, error) {
	d.record("CreateBuffer %q size=%d usage=%#x", desc.Label, desc.Size, uint32(desc.Usage))
	return &buffer{label: desc.Label, usage: desc.Usage, data: make([]byte, desc.Size)}, nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(h backend.Buffer) {
	if b, err := asBuffer(h); err == nil {
		d.record("DestroyBuffer %q", b.label)
		b.destroyed = true
	}
}

// CreateTexture allocates a zeroed texture holding its first mip level.
func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (backend.Texture, error) {
	d.record("CreateTexture %q %dx%dx%d format=%d", desc.Label,
		desc.Size.Width, desc.Size.Height, desc.Size.DepthOrArrayLayers, desc.Format)
	bpp := desc.Format.BytesPerPixel()
	layers := max(desc.Size.DepthOrArrayLayers, 1)
	size := uint64(desc.Size.Width) * uint64(desc.Size.Height) * uint64(layers) * uint64(bpp)
	return &texture{desc: *desc, data: make([]byte, size)}, nil
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(h backend.Texture) {
	if t, ok := h.(*texture); ok {
		d.record("DestroyTexture %q", t.desc.Label)
		t.destroyed = true
	}
}

// CreateTextureView creates a view of tex.
func (d *Device) CreateTextureView(h backend.Texture, desc *gpucore.TextureViewDescriptor) (backend.TextureView, error) {
	t, err := asTexture(h)
	if err != nil {
		return nil, err
	}
	v := &textureView{texture: t}
	if desc != nil {
		v.desc = *desc
	}
	d.record("CreateTextureView %q of %q", v.desc.Label, t.desc.Label)
	return v, nil
}

// DestroyTextureView releases a view.
func (d *Device) DestroyTextureView(h backend.TextureView) {
	if v, ok := h.(*textureView); ok {
		d.record("DestroyTextureView %q", v.desc.Label)
	}
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *gpucore.SamplerDescriptor) (backend.Sampler, error) {
	d.record("CreateSampler %q", desc.Label)
	return &sampler{desc: *desc}, nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(h backend.Sampler) {
	if s, ok := h.(*sampler); ok {
		d.record("DestroySampler %q", s.desc.Label)
	}
}

// CreateBindGroupLayout creates a layout.
func (d *Device) CreateBindGroupLayout(desc *backend.BindGroupLayoutDescriptor) (backend.BindGroupLayout, error) {
	d.record("CreateBindGroupLayout %q entries=%d", desc.Label, len(desc.Entries))
	return &bindGroupLayout{label: desc.Label, entries: slices.Clone(desc.Entries)}, nil
}

// DestroyBindGroupLayout releases a layout.
func (d *Device) DestroyBindGroupLayout(h backend.BindGroupLayout) {
	if l, ok := h.(*bindGroupLayout); ok {
		d.record("DestroyBindGroupLayout %q", l.label)
	}
}

// CreatePipelineLayout creates a pipeline layout.
func (d *Device) CreatePipelineLayout(desc *backend.PipelineLayoutDescriptor) (backend.PipelineLayout, error) {
	for _, l := range desc.BindGroupLayouts {
		if _, ok := l.(*bindGroupLayout); !ok {
			return nil, fmt.Errorf("create pipeline layout %q: %w", desc.Label, backend.ErrForeignHandle)
		}
	}
	d.record("CreatePipelineLayout %q groups=%d", desc.Label, len(desc.BindGroupLayouts))
	return &pipelineLayout{label: desc.Label}, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Device) DestroyPipelineLayout(h backend.PipelineLayout) {
	if l, ok := h.(*pipelineLayout); ok {
		d.record("DestroyPipelineLayout %q", l.label)
	}
}

// CreateBindGroup creates a bind group.
func (d *Device) CreateBindGroup(desc *backend.BindGroupDescriptor) (backend.BindGroup, error) {
	if _, ok := desc.Layout.(*bindGroupLayout); !ok {
		return nil, fmt.Errorf("create bind group %q: %w", desc.Label, backend.ErrForeignHandle)
	}
	for _, e := range desc.Entries {
		if e.Buffer == nil {
			continue
		}
		b, err := asBuffer(e.Buffer)
		if err != nil {
			return nil, fmt.Errorf("create bind group %q binding %d: %w", desc.Label, e.Binding, err)
		}
		if e.Offset > uint64(len(b.data)) || (e.Size != 0 && e.Offset+e.Size > uint64(len(b.data))) {
			return nil, fmt.Errorf("create bind group %q binding %d: %w", desc.Label, e.Binding, ErrOutOfBounds)
		}
	}
	d.record("CreateBindGroup %q entries=%d", desc.Label, len(desc.Entries))
	return &bindGroup{label: desc.Label}, nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(h backend.BindGroup) {
	if g, ok := h.(*bindGroup); ok {
		d.record("DestroyBindGroup %q", g.label)
	}
}

// CreateShaderModule stores the SPIR-V words.
func (d *Device) CreateShaderModule(desc *backend.ShaderModuleDescriptor) (backend.ShaderModule, error) {
	d.record("CreateShaderModule %q words=%d", desc.Label, len(desc.SPIRV))
	return &shaderModule{label: desc.Label, words: slices.Clone(desc.SPIRV)}, nil
}

// DestroyShaderModule releases a shader module.
func (d *Device) DestroyShaderModule(h backend.ShaderModule) {
	if m, ok := h.(*shaderModule); ok {
		d.record("DestroyShaderModule %q", m.label)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *backend.ComputePipelineDescriptor) (backend.ComputePipeline, error) {
	if _, ok := desc.Stage.Module.(*shaderModule); !ok {
		return nil, fmt.Errorf("create compute pipeline %q: %w", desc.Label, backend.ErrForeignHandle)
	}
	d.record("CreateComputePipeline %q entry=%s", desc.Label, desc.Stage.EntryPoint)
	return &computePipeline{label: desc.Label}, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (d *Device) DestroyComputePipeline(h backend.ComputePipeline) {
	if p, ok := h.(*computePipeline); ok {
		d.record("DestroyComputePipeline %q", p.label)
	}
}

// CreateRenderPipeline creates a render pipeline.
func (d *Device) CreateRenderPipeline(desc *backend.RenderPipelineDescriptor) (backend.RenderPipeline, error) {
	if _, ok := desc.Vertex.Module.(*shaderModule); !ok {
		return nil, fmt.Errorf("create render pipeline %q: %w", desc.Label, backend.ErrForeignHandle)
	}
	d.record("CreateRenderPipeline %q targets=%d", desc.Label, len(desc.Targets))
	return &renderPipeline{label: desc.Label}, nil
}

// DestroyRenderPipeline releases a render pipeline.
func (d *Device) DestroyRenderPipeline(h backend.RenderPipeline) {
	if p, ok := h.(*renderPipeline); ok {
		d.record("DestroyRenderPipeline %q", p.label)
	}
}

// CreateQuerySet allocates query slots, all unavailable.
func (d *Device) CreateQuerySet(desc *gpucore.QuerySetDescriptor) (backend.QuerySet, error) {
	d.record("CreateQuerySet %q type=%s count=%d", desc.Label, desc.Type, desc.Count)
	q := &querySet{desc: *desc, results: make([][]uint64, desc.Count), available: make([]bool, desc.Count)}
	for i := range q.results {
		q.results[i] = make([]uint64, desc.ValuesPerQuery())
	}
	return q, nil
}

// DestroyQuerySet releases a query set.
func (d *Device) DestroyQuerySet(h backend.QuerySet) {
	if q, ok := h.(*querySet); ok {
		d.record("DestroyQuerySet %q", q.desc.Label)
	}
}

// CreateCommandEncoder opens an encoder.
func (d *Device) CreateCommandEncoder(label string) (backend.CommandEncoder, error) {
	d.record("CreateCommandEncoder %q", label)
	return &encoder{device: d, label: label}, nil
}

// WriteBuffer writes data into buf immediately.
func (d *Device) WriteBuffer(h backend.Buffer, offset uint64, data []byte) error {
	b, err := asBuffer(h)
	if err != nil {
		return err
	}
	d.record("WriteBuffer %q offset=%d len=%d", b.label, offset, len(data))
	return b.write(offset, data)
}

// WaitIdle returns immediately: work executes synchronously at submission.
func (d *Device) WaitIdle() error { return nil }

// Destroy marks the device destroyed.
func (d *Device) Destroy() {
	d.record("DestroyDevice %q", d.label)
	d.mu.Lock()
	d.destroyed = true
	d.mu.Unlock()
}

// Queue executes submissions on its device.
type Queue struct {
	device *Device
}

// WriteBuffer writes data into buf. Writes are applied immediately, which is
// equivalent to staging them ahead of the next submission.
func (q *Queue) WriteBuffer(h backend.Buffer, offset uint64, data []byte) error {
	b, err := asBuffer(h)
	if err != nil {
		return err
	}
	q.device.record("QueueWriteBuffer %q offset=%d len=%d", b.label, offset, len(data))
	return b.write(offset, data)
}

// WriteTexture writes texel data into a texture region.
func (q *Queue) WriteTexture(dst *backend.ImageCopyTexture, data []byte, layout *gpucore.TextureDataLayout, size gpucore.Extent3D) error {
	t, err := asTexture(dst.Texture)
	if err != nil {
		return err
	}
	q.device.record("QueueWriteTexture %q %dx%dx%d len=%d", t.desc.Label,
		size.Width, size.Height, size.DepthOrArrayLayers, len(data))
	return copyTexels(data, *layout, t, dst, size, true)
}

// Submit executes command buffers in order.
func (q *Queue) Submit(buffers []backend.CommandBuffer) error {
	q.device.record("Submit count=%d", len(buffers))
	for i, h := range buffers {
		cb, ok := h.(*commandBuffer)
		if !ok {
			return fmt.Errorf("submit buffer %d: %w", i, backend.ErrForeignHandle)
		}
		if cb.consumed {
			return fmt.Errorf("submit %q: %w", cb.label, ErrConsumed)
		}
		cb.consumed = true
		for _, op := range cb.ops {
			if err := op(); err != nil {
				return fmt.Errorf("submit %q: %w", cb.label, err)
			}
		}
		q.device.mu.Lock()
		q.device.submissions++
		q.device.mu.Unlock()
	}
	return nil
}
