// Package halbridge runs replays on a native GPU through gogpu/wgpu/hal.
//
// The bridge covers resources, pipelines, copies, passes, buffer barriers,
// timestamps, and resolving occlusion and timestamp query sets. Query
// scopes (BeginQuery and EndQuery), pipeline-statistics sets, sampler and
// texture bindings, and push constants fail with ErrUnsupported.
//
// Resolved query results are 64-bit values written at the requested
// stride. The HAL layer writes no availability words, so
// QueryResultWithAvailability leaves those slots untouched.
package halbridge

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/internal/logging"
)

// ErrUnsupported is returned for operations the bridge cannot express.
var ErrUnsupported = errors.New("halbridge: operation not supported")

// NewFactory returns a factory that opens the first discrete or integrated
// adapter of the instance created by newInstance, falling back to the first
// adapter reported.
func NewFactory(tag id.Backend, newInstance func() (hal.Instance, error)) backend.Factory {
	return func() (backend.Adapter, error) {
		instance, err := newInstance()
		if err != nil {
			return nil, fmt.Errorf("halbridge: create instance: %w", err)
		}
		adapters := instance.EnumerateAdapters(nil)
		if len(adapters) == 0 {
			instance.Destroy()
			return nil, backend.ErrNoAdapter
		}
		var selected *hal.ExposedAdapter
		for i := range adapters {
			if adapters[i].Info.DeviceType == gputypes.DeviceTypeDiscreteGPU ||
				adapters[i].Info.DeviceType == gputypes.DeviceTypeIntegratedGPU {
				selected = &adapters[i]
				break
			}
		}
		if selected == nil {
			selected = &adapters[0]
		}
		logging.Logger().Info("halbridge: adapter selected", "backend", tag, "name", selected.Info.Name)
		return &Adapter{tag: tag, instance: instance, exposed: selected}, nil
	}
}

// Adapter wraps one HAL adapter and the instance that owns it.
type Adapter struct {
	tag      id.Backend
	instance hal.Instance
	exposed  *hal.ExposedAdapter
}

// Info describes the adapter.
func (a *Adapter) Info() backend.AdapterInfo {
	return backend.AdapterInfo{Name: a.exposed.Info.Name, Backend: a.tag}
}

// Open creates a logical device with default limits.
func (a *Adapter) Open(desc *gpucore.DeviceDescriptor) (backend.Device, backend.Queue, error) {
	openDev, err := a.exposed.Adapter.Open(gputypes.Features(0), gputypes.DefaultLimits())
	if err != nil {
		return nil, nil, fmt.Errorf("halbridge: open device: %w", err)
	}
	label := ""
	if desc != nil {
		label = desc.Label
	}
	d := &Device{label: label, raw: openDev.Device, queue: openDev.Queue}
	return d, &Queue{device: d}, nil
}

// Destroy releases the instance.
func (a *Adapter) Destroy() {
	a.instance.Destroy()
}

// Device wraps a HAL device and its queue.
type Device struct {
	label string
	raw   hal.Device
	queue hal.Queue

	mu sync.Mutex
	// pending holds submitted command buffers until their submission
	// index completes.
	pending []submission
}

// submission is one command buffer in flight and the encoder that
// recorded it.
type submission struct {
	index uint64
	cb    commandBuffer
}

var (
	_ backend.Device = (*Device)(nil)
	_ backend.Queue  = (*Queue)(nil)
)

type buffer struct {
	raw   hal.Buffer
	label string
	size  uint64
}

type texture struct {
	raw  hal.Texture
	desc gpucore.TextureDescriptor
}

type commandBuffer struct {
	raw hal.CommandBuffer
	enc hal.CommandEncoder
}

type querySet struct {
	raw  hal.QuerySet
	desc gpucore.QuerySetDescriptor
}

func asBuffer(h backend.Buffer) (*buffer, error) {
	b, ok := h.(*buffer)
	if !ok {
		return nil, fmt.Errorf("buffer %T: %w", h, backend.ErrForeignHandle)
	}
	return b, nil
}

func asQuerySet(h backend.QuerySet) (*querySet, error) {
	q, ok := h.(*querySet)
	if !ok {
		return nil, fmt.Errorf("query set %T: %w", h, backend.ErrForeignHandle)
	}
	return q, nil
}

func asTexture(h backend.Texture) (*texture, error) {
	t, ok := h.(*texture)
	if !ok {
		return nil, fmt.Errorf("texture %T: %w", h, backend.ErrForeignHandle)
	}
	return t, nil
}

// CreateBuffer creates a HAL buffer.
func (d *Device) CreateBuffer(desc *gpucore.BufferDescriptor) (backend.Buffer, error) {
	raw, err := d.raw.CreateBuffer(&hal.BufferDescriptor{
		Label:            desc.Label,
		Size:             desc.Size,
		Usage:            convertBufferUsage(desc.Usage),
		MappedAtCreation: desc.MappedAtCreation,
	})
	if err != nil {
		return nil, fmt.Errorf("halbridge: create buffer %q: %w", desc.Label, err)
	}
	return &buffer{raw: raw, label: desc.Label, size: desc.Size}, nil
}

// DestroyBuffer releases a buffer.
func (d *Device) DestroyBuffer(h backend.Buffer) {
	if b, err := asBuffer(h); err == nil {
		d.raw.DestroyBuffer(b.raw)
	}
}

// CreateTexture creates a HAL texture.
func (d *Device) CreateTexture(desc *gpucore.TextureDescriptor) (backend.Texture, error) {
	format, ok := convertTextureFormat(desc.Format)
	if !ok {
		return nil, fmt.Errorf("halbridge: texture %q format %d: %w", desc.Label, desc.Format, ErrUnsupported)
	}
	raw, err := d.raw.CreateTexture(&hal.TextureDescriptor{
		Label:         desc.Label,
		Size:          convertExtent(desc.Size),
		MipLevelCount: max(desc.MipLevelCount, 1),
		SampleCount:   max(desc.SampleCount, 1),
		Dimension:     convertTextureDimension(desc.Dimension),
		Format:        format,
		Usage:         convertTextureUsage(desc.Usage),
	})
	if err != nil {
		return nil, fmt.Errorf("halbridge: create texture %q: %w", desc.Label, err)
	}
	return &texture{raw: raw, desc: *desc}, nil
}

// DestroyTexture releases a texture.
func (d *Device) DestroyTexture(h backend.Texture) {
	if t, err := asTexture(h); err == nil {
		d.raw.DestroyTexture(t.raw)
	}
}

// CreateTextureView creates a view of a texture.
func (d *Device) CreateTextureView(h backend.Texture, desc *gpucore.TextureViewDescriptor) (backend.TextureView, error) {
	t, err := asTexture(h)
	if err != nil {
		return nil, err
	}
	var v gpucore.TextureViewDescriptor
	if desc != nil {
		v = *desc
	}
	format := gputypes.TextureFormatUndefined
	if v.Format != gpucore.TextureFormatUndefined {
		f, ok := convertTextureFormat(v.Format)
		if !ok {
			return nil, fmt.Errorf("halbridge: view %q format %d: %w", v.Label, v.Format, ErrUnsupported)
		}
		format = f
	}
	raw, err := d.raw.CreateTextureView(t.raw, &hal.TextureViewDescriptor{
		Label:           v.Label,
		Format:          format,
		Dimension:       convertViewDimension(v.Dimension),
		Aspect:          gputypes.TextureAspectAll,
		BaseMipLevel:    v.BaseMipLevel,
		MipLevelCount:   v.MipLevelCount,
		BaseArrayLayer:  v.BaseArrayLayer,
		ArrayLayerCount: v.ArrayLayerCount,
	})
	if err != nil {
		return nil, fmt.Errorf("halbridge: create view %q: %w", v.Label, err)
	}
	return raw, nil
}

// DestroyTextureView releases a view.
func (d *Device) DestroyTextureView(h backend.TextureView) {
	if v, ok := h.(hal.TextureView); ok {
		d.raw.DestroyTextureView(v)
	}
}

// CreateSampler creates a sampler.
func (d *Device) CreateSampler(desc *gpucore.SamplerDescriptor) (backend.Sampler, error) {
	raw, err := d.raw.CreateSampler(&hal.SamplerDescriptor{
		Label:        desc.Label,
		AddressModeU: convertAddressMode(desc.AddressModeU),
		AddressModeV: convertAddressMode(desc.AddressModeV),
		AddressModeW: convertAddressMode(desc.AddressModeW),
		MagFilter:    convertFilterMode(desc.MagFilter),
		MinFilter:    convertFilterMode(desc.MinFilter),
		MipmapFilter: convertFilterMode(desc.MipmapFilter),
	})
	if err != nil {
		return nil, fmt.Errorf("halbridge: create sampler %q: %w", desc.Label, err)
	}
	return raw, nil
}

// DestroySampler releases a sampler.
func (d *Device) DestroySampler(h backend.Sampler) {
	if s, ok := h.(hal.Sampler); ok {
		d.raw.DestroySampler(s)
	}
}

// CreateBindGroupLayout creates a layout. Only buffer bindings are supported.
func (d *Device) CreateBindGroupLayout(desc *backend.BindGroupLayoutDescriptor) (backend.BindGroupLayout, error) {
	entries := make([]gputypes.BindGroupLayoutEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		entry, ok := convertLayoutEntry(e)
		if !ok {
			return nil, fmt.Errorf("halbridge: layout %q binding %d type %d: %w",
				desc.Label, e.Binding, e.Type, ErrUnsupported)
		}
		entries = append(entries, entry)
	}
	raw, err := d.raw.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{
		Label:   desc.Label,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("halbridge: create bind group layout %q: %w", desc.Label, err)
	}
	return raw, nil
}

// DestroyBindGroupLayout releases a layout.
func (d *Device) DestroyBindGroupLayout(h backend.BindGroupLayout) {
	if l, ok := h.(hal.BindGroupLayout); ok {
		d.raw.DestroyBindGroupLayout(l)
	}
}

// CreatePipelineLayout creates a pipeline layout.
func (d *Device) CreatePipelineLayout(desc *backend.PipelineLayoutDescriptor) (backend.PipelineLayout, error) {
	if len(desc.PushConstantRanges) > 0 {
		return nil, fmt.Errorf("halbridge: pipeline layout %q push constants: %w", desc.Label, ErrUnsupported)
	}
	layouts := make([]hal.BindGroupLayout, len(desc.BindGroupLayouts))
	for i, h := range desc.BindGroupLayouts {
		l, ok := h.(hal.BindGroupLayout)
		if !ok {
			return nil, fmt.Errorf("halbridge: pipeline layout %q group %d: %w", desc.Label, i, backend.ErrForeignHandle)
		}
		layouts[i] = l
	}
	raw, err := d.raw.CreatePipelineLayout(&hal.PipelineLayoutDescriptor{
		Label:            desc.Label,
		BindGroupLayouts: layouts,
	})
	if err != nil {
		return nil, fmt.Errorf("halbridge: create pipeline layout %q: %w", desc.Label, err)
	}
	return raw, nil
}

// DestroyPipelineLayout releases a pipeline layout.
func (d *Device) DestroyPipelineLayout(h backend.PipelineLayout) {
	if l, ok := h.(hal.PipelineLayout); ok {
		d.raw.DestroyPipelineLayout(l)
	}
}

// CreateBindGroup creates a bind group of buffer bindings.
func (d *Device) CreateBindGroup(desc *backend.BindGroupDescriptor) (backend.BindGroup, error) {
	layout, ok := desc.Layout.(hal.BindGroupLayout)
	if !ok {
		return nil, fmt.Errorf("halbridge: bind group %q layout: %w", desc.Label, backend.ErrForeignHandle)
	}
	entries := make([]gputypes.BindGroupEntry, 0, len(desc.Entries))
	for _, e := range desc.Entries {
		if e.Buffer == nil {
			return nil, fmt.Errorf("halbridge: bind group %q binding %d: %w", desc.Label, e.Binding, ErrUnsupported)
		}
		b, err := asBuffer(e.Buffer)
		if err != nil {
			return nil, fmt.Errorf("halbridge: bind group %q binding %d: %w", desc.Label, e.Binding, err)
		}
		size := e.Size
		if size == 0 && e.Offset <= b.size {
			size = b.size - e.Offset
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  e.Binding,
			Resource: gputypes.BufferBinding{Buffer: b.raw.NativeHandle(), Offset: e.Offset, Size: size},
		})
	}
	raw, err := d.raw.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   desc.Label,
		Layout:  layout,
		Entries: entries,
	})
	if err != nil {
		return nil, fmt.Errorf("halbridge: create bind group %q: %w", desc.Label, err)
	}
	return raw, nil
}

// DestroyBindGroup releases a bind group.
func (d *Device) DestroyBindGroup(h backend.BindGroup) {
	if g, ok := h.(hal.BindGroup); ok {
		d.raw.DestroyBindGroup(g)
	}
}

// CreateShaderModule creates a module from SPIR-V words.
func (d *Device) CreateShaderModule(desc *backend.ShaderModuleDescriptor) (backend.ShaderModule, error) {
	if len(desc.SPIRV) == 0 {
		return nil, fmt.Errorf("halbridge: shader module %q: empty SPIR-V", desc.Label)
	}
	raw, err := d.raw.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  desc.Label,
		Source: hal.ShaderSource{SPIRV: desc.SPIRV},
	})
	if err != nil {
		return nil, fmt.Errorf("halbridge: create shader module %q: %w", desc.Label, err)
	}
	return raw, nil
}

// DestroyShaderModule releases a shader module.
func (d *Device) DestroyShaderModule(h backend.ShaderModule) {
	if m, ok := h.(hal.ShaderModule); ok {
		d.raw.DestroyShaderModule(m)
	}
}

// CreateComputePipeline creates a compute pipeline.
func (d *Device) CreateComputePipeline(desc *backend.ComputePipelineDescriptor) (backend.ComputePipeline, error) {
	module, ok := desc.Stage.Module.(hal.ShaderModule)
	if !ok {
		return nil, fmt.Errorf("halbridge: compute pipeline %q module: %w", desc.Label, backend.ErrForeignHandle)
	}
	layout, ok := desc.Layout.(hal.PipelineLayout)
	if !ok {
		return nil, fmt.Errorf("halbridge: compute pipeline %q layout: %w", desc.Label, backend.ErrForeignHandle)
	}
	raw, err := d.raw.CreateComputePipeline(&hal.ComputePipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Compute: hal.ComputeState{
			Module:     module,
			EntryPoint: desc.Stage.EntryPoint,
		},
	})
	if err != nil {
		return nil, fmt.Errorf("halbridge: create compute pipeline %q: %w", desc.Label, err)
	}
	return raw, nil
}

// DestroyComputePipeline releases a compute pipeline.
func (d *Device) DestroyComputePipeline(h backend.ComputePipeline) {
	if p, ok := h.(hal.ComputePipeline); ok {
		d.raw.DestroyComputePipeline(p)
	}
}

// CreateRenderPipeline creates a render pipeline. A zero sample mask
// enables every sample.
func (d *Device) CreateRenderPipeline(desc *backend.RenderPipelineDescriptor) (backend.RenderPipeline, error) {
	layout, ok := desc.Layout.(hal.PipelineLayout)
	if !ok {
		return nil, fmt.Errorf("halbridge: render pipeline %q layout: %w", desc.Label, backend.ErrForeignHandle)
	}
	vertexModule, ok := desc.Vertex.Module.(hal.ShaderModule)
	if !ok {
		return nil, fmt.Errorf("halbridge: render pipeline %q vertex module: %w", desc.Label, backend.ErrForeignHandle)
	}
	buffers, ok := convertVertexBuffers(desc.VertexBuffers)
	if !ok {
		return nil, fmt.Errorf("halbridge: render pipeline %q vertex format: %w", desc.Label, ErrUnsupported)
	}

	hd := &hal.RenderPipelineDescriptor{
		Label:  desc.Label,
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vertexModule,
			EntryPoint: desc.Vertex.EntryPoint,
			Buffers:    buffers,
		},
		Primitive: convertPrimitive(desc.Primitive),
		Multisample: gputypes.MultisampleState{
			Count: max(desc.SampleCount, 1),
			Mask:  uint64(desc.SampleMask),
		},
	}
	if desc.SampleMask == 0 {
		hd.Multisample.Mask = ^uint64(0)
	}

	if ds := desc.DepthStencil; ds != nil {
		format, ok := convertTextureFormat(ds.Format)
		if !ok {
			return nil, fmt.Errorf("halbridge: render pipeline %q depth format %d: %w", desc.Label, ds.Format, ErrUnsupported)
		}
		face := hal.StencilFaceState{
			Compare:     gputypes.CompareFunctionAlways,
			FailOp:      hal.StencilOperationKeep,
			DepthFailOp: hal.StencilOperationKeep,
			PassOp:      hal.StencilOperationKeep,
		}
		hd.DepthStencil = &hal.DepthStencilState{
			Format:            format,
			DepthWriteEnabled: ds.DepthWriteEnabled,
			DepthCompare:      convertCompare(ds.DepthCompare),
			StencilFront:      face,
			StencilBack:       face,
			StencilReadMask:   0xFFFFFFFF,
			StencilWriteMask:  0xFFFFFFFF,
		}
	}

	if f := desc.Fragment; f != nil {
		module, ok := f.Module.(hal.ShaderModule)
		if !ok {
			return nil, fmt.Errorf("halbridge: render pipeline %q fragment module: %w", desc.Label, backend.ErrForeignHandle)
		}
		targets := make([]gputypes.ColorTargetState, len(desc.Targets))
		for i, t := range desc.Targets {
			target, ok := convertColorTarget(t)
			if !ok {
				return nil, fmt.Errorf("halbridge: render pipeline %q target %d format %d: %w",
					desc.Label, i, t.Format, ErrUnsupported)
			}
			targets[i] = target
		}
		hd.Fragment = &hal.FragmentState{Module: module, EntryPoint: f.EntryPoint, Targets: targets}
	}

	raw, err := d.raw.CreateRenderPipeline(hd)
	if err != nil {
		return nil, fmt.Errorf("halbridge: create render pipeline %q: %w", desc.Label, err)
	}
	return raw, nil
}

// DestroyRenderPipeline releases a render pipeline.
func (d *Device) DestroyRenderPipeline(h backend.RenderPipeline) {
	if p, ok := h.(hal.RenderPipeline); ok {
		d.raw.DestroyRenderPipeline(p)
	}
}

// CreateQuerySet creates an occlusion or timestamp query set.
// Pipeline-statistics sets are not supported.
func (d *Device) CreateQuerySet(desc *gpucore.QuerySetDescriptor) (backend.QuerySet, error) {
	kind, ok := convertQueryType(desc.Type)
	if !ok {
		return nil, fmt.Errorf("halbridge: query set %q type %s: %w", desc.Label, desc.Type, ErrUnsupported)
	}
	raw, err := d.raw.CreateQuerySet(&hal.QuerySetDescriptor{Label: desc.Label, Type: kind, Count: desc.Count})
	if err != nil {
		return nil, fmt.Errorf("halbridge: create query set %q: %w", desc.Label, err)
	}
	return &querySet{raw: raw, desc: *desc}, nil
}

// DestroyQuerySet releases a query set.
func (d *Device) DestroyQuerySet(h backend.QuerySet) {
	if q, err := asQuerySet(h); err == nil {
		d.raw.DestroyQuerySet(q.raw)
	}
}

// CreateCommandEncoder creates an encoder and begins encoding.
func (d *Device) CreateCommandEncoder(label string) (backend.CommandEncoder, error) {
	raw, err := d.raw.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("halbridge: create command encoder %q: %w", label, err)
	}
	if err := raw.BeginEncoding(label); err != nil {
		return nil, fmt.Errorf("halbridge: begin encoding %q: %w", label, err)
	}
	return &encoder{device: d, raw: raw, label: label}, nil
}

// WriteBuffer writes through the queue and waits for it to land.
func (d *Device) WriteBuffer(h backend.Buffer, offset uint64, data []byte) error {
	b, err := asBuffer(h)
	if err != nil {
		return err
	}
	if offset > b.size || uint64(len(data)) > b.size-offset {
		return fmt.Errorf("halbridge: write %d bytes at %d into %q (size %d): out of bounds",
			len(data), offset, b.label, b.size)
	}
	if err := d.queue.WriteBuffer(b.raw, offset, data); err != nil {
		return fmt.Errorf("halbridge: write buffer %q: %w", b.label, err)
	}
	return d.WaitIdle()
}

// WaitIdle waits for all submitted work and releases its command buffers.
func (d *Device) WaitIdle() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.raw.WaitIdle(); err != nil {
		return fmt.Errorf("halbridge: wait idle: %w", err)
	}
	d.reclaim(^uint64(0))
	return nil
}

// reclaim frees the command buffers and encoders of every submission up
// to and including completed. d.mu must be held.
func (d *Device) reclaim(completed uint64) {
	kept := d.pending[:0]
	for _, s := range d.pending {
		if s.index > completed {
			kept = append(kept, s)
			continue
		}
		s.cb.release(d.raw)
	}
	clear(d.pending[len(kept):])
	d.pending = kept
}

func (cb commandBuffer) release(device hal.Device) {
	device.FreeCommandBuffer(cb.raw)
	cb.enc.Destroy()
}

// Destroy waits for outstanding work, then releases the device.
func (d *Device) Destroy() {
	if err := d.WaitIdle(); err != nil {
		logging.Logger().Warn("halbridge: destroy device", "label", d.label, "err", err)
	}
	d.raw.Destroy()
}

// Queue submits to the device queue.
type Queue struct {
	device *Device
}

// WriteBuffer schedules a buffer write.
func (q *Queue) WriteBuffer(h backend.Buffer, offset uint64, data []byte) error {
	b, err := asBuffer(h)
	if err != nil {
		return err
	}
	if err := q.device.queue.WriteBuffer(b.raw, offset, data); err != nil {
		return fmt.Errorf("halbridge: write buffer %q: %w", b.label, err)
	}
	return nil
}

// WriteTexture schedules a texture write.
func (q *Queue) WriteTexture(dst *backend.ImageCopyTexture, data []byte, layout *gpucore.TextureDataLayout, size gpucore.Extent3D) error {
	t, err := asTexture(dst.Texture)
	if err != nil {
		return err
	}
	extent := convertExtent(size)
	if err := q.device.queue.WriteTexture(convertImageCopyTexture(t, dst), data, convertDataLayout(*layout), &extent); err != nil {
		return fmt.Errorf("halbridge: write texture %q: %w", t.desc.Label, err)
	}
	return nil
}

// Submit executes command buffers. Their resources are released once the
// queue reports the submission complete.
func (q *Queue) Submit(buffers []backend.CommandBuffer) error {
	cbs := make([]*commandBuffer, len(buffers))
	raw := make([]hal.CommandBuffer, len(buffers))
	for i, h := range buffers {
		cb, ok := h.(*commandBuffer)
		if !ok {
			return fmt.Errorf("halbridge: submit buffer %d: %w", i, backend.ErrForeignHandle)
		}
		cbs[i] = cb
		raw[i] = cb.raw
	}

	d := q.device
	d.mu.Lock()
	defer d.mu.Unlock()
	index, err := d.queue.Submit(raw)
	if err != nil {
		return fmt.Errorf("halbridge: submit: %w", err)
	}
	for _, cb := range cbs {
		d.pending = append(d.pending, submission{index: index, cb: *cb})
	}
	d.reclaim(d.queue.PollCompleted())
	return nil
}
