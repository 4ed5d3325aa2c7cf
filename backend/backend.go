package backend

import (
	"errors"

	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/id"
)

// Common backend errors.
var (
	// ErrBackendNotAvailable is returned when no factory is registered for a
	// backend tag.
	ErrBackendNotAvailable = errors.New("backend: not available")

	// ErrNoAdapter is returned when a factory finds no usable adapter.
	ErrNoAdapter = errors.New("backend: no adapter found")

	// ErrForeignHandle is returned when a handle created by another
	// implementation is passed to a device.
	ErrForeignHandle = errors.New("backend: handle belongs to another implementation")
)

// Opaque resource handles.
type (
	Buffer          any
	Texture         any
	TextureView     any
	Sampler         any
	BindGroupLayout any
	PipelineLayout  any
	BindGroup       any
	ShaderModule    any
	ComputePipeline any
	RenderPipeline  any
	QuerySet        any
	CommandBuffer   any
)

// AdapterInfo describes a physical adapter.
type AdapterInfo struct {
	Name    string
	Backend id.Backend
}

// Adapter is a physical device that can be opened.
type Adapter interface {
	// Info describes the adapter.
	Info() AdapterInfo

	// Open creates a logical device and its queue.
	Open(desc *gpucore.DeviceDescriptor) (Device, Queue, error)

	// Destroy releases the adapter and its instance.
	Destroy()
}

// Device creates and destroys resources.
type Device interface {
	CreateBuffer(desc *gpucore.BufferDescriptor) (Buffer, error)
	DestroyBuffer(Buffer)

	CreateTexture(desc *gpucore.TextureDescriptor) (Texture, error)
	DestroyTexture(Texture)

	CreateTextureView(texture Texture, desc *gpucore.TextureViewDescriptor) (TextureView, error)
	DestroyTextureView(TextureView)

	CreateSampler(desc *gpucore.SamplerDescriptor) (Sampler, error)
	DestroySampler(Sampler)

	CreateBindGroupLayout(desc *BindGroupLayoutDescriptor) (BindGroupLayout, error)
	DestroyBindGroupLayout(BindGroupLayout)

	CreatePipelineLayout(desc *PipelineLayoutDescriptor) (PipelineLayout, error)
	DestroyPipelineLayout(PipelineLayout)

	CreateBindGroup(desc *BindGroupDescriptor) (BindGroup, error)
	DestroyBindGroup(BindGroup)

	CreateShaderModule(desc *ShaderModuleDescriptor) (ShaderModule, error)
	DestroyShaderModule(ShaderModule)

	CreateComputePipeline(desc *ComputePipelineDescriptor) (ComputePipeline, error)
	DestroyComputePipeline(ComputePipeline)

	CreateRenderPipeline(desc *RenderPipelineDescriptor) (RenderPipeline, error)
	DestroyRenderPipeline(RenderPipeline)

	CreateQuerySet(desc *gpucore.QuerySetDescriptor) (QuerySet, error)
	DestroyQuerySet(QuerySet)

	// CreateCommandEncoder opens an encoder in the recording state.
	CreateCommandEncoder(label string) (CommandEncoder, error)

	// WriteBuffer writes data into buf immediately, outside any queue
	// ordering. The caller guarantees the GPU is not using the range.
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// WaitIdle blocks until all submitted work has completed.
	WaitIdle() error

	// Destroy releases the device.
	Destroy()
}

// Queue orders writes and submissions.
type Queue interface {
	// WriteBuffer schedules a buffer write ahead of the next submission.
	WriteBuffer(buf Buffer, offset uint64, data []byte) error

	// WriteTexture schedules a texture write ahead of the next submission.
	WriteTexture(dst *ImageCopyTexture, data []byte, layout *gpucore.TextureDataLayout, size gpucore.Extent3D) error

	// Submit executes command buffers in order. Submitted buffers are
	// consumed.
	Submit(buffers []CommandBuffer) error
}

// CommandEncoder records commands into a command buffer.
type CommandEncoder interface {
	CopyBufferToBuffer(src Buffer, srcOffset uint64, dst Buffer, dstOffset, size uint64)
	CopyBufferToTexture(src *ImageCopyBuffer, dst *ImageCopyTexture, size gpucore.Extent3D)
	CopyTextureToBuffer(src *ImageCopyTexture, dst *ImageCopyBuffer, size gpucore.Extent3D)
	CopyTextureToTexture(src, dst *ImageCopyTexture, size gpucore.Extent3D)

	BeginComputePass(desc *ComputePassDescriptor) ComputePass
	BeginRenderPass(desc *RenderPassDescriptor) RenderPass

	// ResetQueries returns slots [first, first+count) to the unavailable state.
	ResetQueries(set QuerySet, first, count uint32)
	BeginQuery(set QuerySet, index uint32)
	EndQuery(set QuerySet, index uint32)
	WriteTimestamp(set QuerySet, index uint32, stage gpucore.PipelineStage)

	// PipelineBarrier makes work in src stages visible to dst stages and
	// applies the listed buffer transitions.
	PipelineBarrier(src, dst gpucore.PipelineStage, barriers []BufferBarrier)

	// CopyQueryResults writes results of [first, first+count) into dst,
	// stride bytes apart starting at offset.
	CopyQueryResults(set QuerySet, first, count uint32, dst Buffer, offset, stride uint64, flags gpucore.QueryResultFlags)

	// Finish ends recording. Errors deferred from recording are returned here.
	Finish() (CommandBuffer, error)

	// Discard abandons recording and releases the encoder.
	Discard()
}

// ComputePass records dispatches.
type ComputePass interface {
	SetPipeline(ComputePipeline)
	SetBindGroup(index uint32, group BindGroup, offsets []uint32)
	Dispatch(x, y, z uint32)
	PushDebugGroup(label string)
	PopDebugGroup()
	InsertDebugMarker(label string)
	End()
}

// RenderPass records draws.
type RenderPass interface {
	SetPipeline(RenderPipeline)
	SetBindGroup(index uint32, group BindGroup, offsets []uint32)
	SetVertexBuffer(slot uint32, buf Buffer, offset uint64)
	SetIndexBuffer(buf Buffer, format gpucore.IndexFormat, offset uint64)
	SetViewport(x, y, width, height, minDepth, maxDepth float32)
	SetScissorRect(x, y, width, height uint32)
	SetBlendConstant(color gpucore.Color)
	SetStencilReference(reference uint32)
	Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32)
	DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32)
	PushDebugGroup(label string)
	PopDebugGroup()
	InsertDebugMarker(label string)
	End()
}
