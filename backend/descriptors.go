package backend

import "github.com/gogpu/gpuplay/gpucore"

// BindGroupLayoutDescriptor describes a bind group layout.
type BindGroupLayoutDescriptor struct {
	Label   string
	Entries []gpucore.BindGroupLayoutEntry
}

// PipelineLayoutDescriptor describes a pipeline layout.
type PipelineLayoutDescriptor struct {
	Label              string
	BindGroupLayouts   []BindGroupLayout
	PushConstantRanges []gpucore.PushConstantRange
}

// BindGroupEntry binds one resource. Exactly one of Buffer, Sampler or
// TextureViews is set.
type BindGroupEntry struct {
	Binding uint32

	Buffer Buffer
	Offset uint64
	// Size of the bound range. Zero binds the rest of the buffer.
	Size uint64

	Sampler Sampler

	// TextureViews holds one view, or several for array bindings.
	TextureViews []TextureView
}

// BindGroupDescriptor describes a bind group.
type BindGroupDescriptor struct {
	Label   string
	Layout  BindGroupLayout
	Entries []BindGroupEntry
}

// ShaderModuleDescriptor describes a shader module as SPIR-V words.
type ShaderModuleDescriptor struct {
	Label string
	SPIRV []uint32
}

// ProgrammableStage is one shader entry point.
type ProgrammableStage struct {
	Module     ShaderModule
	EntryPoint string
}

// ComputePipelineDescriptor describes a compute pipeline.
type ComputePipelineDescriptor struct {
	Label  string
	Layout PipelineLayout
	Stage  ProgrammableStage
}

// RenderPipelineDescriptor describes a render pipeline.
type RenderPipelineDescriptor struct {
	Label         string
	Layout        PipelineLayout
	Vertex        ProgrammableStage
	Fragment      *ProgrammableStage
	VertexBuffers []gpucore.VertexBufferLayout
	Targets       []gpucore.ColorTargetState
	Primitive     gpucore.PrimitiveState
	DepthStencil  *gpucore.DepthStencilState
	SampleCount   uint32
	SampleMask    uint32
}

// ImageCopyBuffer locates texel data in a buffer.
type ImageCopyBuffer struct {
	Buffer Buffer
	Layout gpucore.TextureDataLayout
}

// ImageCopyTexture locates a region of a texture.
type ImageCopyTexture struct {
	Texture  Texture
	MipLevel uint32
	Origin   gpucore.Origin3D
	Aspect   gpucore.TextureAspect
}

// ComputePassDescriptor describes a compute pass.
type ComputePassDescriptor struct {
	Label string
}

// ColorAttachment is one color target of a render pass.
type ColorAttachment struct {
	View          TextureView
	ResolveTarget TextureView
	LoadOp        gpucore.LoadOp
	StoreOp       gpucore.StoreOp
	ClearValue    gpucore.Color
}

// DepthStencilAttachment is the depth/stencil target of a render pass.
type DepthStencilAttachment struct {
	View              TextureView
	DepthLoadOp       gpucore.LoadOp
	DepthStoreOp      gpucore.StoreOp
	DepthClearValue   float32
	DepthReadOnly     bool
	StencilLoadOp     gpucore.LoadOp
	StencilStoreOp    gpucore.StoreOp
	StencilClearValue uint32
	StencilReadOnly   bool
}

// RenderPassDescriptor describes a render pass.
type RenderPassDescriptor struct {
	Label                  string
	ColorAttachments       []ColorAttachment
	DepthStencilAttachment *DepthStencilAttachment
}

// BufferBarrier transitions one buffer between uses.
type BufferBarrier struct {
	Buffer Buffer
	Usage  gpucore.BufferUseTransition
}
