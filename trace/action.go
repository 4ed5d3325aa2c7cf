package trace

import (
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/id"
)

// ActionType identifies the variant of an Action.
type ActionType uint8

const (
	// Device
	ActInit ActionType = iota

	// Resources
	ActCreateBuffer
	ActDestroyBuffer
	ActCreateTexture
	ActDestroyTexture
	ActCreateTextureView
	ActDestroyTextureView
	ActCreateSampler
	ActDestroySampler

	// Presentation
	ActCreateSwapChain
	ActGetSwapChainTexture
	ActPresentSwapChain

	// Binding model
	ActCreateBindGroupLayout
	ActDestroyBindGroupLayout
	ActCreatePipelineLayout
	ActDestroyPipelineLayout
	ActCreateBindGroup
	ActDestroyBindGroup

	// Pipelines
	ActCreateShaderModule
	ActDestroyShaderModule
	ActCreateComputePipeline
	ActDestroyComputePipeline
	ActCreateRenderPipeline
	ActDestroyRenderPipeline
	ActCreateRenderBundle
	ActDestroyRenderBundle
	ActCreateQuerySet
	ActDestroyQuerySet

	// Queue
	ActWriteBuffer
	ActWriteTexture
	ActSubmit
)

var actionTypeNames = [...]string{
	ActInit:                   "Init",
	ActCreateBuffer:           "CreateBuffer",
	ActDestroyBuffer:          "DestroyBuffer",
	ActCreateTexture:          "CreateTexture",
	ActDestroyTexture:         "DestroyTexture",
	ActCreateTextureView:      "CreateTextureView",
	ActDestroyTextureView:     "DestroyTextureView",
	ActCreateSampler:          "CreateSampler",
	ActDestroySampler:         "DestroySampler",
	ActCreateSwapChain:        "CreateSwapChain",
	ActGetSwapChainTexture:    "GetSwapChainTexture",
	ActPresentSwapChain:       "PresentSwapChain",
	ActCreateBindGroupLayout:  "CreateBindGroupLayout",
	ActDestroyBindGroupLayout: "DestroyBindGroupLayout",
	ActCreatePipelineLayout:   "CreatePipelineLayout",
	ActDestroyPipelineLayout:  "DestroyPipelineLayout",
	ActCreateBindGroup:        "CreateBindGroup",
	ActDestroyBindGroup:       "DestroyBindGroup",
	ActCreateShaderModule:     "CreateShaderModule",
	ActDestroyShaderModule:    "DestroyShaderModule",
	ActCreateComputePipeline:  "CreateComputePipeline",
	ActDestroyComputePipeline: "DestroyComputePipeline",
	ActCreateRenderPipeline:   "CreateRenderPipeline",
	ActDestroyRenderPipeline:  "DestroyRenderPipeline",
	ActCreateRenderBundle:     "CreateRenderBundle",
	ActDestroyRenderBundle:    "DestroyRenderBundle",
	ActCreateQuerySet:         "CreateQuerySet",
	ActDestroyQuerySet:        "DestroyQuerySet",
	ActWriteBuffer:            "WriteBuffer",
	ActWriteTexture:           "WriteTexture",
	ActSubmit:                 "Submit",
}

// String returns the variant name used on the wire.
func (t ActionType) String() string {
	if int(t) < len(actionTypeNames) {
		return actionTypeNames[t]
	}
	return "Unknown"
}

// Action is one recorded device-level operation. The set of variants is
// closed; every implementation lives in this file.
type Action interface {
	// Type returns the ActionType for this action.
	Type() ActionType
}

// --------------------------------------------------------------------------
// Shared payload types
// --------------------------------------------------------------------------

// TextureCopyView names a texel region origin inside a texture.
type TextureCopyView struct {
	Texture  id.TextureID          `json:"texture"`
	MipLevel uint32                `json:"mip_level"`
	Origin   gpucore.Origin3D      `json:"origin"`
	Aspect   gpucore.TextureAspect `json:"aspect"`
}

// BufferCopyView names texel data inside a buffer.
type BufferCopyView struct {
	Buffer id.BufferID               `json:"buffer"`
	Layout gpucore.TextureDataLayout `json:"layout"`
}

// ProgrammableStage selects an entry point of a shader module.
type ProgrammableStage struct {
	Module     id.ShaderModuleID `json:"module"`
	EntryPoint string            `json:"entry_point"`
}

// BindingResource is the resource bound at one binding slot. Exactly one
// of Buffer, Sampler and TextureViews is set.
type BindingResource struct {
	Buffer       *BufferBinding     `json:"buffer,omitempty"`
	Sampler      *id.SamplerID      `json:"sampler,omitempty"`
	TextureViews []id.TextureViewID `json:"texture_views,omitempty"`
}

// BufferBinding binds a buffer range. A zero Size binds the rest of the
// buffer.
type BufferBinding struct {
	Buffer id.BufferID `json:"buffer"`
	Offset uint64      `json:"offset"`
	Size   uint64      `json:"size"`
}

// BindGroupEntry is one binding of a bind group. Entries are kept sorted
// by Binding.
type BindGroupEntry struct {
	Binding  uint32          `json:"binding"`
	Resource BindingResource `json:"resource"`
}

// ComputePipelineDescriptor is the recorded form of a compute pipeline.
type ComputePipelineDescriptor struct {
	Label        string              `json:"label"`
	Layout       id.PipelineLayoutID `json:"layout"`
	ComputeStage ProgrammableStage   `json:"compute_stage"`
}

// RenderPipelineDescriptor is the recorded form of a render pipeline.
type RenderPipelineDescriptor struct {
	Label         string                       `json:"label"`
	Layout        id.PipelineLayoutID          `json:"layout"`
	VertexStage   ProgrammableStage            `json:"vertex_stage"`
	FragmentStage *ProgrammableStage           `json:"fragment_stage"`
	VertexBuffers []gpucore.VertexBufferLayout `json:"vertex_buffers"`
	ColorStates   []gpucore.ColorTargetState   `json:"color_states"`
	Primitive     gpucore.PrimitiveState       `json:"primitive"`
	DepthStencil  *gpucore.DepthStencilState   `json:"depth_stencil"`
	SampleCount   uint32                       `json:"sample_count"`
	SampleMask    uint32                       `json:"sample_mask"`
}

// RenderBundleDescriptor describes the attachments a bundle is compatible
// with.
type RenderBundleDescriptor struct {
	Label              string                  `json:"label"`
	ColorFormats       []gpucore.TextureFormat `json:"color_formats"`
	DepthStencilFormat *gpucore.TextureFormat  `json:"depth_stencil_format"`
	SampleCount        uint32                  `json:"sample_count"`
}

// --------------------------------------------------------------------------
// Device
// --------------------------------------------------------------------------

// Init opens the traced device. It is always the first action of a trace.
type Init struct {
	Desc    gpucore.DeviceDescriptor `json:"desc"`
	Backend id.Backend               `json:"backend"`
}

// Type implements Action.
func (Init) Type() ActionType { return ActInit }

// --------------------------------------------------------------------------
// Resources
// --------------------------------------------------------------------------

type CreateBuffer struct {
	ID   id.BufferID              `json:"id"`
	Desc gpucore.BufferDescriptor `json:"desc"`
}

// Type implements Action.
func (CreateBuffer) Type() ActionType { return ActCreateBuffer }

type DestroyBuffer struct {
	ID id.BufferID `json:"id"`
}

// Type implements Action.
func (DestroyBuffer) Type() ActionType { return ActDestroyBuffer }

type CreateTexture struct {
	ID   id.TextureID              `json:"id"`
	Desc gpucore.TextureDescriptor `json:"desc"`
}

// Type implements Action.
func (CreateTexture) Type() ActionType { return ActCreateTexture }

type DestroyTexture struct {
	ID id.TextureID `json:"id"`
}

// Type implements Action.
func (DestroyTexture) Type() ActionType { return ActDestroyTexture }

// CreateTextureView creates a view of Parent. A nil Desc views the whole
// texture with its own format.
type CreateTextureView struct {
	ID     id.TextureViewID               `json:"id"`
	Parent id.TextureID                   `json:"parent_id"`
	Desc   *gpucore.TextureViewDescriptor `json:"desc"`
}

// Type implements Action.
func (CreateTextureView) Type() ActionType { return ActCreateTextureView }

type DestroyTextureView struct {
	ID id.TextureViewID `json:"id"`
}

// Type implements Action.
func (DestroyTextureView) Type() ActionType { return ActDestroyTextureView }

type CreateSampler struct {
	ID   id.SamplerID              `json:"id"`
	Desc gpucore.SamplerDescriptor `json:"desc"`
}

// Type implements Action.
func (CreateSampler) Type() ActionType { return ActCreateSampler }

type DestroySampler struct {
	ID id.SamplerID `json:"id"`
}

// Type implements Action.
func (DestroySampler) Type() ActionType { return ActDestroySampler }

// --------------------------------------------------------------------------
// Presentation
// --------------------------------------------------------------------------

type CreateSwapChain struct {
	ID   id.SwapChainID              `json:"id"`
	Desc gpucore.SwapChainDescriptor `json:"desc"`
}

// Type implements Action.
func (CreateSwapChain) Type() ActionType { return ActCreateSwapChain }

// GetSwapChainTexture acquires the next frame. ID is nil when the
// acquisition failed at capture time.
type GetSwapChainTexture struct {
	ID     *id.TextureViewID `json:"id"`
	Parent id.SwapChainID    `json:"parent_id"`
}

// Type implements Action.
func (GetSwapChainTexture) Type() ActionType { return ActGetSwapChainTexture }

type PresentSwapChain struct {
	ID id.SwapChainID `json:"id"`
}

// Type implements Action.
func (PresentSwapChain) Type() ActionType { return ActPresentSwapChain }

// --------------------------------------------------------------------------
// Binding model
// --------------------------------------------------------------------------

type CreateBindGroupLayout struct {
	ID      id.BindGroupLayoutID           `json:"id"`
	Label   string                         `json:"label"`
	Entries []gpucore.BindGroupLayoutEntry `json:"entries"`
}

// Type implements Action.
func (CreateBindGroupLayout) Type() ActionType { return ActCreateBindGroupLayout }

type DestroyBindGroupLayout struct {
	ID id.BindGroupLayoutID `json:"id"`
}

// Type implements Action.
func (DestroyBindGroupLayout) Type() ActionType { return ActDestroyBindGroupLayout }

type CreatePipelineLayout struct {
	ID                 id.PipelineLayoutID         `json:"id"`
	Label              string                      `json:"label"`
	BindGroupLayouts   []id.BindGroupLayoutID      `json:"bind_group_layouts"`
	PushConstantRanges []gpucore.PushConstantRange `json:"push_constant_ranges"`
}

// Type implements Action.
func (CreatePipelineLayout) Type() ActionType { return ActCreatePipelineLayout }

type DestroyPipelineLayout struct {
	ID id.PipelineLayoutID `json:"id"`
}

// Type implements Action.
func (DestroyPipelineLayout) Type() ActionType { return ActDestroyPipelineLayout }

type CreateBindGroup struct {
	ID      id.BindGroupID       `json:"id"`
	Label   string               `json:"label"`
	Layout  id.BindGroupLayoutID `json:"layout_id"`
	Entries []BindGroupEntry     `json:"entries"`
}

// Type implements Action.
func (CreateBindGroup) Type() ActionType { return ActCreateBindGroup }

type DestroyBindGroup struct {
	ID id.BindGroupID `json:"id"`
}

// Type implements Action.
func (DestroyBindGroup) Type() ActionType { return ActDestroyBindGroup }

// --------------------------------------------------------------------------
// Pipelines
// --------------------------------------------------------------------------

// CreateShaderModule references the shader source stored next to the
// trace. The extension of Data selects the source language.
type CreateShaderModule struct {
	ID    id.ShaderModuleID `json:"id"`
	Label string            `json:"label"`
	Data  string            `json:"data"`
}

// Type implements Action.
func (CreateShaderModule) Type() ActionType { return ActCreateShaderModule }

type DestroyShaderModule struct {
	ID id.ShaderModuleID `json:"id"`
}

// Type implements Action.
func (DestroyShaderModule) Type() ActionType { return ActDestroyShaderModule }

type CreateComputePipeline struct {
	ID   id.ComputePipelineID      `json:"id"`
	Desc ComputePipelineDescriptor `json:"desc"`
}

// Type implements Action.
func (CreateComputePipeline) Type() ActionType { return ActCreateComputePipeline }

type DestroyComputePipeline struct {
	ID id.ComputePipelineID `json:"id"`
}

// Type implements Action.
func (DestroyComputePipeline) Type() ActionType { return ActDestroyComputePipeline }

type CreateRenderPipeline struct {
	ID   id.RenderPipelineID      `json:"id"`
	Desc RenderPipelineDescriptor `json:"desc"`
}

// Type implements Action.
func (CreateRenderPipeline) Type() ActionType { return ActCreateRenderPipeline }

type DestroyRenderPipeline struct {
	ID id.RenderPipelineID `json:"id"`
}

// Type implements Action.
func (DestroyRenderPipeline) Type() ActionType { return ActDestroyRenderPipeline }

// CreateRenderBundle records a reusable list of render pass commands.
type CreateRenderBundle struct {
	ID   id.RenderBundleID      `json:"id"`
	Desc RenderBundleDescriptor `json:"desc"`
	Base BasePass               `json:"base"`
}

// Type implements Action.
func (CreateRenderBundle) Type() ActionType { return ActCreateRenderBundle }

type DestroyRenderBundle struct {
	ID id.RenderBundleID `json:"id"`
}

// Type implements Action.
func (DestroyRenderBundle) Type() ActionType { return ActDestroyRenderBundle }

type CreateQuerySet struct {
	ID   id.QuerySetID              `json:"id"`
	Desc gpucore.QuerySetDescriptor `json:"desc"`
}

// Type implements Action.
func (CreateQuerySet) Type() ActionType { return ActCreateQuerySet }

type DestroyQuerySet struct {
	ID id.QuerySetID `json:"id"`
}

// Type implements Action.
func (DestroyQuerySet) Type() ActionType { return ActDestroyQuerySet }

// --------------------------------------------------------------------------
// Queue
// --------------------------------------------------------------------------

// WriteBuffer stores Range of buffer ID from the blob named by Data.
// Queued writes went through the queue; the others were immediate
// sub-range writes on an idle buffer.
type WriteBuffer struct {
	ID     id.BufferID   `json:"id"`
	Data   string        `json:"data"`
	Range  gpucore.Range `json:"range"`
	Queued bool          `json:"queued"`
}

// Type implements Action.
func (WriteBuffer) Type() ActionType { return ActWriteBuffer }

type WriteTexture struct {
	To     TextureCopyView           `json:"to"`
	Data   string                    `json:"data"`
	Layout gpucore.TextureDataLayout `json:"layout"`
	Size   gpucore.Extent3D          `json:"size"`
}

// Type implements Action.
func (WriteTexture) Type() ActionType { return ActWriteTexture }

// Submit is one queue submission of a single command buffer.
type Submit struct {
	Index    uint64      `json:"index"`
	Commands CommandList `json:"commands"`
}

// Type implements Action.
func (Submit) Type() ActionType { return ActSubmit }
