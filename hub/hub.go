package hub

import (
	"github.com/gogpu/gpuplay/id"
)

// Hub holds one registry per object kind for a single backend.
type Hub struct {
	backend id.Backend

	Adapters         *Registry[id.Adapter, *Adapter]
	Devices          *Registry[id.Device, *Device]
	SwapChains       *Registry[id.SwapChain, *SwapChain]
	PipelineLayouts  *Registry[id.PipelineLayout, *PipelineLayout]
	BindGroupLayouts *Registry[id.BindGroupLayout, *BindGroupLayout]
	BindGroups       *Registry[id.BindGroup, *BindGroup]
	CommandBuffers   *Registry[id.CommandBuffer, *CommandBuffer]
	RenderBundles    *Registry[id.RenderBundle, *RenderBundle]
	ComputePipelines *Registry[id.ComputePipeline, *ComputePipeline]
	RenderPipelines  *Registry[id.RenderPipeline, *RenderPipeline]
	QuerySets        *Registry[id.QuerySet, *QuerySet]
	ShaderModules    *Registry[id.ShaderModule, *ShaderModule]
	Buffers          *Registry[id.Buffer, *Buffer]
	Textures         *Registry[id.Texture, *Texture]
	TextureViews     *Registry[id.TextureView, *TextureView]
	Samplers         *Registry[id.Sampler, *Sampler]
}

// NewHub returns a hub with empty registries for backend b.
func NewHub(b id.Backend) *Hub {
	return &Hub{
		backend:          b,
		Adapters:         NewRegistry[id.Adapter, *Adapter](b, LevelAdapter),
		Devices:          NewRegistry[id.Device, *Device](b, LevelDevice),
		SwapChains:       NewRegistry[id.SwapChain, *SwapChain](b, LevelSwapChain),
		PipelineLayouts:  NewRegistry[id.PipelineLayout, *PipelineLayout](b, LevelPipelineLayout),
		BindGroupLayouts: NewRegistry[id.BindGroupLayout, *BindGroupLayout](b, LevelBindGroupLayout),
		BindGroups:       NewRegistry[id.BindGroup, *BindGroup](b, LevelBindGroup),
		CommandBuffers:   NewRegistry[id.CommandBuffer, *CommandBuffer](b, LevelCommandBuffer),
		RenderBundles:    NewRegistry[id.RenderBundle, *RenderBundle](b, LevelRenderBundle),
		ComputePipelines: NewRegistry[id.ComputePipeline, *ComputePipeline](b, LevelComputePipeline),
		RenderPipelines:  NewRegistry[id.RenderPipeline, *RenderPipeline](b, LevelRenderPipeline),
		QuerySets:        NewRegistry[id.QuerySet, *QuerySet](b, LevelQuerySet),
		ShaderModules:    NewRegistry[id.ShaderModule, *ShaderModule](b, LevelShaderModule),
		Buffers:          NewRegistry[id.Buffer, *Buffer](b, LevelBuffer),
		Textures:         NewRegistry[id.Texture, *Texture](b, LevelTexture),
		TextureViews:     NewRegistry[id.TextureView, *TextureView](b, LevelTextureView),
		Samplers:         NewRegistry[id.Sampler, *Sampler](b, LevelSampler),
	}
}

// Backend returns the hub's backend tag.
func (h *Hub) Backend() id.Backend { return h.backend }

// MaintainIDs resynchronizes every identity manager with its registry, so
// ids allocated afterwards never collide with ids that were registered
// directly.
func (h *Hub) MaintainIDs() {
	h.Adapters.syncIdentity()
	h.Devices.syncIdentity()
	h.SwapChains.syncIdentity()
	h.PipelineLayouts.syncIdentity()
	h.BindGroupLayouts.syncIdentity()
	h.BindGroups.syncIdentity()
	h.CommandBuffers.syncIdentity()
	h.RenderBundles.syncIdentity()
	h.ComputePipelines.syncIdentity()
	h.RenderPipelines.syncIdentity()
	h.QuerySets.syncIdentity()
	h.ShaderModules.syncIdentity()
	h.Buffers.syncIdentity()
	h.Textures.syncIdentity()
	h.TextureViews.syncIdentity()
	h.Samplers.syncIdentity()
}

// Registry selectors used by the generic device operations.

func pipelineLayouts(h *Hub) *Registry[id.PipelineLayout, *PipelineLayout] { return h.PipelineLayouts }
func bindGroupLayouts(h *Hub) *Registry[id.BindGroupLayout, *BindGroupLayout] { return h.BindGroupLayouts }
func bindGroups(h *Hub) *Registry[id.BindGroup, *BindGroup] { return h.BindGroups }
func renderBundles(h *Hub) *Registry[id.RenderBundle, *RenderBundle] { return h.RenderBundles }
func computePipelines(h *Hub) *Registry[id.ComputePipeline, *ComputePipeline] { return h.ComputePipelines }
func renderPipelines(h *Hub) *Registry[id.RenderPipeline, *RenderPipeline] { return h.RenderPipelines }
func querySets(h *Hub) *Registry[id.QuerySet, *QuerySet] { return h.QuerySets }
func shaderModules(h *Hub) *Registry[id.ShaderModule, *ShaderModule] { return h.ShaderModules }
func buffers(h *Hub) *Registry[id.Buffer, *Buffer] { return h.Buffers }
func textures(h *Hub) *Registry[id.Texture, *Texture] { return h.Textures }
func textureViews(h *Hub) *Registry[id.TextureView, *TextureView] { return h.TextureViews }
func samplers(h *Hub) *Registry[id.Sampler, *Sampler] { return h.Samplers }
