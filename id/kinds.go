package id

// Kind markers. Each is a zero-size type used only as the type argument
// of [ID].
type (
	Adapter         struct{}
	Device          struct{}
	SwapChain       struct{}
	PipelineLayout  struct{}
	BindGroupLayout struct{}
	BindGroup       struct{}
	CommandBuffer   struct{}
	RenderBundle    struct{}
	ComputePipeline struct{}
	RenderPipeline  struct{}
	QuerySet        struct{}
	ShaderModule    struct{}
	Buffer          struct{}
	Texture         struct{}
	TextureView     struct{}
	Sampler         struct{}
)

func (Adapter) KindName() string         { return "Adapter" }
func (Device) KindName() string          { return "Device" }
func (SwapChain) KindName() string       { return "SwapChain" }
func (PipelineLayout) KindName() string  { return "PipelineLayout" }
func (BindGroupLayout) KindName() string { return "BindGroupLayout" }
func (BindGroup) KindName() string       { return "BindGroup" }
func (CommandBuffer) KindName() string   { return "CommandBuffer" }
func (RenderBundle) KindName() string    { return "RenderBundle" }
func (ComputePipeline) KindName() string { return "ComputePipeline" }
func (RenderPipeline) KindName() string  { return "RenderPipeline" }
func (QuerySet) KindName() string        { return "QuerySet" }
func (ShaderModule) KindName() string    { return "ShaderModule" }
func (Buffer) KindName() string          { return "Buffer" }
func (Texture) KindName() string         { return "Texture" }
func (TextureView) KindName() string     { return "TextureView" }
func (Sampler) KindName() string         { return "Sampler" }

// Typed ids.
type (
	AdapterID         = ID[Adapter]
	DeviceID          = ID[Device]
	SwapChainID       = ID[SwapChain]
	PipelineLayoutID  = ID[PipelineLayout]
	BindGroupLayoutID = ID[BindGroupLayout]
	BindGroupID       = ID[BindGroup]
	CommandBufferID   = ID[CommandBuffer]
	RenderBundleID    = ID[RenderBundle]
	ComputePipelineID = ID[ComputePipeline]
	RenderPipelineID  = ID[RenderPipeline]
	QuerySetID        = ID[QuerySet]
	ShaderModuleID    = ID[ShaderModule]
	BufferID          = ID[Buffer]
	TextureID         = ID[Texture]
	TextureViewID     = ID[TextureView]
	SamplerID         = ID[Sampler]

	// CommandEncoderID shares the command-buffer id space: finishing an
	// encoder turns it into the command buffer with the same id.
	CommandEncoderID = ID[CommandBuffer]
)
