package gpucore

import "fmt"

// BufferUsage is a bitmask specifying how a buffer will be used.
type BufferUsage uint32

// Buffer usage flags.
const (
	// BufferUsageMapRead indicates the buffer can be mapped for reading.
	BufferUsageMapRead BufferUsage = 1 << 0

	// BufferUsageMapWrite indicates the buffer can be mapped for writing.
	BufferUsageMapWrite BufferUsage = 1 << 1

	// BufferUsageCopySrc indicates the buffer can be used as a copy source.
	BufferUsageCopySrc BufferUsage = 1 << 2

	// BufferUsageCopyDst indicates the buffer can be used as a copy destination.
	BufferUsageCopyDst BufferUsage = 1 << 3

	// BufferUsageIndex indicates the buffer can be used as an index buffer.
	BufferUsageIndex BufferUsage = 1 << 4

	// BufferUsageVertex indicates the buffer can be used as a vertex buffer.
	BufferUsageVertex BufferUsage = 1 << 5

	// BufferUsageUniform indicates the buffer can be used as a uniform buffer.
	BufferUsageUniform BufferUsage = 1 << 6

	// BufferUsageStorage indicates the buffer can be used as a storage buffer.
	BufferUsageStorage BufferUsage = 1 << 7

	// BufferUsageIndirect indicates the buffer can be used for indirect dispatch/draw.
	BufferUsageIndirect BufferUsage = 1 << 8
)

// Contains reports whether every flag in other is set in u.
func (u BufferUsage) Contains(other BufferUsage) bool {
	return u&other == other
}

// TextureFormat specifies the format of texture data.
type TextureFormat uint32

// Texture formats.
const (
	// TextureFormatUndefined inherits the format from the parent texture
	// when used in a view descriptor.
	TextureFormatUndefined TextureFormat = iota

	// TextureFormatRGBA8Unorm is 8-bit RGBA, normalized unsigned integer.
	TextureFormatRGBA8Unorm

	// TextureFormatRGBA8UnormSRGB is 8-bit RGBA, normalized unsigned integer in sRGB color space.
	TextureFormatRGBA8UnormSRGB

	// TextureFormatBGRA8Unorm is 8-bit BGRA, normalized unsigned integer.
	TextureFormatBGRA8Unorm

	// TextureFormatBGRA8UnormSRGB is 8-bit BGRA, normalized unsigned integer in sRGB color space.
	TextureFormatBGRA8UnormSRGB

	// TextureFormatR8Unorm is 8-bit red channel only, normalized unsigned integer.
	TextureFormatR8Unorm

	// TextureFormatR32Float is 32-bit red channel only, floating point.
	TextureFormatR32Float

	// TextureFormatRG32Float is 32-bit RG, floating point.
	TextureFormatRG32Float

	// TextureFormatRGBA32Float is 32-bit RGBA, floating point.
	TextureFormatRGBA32Float

	// TextureFormatDepth32Float is a 32-bit float depth format.
	TextureFormatDepth32Float

	// TextureFormatDepth24PlusStencil8 is a combined depth and 8-bit stencil format.
	TextureFormatDepth24PlusStencil8
)

// BytesPerPixel returns the size of one texel, or 0 for formats without a
// defined linear layout.
func (f TextureFormat) BytesPerPixel() uint32 {
	switch f {
	case TextureFormatR8Unorm:
		return 1
	case TextureFormatRGBA8Unorm, TextureFormatRGBA8UnormSRGB,
		TextureFormatBGRA8Unorm, TextureFormatBGRA8UnormSRGB,
		TextureFormatR32Float, TextureFormatDepth32Float,
		TextureFormatDepth24PlusStencil8:
		return 4
	case TextureFormatRG32Float:
		return 8
	case TextureFormatRGBA32Float:
		return 16
	default:
		return 0
	}
}

// TextureUsage is a bitmask specifying how a texture will be used.
type TextureUsage uint32

// Texture usage flags.
const (
	// TextureUsageCopySrc indicates the texture can be used as a copy source.
	TextureUsageCopySrc TextureUsage = 1 << 0

	// TextureUsageCopyDst indicates the texture can be used as a copy destination.
	TextureUsageCopyDst TextureUsage = 1 << 1

	// TextureUsageTextureBinding indicates the texture can be bound as a sampled texture.
	TextureUsageTextureBinding TextureUsage = 1 << 2

	// TextureUsageStorageBinding indicates the texture can be bound as a storage texture.
	TextureUsageStorageBinding TextureUsage = 1 << 3

	// TextureUsageRenderAttachment indicates the texture can be used as a render target.
	TextureUsageRenderAttachment TextureUsage = 1 << 4
)

// Contains reports whether every flag in other is set in u.
func (u TextureUsage) Contains(other TextureUsage) bool {
	return u&other == other
}

// TextureDimension is the dimensionality of a texture.
type TextureDimension uint32

// Texture dimensions.
const (
	TextureDimension1D TextureDimension = iota
	TextureDimension2D
	TextureDimension3D
)

// TextureViewDimension is the dimensionality a view exposes.
// The zero value inherits the texture's dimension.
type TextureViewDimension uint32

// Texture view dimensions.
const (
	TextureViewDimensionUndefined TextureViewDimension = iota
	TextureViewDimension1D
	TextureViewDimension2D
	TextureViewDimension2DArray
	TextureViewDimensionCube
	TextureViewDimensionCubeArray
	TextureViewDimension3D
)

// TextureAspect selects the aspects of a texture a view or copy touches.
type TextureAspect uint32

// Texture aspects.
const (
	TextureAspectAll TextureAspect = iota
	TextureAspectStencilOnly
	TextureAspectDepthOnly
)

// Extent3D is the size of a texture region.
type Extent3D struct {
	Width              uint32 `json:"width"`
	Height             uint32 `json:"height"`
	DepthOrArrayLayers uint32 `json:"depth"`
}

// Origin3D is the texel origin of a texture region.
type Origin3D struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
	Z uint32 `json:"z"`
}

// TextureDataLayout describes texel data in a linear buffer.
type TextureDataLayout struct {
	Offset       uint64 `json:"offset"`
	BytesPerRow  uint32 `json:"bytes_per_row"`
	RowsPerImage uint32 `json:"rows_per_image"`
}

// Color is an RGBA value used for clears and blend constants.
type Color struct {
	R float64 `json:"r"`
	G float64 `json:"g"`
	B float64 `json:"b"`
	A float64 `json:"a"`
}

// LoadOp is the action taken on an attachment at the start of a render pass.
type LoadOp uint32

// Load operations.
const (
	LoadOpClear LoadOp = iota
	LoadOpLoad
)

// StoreOp is the action taken on an attachment at the end of a render pass.
type StoreOp uint32

// Store operations.
const (
	StoreOpStore StoreOp = iota
	StoreOpDiscard
)

// IndexFormat is the element type of an index buffer.
type IndexFormat uint32

// Index formats.
const (
	IndexFormatUint16 IndexFormat = iota
	IndexFormatUint32
)

// Size returns the size of one index in bytes.
func (f IndexFormat) Size() uint64 {
	if f == IndexFormatUint32 {
		return 4
	}
	return 2
}

// AddressMode controls sampling outside [0, 1].
type AddressMode uint32

// Address modes.
const (
	AddressModeClampToEdge AddressMode = iota
	AddressModeRepeat
	AddressModeMirrorRepeat
)

// FilterMode controls texel filtering.
type FilterMode uint32

// Filter modes.
const (
	FilterModeNearest FilterMode = iota
	FilterModeLinear
)

// CompareFunction is a depth, stencil or sampler comparison.
type CompareFunction uint32

// Compare functions. The zero value means no comparison.
const (
	CompareFunctionUndefined CompareFunction = iota
	CompareFunctionNever
	CompareFunctionLess
	CompareFunctionEqual
	CompareFunctionLessEqual
	CompareFunctionGreater
	CompareFunctionNotEqual
	CompareFunctionGreaterEqual
	CompareFunctionAlways
)

// ShaderStage is a bitmask of programmable stages.
type ShaderStage uint32

// Shader stages.
const (
	ShaderStageVertex   ShaderStage = 1 << 0
	ShaderStageFragment ShaderStage = 1 << 1
	ShaderStageCompute  ShaderStage = 1 << 2
)

// BindingType specifies the type of a shader binding.
type BindingType uint32

// Binding types.
const (
	// BindingTypeUniformBuffer is a uniform buffer binding.
	BindingTypeUniformBuffer BindingType = iota + 1

	// BindingTypeStorageBuffer is a storage buffer binding (read-write).
	BindingTypeStorageBuffer

	// BindingTypeReadOnlyStorageBuffer is a read-only storage buffer binding.
	BindingTypeReadOnlyStorageBuffer

	// BindingTypeSampler is a texture sampler binding.
	BindingTypeSampler

	// BindingTypeSampledTexture is a sampled texture binding.
	BindingTypeSampledTexture

	// BindingTypeStorageTexture is a storage texture binding.
	BindingTypeStorageTexture
)

// IsBuffer reports whether the binding takes a buffer.
func (t BindingType) IsBuffer() bool {
	return t == BindingTypeUniformBuffer || t == BindingTypeStorageBuffer || t == BindingTypeReadOnlyStorageBuffer
}

// VertexFormat is the type of one vertex attribute.
type VertexFormat uint32

// Vertex formats.
const (
	VertexFormatFloat32 VertexFormat = iota
	VertexFormatFloat32x2
	VertexFormatFloat32x3
	VertexFormatFloat32x4
	VertexFormatUint32
)

// VertexStepMode selects per-vertex or per-instance stepping.
type VertexStepMode uint32

// Vertex step modes.
const (
	VertexStepModeVertex VertexStepMode = iota
	VertexStepModeInstance
)

// PrimitiveTopology is how vertices are assembled into primitives.
type PrimitiveTopology uint32

// Primitive topologies.
const (
	PrimitiveTopologyPointList PrimitiveTopology = iota
	PrimitiveTopologyLineList
	PrimitiveTopologyLineStrip
	PrimitiveTopologyTriangleList
	PrimitiveTopologyTriangleStrip
)

// CullMode selects which faces are discarded.
type CullMode uint32

// Cull modes.
const (
	CullModeNone CullMode = iota
	CullModeFront
	CullModeBack
)

// BufferDescriptor describes a buffer.
type BufferDescriptor struct {
	Label            string      `json:"label"`
	Size             uint64      `json:"size"`
	Usage            BufferUsage `json:"usage"`
	MappedAtCreation bool        `json:"mapped_at_creation"`
}

// TextureDescriptor describes a texture.
type TextureDescriptor struct {
	Label         string           `json:"label"`
	Size          Extent3D         `json:"size"`
	MipLevelCount uint32           `json:"mip_level_count"`
	SampleCount   uint32           `json:"sample_count"`
	Dimension     TextureDimension `json:"dimension"`
	Format        TextureFormat    `json:"format"`
	Usage         TextureUsage     `json:"usage"`
}

// TextureViewDescriptor describes a view of a texture. Zero counts mean
// "all remaining".
type TextureViewDescriptor struct {
	Label           string               `json:"label"`
	Format          TextureFormat        `json:"format"`
	Dimension       TextureViewDimension `json:"dimension"`
	Aspect          TextureAspect        `json:"aspect"`
	BaseMipLevel    uint32               `json:"base_mip_level"`
	MipLevelCount   uint32               `json:"mip_level_count"`
	BaseArrayLayer  uint32               `json:"base_array_layer"`
	ArrayLayerCount uint32               `json:"array_layer_count"`
}

// SamplerDescriptor describes a sampler.
type SamplerDescriptor struct {
	Label        string          `json:"label"`
	AddressModeU AddressMode     `json:"address_mode_u"`
	AddressModeV AddressMode     `json:"address_mode_v"`
	AddressModeW AddressMode     `json:"address_mode_w"`
	MagFilter    FilterMode      `json:"mag_filter"`
	MinFilter    FilterMode      `json:"min_filter"`
	MipmapFilter FilterMode      `json:"mipmap_filter"`
	LodMinClamp  float32         `json:"lod_min_clamp"`
	LodMaxClamp  float32         `json:"lod_max_clamp"`
	Compare      CompareFunction `json:"compare"`
}

// BindGroupLayoutEntry describes a single binding in a bind group layout.
type BindGroupLayoutEntry struct {
	// Binding is the binding index.
	Binding uint32 `json:"binding"`

	// Visibility lists the stages that can see the binding.
	Visibility ShaderStage `json:"visibility"`

	// Type is the type of resource bound at this index.
	Type BindingType `json:"ty"`

	// HasDynamicOffset marks buffer bindings whose offset is supplied at
	// SetBindGroup time.
	HasDynamicOffset bool `json:"has_dynamic_offset"`

	// MinBindingSize is the minimum buffer size for buffer bindings.
	// Set to 0 for non-buffer bindings.
	MinBindingSize uint64 `json:"min_binding_size"`

	// Count makes the binding an array of this many textures. Zero means a
	// single binding.
	Count uint32 `json:"count"`
}

// PushConstantRange is a range of push-constant memory visible to stages.
type PushConstantRange struct {
	Stages ShaderStage `json:"stages"`
	Start  uint32      `json:"start"`
	End    uint32      `json:"end"`
}

// VertexAttribute describes one attribute within a vertex buffer.
type VertexAttribute struct {
	Format         VertexFormat `json:"format"`
	Offset         uint64       `json:"offset"`
	ShaderLocation uint32       `json:"shader_location"`
}

// VertexBufferLayout describes how one vertex buffer is read.
type VertexBufferLayout struct {
	ArrayStride uint64            `json:"array_stride"`
	StepMode    VertexStepMode    `json:"step_mode"`
	Attributes  []VertexAttribute `json:"attributes"`
}

// ColorTargetState describes one color output of a render pipeline.
type ColorTargetState struct {
	Format    TextureFormat `json:"format"`
	Blend     bool          `json:"blend"`
	WriteMask uint32        `json:"write_mask"`
}

// PrimitiveState describes primitive assembly.
type PrimitiveState struct {
	Topology PrimitiveTopology `json:"topology"`
	CullMode CullMode          `json:"cull_mode"`
}

// DepthStencilState describes depth and stencil testing.
type DepthStencilState struct {
	Format            TextureFormat   `json:"format"`
	DepthWriteEnabled bool            `json:"depth_write_enabled"`
	DepthCompare      CompareFunction `json:"depth_compare"`
}

// DeviceDescriptor describes the device a trace was captured on.
type DeviceDescriptor struct {
	Label    string `json:"label"`
	Features uint64 `json:"features"`
}

// SwapChainDescriptor describes a presentation surface configuration.
type SwapChainDescriptor struct {
	Usage       TextureUsage  `json:"usage"`
	Format      TextureFormat `json:"format"`
	Width       uint32        `json:"width"`
	Height      uint32        `json:"height"`
	PresentMode uint32        `json:"present_mode"`
}

// Range is a half-open byte range [Start, End).
type Range struct {
	Start uint64 `json:"start"`
	End   uint64 `json:"end"`
}

// Len returns End-Start, or 0 for an inverted range.
func (r Range) Len() uint64 {
	if r.End < r.Start {
		return 0
	}
	return r.End - r.Start
}

// String formats the range as start..end.
func (r Range) String() string {
	return fmt.Sprintf("%d..%d", r.Start, r.End)
}
