package halbridge

import (
	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
)

// convertBufferUsage converts gpucore.BufferUsage to gputypes.BufferUsage.
func convertBufferUsage(usage gpucore.BufferUsage) gputypes.BufferUsage {
	var result gputypes.BufferUsage

	if usage&gpucore.BufferUsageMapRead != 0 {
		result |= gputypes.BufferUsageMapRead
	}
	if usage&gpucore.BufferUsageMapWrite != 0 {
		result |= gputypes.BufferUsageMapWrite
	}
	if usage&gpucore.BufferUsageCopySrc != 0 {
		result |= gputypes.BufferUsageCopySrc
	}
	if usage&gpucore.BufferUsageCopyDst != 0 {
		result |= gputypes.BufferUsageCopyDst
	}
	if usage&gpucore.BufferUsageIndex != 0 {
		result |= gputypes.BufferUsageIndex
	}
	if usage&gpucore.BufferUsageVertex != 0 {
		result |= gputypes.BufferUsageVertex
	}
	if usage&gpucore.BufferUsageUniform != 0 {
		result |= gputypes.BufferUsageUniform
	}
	if usage&gpucore.BufferUsageStorage != 0 {
		result |= gputypes.BufferUsageStorage
	}
	if usage&gpucore.BufferUsageIndirect != 0 {
		result |= gputypes.BufferUsageIndirect
	}

	return result
}

// convertTextureUsage converts gpucore.TextureUsage to gputypes.TextureUsage.
func convertTextureUsage(usage gpucore.TextureUsage) gputypes.TextureUsage {
	var result gputypes.TextureUsage

	if usage&gpucore.TextureUsageCopySrc != 0 {
		result |= gputypes.TextureUsageCopySrc
	}
	if usage&gpucore.TextureUsageCopyDst != 0 {
		result |= gputypes.TextureUsageCopyDst
	}
	if usage&gpucore.TextureUsageTextureBinding != 0 {
		result |= gputypes.TextureUsageTextureBinding
	}
	if usage&gpucore.TextureUsageStorageBinding != 0 {
		result |= gputypes.TextureUsageStorageBinding
	}
	if usage&gpucore.TextureUsageRenderAttachment != 0 {
		result |= gputypes.TextureUsageRenderAttachment
	}

	return result
}

// convertTextureFormat reports false for formats the bridge does not map.
func convertTextureFormat(format gpucore.TextureFormat) (gputypes.TextureFormat, bool) {
	switch format {
	case gpucore.TextureFormatRGBA8Unorm:
		return gputypes.TextureFormatRGBA8Unorm, true
	case gpucore.TextureFormatBGRA8Unorm:
		return gputypes.TextureFormatBGRA8Unorm, true
	case gpucore.TextureFormatR8Unorm:
		return gputypes.TextureFormatR8Unorm, true
	case gpucore.TextureFormatDepth24PlusStencil8:
		return gputypes.TextureFormatDepth24PlusStencil8, true
	default:
		return gputypes.TextureFormatUndefined, false
	}
}

func convertTextureDimension(d gpucore.TextureDimension) gputypes.TextureDimension {
	switch d {
	case gpucore.TextureDimension1D:
		return gputypes.TextureDimension1D
	case gpucore.TextureDimension3D:
		return gputypes.TextureDimension3D
	default:
		return gputypes.TextureDimension2D
	}
}

func convertViewDimension(d gpucore.TextureViewDimension) gputypes.TextureViewDimension {
	switch d {
	case gpucore.TextureViewDimension1D:
		return gputypes.TextureViewDimension1D
	case gpucore.TextureViewDimension3D:
		return gputypes.TextureViewDimension3D
	default:
		return gputypes.TextureViewDimension2D
	}
}

func convertAddressMode(m gpucore.AddressMode) gputypes.AddressMode {
	switch m {
	case gpucore.AddressModeRepeat:
		return gputypes.AddressModeRepeat
	case gpucore.AddressModeMirrorRepeat:
		return gputypes.AddressModeMirrorRepeat
	default:
		return gputypes.AddressModeClampToEdge
	}
}

func convertFilterMode(m gpucore.FilterMode) gputypes.FilterMode {
	if m == gpucore.FilterModeLinear {
		return gputypes.FilterModeLinear
	}
	return gputypes.FilterModeNearest
}

func convertShaderStages(s gpucore.ShaderStage) gputypes.ShaderStage {
	var result gputypes.ShaderStage
	if s&gpucore.ShaderStageVertex != 0 {
		result |= gputypes.ShaderStageVertex
	}
	if s&gpucore.ShaderStageFragment != 0 {
		result |= gputypes.ShaderStageFragment
	}
	if s&gpucore.ShaderStageCompute != 0 {
		result |= gputypes.ShaderStageCompute
	}
	return result
}

// convertLayoutEntry converts a buffer binding. It reports false for
// sampler and texture bindings.
func convertLayoutEntry(e gpucore.BindGroupLayoutEntry) (gputypes.BindGroupLayoutEntry, bool) {
	var kind gputypes.BufferBindingType
	switch e.Type {
	case gpucore.BindingTypeUniformBuffer:
		kind = gputypes.BufferBindingTypeUniform
	case gpucore.BindingTypeStorageBuffer:
		kind = gputypes.BufferBindingTypeStorage
	case gpucore.BindingTypeReadOnlyStorageBuffer:
		kind = gputypes.BufferBindingTypeReadOnlyStorage
	default:
		return gputypes.BindGroupLayoutEntry{}, false
	}
	return gputypes.BindGroupLayoutEntry{
		Binding:    e.Binding,
		Visibility: convertShaderStages(e.Visibility),
		Buffer:     &gputypes.BufferBindingLayout{Type: kind},
	}, true
}

func convertExtent(e gpucore.Extent3D) hal.Extent3D {
	return hal.Extent3D{Width: e.Width, Height: e.Height, DepthOrArrayLayers: max(e.DepthOrArrayLayers, 1)}
}

func convertDataLayout(l gpucore.TextureDataLayout) *hal.ImageDataLayout {
	return &hal.ImageDataLayout{Offset: l.Offset, BytesPerRow: l.BytesPerRow, RowsPerImage: l.RowsPerImage}
}

func convertImageCopyTexture(t *texture, c *backend.ImageCopyTexture) *hal.ImageCopyTexture {
	return &hal.ImageCopyTexture{
		Texture:  t.raw,
		MipLevel: c.MipLevel,
		Origin:   hal.Origin3D{X: c.Origin.X, Y: c.Origin.Y, Z: c.Origin.Z},
		Aspect:   gputypes.TextureAspectAll,
	}
}

// convertBufferUse maps a tracked buffer use. Uses share their bits with
// buffer usages.
func convertBufferUse(u gpucore.BufferUse) gputypes.BufferUsage {
	return convertBufferUsage(gpucore.BufferUsage(u))
}

// convertQueryType reports false for pipeline-statistics sets, which HAL
// cannot create.
func convertQueryType(t gpucore.QueryType) (hal.QueryType, bool) {
	switch t {
	case gpucore.QueryTypeOcclusion:
		return hal.QueryTypeOcclusion, true
	case gpucore.QueryTypeTimestamp:
		return hal.QueryTypeTimestamp, true
	default:
		return 0, false
	}
}

func convertLoadOp(op gpucore.LoadOp) gputypes.LoadOp {
	if op == gpucore.LoadOpLoad {
		return gputypes.LoadOpLoad
	}
	return gputypes.LoadOpClear
}

func convertStoreOp(op gpucore.StoreOp) gputypes.StoreOp {
	if op == gpucore.StoreOpDiscard {
		return gputypes.StoreOpDiscard
	}
	return gputypes.StoreOpStore
}

func convertColor(c gpucore.Color) gputypes.Color {
	return gputypes.Color{R: c.R, G: c.G, B: c.B, A: c.A}
}

func convertIndexFormat(f gpucore.IndexFormat) gputypes.IndexFormat {
	if f == gpucore.IndexFormatUint32 {
		return gputypes.IndexFormatUint32
	}
	return gputypes.IndexFormatUint16
}

// convertCompare relies on both enums listing the functions in the same
// order after Undefined.
func convertCompare(c gpucore.CompareFunction) gputypes.CompareFunction {
	return gputypes.CompareFunction(c)
}

func convertVertexFormat(f gpucore.VertexFormat) (gputypes.VertexFormat, bool) {
	switch f {
	case gpucore.VertexFormatFloat32:
		return gputypes.VertexFormatFloat32, true
	case gpucore.VertexFormatFloat32x2:
		return gputypes.VertexFormatFloat32x2, true
	case gpucore.VertexFormatFloat32x3:
		return gputypes.VertexFormatFloat32x3, true
	case gpucore.VertexFormatFloat32x4:
		return gputypes.VertexFormatFloat32x4, true
	case gpucore.VertexFormatUint32:
		return gputypes.VertexFormatUint32, true
	default:
		return gputypes.VertexFormatUndefined, false
	}
}

func convertVertexBuffers(layouts []gpucore.VertexBufferLayout) ([]gputypes.VertexBufferLayout, bool) {
	out := make([]gputypes.VertexBufferLayout, len(layouts))
	for i, l := range layouts {
		step := gputypes.VertexStepModeVertex
		if l.StepMode == gpucore.VertexStepModeInstance {
			step = gputypes.VertexStepModeInstance
		}
		attrs := make([]gputypes.VertexAttribute, len(l.Attributes))
		for j, a := range l.Attributes {
			format, ok := convertVertexFormat(a.Format)
			if !ok {
				return nil, false
			}
			attrs[j] = gputypes.VertexAttribute{Format: format, Offset: a.Offset, ShaderLocation: a.ShaderLocation}
		}
		out[i] = gputypes.VertexBufferLayout{ArrayStride: l.ArrayStride, StepMode: step, Attributes: attrs}
	}
	return out, true
}

func convertPrimitive(p gpucore.PrimitiveState) gputypes.PrimitiveState {
	var topology gputypes.PrimitiveTopology
	switch p.Topology {
	case gpucore.PrimitiveTopologyPointList:
		topology = gputypes.PrimitiveTopologyPointList
	case gpucore.PrimitiveTopologyLineList:
		topology = gputypes.PrimitiveTopologyLineList
	case gpucore.PrimitiveTopologyLineStrip:
		topology = gputypes.PrimitiveTopologyLineStrip
	case gpucore.PrimitiveTopologyTriangleStrip:
		topology = gputypes.PrimitiveTopologyTriangleStrip
	default:
		topology = gputypes.PrimitiveTopologyTriangleList
	}
	cull := gputypes.CullModeNone
	switch p.CullMode {
	case gpucore.CullModeFront:
		cull = gputypes.CullModeFront
	case gpucore.CullModeBack:
		cull = gputypes.CullModeBack
	}
	return gputypes.PrimitiveState{Topology: topology, FrontFace: gputypes.FrontFaceCCW, CullMode: cull}
}

// convertColorTarget maps a zero write mask to all channels, the default
// of a recorded color state.
func convertColorTarget(t gpucore.ColorTargetState) (gputypes.ColorTargetState, bool) {
	format, ok := convertTextureFormat(t.Format)
	if !ok {
		return gputypes.ColorTargetState{}, false
	}
	out := gputypes.ColorTargetState{Format: format, WriteMask: gputypes.ColorWriteMask(t.WriteMask)}
	if t.WriteMask == 0 {
		out.WriteMask = gputypes.ColorWriteMaskAll
	}
	if t.Blend {
		blend := gputypes.BlendStateAlpha()
		out.Blend = &blend
	}
	return out, true
}
