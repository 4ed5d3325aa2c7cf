package trace

import (
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/id"
)

// PassCommandType identifies the variant of a PassCommand.
type PassCommandType uint8

const (
	// State
	PassSetBindGroup PassCommandType = iota
	PassSetComputePipeline
	PassSetRenderPipeline
	PassSetVertexBuffer
	PassSetIndexBuffer
	PassSetViewport
	PassSetScissorRect
	PassSetBlendConstant
	PassSetStencilReference

	// Work
	PassDraw
	PassDrawIndexed
	PassDispatch
	PassExecuteBundles

	// Debug markers
	PassPushDebugGroup
	PassPopDebugGroup
	PassInsertDebugMarker
)

var passCommandTypeNames = [...]string{
	PassSetBindGroup:        "SetBindGroup",
	PassSetComputePipeline:  "SetComputePipeline",
	PassSetRenderPipeline:   "SetRenderPipeline",
	PassSetVertexBuffer:     "SetVertexBuffer",
	PassSetIndexBuffer:      "SetIndexBuffer",
	PassSetViewport:         "SetViewport",
	PassSetScissorRect:      "SetScissorRect",
	PassSetBlendConstant:    "SetBlendConstant",
	PassSetStencilReference: "SetStencilReference",
	PassDraw:                "Draw",
	PassDrawIndexed:         "DrawIndexed",
	PassDispatch:            "Dispatch",
	PassExecuteBundles:      "ExecuteBundles",
	PassPushDebugGroup:      "PushDebugGroup",
	PassPopDebugGroup:       "PopDebugGroup",
	PassInsertDebugMarker:   "InsertDebugMarker",
}

// String returns the variant name used on the wire.
func (t PassCommandType) String() string {
	if int(t) < len(passCommandTypeNames) {
		return passCommandTypeNames[t]
	}
	return "Unknown"
}

// PassCommand is one command recorded inside a compute pass, render pass
// or render bundle.
type PassCommand interface {
	// Type returns the PassCommandType for this command.
	Type() PassCommandType
}

// BasePass is the recorded body of a pass or render bundle.
type BasePass struct {
	Label    string          `json:"label"`
	Commands PassCommandList `json:"commands"`
}

// SetBindGroup binds group BindGroup at Index with the given dynamic
// offsets.
type SetBindGroup struct {
	Index     uint32         `json:"index"`
	BindGroup id.BindGroupID `json:"bind_group"`
	Offsets   []uint32       `json:"offsets"`
}

// Type implements PassCommand.
func (SetBindGroup) Type() PassCommandType { return PassSetBindGroup }

type SetComputePipeline struct {
	Pipeline id.ComputePipelineID `json:"pipeline"`
}

// Type implements PassCommand.
func (SetComputePipeline) Type() PassCommandType { return PassSetComputePipeline }

type SetRenderPipeline struct {
	Pipeline id.RenderPipelineID `json:"pipeline"`
}

// Type implements PassCommand.
func (SetRenderPipeline) Type() PassCommandType { return PassSetRenderPipeline }

type SetVertexBuffer struct {
	Slot   uint32      `json:"slot"`
	Buffer id.BufferID `json:"buffer"`
	Offset uint64      `json:"offset"`
}

// Type implements PassCommand.
func (SetVertexBuffer) Type() PassCommandType { return PassSetVertexBuffer }

type SetIndexBuffer struct {
	Buffer id.BufferID         `json:"buffer"`
	Format gpucore.IndexFormat `json:"format"`
	Offset uint64              `json:"offset"`
}

// Type implements PassCommand.
func (SetIndexBuffer) Type() PassCommandType { return PassSetIndexBuffer }

type SetViewport struct {
	X        float32 `json:"x"`
	Y        float32 `json:"y"`
	Width    float32 `json:"w"`
	Height   float32 `json:"h"`
	MinDepth float32 `json:"min_depth"`
	MaxDepth float32 `json:"max_depth"`
}

// Type implements PassCommand.
func (SetViewport) Type() PassCommandType { return PassSetViewport }

type SetScissorRect struct {
	X      uint32 `json:"x"`
	Y      uint32 `json:"y"`
	Width  uint32 `json:"w"`
	Height uint32 `json:"h"`
}

// Type implements PassCommand.
func (SetScissorRect) Type() PassCommandType { return PassSetScissorRect }

type SetBlendConstant struct {
	Color gpucore.Color `json:"color"`
}

// Type implements PassCommand.
func (SetBlendConstant) Type() PassCommandType { return PassSetBlendConstant }

type SetStencilReference struct {
	Reference uint32 `json:"reference"`
}

// Type implements PassCommand.
func (SetStencilReference) Type() PassCommandType { return PassSetStencilReference }

type Draw struct {
	VertexCount   uint32 `json:"vertex_count"`
	InstanceCount uint32 `json:"instance_count"`
	FirstVertex   uint32 `json:"first_vertex"`
	FirstInstance uint32 `json:"first_instance"`
}

// Type implements PassCommand.
func (Draw) Type() PassCommandType { return PassDraw }

type DrawIndexed struct {
	IndexCount    uint32 `json:"index_count"`
	InstanceCount uint32 `json:"instance_count"`
	FirstIndex    uint32 `json:"first_index"`
	BaseVertex    int32  `json:"base_vertex"`
	FirstInstance uint32 `json:"first_instance"`
}

// Type implements PassCommand.
func (DrawIndexed) Type() PassCommandType { return PassDrawIndexed }

type Dispatch struct {
	X uint32 `json:"x"`
	Y uint32 `json:"y"`
	Z uint32 `json:"z"`
}

// Type implements PassCommand.
func (Dispatch) Type() PassCommandType { return PassDispatch }

// ExecuteBundles replays render bundles inside a render pass.
type ExecuteBundles struct {
	Bundles []id.RenderBundleID `json:"bundles"`
}

// Type implements PassCommand.
func (ExecuteBundles) Type() PassCommandType { return PassExecuteBundles }

type PushDebugGroup struct {
	Label string `json:"label"`
}

// Type implements PassCommand.
func (PushDebugGroup) Type() PassCommandType { return PassPushDebugGroup }

type PopDebugGroup struct{}

// Type implements PassCommand.
func (PopDebugGroup) Type() PassCommandType { return PassPopDebugGroup }

type InsertDebugMarker struct {
	Label string `json:"label"`
}

// Type implements PassCommand.
func (InsertDebugMarker) Type() PassCommandType { return PassInsertDebugMarker }
