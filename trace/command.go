package trace

import (
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/id"
)

// CommandType identifies the variant of a Command.
type CommandType uint8

const (
	// Transfers
	CmdCopyBufferToBuffer CommandType = iota
	CmdCopyBufferToTexture
	CmdCopyTextureToBuffer
	CmdCopyTextureToTexture

	// Passes
	CmdRunComputePass
	CmdRunRenderPass

	// Queries
	CmdWriteTimestamp
	CmdBeginPipelineStatisticsQuery
	CmdEndPipelineStatisticsQuery
	CmdResolveQuerySet
)

var commandTypeNames = [...]string{
	CmdCopyBufferToBuffer:           "CopyBufferToBuffer",
	CmdCopyBufferToTexture:          "CopyBufferToTexture",
	CmdCopyTextureToBuffer:          "CopyTextureToBuffer",
	CmdCopyTextureToTexture:         "CopyTextureToTexture",
	CmdRunComputePass:               "RunComputePass",
	CmdRunRenderPass:                "RunRenderPass",
	CmdWriteTimestamp:               "WriteTimestamp",
	CmdBeginPipelineStatisticsQuery: "BeginPipelineStatisticsQuery",
	CmdEndPipelineStatisticsQuery:   "EndPipelineStatisticsQuery",
	CmdResolveQuerySet:              "ResolveQuerySet",
}

// String returns the variant name used on the wire.
func (c CommandType) String() string {
	if int(c) < len(commandTypeNames) {
		return commandTypeNames[c]
	}
	return "Unknown"
}

// Command is one command of a submitted command buffer.
type Command interface {
	// Type returns the CommandType for this command.
	Type() CommandType
}

// --------------------------------------------------------------------------
// Transfers
// --------------------------------------------------------------------------

type CopyBufferToBuffer struct {
	Src       id.BufferID `json:"src"`
	SrcOffset uint64      `json:"src_offset"`
	Dst       id.BufferID `json:"dst"`
	DstOffset uint64      `json:"dst_offset"`
	Size      uint64      `json:"size"`
}

// Type implements Command.
func (CopyBufferToBuffer) Type() CommandType { return CmdCopyBufferToBuffer }

type CopyBufferToTexture struct {
	Src  BufferCopyView   `json:"src"`
	Dst  TextureCopyView  `json:"dst"`
	Size gpucore.Extent3D `json:"size"`
}

// Type implements Command.
func (CopyBufferToTexture) Type() CommandType { return CmdCopyBufferToTexture }

type CopyTextureToBuffer struct {
	Src  TextureCopyView  `json:"src"`
	Dst  BufferCopyView   `json:"dst"`
	Size gpucore.Extent3D `json:"size"`
}

// Type implements Command.
func (CopyTextureToBuffer) Type() CommandType { return CmdCopyTextureToBuffer }

type CopyTextureToTexture struct {
	Src  TextureCopyView  `json:"src"`
	Dst  TextureCopyView  `json:"dst"`
	Size gpucore.Extent3D `json:"size"`
}

// Type implements Command.
func (CopyTextureToTexture) Type() CommandType { return CmdCopyTextureToTexture }

// --------------------------------------------------------------------------
// Passes
// --------------------------------------------------------------------------

type RunComputePass struct {
	Base BasePass `json:"base"`
}

// Type implements Command.
func (RunComputePass) Type() CommandType { return CmdRunComputePass }

// ColorAttachment is one color target of a render pass.
type ColorAttachment struct {
	Attachment    id.TextureViewID  `json:"attachment"`
	ResolveTarget *id.TextureViewID `json:"resolve_target"`
	LoadOp        gpucore.LoadOp    `json:"load_op"`
	StoreOp       gpucore.StoreOp   `json:"store_op"`
	ClearColor    gpucore.Color     `json:"clear_color"`
}

// DepthStencilAttachment is the depth/stencil target of a render pass.
type DepthStencilAttachment struct {
	Attachment      id.TextureViewID `json:"attachment"`
	DepthLoadOp     gpucore.LoadOp   `json:"depth_load_op"`
	DepthStoreOp    gpucore.StoreOp  `json:"depth_store_op"`
	ClearDepth      float32          `json:"clear_depth"`
	DepthReadOnly   bool             `json:"depth_read_only"`
	StencilLoadOp   gpucore.LoadOp   `json:"stencil_load_op"`
	StencilStoreOp  gpucore.StoreOp  `json:"stencil_store_op"`
	ClearStencil    uint32           `json:"clear_stencil"`
	StencilReadOnly bool             `json:"stencil_read_only"`
}

type RunRenderPass struct {
	Base               BasePass                `json:"base"`
	TargetColors       []ColorAttachment       `json:"target_colors"`
	TargetDepthStencil *DepthStencilAttachment `json:"target_depth_stencil"`
}

// Type implements Command.
func (RunRenderPass) Type() CommandType { return CmdRunRenderPass }

// --------------------------------------------------------------------------
// Queries
// --------------------------------------------------------------------------

type WriteTimestamp struct {
	QuerySet   id.QuerySetID         `json:"query_set"`
	QueryIndex uint32                `json:"query_index"`
	Stage      gpucore.PipelineStage `json:"stage"`
}

// Type implements Command.
func (WriteTimestamp) Type() CommandType { return CmdWriteTimestamp }

type BeginPipelineStatisticsQuery struct {
	QuerySet   id.QuerySetID `json:"query_set"`
	QueryIndex uint32        `json:"query_index"`
}

// Type implements Command.
func (BeginPipelineStatisticsQuery) Type() CommandType { return CmdBeginPipelineStatisticsQuery }

type EndPipelineStatisticsQuery struct {
	QuerySet   id.QuerySetID `json:"query_set"`
	QueryIndex uint32        `json:"query_index"`
}

// Type implements Command.
func (EndPipelineStatisticsQuery) Type() CommandType { return CmdEndPipelineStatisticsQuery }

// ResolveQuerySet copies QueryCount results starting at FirstQuery into
// Destination at DestinationOffset.
type ResolveQuerySet struct {
	QuerySet          id.QuerySetID `json:"query_set"`
	FirstQuery        uint32        `json:"start_query"`
	QueryCount        uint32        `json:"query_count"`
	Destination       id.BufferID   `json:"destination"`
	DestinationOffset uint64        `json:"destination_offset"`
}

// Type implements Command.
func (ResolveQuerySet) Type() CommandType { return CmdResolveQuerySet }
