package halbridge

import (
	"fmt"

	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
)

// encoder wraps a HAL encoder that is already encoding. The first error
// found while recording is returned from Finish.
type encoder struct {
	device   *Device
	raw      hal.CommandEncoder
	label    string
	err      error
	finished bool
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) unsupported(op string) {
	e.fail(fmt.Errorf("halbridge: %s: %w", op, ErrUnsupported))
}

func (e *encoder) CopyBufferToBuffer(srcH backend.Buffer, srcOffset uint64, dstH backend.Buffer, dstOffset, size uint64) {
	src, err := asBuffer(srcH)
	if err != nil {
		e.fail(err)
		return
	}
	dst, err := asBuffer(dstH)
	if err != nil {
		e.fail(err)
		return
	}
	e.raw.CopyBufferToBuffer(src.raw, dst.raw, []hal.BufferCopy{
		{SrcOffset: srcOffset, DstOffset: dstOffset, Size: size},
	})
}

func (e *encoder) CopyBufferToTexture(src *backend.ImageCopyBuffer, dst *backend.ImageCopyTexture, size gpucore.Extent3D) {
	b, err := asBuffer(src.Buffer)
	if err != nil {
		e.fail(err)
		return
	}
	t, err := asTexture(dst.Texture)
	if err != nil {
		e.fail(err)
		return
	}
	e.raw.CopyBufferToTexture(b.raw, t.raw, []hal.BufferTextureCopy{{
		BufferLayout: *convertDataLayout(src.Layout),
		TextureBase:  *convertImageCopyTexture(t, dst),
		Size:         convertExtent(size),
	}})
}

func (e *encoder) CopyTextureToBuffer(src *backend.ImageCopyTexture, dst *backend.ImageCopyBuffer, size gpucore.Extent3D) {
	t, err := asTexture(src.Texture)
	if err != nil {
		e.fail(err)
		return
	}
	b, err := asBuffer(dst.Buffer)
	if err != nil {
		e.fail(err)
		return
	}
	e.raw.CopyTextureToBuffer(t.raw, b.raw, []hal.BufferTextureCopy{{
		BufferLayout: *convertDataLayout(dst.Layout),
		TextureBase:  *convertImageCopyTexture(t, src),
		Size:         convertExtent(size),
	}})
}

func (e *encoder) CopyTextureToTexture(src, dst *backend.ImageCopyTexture, size gpucore.Extent3D) {
	from, err := asTexture(src.Texture)
	if err != nil {
		e.fail(err)
		return
	}
	to, err := asTexture(dst.Texture)
	if err != nil {
		e.fail(err)
		return
	}
	e.raw.CopyTextureToTexture(from.raw, to.raw, []hal.TextureCopy{{
		SrcBase: *convertImageCopyTexture(from, src),
		DstBase: *convertImageCopyTexture(to, dst),
		Size:    convertExtent(size),
	}})
}

func (e *encoder) BeginComputePass(desc *backend.ComputePassDescriptor) backend.ComputePass {
	return &computePass{enc: e, raw: e.raw.BeginComputePass(&hal.ComputePassDescriptor{Label: desc.Label})}
}

// BeginRenderPass opens a HAL render pass. A pass whose attachments cannot
// be converted records nothing and fails the encoder.
func (e *encoder) BeginRenderPass(desc *backend.RenderPassDescriptor) backend.RenderPass {
	hd := &hal.RenderPassDescriptor{
		Label:            desc.Label,
		ColorAttachments: make([]hal.RenderPassColorAttachment, len(desc.ColorAttachments)),
	}
	for i, a := range desc.ColorAttachments {
		view, ok := a.View.(hal.TextureView)
		if !ok {
			e.fail(fmt.Errorf("render pass %q color %d: %w", desc.Label, i, backend.ErrForeignHandle))
			return discardRenderPass{}
		}
		hd.ColorAttachments[i] = hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     convertLoadOp(a.LoadOp),
			StoreOp:    convertStoreOp(a.StoreOp),
			ClearValue: convertColor(a.ClearValue),
		}
		if a.ResolveTarget != nil {
			resolve, ok := a.ResolveTarget.(hal.TextureView)
			if !ok {
				e.fail(fmt.Errorf("render pass %q resolve %d: %w", desc.Label, i, backend.ErrForeignHandle))
				return discardRenderPass{}
			}
			hd.ColorAttachments[i].ResolveTarget = resolve
		}
	}
	if ds := desc.DepthStencilAttachment; ds != nil {
		view, ok := ds.View.(hal.TextureView)
		if !ok {
			e.fail(fmt.Errorf("render pass %q depth: %w", desc.Label, backend.ErrForeignHandle))
			return discardRenderPass{}
		}
		hd.DepthStencilAttachment = &hal.RenderPassDepthStencilAttachment{
			View:              view,
			DepthLoadOp:       convertLoadOp(ds.DepthLoadOp),
			DepthStoreOp:      convertStoreOp(ds.DepthStoreOp),
			DepthClearValue:   ds.DepthClearValue,
			DepthReadOnly:     ds.DepthReadOnly,
			StencilLoadOp:     convertLoadOp(ds.StencilLoadOp),
			StencilStoreOp:    convertStoreOp(ds.StencilStoreOp),
			StencilClearValue: ds.StencilClearValue,
			StencilReadOnly:   ds.StencilReadOnly,
		}
	}
	return &renderPass{enc: e, raw: e.raw.BeginRenderPass(hd)}
}

// ResetQueries is implicit: the HAL layer resets a set when it is created
// and each timestamp slot before it is written.
func (e *encoder) ResetQueries(h backend.QuerySet, _, _ uint32) {
	if _, err := asQuerySet(h); err != nil {
		e.fail(err)
	}
}

// The HAL encoder has no query scopes, so occlusion sets can be created
// and resolved but never written.
func (e *encoder) BeginQuery(backend.QuerySet, uint32) { e.unsupported("begin query scope") }

func (e *encoder) EndQuery(backend.QuerySet, uint32) { e.unsupported("end query scope") }

// WriteTimestamp writes through an empty compute pass that records its
// start time into the slot. The stage is not observable at this level.
func (e *encoder) WriteTimestamp(h backend.QuerySet, index uint32, _ gpucore.PipelineStage) {
	set, err := asQuerySet(h)
	if err != nil {
		e.fail(err)
		return
	}
	pass := e.raw.BeginComputePass(&hal.ComputePassDescriptor{
		Label: "timestamp",
		TimestampWrites: &hal.ComputePassTimestampWrites{
			QuerySet:                  set.raw,
			BeginningOfPassWriteIndex: &index,
		},
	})
	pass.End()
}

// PipelineBarrier emits the buffer transitions. Execution dependencies
// without buffers are inserted by the HAL layer itself.
func (e *encoder) PipelineBarrier(_, _ gpucore.PipelineStage, barriers []backend.BufferBarrier) {
	if len(barriers) == 0 {
		return
	}
	raw := make([]hal.BufferBarrier, len(barriers))
	for i, b := range barriers {
		buf, err := asBuffer(b.Buffer)
		if err != nil {
			e.fail(err)
			return
		}
		raw[i] = hal.BufferBarrier{
			Buffer: buf.raw,
			Usage: hal.BufferUsageTransition{
				OldUsage: convertBufferUse(b.Usage.From),
				NewUsage: convertBufferUse(b.Usage.To),
			},
		}
	}
	e.raw.TransitionBuffers(raw)
}

// CopyQueryResults resolves packed 64-bit results. Strides other than 8
// resolve one query at a time.
func (e *encoder) CopyQueryResults(h backend.QuerySet, first, count uint32, dstH backend.Buffer, offset, stride uint64, _ gpucore.QueryResultFlags) {
	set, err := asQuerySet(h)
	if err != nil {
		e.fail(err)
		return
	}
	dst, err := asBuffer(dstH)
	if err != nil {
		e.fail(err)
		return
	}
	if stride == 8 {
		e.raw.ResolveQuerySet(set.raw, first, count, dst.raw, offset)
		return
	}
	for i := range count {
		e.raw.ResolveQuerySet(set.raw, first+i, 1, dst.raw, offset+uint64(i)*stride)
	}
}

func (e *encoder) Finish() (backend.CommandBuffer, error) {
	if e.finished {
		return nil, fmt.Errorf("halbridge: encoder %q already finished", e.label)
	}
	e.finished = true
	if e.err != nil {
		e.release()
		return nil, fmt.Errorf("finish %q: %w", e.label, e.err)
	}
	raw, err := e.raw.EndEncoding()
	if err != nil {
		e.raw.Destroy()
		return nil, fmt.Errorf("halbridge: end encoding %q: %w", e.label, err)
	}
	return &commandBuffer{raw: raw, enc: e.raw}, nil
}

func (e *encoder) Discard() {
	if !e.finished {
		e.finished = true
		e.release()
	}
}

// release drops whatever was recorded and destroys the encoder.
func (e *encoder) release() {
	e.raw.DiscardEncoding()
	e.raw.Destroy()
}

// computePass forwards to a HAL compute pass. Debug markers are dropped.
type computePass struct {
	enc *encoder
	raw hal.ComputePassEncoder
}

func (p *computePass) SetPipeline(h backend.ComputePipeline) {
	pipeline, ok := h.(hal.ComputePipeline)
	if !ok {
		p.enc.fail(fmt.Errorf("compute pipeline %T: %w", h, backend.ErrForeignHandle))
		return
	}
	p.raw.SetPipeline(pipeline)
}

func (p *computePass) SetBindGroup(index uint32, h backend.BindGroup, offsets []uint32) {
	group, ok := h.(hal.BindGroup)
	if !ok {
		p.enc.fail(fmt.Errorf("bind group %T: %w", h, backend.ErrForeignHandle))
		return
	}
	p.raw.SetBindGroup(index, group, offsets)
}

func (p *computePass) Dispatch(x, y, z uint32) { p.raw.Dispatch(x, y, z) }

func (p *computePass) PushDebugGroup(string) {}

func (p *computePass) PopDebugGroup() {}

func (p *computePass) InsertDebugMarker(string) {}

func (p *computePass) End() { p.raw.End() }

// renderPass forwards to a HAL render pass. Debug markers are dropped.
type renderPass struct {
	enc *encoder
	raw hal.RenderPassEncoder
}

func (p *renderPass) SetPipeline(h backend.RenderPipeline) {
	pipeline, ok := h.(hal.RenderPipeline)
	if !ok {
		p.enc.fail(fmt.Errorf("render pipeline %T: %w", h, backend.ErrForeignHandle))
		return
	}
	p.raw.SetPipeline(pipeline)
}

func (p *renderPass) SetBindGroup(index uint32, h backend.BindGroup, offsets []uint32) {
	group, ok := h.(hal.BindGroup)
	if !ok {
		p.enc.fail(fmt.Errorf("bind group %T: %w", h, backend.ErrForeignHandle))
		return
	}
	p.raw.SetBindGroup(index, group, offsets)
}

func (p *renderPass) SetVertexBuffer(slot uint32, h backend.Buffer, offset uint64) {
	b, err := asBuffer(h)
	if err != nil {
		p.enc.fail(err)
		return
	}
	p.raw.SetVertexBuffer(slot, b.raw, offset)
}

func (p *renderPass) SetIndexBuffer(h backend.Buffer, format gpucore.IndexFormat, offset uint64) {
	b, err := asBuffer(h)
	if err != nil {
		p.enc.fail(err)
		return
	}
	p.raw.SetIndexBuffer(b.raw, convertIndexFormat(format), offset)
}

func (p *renderPass) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	p.raw.SetViewport(x, y, width, height, minDepth, maxDepth)
}

func (p *renderPass) SetScissorRect(x, y, width, height uint32) {
	p.raw.SetScissorRect(x, y, width, height)
}

func (p *renderPass) SetBlendConstant(color gpucore.Color) {
	c := convertColor(color)
	p.raw.SetBlendConstant(&c)
}

func (p *renderPass) SetStencilReference(reference uint32) { p.raw.SetStencilReference(reference) }

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	p.raw.Draw(vertexCount, instanceCount, firstVertex, firstInstance)
}

func (p *renderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	p.raw.DrawIndexed(indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
}

func (p *renderPass) PushDebugGroup(string) {}

func (p *renderPass) PopDebugGroup() {}

func (p *renderPass) InsertDebugMarker(string) {}

func (p *renderPass) End() { p.raw.End() }

// discardRenderPass swallows the calls of a pass that already failed.
type discardRenderPass struct{}

func (discardRenderPass) SetPipeline(backend.RenderPipeline) {}
func (discardRenderPass) SetBindGroup(uint32, backend.BindGroup, []uint32) {}
func (discardRenderPass) SetVertexBuffer(uint32, backend.Buffer, uint64) {}
func (discardRenderPass) SetIndexBuffer(backend.Buffer, gpucore.IndexFormat, uint64) {}
func (discardRenderPass) SetViewport(_, _, _, _, _, _ float32) {}
func (discardRenderPass) SetScissorRect(_, _, _, _ uint32) {}
func (discardRenderPass) SetBlendConstant(gpucore.Color) {}
func (discardRenderPass) SetStencilReference(uint32) {}
func (discardRenderPass) Draw(_, _, _, _ uint32) {}
func (discardRenderPass) DrawIndexed(_, _, _ uint32, _ int32, _ uint32) {}
func (discardRenderPass) PushDebugGroup(string) {}
func (discardRenderPass) PopDebugGroup() {}
func (discardRenderPass) InsertDebugMarker(string) {}
func (discardRenderPass) End() {}
