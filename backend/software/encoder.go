package software

import (
	"encoding/binary"
	"fmt"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
)

// Indices into Device.stats.
const (
	statVertex = iota
	statClipper
	statClipperOut
	statFragment
	statCompute
)

// encoder records operations that run when the command buffer is submitted.
// Handle errors found while recording are kept and returned from Finish.
type encoder struct {
	device   *Device
	label    string
	ops      []func() error
	err      error
	finished bool
}

func (e *encoder) fail(err error) {
	if e.err == nil {
		e.err = err
	}
}

func (e *encoder) push(op func() error) {
	if e.finished {
		e.fail(ErrEncoderFinished)
		return
	}
	e.ops = append(e.ops, op)
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
	e.device.record("CopyBufferToBuffer %q+%d -> %q+%d size=%d", src.label, srcOffset, dst.label, dstOffset, size)
	e.push(func() error {
		from, err := src.span(srcOffset, size)
		if err != nil {
			return err
		}
		to, err := dst.span(dstOffset, size)
		if err != nil {
			return err
		}
		copy(to, from)
		return nil
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
	e.device.record("CopyBufferToTexture %q -> %q %dx%dx%d", b.label, t.desc.Label,
		size.Width, size.Height, size.DepthOrArrayLayers)
	e.push(func() error {
		if b.destroyed {
			return fmt.Errorf("buffer %q: %w", b.label, ErrDestroyed)
		}
		return copyTexels(b.data, src.Layout, t, dst, size, true)
	})
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
	e.device.record("CopyTextureToBuffer %q -> %q %dx%dx%d", t.desc.Label, b.label,
		size.Width, size.Height, size.DepthOrArrayLayers)
	e.push(func() error {
		if b.destroyed {
			return fmt.Errorf("buffer %q: %w", b.label, ErrDestroyed)
		}
		return copyTexels(b.data, dst.Layout, t, src, size, false)
	})
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
	e.device.record("CopyTextureToTexture %q -> %q %dx%dx%d", from.desc.Label, to.desc.Label,
		size.Width, size.Height, size.DepthOrArrayLayers)
	e.push(func() error {
		bpp := from.desc.Format.BytesPerPixel()
		layout := gpucore.TextureDataLayout{BytesPerRow: size.Width * bpp, RowsPerImage: size.Height}
		staging := make([]byte, uint64(size.Width)*uint64(size.Height)*uint64(size.DepthOrArrayLayers)*uint64(bpp))
		if err := copyTexels(staging, layout, from, src, size, false); err != nil {
			return err
		}
		return copyTexels(staging, layout, to, dst, size, true)
	})
}

func (e *encoder) BeginComputePass(desc *backend.ComputePassDescriptor) backend.ComputePass {
	e.device.record("BeginComputePass %q", desc.Label)
	return &computePass{enc: e}
}

func (e *encoder) BeginRenderPass(desc *backend.RenderPassDescriptor) backend.RenderPass {
	depth := desc.DepthStencilAttachment != nil
	e.device.record("BeginRenderPass %q colors=%d depth=%t", desc.Label, len(desc.ColorAttachments), depth)
	return &renderPass{enc: e}
}

func (e *encoder) ResetQueries(h backend.QuerySet, first, count uint32) {
	q, err := asQuerySet(h)
	if err != nil {
		e.fail(err)
		return
	}
	e.device.record("ResetQueries %q %d+%d", q.desc.Label, first, count)
	e.push(func() error {
		if err := q.check(first, count); err != nil {
			return err
		}
		for i := first; i < first+count; i++ {
			q.available[i] = false
			clear(q.results[i])
			delete(q.begun, i)
		}
		return nil
	})
}

func (e *encoder) BeginQuery(h backend.QuerySet, index uint32) {
	q, err := asQuerySet(h)
	if err != nil {
		e.fail(err)
		return
	}
	e.device.record("BeginQuery %q %d", q.desc.Label, index)
	e.push(func() error {
		if err := q.check(index, 1); err != nil {
			return err
		}
		if q.begun == nil {
			q.begun = make(map[uint32][5]uint64)
		}
		e.device.mu.Lock()
		q.begun[index] = e.device.stats
		e.device.mu.Unlock()
		return nil
	})
}

func (e *encoder) EndQuery(h backend.QuerySet, index uint32) {
	q, err := asQuerySet(h)
	if err != nil {
		e.fail(err)
		return
	}
	e.device.record("EndQuery %q %d", q.desc.Label, index)
	e.push(func() error {
		if err := q.check(index, 1); err != nil {
			return err
		}
		start, ok := q.begun[index]
		if !ok {
			return fmt.Errorf("query set %q: end of query %d that was not begun", q.desc.Label, index)
		}
		delete(q.begun, index)

		e.device.mu.Lock()
		now := e.device.stats
		e.device.mu.Unlock()

		switch q.desc.Type {
		case gpucore.QueryTypePipelineStatistics:
			for i, name := range q.desc.PipelineStatistics {
				if int(name) < len(now) {
					q.results[index][i] = now[name] - start[name]
				}
			}
		default:
			q.results[index][0] = now[statFragment] - start[statFragment]
		}
		q.available[index] = true
		return nil
	})
}

func (e *encoder) WriteTimestamp(h backend.QuerySet, index uint32, stage gpucore.PipelineStage) {
	q, err := asQuerySet(h)
	if err != nil {
		e.fail(err)
		return
	}
	e.device.record("WriteTimestamp %q %d stage=%#x", q.desc.Label, index, uint32(stage))
	e.push(func() error {
		if err := q.check(index, 1); err != nil {
			return err
		}
		e.device.mu.Lock()
		e.device.clock++
		q.results[index][0] = e.device.clock
		e.device.mu.Unlock()
		q.available[index] = true
		return nil
	})
}

func (e *encoder) PipelineBarrier(src, dst gpucore.PipelineStage, barriers []backend.BufferBarrier) {
	for _, b := range barriers {
		if _, err := asBuffer(b.Buffer); err != nil {
			e.fail(err)
			return
		}
	}
	e.device.record("PipelineBarrier %#x -> %#x buffers=%d", uint32(src), uint32(dst), len(barriers))
}

func (e *encoder) CopyQueryResults(h backend.QuerySet, first, count uint32, dstH backend.Buffer, offset, stride uint64, flags gpucore.QueryResultFlags) {
	q, err := asQuerySet(h)
	if err != nil {
		e.fail(err)
		return
	}
	dst, err := asBuffer(dstH)
	if err != nil {
		e.fail(err)
		return
	}
	e.device.record("CopyQueryResults %q %d+%d -> %q+%d stride=%d flags=%#x",
		q.desc.Label, first, count, dst.label, offset, stride, uint32(flags))
	e.push(func() error {
		if err := q.check(first, count); err != nil {
			return err
		}
		word := uint64(4)
		if flags.Has(gpucore.QueryResultBits64) {
			word = 8
		}
		for i := range count {
			slot := first + i
			values := q.results[slot]
			n := uint64(len(values))
			if flags.Has(gpucore.QueryResultWithAvailability) {
				n++
			}
			out, err := dst.span(offset+uint64(i)*stride, n*word)
			if err != nil {
				return err
			}
			if !q.available[slot] && !flags.Has(gpucore.QueryResultWithAvailability) {
				continue
			}
			for j, v := range values {
				putWord(out[uint64(j)*word:], v, word)
			}
			if flags.Has(gpucore.QueryResultWithAvailability) {
				var avail uint64
				if q.available[slot] {
					avail = 1
				}
				putWord(out[uint64(len(values))*word:], avail, word)
			}
		}
		return nil
	})
}

func putWord(b []byte, v, size uint64) {
	if size == 8 {
		binary.LittleEndian.PutUint64(b, v)
		return
	}
	binary.LittleEndian.PutUint32(b, uint32(v))
}

func (e *encoder) Finish() (backend.CommandBuffer, error) {
	if e.finished {
		return nil, ErrEncoderFinished
	}
	e.finished = true
	e.device.record("Finish %q", e.label)
	if e.err != nil {
		return nil, fmt.Errorf("finish %q: %w", e.label, e.err)
	}
	return &commandBuffer{label: e.label, ops: e.ops}, nil
}

func (e *encoder) Discard() {
	e.finished = true
	e.ops = nil
	e.device.record("Discard %q", e.label)
}

// computePass records dispatches.
type computePass struct {
	enc      *encoder
	pipeline bool
}

func (p *computePass) SetPipeline(h backend.ComputePipeline) {
	cp, ok := h.(*computePipeline)
	if !ok {
		p.enc.fail(fmt.Errorf("compute pipeline %T: %w", h, backend.ErrForeignHandle))
		return
	}
	p.pipeline = true
	p.enc.device.record("SetComputePipeline %q", cp.label)
}

func (p *computePass) SetBindGroup(index uint32, h backend.BindGroup, offsets []uint32) {
	g, ok := h.(*bindGroup)
	if !ok {
		p.enc.fail(fmt.Errorf("bind group %T: %w", h, backend.ErrForeignHandle))
		return
	}
	p.enc.device.record("SetBindGroup %d %q offsets=%d", index, g.label, len(offsets))
}

func (p *computePass) Dispatch(x, y, z uint32) {
	if !p.pipeline {
		p.enc.fail(ErrNoPipeline)
		return
	}
	p.enc.device.record("Dispatch %d %d %d", x, y, z)
	d := p.enc.device
	p.enc.push(func() error {
		d.mu.Lock()
		d.stats[statCompute] += uint64(x) * uint64(y) * uint64(z)
		d.mu.Unlock()
		return nil
	})
}

func (p *computePass) PushDebugGroup(label string) {
	p.enc.device.record("PushDebugGroup %q", label)
}

func (p *computePass) PopDebugGroup() { p.enc.device.record("PopDebugGroup") }

func (p *computePass) InsertDebugMarker(label string) {
	p.enc.device.record("InsertDebugMarker %q", label)
}

func (p *computePass) End() { p.enc.device.record("EndComputePass") }

// renderPass records draws.
type renderPass struct {
	enc      *encoder
	pipeline bool
}

func (p *renderPass) SetPipeline(h backend.RenderPipeline) {
	rp, ok := h.(*renderPipeline)
	if !ok {
		p.enc.fail(fmt.Errorf("render pipeline %T: %w", h, backend.ErrForeignHandle))
		return
	}
	p.pipeline = true
	p.enc.device.record("SetRenderPipeline %q", rp.label)
}

func (p *renderPass) SetBindGroup(index uint32, h backend.BindGroup, offsets []uint32) {
	g, ok := h.(*bindGroup)
	if !ok {
		p.enc.fail(fmt.Errorf("bind group %T: %w", h, backend.ErrForeignHandle))
		return
	}
	p.enc.device.record("SetBindGroup %d %q offsets=%d", index, g.label, len(offsets))
}

func (p *renderPass) SetVertexBuffer(slot uint32, h backend.Buffer, offset uint64) {
	b, err := asBuffer(h)
	if err != nil {
		p.enc.fail(err)
		return
	}
	p.enc.device.record("SetVertexBuffer %d %q+%d", slot, b.label, offset)
}

func (p *renderPass) SetIndexBuffer(h backend.Buffer, format gpucore.IndexFormat, offset uint64) {
	b, err := asBuffer(h)
	if err != nil {
		p.enc.fail(err)
		return
	}
	p.enc.device.record("SetIndexBuffer %q+%d format=%d", b.label, offset, format)
}

func (p *renderPass) SetViewport(x, y, width, height, minDepth, maxDepth float32) {
	p.enc.device.record("SetViewport %g %g %g %g %g %g", x, y, width, height, minDepth, maxDepth)
}

func (p *renderPass) SetScissorRect(x, y, width, height uint32) {
	p.enc.device.record("SetScissorRect %d %d %d %d", x, y, width, height)
}

func (p *renderPass) SetBlendConstant(c gpucore.Color) {
	p.enc.device.record("SetBlendConstant %g %g %g %g", c.R, c.G, c.B, c.A)
}

func (p *renderPass) SetStencilReference(reference uint32) {
	p.enc.device.record("SetStencilReference %d", reference)
}

func (p *renderPass) Draw(vertexCount, instanceCount, firstVertex, firstInstance uint32) {
	if !p.pipeline {
		p.enc.fail(ErrNoPipeline)
		return
	}
	p.enc.device.record("Draw %d %d %d %d", vertexCount, instanceCount, firstVertex, firstInstance)
	p.count(uint64(vertexCount) * uint64(instanceCount))
}

func (p *renderPass) DrawIndexed(indexCount, instanceCount, firstIndex uint32, baseVertex int32, firstInstance uint32) {
	if !p.pipeline {
		p.enc.fail(ErrNoPipeline)
		return
	}
	p.enc.device.record("DrawIndexed %d %d %d %d %d", indexCount, instanceCount, firstIndex, baseVertex, firstInstance)
	p.count(uint64(indexCount) * uint64(instanceCount))
}

// count advances the statistics counters as if every vertex produced one
// primitive and one fragment.
func (p *renderPass) count(vertices uint64) {
	d := p.enc.device
	p.enc.push(func() error {
		d.mu.Lock()
		d.stats[statVertex] += vertices
		d.stats[statClipper] += vertices / 3
		d.stats[statClipperOut] += vertices / 3
		d.stats[statFragment] += vertices
		d.mu.Unlock()
		return nil
	})
}

func (p *renderPass) PushDebugGroup(label string) {
	p.enc.device.record("PushDebugGroup %q", label)
}

func (p *renderPass) PopDebugGroup() { p.enc.device.record("PopDebugGroup") }

func (p *renderPass) InsertDebugMarker(label string) {
	p.enc.device.record("InsertDebugMarker %q", label)
}

func (p *renderPass) End() { p.enc.device.record("EndRenderPass") }
