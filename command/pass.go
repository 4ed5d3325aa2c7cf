package command

import (
	"fmt"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/hub"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/trace"
)

// maxBindGroups is the number of bind group slots a pipeline can use.
const maxBindGroups = 8

// passState tracks what a pass has bound so far.
type passState struct {
	pipeline   bool
	index      bool
	debugDepth int
}

func (s *passState) push() { s.debugDepth++ }

func (s *passState) pop() error {
	if s.debugDepth == 0 {
		return fmt.Errorf("%w: pop without a matching push", ErrPrecondition)
	}
	s.debugDepth--
	return nil
}

func (s *passState) end() error {
	if s.debugDepth != 0 {
		return fmt.Errorf("%w: %d debug groups still open at end of pass", ErrPrecondition, s.debugDepth)
	}
	return nil
}

func (e *encoder) bindGroup(c trace.SetBindGroup) (*hub.BindGroup, error) {
	if c.Index >= maxBindGroups {
		return nil, fmt.Errorf("%w: bind group index %d >= %d", ErrPrecondition, c.Index, maxBindGroups)
	}
	g, err := e.bindGroups.Get(c.BindGroup)
	if err != nil {
		return nil, err
	}
	if err := owned(e, c.BindGroup, g.Device); err != nil {
		return nil, err
	}
	if len(c.Offsets) != g.DynamicOffsets {
		return nil, fmt.Errorf("%w: %d dynamic offsets for %s, layout has %d", ErrPrecondition, len(c.Offsets), c.BindGroup, g.DynamicOffsets)
	}
	for _, b := range g.Buffers {
		e.use(b.Buffer, b.Use)
	}
	return g, nil
}

// --------------------------------------------------------------------------
// Compute
// --------------------------------------------------------------------------

func (e *encoder) runComputePass(base trace.BasePass) error {
	pass := e.cb.Encoder.BeginComputePass(&backend.ComputePassDescriptor{Label: base.Label})
	var s passState
	for n, c := range base.Commands {
		if err := e.computeCommand(pass, &s, c); err != nil {
			pass.End()
			return fmt.Errorf("pass command %d (%s): %w", n, c.Type(), err)
		}
	}
	pass.End()
	return s.end()
}

func (e *encoder) computeCommand(pass backend.ComputePass, s *passState, c trace.PassCommand) error {
	switch c := c.(type) {
	case trace.SetComputePipeline:
		p, err := e.computePipelines.Get(c.Pipeline)
		if err != nil {
			return err
		}
		if err := owned(e, c.Pipeline, p.Device); err != nil {
			return err
		}
		pass.SetPipeline(p.Raw)
		s.pipeline = true
	case trace.SetBindGroup:
		g, err := e.bindGroup(c)
		if err != nil {
			return err
		}
		pass.SetBindGroup(c.Index, g.Raw, c.Offsets)
	case trace.Dispatch:
		if !s.pipeline {
			return fmt.Errorf("%w: dispatch without a pipeline", ErrPrecondition)
		}
		pass.Dispatch(c.X, c.Y, c.Z)
	case trace.PushDebugGroup:
		s.push()
		pass.PushDebugGroup(c.Label)
	case trace.PopDebugGroup:
		if err := s.pop(); err != nil {
			return err
		}
		pass.PopDebugGroup()
	case trace.InsertDebugMarker:
		pass.InsertDebugMarker(c.Label)
	default:
		return fmt.Errorf("%w: %s is not valid in a compute pass", ErrPrecondition, c.Type())
	}
	return nil
}

// --------------------------------------------------------------------------
// Render
// --------------------------------------------------------------------------

// attachment resolves a render target view. Its texture must allow
// render attachment use.
func (e *encoder) attachment(i id.TextureViewID) (backend.TextureView, error) {
	v, err := e.views.Get(i)
	if err != nil {
		return nil, err
	}
	if err := owned(e, i, v.Device); err != nil {
		return nil, err
	}
	t, err := e.textures.Get(v.Texture)
	if err != nil {
		return nil, fmt.Errorf("view %s: %w", i, err)
	}
	if !t.Desc.Usage.Contains(gpucore.TextureUsageRenderAttachment) {
		return nil, fmt.Errorf("%w: view %s of texture without RENDER_ATTACHMENT usage", ErrPrecondition, i)
	}
	return v.Raw, nil
}

func (e *encoder) renderPassDescriptor(c trace.RunRenderPass) (*backend.RenderPassDescriptor, error) {
	if len(c.TargetColors) == 0 && c.TargetDepthStencil == nil {
		return nil, fmt.Errorf("%w: render pass without attachments", ErrPrecondition)
	}
	desc := &backend.RenderPassDescriptor{Label: c.Base.Label}
	for _, a := range c.TargetColors {
		view, err := e.attachment(a.Attachment)
		if err != nil {
			return nil, err
		}
		ca := backend.ColorAttachment{View: view, LoadOp: a.LoadOp, StoreOp: a.StoreOp, ClearValue: a.ClearColor}
		if a.ResolveTarget != nil {
			if ca.ResolveTarget, err = e.attachment(*a.ResolveTarget); err != nil {
				return nil, err
			}
		}
		desc.ColorAttachments = append(desc.ColorAttachments, ca)
	}
	if ds := c.TargetDepthStencil; ds != nil {
		view, err := e.attachment(ds.Attachment)
		if err != nil {
			return nil, err
		}
		desc.DepthStencilAttachment = &backend.DepthStencilAttachment{
			View:              view,
			DepthLoadOp:       ds.DepthLoadOp,
			DepthStoreOp:      ds.DepthStoreOp,
			DepthClearValue:   ds.ClearDepth,
			DepthReadOnly:     ds.DepthReadOnly,
			StencilLoadOp:     ds.StencilLoadOp,
			StencilStoreOp:    ds.StencilStoreOp,
			StencilClearValue: ds.ClearStencil,
			StencilReadOnly:   ds.StencilReadOnly,
		}
	}
	return desc, nil
}

func (e *encoder) runRenderPass(c trace.RunRenderPass) error {
	desc, err := e.renderPassDescriptor(c)
	if err != nil {
		return err
	}
	pass := e.cb.Encoder.BeginRenderPass(desc)
	var s passState
	for n, pc := range c.Base.Commands {
		if err := e.renderCommand(pass, &s, pc, true); err != nil {
			pass.End()
			return fmt.Errorf("pass command %d (%s): %w", n, pc.Type(), err)
		}
	}
	pass.End()
	return s.end()
}

// renderCommand encodes one render pass or render bundle command.
// ExecuteBundles is accepted only when bundles is set.
func (e *encoder) renderCommand(pass backend.RenderPass, s *passState, c trace.PassCommand, bundles bool) error {
	switch c := c.(type) {
	case trace.SetRenderPipeline:
		p, err := e.renderPipelines.Get(c.Pipeline)
		if err != nil {
			return err
		}
		if err := owned(e, c.Pipeline, p.Device); err != nil {
			return err
		}
		pass.SetPipeline(p.Raw)
		s.pipeline = true
	case trace.SetBindGroup:
		g, err := e.bindGroup(c)
		if err != nil {
			return err
		}
		pass.SetBindGroup(c.Index, g.Raw, c.Offsets)
	case trace.SetVertexBuffer:
		b, err := e.buffer(c.Buffer)
		if err != nil {
			return err
		}
		if !b.Desc.Usage.Contains(gpucore.BufferUsageVertex) {
			return fmt.Errorf("%w: %s lacks VERTEX usage", ErrPrecondition, c.Buffer)
		}
		if c.Offset > b.Desc.Size {
			return fmt.Errorf("%w: vertex offset %d > buffer size %d", ErrPrecondition, c.Offset, b.Desc.Size)
		}
		e.use(b, gpucore.BufferUseVertex)
		pass.SetVertexBuffer(c.Slot, b.Raw, c.Offset)
	case trace.SetIndexBuffer:
		b, err := e.buffer(c.Buffer)
		if err != nil {
			return err
		}
		if !b.Desc.Usage.Contains(gpucore.BufferUsageIndex) {
			return fmt.Errorf("%w: %s lacks INDEX usage", ErrPrecondition, c.Buffer)
		}
		if c.Offset%c.Format.Size() != 0 {
			return fmt.Errorf("%w: index offset %d is not a multiple of %d", ErrPrecondition, c.Offset, c.Format.Size())
		}
		if c.Offset > b.Desc.Size {
			return fmt.Errorf("%w: index offset %d > buffer size %d", ErrPrecondition, c.Offset, b.Desc.Size)
		}
		e.use(b, gpucore.BufferUseIndex)
		pass.SetIndexBuffer(b.Raw, c.Format, c.Offset)
		s.index = true
	case trace.SetViewport:
		if c.Width <= 0 || c.Height <= 0 {
			return fmt.Errorf("%w: viewport %gx%g is empty", ErrPrecondition, c.Width, c.Height)
		}
		if c.MinDepth < 0 || c.MaxDepth > 1 || c.MinDepth > c.MaxDepth {
			return fmt.Errorf("%w: viewport depth range [%g, %g]", ErrPrecondition, c.MinDepth, c.MaxDepth)
		}
		pass.SetViewport(c.X, c.Y, c.Width, c.Height, c.MinDepth, c.MaxDepth)
	case trace.SetScissorRect:
		pass.SetScissorRect(c.X, c.Y, c.Width, c.Height)
	case trace.SetBlendConstant:
		pass.SetBlendConstant(c.Color)
	case trace.SetStencilReference:
		pass.SetStencilReference(c.Reference)
	case trace.Draw:
		if !s.pipeline {
			return fmt.Errorf("%w: draw without a pipeline", ErrPrecondition)
		}
		pass.Draw(c.VertexCount, c.InstanceCount, c.FirstVertex, c.FirstInstance)
	case trace.DrawIndexed:
		if !s.pipeline || !s.index {
			return fmt.Errorf("%w: indexed draw needs a pipeline and an index buffer", ErrPrecondition)
		}
		pass.DrawIndexed(c.IndexCount, c.InstanceCount, c.FirstIndex, c.BaseVertex, c.FirstInstance)
	case trace.ExecuteBundles:
		if !bundles {
			return fmt.Errorf("%w: render bundles cannot execute bundles", ErrPrecondition)
		}
		for _, b := range c.Bundles {
			if err := e.executeBundle(pass, b); err != nil {
				return err
			}
		}
		// Pass state is undefined after bundles run.
		*s = passState{debugDepth: s.debugDepth}
	case trace.PushDebugGroup:
		s.push()
		pass.PushDebugGroup(c.Label)
	case trace.PopDebugGroup:
		if err := s.pop(); err != nil {
			return err
		}
		pass.PopDebugGroup()
	case trace.InsertDebugMarker:
		pass.InsertDebugMarker(c.Label)
	default:
		return fmt.Errorf("%w: %s is not valid in a render pass", ErrPrecondition, c.Type())
	}
	return nil
}

// executeBundle encodes the recorded commands of bundle i into pass. A
// bundle starts from empty state and must leave its debug groups
// balanced.
func (e *encoder) executeBundle(pass backend.RenderPass, i id.RenderBundleID) error {
	b, err := e.bundles.Get(i)
	if err != nil {
		return err
	}
	if err := owned(e, i, b.Device); err != nil {
		return err
	}
	var s passState
	for n, c := range b.Base.Commands {
		if err := e.renderCommand(pass, &s, c, false); err != nil {
			return fmt.Errorf("bundle %s command %d (%s): %w", i, n, c.Type(), err)
		}
	}
	return s.end()
}
