package command

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/core"

	"github.com/gogpu/gpuplay/hub"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/internal/logging"
	"github.com/gogpu/gpuplay/trace"
)

// ErrPrecondition is returned when a command is invalid for the resources
// it names. The check runs before anything is recorded for the command.
var ErrPrecondition = errors.New("command: precondition failed")

// encoder is one command buffer with the registries its commands resolve
// ids through. Guards that an operation does not need stay nil.
type encoder struct {
	id id.CommandEncoderID
	cb *hub.CommandBuffer

	bindGroups       *hub.ReadGuard[id.BindGroup, *hub.BindGroup]
	bundles          *hub.ReadGuard[id.RenderBundle, *hub.RenderBundle]
	computePipelines *hub.ReadGuard[id.ComputePipeline, *hub.ComputePipeline]
	renderPipelines  *hub.ReadGuard[id.RenderPipeline, *hub.RenderPipeline]
	querySets        *hub.ReadGuard[id.QuerySet, *hub.QuerySet]
	buffers          *hub.ReadGuard[id.Buffer, *hub.Buffer]
	textures         *hub.ReadGuard[id.Texture, *hub.Texture]
	views            *hub.ReadGuard[id.TextureView, *hub.TextureView]
}

// recording returns the command buffer behind enc if it still accepts
// commands.
func recording(cmdbufs *hub.WriteGuard[id.CommandBuffer, *hub.CommandBuffer], enc id.CommandEncoderID) (*hub.CommandBuffer, error) {
	cb, err := cmdbufs.Get(enc)
	if err != nil {
		return nil, err
	}
	if cb.Status != core.CommandEncoderStatusRecording {
		return nil, fmt.Errorf("%w: %s is %v, not recording", hub.ErrCommandBufferState, enc, cb.Status)
	}
	return cb, nil
}

// owned checks that an object used by the encoder lives on its device.
func owned[K id.Kind](e *encoder, i id.ID[K], device id.DeviceID) error {
	if device != e.cb.Device {
		return fmt.Errorf("%w: %s belongs to %s, encoder %s to %s", hub.ErrInvalidHandle, i, device, e.id, e.cb.Device)
	}
	return nil
}

// invalidate puts the command buffer in the error state after a failed
// command. Its backend encoder is abandoned.
func (e *encoder) invalidate(err error) {
	e.cb.Status = core.CommandEncoderStatusError
	e.cb.Encoder.Discard()
	logging.Logger().Debug("command: encoder invalidated", "encoder", e.id, "err", err)
}

func (e *encoder) encode(c trace.Command) error {
	switch c := c.(type) {
	case trace.CopyBufferToBuffer:
		return e.copyBufferToBuffer(c)
	case trace.CopyBufferToTexture:
		return e.copyBufferToTexture(c)
	case trace.CopyTextureToBuffer:
		return e.copyTextureToBuffer(c)
	case trace.CopyTextureToTexture:
		return e.copyTextureToTexture(c)
	case trace.RunComputePass:
		return e.runComputePass(c.Base)
	case trace.RunRenderPass:
		return e.runRenderPass(c)
	case trace.WriteTimestamp:
		return e.writeTimestamp(c)
	case trace.BeginPipelineStatisticsQuery:
		return e.beginPipelineStatistics(c)
	case trace.EndPipelineStatisticsQuery:
		return e.endPipelineStatistics(c)
	case trace.ResolveQuerySet:
		return e.resolveQuerySet(c)
	default:
		return fmt.Errorf("%w: unknown command %T", ErrPrecondition, c)
	}
}

// Record encodes commands into the recording encoder enc, one backend
// call sequence per command and in order. The first failing command puts
// the encoder in the error state and stops recording.
func Record(g *hub.Global, enc id.CommandEncoderID, commands []trace.Command) error {
	h := hub.HubFor(g, enc)

	bindGroups, tok := h.BindGroups.Read(hub.Root())
	defer bindGroups.Release()
	cmdbufs, tok := h.CommandBuffers.Write(tok)
	defer cmdbufs.Release()

	cb, err := recording(cmdbufs, enc)
	if err != nil {
		return fmt.Errorf("record %s: %w", enc, err)
	}

	bundles, tok := h.RenderBundles.Read(tok)
	defer bundles.Release()
	computePipelines, tok := h.ComputePipelines.Read(tok)
	defer computePipelines.Release()
	renderPipelines, tok := h.RenderPipelines.Read(tok)
	defer renderPipelines.Release()
	querySets, tok := h.QuerySets.Read(tok)
	defer querySets.Release()
	buffers, tok := h.Buffers.Read(tok)
	defer buffers.Release()
	textures, tok := h.Textures.Read(tok)
	defer textures.Release()
	views, _ := h.TextureViews.Read(tok)
	defer views.Release()

	e := &encoder{
		id:               enc,
		cb:               cb,
		bindGroups:       bindGroups,
		bundles:          bundles,
		computePipelines: computePipelines,
		renderPipelines:  renderPipelines,
		querySets:        querySets,
		buffers:          buffers,
		textures:         textures,
		views:            views,
	}
	for n, c := range commands {
		if err := e.encode(c); err != nil {
			e.invalidate(err)
			return fmt.Errorf("record %s: command %d (%s): %w", enc, n, c.Type(), err)
		}
		if cb.Capture {
			cb.Commands = append(cb.Commands, c)
		}
	}
	return nil
}

// Finish ends recording on enc. The command buffer keeps the encoder's id
// and is ready for submission.
func Finish(g *hub.Global, enc id.CommandEncoderID) (id.CommandBufferID, error) {
	h := hub.HubFor(g, enc)
	cmdbufs, _ := h.CommandBuffers.Write(hub.Root())
	defer cmdbufs.Release()

	cb, err := recording(cmdbufs, enc)
	if err != nil {
		return 0, fmt.Errorf("finish %s: %w", enc, err)
	}
	raw, err := cb.Encoder.Finish()
	if err != nil {
		cb.Status = core.CommandEncoderStatusError
		return 0, fmt.Errorf("finish %s: %w", enc, err)
	}
	cb.Raw = raw
	cb.Status = core.CommandEncoderStatusFinished
	return enc, nil
}

// Encode records commands into enc and finishes it. An empty list still
// yields a finished command buffer.
func Encode(g *hub.Global, enc id.CommandEncoderID, commands []trace.Command) (id.CommandBufferID, error) {
	if err := Record(g, enc, commands); err != nil {
		return 0, err
	}
	return Finish(g, enc)
}
