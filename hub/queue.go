package hub

import (
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/core"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/trace"
)

// ErrCommandBufferState is returned when a command buffer is used in a
// state that does not allow the operation, such as submitting one that is
// still recording.
var ErrCommandBufferState = errors.New("hub: command buffer in wrong state")

// withBuffer runs fn with device and buffer resolved and both registries
// read-locked.
func (g *Global) withBuffer(device id.DeviceID, buffer id.BufferID, fn func(*Device, *Buffer) error) error {
	h := g.hubFor(device.Raw())
	devices, tok := h.Devices.Read(Root())
	defer devices.Release()

	dev, err := devices.Get(device)
	if err != nil {
		return err
	}
	bufs, _ := h.Buffers.Read(tok)
	defer bufs.Release()

	buf, err := bufs.Get(buffer)
	if err != nil {
		return err
	}
	if err := sameDevice(device, buffer, buf); err != nil {
		return err
	}
	return fn(dev, buf)
}

// QueueWriteBuffer schedules a write of data into buffer at offset on
// queue's device.
func (g *Global) QueueWriteBuffer(queue id.DeviceID, buffer id.BufferID, offset uint64, data []byte) error {
	err := g.withBuffer(queue, buffer, func(dev *Device, buf *Buffer) error {
		if err := dev.Queue.WriteBuffer(buf.Raw, offset, data); err != nil {
			return err
		}
		dev.recordBlob("bin", data, func(name string) trace.Action {
			return trace.WriteBuffer{
				ID:     buffer,
				Data:   name,
				Range:  gpucore.Range{Start: offset, End: offset + uint64(len(data))},
				Queued: true,
			}
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("queue write buffer %s: %w", buffer, err)
	}
	return nil
}

// DeviceWaitForBuffer blocks until the GPU no longer uses buffer.
func (g *Global) DeviceWaitForBuffer(device id.DeviceID, buffer id.BufferID) error {
	err := g.withBuffer(device, buffer, func(dev *Device, _ *Buffer) error {
		return dev.waitIdle()
	})
	if err != nil {
		return fmt.Errorf("wait for buffer %s: %w", buffer, err)
	}
	return nil
}

// DeviceSetBufferSubData writes data into buffer at offset immediately.
// The caller must first make sure the buffer is idle.
func (g *Global) DeviceSetBufferSubData(device id.DeviceID, buffer id.BufferID, offset uint64, data []byte) error {
	err := g.withBuffer(device, buffer, func(dev *Device, buf *Buffer) error {
		if err := dev.Raw.WriteBuffer(buf.Raw, offset, data); err != nil {
			return err
		}
		dev.recordBlob("bin", data, func(name string) trace.Action {
			return trace.WriteBuffer{
				ID:    buffer,
				Data:  name,
				Range: gpucore.Range{Start: offset, End: offset + uint64(len(data))},
			}
		})
		return nil
	})
	if err != nil {
		return fmt.Errorf("set buffer sub data %s: %w", buffer, err)
	}
	return nil
}

// QueueWriteTexture schedules a write of texel data into the region at
// dst on queue's device.
func (g *Global) QueueWriteTexture(queue id.DeviceID, dst *trace.TextureCopyView, data []byte,
	layout *gpucore.TextureDataLayout, size gpucore.Extent3D) error {
	h := g.hubFor(queue.Raw())
	devices, tok := h.Devices.Read(Root())
	defer devices.Release()

	err := func() error {
		dev, err := devices.Get(queue)
		if err != nil {
			return err
		}
		textures, _ := h.Textures.Read(tok)
		defer textures.Release()

		tex, err := textures.Get(dst.Texture)
		if err != nil {
			return err
		}
		if err := sameDevice(queue, dst.Texture, tex); err != nil {
			return err
		}
		target := &backend.ImageCopyTexture{Texture: tex.Raw, MipLevel: dst.MipLevel, Origin: dst.Origin, Aspect: dst.Aspect}
		if err := dev.Queue.WriteTexture(target, data, layout, size); err != nil {
			return err
		}
		dev.recordBlob("bin", data, func(name string) trace.Action {
			return trace.WriteTexture{To: *dst, Data: name, Layout: *layout, Size: size}
		})
		return nil
	}()
	if err != nil {
		return fmt.Errorf("queue write texture %s: %w", dst.Texture, err)
	}
	return nil
}

// DeviceCreateCommandEncoder opens a command encoder on device under i.
// The encoder and the command buffer it produces share i.
func (g *Global) DeviceCreateCommandEncoder(device id.DeviceID, label string, i id.CommandEncoderID) error {
	_, err := create(g, device, i, commandBuffers,
		func(_ Token, _ *Hub, dev *Device) (*CommandBuffer, error) {
			enc, err := dev.Raw.CreateCommandEncoder(label)
			if err != nil {
				return nil, err
			}
			return &CommandBuffer{
				Owned:   Owned{device},
				Label:   label,
				Encoder: enc,
				Status:  core.CommandEncoderStatusRecording,
				Capture: dev.Trace() != nil,
			}, nil
		},
		func(_ *Device, cb *CommandBuffer) { cb.Encoder.Discard() })
	if err != nil {
		return fmt.Errorf("create command encoder %s %q: %w", i, label, err)
	}
	return nil
}

// CommandEncoderDrop abandons encoder i. A finished but unsubmitted
// command buffer is released as well.
func (g *Global) CommandEncoderDrop(i id.CommandEncoderID) error {
	h := g.hubFor(i.Raw())
	devices, tok := h.Devices.Read(Root())
	defer devices.Release()

	cb, err := h.CommandBuffers.Unregister(tok, i)
	if err != nil {
		return fmt.Errorf("drop command encoder: %w", err)
	}
	if cb.Status == core.CommandEncoderStatusRecording {
		cb.Encoder.Discard()
	}
	return nil
}

// QueueSubmit executes the finished command buffers ids in order. Each
// one is consumed and its id released; capture records one Submit per
// command buffer. The buffer usages each one recorded become device-wide,
// later command buffers overriding earlier ones.
func (g *Global) QueueSubmit(queue id.DeviceID, ids []id.CommandBufferID) error {
	h := g.hubFor(queue.Raw())
	devices, tok := h.Devices.Read(Root())
	defer devices.Release()

	err := func() error {
		dev, err := devices.Get(queue)
		if err != nil {
			return err
		}
		cmdbufs, _ := h.CommandBuffers.Write(tok)
		defer cmdbufs.Release()

		list := make([]*CommandBuffer, len(ids))
		raws := make([]backend.CommandBuffer, len(ids))
		seen := make(map[id.CommandBufferID]bool, len(ids))
		for n, i := range ids {
			if seen[i] {
				return fmt.Errorf("%w: %s submitted twice", ErrCommandBufferState, i)
			}
			seen[i] = true
			cb, err := cmdbufs.Get(i)
			if err != nil {
				return err
			}
			if err := sameDevice(queue, i, cb); err != nil {
				return err
			}
			if cb.Status != core.CommandEncoderStatusFinished {
				return fmt.Errorf("%w: %s is %v, not finished", ErrCommandBufferState, i, cb.Status)
			}
			list[n], raws[n] = cb, cb.Raw
		}

		if err := dev.Queue.Submit(raws); err != nil {
			return err
		}
		dev.submittedOnce()
		for n, cb := range list {
			cb.Status = core.CommandEncoderStatusConsumed
			cb.Buffers.merge()
			if _, err := cmdbufs.Remove(ids[n]); err != nil {
				return err
			}
			dev.record(trace.Submit{Index: dev.nextSubmitIndex(), Commands: cb.Commands})
		}
		return nil
	}()
	if err != nil {
		return fmt.Errorf("queue submit: %w", err)
	}
	return nil
}

func commandBuffers(h *Hub) *Registry[id.CommandBuffer, *CommandBuffer] { return h.CommandBuffers }
