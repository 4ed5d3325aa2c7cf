package hub

import (
	"encoding/binary"
	"errors"
	"fmt"

	"github.com/gogpu/wgpu/core"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/internal/logging"
	"github.com/gogpu/gpuplay/trace"
)

// ErrInvalidDescriptor is returned when a creation request is internally
// inconsistent, for example a bind group that does not match its layout.
var ErrInvalidDescriptor = errors.New("hub: invalid descriptor")

// maxQueriesPerSet bounds QuerySetDescriptor.Count.
const maxQueriesPerSet = 8192

// create builds an object on device and registers it under i. undo runs
// when registration fails.
func create[K id.Kind, T any](g *Global, device id.DeviceID, i id.ID[K], pick func(*Hub) *Registry[K, T],
	build func(tok Token, h *Hub, dev *Device) (T, error), undo func(*Device, T)) (*Device, error) {
	h := g.hubFor(device.Raw())
	devices, tok := h.Devices.Read(Root())
	defer devices.Release()

	dev, err := devices.Get(device)
	if err != nil {
		return nil, err
	}
	v, err := build(tok, h, dev)
	if err != nil {
		return nil, err
	}
	if err := pick(h).Register(tok, i, v); err != nil {
		undo(dev, v)
		return nil, err
	}
	return dev, nil
}

// destroy unregisters i and frees its backend object once the owning
// device is idle.
func destroy[K id.Kind, T owned](g *Global, i id.ID[K], pick func(*Hub) *Registry[K, T],
	free func(backend.Device, T), record trace.Action) error {
	h := g.hubFor(i.Raw())
	devices, tok := h.Devices.Read(Root())
	defer devices.Release()

	v, err := pick(h).Unregister(tok, i)
	if err != nil {
		return err
	}
	dev, err := devices.Get(v.owner())
	if err != nil {
		// The device went first and took its objects with it.
		return err
	}
	if err := dev.waitIdle(); err != nil {
		return err
	}
	free(dev.Raw, v)
	dev.record(record)
	return nil
}

func sameDevice[K id.Kind](device id.DeviceID, i id.ID[K], o owned) error {
	if o.owner() != device {
		return fmt.Errorf("%w: %s belongs to %s, not %s", ErrInvalidHandle, i, o.owner(), device)
	}
	return nil
}

// --------------------------------------------------------------------------
// Devices
// --------------------------------------------------------------------------

// CreateDevice opens an adapter for b and registers a device on it under
// device, whose backend tag must be b.
func (g *Global) CreateDevice(b id.Backend, desc *gpucore.DeviceDescriptor, device id.DeviceID) error {
	if device.Backend() != b {
		return fmt.Errorf("create device: %w: %s is not a %s id", ErrInvalidHandle, device, b)
	}
	if !g.HasBackend(b) {
		return fmt.Errorf("create device: %w: %s is not compiled into this build", backend.ErrBackendNotAvailable, b)
	}
	h := g.hubFor(device.Raw())
	if desc == nil {
		desc = &gpucore.DeviceDescriptor{}
	}

	factory, err := g.factory(b)
	if err != nil {
		return fmt.Errorf("create device: %w", err)
	}
	adapter, err := factory()
	if err != nil {
		return fmt.Errorf("create device: open adapter: %w", err)
	}
	raw, queue, err := adapter.Open(desc)
	if err != nil {
		adapter.Destroy()
		return fmt.Errorf("create device %q: %w", desc.Label, err)
	}

	adapters, tok := h.Adapters.Write(Root())
	defer adapters.Release()

	adapterID := h.Adapters.Alloc()
	info := adapter.Info()
	if err := adapters.Insert(adapterID, &Adapter{Raw: adapter, Info: info}); err != nil {
		raw.Destroy()
		adapter.Destroy()
		return fmt.Errorf("create device: %w", err)
	}
	dev := &Device{Adapter: adapterID, Raw: raw, Queue: queue, Desc: *desc}
	if err := h.Devices.Register(tok, device, dev); err != nil {
		_, _ = adapters.Remove(adapterID)
		raw.Destroy()
		adapter.Destroy()
		return fmt.Errorf("create device: %w", err)
	}

	logging.Logger().Info("hub: device created", "device", device, "label", desc.Label, "adapter", info.Name)
	return nil
}

// DeviceSetTrace starts capturing device into w, beginning with an Init
// action. A nil w stops capturing.
func (g *Global) DeviceSetTrace(device id.DeviceID, w *trace.Writer) error {
	dev, err := g.hubFor(device.Raw()).Devices.Get(Root(), device)
	if err != nil {
		return fmt.Errorf("set trace: %w", err)
	}
	dev.capture.Store(w)
	if w != nil {
		w.Add(trace.Init{Desc: dev.Desc, Backend: device.Backend()})
	}
	return nil
}

// DeviceMaintainIDs resynchronizes the identity managers of device's hub
// with the live objects.
func (g *Global) DeviceMaintainIDs(device id.DeviceID) error {
	h := g.hubFor(device.Raw())
	if _, err := h.Devices.Get(Root(), device); err != nil {
		return fmt.Errorf("maintain ids: %w", err)
	}
	h.MaintainIDs()
	return nil
}

// DeviceWaitIdle blocks until all work submitted to device has completed.
func (g *Global) DeviceWaitIdle(device id.DeviceID) error {
	dev, err := g.hubFor(device.Raw()).Devices.Get(Root(), device)
	if err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}
	if err := dev.waitIdle(); err != nil {
		return fmt.Errorf("wait idle: %w", err)
	}
	return nil
}

// DeviceDrop waits for device to go idle, destroys every object it owns
// and then the device and its adapter.
func (g *Global) DeviceDrop(device id.DeviceID) error {
	h := g.hubFor(device.Raw())
	root := Root()

	devices, tok := h.Devices.Write(root)
	dev, err := devices.Remove(device)
	if err != nil {
		devices.Release()
		return fmt.Errorf("drop device: %w", err)
	}
	if err := dev.waitIdle(); err != nil {
		logging.Logger().Warn("hub: device not idle on drop", "device", device, "err", err)
	}

	d := dev.Raw
	n := dropOwned(h.RenderBundles, tok, device, func(*RenderBundle) {})
	n += dropOwned(h.CommandBuffers, tok, device, func(cb *CommandBuffer) {
		if cb.Status == core.CommandEncoderStatusRecording {
			cb.Encoder.Discard()
		}
	})
	n += dropOwned(h.BindGroups, tok, device, func(v *BindGroup) { d.DestroyBindGroup(v.Raw) })
	n += dropOwned(h.ComputePipelines, tok, device, func(v *ComputePipeline) { d.DestroyComputePipeline(v.Raw) })
	n += dropOwned(h.RenderPipelines, tok, device, func(v *RenderPipeline) { d.DestroyRenderPipeline(v.Raw) })
	n += dropOwned(h.PipelineLayouts, tok, device, func(v *PipelineLayout) { d.DestroyPipelineLayout(v.Raw) })
	n += dropOwned(h.BindGroupLayouts, tok, device, func(v *BindGroupLayout) { d.DestroyBindGroupLayout(v.Raw) })
	n += dropOwned(h.ShaderModules, tok, device, func(v *ShaderModule) { d.DestroyShaderModule(v.Raw) })
	n += dropOwned(h.QuerySets, tok, device, func(v *QuerySet) { d.DestroyQuerySet(v.Raw) })
	n += dropOwned(h.TextureViews, tok, device, func(v *TextureView) { d.DestroyTextureView(v.Raw) })
	n += dropOwned(h.Textures, tok, device, func(v *Texture) { d.DestroyTexture(v.Raw) })
	n += dropOwned(h.Samplers, tok, device, func(v *Sampler) { d.DestroySampler(v.Raw) })
	n += dropOwned(h.Buffers, tok, device, func(v *Buffer) { d.DestroyBuffer(v.Raw) })
	n += dropOwned(h.SwapChains, tok, device, func(*SwapChain) {})
	devices.Release()

	d.Destroy()
	if a, err := h.Adapters.Unregister(root, dev.Adapter); err == nil {
		a.Raw.Destroy()
	}
	logging.Logger().Info("hub: device dropped", "device", device, "objects", n)
	return nil
}

func dropOwned[K id.Kind, T owned](r *Registry[K, T], tok Token, device id.DeviceID, free func(T)) int {
	g, _ := r.Write(tok)
	removed := g.RemoveFunc(func(v T) bool { return v.owner() == device })
	g.Release()
	for _, v := range removed {
		free(v)
	}
	return len(removed)
}

// --------------------------------------------------------------------------
// Buffers, textures, samplers
// --------------------------------------------------------------------------

// DeviceCreateBuffer creates a buffer on device under i.
func (g *Global) DeviceCreateBuffer(device id.DeviceID, desc *gpucore.BufferDescriptor, i id.BufferID) error {
	dev, err := create(g, device, i, buffers,
		func(_ Token, _ *Hub, dev *Device) (*Buffer, error) {
			raw, err := dev.Raw.CreateBuffer(desc)
			if err != nil {
				return nil, err
			}
			b := &Buffer{Owned: Owned{device}, Raw: raw, Desc: *desc}
			if desc.MappedAtCreation {
				b.Transition(gpucore.BufferUseMapWrite)
			}
			return b, nil
		},
		func(dev *Device, b *Buffer) { dev.Raw.DestroyBuffer(b.Raw) })
	if err != nil {
		return fmt.Errorf("create buffer %s %q: %w", i, desc.Label, err)
	}
	dev.record(trace.CreateBuffer{ID: i, Desc: *desc})
	return nil
}

// BufferDestroy destroys buffer i.
func (g *Global) BufferDestroy(i id.BufferID) error {
	err := destroy(g, i, buffers, func(d backend.Device, b *Buffer) { d.DestroyBuffer(b.Raw) },
		trace.DestroyBuffer{ID: i})
	if err != nil {
		return fmt.Errorf("destroy buffer: %w", err)
	}
	return nil
}

// DeviceCreateTexture creates a texture on device under i.
func (g *Global) DeviceCreateTexture(device id.DeviceID, desc *gpucore.TextureDescriptor, i id.TextureID) error {
	dev, err := create(g, device, i, textures,
		func(_ Token, _ *Hub, dev *Device) (*Texture, error) {
			raw, err := dev.Raw.CreateTexture(desc)
			if err != nil {
				return nil, err
			}
			return &Texture{Owned: Owned{device}, Raw: raw, Desc: *desc}, nil
		},
		func(dev *Device, t *Texture) { dev.Raw.DestroyTexture(t.Raw) })
	if err != nil {
		return fmt.Errorf("create texture %s %q: %w", i, desc.Label, err)
	}
	dev.record(trace.CreateTexture{ID: i, Desc: *desc})
	return nil
}

// TextureDestroy destroys texture i.
func (g *Global) TextureDestroy(i id.TextureID) error {
	err := destroy(g, i, textures, func(d backend.Device, t *Texture) { d.DestroyTexture(t.Raw) },
		trace.DestroyTexture{ID: i})
	if err != nil {
		return fmt.Errorf("destroy texture: %w", err)
	}
	return nil
}

// defaultViewDesc views every mip level and layer of t in its own format.
func defaultViewDesc(t *Texture) gpucore.TextureViewDescriptor {
	dim := gpucore.TextureViewDimension2D
	layers := t.Desc.Size.DepthOrArrayLayers
	switch t.Desc.Dimension {
	case gpucore.TextureDimension1D:
		dim = gpucore.TextureViewDimension1D
	case gpucore.TextureDimension3D:
		dim = gpucore.TextureViewDimension3D
		layers = 1
	default:
		if layers > 1 {
			dim = gpucore.TextureViewDimension2DArray
		}
	}
	return gpucore.TextureViewDescriptor{
		Format:          t.Desc.Format,
		Dimension:       dim,
		Aspect:          gpucore.TextureAspectAll,
		MipLevelCount:   max(t.Desc.MipLevelCount, 1),
		ArrayLayerCount: max(layers, 1),
	}
}

// TextureCreateView creates a view of texture under i. A nil desc views
// the whole texture.
func (g *Global) TextureCreateView(texture id.TextureID, desc *gpucore.TextureViewDescriptor, i id.TextureViewID) error {
	h := g.hubFor(texture.Raw())
	devices, tokD := h.Devices.Read(Root())
	defer devices.Release()

	dev, err := func() (*Device, error) {
		textures, tokT := h.Textures.Read(tokD)
		defer textures.Release()

		tex, err := textures.Get(texture)
		if err != nil {
			return nil, err
		}
		dev, err := devices.Get(tex.Device)
		if err != nil {
			return nil, err
		}
		vd := defaultViewDesc(tex)
		if desc != nil {
			vd = *desc
		}
		raw, err := dev.Raw.CreateTextureView(tex.Raw, &vd)
		if err != nil {
			return nil, err
		}
		view := &TextureView{Owned: Owned{tex.Device}, Texture: texture, Raw: raw, Desc: vd}
		if err := h.TextureViews.Register(tokT, i, view); err != nil {
			dev.Raw.DestroyTextureView(raw)
			return nil, err
		}
		return dev, nil
	}()
	if err != nil {
		return fmt.Errorf("create view %s of %s: %w", i, texture, err)
	}
	dev.record(trace.CreateTextureView{ID: i, Parent: texture, Desc: desc})
	return nil
}

// TextureViewDestroy destroys view i.
func (g *Global) TextureViewDestroy(i id.TextureViewID) error {
	err := destroy(g, i, textureViews, func(d backend.Device, v *TextureView) { d.DestroyTextureView(v.Raw) },
		trace.DestroyTextureView{ID: i})
	if err != nil {
		return fmt.Errorf("destroy texture view: %w", err)
	}
	return nil
}

// DeviceCreateSampler creates a sampler on device under i.
func (g *Global) DeviceCreateSampler(device id.DeviceID, desc *gpucore.SamplerDescriptor, i id.SamplerID) error {
	dev, err := create(g, device, i, samplers,
		func(_ Token, _ *Hub, dev *Device) (*Sampler, error) {
			raw, err := dev.Raw.CreateSampler(desc)
			if err != nil {
				return nil, err
			}
			return &Sampler{Owned: Owned{device}, Raw: raw, Desc: *desc}, nil
		},
		func(dev *Device, s *Sampler) { dev.Raw.DestroySampler(s.Raw) })
	if err != nil {
		return fmt.Errorf("create sampler %s %q: %w", i, desc.Label, err)
	}
	dev.record(trace.CreateSampler{ID: i, Desc: *desc})
	return nil
}

// SamplerDestroy destroys sampler i.
func (g *Global) SamplerDestroy(i id.SamplerID) error {
	err := destroy(g, i, samplers, func(d backend.Device, s *Sampler) { d.DestroySampler(s.Raw) },
		trace.DestroySampler{ID: i})
	if err != nil {
		return fmt.Errorf("destroy sampler: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Binding model
// --------------------------------------------------------------------------

// DeviceCreateBindGroupLayout creates a bind group layout on device
// under i. Binding numbers must be unique.
func (g *Global) DeviceCreateBindGroupLayout(device id.DeviceID, label string, entries []gpucore.BindGroupLayoutEntry, i id.BindGroupLayoutID) error {
	dev, err := create(g, device, i, bindGroupLayouts,
		func(_ Token, _ *Hub, dev *Device) (*BindGroupLayout, error) {
			seen := make(map[uint32]bool, len(entries))
			for _, e := range entries {
				if seen[e.Binding] {
					return nil, fmt.Errorf("%w: binding %d declared twice", ErrInvalidDescriptor, e.Binding)
				}
				seen[e.Binding] = true
			}
			raw, err := dev.Raw.CreateBindGroupLayout(&backend.BindGroupLayoutDescriptor{Label: label, Entries: entries})
			if err != nil {
				return nil, err
			}
			return &BindGroupLayout{Owned: Owned{device}, Raw: raw, Label: label, Entries: entries}, nil
		},
		func(dev *Device, l *BindGroupLayout) { dev.Raw.DestroyBindGroupLayout(l.Raw) })
	if err != nil {
		return fmt.Errorf("create bind group layout %s %q: %w", i, label, err)
	}
	dev.record(trace.CreateBindGroupLayout{ID: i, Label: label, Entries: entries})
	return nil
}

// BindGroupLayoutDestroy destroys layout i.
func (g *Global) BindGroupLayoutDestroy(i id.BindGroupLayoutID) error {
	err := destroy(g, i, bindGroupLayouts, func(d backend.Device, l *BindGroupLayout) { d.DestroyBindGroupLayout(l.Raw) },
		trace.DestroyBindGroupLayout{ID: i})
	if err != nil {
		return fmt.Errorf("destroy bind group layout: %w", err)
	}
	return nil
}

// DeviceCreatePipelineLayout creates a pipeline layout on device under i.
func (g *Global) DeviceCreatePipelineLayout(device id.DeviceID, label string, groups []id.BindGroupLayoutID,
	pushConstants []gpucore.PushConstantRange, i id.PipelineLayoutID) error {
	dev, err := create(g, device, i, pipelineLayouts,
		func(tok Token, h *Hub, dev *Device) (*PipelineLayout, error) {
			layouts, _ := h.BindGroupLayouts.Read(tok)
			defer layouts.Release()

			raws := make([]backend.BindGroupLayout, len(groups))
			for n, gid := range groups {
				l, err := layouts.Get(gid)
				if err != nil {
					return nil, err
				}
				if err := sameDevice(device, gid, l); err != nil {
					return nil, err
				}
				raws[n] = l.Raw
			}
			raw, err := dev.Raw.CreatePipelineLayout(&backend.PipelineLayoutDescriptor{
				Label:              label,
				BindGroupLayouts:   raws,
				PushConstantRanges: pushConstants,
			})
			if err != nil {
				return nil, err
			}
			return &PipelineLayout{Owned: Owned{device}, Raw: raw, Label: label, BindGroupLayouts: groups}, nil
		},
		func(dev *Device, l *PipelineLayout) { dev.Raw.DestroyPipelineLayout(l.Raw) })
	if err != nil {
		return fmt.Errorf("create pipeline layout %s %q: %w", i, label, err)
	}
	dev.record(trace.CreatePipelineLayout{ID: i, Label: label, BindGroupLayouts: groups, PushConstantRanges: pushConstants})
	return nil
}

// PipelineLayoutDestroy destroys layout i.
func (g *Global) PipelineLayoutDestroy(i id.PipelineLayoutID) error {
	err := destroy(g, i, pipelineLayouts, func(d backend.Device, l *PipelineLayout) { d.DestroyPipelineLayout(l.Raw) },
		trace.DestroyPipelineLayout{ID: i})
	if err != nil {
		return fmt.Errorf("destroy pipeline layout: %w", err)
	}
	return nil
}

// DeviceCreateBindGroup creates a bind group on device under i. Every
// layout binding must be supplied exactly once with a resource of the
// declared kind.
func (g *Global) DeviceCreateBindGroup(device id.DeviceID, label string, layout id.BindGroupLayoutID,
	entries []trace.BindGroupEntry, i id.BindGroupID) error {
	dev, err := create(g, device, i, bindGroups,
		func(tok Token, h *Hub, dev *Device) (*BindGroup, error) {
			layouts, tokL := h.BindGroupLayouts.Read(tok)
			defer layouts.Release()
			bufs, tokB := h.Buffers.Read(tokL)
			defer bufs.Release()
			views, tokV := h.TextureViews.Read(tokB)
			defer views.Release()
			smps, _ := h.Samplers.Read(tokV)
			defer smps.Release()

			l, err := layouts.Get(layout)
			if err != nil {
				return nil, err
			}
			if err := sameDevice(device, layout, l); err != nil {
				return nil, err
			}
			if len(entries) != len(l.Entries) {
				return nil, fmt.Errorf("%w: %d entries for a layout with %d", ErrInvalidDescriptor, len(entries), len(l.Entries))
			}
			decl := make(map[uint32]gpucore.BindGroupLayoutEntry, len(l.Entries))
			dynamic := 0
			for _, e := range l.Entries {
				decl[e.Binding] = e
				if e.HasDynamicOffset {
					dynamic++
				}
			}

			out := make([]backend.BindGroupEntry, 0, len(entries))
			var bound []BoundBuffer
			for _, e := range entries {
				le, ok := decl[e.Binding]
				if !ok {
					return nil, fmt.Errorf("%w: binding %d not in layout or bound twice", ErrInvalidDescriptor, e.Binding)
				}
				delete(decl, e.Binding)
				be := backend.BindGroupEntry{Binding: e.Binding}
				switch r := e.Resource; {
				case le.Type.IsBuffer():
					if r.Buffer == nil {
						return nil, fmt.Errorf("%w: binding %d needs a buffer", ErrInvalidDescriptor, e.Binding)
					}
					b, err := bufs.Get(r.Buffer.Buffer)
					if err != nil {
						return nil, err
					}
					if err := sameDevice(device, r.Buffer.Buffer, b); err != nil {
						return nil, err
					}
					if r.Buffer.Offset+r.Buffer.Size > b.Desc.Size {
						return nil, fmt.Errorf("%w: binding %d range %d+%d exceeds buffer size %d",
							ErrInvalidDescriptor, e.Binding, r.Buffer.Offset, r.Buffer.Size, b.Desc.Size)
					}
					be.Buffer, be.Offset, be.Size = b.Raw, r.Buffer.Offset, r.Buffer.Size
					use := gpucore.BufferUseStorage
					if le.Type == gpucore.BindingTypeUniformBuffer {
						use = gpucore.BufferUseUniform
					}
					bound = append(bound, BoundBuffer{Buffer: b, Use: use})
				case le.Type == gpucore.BindingTypeSampler:
					if r.Sampler == nil {
						return nil, fmt.Errorf("%w: binding %d needs a sampler", ErrInvalidDescriptor, e.Binding)
					}
					s, err := smps.Get(*r.Sampler)
					if err != nil {
						return nil, err
					}
					if err := sameDevice(device, *r.Sampler, s); err != nil {
						return nil, err
					}
					be.Sampler = s.Raw
				default:
					if want := max(le.Count, 1); uint32(len(r.TextureViews)) != want {
						return nil, fmt.Errorf("%w: binding %d needs %d texture views, got %d",
							ErrInvalidDescriptor, e.Binding, want, len(r.TextureViews))
					}
					for _, vid := range r.TextureViews {
						v, err := views.Get(vid)
						if err != nil {
							return nil, err
						}
						if err := sameDevice(device, vid, v); err != nil {
							return nil, err
						}
						be.TextureViews = append(be.TextureViews, v.Raw)
					}
				}
				out = append(out, be)
			}

			raw, err := dev.Raw.CreateBindGroup(&backend.BindGroupDescriptor{Label: label, Layout: l.Raw, Entries: out})
			if err != nil {
				return nil, err
			}
			return &BindGroup{Owned: Owned{device}, Raw: raw, Label: label, Layout: layout, DynamicOffsets: dynamic, Buffers: bound}, nil
		},
		func(dev *Device, bg *BindGroup) { dev.Raw.DestroyBindGroup(bg.Raw) })
	if err != nil {
		return fmt.Errorf("create bind group %s %q: %w", i, label, err)
	}
	dev.record(trace.CreateBindGroup{ID: i, Label: label, Layout: layout, Entries: entries})
	return nil
}

// BindGroupDestroy destroys bind group i.
func (g *Global) BindGroupDestroy(i id.BindGroupID) error {
	err := destroy(g, i, bindGroups, func(d backend.Device, bg *BindGroup) { d.DestroyBindGroup(bg.Raw) },
		trace.DestroyBindGroup{ID: i})
	if err != nil {
		return fmt.Errorf("destroy bind group: %w", err)
	}
	return nil
}

// --------------------------------------------------------------------------
// Shaders and pipelines
// --------------------------------------------------------------------------

// spirvBytes lays SPIR-V words out little-endian.
func spirvBytes(words []uint32) []byte {
	out := make([]byte, 4*len(words))
	for n, w := range words {
		binary.LittleEndian.PutUint32(out[4*n:], w)
	}
	return out
}

// DeviceCreateShaderModule creates a shader module from SPIR-V words on
// device under i.
func (g *Global) DeviceCreateShaderModule(device id.DeviceID, label string, spirv []uint32, i id.ShaderModuleID) error {
	dev, err := create(g, device, i, shaderModules,
		func(_ Token, _ *Hub, dev *Device) (*ShaderModule, error) {
			raw, err := dev.Raw.CreateShaderModule(&backend.ShaderModuleDescriptor{Label: label, SPIRV: spirv})
			if err != nil {
				return nil, err
			}
			return &ShaderModule{Owned: Owned{device}, Raw: raw, Label: label}, nil
		},
		func(dev *Device, m *ShaderModule) { dev.Raw.DestroyShaderModule(m.Raw) })
	if err != nil {
		return fmt.Errorf("create shader module %s %q: %w", i, label, err)
	}
	dev.recordBlob("spv", spirvBytes(spirv), func(name string) trace.Action {
		return trace.CreateShaderModule{ID: i, Label: label, Data: name}
	})
	return nil
}

// ShaderModuleDestroy destroys module i.
func (g *Global) ShaderModuleDestroy(i id.ShaderModuleID) error {
	err := destroy(g, i, shaderModules, func(d backend.Device, m *ShaderModule) { d.DestroyShaderModule(m.Raw) },
		trace.DestroyShaderModule{ID: i})
	if err != nil {
		return fmt.Errorf("destroy shader module: %w", err)
	}
	return nil
}

// stageResolver resolves a pipeline layout and its shader stages under
// the locks of one pipeline creation.
type stageResolver struct {
	device  id.DeviceID
	modules *ReadGuard[id.ShaderModule, *ShaderModule]
}

func (s stageResolver) stage(st trace.ProgrammableStage) (backend.ProgrammableStage, error) {
	m, err := s.modules.Get(st.Module)
	if err != nil {
		return backend.ProgrammableStage{}, err
	}
	if err := sameDevice(s.device, st.Module, m); err != nil {
		return backend.ProgrammableStage{}, err
	}
	if st.EntryPoint == "" {
		return backend.ProgrammableStage{}, fmt.Errorf("%w: empty entry point", ErrInvalidDescriptor)
	}
	return backend.ProgrammableStage{Module: m.Raw, EntryPoint: st.EntryPoint}, nil
}

func readLayout(tok Token, h *Hub, device id.DeviceID, i id.PipelineLayoutID) (*PipelineLayout, Token, func(), error) {
	layouts, tokP := h.PipelineLayouts.Read(tok)
	l, err := layouts.Get(i)
	if err == nil {
		err = sameDevice(device, i, l)
	}
	if err != nil {
		layouts.Release()
		return nil, tok, nil, err
	}
	return l, tokP, layouts.Release, nil
}

// DeviceCreateComputePipeline creates a compute pipeline on device under i.
func (g *Global) DeviceCreateComputePipeline(device id.DeviceID, desc *trace.ComputePipelineDescriptor, i id.ComputePipelineID) error {
	dev, err := create(g, device, i, computePipelines,
		func(tok Token, h *Hub, dev *Device) (*ComputePipeline, error) {
			layout, tokP, release, err := readLayout(tok, h, device, desc.Layout)
			if err != nil {
				return nil, err
			}
			defer release()
			modules, _ := h.ShaderModules.Read(tokP)
			defer modules.Release()

			stage, err := stageResolver{device, modules}.stage(desc.ComputeStage)
			if err != nil {
				return nil, err
			}
			raw, err := dev.Raw.CreateComputePipeline(&backend.ComputePipelineDescriptor{
				Label: desc.Label, Layout: layout.Raw, Stage: stage,
			})
			if err != nil {
				return nil, err
			}
			return &ComputePipeline{Owned: Owned{device}, Raw: raw, Label: desc.Label, Layout: desc.Layout}, nil
		},
		func(dev *Device, p *ComputePipeline) { dev.Raw.DestroyComputePipeline(p.Raw) })
	if err != nil {
		return fmt.Errorf("create compute pipeline %s %q: %w", i, desc.Label, err)
	}
	dev.record(trace.CreateComputePipeline{ID: i, Desc: *desc})
	return nil
}

// ComputePipelineDestroy destroys pipeline i.
func (g *Global) ComputePipelineDestroy(i id.ComputePipelineID) error {
	err := destroy(g, i, computePipelines, func(d backend.Device, p *ComputePipeline) { d.DestroyComputePipeline(p.Raw) },
		trace.DestroyComputePipeline{ID: i})
	if err != nil {
		return fmt.Errorf("destroy compute pipeline: %w", err)
	}
	return nil
}

// DeviceCreateRenderPipeline creates a render pipeline on device under i.
func (g *Global) DeviceCreateRenderPipeline(device id.DeviceID, desc *trace.RenderPipelineDescriptor, i id.RenderPipelineID) error {
	dev, err := create(g, device, i, renderPipelines,
		func(tok Token, h *Hub, dev *Device) (*RenderPipeline, error) {
			layout, tokP, release, err := readLayout(tok, h, device, desc.Layout)
			if err != nil {
				return nil, err
			}
			defer release()
			modules, _ := h.ShaderModules.Read(tokP)
			defer modules.Release()

			res := stageResolver{device, modules}
			vertex, err := res.stage(desc.VertexStage)
			if err != nil {
				return nil, err
			}
			rd := &backend.RenderPipelineDescriptor{
				Label:         desc.Label,
				Layout:        layout.Raw,
				Vertex:        vertex,
				VertexBuffers: desc.VertexBuffers,
				Targets:       desc.ColorStates,
				Primitive:     desc.Primitive,
				DepthStencil:  desc.DepthStencil,
				SampleCount:   max(desc.SampleCount, 1),
				SampleMask:    desc.SampleMask,
			}
			if desc.FragmentStage != nil {
				fragment, err := res.stage(*desc.FragmentStage)
				if err != nil {
					return nil, err
				}
				rd.Fragment = &fragment
			}
			raw, err := dev.Raw.CreateRenderPipeline(rd)
			if err != nil {
				return nil, err
			}
			return &RenderPipeline{Owned: Owned{device}, Raw: raw, Label: desc.Label, Layout: desc.Layout}, nil
		},
		func(dev *Device, p *RenderPipeline) { dev.Raw.DestroyRenderPipeline(p.Raw) })
	if err != nil {
		return fmt.Errorf("create render pipeline %s %q: %w", i, desc.Label, err)
	}
	dev.record(trace.CreateRenderPipeline{ID: i, Desc: *desc})
	return nil
}

// RenderPipelineDestroy destroys pipeline i.
func (g *Global) RenderPipelineDestroy(i id.RenderPipelineID) error {
	err := destroy(g, i, renderPipelines, func(d backend.Device, p *RenderPipeline) { d.DestroyRenderPipeline(p.Raw) },
		trace.DestroyRenderPipeline{ID: i})
	if err != nil {
		return fmt.Errorf("destroy render pipeline: %w", err)
	}
	return nil
}

// DeviceCreateRenderBundle stores a render bundle on device under i. Only
// render-pass state and draw commands may appear in a bundle; ids are
// resolved when a pass executes it.
func (g *Global) DeviceCreateRenderBundle(device id.DeviceID, desc *trace.RenderBundleDescriptor, base trace.BasePass, i id.RenderBundleID) error {
	dev, err := create(g, device, i, renderBundles,
		func(Token, *Hub, *Device) (*RenderBundle, error) {
			for n, c := range base.Commands {
				switch c.(type) {
				case trace.SetComputePipeline, trace.Dispatch, trace.ExecuteBundles:
					return nil, fmt.Errorf("%w: command %d (%s) is not allowed in a render bundle",
						ErrInvalidDescriptor, n, c.Type())
				}
			}
			return &RenderBundle{Owned: Owned{device}, Desc: *desc, Base: base}, nil
		},
		func(*Device, *RenderBundle) {})
	if err != nil {
		return fmt.Errorf("create render bundle %s %q: %w", i, desc.Label, err)
	}
	dev.record(trace.CreateRenderBundle{ID: i, Desc: *desc, Base: base})
	return nil
}

// RenderBundleDestroy destroys bundle i.
func (g *Global) RenderBundleDestroy(i id.RenderBundleID) error {
	err := destroy(g, i, renderBundles, func(backend.Device, *RenderBundle) {}, trace.DestroyRenderBundle{ID: i})
	if err != nil {
		return fmt.Errorf("destroy render bundle: %w", err)
	}
	return nil
}

// DeviceCreateQuerySet creates a query set on device under i.
func (g *Global) DeviceCreateQuerySet(device id.DeviceID, desc *gpucore.QuerySetDescriptor, i id.QuerySetID) error {
	dev, err := create(g, device, i, querySets,
		func(_ Token, _ *Hub, dev *Device) (*QuerySet, error) {
			if desc.Count == 0 || desc.Count > maxQueriesPerSet {
				return nil, fmt.Errorf("%w: query count %d outside 1..%d", ErrInvalidDescriptor, desc.Count, maxQueriesPerSet)
			}
			if desc.Type == gpucore.QueryTypePipelineStatistics && len(desc.PipelineStatistics) == 0 {
				return nil, fmt.Errorf("%w: pipeline statistics query set without statistics", ErrInvalidDescriptor)
			}
			raw, err := dev.Raw.CreateQuerySet(desc)
			if err != nil {
				return nil, err
			}
			return &QuerySet{Owned: Owned{device}, Raw: raw, Desc: *desc}, nil
		},
		func(dev *Device, q *QuerySet) { dev.Raw.DestroyQuerySet(q.Raw) })
	if err != nil {
		return fmt.Errorf("create query set %s %q: %w", i, desc.Label, err)
	}
	dev.record(trace.CreateQuerySet{ID: i, Desc: *desc})
	return nil
}

// QuerySetDestroy destroys query set i.
func (g *Global) QuerySetDestroy(i id.QuerySetID) error {
	err := destroy(g, i, querySets, func(d backend.Device, q *QuerySet) { d.DestroyQuerySet(q.Raw) },
		trace.DestroyQuerySet{ID: i})
	if err != nil {
		return fmt.Errorf("destroy query set: %w", err)
	}
	return nil
}
