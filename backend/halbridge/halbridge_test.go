package halbridge

import (
	"errors"
	"testing"

	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/id"
)

// openNoop opens a device on the noop HAL backend.
func openNoop(t *testing.T) (backend.Device, backend.Queue) {
	t.Helper()
	factory := NewFactory(id.Vulkan, func() (hal.Instance, error) {
		api := noop.API{}
		return api.CreateInstance(nil)
	})
	adapter, err := factory()
	if err != nil {
		t.Fatalf("factory failed: %v", err)
	}
	t.Cleanup(adapter.Destroy)

	if got := adapter.Info().Backend; got != id.Vulkan {
		t.Errorf("Info().Backend = %v, want Vulkan", got)
	}

	device, queue, err := adapter.Open(&gpucore.DeviceDescriptor{Label: "noop"})
	if err != nil {
		t.Fatalf("Open failed: %v", err)
	}
	t.Cleanup(device.Destroy)
	return device, queue
}

func TestFactoryInstanceError(t *testing.T) {
	want := errors.New("no instance")
	factory := NewFactory(id.Metal, func() (hal.Instance, error) { return nil, want })
	if _, err := factory(); !errors.Is(err, want) {
		t.Errorf("factory error = %v, want %v", err, want)
	}
}

func TestBufferCopySubmit(t *testing.T) {
	device, queue := openNoop(t)

	desc := &gpucore.BufferDescriptor{Size: 16, Usage: gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst}
	src, err := device.CreateBuffer(desc)
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	defer device.DestroyBuffer(src)
	dst, err := device.CreateBuffer(desc)
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	defer device.DestroyBuffer(dst)

	if err := queue.WriteBuffer(src, 0, make([]byte, 16)); err != nil {
		t.Fatalf("WriteBuffer failed: %v", err)
	}

	enc, err := device.CreateCommandEncoder("copy")
	if err != nil {
		t.Fatalf("CreateCommandEncoder failed: %v", err)
	}
	enc.CopyBufferToBuffer(src, 0, dst, 0, 16)
	cb, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	if err := queue.Submit([]backend.CommandBuffer{cb}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := device.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
}

func TestDeviceWriteBufferBounds(t *testing.T) {
	device, _ := openNoop(t)
	buf, err := device.CreateBuffer(&gpucore.BufferDescriptor{Size: 4, Usage: gpucore.BufferUsageCopyDst})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	defer device.DestroyBuffer(buf)

	if err := device.WriteBuffer(buf, 2, []byte{1, 2, 3}); err == nil {
		t.Error("expected out-of-bounds write to fail")
	}
}

func TestUnsupportedOperations(t *testing.T) {
	device, _ := openNoop(t)

	_, err := device.CreateQuerySet(&gpucore.QuerySetDescriptor{Type: gpucore.QueryTypePipelineStatistics, Count: 1})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("CreateQuerySet error = %v, want ErrUnsupported", err)
	}
	_, err = device.CreateBindGroupLayout(&backend.BindGroupLayoutDescriptor{
		Entries: []gpucore.BindGroupLayoutEntry{{Binding: 0, Type: gpucore.BindingTypeSampler}},
	})
	if !errors.Is(err, ErrUnsupported) {
		t.Errorf("sampler layout error = %v, want ErrUnsupported", err)
	}

	enc, err := device.CreateCommandEncoder("statistics")
	if err != nil {
		t.Fatalf("CreateCommandEncoder failed: %v", err)
	}
	enc.BeginQuery(nil, 0)
	if _, err := enc.Finish(); !errors.Is(err, ErrUnsupported) {
		t.Errorf("Finish error = %v, want ErrUnsupported", err)
	}
}

// fakeDevice counts destroyed encoders and creates query sets, which the
// noop device refuses.
type fakeDevice struct {
	hal.Device
	destroyed *int
}

func (d fakeDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return countingEncoder{CommandEncoder: enc, destroyed: d.destroyed}, nil
}

func (d fakeDevice) CreateQuerySet(*hal.QuerySetDescriptor) (hal.QuerySet, error) {
	return &noop.Resource{}, nil
}

type countingEncoder struct {
	hal.CommandEncoder
	destroyed *int
}

func (e countingEncoder) Destroy() {
	*e.destroyed++
	e.CommandEncoder.Destroy()
}

// laggingQueue never reports a submission complete.
type laggingQueue struct{ hal.Queue }

func (laggingQueue) PollCompleted() uint64 { return 0 }

// failingQueue rejects every write.
type failingQueue struct {
	hal.Queue
	err error
}

func (q failingQueue) WriteBuffer(hal.Buffer, uint64, []byte) error { return q.err }

func (q failingQueue) WriteTexture(*hal.ImageCopyTexture, []byte, *hal.ImageDataLayout, *hal.Extent3D) error {
	return q.err
}

// openFake opens a noop device whose HAL device is wrapped in fakeDevice.
// It returns the number of encoders destroyed so far.
func openFake(t *testing.T) (*Device, backend.Queue, *int) {
	t.Helper()
	device, queue := openNoop(t)
	d := device.(*Device)
	destroyed := new(int)
	d.raw = fakeDevice{Device: d.raw, destroyed: destroyed}
	return d, queue, destroyed
}

func finish(t *testing.T, device backend.Device, record func(backend.CommandEncoder)) backend.CommandBuffer {
	t.Helper()
	enc, err := device.CreateCommandEncoder(t.Name())
	if err != nil {
		t.Fatalf("CreateCommandEncoder failed: %v", err)
	}
	record(enc)
	cb, err := enc.Finish()
	if err != nil {
		t.Fatalf("Finish failed: %v", err)
	}
	return cb
}

func TestQueueWriteErrors(t *testing.T) {
	device, queue := openNoop(t)
	buf, err := device.CreateBuffer(&gpucore.BufferDescriptor{Size: 16, Usage: gpucore.BufferUsageCopyDst})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	tex, err := device.CreateTexture(&gpucore.TextureDescriptor{
		Label:  "target",
		Size:   gpucore.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageCopyDst,
	})
	if err != nil {
		t.Fatalf("CreateTexture failed: %v", err)
	}

	want := errors.New("device lost")
	d := device.(*Device)
	d.queue = failingQueue{Queue: d.queue, err: want}

	if err := queue.WriteBuffer(buf, 0, make([]byte, 4)); !errors.Is(err, want) {
		t.Errorf("Queue.WriteBuffer error = %v, want %v", err, want)
	}
	if err := device.WriteBuffer(buf, 0, make([]byte, 4)); !errors.Is(err, want) {
		t.Errorf("Device.WriteBuffer error = %v, want %v", err, want)
	}
	err = queue.WriteTexture(&backend.ImageCopyTexture{Texture: tex}, make([]byte, 64),
		&gpucore.TextureDataLayout{BytesPerRow: 16}, gpucore.Extent3D{Width: 4, Height: 4})
	if !errors.Is(err, want) {
		t.Errorf("WriteTexture error = %v, want %v", err, want)
	}
}

func TestSubmitReleasesEncoders(t *testing.T) {
	device, queue, destroyed := openFake(t)

	for i := range 2 {
		cb := finish(t, device, func(backend.CommandEncoder) {})
		if err := queue.Submit([]backend.CommandBuffer{cb}); err != nil {
			t.Fatalf("Submit failed: %v", err)
		}
		if *destroyed != i+1 {
			t.Errorf("after submit %d: destroyed = %d, want %d", i+1, *destroyed, i+1)
		}
	}
	if len(device.pending) != 0 {
		t.Errorf("pending = %d, want 0", len(device.pending))
	}

	enc, err := device.CreateCommandEncoder("discarded")
	if err != nil {
		t.Fatalf("CreateCommandEncoder failed: %v", err)
	}
	enc.Discard()
	enc.Discard()
	if *destroyed != 3 {
		t.Errorf("after discard: destroyed = %d, want 3", *destroyed)
	}

	enc, err = device.CreateCommandEncoder("failed")
	if err != nil {
		t.Fatalf("CreateCommandEncoder failed: %v", err)
	}
	enc.EndQuery(nil, 0)
	if _, err := enc.Finish(); err == nil {
		t.Fatal("expected Finish to fail")
	}
	if *destroyed != 4 {
		t.Errorf("after failed finish: destroyed = %d, want 4", *destroyed)
	}
}

func TestWaitIdleReleasesInFlightEncoders(t *testing.T) {
	device, queue, destroyed := openFake(t)
	device.queue = laggingQueue{Queue: device.queue}

	first := finish(t, device, func(backend.CommandEncoder) {})
	second := finish(t, device, func(backend.CommandEncoder) {})
	if err := queue.Submit([]backend.CommandBuffer{first, second}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if *destroyed != 0 || len(device.pending) != 2 {
		t.Fatalf("before WaitIdle: destroyed = %d, pending = %d; want 0 and 2", *destroyed, len(device.pending))
	}
	if err := device.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
	if *destroyed != 2 || len(device.pending) != 0 {
		t.Errorf("after WaitIdle: destroyed = %d, pending = %d; want 2 and 0", *destroyed, len(device.pending))
	}
}

func TestQuerySets(t *testing.T) {
	device, queue, _ := openFake(t)

	timestamps, err := device.CreateQuerySet(&gpucore.QuerySetDescriptor{Label: "ts", Type: gpucore.QueryTypeTimestamp, Count: 4})
	if err != nil {
		t.Fatalf("CreateQuerySet(timestamp) failed: %v", err)
	}
	defer device.DestroyQuerySet(timestamps)
	occlusion, err := device.CreateQuerySet(&gpucore.QuerySetDescriptor{Label: "occ", Type: gpucore.QueryTypeOcclusion, Count: 2})
	if err != nil {
		t.Fatalf("CreateQuerySet(occlusion) failed: %v", err)
	}
	defer device.DestroyQuerySet(occlusion)

	results, err := device.CreateBuffer(&gpucore.BufferDescriptor{Size: 64, Usage: gpucore.BufferUsageCopyDst | gpucore.BufferUsageCopySrc})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	defer device.DestroyBuffer(results)

	cb := finish(t, device, func(enc backend.CommandEncoder) {
		enc.WriteTimestamp(timestamps, 0, gpucore.PipelineStageTopOfPipe)
		enc.WriteTimestamp(timestamps, 1, gpucore.PipelineStageBottomOfPipe)
		enc.PipelineBarrier(gpucore.AllBufferStages, gpucore.PipelineStageTransfer, []backend.BufferBarrier{{
			Buffer: results,
			Usage:  gpucore.BufferUseTransition{From: gpucore.BufferUseNone, To: gpucore.BufferUseCopyDst},
		}})
		enc.CopyQueryResults(timestamps, 0, 2, results, 0, 8, 0)
		enc.CopyQueryResults(occlusion, 0, 2, results, 16, 16, gpucore.QueryResultWithAvailability)
	})
	if err := queue.Submit([]backend.CommandBuffer{cb}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
}

func TestQuerySetBackendError(t *testing.T) {
	device, _ := openNoop(t)
	_, err := device.CreateQuerySet(&gpucore.QuerySetDescriptor{Type: gpucore.QueryTypeTimestamp, Count: 1})
	if !errors.Is(err, hal.ErrTimestampsNotSupported) {
		t.Errorf("CreateQuerySet error = %v, want hal.ErrTimestampsNotSupported", err)
	}
}

func TestRenderPipelineAndPass(t *testing.T) {
	device, queue := openNoop(t)

	module, err := device.CreateShaderModule(&backend.ShaderModuleDescriptor{Label: "tri", SPIRV: []uint32{0x07230203}})
	if err != nil {
		t.Fatalf("CreateShaderModule failed: %v", err)
	}
	defer device.DestroyShaderModule(module)
	layout, err := device.CreatePipelineLayout(&backend.PipelineLayoutDescriptor{Label: "empty"})
	if err != nil {
		t.Fatalf("CreatePipelineLayout failed: %v", err)
	}
	defer device.DestroyPipelineLayout(layout)

	desc := &backend.RenderPipelineDescriptor{
		Label:    "tri",
		Layout:   layout,
		Vertex:   backend.ProgrammableStage{Module: module, EntryPoint: "vs_main"},
		Fragment: &backend.ProgrammableStage{Module: module, EntryPoint: "fs_main"},
		VertexBuffers: []gpucore.VertexBufferLayout{{
			ArrayStride: 12,
			Attributes:  []gpucore.VertexAttribute{{Format: gpucore.VertexFormatFloat32x3}},
		}},
		Targets:      []gpucore.ColorTargetState{{Format: gpucore.TextureFormatRGBA8Unorm, Blend: true}},
		Primitive:    gpucore.PrimitiveState{Topology: gpucore.PrimitiveTopologyTriangleList, CullMode: gpucore.CullModeBack},
		DepthStencil: &gpucore.DepthStencilState{Format: gpucore.TextureFormatDepth24PlusStencil8, DepthWriteEnabled: true, DepthCompare: gpucore.CompareFunctionLess},
	}
	pipeline, err := device.CreateRenderPipeline(desc)
	if err != nil {
		t.Fatalf("CreateRenderPipeline failed: %v", err)
	}
	defer device.DestroyRenderPipeline(pipeline)

	bad := *desc
	bad.VertexBuffers = []gpucore.VertexBufferLayout{{Attributes: []gpucore.VertexAttribute{{Format: gpucore.VertexFormat(99)}}}}
	if _, err := device.CreateRenderPipeline(&bad); !errors.Is(err, ErrUnsupported) {
		t.Errorf("unknown vertex format error = %v, want ErrUnsupported", err)
	}

	color, err := device.CreateTexture(&gpucore.TextureDescriptor{
		Label:  "color",
		Size:   gpucore.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageRenderAttachment | gpucore.TextureUsageCopySrc,
	})
	if err != nil {
		t.Fatalf("CreateTexture failed: %v", err)
	}
	defer device.DestroyTexture(color)
	view, err := device.CreateTextureView(color, nil)
	if err != nil {
		t.Fatalf("CreateTextureView failed: %v", err)
	}
	defer device.DestroyTextureView(view)
	vertices, err := device.CreateBuffer(&gpucore.BufferDescriptor{Size: 36, Usage: gpucore.BufferUsageVertex | gpucore.BufferUsageIndex})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	defer device.DestroyBuffer(vertices)

	cb := finish(t, device, func(enc backend.CommandEncoder) {
		pass := enc.BeginRenderPass(&backend.RenderPassDescriptor{
			Label: "draw",
			ColorAttachments: []backend.ColorAttachment{{
				View:       view,
				LoadOp:     gpucore.LoadOpClear,
				StoreOp:    gpucore.StoreOpStore,
				ClearValue: gpucore.Color{A: 1},
			}},
		})
		pass.SetPipeline(pipeline)
		pass.SetVertexBuffer(0, vertices, 0)
		pass.SetIndexBuffer(vertices, gpucore.IndexFormatUint16, 0)
		pass.SetViewport(0, 0, 4, 4, 0, 1)
		pass.SetScissorRect(0, 0, 4, 4)
		pass.SetBlendConstant(gpucore.Color{R: 1})
		pass.SetStencilReference(1)
		pass.PushDebugGroup("tri")
		pass.Draw(3, 1, 0, 0)
		pass.DrawIndexed(3, 1, 0, 0, 0)
		pass.PopDebugGroup()
		pass.End()
	})
	if err := queue.Submit([]backend.CommandBuffer{cb}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}

	enc, err := device.CreateCommandEncoder("foreign view")
	if err != nil {
		t.Fatalf("CreateCommandEncoder failed: %v", err)
	}
	enc.BeginRenderPass(&backend.RenderPassDescriptor{ColorAttachments: []backend.ColorAttachment{{View: "not a view"}}}).End()
	if _, err := enc.Finish(); !errors.Is(err, backend.ErrForeignHandle) {
		t.Errorf("Finish error = %v, want ErrForeignHandle", err)
	}
}

func TestTextureCopies(t *testing.T) {
	device, queue := openNoop(t)

	texDesc := &gpucore.TextureDescriptor{
		Size:   gpucore.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1},
		Format: gpucore.TextureFormatRGBA8Unorm,
		Usage:  gpucore.TextureUsageCopySrc | gpucore.TextureUsageCopyDst,
	}
	a, err := device.CreateTexture(texDesc)
	if err != nil {
		t.Fatalf("CreateTexture failed: %v", err)
	}
	defer device.DestroyTexture(a)
	b, err := device.CreateTexture(texDesc)
	if err != nil {
		t.Fatalf("CreateTexture failed: %v", err)
	}
	defer device.DestroyTexture(b)
	staging, err := device.CreateBuffer(&gpucore.BufferDescriptor{Size: 64, Usage: gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst})
	if err != nil {
		t.Fatalf("CreateBuffer failed: %v", err)
	}
	defer device.DestroyBuffer(staging)

	layout := gpucore.TextureDataLayout{BytesPerRow: 16, RowsPerImage: 4}
	size := gpucore.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1}
	cb := finish(t, device, func(enc backend.CommandEncoder) {
		enc.CopyBufferToTexture(&backend.ImageCopyBuffer{Buffer: staging, Layout: layout}, &backend.ImageCopyTexture{Texture: a}, size)
		enc.CopyTextureToTexture(&backend.ImageCopyTexture{Texture: a}, &backend.ImageCopyTexture{Texture: b}, size)
		enc.CopyTextureToBuffer(&backend.ImageCopyTexture{Texture: b}, &backend.ImageCopyBuffer{Buffer: staging, Layout: layout}, size)
	})
	if err := queue.Submit([]backend.CommandBuffer{cb}); err != nil {
		t.Fatalf("Submit failed: %v", err)
	}
	if err := device.WaitIdle(); err != nil {
		t.Fatalf("WaitIdle failed: %v", err)
	}
}

func TestForeignHandles(t *testing.T) {
	device, queue := openNoop(t)

	if err := queue.WriteBuffer("not a buffer", 0, nil); !errors.Is(err, backend.ErrForeignHandle) {
		t.Errorf("WriteBuffer error = %v, want ErrForeignHandle", err)
	}
	if err := queue.Submit([]backend.CommandBuffer{42}); !errors.Is(err, backend.ErrForeignHandle) {
		t.Errorf("Submit error = %v, want ErrForeignHandle", err)
	}
	if _, err := device.CreateTextureView("not a texture", nil); !errors.Is(err, backend.ErrForeignHandle) {
		t.Errorf("CreateTextureView error = %v, want ErrForeignHandle", err)
	}
}

func TestConvertBufferUsage(t *testing.T) {
	tests := []struct {
		name  string
		usage gpucore.BufferUsage
		want  bool
	}{
		{"none", 0, true},
		{"copy", gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst, false},
		{"storage", gpucore.BufferUsageStorage, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := convertBufferUsage(tt.usage)
			if (got == 0) != tt.want {
				t.Errorf("convertBufferUsage(%#x) = %#x", uint32(tt.usage), uint32(got))
			}
		})
	}
}

func TestResetQueriesIsImplicit(t *testing.T) {
	device, _, _ := openFake(t)
	set, err := device.CreateQuerySet(&gpucore.QuerySetDescriptor{Type: gpucore.QueryTypeTimestamp, Count: 2})
	if err != nil {
		t.Fatalf("CreateQuerySet failed: %v", err)
	}
	finish(t, device, func(enc backend.CommandEncoder) { enc.ResetQueries(set, 0, 2) })

	enc, err := device.CreateCommandEncoder("foreign set")
	if err != nil {
		t.Fatalf("CreateCommandEncoder failed: %v", err)
	}
	enc.ResetQueries("not a set", 0, 1)
	if _, err := enc.Finish(); !errors.Is(err, backend.ErrForeignHandle) {
		t.Errorf("Finish error = %v, want ErrForeignHandle", err)
	}
}
