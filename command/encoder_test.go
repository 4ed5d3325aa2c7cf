package command

import (
	"bytes"
	"encoding/binary"
	"errors"
	"math"
	"slices"
	"strings"
	"testing"

	"github.com/gogpu/wgpu/core"

	"github.com/gogpu/gpuplay/backend/software"
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/hub"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/trace"
)

// =============================================================================
// Helpers
// =============================================================================

type fixture struct {
	t      *testing.T
	g      *hub.Global
	h      *hub.Hub
	device id.DeviceID
	raw    *software.Device
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	compiled := hub.CompiledBackends()
	if len(compiled) == 0 {
		t.Skip("no backend compiled into this build")
	}
	b := compiled[0]
	g := hub.NewGlobal(hub.WithFactory(b, software.Factory))
	h := g.Hub(b)
	device := h.Devices.Alloc()
	if err := g.CreateDevice(b, &gpucore.DeviceDescriptor{Label: "test"}, device); err != nil {
		t.Fatalf("CreateDevice: %v", err)
	}
	dev, err := h.Devices.Get(hub.Root(), device)
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{t: t, g: g, h: h, device: device, raw: dev.Raw.(*software.Device)}
}

func (f *fixture) buffer(label string, size uint64, usage gpucore.BufferUsage) id.BufferID {
	f.t.Helper()
	b := f.h.Buffers.Alloc()
	if err := f.g.DeviceCreateBuffer(f.device, &gpucore.BufferDescriptor{Label: label, Size: size, Usage: usage}, b); err != nil {
		f.t.Fatalf("DeviceCreateBuffer %q: %v", label, err)
	}
	return b
}

func (f *fixture) texture(label string, w, h uint32, usage gpucore.TextureUsage) id.TextureID {
	f.t.Helper()
	tex := f.h.Textures.Alloc()
	desc := &gpucore.TextureDescriptor{
		Label:         label,
		Size:          gpucore.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1},
		MipLevelCount: 1,
		SampleCount:   1,
		Dimension:     gpucore.TextureDimension2D,
		Format:        gpucore.TextureFormatRGBA8Unorm,
		Usage:         usage,
	}
	if err := f.g.DeviceCreateTexture(f.device, desc, tex); err != nil {
		f.t.Fatalf("DeviceCreateTexture %q: %v", label, err)
	}
	return tex
}

func (f *fixture) view(tex id.TextureID) id.TextureViewID {
	f.t.Helper()
	v := f.h.TextureViews.Alloc()
	if err := f.g.TextureCreateView(tex, nil, v); err != nil {
		f.t.Fatalf("TextureCreateView: %v", err)
	}
	return v
}

func (f *fixture) querySet(label string, typ gpucore.QueryType, count uint32, stats ...gpucore.PipelineStatisticName) id.QuerySetID {
	f.t.Helper()
	q := f.h.QuerySets.Alloc()
	desc := &gpucore.QuerySetDescriptor{Label: label, Type: typ, Count: count, PipelineStatistics: stats}
	if err := f.g.DeviceCreateQuerySet(f.device, desc, q); err != nil {
		f.t.Fatalf("DeviceCreateQuerySet: %v", err)
	}
	return q
}

func (f *fixture) encoder(label string) id.CommandEncoderID {
	f.t.Helper()
	enc := f.h.CommandBuffers.Alloc()
	if err := f.g.DeviceCreateCommandEncoder(f.device, label, enc); err != nil {
		f.t.Fatalf("DeviceCreateCommandEncoder: %v", err)
	}
	return enc
}

// run encodes commands on a fresh encoder and submits the result.
func (f *fixture) run(commands ...trace.Command) {
	f.t.Helper()
	cb, err := Encode(f.g, f.encoder("run"), commands)
	if err != nil {
		f.t.Fatalf("Encode: %v", err)
	}
	if err := f.g.QueueSubmit(f.device, []id.CommandBufferID{cb}); err != nil {
		f.t.Fatalf("QueueSubmit: %v", err)
	}
}

func (f *fixture) contents(b id.BufferID) []byte {
	f.t.Helper()
	buf, err := f.h.Buffers.Get(hub.Root(), b)
	if err != nil {
		f.t.Fatal(err)
	}
	data, ok := software.BufferContents(buf.Raw)
	if !ok {
		f.t.Fatalf("%s is not a software buffer", b)
	}
	return data
}

func (f *fixture) status(enc id.CommandEncoderID) core.CommandEncoderStatus {
	f.t.Helper()
	cb, err := f.h.CommandBuffers.Get(hub.Root(), enc)
	if err != nil {
		f.t.Fatal(err)
	}
	return cb.Status
}

// callsSince returns the backend calls recorded after the first n.
func (f *fixture) callsSince(n int) []string {
	return f.raw.Calls()[n:]
}

// =============================================================================
// Encoding
// =============================================================================

func TestEncodeEmpty(t *testing.T) {
	f := newFixture(t)
	enc := f.encoder("empty")
	cb, err := Encode(f.g, enc, nil)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if cb != enc {
		t.Errorf("command buffer id = %s, want encoder id %s", cb, enc)
	}
	if s := f.status(enc); s != core.CommandEncoderStatusFinished {
		t.Errorf("status = %v, want Finished", s)
	}
	if _, err := Encode(f.g, enc, nil); !errors.Is(err, hub.ErrCommandBufferState) {
		t.Errorf("second Encode: err = %v, want ErrCommandBufferState", err)
	}
	if err := f.g.QueueSubmit(f.device, []id.CommandBufferID{cb}); err != nil {
		t.Fatalf("QueueSubmit: %v", err)
	}
}

func TestEncodeUnknownEncoder(t *testing.T) {
	f := newFixture(t)
	stale := id.New[id.CommandBuffer](9, 1, f.device.Backend())
	if _, err := Encode(f.g, stale, nil); !errors.Is(err, hub.ErrInvalidHandle) {
		t.Fatalf("err = %v, want ErrInvalidHandle", err)
	}
}

func TestFailedCommandInvalidatesEncoder(t *testing.T) {
	f := newFixture(t)
	src := f.buffer("src", 16, gpucore.BufferUsageCopySrc)
	dst := f.buffer("dst", 16, gpucore.BufferUsageCopyDst)
	enc := f.encoder("bad")

	_, err := Encode(f.g, enc, []trace.Command{
		trace.CopyBufferToBuffer{Src: src, Dst: dst, Size: 8},
		trace.CopyBufferToBuffer{Src: src, Dst: dst, Size: 32},
	})
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
	if !strings.Contains(err.Error(), "command 1 (CopyBufferToBuffer)") {
		t.Errorf("error %q does not name the failing command", err)
	}
	if s := f.status(enc); s != core.CommandEncoderStatusError {
		t.Errorf("status = %v, want Error", s)
	}
	if calls := f.raw.Calls(); !slices.Contains(calls, `Discard "bad"`) {
		t.Errorf("encoder not discarded: %v", calls)
	}
	if err := f.g.QueueSubmit(f.device, []id.CommandBufferID{enc}); !errors.Is(err, hub.ErrCommandBufferState) {
		t.Errorf("submit after failure: err = %v, want ErrCommandBufferState", err)
	}
	if err := f.g.CommandEncoderDrop(enc); err != nil {
		t.Errorf("CommandEncoderDrop: %v", err)
	}
}

func TestCaptureCollectsCommands(t *testing.T) {
	f := newFixture(t)
	dir := t.TempDir()
	w, err := trace.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.g.DeviceSetTrace(f.device, w); err != nil {
		t.Fatal(err)
	}
	src := f.buffer("src", 16, gpucore.BufferUsageCopySrc)
	dst := f.buffer("dst", 16, gpucore.BufferUsageCopyDst|gpucore.BufferUsageMapRead)
	ts := f.querySet("ts", gpucore.QueryTypeTimestamp, 2)

	enc := f.encoder("captured")
	copyCmd := trace.CopyBufferToBuffer{Src: src, Dst: dst, Size: 16}
	if err := Record(f.g, enc, []trace.Command{copyCmd}); err != nil {
		t.Fatal(err)
	}
	if err := WriteTimestamp(f.g, enc, ts, 0, gpucore.PipelineStageBottomOfPipe); err != nil {
		t.Fatal(err)
	}
	cb, err := Finish(f.g, enc)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.g.QueueSubmit(f.device, []id.CommandBufferID{cb}); err != nil {
		t.Fatal(err)
	}
	w.Close()

	actions, err := trace.Load(dir)
	if err != nil {
		t.Fatal(err)
	}
	submit, ok := actions[len(actions)-1].(trace.Submit)
	if !ok {
		t.Fatalf("last action = %T, want Submit", actions[len(actions)-1])
	}
	if submit.Index != 1 || len(submit.Commands) != 2 {
		t.Fatalf("submit = %+v", submit)
	}
	if got := submit.Commands[0]; got != trace.Command(copyCmd) {
		t.Errorf("command 0 = %+v, want %+v", got, copyCmd)
	}
	if got, ok := submit.Commands[1].(trace.WriteTimestamp); !ok || got.QuerySet != ts {
		t.Errorf("command 1 = %+v", submit.Commands[1])
	}
}

// =============================================================================
// Transfers
// =============================================================================

func TestCopyBufferToBuffer(t *testing.T) {
	f := newFixture(t)
	src := f.buffer("src", 16, gpucore.BufferUsageCopySrc|gpucore.BufferUsageCopyDst)
	dst := f.buffer("dst", 16, gpucore.BufferUsageCopyDst)
	if err := f.g.QueueWriteBuffer(f.device, src, 0, []byte("0123456789abcdef")); err != nil {
		t.Fatal(err)
	}

	f.run(trace.CopyBufferToBuffer{Src: src, SrcOffset: 4, Dst: dst, DstOffset: 8, Size: 8})

	want := append(make([]byte, 8), "456789ab"...)
	if got := f.contents(dst); !bytes.Equal(got, want) {
		t.Errorf("dst = %q, want %q", got, want)
	}
}

func TestCopyBufferToBufferValidation(t *testing.T) {
	f := newFixture(t)
	src := f.buffer("src", 64, gpucore.BufferUsageCopySrc)
	dst := f.buffer("dst", 64, gpucore.BufferUsageCopyDst)
	both := f.buffer("both", 64, gpucore.BufferUsageCopySrc|gpucore.BufferUsageCopyDst)

	tests := []struct {
		name string
		cmd  trace.CopyBufferToBuffer
		want error
	}{
		{"unaligned source offset", trace.CopyBufferToBuffer{Src: src, SrcOffset: 2, Dst: dst, Size: 4}, ErrPrecondition},
		{"unaligned destination offset", trace.CopyBufferToBuffer{Src: src, Dst: dst, DstOffset: 6, Size: 4}, ErrPrecondition},
		{"unaligned size", trace.CopyBufferToBuffer{Src: src, Dst: dst, Size: 3}, ErrPrecondition},
		{"source overrun", trace.CopyBufferToBuffer{Src: src, SrcOffset: 60, Dst: dst, Size: 8}, ErrPrecondition},
		{"destination overrun", trace.CopyBufferToBuffer{Src: src, Dst: dst, DstOffset: 64, Size: 4}, ErrPrecondition},
		{"source without COPY_SRC", trace.CopyBufferToBuffer{Src: dst, Dst: both, Size: 4}, ErrPrecondition},
		{"destination without COPY_DST", trace.CopyBufferToBuffer{Src: both, Dst: src, Size: 4}, ErrPrecondition},
		{"same buffer", trace.CopyBufferToBuffer{Src: both, Dst: both, DstOffset: 32, Size: 4}, ErrPrecondition},
		{"unknown buffer", trace.CopyBufferToBuffer{Src: src, Dst: id.New[id.Buffer](40, 1, f.device.Backend()), Size: 4}, hub.ErrInvalidHandle},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := len(f.raw.Calls())
			_, err := Encode(f.g, f.encoder(tt.name), []trace.Command{tt.cmd})
			if !errors.Is(err, tt.want) {
				t.Fatalf("err = %v, want %v", err, tt.want)
			}
			for _, c := range f.callsSince(before) {
				if strings.HasPrefix(c, "CopyBufferToBuffer") {
					t.Errorf("rejected copy reached the backend: %s", c)
				}
			}
		})
	}
}

func TestTextureCopyRoundTrip(t *testing.T) {
	f := newFixture(t)
	const w, h = 4, 2
	pixels := make([]byte, w*h*4)
	for i := range pixels {
		pixels[i] = byte(i)
	}
	upload := f.buffer("upload", uint64(len(pixels)), gpucore.BufferUsageCopySrc|gpucore.BufferUsageCopyDst)
	readback := f.buffer("readback", 256*h, gpucore.BufferUsageCopyDst|gpucore.BufferUsageMapRead)
	a := f.texture("a", w, h, gpucore.TextureUsageCopyDst|gpucore.TextureUsageCopySrc)
	b := f.texture("b", w, h, gpucore.TextureUsageCopyDst|gpucore.TextureUsageCopySrc)
	if err := f.g.QueueWriteBuffer(f.device, upload, 0, pixels); err != nil {
		t.Fatal(err)
	}

	size := gpucore.Extent3D{Width: w, Height: h, DepthOrArrayLayers: 1}
	f.run(
		trace.CopyBufferToTexture{
			Src:  trace.BufferCopyView{Buffer: upload},
			Dst:  trace.TextureCopyView{Texture: a},
			Size: size,
		},
		trace.CopyTextureToTexture{
			Src:  trace.TextureCopyView{Texture: a},
			Dst:  trace.TextureCopyView{Texture: b},
			Size: size,
		},
		trace.CopyTextureToBuffer{
			Src:  trace.TextureCopyView{Texture: b},
			Dst:  trace.BufferCopyView{Buffer: readback, Layout: gpucore.TextureDataLayout{BytesPerRow: 256}},
			Size: size,
		},
	)

	got := f.contents(readback)
	for row := range h {
		line := got[row*256 : row*256+w*4]
		if want := pixels[row*w*4 : (row+1)*w*4]; !bytes.Equal(line, want) {
			t.Errorf("row %d = % x, want % x", row, line, want)
		}
	}
}

func TestTextureCopyValidation(t *testing.T) {
	f := newFixture(t)
	buf := f.buffer("buf", 64, gpucore.BufferUsageCopySrc|gpucore.BufferUsageCopyDst)
	tex := f.texture("tex", 4, 4, gpucore.TextureUsageCopyDst)
	full := gpucore.Extent3D{Width: 4, Height: 4, DepthOrArrayLayers: 1}

	tests := []struct {
		name string
		cmd  trace.Command
	}{
		{"region past edge", trace.CopyBufferToTexture{
			Src:  trace.BufferCopyView{Buffer: buf},
			Dst:  trace.TextureCopyView{Texture: tex, Origin: gpucore.Origin3D{X: 1}},
			Size: full,
		}},
		{"mip level out of range", trace.CopyBufferToTexture{
			Src:  trace.BufferCopyView{Buffer: buf},
			Dst:  trace.TextureCopyView{Texture: tex, MipLevel: 1},
			Size: gpucore.Extent3D{Width: 1, Height: 1, DepthOrArrayLayers: 1},
		}},
		{"buffer too small", trace.CopyBufferToTexture{
			Src:  trace.BufferCopyView{Buffer: buf, Layout: gpucore.TextureDataLayout{Offset: 4}},
			Dst:  trace.TextureCopyView{Texture: tex},
			Size: full,
		}},
		{"row pitch below row size", trace.CopyBufferToTexture{
			Src:  trace.BufferCopyView{Buffer: buf, Layout: gpucore.TextureDataLayout{BytesPerRow: 8}},
			Dst:  trace.TextureCopyView{Texture: tex},
			Size: gpucore.Extent3D{Width: 4, Height: 1, DepthOrArrayLayers: 1},
		}},
		{"source texture without COPY_SRC", trace.CopyTextureToBuffer{
			Src:  trace.TextureCopyView{Texture: tex},
			Dst:  trace.BufferCopyView{Buffer: buf},
			Size: full,
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(f.g, f.encoder(tt.name), []trace.Command{tt.cmd}); !errors.Is(err, ErrPrecondition) {
				t.Fatalf("err = %v, want ErrPrecondition", err)
			}
		})
	}
}

// =============================================================================
// Passes
// =============================================================================

func (f *fixture) computePipeline() id.ComputePipelineID {
	f.t.Helper()
	module := f.h.ShaderModules.Alloc()
	if err := f.g.DeviceCreateShaderModule(f.device, "cs", []uint32{0x07230203}, module); err != nil {
		f.t.Fatal(err)
	}
	layout := f.h.PipelineLayouts.Alloc()
	if err := f.g.DeviceCreatePipelineLayout(f.device, "pl", nil, nil, layout); err != nil {
		f.t.Fatal(err)
	}
	pipe := f.h.ComputePipelines.Alloc()
	desc := &trace.ComputePipelineDescriptor{
		Label:        "cp",
		Layout:       layout,
		ComputeStage: trace.ProgrammableStage{Module: module, EntryPoint: "main"},
	}
	if err := f.g.DeviceCreateComputePipeline(f.device, desc, pipe); err != nil {
		f.t.Fatal(err)
	}
	return pipe
}

func (f *fixture) renderPipeline() id.RenderPipelineID {
	f.t.Helper()
	module := f.h.ShaderModules.Alloc()
	if err := f.g.DeviceCreateShaderModule(f.device, "vs", []uint32{0x07230203}, module); err != nil {
		f.t.Fatal(err)
	}
	layout := f.h.PipelineLayouts.Alloc()
	if err := f.g.DeviceCreatePipelineLayout(f.device, "pl", nil, nil, layout); err != nil {
		f.t.Fatal(err)
	}
	pipe := f.h.RenderPipelines.Alloc()
	desc := &trace.RenderPipelineDescriptor{
		Label:       "rp",
		Layout:      layout,
		VertexStage: trace.ProgrammableStage{Module: module, EntryPoint: "vs_main"},
		ColorStates: []gpucore.ColorTargetState{{Format: gpucore.TextureFormatRGBA8Unorm}},
	}
	if err := f.g.DeviceCreateRenderPipeline(f.device, desc, pipe); err != nil {
		f.t.Fatal(err)
	}
	return pipe
}

func TestComputePass(t *testing.T) {
	f := newFixture(t)
	pipe := f.computePipeline()
	before := len(f.raw.Calls())

	f.run(trace.RunComputePass{Base: trace.BasePass{Label: "cp", Commands: trace.PassCommandList{
		trace.PushDebugGroup{Label: "work"},
		trace.SetComputePipeline{Pipeline: pipe},
		trace.Dispatch{X: 4, Y: 2, Z: 1},
		trace.PopDebugGroup{},
	}}})

	want := []string{
		`CreateCommandEncoder "run"`,
		`BeginComputePass "cp"`,
		`PushDebugGroup "work"`,
		`SetComputePipeline "cp"`,
		"Dispatch 4 2 1",
		"PopDebugGroup",
		"EndComputePass",
		`Finish "run"`,
		"Submit count=1",
	}
	if got := f.callsSince(before); !slices.Equal(got, want) {
		t.Errorf("calls:\n got %q\nwant %q", got, want)
	}
}

func TestComputePassValidation(t *testing.T) {
	f := newFixture(t)
	pipe := f.computePipeline()

	tests := []struct {
		name     string
		commands trace.PassCommandList
	}{
		{"dispatch without pipeline", trace.PassCommandList{trace.Dispatch{X: 1, Y: 1, Z: 1}}},
		{"draw in compute pass", trace.PassCommandList{trace.SetComputePipeline{Pipeline: pipe}, trace.Draw{VertexCount: 3, InstanceCount: 1}}},
		{"unbalanced push", trace.PassCommandList{trace.PushDebugGroup{Label: "open"}}},
		{"pop without push", trace.PassCommandList{trace.PopDebugGroup{}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cmd := trace.RunComputePass{Base: trace.BasePass{Label: tt.name, Commands: tt.commands}}
			if _, err := Encode(f.g, f.encoder(tt.name), []trace.Command{cmd}); !errors.Is(err, ErrPrecondition) {
				t.Fatalf("err = %v, want ErrPrecondition", err)
			}
		})
	}
}

func TestRenderPassWithBundle(t *testing.T) {
	f := newFixture(t)
	pipe := f.renderPipeline()
	target := f.view(f.texture("target", 8, 8, gpucore.TextureUsageRenderAttachment))
	vertices := f.buffer("vertices", 64, gpucore.BufferUsageVertex)
	indices := f.buffer("indices", 64, gpucore.BufferUsageIndex)

	bundle := f.h.RenderBundles.Alloc()
	err := f.g.DeviceCreateRenderBundle(f.device,
		&trace.RenderBundleDescriptor{Label: "bundle", ColorFormats: []gpucore.TextureFormat{gpucore.TextureFormatRGBA8Unorm}},
		trace.BasePass{Label: "bundle", Commands: trace.PassCommandList{
			trace.SetRenderPipeline{Pipeline: pipe},
			trace.SetIndexBuffer{Buffer: indices, Format: gpucore.IndexFormatUint16},
			trace.DrawIndexed{IndexCount: 6, InstanceCount: 1},
		}},
		bundle)
	if err != nil {
		t.Fatalf("DeviceCreateRenderBundle: %v", err)
	}

	before := len(f.raw.Calls())
	f.run(trace.RunRenderPass{
		Base: trace.BasePass{Label: "main", Commands: trace.PassCommandList{
			trace.SetRenderPipeline{Pipeline: pipe},
			trace.SetVertexBuffer{Slot: 0, Buffer: vertices},
			trace.SetViewport{Width: 8, Height: 8, MaxDepth: 1},
			trace.Draw{VertexCount: 3, InstanceCount: 1},
			trace.ExecuteBundles{Bundles: []id.RenderBundleID{bundle}},
		}},
		TargetColors: []trace.ColorAttachment{{Attachment: target, LoadOp: gpucore.LoadOpClear, StoreOp: gpucore.StoreOpStore}},
	})

	want := []string{
		`CreateCommandEncoder "run"`,
		`BeginRenderPass "main" colors=1 depth=false`,
		`SetRenderPipeline "rp"`,
		`SetVertexBuffer 0 "vertices"+0`,
		"SetViewport 0 0 8 8 0 1",
		"Draw 3 1 0 0",
		`SetRenderPipeline "rp"`,
		`SetIndexBuffer "indices"+0 format=0`,
		"DrawIndexed 6 1 0 0 0",
		"EndRenderPass",
		`Finish "run"`,
		"Submit count=1",
	}
	if got := f.callsSince(before); !slices.Equal(got, want) {
		t.Errorf("calls:\n got %q\nwant %q", got, want)
	}
}

func TestRenderPassValidation(t *testing.T) {
	f := newFixture(t)
	pipe := f.renderPipeline()
	target := f.view(f.texture("target", 8, 8, gpucore.TextureUsageRenderAttachment))
	sampled := f.view(f.texture("sampled", 8, 8, gpucore.TextureUsageTextureBinding))
	uniforms := f.buffer("uniforms", 64, gpucore.BufferUsageUniform)

	colors := []trace.ColorAttachment{{Attachment: target}}
	tests := []struct {
		name string
		cmd  trace.RunRenderPass
	}{
		{"no attachments", trace.RunRenderPass{}},
		{"attachment without RENDER_ATTACHMENT", trace.RunRenderPass{TargetColors: []trace.ColorAttachment{{Attachment: sampled}}}},
		{"draw without pipeline", trace.RunRenderPass{TargetColors: colors, Base: trace.BasePass{Commands: trace.PassCommandList{
			trace.Draw{VertexCount: 3, InstanceCount: 1},
		}}}},
		{"indexed draw without index buffer", trace.RunRenderPass{TargetColors: colors, Base: trace.BasePass{Commands: trace.PassCommandList{
			trace.SetRenderPipeline{Pipeline: pipe},
			trace.DrawIndexed{IndexCount: 3, InstanceCount: 1},
		}}}},
		{"vertex buffer without VERTEX", trace.RunRenderPass{TargetColors: colors, Base: trace.BasePass{Commands: trace.PassCommandList{
			trace.SetVertexBuffer{Buffer: uniforms},
		}}}},
		{"dispatch in render pass", trace.RunRenderPass{TargetColors: colors, Base: trace.BasePass{Commands: trace.PassCommandList{
			trace.Dispatch{X: 1, Y: 1, Z: 1},
		}}}},
		{"inverted depth range", trace.RunRenderPass{TargetColors: colors, Base: trace.BasePass{Commands: trace.PassCommandList{
			trace.SetViewport{Width: 1, Height: 1, MinDepth: 1, MaxDepth: 0},
		}}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Encode(f.g, f.encoder(tt.name), []trace.Command{tt.cmd}); !errors.Is(err, ErrPrecondition) {
				t.Fatalf("err = %v, want ErrPrecondition", err)
			}
		})
	}
}

// =============================================================================
// Queries
// =============================================================================

func TestResolveWithoutCopyDstIssuesNothing(t *testing.T) {
	f := newFixture(t)
	ts := f.querySet("ts", gpucore.QueryTypeTimestamp, 4)
	dst := f.buffer("dst", 64, gpucore.BufferUsageMapRead)
	enc := f.encoder("resolve")
	before := len(f.raw.Calls())

	err := ResolveQuerySet(f.g, enc, ts, 0, 2, dst, 0)
	if !errors.Is(err, ErrPrecondition) {
		t.Fatalf("err = %v, want ErrPrecondition", err)
	}
	for _, c := range f.callsSince(before) {
		if strings.HasPrefix(c, "PipelineBarrier") || strings.HasPrefix(c, "CopyQueryResults") {
			t.Errorf("unexpected backend call %q", c)
		}
	}
	if s := f.status(enc); s != core.CommandEncoderStatusError {
		t.Errorf("status = %v, want Error", s)
	}
}

func TestResolveBarrierOnlyOnUseChange(t *testing.T) {
	f := newFixture(t)
	ts := f.querySet("ts", gpucore.QueryTypeTimestamp, 4)
	dst := f.buffer("dst", 64, gpucore.BufferUsageCopyDst)
	enc := f.encoder("resolve")
	before := len(f.raw.Calls())

	for range 2 {
		if err := ResolveQuerySet(f.g, enc, ts, 0, 4, dst, 0); err != nil {
			t.Fatal(err)
		}
	}
	want := []string{
		"PipelineBarrier 0xb1e -> 0x200 buffers=1",
		`CopyQueryResults "ts" 0+4 -> "dst"+0 stride=16 flags=0x7`,
		"PipelineBarrier 0xb1e -> 0x200 buffers=0",
		`CopyQueryResults "ts" 0+4 -> "dst"+0 stride=16 flags=0x7`,
	}
	if got := f.callsSince(before); !slices.Equal(got, want) {
		t.Errorf("calls:\n got %q\nwant %q", got, want)
	}
}

// barriers returns the PipelineBarrier calls in calls.
func barriers(calls []string) []string {
	var out []string
	for _, c := range calls {
		if strings.HasPrefix(c, "PipelineBarrier") {
			out = append(out, c)
		}
	}
	return out
}

func (f *fixture) use(b id.BufferID) gpucore.BufferUse {
	f.t.Helper()
	buf, err := f.h.Buffers.Get(hub.Root(), b)
	if err != nil {
		f.t.Fatal(err)
	}
	return buf.Use()
}

func TestBufferUsesArePerCommandBuffer(t *testing.T) {
	f := newFixture(t)
	ts := f.querySet("ts", gpucore.QueryTypeTimestamp, 1)
	q := f.buffer("q", 16, gpucore.BufferUsageCopySrc|gpucore.BufferUsageCopyDst)
	staging := f.buffer("staging", 16, gpucore.BufferUsageCopyDst)
	first, second := f.encoder("first"), f.encoder("second")

	if err := Record(f.g, first, []trace.Command{trace.CopyBufferToBuffer{Src: q, Dst: staging, Size: 16}}); err != nil {
		t.Fatal(err)
	}
	before := len(f.raw.Calls())
	if err := ResolveQuerySet(f.g, second, ts, 0, 1, q, 0); err != nil {
		t.Fatal(err)
	}
	if err := ResolveQuerySet(f.g, first, ts, 0, 1, q, 0); err != nil {
		t.Fatal(err)
	}
	want := []string{
		"PipelineBarrier 0xb1e -> 0x200 buffers=1",
		"PipelineBarrier 0xb1e -> 0x200 buffers=1",
	}
	if got := barriers(f.callsSince(before)); !slices.Equal(got, want) {
		t.Errorf("barriers:\n got %q\nwant %q", got, want)
	}
	if u := f.use(q); u != gpucore.BufferUseNone {
		t.Errorf("device-wide use before submit = %#x, want none", u)
	}

	for _, enc := range []id.CommandEncoderID{first, second} {
		if _, err := Finish(f.g, enc); err != nil {
			t.Fatal(err)
		}
	}
	if err := f.g.QueueSubmit(f.device, []id.CommandBufferID{second, first}); err != nil {
		t.Fatal(err)
	}
	if u := f.use(q); u != gpucore.BufferUseCopyDst {
		t.Errorf("device-wide use after submit = %#x, want COPY_DST", u)
	}
	if u := f.use(staging); u != gpucore.BufferUseCopyDst {
		t.Errorf("staging use after submit = %#x, want COPY_DST", u)
	}
}

func TestBindGroupBuffersAreTracked(t *testing.T) {
	f := newFixture(t)
	ts := f.querySet("ts", gpucore.QueryTypeTimestamp, 1)
	storage := f.buffer("storage", 16, gpucore.BufferUsageStorage|gpucore.BufferUsageCopyDst)

	layout := f.h.BindGroupLayouts.Alloc()
	entries := []gpucore.BindGroupLayoutEntry{{Binding: 0, Visibility: gpucore.ShaderStageCompute, Type: gpucore.BindingTypeStorageBuffer}}
	if err := f.g.DeviceCreateBindGroupLayout(f.device, "bgl", entries, layout); err != nil {
		t.Fatal(err)
	}
	group := f.h.BindGroups.Alloc()
	err := f.g.DeviceCreateBindGroup(f.device, "bg", layout, []trace.BindGroupEntry{
		{Binding: 0, Resource: trace.BindingResource{Buffer: &trace.BufferBinding{Buffer: storage, Size: 16}}},
	}, group)
	if err != nil {
		t.Fatal(err)
	}

	f.run(trace.ResolveQuerySet{QuerySet: ts, QueryCount: 1, Destination: storage})
	if u := f.use(storage); u != gpucore.BufferUseCopyDst {
		t.Fatalf("use after first resolve = %#x, want COPY_DST", u)
	}

	before := len(f.raw.Calls())
	f.run(
		trace.RunComputePass{Base: trace.BasePass{Commands: trace.PassCommandList{
			trace.SetBindGroup{Index: 0, BindGroup: group},
		}}},
		trace.ResolveQuerySet{QuerySet: ts, QueryCount: 1, Destination: storage},
	)
	want := []string{"PipelineBarrier 0xb1e -> 0x200 buffers=1"}
	if got := barriers(f.callsSince(before)); !slices.Equal(got, want) {
		t.Errorf("barriers:\n got %q\nwant %q", got, want)
	}
}

func TestTimestampResolve(t *testing.T) {
	f := newFixture(t)
	ts := f.querySet("ts", gpucore.QueryTypeTimestamp, 3)
	dst := f.buffer("dst", 3*gpucore.QueryResolveStride, gpucore.BufferUsageCopyDst|gpucore.BufferUsageMapRead)

	f.run(
		trace.WriteTimestamp{QuerySet: ts, QueryIndex: 0, Stage: gpucore.PipelineStageTopOfPipe},
		trace.WriteTimestamp{QuerySet: ts, QueryIndex: 1, Stage: gpucore.PipelineStageBottomOfPipe},
		trace.ResolveQuerySet{QuerySet: ts, FirstQuery: 0, QueryCount: 3, Destination: dst},
	)

	data := f.contents(dst)
	word := func(i int) uint64 { return binary.LittleEndian.Uint64(data[i*8:]) }
	if t0, t1 := word(0), word(2); t0 == 0 || t1 <= t0 {
		t.Errorf("timestamps = %d, %d; want increasing and non-zero", t0, t1)
	}
	if a0, a1, a2 := word(1), word(3), word(5); a0 != 1 || a1 != 1 || a2 != 0 {
		t.Errorf("availability = %d %d %d, want 1 1 0", a0, a1, a2)
	}
}

func TestPipelineStatistics(t *testing.T) {
	f := newFixture(t)
	pipe := f.renderPipeline()
	target := f.view(f.texture("target", 8, 8, gpucore.TextureUsageRenderAttachment))
	stats := f.querySet("stats", gpucore.QueryTypePipelineStatistics, 1,
		gpucore.PipelineStatisticVertexShaderInvocations)
	dst := f.buffer("dst", gpucore.QueryResolveStride, gpucore.BufferUsageCopyDst|gpucore.BufferUsageMapRead)

	enc := f.encoder("stats")
	if err := BeginPipelineStatisticsQuery(f.g, enc, stats, 0); err != nil {
		t.Fatal(err)
	}
	err := Record(f.g, enc, []trace.Command{trace.RunRenderPass{
		Base: trace.BasePass{Commands: trace.PassCommandList{
			trace.SetRenderPipeline{Pipeline: pipe},
			trace.Draw{VertexCount: 6, InstanceCount: 2},
		}},
		TargetColors: []trace.ColorAttachment{{Attachment: target}},
	}})
	if err != nil {
		t.Fatal(err)
	}
	if err := EndPipelineStatisticsQuery(f.g, enc, stats, 0); err != nil {
		t.Fatal(err)
	}
	if err := ResolveQuerySet(f.g, enc, stats, 0, 1, dst, 0); err != nil {
		t.Fatal(err)
	}
	cb, err := Finish(f.g, enc)
	if err != nil {
		t.Fatal(err)
	}
	if err := f.g.QueueSubmit(f.device, []id.CommandBufferID{cb}); err != nil {
		t.Fatal(err)
	}

	data := f.contents(dst)
	if v := binary.LittleEndian.Uint64(data); v != 12 {
		t.Errorf("vertex invocations = %d, want 12", v)
	}
	if a := binary.LittleEndian.Uint64(data[8:]); a != 1 {
		t.Errorf("availability = %d, want 1", a)
	}
}

func TestQueryValidation(t *testing.T) {
	f := newFixture(t)
	ts := f.querySet("ts", gpucore.QueryTypeTimestamp, 2)
	stats := f.querySet("stats", gpucore.QueryTypePipelineStatistics, 2,
		gpucore.PipelineStatisticFragmentShaderInvocations)
	dst := f.buffer("dst", 16, gpucore.BufferUsageCopyDst)

	tests := []struct {
		name string
		run  func(enc id.CommandEncoderID) error
	}{
		{"timestamp on statistics set", func(enc id.CommandEncoderID) error {
			return WriteTimestamp(f.g, enc, stats, 0, gpucore.PipelineStageTopOfPipe)
		}},
		{"statistics on timestamp set", func(enc id.CommandEncoderID) error {
			return BeginPipelineStatisticsQuery(f.g, enc, ts, 0)
		}},
		{"index out of range", func(enc id.CommandEncoderID) error {
			return WriteTimestamp(f.g, enc, ts, 2, gpucore.PipelineStageTopOfPipe)
		}},
		{"resolve past set", func(enc id.CommandEncoderID) error {
			return ResolveQuerySet(f.g, enc, ts, 1, 2, dst, 0)
		}},
		{"resolve past buffer", func(enc id.CommandEncoderID) error {
			return ResolveQuerySet(f.g, enc, ts, 0, 2, dst, 0)
		}},
		{"resolve offset wrapping past buffer", func(enc id.CommandEncoderID) error {
			return ResolveQuerySet(f.g, enc, ts, 0, 1, dst, math.MaxUint64-7)
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := tt.run(f.encoder(tt.name)); !errors.Is(err, ErrPrecondition) {
				t.Fatalf("err = %v, want ErrPrecondition", err)
			}
		})
	}
}
