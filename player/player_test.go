package player

import (
	"bytes"
	"context"
	"errors"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"testing"

	"github.com/sebdah/goldie/v2"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/sdk/trace/tracetest"

	"github.com/gogpu/gpuplay/backend/software"
	"github.com/gogpu/gpuplay/command"
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/hub"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/trace"
)

// =============================================================================
// Helpers
// =============================================================================

func testBackend(t *testing.T) id.Backend {
	t.Helper()
	compiled := hub.CompiledBackends()
	if len(compiled) == 0 {
		t.Skip("no backend compiled into this build")
	}
	return compiled[0]
}

func newGlobal(t *testing.T) (*hub.Global, id.Backend) {
	t.Helper()
	b := testBackend(t)
	return hub.NewGlobal(hub.WithFactory(b, software.Factory)), b
}

func writeBlob(t *testing.T, dir, name string, data []byte) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), data, 0o644); err != nil {
		t.Fatal(err)
	}
}

func rawDevice(t *testing.T, g *hub.Global, device id.DeviceID) *software.Device {
	t.Helper()
	dev, err := hub.HubFor(g, device).Devices.Get(hub.Root(), device)
	if err != nil {
		t.Fatalf("device lookup: %v", err)
	}
	return dev.Raw.(*software.Device)
}

func bufferContents(t *testing.T, g *hub.Global, b id.BufferID) []byte {
	t.Helper()
	buf, err := hub.HubFor(g, b).Buffers.Get(hub.Root(), b)
	if err != nil {
		t.Fatalf("buffer lookup: %v", err)
	}
	data, ok := software.BufferContents(buf.Raw)
	if !ok {
		t.Fatalf("%s is not a software buffer", b)
	}
	return slices.Clone(data)
}

// play applies actions one by one and fails the test on the first error.
func play(t *testing.T, p *Player, actions ...trace.Action) {
	t.Helper()
	for _, a := range actions {
		if err := p.Process(context.Background(), a); err != nil {
			t.Fatalf("Process(%s): %v", a.Type(), err)
		}
	}
}

func initAction(b id.Backend) trace.Init {
	return trace.Init{Desc: gpucore.DeviceDescriptor{Label: "replay"}, Backend: b}
}

// =============================================================================
// Protocol
// =============================================================================

func TestFirstActionMustBeInit(t *testing.T) {
	g, b := newGlobal(t)
	p := New(g, t.TempDir())

	create := trace.CreateBuffer{ID: id.New[id.Buffer](0, 1, b), Desc: gpucore.BufferDescriptor{Size: 4}}
	err := p.Process(context.Background(), create)
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("err = %v, want ErrProtocolViolation", err)
	}
	if p.State() != Failed {
		t.Errorf("state = %s, want Failed", p.State())
	}
	if again := p.Process(context.Background(), initAction(b)); again != err {
		t.Errorf("Process after failure = %v, want the first error", again)
	}
}

func TestProtocolViolations(t *testing.T) {
	swap := id.New[id.SwapChain](0, 1, id.Vulkan)
	tests := []struct {
		name   string
		action func(b id.Backend) trace.Action
	}{
		{"second Init", func(b id.Backend) trace.Action { return initAction(b) }},
		{"CreateSwapChain", func(id.Backend) trace.Action { return trace.CreateSwapChain{ID: swap} }},
		{"GetSwapChainTexture", func(id.Backend) trace.Action { return trace.GetSwapChainTexture{Parent: swap} }},
		{"PresentSwapChain", func(id.Backend) trace.Action { return trace.PresentSwapChain{ID: swap} }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, b := newGlobal(t)
			p := New(g, t.TempDir())
			play(t, p, initAction(b))
			if p.State() != Running {
				t.Fatalf("state after Init = %s, want Running", p.State())
			}
			err := p.Process(context.Background(), tt.action(b))
			if !errors.Is(err, ErrProtocolViolation) {
				t.Fatalf("err = %v, want ErrProtocolViolation", err)
			}
			if errors.Is(err, ErrReplayFailed) {
				t.Errorf("protocol violation also wraps ErrReplayFailed: %v", err)
			}
		})
	}
}

func TestInitWithoutFactory(t *testing.T) {
	b := testBackend(t)
	p := New(hub.NewGlobal(), t.TempDir())
	err := p.Process(context.Background(), initAction(b))
	if err == nil {
		_ = p.Close()
		t.Skipf("%s has a registered factory", b)
	}
	if !errors.Is(err, ErrReplayFailed) {
		t.Fatalf("err = %v, want ErrReplayFailed", err)
	}
}

// missingBackend returns a backend tag this build carries no hub for.
func missingBackend(t *testing.T) id.Backend {
	t.Helper()
	for _, b := range []id.Backend{id.Vulkan, id.Metal, id.Dx12, id.Dx11} {
		if !slices.Contains(hub.CompiledBackends(), b) {
			return b
		}
	}
	t.Skip("every backend is compiled into this build")
	return id.Empty
}

func TestInitWithUncompiledBackend(t *testing.T) {
	b := missingBackend(t)
	p := New(hub.NewGlobal(hub.WithFactory(b, software.Factory)), t.TempDir())
	err := p.Process(context.Background(), initAction(b))
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("err = %v, want ErrProtocolViolation", err)
	}
	if p.State() != Failed {
		t.Errorf("state = %s, want Failed", p.State())
	}
	if p.Device() != 0 {
		t.Errorf("device = %s, want none", p.Device())
	}
}

// =============================================================================
// Resources and writes
// =============================================================================

func TestImmediateWriteBuffer(t *testing.T) {
	g, b := newGlobal(t)
	dir := t.TempDir()
	writeBlob(t, dir, "data1.bin", []byte{1, 2, 3, 4, 0xee, 0xee})
	buf := id.New[id.Buffer](0, 1, b)

	p := New(g, dir)
	play(t, p,
		initAction(b),
		trace.CreateBuffer{ID: buf, Desc: gpucore.BufferDescriptor{Label: "b", Size: 4, Usage: gpucore.BufferUsageCopyDst}},
		trace.WriteBuffer{ID: buf, Data: "data1.bin", Range: gpucore.Range{Start: 0, End: 4}},
	)
	if got := bufferContents(t, g, buf); !bytes.Equal(got, []byte{1, 2, 3, 4}) {
		t.Errorf("contents = % x, want 01 02 03 04", got)
	}
	play(t, p, trace.DestroyBuffer{ID: buf})

	if _, err := hub.HubFor(g, buf).Buffers.Get(hub.Root(), buf); !errors.Is(err, hub.ErrInvalidHandle) {
		t.Errorf("buffer still registered after DestroyBuffer: %v", err)
	}
	calls := rawDevice(t, g, p.Device()).Calls()
	if !slices.Contains(calls, `WriteBuffer "b" offset=0 len=4`) {
		t.Errorf("no immediate write in %q", calls)
	}
}

func TestQueuedWriteBuffer(t *testing.T) {
	g, b := newGlobal(t)
	dir := t.TempDir()
	writeBlob(t, dir, "data1.bin", []byte{9, 8, 7, 6})
	buf := id.New[id.Buffer](0, 1, b)

	p := New(g, dir)
	play(t, p,
		initAction(b),
		trace.CreateBuffer{ID: buf, Desc: gpucore.BufferDescriptor{Label: "b", Size: 8, Usage: gpucore.BufferUsageCopyDst}},
		trace.WriteBuffer{ID: buf, Data: "data1.bin", Range: gpucore.Range{Start: 4, End: 8}, Queued: true},
	)
	if got := bufferContents(t, g, buf); !bytes.Equal(got, []byte{0, 0, 0, 0, 9, 8, 7, 6}) {
		t.Errorf("contents = % x", got)
	}
}

func TestMissingBlob(t *testing.T) {
	g, b := newGlobal(t)
	buf := id.New[id.Buffer](0, 1, b)
	p := New(g, t.TempDir())
	play(t, p,
		initAction(b),
		trace.CreateBuffer{ID: buf, Desc: gpucore.BufferDescriptor{Label: "b", Size: 4}},
	)
	err := p.Process(context.Background(), trace.WriteBuffer{ID: buf, Data: "data9.bin", Range: gpucore.Range{End: 4}, Queued: true})
	if !errors.Is(err, ErrIO) || !errors.Is(err, trace.ErrIO) {
		t.Fatalf("err = %v, want ErrIO and trace.ErrIO", err)
	}
	if !errors.Is(err, ErrReplayFailed) || !strings.Contains(err.Error(), "action 2 (WriteBuffer)") {
		t.Errorf("err = %v, want ErrReplayFailed naming action 2", err)
	}
}

func TestShortImmediateBlob(t *testing.T) {
	g, b := newGlobal(t)
	dir := t.TempDir()
	writeBlob(t, dir, "data1.bin", []byte{1, 2})
	buf := id.New[id.Buffer](0, 1, b)
	p := New(g, dir)
	play(t, p,
		initAction(b),
		trace.CreateBuffer{ID: buf, Desc: gpucore.BufferDescriptor{Label: "b", Size: 4}},
	)
	err := p.Process(context.Background(), trace.WriteBuffer{ID: buf, Data: "data1.bin", Range: gpucore.Range{End: 4}})
	if !errors.Is(err, ErrIO) {
		t.Fatalf("err = %v, want ErrIO", err)
	}
}

func TestShaderModuleBlobs(t *testing.T) {
	g, b := newGlobal(t)
	dir := t.TempDir()
	writeBlob(t, dir, "data1.spv", []byte{0x03, 0x02, 0x23, 0x07, 0x00, 0x00, 0x01, 0x00})
	writeBlob(t, dir, "data2.spv", []byte{0x03, 0x02, 0x23})
	writeBlob(t, dir, "data3.wgsl", []byte("@compute @workgroup_size(1)\nfn main() {}\n"))
	writeBlob(t, dir, "data4.glsl", []byte("void main() {}"))

	p := New(g, dir)
	play(t, p,
		initAction(b),
		trace.CreateShaderModule{ID: id.New[id.ShaderModule](0, 1, b), Label: "spv", Data: "data1.spv"},
		trace.CreateShaderModule{ID: id.New[id.ShaderModule](1, 1, b), Label: "wgsl", Data: "data3.wgsl"},
	)
	calls := rawDevice(t, g, p.Device()).Calls()
	if !slices.Contains(calls, `CreateShaderModule "spv" words=2`) {
		t.Errorf("SPIR-V module not created from 2 words: %q", calls)
	}
	if !slices.ContainsFunc(calls, func(c string) bool { return strings.HasPrefix(c, `CreateShaderModule "wgsl"`) }) {
		t.Errorf("WGSL module not created: %q", calls)
	}

	for _, name := range []string{"data2.spv", "data4.glsl"} {
		t.Run(name, func(t *testing.T) {
			g, b := newGlobal(t)
			p := New(g, dir)
			play(t, p, initAction(b))
			err := p.Process(context.Background(), trace.CreateShaderModule{ID: id.New[id.ShaderModule](0, 1, b), Data: name})
			if !errors.Is(err, ErrIO) {
				t.Fatalf("err = %v, want ErrIO", err)
			}
		})
	}
}

// =============================================================================
// Submission
// =============================================================================

func TestSubmitEncodesOneCommandBuffer(t *testing.T) {
	g, b := newGlobal(t)
	dir := t.TempDir()
	writeBlob(t, dir, "data1.bin", []byte("abcdefgh"))
	src := id.New[id.Buffer](0, 1, b)
	dst := id.New[id.Buffer](1, 1, b)

	p := New(g, dir)
	play(t, p,
		initAction(b),
		trace.CreateBuffer{ID: src, Desc: gpucore.BufferDescriptor{Label: "src", Size: 8, Usage: gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst}},
		trace.CreateBuffer{ID: dst, Desc: gpucore.BufferDescriptor{Label: "dst", Size: 8, Usage: gpucore.BufferUsageCopyDst}},
		trace.WriteBuffer{ID: src, Data: "data1.bin", Range: gpucore.Range{End: 8}, Queued: true},
		trace.Submit{Index: 1, Commands: trace.CommandList{
			trace.CopyBufferToBuffer{Src: src, Dst: dst, Size: 4},
			trace.CopyBufferToBuffer{Src: src, SrcOffset: 4, Dst: dst, DstOffset: 4, Size: 4},
			trace.RunComputePass{Base: trace.BasePass{Label: "empty"}},
		}},
	)

	raw := rawDevice(t, g, p.Device())
	if n := raw.Submissions(); n != 1 {
		t.Errorf("submissions = %d, want 1", n)
	}
	var submits int
	for _, c := range raw.Calls() {
		if strings.HasPrefix(c, "Submit ") {
			submits++
			if c != "Submit count=1" {
				t.Errorf("submit call = %q, want one command buffer", c)
			}
		}
	}
	if submits != 1 {
		t.Errorf("%d submit calls, want 1", submits)
	}
	if got := bufferContents(t, g, dst); string(got) != "abcdefgh" {
		t.Errorf("dst = %q, want abcdefgh", got)
	}

	// Encoder ids are recycled once their command buffer is consumed.
	play(t, p, trace.Submit{Index: 2})
	if n := raw.Submissions(); n != 2 {
		t.Errorf("submissions = %d, want 2", n)
	}
}

func TestSubmitIndexMustIncrease(t *testing.T) {
	g, b := newGlobal(t)
	p := New(g, t.TempDir())
	play(t, p, initAction(b), trace.Submit{Index: 3}, trace.Submit{Index: 5})

	err := p.Process(context.Background(), trace.Submit{Index: 5})
	if !errors.Is(err, ErrProtocolViolation) {
		t.Fatalf("err = %v, want ErrProtocolViolation", err)
	}
}

func TestFailingCommandStopsReplay(t *testing.T) {
	g, b := newGlobal(t)
	buf := id.New[id.Buffer](0, 1, b)
	p := New(g, t.TempDir())
	play(t, p,
		initAction(b),
		trace.CreateBuffer{ID: buf, Desc: gpucore.BufferDescriptor{Label: "b", Size: 16, Usage: gpucore.BufferUsageCopyDst}},
	)
	err := p.Process(context.Background(), trace.Submit{Index: 1, Commands: trace.CommandList{
		trace.ResolveQuerySet{QuerySet: id.New[id.QuerySet](0, 1, b), QueryCount: 1, Destination: buf},
	}})
	if !errors.Is(err, ErrReplayFailed) || !errors.Is(err, hub.ErrInvalidHandle) {
		t.Fatalf("err = %v, want ErrReplayFailed wrapping ErrInvalidHandle", err)
	}
	if !strings.Contains(err.Error(), "action 2 (Submit)") {
		t.Errorf("err = %v, want it to name action 2", err)
	}
	if n := rawDevice(t, g, p.Device()).Submissions(); n != 0 {
		t.Errorf("submissions = %d, want 0", n)
	}
	if p.State() != Failed {
		t.Errorf("state = %s, want Failed", p.State())
	}
}

func TestWriteThroughStaleBufferID(t *testing.T) {
	g, b := newGlobal(t)
	dir := t.TempDir()
	writeBlob(t, dir, "data1.bin", []byte{1, 2, 3, 4})
	old, reused := id.New[id.Buffer](0, 1, b), id.New[id.Buffer](0, 2, b)
	desc := gpucore.BufferDescriptor{Label: "b", Size: 4, Usage: gpucore.BufferUsageCopyDst}

	p := New(g, dir)
	play(t, p,
		initAction(b),
		trace.CreateBuffer{ID: old, Desc: desc},
		trace.DestroyBuffer{ID: old},
		trace.CreateBuffer{ID: reused, Desc: desc},
	)
	err := p.Process(context.Background(), trace.WriteBuffer{ID: old, Data: "data1.bin", Range: gpucore.Range{End: 4}})
	if !errors.Is(err, ErrReplayFailed) || !errors.Is(err, hub.ErrInvalidHandle) {
		t.Fatalf("err = %v, want ErrReplayFailed wrapping ErrInvalidHandle", err)
	}
	if !strings.Contains(err.Error(), "action 4 (WriteBuffer)") {
		t.Errorf("err = %v, want it to name action 4", err)
	}
	if got := bufferContents(t, g, reused); !bytes.Equal(got, make([]byte, 4)) {
		t.Errorf("reused buffer contents = % x, want zeros", got)
	}
}

// =============================================================================
// Capture and replay
// =============================================================================

// capture records a small session on a fresh device and returns the trace
// directory and the device's call log.
func capture(t *testing.T) (string, []string, []byte) {
	t.Helper()
	g, b := newGlobal(t)
	h := g.Hub(b)
	device := h.Devices.Alloc()
	if err := g.CreateDevice(b, &gpucore.DeviceDescriptor{Label: "captured"}, device); err != nil {
		t.Fatal(err)
	}
	dir := t.TempDir()
	w, err := trace.New(dir)
	if err != nil {
		t.Fatal(err)
	}
	if err := g.DeviceSetTrace(device, w); err != nil {
		t.Fatal(err)
	}

	src, dst := h.Buffers.Alloc(), h.Buffers.Alloc()
	usage := gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst
	for _, buf := range []id.BufferID{src, dst} {
		if err := g.DeviceCreateBuffer(device, &gpucore.BufferDescriptor{Label: buf.String(), Size: 16, Usage: usage}, buf); err != nil {
			t.Fatal(err)
		}
	}
	if err := g.QueueWriteBuffer(device, src, 0, []byte("0123456789abcdef")); err != nil {
		t.Fatal(err)
	}
	if err := g.DeviceSetBufferSubData(device, dst, 12, []byte("wxyz")); err != nil {
		t.Fatal(err)
	}
	ts := h.QuerySets.Alloc()
	if err := g.DeviceCreateQuerySet(device, &gpucore.QuerySetDescriptor{Label: "ts", Type: gpucore.QueryTypeTimestamp, Count: 1}, ts); err != nil {
		t.Fatal(err)
	}

	enc := h.CommandBuffers.Alloc()
	if err := g.DeviceCreateCommandEncoder(device, "", enc); err != nil {
		t.Fatal(err)
	}
	if err := command.WriteTimestamp(g, enc, ts, 0, gpucore.PipelineStageTopOfPipe); err != nil {
		t.Fatal(err)
	}
	cb, err := command.Encode(g, enc, []trace.Command{
		trace.CopyBufferToBuffer{Src: src, SrcOffset: 4, Dst: dst, Size: 8},
	})
	if err != nil {
		t.Fatal(err)
	}
	if err := g.QueueSubmit(device, []id.CommandBufferID{cb}); err != nil {
		t.Fatal(err)
	}
	if err := g.BufferDestroy(src); err != nil {
		t.Fatal(err)
	}
	contents := bufferContents(t, g, dst)
	calls := rawDevice(t, g, device).Calls()
	if err := w.Close(); err != nil {
		t.Fatal(err)
	}
	return dir, calls, contents
}

func TestCaptureReplayRoundTrip(t *testing.T) {
	dir, want, wantContents := capture(t)

	actions, err := trace.Load(dir)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if actions[0].Type() != trace.ActInit {
		t.Fatalf("first action = %s, want Init", actions[0].Type())
	}

	g, b := newGlobal(t)
	if b != actions[0].(trace.Init).Backend {
		t.Skip("trace captured on another backend")
	}
	p := New(g, dir)
	if err := p.Play(context.Background(), actions); err != nil {
		t.Fatalf("Play: %v", err)
	}

	if got := rawDevice(t, g, p.Device()).Calls(); !slices.Equal(got, want) {
		t.Errorf("replayed calls differ:\n got %q\nwant %q", got, want)
	}
	dst := id.New[id.Buffer](1, 1, b)
	if got := bufferContents(t, g, dst); !bytes.Equal(got, wantContents) {
		t.Errorf("dst = %q, want %q", got, wantContents)
	}
}

func TestReplayCallLog(t *testing.T) {
	g, b := newGlobal(t)
	dir := t.TempDir()
	writeBlob(t, dir, "data1.bin", []byte("payload!"))
	src := id.New[id.Buffer](0, 1, b)
	dst := id.New[id.Buffer](1, 1, b)

	p := New(g, dir)
	play(t, p,
		initAction(b),
		trace.CreateBuffer{ID: src, Desc: gpucore.BufferDescriptor{Label: "src", Size: 8, Usage: gpucore.BufferUsageCopySrc | gpucore.BufferUsageCopyDst}},
		trace.CreateBuffer{ID: dst, Desc: gpucore.BufferDescriptor{Label: "dst", Size: 8, Usage: gpucore.BufferUsageCopyDst | gpucore.BufferUsageMapRead}},
		trace.WriteBuffer{ID: src, Data: "data1.bin", Range: gpucore.Range{End: 8}, Queued: true},
		trace.Submit{Index: 1, Commands: trace.CommandList{trace.CopyBufferToBuffer{Src: src, Dst: dst, Size: 8}}},
		trace.DestroyBuffer{ID: src},
	)
	raw := rawDevice(t, g, p.Device())
	if err := p.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	if err := p.Process(context.Background(), trace.Submit{Index: 2}); !errors.Is(err, ErrProtocolViolation) {
		t.Errorf("Process after Close: err = %v, want ErrProtocolViolation", err)
	}

	got := strings.Join(raw.Calls(), "\n") + "\n"
	gd := goldie.New(t,
		goldie.WithFixtureDir("testdata/golden"),
		goldie.WithNameSuffix(".golden"),
	)
	gd.Assert(t, "replay_calls", []byte(got))
}

// =============================================================================
// Telemetry
// =============================================================================

func TestActionSpans(t *testing.T) {
	g, b := newGlobal(t)
	rec := tracetest.NewSpanRecorder()
	tp := sdktrace.NewTracerProvider(sdktrace.WithSpanProcessor(rec))
	t.Cleanup(func() { _ = tp.Shutdown(context.Background()) })

	buf := id.New[id.Buffer](0, 1, b)
	p := New(g, t.TempDir(), WithTracer(tp.Tracer(TracerName)))
	err := p.Play(context.Background(), []trace.Action{
		initAction(b),
		trace.CreateBuffer{ID: buf, Desc: gpucore.BufferDescriptor{Label: "b", Size: 4}},
		trace.DestroyBuffer{ID: id.New[id.Buffer](5, 1, b)},
		trace.DestroyBuffer{ID: buf},
	})
	if !errors.Is(err, ErrReplayFailed) {
		t.Fatalf("Play: err = %v, want ErrReplayFailed", err)
	}

	spans := rec.Ended()
	var names []string
	for _, s := range spans {
		names = append(names, s.Name())
	}
	want := []string{"Init", "CreateBuffer", "DestroyBuffer", "Play"}
	if !slices.Equal(names, want) {
		t.Fatalf("spans = %q, want %q", names, want)
	}

	root := spans[3]
	for _, s := range spans[:3] {
		if s.Parent().SpanID() != root.SpanContext().SpanID() {
			t.Errorf("span %s is not a child of Play", s.Name())
		}
	}
	failed := spans[2]
	if failed.Status().Code != codes.Error || root.Status().Code != codes.Error {
		t.Errorf("status = %v / %v, want Error on the failing action and Play", failed.Status().Code, root.Status().Code)
	}
	if !slices.Contains(failed.Attributes(), attribute.Int("gpuplay.action.index", 2)) {
		t.Errorf("failing span attributes = %v", failed.Attributes())
	}
	if spans[0].Status().Code == codes.Error {
		t.Error("Init span marked as failed")
	}
}
