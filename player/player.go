package player

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"path/filepath"

	"github.com/gogpu/naga"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	oteltrace "go.opentelemetry.io/otel/trace"

	"github.com/gogpu/gpuplay/command"
	"github.com/gogpu/gpuplay/hub"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/internal/logging"
	"github.com/gogpu/gpuplay/trace"
)

// TracerName is the instrumentation scope of replay spans.
const TracerName = "github.com/gogpu/gpuplay/player"

var (
	// ErrProtocolViolation is returned when the action stream breaks the
	// trace protocol: a first action other than Init, a second Init,
	// swap-chain actions or a submission index that does not increase.
	ErrProtocolViolation = errors.New("player: protocol violation")

	// ErrIO is returned when a data file named by an action cannot be read.
	ErrIO = errors.New("player: i/o error")

	// ErrReplayFailed wraps the error of an action that failed to apply.
	ErrReplayFailed = errors.New("player: replay failed")
)

// State is the replay state of a Player.
type State uint8

const (
	// AwaitingInit is the state before the Init action.
	AwaitingInit State = iota
	// Running is the state after a successful Init.
	Running
	// Failed is the state after any fatal error. No further action is
	// applied.
	Failed
	// Closed is the state after Close.
	Closed
)

func (s State) String() string {
	switch s {
	case AwaitingInit:
		return "AwaitingInit"
	case Running:
		return "Running"
	case Failed:
		return "Failed"
	case Closed:
		return "Closed"
	default:
		return fmt.Sprintf("State(%d)", uint8(s))
	}
}

// Option configures a Player.
type Option func(*Player)

// WithTracer sets the tracer replay spans are started on. The default is
// the global provider's tracer named [TracerName].
func WithTracer(t oteltrace.Tracer) Option {
	return func(p *Player) {
		if t != nil {
			p.tracer = t
		}
	}
}

// Player replays an action stream against a Global.
//
// A Player is not safe for concurrent use.
type Player struct {
	g      *hub.Global
	dir    string
	tracer oteltrace.Tracer

	state  State
	err    error
	device id.DeviceID
	// next is the index of the next action.
	next int

	// encoders hands out command encoder ids. Recorded submissions carry
	// no encoder id of their own.
	encoders   *id.IdentityManager
	lastSubmit uint64
	submitted  bool
}

// New returns a player that reads data files from dir and creates
// objects on g.
func New(g *hub.Global, dir string, opts ...Option) *Player {
	p := &Player{
		g:        g,
		dir:      dir,
		tracer:   otel.Tracer(TracerName),
		encoders: id.NewIdentityManager(),
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// State returns the current replay state.
func (p *Player) State() State { return p.state }

// Device returns the replayed device. It is zero before Init.
func (p *Player) Device() id.DeviceID { return p.device }

// Err returns the error that stopped the replay, if any.
func (p *Player) Err() error { return p.err }

// Play applies actions in order and stops at the first error.
func (p *Player) Play(ctx context.Context, actions []trace.Action) error {
	ctx, span := p.tracer.Start(ctx, "Play", oteltrace.WithAttributes(
		attribute.String("gpuplay.trace.dir", p.dir),
		attribute.Int("gpuplay.actions", len(actions)),
	))
	defer span.End()

	for _, a := range actions {
		if err := p.Process(ctx, a); err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, "replay stopped")
			return err
		}
	}
	return nil
}

// Process applies one action. Errors are fatal: after the first one the
// player stays in the Failed state and returns that error again.
func (p *Player) Process(ctx context.Context, a trace.Action) error {
	switch p.state {
	case Failed:
		return p.err
	case Closed:
		return fmt.Errorf("%w: player is closed", ErrProtocolViolation)
	}

	n := p.next
	p.next++
	_, span := p.tracer.Start(ctx, a.Type().String(), oteltrace.WithAttributes(
		attribute.Int("gpuplay.action.index", n),
		attribute.String("gpuplay.action.kind", a.Type().String()),
	))
	defer span.End()

	logging.Logger().Debug("player: action", "index", n, "action", a.Type())

	var err error
	if p.state == AwaitingInit {
		err = p.initialize(a)
	} else {
		err = p.apply(a)
	}
	if err != nil {
		if !errors.Is(err, ErrProtocolViolation) {
			err = fmt.Errorf("%w: action %d (%s): %w", ErrReplayFailed, n, a.Type(), err)
		} else {
			err = fmt.Errorf("action %d (%s): %w", n, a.Type(), err)
		}
		p.state, p.err = Failed, err
		span.RecordError(err)
		span.SetStatus(codes.Error, "action failed")
		logging.Logger().Warn("player: replay stopped", "index", n, "action", a.Type(), "err", err)
		return err
	}
	return nil
}

// Close drops the replayed device and everything it owns.
func (p *Player) Close() error {
	if p.state == Closed {
		return nil
	}
	opened := p.device != 0
	p.state = Closed
	if !opened {
		return nil
	}
	if err := p.g.DeviceDrop(p.device); err != nil {
		return fmt.Errorf("player: close: %w", err)
	}
	return nil
}

func (p *Player) initialize(a trace.Action) error {
	first, ok := a.(trace.Init)
	if !ok {
		return fmt.Errorf("%w: first action is %s, not Init", ErrProtocolViolation, a.Type())
	}
	if !p.g.HasBackend(first.Backend) {
		return fmt.Errorf("%w: backend %s is not compiled into this build", ErrProtocolViolation, first.Backend)
	}
	device := id.New[id.Device](0, 1, first.Backend)
	if err := p.g.CreateDevice(first.Backend, &first.Desc, device); err != nil {
		return err
	}
	p.device = device
	p.state = Running
	logging.Logger().Info("player: device initialized", "backend", first.Backend, "device", device)
	return nil
}

// maintain brings the hub's allocators up to date with the ids replay
// registered directly.
func (p *Player) maintain() error {
	return p.g.DeviceMaintainIDs(p.device)
}

func (p *Player) apply(a trace.Action) error {
	g, device := p.g, p.device
	switch a := a.(type) {
	case trace.Init:
		return fmt.Errorf("%w: Init must be the first action only", ErrProtocolViolation)
	case trace.CreateSwapChain, trace.GetSwapChainTexture, trace.PresentSwapChain:
		return fmt.Errorf("%w: swap chain actions are not supported", ErrProtocolViolation)

	case trace.CreateBuffer:
		if err := p.maintain(); err != nil {
			return err
		}
		return g.DeviceCreateBuffer(device, &a.Desc, a.ID)
	case trace.DestroyBuffer:
		return g.BufferDestroy(a.ID)
	case trace.CreateTexture:
		if err := p.maintain(); err != nil {
			return err
		}
		return g.DeviceCreateTexture(device, &a.Desc, a.ID)
	case trace.DestroyTexture:
		return g.TextureDestroy(a.ID)
	case trace.CreateTextureView:
		if err := p.maintain(); err != nil {
			return err
		}
		return g.TextureCreateView(a.Parent, a.Desc, a.ID)
	case trace.DestroyTextureView:
		return g.TextureViewDestroy(a.ID)
	case trace.CreateSampler:
		if err := p.maintain(); err != nil {
			return err
		}
		return g.DeviceCreateSampler(device, &a.Desc, a.ID)
	case trace.DestroySampler:
		return g.SamplerDestroy(a.ID)

	case trace.CreateBindGroupLayout:
		return g.DeviceCreateBindGroupLayout(device, a.Label, a.Entries, a.ID)
	case trace.DestroyBindGroupLayout:
		return g.BindGroupLayoutDestroy(a.ID)
	case trace.CreatePipelineLayout:
		if err := p.maintain(); err != nil {
			return err
		}
		return g.DeviceCreatePipelineLayout(device, a.Label, a.BindGroupLayouts, a.PushConstantRanges, a.ID)
	case trace.DestroyPipelineLayout:
		return g.PipelineLayoutDestroy(a.ID)
	case trace.CreateBindGroup:
		if err := p.maintain(); err != nil {
			return err
		}
		return g.DeviceCreateBindGroup(device, a.Label, a.Layout, a.Entries, a.ID)
	case trace.DestroyBindGroup:
		return g.BindGroupDestroy(a.ID)

	case trace.CreateShaderModule:
		words, err := p.shader(a.Data)
		if err != nil {
			return err
		}
		return g.DeviceCreateShaderModule(device, a.Label, words, a.ID)
	case trace.DestroyShaderModule:
		return g.ShaderModuleDestroy(a.ID)
	case trace.CreateComputePipeline:
		if err := p.maintain(); err != nil {
			return err
		}
		return g.DeviceCreateComputePipeline(device, &a.Desc, a.ID)
	case trace.DestroyComputePipeline:
		return g.ComputePipelineDestroy(a.ID)
	case trace.CreateRenderPipeline:
		if err := p.maintain(); err != nil {
			return err
		}
		return g.DeviceCreateRenderPipeline(device, &a.Desc, a.ID)
	case trace.DestroyRenderPipeline:
		return g.RenderPipelineDestroy(a.ID)
	case trace.CreateRenderBundle:
		if err := p.maintain(); err != nil {
			return err
		}
		return g.DeviceCreateRenderBundle(device, &a.Desc, a.Base, a.ID)
	case trace.DestroyRenderBundle:
		return g.RenderBundleDestroy(a.ID)
	case trace.CreateQuerySet:
		if err := p.maintain(); err != nil {
			return err
		}
		return g.DeviceCreateQuerySet(device, &a.Desc, a.ID)
	case trace.DestroyQuerySet:
		return g.QuerySetDestroy(a.ID)

	case trace.WriteBuffer:
		return p.writeBuffer(a)
	case trace.WriteTexture:
		data, err := p.blob(a.Data)
		if err != nil {
			return err
		}
		return g.QueueWriteTexture(device, &a.To, data, &a.Layout, a.Size)
	case trace.Submit:
		return p.submit(a)
	default:
		return fmt.Errorf("%w: unknown action %T", ErrProtocolViolation, a)
	}
}

func (p *Player) blob(name string) ([]byte, error) {
	data, err := trace.ReadBlob(p.dir, name)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrIO, err)
	}
	return data, nil
}

func (p *Player) writeBuffer(a trace.WriteBuffer) error {
	data, err := p.blob(a.Data)
	if err != nil {
		return err
	}
	if a.Queued {
		return p.g.QueueWriteBuffer(p.device, a.ID, a.Range.Start, data)
	}
	size := a.Range.End - a.Range.Start
	if a.Range.End < a.Range.Start || uint64(len(data)) < size {
		return fmt.Errorf("%w: %s holds %d bytes, range %d..%d", ErrIO, a.Data, len(data), a.Range.Start, a.Range.End)
	}
	if err := p.g.DeviceWaitForBuffer(p.device, a.ID); err != nil {
		return err
	}
	return p.g.DeviceSetBufferSubData(p.device, a.ID, a.Range.Start, data[:size])
}

// shader loads a shader module blob as SPIR-V words. WGSL sources are
// compiled first.
func (p *Player) shader(name string) ([]uint32, error) {
	data, err := p.blob(name)
	if err != nil {
		return nil, err
	}
	switch filepath.Ext(name) {
	case ".spv":
	case ".wgsl":
		if data, err = naga.Compile(string(data)); err != nil {
			return nil, fmt.Errorf("compile %s: %w", name, err)
		}
	default:
		return nil, fmt.Errorf("%w: shader %s has unknown source type", ErrIO, name)
	}
	if len(data)%4 != 0 {
		return nil, fmt.Errorf("%w: SPIR-V blob %s is %d bytes, not whole words", ErrIO, name, len(data))
	}
	words := make([]uint32, len(data)/4)
	for i := range words {
		words[i] = binary.LittleEndian.Uint32(data[i*4:])
	}
	return words, nil
}

func (p *Player) submit(a trace.Submit) error {
	if p.submitted && a.Index <= p.lastSubmit {
		return fmt.Errorf("%w: submission %d after %d", ErrProtocolViolation, a.Index, p.lastSubmit)
	}
	p.lastSubmit, p.submitted = a.Index, true

	enc := id.CommandEncoderID(p.encoders.Alloc(p.device.Backend()))
	if err := p.g.DeviceCreateCommandEncoder(p.device, "", enc); err != nil {
		return err
	}
	cb, err := command.Encode(p.g, enc, a.Commands)
	if err != nil {
		if dropErr := p.g.CommandEncoderDrop(enc); dropErr != nil {
			logging.Logger().Warn("player: drop failed encoder", "encoder", enc, "err", dropErr)
		}
		return err
	}
	if err := p.g.QueueSubmit(p.device, []id.CommandBufferID{cb}); err != nil {
		return err
	}
	p.encoders.Free(enc.Raw())
	return nil
}
