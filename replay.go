package gpuplay

import (
	"context"
	"errors"
	"fmt"

	"github.com/gogpu/gpuplay/hub"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/internal/logging"
	"github.com/gogpu/gpuplay/player"
	"github.com/gogpu/gpuplay/trace"
)

// ErrEmptyTrace is returned by Replay for a log without actions.
var ErrEmptyTrace = errors.New("gpuplay: trace has no actions")

// Replayed describes a finished replay.
type Replayed struct {
	Dir     string
	Backend id.Backend
	Device  id.DeviceID

	// Actions is the number of actions applied. Submissions counts the
	// Submit actions among them.
	Actions     int
	Submissions int

	p *player.Player
}

// Close drops the replayed device. It is a no-op unless the replay ran
// with [WithGlobal].
func (r *Replayed) Close() error {
	return r.p.Close()
}

// Replay loads the trace in dir and replays it from the start.
//
// Every action is applied in recorded order and the first failure stops
// the replay. The device is dropped on return unless WithGlobal was used.
func Replay(ctx context.Context, dir string, opts ...Option) (*Replayed, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}

	actions, err := trace.Load(dir)
	if err != nil {
		return nil, fmt.Errorf("replay %s: %w", dir, err)
	}
	if len(actions) == 0 {
		return nil, fmt.Errorf("replay %s: %w", dir, ErrEmptyTrace)
	}

	g := o.global
	if g == nil {
		g = hub.NewGlobal(o.factories...)
	}
	p := player.New(g, dir, o.player...)
	logging.Logger().Info("gpuplay: replay", "dir", dir, "actions", len(actions))

	if err := p.Play(ctx, actions); err != nil {
		if cerr := p.Close(); cerr != nil {
			logging.Logger().Warn("gpuplay: close after failed replay", "err", cerr)
		}
		return nil, fmt.Errorf("replay %s: %w", dir, err)
	}

	r := &Replayed{
		Dir:     dir,
		Backend: p.Device().Backend(),
		Device:  p.Device(),
		Actions: len(actions),
		p:       p,
	}
	for _, a := range actions {
		if a.Type() == trace.ActSubmit {
			r.Submissions++
		}
	}
	if !o.keep {
		if err := p.Close(); err != nil {
			return nil, fmt.Errorf("replay %s: %w", dir, err)
		}
	}
	return r, nil
}
