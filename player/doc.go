// Package player replays captured traces.
//
// A Player applies actions to a [hub.Global] in recorded order. The first
// action must be Init, which opens the device; every following action
// creates, writes, destroys or submits against it under the ids the
// capture recorded. Data files are read from the trace directory.
//
//	actions, err := trace.Load(dir)
//	if err != nil {
//		return err
//	}
//	p := player.New(g, dir)
//	defer p.Close()
//	if err := p.Play(ctx, actions); err != nil {
//		return err
//	}
//
// Every failure is fatal. Errors wrap [ErrProtocolViolation] for streams
// that cannot be replayed at all, and [ErrReplayFailed] with the index and
// kind of the failing action otherwise.
//
// Each action runs inside an OpenTelemetry span; see [WithTracer].
package player
