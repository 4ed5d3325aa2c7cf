package command

import (
	"fmt"

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/gpucore"
	"github.com/gogpu/gpuplay/hub"
	"github.com/gogpu/gpuplay/id"
	"github.com/gogpu/gpuplay/trace"
)

// resolveFlags are the result flags every resolve copies with.
const resolveFlags = gpucore.QueryResultWait | gpucore.QueryResultWithAvailability | gpucore.QueryResultBits64

// withQueryEncoder runs fn on the recording encoder enc with the query set
// and buffer registries read-locked. A failing fn puts the encoder in the
// error state; a successful one has c captured when capture is on.
func withQueryEncoder(g *hub.Global, enc id.CommandEncoderID, c trace.Command, fn func(*encoder) error) error {
	h := hub.HubFor(g, enc)
	cmdbufs, tok := h.CommandBuffers.Write(hub.Root())
	defer cmdbufs.Release()

	cb, err := recording(cmdbufs, enc)
	if err != nil {
		return fmt.Errorf("%s on %s: %w", c.Type(), enc, err)
	}
	querySets, tok := h.QuerySets.Read(tok)
	defer querySets.Release()
	buffers, _ := h.Buffers.Read(tok)
	defer buffers.Release()

	e := &encoder{id: enc, cb: cb, querySets: querySets, buffers: buffers}
	if err := fn(e); err != nil {
		e.invalidate(err)
		return fmt.Errorf("%s on %s: %w", c.Type(), enc, err)
	}
	if cb.Capture {
		cb.Commands = append(cb.Commands, c)
	}
	return nil
}

// BeginPipelineStatisticsQuery starts collecting statistics into query
// index of set.
func BeginPipelineStatisticsQuery(g *hub.Global, enc id.CommandEncoderID, set id.QuerySetID, index uint32) error {
	c := trace.BeginPipelineStatisticsQuery{QuerySet: set, QueryIndex: index}
	return withQueryEncoder(g, enc, c, func(e *encoder) error {
		return e.beginPipelineStatistics(c)
	})
}

// EndPipelineStatisticsQuery stops the statistics query started at index.
func EndPipelineStatisticsQuery(g *hub.Global, enc id.CommandEncoderID, set id.QuerySetID, index uint32) error {
	c := trace.EndPipelineStatisticsQuery{QuerySet: set, QueryIndex: index}
	return withQueryEncoder(g, enc, c, func(e *encoder) error {
		return e.endPipelineStatistics(c)
	})
}

// WriteTimestamp writes a timestamp into query index of set once work
// reaches stage.
func WriteTimestamp(g *hub.Global, enc id.CommandEncoderID, set id.QuerySetID, index uint32, stage gpucore.PipelineStage) error {
	c := trace.WriteTimestamp{QuerySet: set, QueryIndex: index, Stage: stage}
	return withQueryEncoder(g, enc, c, func(e *encoder) error {
		return e.writeTimestamp(c)
	})
}

// ResolveQuerySet copies the results of queries [first, first+count) into
// dst at offset, QueryResolveStride bytes per query. Each result is
// followed by its availability word.
func ResolveQuerySet(g *hub.Global, enc id.CommandEncoderID, set id.QuerySetID, first, count uint32, dst id.BufferID, offset uint64) error {
	c := trace.ResolveQuerySet{QuerySet: set, FirstQuery: first, QueryCount: count, Destination: dst, DestinationOffset: offset}
	return withQueryEncoder(g, enc, c, func(e *encoder) error {
		return e.resolveQuerySet(c)
	})
}

// querySet resolves i and checks that it is of type want and that
// [first, first+count) lies inside it.
func (e *encoder) querySet(i id.QuerySetID, want gpucore.QueryType, first, count uint32) (*hub.QuerySet, error) {
	q, err := e.querySets.Get(i)
	if err != nil {
		return nil, err
	}
	if err := owned(e, i, q.Device); err != nil {
		return nil, err
	}
	if q.Desc.Type != want {
		return nil, fmt.Errorf("%w: %s is a %s set, want %s", ErrPrecondition, i, q.Desc.Type, want)
	}
	if uint64(first)+uint64(count) > uint64(q.Desc.Count) {
		return nil, fmt.Errorf("%w: queries %d+%d exceed set size %d", ErrPrecondition, first, count, q.Desc.Count)
	}
	return q, nil
}

func (e *encoder) beginPipelineStatistics(c trace.BeginPipelineStatisticsQuery) error {
	q, err := e.querySet(c.QuerySet, gpucore.QueryTypePipelineStatistics, c.QueryIndex, 1)
	if err != nil {
		return err
	}
	e.cb.Encoder.ResetQueries(q.Raw, c.QueryIndex, 1)
	e.cb.Encoder.BeginQuery(q.Raw, c.QueryIndex)
	return nil
}

func (e *encoder) endPipelineStatistics(c trace.EndPipelineStatisticsQuery) error {
	q, err := e.querySet(c.QuerySet, gpucore.QueryTypePipelineStatistics, c.QueryIndex, 1)
	if err != nil {
		return err
	}
	e.cb.Encoder.EndQuery(q.Raw, c.QueryIndex)
	return nil
}

func (e *encoder) writeTimestamp(c trace.WriteTimestamp) error {
	q, err := e.querySet(c.QuerySet, gpucore.QueryTypeTimestamp, c.QueryIndex, 1)
	if err != nil {
		return err
	}
	e.cb.Encoder.WriteTimestamp(q.Raw, c.QueryIndex, c.Stage)
	return nil
}

func (e *encoder) resolveQuerySet(c trace.ResolveQuerySet) error {
	q, err := e.querySets.Get(c.QuerySet)
	if err != nil {
		return err
	}
	if err := owned(e, c.QuerySet, q.Device); err != nil {
		return err
	}
	if uint64(c.FirstQuery)+uint64(c.QueryCount) > uint64(q.Desc.Count) {
		return fmt.Errorf("%w: queries %d+%d exceed set size %d", ErrPrecondition, c.FirstQuery, c.QueryCount, q.Desc.Count)
	}
	dst, err := e.buffer(c.Destination)
	if err != nil {
		return err
	}
	if !dst.Desc.Usage.Contains(gpucore.BufferUsageCopyDst) {
		return fmt.Errorf("%w: destination %s lacks COPY_DST usage", ErrPrecondition, c.Destination)
	}
	if need := uint64(c.QueryCount) * gpucore.QueryResolveStride; c.DestinationOffset > dst.Desc.Size || need > dst.Desc.Size-c.DestinationOffset {
		return fmt.Errorf("%w: destination offset %d + size %d > buffer size %d", ErrPrecondition, c.DestinationOffset, need, dst.Desc.Size)
	}

	var barriers []backend.BufferBarrier
	if t := e.use(dst, gpucore.BufferUseCopyDst); t.From != t.To {
		barriers = append(barriers, backend.BufferBarrier{Buffer: dst.Raw, Usage: t})
	}
	e.cb.Encoder.PipelineBarrier(gpucore.AllBufferStages, gpucore.PipelineStageTransfer, barriers)
	e.cb.Encoder.CopyQueryResults(q.Raw, c.FirstQuery, c.QueryCount, dst.Raw, c.DestinationOffset,
		gpucore.QueryResolveStride, resolveFlags)
	return nil
}
