// Package command encodes recorded commands into command buffers.
//
// Every command names objects by id. The ids are resolved through the hub,
// checked against the command's preconditions and only then translated
// into backend encoder calls:
//
//	cb, err := command.Encode(g, enc, []trace.Command{
//		trace.CopyBufferToBuffer{Src: a, Dst: b, Size: 256},
//	})
//
// A command that fails its checks returns an error wrapping
// [ErrPrecondition] and leaves the encoder in the error state; it can only
// be dropped afterwards.
//
// Query commands are also available one at a time through
// [BeginPipelineStatisticsQuery], [EndPipelineStatisticsQuery],
// [WriteTimestamp] and [ResolveQuerySet].
package command
