// Package gpuplay captures and replays GPU API traces.
//
// # Overview
//
// gpuplay records every state-changing GPU call made through its hub as an
// ordered action log, and replays such a log against any backend to
// reproduce the same work. A trace is a directory holding the log
// (trace.ron or trace.cbor) and the data files it references.
//
// # Quick Start
//
//	import (
//		"github.com/gogpu/gpuplay"
//		"github.com/gogpu/gpuplay/backend/software"
//		"github.com/gogpu/gpuplay/id"
//	)
//
//	err := gpuplay.Replay(ctx, "traces/frame-42",
//		gpuplay.WithBackendFactory(id.Vulkan, software.Factory))
//
// # Packages
//
//   - id: typed object ids and the identity manager that allocates them.
//   - hub: per-backend registries and the operations that create, destroy
//     and submit objects.
//   - trace: the action model, the log writer and the log reader.
//   - command: validation and encoding of recorded commands.
//   - player: the replay state machine.
//   - backend: the execution layer; backend/software records every call
//     and backend/halbridge drives a gogpu/wgpu HAL device.
//
// # Logging
//
// gpuplay is silent by default. Call [SetLogger] to route diagnostics from
// every package to a [log/slog] handler.
package gpuplay
