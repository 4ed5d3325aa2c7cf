// Package backend defines the execution layer that replayed work is handed to.
//
// The core never talks to Vulkan, Metal or D3D directly. Every resource
// creation, copy, pass and query is forwarded to a [Device], [Queue] or
// [CommandEncoder] supplied by an implementation package:
//
//   - backend/software: an in-memory reference device that stores buffer and
//     texture bytes, executes copies and logs every call. Used by tests and
//     by trace inspection.
//   - backend/halbridge: a bridge onto gogpu/wgpu's HAL devices.
//
// # Backend Registration
//
// Implementations are bound to a backend tag through a factory, following
// the database/sql driver pattern:
//
//	backend.Register(id.Vulkan, halbridge.Vulkan())
//
// The replay engine opens the adapter registered for the tag recorded in
// the trace's Init action. Callers that need isolation (tests, tools that
// replay a Vulkan trace on the software device) pass factories directly to
// hub.NewGlobal instead of touching the process-wide registry.
//
// # Handles
//
// Resources returned by a Device are opaque to the core. They are only
// passed back to the same implementation, which type-asserts them to its
// own concrete types.
//
// # Errors
//
// Creation methods return errors immediately. Recording methods on
// [CommandEncoder] and the pass encoders do not; an implementation that
// cannot honor a recorded command reports it from [CommandEncoder.Finish].
package backend
