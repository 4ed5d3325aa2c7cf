// Package hub owns every live GPU object, addressed by typed id.
//
// A [Global] holds one [Hub] per compiled backend. Each Hub keeps a
// [Registry] per object kind; the backend tag inside an id selects the
// hub, the index and epoch select the slot. Stale or foreign ids fail with
// [ErrInvalidHandle].
//
// Registries are guarded by read/write locks that must be taken in a fixed
// order. A [Token] carries the level of the last lock taken, and locking a
// registry at or above that level panics:
//
//	devices, tok := h.Devices.Read(hub.Root())
//	defer devices.Release()
//	buffers, _ := h.Buffers.Read(tok)
//	defer buffers.Release()
//
// Devices own the objects created through them. A device with a trace
// writer attached (see [Global.DeviceSetTrace]) records every
// state-changing call as a trace action.
package hub
