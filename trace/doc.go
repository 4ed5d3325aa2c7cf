// Package trace records and parses the action log of a captured GPU
// session.
//
// A trace is a directory holding the log (trace.ron or trace.cbor) and the
// data<N>.<ext> blobs that buffer writes, texture writes and shader modules
// refer to. Each log record is a tagged union:
//
//	{"CreateBuffer":{"id":[1,1,"Vulkan"],"desc":{...}}}
//
// In the binary form the same records are CBOR maps and ids are packed
// integers.
//
// # Capture
//
//	w, err := trace.New(dir)
//	w.Add(trace.Init{Desc: desc, Backend: id.Vulkan})
//	name := w.MakeBinary("bin", data)
//	w.Add(trace.WriteBuffer{ID: buf, Data: name, Range: r, Queued: true})
//	w.Close()
//
// # Replay
//
//	actions, err := trace.Load(dir)
//
// Order is significant: actions must be replayed exactly as recorded.
package trace
