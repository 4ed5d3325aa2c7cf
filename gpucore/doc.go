// Package gpucore defines the value types shared by the capture, replay and
// execution layers: resource descriptors, usage flags, copy layouts and the
// query and pipeline-stage vocabulary.
//
// The types carry no resource ids and no backend handles. Descriptors that
// reference other objects live next to their users: the trace package holds
// the id-bearing forms recorded in a trace, the backend package holds the
// handle-bearing forms handed to an execution layer.
//
// Flag and enum values are part of the trace format. Execution layers that
// sit on another API translate them (see backend/halbridge for the mapping
// onto gputypes).
//
// # Resource Descriptors
//
//   - [BufferDescriptor], [TextureDescriptor], [TextureViewDescriptor],
//     [SamplerDescriptor], [QuerySetDescriptor], [DeviceDescriptor]
//   - [BindGroupLayoutEntry], [PushConstantRange] for layouts
//   - [VertexBufferLayout], [ColorTargetState], [PrimitiveState],
//     [DepthStencilState] for render pipelines
//
// # Queries and Synchronization
//
// [QueryType] names the kind of a query set. [PipelineStage] and [BufferUse]
// describe execution and memory dependencies for barriers, and
// [QueryResultFlags] control how query results are copied into a buffer.
package gpucore
