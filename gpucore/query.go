package gpucore

// QueryType is the kind of measurement a query set records.
type QueryType uint32

// Query types.
const (
	QueryTypeOcclusion QueryType = iota
	QueryTypePipelineStatistics
	QueryTypeTimestamp
)

var queryTypeNames = [...]string{
	QueryTypeOcclusion:          "Occlusion",
	QueryTypePipelineStatistics: "PipelineStatistics",
	QueryTypeTimestamp:          "Timestamp",
}

// String returns the query type name.
func (t QueryType) String() string {
	if int(t) < len(queryTypeNames) {
		return queryTypeNames[t]
	}
	return "Unknown"
}

// PipelineStatisticName selects one counter of a pipeline-statistics query.
type PipelineStatisticName uint32

// Pipeline statistic counters.
const (
	PipelineStatisticVertexShaderInvocations PipelineStatisticName = iota
	PipelineStatisticClipperInvocations
	PipelineStatisticClipperPrimitivesOut
	PipelineStatisticFragmentShaderInvocations
	PipelineStatisticComputeShaderInvocations
)

// QuerySetDescriptor describes a fixed pool of query slots.
type QuerySetDescriptor struct {
	Label string    `json:"label"`
	Type  QueryType `json:"type"`

	// PipelineStatistics lists the counters of a pipeline-statistics set.
	// It is empty for other types.
	PipelineStatistics []PipelineStatisticName `json:"pipeline_statistics,omitempty"`

	Count uint32 `json:"count"`
}

// ValuesPerQuery returns how many 64-bit values one query of the set produces.
func (d *QuerySetDescriptor) ValuesPerQuery() int {
	if d.Type == QueryTypePipelineStatistics {
		return len(d.PipelineStatistics)
	}
	return 1
}

// QueryResolveStride is the distance in bytes between consecutive query
// results written by a resolve: one 64-bit value and one 64-bit
// availability word. Sets whose queries produce more values still use this
// stride.
const QueryResolveStride = 16

// QueryResultFlags control how query results are copied.
type QueryResultFlags uint32

// Query result flags.
const (
	// QueryResultBits64 writes results as 64-bit integers.
	QueryResultBits64 QueryResultFlags = 1 << 0

	// QueryResultWait blocks until the results are available.
	QueryResultWait QueryResultFlags = 1 << 1

	// QueryResultWithAvailability writes an availability word after each
	// result.
	QueryResultWithAvailability QueryResultFlags = 1 << 2
)

// Has reports whether flag is set.
func (f QueryResultFlags) Has(flag QueryResultFlags) bool {
	return f&flag != 0
}

// PipelineStage is a bitmask of pipeline stages used for execution
// dependencies and timestamp placement.
type PipelineStage uint32

// Pipeline stages.
const (
	PipelineStageTopOfPipe PipelineStage = 1 << iota
	PipelineStageDrawIndirect
	PipelineStageVertexInput
	PipelineStageVertexShader
	PipelineStageFragmentShader
	PipelineStageEarlyFragmentTests
	PipelineStageLateFragmentTests
	PipelineStageColorAttachmentOutput
	PipelineStageComputeShader
	PipelineStageTransfer
	PipelineStageBottomOfPipe
	PipelineStageHost
)

// AllBufferStages is every stage that can read or write a buffer.
const AllBufferStages = PipelineStageDrawIndirect |
	PipelineStageVertexInput |
	PipelineStageVertexShader |
	PipelineStageFragmentShader |
	PipelineStageComputeShader |
	PipelineStageTransfer |
	PipelineStageHost

// BufferUse is the way a buffer is accessed at a point in a command
// stream. The zero value is the undefined initial state.
type BufferUse uint32

// Buffer uses.
const (
	BufferUseNone     BufferUse = 0
	BufferUseMapRead  BufferUse = 1 << 0
	BufferUseMapWrite BufferUse = 1 << 1
	BufferUseCopySrc  BufferUse = 1 << 2
	BufferUseCopyDst  BufferUse = 1 << 3
	BufferUseIndex    BufferUse = 1 << 4
	BufferUseVertex   BufferUse = 1 << 5
	BufferUseUniform  BufferUse = 1 << 6
	BufferUseStorage  BufferUse = 1 << 7
	BufferUseIndirect BufferUse = 1 << 8
)

// BufferUseTransition moves a buffer from one use to another.
type BufferUseTransition struct {
	From BufferUse
	To   BufferUse
}
