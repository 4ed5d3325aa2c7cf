package trace

import (
	"encoding/json"
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// Format selects the on-disk encoding of a trace.
type Format uint8

const (
	// FormatText writes trace.ron: one JSON record per line inside a list
	// that tolerates a trailing separator.
	FormatText Format = iota

	// FormatBinary writes trace.cbor: a CBOR indefinite-length array of
	// records.
	FormatBinary
)

// String returns the format name.
func (f Format) String() string {
	if f == FormatBinary {
		return "binary"
	}
	return "text"
}

// FileName returns the name of the log file inside a trace directory.
func (f Format) FileName() string {
	if f == FormatBinary {
		return "trace.cbor"
	}
	return "trace.ron"
}

// ParseFormat parses "text" or "binary".
func ParseFormat(s string) (Format, error) {
	switch s {
	case "text", "ron":
		return FormatText, nil
	case "binary", "cbor":
		return FormatBinary, nil
	}
	return 0, fmt.Errorf("trace: unknown format %q", s)
}

type (
	marshalFunc   func(any) ([]byte, error)
	unmarshalFunc func([]byte, any) error
)

// codec is one wire encoding. Records are single-key maps from variant
// name to payload.
type codec struct {
	marshal   marshalFunc
	unmarshal unmarshalFunc
	split     func(data []byte) (name string, payload []byte, err error)
	items     func(data []byte) ([][]byte, error)
}

var cborEncMode = func() cbor.EncMode {
	em, err := cbor.CoreDetEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}()

var (
	jsonCodec = codec{
		marshal:   json.Marshal,
		unmarshal: json.Unmarshal,
		split:     splitJSON,
		items:     itemsJSON,
	}
	cborCodec = codec{
		marshal:   cborEncMode.Marshal,
		unmarshal: cbor.Unmarshal,
		split:     splitCBOR,
		items:     itemsCBOR,
	}
)

func codecFor(f Format) codec {
	if f == FormatBinary {
		return cborCodec
	}
	return jsonCodec
}

func splitJSON(data []byte) (string, []byte, error) {
	var env map[string]json.RawMessage
	if err := json.Unmarshal(data, &env); err != nil {
		return "", nil, err
	}
	return single(env)
}

func splitCBOR(data []byte) (string, []byte, error) {
	var env map[string]cbor.RawMessage
	if err := cbor.Unmarshal(data, &env); err != nil {
		return "", nil, err
	}
	return single(env)
}

func single[R ~[]byte](env map[string]R) (string, []byte, error) {
	if len(env) != 1 {
		return "", nil, fmt.Errorf("record has %d variant keys, want 1", len(env))
	}
	for name, payload := range env {
		return name, payload, nil
	}
	panic("unreachable")
}

func itemsJSON(data []byte) ([][]byte, error) {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return toBytes(raw), nil
}

func itemsCBOR(data []byte) ([][]byte, error) {
	var raw []cbor.RawMessage
	if err := cbor.Unmarshal(data, &raw); err != nil {
		return nil, err
	}
	return toBytes(raw), nil
}

func toBytes[R ~[]byte](raw []R) [][]byte {
	out := make([][]byte, len(raw))
	for i, r := range raw {
		out[i] = r
	}
	return out
}

// --------------------------------------------------------------------------
// Variant tables
// --------------------------------------------------------------------------

type decodeFunc[U any] func(payload []byte, unmarshal unmarshalFunc) (U, error)

func decodeAction[T Action](payload []byte, unmarshal unmarshalFunc) (Action, error) {
	var v T
	if err := unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodeCommand[T Command](payload []byte, unmarshal unmarshalFunc) (Command, error) {
	var v T
	if err := unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

func decodePassCommand[T PassCommand](payload []byte, unmarshal unmarshalFunc) (PassCommand, error) {
	var v T
	if err := unmarshal(payload, &v); err != nil {
		return nil, err
	}
	return v, nil
}

var actionDecoders = map[string]decodeFunc[Action]{
	ActInit.String():                   decodeAction[Init],
	ActCreateBuffer.String():           decodeAction[CreateBuffer],
	ActDestroyBuffer.String():          decodeAction[DestroyBuffer],
	ActCreateTexture.String():          decodeAction[CreateTexture],
	ActDestroyTexture.String():         decodeAction[DestroyTexture],
	ActCreateTextureView.String():      decodeAction[CreateTextureView],
	ActDestroyTextureView.String():     decodeAction[DestroyTextureView],
	ActCreateSampler.String():          decodeAction[CreateSampler],
	ActDestroySampler.String():         decodeAction[DestroySampler],
	ActCreateSwapChain.String():        decodeAction[CreateSwapChain],
	ActGetSwapChainTexture.String():    decodeAction[GetSwapChainTexture],
	ActPresentSwapChain.String():       decodeAction[PresentSwapChain],
	ActCreateBindGroupLayout.String():  decodeAction[CreateBindGroupLayout],
	ActDestroyBindGroupLayout.String(): decodeAction[DestroyBindGroupLayout],
	ActCreatePipelineLayout.String():   decodeAction[CreatePipelineLayout],
	ActDestroyPipelineLayout.String():  decodeAction[DestroyPipelineLayout],
	ActCreateBindGroup.String():        decodeAction[CreateBindGroup],
	ActDestroyBindGroup.String():       decodeAction[DestroyBindGroup],
	ActCreateShaderModule.String():     decodeAction[CreateShaderModule],
	ActDestroyShaderModule.String():    decodeAction[DestroyShaderModule],
	ActCreateComputePipeline.String():  decodeAction[CreateComputePipeline],
	ActDestroyComputePipeline.String(): decodeAction[DestroyComputePipeline],
	ActCreateRenderPipeline.String():   decodeAction[CreateRenderPipeline],
	ActDestroyRenderPipeline.String():  decodeAction[DestroyRenderPipeline],
	ActCreateRenderBundle.String():     decodeAction[CreateRenderBundle],
	ActDestroyRenderBundle.String():    decodeAction[DestroyRenderBundle],
	ActCreateQuerySet.String():         decodeAction[CreateQuerySet],
	ActDestroyQuerySet.String():        decodeAction[DestroyQuerySet],
	ActWriteBuffer.String():            decodeAction[WriteBuffer],
	ActWriteTexture.String():           decodeAction[WriteTexture],
	ActSubmit.String():                 decodeAction[Submit],
}

var commandDecoders = map[string]decodeFunc[Command]{
	CmdCopyBufferToBuffer.String():           decodeCommand[CopyBufferToBuffer],
	CmdCopyBufferToTexture.String():          decodeCommand[CopyBufferToTexture],
	CmdCopyTextureToBuffer.String():          decodeCommand[CopyTextureToBuffer],
	CmdCopyTextureToTexture.String():         decodeCommand[CopyTextureToTexture],
	CmdRunComputePass.String():               decodeCommand[RunComputePass],
	CmdRunRenderPass.String():                decodeCommand[RunRenderPass],
	CmdWriteTimestamp.String():               decodeCommand[WriteTimestamp],
	CmdBeginPipelineStatisticsQuery.String(): decodeCommand[BeginPipelineStatisticsQuery],
	CmdEndPipelineStatisticsQuery.String():   decodeCommand[EndPipelineStatisticsQuery],
	CmdResolveQuerySet.String():              decodeCommand[ResolveQuerySet],
}

var passCommandDecoders = map[string]decodeFunc[PassCommand]{
	PassSetBindGroup.String():        decodePassCommand[SetBindGroup],
	PassSetComputePipeline.String():  decodePassCommand[SetComputePipeline],
	PassSetRenderPipeline.String():   decodePassCommand[SetRenderPipeline],
	PassSetVertexBuffer.String():     decodePassCommand[SetVertexBuffer],
	PassSetIndexBuffer.String():      decodePassCommand[SetIndexBuffer],
	PassSetViewport.String():         decodePassCommand[SetViewport],
	PassSetScissorRect.String():      decodePassCommand[SetScissorRect],
	PassSetBlendConstant.String():    decodePassCommand[SetBlendConstant],
	PassSetStencilReference.String(): decodePassCommand[SetStencilReference],
	PassDraw.String():                decodePassCommand[Draw],
	PassDrawIndexed.String():         decodePassCommand[DrawIndexed],
	PassDispatch.String():            decodePassCommand[Dispatch],
	PassExecuteBundles.String():      decodePassCommand[ExecuteBundles],
	PassPushDebugGroup.String():      decodePassCommand[PushDebugGroup],
	PassPopDebugGroup.String():       decodePassCommand[PopDebugGroup],
	PassInsertDebugMarker.String():   decodePassCommand[InsertDebugMarker],
}

func decodeVariant[U any](c codec, data []byte, decoders map[string]decodeFunc[U], what string) (U, error) {
	var zero U
	name, payload, err := c.split(data)
	if err != nil {
		return zero, fmt.Errorf("%w: %s: %v", ErrMalformedTrace, what, err)
	}
	decode, ok := decoders[name]
	if !ok {
		return zero, fmt.Errorf("%w: unknown %s %q", ErrMalformedTrace, what, name)
	}
	v, err := decode(payload, c.unmarshal)
	if err != nil {
		return zero, fmt.Errorf("%w: %s %s: %v", ErrMalformedTrace, what, name, err)
	}
	return v, nil
}

func decodeList[U any](c codec, data []byte, decoders map[string]decodeFunc[U], what string) ([]U, error) {
	items, err := c.items(data)
	if err != nil {
		return nil, fmt.Errorf("%w: %s list: %v", ErrMalformedTrace, what, err)
	}
	out := make([]U, 0, len(items))
	for _, item := range items {
		v, err := decodeVariant(c, item, decoders, what)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}

func envelopes[U any](items []U, name func(U) string) []map[string]U {
	out := make([]map[string]U, len(items))
	for i, v := range items {
		out[i] = map[string]U{name(v): v}
	}
	return out
}

// --------------------------------------------------------------------------
// Records
// --------------------------------------------------------------------------

// MarshalAction encodes one record in the given format.
func MarshalAction(a Action, f Format) ([]byte, error) {
	return codecFor(f).marshal(map[string]Action{a.Type().String(): a})
}

// UnmarshalAction decodes one record. Failures wrap ErrMalformedTrace.
func UnmarshalAction(data []byte, f Format) (Action, error) {
	return decodeVariant(codecFor(f), data, actionDecoders, "action")
}

// CommandList is an ordered list of commands with a tagged wire form.
type CommandList []Command

func commandName(c Command) string { return c.Type().String() }

// MarshalJSON implements json.Marshaler.
func (l CommandList) MarshalJSON() ([]byte, error) {
	return jsonCodec.marshal(envelopes(l, commandName))
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *CommandList) UnmarshalJSON(data []byte) error {
	v, err := decodeList(jsonCodec, data, commandDecoders, "command")
	*l = v
	return err
}

// MarshalCBOR implements cbor.Marshaler.
func (l CommandList) MarshalCBOR() ([]byte, error) {
	return cborCodec.marshal(envelopes(l, commandName))
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (l *CommandList) UnmarshalCBOR(data []byte) error {
	v, err := decodeList(cborCodec, data, commandDecoders, "command")
	*l = v
	return err
}

// PassCommandList is an ordered list of pass commands with a tagged wire
// form.
type PassCommandList []PassCommand

func passCommandName(c PassCommand) string { return c.Type().String() }

// MarshalJSON implements json.Marshaler.
func (l PassCommandList) MarshalJSON() ([]byte, error) {
	return jsonCodec.marshal(envelopes(l, passCommandName))
}

// UnmarshalJSON implements json.Unmarshaler.
func (l *PassCommandList) UnmarshalJSON(data []byte) error {
	v, err := decodeList(jsonCodec, data, passCommandDecoders, "pass command")
	*l = v
	return err
}

// MarshalCBOR implements cbor.Marshaler.
func (l PassCommandList) MarshalCBOR() ([]byte, error) {
	return cborCodec.marshal(envelopes(l, passCommandName))
}

// UnmarshalCBOR implements cbor.Unmarshaler.
func (l *PassCommandList) UnmarshalCBOR(data []byte) error {
	v, err := decodeList(cborCodec, data, passCommandDecoders, "pass command")
	*l = v
	return err
}
