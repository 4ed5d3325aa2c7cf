// Package id defines typed, epoch-tagged resource identifiers.
//
// Every GPU object is addressed by a 64-bit value packing three fields:
//
//	bits  0..31  index    slot in the per-kind registry
//	bits 32..60  epoch    generation of the slot, bumped on every reuse
//	bits 61..63  backend  native API the object lives on
//
// The (index, epoch) pair is unique among live objects of one kind on one
// backend, so an id that outlives its object never resolves to whatever
// later occupies the same slot.
//
// The kind of object is carried in the Go type ([BufferID], [TextureID],
// ...) and has no runtime representation.
package id

import (
	"encoding/json"
	"fmt"
)

const (
	indexBits   = 32
	epochBits   = 29
	backendBits = 3

	epochShift   = indexBits
	backendShift = indexBits + epochBits

	// MaxEpoch is the largest epoch an id can carry.
	MaxEpoch = 1<<epochBits - 1

	indexMask   = 1<<indexBits - 1
	epochMask   = MaxEpoch
	backendMask = 1<<backendBits - 1
)

// RawID is an untyped packed identifier.
type RawID uint64

// Zip packs index, epoch and backend into a RawID. Epoch bits beyond
// [MaxEpoch] are discarded.
func Zip(index, epoch uint32, backend Backend) RawID {
	return RawID(uint64(index) |
		uint64(epoch&epochMask)<<epochShift |
		uint64(backend&backendMask)<<backendShift)
}

// Unzip splits r into its fields.
func (r RawID) Unzip() (index, epoch uint32, backend Backend) {
	return r.Index(), r.Epoch(), r.Backend()
}

// Index returns the registry slot.
func (r RawID) Index() uint32 { return uint32(uint64(r) & indexMask) }

// Epoch returns the slot generation.
func (r RawID) Epoch() uint32 { return uint32(uint64(r) >> epochShift & epochMask) }

// Backend returns the backend tag.
func (r RawID) Backend() Backend { return Backend(uint64(r) >> backendShift & backendMask) }

// String formats r as (index,epoch,Backend).
func (r RawID) String() string {
	return fmt.Sprintf("(%d,%d,%s)", r.Index(), r.Epoch(), r.Backend())
}

// Kind is implemented by the zero-size marker types that tag an [ID].
type Kind interface {
	KindName() string
}

// ID is a RawID tagged with the kind of object it addresses.
type ID[K Kind] RawID

// New packs index, epoch and backend into an ID of kind K.
func New[K Kind](index, epoch uint32, backend Backend) ID[K] {
	return ID[K](Zip(index, epoch, backend))
}

// Raw drops the kind.
func (i ID[K]) Raw() RawID { return RawID(i) }

// Unzip splits the id into its fields.
func (i ID[K]) Unzip() (index, epoch uint32, backend Backend) { return RawID(i).Unzip() }

// Index returns the registry slot.
func (i ID[K]) Index() uint32 { return RawID(i).Index() }

// Epoch returns the slot generation.
func (i ID[K]) Epoch() uint32 { return RawID(i).Epoch() }

// Backend returns the backend tag.
func (i ID[K]) Backend() Backend { return RawID(i).Backend() }

// Kind returns the name of the object kind.
func (i ID[K]) Kind() string {
	var k K
	return k.KindName()
}

// String formats the id as Kind(index,epoch,Backend).
func (i ID[K]) String() string {
	return i.Kind() + RawID(i).String()
}

// MarshalJSON encodes the id as [index, epoch, "Backend"].
func (i ID[K]) MarshalJSON() ([]byte, error) {
	b := i.Backend()
	if !b.Valid() {
		return nil, fmt.Errorf("id: cannot encode %s", i)
	}
	return fmt.Appendf(nil, "[%d,%d,%q]", i.Index(), i.Epoch(), b.String()), nil
}

// UnmarshalJSON decodes the [index, epoch, "Backend"] form.
func (i *ID[K]) UnmarshalJSON(data []byte) error {
	var parts [3]json.RawMessage
	if err := json.Unmarshal(data, &parts); err != nil {
		return fmt.Errorf("id: %s: %w", i.Kind(), err)
	}
	var (
		index, epoch uint32
		backend      Backend
	)
	if err := json.Unmarshal(parts[0], &index); err != nil {
		return fmt.Errorf("id: %s index: %w", i.Kind(), err)
	}
	if err := json.Unmarshal(parts[1], &epoch); err != nil {
		return fmt.Errorf("id: %s epoch: %w", i.Kind(), err)
	}
	if err := json.Unmarshal(parts[2], &backend); err != nil {
		return err
	}
	if epoch > MaxEpoch {
		return fmt.Errorf("id: %s epoch %d exceeds %d", i.Kind(), epoch, MaxEpoch)
	}
	*i = New[K](index, epoch, backend)
	return nil
}
