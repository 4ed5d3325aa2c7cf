package id

import (
	"encoding/json"
	"fmt"
	"strings"
)

// Backend identifies the native graphics API a resource lives on.
// It is packed into the top bits of every resource id.
type Backend uint8

// Backend tags. The numeric values are part of the id layout and of the
// binary trace format and must not change.
const (
	Empty Backend = iota
	Vulkan
	Metal
	Dx12
	Dx11
)

// backendCount is the number of defined backend tags.
const backendCount = int(Dx11) + 1

var backendNames = [...]string{
	Empty:  "Empty",
	Vulkan: "Vulkan",
	Metal:  "Metal",
	Dx12:   "Dx12",
	Dx11:   "Dx11",
}

// String returns the backend name.
func (b Backend) String() string {
	if int(b) < len(backendNames) {
		return backendNames[b]
	}
	return fmt.Sprintf("Backend(%d)", uint8(b))
}

// Valid reports whether b is a defined backend tag.
func (b Backend) Valid() bool {
	return int(b) < backendCount
}

// ParseBackend converts a backend name (case-insensitive) to its tag.
func ParseBackend(s string) (Backend, error) {
	for i, name := range backendNames {
		if strings.EqualFold(name, s) {
			return Backend(i), nil
		}
	}
	return Empty, fmt.Errorf("id: unknown backend %q", s)
}

// MarshalJSON encodes the backend by name.
func (b Backend) MarshalJSON() ([]byte, error) {
	if !b.Valid() {
		return nil, fmt.Errorf("id: cannot encode %s", b)
	}
	return json.Marshal(b.String())
}

// UnmarshalJSON decodes a backend name.
func (b *Backend) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("id: backend: %w", err)
	}
	v, err := ParseBackend(s)
	if err != nil {
		return err
	}
	*b = v
	return nil
}
