//go:build nogpu

package halbridge

import (
	"fmt"

	"github.com/gogpu/gpuplay/backend"
)

// Vulkan returns a factory that always fails: GPU backends are compiled
// out of nogpu builds.
func Vulkan() backend.Factory {
	return func() (backend.Adapter, error) {
		return nil, fmt.Errorf("%w: vulkan in a nogpu build", ErrUnsupported)
	}
}
