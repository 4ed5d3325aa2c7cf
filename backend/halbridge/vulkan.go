//go:build !nogpu

package halbridge

import (
	"errors"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	_ "github.com/gogpu/wgpu/hal/vulkan" // register the Vulkan HAL backend

	"github.com/gogpu/gpuplay/backend"
	"github.com/gogpu/gpuplay/id"
)

// Vulkan returns a factory for the Vulkan HAL backend.
func Vulkan() backend.Factory {
	return NewFactory(id.Vulkan, func() (hal.Instance, error) {
		b, ok := hal.GetBackend(gputypes.BackendVulkan)
		if !ok {
			return nil, errors.New("vulkan backend not available")
		}
		return b.CreateInstance(&hal.InstanceDescriptor{Flags: 0})
	})
}
