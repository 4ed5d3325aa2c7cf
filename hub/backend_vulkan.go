//go:build !darwin && !ios

package hub

import "github.com/gogpu/gpuplay/id"

func init() { compiled[id.Vulkan] = true }
