//go:build windows

package hub

import "github.com/gogpu/gpuplay/id"

func init() { compiled[id.Dx12] = true }
