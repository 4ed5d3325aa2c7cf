package hub

import "fmt"

// Level is the position of a registry in the global lock order. A lock may
// only be taken while holding locks of strictly lower levels.
type Level uint8

// Lock order, ascending.
const (
	LevelRoot Level = iota
	LevelAdapter
	LevelDevice
	LevelSwapChain
	LevelPipelineLayout
	LevelBindGroupLayout
	LevelBindGroup
	LevelCommandBuffer
	LevelRenderBundle
	LevelComputePipeline
	LevelRenderPipeline
	LevelQuerySet
	LevelShaderModule
	LevelBuffer
	LevelTexture
	LevelTextureView
	LevelSampler
)

var levelNames = [...]string{
	LevelRoot:            "Root",
	LevelAdapter:         "Adapter",
	LevelDevice:          "Device",
	LevelSwapChain:       "SwapChain",
	LevelPipelineLayout:  "PipelineLayout",
	LevelBindGroupLayout: "BindGroupLayout",
	LevelBindGroup:       "BindGroup",
	LevelCommandBuffer:   "CommandBuffer",
	LevelRenderBundle:    "RenderBundle",
	LevelComputePipeline: "ComputePipeline",
	LevelRenderPipeline:  "RenderPipeline",
	LevelQuerySet:        "QuerySet",
	LevelShaderModule:    "ShaderModule",
	LevelBuffer:          "Buffer",
	LevelTexture:         "Texture",
	LevelTextureView:     "TextureView",
	LevelSampler:         "Sampler",
}

func (l Level) String() string {
	if int(l) < len(levelNames) {
		return levelNames[l]
	}
	return fmt.Sprintf("Level(%d)", uint8(l))
}

// Token proves which lock level the caller currently holds.
//
// Locking a registry consumes the token it was given and returns a child
// token for the registry's level. The parent becomes usable again once the
// guard is released. Every misuse is a programming error and panics:
// locking out of order, taking a second lock from a consumed token, or
// using a token whose guard was released.
//
// Tokens are not safe for concurrent use; each call chain starts from its
// own Root.
type Token struct {
	state *tokenState
}

type tokenState struct {
	level    Level
	consumed bool
	released bool
}

// Root returns a fresh token below every registry level.
func Root() Token {
	return Token{state: &tokenState{level: LevelRoot}}
}

// Level returns the lock level the token stands for.
func (t Token) Level() Level {
	if t.state == nil {
		return LevelRoot
	}
	return t.state.level
}

func (t Token) lock(level Level) Token {
	s := t.state
	if s == nil {
		panic("hub: zero Token; start from hub.Root()")
	}
	if s.released {
		panic(fmt.Sprintf("hub: %s token used after its guard was released", s.level))
	}
	if s.consumed {
		panic(fmt.Sprintf("hub: %s token already consumed by a held lock", s.level))
	}
	if level <= s.level {
		panic(fmt.Sprintf("hub: lock order violation: %s locked while holding %s", level, s.level))
	}
	s.consumed = true
	return Token{state: &tokenState{level: level}}
}

func (t Token) unlock(child Token) {
	c := child.state
	if c.released {
		panic(fmt.Sprintf("hub: %s guard released twice", c.level))
	}
	if c.consumed {
		panic(fmt.Sprintf("hub: %s guard released while a higher lock is held", c.level))
	}
	c.released = true
	t.state.consumed = false
}
