package halstream

import (
	"fmt"
	"sync"
	"sync/atomic"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/meshpass"
	"github.com/gogpu/meshpass/toon"
)

// MaxColorTargets is the maximum number of color targets of a pass.
const MaxColorTargets = 8

// TargetFormats are the attachment formats a pipeline renders to.
type TargetFormats struct {
	Color         [MaxColorTargets]gputypes.TextureFormat
	ColorCount    uint8
	Depth         gputypes.TextureFormat
	DepthReadOnly bool
}

// Colors returns the color formats in use.
func (f *TargetFormats) Colors() []gputypes.TextureFormat {
	return f.Color[:f.ColorCount]
}

// FormatsOf returns the formats of a target set.
func FormatsOf(ts *meshpass.RenderTargetSet) (TargetFormats, error) {
	var f TargetFormats
	if ts == nil {
		return f, nil
	}
	if len(ts.Color) > MaxColorTargets {
		return f, fmt.Errorf("%w: %d", ErrTooManyTargets, len(ts.Color))
	}
	for i, c := range ts.Color {
		f.Color[i] = c.Format
	}
	f.ColorCount = uint8(len(ts.Color))
	if ts.Depth != nil {
		f.Depth = ts.Depth.Format
		f.DepthReadOnly = ts.Depth.ReadOnly
	}
	return f, nil
}

// PipelineKey identifies a render pipeline. Equal keys share a pipeline.
type PipelineKey struct {
	Variant uint64
	State   meshpass.FixedFunctionState
	Targets TargetFormats
}

// PipelineCache caches render pipelines by PipelineKey.
//
// PipelineCache is safe for concurrent use. It uses RWMutex with
// double-check locking for efficient reads and safe writes.
type PipelineCache struct {
	device hal.Device

	mu        sync.RWMutex
	pipelines map[PipelineKey]hal.RenderPipeline

	hits   atomic.Uint64
	misses atomic.Uint64
}

// NewPipelineCache creates an empty cache creating pipelines on device.
func NewPipelineCache(device hal.Device) *PipelineCache {
	return &PipelineCache{
		device:    device,
		pipelines: make(map[PipelineKey]hal.RenderPipeline),
	}
}

// GetOrCreate returns the pipeline for key, creating it from the descriptor
// returned by build on a miss. build runs under the write lock.
func (c *PipelineCache) GetOrCreate(
	key PipelineKey,
	build func() (*hal.RenderPipelineDescriptor, error),
) (hal.RenderPipeline, error) {
	// Fast path: read lock
	c.mu.RLock()
	if p, ok := c.pipelines[key]; ok {
		c.mu.RUnlock()
		c.hits.Add(1)
		return p, nil
	}
	c.mu.RUnlock()

	// Slow path: write lock with double-check
	c.mu.Lock()
	defer c.mu.Unlock()
	if p, ok := c.pipelines[key]; ok {
		c.hits.Add(1)
		return p, nil
	}
	if c.device == nil {
		return nil, ErrNilDevice
	}

	desc, err := build()
	if err != nil {
		return nil, err
	}
	p, err := c.device.CreateRenderPipeline(desc)
	if err != nil {
		return nil, fmt.Errorf("halstream: create pipeline %s: %w", desc.Label, err)
	}
	c.pipelines[key] = p
	c.misses.Add(1)
	meshpass.Logger().Debug("halstream: pipeline created", "label", desc.Label, "count", len(c.pipelines))
	return p, nil
}

// Len returns the number of cached pipelines.
func (c *PipelineCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.pipelines)
}

// Stats returns cache hits and misses.
func (c *PipelineCache) Stats() (hits, misses uint64) {
	return c.hits.Load(), c.misses.Load()
}

// Destroy releases every cached pipeline.
func (c *PipelineCache) Destroy() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, p := range c.pipelines {
		c.device.DestroyRenderPipeline(p)
		delete(c.pipelines, k)
	}
}

// ShaderSource returns the SPIR-V of a shader module.
type ShaderSource func(module string) ([]uint32, error)

// BuiltinShaders serves the toon shader modules compiled from WGSL.
func BuiltinShaders(module string) ([]uint32, error) {
	all, err := toon.CompiledShaders()
	if err != nil {
		return nil, err
	}
	code, ok := all[module]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownShader, module)
	}
	return code, nil
}

// ShaderModules creates and caches shader modules by name.
type ShaderModules struct {
	device hal.Device
	source ShaderSource

	mu      sync.Mutex
	modules map[string]hal.ShaderModule
}

// NewShaderModules creates a module cache. A nil source serves the built-in
// modules.
func NewShaderModules(device hal.Device, source ShaderSource) *ShaderModules {
	if source == nil {
		source = BuiltinShaders
	}
	return &ShaderModules{device: device, source: source, modules: make(map[string]hal.ShaderModule)}
}

// Module returns the module named name, creating it on first use.
func (m *ShaderModules) Module(name string) (hal.ShaderModule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if mod, ok := m.modules[name]; ok {
		return mod, nil
	}
	code, err := m.source(name)
	if err != nil {
		return nil, err
	}
	mod, err := m.device.CreateShaderModule(&hal.ShaderModuleDescriptor{
		Label:  name,
		Source: hal.ShaderSource{SPIRV: code},
	})
	if err != nil {
		return nil, fmt.Errorf("halstream: create shader %s: %w", name, err)
	}
	m.modules[name] = mod
	return mod, nil
}

// Len returns the number of created modules.
func (m *ShaderModules) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.modules)
}

// Destroy releases every module.
func (m *ShaderModules) Destroy() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for name, mod := range m.modules {
		m.device.DestroyShaderModule(mod)
		delete(m.modules, name)
	}
}
