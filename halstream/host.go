package halstream

import (
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/meshpass"
)

// TextureViews resolves texture handles to views.
type TextureViews interface {
	TextureView(handle uint64) (hal.TextureView, bool)
}

// ElementDraw is everything needed to draw one geometry element.
// A nil Index buffer selects a non-indexed draw of VertexCount vertices.
type ElementDraw struct {
	Vertex        []hal.Buffer
	Index         hal.Buffer
	IndexFormat   gputypes.IndexFormat
	IndexCount    uint32
	FirstIndex    uint32
	BaseVertex    int32
	VertexCount   uint32
	FirstVertex   uint32
	FirstInstance uint32
}

// GeometrySource resolves a geometry element to buffers. The instance is the
// opaque id carried by the command.
type GeometrySource interface {
	Element(g meshpass.Geometry, element int, instance uint64) (ElementDraw, error)
}

// BindingUploader turns the shader parameters of a draw into bind groups,
// bound at indices 0..n-1.
type BindingUploader interface {
	Upload(v meshpass.ShaderVariantKey, b meshpass.Bindings) ([]hal.BindGroup, error)
}

// PipelineLayouts returns the pipeline layout of a shader variant. A nil
// layout lets the backend derive one.
type PipelineLayouts interface {
	PipelineLayout(v meshpass.ShaderVariantKey) (hal.PipelineLayout, error)
}

// Host is the set of host services a Stream draws with.
type Host struct {
	Textures TextureViews
	Geometry GeometrySource
	Bindings BindingUploader
	Layouts  PipelineLayouts
}

// TextureMap is a TextureViews backed by a map. It is safe for concurrent use.
type TextureMap struct {
	mu    sync.RWMutex
	views map[uint64]hal.TextureView
}

// NewTextureMap creates an empty map.
func NewTextureMap() *TextureMap {
	return &TextureMap{views: make(map[uint64]hal.TextureView)}
}

// Set binds handle to view.
func (m *TextureMap) Set(handle uint64, view hal.TextureView) {
	m.mu.Lock()
	m.views[handle] = view
	m.mu.Unlock()
}

// Delete removes handle.
func (m *TextureMap) Delete(handle uint64) {
	m.mu.Lock()
	delete(m.views, handle)
	m.mu.Unlock()
}

// TextureView implements TextureViews.
func (m *TextureMap) TextureView(handle uint64) (hal.TextureView, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.views[handle]
	return v, ok
}

func lookupView(t TextureViews, handle uint64) (hal.TextureView, error) {
	if t == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTexture, handle)
	}
	v, ok := t.TextureView(handle)
	if !ok || v == nil {
		return nil, fmt.Errorf("%w: %d", ErrUnknownTexture, handle)
	}
	return v, nil
}
