package meshpass

import (
	"errors"
	"fmt"
	"sync"

	"github.com/gogpu/gputypes"
)

type testMaterial struct {
	features  FeatureFlags
	overrides RasterOverrides
}

type testMaterials map[uint64]testMaterial

func (m testMaterials) Features(id uint64) FeatureFlags           { return m[id].features }
func (m testMaterials) RasterOverrides(id uint64) RasterOverrides { return m[id].overrides }

type testMesh struct {
	layout   VertexLayout
	elements int
}

type testGeometry map[uint64]testMesh

func (g testGeometry) VertexLayout(id uint64) VertexLayout { return g[id].layout }
func (g testGeometry) ElementCount(id uint64) int          { return g[id].elements }

const (
	matToon uint64 = iota + 1
	matToonTwoSided
	matPlain
	matToonWire
)

var testMats = testMaterials{
	matToon:         {features: FeatureToonShading},
	matToonTwoSided: {features: FeatureToonShading, overrides: RasterOverrides{TwoSided: true}},
	matPlain:        {},
	matToonWire:     {features: FeatureToonShading | FeatureMasked, overrides: RasterOverrides{Wireframe: true}},
}

const (
	meshStatic uint64 = iota + 1
	meshSkinned
	meshMulti
)

var testMeshes = testGeometry{
	meshStatic:  {layout: "static", elements: 1},
	meshSkinned: {layout: "skinned", elements: 1},
	meshMulti:   {layout: "static", elements: 3},
}

func testItem(mesh, mat uint64, stable uint64) DrawableItem {
	it := DrawableItem{
		Geometry:    Geometry{ID: mesh, Host: testMeshes},
		ElementMask: ^uint64(0),
		InstanceID:  stable * 10,
		StableIndex: stable,
	}
	if mat != 0 {
		it.Material = Material{ID: mat, Host: testMats}
	}
	return it
}

const testPass PassID = "test-shaded"

func testConfig() PassConfig {
	return PassConfig{
		ID:              testPass,
		Name:            "Test Shaded",
		RequiredFeature: FeatureToonShading,
		Depth:           DepthMode{Compare: gputypes.CompareFunctionLessEqual, Write: true},
		Shaders:         ShaderPair{Vertex: "vs_main", Fragment: "fs_main"},
		Bind: func(it DrawableItem) Bindings {
			return NewBindings(Float("Index", float32(it.StableIndex)))
		},
	}
}

func testTable() *ShaderTable {
	t := NewShaderTable()
	t.Add(testPass, "static", ShaderPair{Vertex: "vs_main", Fragment: "fs_main"})
	t.SetFilter(testPass, func(_ PassID, f FeatureFlags, _ VertexLayout) bool {
		return f.Has(FeatureToonShading)
	})
	return t
}

func testTargets() *RenderTargetSet {
	return &RenderTargetSet{
		Label: "main",
		Color: []ColorTarget{{Handle: 1, Format: gputypes.TextureFormatRGBA8Unorm, Load: gputypes.LoadOpLoad}},
		Depth: &DepthTarget{Handle: 2, Format: gputypes.TextureFormatDepth32Float, Load: gputypes.LoadOpLoad},
	}
}

// callStream records every Stream call as a string.
type callStream struct {
	mu    sync.Mutex
	calls []string

	failBindings bool
}

func (s *callStream) add(format string, args ...any) {
	s.mu.Lock()
	s.calls = append(s.calls, fmt.Sprintf(format, args...))
	s.mu.Unlock()
}

func (s *callStream) BeginPass(label string, _ *RenderTargetSet) error {
	s.add("begin %s", label)
	return nil
}

func (s *callStream) SetPipeline(v ShaderVariantKey, st FixedFunctionState) error {
	s.add("pipeline %x %s", v.ID, st)
	return nil
}

func (s *callStream) SetBindings(b Bindings) error {
	if s.failBindings {
		return errors.New("upload failed")
	}
	s.add("bind %s", b)
	return nil
}

func (s *callStream) SetViewport(r Rect) error {
	s.add("viewport %s", r)
	return nil
}

func (s *callStream) DrawElement(g Geometry, el int, inst uint64) error {
	s.add("draw %d/%d #%d", g.ID, el, inst)
	return nil
}

func (s *callStream) DrawFullscreen() error {
	s.add("fullscreen")
	return nil
}

func (s *callStream) EndPass() error {
	s.add("end")
	return nil
}

func (s *callStream) count(prefix string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if len(c) >= len(prefix) && c[:len(prefix)] == prefix {
			n++
		}
	}
	return n
}

func (s *callStream) snapshot() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, len(s.calls))
	copy(out, s.calls)
	return out
}
