package meshpass

import (
	"math/bits"
	"strings"
)

// PassID names a registered pass, e.g. "toon-outline".
type PassID string

// ViewID identifies one view (camera) of a frame.
type ViewID uint32

// VertexLayout names the vertex input layout of a piece of geometry
// ("static", "skinned", ...). Shader variants are compiled per layout.
type VertexLayout string

// FeatureFlags is the set of features a material declares support for.
// Passes accept only materials that declare their required feature.
type FeatureFlags uint32

const (
	// FeatureToonShading marks materials rendered with stylized toon shading.
	FeatureToonShading FeatureFlags = 1 << iota
	// FeatureMasked marks alpha-masked materials.
	FeatureMasked
	// FeatureTranslucent marks translucent materials.
	FeatureTranslucent
)

var featureNames = [...]string{"toon", "masked", "translucent"}

// Has reports whether every flag in want is set.
func (f FeatureFlags) Has(want FeatureFlags) bool {
	return f&want == want
}

// String returns the flag names joined by "|".
func (f FeatureFlags) String() string {
	if f == 0 {
		return "none"
	}
	var names []string
	for i, name := range featureNames {
		if f&(1<<i) != 0 {
			names = append(names, name)
		}
	}
	if len(names) == 0 {
		return "unknown"
	}
	return strings.Join(names, "|")
}

// ParseFeature returns the flag with the given name.
func ParseFeature(name string) (FeatureFlags, bool) {
	for i, n := range featureNames {
		if n == name {
			return 1 << i, true
		}
	}
	return 0, false
}

// RasterOverrides are the per-material flags that modify a pass' fixed
// function state.
type RasterOverrides struct {
	Wireframe bool
	TwoSided  bool
}

// MaterialHost is the material system owning material handles.
type MaterialHost interface {
	Features(id uint64) FeatureFlags
	RasterOverrides(id uint64) RasterOverrides
}

// GeometryHost is the scene system owning geometry handles.
type GeometryHost interface {
	VertexLayout(id uint64) VertexLayout
	ElementCount(id uint64) int
}

// Material is an opaque handle to a material owned by a MaterialHost.
// The zero value is the nil material.
type Material struct {
	ID   uint64
	Host MaterialHost
}

// IsNil reports whether m references no material.
func (m Material) IsNil() bool { return m.Host == nil }

// Features returns the material's feature flags, or 0 for the nil material.
func (m Material) Features() FeatureFlags {
	if m.Host == nil {
		return 0
	}
	return m.Host.Features(m.ID)
}

// RasterOverrides returns the material's fill/cull overrides.
func (m Material) RasterOverrides() RasterOverrides {
	if m.Host == nil {
		return RasterOverrides{}
	}
	return m.Host.RasterOverrides(m.ID)
}

// Geometry is an opaque handle to renderable geometry owned by a GeometryHost.
type Geometry struct {
	ID   uint64
	Host GeometryHost
}

// VertexLayout returns the geometry's vertex layout, or "" without a host.
func (g Geometry) VertexLayout() VertexLayout {
	if g.Host == nil {
		return ""
	}
	return g.Host.VertexLayout(g.ID)
}

// ElementCount returns the number of sub-elements of the geometry.
func (g Geometry) ElementCount() int {
	if g.Host == nil {
		return 0
	}
	return g.Host.ElementCount(g.ID)
}

// MaxElements is the number of elements addressable by an element mask.
const MaxElements = 64

// DrawableItem is one piece of geometry with the material it is rendered
// with. Items are produced fresh every frame by the scene and are never
// retained by this package.
type DrawableItem struct {
	Geometry Geometry
	Material Material

	// ElementMask selects which sub-elements of the geometry are drawn.
	ElementMask uint64

	// InstanceID is an opaque per-instance identifier passed through to draws.
	InstanceID uint64

	// StableIndex is the scene-stable index of the item. It breaks sort ties
	// so output order does not depend on submission order.
	StableIndex uint64
}

// Elements returns the indices of the selected elements that exist on the
// item's geometry, in ascending order.
func (it DrawableItem) Elements() []int {
	n := it.Geometry.ElementCount()
	if n > MaxElements {
		n = MaxElements
	}
	mask := it.ElementMask
	if n < MaxElements {
		mask &= (1 << n) - 1
	}
	out := make([]int, 0, bits.OnesCount64(mask))
	for mask != 0 {
		i := bits.TrailingZeros64(mask)
		out = append(out, i)
		mask &^= 1 << i
	}
	return out
}
