// Package toon implements stylized toon rendering on top of meshpass: an
// outline pass, a shaded pass and a per-light lighting pass.
//
// The outline and shaded passes are plain meshpass.PassConfig values that
// only accept materials declaring meshpass.FeatureToonShading. Per-material
// toon parameters come from a MaterialHost that also implements ParamSource.
// The mesh shaders expect the view constants, ViewUniforms.Bindings, as the
// meshpass.View.Params of every view.
package toon

import (
	"github.com/gogpu/gputypes"

	"github.com/gogpu/meshpass"
)

// Pass identifiers.
const (
	OutlinePassID meshpass.PassID = "toon-outline"
	ShadedPassID  meshpass.PassID = "toon-shaded"
)

// Shader parameter names bound by the passes.
const (
	ParamOutlineThickness = "ToonOutlineThickness"
	ParamOutlineColor     = "ToonOutlineColor"
	ParamColor            = "ToonColor"
	ParamShininess        = "ToonShininess"
)

// Params are the toon constants of one material.
type Params struct {
	OutlineThickness float32
	OutlineColor     gputypes.Color
	Color            gputypes.Color
	Shininess        float32
}

// DefaultParams is used for materials whose host has no toon parameters.
var DefaultParams = Params{
	OutlineThickness: 0.01,
	OutlineColor:     gputypes.Color{A: 1},
	Color:            gputypes.Color{R: 1, G: 1, B: 1, A: 1},
	Shininess:        32,
}

// ParamSource is implemented by material hosts that carry toon parameters.
type ParamSource interface {
	ToonParams(material uint64) (Params, bool)
}

// MaterialParams returns the toon parameters of mat, or DefaultParams.
func MaterialParams(mat meshpass.Material) Params {
	if src, ok := mat.Host.(ParamSource); ok {
		if p, ok := src.ToonParams(mat.ID); ok {
			return p
		}
	}
	return DefaultParams
}

// Shaders returns the vertex/fragment pair of a built-in module.
func Shaders(module string) meshpass.ShaderPair {
	return meshpass.ShaderPair{
		Vertex:   module + ":" + VertexEntry,
		Fragment: module + ":" + FragmentEntry,
	}
}

// OutlinePass returns the outline pass. It writes depth and always passes
// the depth test; the outline shape is produced by the vertex shader.
func OutlinePass(meshpass.PassEnv) meshpass.PassConfig {
	return meshpass.PassConfig{
		ID:              OutlinePassID,
		Name:            "Toon Outline",
		RequiredFeature: meshpass.FeatureToonShading,
		Depth: meshpass.DepthMode{
			Compare: gputypes.CompareFunctionAlways,
			Write:   true,
		},
		Shaders: Shaders(OutlineShader),
		Bind:    bindOutline,
	}
}

// ShadedPass returns the shaded pass. It tests near-or-equal against the
// depth buffer and writes depth.
func ShadedPass(env meshpass.PassEnv) meshpass.PassConfig {
	return meshpass.PassConfig{
		ID:              ShadedPassID,
		Name:            "Toon Shaded",
		RequiredFeature: meshpass.FeatureToonShading,
		Depth: meshpass.DepthMode{
			Compare: meshpass.DepthNearOrEqual(env.ReversedZ),
			Write:   true,
		},
		Shaders: Shaders(ShadedShader),
		Bind:    bindShaded,
	}
}

func bindOutline(it meshpass.DrawableItem) meshpass.Bindings {
	p := MaterialParams(it.Material)
	return meshpass.NewBindings(
		meshpass.Float(ParamOutlineThickness, p.OutlineThickness),
		meshpass.ColorParam(ParamOutlineColor, p.OutlineColor),
	)
}

func bindShaded(it meshpass.DrawableItem) meshpass.Bindings {
	p := MaterialParams(it.Material)
	return meshpass.NewBindings(
		meshpass.ColorParam(ParamColor, p.Color),
		meshpass.Float(ParamShininess, p.Shininess),
	)
}

// ShouldCompile reports whether a toon variant exists for a material. Only
// materials declaring toon shading get one.
func ShouldCompile(_ meshpass.PassID, features meshpass.FeatureFlags, _ meshpass.VertexLayout) bool {
	return features.Has(meshpass.FeatureToonShading)
}

// NewShaderTable returns a table with toon variants of both mesh passes for
// every layout.
func NewShaderTable(layouts ...meshpass.VertexLayout) *meshpass.ShaderTable {
	t := meshpass.NewShaderTable()
	AddVariants(t, layouts...)
	return t
}

// AddVariants adds the toon variants of both mesh passes for every layout to
// t and installs the toon permutation filter.
func AddVariants(t *meshpass.ShaderTable, layouts ...meshpass.VertexLayout) {
	for _, pass := range []struct {
		id     meshpass.PassID
		module string
	}{
		{OutlinePassID, OutlineShader},
		{ShadedPassID, ShadedShader},
	} {
		for _, l := range layouts {
			t.Add(pass.id, l, Shaders(pass.module))
		}
		t.SetFilter(pass.id, ShouldCompile)
	}
}

// Register adds the outline and shaded passes to reg, outline first.
func Register(reg *meshpass.Registry) error {
	if err := reg.RegisterPass(OutlinePassID, OutlinePass); err != nil {
		return err
	}
	return reg.RegisterPass(ShadedPassID, ShadedPass)
}
