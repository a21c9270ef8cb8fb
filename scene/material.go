package scene

import (
	"encoding/json"
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/qmuntal/gltf"

	"github.com/gogpu/meshpass"
	"github.com/gogpu/meshpass/toon"
)

type material struct {
	name      string
	features  meshpass.FeatureFlags
	overrides meshpass.RasterOverrides
	toon      toon.Params
	hasToon   bool
}

// extras is the "meshpass" object of a material's extras.
type extras struct {
	Features  []string   `json:"features"`
	Wireframe bool       `json:"wireframe"`
	Toon      *toonExtra `json:"toon"`
}

type toonExtra struct {
	OutlineThickness *float32    `json:"outlineThickness"`
	OutlineColor     *[4]float64 `json:"outlineColor"`
	Color            *[4]float64 `json:"color"`
	Shininess        *float32    `json:"shininess"`
}

func parseMaterial(m *gltf.Material) (material, error) {
	mat := material{
		name:      m.Name,
		overrides: meshpass.RasterOverrides{TwoSided: m.DoubleSided},
	}
	switch m.AlphaMode {
	case gltf.AlphaMask:
		mat.features |= meshpass.FeatureMasked
	case gltf.AlphaBlend:
		mat.features |= meshpass.FeatureTranslucent
	}

	ex, err := decodeExtras(m.Extras)
	if err != nil {
		return mat, err
	}
	if ex == nil {
		return mat, nil
	}
	for _, name := range ex.Features {
		f, ok := meshpass.ParseFeature(name)
		if !ok {
			return mat, fmt.Errorf("unknown feature %q", name)
		}
		mat.features |= f
	}
	mat.overrides.Wireframe = ex.Wireframe

	if mat.features.Has(meshpass.FeatureToonShading) {
		mat.toon = toon.DefaultParams
		mat.hasToon = true
		if pbr := m.PBRMetallicRoughness; pbr != nil && pbr.BaseColorFactor != nil {
			c := *pbr.BaseColorFactor
			mat.toon.Color = gputypes.Color{R: float64(c[0]), G: float64(c[1]), B: float64(c[2]), A: float64(c[3])}
		}
		if t := ex.Toon; t != nil {
			if t.OutlineThickness != nil {
				mat.toon.OutlineThickness = *t.OutlineThickness
			}
			if t.OutlineColor != nil {
				mat.toon.OutlineColor = color(*t.OutlineColor)
			}
			if t.Color != nil {
				mat.toon.Color = color(*t.Color)
			}
			if t.Shininess != nil {
				mat.toon.Shininess = *t.Shininess
			}
		}
	}
	return mat, nil
}

func color(c [4]float64) gputypes.Color {
	return gputypes.Color{R: c[0], G: c[1], B: c[2], A: c[3]}
}

// decodeExtras extracts the "meshpass" object from decoded glTF extras.
// Extras arrive as generic JSON values, so they are re-encoded and decoded
// into the typed form.
func decodeExtras(raw any) (*extras, error) {
	if raw == nil {
		return nil, nil
	}
	data, err := json.Marshal(raw)
	if err != nil {
		return nil, fmt.Errorf("extras: %w", err)
	}
	var wrapper struct {
		Meshpass *extras `json:"meshpass"`
	}
	if err := json.Unmarshal(data, &wrapper); err != nil {
		return nil, fmt.Errorf("extras: %w", err)
	}
	return wrapper.Meshpass, nil
}

func (s *Scene) material(id uint64) *material {
	if id == 0 || id > uint64(len(s.materials)) {
		return nil
	}
	return &s.materials[id-1]
}

// Features implements meshpass.MaterialHost.
func (s *Scene) Features(id uint64) meshpass.FeatureFlags {
	if m := s.material(id); m != nil {
		return m.features
	}
	return 0
}

// RasterOverrides implements meshpass.MaterialHost.
func (s *Scene) RasterOverrides(id uint64) meshpass.RasterOverrides {
	if m := s.material(id); m != nil {
		return m.overrides
	}
	return meshpass.RasterOverrides{}
}

// ToonParams implements toon.ParamSource.
func (s *Scene) ToonParams(id uint64) (toon.Params, bool) {
	if m := s.material(id); m != nil && m.hasToon {
		return m.toon, true
	}
	return toon.Params{}, false
}

// MaterialName returns the glTF name of a material.
func (s *Scene) MaterialName(id uint64) string {
	if m := s.material(id); m != nil {
		return m.name
	}
	return ""
}
