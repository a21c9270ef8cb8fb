package config

import (
	"fmt"

	"github.com/gogpu/meshpass"
	"github.com/gogpu/meshpass/toon"
)

func (p *Pass) builtin() (meshpass.ProcessorFactory, bool) {
	if p.Vertex != "" || p.Fragment != "" {
		return nil, false
	}
	switch meshpass.PassID(p.ID) {
	case toon.OutlinePassID:
		return toon.OutlinePass, true
	case toon.ShadedPassID:
		return toon.ShadedPass, true
	}
	return nil, false
}

// config builds the PassConfig of a custom pass. Depth compare defaults to
// near-or-equal and depth write to true.
func (p *Pass) config(env meshpass.PassEnv) (meshpass.PassConfig, error) {
	if f, ok := p.builtin(); ok {
		return f(env), nil
	}
	if p.Vertex == "" || p.Fragment == "" {
		return meshpass.PassConfig{}, fmt.Errorf("%w: pass %q needs vertex and fragment shaders", ErrInvalid, p.ID)
	}
	cfg := meshpass.PassConfig{
		ID:      meshpass.PassID(p.ID),
		Name:    p.Name,
		Shaders: meshpass.ShaderPair{Vertex: p.Vertex, Fragment: p.Fragment},
		Depth: meshpass.DepthMode{
			Compare: meshpass.DepthNearOrEqual(env.ReversedZ),
			Write:   true,
		},
	}
	if p.Feature != "" {
		f, ok := meshpass.ParseFeature(p.Feature)
		if !ok {
			return cfg, fmt.Errorf("%w: pass %q: unknown feature %q", ErrInvalid, p.ID, p.Feature)
		}
		cfg.RequiredFeature = f
	}
	if p.Compare != "" {
		cmp, err := ParseCompare(p.Compare)
		if err != nil {
			return cfg, fmt.Errorf("pass %q: %w", p.ID, err)
		}
		cfg.Depth.Compare = cmp
	}
	if p.Write != nil {
		cfg.Depth.Write = *p.Write
	}
	switch p.Blend {
	case "", "none":
	case "additive":
		b := meshpass.AdditiveBlend()
		cfg.Blend = &b
	default:
		return cfg, fmt.Errorf("%w: pass %q: unknown blend %q", ErrInvalid, p.ID, p.Blend)
	}
	return cfg, nil
}

// Register adds the configured passes to reg in file order and their shader
// variants to table for every configured layout. Built-in toon passes get the
// toon permutation filter; custom passes accept every material carrying
// their feature.
func (c *Config) Register(reg *meshpass.Registry, table *meshpass.ShaderTable) error {
	passes := c.Passes
	if len(passes) == 0 {
		passes = []Pass{{ID: string(toon.OutlinePassID)}, {ID: string(toon.ShadedPassID)}}
	}
	layouts := c.VertexLayouts()
	for i := range passes {
		p := passes[i]
		id := meshpass.PassID(p.ID)
		if f, ok := p.builtin(); ok {
			if err := reg.RegisterPass(id, f); err != nil {
				return err
			}
			module := toon.OutlineShader
			if id == toon.ShadedPassID {
				module = toon.ShadedShader
			}
			for _, l := range layouts {
				table.Add(id, l, toon.Shaders(module))
			}
			table.SetFilter(id, toon.ShouldCompile)
			continue
		}

		if _, err := p.config(reg.Env()); err != nil {
			return err
		}
		factory := func(env meshpass.PassEnv) meshpass.PassConfig {
			cfg, _ := p.config(env)
			return cfg
		}
		if err := reg.RegisterPass(id, factory); err != nil {
			return err
		}
		for _, l := range layouts {
			table.Add(id, l, meshpass.ShaderPair{Vertex: p.Vertex, Fragment: p.Fragment})
		}
	}
	meshpass.Logger().Info("config: passes registered", "passes", len(passes), "layouts", len(layouts))
	return nil
}
