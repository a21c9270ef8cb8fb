package config

import (
	"fmt"
	"slices"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"
	"gonum.org/v1/gonum/mat"

	"github.com/gogpu/meshpass"
	"github.com/gogpu/meshpass/toon"
)

func (r Rect) rect() meshpass.Rect {
	return meshpass.Rect{X: r.X, Y: r.Y, Width: r.Width, Height: r.Height}
}

func (v *View) targets() (*meshpass.RenderTargetSet, error) {
	ts := &meshpass.RenderTargetSet{Label: v.Label, Viewport: v.Viewport.rect()}
	if ts.Label == "" {
		ts.Label = fmt.Sprintf("view %d", v.ID)
	}
	for i, c := range v.Color {
		format, err := ParseTextureFormat(c.Format)
		if err != nil {
			return nil, fmt.Errorf("view %d color %d: %w", v.ID, i, err)
		}
		load, err := ParseLoadOp(c.Load)
		if err != nil {
			return nil, fmt.Errorf("view %d color %d: %w", v.ID, i, err)
		}
		ts.Color = append(ts.Color, meshpass.ColorTarget{
			Handle: c.Handle,
			Format: format,
			Load:   load,
			Clear:  gputypes.Color{R: c.Clear[0], G: c.Clear[1], B: c.Clear[2], A: c.Clear[3]},
		})
	}
	if d := v.Depth; d != nil {
		format, err := ParseTextureFormat(d.Format)
		if err != nil {
			return nil, fmt.Errorf("view %d depth: %w", v.ID, err)
		}
		if !format.HasDepth() {
			return nil, fmt.Errorf("%w: view %d depth: %s has no depth aspect", ErrInvalid, v.ID, format)
		}
		load, err := ParseLoadOp(d.Load)
		if err != nil {
			return nil, fmt.Errorf("view %d depth: %w", v.ID, err)
		}
		ts.Depth = &meshpass.DepthTarget{
			Handle:     d.Handle,
			Format:     format,
			Load:       load,
			ClearDepth: d.Clear,
			ReadOnly:   d.ReadOnly,
		}
	}
	return ts, nil
}

func (v *View) gbuffer() (toon.GBuffer, error) {
	if len(v.GBuffer) == 0 {
		return nil, nil
	}
	gb := make(toon.GBuffer, len(v.GBuffer))
	for slot, t := range v.GBuffer {
		if !slices.Contains(toon.RequiredTextures, slot) && !slices.Contains(toon.OptionalTextures, slot) {
			return nil, fmt.Errorf("%w: view %d: unknown G-buffer slot %q", ErrInvalid, v.ID, slot)
		}
		format, err := ParseTextureFormat(t.Format)
		if err != nil {
			return nil, fmt.Errorf("view %d %s: %w", v.ID, slot, err)
		}
		gb[slot] = toon.GBufferTexture{Handle: t.Handle, Format: format}
	}
	return gb, nil
}

var identity = f32.Mat4{
	1, 0, 0, 0,
	0, 1, 0, 0,
	0, 0, 1, 0,
	0, 0, 0, 1,
}

func invert(m f32.Mat4) (f32.Mat4, error) {
	data := make([]float64, len(m))
	for i, x := range m {
		data[i] = float64(x)
	}
	var inv mat.Dense
	if err := inv.Inverse(mat.NewDense(4, 4, data)); err != nil {
		return f32.Mat4{}, err
	}
	var out f32.Mat4
	for r := range 4 {
		for c, x := range inv.RawRowView(r) {
			out[r*4+c] = float32(x)
		}
	}
	return out, nil
}

// uniforms returns the view constants shared by every built-in shader.
func (v *View) uniforms() (toon.ViewUniforms, error) {
	vp := v.Viewport.rect()
	// xy size, zw inverse size
	size := f32.Vec4{float32(vp.Width), float32(vp.Height)}
	if !vp.Empty() {
		size[2], size[3] = 1/size[0], 1/size[1]
	}
	u := toon.ViewUniforms{
		ViewProj:       identity,
		InvViewProj:    identity,
		CameraPosition: f32.Vec4{v.Camera[0], v.Camera[1], v.Camera[2], 1},
		ViewportSize:   size,
	}
	if v.ViewProj != nil {
		inv, err := invert(f32.Mat4(*v.ViewProj))
		if err != nil {
			return toon.ViewUniforms{}, fmt.Errorf("%w: view %d: viewProj: %w", ErrInvalid, v.ID, err)
		}
		u.ViewProj, u.InvViewProj = f32.Mat4(*v.ViewProj), inv
	}
	return u, nil
}

const degrees = math32.Pi / 180

func (l *Light) light() (toon.Light, error) {
	kind, ok := toon.ParseLightKind(l.Kind)
	if !ok {
		return toon.Light{}, fmt.Errorf("%w: light %q: unknown kind %q", ErrInvalid, l.Name, l.Kind)
	}
	return toon.Light{
		Name:            l.Name,
		Kind:            kind,
		Position:        f32.Vec3(l.Position),
		Direction:       f32.Vec3(l.Direction),
		Color:           f32.Vec3(l.Color),
		Intensity:       l.Intensity,
		Radius:          l.Radius,
		FalloffExponent: l.Falloff,
		InnerCone:       l.InnerCone * degrees,
		OuterCone:       l.OuterCone * degrees,
	}, nil
}

// FrameViews returns the frame views. stream supplies the stream each view
// renders to. Every view carries its constants as meshpass.View.Params.
func (c *Config) FrameViews(stream func(id meshpass.ViewID) meshpass.Stream) ([]meshpass.View, error) {
	views := make([]meshpass.View, 0, len(c.Views))
	for i := range c.Views {
		v := &c.Views[i]
		ts, err := v.targets()
		if err != nil {
			return nil, err
		}
		u, err := v.uniforms()
		if err != nil {
			return nil, err
		}
		id := meshpass.ViewID(v.ID)
		views = append(views, meshpass.View{
			ID:      id,
			Stream:  stream(id),
			Targets: ts,
			Params:  u.Bindings(),
			Hidden:  v.Hidden,
		})
	}
	return views, nil
}

// LightSet is the toon.LightSource described by a configuration.
type LightSet struct {
	lights map[meshpass.ViewID][]toon.Light
	inputs map[meshpass.ViewID]toon.LightInputs
}

var _ toon.LightSource = (*LightSet)(nil)

// LightSet builds the light source of the toon lighting pass. Views without
// a G-buffer get no lighting inputs; their lights are reported as skipped.
func (c *Config) LightSet() (*LightSet, error) {
	all := make([]toon.Light, 0, len(c.Lights))
	byName := make(map[string]toon.Light, len(c.Lights))
	for i := range c.Lights {
		l, err := c.Lights[i].light()
		if err != nil {
			return nil, err
		}
		all = append(all, l)
		byName[l.Name] = l
	}

	s := &LightSet{
		lights: make(map[meshpass.ViewID][]toon.Light),
		inputs: make(map[meshpass.ViewID]toon.LightInputs),
	}
	for i := range c.Views {
		v := &c.Views[i]
		id := meshpass.ViewID(v.ID)
		if len(v.Lights) == 0 {
			s.lights[id] = all
		} else {
			for _, name := range v.Lights {
				l, ok := byName[name]
				if !ok {
					return nil, fmt.Errorf("%w: view %d: unknown light %q", ErrInvalid, v.ID, name)
				}
				s.lights[id] = append(s.lights[id], l)
			}
		}

		gb, err := v.gbuffer()
		if err != nil {
			return nil, err
		}
		if gb == nil {
			continue
		}
		u, err := v.uniforms()
		if err != nil {
			return nil, err
		}
		s.inputs[id] = toon.LightInputs{
			View:     u,
			GBuffer:  gb,
			Viewport: v.Viewport.rect(),
		}
	}
	return s, nil
}

// Lights implements toon.LightSource.
func (s *LightSet) Lights(view meshpass.ViewID) []toon.Light {
	return s.lights[view]
}

// LightInputs implements toon.LightSource.
func (s *LightSet) LightInputs(view meshpass.ViewID) (toon.LightInputs, bool) {
	in, ok := s.inputs[view]
	return in, ok
}
