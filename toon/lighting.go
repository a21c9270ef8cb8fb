package toon

import (
	"errors"
	"fmt"

	"github.com/chewxy/math32"
	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/meshpass"
)

// LightPassID identifies the per-light lighting pass in logs and traces.
const LightPassID meshpass.PassID = "toon-lighting"

// LightLayout is the vertex layout of the full-screen light geometry.
const LightLayout meshpass.VertexLayout = "fullscreen"

// Texture slots of the lighting pass.
const (
	TexSceneColor       = "SceneColor"
	TexGBufferA         = "GBufferA"
	TexGBufferB         = "GBufferB"
	TexSceneDepth       = "SceneDepth"
	TexLightAttenuation = "LightAttenuation"
	TexScreenShadowMask = "ScreenShadowMask"
)

// RequiredTextures must be present in a GBuffer for any light to render.
var RequiredTextures = []string{TexSceneColor, TexGBufferA, TexGBufferB, TexSceneDepth}

// OptionalTextures are bound to the host default (handle 0) when absent.
var OptionalTextures = []string{TexLightAttenuation, TexScreenShadowMask}

// ErrInvalidTransition is returned when a LightPass step is called out of order.
var ErrInvalidTransition = errors.New("toon: invalid light pass transition")

// LightKind is the shape of a light.
type LightKind uint8

const (
	// Directional lights have a direction and no position.
	Directional LightKind = iota
	// Point lights radiate from a position up to a radius.
	Point
	// Spot lights are point lights restricted to a cone.
	Spot
)

var lightKindNames = [...]string{"directional", "point", "spot"}

// String returns the kind name.
func (k LightKind) String() string {
	if int(k) < len(lightKindNames) {
		return lightKindNames[k]
	}
	return fmt.Sprintf("LightKind(%d)", k)
}

// ParseLightKind returns the kind with the given name.
func ParseLightKind(name string) (LightKind, bool) {
	for i, n := range lightKindNames {
		if n == name {
			return LightKind(i), true
		}
	}
	return 0, false
}

// Light is one visible light of a view.
type Light struct {
	Name      string
	Kind      LightKind
	Position  f32.Vec3
	Direction f32.Vec3
	Color     f32.Vec3
	Intensity float32

	// Radius bounds point and spot lights.
	Radius float32

	// FalloffExponent shapes distance attenuation. Zero means 1.
	FalloffExponent float32

	// InnerCone and OuterCone are spot half-angles in radians.
	InnerCone float32
	OuterCone float32
}

// Radial reports whether the light has a position.
func (l *Light) Radial() bool { return l.Kind != Directional }

// LightUniforms is the GPU layout of a light.
//
//	Position:  xyz position, w inverse radius (0 for directional lights)
//	Color:     rgb color * intensity, w falloff exponent
//	Direction: xyz normalized direction, w 1 for radial lights
//	Spot:      x cos(outer), y 1 / (cos(inner) - cos(outer))
type LightUniforms struct {
	Position  f32.Vec4
	Color     f32.Vec4
	Direction f32.Vec4
	Spot      f32.Vec4
}

// Uniforms computes the shader constants of l.
func (l *Light) Uniforms() (LightUniforms, error) {
	var u LightUniforms

	dir := normalize(l.Direction)
	if l.Kind != Point && dir == (f32.Vec3{}) {
		return u, fmt.Errorf("%w: light %q has no direction", meshpass.ErrResolution, l.Name)
	}
	u.Direction = f32.Vec4{dir[0], dir[1], dir[2], 0}

	falloff := l.FalloffExponent
	if falloff == 0 {
		falloff = 1
	}
	u.Color = f32.Vec4{
		l.Color[0] * l.Intensity,
		l.Color[1] * l.Intensity,
		l.Color[2] * l.Intensity,
		falloff,
	}

	// Cones that always pass for non-spot lights.
	u.Spot = f32.Vec4{-2, 1, 0, 0}

	if l.Radial() {
		if l.Radius <= 0 {
			return u, fmt.Errorf("%w: light %q has radius %g", meshpass.ErrResolution, l.Name, l.Radius)
		}
		u.Position = f32.Vec4{l.Position[0], l.Position[1], l.Position[2], 1 / l.Radius}
		u.Direction[3] = 1
	}

	if l.Kind == Spot {
		cosOuter := math32.Cos(l.OuterCone)
		cosInner := math32.Cos(math32.Min(l.InnerCone, l.OuterCone))
		delta := math32.Max(cosInner-cosOuter, 1e-4)
		u.Spot = f32.Vec4{cosOuter, 1 / delta, 0, 0}
	}
	return u, nil
}

func normalize(v f32.Vec3) f32.Vec3 {
	n := math32.Sqrt(v[0]*v[0] + v[1]*v[1] + v[2]*v[2])
	if n == 0 {
		return f32.Vec3{}
	}
	return f32.Vec3{v[0] / n, v[1] / n, v[2] / n}
}

// ViewUniforms is the GPU layout of the per-view constants. Matrices are
// row major.
type ViewUniforms struct {
	ViewProj       f32.Mat4
	InvViewProj    f32.Mat4
	CameraPosition f32.Vec4
	ViewportSize   f32.Vec4
}

func (v *ViewUniforms) params() []meshpass.ShaderParam {
	return []meshpass.ShaderParam{
		meshpass.Mat4("ViewProj", v.ViewProj),
		meshpass.Mat4("InvViewProj", v.InvViewProj),
		meshpass.Vec4("CameraPosition", v.CameraPosition),
		meshpass.Vec4("ViewportSize", v.ViewportSize),
	}
}

// Bindings returns the view constants in the order every built-in shader
// declares them. Set them as meshpass.View.Params for the mesh passes.
func (v ViewUniforms) Bindings() meshpass.Bindings {
	return meshpass.NewBindings(v.params()...)
}

// GBufferTexture is one texture of the G-buffer.
type GBufferTexture struct {
	Handle uint64
	Format gputypes.TextureFormat
}

// GBuffer maps texture slots to the textures of one view.
type GBuffer map[string]GBufferTexture

// LightInputs is everything the lighting pass needs for one view.
type LightInputs struct {
	View     ViewUniforms
	GBuffer  GBuffer
	Viewport meshpass.Rect
}

// Targets returns the render targets of the lighting pass: scene color
// loaded and blended into, scene depth bound read-only.
func (in *LightInputs) Targets() (*meshpass.RenderTargetSet, error) {
	color, ok := in.GBuffer[TexSceneColor]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", meshpass.ErrResolution, TexSceneColor)
	}
	depth, ok := in.GBuffer[TexSceneDepth]
	if !ok {
		return nil, fmt.Errorf("%w: missing %s", meshpass.ErrResolution, TexSceneDepth)
	}
	return &meshpass.RenderTargetSet{
		Label: string(LightPassID),
		Color: []meshpass.ColorTarget{{
			Handle: color.Handle,
			Format: color.Format,
			Load:   gputypes.LoadOpLoad,
		}},
		Depth: &meshpass.DepthTarget{
			Handle:   depth.Handle,
			Format:   depth.Format,
			Load:     gputypes.LoadOpLoad,
			ReadOnly: true,
		},
		Viewport: in.Viewport,
	}, nil
}

// LightParams are the assembled shader inputs of one light.
type LightParams struct {
	View     ViewUniforms
	Light    LightUniforms
	Textures map[string]uint64
}

// Bindings flattens p into shader parameters. Optional textures absent from
// the G-buffer are bound as handle 0.
func (p *LightParams) Bindings() meshpass.Bindings {
	params := append(p.View.params(),
		meshpass.Vec4("LightPosition", p.Light.Position),
		meshpass.Vec4("LightColor", p.Light.Color),
		meshpass.Vec4("LightDirection", p.Light.Direction),
		meshpass.Vec4("SpotAngles", p.Light.Spot),
	)
	for _, slot := range RequiredTextures[1:] {
		params = append(params, meshpass.Texture(slot, p.Textures[slot]))
	}
	for _, slot := range OptionalTextures {
		params = append(params, meshpass.Texture(slot, p.Textures[slot]))
	}
	return meshpass.NewBindings(params...)
}

// LightingState is the fixed-function state of every light draw: additive
// blending, no depth test or write, no culling.
func LightingState() meshpass.FixedFunctionState {
	return meshpass.FixedFunctionState{
		BlendEnabled: true,
		Blend:        meshpass.AdditiveBlend(),
		DepthCompare: gputypes.CompareFunctionAlways,
		DepthWrite:   false,
		Fill:         meshpass.FillSolid,
		Cull:         gputypes.CullModeNone,
		Topology:     gputypes.PrimitiveTopologyTriangleList,
	}
}

// LightVariant is the shader variant of the lighting pass.
func LightVariant() meshpass.ShaderVariantKey {
	shaders := Shaders(LightShader)
	return meshpass.ShaderVariantKey{
		ID:      meshpass.VariantID(LightPassID, LightLayout, shaders),
		Pass:    LightPassID,
		Layout:  LightLayout,
		Shaders: shaders,
	}
}

// LightState is the stage of a LightPass.
type LightState uint8

const (
	// StatePending: parameters are being assembled.
	StatePending LightState = iota
	// StateBound: pipeline state and parameters are bound.
	StateBound
	// StateIssued: the draw was submitted. Terminal.
	StateIssued
	// StateSkipped: assembly failed; the light is not drawn. Terminal.
	StateSkipped
)

var lightStateNames = [...]string{"Pending", "Bound", "Issued", "Skipped"}

// String returns the state name.
func (s LightState) String() string {
	if int(s) < len(lightStateNames) {
		return lightStateNames[s]
	}
	return fmt.Sprintf("LightState(%d)", s)
}

// LightPass renders one light into one view. It moves through
// Pending -> Bound -> Issued exactly once and is then discarded; a failed
// assembly ends in Skipped and is never retried.
type LightPass struct {
	light  Light
	state  LightState
	params LightParams
	ready  bool
}

// NewLightPass starts a pass for light in StatePending.
func NewLightPass(light Light) *LightPass {
	return &LightPass{light: light}
}

// State returns the current state.
func (p *LightPass) State() LightState { return p.state }

// Light returns the light rendered by the pass.
func (p *LightPass) Light() *Light { return &p.light }

// Params returns the assembled parameters. Valid after Assemble succeeds.
func (p *LightPass) Params() *LightParams { return &p.params }

// Assemble gathers the view, light and texture inputs. A missing required
// texture or an invalid light moves the pass to StateSkipped and returns an
// error wrapping meshpass.ErrResolution.
func (p *LightPass) Assemble(in *LightInputs) error {
	if p.state != StatePending || p.ready {
		return p.transitionErr("assemble")
	}
	textures := make(map[string]uint64, len(RequiredTextures)+len(OptionalTextures))
	for _, slot := range RequiredTextures {
		tex, ok := in.GBuffer[slot]
		if !ok {
			p.state = StateSkipped
			return fmt.Errorf("light %q: %w: missing texture %s", p.light.Name, meshpass.ErrResolution, slot)
		}
		textures[slot] = tex.Handle
	}
	for _, slot := range OptionalTextures {
		if tex, ok := in.GBuffer[slot]; ok {
			textures[slot] = tex.Handle
		}
	}
	lu, err := p.light.Uniforms()
	if err != nil {
		p.state = StateSkipped
		return fmt.Errorf("light %q: %w", p.light.Name, err)
	}
	p.params = LightParams{View: in.View, Light: lu, Textures: textures}
	p.ready = true
	return nil
}

// Bind sets the lighting pipeline, the viewport and the light parameters.
func (p *LightPass) Bind(s meshpass.Stream, viewport meshpass.Rect) error {
	if p.state != StatePending || !p.ready {
		return p.transitionErr("bind")
	}
	if err := s.SetPipeline(LightVariant(), LightingState()); err != nil {
		return err
	}
	if !viewport.Empty() {
		if err := s.SetViewport(viewport); err != nil {
			return err
		}
	}
	if err := s.SetBindings(p.params.Bindings()); err != nil {
		return err
	}
	p.state = StateBound
	return nil
}

// Issue submits the full-screen draw.
func (p *LightPass) Issue(s meshpass.Stream) error {
	if p.state != StateBound {
		return p.transitionErr("issue")
	}
	if err := s.DrawFullscreen(); err != nil {
		return err
	}
	p.state = StateIssued
	return nil
}

func (p *LightPass) transitionErr(op string) error {
	return fmt.Errorf("%w: %w: %s in state %s", meshpass.ErrProtocolViolation, ErrInvalidTransition, op, p.state)
}
