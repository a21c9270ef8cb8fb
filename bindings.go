package meshpass

import (
	"fmt"
	"strings"

	"github.com/gogpu/gputypes"
	"golang.org/x/image/math/f32"
)

// ParamKind is the type of a shader parameter value.
type ParamKind uint8

const (
	// ParamFloat is a single float; only Value[0] is meaningful.
	ParamFloat ParamKind = iota
	// ParamVec4 is a four-component vector or color in Value[0:4].
	ParamVec4
	// ParamMat4 is a 4x4 matrix in Value, column major.
	ParamMat4
	// ParamTexture is a host texture-view handle in Texture. Handle 0 asks
	// the binder for its default texture.
	ParamTexture
)

var paramKindNames = [...]string{"float", "vec4", "mat4", "texture"}

// String returns the kind name.
func (k ParamKind) String() string {
	if int(k) < len(paramKindNames) {
		return paramKindNames[k]
	}
	return fmt.Sprintf("ParamKind(%d)", k)
}

// ShaderParam is one named shader input resolved for a draw.
type ShaderParam struct {
	Name    string
	Kind    ParamKind
	Value   [16]float32
	Texture uint64
}

// Float returns a scalar parameter.
func Float(name string, v float32) ShaderParam {
	return ShaderParam{Name: name, Kind: ParamFloat, Value: [16]float32{v}}
}

// Vec4 returns a vector parameter.
func Vec4(name string, v f32.Vec4) ShaderParam {
	p := ShaderParam{Name: name, Kind: ParamVec4}
	copy(p.Value[:4], v[:])
	return p
}

// Mat4 returns a matrix parameter. m is row major, as f32.Mat4 is; the
// value is stored transposed to match WGSL's mat4x4 memory layout.
func Mat4(name string, m f32.Mat4) ShaderParam {
	p := ShaderParam{Name: name, Kind: ParamMat4}
	for r := range 4 {
		for c := range 4 {
			p.Value[c*4+r] = m[r*4+c]
		}
	}
	return p
}

// Texture returns a texture parameter.
func Texture(name string, handle uint64) ShaderParam {
	return ShaderParam{Name: name, Kind: ParamTexture, Texture: handle}
}

// ColorParam returns a vector parameter holding c.
func ColorParam(name string, c gputypes.Color) ShaderParam {
	return Vec4(name, f32.Vec4{float32(c.R), float32(c.G), float32(c.B), float32(c.A)})
}

// Vec returns the first four components of the value.
func (p ShaderParam) Vec() f32.Vec4 {
	return f32.Vec4{p.Value[0], p.Value[1], p.Value[2], p.Value[3]}
}

// Size returns the number of bytes the value occupies in a uniform buffer.
func (p ShaderParam) Size() int {
	switch p.Kind {
	case ParamFloat:
		return 4
	case ParamVec4:
		return 16
	case ParamMat4:
		return 64
	default:
		return 0
	}
}

// String formats the parameter as name=value.
func (p ShaderParam) String() string {
	switch p.Kind {
	case ParamFloat:
		return fmt.Sprintf("%s=%g", p.Name, p.Value[0])
	case ParamVec4:
		return fmt.Sprintf("%s=(%g,%g,%g,%g)", p.Name, p.Value[0], p.Value[1], p.Value[2], p.Value[3])
	case ParamMat4:
		return fmt.Sprintf("%s=mat4%v", p.Name, p.Value)
	case ParamTexture:
		return fmt.Sprintf("%s=tex#%d", p.Name, p.Texture)
	default:
		return p.Name + "=?"
	}
}

// Bindings is the immutable list of shader parameters of a draw.
// Construct with NewBindings; the backing array is never shared with callers.
type Bindings struct {
	params []ShaderParam
}

// NewBindings copies params into a Bindings value.
func NewBindings(params ...ShaderParam) Bindings {
	if len(params) == 0 {
		return Bindings{}
	}
	cp := make([]ShaderParam, len(params))
	copy(cp, params)
	return Bindings{params: cp}
}

// Len returns the number of parameters.
func (b Bindings) Len() int { return len(b.params) }

// At returns the i-th parameter.
func (b Bindings) At(i int) ShaderParam { return b.params[i] }

// Lookup returns the parameter with the given name.
func (b Bindings) Lookup(name string) (ShaderParam, bool) {
	for _, p := range b.params {
		if p.Name == name {
			return p, true
		}
	}
	return ShaderParam{}, false
}

// Params returns a copy of the parameters.
func (b Bindings) Params() []ShaderParam {
	cp := make([]ShaderParam, len(b.params))
	copy(cp, b.params)
	return cp
}

// Concat returns the parameters of b followed by those of o.
func (b Bindings) Concat(o Bindings) Bindings {
	switch {
	case len(o.params) == 0:
		return b
	case len(b.params) == 0:
		return o
	}
	cp := make([]ShaderParam, 0, len(b.params)+len(o.params))
	cp = append(cp, b.params...)
	cp = append(cp, o.params...)
	return Bindings{params: cp}
}

// Equal reports whether b and o hold the same parameters in the same order.
func (b Bindings) Equal(o Bindings) bool {
	if len(b.params) != len(o.params) {
		return false
	}
	for i := range b.params {
		if b.params[i] != o.params[i] {
			return false
		}
	}
	return true
}

// String formats all parameters separated by spaces.
func (b Bindings) String() string {
	parts := make([]string, len(b.params))
	for i, p := range b.params {
		parts[i] = p.String()
	}
	return strings.Join(parts, " ")
}
