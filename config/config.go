// Package config loads meshpass frame descriptions from YAML.
//
// A file names the passes to register, the views of a frame with their
// render targets and G-buffers, and the lights of the toon lighting pass:
//
//	version: 1
//	reversedZ: true
//	passes:
//	  - id: toon-outline
//	  - id: toon-shaded
//	views:
//	  - id: 1
//	    viewport: {width: 1280, height: 720}
//	    color: [{handle: 1, format: RGBA16Float, load: Clear}]
//	    depth: {handle: 2, format: Depth32Float, clear: 1}
//	    viewProj: [1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1, 0, 0, 0, 0, 1]
//	    gbuffer:
//	      GBufferA: {handle: 3, format: RGBA8Unorm}
//	lights:
//	  - {name: sun, kind: directional, direction: [0, -1, 0], color: [1, 1, 1], intensity: 3}
//
// Without a passes list the toon outline and shaded passes are registered.
package config

import (
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/gogpu/meshpass"
)

// Version is the current file format version.
const Version = 1

// ErrInvalid is returned for configurations that fail validation.
var ErrInvalid = errors.New("config: invalid configuration")

// Config is a decoded configuration file.
type Config struct {
	Version   int      `yaml:"version"`
	ReversedZ bool     `yaml:"reversedZ,omitempty"`
	Workers   int      `yaml:"workers,omitempty"`
	Layouts   []string `yaml:"layouts,omitempty"`

	Passes []Pass  `yaml:"passes,omitempty"`
	Views  []View  `yaml:"views"`
	Lights []Light `yaml:"lights,omitempty"`
}

// Pass registers one mesh pass. A pass whose id is a built-in toon pass and
// that sets no shaders uses the built-in definition.
type Pass struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name,omitempty"`
	Feature  string `yaml:"feature,omitempty"`
	Compare  string `yaml:"compare,omitempty"`
	Write    *bool  `yaml:"write,omitempty"`
	Blend    string `yaml:"blend,omitempty"`
	Vertex   string `yaml:"vertex,omitempty"`
	Fragment string `yaml:"fragment,omitempty"`
}

// Rect is a viewport rectangle in pixels.
type Rect struct {
	X      uint32 `yaml:"x,omitempty"`
	Y      uint32 `yaml:"y,omitempty"`
	Width  uint32 `yaml:"width"`
	Height uint32 `yaml:"height"`
}

// ColorTarget is one color attachment of a view.
type ColorTarget struct {
	Handle uint64     `yaml:"handle"`
	Format string     `yaml:"format"`
	Load   string     `yaml:"load,omitempty"`
	Clear  [4]float64 `yaml:"clear,omitempty"`
}

// DepthTarget is the depth attachment of a view.
type DepthTarget struct {
	Handle   uint64  `yaml:"handle"`
	Format   string  `yaml:"format"`
	Load     string  `yaml:"load,omitempty"`
	Clear    float32 `yaml:"clear,omitempty"`
	ReadOnly bool    `yaml:"readOnly,omitempty"`
}

// Texture is one G-buffer texture.
type Texture struct {
	Handle uint64 `yaml:"handle"`
	Format string `yaml:"format"`
}

// View is one camera of the frame.
type View struct {
	ID       uint32             `yaml:"id"`
	Label    string             `yaml:"label,omitempty"`
	Hidden   bool               `yaml:"hidden,omitempty"`
	Viewport Rect               `yaml:"viewport"`
	Color    []ColorTarget      `yaml:"color"`
	Depth    *DepthTarget       `yaml:"depth"`
	GBuffer  map[string]Texture `yaml:"gbuffer,omitempty"`
	Camera   [3]float32         `yaml:"camera,omitempty"`

	// ViewProj is the row-major view-projection matrix. Identity when
	// absent; the inverse is derived.
	ViewProj *[16]float32 `yaml:"viewProj,omitempty"`

	// Lights names the lights visible in the view. Empty means all.
	Lights []string `yaml:"lights,omitempty"`
}

// Light is one light of the toon lighting pass. Cone angles are in degrees.
type Light struct {
	Name      string     `yaml:"name"`
	Kind      string     `yaml:"kind"`
	Position  [3]float32 `yaml:"position,omitempty"`
	Direction [3]float32 `yaml:"direction,omitempty"`
	Color     [3]float32 `yaml:"color"`
	Intensity float32    `yaml:"intensity"`
	Radius    float32    `yaml:"radius,omitempty"`
	Falloff   float32    `yaml:"falloff,omitempty"`
	InnerCone float32    `yaml:"innerCone,omitempty"`
	OuterCone float32    `yaml:"outerCone,omitempty"`
}

func (c *Config) normalize() {
	if c.Version == 0 {
		c.Version = Version
	}
	if len(c.Layouts) == 0 {
		c.Layouts = []string{"static"}
	}
}

// Load reads and validates a configuration file.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	c, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return c, nil
}

// Parse decodes and validates a configuration document.
func Parse(data []byte) (*Config, error) {
	var c Config
	if err := yaml.Unmarshal(data, &c); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	c.normalize()
	if err := c.Validate(); err != nil {
		return nil, err
	}
	return &c, nil
}

// Validate checks versions, names and references. Every problem is reported.
func (c *Config) Validate() error {
	var errs []error
	if c.Version != Version {
		errs = append(errs, fmt.Errorf("%w: unsupported version %d", ErrInvalid, c.Version))
	}

	passes := make(map[string]bool)
	for i, p := range c.Passes {
		if p.ID == "" {
			errs = append(errs, fmt.Errorf("%w: pass %d has no id", ErrInvalid, i))
			continue
		}
		if passes[p.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate pass %q", ErrInvalid, p.ID))
		}
		passes[p.ID] = true
		if _, err := p.config(meshpass.PassEnv{}); err != nil {
			errs = append(errs, err)
		}
	}

	lights := make(map[string]bool)
	for i := range c.Lights {
		l := &c.Lights[i]
		if lights[l.Name] {
			errs = append(errs, fmt.Errorf("%w: duplicate light %q", ErrInvalid, l.Name))
		}
		lights[l.Name] = true
		if _, err := l.light(); err != nil {
			errs = append(errs, err)
		}
	}

	views := make(map[uint32]bool)
	for i := range c.Views {
		v := &c.Views[i]
		if views[v.ID] {
			errs = append(errs, fmt.Errorf("%w: duplicate view %d", ErrInvalid, v.ID))
		}
		views[v.ID] = true
		if _, err := v.targets(); err != nil {
			errs = append(errs, err)
		}
		if _, err := v.gbuffer(); err != nil {
			errs = append(errs, err)
		}
		if _, err := v.uniforms(); err != nil {
			errs = append(errs, err)
		}
		for _, name := range v.Lights {
			if !lights[name] {
				errs = append(errs, fmt.Errorf("%w: view %d: unknown light %q", ErrInvalid, v.ID, name))
			}
		}
	}
	return errors.Join(errs...)
}

// Options returns the registry options selected by the file.
func (c *Config) Options() []meshpass.Option {
	opts := []meshpass.Option{meshpass.WithReversedZ(c.ReversedZ)}
	if c.Workers > 0 {
		opts = append(opts, meshpass.WithWorkers(c.Workers))
	}
	return opts
}

// VertexLayouts returns the layouts shader variants are registered for.
func (c *Config) VertexLayouts() []meshpass.VertexLayout {
	out := make([]meshpass.VertexLayout, len(c.Layouts))
	for i, l := range c.Layouts {
		out[i] = meshpass.VertexLayout(l)
	}
	return out
}
