package halstream

import (
	"encoding/binary"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"golang.org/x/image/math/f32"

	"github.com/gogpu/meshpass"
	"github.com/gogpu/meshpass/toon"
)

func floatAt(b []byte, off int) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b[off:]))
}

func TestPackUniforms(t *testing.T) {
	var m f32.Mat4
	for i := range m {
		m[i] = float32(i)
	}
	b := meshpass.NewBindings(
		meshpass.Float("T", 2.5),
		meshpass.Texture("Tex", 3),
		meshpass.Vec4("C", f32.Vec4{1, 2, 3, 4}),
		meshpass.Mat4("M", m),
	)
	data := PackUniforms(b)
	if len(data) != 16+16+64 {
		t.Fatalf("len = %d, want 96", len(data))
	}
	tests := []struct {
		off  int
		want float32
	}{
		{0, 2.5},
		{4, 0},
		{16, 1},
		{28, 4},
		{32, 0},
		{32 + 4, 4}, // column major: m[1][0]
		{32 + 15*4, 15},
	}
	for _, tt := range tests {
		if got := floatAt(data, tt.off); got != tt.want {
			t.Errorf("offset %d = %v, want %v", tt.off, got, tt.want)
		}
	}

	if PackUniforms(meshpass.NewBindings(meshpass.Texture("Tex", 1))) != nil {
		t.Error("texture-only bindings should pack to nil")
	}
}

func TestUniformUploader(t *testing.T) {
	device, queue, cleanup := createNoopDevice(t)
	defer cleanup()

	textures := NewTextureMap()
	tex, _ := device.CreateTexture(&hal.TextureDescriptor{Label: "gbuffer"})
	view, _ := device.CreateTextureView(tex, nil)
	textures.Set(5, view)

	u := NewUniformUploader(device, queue, nil, textures)
	v := meshpass.ShaderVariantKey{Pass: "p"}

	groups, err := u.Upload(v, meshpass.NewBindings(meshpass.Float("A", 1), meshpass.Texture("GBufferA", 5)))
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if len(groups) != 1 || groups[0] == nil {
		t.Fatalf("Upload() = %v, want one group", groups)
	}

	_, err = u.Upload(v, meshpass.NewBindings(meshpass.Texture("GBufferB", 6)))
	if !errors.Is(err, meshpass.ErrResolution) || !errors.Is(err, ErrUnknownTexture) {
		t.Errorf("missing texture error = %v, want ErrResolution and ErrUnknownTexture", err)
	}
	if u.Live() != 1 {
		t.Errorf("Live() = %d, want 1", u.Live())
	}
	u.Release()
	if u.Live() != 0 {
		t.Errorf("Live() after Release = %d", u.Live())
	}
}

func TestPipelineCache(t *testing.T) {
	f := newFixture(t)
	cache := NewPipelineCache(f.dev)
	a := f.stream(WithPipelineCache(cache))
	b := f.stream(WithPipelineCache(cache))

	v := meshpass.ShaderVariantKey{ID: 1, Shaders: meshpass.ShaderPair{Vertex: testModule + ":vs_main", Fragment: testModule + ":fs_main"}}
	for _, s := range []*Stream{a, b} {
		if err := s.BeginPass("p", targets()); err != nil {
			t.Fatal(err)
		}
		if err := s.SetPipeline(v, meshpass.FixedFunctionState{}); err != nil {
			t.Fatal(err)
		}
		_ = s.EndPass()
	}

	// Same variant and state into a different depth format.
	ts := targets()
	ts.Depth.Format = gputypes.TextureFormatDepth24PlusStencil8
	_ = a.BeginPass("p", ts)
	_ = a.SetPipeline(v, meshpass.FixedFunctionState{})
	_ = a.EndPass()

	if cache.Len() != 2 {
		t.Errorf("Len() = %d, want 2", cache.Len())
	}
	hits, misses := cache.Stats()
	if hits != 1 || misses != 2 {
		t.Errorf("Stats() = %d hits, %d misses, want 1, 2", hits, misses)
	}
	if len(f.dev.pipelines) != 2 {
		t.Errorf("device pipelines = %d, want 2", len(f.dev.pipelines))
	}
	cache.Destroy()
	if cache.Len() != 0 {
		t.Errorf("Len() after Destroy = %d", cache.Len())
	}
}

func TestPipelineCache_NilDevice(t *testing.T) {
	c := NewPipelineCache(nil)
	_, err := c.GetOrCreate(PipelineKey{}, func() (*hal.RenderPipelineDescriptor, error) {
		return &hal.RenderPipelineDescriptor{}, nil
	})
	if !errors.Is(err, ErrNilDevice) {
		t.Errorf("GetOrCreate() error = %v, want ErrNilDevice", err)
	}
}

func skipOnNagaLimitation(t *testing.T, err error) {
	t.Helper()
	errStr := err.Error()
	if strings.Contains(errStr, "not yet implemented") || strings.Contains(errStr, "not supported") {
		t.Skipf("Skipping: naga feature not yet implemented: %v", err)
	}
}

func TestBuiltinShaders(t *testing.T) {
	for _, name := range toon.ShaderNames() {
		code, err := BuiltinShaders(name)
		if err != nil {
			skipOnNagaLimitation(t, err)
			t.Fatalf("BuiltinShaders(%q) error = %v", name, err)
		}
		if len(code) == 0 || code[0] != 0x07230203 {
			t.Errorf("%s: invalid SPIR-V", name)
		}
	}
	if _, err := BuiltinShaders("toon/none"); !errors.Is(err, ErrUnknownShader) {
		t.Errorf("unknown module error = %v, want ErrUnknownShader", err)
	}
}

func TestStream_Lighting(t *testing.T) {
	if _, err := toon.CompiledShaders(); err != nil {
		skipOnNagaLimitation(t, err)
		t.Fatal(err)
	}

	f := newFixture(t)
	for h := uint64(10); h <= 13; h++ {
		tex, _ := f.dev.CreateTexture(&hal.TextureDescriptor{Label: "gbuffer"})
		view, _ := f.dev.CreateTextureView(tex, nil)
		f.textures.Set(h, view)
	}
	s := New(f.dev, f.host)

	in := &toon.LightInputs{
		GBuffer: toon.GBuffer{
			toon.TexSceneColor: {Handle: 10, Format: gputypes.TextureFormatRGBA16Float},
			toon.TexGBufferA:   {Handle: 11, Format: gputypes.TextureFormatRGBA8Unorm},
			toon.TexGBufferB:   {Handle: 12, Format: gputypes.TextureFormatRGBA8Unorm},
			toon.TexSceneDepth: {Handle: 13, Format: gputypes.TextureFormatDepth32Float},
		},
		Viewport: meshpass.Rect{Width: 64, Height: 64},
	}
	light := toon.Light{Name: "key", Kind: toon.Point, Color: f32.Vec3{1, 1, 1}, Intensity: 1, Radius: 5}
	fill := light
	fill.Name = "fill"

	stats, err := toon.RenderLights(s, in, []toon.Light{light, fill})
	if err != nil {
		t.Fatalf("RenderLights() error = %v", err)
	}
	if stats.Issued != 2 {
		t.Errorf("issued = %d, want 2", stats.Issued)
	}
	if got := f.dev.count("draw 3 1 0 0"); got != 2 {
		t.Errorf("full-screen draws = %d, want 2", got)
	}
	if len(f.dev.pipelines) != 1 {
		t.Errorf("pipelines = %d, want 1 shared by every light", len(f.dev.pipelines))
	}
	desc := f.dev.pipelines[0]
	if desc.DepthStencil == nil || desc.DepthStencil.DepthWriteEnabled {
		t.Errorf("lighting depth state = %+v, want read-only", desc.DepthStencil)
	}
	if att := f.dev.passes[0].ColorAttachments[0]; att.LoadOp != gputypes.LoadOpLoad {
		t.Errorf("scene color load = %v, want Load", att.LoadOp)
	}
}
