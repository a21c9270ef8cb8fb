package halstream

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/meshpass"
)

// createNoopDevice creates a noop device and queue for testing.
// Returns the device, queue, and a cleanup function.
func createNoopDevice(t *testing.T) (hal.Device, hal.Queue, func()) {
	t.Helper()
	api := noop.API{}
	instance, err := api.CreateInstance(nil)
	if err != nil {
		t.Fatalf("CreateInstance failed: %v", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	openDev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		t.Fatalf("Open failed: %v", err)
	}
	cleanup := func() {
		openDev.Device.Destroy()
		instance.Destroy()
	}
	return openDev.Device, openDev.Queue, cleanup
}

// spyDevice records pipeline creation and every render pass call made
// through encoders it creates.
type spyDevice struct {
	hal.Device

	mu        sync.Mutex
	pipelines []*hal.RenderPipelineDescriptor
	modules   []string
	passes    []*hal.RenderPassDescriptor
	calls     []string
}

func (d *spyDevice) log(format string, args ...any) {
	d.mu.Lock()
	d.calls = append(d.calls, fmt.Sprintf(format, args...))
	d.mu.Unlock()
}

func (d *spyDevice) count(prefix string) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	n := 0
	for _, c := range d.calls {
		if strings.HasPrefix(c, prefix) {
			n++
		}
	}
	return n
}

func (d *spyDevice) CreateRenderPipeline(desc *hal.RenderPipelineDescriptor) (hal.RenderPipeline, error) {
	d.mu.Lock()
	d.pipelines = append(d.pipelines, desc)
	d.mu.Unlock()
	return d.Device.CreateRenderPipeline(desc)
}

func (d *spyDevice) CreateShaderModule(desc *hal.ShaderModuleDescriptor) (hal.ShaderModule, error) {
	d.mu.Lock()
	d.modules = append(d.modules, desc.Label)
	d.mu.Unlock()
	return d.Device.CreateShaderModule(desc)
}

func (d *spyDevice) CreateCommandEncoder(desc *hal.CommandEncoderDescriptor) (hal.CommandEncoder, error) {
	enc, err := d.Device.CreateCommandEncoder(desc)
	if err != nil {
		return nil, err
	}
	return &spyEncoder{CommandEncoder: enc, dev: d}, nil
}

type spyEncoder struct {
	hal.CommandEncoder
	dev *spyDevice
}

func (e *spyEncoder) BeginRenderPass(desc *hal.RenderPassDescriptor) hal.RenderPassEncoder {
	e.dev.mu.Lock()
	e.dev.passes = append(e.dev.passes, desc)
	e.dev.mu.Unlock()
	e.dev.log("begin %s", desc.Label)
	return &spyPass{RenderPassEncoder: e.CommandEncoder.BeginRenderPass(desc), dev: e.dev}
}

type spyPass struct {
	hal.RenderPassEncoder
	dev *spyDevice
}

func (p *spyPass) End() { p.dev.log("end") }

func (p *spyPass) SetPipeline(hal.RenderPipeline) { p.dev.log("pipeline") }

func (p *spyPass) SetBindGroup(index uint32, _ hal.BindGroup, _ []uint32) {
	p.dev.log("bindgroup %d", index)
}

func (p *spyPass) SetViewport(x, y, w, h, _, _ float32) {
	p.dev.log("viewport %g,%g %gx%g", x, y, w, h)
}

func (p *spyPass) Draw(vertices, instances, first, firstInstance uint32) {
	p.dev.log("draw %d %d %d %d", vertices, instances, first, firstInstance)
}

func (p *spyPass) DrawIndexed(indices, instances, first uint32, base int32, firstInstance uint32) {
	p.dev.log("drawindexed %d %d %d %d %d", indices, instances, first, base, firstInstance)
}

const testModule = "test/mesh"

func testShaders(module string) ([]uint32, error) {
	if module == testModule {
		return []uint32{0x07230203}, nil
	}
	return nil, fmt.Errorf("%w: %q", ErrUnknownShader, module)
}

type hosts struct {
	elements int
}

func (hosts) Features(uint64) meshpass.FeatureFlags { return meshpass.FeatureToonShading }
func (hosts) RasterOverrides(id uint64) meshpass.RasterOverrides {
	return meshpass.RasterOverrides{Wireframe: id == 2}
}
func (hosts) VertexLayout(uint64) meshpass.VertexLayout { return "static" }
func (h hosts) ElementCount(uint64) int                 { return h.elements }

type meshBuffers struct {
	vertex hal.Buffer
	index  hal.Buffer
}

func (m meshBuffers) Element(g meshpass.Geometry, element int, instance uint64) (ElementDraw, error) {
	if g.ID == 99 {
		return ElementDraw{}, fmt.Errorf("%w: %d", ErrNoGeometry, g.ID)
	}
	return ElementDraw{
		Vertex:        []hal.Buffer{m.vertex},
		Index:         m.index,
		IndexFormat:   gputypes.IndexFormatUint32,
		IndexCount:    36,
		FirstIndex:    uint32(element) * 36,
		FirstInstance: uint32(instance),
	}, nil
}

type fixture struct {
	dev      *spyDevice
	queue    hal.Queue
	textures *TextureMap
	host     Host
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	device, queue, cleanup := createNoopDevice(t)
	t.Cleanup(cleanup)

	dev := &spyDevice{Device: device}
	textures := NewTextureMap()
	for _, h := range []uint64{1, 2, 3} {
		tex, err := device.CreateTexture(&hal.TextureDescriptor{Label: "target"})
		if err != nil {
			t.Fatal(err)
		}
		view, err := device.CreateTextureView(tex, nil)
		if err != nil {
			t.Fatal(err)
		}
		textures.Set(h, view)
	}
	vb, _ := device.CreateBuffer(&hal.BufferDescriptor{Size: 1024, Usage: gputypes.BufferUsageVertex})
	ib, _ := device.CreateBuffer(&hal.BufferDescriptor{Size: 1024, Usage: gputypes.BufferUsageIndex})

	layout, err := device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: "params"})
	if err != nil {
		t.Fatal(err)
	}
	return &fixture{
		dev:      dev,
		queue:    queue,
		textures: textures,
		host: Host{
			Textures: textures,
			Geometry: meshBuffers{vertex: vb, index: ib},
			Bindings: NewUniformUploader(device, queue, layout, textures),
		},
	}
}

func (f *fixture) stream(opts ...Option) *Stream {
	opts = append([]Option{WithShaderModules(NewShaderModules(f.dev, testShaders))}, opts...)
	return New(f.dev, f.host, opts...)
}

func targets() *meshpass.RenderTargetSet {
	return &meshpass.RenderTargetSet{
		Color:    []meshpass.ColorTarget{{Handle: 1, Format: gputypes.TextureFormatRGBA8Unorm}},
		Depth:    &meshpass.DepthTarget{Handle: 2, Format: gputypes.TextureFormatDepth32Float, ClearDepth: 1},
		Viewport: meshpass.Rect{Width: 640, Height: 480},
	}
}

func commandList(t *testing.T, pass meshpass.PassID, n int, elements int) *meshpass.CommandList {
	t.Helper()
	shaders := meshpass.ShaderPair{Vertex: testModule + ":vs_main", Fragment: testModule + ":fs_main"}
	table := meshpass.NewShaderTable()
	table.Add(pass, "static", shaders)

	cfg := meshpass.PassConfig{
		ID:    pass,
		Depth: meshpass.DepthMode{Compare: gputypes.CompareFunctionLessEqual, Write: true},
		Bind: func(it meshpass.DrawableItem) meshpass.Bindings {
			return meshpass.NewBindings(meshpass.Float("Index", float32(it.StableIndex)))
		},
	}
	b := meshpass.NewDrawCommandBuilder(pass, 0, 1)
	proc := meshpass.NewPassProcessor(cfg, table, b)
	h := hosts{elements: elements}
	for i := range n {
		err := proc.Submit(meshpass.DrawableItem{
			Geometry:    meshpass.Geometry{ID: 1, Host: h},
			Material:    meshpass.Material{ID: uint64(1 + i%2), Host: h},
			ElementMask: ^uint64(0),
			InstanceID:  uint64(i),
			StableIndex: uint64(i),
		})
		if err != nil {
			t.Fatal(err)
		}
	}
	list, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}
	return list
}

func TestStream_Execute(t *testing.T) {
	f := newFixture(t)
	s := f.stream()
	list := commandList(t, "mesh", 4, 2)

	exec := meshpass.NewPassExecutor("mesh", nil)
	if err := exec.Execute(s, list, targets()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}

	// Two states (solid and wireframe), four items of two elements.
	if got := len(f.dev.pipelines); got != 2 {
		t.Errorf("pipelines created = %d, want 2", got)
	}
	if got := f.dev.count("pipeline"); got != 2 {
		t.Errorf("SetPipeline calls = %d, want 2", got)
	}
	if got := f.dev.count("drawindexed"); got != 8 {
		t.Errorf("indexed draws = %d, want 8", got)
	}
	if got := f.dev.count("bindgroup 0"); got != 4 {
		t.Errorf("bind groups = %d, want 4", got)
	}
	if got := f.dev.count("viewport 0,0 640x480"); got != 1 {
		t.Errorf("viewport calls = %d, want 1", got)
	}
	if len(f.dev.modules) != 1 || f.dev.modules[0] != testModule {
		t.Errorf("shader modules = %v, want one %s", f.dev.modules, testModule)
	}
	st := s.Stats()
	if st.Passes != 1 || st.Draws != 8 || st.BindSets != 4 || st.Pipelines != 2 {
		t.Errorf("Stats() = %+v", st)
	}

	if _, err := s.Submit(f.queue); err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	if s.Stats() != (Stats{}) {
		t.Errorf("Stats() after Submit = %+v, want zero", s.Stats())
	}
}

func TestStream_PipelineDescriptor(t *testing.T) {
	f := newFixture(t)
	s := f.stream(WithVertexBuffers("static", gputypes.VertexBufferLayout{
		ArrayStride: 24,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes: []gputypes.VertexAttribute{
			{Format: gputypes.VertexFormatFloat32x3, ShaderLocation: 0},
			{Format: gputypes.VertexFormatFloat32x3, Offset: 12, ShaderLocation: 1},
		},
	}))

	v := meshpass.ShaderVariantKey{
		ID:      7,
		Pass:    "p",
		Layout:  "static",
		Shaders: meshpass.ShaderPair{Vertex: testModule + ":vs_main", Fragment: testModule + ":fs_outline"},
	}
	ts := targets()
	ts.Depth.ReadOnly = true
	if err := s.BeginPass("p", ts); err != nil {
		t.Fatal(err)
	}
	st := meshpass.FixedFunctionState{
		BlendEnabled: true,
		Blend:        meshpass.AdditiveBlend(),
		DepthCompare: gputypes.CompareFunctionGreaterEqual,
		DepthWrite:   true,
		Fill:         meshpass.FillWireframe,
		Cull:         gputypes.CullModeFront,
	}
	if err := s.SetPipeline(v, st); err != nil {
		t.Fatal(err)
	}
	if err := s.EndPass(); err != nil {
		t.Fatal(err)
	}

	desc := f.dev.pipelines[0]
	if desc.Vertex.EntryPoint != "vs_main" || desc.Fragment.EntryPoint != "fs_outline" {
		t.Errorf("entry points = %q/%q", desc.Vertex.EntryPoint, desc.Fragment.EntryPoint)
	}
	if len(desc.Vertex.Buffers) != 1 || desc.Vertex.Buffers[0].ArrayStride != 24 {
		t.Errorf("vertex buffers = %+v", desc.Vertex.Buffers)
	}
	if desc.Primitive.Topology != gputypes.PrimitiveTopologyLineList || desc.Primitive.CullMode != gputypes.CullModeFront {
		t.Errorf("primitive = %+v", desc.Primitive)
	}
	if desc.DepthStencil == nil || desc.DepthStencil.DepthWriteEnabled ||
		desc.DepthStencil.DepthCompare != gputypes.CompareFunctionGreaterEqual {
		t.Errorf("depth stencil = %+v, want GreaterEqual without write on read-only depth", desc.DepthStencil)
	}
	if len(desc.Fragment.Targets) != 1 || desc.Fragment.Targets[0].Blend == nil ||
		*desc.Fragment.Targets[0].Blend != meshpass.AdditiveBlend() {
		t.Errorf("color targets = %+v", desc.Fragment.Targets)
	}

	pass := f.dev.passes[0]
	if !pass.DepthStencilAttachment.DepthReadOnly || pass.DepthStencilAttachment.DepthLoadOp != gputypes.LoadOpUndefined {
		t.Errorf("read-only depth attachment = %+v", pass.DepthStencilAttachment)
	}
}

func TestStream_LoadOps(t *testing.T) {
	f := newFixture(t)
	s := f.stream()
	ts := targets()
	ts.Color = append(ts.Color, meshpass.ColorTarget{Handle: 3, Format: gputypes.TextureFormatRGBA8Unorm, Load: gputypes.LoadOpClear})

	for range 2 {
		if err := s.BeginPass("p", ts); err != nil {
			t.Fatal(err)
		}
		_ = s.EndPass()
	}

	tests := []struct {
		pass, attachment int
		want             gputypes.LoadOp
	}{
		{0, 0, gputypes.LoadOpClear},
		{1, 0, gputypes.LoadOpLoad},
		{0, 1, gputypes.LoadOpClear},
		{1, 1, gputypes.LoadOpClear},
	}
	for _, tt := range tests {
		got := f.dev.passes[tt.pass].ColorAttachments[tt.attachment].LoadOp
		if got != tt.want {
			t.Errorf("pass %d attachment %d load = %v, want %v", tt.pass, tt.attachment, got, tt.want)
		}
	}
	if got := f.dev.passes[1].DepthStencilAttachment.DepthLoadOp; got != gputypes.LoadOpLoad {
		t.Errorf("second pass depth load = %v, want Load", got)
	}

	// A new encoding clears again.
	if _, err := s.Finish(); err != nil {
		t.Fatal(err)
	}
	_ = s.BeginPass("p", ts)
	if got := f.dev.passes[2].ColorAttachments[0].LoadOp; got != gputypes.LoadOpClear {
		t.Errorf("next frame load = %v, want Clear", got)
	}
}

func TestStream_Protocol(t *testing.T) {
	f := newFixture(t)
	s := f.stream()
	v := meshpass.ShaderVariantKey{ID: 1, Shaders: meshpass.ShaderPair{Vertex: testModule + ":vs_main", Fragment: testModule + ":fs_main"}}

	tests := []struct {
		name string
		call func() error
		want error
	}{
		{"finish empty", func() error { _, err := s.Finish(); return err }, ErrNoCommands},
		{"draw outside pass", s.DrawFullscreen, ErrNoPass},
		{"end outside pass", s.EndPass, ErrNoPass},
		{"pipeline outside pass", func() error { return s.SetPipeline(v, meshpass.FixedFunctionState{}) }, ErrNoPass},
		{"begin", func() error { return s.BeginPass("p", targets()) }, nil},
		{"nested begin", func() error { return s.BeginPass("q", targets()) }, ErrPassOpen},
		{"draw without pipeline", s.DrawFullscreen, ErrNoPipeline},
		{"finish in pass", func() error { _, err := s.Finish(); return err }, ErrPassOpen},
		{"unknown shader", func() error {
			return s.SetPipeline(meshpass.ShaderVariantKey{ID: 2, Shaders: meshpass.ShaderPair{Vertex: "nope:vs"}}, meshpass.FixedFunctionState{})
		}, ErrUnknownShader},
		{"pipeline", func() error { return s.SetPipeline(v, meshpass.FixedFunctionState{}) }, nil},
		{"missing geometry", func() error { return s.DrawElement(meshpass.Geometry{ID: 99}, 0, 0) }, ErrNoGeometry},
		{"draw", s.DrawFullscreen, nil},
		{"end", s.EndPass, nil},
	}
	for _, tt := range tests {
		err := tt.call()
		if tt.want == nil && err != nil {
			t.Errorf("%s: error = %v", tt.name, err)
		}
		if tt.want != nil && !errors.Is(err, tt.want) {
			t.Errorf("%s: error = %v, want %v", tt.name, err, tt.want)
		}
	}
	if got := f.dev.count("draw 3 1 0 0"); got != 1 {
		t.Errorf("full-screen draws = %d, want 1", got)
	}
}

func TestStream_UnknownTexture(t *testing.T) {
	f := newFixture(t)
	s := f.stream()
	ts := targets()
	ts.Color[0].Handle = 42
	if err := s.BeginPass("p", ts); !errors.Is(err, ErrUnknownTexture) {
		t.Errorf("BeginPass() error = %v, want ErrUnknownTexture", err)
	}
	if len(f.dev.passes) != 0 {
		t.Error("render pass begun with an unresolved target")
	}
}

func TestStream_TooManyTargets(t *testing.T) {
	f := newFixture(t)
	ts := targets()
	for len(ts.Color) <= MaxColorTargets {
		ts.Color = append(ts.Color, ts.Color[0])
	}
	if err := f.stream().BeginPass("p", ts); !errors.Is(err, ErrTooManyTargets) {
		t.Errorf("BeginPass() error = %v, want ErrTooManyTargets", err)
	}
}

func TestStream_Discard(t *testing.T) {
	f := newFixture(t)
	s := f.stream()
	_ = s.BeginPass("p", targets())
	s.Discard()
	if _, err := s.Finish(); !errors.Is(err, ErrNoCommands) {
		t.Errorf("Finish() after Discard error = %v, want ErrNoCommands", err)
	}
}
