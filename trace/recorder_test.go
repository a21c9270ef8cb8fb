package trace

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/gogpu/gputypes"

	"github.com/gogpu/meshpass"
)

func targets() *meshpass.RenderTargetSet {
	return &meshpass.RenderTargetSet{
		Label: "main",
		Color: []meshpass.ColorTarget{{Handle: 1, Format: gputypes.TextureFormatRGBA8Unorm}},
		Depth: &meshpass.DepthTarget{Handle: 2, Format: gputypes.TextureFormatDepth32Float},
	}
}

func variant() meshpass.ShaderVariantKey {
	sp := meshpass.ShaderPair{Vertex: "m:vs_main", Fragment: "m:fs_main"}
	return meshpass.ShaderVariantKey{ID: meshpass.VariantID("p", "static", sp), Pass: "p", Layout: "static", Shaders: sp}
}

func record(t *testing.T) *Recording {
	t.Helper()
	r := NewRecorder()
	steps := []func() error{
		func() error { return r.BeginPass("p", targets()) },
		func() error { return r.SetViewport(meshpass.Rect{Width: 8, Height: 8}) },
		func() error { return r.SetPipeline(variant(), meshpass.FixedFunctionState{}) },
		func() error { return r.SetBindings(meshpass.NewBindings(meshpass.Float("A", 1))) },
		func() error { return r.DrawElement(meshpass.Geometry{ID: 4}, 0, 9) },
		func() error { return r.DrawFullscreen() },
		func() error { return r.EndPass() },
	}
	for i, step := range steps {
		if err := step(); err != nil {
			t.Fatalf("step %d: %v", i, err)
		}
	}
	return r.Finish()
}

func TestOpType_String(t *testing.T) {
	tests := []struct {
		op   OpType
		want string
	}{
		{OpBeginPass, "BeginPass"},
		{OpEndPass, "EndPass"},
		{OpSetPipeline, "SetPipeline"},
		{OpSetBindings, "SetBindings"},
		{OpSetViewport, "SetViewport"},
		{OpDrawElement, "DrawElement"},
		{OpDrawFullscreen, "DrawFullscreen"},
		{OpType(200), "Unknown"},
	}
	for _, tt := range tests {
		t.Run(tt.want, func(t *testing.T) {
			if got := tt.op.String(); got != tt.want {
				t.Errorf("OpType.String() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestRecorder_Records(t *testing.T) {
	rec := record(t)
	if rec.Len() != 7 {
		t.Fatalf("Len() = %d, want 7", rec.Len())
	}
	if rec.Draws() != 2 {
		t.Errorf("Draws() = %d, want 2", rec.Draws())
	}
	if rec.Passes() != 1 {
		t.Errorf("Passes() = %d, want 1", rec.Passes())
	}
	ops := rec.Ops()
	if d, ok := ops[4].(DrawElementOp); !ok || d.Geometry != 4 || d.Instance != 9 {
		t.Errorf("ops[4] = %v", ops[4])
	}
}

func TestRecorder_Protocol(t *testing.T) {
	r := NewRecorder()
	if err := r.DrawFullscreen(); !errors.Is(err, ErrNotInPass) {
		t.Errorf("draw outside pass error = %v, want ErrNotInPass", err)
	}
	if err := r.EndPass(); !errors.Is(err, ErrNotInPass) {
		t.Errorf("EndPass without pass error = %v", err)
	}
	_ = r.BeginPass("p", targets())
	if err := r.BeginPass("q", targets()); !errors.Is(err, ErrPassOpen) {
		t.Errorf("nested BeginPass error = %v, want ErrPassOpen", err)
	}
	if err := r.DrawElement(meshpass.Geometry{ID: 1}, 0, 0); !errors.Is(err, ErrNoPipeline) {
		t.Errorf("draw without pipeline error = %v, want ErrNoPipeline", err)
	}
	if r.Len() != 1 {
		t.Errorf("Len() = %d after rejected calls, want 1", r.Len())
	}
}

func TestRecorder_TargetsCopied(t *testing.T) {
	r := NewRecorder()
	ts := targets()
	_ = r.BeginPass("p", ts)
	ts.Color[0].Handle = 99
	ts.Depth.ReadOnly = true

	op := r.Finish().Ops()[0].(BeginPassOp)
	if op.Targets.Color[0].Handle != 1 || op.Targets.Depth.ReadOnly {
		t.Error("recorded targets alias the caller's set")
	}
}

func TestRecording_DiffAndPlayback(t *testing.T) {
	a := record(t)
	b := NewRecorder()
	if err := a.Playback(b); err != nil {
		t.Fatalf("Playback() error = %v", err)
	}
	replayed := b.Finish()
	if !a.Equal(replayed) {
		t.Errorf("replay differs at op %d", a.Diff(replayed))
	}

	c := NewRecorder()
	_ = c.BeginPass("p", targets())
	if got := a.Diff(c.Finish()); got != 1 {
		t.Errorf("Diff() = %d, want 1", got)
	}
}

func TestRecording_WriteTo(t *testing.T) {
	var buf bytes.Buffer
	rec := record(t)
	n, err := rec.WriteTo(&buf)
	if err != nil {
		t.Fatal(err)
	}
	if n != int64(buf.Len()) {
		t.Errorf("WriteTo() = %d, wrote %d", n, buf.Len())
	}
	out := buf.String()
	for _, want := range []string{"BeginPass p", "SetPipeline p/static", "A=1", "DrawElement geom=4", "EndPass"} {
		if !strings.Contains(out, want) {
			t.Errorf("dump missing %q:\n%s", want, out)
		}
	}
}

func TestRecorder_ExecutorIntegration(t *testing.T) {
	mats := materials{1: meshpass.FeatureToonShading}
	geom := geometry{1: 2}
	table := meshpass.NewShaderTable()
	table.Add("p", "static", variant().Shaders)

	b := meshpass.NewDrawCommandBuilder("p", 0, 1)
	proc := meshpass.NewPassProcessor(meshpass.PassConfig{ID: "p", RequiredFeature: meshpass.FeatureToonShading,
		Depth: meshpass.DepthMode{Compare: gputypes.CompareFunctionLessEqual, Write: true}}, table, b)
	for i := range 3 {
		_ = proc.Submit(meshpass.DrawableItem{
			Geometry:    meshpass.Geometry{ID: 1, Host: geom},
			Material:    meshpass.Material{ID: 1, Host: mats},
			ElementMask: 0b11,
			StableIndex: uint64(i),
		})
	}
	list, err := b.Finalize()
	if err != nil {
		t.Fatal(err)
	}

	rec := NewRecorder()
	if err := meshpass.NewPassExecutor("p", nil).Execute(rec, list, targets()); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	r := rec.Finish()
	if r.Count(OpSetPipeline) != 1 || r.Count(OpDrawElement) != 6 || r.Count(OpSetBindings) != 3 {
		t.Errorf("ops: pipeline=%d draws=%d bindings=%d", r.Count(OpSetPipeline), r.Count(OpDrawElement), r.Count(OpSetBindings))
	}
}

type materials map[uint64]meshpass.FeatureFlags

func (m materials) Features(id uint64) meshpass.FeatureFlags { return m[id] }
func (m materials) RasterOverrides(uint64) meshpass.RasterOverrides {
	return meshpass.RasterOverrides{}
}

type geometry map[uint64]int

func (g geometry) VertexLayout(uint64) meshpass.VertexLayout { return "static" }
func (g geometry) ElementCount(id uint64) int                { return g[id] }
