// Package trace records meshpass stream calls as typed operations.
//
// A Recorder implements meshpass.Stream. Every call is captured as an Op
// value instead of being encoded for a GPU, which makes the output of a pass
// inspectable, comparable and replayable.
//
// # Example
//
//	rec := trace.NewRecorder()
//	exec.Execute(rec, list, targets)
//	r := rec.Finish()
//	r.WriteTo(os.Stdout)
//
//	// Replay onto another stream
//	r.Playback(gpuStream)
package trace

import (
	"fmt"

	"github.com/gogpu/meshpass"
)

// OpType identifies the type of an operation.
type OpType uint8

const (
	// Pass commands
	OpBeginPass OpType = iota // Open a render pass
	OpEndPass                 // Close the render pass

	// State commands
	OpSetPipeline // Bind variant and fixed-function state
	OpSetBindings // Upload shader parameters
	OpSetViewport // Restrict rasterization

	// Draw commands
	OpDrawElement    // Draw one geometry element
	OpDrawFullscreen // Draw a full-screen quad
)

var opTypeNames = [...]string{
	OpBeginPass:      "BeginPass",
	OpEndPass:        "EndPass",
	OpSetPipeline:    "SetPipeline",
	OpSetBindings:    "SetBindings",
	OpSetViewport:    "SetViewport",
	OpDrawElement:    "DrawElement",
	OpDrawFullscreen: "DrawFullscreen",
}

// String returns the operation name.
func (t OpType) String() string {
	if int(t) < len(opTypeNames) {
		return opTypeNames[t]
	}
	return "Unknown"
}

// IsDraw reports whether t issues geometry.
func (t OpType) IsDraw() bool {
	return t == OpDrawElement || t == OpDrawFullscreen
}

// Op is one recorded stream call.
type Op interface {
	Type() OpType
	String() string
}

// BeginPassOp records Stream.BeginPass. The target set is copied.
type BeginPassOp struct {
	Label   string
	Targets meshpass.RenderTargetSet
}

// Type implements Op.
func (BeginPassOp) Type() OpType { return OpBeginPass }

func (o BeginPassOp) String() string {
	return fmt.Sprintf("BeginPass %s color=%d depth=%t", o.Label, len(o.Targets.Color), o.Targets.Depth != nil)
}

// EndPassOp records Stream.EndPass.
type EndPassOp struct{}

// Type implements Op.
func (EndPassOp) Type() OpType { return OpEndPass }

func (EndPassOp) String() string { return "EndPass" }

// SetPipelineOp records Stream.SetPipeline.
type SetPipelineOp struct {
	Variant meshpass.ShaderVariantKey
	State   meshpass.FixedFunctionState
}

// Type implements Op.
func (SetPipelineOp) Type() OpType { return OpSetPipeline }

func (o SetPipelineOp) String() string {
	return fmt.Sprintf("SetPipeline %s/%s %016x %s", o.Variant.Pass, o.Variant.Layout, o.Variant.ID, o.State)
}

// SetBindingsOp records Stream.SetBindings.
type SetBindingsOp struct {
	Bindings meshpass.Bindings
}

// Type implements Op.
func (SetBindingsOp) Type() OpType { return OpSetBindings }

func (o SetBindingsOp) String() string { return "SetBindings " + o.Bindings.String() }

// SetViewportOp records Stream.SetViewport.
type SetViewportOp struct {
	Rect meshpass.Rect
}

// Type implements Op.
func (SetViewportOp) Type() OpType { return OpSetViewport }

func (o SetViewportOp) String() string { return "SetViewport " + o.Rect.String() }

// DrawElementOp records Stream.DrawElement. Only the geometry id is kept.
type DrawElementOp struct {
	Geometry uint64
	Element  int
	Instance uint64
}

// Type implements Op.
func (DrawElementOp) Type() OpType { return OpDrawElement }

func (o DrawElementOp) String() string {
	return fmt.Sprintf("DrawElement geom=%d elem=%d inst=%d", o.Geometry, o.Element, o.Instance)
}

// DrawFullscreenOp records Stream.DrawFullscreen.
type DrawFullscreenOp struct{}

// Type implements Op.
func (DrawFullscreenOp) Type() OpType { return OpDrawFullscreen }

func (DrawFullscreenOp) String() string { return "DrawFullscreen" }
