package trace

import (
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"

	"github.com/gogpu/meshpass"
)

// Stream misuse reported by Recorder.
var (
	// ErrNotInPass is returned for state or draw calls outside BeginPass/EndPass.
	ErrNotInPass = errors.New("trace: call outside a render pass")

	// ErrPassOpen is returned by BeginPass while a pass is open.
	ErrPassOpen = errors.New("trace: render pass already open")

	// ErrNoPipeline is returned for a draw before any SetPipeline in the pass.
	ErrNoPipeline = errors.New("trace: draw without a bound pipeline")
)

// Recorder is a meshpass.Stream that records calls. It enforces the stream
// protocol: state and draws only inside a pass, draws only after a pipeline.
//
// Recorder is safe for concurrent use, but ops from concurrent callers
// interleave.
type Recorder struct {
	mu       sync.Mutex
	ops      []Op
	inPass   bool
	pipeline bool
	passes   int
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{}
}

func (r *Recorder) record(op Op) {
	r.ops = append(r.ops, op)
}

// BeginPass implements meshpass.Stream.
func (r *Recorder) BeginPass(label string, targets *meshpass.RenderTargetSet) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.inPass {
		return ErrPassOpen
	}
	op := BeginPassOp{Label: label}
	if targets != nil {
		op.Targets = *targets
		op.Targets.Color = slices.Clone(targets.Color)
		if targets.Depth != nil {
			d := *targets.Depth
			op.Targets.Depth = &d
		}
	}
	r.inPass = true
	r.pipeline = false
	r.passes++
	r.record(op)
	return nil
}

// EndPass implements meshpass.Stream.
func (r *Recorder) EndPass() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inPass {
		return ErrNotInPass
	}
	r.inPass = false
	r.record(EndPassOp{})
	return nil
}

// SetPipeline implements meshpass.Stream.
func (r *Recorder) SetPipeline(v meshpass.ShaderVariantKey, st meshpass.FixedFunctionState) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inPass {
		return fmt.Errorf("SetPipeline: %w", ErrNotInPass)
	}
	r.pipeline = true
	r.record(SetPipelineOp{Variant: v, State: st})
	return nil
}

// SetBindings implements meshpass.Stream.
func (r *Recorder) SetBindings(b meshpass.Bindings) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inPass {
		return fmt.Errorf("SetBindings: %w", ErrNotInPass)
	}
	r.record(SetBindingsOp{Bindings: b})
	return nil
}

// SetViewport implements meshpass.Stream.
func (r *Recorder) SetViewport(rect meshpass.Rect) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.inPass {
		return fmt.Errorf("SetViewport: %w", ErrNotInPass)
	}
	r.record(SetViewportOp{Rect: rect})
	return nil
}

// DrawElement implements meshpass.Stream.
func (r *Recorder) DrawElement(g meshpass.Geometry, element int, instance uint64) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkDraw(); err != nil {
		return fmt.Errorf("DrawElement: %w", err)
	}
	r.record(DrawElementOp{Geometry: g.ID, Element: element, Instance: instance})
	return nil
}

// DrawFullscreen implements meshpass.Stream.
func (r *Recorder) DrawFullscreen() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.checkDraw(); err != nil {
		return fmt.Errorf("DrawFullscreen: %w", err)
	}
	r.record(DrawFullscreenOp{})
	return nil
}

func (r *Recorder) checkDraw() error {
	if !r.inPass {
		return ErrNotInPass
	}
	if !r.pipeline {
		return ErrNoPipeline
	}
	return nil
}

// Len returns the number of recorded ops.
func (r *Recorder) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.ops)
}

// Reset discards every recorded op.
func (r *Recorder) Reset() {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ops = nil
	r.inPass = false
	r.pipeline = false
	r.passes = 0
}

// Finish returns an immutable Recording of the ops so far. The recorder can
// keep recording; later ops are not part of the returned Recording.
func (r *Recorder) Finish() *Recording {
	r.mu.Lock()
	defer r.mu.Unlock()
	return &Recording{ops: slices.Clone(r.ops), passes: r.passes}
}

// Recording is an immutable sequence of recorded ops.
type Recording struct {
	ops    []Op
	passes int
}

// Ops returns a copy of the recorded ops.
func (r *Recording) Ops() []Op { return slices.Clone(r.ops) }

// Len returns the number of ops.
func (r *Recording) Len() int { return len(r.ops) }

// Passes returns the number of render passes begun.
func (r *Recording) Passes() int { return r.passes }

// Count returns the number of ops of type t.
func (r *Recording) Count(t OpType) int {
	n := 0
	for _, op := range r.ops {
		if op.Type() == t {
			n++
		}
	}
	return n
}

// Draws returns the number of draw ops.
func (r *Recording) Draws() int {
	return r.Count(OpDrawElement) + r.Count(OpDrawFullscreen)
}

// Lines returns the text form of every op.
func (r *Recording) Lines() []string {
	out := make([]string, len(r.ops))
	for i, op := range r.ops {
		out[i] = op.String()
	}
	return out
}

// Equal reports whether r and o record the same calls.
func (r *Recording) Equal(o *Recording) bool {
	return r.Diff(o) < 0
}

// Diff returns the index of the first op that differs between r and o, or
// -1 if they are equal.
func (r *Recording) Diff(o *Recording) int {
	n := min(len(r.ops), len(o.ops))
	for i := range n {
		if r.ops[i].Type() != o.ops[i].Type() || r.ops[i].String() != o.ops[i].String() {
			return i
		}
	}
	if len(r.ops) != len(o.ops) {
		return n
	}
	return -1
}

// WriteTo writes one op per line, prefixed by its index.
func (r *Recording) WriteTo(w io.Writer) (int64, error) {
	var total int64
	for i, op := range r.ops {
		n, err := fmt.Fprintf(w, "%4d %s\n", i, op)
		total += int64(n)
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// Playback replays the recording onto s. Geometry is replayed by id only.
func (r *Recording) Playback(s meshpass.Stream) error {
	for i, op := range r.ops {
		var err error
		switch o := op.(type) {
		case BeginPassOp:
			t := o.Targets
			err = s.BeginPass(o.Label, &t)
		case EndPassOp:
			err = s.EndPass()
		case SetPipelineOp:
			err = s.SetPipeline(o.Variant, o.State)
		case SetBindingsOp:
			err = s.SetBindings(o.Bindings)
		case SetViewportOp:
			err = s.SetViewport(o.Rect)
		case DrawElementOp:
			err = s.DrawElement(meshpass.Geometry{ID: o.Geometry}, o.Element, o.Instance)
		case DrawFullscreenOp:
			err = s.DrawFullscreen()
		}
		if err != nil {
			return fmt.Errorf("trace: playback op %d (%s): %w", i, op.Type(), err)
		}
	}
	return nil
}
