package meshpass

import (
	"fmt"

	"github.com/gogpu/gputypes"
)

// Rect is a viewport rectangle in pixels.
type Rect struct {
	X, Y          uint32
	Width, Height uint32
}

// Empty reports whether r covers no pixels.
func (r Rect) Empty() bool { return r.Width == 0 || r.Height == 0 }

// String formats r as x,y wxh.
func (r Rect) String() string {
	return fmt.Sprintf("%d,%d %dx%d", r.X, r.Y, r.Width, r.Height)
}

// ColorTarget is one color attachment. Handle is a host texture-view id.
type ColorTarget struct {
	Handle uint64
	Format gputypes.TextureFormat
	Load   gputypes.LoadOp
	Clear  gputypes.Color
}

// DepthTarget is the depth/stencil attachment of a RenderTargetSet.
type DepthTarget struct {
	Handle     uint64
	Format     gputypes.TextureFormat
	Load       gputypes.LoadOp
	ClearDepth float32

	// ReadOnly targets reject depth-writing states.
	ReadOnly bool
}

// RenderTargetSet is the set of color and depth targets a pass renders into
// for one view. It is supplied by the caller each frame.
type RenderTargetSet struct {
	Label    string
	Color    []ColorTarget
	Depth    *DepthTarget
	Viewport Rect
}

// Validate checks the target set itself: a depth binding with a depth format
// is required.
func (t *RenderTargetSet) Validate() error {
	if t == nil || t.Depth == nil {
		return ErrNoDepthTarget
	}
	if !t.Depth.Format.HasDepth() {
		return fmt.Errorf("%w: depth format %s", ErrIncompatibleTargets, t.Depth.Format)
	}
	return nil
}

// Accepts reports whether the targets can receive draws with state.
func (t *RenderTargetSet) Accepts(state FixedFunctionState) error {
	if err := t.Validate(); err != nil {
		return err
	}
	if state.DepthWrite && t.Depth.ReadOnly {
		return fmt.Errorf("%w: depth write on read-only depth %q", ErrIncompatibleTargets, t.Label)
	}
	if state.BlendEnabled && len(t.Color) == 0 {
		return fmt.Errorf("%w: blended state without color targets %q", ErrIncompatibleTargets, t.Label)
	}
	return nil
}
