package meshpass

import (
	"errors"
	"fmt"
	"sync"
)

// Stream is a GPU command stream for one view. Implementations translate the
// calls into backend commands or record them. A Stream is used by one
// goroutine at a time.
type Stream interface {
	// BeginPass opens a render pass writing to targets.
	BeginPass(label string, targets *RenderTargetSet) error

	// SetPipeline binds the shader variant and fixed-function state.
	SetPipeline(variant ShaderVariantKey, state FixedFunctionState) error

	// SetBindings uploads the shader parameters of the next draws.
	SetBindings(b Bindings) error

	// SetViewport restricts rasterization to r.
	SetViewport(r Rect) error

	// DrawElement draws one sub-element of geom.
	DrawElement(geom Geometry, element int, instance uint64) error

	// DrawFullscreen draws a quad covering the viewport.
	DrawFullscreen() error

	// EndPass closes the render pass.
	EndPass() error
}

// ParameterBinder resolves and uploads all shader inputs of a command.
// A failing Bind skips the command; it never aborts the pass.
type ParameterBinder interface {
	Bind(s Stream, cmd *DrawCommand) error
}

// BinderFunc adapts a function to ParameterBinder.
type BinderFunc func(s Stream, cmd *DrawCommand) error

// Bind calls f(s, cmd).
func (f BinderFunc) Bind(s Stream, cmd *DrawCommand) error { return f(s, cmd) }

// DirectBinder uploads the command's resolved bindings unchanged.
type DirectBinder struct{}

// Bind implements ParameterBinder.
func (DirectBinder) Bind(s Stream, cmd *DrawCommand) error {
	return s.SetBindings(cmd.Bindings)
}

// ViewBinder binds the view constants followed by each command's own
// bindings as one set. A nil Next uses DirectBinder.
type ViewBinder struct {
	View Bindings
	Next ParameterBinder
}

// Bind implements ParameterBinder.
func (b ViewBinder) Bind(s Stream, cmd *DrawCommand) error {
	next := b.Next
	if next == nil {
		next = DirectBinder{}
	}
	if b.View.Len() == 0 {
		return next.Bind(s, cmd)
	}
	c := *cmd
	c.Bindings = b.View.Concat(cmd.Bindings)
	return next.Bind(s, &c)
}

// ExecStats describes the last Execute call.
type ExecStats struct {
	Commands      int
	PipelineBinds int
	Draws         int
	Skipped       int
}

// PassExecutor replays finalized command lists of one pass onto a Stream.
// Pipeline state is bound only when it differs from the previous command.
//
// Execute never mutates the list, its items or their materials, so executing
// the same list twice issues the same calls.
type PassExecutor struct {
	pass   PassID
	binder ParameterBinder

	mu   sync.Mutex
	last ExecStats
}

// NewPassExecutor creates an executor for pass. A nil binder uses DirectBinder.
func NewPassExecutor(pass PassID, binder ParameterBinder) *PassExecutor {
	if binder == nil {
		binder = DirectBinder{}
	}
	return &PassExecutor{pass: pass, binder: binder}
}

// Pass returns the pass the executor accepts lists for.
func (e *PassExecutor) Pass() PassID { return e.pass }

// Execute issues every command of list into stream inside one render pass
// targeting targets.
//
// A list not produced by Finalize, or built for another pass, is a protocol
// violation. A target set without a depth binding fails the whole call with
// ErrNoDepthTarget. Commands whose state the targets cannot receive, and
// commands whose parameters fail to bind, are skipped and logged. Stream
// errors abort the call.
func (e *PassExecutor) Execute(stream Stream, list *CommandList, targets *RenderTargetSet) error {
	if !list.finalized() {
		return fmt.Errorf("%w: %w", ErrProtocolViolation, ErrListNotFinalized)
	}
	if list.Pass() != e.pass {
		return fmt.Errorf("%w: %w (list %s, executor %s)", ErrProtocolViolation, ErrPassMismatch, list.Pass(), e.pass)
	}
	if err := targets.Validate(); err != nil {
		return fmt.Errorf("execute %s: %w", e.pass, err)
	}

	stats := ExecStats{Commands: list.Len()}
	defer func() {
		e.mu.Lock()
		e.last = stats
		e.mu.Unlock()
	}()

	if err := stream.BeginPass(string(e.pass), targets); err != nil {
		return fmt.Errorf("execute %s: begin: %w", e.pass, err)
	}
	if !targets.Viewport.Empty() {
		if err := stream.SetViewport(targets.Viewport); err != nil {
			return errors.Join(fmt.Errorf("execute %s: viewport: %w", e.pass, err), stream.EndPass())
		}
	}

	var bound *DrawCommand
	for i := range list.cmds {
		cmd := &list.cmds[i]

		if bound == nil || !bound.PipelineEqual(cmd) {
			if err := targets.Accepts(cmd.State); err != nil {
				Logger().Warn("meshpass: command skipped",
					"pass", e.pass, "item", cmd.Item.StableIndex, "err", err)
				stats.Skipped++
				continue
			}
			if err := stream.SetPipeline(cmd.Variant, cmd.State); err != nil {
				return errors.Join(fmt.Errorf("execute %s: pipeline: %w", e.pass, err), stream.EndPass())
			}
			bound = cmd
			stats.PipelineBinds++
		}

		if err := e.binder.Bind(stream, cmd); err != nil {
			Logger().Warn("meshpass: bind failed, command skipped",
				"pass", e.pass, "item", cmd.Item.StableIndex, "err", err)
			stats.Skipped++
			continue
		}

		for _, el := range cmd.Item.Elements() {
			if err := stream.DrawElement(cmd.Item.Geometry, el, cmd.Item.InstanceID); err != nil {
				return errors.Join(fmt.Errorf("execute %s: draw: %w", e.pass, err), stream.EndPass())
			}
			stats.Draws++
		}
	}

	if err := stream.EndPass(); err != nil {
		return fmt.Errorf("execute %s: end: %w", e.pass, err)
	}
	return nil
}

// LastStats returns the statistics of the most recent Execute call.
func (e *PassExecutor) LastStats() ExecStats {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.last
}
