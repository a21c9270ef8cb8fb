package meshpass

import (
	"cmp"
	"fmt"
	"iter"
	"slices"
	"sync"
)

// SortKey orders draws to minimize pipeline switches. It affects
// performance only; any order of independent draws renders the same image.
type SortKey uint64

// ComputeSortKey combines variant identity (high 32 bits) with state
// identity (low 32 bits). Equal (variant, state) pairs get equal keys and
// therefore sort adjacently.
func ComputeSortKey(variant ShaderVariantKey, state FixedFunctionState) SortKey {
	v := variant.ID ^ (variant.ID >> 32)
	s := state.Hash()
	s ^= s >> 32
	return SortKey(v<<32 | s&0xffffffff)
}

// DrawCommand is the immutable record of one accepted item. It is created
// once per accepted item and discarded at the end of the frame.
type DrawCommand struct {
	Item     DrawableItem
	Variant  ShaderVariantKey
	State    FixedFunctionState
	SortKey  SortKey
	Bindings Bindings
}

// PipelineEqual reports whether c and o bind the same pipeline.
func (c *DrawCommand) PipelineEqual(o *DrawCommand) bool {
	return c.Variant.ID == o.Variant.ID && c.State == o.State
}

// BuildCommand creates the draw command for an accepted item.
func BuildCommand(item DrawableItem, variant ShaderVariantKey, state FixedFunctionState, b Bindings) DrawCommand {
	return DrawCommand{
		Item:     item,
		Variant:  variant,
		State:    state,
		SortKey:  ComputeSortKey(variant, state),
		Bindings: b,
	}
}

// compareCommands is the total order used by Finalize: sort key first, then
// the scene-stable index of the item.
func compareCommands(a, b DrawCommand) int {
	if c := cmp.Compare(a.SortKey, b.SortKey); c != 0 {
		return c
	}
	return cmp.Compare(a.Item.StableIndex, b.Item.StableIndex)
}

// SortCommands sorts cmds in place by (SortKey, StableIndex). The sort is
// stable, so sorting an already sorted slice leaves it unchanged.
func SortCommands(cmds []DrawCommand) {
	slices.SortStableFunc(cmds, compareCommands)
}

// CommandSink receives draw commands from a PassProcessor.
type CommandSink interface {
	Append(cmd DrawCommand) error
}

// CommandBucket is a thread-local partial command list. Each worker fills
// its own bucket; buckets are merged into a DrawCommandBuilder before
// Finalize. A bucket is not safe for concurrent use.
type CommandBucket struct {
	cmds []DrawCommand
}

// NewCommandBucket creates a bucket with room for n commands.
func NewCommandBucket(n int) *CommandBucket {
	return &CommandBucket{cmds: make([]DrawCommand, 0, n)}
}

// Append implements CommandSink. It never fails.
func (b *CommandBucket) Append(cmd DrawCommand) error {
	b.cmds = append(b.cmds, cmd)
	return nil
}

// Len returns the number of buffered commands.
func (b *CommandBucket) Len() int { return len(b.cmds) }

// Reset empties the bucket, keeping its capacity.
func (b *CommandBucket) Reset() { b.cmds = b.cmds[:0] }

// DrawCommandBuilder accumulates the draw commands of one (pass, view,
// frame) and freezes them into a CommandList exactly once.
//
// Append and Merge are safe for concurrent use.
//
// Lifecycle:
//
//	Building -> Finalize() -> Finalized
type DrawCommandBuilder struct {
	mu        sync.Mutex
	pass      PassID
	view      ViewID
	frame     uint64
	cmds      []DrawCommand
	finalized bool
}

// NewDrawCommandBuilder creates an empty builder.
func NewDrawCommandBuilder(pass PassID, view ViewID, frame uint64) *DrawCommandBuilder {
	return &DrawCommandBuilder{pass: pass, view: view, frame: frame}
}

// Build creates a draw command. It does not append it.
func (b *DrawCommandBuilder) Build(item DrawableItem, variant ShaderVariantKey, state FixedFunctionState, bindings Bindings) DrawCommand {
	return BuildCommand(item, variant, state, bindings)
}

// Append adds cmd. After Finalize it reports a protocol violation and leaves
// the command list unchanged.
func (b *DrawCommandBuilder) Append(cmd DrawCommand) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return fmt.Errorf("%w: %w (pass %s)", ErrProtocolViolation, ErrAppendAfterFinalize, b.pass)
	}
	b.cmds = append(b.cmds, cmd)
	return nil
}

// Merge moves the contents of bucket into the builder and resets the bucket.
// Merge order does not affect the finalized order.
func (b *DrawCommandBuilder) Merge(bucket *CommandBucket) error {
	if bucket == nil {
		return nil
	}
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return fmt.Errorf("%w: %w (pass %s)", ErrProtocolViolation, ErrAppendAfterFinalize, b.pass)
	}
	b.cmds = append(b.cmds, bucket.cmds...)
	bucket.Reset()
	return nil
}

// Len returns the number of commands appended so far.
func (b *DrawCommandBuilder) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.cmds)
}

// Finalized reports whether Finalize has been called.
func (b *DrawCommandBuilder) Finalized() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.finalized
}

// Finalize sorts the commands and freezes them into a CommandList.
// It must be called exactly once.
func (b *DrawCommandBuilder) Finalize() (*CommandList, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finalized {
		return nil, fmt.Errorf("%w: %w (pass %s)", ErrProtocolViolation, ErrAlreadyFinalized, b.pass)
	}
	b.finalized = true
	cmds := b.cmds
	b.cmds = nil
	SortCommands(cmds)
	return &CommandList{
		pass:   b.pass,
		view:   b.view,
		frame:  b.frame,
		cmds:   cmds,
		frozen: true,
	}, nil
}

// CommandList is the frozen, sorted draw list of one (pass, view, frame).
// Only DrawCommandBuilder.Finalize produces a usable list; the zero value is
// rejected by PassExecutor.
type CommandList struct {
	pass   PassID
	view   ViewID
	frame  uint64
	cmds   []DrawCommand
	frozen bool
}

// Pass returns the pass the list was built for.
func (l *CommandList) Pass() PassID { return l.pass }

// View returns the view the list was built for.
func (l *CommandList) View() ViewID { return l.view }

// Frame returns the frame number the list was built for.
func (l *CommandList) Frame() uint64 { return l.frame }

// Len returns the number of commands.
func (l *CommandList) Len() int {
	if l == nil {
		return 0
	}
	return len(l.cmds)
}

// At returns the i-th command in execution order.
func (l *CommandList) At(i int) DrawCommand { return l.cmds[i] }

// All iterates the commands in execution order.
func (l *CommandList) All() iter.Seq2[int, DrawCommand] {
	return func(yield func(int, DrawCommand) bool) {
		if l == nil {
			return
		}
		for i, c := range l.cmds {
			if !yield(i, c) {
				return
			}
		}
	}
}

// Commands returns a copy of the commands in execution order.
func (l *CommandList) Commands() []DrawCommand {
	if l == nil {
		return nil
	}
	return slices.Clone(l.cmds)
}

func (l *CommandList) finalized() bool { return l != nil && l.frozen }
