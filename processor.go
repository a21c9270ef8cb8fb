package meshpass

import (
	"fmt"
	"sync/atomic"

	"github.com/gogpu/gputypes"
)

// BindFunc resolves the shader parameters of an accepted item.
type BindFunc func(item DrawableItem) Bindings

// PassConfig describes one mesh pass. It replaces per-pass subclassing: the
// toon outline and toon shaded passes are two PassConfig values.
type PassConfig struct {
	// ID is the registry identifier of the pass.
	ID PassID

	// Name is a human-readable label used in logs and traces.
	Name string

	// RequiredFeature must be declared by a material for the pass to
	// accept it. Zero accepts every non-nil material.
	RequiredFeature FeatureFlags

	// Depth is the default depth test of the pass.
	Depth DepthMode

	// Blend is the color blend of the pass; nil disables blending.
	Blend *gputypes.BlendState

	// Shaders names the vertex and fragment programs of the pass.
	Shaders ShaderPair

	// Bind resolves per-item parameters. Nil binds nothing.
	Bind BindFunc
}

// Label returns Name, or ID if Name is empty.
func (c *PassConfig) Label() string {
	if c.Name != "" {
		return c.Name
	}
	return string(c.ID)
}

// RejectReason classifies a silently rejected item.
type RejectReason uint8

const (
	// RejectNone means the item was accepted.
	RejectNone RejectReason = iota
	// RejectNilMaterial means the item had no material.
	RejectNilMaterial
	// RejectMissingFeature means the material lacks the pass' required feature.
	RejectMissingFeature
	// RejectNoVariant means no shader variant exists for the material and layout.
	RejectNoVariant
	// RejectEmptyMask means no existing element was selected.
	RejectEmptyMask
)

var rejectNames = [...]string{"accepted", "nil-material", "missing-feature", "no-variant", "empty-mask"}

// String returns the reason name.
func (r RejectReason) String() string {
	if int(r) < len(rejectNames) {
		return rejectNames[r]
	}
	return fmt.Sprintf("RejectReason(%d)", r)
}

// ProcessorStats counts the outcome of every Submit call.
type ProcessorStats struct {
	Accepted       uint64
	NilMaterial    uint64
	MissingFeature uint64
	NoVariant      uint64
	EmptyMask      uint64
}

// Rejected returns the total number of rejected items.
func (s ProcessorStats) Rejected() uint64 {
	return s.NilMaterial + s.MissingFeature + s.NoVariant + s.EmptyMask
}

// Add returns the field-wise sum of s and o.
func (s ProcessorStats) Add(o ProcessorStats) ProcessorStats {
	return ProcessorStats{
		Accepted:       s.Accepted + o.Accepted,
		NilMaterial:    s.NilMaterial + o.NilMaterial,
		MissingFeature: s.MissingFeature + o.MissingFeature,
		NoVariant:      s.NoVariant + o.NoVariant,
		EmptyMask:      s.EmptyMask + o.EmptyMask,
	}
}

// PassProcessor classifies drawable items for one pass and forwards a draw
// command for every accepted item to its sink.
//
// Submit is safe for concurrent use when the sink is. Processors hold no
// per-item state between calls.
type PassProcessor struct {
	cfg      PassConfig
	resolver ShaderVariantResolver
	sink     CommandSink

	counts [len(rejectNames)]atomic.Uint64
}

// NewPassProcessor creates a processor for cfg. resolver and sink must not be nil.
func NewPassProcessor(cfg PassConfig, resolver ShaderVariantResolver, sink CommandSink) *PassProcessor {
	return &PassProcessor{cfg: cfg, resolver: resolver, sink: sink}
}

// Config returns the pass configuration.
func (p *PassProcessor) Config() *PassConfig { return &p.cfg }

// WithSink returns a processor sharing p's configuration and resolver that
// forwards to sink. Statistics are not shared.
func (p *PassProcessor) WithSink(sink CommandSink) *PassProcessor {
	return NewPassProcessor(p.cfg, p.resolver, sink)
}

// Classify decides whether item is drawn by the pass. It returns the variant
// and state of the draw, or the reason the item is rejected.
func (p *PassProcessor) Classify(item DrawableItem) (ShaderVariantKey, FixedFunctionState, RejectReason) {
	mat := item.Material
	if mat.IsNil() {
		return ShaderVariantKey{}, FixedFunctionState{}, RejectNilMaterial
	}
	if !mat.Features().Has(p.cfg.RequiredFeature) {
		return ShaderVariantKey{}, FixedFunctionState{}, RejectMissingFeature
	}
	variant, ok := p.resolver.Resolve(p.cfg.ID, mat, item.Geometry.VertexLayout())
	if !ok {
		return ShaderVariantKey{}, FixedFunctionState{}, RejectNoVariant
	}
	if len(item.Elements()) == 0 {
		return ShaderVariantKey{}, FixedFunctionState{}, RejectEmptyMask
	}
	return variant, ComputeState(&p.cfg, mat.RasterOverrides()), RejectNone
}

// Submit classifies item and, if accepted, appends its draw command to the
// sink. Rejection is not an error. The only error returned is a protocol
// violation reported by the sink.
func (p *PassProcessor) Submit(item DrawableItem) error {
	variant, state, reason := p.Classify(item)
	if reason != RejectNone {
		p.counts[reason].Add(1)
		Logger().Debug("meshpass: item rejected",
			"pass", p.cfg.ID, "item", item.StableIndex, "reason", reason)
		return nil
	}

	var b Bindings
	if p.cfg.Bind != nil {
		b = p.cfg.Bind(item)
	}
	if err := p.sink.Append(BuildCommand(item, variant, state, b)); err != nil {
		return fmt.Errorf("submit %s: %w", p.cfg.ID, err)
	}
	p.counts[RejectNone].Add(1)
	return nil
}

// Stats returns a snapshot of the outcome counters.
func (p *PassProcessor) Stats() ProcessorStats {
	return ProcessorStats{
		Accepted:       p.counts[RejectNone].Load(),
		NilMaterial:    p.counts[RejectNilMaterial].Load(),
		MissingFeature: p.counts[RejectMissingFeature].Load(),
		NoVariant:      p.counts[RejectNoVariant].Load(),
		EmptyMask:      p.counts[RejectEmptyMask].Load(),
	}
}
