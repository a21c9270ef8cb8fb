package meshpass

import (
	"encoding/binary"
	"fmt"
	"hash/fnv"

	"github.com/gogpu/gputypes"
)

// FillMode selects solid or wireframe rasterization.
type FillMode uint8

const (
	// FillSolid rasterizes filled triangles.
	FillSolid FillMode = iota
	// FillWireframe rasterizes triangle edges only.
	FillWireframe
)

// String returns the fill mode name.
func (m FillMode) String() string {
	switch m {
	case FillSolid:
		return "Solid"
	case FillWireframe:
		return "Wireframe"
	default:
		return fmt.Sprintf("FillMode(%d)", m)
	}
}

// DepthMode is the depth test configuration of a pass.
type DepthMode struct {
	Compare gputypes.CompareFunction
	Write   bool
}

// DepthNearOrEqual returns the compare function that passes for fragments at
// or in front of the stored depth. With a reversed depth buffer nearer
// fragments have larger depth values.
func DepthNearOrEqual(reversedZ bool) gputypes.CompareFunction {
	if reversedZ {
		return gputypes.CompareFunctionGreaterEqual
	}
	return gputypes.CompareFunctionLessEqual
}

// FixedFunctionState is the non-programmable pipeline state of a draw.
// It is a comparable value: two draws with equal states share a pipeline.
type FixedFunctionState struct {
	BlendEnabled bool
	Blend        gputypes.BlendState
	DepthCompare gputypes.CompareFunction
	DepthWrite   bool
	Fill         FillMode
	Cull         gputypes.CullMode
	Topology     gputypes.PrimitiveTopology
}

// DepthEnabled reports whether the state reads or writes depth.
func (s FixedFunctionState) DepthEnabled() bool {
	return s.DepthWrite || (s.DepthCompare != gputypes.CompareFunctionAlways &&
		s.DepthCompare != gputypes.CompareFunctionUndefined)
}

// BlendState returns the blend state to place in a color target, or nil when
// blending is disabled.
func (s FixedFunctionState) BlendState() *gputypes.BlendState {
	if !s.BlendEnabled {
		return nil
	}
	b := s.Blend
	return &b
}

// Hash returns a deterministic FNV-1a hash of the state.
func (s FixedFunctionState) Hash() uint64 {
	h := fnv.New64a()
	var buf [4]byte
	put := func(v uint32) {
		binary.LittleEndian.PutUint32(buf[:], v)
		_, _ = h.Write(buf[:]) // fnv.Write never returns an error
	}
	if s.BlendEnabled {
		put(1)
		put(uint32(s.Blend.Color.SrcFactor))
		put(uint32(s.Blend.Color.DstFactor))
		put(uint32(s.Blend.Color.Operation))
		put(uint32(s.Blend.Alpha.SrcFactor))
		put(uint32(s.Blend.Alpha.DstFactor))
		put(uint32(s.Blend.Alpha.Operation))
	} else {
		put(0)
	}
	put(uint32(s.DepthCompare))
	if s.DepthWrite {
		put(1)
	} else {
		put(0)
	}
	put(uint32(s.Fill))
	put(uint32(s.Cull))
	put(uint32(s.Topology))
	return h.Sum64()
}

// String returns a compact description used in traces and logs.
func (s FixedFunctionState) String() string {
	blend := "off"
	if s.BlendEnabled {
		blend = fmt.Sprintf("%s(%s,%s)", s.Blend.Color.Operation, s.Blend.Color.SrcFactor, s.Blend.Color.DstFactor)
	}
	return fmt.Sprintf("blend=%s depth=%s write=%t fill=%s cull=%s", blend, s.DepthCompare, s.DepthWrite, s.Fill, s.Cull)
}

// AdditiveBlend returns dst' = dst + src for color and alpha.
func AdditiveBlend() gputypes.BlendState {
	add := gputypes.BlendComponent{
		SrcFactor: gputypes.BlendFactorOne,
		DstFactor: gputypes.BlendFactorOne,
		Operation: gputypes.BlendOperationAdd,
	}
	return gputypes.BlendState{Color: add, Alpha: add}
}

// ComputeState derives the fixed-function state of a draw from the pass
// defaults and the material override flags. It depends on nothing else.
func ComputeState(cfg *PassConfig, ov RasterOverrides) FixedFunctionState {
	st := FixedFunctionState{
		DepthCompare: cfg.Depth.Compare,
		DepthWrite:   cfg.Depth.Write,
		Fill:         FillSolid,
		Cull:         gputypes.CullModeBack,
		Topology:     gputypes.PrimitiveTopologyTriangleList,
	}
	if cfg.Blend != nil {
		st.BlendEnabled = true
		st.Blend = *cfg.Blend
	}
	if ov.Wireframe {
		st.Fill = FillWireframe
	}
	if ov.TwoSided {
		st.Cull = gputypes.CullModeNone
	}
	return st
}
