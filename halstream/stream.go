package halstream

import (
	"fmt"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/meshpass"
)

// Stats counts the work encoded by a Stream.
type Stats struct {
	Passes    int
	Pipelines int
	BindSets  int
	Draws     int
}

// Option configures a Stream.
type Option func(*Stream)

// WithPipelineCache shares a pipeline cache between streams.
func WithPipelineCache(c *PipelineCache) Option {
	return func(s *Stream) { s.pipelines = c }
}

// WithShaderModules shares a shader module cache between streams.
func WithShaderModules(m *ShaderModules) Option {
	return func(s *Stream) { s.shaders = m }
}

// WithVertexBuffers sets the vertex buffer layouts of a vertex layout.
func WithVertexBuffers(layout meshpass.VertexLayout, buffers ...gputypes.VertexBufferLayout) Option {
	return func(s *Stream) { s.vertexBuffers[layout] = buffers }
}

// Stream encodes meshpass stream calls with a HAL command encoder.
type Stream struct {
	device        hal.Device
	host          Host
	pipelines     *PipelineCache
	shaders       *ShaderModules
	vertexBuffers map[meshpass.VertexLayout][]gputypes.VertexBufferLayout

	encoder hal.CommandEncoder
	pass    hal.RenderPassEncoder
	formats TargetFormats
	variant meshpass.ShaderVariantKey
	bound   bool

	// Attachments already written in this encoding. An attachment without
	// an explicit load op is cleared on first use and loaded afterwards.
	written map[uint64]bool

	stats Stats
}

var _ meshpass.Stream = (*Stream)(nil)

// New creates a stream on device.
func New(device hal.Device, host Host, opts ...Option) *Stream {
	s := &Stream{
		device:        device,
		host:          host,
		vertexBuffers: make(map[meshpass.VertexLayout][]gputypes.VertexBufferLayout),
		written:       make(map[uint64]bool),
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.pipelines == nil {
		s.pipelines = NewPipelineCache(device)
	}
	if s.shaders == nil {
		s.shaders = NewShaderModules(device, nil)
	}
	return s
}

// Stats returns the counts since the last Finish.
func (s *Stream) Stats() Stats { return s.stats }

// BeginPass implements meshpass.Stream.
func (s *Stream) BeginPass(label string, targets *meshpass.RenderTargetSet) error {
	if s.device == nil {
		return ErrNilDevice
	}
	if s.pass != nil {
		return ErrPassOpen
	}
	formats, err := FormatsOf(targets)
	if err != nil {
		return err
	}
	desc, err := s.passDescriptor(label, targets)
	if err != nil {
		return err
	}
	if s.encoder == nil {
		enc, err := s.device.CreateCommandEncoder(&hal.CommandEncoderDescriptor{Label: "meshpass"})
		if err != nil {
			return fmt.Errorf("halstream: create encoder: %w", err)
		}
		if err := enc.BeginEncoding(label); err != nil {
			return fmt.Errorf("halstream: begin encoding: %w", err)
		}
		s.encoder = enc
	}
	s.pass = s.encoder.BeginRenderPass(desc)
	s.formats = formats
	s.bound = false
	s.stats.Passes++
	return nil
}

func (s *Stream) passDescriptor(label string, targets *meshpass.RenderTargetSet) (*hal.RenderPassDescriptor, error) {
	desc := &hal.RenderPassDescriptor{Label: label}
	if targets == nil {
		return desc, nil
	}
	for _, c := range targets.Color {
		view, err := lookupView(s.host.Textures, c.Handle)
		if err != nil {
			return nil, err
		}
		desc.ColorAttachments = append(desc.ColorAttachments, hal.RenderPassColorAttachment{
			View:       view,
			LoadOp:     s.loadOp(c.Handle, c.Load),
			StoreOp:    gputypes.StoreOpStore,
			ClearValue: c.Clear,
		})
	}
	if d := targets.Depth; d != nil {
		view, err := lookupView(s.host.Textures, d.Handle)
		if err != nil {
			return nil, err
		}
		att := &hal.RenderPassDepthStencilAttachment{
			View:          view,
			DepthReadOnly: d.ReadOnly,
		}
		if !d.ReadOnly {
			att.DepthLoadOp = s.loadOp(d.Handle, d.Load)
			att.DepthStoreOp = gputypes.StoreOpStore
			att.DepthClearValue = d.ClearDepth
		}
		if d.Format.HasStencil() {
			att.StencilLoadOp = gputypes.LoadOpLoad
			att.StencilStoreOp = gputypes.StoreOpStore
			att.StencilReadOnly = d.ReadOnly
		}
		desc.DepthStencilAttachment = att
	}
	return desc, nil
}

func (s *Stream) loadOp(handle uint64, op gputypes.LoadOp) gputypes.LoadOp {
	first := !s.written[handle]
	s.written[handle] = true
	if op != gputypes.LoadOpUndefined {
		return op
	}
	if first {
		return gputypes.LoadOpClear
	}
	return gputypes.LoadOpLoad
}

// EndPass implements meshpass.Stream.
func (s *Stream) EndPass() error {
	if s.pass == nil {
		return ErrNoPass
	}
	s.pass.End()
	s.pass = nil
	s.bound = false
	return nil
}

// SetPipeline implements meshpass.Stream.
func (s *Stream) SetPipeline(v meshpass.ShaderVariantKey, st meshpass.FixedFunctionState) error {
	if s.pass == nil {
		return fmt.Errorf("SetPipeline: %w", ErrNoPass)
	}
	key := PipelineKey{Variant: v.ID, State: st, Targets: s.formats}
	p, err := s.pipelines.GetOrCreate(key, func() (*hal.RenderPipelineDescriptor, error) {
		return s.pipelineDescriptor(v, st)
	})
	if err != nil {
		return err
	}
	s.pass.SetPipeline(p)
	s.variant = v
	s.bound = true
	s.stats.Pipelines++
	return nil
}

func (s *Stream) pipelineDescriptor(v meshpass.ShaderVariantKey, st meshpass.FixedFunctionState) (*hal.RenderPipelineDescriptor, error) {
	vsName, vsEntry := meshpass.SplitShader(v.Shaders.Vertex)
	fsName, fsEntry := meshpass.SplitShader(v.Shaders.Fragment)
	vs, err := s.shaders.Module(vsName)
	if err != nil {
		return nil, err
	}
	fs, err := s.shaders.Module(fsName)
	if err != nil {
		return nil, err
	}

	var layout hal.PipelineLayout
	if s.host.Layouts != nil {
		if layout, err = s.host.Layouts.PipelineLayout(v); err != nil {
			return nil, err
		}
	}

	// The HAL has no polygon mode; wireframe draws as lines.
	topology := st.Topology
	if st.Fill == meshpass.FillWireframe {
		topology = gputypes.PrimitiveTopologyLineList
	}

	desc := &hal.RenderPipelineDescriptor{
		Label:  fmt.Sprintf("%s/%s", v.Pass, v.Layout),
		Layout: layout,
		Vertex: hal.VertexState{
			Module:     vs,
			EntryPoint: vsEntry,
			Buffers:    s.vertexBuffers[v.Layout],
		},
		Primitive: gputypes.PrimitiveState{
			Topology:  topology,
			FrontFace: gputypes.FrontFaceCCW,
			CullMode:  st.Cull,
		},
		Multisample: gputypes.DefaultMultisampleState(),
		Fragment: &hal.FragmentState{
			Module:     fs,
			EntryPoint: fsEntry,
		},
	}
	for _, f := range s.formats.Colors() {
		desc.Fragment.Targets = append(desc.Fragment.Targets, gputypes.ColorTargetState{
			Format:    f,
			Blend:     st.BlendState(),
			WriteMask: gputypes.ColorWriteMaskAll,
		})
	}
	if s.formats.Depth != gputypes.TextureFormatUndefined {
		compare := st.DepthCompare
		if compare == gputypes.CompareFunctionUndefined {
			compare = gputypes.CompareFunctionAlways
		}
		desc.DepthStencil = &hal.DepthStencilState{
			Format:            s.formats.Depth,
			DepthWriteEnabled: st.DepthWrite && !s.formats.DepthReadOnly,
			DepthCompare:      compare,
			StencilFront:      hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
			StencilBack:       hal.StencilFaceState{Compare: gputypes.CompareFunctionAlways},
		}
	}
	return desc, nil
}

// SetBindings implements meshpass.Stream.
func (s *Stream) SetBindings(b meshpass.Bindings) error {
	if s.pass == nil {
		return fmt.Errorf("SetBindings: %w", ErrNoPass)
	}
	if b.Len() == 0 {
		return nil
	}
	if s.host.Bindings == nil {
		return ErrNoUploader
	}
	groups, err := s.host.Bindings.Upload(s.variant, b)
	if err != nil {
		return err
	}
	for i, g := range groups {
		s.pass.SetBindGroup(uint32(i), g, nil)
	}
	s.stats.BindSets++
	return nil
}

// SetViewport implements meshpass.Stream.
func (s *Stream) SetViewport(r meshpass.Rect) error {
	if s.pass == nil {
		return fmt.Errorf("SetViewport: %w", ErrNoPass)
	}
	s.pass.SetViewport(float32(r.X), float32(r.Y), float32(r.Width), float32(r.Height), 0, 1)
	s.pass.SetScissorRect(uint32(r.X), uint32(r.Y), uint32(r.Width), uint32(r.Height))
	return nil
}

// DrawElement implements meshpass.Stream.
func (s *Stream) DrawElement(g meshpass.Geometry, element int, instance uint64) error {
	if err := s.checkDraw(); err != nil {
		return fmt.Errorf("DrawElement: %w", err)
	}
	if s.host.Geometry == nil {
		return fmt.Errorf("%w: geometry %d element %d", ErrNoGeometry, g.ID, element)
	}
	d, err := s.host.Geometry.Element(g, element, instance)
	if err != nil {
		return err
	}
	for slot, buf := range d.Vertex {
		s.pass.SetVertexBuffer(uint32(slot), buf, 0)
	}
	if d.Index != nil {
		s.pass.SetIndexBuffer(d.Index, d.IndexFormat, 0)
		s.pass.DrawIndexed(d.IndexCount, 1, d.FirstIndex, d.BaseVertex, d.FirstInstance)
	} else {
		s.pass.Draw(d.VertexCount, 1, d.FirstVertex, d.FirstInstance)
	}
	s.stats.Draws++
	return nil
}

// DrawFullscreen implements meshpass.Stream. It draws one triangle covering
// the viewport; the vertex shader derives positions from the vertex index.
func (s *Stream) DrawFullscreen() error {
	if err := s.checkDraw(); err != nil {
		return fmt.Errorf("DrawFullscreen: %w", err)
	}
	s.pass.Draw(3, 1, 0, 0)
	s.stats.Draws++
	return nil
}

func (s *Stream) checkDraw() error {
	if s.pass == nil {
		return ErrNoPass
	}
	if !s.bound {
		return ErrNoPipeline
	}
	return nil
}

// Finish ends encoding and returns the command buffer. The stream can then
// encode the next frame.
func (s *Stream) Finish() (hal.CommandBuffer, error) {
	if s.pass != nil {
		return nil, ErrPassOpen
	}
	if s.encoder == nil {
		return nil, ErrNoCommands
	}
	enc := s.encoder
	s.encoder = nil
	clear(s.written)
	s.stats = Stats{}
	cb, err := enc.EndEncoding()
	if err != nil {
		return nil, fmt.Errorf("halstream: end encoding: %w", err)
	}
	return cb, nil
}

// Submit finishes encoding and submits the command buffer to queue.
func (s *Stream) Submit(queue hal.Queue) (uint64, error) {
	cb, err := s.Finish()
	if err != nil {
		return 0, err
	}
	return queue.Submit([]hal.CommandBuffer{cb})
}

// Discard abandons everything encoded since the last Finish.
func (s *Stream) Discard() {
	if s.pass != nil {
		s.pass.End()
		s.pass = nil
	}
	if s.encoder != nil {
		s.encoder.DiscardEncoding()
		s.encoder = nil
	}
	clear(s.written)
	s.stats = Stats{}
}
