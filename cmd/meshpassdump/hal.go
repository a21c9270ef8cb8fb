package main

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"
	"github.com/gogpu/wgpu/hal/noop"

	"github.com/gogpu/meshpass"
	"github.com/gogpu/meshpass/halstream"
	"github.com/gogpu/meshpass/scene"
)

// halBackend encodes every view on a HAL device. Only the noop device is
// available here, so the dump reports encoding statistics rather than
// pixels.
type halBackend struct {
	instance hal.Instance
	device   hal.Device
	queue    hal.Queue

	textures  *deviceTextures
	uploader  *halstream.UniformUploader
	pipelines *halstream.PipelineCache
	shaders   *halstream.ShaderModules
	host      halstream.Host

	streams map[meshpass.ViewID]*halstream.Stream
}

func newHALBackend() *halBackend {
	return &halBackend{streams: make(map[meshpass.ViewID]*halstream.Stream)}
}

// position and normal, one buffer each
var meshBuffers = []gputypes.VertexBufferLayout{
	{
		ArrayStride: 12,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  []gputypes.VertexAttribute{{Format: gputypes.VertexFormatFloat32x3, ShaderLocation: 0}},
	},
	{
		ArrayStride: 12,
		StepMode:    gputypes.VertexStepModeVertex,
		Attributes:  []gputypes.VertexAttribute{{Format: gputypes.VertexFormatFloat32x3, ShaderLocation: 1}},
	},
}

func (b *halBackend) Open(s *scene.Scene) error {
	instance, err := noop.API{}.CreateInstance(nil)
	if err != nil {
		return fmt.Errorf("hal: create instance: %w", err)
	}
	adapters := instance.EnumerateAdapters(nil)
	if len(adapters) == 0 {
		instance.Destroy()
		return errors.New("hal: no adapters")
	}
	dev, err := adapters[0].Adapter.Open(0, gputypes.DefaultLimits())
	if err != nil {
		instance.Destroy()
		return fmt.Errorf("hal: open device: %w", err)
	}
	b.instance, b.device, b.queue = instance, dev.Device, dev.Queue

	b.textures = &deviceTextures{device: b.device, views: halstream.NewTextureMap(), known: make(map[uint64]bool)}
	layout, err := b.device.CreateBindGroupLayout(&hal.BindGroupLayoutDescriptor{Label: "meshpass params"})
	if err != nil {
		return fmt.Errorf("hal: bind group layout: %w", err)
	}
	b.uploader = halstream.NewUniformUploader(b.device, b.queue, layout, b.textures)
	fallback, err := b.textures.create("default")
	if err != nil {
		return err
	}
	b.uploader.SetDefaultTexture(fallback)

	geom, err := newSceneGeometry(b.device, s)
	if err != nil {
		return err
	}
	b.pipelines = halstream.NewPipelineCache(b.device)
	b.shaders = halstream.NewShaderModules(b.device, nil)
	b.host = halstream.Host{Textures: b.textures, Geometry: geom, Bindings: b.uploader}
	return nil
}

func (b *halBackend) Stream(view meshpass.ViewID) meshpass.Stream {
	s := halstream.New(b.device, b.host,
		halstream.WithPipelineCache(b.pipelines),
		halstream.WithShaderModules(b.shaders),
		halstream.WithVertexBuffers(scene.LayoutStatic, meshBuffers...),
		halstream.WithVertexBuffers(scene.LayoutSkinned, meshBuffers...),
	)
	b.streams[view] = s
	return s
}

func (b *halBackend) Dump(w io.Writer) error {
	for _, id := range sortedViews(b.streams) {
		s := b.streams[id]
		st := s.Stats()
		if _, err := fmt.Fprintf(w, "# view %d: %d passes, %d pipelines bound, %d bind sets, %d draws\n",
			id, st.Passes, st.Pipelines, st.BindSets, st.Draws); err != nil {
			return err
		}
		if st.Passes == 0 {
			continue
		}
		if _, err := s.Submit(b.queue); err != nil {
			return fmt.Errorf("view %d: %w", id, err)
		}
	}
	hits, misses := b.pipelines.Stats()
	_, err := fmt.Fprintf(w, "# device: %d pipelines (%d hits, %d misses), %d shader modules, %d bind groups\n",
		b.pipelines.Len(), hits, misses, b.shaders.Len(), b.uploader.Live())
	return err
}

func (b *halBackend) Close() {
	for _, s := range b.streams {
		s.Discard()
	}
	if b.device == nil {
		return
	}
	if b.uploader != nil {
		b.uploader.Release()
	}
	if b.pipelines != nil {
		b.pipelines.Destroy()
		b.shaders.Destroy()
	}
	b.device.Destroy()
	b.instance.Destroy()
}

// deviceTextures creates a texture view for every handle on first use.
// Frame targets come from the configuration, so any handle is valid.
type deviceTextures struct {
	device hal.Device
	views  *halstream.TextureMap

	mu    sync.Mutex
	known map[uint64]bool
}

func (t *deviceTextures) create(label string) (hal.TextureView, error) {
	tex, err := t.device.CreateTexture(&hal.TextureDescriptor{Label: label})
	if err != nil {
		return nil, fmt.Errorf("hal: texture %s: %w", label, err)
	}
	view, err := t.device.CreateTextureView(tex, nil)
	if err != nil {
		return nil, fmt.Errorf("hal: texture view %s: %w", label, err)
	}
	return view, nil
}

func (t *deviceTextures) TextureView(handle uint64) (hal.TextureView, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.known[handle] {
		view, err := t.create(fmt.Sprintf("texture %d", handle))
		if err != nil {
			return nil, false
		}
		t.views.Set(handle, view)
		t.known[handle] = true
	}
	return t.views.TextureView(handle)
}

// sceneGeometry draws scene elements from shared buffers. The counts are
// the glTF accessor counts of each primitive.
type sceneGeometry struct {
	scene   *scene.Scene
	vertex  []hal.Buffer
	indices hal.Buffer
}

func newSceneGeometry(device hal.Device, s *scene.Scene) (*sceneGeometry, error) {
	g := &sceneGeometry{scene: s}
	for i := range meshBuffers {
		buf, err := device.CreateBuffer(&hal.BufferDescriptor{
			Label: fmt.Sprintf("vertex %d", i),
			Size:  1 << 16,
			Usage: gputypes.BufferUsageVertex | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, fmt.Errorf("hal: vertex buffer: %w", err)
		}
		g.vertex = append(g.vertex, buf)
	}
	buf, err := device.CreateBuffer(&hal.BufferDescriptor{
		Label: "indices",
		Size:  1 << 16,
		Usage: gputypes.BufferUsageIndex | gputypes.BufferUsageCopyDst,
	})
	if err != nil {
		return nil, fmt.Errorf("hal: index buffer: %w", err)
	}
	g.indices = buf
	return g, nil
}

func (g *sceneGeometry) Element(geom meshpass.Geometry, element int, instance uint64) (halstream.ElementDraw, error) {
	info, ok := g.scene.Element(geom.ID, element)
	if !ok {
		return halstream.ElementDraw{}, fmt.Errorf("%w: geometry %d element %d", halstream.ErrNoGeometry, geom.ID, element)
	}
	d := halstream.ElementDraw{
		Vertex:        g.vertex,
		VertexCount:   uint32(info.VertexCount),
		FirstInstance: uint32(instance),
	}
	if info.IndexCount > 0 {
		d.Index = g.indices
		d.IndexFormat = gputypes.IndexFormatUint32
		d.IndexCount = uint32(info.IndexCount)
	}
	return d, nil
}
