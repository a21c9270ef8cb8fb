package halstream

import (
	"encoding/binary"
	"fmt"
	"math"
	"sync"

	"github.com/gogpu/gputypes"
	"github.com/gogpu/wgpu/hal"

	"github.com/gogpu/meshpass"
)

// uniformAlign is the alignment of every packed parameter and of the buffer.
const uniformAlign = 16

// PackUniforms lays out the non-texture parameters of b in order, each
// starting on a 16-byte boundary: floats occupy a vec4 slot, vec4s 16 bytes
// and mat4s 64 bytes, column major.
func PackUniforms(b meshpass.Bindings) []byte {
	size := 0
	for _, p := range b.Params() {
		size += alignUp(p.Size())
	}
	if size == 0 {
		return nil
	}
	out := make([]byte, size)
	off := 0
	for _, p := range b.Params() {
		n := p.Size() / 4
		for i := range n {
			binary.LittleEndian.PutUint32(out[off+i*4:], math.Float32bits(p.Value[i]))
		}
		off += alignUp(p.Size())
	}
	return out
}

func alignUp(n int) int {
	return (n + uniformAlign - 1) &^ (uniformAlign - 1)
}

// UniformUploader is a BindingUploader producing one bind group per draw:
// binding 0 is a uniform buffer with the packed parameters, followed by one
// binding per texture parameter in order. Texture handle 0 selects the
// default texture; without one the binding is left empty.
//
// Buffers and groups live until Release, which the host calls once the GPU
// has finished the frame.
type UniformUploader struct {
	device   hal.Device
	queue    hal.Queue
	layout   hal.BindGroupLayout
	textures TextureViews
	fallback hal.TextureView

	mu      sync.Mutex
	buffers []hal.Buffer
	groups  []hal.BindGroup
}

var _ BindingUploader = (*UniformUploader)(nil)

// NewUniformUploader creates an uploader binding groups with layout.
func NewUniformUploader(device hal.Device, queue hal.Queue, layout hal.BindGroupLayout, textures TextureViews) *UniformUploader {
	return &UniformUploader{device: device, queue: queue, layout: layout, textures: textures}
}

// SetDefaultTexture sets the view bound for texture handle 0.
func (u *UniformUploader) SetDefaultTexture(view hal.TextureView) {
	u.fallback = view
}

// Upload implements BindingUploader.
func (u *UniformUploader) Upload(v meshpass.ShaderVariantKey, b meshpass.Bindings) ([]hal.BindGroup, error) {
	var entries []gputypes.BindGroupEntry
	var buf hal.Buffer

	if data := PackUniforms(b); len(data) > 0 {
		var err error
		buf, err = u.device.CreateBuffer(&hal.BufferDescriptor{
			Label: string(v.Pass) + " uniforms",
			Size:  uint64(len(data)),
			Usage: gputypes.BufferUsageUniform | gputypes.BufferUsageCopyDst,
		})
		if err != nil {
			return nil, fmt.Errorf("halstream: uniform buffer: %w", err)
		}
		if err := u.queue.WriteBuffer(buf, 0, data); err != nil {
			u.device.DestroyBuffer(buf)
			return nil, fmt.Errorf("halstream: write uniforms: %w", err)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  0,
			Resource: gputypes.BufferBinding{Buffer: buf.NativeHandle(), Size: uint64(len(data))},
		})
	}

	binding := uint32(1)
	for _, p := range b.Params() {
		if p.Kind != meshpass.ParamTexture {
			continue
		}
		if p.Texture == 0 {
			if u.fallback != nil {
				entries = append(entries, gputypes.BindGroupEntry{
					Binding:  binding,
					Resource: gputypes.TextureViewBinding{TextureView: u.fallback.NativeHandle()},
				})
			}
			binding++
			continue
		}
		view, err := lookupView(u.textures, p.Texture)
		if err != nil {
			if buf != nil {
				u.device.DestroyBuffer(buf)
			}
			return nil, fmt.Errorf("%w: %s: %w", meshpass.ErrResolution, p.Name, err)
		}
		entries = append(entries, gputypes.BindGroupEntry{
			Binding:  binding,
			Resource: gputypes.TextureViewBinding{TextureView: view.NativeHandle()},
		})
		binding++
	}

	group, err := u.device.CreateBindGroup(&hal.BindGroupDescriptor{
		Label:   string(v.Pass),
		Layout:  u.layout,
		Entries: entries,
	})
	if err != nil {
		if buf != nil {
			u.device.DestroyBuffer(buf)
		}
		return nil, fmt.Errorf("halstream: bind group: %w", err)
	}

	u.mu.Lock()
	if buf != nil {
		u.buffers = append(u.buffers, buf)
	}
	u.groups = append(u.groups, group)
	u.mu.Unlock()
	return []hal.BindGroup{group}, nil
}

// Live returns the number of bind groups awaiting Release.
func (u *UniformUploader) Live() int {
	u.mu.Lock()
	defer u.mu.Unlock()
	return len(u.groups)
}

// Release destroys every buffer and group created since the last Release.
func (u *UniformUploader) Release() {
	u.mu.Lock()
	defer u.mu.Unlock()
	for _, g := range u.groups {
		u.device.DestroyBindGroup(g)
	}
	for _, b := range u.buffers {
		u.device.DestroyBuffer(b)
	}
	u.groups = u.groups[:0]
	u.buffers = u.buffers[:0]
}
