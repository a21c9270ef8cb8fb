// Package halstream implements meshpass.Stream on a wgpu HAL device.
//
// A Stream records render passes into a hal.CommandEncoder. Pipelines are
// created on demand from the shader variant, the fixed-function state and
// the formats of the bound targets, and cached in a PipelineCache that may
// be shared by many streams.
//
// The host provides everything the stream cannot derive from a command:
// texture views for target and binding handles, vertex and index buffers for
// geometry elements, and bind groups for shader parameters.
//
// # Usage
//
//	cache := halstream.NewPipelineCache(device)
//	s := halstream.New(device, halstream.Host{
//	    Textures: views,
//	    Geometry: meshes,
//	    Bindings: halstream.NewUniformUploader(device, queue, layout, views),
//	}, halstream.WithPipelineCache(cache))
//
//	exec.Execute(s, list, targets)
//	_, err := s.Submit(queue)
//
// A Stream is not safe for concurrent use; give every view its own.
package halstream
