package halstream

import "errors"

// Stream errors.
var (
	// ErrNilDevice is returned when a stream or cache has no device.
	ErrNilDevice = errors.New("halstream: device is nil")

	// ErrPassOpen is returned by BeginPass or Finish while a pass is open.
	ErrPassOpen = errors.New("halstream: render pass already open")

	// ErrNoPass is returned for state or draw calls outside a render pass.
	ErrNoPass = errors.New("halstream: no render pass open")

	// ErrNoPipeline is returned for a draw before SetPipeline.
	ErrNoPipeline = errors.New("halstream: no pipeline bound")

	// ErrNoCommands is returned by Finish when nothing was encoded.
	ErrNoCommands = errors.New("halstream: nothing encoded")

	// ErrTooManyTargets is returned for target sets above MaxColorTargets.
	ErrTooManyTargets = errors.New("halstream: too many color targets")

	// ErrUnknownTexture is returned when a texture handle has no view.
	ErrUnknownTexture = errors.New("halstream: unknown texture handle")

	// ErrUnknownShader is returned when a shader module cannot be found.
	ErrUnknownShader = errors.New("halstream: unknown shader module")

	// ErrNoGeometry is returned when the host has no buffers for an element.
	ErrNoGeometry = errors.New("halstream: no geometry for element")

	// ErrNoUploader is returned by SetBindings when the host has no uploader.
	ErrNoUploader = errors.New("halstream: no binding uploader")
)
