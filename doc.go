// Package meshpass implements pluggable mesh rendering passes.
//
// # Overview
//
// A pass classifies drawable geometry, selects a shader variant per
// material, and emits draw commands against a shared set of render targets.
// Everything the pass does not own is reached through small interfaces:
//
//   - SceneQuery yields the drawable items of a pass and view
//   - ShaderVariantResolver finds the compiled shader pair of a material
//   - ParameterBinder uploads the shader inputs of a draw
//   - Stream records or encodes GPU commands
//
// # Pipeline
//
// Per (pass, view, frame) the host calls, in order:
//
//	proc.Submit(item)        // PassProcessor: filter, resolve, build command
//	list, _ := b.Finalize()  // DrawCommandBuilder: sort and freeze
//	exec.Execute(s, list, t) // PassExecutor: state-diffed replay
//
// Submit may run on many goroutines, each writing a CommandBucket that is
// merged before Finalize. The sort in Finalize orders by (SortKey,
// StableIndex), so the result does not depend on scheduling.
//
// Frame wires these steps together for every registered pass and view.
//
// # Errors
//
// Rejected items are silent and only counted. Recoverable failures (a
// missing texture, incompatible targets) skip the affected draw and are
// logged. Contract misuse wraps ErrProtocolViolation and is the only error
// that escapes a frame.
//
// # Subpackages
//
//   - toon: toon outline and shaded passes, per-light toon lighting
//   - trace: a Stream that records calls for inspection and tests
//   - halstream: a Stream encoding into github.com/gogpu/wgpu/hal
//   - scene: a glTF-backed SceneQuery
//   - config: YAML configuration of passes, views and lights
package meshpass

// Version is the library version.
const Version = "0.1.0"
