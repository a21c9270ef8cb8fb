package meshpass

import "errors"

// Protocol errors. These report contract misuse by the caller and are the
// only failures that escape a pass.
var (
	// ErrProtocolViolation is wrapped by every contract-misuse error.
	// Test with errors.Is(err, ErrProtocolViolation).
	ErrProtocolViolation = errors.New("meshpass: protocol violation")

	// ErrAppendAfterFinalize is returned by Append or Merge on a finalized builder.
	ErrAppendAfterFinalize = errors.New("meshpass: append after finalize")

	// ErrAlreadyFinalized is returned by a second Finalize call.
	ErrAlreadyFinalized = errors.New("meshpass: builder already finalized")

	// ErrListNotFinalized is returned by Execute for a list that did not come from Finalize.
	ErrListNotFinalized = errors.New("meshpass: command list not produced by Finalize")

	// ErrPassMismatch is returned by Execute when the list belongs to another pass.
	ErrPassMismatch = errors.New("meshpass: command list belongs to a different pass")

	// ErrNoStream is returned by Frame.Run for a visible view without a stream.
	ErrNoStream = errors.New("meshpass: view has no command stream")
)

// Recoverable errors. These never abort a pass or a frame.
var (
	// ErrResolution reports that parameters for a draw could not be assembled
	// (for example a missing texture binding). The draw is skipped.
	ErrResolution = errors.New("meshpass: parameter resolution failed")

	// ErrIncompatibleTargets reports a render target set that cannot receive
	// a command's fixed-function state.
	ErrIncompatibleTargets = errors.New("meshpass: render targets incompatible with pass state")

	// ErrNoDepthTarget reports a render target set without a depth/stencil binding.
	ErrNoDepthTarget = errors.New("meshpass: render target set has no depth binding")
)

// Registry errors.
var (
	// ErrPassRegistered is returned when a pass ID is registered twice.
	ErrPassRegistered = errors.New("meshpass: pass already registered")

	// ErrUnknownPass is returned for a pass ID that was never registered.
	ErrUnknownPass = errors.New("meshpass: unknown pass")

	// ErrNilFactory is returned when RegisterPass receives a nil factory.
	ErrNilFactory = errors.New("meshpass: processor factory is nil")
)
