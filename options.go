package meshpass

import "log/slog"

// Option configures a Registry and the frames it runs.
//
// Example:
//
//	reg := meshpass.NewRegistry(table,
//		meshpass.WithReversedZ(true),
//		meshpass.WithWorkers(8),
//	)
type Option func(*options)

type options struct {
	reversedZ bool
	logger    *slog.Logger
	workers   int
	binder    ParameterBinder
}

func defaultOptions() options {
	return options{
		workers: 0, // GOMAXPROCS
		binder:  DirectBinder{},
	}
}

// WithReversedZ selects a reversed depth buffer (near plane at depth 1).
// Passes that test "near or equal" then compare with GreaterEqual.
func WithReversedZ(on bool) Option {
	return func(o *options) {
		o.reversedZ = on
	}
}

// WithLogger sets the logger used by the registry and its frames instead of
// the package logger.
func WithLogger(l *slog.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// WithWorkers sets the number of goroutines classifying items in a frame.
// Zero or negative uses GOMAXPROCS.
func WithWorkers(n int) Option {
	return func(o *options) {
		o.workers = n
	}
}

// WithBinder sets the ParameterBinder used to execute mesh passes.
func WithBinder(b ParameterBinder) Option {
	return func(o *options) {
		if b != nil {
			o.binder = b
		}
	}
}

func (o *options) log() *slog.Logger {
	if o.logger != nil {
		return o.logger
	}
	return Logger()
}
