package meshpass

import (
	"fmt"
	"slices"
	"sync"

	"github.com/gogpu/gpucontext"
)

// PassEnv is what a ProcessorFactory may depend on when it builds its pass.
type PassEnv struct {
	// ReversedZ reports a reversed depth buffer; see DepthNearOrEqual.
	ReversedZ bool
}

// ProcessorFactory builds the configuration of one pass. It is called every
// time a processor for the pass is created and must be cheap and pure.
type ProcessorFactory func(env PassEnv) PassConfig

// Registry is the explicit process-wide table of mesh passes. It is
// constructed once at startup and handed to every component that needs pass
// lookup; nothing in this module reaches it through a global.
//
// Passes run in registration order.
//
// Registry is safe for concurrent use.
type Registry struct {
	resolver ShaderVariantResolver
	opts     options

	mu        sync.Mutex // serializes Has+Register and guards order
	factories *gpucontext.Registry[ProcessorFactory]
	order     []PassID
}

// NewRegistry creates an empty registry resolving shader variants through
// resolver.
func NewRegistry(resolver ShaderVariantResolver, opts ...Option) *Registry {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &Registry{
		resolver:  resolver,
		opts:      o,
		factories: gpucontext.NewRegistry[ProcessorFactory](),
	}
}

// RegisterPass adds a pass. Registering an ID twice fails with
// ErrPassRegistered and keeps the first factory.
func (r *Registry) RegisterPass(id PassID, factory ProcessorFactory) error {
	if factory == nil {
		return fmt.Errorf("register %s: %w", id, ErrNilFactory)
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.factories.Has(string(id)) {
		return fmt.Errorf("register %s: %w", id, ErrPassRegistered)
	}
	r.factories.Register(string(id), func() ProcessorFactory { return factory })
	r.order = append(r.order, id)
	r.opts.log().Info("meshpass: pass registered", "pass", id)
	return nil
}

// UnregisterPass removes a pass. Unknown IDs are ignored.
func (r *Registry) UnregisterPass(id PassID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.factories.Unregister(string(id))
	r.order = slices.DeleteFunc(r.order, func(p PassID) bool { return p == id })
}

// Passes returns the registered pass IDs in registration order.
func (r *Registry) Passes() []PassID {
	r.mu.Lock()
	defer r.mu.Unlock()
	return slices.Clone(r.order)
}

// Has reports whether id is registered.
func (r *Registry) Has(id PassID) bool {
	return r.factories.Has(string(id))
}

// Env returns the environment passed to factories.
func (r *Registry) Env() PassEnv {
	return PassEnv{ReversedZ: r.opts.reversedZ}
}

// Config builds the configuration of pass id.
func (r *Registry) Config(id PassID) (PassConfig, error) {
	factory := r.factories.Get(string(id))
	if factory == nil {
		return PassConfig{}, fmt.Errorf("config %s: %w", id, ErrUnknownPass)
	}
	cfg := factory(r.Env())
	if cfg.ID == "" {
		cfg.ID = id
	}
	return cfg, nil
}

// NewProcessor creates a processor for pass id forwarding to sink.
func (r *Registry) NewProcessor(id PassID, sink CommandSink) (*PassProcessor, error) {
	cfg, err := r.Config(id)
	if err != nil {
		return nil, err
	}
	return NewPassProcessor(cfg, r.resolver, sink), nil
}

// NewExecutor creates an executor for pass id using the registry's binder.
func (r *Registry) NewExecutor(id PassID) (*PassExecutor, error) {
	if !r.Has(id) {
		return nil, fmt.Errorf("executor %s: %w", id, ErrUnknownPass)
	}
	return NewPassExecutor(id, r.opts.binder), nil
}

// Resolver returns the shader variant resolver of the registry.
func (r *Registry) Resolver() ShaderVariantResolver { return r.resolver }
