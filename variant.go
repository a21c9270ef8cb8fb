package meshpass

import (
	"hash/fnv"
	"strings"
	"sync"

	"github.com/gogpu/meshpass/internal/cache"
)

// ShaderPair names the vertex and fragment programs of a pass. Each name is
// "module:entry"; see SplitShader.
type ShaderPair struct {
	Vertex   string
	Fragment string
}

// SplitShader splits a "module:entry" program name. A name without an entry
// point returns entry "".
func SplitShader(name string) (module, entry string) {
	module, entry, _ = strings.Cut(name, ":")
	return module, entry
}

// ShaderVariantKey identifies one compiled shader pair for a
// (pass, vertex layout) permutation.
type ShaderVariantKey struct {
	// ID is the identity of the compiled pair. Equal IDs share a pipeline.
	ID      uint64
	Pass    PassID
	Layout  VertexLayout
	Shaders ShaderPair
}

// IsZero reports whether k is the zero key.
func (k ShaderVariantKey) IsZero() bool { return k.ID == 0 }

// ShaderVariantResolver looks up the compiled shader variant for a material
// rendered with geometry of the given vertex layout. ok is false when no
// variant exists; this is never a fatal condition.
type ShaderVariantResolver interface {
	Resolve(pass PassID, mat Material, layout VertexLayout) (key ShaderVariantKey, ok bool)
}

// PermutationFilter reports whether a variant of pass exists for materials
// with the given features. It mirrors the compile-time permutation check of
// the shader system: variants are only compiled for materials that opt in.
type PermutationFilter func(pass PassID, features FeatureFlags, layout VertexLayout) bool

// VariantID returns the deterministic identity of a compiled shader pair.
// It does not depend on registration order.
func VariantID(pass PassID, layout VertexLayout, shaders ShaderPair) uint64 {
	h := fnv.New64a()
	for _, s := range []string{string(pass), string(layout), shaders.Vertex, shaders.Fragment} {
		_, _ = h.Write([]byte(s))
		_, _ = h.Write([]byte{0})
	}
	id := h.Sum64()
	if id == 0 {
		id = 1
	}
	return id
}

type tableKey struct {
	pass   PassID
	layout VertexLayout
}

type resolveKey struct {
	pass     PassID
	layout   VertexLayout
	features FeatureFlags
}

type resolveResult struct {
	key ShaderVariantKey
	ok  bool
}

func hashResolveKey(k resolveKey) uint64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(k.pass))
	_, _ = h.Write([]byte{0})
	_, _ = h.Write([]byte(k.layout))
	return h.Sum64() ^ uint64(k.features)
}

// ShaderTable is an in-memory ShaderVariantResolver. Variants are added per
// (pass, vertex layout); an optional per-pass PermutationFilter decides which
// materials have a compiled permutation. Lookups are memoized.
//
// ShaderTable is safe for concurrent use.
type ShaderTable struct {
	mu       sync.RWMutex
	variants map[tableKey]ShaderVariantKey
	filters  map[PassID]PermutationFilter
	memo     *cache.Sharded[resolveKey, resolveResult]
}

// NewShaderTable creates an empty table.
func NewShaderTable() *ShaderTable {
	return &ShaderTable{
		variants: make(map[tableKey]ShaderVariantKey),
		filters:  make(map[PassID]PermutationFilter),
		memo:     cache.New[resolveKey, resolveResult](0, hashResolveKey),
	}
}

// Add registers the compiled pair for (pass, layout) and returns its key.
// Adding the same permutation again replaces it.
func (t *ShaderTable) Add(pass PassID, layout VertexLayout, shaders ShaderPair) ShaderVariantKey {
	key := ShaderVariantKey{
		ID:      VariantID(pass, layout, shaders),
		Pass:    pass,
		Layout:  layout,
		Shaders: shaders,
	}
	t.mu.Lock()
	t.variants[tableKey{pass, layout}] = key
	t.mu.Unlock()
	t.memo.Clear()
	return key
}

// SetFilter installs the permutation filter for pass. A nil filter accepts
// every material.
func (t *ShaderTable) SetFilter(pass PassID, f PermutationFilter) {
	t.mu.Lock()
	if f == nil {
		delete(t.filters, pass)
	} else {
		t.filters[pass] = f
	}
	t.mu.Unlock()
	t.memo.Clear()
}

// Resolve implements ShaderVariantResolver.
func (t *ShaderTable) Resolve(pass PassID, mat Material, layout VertexLayout) (ShaderVariantKey, bool) {
	if mat.IsNil() {
		return ShaderVariantKey{}, false
	}
	rk := resolveKey{pass: pass, layout: layout, features: mat.Features()}
	r := t.memo.GetOrCreate(rk, func() resolveResult {
		t.mu.RLock()
		defer t.mu.RUnlock()
		key, ok := t.variants[tableKey{pass, layout}]
		if !ok {
			return resolveResult{}
		}
		if f := t.filters[pass]; f != nil && !f(pass, rk.features, layout) {
			return resolveResult{}
		}
		return resolveResult{key: key, ok: true}
	})
	return r.key, r.ok
}

// Len returns the number of registered permutations.
func (t *ShaderTable) Len() int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return len(t.variants)
}

// CacheStats returns the lookup memo counters.
func (t *ShaderTable) CacheStats() cache.Stats {
	return t.memo.Stats()
}
