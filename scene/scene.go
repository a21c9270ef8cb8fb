// Package scene adapts glTF 2.0 documents to meshpass.
//
// Every node of the default scene that references a mesh becomes one
// drawable item per material used by the mesh. The primitives sharing that
// material are the item's elements, so a mesh with three primitives of one
// material is drawn as a single item with three elements.
//
// A Scene is the material host, the geometry host and the scene query of a
// frame at once:
//
//	s, err := scene.Load("character.gltf")
//	frame := meshpass.NewFrame(reg, toon.NewLighting(lights))
//	report, err := frame.Run(ctx, s, views)
//
// Material features and toon parameters are read from the "meshpass" object
// of a material's extras:
//
//	"extras": {"meshpass": {
//	    "features": ["toon"],
//	    "wireframe": false,
//	    "toon": {"outlineThickness": 0.02, "outlineColor": [0, 0, 0, 1],
//	             "color": [1, 0.8, 0.7, 1], "shininess": 24}
//	}}
//
// glTF alpha modes MASK and BLEND add the masked and translucent features,
// and doubleSided disables culling.
package scene

import (
	"errors"
	"fmt"
	"io"
	"slices"

	"github.com/qmuntal/gltf"

	"github.com/gogpu/meshpass"
)

// Vertex layouts assigned to geometry.
const (
	LayoutStatic  meshpass.VertexLayout = "static"
	LayoutSkinned meshpass.VertexLayout = "skinned"
)

// ErrInvalidDocument is returned for documents whose references are out of range.
var ErrInvalidDocument = errors.New("scene: invalid glTF document")

// ElementInfo describes one primitive of a geometry.
type ElementInfo struct {
	Primitive   int
	IndexCount  int
	VertexCount int
}

type geometry struct {
	name     string
	mesh     int
	layout   meshpass.VertexLayout
	elements []ElementInfo
}

type instance struct {
	node int
	geom int
	mat  uint64
}

// Scene is a loaded glTF document. It is immutable and safe for concurrent use.
type Scene struct {
	doc       *gltf.Document
	materials []material
	geometry  []geometry
	instances []instance
	layouts   []meshpass.VertexLayout
}

var (
	_ meshpass.SceneQuery   = (*Scene)(nil)
	_ meshpass.MaterialHost = (*Scene)(nil)
	_ meshpass.GeometryHost = (*Scene)(nil)
)

// Load reads a .gltf or .glb file.
func Load(path string) (*Scene, error) {
	doc, err := gltf.Open(path)
	if err != nil {
		return nil, fmt.Errorf("scene: open %s: %w", path, err)
	}
	return New(doc)
}

// Decode reads a glTF document from r. External buffers are not resolved.
func Decode(r io.Reader) (*Scene, error) {
	doc := new(gltf.Document)
	if err := gltf.NewDecoder(r).Decode(doc); err != nil {
		return nil, fmt.Errorf("scene: decode: %w", err)
	}
	return New(doc)
}

// New prepares doc for rendering.
func New(doc *gltf.Document) (*Scene, error) {
	s := &Scene{doc: doc}
	for i, m := range doc.Materials {
		mat, err := parseMaterial(m)
		if err != nil {
			return nil, fmt.Errorf("scene: material %d: %w", i, err)
		}
		s.materials = append(s.materials, mat)
	}

	// Geometry groups per mesh, keyed by material id (0 for primitives
	// without a material).
	groups := make([]map[uint64]int, len(doc.Meshes))
	for mi, mesh := range doc.Meshes {
		groups[mi] = make(map[uint64]int)
		for pi, prim := range mesh.Primitives {
			var mat uint64
			if prim.Material != nil {
				idx := int(*prim.Material)
				if idx < 0 || idx >= len(doc.Materials) {
					return nil, fmt.Errorf("%w: mesh %d primitive %d material %d", ErrInvalidDocument, mi, pi, idx)
				}
				mat = uint64(idx) + 1
			}
			info, err := s.element(mi, pi, prim)
			if err != nil {
				return nil, err
			}
			gi, ok := groups[mi][mat]
			if !ok {
				gi = len(s.geometry)
				groups[mi][mat] = gi
				s.geometry = append(s.geometry, geometry{name: meshName(mesh, mi), mesh: mi, layout: LayoutStatic})
			}
			g := &s.geometry[gi]
			if len(g.elements) == meshpass.MaxElements {
				meshpass.Logger().Warn("scene: primitive dropped, too many elements",
					"mesh", g.name, "primitive", pi)
				continue
			}
			g.elements = append(g.elements, info)
			if _, skinned := prim.Attributes["JOINTS_0"]; skinned {
				g.layout = LayoutSkinned
			}
		}
	}

	for _, g := range s.geometry {
		if !slices.Contains(s.layouts, g.layout) {
			s.layouts = append(s.layouts, g.layout)
		}
	}
	slices.Sort(s.layouts)

	if err := s.collect(groups); err != nil {
		return nil, err
	}
	meshpass.Logger().Info("scene: loaded",
		"materials", len(s.materials), "geometry", len(s.geometry), "instances", len(s.instances))
	return s, nil
}

func meshName(m *gltf.Mesh, i int) string {
	if m.Name != "" {
		return m.Name
	}
	return fmt.Sprintf("mesh%d", i)
}

func (s *Scene) element(mi, pi int, prim *gltf.Primitive) (ElementInfo, error) {
	info := ElementInfo{Primitive: pi}
	if pos, ok := prim.Attributes["POSITION"]; ok {
		idx := int(pos)
		if idx < 0 || idx >= len(s.doc.Accessors) {
			return info, fmt.Errorf("%w: mesh %d primitive %d position accessor %d", ErrInvalidDocument, mi, pi, idx)
		}
		info.VertexCount = int(s.doc.Accessors[idx].Count)
	}
	if prim.Indices != nil {
		idx := int(*prim.Indices)
		if idx < 0 || idx >= len(s.doc.Accessors) {
			return info, fmt.Errorf("%w: mesh %d primitive %d index accessor %d", ErrInvalidDocument, mi, pi, idx)
		}
		info.IndexCount = int(s.doc.Accessors[idx].Count)
	}
	return info, nil
}

// collect walks the default scene, or every root node when the document
// has no scenes, and records one instance per geometry group of each mesh
// node.
func (s *Scene) collect(groups []map[uint64]int) error {
	var roots []int
	switch {
	case len(s.doc.Scenes) > 0:
		si := 0
		if s.doc.Scene != nil {
			si = int(*s.doc.Scene)
		}
		if si < 0 || si >= len(s.doc.Scenes) {
			return fmt.Errorf("%w: default scene %d", ErrInvalidDocument, si)
		}
		for _, n := range s.doc.Scenes[si].Nodes {
			roots = append(roots, int(n))
		}
	default:
		for i := range s.doc.Nodes {
			roots = append(roots, i)
		}
	}

	seen := make(map[int]bool)
	var visit func(n int) error
	visit = func(n int) error {
		if n < 0 || n >= len(s.doc.Nodes) {
			return fmt.Errorf("%w: node %d", ErrInvalidDocument, n)
		}
		if seen[n] {
			return nil
		}
		seen[n] = true
		node := s.doc.Nodes[n]
		if node.Mesh != nil {
			mi := int(*node.Mesh)
			if mi < 0 || mi >= len(groups) {
				return fmt.Errorf("%w: node %d mesh %d", ErrInvalidDocument, n, mi)
			}
			for _, mat := range sortedKeys(groups[mi]) {
				s.instances = append(s.instances, instance{node: n, geom: groups[mi][mat], mat: mat})
			}
		}
		for _, c := range node.Children {
			if err := visit(int(c)); err != nil {
				return err
			}
		}
		return nil
	}
	for _, r := range roots {
		if err := visit(r); err != nil {
			return err
		}
	}
	return nil
}

func sortedKeys(m map[uint64]int) []uint64 {
	keys := make([]uint64, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	return keys
}

// Document returns the underlying glTF document.
func (s *Scene) Document() *gltf.Document { return s.doc }

// Layouts returns the distinct vertex layouts of the scene, sorted.
func (s *Scene) Layouts() []meshpass.VertexLayout { return slices.Clone(s.layouts) }

// Len returns the number of drawable items.
func (s *Scene) Len() int { return len(s.instances) }

// Items implements meshpass.SceneQuery. Every view sees every item; items
// are ordered by scene traversal and carry their traversal index as
// StableIndex and their node index as InstanceID.
func (s *Scene) Items(meshpass.PassID, meshpass.ViewID) []meshpass.DrawableItem {
	items := make([]meshpass.DrawableItem, len(s.instances))
	for i, in := range s.instances {
		g := &s.geometry[in.geom]
		it := meshpass.DrawableItem{
			Geometry:    meshpass.Geometry{ID: uint64(in.geom), Host: s},
			ElementMask: allElements(len(g.elements)),
			InstanceID:  uint64(in.node),
			StableIndex: uint64(i),
		}
		if in.mat != 0 {
			it.Material = meshpass.Material{ID: in.mat, Host: s}
		}
		items[i] = it
	}
	return items
}

func allElements(n int) uint64 {
	if n >= 64 {
		return ^uint64(0)
	}
	return 1<<n - 1
}

// VertexLayout implements meshpass.GeometryHost.
func (s *Scene) VertexLayout(id uint64) meshpass.VertexLayout {
	if id >= uint64(len(s.geometry)) {
		return ""
	}
	return s.geometry[id].layout
}

// ElementCount implements meshpass.GeometryHost.
func (s *Scene) ElementCount(id uint64) int {
	if id >= uint64(len(s.geometry)) {
		return 0
	}
	return len(s.geometry[id].elements)
}

// Element returns the primitive behind one element of a geometry.
func (s *Scene) Element(id uint64, element int) (ElementInfo, bool) {
	if id >= uint64(len(s.geometry)) {
		return ElementInfo{}, false
	}
	els := s.geometry[id].elements
	if element < 0 || element >= len(els) {
		return ElementInfo{}, false
	}
	return els[element], true
}

// GeometryName returns the mesh name of a geometry.
func (s *Scene) GeometryName(id uint64) string {
	if id >= uint64(len(s.geometry)) {
		return ""
	}
	return s.geometry[id].name
}
