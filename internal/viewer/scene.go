package viewer

import (
	"math"

	"partquote/api/internal/cad"
)

// Geometry owns vertex buffers that map to GPU resources on a real surface.
// Release must be called exactly once when the geometry leaves the scene;
// the buffers are not reclaimed promptly otherwise.
type Geometry struct {
	Positions []float32
	Normals   []float32
	released  bool
}

func (g *Geometry) Release() {
	if g == nil || g.released {
		return
	}
	g.released = true
	g.Positions = nil
	g.Normals = nil
}

func (g *Geometry) Released() bool { return g != nil && g.released }

type Material struct {
	Name     string
	released bool
}

func (m *Material) Release() {
	if m == nil || m.released {
		return
	}
	m.released = true
}

func (m *Material) Released() bool { return m != nil && m.released }

// defaultMaterial is assigned to submeshes whose source declared none.
func defaultMaterial() *Material {
	return &Material{Name: "default"}
}

// Object is one node of the render scene graph.
type Object struct {
	Name     string
	Geometry *Geometry
	Material *Material
	Children []*Object

	Local Mat4
	world Mat4
}

func NewObject(name string) *Object {
	return &Object{Name: name, Local: Identity(), world: Identity()}
}

func (o *Object) Add(child *Object) {
	o.Children = append(o.Children, child)
}

// UpdateWorldMatrices recomputes world transforms top-down. Callers must run
// this before measuring bounds.
func (o *Object) UpdateWorldMatrices(parent Mat4) {
	o.world = parent.Mul(o.Local)
	for _, child := range o.Children {
		child.UpdateWorldMatrices(o.world)
	}
}

func (o *Object) World() Mat4 { return o.world }

// BoundingBox measures the world-space AABB across all geometry vertices.
func (o *Object) BoundingBox() Box3 {
	box := EmptyBox()
	o.walk(func(node *Object) {
		if node.Geometry == nil {
			return
		}
		for i := 0; i+2 < len(node.Geometry.Positions); i += 3 {
			p := node.world.TransformPoint(Vec3{
				X: float64(node.Geometry.Positions[i]),
				Y: float64(node.Geometry.Positions[i+1]),
				Z: float64(node.Geometry.Positions[i+2]),
			})
			box = box.ExpandByPoint(p)
		}
	})
	return box
}

// BoundingSphere measures the tightest sphere centered on the AABB center.
func (o *Object) BoundingSphere() Sphere {
	box := o.BoundingBox()
	if box.IsEmpty() {
		return Sphere{}
	}
	center := box.Center()
	radius := 0.0
	o.walk(func(node *Object) {
		if node.Geometry == nil {
			return
		}
		for i := 0; i+2 < len(node.Geometry.Positions); i += 3 {
			p := node.world.TransformPoint(Vec3{
				X: float64(node.Geometry.Positions[i]),
				Y: float64(node.Geometry.Positions[i+1]),
				Z: float64(node.Geometry.Positions[i+2]),
			})
			if d := p.Sub(center).Length(); d > radius {
				radius = d
			}
		}
	})
	return Sphere{Center: center, Radius: radius}
}

func (o *Object) walk(fn func(*Object)) {
	fn(o)
	for _, child := range o.Children {
		child.walk(fn)
	}
}

// DisposeTree releases every geometry and material reachable from root.
// Shared resources are released once.
func DisposeTree(root *Object) {
	if root == nil {
		return
	}
	seenGeo := map[*Geometry]struct{}{}
	seenMat := map[*Material]struct{}{}
	root.walk(func(node *Object) {
		if node.Geometry != nil {
			if _, done := seenGeo[node.Geometry]; !done {
				seenGeo[node.Geometry] = struct{}{}
				node.Geometry.Release()
			}
		}
		if node.Material != nil {
			if _, done := seenMat[node.Material]; !done {
				seenMat[node.Material] = struct{}{}
				node.Material.Release()
			}
		}
	})
}

// stlUprightRotation converts the legacy Z-up STL convention to the scene's
// Y-up convention. Applied to STL (and STEP-derived STL) only.
var stlUprightRotation = RotationX(-math.Pi / 2)

// BuildObject converts a parsed model into a scene object. STL roots get the
// fixed legacy orientation fix; submeshes without a source material get the
// default one.
func BuildObject(model *cad.Model, kind cad.Kind) *Object {
	root := NewObject(string(kind))
	if kind == cad.KindSTL || kind == cad.KindSTEP {
		root.Local = stlUprightRotation
	}
	for _, mesh := range model.Meshes {
		child := NewObject(mesh.Name)
		child.Local = Mat4(mesh.Matrix)
		child.Geometry = &Geometry{Positions: mesh.Positions, Normals: mesh.Normals}
		if !mesh.HasMaterial {
			child.Material = defaultMaterial()
		} else {
			child.Material = &Material{Name: mesh.Name}
		}
		root.Add(child)
	}
	root.UpdateWorldMatrices(Identity())
	return root
}
