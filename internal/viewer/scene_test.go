package viewer

import (
	"math"
	"testing"

	"partquote/api/internal/cad"
)

func TestDisposeTreeReleasesSharedResourcesOnce(t *testing.T) {
	geo := &Geometry{Positions: []float32{0, 0, 0}}
	mat := defaultMaterial()

	root := NewObject("root")
	for _, name := range []string{"a", "b"} {
		child := NewObject(name)
		child.Geometry = geo
		child.Material = mat
		root.Add(child)
	}

	DisposeTree(root)
	if !geo.Released() || !mat.Released() {
		t.Fatal("shared resources not released")
	}
	// A second dispose over the same tree must be a no-op.
	DisposeTree(root)
}

func TestReleaseClearsBuffers(t *testing.T) {
	geo := &Geometry{Positions: []float32{1, 2, 3}, Normals: []float32{0, 0, 1}}
	geo.Release()
	if geo.Positions != nil || geo.Normals != nil {
		t.Fatal("buffers retained after release")
	}
	geo.Release() // idempotent
}

func TestBuildObjectUprightFixForSTLOnly(t *testing.T) {
	model := &cad.Model{Meshes: []cad.MeshData{{Name: "m"}}}
	copy(model.Meshes[0].Matrix[:], identity16())

	for _, kind := range []cad.Kind{cad.KindSTL, cad.KindSTEP} {
		root := BuildObject(model, kind)
		if root.Local != stlUprightRotation {
			t.Errorf("kind %q: root not rotated upright", kind)
		}
	}
	for _, kind := range []cad.Kind{cad.KindOBJ, cad.KindGLB} {
		root := BuildObject(model, kind)
		if root.Local != Identity() {
			t.Errorf("kind %q: root unexpectedly rotated", kind)
		}
	}
}

func TestBuildObjectAssignsDefaultMaterial(t *testing.T) {
	model := &cad.Model{Meshes: []cad.MeshData{
		{Name: "bare"},
		{Name: "clad", HasMaterial: true},
	}}
	copy(model.Meshes[0].Matrix[:], identity16())
	copy(model.Meshes[1].Matrix[:], identity16())

	root := BuildObject(model, cad.KindOBJ)
	if root.Children[0].Material == nil || root.Children[0].Material.Name != "default" {
		t.Fatal("mesh without material did not get the default one")
	}
	if root.Children[1].Material.Name != "clad" {
		t.Fatalf("material name = %q, want source mesh name", root.Children[1].Material.Name)
	}
}

func TestBoundingBoxHonorsWorldTransforms(t *testing.T) {
	child := NewObject("child")
	child.Geometry = &Geometry{Positions: []float32{0, 0, 0, 1, 1, 1}}
	child.Local = Translation(Vec3{X: 10})

	root := NewObject("root")
	root.Local = Translation(Vec3{Y: 5})
	root.Add(child)
	root.UpdateWorldMatrices(Identity())

	box := root.BoundingBox()
	want := Box3{Min: Vec3{10, 5, 0}, Max: Vec3{11, 6, 1}}
	if box != want {
		t.Fatalf("box = %+v, want %+v", box, want)
	}
}

func TestBoundingSphereRadiusReachesFarthestVertex(t *testing.T) {
	obj := NewObject("o")
	obj.Geometry = &Geometry{Positions: []float32{
		-1, 0, 0,
		3, 0, 0,
	}}
	obj.UpdateWorldMatrices(Identity())

	sphere := obj.BoundingSphere()
	if math.Abs(sphere.Center.X-1) > 1e-9 {
		t.Fatalf("center X = %g, want 1", sphere.Center.X)
	}
	if math.Abs(sphere.Radius-2) > 1e-9 {
		t.Fatalf("radius = %g, want 2", sphere.Radius)
	}
}

func TestRotationXUprightMapsZUpToYUp(t *testing.T) {
	p := stlUprightRotation.TransformPoint(Vec3{Z: 1})
	if math.Abs(p.Y-1) > 1e-9 || math.Abs(p.X) > 1e-9 || math.Abs(p.Z) > 1e-9 {
		t.Fatalf("Z-up unit vector mapped to %+v, want +Y", p)
	}
}
