package cad

import (
	"math"
	"testing"
)

func TestParseOBJTriangulatesAndAssignsGroups(t *testing.T) {
	src := `# quad plus triangle
v 0 0 0
v 1 0 0
v 1 1 0
v 0 1 0
o lid
f 1 2 3 4
g base
usemtl steel
f 1 2 3
`
	model, err := ParseOBJ([]byte(src))
	if err != nil {
		t.Fatalf("ParseOBJ() error = %v", err)
	}
	if len(model.Meshes) != 2 {
		t.Fatalf("expected two submeshes, got %d", len(model.Meshes))
	}
	lid, base := model.Meshes[0], model.Meshes[1]
	if lid.Name != "lid" || base.Name != "base" {
		t.Fatalf("unexpected names: %q %q", lid.Name, base.Name)
	}
	// The quad becomes two triangles.
	if len(lid.Positions) != 18 {
		t.Fatalf("expected 18 floats for triangulated quad, got %d", len(lid.Positions))
	}
	if lid.HasMaterial {
		t.Fatal("lid should not carry a material")
	}
	if !base.HasMaterial {
		t.Fatal("base should carry the usemtl material")
	}
}

func TestParseOBJComputesFlatNormalsWhenAbsent(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
f 1 2 3
`
	model, err := ParseOBJ([]byte(src))
	if err != nil {
		t.Fatalf("ParseOBJ() error = %v", err)
	}
	normals := model.Meshes[0].Normals
	if len(normals) != 9 {
		t.Fatalf("expected 9 normal floats, got %d", len(normals))
	}
	// CCW triangle in the XY plane faces +Z.
	if math.Abs(float64(normals[2]-1)) > 1e-6 {
		t.Fatalf("expected +Z flat normal, got %v", normals[:3])
	}
}

func TestParseOBJHonorsExplicitNormalsAndNegativeIndices(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
v 0 1 0
vn 0 0 -1
f -3//-1 -2//-1 -1//-1
`
	model, err := ParseOBJ([]byte(src))
	if err != nil {
		t.Fatalf("ParseOBJ() error = %v", err)
	}
	normals := model.Meshes[0].Normals
	if normals[2] != -1 {
		t.Fatalf("expected explicit -Z normal, got %v", normals[:3])
	}
}

func TestParseOBJRejectsOutOfRangeIndex(t *testing.T) {
	src := `v 0 0 0
v 1 0 0
f 1 2 9
`
	if _, err := ParseOBJ([]byte(src)); err == nil {
		t.Fatal("expected out-of-range index to fail")
	}
}

func TestParseOBJRejectsEmptyInput(t *testing.T) {
	if _, err := ParseOBJ([]byte("# nothing here\n")); err == nil {
		t.Fatal("expected empty OBJ to fail")
	}
}
