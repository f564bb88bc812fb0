package cad

import (
	"encoding/binary"
	"math"
	"testing"
)

// BinarySTLFixture builds a valid binary STL with the given triangles, each
// triangle being nine floats (three vertices).
func BinarySTLFixture(t *testing.T, triangles [][9]float32) []byte {
	t.Helper()
	buf := make([]byte, stlHeaderSize+len(triangles)*stlTriangleSize)
	binary.LittleEndian.PutUint32(buf[80:84], uint32(len(triangles)))
	offset := stlHeaderSize
	for _, tri := range triangles {
		// Leave the normal zeroed; parsers must not require it.
		for i, f := range tri {
			binary.LittleEndian.PutUint32(buf[offset+12+i*4:], math.Float32bits(f))
		}
		offset += stlTriangleSize
	}
	return buf
}

func TestParseBinarySTL(t *testing.T) {
	data := BinarySTLFixture(t, [][9]float32{
		{0, 0, 0, 1, 0, 0, 0, 1, 0},
		{0, 0, 1, 1, 0, 1, 0, 1, 1},
	})
	model, err := ParseSTL(data)
	if err != nil {
		t.Fatalf("ParseSTL() error = %v", err)
	}
	if len(model.Meshes) != 1 {
		t.Fatalf("expected one mesh, got %d", len(model.Meshes))
	}
	mesh := model.Meshes[0]
	if len(mesh.Positions) != 18 || len(mesh.Normals) != 18 {
		t.Fatalf("expected 18 position and normal floats, got %d/%d", len(mesh.Positions), len(mesh.Normals))
	}
	if mesh.Positions[3] != 1 || mesh.Positions[7] != 1 {
		t.Fatalf("unexpected vertex data: %v", mesh.Positions[:9])
	}
}

func TestParseASCIISTL(t *testing.T) {
	src := `solid demo
  facet normal 0 0 1
    outer loop
      vertex 0 0 0
      vertex 1 0 0
      vertex 0 1 0
    endloop
  endfacet
endsolid demo
`
	model, err := ParseSTL([]byte(src))
	if err != nil {
		t.Fatalf("ParseSTL() error = %v", err)
	}
	mesh := model.Meshes[0]
	if len(mesh.Positions) != 9 {
		t.Fatalf("expected 9 position floats, got %d", len(mesh.Positions))
	}
	if mesh.Normals[2] != 1 {
		t.Fatalf("expected facet normal carried to vertices, got %v", mesh.Normals[:3])
	}
}

func TestParseSTLRejectsTruncatedBinary(t *testing.T) {
	data := BinarySTLFixture(t, [][9]float32{{0, 0, 0, 1, 0, 0, 0, 1, 0}})
	if _, err := ParseSTL(data[:len(data)-10]); err == nil {
		t.Fatal("expected truncated binary STL to fail")
	}
}

func TestParseSTLRejectsGarbage(t *testing.T) {
	if _, err := ParseSTL([]byte("not a model at all")); err == nil {
		t.Fatal("expected garbage to fail")
	}
}
