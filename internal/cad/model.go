package cad

// MeshData is one parsed submesh: flat position/normal buffers (three floats
// per vertex, three vertices per triangle) plus the node transform baked in
// column-major order.
type MeshData struct {
	Name        string
	Positions   []float32
	Normals     []float32
	HasMaterial bool
	Matrix      [16]float64
}

// Model is a parser's output: a flat list of submeshes.
type Model struct {
	Meshes []MeshData
}

// identityMatrix in column-major order.
func identityMatrix() [16]float64 {
	return [16]float64{
		1, 0, 0, 0,
		0, 1, 0, 0,
		0, 0, 1, 0,
		0, 0, 0, 1,
	}
}

// VertexCount sums the vertices across submeshes.
func (m *Model) VertexCount() int {
	total := 0
	for _, mesh := range m.Meshes {
		total += len(mesh.Positions) / 3
	}
	return total
}
