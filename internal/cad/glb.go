package cad

import (
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
)

const (
	glbMagic     = 0x46546C67 // "glTF"
	glbChunkJSON = 0x4E4F534A
	glbChunkBIN  = 0x004E4942
)

// gltfDoc is the subset of the glTF 2.0 schema the viewer consumes.
type gltfDoc struct {
	Scene  *int `json:"scene"`
	Scenes []struct {
		Nodes []int `json:"nodes"`
	} `json:"scenes"`
	Nodes []struct {
		Mesh        *int      `json:"mesh"`
		Children    []int     `json:"children"`
		Name        string    `json:"name"`
		Matrix      []float64 `json:"matrix"`
		Translation []float64 `json:"translation"`
		Rotation    []float64 `json:"rotation"`
		Scale       []float64 `json:"scale"`
	} `json:"nodes"`
	Meshes []struct {
		Name       string `json:"name"`
		Primitives []struct {
			Attributes map[string]int `json:"attributes"`
			Indices    *int           `json:"indices"`
			Material   *int           `json:"material"`
			Mode       *int           `json:"mode"`
		} `json:"primitives"`
	} `json:"meshes"`
	Accessors []struct {
		BufferView    *int   `json:"bufferView"`
		ByteOffset    int    `json:"byteOffset"`
		ComponentType int    `json:"componentType"`
		Count         int    `json:"count"`
		Type          string `json:"type"`
	} `json:"accessors"`
	BufferViews []struct {
		Buffer     int `json:"buffer"`
		ByteOffset int `json:"byteOffset"`
		ByteLength int `json:"byteLength"`
		ByteStride int `json:"byteStride"`
	} `json:"bufferViews"`
}

// ParseGLB parses a binary glTF container and walks its root scene graph
// into a flat model, baking node transforms into each submesh's matrix.
func ParseGLB(data []byte) (*Model, error) {
	if len(data) < 12 || binary.LittleEndian.Uint32(data[0:4]) != glbMagic {
		return nil, fmt.Errorf("glb: bad magic")
	}
	if version := binary.LittleEndian.Uint32(data[4:8]); version != 2 {
		return nil, fmt.Errorf("glb: unsupported version %d", version)
	}
	declared := binary.LittleEndian.Uint32(data[8:12])
	if int(declared) > len(data) {
		return nil, fmt.Errorf("glb: truncated container")
	}

	var jsonChunk, binChunk []byte
	offset := 12
	for offset+8 <= len(data) {
		length := int(binary.LittleEndian.Uint32(data[offset : offset+4]))
		chunkType := binary.LittleEndian.Uint32(data[offset+4 : offset+8])
		offset += 8
		if offset+length > len(data) {
			return nil, fmt.Errorf("glb: truncated chunk")
		}
		switch chunkType {
		case glbChunkJSON:
			jsonChunk = data[offset : offset+length]
		case glbChunkBIN:
			binChunk = data[offset : offset+length]
		}
		offset += length
	}
	if jsonChunk == nil {
		return nil, fmt.Errorf("glb: missing JSON chunk")
	}

	var doc gltfDoc
	if err := json.Unmarshal(jsonChunk, &doc); err != nil {
		return nil, fmt.Errorf("glb: parse JSON chunk: %w", err)
	}

	sceneIndex := 0
	if doc.Scene != nil {
		sceneIndex = *doc.Scene
	}
	if sceneIndex < 0 || sceneIndex >= len(doc.Scenes) {
		return nil, fmt.Errorf("glb: no scene")
	}

	model := &Model{}
	for _, nodeIndex := range doc.Scenes[sceneIndex].Nodes {
		if err := walkNode(&doc, binChunk, nodeIndex, identityMatrix(), model, 0); err != nil {
			return nil, err
		}
	}
	if len(model.Meshes) == 0 {
		return nil, fmt.Errorf("glb: scene has no triangle meshes")
	}
	return model, nil
}

const maxNodeDepth = 64

func walkNode(doc *gltfDoc, bin []byte, index int, parent [16]float64, model *Model, depth int) error {
	if depth > maxNodeDepth {
		return fmt.Errorf("glb: node graph too deep (cycle?)")
	}
	if index < 0 || index >= len(doc.Nodes) {
		return fmt.Errorf("glb: node index %d out of range", index)
	}
	node := doc.Nodes[index]

	world := matMul(parent, nodeMatrix(node.Matrix, node.Translation, node.Rotation, node.Scale))

	if node.Mesh != nil {
		if *node.Mesh < 0 || *node.Mesh >= len(doc.Meshes) {
			return fmt.Errorf("glb: mesh index %d out of range", *node.Mesh)
		}
		mesh := doc.Meshes[*node.Mesh]
		for _, prim := range mesh.Primitives {
			if prim.Mode != nil && *prim.Mode != 4 { // TRIANGLES only
				continue
			}
			data, err := readPrimitive(doc, bin, prim.Attributes, prim.Indices)
			if err != nil {
				return err
			}
			if data == nil {
				continue
			}
			data.Name = mesh.Name
			data.HasMaterial = prim.Material != nil
			data.Matrix = world
			model.Meshes = append(model.Meshes, *data)
		}
	}
	for _, child := range node.Children {
		if err := walkNode(doc, bin, child, world, model, depth+1); err != nil {
			return err
		}
	}
	return nil
}

func readPrimitive(doc *gltfDoc, bin []byte, attributes map[string]int, indices *int) (*MeshData, error) {
	posIndex, ok := attributes["POSITION"]
	if !ok {
		return nil, nil
	}
	positions, err := readVec3Accessor(doc, bin, posIndex)
	if err != nil {
		return nil, err
	}
	var normals []float32
	if normalIndex, ok := attributes["NORMAL"]; ok {
		normals, err = readVec3Accessor(doc, bin, normalIndex)
		if err != nil {
			return nil, err
		}
		// Per-vertex attribute: every position needs a normal.
		if len(normals) != len(positions) {
			return nil, fmt.Errorf("glb: NORMAL holds %d vectors, POSITION holds %d", len(normals)/3, len(positions)/3)
		}
	}

	if indices == nil {
		return &MeshData{Positions: positions, Normals: normals}, nil
	}

	order, err := readIndexAccessor(doc, bin, *indices)
	if err != nil {
		return nil, err
	}
	flatPos := make([]float32, 0, len(order)*3)
	var flatNorm []float32
	if normals != nil {
		flatNorm = make([]float32, 0, len(order)*3)
	}
	for _, idx := range order {
		if int(idx)*3+2 >= len(positions) {
			return nil, fmt.Errorf("glb: index %d out of range", idx)
		}
		flatPos = append(flatPos, positions[idx*3], positions[idx*3+1], positions[idx*3+2])
		if flatNorm != nil {
			flatNorm = append(flatNorm, normals[idx*3], normals[idx*3+1], normals[idx*3+2])
		}
	}
	return &MeshData{Positions: flatPos, Normals: flatNorm}, nil
}

func accessorBytes(doc *gltfDoc, bin []byte, index int) ([]byte, int, int, error) {
	if index < 0 || index >= len(doc.Accessors) {
		return nil, 0, 0, fmt.Errorf("glb: accessor %d out of range", index)
	}
	acc := doc.Accessors[index]
	if acc.BufferView == nil {
		return nil, 0, 0, fmt.Errorf("glb: accessor %d has no buffer view", index)
	}
	if *acc.BufferView < 0 || *acc.BufferView >= len(doc.BufferViews) {
		return nil, 0, 0, fmt.Errorf("glb: buffer view %d out of range", *acc.BufferView)
	}
	view := doc.BufferViews[*acc.BufferView]
	start := view.ByteOffset + acc.ByteOffset
	end := view.ByteOffset + view.ByteLength
	if start > end || end > len(bin) {
		return nil, 0, 0, fmt.Errorf("glb: buffer view %d exceeds binary chunk", *acc.BufferView)
	}
	return bin[start:end], acc.Count, view.ByteStride, nil
}

func readVec3Accessor(doc *gltfDoc, bin []byte, index int) ([]float32, error) {
	data, count, stride, err := accessorBytes(doc, bin, index)
	if err != nil {
		return nil, err
	}
	acc := doc.Accessors[index]
	if acc.ComponentType != 5126 || acc.Type != "VEC3" {
		return nil, fmt.Errorf("glb: accessor %d is not float VEC3", index)
	}
	if stride == 0 {
		stride = 12
	}
	if count > 0 && (count-1)*stride+12 > len(data) {
		return nil, fmt.Errorf("glb: accessor %d truncated", index)
	}
	out := make([]float32, 0, count*3)
	for i := 0; i < count; i++ {
		base := i * stride
		for c := 0; c < 3; c++ {
			bits := binary.LittleEndian.Uint32(data[base+c*4 : base+c*4+4])
			out = append(out, math.Float32frombits(bits))
		}
	}
	return out, nil
}

func readIndexAccessor(doc *gltfDoc, bin []byte, index int) ([]uint32, error) {
	data, count, _, err := accessorBytes(doc, bin, index)
	if err != nil {
		return nil, err
	}
	acc := doc.Accessors[index]
	out := make([]uint32, 0, count)
	switch acc.ComponentType {
	case 5121: // unsigned byte
		if count > len(data) {
			return nil, fmt.Errorf("glb: index accessor truncated")
		}
		for i := 0; i < count; i++ {
			out = append(out, uint32(data[i]))
		}
	case 5123: // unsigned short
		if count*2 > len(data) {
			return nil, fmt.Errorf("glb: index accessor truncated")
		}
		for i := 0; i < count; i++ {
			out = append(out, uint32(binary.LittleEndian.Uint16(data[i*2:])))
		}
	case 5125: // unsigned int
		if count*4 > len(data) {
			return nil, fmt.Errorf("glb: index accessor truncated")
		}
		for i := 0; i < count; i++ {
			out = append(out, binary.LittleEndian.Uint32(data[i*4:]))
		}
	default:
		return nil, fmt.Errorf("glb: unsupported index component type %d", acc.ComponentType)
	}
	return out, nil
}

// nodeMatrix builds the local transform, preferring an explicit matrix over
// TRS, both column-major per the glTF spec.
func nodeMatrix(matrix, translation, rotation, scale []float64) [16]float64 {
	if len(matrix) == 16 {
		var m [16]float64
		copy(m[:], matrix)
		return m
	}
	m := identityMatrix()
	if len(rotation) == 4 {
		m = quatToMatrix(rotation[0], rotation[1], rotation[2], rotation[3])
	}
	if len(scale) == 3 {
		for col := 0; col < 3; col++ {
			for row := 0; row < 4; row++ {
				m[col*4+row] *= scale[col]
			}
		}
	}
	if len(translation) == 3 {
		m[12], m[13], m[14] = translation[0], translation[1], translation[2]
	}
	return m
}

func quatToMatrix(x, y, z, w float64) [16]float64 {
	xx, yy, zz := x*x, y*y, z*z
	xy, xz, yz := x*y, x*z, y*z
	wx, wy, wz := w*x, w*y, w*z
	return [16]float64{
		1 - 2*(yy+zz), 2 * (xy + wz), 2 * (xz - wy), 0,
		2 * (xy - wz), 1 - 2*(xx+zz), 2 * (yz + wx), 0,
		2 * (xz + wy), 2 * (yz - wx), 1 - 2*(xx+yy), 0,
		0, 0, 0, 1,
	}
}

func matMul(a, b [16]float64) [16]float64 {
	var out [16]float64
	for col := 0; col < 4; col++ {
		for row := 0; row < 4; row++ {
			sum := 0.0
			for k := 0; k < 4; k++ {
				sum += a[k*4+row] * b[col*4+k]
			}
			out[col*4+row] = sum
		}
	}
	return out
}
