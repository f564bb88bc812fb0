package cad

import (
	"bufio"
	"bytes"
	"encoding/binary"
	"fmt"
	"math"
	"strconv"
	"strings"
)

const (
	stlHeaderSize   = 84 // 80-byte comment + uint32 triangle count
	stlTriangleSize = 50 // normal + 3 vertices (12 floats) + attribute uint16
)

// ParseSTL parses binary or ASCII STL into a single-mesh model. Binary is
// detected by the declared triangle count matching the byte length; files
// starting with "solid" that fail that check are parsed as ASCII.
func ParseSTL(data []byte) (*Model, error) {
	if len(data) >= stlHeaderSize {
		count := binary.LittleEndian.Uint32(data[80:84])
		if int64(len(data)) == int64(stlHeaderSize)+int64(count)*stlTriangleSize {
			return parseBinarySTL(data, count)
		}
	}
	if bytes.HasPrefix(bytes.TrimLeft(data, " \t\r\n"), []byte("solid")) {
		return parseASCIISTL(data)
	}
	return nil, fmt.Errorf("stl: not a valid binary or ascii file (%d bytes)", len(data))
}

func parseBinarySTL(data []byte, count uint32) (*Model, error) {
	positions := make([]float32, 0, count*9)
	normals := make([]float32, 0, count*9)

	offset := stlHeaderSize
	for i := uint32(0); i < count; i++ {
		record := data[offset : offset+stlTriangleSize]
		var floats [12]float32
		for j := range floats {
			bits := binary.LittleEndian.Uint32(record[j*4:])
			floats[j] = math.Float32frombits(bits)
		}
		nx, ny, nz := floats[0], floats[1], floats[2]
		for v := 0; v < 3; v++ {
			positions = append(positions, floats[3+v*3], floats[4+v*3], floats[5+v*3])
			normals = append(normals, nx, ny, nz)
		}
		offset += stlTriangleSize
	}

	return &Model{Meshes: []MeshData{{
		Name:      "stl",
		Positions: positions,
		Normals:   normals,
		Matrix:    identityMatrix(),
	}}}, nil
}

func parseASCIISTL(data []byte) (*Model, error) {
	var positions, normals []float32
	var normal [3]float32
	vertsInFacet := 0

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 1024*1024)
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 {
			continue
		}
		switch fields[0] {
		case "facet":
			// "facet normal nx ny nz"
			if len(fields) != 5 || fields[1] != "normal" {
				return nil, fmt.Errorf("stl: malformed facet line %q", strings.Join(fields, " "))
			}
			for i := 0; i < 3; i++ {
				v, err := strconv.ParseFloat(fields[2+i], 32)
				if err != nil {
					return nil, fmt.Errorf("stl: bad normal component: %w", err)
				}
				normal[i] = float32(v)
			}
			vertsInFacet = 0
		case "vertex":
			if len(fields) != 4 {
				return nil, fmt.Errorf("stl: malformed vertex line %q", strings.Join(fields, " "))
			}
			for i := 0; i < 3; i++ {
				v, err := strconv.ParseFloat(fields[1+i], 32)
				if err != nil {
					return nil, fmt.Errorf("stl: bad vertex component: %w", err)
				}
				positions = append(positions, float32(v))
			}
			normals = append(normals, normal[0], normal[1], normal[2])
			vertsInFacet++
			if vertsInFacet > 3 {
				return nil, fmt.Errorf("stl: facet with more than three vertices")
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("stl: scan: %w", err)
	}
	if len(positions) == 0 || len(positions)%9 != 0 {
		return nil, fmt.Errorf("stl: no complete triangles")
	}

	return &Model{Meshes: []MeshData{{
		Name:      "stl",
		Positions: positions,
		Normals:   normals,
		Matrix:    identityMatrix(),
	}}}, nil
}
