package cad

import (
	"bufio"
	"bytes"
	"fmt"
	"strconv"
	"strings"
)

// ParseOBJ parses a Wavefront OBJ into one submesh per object/group.
// Polygons are triangulated as fans; negative indices are relative per the
// format. Submeshes that never saw a usemtl keep HasMaterial=false so the
// scene builder can assign the default material.
func ParseOBJ(data []byte) (*Model, error) {
	var vertices [][3]float32
	var vertexNormals [][3]float32

	model := &Model{}
	current := &MeshData{Name: "default", Matrix: identityMatrix()}

	flush := func() {
		if len(current.Positions) > 0 {
			model.Meshes = append(model.Meshes, *current)
		}
	}

	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 64*1024), 4*1024*1024)
	line := 0
	for scanner.Scan() {
		line++
		fields := strings.Fields(scanner.Text())
		if len(fields) == 0 || strings.HasPrefix(fields[0], "#") {
			continue
		}
		switch fields[0] {
		case "v":
			v, err := parseVec3(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("obj line %d: %w", line, err)
			}
			vertices = append(vertices, v)
		case "vn":
			v, err := parseVec3(fields[1:])
			if err != nil {
				return nil, fmt.Errorf("obj line %d: %w", line, err)
			}
			vertexNormals = append(vertexNormals, v)
		case "o", "g":
			flush()
			name := "default"
			if len(fields) > 1 {
				name = strings.Join(fields[1:], " ")
			}
			current = &MeshData{Name: name, Matrix: identityMatrix()}
		case "usemtl":
			current.HasMaterial = true
		case "f":
			if err := appendFace(current, fields[1:], vertices, vertexNormals); err != nil {
				return nil, fmt.Errorf("obj line %d: %w", line, err)
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("obj: scan: %w", err)
	}
	flush()

	if len(model.Meshes) == 0 {
		return nil, fmt.Errorf("obj: no faces")
	}
	return model, nil
}

func parseVec3(fields []string) ([3]float32, error) {
	var v [3]float32
	if len(fields) < 3 {
		return v, fmt.Errorf("expected three components, got %d", len(fields))
	}
	for i := 0; i < 3; i++ {
		f, err := strconv.ParseFloat(fields[i], 32)
		if err != nil {
			return v, fmt.Errorf("bad component %q: %w", fields[i], err)
		}
		v[i] = float32(f)
	}
	return v, nil
}

// appendFace triangulates an n-gon as a fan around the first vertex.
func appendFace(mesh *MeshData, refs []string, vertices, vertexNormals [][3]float32) error {
	if len(refs) < 3 {
		return fmt.Errorf("face with %d vertices", len(refs))
	}
	type corner struct {
		pos    [3]float32
		normal [3]float32
		hasN   bool
	}
	corners := make([]corner, 0, len(refs))
	for _, ref := range refs {
		parts := strings.Split(ref, "/")
		vi, err := resolveIndex(parts[0], len(vertices))
		if err != nil {
			return err
		}
		c := corner{pos: vertices[vi]}
		if len(parts) == 3 && parts[2] != "" {
			ni, err := resolveIndex(parts[2], len(vertexNormals))
			if err != nil {
				return err
			}
			c.normal = vertexNormals[ni]
			c.hasN = true
		}
		corners = append(corners, c)
	}

	for i := 1; i+1 < len(corners); i++ {
		tri := [3]corner{corners[0], corners[i], corners[i+1]}
		var flat [3]float32
		if !tri[0].hasN || !tri[1].hasN || !tri[2].hasN {
			flat = faceNormal(tri[0].pos, tri[1].pos, tri[2].pos)
		}
		for _, c := range tri {
			mesh.Positions = append(mesh.Positions, c.pos[0], c.pos[1], c.pos[2])
			n := c.normal
			if !c.hasN {
				n = flat
			}
			mesh.Normals = append(mesh.Normals, n[0], n[1], n[2])
		}
	}
	return nil
}

func resolveIndex(raw string, length int) (int, error) {
	idx, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("bad index %q: %w", raw, err)
	}
	if idx < 0 {
		idx = length + idx
	} else {
		idx--
	}
	if idx < 0 || idx >= length {
		return 0, fmt.Errorf("index %q out of range", raw)
	}
	return idx, nil
}

func faceNormal(a, b, c [3]float32) [3]float32 {
	ux, uy, uz := b[0]-a[0], b[1]-a[1], b[2]-a[2]
	vx, vy, vz := c[0]-a[0], c[1]-a[1], c[2]-a[2]
	return [3]float32{uy*vz - uz*vy, uz*vx - ux*vz, ux*vy - uy*vx}
}
