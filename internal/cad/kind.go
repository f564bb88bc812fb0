// Package cad classifies CAD file formats and parses the renderable ones
// into triangle buffers. The format set is closed: stl, obj, glb, step.
// STEP itself is never parsed here; the conversion gateway hands the viewer
// an STL approximation that is parsed as STL and labeled step.
package cad

import (
	"strings"
)

type Kind string

const (
	KindSTL     Kind = "stl"
	KindOBJ     Kind = "obj"
	KindGLB     Kind = "glb"
	KindSTEP    Kind = "step"
	KindUnknown Kind = ""
)

// KindFromFilename classifies by extension. Anything outside the closed set
// is KindUnknown, the explicit "cannot classify" signal.
func KindFromFilename(name string) Kind {
	name = strings.ToLower(strings.TrimSpace(name))
	dot := strings.LastIndexByte(name, '.')
	if dot < 0 {
		return KindUnknown
	}
	switch name[dot+1:] {
	case "stl":
		return KindSTL
	case "obj":
		return KindOBJ
	case "glb":
		return KindGLB
	case "step", "stp":
		return KindSTEP
	default:
		return KindUnknown
	}
}

// ContentType maps a kind to the response content type the proxy sets.
func ContentType(kind Kind) string {
	switch kind {
	case KindSTL:
		return "model/stl"
	case KindOBJ:
		return "model/obj"
	case KindGLB:
		return "model/gltf-binary"
	case KindSTEP:
		return "model/step"
	default:
		return "application/octet-stream"
	}
}
