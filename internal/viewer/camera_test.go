package viewer

import (
	"math"
	"testing"

	"partquote/api/internal/cad"
)

// cubeModel is a unit cube offset from the origin, so centering is observable.
func cubeModel() *cad.Model {
	min, max := float32(2), float32(3)
	var positions []float32
	for _, x := range []float32{min, max} {
		for _, y := range []float32{min, max} {
			for _, z := range []float32{min, max} {
				positions = append(positions, x, y, z)
			}
		}
	}
	mesh := cad.MeshData{Name: "cube", Positions: positions}
	copy(mesh.Matrix[:], identity16())
	return &cad.Model{Meshes: []cad.MeshData{mesh}}
}

func identity16() []float64 {
	m := Identity()
	return m[:]
}

func TestFitAndCenterIsIdempotent(t *testing.T) {
	obj := BuildObject(cubeModel(), cad.KindGLB)
	camera := NewPerspectiveCamera(45, 1)
	controls := &OrbitControls{}
	fitter := NewFitter()

	if !fitter.FitAndCenter(obj, camera, controls, 800, 600) {
		t.Fatal("first fit failed")
	}
	firstPos, firstTarget := camera.Position, camera.Target
	firstNear, firstFar := camera.Near, camera.Far
	firstMin, firstMax := controls.MinDistance, controls.MaxDistance

	if !fitter.FitAndCenter(obj, camera, controls, 800, 600) {
		t.Fatal("second fit failed")
	}
	if camera.Position != firstPos || camera.Target != firstTarget {
		t.Fatalf("pose drifted: %+v/%+v then %+v/%+v", firstPos, firstTarget, camera.Position, camera.Target)
	}
	if camera.Near != firstNear || camera.Far != firstFar {
		t.Fatalf("clip planes drifted: %g/%g then %g/%g", firstNear, firstFar, camera.Near, camera.Far)
	}
	if controls.MinDistance != firstMin || controls.MaxDistance != firstMax {
		t.Fatal("control clamps drifted across fits")
	}
}

func TestFitAndCenterGroundsObject(t *testing.T) {
	obj := BuildObject(cubeModel(), cad.KindGLB)
	camera := NewPerspectiveCamera(45, 1)
	fitter := NewFitter()

	if !fitter.FitAndCenter(obj, camera, nil, 800, 600) {
		t.Fatal("fit failed")
	}
	box := obj.BoundingBox()
	if math.Abs(box.Min.Y) > 1e-9 {
		t.Fatalf("min Y = %g after grounding, want 0", box.Min.Y)
	}
	center := box.Center()
	if math.Abs(center.X) > 1e-9 || math.Abs(center.Z) > 1e-9 {
		t.Fatalf("center = %+v, want X and Z at origin", center)
	}
}

func TestFitAndCenterRejectsEmptyObject(t *testing.T) {
	obj := NewObject("empty")
	camera := NewPerspectiveCamera(45, 1)
	before := *camera
	fitter := NewFitter()

	if fitter.FitAndCenter(obj, camera, nil, 800, 600) {
		t.Fatal("fit succeeded on an object without geometry")
	}
	if *camera != before {
		t.Fatal("camera modified by a failed fit")
	}
}

func TestFitAndCenterRejectsZeroViewport(t *testing.T) {
	obj := BuildObject(cubeModel(), cad.KindGLB)
	fitter := NewFitter()
	if fitter.FitAndCenter(obj, NewPerspectiveCamera(45, 1), nil, 0, 600) {
		t.Fatal("fit succeeded with a zero-width viewport")
	}
}

func TestForgetAllowsRecentering(t *testing.T) {
	obj := BuildObject(cubeModel(), cad.KindGLB)
	camera := NewPerspectiveCamera(45, 1)
	fitter := NewFitter()

	if !fitter.FitAndCenter(obj, camera, nil, 800, 600) {
		t.Fatal("first fit failed")
	}
	// Drift the object; the side-table entry would normally leave it alone.
	obj.Local = Translation(Vec3{X: 7}).Mul(obj.Local)
	fitter.Forget(obj)

	if !fitter.FitAndCenter(obj, camera, nil, 800, 600) {
		t.Fatal("refit failed")
	}
	center := obj.BoundingBox().Center()
	if math.Abs(center.X) > 1e-6 {
		t.Fatalf("center X = %g after forget and refit, want 0", center.X)
	}
}

func TestFitDistanceUsesLimitingFOV(t *testing.T) {
	// A tall, narrow viewport makes the horizontal FOV the limiting one, so
	// the camera must back off further than for a square viewport.
	square := BuildObject(cubeModel(), cad.KindGLB)
	narrow := BuildObject(cubeModel(), cad.KindGLB)
	camSquare := NewPerspectiveCamera(45, 1)
	camNarrow := NewPerspectiveCamera(45, 1)
	fitter := NewFitter()

	if !fitter.FitAndCenter(square, camSquare, nil, 600, 600) {
		t.Fatal("square fit failed")
	}
	if !fitter.FitAndCenter(narrow, camNarrow, nil, 200, 600) {
		t.Fatal("narrow fit failed")
	}

	distSquare := camSquare.Position.Sub(camSquare.Target).Length()
	distNarrow := camNarrow.Position.Sub(camNarrow.Target).Length()
	if distNarrow <= distSquare {
		t.Fatalf("narrow distance %g not greater than square distance %g", distNarrow, distSquare)
	}
}
