package viewer

import "math"

// PerspectiveCamera mirrors the parameters the render surface needs to build
// its projection. FOV is the vertical field of view in degrees.
type PerspectiveCamera struct {
	FOV      float64
	Aspect   float64
	Near     float64
	Far      float64
	Position Vec3
	Target   Vec3
}

func NewPerspectiveCamera(fov, aspect float64) *PerspectiveCamera {
	return &PerspectiveCamera{FOV: fov, Aspect: aspect, Near: 0.1, Far: 1000}
}

// OrbitControls carries the zoom clamps the surface's controls enforce.
type OrbitControls struct {
	Target      Vec3
	MinDistance float64
	MaxDistance float64
}

// fitViewDirection is the fixed diagonal the camera looks down after a fit;
// the same geometry and viewport always produce the same pose.
var fitViewDirection = Vec3{1, 0.8, 1}.Normalize()

const fitPadding = 1.25

// Fitter tracks which object instances have already been centered, so
// repeated fits (container resizes) never accumulate drift.
type Fitter struct {
	centered map[*Object]struct{}
}

func NewFitter() *Fitter {
	return &Fitter{centered: make(map[*Object]struct{})}
}

// Forget drops the centering record for a disposed object so the side table
// does not grow with every load.
func (f *Fitter) Forget(obj *Object) {
	delete(f.centered, obj)
}

// FitAndCenter frames the object's bounding sphere. On the first fit of an
// object instance the object is recentered to the origin and grounded so its
// lowest Y sits at zero. Returns false when the object has no measurable
// bounds; camera and controls are untouched in that case.
func (f *Fitter) FitAndCenter(obj *Object, camera *PerspectiveCamera, controls *OrbitControls, width, height int) bool {
	if obj == nil || camera == nil || width <= 0 || height <= 0 {
		return false
	}
	obj.UpdateWorldMatrices(Identity())
	box := obj.BoundingBox()
	if box.IsEmpty() || !box.IsFinite() {
		return false
	}

	if _, done := f.centered[obj]; !done {
		center := box.Center()
		obj.Local = Translation(center.Scale(-1)).Mul(obj.Local)
		obj.UpdateWorldMatrices(Identity())

		// Re-measure, then ground: minimum Y to zero.
		grounded := obj.BoundingBox()
		obj.Local = Translation(Vec3{Y: -grounded.Min.Y}).Mul(obj.Local)
		obj.UpdateWorldMatrices(Identity())

		f.centered[obj] = struct{}{}
	}

	sphere := obj.BoundingSphere()
	if sphere.Radius <= 0 {
		return false
	}

	camera.Aspect = float64(width) / float64(height)
	vfov := camera.FOV * math.Pi / 180
	hfov := 2 * math.Atan(math.Tan(vfov/2)*camera.Aspect)
	// The sphere must fit the more restrictive of the two fields of view.
	limiting := math.Min(vfov, hfov)
	distance := sphere.Radius / math.Sin(limiting/2) * fitPadding

	camera.Position = sphere.Center.Add(fitViewDirection.Scale(distance))
	camera.Target = sphere.Center
	camera.Near = sphere.Radius / 1000
	camera.Far = math.Max(sphere.Radius*1000, distance+sphere.Radius*20)

	if controls != nil {
		controls.Target = sphere.Center
		controls.MinDistance = math.Min(distance/10, distance)
		controls.MaxDistance = math.Max(distance*10, distance)
	}
	return true
}
