package showroom

import "math"

// Camera is the per-tick view supplied by the render loop.
type Camera struct {
	// Position is the camera's world position, used for distances.
	Position Vec3

	// ViewProjection is the combined projection × view transform.
	ViewProjection Mat4
}

// NewCamera builds a Camera from separate projection and view matrices.
func NewCamera(position Vec3, projection, view Mat4) Camera {
	return Camera{
		Position:       position,
		ViewProjection: projection.Mul(view),
	}
}

// Plane is a half-space boundary: points p with Normal·p + D >= 0 are on
// the inner side.
type Plane struct {
	Normal Vec3
	D      float64
}

// Distance returns the signed distance from p to the plane.
func (pl Plane) Distance(p Vec3) float64 {
	return pl.Normal.Dot(p) + pl.D
}

// Frustum plane indices.
const (
	PlaneLeft = iota
	PlaneRight
	PlaneBottom
	PlaneTop
	PlaneNear
	PlaneFar
)

// Frustum is the camera's view volume as six inward-facing planes.
type Frustum [6]Plane

// FrustumFromMatrix extracts normalized frustum planes from a combined
// projection × view matrix (Gribb-Hartmann), for OpenGL clip space where
// -w <= x, y, z <= w.
func FrustumFromMatrix(m Mat4) Frustum {
	row := func(r int) [4]float64 {
		return [4]float64{m.At(r, 0), m.At(r, 1), m.At(r, 2), m.At(r, 3)}
	}
	r0, r1, r2, r3 := row(0), row(1), row(2), row(3)

	plane := func(a [4]float64, b [4]float64, sign float64) Plane {
		n := Vec3{
			X: a[0] + sign*b[0],
			Y: a[1] + sign*b[1],
			Z: a[2] + sign*b[2],
		}
		d := a[3] + sign*b[3]
		if l := n.Len(); l > 0 {
			n = n.Mul(1 / l)
			d /= l
		}
		return Plane{Normal: n, D: d}
	}

	var f Frustum
	f[PlaneLeft] = plane(r3, r0, 1)
	f[PlaneRight] = plane(r3, r0, -1)
	f[PlaneBottom] = plane(r3, r1, 1)
	f[PlaneTop] = plane(r3, r1, -1)
	f[PlaneNear] = plane(r3, r2, 1)
	f[PlaneFar] = plane(r3, r2, -1)
	return f
}

// ContainsPoint reports whether p lies inside (or on) all six planes.
func (f *Frustum) ContainsPoint(p Vec3) bool {
	for i := range f {
		if f[i].Distance(p) < 0 {
			return false
		}
	}
	return true
}

// UpdatePerformanceData refreshes every item's visibility and distance for
// this tick. Call it once per frame from the render loop.
//
// Finished decodes are reconciled first, so results that arrived since the
// previous frame are attached before visibility changes are recorded.
// Containment is tested at the item's position only; items straddling the
// frustum edge count as visible only if their origin is inside.
func (m *Manager) UpdatePerformanceData(cam Camera) {
	if m.closed {
		return
	}
	m.Reconcile()

	frustum := FrustumFromMatrix(cam.ViewProjection)
	now := m.clock.Now()

	m.registry.each(func(it *item) {
		pos := it.pos.WorldPosition()
		rec := &it.rec
		if !pos.IsFinite() {
			rec.IsVisible = false
			rec.DistanceFromCamera = math.Inf(1)
		} else {
			rec.IsVisible = frustum.ContainsPoint(pos)
			rec.DistanceFromCamera = pos.Distance(cam.Position)
		}
		it.measured = true
		rec.LastUpdated = now
		if rec.IsVisible {
			rec.LastSeen = now
		}
	})
}
