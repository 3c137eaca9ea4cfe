package meshpool

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Plane is a*x + b*y + c*z + d = 0 with a unit normal pointing inside.
type Plane struct {
	A, B, C, D float32
}

func (p Plane) distance(v mgl32.Vec3) float32 {
	return p.A*v[0] + p.B*v[1] + p.C*v[2] + p.D
}

// Frustum holds six planes: left, right, bottom, top, near, far.
type Frustum [6]Plane

// ExtractFrustum builds the planes of a combined projection*view matrix.
func ExtractFrustum(clip mgl32.Mat4) Frustum {
	// mgl32 matrices are column-major
	m00, m01, m02, m03 := clip[0], clip[4], clip[8], clip[12]
	m10, m11, m12, m13 := clip[1], clip[5], clip[9], clip[13]
	m20, m21, m22, m23 := clip[2], clip[6], clip[10], clip[14]
	m30, m31, m32, m33 := clip[3], clip[7], clip[11], clip[15]

	return Frustum{
		normalizePlane(Plane{m30 + m00, m31 + m01, m32 + m02, m33 + m03}),
		normalizePlane(Plane{m30 - m00, m31 - m01, m32 - m02, m33 - m03}),
		normalizePlane(Plane{m30 + m10, m31 + m11, m32 + m12, m33 + m13}),
		normalizePlane(Plane{m30 - m10, m31 - m11, m32 - m12, m33 - m13}),
		normalizePlane(Plane{m30 + m20, m31 + m21, m32 + m22, m33 + m23}),
		normalizePlane(Plane{m30 - m20, m31 - m21, m32 - m22, m33 - m23}),
	}
}

func normalizePlane(p Plane) Plane {
	l := float32(math.Sqrt(float64(p.A*p.A + p.B*p.B + p.C*p.C)))
	if l == 0 {
		return p
	}
	return Plane{p.A / l, p.B / l, p.C / l, p.D / l}
}

// SphereVisible reports whether a sphere touches the frustum.
func (f *Frustum) SphereVisible(center mgl32.Vec3, radius float32) bool {
	for i := range f {
		if f[i].distance(center) < -radius {
			return false
		}
	}
	return true
}

// AABBVisible tests a box using the positive vertex of each plane.
func (f *Frustum) AABBVisible(lo, hi mgl32.Vec3) bool {
	for i := range f {
		p := f[i]
		v := hi
		if p.A < 0 {
			v[0] = lo[0]
		}
		if p.B < 0 {
			v[1] = lo[1]
		}
		if p.C < 0 {
			v[2] = lo[2]
		}
		if p.distance(v) < 0 {
			return false
		}
	}
	return true
}
