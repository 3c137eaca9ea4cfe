package blockmodel

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"
)

// Bounds returns the element box in block units.
func (e Element) Bounds() (min, max mgl32.Vec3) {
	for i := 0; i < 3; i++ {
		a, b := e.From[i]/16, e.To[i]/16
		if a > b {
			a, b = b, a
		}
		min[i], max[i] = a, b
	}
	return min, max
}

// IsFullCube reports whether the element spans the whole block.
func (e Element) IsFullCube() bool {
	lo, hi := e.Bounds()
	const eps = 1e-3
	for i := 0; i < 3; i++ {
		if lo[i] > eps || hi[i] < 1-eps {
			return false
		}
	}
	return true
}

// Matrix returns the element rotation as a transform in block units, or the
// identity when the element is not rotated.
func (r *Rotation) Matrix() mgl32.Mat4 {
	if r == nil || r.Angle == 0 {
		return mgl32.Ident4()
	}
	origin := mgl32.Vec3{r.Origin[0] / 16, r.Origin[1] / 16, r.Origin[2] / 16}
	rad := mgl32.DegToRad(r.Angle)
	var rot mgl32.Mat4
	scale := mgl32.Vec3{1, 1, 1}
	s := float32(1 / math.Cos(float64(rad)))
	switch r.Axis {
	case "x":
		rot = mgl32.HomogRotate3DX(rad)
		scale = mgl32.Vec3{1, s, s}
	case "z":
		rot = mgl32.HomogRotate3DZ(rad)
		scale = mgl32.Vec3{s, s, 1}
	default:
		rot = mgl32.HomogRotate3DY(rad)
		scale = mgl32.Vec3{s, 1, s}
	}
	if r.Rescale {
		rot = rot.Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))
	}
	return mgl32.Translate3D(origin[0], origin[1], origin[2]).
		Mul4(rot).
		Mul4(mgl32.Translate3D(-origin[0], -origin[1], -origin[2]))
}

// FaceUV returns the face's UV rectangle in 0..16 units, deriving it from
// the element box when the model leaves it out.
func (e Element) FaceUV(face string) [4]float32 {
	if f, ok := e.Faces[face]; ok && f.UV != nil {
		return *f.UV
	}
	from, to := e.From, e.To
	switch face {
	case "up":
		return [4]float32{from[0], from[2], to[0], to[2]}
	case "down":
		return [4]float32{from[0], 16 - to[2], to[0], 16 - from[2]}
	case "north":
		return [4]float32{16 - to[0], 16 - to[1], 16 - from[0], 16 - from[1]}
	case "south":
		return [4]float32{from[0], 16 - to[1], to[0], 16 - from[1]}
	case "west":
		return [4]float32{from[2], 16 - to[1], to[2], 16 - from[1]}
	default: // east
		return [4]float32{16 - to[2], 16 - to[1], 16 - from[2], 16 - from[1]}
	}
}

// UnionBounds returns the box enclosing every element, in block units.
// ok is false when there are no elements.
func UnionBounds(elements []Element) (min, max mgl32.Vec3, ok bool) {
	for i, e := range elements {
		lo, hi := e.Bounds()
		if i == 0 {
			min, max = lo, hi
			continue
		}
		for a := 0; a < 3; a++ {
			min[a] = float32(math.Min(float64(min[a]), float64(lo[a])))
			max[a] = float32(math.Max(float64(max[a]), float64(hi[a])))
		}
	}
	return min, max, len(elements) > 0
}
