package blockmodel

import (
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestElementBoundsAndFullCube(t *testing.T) {
	e := Element{From: [3]float32{0, 0, 0}, To: [3]float32{16, 8, 16}}
	lo, hi := e.Bounds()
	if lo != (mgl32.Vec3{0, 0, 0}) || hi != (mgl32.Vec3{1, 0.5, 1}) {
		t.Fatalf("bounds = %v %v", lo, hi)
	}
	if e.IsFullCube() {
		t.Fatal("half slab is not a full cube")
	}
	e.To[1] = 16
	if !e.IsFullCube() {
		t.Fatal("expected full cube")
	}
}

func TestUnionBounds(t *testing.T) {
	els := []Element{
		{From: [3]float32{4, 0, 4}, To: [3]float32{12, 8, 12}},
		{From: [3]float32{6, 8, 6}, To: [3]float32{10, 14, 10}},
	}
	lo, hi, ok := UnionBounds(els)
	if !ok {
		t.Fatal("expected bounds")
	}
	if !lo.ApproxEqual(mgl32.Vec3{0.25, 0, 0.25}) || !hi.ApproxEqual(mgl32.Vec3{0.75, 0.875, 0.75}) {
		t.Fatalf("union = %v %v", lo, hi)
	}
	if _, _, ok := UnionBounds(nil); ok {
		t.Fatal("no elements should report !ok")
	}
}

func TestRotationMatrixKeepsOrigin(t *testing.T) {
	r := &Rotation{Origin: [3]float32{8, 8, 8}, Angle: 45, Axis: "y"}
	m := r.Matrix()
	p := m.Mul4x1(mgl32.Vec4{0.5, 0.5, 0.5, 1}).Vec3()
	if !p.ApproxEqual(mgl32.Vec3{0.5, 0.5, 0.5}) {
		t.Fatalf("origin moved to %v", p)
	}
	if (*Rotation)(nil).Matrix() != mgl32.Ident4() {
		t.Fatal("nil rotation should be identity")
	}
}

func TestFaceUVDefault(t *testing.T) {
	e := Element{From: [3]float32{2, 0, 4}, To: [3]float32{14, 16, 12}, Faces: map[string]Face{"up": {}}}
	if uv := e.FaceUV("up"); uv != [4]float32{2, 4, 14, 12} {
		t.Fatalf("up uv = %v", uv)
	}
	explicit := [4]float32{0, 0, 8, 8}
	e.Faces["up"] = Face{UV: &explicit}
	if uv := e.FaceUV("up"); uv != explicit {
		t.Fatalf("explicit uv ignored: %v", uv)
	}
}
