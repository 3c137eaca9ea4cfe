package meshing

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/world"
)

// CornerNeighborIndex addresses a cell of the 3x3x3 neighbourhood around
// the voxel being meshed. The voxel itself is CenterNeighbor.
type CornerNeighborIndex uint8

const (
	NumNeighbors                       = 27
	CenterNeighbor CornerNeighborIndex = 13
)

// NeighborIndex returns the index of the cell at offset (dx,dy,dz), each in -1..1.
func NeighborIndex(dx, dy, dz int) CornerNeighborIndex {
	return CornerNeighborIndex((dx + 1) + (dy+1)*3 + (dz+1)*9)
}

// Offset is the inverse of NeighborIndex.
func (i CornerNeighborIndex) Offset() (dx, dy, dz int) {
	v := int(i)
	return v%3 - 1, (v/3)%3 - 1, v/9 - 1
}

// FaceNeighbor returns the cell behind a face.
func FaceNeighbor(face world.BlockFace) CornerNeighborIndex {
	dx, dy, dz := face.Normal()
	return NeighborIndex(dx, dy, dz)
}

// CornerNeighbors are the cells sampled for the light of one face corner:
// the cell in front of the face, the two cells beside the corner and the
// diagonal between them.
type CornerNeighbors struct {
	Front    CornerNeighborIndex
	Side1    CornerNeighborIndex
	Side2    CornerNeighborIndex
	Diagonal CornerNeighborIndex
}

// FaceGeometryTables holds the immutable lookup tables shared by every
// mesher. Build it once with NewFaceGeometryTables and pass it around.
type FaceGeometryTables struct {
	Normals   [world.NumFaces]mgl32.Vec3
	Front     [world.NumFaces]CornerNeighborIndex
	Opposite  [world.NumFaces]world.BlockFace
	Shade     [world.NumFaces]float32
	Corners   [world.NumFaces][4]mgl32.Vec3 // CCW seen from outside
	CornerUVs [4][2]float32
	Neighbors [world.NumFaces][4]CornerNeighbors

	// UAxis/VAxis name the block axis along which the texture u and v
	// coordinates run; the sign tells whether they grow with it.
	UAxis, VAxis [world.NumFaces]int
	USign, VSign [world.NumFaces]float32

	// RotationsY[k] turns a block by k quarter turns about its vertical
	// centre line, north towards east. RotateFaceY maps faces the same way.
	RotationsY  [4]mgl32.Mat4
	RotateFaceY [4][world.NumFaces]world.BlockFace
}

var faceCorners = [world.NumFaces][4]mgl32.Vec3{
	world.FaceNorth: {{1, 0, 0}, {0, 0, 0}, {0, 1, 0}, {1, 1, 0}},
	world.FaceEast:  {{1, 0, 1}, {1, 0, 0}, {1, 1, 0}, {1, 1, 1}},
	world.FaceSouth: {{0, 0, 1}, {1, 0, 1}, {1, 1, 1}, {0, 1, 1}},
	world.FaceWest:  {{0, 0, 0}, {0, 0, 1}, {0, 1, 1}, {0, 1, 0}},
	world.FaceUp:    {{0, 1, 0}, {0, 1, 1}, {1, 1, 1}, {1, 1, 0}},
	world.FaceDown:  {{0, 0, 0}, {1, 0, 0}, {1, 0, 1}, {0, 0, 1}},
}

var faceShade = [world.NumFaces]float32{
	world.FaceNorth: 0.8,
	world.FaceSouth: 0.8,
	world.FaceEast:  0.6,
	world.FaceWest:  0.6,
	world.FaceUp:    1.0,
	world.FaceDown:  0.5,
}

// NewFaceGeometryTables builds the tables.
func NewFaceGeometryTables() *FaceGeometryTables {
	t := &FaceGeometryTables{
		Corners:   faceCorners,
		Shade:     faceShade,
		CornerUVs: [4][2]float32{{0, 1}, {1, 1}, {1, 0}, {0, 0}},
	}

	for f := world.BlockFace(0); f < world.NumFaces; f++ {
		dx, dy, dz := f.Normal()
		t.Normals[f] = mgl32.Vec3{float32(dx), float32(dy), float32(dz)}
		t.Front[f] = NeighborIndex(dx, dy, dz)
		t.Opposite[f] = f.Opposite()
		normal := [3]int{dx, dy, dz}

		tangents := make([]int, 0, 2)
		for a := 0; a < 3; a++ {
			if normal[a] == 0 {
				tangents = append(tangents, a)
			}
		}

		for c, corner := range t.Corners[f] {
			side1, side2, diag := normal, normal, normal
			s1 := cornerSign(corner[tangents[0]])
			s2 := cornerSign(corner[tangents[1]])
			side1[tangents[0]] += s1
			side2[tangents[1]] += s2
			diag[tangents[0]] += s1
			diag[tangents[1]] += s2
			t.Neighbors[f][c] = CornerNeighbors{
				Front:    t.Front[f],
				Side1:    NeighborIndex(side1[0], side1[1], side1[2]),
				Side2:    NeighborIndex(side2[0], side2[1], side2[2]),
				Diagonal: NeighborIndex(diag[0], diag[1], diag[2]),
			}
		}

		// corner 0 -> 1 moves along u, corner 1 -> 2 moves against v
		c0, c1, c2 := t.Corners[f][0], t.Corners[f][1], t.Corners[f][2]
		for a := 0; a < 3; a++ {
			if d := c1[a] - c0[a]; d != 0 {
				t.UAxis[f], t.USign[f] = a, d
			}
			if d := c2[a] - c1[a]; d != 0 {
				t.VAxis[f], t.VSign[f] = a, -d
			}
		}
	}

	// exact quarter turns; cos/sin of -k*90 degrees
	cs := [4][2]float32{{1, 0}, {0, -1}, {-1, 0}, {0, 1}}
	toCenter := mgl32.Translate3D(-0.5, 0, -0.5)
	back := mgl32.Translate3D(0.5, 0, 0.5)
	for k := 0; k < 4; k++ {
		c, s := cs[k][0], cs[k][1]
		rot := mgl32.Mat4{c, 0, -s, 0, 0, 1, 0, 0, s, 0, c, 0, 0, 0, 0, 1}
		t.RotationsY[k] = back.Mul4(rot).Mul4(toCenter)
		for f := world.BlockFace(0); f < world.NumFaces; f++ {
			if f.IsHorizontal() {
				t.RotateFaceY[k][f] = world.BlockFace((int(f) + k) % 4)
			} else {
				t.RotateFaceY[k][f] = f
			}
		}
	}
	return t
}

func cornerSign(v float32) int {
	if v > 0.5 {
		return 1
	}
	return -1
}
