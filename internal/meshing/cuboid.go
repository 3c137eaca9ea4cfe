package meshing

import (
	"errors"
	"fmt"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/atlas"
	"voxelclient/internal/world"
)

// ErrDegenerateCuboid rejects boxes with no extent along some axis.
var ErrDegenerateCuboid = errors.New("meshing: degenerate cuboid")

// CheckCuboid returns ErrDegenerateCuboid when the box from lo to hi is
// empty along any axis.
func CheckCuboid(lo, hi mgl32.Vec3) error {
	size := hi.Sub(lo)
	if size[0] <= 0 || size[1] <= 0 || size[2] <= 0 {
		return fmt.Errorf("%w: size %.3f x %.3f x %.3f", ErrDegenerateCuboid, size[0], size[1], size[2])
	}
	return nil
}

// CuboidVertex supplies the colour and flags of a cuboid face.
type CuboidVertex func(face world.BlockFace) (rgba, flags uint32)

// CuboidMesh appends the faces in faceMask of the box from lo to hi to dst,
// each textured with the whole tile. Nothing is appended for a degenerate box.
func CuboidMesh(dst *MeshData, tables *FaceGeometryTables, lo, hi mgl32.Vec3, faceMask uint8, tex atlas.TexturePos, vertex CuboidVertex) error {
	if err := CheckCuboid(lo, hi); err != nil {
		return err
	}
	size := hi.Sub(lo)
	for f := world.BlockFace(0); f < world.NumFaces; f++ {
		if faceMask&f.Flag() == 0 {
			continue
		}
		rgba, flags := vertex(f)
		base := uint32(dst.VerticesCount())
		for i, c := range tables.Corners[f] {
			p := mgl32.Vec3{lo[0] + c[0]*size[0], lo[1] + c[1]*size[1], lo[2] + c[2]*size[2]}
			u, v := tex.Lerp(tables.CornerUVs[i][0], tables.CornerUVs[i][1])
			dst.AddVertex(p, u, v, rgba, flags)
		}
		dst.AddQuad(base, false)
	}
	return nil
}
