package meshing

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/atlas"
	"voxelclient/internal/registry"
)

// DecalMesher draws overlays such as signs and paintings: one quad per
// voxel showing the voxel's cell of a Width x Height picture, hung in front
// of the block behind it.
type DecalMesher struct {
	def  *registry.BlockDefinition
	info registry.DecalInfo
	tex  atlas.TexturePos
}

func newDecalMesher(def *registry.BlockDefinition, resolve func(*registry.BlockDefinition, string) atlas.TexturePos) *DecalMesher {
	info := *def.Decal
	info.Width = max(info.Width, 1)
	info.Height = max(info.Height, 1)
	return &DecalMesher{def: def, info: info, tex: resolve(def, info.Texture)}
}

func (m *DecalMesher) Emit(ctx *TesselationContext, out *MeshAccumulator) error {
	t := ctx.Tables
	f := m.info.Facing
	// nothing to see when the cell in front is solid
	if ctx.occludes(t.Front[f]) {
		return nil
	}

	ua, va := t.UAxis[f], t.VAxis[f]
	world3 := [3]int{ctx.X, ctx.Y, ctx.Z}
	col := cellIndex(world3[ua], m.info.Width, t.USign[f])
	row := cellIndex(world3[va], m.info.Height, t.VSign[f])

	// overhang towards each side unless a solid neighbour is there
	ov := m.info.Overhang
	uLow, uHigh := m.overhang(ctx, ua, -t.USign[f], ov), m.overhang(ctx, ua, t.USign[f], ov)
	vLow, vHigh := m.overhang(ctx, va, -t.VSign[f], ov), m.overhang(ctx, va, t.VSign[f], ov)

	dx, dy, dz := f.Normal()
	normal := [3]int{dx, dy, dz}
	na := 0
	for a := 0; a < 3; a++ {
		if normal[a] != 0 {
			na = a
		}
	}
	plane := m.info.Inset
	if normal[na] < 0 {
		plane = 1 - m.info.Inset
	}

	light := ctx.FlatLight(f)
	rgba := ctx.Color(f, light, m.def.IsTinted(f))
	flags := ctx.Flags(f, 0)
	mesh := out.Mesh(MeshKey{Atlas: m.tex.AtlasIndex, Pass: m.def.Pass, LOD: LOD1})
	base := uint32(mesh.VerticesCount())
	origin := localOrigin(ctx)
	w, h := float32(m.info.Width), float32(m.info.Height)

	for _, cuv := range t.CornerUVs {
		uf := -uLow
		if cuv[0] > 0 {
			uf = 1 + uHigh
		}
		vf := -vLow
		if cuv[1] > 0 {
			vf = 1 + vHigh
		}
		var p mgl32.Vec3
		p[na] = plane
		p[ua] = axisCoord(uf, t.USign[f])
		p[va] = axisCoord(vf, t.VSign[f])

		u := clampUnit((float32(col) + uf) / w)
		v := clampUnit((float32(row) + vf) / h)
		u, v = m.tex.Lerp(u, v)
		mesh.AddVertex(origin.Add(p), u, v, rgba, flags)
	}
	mesh.AddQuad(base, false)
	return nil
}

// overhang returns the seam cover on the side of axis a in direction dir,
// cropped to zero when the neighbour there is solid.
func (m *DecalMesher) overhang(ctx *TesselationContext, a int, dir float32, ov float32) float32 {
	if ov <= 0 {
		return 0
	}
	var off [3]int
	if dir > 0 {
		off[a] = 1
	} else {
		off[a] = -1
	}
	if ctx.occludes(NeighborIndex(off[0], off[1], off[2])) {
		return 0
	}
	return ov
}

// cellIndex maps a world coordinate to the picture cell along one axis.
// Cells count in texture direction, so the order flips with sign.
func cellIndex(coord, n int, sign float32) int {
	i := ((coord % n) + n) % n
	if sign < 0 {
		return n - 1 - i
	}
	return i
}

// axisCoord converts a texture-space fraction to a block coordinate.
func axisCoord(frac, sign float32) float32 {
	if sign > 0 {
		return frac
	}
	return 1 - frac
}

func clampUnit(v float32) float32 {
	return min(max(v, 0), 1)
}
