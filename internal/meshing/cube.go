package meshing

import (
	"voxelclient/internal/atlas"
	"voxelclient/internal/registry"
	"voxelclient/internal/world"
)

// CubeMesher draws full blocks with per-corner light blending.
type CubeMesher struct {
	def *registry.BlockDefinition
	// variants[0] is the base texture set
	variants [][world.NumFaces]atlas.TexturePos
}

func newCubeMesher(def *registry.BlockDefinition, resolve func(*registry.BlockDefinition, string) atlas.TexturePos) *CubeMesher {
	m := &CubeMesher{def: def}
	sets := append([]registry.FaceTextures{def.Textures}, def.Variants...)
	for _, set := range sets {
		var faces [world.NumFaces]atlas.TexturePos
		for f, name := range set {
			faces[f] = resolve(def, name)
		}
		m.variants = append(m.variants, faces)
	}
	return m
}

func (m *CubeMesher) Emit(ctx *TesselationContext, out *MeshAccumulator) error {
	if ctx.CullMask == 0 {
		return nil
	}
	tex := &m.variants[VariantIndex(ctx.Hash, len(m.variants))]
	turns := 0
	if m.def.RandomRotation {
		turns = QuarterTurns(ctx.Hash)
	}
	origin := localOrigin(ctx)

	for f := world.BlockFace(0); f < world.NumFaces; f++ {
		if !ctx.FaceVisible(f) {
			continue
		}
		pos := tex[f]
		mesh := out.Mesh(MeshKey{Atlas: pos.AtlasIndex, Pass: m.def.Pass, LOD: LOD1})
		light := ctx.FaceLight(f)
		tinted := m.def.IsTinted(f)

		// side faces keep their orientation so columns line up
		rot := 0
		if !f.IsHorizontal() {
			rot = turns
		}
		base := uint32(mesh.VerticesCount())
		for i, corner := range ctx.Tables.Corners[f] {
			uv := ctx.Tables.CornerUVs[(i+rot)%4]
			u, v := pos.Lerp(uv[0], uv[1])
			mesh.AddVertex(origin.Add(corner), u, v, ctx.Color(f, light[i], tinted), ctx.Flags(f, light[i].AO))
		}
		mesh.AddQuad(base, flipQuad(light))
	}
	return nil
}

// flipQuad turns the quad diagonal towards the brighter pair of corners so
// AO gradients interpolate without a visible seam.
func flipQuad(l [4]VertexLight) bool {
	a := l[0].Brightness() + l[2].Brightness()
	b := l[1].Brightness() + l[3].Brightness()
	return a < b
}
