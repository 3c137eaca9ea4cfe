package meshing

import (
	"math"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/atlas"
	"voxelclient/internal/registry"
	"voxelclient/internal/world"
)

// Liquid corner order, viewed from above.
const (
	cornerNW = iota
	cornerNE
	cornerSE
	cornerSW
)

// corner signs along x and z
var liquidCorners = [4][2]int{
	cornerNW: {-1, -1},
	cornerNE: {1, -1},
	cornerSE: {1, 1},
	cornerSW: {-1, 1},
}

// heightSteps is the resolution of liquid surface heights.
const heightSteps = 32

// LevelHeight is the surface height of a liquid level; level 7 fills the block.
func LevelHeight(level uint8) float32 {
	return float32(min(level, 7)+1) / 8
}

func quantizeHeight(h float32) float32 {
	return float32(math.Floor(float64(h*heightSteps))) / heightSteps
}

// LiquidMesher draws liquid surfaces with sloped tops and a flow vector in
// the custom vertex floats. The up texture is the still surface; the north
// texture is used for flowing surfaces and sides.
type LiquidMesher struct {
	def   *registry.BlockDefinition
	still atlas.TexturePos
	flow  atlas.TexturePos
}

func newLiquidMesher(def *registry.BlockDefinition, resolve func(*registry.BlockDefinition, string) atlas.TexturePos) *LiquidMesher {
	return &LiquidMesher{
		def:   def,
		still: resolve(def, def.Textures[world.FaceUp]),
		flow:  resolve(def, def.Textures[world.FaceNorth]),
	}
}

// CornerHeights returns the surface height at the NW, NE, SE and SW
// corners. A corner averages the heights of the same-liquid cells sharing
// it and is full when any of them has the same liquid above.
func (m *LiquidMesher) CornerHeights(ctx *TesselationContext) [4]float32 {
	var h [4]float32
	for i, s := range liquidCorners {
		h[i] = m.cornerHeight(ctx, s[0], s[1])
	}
	return h
}

func (m *LiquidMesher) cornerHeight(ctx *TesselationContext, sx, sz int) float32 {
	cells := [4][2]int{{0, 0}, {sx, 0}, {0, sz}, {sx, sz}}
	var sum float32
	n := 0
	for _, c := range cells {
		d := ctx.Neighbors[NeighborIndex(c[0], 0, c[1])]
		if !m.def.SameLiquid(d) {
			continue
		}
		if m.def.SameLiquid(ctx.Neighbors[NeighborIndex(c[0], 1, c[1])]) {
			return 1
		}
		sum += LevelHeight(d.LiquidLevel)
		n++
	}
	if n == 0 {
		return LevelHeight(m.def.LiquidLevel)
	}
	return quantizeHeight(sum / float32(n))
}

// Flow returns the normalized surface flow direction on the xz plane. An
// explicit flow normal wins; otherwise liquid runs towards lower corners.
func (m *LiquidMesher) Flow(h [4]float32) (float32, float32) {
	if m.def.FlowNormal != [2]float32{} {
		return m.def.FlowNormal[0], m.def.FlowNormal[1]
	}
	fx := (h[cornerNW] + h[cornerSW]) - (h[cornerNE] + h[cornerSE])
	fz := (h[cornerNW] + h[cornerNE]) - (h[cornerSW] + h[cornerSE])
	l := float32(math.Sqrt(float64(fx*fx + fz*fz)))
	if l < 1e-6 {
		return 0, 0
	}
	return fx / l, fz / l
}

func (m *LiquidMesher) Emit(ctx *TesselationContext, out *MeshAccumulator) error {
	above := ctx.Neighbors[FaceNeighbor(world.FaceUp)]
	coveredAbove := m.def.SameLiquid(above)

	var h [4]float32
	if coveredAbove {
		h = [4]float32{1, 1, 1, 1}
	} else {
		h = m.CornerHeights(ctx)
	}
	origin := localOrigin(ctx)
	heightAt := func(x, z float32) float32 {
		switch {
		case x < 0.5 && z < 0.5:
			return h[cornerNW]
		case x >= 0.5 && z < 0.5:
			return h[cornerNE]
		case x >= 0.5:
			return h[cornerSE]
		default:
			return h[cornerSW]
		}
	}

	lowered := h[0] < 1 || h[1] < 1 || h[2] < 1 || h[3] < 1
	if !coveredAbove && (ctx.FaceVisible(world.FaceUp) || lowered) {
		fx, fz := m.Flow(h)
		tex := m.still
		if fx != 0 || fz != 0 {
			tex = m.flow
		}
		m.emitFace(ctx, out, world.FaceUp, tex, origin, heightAt, fx, fz)
	}
	for f := world.BlockFace(0); f < world.NumFaces; f++ {
		if f == world.FaceUp || !ctx.FaceVisible(f) {
			continue
		}
		tex := m.flow
		if f == world.FaceDown {
			tex = m.still
		}
		m.emitFace(ctx, out, f, tex, origin, heightAt, 0, 0)
	}
	return nil
}

func (m *LiquidMesher) emitFace(ctx *TesselationContext, out *MeshAccumulator, f world.BlockFace, tex atlas.TexturePos,
	origin mgl32.Vec3, heightAt func(x, z float32) float32, fx, fz float32) {
	light := ctx.FlatLight(f)
	if f == world.FaceUp {
		light = ctx.SelfLight()
		if l := ctx.FlatLight(f); l.Brightness() > light.Brightness() {
			light = l
		}
	}
	rgba := ctx.Color(f, light, m.def.IsTinted(f))
	flags := ctx.Flags(f, 0)
	mesh := out.Mesh(MeshKey{Atlas: tex.AtlasIndex, Pass: m.def.Pass, LOD: LOD1})
	base := uint32(mesh.VerticesCount())
	for i, c := range ctx.Tables.Corners[f] {
		p := c
		uv := ctx.Tables.CornerUVs[i]
		if c[1] > 0 {
			p[1] = heightAt(c[0], c[2])
			if f.IsHorizontal() {
				// keep texel density on lowered sides
				uv[1] = 1 - p[1]
			}
		}
		u, v := tex.Lerp(uv[0], uv[1])
		mesh.AddVertexCustom(origin.Add(p), u, v, rgba, flags, fx, fz)
	}
	mesh.AddQuad(base, false)
}
