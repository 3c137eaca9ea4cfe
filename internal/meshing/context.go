package meshing

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/registry"
	"voxelclient/internal/world"
)

// LightParams are the tuning constants of corner light blending.
type LightParams struct {
	// AOStrength is the darkening of a fully occluded corner, 0..1.
	AOStrength float32
	// AbsorptionScale is the share of the fully occluded attenuation that
	// depends on how much light the occluders absorb.
	AbsorptionScale float32
}

// DefaultLightParams matches the values shipped in the default settings.
func DefaultLightParams() LightParams {
	return LightParams{AOStrength: 0.67, AbsorptionScale: 0.25}
}

// VertexLight is the blended light of one face corner.
type VertexLight struct {
	Sun   float32 // 0..1
	Block float32 // 0..1
	AO    uint8   // number of occluding cells, 0..3
}

// Brightness is the brightest channel.
func (l VertexLight) Brightness() float32 { return max(l.Sun, l.Block) }

// TesselationContext is the per-voxel scratch state handed to meshers. It
// is rebuilt for every voxel and owned by a single meshing goroutine.
type TesselationContext struct {
	Tables *FaceGeometryTables
	Params LightParams

	X, Y, Z    int // world position
	LX, LY, LZ int // position inside the chunk

	Block     *registry.BlockDefinition
	Neighbors [NumNeighbors]*registry.BlockDefinition
	Light     [NumNeighbors]world.PackedLight

	// CullMask has the flag of every face that must be drawn.
	CullMask uint8
	Tint     uint32 // 0xRRGGBB, white when the block is not tinted
	Hash     uint64 // position hash for variant selection
	Part     MeshPart

	faceLightValid uint8
	faceLight      [world.NumFaces][4]VertexLight
}

// reset prepares the context for a new voxel.
func (c *TesselationContext) reset() {
	c.faceLightValid = 0
	c.CullMask = 0
	c.Tint = 0xFFFFFF
}

// Neighbor returns the block definition at a neighbourhood cell.
func (c *TesselationContext) Neighbor(i CornerNeighborIndex) *registry.BlockDefinition {
	return c.Neighbors[i]
}

// FaceVisible reports whether face is in the cull mask.
func (c *TesselationContext) FaceVisible(face world.BlockFace) bool {
	return c.CullMask&face.Flag() != 0
}

func (c *TesselationContext) occludes(i CornerNeighborIndex) bool {
	n := c.Neighbors[i]
	return n != nil && n.Opaque
}

// FaceLight returns the blended light of the four corners of a face, in the
// corner order of the face tables. Results are cached per voxel.
func (c *TesselationContext) FaceLight(face world.BlockFace) [4]VertexLight {
	if c.faceLightValid&face.Flag() != 0 {
		return c.faceLight[face]
	}
	for i, nb := range c.Tables.Neighbors[face] {
		c.faceLight[face][i] = c.cornerLight(nb)
	}
	c.faceLightValid |= face.Flag()
	return c.faceLight[face]
}

// cornerLight blends the light of one corner. When both side cells occlude
// the corner, the front light is attenuated by an amount that grows with
// the occluders' light absorption. Otherwise the light of the front and
// every non-occluding side is averaged and darkened per occluder.
func (c *TesselationContext) cornerLight(nb CornerNeighbors) VertexLight {
	frontSun, frontBlock := c.Light[nb.Front].Normalized()
	s1, s2, d := c.occludes(nb.Side1), c.occludes(nb.Side2), c.occludes(nb.Diagonal)

	if s1 && s2 {
		absorb := float32(max(c.Neighbors[nb.Side1].LightAbsorption, c.Neighbors[nb.Side2].LightAbsorption)) / 32
		k := 1 - c.Params.AbsorptionScale + c.Params.AbsorptionScale*absorb
		f := 1 - c.Params.AOStrength*k
		return VertexLight{Sun: frontSun * f, Block: frontBlock * f, AO: 3}
	}

	sun, block := frontSun, frontBlock
	samples := float32(1)
	var ao uint8
	for _, side := range [3]struct {
		idx      CornerNeighborIndex
		occluded bool
	}{{nb.Side1, s1}, {nb.Side2, s2}, {nb.Diagonal, d}} {
		if side.occluded {
			ao++
			continue
		}
		ss, sb := c.Light[side.idx].Normalized()
		sun += ss
		block += sb
		samples++
	}
	f := 1 - c.Params.AOStrength*float32(ao)/3
	return VertexLight{Sun: sun / samples * f, Block: block / samples * f, AO: ao}
}

// FlatLight is the unblended light of a face: the light of the cell in
// front of it, or of the voxel itself when that cell is opaque.
func (c *TesselationContext) FlatLight(face world.BlockFace) VertexLight {
	idx := c.Tables.Front[face]
	if c.occludes(idx) {
		idx = CenterNeighbor
	}
	sun, block := c.Light[idx].Normalized()
	return VertexLight{Sun: sun, Block: block}
}

// Color packs the vertex colour: rgb is the tint scaled by brightness and
// face shade, alpha carries the sun share for day/night blending.
func (c *TesselationContext) Color(face world.BlockFace, l VertexLight, tinted bool) uint32 {
	tint := uint32(0xFFFFFF)
	if tinted {
		tint = c.Tint
	}
	return PackColor(tint, l.Brightness()*c.Tables.Shade[face], l.Sun)
}

// Flags packs the per-vertex flag word for the current block.
func (c *TesselationContext) Flags(face world.BlockFace, ao uint8) uint32 {
	return PackFlags(face, ao, c.Block.Wind, c.Block.Glow)
}

// PackColor scales a 0xRRGGBB tint and stores sun in alpha.
func PackColor(tint uint32, brightness, sun float32) uint32 {
	brightness = min(max(brightness, 0), 1)
	r := float32((tint>>16)&0xFF) * brightness
	g := float32((tint>>8)&0xFF) * brightness
	b := float32(tint&0xFF) * brightness
	a := min(max(sun, 0), 1) * 255
	return uint32(r+0.5) | uint32(g+0.5)<<8 | uint32(b+0.5)<<16 | uint32(a+0.5)<<24
}

// Flag word layout.
const (
	flagNormalMask = 0x7
	flagAOShift    = 3
	flagWindShift  = 5
	flagGlowShift  = 8
)

// PackFlags builds a flag word: normal in bits 0-2, AO level in 3-4, wind
// mode in 5-7 and glow in 8-15.
func PackFlags(face world.BlockFace, ao uint8, wind registry.WindMode, glow uint8) uint32 {
	return uint32(face)&flagNormalMask |
		uint32(ao&0x3)<<flagAOShift |
		uint32(wind&0x7)<<flagWindShift |
		uint32(glow)<<flagGlowShift
}

// UnpackFlags reverses PackFlags.
func UnpackFlags(f uint32) (face world.BlockFace, ao uint8, wind registry.WindMode, glow uint8) {
	return world.BlockFace(f & flagNormalMask), uint8(f>>flagAOShift) & 0x3,
		registry.WindMode(f>>flagWindShift) & 0x7, uint8(f >> flagGlowShift)
}

// SelfLight is the light of the voxel's own cell.
func (c *TesselationContext) SelfLight() VertexLight {
	sun, block := c.Light[CenterNeighbor].Normalized()
	return VertexLight{Sun: sun, Block: block}
}

func localOrigin(c *TesselationContext) mgl32.Vec3 {
	return mgl32.Vec3{float32(c.LX), float32(c.LY), float32(c.LZ)}
}
