package registry

import (
	"fmt"

	"voxelclient/internal/world"
	"voxelclient/pkg/blockmodel"
)

// DrawType selects the mesher used for a block.
type DrawType uint8

const (
	DrawAir DrawType = iota
	DrawCube
	DrawJSON
	DrawLiquid
	DrawDecal
)

func (d DrawType) String() string {
	switch d {
	case DrawAir:
		return "air"
	case DrawCube:
		return "cube"
	case DrawJSON:
		return "json"
	case DrawLiquid:
		return "liquid"
	case DrawDecal:
		return "decal"
	}
	return fmt.Sprintf("drawtype(%d)", uint8(d))
}

// RenderPass groups geometry by material and blend behaviour.
type RenderPass uint8

const (
	PassOpaque RenderPass = iota
	PassOpaqueNoCull
	PassBlendNoCull
	PassTopSoil
	PassTransparent
	PassLiquid
	PassMeta

	NumRenderPasses = 7
)

var passNames = [NumRenderPasses]string{"opaque", "opaque-nocull", "blend-nocull", "topsoil", "transparent", "liquid", "meta"}

func (p RenderPass) String() string {
	if int(p) < NumRenderPasses {
		return passNames[p]
	}
	return fmt.Sprintf("pass(%d)", uint8(p))
}

// WindMode is the vertex animation class read by the chunk shaders.
type WindMode uint8

const (
	WindNone WindMode = iota
	WindLeaves
	WindGrass
	WindTallBend
	WindWater
)

// FaceTextures names one texture per face, indexed by world.BlockFace.
type FaceTextures [world.NumFaces]string

// AllFaces uses the same texture on every face.
func AllFaces(name string) FaceTextures {
	var t FaceTextures
	for i := range t {
		t[i] = name
	}
	return t
}

// TopSideBottom builds the usual column texture layout.
func TopSideBottom(top, side, bottom string) FaceTextures {
	t := AllFaces(side)
	t[world.FaceUp] = top
	t[world.FaceDown] = bottom
	return t
}

// DecalInfo describes an overlay drawn against the block behind it.
// Decals spanning several voxels are cut into Width x Height cells; each
// voxel draws the cell matching its position.
type DecalInfo struct {
	Texture  string
	Facing   world.BlockFace // direction the overlay faces
	Width    int
	Height   int
	Inset    float32 // distance from the supporting face
	Overhang float32 // seam cover into neighbouring cells
}

// BlockDefinition defines the properties of a block type
type BlockDefinition struct {
	ID       world.BlockID
	Name     string
	DrawType DrawType
	Pass     RenderPass

	Textures       FaceTextures
	Variants       []FaceTextures // alternates picked by position hash
	RandomRotation bool

	// JSON shapes by model name; resolved into the element slices on load.
	Shape        string
	Lod2Shape    string
	Lod0Shape    string
	Elements     []blockmodel.Element
	Lod2Elements []blockmodel.Element
	Lod0Elements []blockmodel.Element

	DoNotRenderAtLod2 bool
	AlwaysFullDetail  bool

	Opaque          bool  // hides neighbour faces and occludes light
	LightAbsorption uint8 // 0..32

	LiquidCode  string
	LiquidLevel uint8      // 0..7, 7 is a full block
	FlowNormal  [2]float32 // explicit flow direction, zero when derived

	ClimateColorMap string
	TintFaces       uint8 // face mask tinted by the colour map, 0 means all
	Glow            uint8
	Wind            WindMode

	Decal *DecalInfo
}

func (d *BlockDefinition) IsAir() bool    { return d == nil || d.DrawType == DrawAir }
func (d *BlockDefinition) IsLiquid() bool { return d != nil && d.DrawType == DrawLiquid }

// SameLiquid reports whether both blocks are the same liquid.
func (d *BlockDefinition) SameLiquid(o *BlockDefinition) bool {
	return d.IsLiquid() && o.IsLiquid() && d.LiquidCode == o.LiquidCode
}

// HasLod2Variant reports whether distant chunks draw a cheaper shape.
func (d *BlockDefinition) HasLod2Variant() bool {
	return d.DrawType == DrawJSON && !d.AlwaysFullDetail && !d.DoNotRenderAtLod2
}

// IsTinted reports whether the colour map applies to the face.
func (d *BlockDefinition) IsTinted(face world.BlockFace) bool {
	if d.ClimateColorMap == "" {
		return false
	}
	return d.TintFaces == 0 || d.TintFaces&face.Flag() != 0
}

// HidesFace reports whether self's face towards neighbour is hidden. Faces
// are hidden behind opaque blocks and between equal non-opaque blocks, so
// each shared face is emitted once at most.
func HidesFace(self, neighbour *BlockDefinition) bool {
	if neighbour.IsAir() {
		return false
	}
	if neighbour.Opaque {
		return true
	}
	if self.IsLiquid() {
		return self.SameLiquid(neighbour)
	}
	return neighbour.ID == self.ID
}
