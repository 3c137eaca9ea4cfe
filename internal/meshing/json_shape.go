package meshing

import (
	"log/slog"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/atlas"
	"voxelclient/internal/registry"
	"voxelclient/internal/world"
	"voxelclient/pkg/blockmodel"
)

type shapeFace struct {
	present  bool
	tex      atlas.TexturePos
	uv       [4]float32 // 0..1 inside the tile
	turns    int
	cull     world.BlockFace
	hasCull  bool
	tinted   bool
	boundary bool // face lies on the block boundary
}

type shapeElement struct {
	from, size mgl32.Vec3
	matrix     mgl32.Mat4
	rotated    bool
	faces      [world.NumFaces]shapeFace
}

// JSONMesher draws blocks built from block model elements, splitting the
// output into LOD bands according to the block's LOD policy.
type JSONMesher struct {
	def      *registry.BlockDefinition
	elements []shapeElement
	lod2     []shapeElement
	lod0     []shapeElement

	// cheap far stand-in when no LOD2 shape is declared
	cuboid         bool
	cuboidLo       mgl32.Vec3
	cuboidHi       mgl32.Vec3
	cuboidTex      atlas.TexturePos
	degenerateLod2 bool
}

func newJSONMesher(def *registry.BlockDefinition, resolve func(*registry.BlockDefinition, string) atlas.TexturePos, tables *FaceGeometryTables, logger *slog.Logger) *JSONMesher {
	m := &JSONMesher{
		def:      def,
		elements: resolveElements(def, def.Elements, resolve),
		lod2:     resolveElements(def, def.Lod2Elements, resolve),
		lod0:     resolveElements(def, def.Lod0Elements, resolve),
	}
	if def.HasLod2Variant() && len(m.lod2) == 0 {
		lo, hi, ok := blockmodel.UnionBounds(def.Elements)
		if err := CheckCuboid(lo, hi); !ok || err != nil {
			logger.Error("cannot build lod2 stand-in, drawing full detail", "block", def.Name, "error", err)
			m.degenerateLod2 = true
		} else {
			m.cuboid, m.cuboidLo, m.cuboidHi = true, lo, hi
			m.cuboidTex = firstTexture(m.elements)
		}
	}
	return m
}

func resolveElements(def *registry.BlockDefinition, elements []blockmodel.Element, resolve func(*registry.BlockDefinition, string) atlas.TexturePos) []shapeElement {
	out := make([]shapeElement, 0, len(elements))
	for _, e := range elements {
		lo, hi := e.Bounds()
		se := shapeElement{
			from:    lo,
			size:    hi.Sub(lo),
			matrix:  e.Rotation.Matrix(),
			rotated: e.Rotation != nil && e.Rotation.Angle != 0,
		}
		for name, face := range e.Faces {
			f, ok := world.ParseFace(name)
			if !ok {
				continue
			}
			uv := e.FaceUV(name)
			sf := shapeFace{
				present: true,
				tex:     resolve(def, face.Texture),
				uv:      [4]float32{uv[0] / 16, uv[1] / 16, uv[2] / 16, uv[3] / 16},
				turns:   (face.Rotation / 90) % 4,
				tinted:  face.TintIndex != nil && def.ClimateColorMap != "",
			}
			if cf, ok := world.ParseFace(face.CullFace); ok {
				sf.cull, sf.hasCull = cf, true
			}
			sf.boundary = onBoundary(f, lo, hi)
			se.faces[f] = sf
		}
		out = append(out, se)
	}
	return out
}

func onBoundary(f world.BlockFace, lo, hi mgl32.Vec3) bool {
	const eps = 1e-4
	switch f {
	case world.FaceEast:
		return hi[0] >= 1-eps
	case world.FaceWest:
		return lo[0] <= eps
	case world.FaceUp:
		return hi[1] >= 1-eps
	case world.FaceDown:
		return lo[1] <= eps
	case world.FaceSouth:
		return hi[2] >= 1-eps
	default:
		return lo[2] <= eps
	}
}

func firstTexture(elements []shapeElement) atlas.TexturePos {
	for _, e := range elements {
		for _, f := range e.faces {
			if f.present {
				return f.tex
			}
		}
	}
	return atlas.TexturePos{U2: 1, V2: 1}
}

func (m *JSONMesher) Emit(ctx *TesselationContext, out *MeshAccumulator) error {
	turns := 0
	if m.def.RandomRotation {
		turns = QuarterTurns(ctx.Hash)
	}

	switch {
	case m.def.AlwaysFullDetail || m.degenerateLod2:
		m.emitElements(ctx, out, m.elements, LOD1, turns)
	case m.def.DoNotRenderAtLod2:
		m.emitElements(ctx, out, m.elements, LOD0, turns)
	default:
		m.emitElements(ctx, out, m.elements, LOD0, turns)
		if len(m.lod2) > 0 {
			m.emitElements(ctx, out, m.lod2, LOD2, turns)
		} else if m.cuboid {
			if err := m.emitCuboid(ctx, out); err != nil {
				return err
			}
		}
	}
	// LOD0 additions go on top of whatever is drawn near the camera
	m.emitElements(ctx, out, m.lod0, LOD0, turns)
	return nil
}

func (m *JSONMesher) emitElements(ctx *TesselationContext, out *MeshAccumulator, elements []shapeElement, lod LODLevel, turns int) {
	t := ctx.Tables
	origin := localOrigin(ctx)
	for i := range elements {
		e := &elements[i]
		for f := world.BlockFace(0); f < world.NumFaces; f++ {
			sf := &e.faces[f]
			if !sf.present {
				continue
			}
			if sf.hasCull && !ctx.FaceVisible(t.RotateFaceY[turns][sf.cull]) {
				continue
			}
			face := t.RotateFaceY[turns][f]
			light := ctx.SelfLight()
			if sf.boundary && !e.rotated {
				light = ctx.FlatLight(face)
			}
			rgba := ctx.Color(face, light, sf.tinted)
			flags := ctx.Flags(face, 0)

			mesh := out.Mesh(MeshKey{Atlas: sf.tex.AtlasIndex, Pass: m.def.Pass, LOD: lod})
			base := uint32(mesh.VerticesCount())
			for c, corner := range t.Corners[f] {
				p := mgl32.Vec3{
					e.from[0] + corner[0]*e.size[0],
					e.from[1] + corner[1]*e.size[1],
					e.from[2] + corner[2]*e.size[2],
				}
				if e.rotated {
					p = e.matrix.Mul4x1(p.Vec4(1)).Vec3()
				}
				if turns != 0 {
					p = t.RotationsY[turns].Mul4x1(p.Vec4(1)).Vec3()
				}
				cuv := t.CornerUVs[(c+sf.turns)%4]
				u := sf.uv[0] + (sf.uv[2]-sf.uv[0])*cuv[0]
				v := sf.uv[1] + (sf.uv[3]-sf.uv[1])*cuv[1]
				u, v = sf.tex.Lerp(u, v)
				mesh.AddVertex(origin.Add(p), u, v, rgba, flags)
			}
			mesh.AddQuad(base, false)
		}
	}
}

func (m *JSONMesher) emitCuboid(ctx *TesselationContext, out *MeshAccumulator) error {
	// faces on the block boundary respect the cull mask, inner faces are
	// always drawn
	var mask uint8
	for f := world.BlockFace(0); f < world.NumFaces; f++ {
		if !onBoundary(f, m.cuboidLo, m.cuboidHi) || ctx.FaceVisible(f) {
			mask |= f.Flag()
		}
	}
	if mask == 0 {
		return nil
	}
	mesh := out.Mesh(MeshKey{Atlas: m.cuboidTex.AtlasIndex, Pass: m.def.Pass, LOD: LOD2})
	origin := localOrigin(ctx)
	return CuboidMesh(mesh, ctx.Tables, origin.Add(m.cuboidLo), origin.Add(m.cuboidHi), mask, m.cuboidTex,
		func(f world.BlockFace) (uint32, uint32) {
			return ctx.Color(f, ctx.FlatLight(f), m.def.IsTinted(f)), ctx.Flags(f, 0)
		})
}
