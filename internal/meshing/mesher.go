package meshing

import (
	"fmt"
	"log/slog"

	"voxelclient/internal/atlas"
	"voxelclient/internal/registry"
	"voxelclient/internal/world"
)

// BlockMesher emits the geometry of one voxel. Implementations are resolved
// once per block type when the MesherSet is built.
type BlockMesher interface {
	Emit(ctx *TesselationContext, out *MeshAccumulator) error
}

// TextureAtlas resolves texture names to atlas positions.
type TextureAtlas interface {
	PositionOf(name string) (atlas.TexturePos, bool)
}

// MesherSet maps block ids to their mesher and carries the tables every
// mesher shares.
type MesherSet struct {
	Tables *FaceGeometryTables

	defs    []*registry.BlockDefinition
	meshers []BlockMesher
	tints   []*registry.ColorMap
	logger  *slog.Logger
}

// NewMesherSet resolves a mesher for every registered block. Unknown
// textures are logged and fall back to the full first atlas page.
func NewMesherSet(reg *registry.Registry, textures TextureAtlas, tables *FaceGeometryTables, logger *slog.Logger) (*MesherSet, error) {
	defs := reg.Table()
	s := &MesherSet{
		Tables:  tables,
		defs:    defs,
		meshers: make([]BlockMesher, len(defs)),
		tints:   make([]*registry.ColorMap, len(defs)),
		logger:  logger,
	}
	resolve := func(def *registry.BlockDefinition, name string) atlas.TexturePos {
		pos, ok := textures.PositionOf(name)
		if !ok {
			logger.Warn("missing block texture", "block", def.Name, "texture", name)
			return atlas.TexturePos{U2: 1, V2: 1}
		}
		return pos
	}

	for id, def := range defs {
		if def.ClimateColorMap != "" {
			cm, ok := reg.ColorMap(def.ClimateColorMap)
			if !ok {
				return nil, fmt.Errorf("block %s: unknown colour map %q", def.Name, def.ClimateColorMap)
			}
			s.tints[id] = &cm
		}
		switch def.DrawType {
		case registry.DrawAir:
		case registry.DrawCube:
			s.meshers[id] = newCubeMesher(def, resolve)
		case registry.DrawJSON:
			s.meshers[id] = newJSONMesher(def, resolve, tables, logger)
		case registry.DrawLiquid:
			s.meshers[id] = newLiquidMesher(def, resolve)
		case registry.DrawDecal:
			s.meshers[id] = newDecalMesher(def, resolve)
		default:
			return nil, fmt.Errorf("block %s: unsupported draw type %s", def.Name, def.DrawType)
		}
	}
	return s, nil
}

// Def returns the definition for id; unknown ids are air.
func (s *MesherSet) Def(id world.BlockID) *registry.BlockDefinition {
	if int(id) < len(s.defs) {
		return s.defs[id]
	}
	return s.defs[world.BlockAir]
}

// Mesher returns the mesher for id, nil for air.
func (s *MesherSet) Mesher(id world.BlockID) BlockMesher {
	if int(id) < len(s.meshers) {
		return s.meshers[id]
	}
	return nil
}

func (s *MesherSet) colorMap(id world.BlockID) *registry.ColorMap {
	if int(id) < len(s.tints) {
		return s.tints[id]
	}
	return nil
}
