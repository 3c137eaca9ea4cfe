package meshing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/cespare/xxhash/v2"
	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/profiling"
	"voxelclient/internal/registry"
	"voxelclient/internal/world"
)

var (
	// ErrChunkNotLoaded means the chunk is missing from the store.
	ErrChunkNotLoaded = errors.New("meshing: chunk not loaded")
	// ErrNotLoadedFromServer means the chunk exists but its voxel data has
	// not fully arrived yet.
	ErrNotLoadedFromServer = errors.New("meshing: chunk not loaded from server")
)

// CustomTesselator adds extra geometry for a block type, e.g. for block
// entities. Errors and panics are contained to the voxel.
type CustomTesselator interface {
	Tesselate(ctx *TesselationContext, out *MeshAccumulator) error
}

// CustomTesselatorFunc adapts a function to CustomTesselator.
type CustomTesselatorFunc func(ctx *TesselationContext, out *MeshAccumulator) error

func (f CustomTesselatorFunc) Tesselate(ctx *TesselationContext, out *MeshAccumulator) error {
	return f(ctx, out)
}

// MeshCache stores finished meshes by snapshot content hash.
type MeshCache interface {
	Get(key uint64) (*TesselatedChunkMesh, bool)
	Put(key uint64, mesh *TesselatedChunkMesh)
}

// padded snapshot: the chunk plus a one voxel halo
const (
	padSize   = world.ChunkSize + 2
	padVolume = padSize * padSize * padSize
)

func padIndex(x, y, z int) int {
	return ((y+1)*padSize+(z+1))*padSize + (x + 1)
}

// ChunkTesselator turns chunk voxels into meshes. It keeps scratch buffers
// and is not safe for concurrent use; give each meshing goroutine its own.
type ChunkTesselator struct {
	reader  world.Reader
	meshers *MesherSet
	params  LightParams
	logger  *slog.Logger

	customMu sync.RWMutex
	custom   map[world.BlockID]CustomTesselator
	cache    MeshCache

	blocks  []world.BlockID
	light   []world.PackedLight
	hashBuf []byte
	ctx     TesselationContext
}

// NewChunkTesselator creates a tesselator reading from reader.
func NewChunkTesselator(reader world.Reader, meshers *MesherSet, params LightParams, logger *slog.Logger) *ChunkTesselator {
	return &ChunkTesselator{
		reader:  reader,
		meshers: meshers,
		params:  params,
		logger:  logger,
		custom:  make(map[world.BlockID]CustomTesselator),
		blocks:  make([]world.BlockID, padVolume),
		light:   make([]world.PackedLight, padVolume),
	}
}

// SetCache enables content-addressed reuse of meshes.
func (t *ChunkTesselator) SetCache(c MeshCache) { t.cache = c }

// RegisterCustom installs an extra tesselation hook for a block id.
func (t *ChunkTesselator) RegisterCustom(id world.BlockID, ct CustomTesselator) {
	t.customMu.Lock()
	t.custom[id] = ct
	t.customMu.Unlock()
}

func (t *ChunkTesselator) customFor(id world.BlockID) CustomTesselator {
	t.customMu.RLock()
	defer t.customMu.RUnlock()
	return t.custom[id]
}

// Tesselate meshes the chunk at coord. With edgeOnly set only voxels on the
// chunk border are meshed and only the edge part is filled.
func (t *ChunkTesselator) Tesselate(coord world.ChunkCoord, edgeOnly bool) (*TesselatedChunkMesh, error) {
	defer profiling.Track("meshing.Tesselate")()

	chunk := t.reader.GetChunk(coord.X, coord.Y, coord.Z, coord.Dimension)
	if chunk == nil || chunk.IsUnloaded() {
		return nil, fmt.Errorf("%w: %s", ErrChunkNotLoaded, coord)
	}
	if !chunk.IsLoaded() {
		return nil, fmt.Errorf("%w: %s", ErrNotLoadedFromServer, coord)
	}
	if chunk.IsEmpty() {
		return NewTesselatedChunkMesh(coord, edgeOnly), nil
	}

	t.snapshot(coord)

	var key uint64
	if t.cache != nil {
		key = t.snapshotHash(coord, edgeOnly)
		if cached, ok := t.cache.Get(key); ok {
			profiling.Add("meshing.cacheHits", 1)
			return cached, nil
		}
	}

	acc := NewMeshAccumulator()
	t.tesselateVoxels(coord, edgeOnly, acc)

	mesh := NewTesselatedChunkMesh(coord, edgeOnly)
	mesh.Center = dropEmpty(acc.Center)
	mesh.Edge = dropEmpty(acc.Edge)
	mesh.finish()

	profiling.Add("meshing.vertices", int64(mesh.VertexCount))
	if t.cache != nil {
		t.cache.Put(key, mesh)
	}
	return mesh, nil
}

// snapshot copies the chunk and its halo. Missing neighbours read as air
// under full sun.
func (t *ChunkTesselator) snapshot(coord world.ChunkCoord) {
	defer profiling.Track("meshing.snapshot")()
	for i := range t.blocks {
		t.blocks[i] = world.BlockAir
		t.light[i] = world.FullSunLight
	}
	span := func(o int) (lo, hi int) {
		switch o {
		case -1:
			return world.ChunkSize - 1, world.ChunkSize
		case 1:
			return 0, 1
		}
		return 0, world.ChunkSize
	}
	for oy := -1; oy <= 1; oy++ {
		for oz := -1; oz <= 1; oz++ {
			for ox := -1; ox <= 1; ox++ {
				n := t.reader.GetChunk(coord.X+ox, coord.Y+oy, coord.Z+oz, coord.Dimension)
				if n == nil {
					continue
				}
				x0, x1 := span(ox)
				y0, y1 := span(oy)
				z0, z1 := span(oz)
				n.View(func(blocks []world.BlockID, light []world.PackedLight) {
					for y := y0; y < y1; y++ {
						for z := z0; z < z1; z++ {
							for x := x0; x < x1; x++ {
								src := world.LocalIndex(x, y, z)
								dst := padIndex(x+ox*world.ChunkSize, y+oy*world.ChunkSize, z+oz*world.ChunkSize)
								if blocks != nil {
									t.blocks[dst] = blocks[src]
								}
								if light != nil {
									t.light[dst] = light[src]
								}
							}
						}
					}
				})
			}
		}
	}
}

func (t *ChunkTesselator) snapshotHash(coord world.ChunkCoord, edgeOnly bool) uint64 {
	b := t.hashBuf[:0]
	b = binary.LittleEndian.AppendUint32(b, uint32(int32(coord.X)))
	b = binary.LittleEndian.AppendUint32(b, uint32(int32(coord.Y)))
	b = binary.LittleEndian.AppendUint32(b, uint32(int32(coord.Z)))
	b = binary.LittleEndian.AppendUint32(b, uint32(int32(coord.Dimension)))
	if edgeOnly {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	for i := range t.blocks {
		b = binary.LittleEndian.AppendUint32(b, uint32(t.blocks[i]))
		b = binary.LittleEndian.AppendUint16(b, uint16(t.light[i]))
	}
	t.hashBuf = b
	return xxhash.Sum64(b)
}

func (t *ChunkTesselator) tesselateVoxels(coord world.ChunkCoord, edgeOnly bool, acc *MeshAccumulator) {
	ox, oy, oz := coord.Origin()
	ctx := &t.ctx
	ctx.Tables = t.meshers.Tables
	ctx.Params = t.params
	last := world.ChunkSize - 1

	for y := 0; y < world.ChunkSize; y++ {
		for z := 0; z < world.ChunkSize; z++ {
			for x := 0; x < world.ChunkSize; x++ {
				id := t.blocks[padIndex(x, y, z)]
				if id == world.BlockAir {
					continue
				}
				edge := x == 0 || y == 0 || z == 0 || x == last || y == last || z == last
				if edgeOnly && !edge {
					continue
				}
				mesher := t.meshers.Mesher(id)
				custom := t.customFor(id)
				if mesher == nil && custom == nil {
					continue
				}

				ctx.reset()
				ctx.X, ctx.Y, ctx.Z = ox+x, oy+y, oz+z
				ctx.LX, ctx.LY, ctx.LZ = x, y, z
				ctx.Block = t.meshers.Def(id)
				t.gatherNeighbors(ctx, x, y, z)
				if ctx.CullMask == 0 && ctx.Block.DrawType == registry.DrawCube && custom == nil {
					continue
				}
				if cm := t.meshers.colorMap(id); cm != nil {
					ctx.Tint = cm.Tint(t.reader.Climate(ctx.X, ctx.Y, ctx.Z))
				}
				ctx.Hash = PositionHash(ctx.X, ctx.Y, ctx.Z)
				ctx.Part = PartCenter
				if edge {
					ctx.Part = PartEdge
				}
				acc.SetPart(ctx.Part)

				if mesher != nil {
					t.emitSafe(ctx, acc, "mesher", mesher.Emit)
				}
				if custom != nil {
					t.emitSafe(ctx, acc, "custom", custom.Tesselate)
				}
			}
		}
	}
}

func (t *ChunkTesselator) gatherNeighbors(ctx *TesselationContext, x, y, z int) {
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				i := NeighborIndex(dx, dy, dz)
				p := padIndex(x+dx, y+dy, z+dz)
				ctx.Neighbors[i] = t.meshers.Def(t.blocks[p])
				ctx.Light[i] = t.light[p]
			}
		}
	}
	for f := world.BlockFace(0); f < world.NumFaces; f++ {
		if !registry.HidesFace(ctx.Block, ctx.Neighbors[ctx.Tables.Front[f]]) {
			ctx.CullMask |= f.Flag()
		}
	}
}

// emitSafe runs one voxel emitter. On error or panic the geometry it added
// is dropped and the failure logged; the rest of the chunk is unaffected.
func (t *ChunkTesselator) emitSafe(ctx *TesselationContext, acc *MeshAccumulator, stage string,
	emit func(*TesselationContext, *MeshAccumulator) error) {
	acc.Mark()
	err := func() (err error) {
		defer func() {
			if r := recover(); r != nil {
				err = fmt.Errorf("panic: %v", r)
			}
		}()
		return emit(ctx, acc)
	}()
	if err != nil {
		acc.Rollback()
		profiling.Add("meshing.voxelErrors", 1)
		t.logger.Warn("voxel tesselation failed",
			"pos", fmt.Sprintf("%d,%d,%d", ctx.X, ctx.Y, ctx.Z),
			"block", ctx.Block.Name,
			"class", ctx.Block.DrawType.String(),
			"stage", stage,
			"error", err)
	}
}

func dropEmpty(m map[MeshKey]*MeshData) map[MeshKey]*MeshData {
	out := make(map[MeshKey]*MeshData, len(m))
	for k, v := range m {
		if !v.IsEmpty() {
			out[k] = v
		}
	}
	return out
}

// BoundingSphere encloses a chunk mesh in world space.
type BoundingSphere struct {
	Center mgl32.Vec3
	Radius float32
}
