package world

import (
	"sync"

	"voxelclient/internal/profiling"
)

// Reader is the read-only view of the voxel store used while meshing.
type Reader interface {
	GetChunk(cx, cy, cz, dim int) *Chunk
	BlockID(x, y, z, dim int) BlockID
	Light(x, y, z, dim int) PackedLight
	Climate(x, y, z int) ClimateSample
}

// ClimateFunc samples climate at a world position.
type ClimateFunc func(x, y, z int) ClimateSample

// DefaultClimate cools with altitude and keeps rainfall constant.
func DefaultClimate(x, y, z int) ClimateSample {
	t := 0.8 - float32(y)*0.004
	return ClimateSample{Temperature: min(max(t, 0), 1), Rainfall: 0.5}
}

// DirtyListener is told that a chunk needs meshing. edgeOnly is set when
// only the chunk's boundary layer is affected by a neighbour edit.
type DirtyListener func(coord ChunkCoord, edgeOnly bool)

// UnloadListener is told that a chunk left the store.
type UnloadListener func(c *Chunk)

// ChunkStore manages the storage and retrieval of chunks.
type ChunkStore struct {
	mu       sync.RWMutex
	chunks   map[ChunkCoord]*Chunk
	modCount uint64 // Increases on any chunk add/remove
	climate  ClimateFunc

	listenMu        sync.RWMutex
	dirtyListeners  []DirtyListener
	unloadListeners []UnloadListener
}

// NewChunkStore creates an empty chunk store.
func NewChunkStore() *ChunkStore {
	return &ChunkStore{
		chunks:  make(map[ChunkCoord]*Chunk),
		climate: DefaultClimate,
	}
}

// SetClimateFunc replaces the climate sampler.
func (cs *ChunkStore) SetClimateFunc(fn ClimateFunc) {
	cs.mu.Lock()
	cs.climate = fn
	cs.mu.Unlock()
}

// OnDirty registers a listener for chunks needing a re-mesh.
func (cs *ChunkStore) OnDirty(fn DirtyListener) {
	cs.listenMu.Lock()
	cs.dirtyListeners = append(cs.dirtyListeners, fn)
	cs.listenMu.Unlock()
}

// OnUnload registers a listener for unloaded chunks.
func (cs *ChunkStore) OnUnload(fn UnloadListener) {
	cs.listenMu.Lock()
	cs.unloadListeners = append(cs.unloadListeners, fn)
	cs.listenMu.Unlock()
}

// GetChunk returns the chunk at the given chunk coordinates or nil.
func (cs *ChunkStore) GetChunk(cx, cy, cz, dim int) *Chunk {
	return cs.Chunk(ChunkCoord{X: cx, Y: cy, Z: cz, Dimension: dim})
}

// Chunk returns the chunk at coord or nil.
func (cs *ChunkStore) Chunk(coord ChunkCoord) *Chunk {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.chunks[coord]
}

// HasChunk checks if a chunk exists.
func (cs *ChunkStore) HasChunk(coord ChunkCoord) bool {
	return cs.Chunk(coord) != nil
}

// AddChunk stores a chunk, replacing and unloading any previous one at the
// same coordinate. The new chunk is announced dirty together with the
// boundary layers of its existing neighbours.
func (cs *ChunkStore) AddChunk(chunk *Chunk) {
	cs.mu.Lock()
	prev := cs.chunks[chunk.Coord]
	cs.chunks[chunk.Coord] = chunk
	cs.modCount++
	cs.mu.Unlock()

	if prev != nil && prev != chunk {
		cs.fireUnload(prev)
	}
	chunk.MarkDirty()
	cs.fireDirty(chunk.Coord, false)
	for f := BlockFace(0); f < NumFaces; f++ {
		dx, dy, dz := f.Normal()
		nc := chunk.Coord.Offset(dx, dy, dz)
		if nb := cs.Chunk(nc); nb != nil {
			nb.MarkDirty()
			cs.fireDirty(nc, true)
		}
	}
}

// UnloadChunk removes a chunk and notifies unload listeners.
func (cs *ChunkStore) UnloadChunk(coord ChunkCoord) bool {
	cs.mu.Lock()
	chunk, ok := cs.chunks[coord]
	if ok {
		delete(cs.chunks, coord)
		cs.modCount++
	}
	cs.mu.Unlock()
	if !ok {
		return false
	}
	cs.fireUnload(chunk)
	return true
}

func (cs *ChunkStore) fireUnload(c *Chunk) {
	c.MarkUnloaded()
	cs.listenMu.RLock()
	listeners := cs.unloadListeners
	cs.listenMu.RUnlock()
	for _, fn := range listeners {
		fn(c)
	}
}

func (cs *ChunkStore) fireDirty(coord ChunkCoord, edgeOnly bool) {
	cs.listenMu.RLock()
	listeners := cs.dirtyListeners
	cs.listenMu.RUnlock()
	for _, fn := range listeners {
		fn(coord, edgeOnly)
	}
}

// BlockID returns the block at world coordinates; unloaded space is air.
func (cs *ChunkStore) BlockID(x, y, z, dim int) BlockID {
	c := cs.Chunk(ChunkCoordOf(x, y, z, dim))
	if c == nil {
		return BlockAir
	}
	return c.Block(x&ChunkMask, y&ChunkMask, z&ChunkMask)
}

// Light returns the light at world coordinates; unloaded space is full sun.
func (cs *ChunkStore) Light(x, y, z, dim int) PackedLight {
	c := cs.Chunk(ChunkCoordOf(x, y, z, dim))
	if c == nil {
		return FullSunLight
	}
	return c.Light(x&ChunkMask, y&ChunkMask, z&ChunkMask)
}

// Climate samples the climate function.
func (cs *ChunkStore) Climate(x, y, z int) ClimateSample {
	cs.mu.RLock()
	fn := cs.climate
	cs.mu.RUnlock()
	return fn(x, y, z)
}

// SetBlock sets a block at world coordinates. The owning chunk is marked
// dirty for a full re-mesh; neighbours touching an edited border voxel are
// marked dirty for an edge-only re-mesh. Setting a block in an unloaded
// chunk is ignored and returns false.
func (cs *ChunkStore) SetBlock(x, y, z, dim int, id BlockID) bool {
	coord := ChunkCoordOf(x, y, z, dim)
	chunk := cs.Chunk(coord)
	if chunk == nil {
		return false
	}
	lx, ly, lz := x&ChunkMask, y&ChunkMask, z&ChunkMask
	if !chunk.SetBlock(lx, ly, lz, id) {
		return false
	}
	cs.fireDirty(coord, false)

	// Mark neighbor chunks dirty if we touched a border block
	touch := func(dx, dy, dz int) {
		nc := coord.Offset(dx, dy, dz)
		if nb := cs.Chunk(nc); nb != nil {
			nb.MarkDirty()
			cs.fireDirty(nc, true)
		}
	}
	for _, axis := range [3]struct{ l, dx, dy, dz int }{
		{lx, 1, 0, 0}, {ly, 0, 1, 0}, {lz, 0, 0, 1},
	} {
		if axis.l == 0 {
			touch(-axis.dx, -axis.dy, -axis.dz)
		} else if axis.l == ChunkMask {
			touch(axis.dx, axis.dy, axis.dz)
		}
	}
	return true
}

// AppendChunksInRadius appends loaded chunks of one dimension whose centre
// lies within radius chunks of the centre chunk.
func (cs *ChunkStore) AppendChunksInRadius(center ChunkCoord, radius int, dst []*Chunk) []*Chunk {
	defer profiling.Track("world.AppendChunksInRadius")()
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	r2 := radius * radius
	for coord, ch := range cs.chunks {
		if coord.Dimension != center.Dimension {
			continue
		}
		dx, dy, dz := coord.X-center.X, coord.Y-center.Y, coord.Z-center.Z
		if dx*dx+dy*dy+dz*dz <= r2 {
			dst = append(dst, ch)
		}
	}
	return dst
}

// EvictFarChunks unloads chunks further than radius from the centre chunk.
// Returns the number of removed chunks.
func (cs *ChunkStore) EvictFarChunks(center ChunkCoord, radius int) int {
	defer profiling.Track("world.EvictFarChunks")()
	var far []ChunkCoord
	cs.mu.RLock()
	for coord := range cs.chunks {
		dx, dy, dz := coord.X-center.X, coord.Y-center.Y, coord.Z-center.Z
		if coord.Dimension != center.Dimension || dx*dx+dy*dy+dz*dz > radius*radius {
			far = append(far, coord)
		}
	}
	cs.mu.RUnlock()
	removed := 0
	for _, coord := range far {
		if cs.UnloadChunk(coord) {
			removed++
		}
	}
	return removed
}

// ModCount returns the current modification count of the chunk map.
func (cs *ChunkStore) ModCount() uint64 {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return cs.modCount
}

// Len returns the number of loaded chunks.
func (cs *ChunkStore) Len() int {
	cs.mu.RLock()
	defer cs.mu.RUnlock()
	return len(cs.chunks)
}
