package world

import (
	"sync"
	"sync/atomic"
	"time"
)

// Chunk is a 32³ cube of voxels plus the derived state the mesh pipeline
// tracks for it. Voxel data is guarded by mu; the flags are atomic so the
// meshing goroutine and the main thread can read them without locking.
type Chunk struct {
	Coord ChunkCoord

	mu     sync.RWMutex
	blocks []BlockID     // nil until the first non-air block
	light  []PackedLight // nil means full sun everywhere
	nonAir int

	dirty            atomic.Bool
	queued           atomic.Bool
	loadedFromServer atomic.Bool
	unloaded         atomic.Bool
	hasGeometry      atomic.Bool
	lastTesselated   atomic.Int64
}

// NewChunk creates an empty, dirty chunk.
func NewChunk(coord ChunkCoord) *Chunk {
	c := &Chunk{Coord: coord}
	c.dirty.Store(true)
	return c
}

func inBounds(x, y, z int) bool {
	return x >= 0 && x < ChunkSize && y >= 0 && y < ChunkSize && z >= 0 && z < ChunkSize
}

// Block returns the block at chunk-local coordinates; out of range is air.
func (c *Chunk) Block(x, y, z int) BlockID {
	if !inBounds(x, y, z) {
		return BlockAir
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.blocks == nil {
		return BlockAir
	}
	return c.blocks[LocalIndex(x, y, z)]
}

// SetBlock stores a block and reports whether the voxel changed.
func (c *Chunk) SetBlock(x, y, z int, id BlockID) bool {
	if !inBounds(x, y, z) {
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.blocks == nil {
		if id == BlockAir {
			return false
		}
		c.blocks = make([]BlockID, ChunkVolume)
	}
	idx := LocalIndex(x, y, z)
	old := c.blocks[idx]
	if old == id {
		return false
	}
	c.blocks[idx] = id
	switch {
	case old == BlockAir:
		c.nonAir++
	case id == BlockAir:
		c.nonAir--
	}
	if c.nonAir == 0 {
		c.blocks = nil
	}
	c.dirty.Store(true)
	return true
}

// Light returns the packed light at chunk-local coordinates.
func (c *Chunk) Light(x, y, z int) PackedLight {
	if !inBounds(x, y, z) {
		return FullSunLight
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	if c.light == nil {
		return FullSunLight
	}
	return c.light[LocalIndex(x, y, z)]
}

// SetLight stores a light value computed by the lighting system.
func (c *Chunk) SetLight(x, y, z int, l PackedLight) {
	if !inBounds(x, y, z) {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.light == nil {
		c.light = make([]PackedLight, ChunkVolume)
		for i := range c.light {
			c.light[i] = FullSunLight
		}
	}
	c.light[LocalIndex(x, y, z)] = l
}

// View calls fn with the raw voxel arrays under the read lock. Either slice
// may be nil (all air, full sun). fn must not retain them.
func (c *Chunk) View(fn func(blocks []BlockID, light []PackedLight)) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	fn(c.blocks, c.light)
}

// IsEmpty reports whether the chunk holds no non-air voxels.
func (c *Chunk) IsEmpty() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nonAir == 0
}

// NonAirCount returns the number of non-air voxels.
func (c *Chunk) NonAirCount() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.nonAir
}

func (c *Chunk) MarkDirty()    { c.dirty.Store(true) }
func (c *Chunk) IsDirty() bool { return c.dirty.Load() }

// ClearDirty resets the dirty flag and reports whether it was set.
func (c *Chunk) ClearDirty() bool { return c.dirty.Swap(false) }

// TryQueue sets the queued-for-upload flag, returning false if already set.
func (c *Chunk) TryQueue() bool        { return c.queued.CompareAndSwap(false, true) }
func (c *Chunk) SetQueued(v bool)      { c.queued.Store(v) }
func (c *Chunk) IsQueued() bool        { return c.queued.Load() }
func (c *Chunk) MarkLoaded()           { c.loadedFromServer.Store(true) }
func (c *Chunk) IsLoaded() bool        { return c.loadedFromServer.Load() }
func (c *Chunk) MarkUnloaded()         { c.unloaded.Store(true) }
func (c *Chunk) IsUnloaded() bool      { return c.unloaded.Load() }
func (c *Chunk) SetHasGeometry(v bool) { c.hasGeometry.Store(v) }
func (c *Chunk) HasGeometry() bool     { return c.hasGeometry.Load() }

// SetTesselatedAt records when the chunk was last meshed.
func (c *Chunk) SetTesselatedAt(t time.Time) { c.lastTesselated.Store(t.UnixNano()) }

// TesselatedAt returns the last meshing time, or the zero time.
func (c *Chunk) TesselatedAt() time.Time {
	ns := c.lastTesselated.Load()
	if ns == 0 {
		return time.Time{}
	}
	return time.Unix(0, ns)
}
