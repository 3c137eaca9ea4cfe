package world

import (
	"runtime"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/profiling"
)

// ChunkSource fills a freshly created chunk with voxel and light data, the
// way a network decoder would once a chunk packet arrives.
type ChunkSource interface {
	Populate(c *Chunk)
}

// ChunkSourceFunc adapts a function to ChunkSource.
type ChunkSourceFunc func(c *Chunk)

func (f ChunkSourceFunc) Populate(c *Chunk) { f(c) }

// ChunkStreamer keeps the chunks around a moving position loaded. A chunk is
// inserted into the store before its data arrives, so consumers can observe
// the not-yet-loaded state; workers then populate it and mark it loaded.
type ChunkStreamer struct {
	jobs       chan *Chunk
	pending    map[ChunkCoord]struct{}
	pendingMu  sync.Mutex
	maxPending int
	wg         sync.WaitGroup

	store     *ChunkStore
	source    ChunkSource
	dimension int
}

// NewChunkStreamer creates a streamer with one worker per CPU.
func NewChunkStreamer(store *ChunkStore, source ChunkSource, dimension int) *ChunkStreamer {
	cs := &ChunkStreamer{
		jobs:       make(chan *Chunk, 4096),
		pending:    make(map[ChunkCoord]struct{}),
		maxPending: 16384,
		store:      store,
		source:     source,
		dimension:  dimension,
	}

	workers := max(runtime.NumCPU()-1, 1)
	for i := 0; i < workers; i++ {
		cs.wg.Add(1)
		go cs.worker()
	}
	return cs
}

// Close stops the workers after the queued chunks are populated.
func (cs *ChunkStreamer) Close() {
	close(cs.jobs)
	cs.wg.Wait()
}

func (cs *ChunkStreamer) worker() {
	defer cs.wg.Done()
	for chunk := range cs.jobs {
		cs.populate(chunk)
		cs.pendingMu.Lock()
		delete(cs.pending, chunk.Coord)
		cs.pendingMu.Unlock()
	}
}

func (cs *ChunkStreamer) populate(chunk *Chunk) {
	if chunk.IsUnloaded() {
		return
	}
	cs.source.Populate(chunk)
	chunk.MarkLoaded()
	chunk.MarkDirty()
	cs.store.fireDirty(chunk.Coord, false)
}

// StreamAroundSync loads every chunk within radius synchronously.
func (cs *ChunkStreamer) StreamAroundSync(pos mgl32.Vec3, radius int) {
	defer profiling.Track("world.StreamAroundSync")()
	center := cs.centerOf(pos)
	forEachInRadius(center, radius, func(coord ChunkCoord) {
		if cs.store.HasChunk(coord) {
			return
		}
		chunk := NewChunk(coord)
		cs.store.AddChunk(chunk)
		cs.populate(chunk)
	})
}

// StreamAroundAsync inserts missing chunks and queues their population.
// Returns the number of queued chunks.
func (cs *ChunkStreamer) StreamAroundAsync(pos mgl32.Vec3, radius int) int {
	defer profiling.Track("world.StreamAroundAsync")()
	center := cs.centerOf(pos)
	queued := 0
	forEachInRadius(center, radius, func(coord ChunkCoord) {
		if cs.request(coord) {
			queued++
		}
	})
	return queued
}

// request respects the pending cap and returns true if the chunk was queued.
func (cs *ChunkStreamer) request(coord ChunkCoord) bool {
	if cs.store.HasChunk(coord) {
		return false
	}

	cs.pendingMu.Lock()
	if _, ok := cs.pending[coord]; ok || len(cs.pending) >= cs.maxPending {
		cs.pendingMu.Unlock()
		return false
	}
	cs.pending[coord] = struct{}{}
	cs.pendingMu.Unlock()

	chunk := NewChunk(coord)
	cs.store.AddChunk(chunk)
	select {
	case cs.jobs <- chunk:
		return true
	default:
		// queue full: rollback
		cs.store.UnloadChunk(coord)
		cs.pendingMu.Lock()
		delete(cs.pending, coord)
		cs.pendingMu.Unlock()
		return false
	}
}

// EvictFar unloads chunks outside the given radius.
func (cs *ChunkStreamer) EvictFar(pos mgl32.Vec3, radius int) int {
	return cs.store.EvictFarChunks(cs.centerOf(pos), radius)
}

func (cs *ChunkStreamer) centerOf(pos mgl32.Vec3) ChunkCoord {
	return ChunkCoordOf(int(floor(pos.X())), int(floor(pos.Y())), int(floor(pos.Z())), cs.dimension)
}

func floor(f float32) float32 {
	i := float32(int(f))
	if f < i {
		return i - 1
	}
	return i
}

// forEachInRadius visits chunk coordinates by growing shells so the nearest
// chunks are requested first.
func forEachInRadius(center ChunkCoord, radius int, fn func(ChunkCoord)) {
	r2 := radius * radius
	for r := 0; r <= radius; r++ {
		for dy := -r; dy <= r; dy++ {
			for dz := -r; dz <= r; dz++ {
				for dx := -r; dx <= r; dx++ {
					if max(abs(dx), abs(dy), abs(dz)) != r {
						continue
					}
					if dx*dx+dy*dy+dz*dz > r2 {
						continue
					}
					fn(center.Offset(dx, dy, dz))
				}
			}
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
