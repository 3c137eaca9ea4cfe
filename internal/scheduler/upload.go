package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"sync"

	"voxelclient/internal/meshing"
	"voxelclient/internal/meshpool"
	"voxelclient/internal/profiling"
	"voxelclient/internal/world"
)

// chunkFragments are the pool locations of one chunk. Center and edge
// geometry are replaced independently. chunk is the instance the last
// upload was applied to.
type chunkFragments struct {
	chunk *world.Chunk
	parts [2][]*meshpool.Location
}

func (f *chunkFragments) empty() bool {
	return len(f.parts[0]) == 0 && len(f.parts[1]) == 0
}

// UploadStats are cumulative counters.
type UploadStats struct {
	Uploaded  int64
	Disposed  int64 // chunk unloaded before upload
	Fragments int64
	Bytes     int64
	Failed    int64
	Released  int64 // fragments freed by chunk unloads
}

// UploadScheduler copies finished meshes into the pools. All methods except
// OnChunkUnloaded must be called from the render thread.
type UploadScheduler struct {
	ready       <-chan *meshing.TesselatedChunkMesh
	pools       *meshpool.Manager
	chunks      ChunkLookup
	budgetBytes int
	logger      *slog.Logger

	carry     *meshing.TesselatedChunkMesh
	fragments map[world.ChunkCoord]*chunkFragments

	unloadMu sync.Mutex
	unloaded []*world.Chunk

	stats UploadStats
}

// NewUploadScheduler creates an uploader reading from ready.
func NewUploadScheduler(ready <-chan *meshing.TesselatedChunkMesh, pools *meshpool.Manager, chunks ChunkLookup, budgetBytes int, logger *slog.Logger) *UploadScheduler {
	if logger == nil {
		logger = slog.Default()
	}
	return &UploadScheduler{
		ready:       ready,
		pools:       pools,
		chunks:      chunks,
		budgetBytes: budgetBytes,
		logger:      logger,
		fragments:   make(map[world.ChunkCoord]*chunkFragments),
	}
}

// OnChunkUnloaded queues the release of a chunk's fragments. It is safe to
// call from any goroutine and fits world.UnloadListener.
func (u *UploadScheduler) OnChunkUnloaded(c *world.Chunk) {
	u.unloadMu.Lock()
	u.unloaded = append(u.unloaded, c)
	u.unloadMu.Unlock()
}

func (u *UploadScheduler) releaseUnloaded() {
	u.unloadMu.Lock()
	unloaded := u.unloaded
	u.unloaded = nil
	u.unloadMu.Unlock()

	for _, c := range unloaded {
		// fragments uploaded for a chunk added since belong to it
		if f := u.fragments[c.Coord]; f != nil && f.chunk == c {
			u.release(c.Coord)
		}
	}
}

func (u *UploadScheduler) release(coord world.ChunkCoord) {
	f := u.fragments[coord]
	if f == nil {
		return
	}
	for p := range f.parts {
		for _, loc := range f.parts[p] {
			u.pools.Remove(loc)
			u.stats.Released++
		}
	}
	delete(u.fragments, coord)
}

// Upload drains ready meshes until the byte budget is spent. At least one
// mesh is taken per call so oversized meshes still make progress.
func (u *UploadScheduler) Upload() UploadStats {
	defer profiling.Track("scheduler.Upload")()
	u.releaseUnloaded()

	spent := 0
	for {
		mesh := u.carry
		u.carry = nil
		if mesh == nil {
			select {
			case mesh = <-u.ready:
			default:
				return u.stats
			}
		}

		size := mesh.SizeBytes()
		if spent > 0 && u.budgetBytes > 0 && spent+size > u.budgetBytes {
			u.carry = mesh
			return u.stats
		}
		spent += size
		u.apply(mesh)
	}
}

func (u *UploadScheduler) apply(mesh *meshing.TesselatedChunkMesh) {
	chunk := lookup(u.chunks, mesh.Coord)
	if chunk == nil || chunk.IsUnloaded() || !chunk.IsLoaded() {
		u.stats.Disposed++
		u.logger.Debug("discarding mesh of unloaded chunk", "chunk", mesh.Coord.String())
		return
	}

	f := u.fragments[mesh.Coord]
	if f == nil {
		f = &chunkFragments{}
		u.fragments[mesh.Coord] = f
	}
	f.chunk = chunk
	if !mesh.EdgeOnly {
		u.replace(f, meshing.PartCenter, mesh)
	}
	u.replace(f, meshing.PartEdge, mesh)

	if f.empty() {
		delete(u.fragments, mesh.Coord)
	}
	chunk.SetHasGeometry(!f.empty())
	u.stats.Uploaded++
	profiling.Add("scheduler.UploadedBytes", int64(mesh.SizeBytes()))
}

// replace swaps the locations of one part. The old ranges are released at
// the end of the frame by the pool.
func (u *UploadScheduler) replace(f *chunkFragments, part meshing.MeshPart, mesh *meshing.TesselatedChunkMesh) {
	for _, loc := range f.parts[part] {
		u.pools.Remove(loc)
	}
	f.parts[part] = f.parts[part][:0]

	meshes := mesh.Part(part)
	for _, key := range meshing.SortedKeys(meshes) {
		data := meshes[key]
		if data.IsEmpty() {
			continue
		}
		loc, err := u.pools.Allocate(meshpool.PoolKey{Atlas: key.Atlas, Pass: key.Pass}, mesh.Coord, part, key.LOD, data, mesh.Sphere)
		if err != nil {
			u.stats.Failed++
			level := slog.LevelError
			if errors.Is(err, meshpool.ErrFragmentTooLarge) {
				level = slog.LevelWarn
			}
			u.logger.Log(context.Background(), level, "fragment upload failed",
				"chunk", mesh.Coord.String(),
				"key", key.String(),
				"vertices", data.VerticesCount(),
				"error", err)
			continue
		}
		f.parts[part] = append(f.parts[part], loc)
		u.stats.Fragments++
		u.stats.Bytes += int64(loc.SizeBytes())
	}
}

// Fragments returns the pool locations of a chunk's part.
func (u *UploadScheduler) Fragments(coord world.ChunkCoord, part meshing.MeshPart) []*meshpool.Location {
	f := u.fragments[coord]
	if f == nil {
		return nil
	}
	return f.parts[part]
}

// Stats returns the cumulative counters.
func (u *UploadScheduler) Stats() UploadStats { return u.stats }
