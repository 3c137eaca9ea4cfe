// Package meshpool stores chunk geometry in large shared device buffers and
// draws many chunks with one multi-draw call per pool.
package meshpool

import (
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/gpu"
	"voxelclient/internal/meshing"
	"voxelclient/internal/profiling"
	"voxelclient/internal/registry"
	"voxelclient/internal/world"
)

var (
	// ErrPoolFull means the fragment does not fit. Another pool may take it.
	ErrPoolFull = errors.New("meshpool: pool full")
	// ErrFragmentTooLarge means no pool of this configuration can ever hold
	// the fragment.
	ErrFragmentTooLarge = errors.New("meshpool: fragment exceeds pool capacity")
	// ErrOutOfRange means the chunk is too far from the pool origin.
	ErrOutOfRange = errors.New("meshpool: chunk outside pool origin span")
)

const indexSize = 4

// PoolKey identifies the pools sharing an atlas page and a render pass.
type PoolKey struct {
	Atlas int
	Pass  registry.RenderPass
}

func (k PoolKey) String() string { return fmt.Sprintf("atlas%d/%s", k.Atlas, k.Pass) }

// PoolConfig bounds a single pool.
type PoolConfig struct {
	MaxVertices  int
	MaxIndices   int
	MaxFragments int
	OriginSpan   float32 // max distance in blocks between a chunk and the pool origin
}

// RenderParams selects what a Render call draws.
type RenderParams struct {
	Frame  FrameContext
	Mode   CullMode
	Camera mgl32.Vec3
	// Lod2Distance splits the near band (LOD0) from the far band (LOD2).
	// Zero draws every level.
	Lod2Distance float32
	// Program receives the camera relative pool origin in uOriginOffset.
	Program gpu.Program
}

// RenderStats is what a Render call submitted.
type RenderStats struct {
	DrawCalls int
	Fragments int
	Vertices  int
	Triangles int
}

func (s *RenderStats) add(o RenderStats) {
	s.DrawCalls += o.DrawCalls
	s.Fragments += o.Fragments
	s.Vertices += o.Vertices
	s.Triangles += o.Triangles
}

// DefragmentStats describes one compaction.
type DefragmentStats struct {
	Moved          int
	ReclaimedBytes int
}

// MeshPool is one vertex buffer plus one index buffer that fragments are
// appended to. Space freed by Remove is reclaimed by Defragment.
type MeshPool struct {
	dev    gpu.Device
	key    PoolKey
	cfg    PoolConfig
	origin mgl32.Vec3
	logger *slog.Logger

	mu  sync.RWMutex
	vbo gpu.BufferID
	ibo gpu.BufferID

	vertexTail int
	indexTail  int
	live       []*Location // ordered by offset
	pending    []*Location // removed, reclaimed at FrameEnd

	freedVertices int
	freedIndices  int

	cmds    []gpu.DrawCommand
	scratch []byte
}

// NewMeshPool allocates the device buffers of a pool.
func NewMeshPool(dev gpu.Device, key PoolKey, cfg PoolConfig, origin mgl32.Vec3, logger *slog.Logger) (*MeshPool, error) {
	if cfg.MaxVertices <= 0 || cfg.MaxIndices <= 0 || cfg.MaxFragments <= 0 {
		return nil, fmt.Errorf("meshpool: invalid pool config %+v", cfg)
	}
	if logger == nil {
		logger = slog.Default()
	}
	p := &MeshPool{dev: dev, key: key, cfg: cfg, origin: origin, logger: logger}
	var err error
	if p.vbo, p.ibo, err = p.createBuffers(); err != nil {
		return nil, err
	}
	return p, nil
}

func (p *MeshPool) createBuffers() (vbo, ibo gpu.BufferID, err error) {
	vbo, err = p.dev.CreateBuffer(gpu.VertexBuffer, p.cfg.MaxVertices*meshing.VertexStride)
	if err != nil {
		return 0, 0, fmt.Errorf("create vertex buffer for %s: %w", p.key, err)
	}
	ibo, err = p.dev.CreateBuffer(gpu.IndexBuffer, p.cfg.MaxIndices*indexSize)
	if err != nil {
		p.dev.DeleteBuffer(vbo)
		return 0, 0, fmt.Errorf("create index buffer for %s: %w", p.key, err)
	}
	return vbo, ibo, nil
}

// Key returns the atlas and pass of the pool.
func (p *MeshPool) Key() PoolKey { return p.key }

// Origin is subtracted from every vertex position at upload.
func (p *MeshPool) Origin() mgl32.Vec3 { return p.origin }

// Accepts reports whether a chunk is close enough to the pool origin.
func (p *MeshPool) Accepts(coord world.ChunkCoord) bool {
	d := coord.OriginVec().Sub(p.origin)
	span := p.cfg.OriginSpan
	if span <= 0 {
		return true
	}
	return abs32(d[0]) <= span && abs32(d[1]) <= span && abs32(d[2]) <= span
}

// Allocate copies a mesh into the pool and returns its location.
func (p *MeshPool) Allocate(coord world.ChunkCoord, part meshing.MeshPart, lod meshing.LODLevel, mesh *meshing.MeshData, sphere meshing.BoundingSphere) (*Location, error) {
	nv, ni := mesh.VerticesCount(), mesh.IndicesCount()
	if nv > p.cfg.MaxVertices || ni > p.cfg.MaxIndices {
		return nil, fmt.Errorf("%w: %d vertices, %d indices", ErrFragmentTooLarge, nv, ni)
	}
	if !p.Accepts(coord) {
		return nil, ErrOutOfRange
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if len(p.live) >= p.cfg.MaxFragments {
		return nil, ErrPoolFull
	}
	if p.vertexTail+nv > p.cfg.MaxVertices || p.indexTail+ni > p.cfg.MaxIndices {
		// compaction only helps if reclaimed space makes it fit
		if p.vertexTail-p.freedVertices+nv > p.cfg.MaxVertices || p.indexTail-p.freedIndices+ni > p.cfg.MaxIndices {
			return nil, ErrPoolFull
		}
		if _, err := p.defragmentLocked(); err != nil {
			return nil, err
		}
	}

	loc := newLocation(p)
	loc.Coord = coord
	loc.Part = part
	loc.LOD = lod
	loc.Sphere = sphere
	loc.VertexOffset = p.vertexTail
	loc.VertexCount = nv
	loc.IndexOffset = p.indexTail
	loc.IndexCount = ni

	p.scratch = mesh.AppendVertexBytes(p.scratch[:0], coord.OriginVec().Sub(p.origin))
	p.dev.WriteBuffer(p.vbo, loc.VertexOffset*meshing.VertexStride, p.scratch)
	p.scratch = mesh.AppendIndexBytes(p.scratch[:0])
	p.dev.WriteBuffer(p.ibo, loc.IndexOffset*indexSize, p.scratch)

	p.vertexTail += nv
	p.indexTail += ni
	p.live = append(p.live, loc)
	profiling.Add("meshpool.UploadedBytes", int64(loc.SizeBytes()))
	return loc, nil
}

// Remove stops drawing a fragment. Its range stays reserved until FrameEnd,
// since draws of the current frame may still reference it.
func (p *MeshPool) Remove(loc *Location) {
	if loc == nil || loc.pool != p {
		return
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if loc.removed {
		return
	}
	loc.removed = true
	p.pending = append(p.pending, loc)
}

// FrameEnd reclaims the fragments removed during the frame.
func (p *MeshPool) FrameEnd() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.pending) == 0 {
		return
	}
	kept := p.live[:0]
	for _, loc := range p.live {
		if loc.removed {
			p.freedVertices += loc.VertexCount
			p.freedIndices += loc.IndexCount
			continue
		}
		kept = append(kept, loc)
	}
	clear(p.live[len(kept):])
	p.live = kept
	p.pending = p.pending[:0]

	if len(p.live) == 0 {
		// orphan before rewinding, the last frame's draws may still read
		// the old ranges
		p.dev.InvalidateBuffer(p.vbo)
		p.dev.InvalidateBuffer(p.ibo)
		p.vertexTail, p.indexTail = 0, 0
		p.freedVertices, p.freedIndices = 0, 0
	}
}

// FragmentationRatio is the share of the used range that is dead.
func (p *MeshPool) FragmentationRatio() float32 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	used := p.vertexTail*meshing.VertexStride + p.indexTail*indexSize
	if used == 0 {
		return 0
	}
	freed := p.freedVertices*meshing.VertexStride + p.freedIndices*indexSize
	return float32(freed) / float32(used)
}

// Defragment packs the live fragments into fresh buffers.
func (p *MeshPool) Defragment() (DefragmentStats, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.defragmentLocked()
}

func (p *MeshPool) defragmentLocked() (DefragmentStats, error) {
	defer profiling.Track("meshpool.Defragment")()

	vbo, ibo, err := p.createBuffers()
	if err != nil {
		return DefragmentStats{}, err
	}

	var stats DefragmentStats
	before := p.vertexTail*meshing.VertexStride + p.indexTail*indexSize

	kept := p.live[:0]
	vTail, iTail := 0, 0
	for _, loc := range p.live {
		if loc.removed {
			continue
		}
		p.dev.CopyBuffer(p.vbo, vbo, loc.VertexOffset*meshing.VertexStride, vTail*meshing.VertexStride, loc.VertexCount*meshing.VertexStride)
		p.dev.CopyBuffer(p.ibo, ibo, loc.IndexOffset*indexSize, iTail*indexSize, loc.IndexCount*indexSize)
		if loc.VertexOffset != vTail || loc.IndexOffset != iTail {
			stats.Moved++
		}
		loc.VertexOffset, loc.IndexOffset = vTail, iTail
		vTail += loc.VertexCount
		iTail += loc.IndexCount
		kept = append(kept, loc)
	}
	clear(p.live[len(kept):])
	p.live = kept
	p.pending = p.pending[:0]

	p.dev.DeleteBuffer(p.vbo)
	p.dev.DeleteBuffer(p.ibo)
	p.vbo, p.ibo = vbo, ibo
	p.vertexTail, p.indexTail = vTail, iTail
	p.freedVertices, p.freedIndices = 0, 0

	stats.ReclaimedBytes = before - (vTail*meshing.VertexStride + iTail*indexSize)
	p.logger.Debug("pool compacted",
		"pool", p.key.String(),
		"fragments", len(p.live),
		"moved", stats.Moved,
		"reclaimed", stats.ReclaimedBytes)
	return stats, nil
}

// Cull writes the visibility of every fragment for the next frame. It may
// run on another goroutine than Render.
func (p *MeshPool) Cull(fc FrameContext, frustum *Frustum, mode CullMode) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	for _, loc := range p.live {
		if loc.removed {
			continue
		}
		v := frustum == nil || frustum.SphereVisible(loc.Sphere.Center, loc.Sphere.Radius)
		loc.setVisible(fc, mode, v)
	}
}

// Render submits every visible fragment of the right LOD band in one
// multi-draw call.
func (p *MeshPool) Render(params RenderParams) RenderStats {
	p.mu.RLock()
	defer p.mu.RUnlock()

	var stats RenderStats
	p.cmds = p.cmds[:0]
	for _, loc := range p.live {
		if loc.removed || !loc.Visible(params.Frame, params.Mode) {
			continue
		}
		if !lodVisible(loc, params.Camera, params.Lod2Distance) {
			continue
		}
		p.cmds = append(p.cmds, gpu.DrawCommand{
			IndexCount: int32(loc.IndexCount),
			FirstIndex: int32(loc.IndexOffset),
			BaseVertex: int32(loc.VertexOffset),
		})
		stats.Fragments++
		stats.Vertices += loc.VertexCount
		stats.Triangles += loc.IndexCount / 3
	}
	if len(p.cmds) == 0 {
		return stats
	}
	if params.Program != nil {
		off := p.origin.Sub(params.Camera)
		params.Program.SetVector3("uOriginOffset", off[0], off[1], off[2])
	}
	p.dev.BindMeshBuffers(p.vbo, p.ibo)
	p.dev.MultiDrawIndexed(p.cmds)
	stats.DrawCalls = 1
	return stats
}

// lodVisible draws LOD0 near, LOD2 far and LOD1 always. The band is picked
// by the distance from the camera to the nearest point of the sphere.
func lodVisible(loc *Location, camera mgl32.Vec3, lod2Distance float32) bool {
	if loc.LOD == meshing.LOD1 || lod2Distance <= 0 {
		return true
	}
	d := loc.Sphere.Center.Sub(camera).Len() - loc.Sphere.Radius
	near := d < lod2Distance
	if loc.LOD == meshing.LOD0 {
		return near
	}
	return !near
}

// Len returns the number of live fragments including removed ones not yet
// reclaimed.
func (p *MeshPool) Len() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return len(p.live)
}

// UsedBytes is the size of the appended range, dead fragments included.
func (p *MeshPool) UsedBytes() int {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vertexTail*meshing.VertexStride + p.indexTail*indexSize
}

// Locations returns the fragments in offset order.
func (p *MeshPool) Locations() []*Location {
	p.mu.RLock()
	defer p.mu.RUnlock()
	out := make([]*Location, len(p.live))
	copy(out, p.live)
	sort.Slice(out, func(i, j int) bool { return out[i].VertexOffset < out[j].VertexOffset })
	return out
}

// Buffers returns the vertex and index buffer.
func (p *MeshPool) Buffers() (vbo, ibo gpu.BufferID) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.vbo, p.ibo
}

// Release deletes the device buffers. The pool is unusable afterwards.
func (p *MeshPool) Release() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.vbo != 0 {
		p.dev.DeleteBuffer(p.vbo)
		p.dev.DeleteBuffer(p.ibo)
		p.vbo, p.ibo = 0, 0
	}
	p.live = nil
	p.pending = nil
}

func abs32(v float32) float32 {
	if v < 0 {
		return -v
	}
	return v
}
