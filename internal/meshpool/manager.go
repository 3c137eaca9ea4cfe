package meshpool

import (
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/gpu"
	"voxelclient/internal/meshing"
	"voxelclient/internal/world"
)

// ManagerStats sums every pool.
type ManagerStats struct {
	Pools           int
	Fragments       int
	UsedBytes       int
	FragmentedRatio float32 // worst pool
}

// Manager owns the pools of every atlas and pass and opens a new pool
// whenever the existing ones are full or too far from a chunk.
type Manager struct {
	dev             gpu.Device
	cfg             PoolConfig
	defragmentAbove float32
	logger          *slog.Logger

	swapper FrameSwapper

	mu      sync.RWMutex
	pools   map[PoolKey][]*MeshPool
	atlases int
}

// NewManager returns a manager with no pools.
func NewManager(dev gpu.Device, cfg PoolConfig, defragmentAbove float32, logger *slog.Logger) *Manager {
	if logger == nil {
		logger = slog.Default()
	}
	return &Manager{
		dev:             dev,
		cfg:             cfg,
		defragmentAbove: defragmentAbove,
		logger:          logger,
		pools:           make(map[PoolKey][]*MeshPool),
		atlases:         1,
	}
}

// FrameContext returns the context of the frame being rendered.
func (m *Manager) FrameContext() FrameContext { return m.swapper.Context() }

// SwapVisibleBuffers publishes the visibility written by Cull.
func (m *Manager) SwapVisibleBuffers() FrameContext { return m.swapper.SwapVisibleBuffers() }

// AddAtlas makes a new atlas page renderable. Its pools are created on
// first allocation.
func (m *Manager) AddAtlas(index int) {
	m.mu.Lock()
	m.atlases = max(m.atlases, index+1)
	m.mu.Unlock()
}

// AtlasCount returns the number of atlas pages known to the manager.
func (m *Manager) AtlasCount() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.atlases
}

// Allocate stores a mesh in the first pool of key that takes it.
func (m *Manager) Allocate(key PoolKey, coord world.ChunkCoord, part meshing.MeshPart, lod meshing.LODLevel, mesh *meshing.MeshData, sphere meshing.BoundingSphere) (*Location, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, p := range m.pools[key] {
		loc, err := p.Allocate(coord, part, lod, mesh, sphere)
		switch {
		case err == nil:
			return loc, nil
		case errors.Is(err, ErrPoolFull), errors.Is(err, ErrOutOfRange):
			continue
		default:
			return nil, err
		}
	}

	p, err := NewMeshPool(m.dev, key, m.cfg, m.originFor(coord), m.logger)
	if err != nil {
		return nil, err
	}
	m.pools[key] = append(m.pools[key], p)
	m.atlases = max(m.atlases, key.Atlas+1)
	m.logger.Debug("pool created", "pool", key.String(), "count", len(m.pools[key]), "origin", p.origin)
	return p.Allocate(coord, part, lod, mesh, sphere)
}

// originFor snaps the chunk origin to the origin span grid.
func (m *Manager) originFor(coord world.ChunkCoord) mgl32.Vec3 {
	o := coord.OriginVec()
	span := m.cfg.OriginSpan
	if span <= 0 {
		return mgl32.Vec3{}
	}
	snap := func(v float32) float32 { return float32(math.Floor(float64(v/span))) * span }
	return mgl32.Vec3{snap(o[0]), snap(o[1]), snap(o[2])}
}

// Remove drops a fragment at the end of the frame.
func (m *Manager) Remove(loc *Location) {
	if loc != nil && loc.pool != nil {
		loc.pool.Remove(loc)
	}
}

// Cull writes the visibility of the next frame for every pool.
func (m *Manager) Cull(fc FrameContext, frustum *Frustum, mode CullMode) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, list := range m.pools {
		for _, p := range list {
			p.Cull(fc, frustum, mode)
		}
	}
}

// Render draws every pool of key.
func (m *Manager) Render(key PoolKey, params RenderParams) RenderStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var stats RenderStats
	for _, p := range m.pools[key] {
		stats.add(p.Render(params))
	}
	return stats
}

// HasPools reports whether anything was ever allocated for key.
func (m *Manager) HasPools(key PoolKey) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.pools[key]) > 0
}

// FrameEnd reclaims removed fragments, compacts fragmented pools and
// releases empty ones.
func (m *Manager) FrameEnd() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, list := range m.pools {
		kept := list[:0]
		for _, p := range list {
			p.FrameEnd()
			if p.Len() == 0 {
				p.Release()
				continue
			}
			if m.defragmentAbove > 0 && p.FragmentationRatio() > m.defragmentAbove {
				if _, err := p.Defragment(); err != nil {
					m.logger.Warn("pool compaction failed", "pool", key.String(), "error", err)
				}
			}
			kept = append(kept, p)
		}
		clear(list[len(kept):])
		if len(kept) == 0 {
			delete(m.pools, key)
			continue
		}
		m.pools[key] = kept
	}
}

// Stats sums the pools.
func (m *Manager) Stats() ManagerStats {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var s ManagerStats
	for _, list := range m.pools {
		for _, p := range list {
			s.Pools++
			s.Fragments += p.Len()
			s.UsedBytes += p.UsedBytes()
			s.FragmentedRatio = max(s.FragmentedRatio, p.FragmentationRatio())
		}
	}
	return s
}

// Keys returns the keys with at least one pool in a stable order.
func (m *Manager) Keys() []PoolKey {
	m.mu.RLock()
	defer m.mu.RUnlock()
	keys := make([]PoolKey, 0, len(m.pools))
	for k := range m.pools {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i].Atlas != keys[j].Atlas {
			return keys[i].Atlas < keys[j].Atlas
		}
		return keys[i].Pass < keys[j].Pass
	})
	return keys
}

// Dispose releases every pool.
func (m *Manager) Dispose() {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, list := range m.pools {
		for _, p := range list {
			p.Release()
		}
	}
	clear(m.pools)
}
