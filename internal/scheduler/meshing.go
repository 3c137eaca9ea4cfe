// Package scheduler moves chunks through the mesh pipeline: a background
// goroutine meshes dirty chunks under a per-tick budget and the render
// thread uploads the results under a per-frame budget.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"math"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/meshing"
	"voxelclient/internal/profiling"
	"voxelclient/internal/world"
)

// Tier is the severity queue a work item is placed on.
type Tier uint8

const (
	// TierPriority is meshed completely every tick (edits next to the player).
	TierPriority Tier = iota
	// TierNormal is meshed nearest first until the vertex budget is spent.
	TierNormal
	// TierLast gets a small fixed quota per tick.
	TierLast

	numTiers = 3
)

// TierFor routes a dirty chunk by its Chebyshev distance in chunks to the
// chunk holding the player. The player's chunk and its neighbours are
// priority; chunks past viewDistance only get the last tier's quota.
func TierFor(coord world.ChunkCoord, player mgl32.Vec3, viewDistance int) Tier {
	pc := world.ChunkCoordOf(
		int(math.Floor(float64(player.X()))),
		int(math.Floor(float64(player.Y()))),
		int(math.Floor(float64(player.Z()))),
		coord.Dimension)
	d := max(absInt(coord.X-pc.X), absInt(coord.Y-pc.Y), absInt(coord.Z-pc.Z))
	switch {
	case d <= 1:
		return TierPriority
	case d > viewDistance:
		return TierLast
	}
	return TierNormal
}

func absInt(v int) int {
	if v < 0 {
		return -v
	}
	return v
}

func (t Tier) String() string {
	switch t {
	case TierPriority:
		return "priority"
	case TierNormal:
		return "normal"
	default:
		return "last"
	}
}

// WorkItem asks for a chunk to be meshed. Requeue marks items that were
// pushed back because the chunk data was still incomplete.
type WorkItem struct {
	Coord    world.ChunkCoord
	EdgeOnly bool
	Requeue  bool
}

// Tesselator produces chunk meshes. *meshing.ChunkTesselator implements it.
type Tesselator interface {
	Tesselate(coord world.ChunkCoord, edgeOnly bool) (*meshing.TesselatedChunkMesh, error)
}

// ChunkLookup finds loaded chunks.
type ChunkLookup interface {
	GetChunk(cx, cy, cz, dim int) *world.Chunk
}

func lookup(l ChunkLookup, c world.ChunkCoord) *world.Chunk {
	return l.GetChunk(c.X, c.Y, c.Z, c.Dimension)
}

// MeshingOptions configures a MeshingScheduler.
type MeshingOptions struct {
	VertexBudget   int // per tick, spent by the normal tier only
	LastQuota      int // last tier items per tick
	QueueCapacity  int // per tier channel
	ReadyCapacity  int
	TickInterval   time.Duration
	Logger         *slog.Logger
	TesselateClock func() time.Time
}

// QueueLengths counts items waiting per tier.
type QueueLengths struct {
	Priority, Normal, Last int
}

// MeshingStats are cumulative counters.
type MeshingStats struct {
	Ticks    int64
	Meshed   int64
	Vertices int64
	Requeued int64
	Disposed int64 // chunk unloaded before meshing
	Empty    int64
	Failed   int64
	Dropped  int64 // enqueue on a full channel
	Deferred int64 // ready queue full, retried next tick
	LastTick time.Duration
}

// MeshingScheduler owns the three tier queues and the single meshing
// goroutine.
type MeshingScheduler struct {
	tess   Tesselator
	chunks ChunkLookup
	opts   MeshingOptions
	logger *slog.Logger

	queues [numTiers]chan WorkItem
	ready  chan *meshing.TesselatedChunkMesh

	playerMu sync.RWMutex
	player   mgl32.Vec3

	budget atomic.Int64

	// owned by the meshing goroutine
	local   [numTiers][]WorkItem
	pending [numTiers]map[world.ChunkCoord]int // coord -> index in local
	retry   [numTiers][]WorkItem               // requeued while the channel was full

	localLens [numTiers]atomic.Int64

	ticks, meshed, vertices, requeued, disposed atomic.Int64
	empty, failed, dropped, deferred            atomic.Int64
	lastTick                                    atomic.Int64

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewMeshingScheduler creates a stopped scheduler.
func NewMeshingScheduler(tess Tesselator, chunks ChunkLookup, opts MeshingOptions) *MeshingScheduler {
	if opts.QueueCapacity <= 0 {
		opts.QueueCapacity = 4096
	}
	if opts.ReadyCapacity <= 0 {
		opts.ReadyCapacity = opts.QueueCapacity
	}
	if opts.LastQuota <= 0 {
		opts.LastQuota = 5
	}
	if opts.TickInterval <= 0 {
		opts.TickInterval = 5 * time.Millisecond
	}
	if opts.TesselateClock == nil {
		opts.TesselateClock = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &MeshingScheduler{
		tess:   tess,
		chunks: chunks,
		opts:   opts,
		logger: logger,
		ready:  make(chan *meshing.TesselatedChunkMesh, opts.ReadyCapacity),
	}
	for i := range s.queues {
		s.queues[i] = make(chan WorkItem, opts.QueueCapacity)
		s.pending[i] = make(map[world.ChunkCoord]int)
	}
	s.budget.Store(int64(opts.VertexBudget))
	return s
}

// SetVertexBudget changes the per tick budget of the normal tier. Zero or
// less removes the limit.
func (s *MeshingScheduler) SetVertexBudget(vertices int) {
	s.budget.Store(int64(vertices))
}

// Enqueue queues a chunk. It never blocks and reports false when the tier
// channel is full.
func (s *MeshingScheduler) Enqueue(coord world.ChunkCoord, tier Tier, edgeOnly bool) bool {
	return s.push(tier, WorkItem{Coord: coord, EdgeOnly: edgeOnly})
}

func (s *MeshingScheduler) push(tier Tier, item WorkItem) bool {
	select {
	case s.queues[tier] <- item:
		return true
	default:
		s.dropped.Add(1)
		s.logger.Debug("mesh queue full", "tier", tier.String(), "chunk", item.Coord.String())
		return false
	}
}

// SetPlayerPosition updates the position normal items are sorted by.
func (s *MeshingScheduler) SetPlayerPosition(pos mgl32.Vec3) {
	s.playerMu.Lock()
	s.player = pos
	s.playerMu.Unlock()
}

// PlayerPosition returns the last position set.
func (s *MeshingScheduler) PlayerPosition() mgl32.Vec3 {
	s.playerMu.RLock()
	defer s.playerMu.RUnlock()
	return s.player
}

// Ready delivers finished meshes to the upload side.
func (s *MeshingScheduler) Ready() <-chan *meshing.TesselatedChunkMesh { return s.ready }

// Start runs Tick on a background goroutine until ctx ends or Stop is called.
func (s *MeshingScheduler) Start(ctx context.Context) {
	ctx, s.cancel = context.WithCancel(ctx)
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.opts.TickInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				s.Tick()
			}
		}
	}()
}

// Stop ends the meshing goroutine and waits for the running tick.
func (s *MeshingScheduler) Stop() {
	if s.cancel != nil {
		s.cancel()
	}
	s.wg.Wait()
}

// Tick runs one meshing pass. Only one goroutine may call it.
func (s *MeshingScheduler) Tick() {
	defer profiling.Track("scheduler.MeshingTick")()
	start := time.Now()
	s.ticks.Add(1)

	for t := Tier(0); t < numTiers; t++ {
		s.drain(t)
	}
	s.sortNormal()

	budget := int(s.budget.Load())
	spent := 0
	full := false
	for t := Tier(0); t < numTiers && !full; t++ {
		processed := 0
		for len(s.local[t]) > processed {
			if t == TierNormal && budget > 0 && spent >= budget {
				break
			}
			if t == TierLast && processed >= s.opts.LastQuota {
				break
			}
			n, ok := s.process(t, s.local[t][processed])
			if !ok {
				full = true
				break
			}
			if t == TierNormal {
				spent += n
			}
			processed++
		}
		s.consume(t, processed)
	}

	for t := range s.local {
		s.localLens[t].Store(int64(len(s.local[t]) + len(s.retry[t])))
	}
	s.lastTick.Store(int64(time.Since(start)))
}

// drain moves retried and channel items into the local list.
func (s *MeshingScheduler) drain(t Tier) {
	for _, item := range s.retry[t] {
		s.merge(t, item)
	}
	clear(s.retry[t])
	s.retry[t] = s.retry[t][:0]
	for {
		select {
		case item := <-s.queues[t]:
			s.merge(t, item)
		default:
			return
		}
	}
}

// merge adds an item to the local list. A coordinate already waiting is
// merged; a full remesh wins over an edge only one.
func (s *MeshingScheduler) merge(t Tier, item WorkItem) {
	if i, ok := s.pending[t][item.Coord]; ok {
		if !item.EdgeOnly {
			s.local[t][i].EdgeOnly = false
		}
		return
	}
	s.pending[t][item.Coord] = len(s.local[t])
	s.local[t] = append(s.local[t], item)
}

func (s *MeshingScheduler) sortNormal() {
	list := s.local[TierNormal]
	if len(list) < 2 {
		return
	}
	pos := s.PlayerPosition()
	sort.SliceStable(list, func(i, j int) bool {
		return list[i].Coord.DistanceSq(pos) < list[j].Coord.DistanceSq(pos)
	})
	for i, item := range list {
		s.pending[TierNormal][item.Coord] = i
	}
}

// consume drops the first n processed items of a tier.
func (s *MeshingScheduler) consume(t Tier, n int) {
	if n == 0 {
		return
	}
	for _, item := range s.local[t][:n] {
		delete(s.pending[t], item.Coord)
	}
	rest := copy(s.local[t], s.local[t][n:])
	clear(s.local[t][rest:])
	s.local[t] = s.local[t][:rest]
	for i, item := range s.local[t] {
		s.pending[t][item.Coord] = i
	}
}

// process meshes one item and returns the vertices produced. ok is false
// when the ready queue is full and the item must stay queued.
func (s *MeshingScheduler) process(t Tier, item WorkItem) (vertices int, ok bool) {
	chunk := lookup(s.chunks, item.Coord)
	if chunk == nil || chunk.IsUnloaded() {
		s.disposed.Add(1)
		s.logger.Debug("chunk unloaded before meshing", "chunk", item.Coord.String())
		return 0, true
	}
	if !chunk.IsLoaded() {
		s.requeue(t, item)
		return 0, true
	}

	mesh, err := s.tess.Tesselate(item.Coord, item.EdgeOnly)
	switch {
	case errors.Is(err, meshing.ErrNotLoadedFromServer):
		s.requeue(t, item)
		return 0, true
	case errors.Is(err, meshing.ErrChunkNotLoaded):
		s.disposed.Add(1)
		s.logger.Debug("chunk unloaded while meshing", "chunk", item.Coord.String())
		return 0, true
	case err != nil:
		s.failed.Add(1)
		s.logger.Warn("tesselation failed", "chunk", item.Coord.String(), "error", err)
		return 0, true
	}

	chunk.ClearDirty()
	chunk.SetTesselatedAt(s.opts.TesselateClock())

	// nothing to draw and nothing to replace
	if mesh.IsEmpty() && !chunk.HasGeometry() {
		s.empty.Add(1)
		return 0, true
	}

	select {
	case s.ready <- mesh:
	default:
		s.deferred.Add(1)
		return 0, false
	}
	s.meshed.Add(1)
	s.vertices.Add(int64(mesh.VertexCount))
	profiling.Add("scheduler.MeshedVertices", int64(mesh.VertexCount))
	return mesh.VertexCount, true
}

// requeue pushes an item back on its tier channel for a later tick. When
// producers filled the channel meanwhile the item waits in the retry list.
func (s *MeshingScheduler) requeue(t Tier, item WorkItem) {
	item.Requeue = true
	s.requeued.Add(1)
	select {
	case s.queues[t] <- item:
	default:
		s.retry[t] = append(s.retry[t], item)
	}
}

// QueueLengths counts queued and locally held items per tier.
func (s *MeshingScheduler) QueueLengths() QueueLengths {
	return QueueLengths{
		Priority: len(s.queues[TierPriority]) + int(s.localLens[TierPriority].Load()),
		Normal:   len(s.queues[TierNormal]) + int(s.localLens[TierNormal].Load()),
		Last:     len(s.queues[TierLast]) + int(s.localLens[TierLast].Load()),
	}
}

// Stats returns the cumulative counters.
func (s *MeshingScheduler) Stats() MeshingStats {
	return MeshingStats{
		Ticks:    s.ticks.Load(),
		Meshed:   s.meshed.Load(),
		Vertices: s.vertices.Load(),
		Requeued: s.requeued.Load(),
		Disposed: s.disposed.Load(),
		Empty:    s.empty.Load(),
		Failed:   s.failed.Load(),
		Dropped:  s.dropped.Load(),
		Deferred: s.deferred.Load(),
		LastTick: time.Duration(s.lastTick.Load()),
	}
}
