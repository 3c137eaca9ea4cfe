// Package meshcache keeps recently built chunk meshes, zstd-compressed, so
// a chunk whose voxels did not change is not meshed again.
package meshcache

import (
	"container/list"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/alitto/pond/v2"
	"github.com/klauspost/compress/zstd"

	"voxelclient/internal/meshing"
)

type entry struct {
	key  uint64
	data []byte
	raw  int64
}

// Stats are cumulative cache counters.
type Stats struct {
	Hits, Misses  int64
	Entries       int
	StoredBytes   int64
	UnpackedBytes int64
}

// Cache is an LRU of compressed meshes. Compression runs on a small worker
// pool so Put never stalls the meshing goroutine.
type Cache struct {
	mu       sync.Mutex
	capacity int
	ll       *list.List
	items    map[uint64]*list.Element
	stored   int64
	unpacked int64

	enc  *zstd.Encoder
	dec  *zstd.Decoder
	pool pond.Pool
	wg   sync.WaitGroup

	hits, misses atomic.Int64
	logger       *slog.Logger
}

// New creates a cache holding up to capacity meshes.
func New(capacity, workers int, logger *slog.Logger) (*Cache, error) {
	enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedFastest))
	if err != nil {
		return nil, err
	}
	dec, err := zstd.NewReader(nil)
	if err != nil {
		enc.Close()
		return nil, err
	}
	return &Cache{
		capacity: max(capacity, 1),
		ll:       list.New(),
		items:    make(map[uint64]*list.Element),
		enc:      enc,
		dec:      dec,
		pool:     pond.NewPool(max(workers, 1)),
		logger:   logger,
	}, nil
}

// Put stores a mesh. The mesh is encoded before Put returns, so the caller
// may hand it on; compression and insertion complete asynchronously.
func (c *Cache) Put(key uint64, mesh *meshing.TesselatedChunkMesh) {
	raw, err := mesh.MarshalBinary()
	if err != nil {
		c.logger.Warn("mesh cache encode failed", "chunk", mesh.Coord.String(), "error", err)
		return
	}
	c.wg.Add(1)
	c.pool.Submit(func() {
		defer c.wg.Done()
		packed := c.enc.EncodeAll(raw, nil)
		c.insert(key, packed, int64(len(raw)))
	})
}

func (c *Cache) insert(key uint64, packed []byte, rawLen int64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		c.stored += int64(len(packed)) - int64(len(e.data))
		c.unpacked += rawLen - e.raw
		e.data, e.raw = packed, rawLen
		c.ll.MoveToFront(el)
		return
	}
	c.items[key] = c.ll.PushFront(&entry{key: key, data: packed, raw: rawLen})
	c.stored += int64(len(packed))
	c.unpacked += rawLen
	for c.ll.Len() > c.capacity {
		oldest := c.ll.Back()
		e := oldest.Value.(*entry)
		c.ll.Remove(oldest)
		delete(c.items, e.key)
		c.stored -= int64(len(e.data))
		c.unpacked -= e.raw
	}
}

// Get returns a fresh copy of the cached mesh for key.
func (c *Cache) Get(key uint64) (*meshing.TesselatedChunkMesh, bool) {
	c.mu.Lock()
	el, ok := c.items[key]
	var packed []byte
	if ok {
		c.ll.MoveToFront(el)
		packed = el.Value.(*entry).data
	}
	c.mu.Unlock()
	if !ok {
		c.misses.Add(1)
		return nil, false
	}

	raw, err := c.dec.DecodeAll(packed, nil)
	if err != nil {
		c.logger.Warn("mesh cache entry corrupt", "error", err)
		c.remove(key)
		c.misses.Add(1)
		return nil, false
	}
	mesh := &meshing.TesselatedChunkMesh{}
	if err := mesh.UnmarshalBinary(raw); err != nil {
		c.logger.Warn("mesh cache entry corrupt", "error", err)
		c.remove(key)
		c.misses.Add(1)
		return nil, false
	}
	c.hits.Add(1)
	return mesh, true
}

func (c *Cache) remove(key uint64) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if el, ok := c.items[key]; ok {
		e := el.Value.(*entry)
		c.stored -= int64(len(e.data))
		c.unpacked -= e.raw
		c.ll.Remove(el)
		delete(c.items, key)
	}
}

// Len returns the number of cached meshes.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.ll.Len()
}

// Wait blocks until every pending Put has been stored.
func (c *Cache) Wait() { c.wg.Wait() }

// Stats returns the cache counters.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return Stats{
		Hits:          c.hits.Load(),
		Misses:        c.misses.Load(),
		Entries:       c.ll.Len(),
		StoredBytes:   c.stored,
		UnpackedBytes: c.unpacked,
	}
}

// Close waits for pending work and releases the codecs.
func (c *Cache) Close() {
	c.pool.StopAndWait()
	c.wg.Wait()
	c.enc.Close()
	c.dec.Close()
}
