package world

import (
	"sync"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
)

func TestChunkCoordOfNegative(t *testing.T) {
	c := ChunkCoordOf(-1, 31, 32, 0)
	want := ChunkCoord{X: -1, Y: 0, Z: 1}
	if c != want {
		t.Fatalf("ChunkCoordOf = %v, want %v", c, want)
	}
}

func TestChunkSetBlockTracksNonAir(t *testing.T) {
	c := NewChunk(ChunkCoord{})
	if !c.IsEmpty() {
		t.Fatal("new chunk should be empty")
	}
	c.SetBlock(1, 2, 3, 5)
	if c.Block(1, 2, 3) != 5 || c.NonAirCount() != 1 {
		t.Fatalf("block not stored")
	}
	if c.SetBlock(1, 2, 3, 5) {
		t.Fatal("setting the same block should report no change")
	}
	c.SetBlock(1, 2, 3, BlockAir)
	if !c.IsEmpty() {
		t.Fatal("chunk should be empty again")
	}
}

func TestPackedLight(t *testing.T) {
	l := NewPackedLight(40, 7)
	if l.Sun() != MaxLight || l.Block() != 7 {
		t.Fatalf("got sun=%d block=%d", l.Sun(), l.Block())
	}
	sun, block := l.Normalized()
	if sun != 1 || block != float32(7)/MaxLight {
		t.Fatalf("normalized = %g %g", sun, block)
	}
}

func TestSetBlockMarksEdgeNeighbours(t *testing.T) {
	cs := NewChunkStore()
	center := NewChunk(ChunkCoord{})
	east := NewChunk(ChunkCoord{X: 1})
	cs.AddChunk(center)
	cs.AddChunk(east)

	type event struct {
		coord    ChunkCoord
		edgeOnly bool
	}
	var mu sync.Mutex
	var events []event
	cs.OnDirty(func(coord ChunkCoord, edgeOnly bool) {
		mu.Lock()
		events = append(events, event{coord, edgeOnly})
		mu.Unlock()
	})

	// Interior voxel: only the owner is dirtied.
	cs.SetBlock(5, 5, 5, 0, 1)
	if len(events) != 1 || events[0] != (event{ChunkCoord{}, false}) {
		t.Fatalf("interior edit events = %v", events)
	}

	events = nil
	cs.SetBlock(ChunkSize-1, 5, 5, 0, 1)
	if len(events) != 2 {
		t.Fatalf("border edit events = %v", events)
	}
	if events[1] != (event{ChunkCoord{X: 1}, true}) {
		t.Fatalf("neighbour should get an edge-only re-mesh, got %v", events[1])
	}
}

func TestUnloadFiresListeners(t *testing.T) {
	cs := NewChunkStore()
	c := NewChunk(ChunkCoord{Y: 2})
	cs.AddChunk(c)

	var got *Chunk
	cs.OnUnload(func(u *Chunk) { got = u })

	if !cs.UnloadChunk(c.Coord) {
		t.Fatal("UnloadChunk returned false")
	}
	if got != c || !c.IsUnloaded() {
		t.Fatal("unload listener not fired or chunk not flagged")
	}
	if cs.GetChunk(0, 2, 0, 0) != nil {
		t.Fatal("chunk still present")
	}
	if cs.UnloadChunk(c.Coord) {
		t.Fatal("second unload should report false")
	}
}

func TestReaderAcrossChunks(t *testing.T) {
	cs := NewChunkStore()
	cs.AddChunk(NewChunk(ChunkCoord{X: -1}))
	cs.SetBlock(-1, 0, 0, 0, 9)
	if got := cs.BlockID(-1, 0, 0, 0); got != 9 {
		t.Fatalf("BlockID = %d, want 9", got)
	}
	if got := cs.BlockID(100, 0, 0, 0); got != BlockAir {
		t.Fatalf("unloaded space should be air, got %d", got)
	}
	if got := cs.Light(100, 0, 0, 0); got != FullSunLight {
		t.Fatalf("unloaded light = %d", got)
	}
}

func TestEvictFarChunks(t *testing.T) {
	cs := NewChunkStore()
	for x := -3; x <= 3; x++ {
		cs.AddChunk(NewChunk(ChunkCoord{X: x}))
	}
	removed := cs.EvictFarChunks(ChunkCoord{}, 1)
	if removed != 4 || cs.Len() != 3 {
		t.Fatalf("removed=%d len=%d", removed, cs.Len())
	}
	near := cs.AppendChunksInRadius(ChunkCoord{}, 1, nil)
	if len(near) != 3 {
		t.Fatalf("AppendChunksInRadius = %d chunks", len(near))
	}
}

func TestStreamerMarksLoaded(t *testing.T) {
	cs := NewChunkStore()
	src := ChunkSourceFunc(func(c *Chunk) { c.SetBlock(0, 0, 0, 1) })
	st := NewChunkStreamer(cs, src, 0)
	defer st.Close()

	st.StreamAroundSync(mgl32.Vec3{1, 1, 1}, 1)
	c := cs.GetChunk(0, 0, 0, 0)
	if c == nil || !c.IsLoaded() || c.Block(0, 0, 0) != 1 {
		t.Fatalf("chunk not streamed in: %+v", c)
	}
	if cs.Len() != 7 {
		t.Fatalf("radius 1 should load 7 chunks, got %d", cs.Len())
	}
}
