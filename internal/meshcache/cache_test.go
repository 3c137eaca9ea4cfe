package meshcache

import (
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/meshing"
	"voxelclient/internal/registry"
	"voxelclient/internal/world"
)

func newTestCache(t *testing.T, capacity int) *Cache {
	t.Helper()
	c, err := New(capacity, 2, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(c.Close)
	return c
}

func testMesh(x int) *meshing.TesselatedChunkMesh {
	m := meshing.NewTesselatedChunkMesh(world.ChunkCoord{X: x}, false)
	d := meshing.NewMeshData(4)
	base := d.AddVertex(mgl32.Vec3{0, 0, 0}, 0, 0, 0xFFFFFFFF, 4)
	d.AddVertex(mgl32.Vec3{1, 0, 0}, 1, 0, 0xFFFFFFFF, 4)
	d.AddVertex(mgl32.Vec3{1, 0, 1}, 1, 1, 0xFFFFFFFF, 4)
	d.AddVertexCustom(mgl32.Vec3{0, 0, 1}, 0, 1, 0xFFFFFFFF, 4, 0.5, -0.5)
	d.AddQuad(base, false)
	m.Center[meshing.MeshKey{Pass: registry.PassOpaque, LOD: meshing.LOD1}] = d
	return m
}

func TestPutGet(t *testing.T) {
	c := newTestCache(t, 4)
	want := testMesh(3)
	c.Put(42, want)
	c.Wait()

	got, ok := c.Get(42)
	if !ok {
		t.Fatal("expected a hit")
	}
	wantKey := meshing.MeshKey{Pass: registry.PassOpaque, LOD: meshing.LOD1}
	if got.Coord != want.Coord || !reflect.DeepEqual(got.Center[wantKey], want.Center[wantKey]) {
		t.Fatalf("cached mesh differs: %+v", got)
	}
	if _, ok := c.Get(7); ok {
		t.Fatal("unexpected hit")
	}
	s := c.Stats()
	if s.Hits != 1 || s.Misses != 1 || s.Entries != 1 || s.StoredBytes <= 0 {
		t.Fatalf("stats = %+v", s)
	}
}

func TestGetReturnsCopies(t *testing.T) {
	c := newTestCache(t, 4)
	c.Put(1, testMesh(0))
	c.Wait()
	a, _ := c.Get(1)
	for _, d := range a.Center {
		d.Indices = d.Indices[:0]
	}
	b, _ := c.Get(1)
	for _, d := range b.Center {
		if d.IndicesCount() != 6 {
			t.Fatal("mutating a result changed the cache")
		}
	}
}

func TestEvictsLeastRecentlyUsed(t *testing.T) {
	c := newTestCache(t, 2)
	c.Put(1, testMesh(1))
	c.Wait()
	c.Put(2, testMesh(2))
	c.Wait()
	if _, ok := c.Get(1); !ok { // 1 is now most recent
		t.Fatal("missing 1")
	}
	c.Put(3, testMesh(3))
	c.Wait()

	if c.Len() != 2 {
		t.Fatalf("Len = %d", c.Len())
	}
	if _, ok := c.Get(2); ok {
		t.Fatal("2 should have been evicted")
	}
	if _, ok := c.Get(1); !ok {
		t.Fatal("1 should have survived")
	}
}
