package meshing

import (
	"errors"
	"image/color"
	"io"
	"log/slog"
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/atlas"
	"voxelclient/internal/registry"
	"voxelclient/internal/world"
	"voxelclient/pkg/blockmodel"
)

const (
	idStone world.BlockID = iota + 1
	idGlass
	idWater
	idShallowWater
	idTorch
	idFlower
	idFence
	idPainting
	idMossy
	idCarpet
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func post(from, to float32, tex string) blockmodel.Element {
	faces := make(map[string]blockmodel.Face)
	for _, f := range []string{"north", "east", "south", "west", "up", "down"} {
		faces[f] = blockmodel.Face{Texture: tex}
	}
	return blockmodel.Element{From: [3]float32{from, 0, from}, To: [3]float32{to, 12, to}, Faces: faces}
}

func testRegistry(t testing.TB) *registry.Registry {
	t.Helper()
	reg := registry.New()
	water := registry.AllFaces("water_flow")
	water[world.FaceUp] = "water_still"
	carpet := post(0, 16, "wool")
	carpet.To[1] = 0
	defs := []*registry.BlockDefinition{
		{ID: idStone, Name: "stone", DrawType: registry.DrawCube, Pass: registry.PassOpaque, Textures: registry.AllFaces("stone"), Opaque: true, LightAbsorption: 32},
		{ID: idGlass, Name: "glass", DrawType: registry.DrawCube, Pass: registry.PassTransparent, Textures: registry.AllFaces("glass")},
		{ID: idWater, Name: "water", DrawType: registry.DrawLiquid, Pass: registry.PassLiquid, Textures: water, LiquidCode: "water", LiquidLevel: 7, Wind: registry.WindWater},
		{ID: idShallowWater, Name: "water_3", DrawType: registry.DrawLiquid, Pass: registry.PassLiquid, Textures: water, LiquidCode: "water", LiquidLevel: 3},
		{ID: idTorch, Name: "torch", DrawType: registry.DrawJSON, Pass: registry.PassOpaqueNoCull, Elements: []blockmodel.Element{post(7, 9, "torch")}},
		{ID: idFlower, Name: "flower", DrawType: registry.DrawJSON, Pass: registry.PassOpaqueNoCull, Elements: []blockmodel.Element{post(6, 10, "torch")}, AlwaysFullDetail: true},
		{ID: idFence, Name: "fence", DrawType: registry.DrawJSON, Pass: registry.PassOpaque, Elements: []blockmodel.Element{post(6, 10, "stone")}, DoNotRenderAtLod2: true},
		{ID: idPainting, Name: "painting", DrawType: registry.DrawDecal, Pass: registry.PassOpaqueNoCull,
			Decal: &registry.DecalInfo{Texture: "painting", Facing: world.FaceNorth, Width: 2, Height: 1, Inset: 0.05, Overhang: 0.1}},
		{ID: idMossy, Name: "mossy", DrawType: registry.DrawCube, Pass: registry.PassOpaque, Opaque: true,
			Textures: registry.AllFaces("stone"), Variants: []registry.FaceTextures{registry.AllFaces("glass")}, RandomRotation: true},
		{ID: idCarpet, Name: "carpet", DrawType: registry.DrawJSON, Pass: registry.PassOpaque, Elements: []blockmodel.Element{carpet}},
	}
	for _, d := range defs {
		if err := reg.Register(d); err != nil {
			t.Fatal(err)
		}
	}
	return reg
}

func testAtlas(t testing.TB) *atlas.Atlas {
	t.Helper()
	a, err := atlas.New(16, 64, 2, discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	for _, name := range []string{"stone", "glass", "water_still", "water_flow", "torch", "painting", "wool"} {
		if _, err := a.Register(name, atlas.SolidTile(16, color.RGBA{100, 100, 100, 255})); err != nil {
			t.Fatal(err)
		}
	}
	return a
}

type rig struct {
	store *world.ChunkStore
	tess  *ChunkTesselator
	set   *MesherSet
}

func newRig(t testing.TB) *rig {
	t.Helper()
	set, err := NewMesherSet(testRegistry(t), testAtlas(t), NewFaceGeometryTables(), discardLogger())
	if err != nil {
		t.Fatal(err)
	}
	store := world.NewChunkStore()
	return &rig{store: store, set: set, tess: NewChunkTesselator(store, set, DefaultLightParams(), discardLogger())}
}

func (r *rig) chunk(cx, cy, cz int) *world.Chunk {
	coord := world.ChunkCoord{X: cx, Y: cy, Z: cz}
	if c := r.store.Chunk(coord); c != nil {
		return c
	}
	c := world.NewChunk(coord)
	c.MarkLoaded()
	r.store.AddChunk(c)
	return c
}

func (r *rig) set3(x, y, z int, id world.BlockID) {
	cc := world.ChunkCoordOf(x, y, z, 0)
	r.chunk(cc.X, cc.Y, cc.Z).SetBlock(x&world.ChunkMask, y&world.ChunkMask, z&world.ChunkMask, id)
}

func (r *rig) mesh(t *testing.T, edgeOnly bool) *TesselatedChunkMesh {
	t.Helper()
	r.chunk(0, 0, 0)
	m, err := r.tess.Tesselate(world.ChunkCoord{}, edgeOnly)
	if err != nil {
		t.Fatal(err)
	}
	for _, part := range []map[MeshKey]*MeshData{m.Center, m.Edge} {
		for k, d := range part {
			if err := d.Validate(); err != nil {
				t.Fatalf("%s: %v", k, err)
			}
		}
	}
	return m
}

func quads(part map[MeshKey]*MeshData, pass registry.RenderPass) int {
	n := 0
	for k, d := range part {
		if k.Pass == pass {
			n += d.IndicesCount() / 6
		}
	}
	return n
}

func TestNeighborIndex(t *testing.T) {
	for dz := -1; dz <= 1; dz++ {
		for dy := -1; dy <= 1; dy++ {
			for dx := -1; dx <= 1; dx++ {
				x, y, z := NeighborIndex(dx, dy, dz).Offset()
				if x != dx || y != dy || z != dz {
					t.Fatalf("offset of %d,%d,%d = %d,%d,%d", dx, dy, dz, x, y, z)
				}
			}
		}
	}
	if NeighborIndex(0, 0, 0) != CenterNeighbor {
		t.Fatal("center index")
	}
}

func TestFaceTables(t *testing.T) {
	tables := NewFaceGeometryTables()
	nb := tables.Neighbors[world.FaceUp][0] // corner (0,1,0)
	want := CornerNeighbors{
		Front:    NeighborIndex(0, 1, 0),
		Side1:    NeighborIndex(-1, 1, 0),
		Side2:    NeighborIndex(0, 1, -1),
		Diagonal: NeighborIndex(-1, 1, -1),
	}
	if nb != want {
		t.Fatalf("up corner neighbours = %+v, want %+v", nb, want)
	}

	if got := tables.RotateFaceY[1][world.FaceNorth]; got != world.FaceEast {
		t.Fatalf("north turned once = %s", got)
	}
	p := tables.RotationsY[1].Mul4x1(mgl32.Vec4{0.5, 0.5, 0, 1}).Vec3()
	if !p.ApproxEqual(mgl32.Vec3{1, 0.5, 0.5}) {
		t.Fatalf("north face centre turned once = %v", p)
	}

	// every face winds counter-clockwise seen from outside
	for f := world.BlockFace(0); f < world.NumFaces; f++ {
		c := tables.Corners[f]
		n := c[1].Sub(c[0]).Cross(c[2].Sub(c[0]))
		if n.Dot(tables.Normals[f]) <= 0 {
			t.Errorf("face %s winds clockwise", f)
		}
	}
}

func TestSingleCube(t *testing.T) {
	r := newRig(t)
	r.set3(5, 5, 5, idStone)
	m := r.mesh(t, false)
	if len(m.Edge) != 0 {
		t.Fatal("interior voxel must not produce edge geometry")
	}
	d := m.Center[MeshKey{Atlas: 0, Pass: registry.PassOpaque, LOD: LOD1}]
	if d == nil || d.VerticesCount() != 24 || d.IndicesCount() != 36 {
		t.Fatalf("single cube mesh = %+v", d)
	}
	if m.VertexCount != 24 {
		t.Fatalf("VertexCount = %d", m.VertexCount)
	}
	wantCenter := mgl32.Vec3{5.5, 5.5, 5.5}
	if !m.Sphere.Center.ApproxEqual(wantCenter) || m.Sphere.Radius < 0.86 || m.Sphere.Radius > 0.87 {
		t.Fatalf("sphere = %+v", m.Sphere)
	}
}

func TestFaceCulling(t *testing.T) {
	tests := []struct {
		name        string
		a, b        world.BlockID
		opaque      int
		transparent int
	}{
		{"stone-stone", idStone, idStone, 10, 0},
		{"stone-glass", idStone, idGlass, 6, 5},
		{"glass-glass", idGlass, idGlass, 0, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			r.set3(4, 4, 4, tt.a)
			r.set3(5, 4, 4, tt.b)
			m := r.mesh(t, false)
			if got := quads(m.Center, registry.PassOpaque); got != tt.opaque {
				t.Errorf("opaque quads = %d, want %d", got, tt.opaque)
			}
			if got := quads(m.Center, registry.PassTransparent); got != tt.transparent {
				t.Errorf("transparent quads = %d, want %d", got, tt.transparent)
			}
		})
	}
}

func TestCrossChunkCulling(t *testing.T) {
	r := newRig(t)
	r.set3(world.ChunkSize-1, 0, 0, idStone)
	r.set3(world.ChunkSize, 0, 0, idStone)
	m := r.mesh(t, false)
	if got := quads(m.Edge, registry.PassOpaque); got != 5 {
		t.Fatalf("edge quads = %d, want 5", got)
	}
	if len(m.Center) != 0 {
		t.Fatal("border voxel geometry belongs to the edge part")
	}
}

func TestEdgeOnlySkipsInterior(t *testing.T) {
	r := newRig(t)
	r.set3(0, 3, 3, idStone)
	r.set3(10, 10, 10, idStone)
	m := r.mesh(t, true)
	if !m.EdgeOnly || len(m.Center) != 0 {
		t.Fatal("edge-only pass produced center geometry")
	}
	if got := quads(m.Edge, registry.PassOpaque); got != 6 {
		t.Fatalf("edge quads = %d, want 6", got)
	}
}

func uniformContext(t *testing.T, set *MesherSet, light world.PackedLight) *TesselationContext {
	t.Helper()
	ctx := &TesselationContext{Tables: set.Tables, Params: DefaultLightParams()}
	ctx.reset()
	ctx.Block = set.Def(idStone)
	for i := range ctx.Neighbors {
		ctx.Neighbors[i] = set.Def(world.BlockAir)
		ctx.Light[i] = light
	}
	return ctx
}

func TestAOMonotonicity(t *testing.T) {
	set := newRig(t).set
	light := world.NewPackedLight(world.MaxLight, 10)
	nb := set.Tables.Neighbors[world.FaceUp][0]

	open := uniformContext(t, set, light).cornerLight(nb)
	if open.AO != 0 {
		t.Fatalf("open corner AO = %d", open.AO)
	}

	prev := open.Brightness()
	occluders := []CornerNeighborIndex{nb.Diagonal, nb.Side1, nb.Side2}
	for n := 1; n <= 3; n++ {
		ctx := uniformContext(t, set, light)
		for _, i := range occluders[:n] {
			ctx.Neighbors[i] = set.Def(idStone)
		}
		l := ctx.cornerLight(nb)
		if l.AO != uint8(n) {
			t.Fatalf("%d occluders: AO level %d", n, l.AO)
		}
		if l.Brightness() > prev {
			t.Fatalf("%d occluders brighter than %d: %v > %v", n, n-1, l.Brightness(), prev)
		}
		prev = l.Brightness()
	}
	if prev >= open.Brightness() {
		t.Fatal("fully occluded corner must be darker than an open one")
	}
}

func TestAOStrengthConfigurable(t *testing.T) {
	set := newRig(t).set
	nb := set.Tables.Neighbors[world.FaceUp][0]
	ctx := uniformContext(t, set, world.FullSunLight)
	ctx.Neighbors[nb.Side1] = set.Def(idStone)
	ctx.Neighbors[nb.Side2] = set.Def(idStone)
	ctx.Params.AOStrength = 0
	if l := ctx.cornerLight(nb); l.Sun != 1 {
		t.Fatalf("zero AO strength should not darken, got %v", l.Sun)
	}
}

func TestRemeshIsDeterministic(t *testing.T) {
	r := newRig(t)
	for x := 0; x < world.ChunkSize; x += 3 {
		for z := 0; z < world.ChunkSize; z += 2 {
			r.set3(x, 1, z, idMossy)
			r.set3(x, 2, z, idTorch)
		}
	}
	r.set3(8, 8, 8, idWater)
	a := r.mesh(t, false)
	b := r.mesh(t, false)
	if !reflect.DeepEqual(a, b) {
		t.Fatal("meshing the same chunk twice gave different output")
	}
}

func TestPositionVariantsDiffer(t *testing.T) {
	seen := map[int]bool{}
	for x := 0; x < 64; x++ {
		seen[VariantIndex(PositionHash(x, 0, 0), 2)] = true
	}
	if len(seen) != 2 {
		t.Fatal("position hash never picks the second variant")
	}
	if PositionHash(1, 2, 3) != PositionHash(1, 2, 3) {
		t.Fatal("position hash is not reproducible")
	}
}

func liquidContext(t *testing.T, set *MesherSet) *TesselationContext {
	t.Helper()
	ctx := uniformContext(t, set, world.FullSunLight)
	ctx.Block = set.Def(idWater)
	ctx.Neighbors[CenterNeighbor] = ctx.Block
	for _, d := range [][2]int{{1, 0}, {-1, 0}, {0, 1}, {0, -1}} {
		ctx.Neighbors[NeighborIndex(d[0], 0, d[1])] = set.Def(idWater)
	}
	return ctx
}

func TestLiquidHeightMonotonicity(t *testing.T) {
	set := newRig(t).set
	lm := set.Mesher(idWater).(*LiquidMesher)

	ctx := liquidContext(t, set)
	flat := lm.CornerHeights(ctx)
	for i, h := range flat {
		if h != 1 {
			t.Fatalf("corner %d height %v, want 1", i, h)
		}
	}
	if fx, fz := lm.Flow(flat); fx != 0 || fz != 0 {
		t.Fatalf("flat surface flows (%v,%v)", fx, fz)
	}

	ctx.Neighbors[NeighborIndex(1, 0, 0)] = set.Def(idShallowWater) // east
	h := lm.CornerHeights(ctx)
	if h[cornerNE] >= 1 || h[cornerSE] >= 1 {
		t.Fatalf("east corners not lowered: %v", h)
	}
	if h[cornerNW] != 1 || h[cornerSW] != 1 {
		t.Fatalf("west corners changed: %v", h)
	}
	if fx, _ := lm.Flow(h); fx <= 0 {
		t.Fatalf("flow should run east, got %v", fx)
	}
}

func TestLiquidEmitsFlowAndTop(t *testing.T) {
	r := newRig(t)
	r.set3(4, 4, 4, idWater)
	r.set3(5, 4, 4, idShallowWater)
	m := r.mesh(t, false)
	d := m.Center[MeshKey{Atlas: 0, Pass: registry.PassLiquid, LOD: LOD1}]
	if d == nil {
		t.Fatal("no liquid mesh")
	}
	var flowing bool
	for i := 0; i < d.VerticesCount(); i++ {
		if d.Custom[i*2] != 0 {
			flowing = true
		}
	}
	if !flowing {
		t.Fatal("no vertex carries a flow vector")
	}
	// shared face between the two water blocks is culled: 5 + 5 faces
	if got := quads(m.Center, registry.PassLiquid); got != 10 {
		t.Fatalf("liquid quads = %d, want 10", got)
	}
}

func lods(part map[MeshKey]*MeshData) map[LODLevel]bool {
	out := map[LODLevel]bool{}
	for k := range part {
		out[k.LOD] = true
	}
	return out
}

func TestLODFallback(t *testing.T) {
	tests := []struct {
		name string
		id   world.BlockID
		want map[LODLevel]bool
	}{
		{"cheap far variant", idTorch, map[LODLevel]bool{LOD0: true, LOD2: true}},
		{"always full detail", idFlower, map[LODLevel]bool{LOD1: true}},
		{"hidden far away", idFence, map[LODLevel]bool{LOD0: true}},
		{"cube", idStone, map[LODLevel]bool{LOD1: true}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := newRig(t)
			r.set3(3, 3, 3, tt.id)
			got := lods(r.mesh(t, false).Center)
			if !reflect.DeepEqual(got, tt.want) {
				t.Fatalf("lod bands = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestDegenerateCuboid(t *testing.T) {
	tables := NewFaceGeometryTables()
	d := NewMeshData(0)
	err := CuboidMesh(d, tables, mgl32.Vec3{0, 0, 0}, mgl32.Vec3{1, 0, 1}, 0x3F, atlas.TexturePos{U2: 1, V2: 1},
		func(world.BlockFace) (uint32, uint32) { return 0, 0 })
	if !errors.Is(err, ErrDegenerateCuboid) {
		t.Fatalf("err = %v", err)
	}
	if d.VerticesCount() != 0 {
		t.Fatal("degenerate cuboid appended vertices")
	}

	if err := CuboidMesh(d, tables, mgl32.Vec3{}, mgl32.Vec3{1, 1, 1}, 0x3F, atlas.TexturePos{U2: 1, V2: 1},
		func(world.BlockFace) (uint32, uint32) { return 0, 0 }); err != nil {
		t.Fatal(err)
	}
	if d.IndicesCount() != 36 {
		t.Fatalf("cuboid indices = %d", d.IndicesCount())
	}

	// a flat shape cannot get a box stand-in and is drawn at every distance
	r := newRig(t)
	r.set3(3, 3, 3, idCarpet)
	if got := lods(r.mesh(t, false).Center); !reflect.DeepEqual(got, map[LODLevel]bool{LOD1: true}) {
		t.Fatalf("flat shape lods = %v", got)
	}
}

func TestEmptyChunk(t *testing.T) {
	r := newRig(t)
	m := r.mesh(t, false)
	if !m.IsEmpty() || m.VertexCount != 0 {
		t.Fatal("empty chunk produced geometry")
	}
}

func TestChunkNotReady(t *testing.T) {
	r := newRig(t)
	if _, err := r.tess.Tesselate(world.ChunkCoord{X: 9}, false); !errors.Is(err, ErrChunkNotLoaded) {
		t.Fatalf("missing chunk: %v", err)
	}
	c := world.NewChunk(world.ChunkCoord{X: 2})
	r.store.AddChunk(c)
	if _, err := r.tess.Tesselate(c.Coord, false); !errors.Is(err, ErrNotLoadedFromServer) {
		t.Fatalf("pending chunk: %v", err)
	}
}

func TestCustomHookFailureIsContained(t *testing.T) {
	r := newRig(t)
	r.set3(3, 3, 3, idStone)
	r.set3(6, 6, 6, idStone)
	r.tess.RegisterCustom(idStone, CustomTesselatorFunc(func(ctx *TesselationContext, out *MeshAccumulator) error {
		d := out.Mesh(MeshKey{Pass: registry.PassMeta, LOD: LOD1})
		base := d.AddVertex(mgl32.Vec3{}, 0, 0, 0, 0)
		d.AddVertex(mgl32.Vec3{1, 0, 0}, 0, 0, 0, 0)
		d.AddVertex(mgl32.Vec3{1, 1, 0}, 0, 0, 0, 0)
		d.AddVertex(mgl32.Vec3{0, 1, 0}, 0, 0, 0, 0)
		d.AddQuad(base, false)
		if ctx.X == 3 {
			panic("corrupt block entity")
		}
		return nil
	}))
	m := r.mesh(t, false)
	if got := quads(m.Center, registry.PassOpaque); got != 12 {
		t.Fatalf("cube quads = %d, want 12", got)
	}
	if got := quads(m.Center, registry.PassMeta); got != 1 {
		t.Fatalf("hook quads = %d, want 1 (the panicking voxel adds nothing)", got)
	}
}

func TestDecalCropsAtSolidNeighbour(t *testing.T) {
	r := newRig(t)
	// painting hangs on the south block, facing north
	r.set3(4, 4, 4, idPainting)
	r.set3(4, 4, 5, idStone)
	r.set3(5, 4, 4, idStone) // east side solid, crop there
	m := r.mesh(t, false)
	d := m.Center[MeshKey{Atlas: 0, Pass: registry.PassOpaqueNoCull, LOD: LOD1}]
	if d == nil || d.VerticesCount() != 4 {
		t.Fatalf("decal mesh = %+v", d)
	}
	minX, maxX := float32(100), float32(-100)
	for i := 0; i < 4; i++ {
		x, z := d.XYZ[i*3], d.XYZ[i*3+2]
		minX, maxX = min(minX, x), max(maxX, x)
		if z < 4.9499 || z > 4.9501 {
			t.Fatalf("decal plane z = %v, want 4.95", z)
		}
	}
	if maxX != 5 {
		t.Fatalf("decal bleeds into the solid east neighbour: max x %v", maxX)
	}
	if minX >= 4 {
		t.Fatalf("decal should overhang to the open west side: min x %v", minX)
	}
}

func TestMeshEncodingRoundTrip(t *testing.T) {
	r := newRig(t)
	r.set3(0, 0, 0, idStone)
	r.set3(7, 7, 7, idTorch)
	m := r.mesh(t, false)
	b, err := m.MarshalBinary()
	if err != nil {
		t.Fatal(err)
	}
	var back TesselatedChunkMesh
	if err := back.UnmarshalBinary(b); err != nil {
		t.Fatal(err)
	}
	if !reflect.DeepEqual(m, &back) {
		t.Fatal("decoded mesh differs")
	}
	if err := back.UnmarshalBinary(b[:len(b)-3]); err == nil {
		t.Fatal("truncated encoding accepted")
	}
}

func TestMeshDataValidate(t *testing.T) {
	d := NewMeshData(4)
	d.AddVertex(mgl32.Vec3{}, 0, 0, 0, 0)
	d.Indices = append(d.Indices, 0, 0, 1)
	if d.Validate() == nil {
		t.Fatal("out of range index accepted")
	}
	d.Truncate(1, 0)
	if err := d.Validate(); err != nil {
		t.Fatal(err)
	}
}

func TestPackFlags(t *testing.T) {
	f := PackFlags(world.FaceWest, 2, registry.WindGrass, 200)
	face, ao, wind, glow := UnpackFlags(f)
	if face != world.FaceWest || ao != 2 || wind != registry.WindGrass || glow != 200 {
		t.Fatalf("unpacked %v %v %v %v", face, ao, wind, glow)
	}
}

func BenchmarkTesselateSurface(b *testing.B) {
	r := newRig(b)
	for x := 0; x < world.ChunkSize; x++ {
		for z := 0; z < world.ChunkSize; z++ {
			for y := 0; y < 8; y++ {
				r.set3(x, y, z, idStone)
			}
		}
	}
	b.ResetTimer()
	for i := 0; i < b.N; i++ {
		if _, err := r.tess.Tesselate(world.ChunkCoord{}, false); err != nil {
			b.Fatal(err)
		}
	}
}
