package chunks

import (
	"fmt"
	"image/color"
	"io"
	"log/slog"
	"testing"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/atlas"
	"voxelclient/internal/gpu"
	"voxelclient/internal/graphics"
	renderer "voxelclient/internal/graphics/renderer"
	"voxelclient/internal/meshing"
	"voxelclient/internal/meshpool"
	"voxelclient/internal/registry"
	"voxelclient/internal/world"
)

func quietLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

type fakeShadows struct{ log []string }

func (s *fakeShadows) ViewProj(c Cascade) mgl32.Mat4 {
	return mgl32.Ortho(-64, 64, -64, 64, -256, 256)
}
func (s *fakeShadows) Begin(c Cascade)  { s.log = append(s.log, fmt.Sprintf("begin%d", c)) }
func (s *fakeShadows) End(c Cascade)    { s.log = append(s.log, fmt.Sprintf("end%d", c)) }
func (s *fakeShadows) TextureUnit() int { return 3 }

type fakeOIT struct{ log []string }

func (o *fakeOIT) BeginAccumulate() { o.log = append(o.log, "begin") }
func (o *fakeOIT) Composite()       { o.log = append(o.log, "composite") }

type rig struct {
	dev      *gpu.MemoryDevice
	pools    *meshpool.Manager
	programs map[string]*gpu.MemoryProgram
	atlas    *atlas.Atlas
	shadows  *fakeShadows
	oit      *fakeOIT
	liquid   *gpu.MemoryDepthTarget
	r        *ChunkRenderer
}

func newRig(t *testing.T, opts Options) *rig {
	t.Helper()
	rg := &rig{
		dev:      gpu.NewMemoryDevice(0),
		programs: make(map[string]*gpu.MemoryProgram),
		shadows:  &fakeShadows{},
		oit:      &fakeOIT{},
	}
	rg.liquid = rg.dev.NewDepthTarget("liquid-depth", 4)
	rg.pools = meshpool.NewManager(rg.dev, meshpool.PoolConfig{MaxVertices: 1024, MaxIndices: 1536, MaxFragments: 64}, 0, quietLogger())
	set := ProgramSet{}
	for _, name := range ProgramNames {
		p := rg.dev.NewProgram(name)
		rg.programs[name] = p
		set[name] = p
	}
	a, err := atlas.New(16, 32, 4, quietLogger())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := a.Register("stone", atlas.SolidTile(16, color.RGBA{128, 128, 128, 255})); err != nil {
		t.Fatal(err)
	}
	rg.atlas = a
	rg.r, err = NewChunkRenderer(rg.dev, rg.pools, set, a, DefaultAmbient, rg.shadows, rg.oit, opts, quietLogger())
	if err != nil {
		t.Fatalf("NewChunkRenderer: %v", err)
	}
	rg.r.SetLiquidDepthTarget(rg.liquid)
	if err := rg.r.Init(); err != nil {
		t.Fatalf("Init: %v", err)
	}
	return rg
}

func quad() *meshing.MeshData {
	m := meshing.NewMeshData(4)
	base := m.AddVertex(mgl32.Vec3{0, 1, 0}, 0, 1, 0xffffffff, 0)
	m.AddVertex(mgl32.Vec3{1, 1, 0}, 1, 1, 0xffffffff, 0)
	m.AddVertex(mgl32.Vec3{1, 1, 1}, 1, 0, 0xffffffff, 0)
	m.AddVertex(mgl32.Vec3{0, 1, 1}, 0, 0, 0xffffffff, 0)
	m.AddQuad(base, false)
	return m
}

func (rg *rig) allocate(t *testing.T, atlasIndex int, pass registry.RenderPass) {
	t.Helper()
	c := world.ChunkCoord{}
	sphere := meshing.BoundingSphere{Center: c.Center(), Radius: 28}
	key := meshpool.PoolKey{Atlas: atlasIndex, Pass: pass}
	if _, err := rg.pools.Allocate(key, c, meshing.PartCenter, meshing.LOD1, quad(), sphere); err != nil {
		t.Fatalf("allocate %v: %v", key, err)
	}
}

func (rg *rig) allocateAllPasses(t *testing.T) {
	for p := registry.RenderPass(0); p < registry.NumRenderPasses; p++ {
		rg.allocate(t, 0, p)
	}
}

func frameContext() renderer.RenderContext {
	cam := graphics.NewCamera(900, 600)
	cam.Position = mgl32.Vec3{16, 40, 80}
	cam.LookAt(mgl32.Vec3{16, 16, 16})
	return renderer.RenderContext{Camera: cam, View: cam.ViewMatrix(), Proj: cam.ProjectionMatrix(), Time: 2}
}

func TestPassOrder(t *testing.T) {
	rg := newRig(t, Options{Shadows: true})
	rg.allocateAllPasses(t)

	stats := rg.r.RenderFrame(frameContext())

	want := []struct {
		program string
		state   gpu.RenderState
	}{
		{ProgramLiquidDepth, stages[StageLiquidDepth].state},
		{ProgramShadow, shadowState}, {ProgramShadow, shadowState}, {ProgramShadow, shadowState}, {ProgramShadow, shadowState},
		{ProgramShadow, shadowState}, {ProgramShadow, shadowState}, {ProgramShadow, shadowState}, {ProgramShadow, shadowState},
		{ProgramOpaque, opaqueState},
		{ProgramTopSoil, opaqueState},
		{ProgramOpaque, stages[StageOpaqueNoCull].state},
		{ProgramOpaque, stages[StageBlendNoCull].state},
		{ProgramTransparent, stages[StageOIT].state},
		{ProgramLiquid, stages[StageOIT].state},
		{ProgramOpaque, opaqueState},
	}
	draws := rg.dev.Draws()
	if len(draws) != len(want) {
		t.Fatalf("draw calls = %d, want %d", len(draws), len(want))
	}
	for i, w := range want {
		if draws[i].Program != w.program || draws[i].State != w.state {
			t.Errorf("draw %d = %s %+v, want %s %+v", i, draws[i].Program, draws[i].State, w.program, w.state)
		}
	}

	if got := fmt.Sprint(rg.shadows.log); got != "[begin1 end1 begin0 end0]" {
		t.Errorf("shadow cascades = %s, want far then near", got)
	}
	if got := fmt.Sprint(rg.oit.log); got != "[begin composite]" {
		t.Errorf("oit calls = %s", got)
	}
	if stats.Total.DrawCalls != len(want) || stats.Total.Triangles != 2*len(want) {
		t.Errorf("stats = %+v", stats.Total)
	}
	if stats.Stages[StageShadowFar].DrawCalls != 4 {
		t.Errorf("far shadow draws = %d, want 4", stats.Stages[StageShadowFar].DrawCalls)
	}
}

func TestLiquidPrepassKeepsSceneDepth(t *testing.T) {
	rg := newRig(t, Options{Shadows: true})
	rg.allocateAllPasses(t)

	rg.r.RenderFrame(frameContext())

	sawOpaque := false
	for i, d := range rg.dev.Draws() {
		if d.Program == ProgramLiquidDepth {
			if d.Target != "liquid-depth" {
				t.Fatalf("draw %d: liquid depth written to target %q", i, d.Target)
			}
			if sawOpaque {
				t.Fatalf("draw %d: liquid depth prepass after the opaque stages", i)
			}
			continue
		}
		if d.Target != "" {
			t.Fatalf("draw %d: %s drawn into the liquid depth target", i, d.Program)
		}
		if d.Program == ProgramOpaque {
			sawOpaque = true
		}
		if d.Program == ProgramLiquid && d.State.DepthWrite {
			t.Fatalf("liquid shading writes scene depth")
		}
	}
	if !sawOpaque {
		t.Fatal("no opaque draw recorded")
	}

	var scopes []string
	for _, e := range rg.dev.Events() {
		if e.Kind == "target-begin" || e.Kind == "target-end" {
			scopes = append(scopes, e.Kind)
		}
	}
	if fmt.Sprint(scopes) != "[target-begin target-end]" {
		t.Fatalf("liquid target scopes = %v", scopes)
	}
	u := rg.programs[ProgramLiquid].Uniforms
	if u["uLiquidDepthOn"] != true || u["uLiquidDepth"] != int32(4) {
		t.Fatalf("liquid depth sampler uniforms = %v / %v", u["uLiquidDepthOn"], u["uLiquidDepth"])
	}
}

func TestNoLiquidTargetSkipsPrepass(t *testing.T) {
	rg := newRig(t, Options{})
	rg.r.SetLiquidDepthTarget(nil)
	rg.allocate(t, 0, registry.PassLiquid)

	stats := rg.r.RenderFrame(frameContext())

	if stats.Stages[StageLiquidDepth].DrawCalls != 0 {
		t.Fatalf("prepass drew %d calls without a target", stats.Stages[StageLiquidDepth].DrawCalls)
	}
	draws := rg.dev.Draws()
	if len(draws) != 1 || draws[0].Program != ProgramLiquid {
		t.Fatalf("draws = %+v, want only the liquid shading", draws)
	}
	if u := rg.programs[ProgramLiquid].Uniforms; u["uLiquidDepthOn"] != false {
		t.Fatalf("uLiquidDepthOn = %v", u["uLiquidDepthOn"])
	}
}

func TestShadowsDisabledSkipsShadowStages(t *testing.T) {
	rg := newRig(t, Options{Shadows: false})
	rg.allocateAllPasses(t)

	rg.r.RenderFrame(frameContext())

	for _, d := range rg.dev.Draws() {
		if d.Program == ProgramShadow {
			t.Fatalf("shadow pass drawn with shadows disabled")
		}
	}
	if len(rg.shadows.log) != 0 {
		t.Fatalf("shadow targets bound: %v", rg.shadows.log)
	}
	if v, ok := rg.programs[ProgramOpaque].Uniforms["uShadows"]; !ok || v != false {
		t.Fatalf("uShadows = %v", v)
	}
}

func TestAmbientUniforms(t *testing.T) {
	rg := newRig(t, Options{})
	rg.allocate(t, 0, registry.PassOpaque)
	ctx := frameContext()

	rg.r.RenderFrame(ctx)

	u := rg.programs[ProgramOpaque].Uniforms
	if u["uFogDensity"] != DefaultAmbient.FogDensity {
		t.Errorf("uFogDensity = %v", u["uFogDensity"])
	}
	if u["uTime"] != float32(2) {
		t.Errorf("uTime = %v", u["uTime"])
	}
	view := u["uView"].(mgl32.Mat4)
	if view[12] != 0 || view[13] != 0 || view[14] != 0 {
		t.Errorf("view matrix keeps the camera translation")
	}
	off := u["uOriginOffset"].(mgl32.Vec3)
	if want := ctx.Position().Mul(-1); !off.ApproxEqual(want) {
		t.Errorf("uOriginOffset = %v, want %v", off, want)
	}
}

func TestUniformBufferMode(t *testing.T) {
	rg := newRig(t, Options{UseUniformBuffer: true})
	rg.allocate(t, 0, registry.PassOpaque)

	rg.r.RenderFrame(frameContext())

	if n := len(rg.dev.UniformBlock(FrameBlockBinding)); n != FrameBlockSize {
		t.Fatalf("frame block = %d bytes, want %d", n, FrameBlockSize)
	}
	u := rg.programs[ProgramOpaque].Uniforms
	if _, ok := u["uFogColor"]; ok {
		t.Fatalf("loose fog uniform set in uniform buffer mode")
	}
	if u["uUseFrameBlock"] != true {
		t.Fatalf("uUseFrameBlock = %v", u["uUseFrameBlock"])
	}
}

func TestHotAddedAtlasIsUploadedAndDrawn(t *testing.T) {
	rg := newRig(t, Options{})
	rg.allocate(t, 0, registry.PassOpaque)
	if rg.dev.HasTexturePage(1) {
		t.Fatalf("page 1 exists before registering tiles")
	}

	// four tiles per page: the fifth opens page 1
	for i := 0; i < 4; i++ {
		if _, err := rg.atlas.Register(fmt.Sprintf("tile%d", i), atlas.SolidTile(16, color.RGBA{uint8(i), 0, 0, 255})); err != nil {
			t.Fatal(err)
		}
	}
	if rg.atlas.PageCount() != 2 {
		t.Fatalf("pages = %d, want 2", rg.atlas.PageCount())
	}
	rg.allocate(t, 1, registry.PassOpaque)

	rg.r.RenderFrame(frameContext())

	if !rg.dev.HasTexturePage(1) {
		t.Fatalf("new atlas page not uploaded")
	}
	var pages []int
	for _, d := range rg.dev.Draws() {
		pages = append(pages, d.Textures[AtlasTextureUnit])
	}
	if fmt.Sprint(pages) != "[0 1]" {
		t.Fatalf("atlas pages bound per draw = %v, want [0 1]", pages)
	}
}

func TestCulledChunksAreSkippedNextFrame(t *testing.T) {
	rg := newRig(t, Options{})
	rg.allocate(t, 0, registry.PassOpaque)

	// look away from the chunk
	ctx := frameContext()
	ctx.Camera.LookAt(mgl32.Vec3{16, 40, 500})
	ctx.View = ctx.Camera.ViewMatrix()

	rg.r.Cull(ctx)
	if s := rg.r.RenderFrame(ctx); s.Total.Fragments != 1 {
		t.Fatalf("culling applied before the buffers were swapped")
	}
	rg.pools.SwapVisibleBuffers()
	if s := rg.r.RenderFrame(ctx); s.Total.Fragments != 0 {
		t.Fatalf("culled chunk drawn: %+v", s.Total)
	}
}

func TestMissingProgram(t *testing.T) {
	dev := gpu.NewMemoryDevice(0)
	pools := meshpool.NewManager(dev, meshpool.PoolConfig{MaxVertices: 4, MaxIndices: 6, MaxFragments: 1}, 0, quietLogger())
	_, err := NewChunkRenderer(dev, pools, ProgramSet{}, nil, nil, nil, nil, Options{}, quietLogger())
	if err == nil {
		t.Fatal("expected an error for missing programs")
	}
}
