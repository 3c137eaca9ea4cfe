// Package chunks draws the chunk mesh pools in the fixed pass order.
package chunks

import (
	"encoding/binary"
	"fmt"
	"image"
	"log/slog"
	"math"
	"sync"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/gpu"
	renderer "voxelclient/internal/graphics/renderer"
	"voxelclient/internal/meshpool"
	"voxelclient/internal/profiling"
)

// Ambient is the per-frame lighting and fog state.
type Ambient struct {
	FogColor      mgl32.Vec3
	FogDensity    float32
	AmbientColor  mgl32.Vec3
	SunDirection  mgl32.Vec3
	SunBrightness float32
	WindStrength  float32
}

// AmbientProvider supplies the ambient state each frame.
type AmbientProvider interface {
	Ambient() Ambient
}

// StaticAmbient is an AmbientProvider that never changes.
type StaticAmbient Ambient

func (a StaticAmbient) Ambient() Ambient { return Ambient(a) }

// DefaultAmbient is a clear noon sky.
var DefaultAmbient = StaticAmbient{
	FogColor:      mgl32.Vec3{0.53, 0.81, 0.92},
	FogDensity:    0.004,
	AmbientColor:  mgl32.Vec3{1, 1, 1},
	SunDirection:  mgl32.Vec3{0.3, 1.0, 0.3}.Normalize(),
	SunBrightness: 1,
	WindStrength:  0.5,
}

// Cascade selects one of the two shadow maps.
type Cascade uint8

const (
	CascadeNear Cascade = iota
	CascadeFar
)

// ShadowMapProvider owns the shadow map targets.
type ShadowMapProvider interface {
	ViewProj(c Cascade) mgl32.Mat4
	// Begin binds the cascade's depth target, End restores the scene target.
	Begin(c Cascade)
	End(c Cascade)
	// TextureUnit is where both maps are bound for sampling (far at +1).
	TextureUnit() int
}

// LiquidDepthTarget is the depth target of the liquid prepass, kept apart
// from the scene depth so liquid never occludes the terrain below it.
type LiquidDepthTarget interface {
	// Begin binds and clears the target, End restores the scene target.
	Begin()
	End()
	// TextureUnit is where the liquid program samples the result.
	TextureUnit() int
}

// OITTarget accumulates order independent transparency.
type OITTarget interface {
	BeginAccumulate()
	Composite()
}

// ProgramSet maps program names to linked programs.
type ProgramSet map[string]gpu.Program

// TextureSource provides atlas pages. New pages may appear at runtime.
type TextureSource interface {
	PageCount() int
	Page(index int) *image.RGBA
}

// Options toggles renderer features.
type Options struct {
	UseUniformBuffer bool
	Shadows          bool
	Lod2Distance     float32
}

// FrameStats is what one RenderFrame submitted.
type FrameStats struct {
	Stages [NumStages]meshpool.RenderStats
	Total  meshpool.RenderStats
}

// uniform block binding and texture unit of the atlas
const (
	FrameBlockBinding = 0
	AtlasTextureUnit  = 0
)

// ChunkRenderer draws every pool each frame.
type ChunkRenderer struct {
	dev      gpu.Device
	pools    *meshpool.Manager
	programs ProgramSet
	textures TextureSource
	ambient  AmbientProvider
	shadows  ShadowMapProvider
	oit      OITTarget
	liquid   LiquidDepthTarget
	opts     Options
	logger   *slog.Logger

	pageMu   sync.Mutex
	uploaded int

	width, height int
	block         []byte
	stats         FrameStats
}

// NewChunkRenderer checks that every program is present. shadows and oit
// may be nil.
func NewChunkRenderer(dev gpu.Device, pools *meshpool.Manager, programs ProgramSet, textures TextureSource, ambient AmbientProvider, shadows ShadowMapProvider, oit OITTarget, opts Options, logger *slog.Logger) (*ChunkRenderer, error) {
	for _, name := range ProgramNames {
		if programs[name] == nil {
			return nil, fmt.Errorf("chunk renderer: missing program %q", name)
		}
	}
	if ambient == nil {
		ambient = DefaultAmbient
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &ChunkRenderer{
		dev:      dev,
		pools:    pools,
		programs: programs,
		textures: textures,
		ambient:  ambient,
		shadows:  shadows,
		oit:      oit,
		opts:     opts,
		logger:   logger,
	}, nil
}

// SetLiquidDepthTarget enables the liquid depth prepass. Without a target
// the prepass is skipped and liquids shade without it.
func (r *ChunkRenderer) SetLiquidDepthTarget(t LiquidDepthTarget) {
	r.liquid = t
}

// Init uploads the atlas pages that exist already.
func (r *ChunkRenderer) Init() error {
	return r.syncAtlases()
}

// syncAtlases uploads pages added since the last frame and tells the pool
// manager about them.
func (r *ChunkRenderer) syncAtlases() error {
	if r.textures == nil {
		return nil
	}
	r.pageMu.Lock()
	defer r.pageMu.Unlock()
	for n := r.textures.PageCount(); r.uploaded < n; r.uploaded++ {
		if err := r.dev.UploadTexturePage(r.uploaded, r.textures.Page(r.uploaded)); err != nil {
			return fmt.Errorf("upload atlas page %d: %w", r.uploaded, err)
		}
		r.pools.AddAtlas(r.uploaded)
		r.logger.Info("atlas page uploaded", "page", r.uploaded)
	}
	return nil
}

// Cull computes the visibility of the next frame for the camera and, when
// enabled, both shadow cascades.
func (r *ChunkRenderer) Cull(ctx renderer.RenderContext) {
	defer profiling.Track("chunks.Cull")()
	fc := r.pools.FrameContext()
	f := meshpool.ExtractFrustum(ctx.Proj.Mul4(ctx.View))
	r.pools.Cull(fc, &f, meshpool.CullFrustum)
	if r.shadowsOn() {
		near := meshpool.ExtractFrustum(r.shadows.ViewProj(CascadeNear))
		r.pools.Cull(fc, &near, meshpool.CullShadowNear)
		far := meshpool.ExtractFrustum(r.shadows.ViewProj(CascadeFar))
		r.pools.Cull(fc, &far, meshpool.CullShadowFar)
	}
}

func (r *ChunkRenderer) shadowsOn() bool {
	return r.opts.Shadows && r.shadows != nil
}

// Render implements renderer.Renderable.
func (r *ChunkRenderer) Render(ctx renderer.RenderContext) {
	r.RenderFrame(ctx)
}

// RenderFrame runs every stage in order.
func (r *ChunkRenderer) RenderFrame(ctx renderer.RenderContext) FrameStats {
	defer profiling.Track("chunks.RenderFrame")()
	if err := r.syncAtlases(); err != nil {
		r.logger.Error("atlas upload failed", "error", err)
	}

	r.stats = FrameStats{}
	fc := r.pools.FrameContext()
	amb := r.ambient.Ambient()
	camera := ctx.Position()

	// camera relative view, pools add their origin offset
	view := ctx.View
	view[12], view[13], view[14] = 0, 0, 0

	if r.opts.UseUniformBuffer {
		r.block = packFrameBlock(r.block[:0], ctx.Proj, view, amb, float32(ctx.Time))
		r.dev.UploadUniformBlock(FrameBlockBinding, r.block)
	}

	for s := Stage(0); s < NumStages; s++ {
		desc := &stages[s]
		cascade, isShadow := shadowCascade(s)
		if isShadow {
			if !r.shadowsOn() {
				continue
			}
			r.shadows.Begin(cascade)
		}
		if s == StageLiquidDepth {
			if r.liquid == nil {
				continue
			}
			r.liquid.Begin()
		}
		if s == StageOIT && r.oit != nil {
			r.oit.BeginAccumulate()
		}

		r.dev.SetState(desc.state)
		for _, step := range desc.steps {
			prog := r.programs[step.program]
			prog.Use()
			r.setUniforms(prog, s, ctx, view, amb)
			if isShadow {
				prog.SetMatrix4("uLightViewProj", r.shadows.ViewProj(cascade))
			}
			for _, pass := range step.passes {
				for atlas := 0; atlas < r.pools.AtlasCount(); atlas++ {
					key := meshpool.PoolKey{Atlas: atlas, Pass: pass}
					if !r.pools.HasPools(key) {
						continue
					}
					r.dev.BindTexturePage(AtlasTextureUnit, atlas)
					st := r.pools.Render(key, meshpool.RenderParams{
						Frame:        fc,
						Mode:         desc.cull,
						Camera:       camera,
						Lod2Distance: r.opts.Lod2Distance,
						Program:      prog,
					})
					addStats(&r.stats.Stages[s], st)
					addStats(&r.stats.Total, st)
				}
			}
		}

		if s == StageOIT && r.oit != nil {
			r.oit.Composite()
		}
		if isShadow {
			r.shadows.End(cascade)
		}
		if s == StageLiquidDepth {
			r.liquid.End()
		}
	}

	profiling.Add("chunks.Triangles", int64(r.stats.Total.Triangles))
	profiling.Add("chunks.DrawCalls", int64(r.stats.Total.DrawCalls))
	return r.stats
}

func shadowCascade(s Stage) (Cascade, bool) {
	switch s {
	case StageShadowNear:
		return CascadeNear, true
	case StageShadowFar:
		return CascadeFar, true
	}
	return 0, false
}

func (r *ChunkRenderer) setUniforms(prog gpu.Program, s Stage, ctx renderer.RenderContext, view mgl32.Mat4, amb Ambient) {
	prog.SetInt("uAtlas", AtlasTextureUnit)
	cam := ctx.Position()
	prog.SetVector3("uCameraPos", cam[0], cam[1], cam[2])
	prog.SetBool("uUseFrameBlock", r.opts.UseUniformBuffer)
	if !r.opts.UseUniformBuffer {
		prog.SetMatrix4("uProj", ctx.Proj)
		prog.SetMatrix4("uView", view)
		prog.SetVector3("uFogColor", amb.FogColor[0], amb.FogColor[1], amb.FogColor[2])
		prog.SetFloat("uFogDensity", amb.FogDensity)
		prog.SetVector3("uAmbientColor", amb.AmbientColor[0], amb.AmbientColor[1], amb.AmbientColor[2])
		prog.SetVector3("uSunDirection", amb.SunDirection[0], amb.SunDirection[1], amb.SunDirection[2])
		prog.SetFloat("uSunBrightness", amb.SunBrightness)
		prog.SetFloat("uWindStrength", amb.WindStrength)
		prog.SetFloat("uTime", float32(ctx.Time))
	}

	if _, isShadow := shadowCascade(s); isShadow || s == StageLiquidDepth {
		return
	}
	if s == StageOIT {
		prog.SetBool("uLiquidDepthOn", r.liquid != nil)
		if r.liquid != nil {
			prog.SetInt("uLiquidDepth", int32(r.liquid.TextureUnit()))
		}
	}
	shadows := r.shadowsOn()
	prog.SetBool("uShadows", shadows)
	if shadows {
		unit := r.shadows.TextureUnit()
		prog.SetMatrix4("uShadowNear", r.shadows.ViewProj(CascadeNear))
		prog.SetMatrix4("uShadowFar", r.shadows.ViewProj(CascadeFar))
		prog.SetInt("uShadowMapNear", int32(unit))
		prog.SetInt("uShadowMapFar", int32(unit+1))
	}
}

func addStats(dst *meshpool.RenderStats, s meshpool.RenderStats) {
	dst.DrawCalls += s.DrawCalls
	dst.Fragments += s.Fragments
	dst.Vertices += s.Vertices
	dst.Triangles += s.Triangles
}

// FrameBlockSize is the std140 size of the frame uniform block.
const FrameBlockSize = 2*64 + 4*16

// packFrameBlock lays out:
//
//	mat4 proj; mat4 view;
//	vec4 fogColor (w = density); vec4 ambientColor (w = time);
//	vec4 sunDirection (w = brightness); vec4 wind (x = strength).
func packFrameBlock(dst []byte, proj, view mgl32.Mat4, amb Ambient, t float32) []byte {
	le := binary.LittleEndian
	f := func(v float32) { dst = le.AppendUint32(dst, math.Float32bits(v)) }
	for _, v := range proj {
		f(v)
	}
	for _, v := range view {
		f(v)
	}
	f(amb.FogColor[0])
	f(amb.FogColor[1])
	f(amb.FogColor[2])
	f(amb.FogDensity)
	f(amb.AmbientColor[0])
	f(amb.AmbientColor[1])
	f(amb.AmbientColor[2])
	f(t)
	f(amb.SunDirection[0])
	f(amb.SunDirection[1])
	f(amb.SunDirection[2])
	f(amb.SunBrightness)
	f(amb.WindStrength)
	f(0)
	f(0)
	f(0)
	return dst
}

// Stats returns the statistics of the last frame.
func (r *ChunkRenderer) Stats() FrameStats { return r.stats }

// SetViewport implements renderer.Renderable.
func (r *ChunkRenderer) SetViewport(width, height int) {
	r.width, r.height = width, height
}

// Dispose releases every pool.
func (r *ChunkRenderer) Dispose() {
	r.pools.Dispose()
}
