// Command chunkview streams a generated scene through the chunk pipeline and
// draws it, either in a window or into a recording device with -headless.
package main

import (
	"context"
	"flag"
	"io/fs"
	"log/slog"
	"math"
	"os"
	"runtime"
	"time"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/xlab/closer"

	"voxelclient/internal/config"
	"voxelclient/internal/graphics"
	"voxelclient/internal/graphics/renderables/chunks"
	"voxelclient/internal/graphics/renderer"
	"voxelclient/internal/meshcache"
	"voxelclient/internal/meshing"
	"voxelclient/internal/meshpool"
	"voxelclient/internal/profiling"
	"voxelclient/internal/scheduler"
	"voxelclient/internal/world"
	"voxelclient/pkg/blockmodel"
)

func init() {
	runtime.LockOSThread()
}

type options struct {
	configPath  string
	logLevel    string
	assets      string
	headless    bool
	frames      int
	fps         int
	memoryLimit int
	lodBias     float64
}

func main() {
	defer closer.Close()

	settings := config.DefaultSettings()
	var opts options
	flag.StringVar(&opts.configPath, "config", "", "settings JSON file")
	flag.StringVar(&opts.logLevel, "log-level", "info", "log level: debug, info, warn or error")
	flag.StringVar(&opts.assets, "assets", "", "directory holding textures/ and models/")
	flag.BoolVar(&opts.headless, "headless", false, "record draws in memory instead of opening a window")
	flag.IntVar(&opts.frames, "frames", 600, "frames to run with -headless")
	flag.IntVar(&opts.fps, "fps", 120, "frame rate cap of the window, 0 for none")
	flag.IntVar(&opts.memoryLimit, "memory-limit", 0, "device memory limit in bytes with -headless, 0 for none")
	flag.IntVar(&settings.ViewDistance, "view-distance", settings.ViewDistance, "view distance in chunks")
	flag.IntVar(&settings.VerticesPerUploadDivisor, "vertex-divisor", settings.VerticesPerUploadDivisor, "divides the per tick vertex budget")
	flag.Float64Var(&opts.lodBias, "lod-bias", float64(settings.LODBias), "scales the far detail distance")
	flag.BoolVar(&settings.UseUniformBuffer, "ubo", settings.UseUniformBuffer, "pass frame uniforms in a uniform block")
	flag.BoolVar(&settings.ShadowsEnabled, "shadows", settings.ShadowsEnabled, "draw the shadow cascades")
	flag.Parse()
	settings.LODBias = float32(opts.lodBias)

	var level slog.Level
	if err := level.UnmarshalText([]byte(opts.logLevel)); err != nil {
		level = slog.LevelInfo
	}
	logger := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: level}))
	slog.SetDefault(logger)

	if opts.configPath != "" {
		fromFile, err := config.Load(opts.configPath)
		if err != nil {
			closer.Fatalln(err)
		}
		explicit := make(map[string]bool)
		flag.Visit(func(f *flag.Flag) { explicit[f.Name] = true })
		config.Merge(settings, fromFile, explicit)
	}
	if err := config.Update(*settings); err != nil {
		closer.Fatalln("invalid settings:", err)
	}
	logger.Info("settings loaded",
		"view_distance", settings.ViewDistance,
		"vertex_budget", settings.VertexBudget(),
		"ubo", settings.UseUniformBuffer,
		"shadows", settings.ShadowsEnabled)

	var be *backend
	if opts.headless {
		be = openHeadless(opts.memoryLimit)
	} else {
		var err error
		if be, err = openWindow(logger); err != nil {
			closer.Fatalln(err)
		}
	}

	v, err := newViewer(settings, be, opts, logger)
	if err != nil {
		be.release()
		closer.Fatalln(err)
	}
	closer.Bind(v.stopWorkers)
	v.run()
	v.releaseGPU()
}

// viewer owns the pipeline from streamed chunks to pooled draws.
type viewer struct {
	settings *config.Settings
	opts     options
	logger   *slog.Logger
	be       *backend

	store    *world.ChunkStore
	streamer *world.ChunkStreamer
	cache    *meshcache.Cache
	meshing  *scheduler.MeshingScheduler
	uploader *scheduler.UploadScheduler
	pools    *meshpool.Manager
	chunks   *chunks.ChunkRenderer
	renderer *renderer.Renderer
	camera   *graphics.Camera
	cancel   context.CancelFunc
}

func newViewer(s *config.Settings, be *backend, opts options, logger *slog.Logger) (*viewer, error) {
	reg, err := demoRegistry()
	if err != nil {
		return nil, err
	}
	var assets fs.FS
	if opts.assets != "" {
		assets = os.DirFS(opts.assets)
		if err := reg.LoadShapes(blockmodel.NewLoader(assets), logger); err != nil {
			logger.Warn("some block shapes failed to load", "error", err)
		}
	}
	textures, err := demoAtlas(assets, logger)
	if err != nil {
		return nil, err
	}
	set, err := meshing.NewMesherSet(reg, textures, meshing.NewFaceGeometryTables(), logger)
	if err != nil {
		return nil, err
	}

	v := &viewer{settings: s, opts: opts, logger: logger, be: be}
	v.store = world.NewChunkStore()
	v.store.SetClimateFunc(demoClimate)

	tess := meshing.NewChunkTesselator(v.store, set, meshing.LightParams{
		AOStrength:      s.AOStrength,
		AbsorptionScale: s.LightAbsorptionScale,
	}, logger)
	if v.cache, err = meshcache.New(s.MeshCacheEntries, s.MeshCacheWorkers, logger); err != nil {
		return nil, err
	}
	tess.SetCache(v.cache)

	v.meshing = scheduler.NewMeshingScheduler(tess, v.store, scheduler.MeshingOptions{
		VertexBudget:  s.VertexBudget(),
		LastQuota:     s.LastQueueQuota,
		QueueCapacity: s.QueueCapacity,
		TickInterval:  time.Duration(s.MeshingTickIntervalMS) * time.Millisecond,
		Logger:        logger,
	})
	v.store.OnDirty(func(coord world.ChunkCoord, edgeOnly bool) {
		tier := scheduler.TierFor(coord, v.meshing.PlayerPosition(), config.Get().ViewDistance)
		v.meshing.Enqueue(coord, tier, edgeOnly)
	})

	v.pools = meshpool.NewManager(be.dev, meshpool.PoolConfig{
		MaxVertices:  s.PoolMaxVertices,
		MaxIndices:   s.PoolMaxIndices,
		MaxFragments: s.PoolMaxFragments,
		OriginSpan:   s.PoolOriginSpan,
	}, s.DefragmentAbove, logger)
	v.uploader = scheduler.NewUploadScheduler(v.meshing.Ready(), v.pools, v.store, s.UploadBytesPerFrame, logger)
	v.store.OnUnload(v.uploader.OnChunkUnloaded)

	shadows := s.ShadowsEnabled
	if shadows && be.shadows == nil {
		logger.Warn("no shadow map targets on this backend, shadows disabled")
		shadows = false
	}
	v.chunks, err = chunks.NewChunkRenderer(be.dev, v.pools, be.programs, textures, chunks.DefaultAmbient, be.shadows, nil,
		chunks.Options{
			UseUniformBuffer: s.UseUniformBuffer,
			Shadows:          shadows,
			Lod2Distance:     s.EffectiveLod2Distance(),
		}, logger)
	if err != nil {
		return nil, err
	}
	if be.liquid != nil {
		v.chunks.SetLiquidDepthTarget(be.liquid)
	}

	v.camera = graphics.NewCamera(windowWidth, windowHeight)
	v.applyViewDistance(s.ViewDistance)
	if v.renderer, err = renderer.NewRenderer(v.camera, v.chunks); err != nil {
		return nil, err
	}
	be.onResize = v.renderer.UpdateViewport

	v.streamer = world.NewChunkStreamer(v.store, newTerrainSource(), 0)
	v.orbit(0)
	v.streamer.StreamAroundSync(v.camera.Position, 1)

	var ctx context.Context
	ctx, v.cancel = context.WithCancel(context.Background())
	v.meshing.SetPlayerPosition(v.camera.Position)
	v.meshing.Start(ctx)
	return v, nil
}

// applyViewDistance fits the far plane and the meshing budget to a view
// distance in chunks.
func (v *viewer) applyViewDistance(distance int) {
	v.camera.FarPlane = float32(distance+1) * world.ChunkSize * 2
	live := *v.settings
	live.ViewDistance = distance
	v.meshing.SetVertexBudget(live.VertexBudget())
}

// orbit circles the camera around the scene origin.
func (v *viewer) orbit(elapsed float64) {
	angle := elapsed * 0.05
	radius := 64.0
	v.camera.Position = mgl32.Vec3{
		float32(math.Cos(angle) * radius),
		seaLevel + 36,
		float32(math.Sin(angle) * radius),
	}
	v.camera.LookAt(mgl32.Vec3{0, seaLevel, 0})
}

func (v *viewer) run() {
	limiter := newFrameLimiter(v.opts.fps)
	if v.opts.headless {
		limiter = newFrameLimiter(0)
	}
	start := time.Now()
	last, lastEvict, lastReport := start, start, start
	frames := 0
	viewDistance := config.Get().ViewDistance

	for frame := 0; !v.opts.headless || frame < v.opts.frames; frame++ {
		profiling.ResetFrame()
		now := time.Now()
		dt := now.Sub(last).Seconds()
		last = now

		if d := config.Get().ViewDistance; d != viewDistance {
			v.logger.Info("view distance changed", "from", viewDistance, "to", d)
			viewDistance = d
			v.applyViewDistance(d)
		}
		v.orbit(now.Sub(start).Seconds())
		v.meshing.SetPlayerPosition(v.camera.Position)
		v.streamer.StreamAroundAsync(v.camera.Position, viewDistance)
		if now.Sub(lastEvict) > 750*time.Millisecond {
			if n := v.streamer.EvictFar(v.camera.Position, viewDistance+2); n > 0 {
				v.logger.Debug("chunks evicted", "count", n)
			}
			lastEvict = now
		}
		if sun, ok := v.be.shadows.(*sunShadows); ok {
			sun.Follow(v.camera.Position)
		}

		v.chunks.Cull(v.renderer.Context())
		v.pools.SwapVisibleBuffers()
		func() { defer profiling.Track("upload.Upload")(); v.uploader.Upload() }()
		v.renderer.Render(dt)
		v.pools.FrameEnd()

		if !v.be.present() {
			break
		}
		frames++
		if now.Sub(lastReport) >= time.Second {
			v.report(frames)
			frames = 0
			lastReport = now
		}
		limiter.Wait()
	}
	v.report(frames)
}

func (v *viewer) report(frames int) {
	ps := v.pools.Stats()
	q := v.meshing.QueueLengths()
	ms := v.meshing.Stats()
	frame := v.chunks.Stats()
	cs := v.cache.Stats()
	v.logger.Info("frame stats",
		"frames", frames,
		"chunks", v.store.Len(),
		"queue_priority", q.Priority,
		"queue_normal", q.Normal,
		"queue_last", q.Last,
		"meshed", ms.Meshed,
		"requeued", ms.Requeued,
		"pools", ps.Pools,
		"fragments", ps.Fragments,
		"pool_bytes", ps.UsedBytes,
		"fragmented", ps.FragmentedRatio,
		"draw_calls", frame.Total.DrawCalls,
		"triangles", frame.Total.Triangles,
		"cache_hits", cs.Hits)
	v.logger.Debug("hot spots", "top", profiling.TopN(5))
}

// stopWorkers ends the background goroutines. It runs once, on exit or on
// an interrupt.
func (v *viewer) stopWorkers() {
	v.cancel()
	v.meshing.Stop()
	v.streamer.Close()
	v.cache.Close()
	v.logger.Info("workers stopped")
}

// releaseGPU frees device objects. It must run on the render thread.
func (v *viewer) releaseGPU() {
	v.renderer.Dispose()
	v.be.release()
}
