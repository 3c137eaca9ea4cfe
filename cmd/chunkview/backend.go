package main

import (
	"fmt"
	"log/slog"

	"github.com/go-gl/gl/v4.1-core/gl"
	"github.com/go-gl/glfw/v3.3/glfw"
	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/config"
	"voxelclient/internal/gpu"
	"voxelclient/internal/gpu/glgpu"
	"voxelclient/internal/graphics"
	"voxelclient/internal/graphics/renderables/chunks"
)

const (
	windowWidth  = 900
	windowHeight = 600

	// atlas on 0, shadow cascades on 2 and 3
	liquidDepthUnit = 4
)

// backend is the device the viewer draws with and the hooks of its frame.
type backend struct {
	dev      gpu.Device
	programs chunks.ProgramSet
	shadows  chunks.ShadowMapProvider
	liquid   chunks.LiquidDepthTarget

	// present shows the frame and reports whether the loop should go on.
	present  func() bool
	onResize func(width, height int)
	release  func()
}

// openWindow creates a GL 4.1 core window and a device on its context.
func openWindow(logger *slog.Logger) (*backend, error) {
	if err := glfw.Init(); err != nil {
		return nil, fmt.Errorf("glfw init: %w", err)
	}
	glfw.WindowHint(glfw.ContextVersionMajor, 4)
	glfw.WindowHint(glfw.ContextVersionMinor, 1)
	glfw.WindowHint(glfw.OpenGLForwardCompatible, glfw.True)
	glfw.WindowHint(glfw.OpenGLProfile, glfw.OpenGLCoreProfile)

	window, err := glfw.CreateWindow(windowWidth, windowHeight, "chunkview", nil, nil)
	if err != nil {
		glfw.Terminate()
		return nil, fmt.Errorf("create window: %w", err)
	}
	window.MakeContextCurrent()
	if err := gl.Init(); err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, fmt.Errorf("gl init: %w", err)
	}
	// the frame limiter paces the loop
	glfw.SwapInterval(0)
	logger.Info("gl context ready", "version", gl.GoStr(gl.GetString(gl.VERSION)))

	shaders, err := graphics.LoadChunkShaders()
	if err != nil {
		window.Destroy()
		glfw.Terminate()
		return nil, err
	}
	programs := make(chunks.ProgramSet, len(shaders))
	for name, s := range shaders {
		programs[name] = s
	}

	dev := glgpu.New(logger)
	width, height := window.GetFramebufferSize()
	liquid, err := glgpu.NewDepthTarget(width, height, liquidDepthUnit)
	if err != nil {
		dev.Release()
		window.Destroy()
		glfw.Terminate()
		return nil, err
	}
	b := &backend{dev: dev, programs: programs, liquid: liquid}
	window.SetFramebufferSizeCallback(func(_ *glfw.Window, width, height int) {
		gl.Viewport(0, 0, int32(width), int32(height))
		if err := liquid.Resize(width, height); err != nil {
			logger.Error("liquid depth target resize failed", "error", err)
		}
		if b.onResize != nil {
			b.onResize(width, height)
		}
	})
	window.SetKeyCallback(func(w *glfw.Window, key glfw.Key, _ int, action glfw.Action, _ glfw.ModifierKey) {
		if action != glfw.Press && action != glfw.Repeat {
			return
		}
		switch key {
		case glfw.KeyEscape:
			w.SetShouldClose(true)
		case glfw.KeyEqual, glfw.KeyKPAdd:
			config.AdjustViewDistance(1)
		case glfw.KeyMinus, glfw.KeyKPSubtract:
			config.AdjustViewDistance(-1)
		}
	})
	b.present = func() bool {
		window.SwapBuffers()
		glfw.PollEvents()
		gl.Clear(gl.COLOR_BUFFER_BIT | gl.DEPTH_BUFFER_BIT)
		return !window.ShouldClose()
	}
	b.release = func() {
		for _, s := range shaders {
			s.Delete()
		}
		liquid.Release()
		dev.Release()
		window.Destroy()
		glfw.Terminate()
	}
	gl.ClearColor(0.55, 0.7, 0.95, 1)
	return b, nil
}

// openHeadless records draws in memory. The loop runs until the frame
// count is reached.
func openHeadless(memoryLimit int) *backend {
	dev := gpu.NewMemoryDevice(memoryLimit)
	programs := make(chunks.ProgramSet, len(chunks.ProgramNames))
	for _, name := range chunks.ProgramNames {
		programs[name] = dev.NewProgram(name)
	}
	return &backend{
		dev:      dev,
		programs: programs,
		shadows:  newSunShadows(mgl32.Vec3{0.3, -1, 0.2}),
		liquid:   dev.NewDepthTarget("liquid-depth", liquidDepthUnit),
		present: func() bool {
			dev.Reset()
			return true
		},
		release: func() {},
	}
}

// sunShadows fits an orthographic cascade pair around the camera. The
// recording device has no depth targets to bind.
type sunShadows struct {
	dir    mgl32.Vec3
	center mgl32.Vec3
}

func newSunShadows(dir mgl32.Vec3) *sunShadows {
	return &sunShadows{dir: dir.Normalize()}
}

// Follow recentres the cascades.
func (s *sunShadows) Follow(pos mgl32.Vec3) { s.center = pos }

func (s *sunShadows) ViewProj(c chunks.Cascade) mgl32.Mat4 {
	extent := float32(48)
	if c == chunks.CascadeFar {
		extent = 192
	}
	eye := s.center.Sub(s.dir.Mul(extent * 2))
	view := mgl32.LookAtV(eye, s.center, mgl32.Vec3{0, 0, 1})
	proj := mgl32.Ortho(-extent, extent, -extent, extent, 0, extent*4)
	return proj.Mul4(view)
}

func (s *sunShadows) Begin(chunks.Cascade) {}
func (s *sunShadows) End(chunks.Cascade)   {}
func (s *sunShadows) TextureUnit() int     { return 2 }
