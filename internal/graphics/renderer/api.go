package renderer

import (
	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/graphics"
)

// RenderContext provides shared context for all renderables
type RenderContext struct {
	Camera *graphics.Camera
	DT     float64
	Time   float64 // seconds since start, drives wind animation
	View   mgl32.Mat4
	Proj   mgl32.Mat4
}

// Position returns the camera position in world space.
func (c RenderContext) Position() mgl32.Vec3 {
	if c.Camera == nil {
		return mgl32.Vec3{}
	}
	return c.Camera.Position
}

// Renderable interface defines the lifecycle for renderable features
type Renderable interface {
	Init() error
	Render(ctx RenderContext)
	Dispose()
	SetViewport(width, height int)
}
