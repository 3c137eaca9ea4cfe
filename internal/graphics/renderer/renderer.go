package renderer

import (
	"voxelclient/internal/graphics"
	"voxelclient/internal/profiling"
)

// Renderer orchestrates rendering via renderable features
type Renderer struct {
	renderables []Renderable
	camera      *graphics.Camera
	elapsed     float64
}

// NewRenderer creates a renderer drawing rs in order with the given camera.
func NewRenderer(camera *graphics.Camera, rs ...Renderable) (*Renderer, error) {
	renderer := &Renderer{
		renderables: rs,
		camera:      camera,
	}

	// Initialize all renderables
	for _, r := range rs {
		if err := r.Init(); err != nil {
			return nil, err
		}
	}

	return renderer, nil
}

// Render executes one frame
func (r *Renderer) Render(dt float64) {
	defer profiling.Track("renderer.Render")()
	r.elapsed += dt

	ctx := RenderContext{
		Camera: r.camera,
		DT:     dt,
		Time:   r.elapsed,
		View:   r.camera.ViewMatrix(),
		Proj:   r.camera.ProjectionMatrix(),
	}

	for _, renderable := range r.renderables {
		renderable.Render(ctx)
	}
}

// Context returns the context the next frame will render with.
func (r *Renderer) Context() RenderContext {
	return RenderContext{
		Camera: r.camera,
		Time:   r.elapsed,
		View:   r.camera.ViewMatrix(),
		Proj:   r.camera.ProjectionMatrix(),
	}
}

// Dispose cleans up all renderables in reverse order
func (r *Renderer) Dispose() {
	for i := len(r.renderables) - 1; i >= 0; i-- {
		r.renderables[i].Dispose()
	}
}

// Camera returns the camera instance
func (r *Renderer) Camera() *graphics.Camera {
	return r.camera
}

// UpdateViewport updates the camera and every renderable
func (r *Renderer) UpdateViewport(width, height int) {
	r.camera.SetViewport(width, height)
	for _, renderable := range r.renderables {
		renderable.SetViewport(width, height)
	}
}
