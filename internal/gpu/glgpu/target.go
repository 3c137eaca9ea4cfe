package glgpu

import (
	"fmt"

	"github.com/go-gl/gl/v4.1-core/gl"
)

// DepthTarget is a framebuffer with only a sampled depth texture. It has the
// size of the window so the scene viewport applies unchanged.
type DepthTarget struct {
	fbo  uint32
	tex  uint32
	unit int
}

// NewDepthTarget creates a target of width by height sampled from unit.
func NewDepthTarget(width, height, unit int) (*DepthTarget, error) {
	t := &DepthTarget{unit: unit}
	gl.GenFramebuffers(1, &t.fbo)
	gl.GenTextures(1, &t.tex)
	if err := t.Resize(width, height); err != nil {
		t.Release()
		return nil, err
	}
	return t, nil
}

// Resize reallocates the depth texture.
func (t *DepthTarget) Resize(width, height int) error {
	gl.BindTexture(gl.TEXTURE_2D, t.tex)
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.DEPTH_COMPONENT24, int32(width), int32(height), 0, gl.DEPTH_COMPONENT, gl.FLOAT, nil)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.BindTexture(gl.TEXTURE_2D, 0)

	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.FramebufferTexture2D(gl.FRAMEBUFFER, gl.DEPTH_ATTACHMENT, gl.TEXTURE_2D, t.tex, 0)
	gl.DrawBuffer(gl.NONE)
	gl.ReadBuffer(gl.NONE)
	status := gl.CheckFramebufferStatus(gl.FRAMEBUFFER)
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	if status != gl.FRAMEBUFFER_COMPLETE {
		return fmt.Errorf("depth target %dx%d incomplete: 0x%x", width, height, status)
	}
	return nil
}

// Begin binds and clears the target.
func (t *DepthTarget) Begin() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, t.fbo)
	gl.DepthMask(true)
	gl.Clear(gl.DEPTH_BUFFER_BIT)
}

// End restores the default framebuffer and binds the depth texture for
// sampling.
func (t *DepthTarget) End() {
	gl.BindFramebuffer(gl.FRAMEBUFFER, 0)
	gl.ActiveTexture(gl.TEXTURE0 + uint32(t.unit))
	gl.BindTexture(gl.TEXTURE_2D, t.tex)
}

func (t *DepthTarget) TextureUnit() int { return t.unit }

func (t *DepthTarget) Release() {
	gl.DeleteFramebuffers(1, &t.fbo)
	gl.DeleteTextures(1, &t.tex)
}
