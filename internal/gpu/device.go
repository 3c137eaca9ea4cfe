// Package gpu is the boundary between the chunk pipeline and the graphics
// API. Pools and the chunk renderer talk to a Device; glgpu implements it
// on OpenGL and MemoryDevice records calls for tests and headless runs.
package gpu

import (
	"errors"
	"image"

	"github.com/go-gl/mathgl/mgl32"
)

// ErrOutOfMemory is returned when a buffer cannot be created.
var ErrOutOfMemory = errors.New("gpu: out of memory")

// BufferID names a device buffer. Zero is never a valid buffer.
type BufferID uint32

// BufferKind is the binding target of a buffer.
type BufferKind uint8

const (
	VertexBuffer BufferKind = iota
	IndexBuffer
	UniformBuffer
)

// DrawCommand is one indexed draw inside a multi-draw call. Indices are
// relative to BaseVertex.
type DrawCommand struct {
	IndexCount int32
	FirstIndex int32 // in indices, not bytes
	BaseVertex int32
}

// BlendMode selects fixed function blending.
type BlendMode uint8

const (
	BlendNone BlendMode = iota
	BlendAlpha
	BlendAccumulate // weighted blended OIT accumulation
)

// RenderState is the fixed function state of a pass.
type RenderState struct {
	CullBackFaces bool
	DepthTest     bool
	DepthWrite    bool
	ColorWrite    bool
	Blend         BlendMode
	DepthBias     float32
}

// Program is a linked shader program.
type Program interface {
	Use()
	SetBool(name string, value bool)
	SetInt(name string, value int32)
	SetFloat(name string, value float32)
	SetVector3(name string, x, y, z float32)
	SetMatrix4(name string, value mgl32.Mat4)
}

// Device is the subset of a graphics API the chunk pipeline needs. All
// methods must be called from the render thread.
type Device interface {
	CreateBuffer(kind BufferKind, size int) (BufferID, error)
	WriteBuffer(id BufferID, offset int, data []byte)
	CopyBuffer(src, dst BufferID, srcOffset, dstOffset, size int)
	// InvalidateBuffer discards a buffer's contents. Writes after it never
	// race draws still reading the old storage.
	InvalidateBuffer(id BufferID)
	DeleteBuffer(id BufferID)

	// BindMeshBuffers selects the vertex and index buffer of the next draws.
	BindMeshBuffers(vertices, indices BufferID)
	MultiDrawIndexed(cmds []DrawCommand)

	SetState(s RenderState)
	UploadTexturePage(page int, img *image.RGBA) error
	BindTexturePage(unit int, page int)
	UploadUniformBlock(binding int, data []byte)
}
