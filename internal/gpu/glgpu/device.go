// Package glgpu implements gpu.Device on OpenGL 4.1 core. Every method must
// run on the thread that owns the GL context.
package glgpu

import (
	"fmt"
	"image"
	"log/slog"
	"unsafe"

	"github.com/go-gl/gl/v4.1-core/gl"

	"voxelclient/internal/gpu"
	"voxelclient/internal/meshing"
)

type bufferInfo struct {
	target uint32
	size   int
}

// Device is a gpu.Device backed by the current GL context.
type Device struct {
	logger *slog.Logger

	buffers  map[gpu.BufferID]bufferInfo
	vaos     map[[2]gpu.BufferID]uint32
	textures map[int]uint32
	blocks   map[int]uint32

	counts  []int32
	offsets []unsafe.Pointer
	bases   []int32
}

// New creates a device. gl.Init must have been called.
func New(logger *slog.Logger) *Device {
	if logger == nil {
		logger = slog.Default()
	}
	gl.Enable(gl.DEPTH_TEST)
	gl.FrontFace(gl.CCW)
	gl.CullFace(gl.BACK)
	return &Device{
		logger:   logger,
		buffers:  make(map[gpu.BufferID]bufferInfo),
		vaos:     make(map[[2]gpu.BufferID]uint32),
		textures: make(map[int]uint32),
		blocks:   make(map[int]uint32),
	}
}

func (d *Device) checkError(label string) uint32 {
	err := gl.GetError()
	if err != gl.NO_ERROR {
		d.logger.Error("gl error", "op", label, "code", fmt.Sprintf("0x%x", err))
	}
	return err
}

func targetOf(kind gpu.BufferKind) uint32 {
	switch kind {
	case gpu.IndexBuffer:
		return gl.ELEMENT_ARRAY_BUFFER
	case gpu.UniformBuffer:
		return gl.UNIFORM_BUFFER
	}
	return gl.ARRAY_BUFFER
}

func (d *Device) CreateBuffer(kind gpu.BufferKind, size int) (gpu.BufferID, error) {
	var id uint32
	gl.GenBuffers(1, &id)
	// element buffers are bound through ARRAY_BUFFER here so no VAO is needed
	gl.BindBuffer(gl.ARRAY_BUFFER, id)
	gl.BufferData(gl.ARRAY_BUFFER, size, nil, gl.STATIC_DRAW)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
	if err := d.checkError("CreateBuffer"); err == gl.OUT_OF_MEMORY {
		gl.DeleteBuffers(1, &id)
		return 0, fmt.Errorf("%w: buffer of %d bytes", gpu.ErrOutOfMemory, size)
	}
	d.buffers[gpu.BufferID(id)] = bufferInfo{target: targetOf(kind), size: size}
	return gpu.BufferID(id), nil
}

// WriteBuffer maps the range unsynchronized: pools only write past their
// tail, and a pool that rewinds its tail invalidates the buffer first.
func (d *Device) WriteBuffer(id gpu.BufferID, offset int, data []byte) {
	if len(data) == 0 {
		return
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, uint32(id))
	flags := uint32(gl.MAP_WRITE_BIT | gl.MAP_UNSYNCHRONIZED_BIT | gl.MAP_INVALIDATE_RANGE_BIT)
	ptr := gl.MapBufferRange(gl.COPY_WRITE_BUFFER, offset, len(data), flags)
	if ptr != nil {
		copy(unsafe.Slice((*byte)(ptr), len(data)), data)
		gl.UnmapBuffer(gl.COPY_WRITE_BUFFER)
	} else {
		gl.BufferSubData(gl.COPY_WRITE_BUFFER, offset, len(data), gl.Ptr(data))
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
}

// CopyBuffer copies through mapped pointers; CopyBufferSubData is not
// reliable on every driver we ship to.
func (d *Device) CopyBuffer(src, dst gpu.BufferID, srcOffset, dstOffset, size int) {
	if size <= 0 {
		return
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, uint32(src))
	srcPtr := gl.MapBufferRange(gl.COPY_READ_BUFFER, srcOffset, size, gl.MAP_READ_BIT)

	gl.BindBuffer(gl.COPY_WRITE_BUFFER, uint32(dst))
	dstPtr := gl.MapBufferRange(gl.COPY_WRITE_BUFFER, dstOffset, size, gl.MAP_WRITE_BIT|gl.MAP_INVALIDATE_RANGE_BIT)

	if srcPtr != nil && dstPtr != nil {
		copy(unsafe.Slice((*byte)(dstPtr), size), unsafe.Slice((*byte)(srcPtr), size))
	}
	if dstPtr != nil {
		gl.UnmapBuffer(gl.COPY_WRITE_BUFFER)
	}
	if srcPtr != nil {
		gl.UnmapBuffer(gl.COPY_READ_BUFFER)
	}
	gl.BindBuffer(gl.COPY_READ_BUFFER, 0)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
	d.checkError("CopyBuffer")
}

// InvalidateBuffer orphans the storage: the driver keeps the old store
// alive for in flight draws and hands out a fresh one.
func (d *Device) InvalidateBuffer(id gpu.BufferID) {
	info, ok := d.buffers[id]
	if !ok {
		return
	}
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, uint32(id))
	gl.BufferData(gl.COPY_WRITE_BUFFER, info.size, nil, gl.STATIC_DRAW)
	gl.BindBuffer(gl.COPY_WRITE_BUFFER, 0)
}

func (d *Device) DeleteBuffer(id gpu.BufferID) {
	if _, ok := d.buffers[id]; !ok {
		return
	}
	for key, vao := range d.vaos {
		if key[0] == id || key[1] == id {
			gl.DeleteVertexArrays(1, &vao)
			delete(d.vaos, key)
		}
	}
	raw := uint32(id)
	gl.DeleteBuffers(1, &raw)
	delete(d.buffers, id)
}

// BindMeshBuffers binds the VAO of a vertex/index buffer pair, creating it
// on first use.
func (d *Device) BindMeshBuffers(vertices, indices gpu.BufferID) {
	key := [2]gpu.BufferID{vertices, indices}
	vao, ok := d.vaos[key]
	if !ok {
		gl.GenVertexArrays(1, &vao)
		setupMeshVAO(vao, uint32(vertices), uint32(indices))
		d.vaos[key] = vao
	}
	gl.BindVertexArray(vao)
}

// setupMeshVAO describes the interleaved chunk vertex:
// pos 3f, uv 2f, rgba 4ub, flags u32, custom 2f.
func setupMeshVAO(vao, vbo, ibo uint32) {
	gl.BindVertexArray(vao)
	gl.BindBuffer(gl.ARRAY_BUFFER, vbo)
	gl.BindBuffer(gl.ELEMENT_ARRAY_BUFFER, ibo)

	stride := int32(meshing.VertexStride)

	gl.EnableVertexAttribArray(0)
	gl.VertexAttribPointer(0, 3, gl.FLOAT, false, stride, gl.PtrOffset(0))

	gl.EnableVertexAttribArray(1)
	gl.VertexAttribPointer(1, 2, gl.FLOAT, false, stride, gl.PtrOffset(12))

	gl.EnableVertexAttribArray(2)
	gl.VertexAttribPointer(2, 4, gl.UNSIGNED_BYTE, true, stride, gl.PtrOffset(20))

	gl.EnableVertexAttribArray(3)
	gl.VertexAttribIPointer(3, 1, gl.UNSIGNED_INT, stride, gl.PtrOffset(24))

	gl.EnableVertexAttribArray(4)
	gl.VertexAttribPointer(4, 2, gl.FLOAT, false, stride, gl.PtrOffset(28))

	gl.BindVertexArray(0)
	gl.BindBuffer(gl.ARRAY_BUFFER, 0)
}

func (d *Device) MultiDrawIndexed(cmds []gpu.DrawCommand) {
	if len(cmds) == 0 {
		return
	}
	d.counts = d.counts[:0]
	d.offsets = d.offsets[:0]
	d.bases = d.bases[:0]
	for _, c := range cmds {
		d.counts = append(d.counts, c.IndexCount)
		d.offsets = append(d.offsets, gl.PtrOffset(int(c.FirstIndex)*4))
		d.bases = append(d.bases, c.BaseVertex)
	}
	gl.MultiDrawElementsBaseVertex(gl.TRIANGLES, &d.counts[0], gl.UNSIGNED_INT, &d.offsets[0], int32(len(cmds)), &d.bases[0])
	gl.BindVertexArray(0)
}

func setEnabled(capability uint32, on bool) {
	if on {
		gl.Enable(capability)
	} else {
		gl.Disable(capability)
	}
}

func (d *Device) SetState(s gpu.RenderState) {
	setEnabled(gl.CULL_FACE, s.CullBackFaces)
	setEnabled(gl.DEPTH_TEST, s.DepthTest)
	gl.DepthMask(s.DepthWrite)
	gl.ColorMask(s.ColorWrite, s.ColorWrite, s.ColorWrite, s.ColorWrite)

	switch s.Blend {
	case gpu.BlendAlpha:
		gl.Enable(gl.BLEND)
		gl.BlendFunc(gl.SRC_ALPHA, gl.ONE_MINUS_SRC_ALPHA)
	case gpu.BlendAccumulate:
		gl.Enable(gl.BLEND)
		gl.BlendFunci(0, gl.ONE, gl.ONE)
		gl.BlendFunci(1, gl.ZERO, gl.ONE_MINUS_SRC_COLOR)
	default:
		gl.Disable(gl.BLEND)
	}

	if s.DepthBias != 0 {
		gl.Enable(gl.POLYGON_OFFSET_FILL)
		gl.PolygonOffset(s.DepthBias, s.DepthBias)
	} else {
		gl.Disable(gl.POLYGON_OFFSET_FILL)
	}
}

func (d *Device) UploadTexturePage(page int, img *image.RGBA) error {
	tex, ok := d.textures[page]
	if !ok {
		gl.GenTextures(1, &tex)
		d.textures[page] = tex
	}
	gl.BindTexture(gl.TEXTURE_2D, tex)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_S, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_WRAP_T, gl.CLAMP_TO_EDGE)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MIN_FILTER, gl.NEAREST)
	gl.TexParameteri(gl.TEXTURE_2D, gl.TEXTURE_MAG_FILTER, gl.NEAREST)
	size := img.Rect.Size()
	gl.TexImage2D(gl.TEXTURE_2D, 0, gl.RGBA, int32(size.X), int32(size.Y), 0, gl.RGBA, gl.UNSIGNED_BYTE, gl.Ptr(img.Pix))
	gl.BindTexture(gl.TEXTURE_2D, 0)
	if err := d.checkError("UploadTexturePage"); err != gl.NO_ERROR {
		return fmt.Errorf("upload texture page %d: gl error 0x%x", page, err)
	}
	return nil
}

func (d *Device) BindTexturePage(unit int, page int) {
	gl.ActiveTexture(gl.TEXTURE0 + uint32(unit))
	gl.BindTexture(gl.TEXTURE_2D, d.textures[page])
}

func (d *Device) UploadUniformBlock(binding int, data []byte) {
	ubo, ok := d.blocks[binding]
	if !ok {
		gl.GenBuffers(1, &ubo)
		d.blocks[binding] = ubo
	}
	gl.BindBuffer(gl.UNIFORM_BUFFER, ubo)
	gl.BufferData(gl.UNIFORM_BUFFER, len(data), gl.Ptr(data), gl.DYNAMIC_DRAW)
	gl.BindBufferBase(gl.UNIFORM_BUFFER, uint32(binding), ubo)
	gl.BindBuffer(gl.UNIFORM_BUFFER, 0)
}

// Release frees every GL object the device created.
func (d *Device) Release() {
	for _, vao := range d.vaos {
		gl.DeleteVertexArrays(1, &vao)
	}
	for id := range d.buffers {
		raw := uint32(id)
		gl.DeleteBuffers(1, &raw)
	}
	for _, tex := range d.textures {
		gl.DeleteTextures(1, &tex)
	}
	for _, ubo := range d.blocks {
		gl.DeleteBuffers(1, &ubo)
	}
	clear(d.vaos)
	clear(d.buffers)
	clear(d.textures)
	clear(d.blocks)
}

var _ gpu.Device = (*Device)(nil)
