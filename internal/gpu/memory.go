package gpu

import (
	"fmt"
	"image"
	"sync"

	"github.com/go-gl/mathgl/mgl32"
)

// DrawRecord is one MultiDrawIndexed call seen by a MemoryDevice.
type DrawRecord struct {
	Vertices BufferID
	Indices  BufferID
	Commands []DrawCommand
	State    RenderState
	Program  string
	Textures map[int]int // unit -> page
	Target   string      // bound depth target, empty for the scene
}

// Event is an entry of the MemoryDevice call log.
type Event struct {
	Kind string // "use", "state", "draw", "uniform-block", "invalidate", "target-begin", "target-end"
	Name string
}

type memBuffer struct {
	kind BufferKind
	data []byte
}

// MemoryDevice is a Device backed by byte slices. It enforces the same
// bounds a real device would and logs calls for assertions.
type MemoryDevice struct {
	mu       sync.Mutex
	next     BufferID
	buffers  map[BufferID]*memBuffer
	limit    int // total bytes, 0 for unlimited
	used     int
	vertices BufferID
	indices  BufferID
	state    RenderState
	program  string
	target   string
	textures map[int]int
	pages    map[int]image.Rectangle
	blocks   map[int][]byte

	draws  []DrawRecord
	events []Event
}

// NewMemoryDevice creates a device with an optional memory limit in bytes.
func NewMemoryDevice(limit int) *MemoryDevice {
	return &MemoryDevice{
		next:     1,
		buffers:  make(map[BufferID]*memBuffer),
		limit:    limit,
		textures: make(map[int]int),
		pages:    make(map[int]image.Rectangle),
		blocks:   make(map[int][]byte),
	}
}

func (d *MemoryDevice) CreateBuffer(kind BufferKind, size int) (BufferID, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.limit > 0 && d.used+size > d.limit {
		return 0, fmt.Errorf("%w: %d bytes requested, %d of %d used", ErrOutOfMemory, size, d.used, d.limit)
	}
	id := d.next
	d.next++
	d.buffers[id] = &memBuffer{kind: kind, data: make([]byte, size)}
	d.used += size
	return id, nil
}

func (d *MemoryDevice) buffer(id BufferID) *memBuffer {
	b, ok := d.buffers[id]
	if !ok {
		panic(fmt.Sprintf("gpu: use of unknown buffer %d", id))
	}
	return b
}

func (d *MemoryDevice) WriteBuffer(id BufferID, offset int, data []byte) {
	d.mu.Lock()
	defer d.mu.Unlock()
	b := d.buffer(id)
	if offset < 0 || offset+len(data) > len(b.data) {
		panic(fmt.Sprintf("gpu: write [%d,%d) past buffer %d of %d bytes", offset, offset+len(data), id, len(b.data)))
	}
	copy(b.data[offset:], data)
}

func (d *MemoryDevice) CopyBuffer(src, dst BufferID, srcOffset, dstOffset, size int) {
	d.mu.Lock()
	defer d.mu.Unlock()
	s, t := d.buffer(src), d.buffer(dst)
	if srcOffset+size > len(s.data) || dstOffset+size > len(t.data) {
		panic(fmt.Sprintf("gpu: copy of %d bytes out of range", size))
	}
	copy(t.data[dstOffset:dstOffset+size], s.data[srcOffset:srcOffset+size])
}

func (d *MemoryDevice) InvalidateBuffer(id BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	clear(d.buffer(id).data)
	d.events = append(d.events, Event{Kind: "invalidate", Name: fmt.Sprint(id)})
}

func (d *MemoryDevice) DeleteBuffer(id BufferID) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if b, ok := d.buffers[id]; ok {
		d.used -= len(b.data)
		delete(d.buffers, id)
	}
}

func (d *MemoryDevice) BindMeshBuffers(vertices, indices BufferID) {
	d.mu.Lock()
	d.vertices, d.indices = vertices, indices
	d.mu.Unlock()
}

func (d *MemoryDevice) MultiDrawIndexed(cmds []DrawCommand) {
	d.mu.Lock()
	defer d.mu.Unlock()
	textures := make(map[int]int, len(d.textures))
	for k, v := range d.textures {
		textures[k] = v
	}
	d.draws = append(d.draws, DrawRecord{
		Vertices: d.vertices,
		Indices:  d.indices,
		Commands: append([]DrawCommand(nil), cmds...),
		State:    d.state,
		Program:  d.program,
		Textures: textures,
		Target:   d.target,
	})
	d.events = append(d.events, Event{Kind: "draw", Name: d.program})
}

func (d *MemoryDevice) SetState(s RenderState) {
	d.mu.Lock()
	d.state = s
	d.events = append(d.events, Event{Kind: "state"})
	d.mu.Unlock()
}

func (d *MemoryDevice) UploadTexturePage(page int, img *image.RGBA) error {
	d.mu.Lock()
	d.pages[page] = img.Bounds()
	d.mu.Unlock()
	return nil
}

func (d *MemoryDevice) BindTexturePage(unit int, page int) {
	d.mu.Lock()
	d.textures[unit] = page
	d.mu.Unlock()
}

func (d *MemoryDevice) UploadUniformBlock(binding int, data []byte) {
	d.mu.Lock()
	d.blocks[binding] = append([]byte(nil), data...)
	d.events = append(d.events, Event{Kind: "uniform-block"})
	d.mu.Unlock()
}

// NewProgram returns a program whose Use calls are logged under name.
func (d *MemoryDevice) NewProgram(name string) *MemoryProgram {
	return &MemoryProgram{dev: d, name: name, Uniforms: make(map[string]any)}
}

// Buffer returns a copy of a buffer's contents.
func (d *MemoryDevice) Buffer(id BufferID) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]byte(nil), d.buffer(id).data...)
}

// BufferCount returns the number of live buffers.
func (d *MemoryDevice) BufferCount() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.buffers)
}

// UsedBytes returns the bytes held by live buffers.
func (d *MemoryDevice) UsedBytes() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.used
}

// Draws returns the draw calls recorded since the last Reset.
func (d *MemoryDevice) Draws() []DrawRecord {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]DrawRecord(nil), d.draws...)
}

// Events returns the call log recorded since the last Reset.
func (d *MemoryDevice) Events() []Event {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]Event(nil), d.events...)
}

// HasTexturePage reports whether a page was uploaded.
func (d *MemoryDevice) HasTexturePage(page int) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	_, ok := d.pages[page]
	return ok
}

// UniformBlock returns the last data uploaded to a binding.
func (d *MemoryDevice) UniformBlock(binding int) []byte {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.blocks[binding]
}

// Reset clears the draw and event logs.
func (d *MemoryDevice) Reset() {
	d.mu.Lock()
	d.draws = d.draws[:0]
	d.events = d.events[:0]
	d.mu.Unlock()
}

// MemoryDepthTarget is an offscreen depth target of a MemoryDevice. Draws
// between Begin and End are recorded with its name.
type MemoryDepthTarget struct {
	dev  *MemoryDevice
	name string
	unit int
}

// NewDepthTarget returns a target sampled from texture unit unit.
func (d *MemoryDevice) NewDepthTarget(name string, unit int) *MemoryDepthTarget {
	return &MemoryDepthTarget{dev: d, name: name, unit: unit}
}

func (t *MemoryDepthTarget) Begin() {
	t.dev.mu.Lock()
	t.dev.target = t.name
	t.dev.events = append(t.dev.events, Event{Kind: "target-begin", Name: t.name})
	t.dev.mu.Unlock()
}

func (t *MemoryDepthTarget) End() {
	t.dev.mu.Lock()
	t.dev.target = ""
	t.dev.events = append(t.dev.events, Event{Kind: "target-end", Name: t.name})
	t.dev.mu.Unlock()
}

func (t *MemoryDepthTarget) TextureUnit() int { return t.unit }

// MemoryProgram records uniforms set on it.
type MemoryProgram struct {
	dev      *MemoryDevice
	name     string
	Uniforms map[string]any
}

func (p *MemoryProgram) Use() {
	p.dev.mu.Lock()
	p.dev.program = p.name
	p.dev.events = append(p.dev.events, Event{Kind: "use", Name: p.name})
	p.dev.mu.Unlock()
}

func (p *MemoryProgram) SetBool(name string, value bool)     { p.Uniforms[name] = value }
func (p *MemoryProgram) SetInt(name string, value int32)     { p.Uniforms[name] = value }
func (p *MemoryProgram) SetFloat(name string, value float32) { p.Uniforms[name] = value }
func (p *MemoryProgram) SetVector3(name string, x, y, z float32) {
	p.Uniforms[name] = mgl32.Vec3{x, y, z}
}
func (p *MemoryProgram) SetMatrix4(name string, value mgl32.Mat4) {
	p.Uniforms[name] = value
}
