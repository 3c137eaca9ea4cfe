package meshing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"
	"sort"

	"github.com/go-gl/mathgl/mgl32"

	"voxelclient/internal/registry"
)

// VertexStride is the size in bytes of one interleaved GPU vertex:
// pos.xyz, uv, rgba, flags and two custom floats.
const VertexStride = 3*4 + 2*4 + 4 + 4 + 2*4

// CustomFloatsPerVertex is the number of shader-specific floats carried by
// every vertex. Liquids store their flow vector there.
const CustomFloatsPerVertex = 2

// LODLevel selects the distance band a mesh is drawn in.
//
// LOD0 holds full detail drawn only close to the camera, LOD1 is drawn at
// every distance and LOD2 holds cheap stand-ins drawn only far away.
type LODLevel uint8

const (
	LOD0 LODLevel = iota
	LOD1
	LOD2

	NumLODLevels = 3
)

// MeshKey partitions chunk geometry.
type MeshKey struct {
	Atlas int
	Pass  registry.RenderPass
	LOD   LODLevel
}

func (k MeshKey) String() string {
	return fmt.Sprintf("atlas%d/%s/lod%d", k.Atlas, k.Pass, k.LOD)
}

func (k MeshKey) less(o MeshKey) bool {
	if k.Atlas != o.Atlas {
		return k.Atlas < o.Atlas
	}
	if k.Pass != o.Pass {
		return k.Pass < o.Pass
	}
	return k.LOD < o.LOD
}

// SortedKeys returns the keys of m in a stable order.
func SortedKeys(m map[MeshKey]*MeshData) []MeshKey {
	keys := make([]MeshKey, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool { return keys[i].less(keys[j]) })
	return keys
}

// MeshData is a growable set of parallel vertex arrays plus triangle indices.
// Positions are relative to the chunk origin.
type MeshData struct {
	XYZ     []float32
	UV      []float32
	RGBA    []uint32
	Flags   []uint32
	Custom  []float32
	Indices []uint32
}

// NewMeshData preallocates room for the given number of vertices.
func NewMeshData(vertices int) *MeshData {
	return &MeshData{
		XYZ:     make([]float32, 0, vertices*3),
		UV:      make([]float32, 0, vertices*2),
		RGBA:    make([]uint32, 0, vertices),
		Flags:   make([]uint32, 0, vertices),
		Custom:  make([]float32, 0, vertices*CustomFloatsPerVertex),
		Indices: make([]uint32, 0, vertices*6/4),
	}
}

func (m *MeshData) VerticesCount() int { return len(m.RGBA) }
func (m *MeshData) IndicesCount() int  { return len(m.Indices) }
func (m *MeshData) IsEmpty() bool      { return len(m.Indices) == 0 }

// SizeBytes is the GPU footprint of the mesh.
func (m *MeshData) SizeBytes() int {
	return m.VerticesCount()*VertexStride + len(m.Indices)*4
}

// AddVertex appends a vertex and returns its index.
func (m *MeshData) AddVertex(pos mgl32.Vec3, u, v float32, rgba, flags uint32) uint32 {
	return m.AddVertexCustom(pos, u, v, rgba, flags, 0, 0)
}

// AddVertexCustom appends a vertex with custom shader floats.
func (m *MeshData) AddVertexCustom(pos mgl32.Vec3, u, v float32, rgba, flags uint32, c0, c1 float32) uint32 {
	idx := uint32(len(m.RGBA))
	m.XYZ = append(m.XYZ, pos[0], pos[1], pos[2])
	m.UV = append(m.UV, u, v)
	m.RGBA = append(m.RGBA, rgba)
	m.Flags = append(m.Flags, flags)
	m.Custom = append(m.Custom, c0, c1)
	return idx
}

// AddQuad adds the two triangles of the quad whose first vertex is base.
// flipped splits the quad along the other diagonal.
func (m *MeshData) AddQuad(base uint32, flipped bool) {
	if flipped {
		m.Indices = append(m.Indices, base+1, base+2, base+3, base+1, base+3, base)
		return
	}
	m.Indices = append(m.Indices, base, base+1, base+2, base, base+2, base+3)
}

// Truncate shrinks the mesh back to the given counts.
func (m *MeshData) Truncate(vertices, indices int) {
	m.XYZ = m.XYZ[:vertices*3]
	m.UV = m.UV[:vertices*2]
	m.RGBA = m.RGBA[:vertices]
	m.Flags = m.Flags[:vertices]
	m.Custom = m.Custom[:vertices*CustomFloatsPerVertex]
	m.Indices = m.Indices[:indices]
}

// Clone returns a deep copy with tight slices.
func (m *MeshData) Clone() *MeshData {
	return &MeshData{
		XYZ:     append([]float32(nil), m.XYZ...),
		UV:      append([]float32(nil), m.UV...),
		RGBA:    append([]uint32(nil), m.RGBA...),
		Flags:   append([]uint32(nil), m.Flags...),
		Custom:  append([]float32(nil), m.Custom...),
		Indices: append([]uint32(nil), m.Indices...),
	}
}

// Validate checks the array lengths and index ranges.
func (m *MeshData) Validate() error {
	n := m.VerticesCount()
	if len(m.XYZ) != n*3 || len(m.UV) != n*2 || len(m.Flags) != n || len(m.Custom) != n*CustomFloatsPerVertex {
		return fmt.Errorf("meshing: mismatched vertex arrays for %d vertices", n)
	}
	if len(m.Indices)%3 != 0 {
		return fmt.Errorf("meshing: %d indices is not a triangle list", len(m.Indices))
	}
	for i, idx := range m.Indices {
		if int(idx) >= n {
			return fmt.Errorf("meshing: index %d at %d out of range (%d vertices)", idx, i, n)
		}
	}
	return nil
}

// Bounds returns the axis aligned box of all vertices.
func (m *MeshData) Bounds() (lo, hi mgl32.Vec3, ok bool) {
	for i := 0; i+2 < len(m.XYZ); i += 3 {
		p := mgl32.Vec3{m.XYZ[i], m.XYZ[i+1], m.XYZ[i+2]}
		if i == 0 {
			lo, hi = p, p
			continue
		}
		for a := 0; a < 3; a++ {
			lo[a] = min(lo[a], p[a])
			hi[a] = max(hi[a], p[a])
		}
	}
	return lo, hi, len(m.XYZ) >= 3
}

// AppendVertexBytes interleaves the vertices into dst in GPU layout,
// translating positions by offset.
func (m *MeshData) AppendVertexBytes(dst []byte, offset mgl32.Vec3) []byte {
	le := binary.LittleEndian
	for i := 0; i < m.VerticesCount(); i++ {
		dst = le.AppendUint32(dst, math.Float32bits(m.XYZ[i*3]+offset[0]))
		dst = le.AppendUint32(dst, math.Float32bits(m.XYZ[i*3+1]+offset[1]))
		dst = le.AppendUint32(dst, math.Float32bits(m.XYZ[i*3+2]+offset[2]))
		dst = le.AppendUint32(dst, math.Float32bits(m.UV[i*2]))
		dst = le.AppendUint32(dst, math.Float32bits(m.UV[i*2+1]))
		dst = le.AppendUint32(dst, m.RGBA[i])
		dst = le.AppendUint32(dst, m.Flags[i])
		dst = le.AppendUint32(dst, math.Float32bits(m.Custom[i*2]))
		dst = le.AppendUint32(dst, math.Float32bits(m.Custom[i*2+1]))
	}
	return dst
}

// AppendIndexBytes appends the indices as little endian uint32.
func (m *MeshData) AppendIndexBytes(dst []byte) []byte {
	for _, idx := range m.Indices {
		dst = binary.LittleEndian.AppendUint32(dst, idx)
	}
	return dst
}

var errShortMesh = errors.New("meshing: truncated mesh encoding")

// AppendBinary writes a compact encoding used by the mesh cache.
func (m *MeshData) AppendBinary(dst []byte) []byte {
	le := binary.LittleEndian
	dst = le.AppendUint32(dst, uint32(m.VerticesCount()))
	dst = le.AppendUint32(dst, uint32(len(m.Indices)))
	for _, f := range m.XYZ {
		dst = le.AppendUint32(dst, math.Float32bits(f))
	}
	for _, f := range m.UV {
		dst = le.AppendUint32(dst, math.Float32bits(f))
	}
	for _, f := range m.Custom {
		dst = le.AppendUint32(dst, math.Float32bits(f))
	}
	for _, v := range m.RGBA {
		dst = le.AppendUint32(dst, v)
	}
	for _, v := range m.Flags {
		dst = le.AppendUint32(dst, v)
	}
	return m.AppendIndexBytes(dst)
}

// decodeMeshData reads one AppendBinary record and returns the rest of b.
func decodeMeshData(b []byte) (*MeshData, []byte, error) {
	le := binary.LittleEndian
	if len(b) < 8 {
		return nil, nil, errShortMesh
	}
	nv, ni := int(le.Uint32(b)), int(le.Uint32(b[4:]))
	b = b[8:]
	words := nv*(3+2+CustomFloatsPerVertex+2) + ni
	if len(b) < words*4 {
		return nil, nil, errShortMesh
	}
	floats := func(n int) []float32 {
		out := make([]float32, n)
		for i := range out {
			out[i] = math.Float32frombits(le.Uint32(b))
			b = b[4:]
		}
		return out
	}
	uints := func(n int) []uint32 {
		out := make([]uint32, n)
		for i := range out {
			out[i] = le.Uint32(b)
			b = b[4:]
		}
		return out
	}
	m := &MeshData{}
	m.XYZ = floats(nv * 3)
	m.UV = floats(nv * 2)
	m.Custom = floats(nv * CustomFloatsPerVertex)
	m.RGBA = uints(nv)
	m.Flags = uints(nv)
	m.Indices = uints(ni)
	return m, b, nil
}
