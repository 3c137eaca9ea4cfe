package meshing

import (
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"voxelclient/internal/registry"
	"voxelclient/internal/world"
)

// TesselatedChunkMesh is the result of one meshing pass over a chunk. It is
// produced on the meshing goroutine and consumed once by the uploader.
type TesselatedChunkMesh struct {
	Coord    world.ChunkCoord
	EdgeOnly bool
	Center   map[MeshKey]*MeshData
	Edge     map[MeshKey]*MeshData

	Sphere      BoundingSphere
	VertexCount int
}

// NewTesselatedChunkMesh returns an empty mesh for coord.
func NewTesselatedChunkMesh(coord world.ChunkCoord, edgeOnly bool) *TesselatedChunkMesh {
	return &TesselatedChunkMesh{
		Coord:    coord,
		EdgeOnly: edgeOnly,
		Center:   make(map[MeshKey]*MeshData),
		Edge:     make(map[MeshKey]*MeshData),
	}
}

// IsEmpty reports whether the mesh has no triangles at all.
func (m *TesselatedChunkMesh) IsEmpty() bool {
	return len(m.Center) == 0 && len(m.Edge) == 0
}

// SizeBytes is the GPU footprint of all parts.
func (m *TesselatedChunkMesh) SizeBytes() int {
	n := 0
	for _, d := range m.Center {
		n += d.SizeBytes()
	}
	for _, d := range m.Edge {
		n += d.SizeBytes()
	}
	return n
}

// Part returns the meshes of one part.
func (m *TesselatedChunkMesh) Part(p MeshPart) map[MeshKey]*MeshData {
	if p == PartEdge {
		return m.Edge
	}
	return m.Center
}

// finish computes the vertex count and a world space bounding sphere.
func (m *TesselatedChunkMesh) finish() {
	m.VertexCount = 0
	first := true
	var lo, hi [3]float32
	for _, part := range [2]map[MeshKey]*MeshData{m.Center, m.Edge} {
		for _, d := range part {
			m.VertexCount += d.VerticesCount()
			l, h, ok := d.Bounds()
			if !ok {
				continue
			}
			for a := 0; a < 3; a++ {
				if first {
					lo[a], hi[a] = l[a], h[a]
				} else {
					lo[a] = min(lo[a], l[a])
					hi[a] = max(hi[a], h[a])
				}
			}
			first = false
		}
	}
	if first {
		m.Sphere = BoundingSphere{Center: m.Coord.Center()}
		return
	}
	origin := m.Coord.OriginVec()
	var center, half [3]float32
	for a := 0; a < 3; a++ {
		center[a] = (lo[a] + hi[a]) / 2
		half[a] = (hi[a] - lo[a]) / 2
	}
	m.Sphere.Center = origin.Add(center)
	m.Sphere.Radius = float32(math.Sqrt(float64(half[0]*half[0] + half[1]*half[1] + half[2]*half[2])))
}

var meshMagic = [4]byte{'V', 'C', 'M', '1'}

// MarshalBinary encodes the mesh for the mesh cache.
func (m *TesselatedChunkMesh) MarshalBinary() ([]byte, error) {
	le := binary.LittleEndian
	b := append([]byte(nil), meshMagic[:]...)
	for _, v := range [4]int{m.Coord.X, m.Coord.Y, m.Coord.Z, m.Coord.Dimension} {
		b = le.AppendUint32(b, uint32(int32(v)))
	}
	if m.EdgeOnly {
		b = append(b, 1)
	} else {
		b = append(b, 0)
	}
	for _, part := range [2]map[MeshKey]*MeshData{m.Center, m.Edge} {
		b = le.AppendUint32(b, uint32(len(part)))
		for _, k := range SortedKeys(part) {
			b = le.AppendUint32(b, uint32(k.Atlas))
			b = append(b, byte(k.Pass), byte(k.LOD))
			b = part[k].AppendBinary(b)
		}
	}
	return b, nil
}

// UnmarshalBinary decodes a MarshalBinary encoding.
func (m *TesselatedChunkMesh) UnmarshalBinary(b []byte) error {
	le := binary.LittleEndian
	if len(b) < 21 || [4]byte(b[:4]) != meshMagic {
		return errors.New("meshing: not a mesh encoding")
	}
	b = b[4:]
	var c [4]int
	for i := range c {
		c[i] = int(int32(le.Uint32(b)))
		b = b[4:]
	}
	*m = *NewTesselatedChunkMesh(world.ChunkCoord{X: c[0], Y: c[1], Z: c[2], Dimension: c[3]}, b[0] == 1)
	b = b[1:]
	for _, part := range [2]map[MeshKey]*MeshData{m.Center, m.Edge} {
		if len(b) < 4 {
			return errShortMesh
		}
		n := int(le.Uint32(b))
		b = b[4:]
		for i := 0; i < n; i++ {
			if len(b) < 6 {
				return errShortMesh
			}
			k := MeshKey{Atlas: int(le.Uint32(b)), Pass: registry.RenderPass(b[4]), LOD: LODLevel(b[5])}
			d, rest, err := decodeMeshData(b[6:])
			if err != nil {
				return fmt.Errorf("mesh %s: %w", k, err)
			}
			part[k] = d
			b = rest
		}
	}
	m.finish()
	return nil
}
