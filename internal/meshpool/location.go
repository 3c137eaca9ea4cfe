package meshpool

import (
	"voxelclient/internal/meshing"
	"voxelclient/internal/world"
)

// CullMode selects which visibility flag a cull pass writes and a render
// pass reads.
type CullMode uint8

const (
	CullFrustum CullMode = iota
	CullShadowNear
	CullShadowFar
	CullNone

	numCullModes = 4
)

func (m CullMode) String() string {
	switch m {
	case CullFrustum:
		return "frustum"
	case CullShadowNear:
		return "shadow-near"
	case CullShadowFar:
		return "shadow-far"
	default:
		return "none"
	}
}

// Location is one fragment stored in a pool. Offsets and counts are in
// vertices and indices.
type Location struct {
	pool *MeshPool

	Coord world.ChunkCoord
	Part  meshing.MeshPart
	LOD   meshing.LODLevel

	VertexOffset int
	VertexCount  int
	IndexOffset  int
	IndexCount   int

	Sphere meshing.BoundingSphere

	visible [numCullModes - 1]*Buffered[bool]
	removed bool
}

func newLocation(p *MeshPool) *Location {
	loc := &Location{pool: p}
	for i := range loc.visible {
		loc.visible[i] = NewBuffered(true)
	}
	return loc
}

// Pool returns the pool holding the fragment.
func (l *Location) Pool() *MeshPool { return l.pool }

// Removed reports whether Remove was called.
func (l *Location) Removed() bool { return l.removed }

// Visible reports the visibility flag published for the frame.
func (l *Location) Visible(fc FrameContext, mode CullMode) bool {
	if mode == CullNone {
		return true
	}
	return l.visible[mode].Read(fc)
}

func (l *Location) setVisible(fc FrameContext, mode CullMode, v bool) {
	if mode == CullNone {
		return
	}
	l.visible[mode].Write(fc, v)
}

// SizeBytes is the device memory taken by the fragment.
func (l *Location) SizeBytes() int {
	return l.VertexCount*meshing.VertexStride + l.IndexCount*indexSize
}
