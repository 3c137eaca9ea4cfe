package meshing

// MeshPart separates geometry of interior voxels from geometry of voxels on
// the chunk border, which neighbour edits can invalidate on their own.
type MeshPart uint8

const (
	PartCenter MeshPart = iota
	PartEdge
)

type meshMark struct {
	mesh     *MeshData
	vertices int
	indices  int
}

// MeshAccumulator collects the output of one meshing pass, keyed by
// MeshKey and split into center and edge parts.
type MeshAccumulator struct {
	Center map[MeshKey]*MeshData
	Edge   map[MeshKey]*MeshData

	part    MeshPart
	marking bool
	marks   []meshMark
}

// NewMeshAccumulator creates an empty accumulator writing to PartCenter.
func NewMeshAccumulator() *MeshAccumulator {
	return &MeshAccumulator{
		Center: make(map[MeshKey]*MeshData),
		Edge:   make(map[MeshKey]*MeshData),
	}
}

// SetPart selects the part subsequent Mesh calls write to.
func (a *MeshAccumulator) SetPart(p MeshPart) { a.part = p }

// Part returns the current output part.
func (a *MeshAccumulator) Part() MeshPart { return a.part }

// Mesh returns the mesh for key in the current part, creating it on demand.
func (a *MeshAccumulator) Mesh(key MeshKey) *MeshData {
	target := a.Center
	if a.part == PartEdge {
		target = a.Edge
	}
	m, ok := target[key]
	if !ok {
		m = NewMeshData(256)
		target[key] = m
	}
	if a.marking {
		for _, mk := range a.marks {
			if mk.mesh == m {
				return m
			}
		}
		a.marks = append(a.marks, meshMark{mesh: m, vertices: m.VerticesCount(), indices: m.IndicesCount()})
	}
	return m
}

// Mark starts recording every mesh touched from now on so Rollback can
// drop the geometry added since.
func (a *MeshAccumulator) Mark() {
	a.marks = a.marks[:0]
	a.marking = true
}

// Rollback truncates every mesh touched since Mark.
func (a *MeshAccumulator) Rollback() {
	for _, mk := range a.marks {
		mk.mesh.Truncate(mk.vertices, mk.indices)
	}
	a.marks = a.marks[:0]
}

// Reset empties both parts.
func (a *MeshAccumulator) Reset() {
	clear(a.Center)
	clear(a.Edge)
	a.part = PartCenter
	a.marks = a.marks[:0]
	a.marking = false
}
