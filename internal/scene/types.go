// Package scene flattens a USD stage into a list of distinct meshes plus one
// world transform per geometric occurrence.
package scene

import (
	"github.com/Faultbox/usdflat/pkg/math"
)

// PrimvarInterpolation says how a primvar's values map onto a mesh's
// topology. The zero value is InterpolationUnknown.
type PrimvarInterpolation int

const (
	InterpolationUnknown     PrimvarInterpolation = iota
	InterpolationVertex                           // one value per point
	InterpolationVarying                          // one value per point, linearly interpolated
	InterpolationFaceVarying                      // one value per face corner (wedge)
	InterpolationUniform                          // one value per face
	InterpolationConstant                         // one value for the whole mesh
)

// MeshData is the geometry of one source mesh prim, extracted once and never
// modified afterwards.
//
// Optional fields are nil when the source does not author them. A non-nil
// empty slice means the attribute was authored but held no values.
type MeshData struct {
	// Path is the source prim path the mesh was memoized under.
	Path string

	Positions         [][3]float32
	FaceVertexCounts  []int
	FaceVertexIndices []int

	Normals             [][3]float32
	NormalIndices       []int
	NormalInterpolation *PrimvarInterpolation

	UVs [][2]float32

	DoubleSided bool
}

// HasNormals reports whether normals were authored.
func (m *MeshData) HasNormals() bool { return m.Normals != nil }

// HasNormalIndices reports whether normals are looked up through an index
// set. An empty set counts as absent.
func (m *MeshData) HasNormalIndices() bool { return len(m.NormalIndices) > 0 }

// HasUVs reports whether texture coordinates were authored.
func (m *MeshData) HasUVs() bool { return m.UVs != nil }

// Interpolation returns the normal interpolation, or InterpolationUnknown
// when none is recorded.
func (m *MeshData) Interpolation() PrimvarInterpolation {
	if m.NormalInterpolation == nil {
		return InterpolationUnknown
	}
	return *m.NormalInterpolation
}

// WedgeCount returns the number of face corners.
func (m *MeshData) WedgeCount() int {
	return len(m.FaceVertexIndices)
}

// TriangleCount returns the number of triangles a fan triangulation emits.
func (m *MeshData) TriangleCount() int {
	n := 0
	for _, c := range m.FaceVertexCounts {
		if c > 2 {
			n += c - 2
		}
	}
	return n
}

// Bounds returns the object-space bounding box of the mesh points.
func (m *MeshData) Bounds() math.AABB {
	b := math.EmptyAABB()
	for _, p := range m.Positions {
		b = b.Extend(math.Vec3From(p))
	}
	return b
}

// MeshInstance places one mesh in the world.
type MeshInstance struct {
	MeshIndex int
	// Transform is row-major with column-vector math: the translation is in
	// column 3, i.e. Transform[0][3], Transform[1][3], Transform[2][3].
	Transform [4][4]float32
}

// Mat4 returns the transform in column-major layout for GPU upload.
func (i MeshInstance) Mat4() math.Mat4 {
	return math.FromRows(i.Transform)
}

// SceneData is the result of flattening one stage. Meshes are ordered by
// first encounter during traversal; instances by occurrence.
type SceneData struct {
	Meshes    []MeshData
	Instances []MeshInstance
}

// Stats summarizes a flattened scene.
type Stats struct {
	Meshes    int `yaml:"meshes"`
	Instances int `yaml:"instances"`
	Points    int `yaml:"points"`
	Faces     int `yaml:"faces"`
	Triangles int `yaml:"triangles"`
	// InstancedTriangles counts triangles over all instances.
	InstancedTriangles int `yaml:"instanced_triangles"`
}

// Stats counts the scene's distinct geometry and its instanced total.
func (s *SceneData) Stats() Stats {
	st := Stats{
		Meshes:    len(s.Meshes),
		Instances: len(s.Instances),
	}
	for i := range s.Meshes {
		m := &s.Meshes[i]
		st.Points += len(m.Positions)
		st.Faces += len(m.FaceVertexCounts)
		st.Triangles += m.TriangleCount()
	}
	for _, inst := range s.Instances {
		if inst.MeshIndex >= 0 && inst.MeshIndex < len(s.Meshes) {
			st.InstancedTriangles += s.Meshes[inst.MeshIndex].TriangleCount()
		}
	}
	return st
}

// Bounds returns the world-space bounding box over every instance. It
// reports false when no instance contributes a point.
func (s *SceneData) Bounds() (math.AABB, bool) {
	local := make([]math.AABB, len(s.Meshes))
	for i := range s.Meshes {
		local[i] = s.Meshes[i].Bounds()
	}

	world := math.EmptyAABB()
	for _, inst := range s.Instances {
		if inst.MeshIndex < 0 || inst.MeshIndex >= len(local) {
			continue
		}
		world = world.Union(local[inst.MeshIndex].Transform(inst.Mat4()))
	}
	return world, !world.IsEmpty()
}
