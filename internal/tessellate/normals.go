package tessellate

import (
	"go.uber.org/zap"

	"github.com/Faultbox/usdflat/internal/logger"
	"github.com/Faultbox/usdflat/internal/scene"
	"github.com/Faultbox/usdflat/pkg/math"
)

// float32Epsilon is the machine epsilon for float32.
const float32Epsilon = 1.1920929e-07

var upAxis = [3]float32{0, 1, 0}

// resolveNormals returns one normal per wedge. Authored normals are mapped
// according to their interpolation; when that is unknown or the array sizes
// do not fit the mode, face normals are synthesized instead and synthesized
// is true.
func resolveNormals(m *scene.MeshData, counts []int) (normals [][3]float32, synthesized bool) {
	if !m.HasNormals() {
		return synthesizeNormals(m, counts), true
	}

	var out [][3]float32
	var ok bool
	switch m.Interpolation() {
	case scene.InterpolationFaceVarying:
		out, ok = faceVaryingNormals(m)
	case scene.InterpolationVertex, scene.InterpolationVarying:
		out, ok = vertexNormals(m)
	case scene.InterpolationUniform:
		out, ok = uniformNormals(m, counts)
	case scene.InterpolationConstant:
		out, ok = constantNormals(m)
	}
	if ok {
		return out, false
	}

	logger.Debug("authored normals unusable, synthesizing",
		zap.String("mesh", m.Path),
		zap.Stringer("interpolation", m.Interpolation()),
		zap.Int("normals", len(m.Normals)),
		zap.Int("normal_indices", len(m.NormalIndices)),
	)
	return synthesizeNormals(m, counts), true
}

func faceVaryingNormals(m *scene.MeshData) ([][3]float32, bool) {
	wedges := len(m.FaceVertexIndices)
	if m.HasNormalIndices() {
		if len(m.NormalIndices) != wedges {
			return nil, false
		}
		return sample(m.Normals, m.NormalIndices)
	}
	if len(m.Normals) == wedges {
		return m.Normals, true
	}
	return nil, false
}

func vertexNormals(m *scene.MeshData) ([][3]float32, bool) {
	wedges := len(m.FaceVertexIndices)
	vertices := len(m.Positions)

	perVertex := m.Normals
	if m.HasNormalIndices() {
		switch len(m.NormalIndices) {
		case vertices:
			var ok bool
			if perVertex, ok = sample(m.Normals, m.NormalIndices); !ok {
				return nil, false
			}
		case wedges:
			return sample(m.Normals, m.NormalIndices)
		default:
			return nil, false
		}
	} else if len(m.Normals) != vertices {
		if len(m.Normals) == wedges {
			return m.Normals, true
		}
		return nil, false
	}

	out := make([][3]float32, wedges)
	for w, v := range m.FaceVertexIndices {
		out[w] = perVertex[v]
	}
	return out, true
}

func uniformNormals(m *scene.MeshData, counts []int) ([][3]float32, bool) {
	faces := len(m.FaceVertexCounts)

	perFace := m.Normals
	if m.HasNormalIndices() {
		if len(m.NormalIndices) != faces {
			return nil, false
		}
		var ok bool
		if perFace, ok = sample(m.Normals, m.NormalIndices); !ok {
			return nil, false
		}
	} else if len(m.Normals) != faces {
		return nil, false
	}

	out := make([][3]float32, 0, len(m.FaceVertexIndices))
	for f, n := range counts {
		for k := 0; k < n; k++ {
			out = append(out, perFace[f])
		}
	}
	return padUp(out, len(m.FaceVertexIndices)), true
}

func constantNormals(m *scene.MeshData) ([][3]float32, bool) {
	var n [3]float32
	if m.HasNormalIndices() {
		i := m.NormalIndices[0]
		if i < 0 || i >= len(m.Normals) {
			return nil, false
		}
		n = m.Normals[i]
	} else {
		if len(m.Normals) == 0 {
			return nil, false
		}
		n = m.Normals[0]
	}

	out := make([][3]float32, len(m.FaceVertexIndices))
	for w := range out {
		out[w] = n
	}
	return out, true
}

// sample gathers values by index. Any out-of-range index rejects the whole
// gather.
func sample(values [][3]float32, indices []int) ([][3]float32, bool) {
	out := make([][3]float32, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(values) {
			return nil, false
		}
		out[i] = values[idx]
	}
	return out, true
}

// synthesizeNormals computes one flat normal per polygon from the fan around
// its first corner and repeats it for every corner. Polygons with fewer than
// three corners, or with no area, get the up axis.
func synthesizeNormals(m *scene.MeshData, counts []int) [][3]float32 {
	idx := m.FaceVertexIndices
	out := make([][3]float32, 0, len(idx))

	cursor := 0
	for _, n := range counts {
		normal := upAxis
		if n >= 3 {
			p0 := math.Vec3From(m.Positions[idx[cursor]])
			var sum math.Vec3
			for k := 1; k < n-1; k++ {
				e1 := math.Vec3From(m.Positions[idx[cursor+k]]).Sub(p0)
				e2 := math.Vec3From(m.Positions[idx[cursor+k+1]]).Sub(p0)
				sum = sum.Add(e2.Cross(e1))
			}
			if sum.LengthSqr() > float32Epsilon {
				normal = sum.Normalize().Array()
			}
		}
		for k := 0; k < n; k++ {
			out = append(out, normal)
		}
		cursor += n
	}
	return padUp(out, len(idx))
}

// padUp extends normals to the wedge count with the up axis. Only needed
// when face counts do not cover every index.
func padUp(normals [][3]float32, wedges int) [][3]float32 {
	for len(normals) < wedges {
		normals = append(normals, upAxis)
	}
	return normals
}
