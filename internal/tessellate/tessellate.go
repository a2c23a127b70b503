package tessellate

import (
	"errors"
	"fmt"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/Faultbox/usdflat/internal/logger"
	"github.com/Faultbox/usdflat/internal/scene"
)

// Structural errors. A mesh that fails either check produces no buffers.
var (
	ErrFaceIndexOutOfRange = errors.New("face vertex index out of range")
	ErrInvalidFaceCount    = errors.New("negative face vertex count")
)

// Tessellate expands m into wedge space and fan-triangulates every polygon.
// Only corrupt topology is an error; missing or mis-sized normals and UVs
// degrade to synthesized normals and zero UVs.
func Tessellate(m *scene.MeshData) (*Buffers, error) {
	if err := validate(m); err != nil {
		return nil, fmt.Errorf("mesh %s: %w", m.Path, err)
	}

	wedges := len(m.FaceVertexIndices)
	counts := clampCounts(m.FaceVertexCounts, wedges)
	if sum := sumCounts(m.FaceVertexCounts); sum != wedges {
		logger.Debug("face vertex counts do not cover the index stream",
			zap.String("mesh", m.Path),
			zap.Int("sum_counts", sum),
			zap.Int("indices", wedges),
		)
	}

	positions := make([][3]float32, wedges)
	for w, v := range m.FaceVertexIndices {
		positions[w] = m.Positions[v]
	}

	normals, synthesized := resolveNormals(m, counts)
	uvs := resolveUVs(m)

	b := triangulate(counts, positions, normals, uvs)
	b.DoubleSided = m.DoubleSided
	b.SynthesizedNormals = synthesized
	return b, nil
}

// All tessellates every mesh of s, in mesh order. A mesh that fails leaves a
// nil entry and its error is combined into the returned error, so one corrupt
// mesh does not hide the others.
func All(s *scene.SceneData) ([]*Buffers, error) {
	out := make([]*Buffers, len(s.Meshes))
	var errs error
	for i := range s.Meshes {
		b, err := Tessellate(&s.Meshes[i])
		if err != nil {
			errs = multierr.Append(errs, err)
			continue
		}
		out[i] = b
	}
	return out, errs
}

func validate(m *scene.MeshData) error {
	for i, n := range m.FaceVertexCounts {
		if n < 0 {
			return fmt.Errorf("%w: faceVertexCounts[%d] = %d", ErrInvalidFaceCount, i, n)
		}
	}
	for i, v := range m.FaceVertexIndices {
		if v < 0 || v >= len(m.Positions) {
			return fmt.Errorf("%w: faceVertexIndices[%d] = %d, %d points",
				ErrFaceIndexOutOfRange, i, v, len(m.Positions))
		}
	}
	return nil
}

func sumCounts(counts []int) int {
	sum := 0
	for _, n := range counts {
		sum += n
	}
	return sum
}

// clampCounts trims the face list so that no face reads past the index
// stream. Faces that start beyond the end are dropped.
func clampCounts(counts []int, wedges int) []int {
	out := make([]int, 0, len(counts))
	cursor := 0
	for _, n := range counts {
		if cursor+n > wedges {
			if rest := wedges - cursor; rest > 0 {
				out = append(out, rest)
			}
			break
		}
		out = append(out, n)
		cursor += n
	}
	return out
}

// resolveUVs maps UVs to wedge space. Anything that is neither per-wedge nor
// per-vertex becomes zero.
func resolveUVs(m *scene.MeshData) [][2]float32 {
	wedges := len(m.FaceVertexIndices)
	switch {
	case !m.HasUVs():
		return make([][2]float32, wedges)
	case len(m.UVs) == wedges:
		return m.UVs
	case len(m.UVs) == len(m.Positions):
		out := make([][2]float32, wedges)
		for w, v := range m.FaceVertexIndices {
			out[w] = m.UVs[v]
		}
		return out
	default:
		logger.Debug("uv count matches neither wedges nor points, using zero",
			zap.String("mesh", m.Path),
			zap.Int("uvs", len(m.UVs)),
		)
		return make([][2]float32, wedges)
	}
}

// triangulate fans each polygon from its first corner. Triangle i of a face
// uses corners (0, i+2, i+1).
func triangulate(counts []int, positions, normals [][3]float32, uvs [][2]float32) *Buffers {
	tris := 0
	for _, n := range counts {
		tris += max(n-2, 0)
	}

	b := &Buffers{
		Positions: make([][3]float32, 0, tris*3),
		Normals:   make([][3]float32, 0, tris*3),
		UVs:       make([][2]float32, 0, tris*3),
		Indices:   make([]uint32, 0, tris*3),
	}

	base := 0
	for _, n := range counts {
		for i := 0; i < n-2; i++ {
			for _, w := range [3]int{base, base + i + 2, base + i + 1} {
				b.Indices = append(b.Indices, uint32(len(b.Positions)))
				b.Positions = append(b.Positions, positions[w])
				b.Normals = append(b.Normals, normals[w])
				b.UVs = append(b.UVs, uvs[w])
			}
		}
		base += n
	}
	return b
}
