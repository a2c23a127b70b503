// Package tessellate converts extracted mesh data into flat, wedge-space
// triangle buffers ready for GPU upload.
package tessellate

// Buffers holds four parallel triangle streams. Every emitted triangle corner
// owns its own position, normal and UV entry, and Indices simply counts them.
type Buffers struct {
	Positions [][3]float32
	Normals   [][3]float32
	UVs       [][2]float32
	Indices   []uint32

	// DoubleSided is carried over from the mesh so the consumer can choose a
	// culling mode.
	DoubleSided bool
	// SynthesizedNormals is set when Normals were computed from face
	// geometry rather than taken from authored values.
	SynthesizedNormals bool
}

// TriangleCount returns the number of emitted triangles.
func (b *Buffers) TriangleCount() int {
	return len(b.Indices) / 3
}

// VertexCount returns the number of emitted corners.
func (b *Buffers) VertexCount() int {
	return len(b.Positions)
}

// IsEmpty reports whether no triangles were emitted.
func (b *Buffers) IsEmpty() bool {
	return len(b.Indices) == 0
}
