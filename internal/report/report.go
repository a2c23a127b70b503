// Package report summarizes a flattened scene for humans and scripts.
package report

import (
	"github.com/Faultbox/usdflat/internal/scene"
	"github.com/Faultbox/usdflat/internal/tessellate"
	"github.com/Faultbox/usdflat/pkg/math"
	"github.com/Faultbox/usdflat/pkg/usd"
)

// NormalsSynthesized is the MeshSummary.Normals label for meshes whose
// normals are computed from face geometry.
const NormalsSynthesized = "synthesized"

// Report is the serializable summary of one conversion.
type Report struct {
	Source    string            `yaml:"source"`
	Stage     StageInfo         `yaml:"stage"`
	Stats     scene.Stats       `yaml:"stats"`
	Bounds    *Bounds           `yaml:"bounds,omitempty"`
	Meshes    []MeshSummary     `yaml:"meshes"`
	Instances []InstanceSummary `yaml:"instances,omitempty"`
	Failures  []string          `yaml:"failures,omitempty"`
}

// StageInfo holds root layer metadata and prim counts.
type StageInfo struct {
	DefaultPrim   string         `yaml:"default_prim,omitempty"`
	UpAxis        string         `yaml:"up_axis"`
	MetersPerUnit float64        `yaml:"meters_per_unit"`
	Prims         map[string]int `yaml:"prims,omitempty"`
}

// Bounds is an axis-aligned box in YAML-friendly form.
type Bounds struct {
	Min [3]float32 `yaml:"min,flow"`
	Max [3]float32 `yaml:"max,flow"`
}

// MeshSummary describes one distinct mesh.
type MeshSummary struct {
	Index       int    `yaml:"index"`
	Path        string `yaml:"path"`
	Points      int    `yaml:"points"`
	Faces       int    `yaml:"faces"`
	Normals     string `yaml:"normals"`
	UVs         bool   `yaml:"uvs"`
	DoubleSided bool   `yaml:"double_sided"`
	Instances   int    `yaml:"instances"`
	// Triangles is the emitted triangle count, or -1 when tessellation failed.
	Triangles int     `yaml:"triangles"`
	Bounds    *Bounds `yaml:"bounds,omitempty"`
}

// InstanceSummary places one mesh occurrence.
type InstanceSummary struct {
	Mesh      int           `yaml:"mesh"`
	Transform [4][4]float32 `yaml:"transform,flow"`
}

// Options selects optional report sections.
type Options struct {
	IncludeInstances bool
}

// Build assembles a report. stage may be nil when only the scene is known.
// buffers is indexed like s.Meshes; a nil entry marks a failed mesh.
func Build(source string, stage *usd.Stage, s *scene.SceneData, buffers []*tessellate.Buffers, failures []error, opts Options) *Report {
	r := &Report{
		Source: source,
		Stats:  s.Stats(),
		Meshes: make([]MeshSummary, len(s.Meshes)),
	}
	if stage != nil {
		r.Stage = StageInfo{
			DefaultPrim:   stage.Metadata.DefaultPrim,
			UpAxis:        stage.Metadata.UpAxis,
			MetersPerUnit: stage.Metadata.MetersPerUnit,
			Prims:         stage.CountByType(),
		}
	}
	if b, ok := s.Bounds(); ok {
		r.Bounds = toBounds(b)
	}

	uses := make([]int, len(s.Meshes))
	for _, inst := range s.Instances {
		if inst.MeshIndex >= 0 && inst.MeshIndex < len(uses) {
			uses[inst.MeshIndex]++
		}
	}

	for i := range s.Meshes {
		m := &s.Meshes[i]
		ms := MeshSummary{
			Index:       i,
			Path:        m.Path,
			Points:      len(m.Positions),
			Faces:       len(m.FaceVertexCounts),
			Normals:     normalSource(m, nil),
			UVs:         m.HasUVs(),
			DoubleSided: m.DoubleSided,
			Instances:   uses[i],
			Triangles:   -1,
		}
		if i < len(buffers) && buffers[i] != nil {
			ms.Triangles = buffers[i].TriangleCount()
			ms.Normals = normalSource(m, buffers[i])
		}
		if b := m.Bounds(); !b.IsEmpty() {
			ms.Bounds = toBounds(b)
		}
		r.Meshes[i] = ms
	}

	if opts.IncludeInstances {
		r.Instances = make([]InstanceSummary, len(s.Instances))
		for i, inst := range s.Instances {
			r.Instances[i] = InstanceSummary{Mesh: inst.MeshIndex, Transform: inst.Transform}
		}
	}

	for _, err := range failures {
		r.Failures = append(r.Failures, err.Error())
	}
	return r
}

// normalSource names where a mesh's normals come from. With buffers it
// follows what tessellation emitted; without, it names the authored mode.
func normalSource(m *scene.MeshData, b *tessellate.Buffers) string {
	if b != nil && b.SynthesizedNormals {
		return NormalsSynthesized
	}
	if !m.HasNormals() || m.Interpolation() == scene.InterpolationUnknown {
		return NormalsSynthesized
	}
	return m.Interpolation().String()
}

func toBounds(b math.AABB) *Bounds {
	return &Bounds{Min: b.Min.Array(), Max: b.Max.Array()}
}
