package report

import (
	"errors"
	"fmt"
	"io"
	"sort"

	"gopkg.in/yaml.v3"
)

// Supported output formats.
const (
	FormatYAML = "yaml"
	FormatText = "text"
)

// ErrUnknownFormat is returned for an output format other than yaml or text.
var ErrUnknownFormat = errors.New("unknown report format")

// Write renders r to w in the given format.
func Write(w io.Writer, r *Report, format string) error {
	switch format {
	case FormatYAML:
		return WriteYAML(w, r)
	case FormatText:
		return WriteText(w, r)
	default:
		return fmt.Errorf("%w: %q", ErrUnknownFormat, format)
	}
}

// WriteYAML encodes r as a YAML document.
func WriteYAML(w io.Writer, r *Report) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encoding report: %w", err)
	}
	return enc.Close()
}

// WriteText prints r as aligned plain text.
func WriteText(w io.Writer, r *Report) error {
	ew := &errWriter{w: w}

	ew.printf("Stage:     %s\n", r.Source)
	if r.Stage.DefaultPrim != "" {
		ew.printf("Default:   %s\n", r.Stage.DefaultPrim)
	}
	ew.printf("Up axis:   %s (%g m/unit)\n", r.Stage.UpAxis, r.Stage.MetersPerUnit)

	if len(r.Stage.Prims) > 0 {
		types := make([]string, 0, len(r.Stage.Prims))
		for t := range r.Stage.Prims {
			types = append(types, t)
		}
		sort.Strings(types)
		ew.printf("\nPrims:\n")
		for _, t := range types {
			name := t
			if name == "" {
				name = "(typeless)"
			}
			ew.printf("  %-16s %6d\n", name, r.Stage.Prims[t])
		}
	}

	st := r.Stats
	ew.printf("\nMeshes:    %d distinct, %d instances\n", st.Meshes, st.Instances)
	ew.printf("Geometry:  %d points, %d faces, %d triangles (%d instanced)\n",
		st.Points, st.Faces, st.Triangles, st.InstancedTriangles)
	if r.Bounds != nil {
		ew.printf("Bounds:    %v .. %v\n", r.Bounds.Min, r.Bounds.Max)
	}

	if len(r.Meshes) > 0 {
		ew.printf("\n%4s  %-40s %8s %8s %8s %6s  %s\n", "#", "Path", "Points", "Tris", "Uses", "UVs", "Normals")
		for _, m := range r.Meshes {
			tris := fmt.Sprint(m.Triangles)
			if m.Triangles < 0 {
				tris = "failed"
			}
			ew.printf("%4d  %-40s %8d %8s %8d %6t  %s\n",
				m.Index, m.Path, m.Points, tris, m.Instances, m.UVs, m.Normals)
		}
	}

	if len(r.Instances) > 0 {
		ew.printf("\nInstances:\n")
		for i, inst := range r.Instances {
			t := inst.Transform
			ew.printf("  %4d  mesh %-4d at (%g, %g, %g)\n", i, inst.Mesh, t[0][3], t[1][3], t[2][3])
		}
	}

	if len(r.Failures) > 0 {
		ew.printf("\nFailures:\n")
		for _, f := range r.Failures {
			ew.printf("  %s\n", f)
		}
	}
	return ew.err
}

// errWriter keeps the first write error so WriteText can check once.
type errWriter struct {
	w   io.Writer
	err error
}

func (e *errWriter) printf(format string, args ...any) {
	if e.err != nil {
		return
	}
	_, e.err = fmt.Fprintf(e.w, format, args...)
}
