package report

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"gopkg.in/yaml.v3"

	"github.com/Faultbox/usdflat/internal/scene"
	"github.com/Faultbox/usdflat/internal/tessellate"
	"github.com/Faultbox/usdflat/pkg/usd"
)

const layer = `#usda 1.0
(
    defaultPrim = "World"
    upAxis = "Z"
    metersPerUnit = 1
)

def Xform "World"
{
    def Mesh "Tri"
    {
        point3f[] points = [(0, 0, 0), (1, 0, 0), (0, 1, 0)]
        int[] faceVertexCounts = [3]
        int[] faceVertexIndices = [0, 1, 2]
        normal3f[] normals = [(0, 0, 1)] (interpolation = "constant")
    }
    def Mesh "Broken"
    {
        point3f[] points = [(0, 0, 0)]
        int[] faceVertexCounts = [3]
        int[] faceVertexIndices = [0, 1, 2]
        texCoord2f[] primvars:st = [(0, 0)]
    }
}
`

func build(t *testing.T, opts Options) *Report {
	t.Helper()
	stage, err := usd.ParseUSDA([]byte(layer))
	if err != nil {
		t.Fatalf("ParseUSDA: %v", err)
	}
	s, err := scene.Flatten(stage, scene.DefaultOptions())
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	buffers, err := tessellate.All(s)
	if err == nil {
		t.Fatal("expected the broken mesh to fail")
	}
	return Build("test.usda", stage, s, buffers, []error{err}, opts)
}

func TestBuild(t *testing.T) {
	r := build(t, Options{IncludeInstances: true})

	if r.Stage.DefaultPrim != "World" || r.Stage.UpAxis != "Z" || r.Stage.MetersPerUnit != 1 {
		t.Errorf("Stage = %+v", r.Stage)
	}
	if r.Stage.Prims[usd.TypeMesh] != 2 || r.Stage.Prims[usd.TypeXform] != 1 {
		t.Errorf("Prims = %v", r.Stage.Prims)
	}
	if r.Stats.Meshes != 2 || r.Stats.Instances != 2 {
		t.Errorf("Stats = %+v", r.Stats)
	}
	if r.Bounds == nil || r.Bounds.Max != [3]float32{1, 1, 0} {
		t.Errorf("Bounds = %+v", r.Bounds)
	}

	tri, broken := r.Meshes[0], r.Meshes[1]
	if tri.Path != "/World/Tri" || tri.Triangles != 1 || tri.Normals != "constant" || tri.Instances != 1 {
		t.Errorf("Tri = %+v", tri)
	}
	if broken.Triangles != -1 || broken.Normals != NormalsSynthesized || !broken.UVs {
		t.Errorf("Broken = %+v", broken)
	}
	if len(r.Instances) != 2 || r.Instances[1].Mesh != 1 {
		t.Errorf("Instances = %+v", r.Instances)
	}
	if len(r.Failures) != 1 || !strings.Contains(r.Failures[0], "/World/Broken") {
		t.Errorf("Failures = %v", r.Failures)
	}

	if r := build(t, Options{}); r.Instances != nil {
		t.Errorf("instances included without being asked: %v", r.Instances)
	}
}

func TestBuild_NormalsLabelFollowsTessellation(t *testing.T) {
	stage, err := usd.ParseUSDA([]byte(`#usda 1.0
def Mesh "Tri"
{
    point3f[] points = [(0, 0, 0), (1, 0, 0), (0, 1, 0)]
    int[] faceVertexCounts = [3]
    int[] faceVertexIndices = [0, 1, 2]
    normal3f[] normals = [(0, 0, 1), (0, 0, 1)] (interpolation = "faceVarying")
}
`))
	if err != nil {
		t.Fatalf("ParseUSDA: %v", err)
	}
	s, err := scene.Flatten(stage, scene.DefaultOptions())
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	buffers, err := tessellate.All(s)
	if err != nil {
		t.Fatalf("All: %v", err)
	}

	if got := Build("tri.usda", stage, s, buffers, nil, Options{}).Meshes[0].Normals; got != NormalsSynthesized {
		t.Errorf("Normals = %q, want %q for a size mismatch", got, NormalsSynthesized)
	}
	if got := Build("tri.usda", stage, s, nil, nil, Options{}).Meshes[0].Normals; got != "faceVarying" {
		t.Errorf("Normals without buffers = %q, want the authored mode", got)
	}
}

func TestBuild_WithoutStage(t *testing.T) {
	r := Build("mem", nil, &scene.SceneData{}, nil, nil, Options{})
	if r.Bounds != nil || len(r.Meshes) != 0 || r.Stage.Prims != nil {
		t.Errorf("expected an empty report, got %+v", r)
	}
}

func TestWriteYAML(t *testing.T) {
	r := build(t, Options{IncludeInstances: true})

	var buf bytes.Buffer
	if err := Write(&buf, r, FormatYAML); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"source: test.usda", "up_axis: Z", "instanced_triangles: 2", "normals: synthesized"} {
		if !strings.Contains(out, want) {
			t.Errorf("YAML missing %q:\n%s", want, out)
		}
	}

	var back Report
	if err := yaml.Unmarshal(buf.Bytes(), &back); err != nil {
		t.Fatalf("output is not valid YAML: %v", err)
	}
	if back.Stats != r.Stats || len(back.Instances) != 2 || back.Instances[0].Transform != r.Instances[0].Transform {
		t.Errorf("decoded report differs: %+v", back)
	}
}

func TestWriteText(t *testing.T) {
	var buf bytes.Buffer
	if err := Write(&buf, build(t, Options{IncludeInstances: true}), FormatText); err != nil {
		t.Fatalf("Write: %v", err)
	}
	out := buf.String()
	for _, want := range []string{"Stage:     test.usda", "Default:   World", "/World/Tri", "failed", "Instances:", "Failures:"} {
		if !strings.Contains(out, want) {
			t.Errorf("text missing %q:\n%s", want, out)
		}
	}
}

func TestWrite_UnknownFormat(t *testing.T) {
	err := Write(&bytes.Buffer{}, &Report{}, "json")
	if !errors.Is(err, ErrUnknownFormat) {
		t.Errorf("got %v, want ErrUnknownFormat", err)
	}
}

type failingWriter struct{}

func (failingWriter) Write([]byte) (int, error) { return 0, errors.New("disk full") }

func TestWriteText_PropagatesWriteError(t *testing.T) {
	if err := WriteText(failingWriter{}, &Report{Source: "x"}); err == nil {
		t.Error("expected the write error")
	}
}
