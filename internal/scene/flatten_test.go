package scene

import (
	"errors"
	"math"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/go-gl/mathgl/mgl32"
	"github.com/go-gl/mathgl/mgl64"

	"github.com/Faultbox/usdflat/pkg/usd"
)

const matrixEpsilon = 1e-4

func flatten(t *testing.T, src string) *SceneData {
	t.Helper()
	s, err := Flatten(parseStage(t, src), DefaultOptions())
	if err != nil {
		t.Fatalf("Flatten: %v", err)
	}
	return s
}

func translationOf(inst MeshInstance) [3]float32 {
	return [3]float32{inst.Transform[0][3], inst.Transform[1][3], inst.Transform[2][3]}
}

// mat32 reads an instance transform back into column-vector mgl32 form.
func mat32(inst MeshInstance) mgl32.Mat4 {
	r := inst.Transform
	return mgl32.Mat4FromRows(mgl32.Vec4(r[0]), mgl32.Vec4(r[1]), mgl32.Vec4(r[2]), mgl32.Vec4(r[3]))
}

// axisX returns where the instance maps the X direction, ignoring translation.
func axisX(inst MeshInstance) [3]float32 {
	return [3]float32(mat32(inst).Mul4x1(mgl32.Vec4{1, 0, 0, 0}).Vec3())
}

func approxVec(a, b [3]float32) bool {
	for i := range a {
		if math.Abs(float64(a[i]-b[i])) > matrixEpsilon {
			return false
		}
	}
	return true
}

func TestFlatten_TransformComposition(t *testing.T) {
	// The parent composes xformOps; the child only authors a raw row-vector
	// matrix that must be transposed before use.
	s := flatten(t, `#usda 1.0
def Xform "World"
{
    double3 xformOp:translate = (1, 2, 3)
    float xformOp:rotateZ = 90
    float3 xformOp:scale = (2, 2, 2)
    uniform token[] xformOpOrder = ["xformOp:translate", "xformOp:rotateZ", "xformOp:scale"]

    def Mesh "M"
    {
        matrix4d xformOp:transform = ((1, 0, 0, 0), (0, 1, 0, 0), (0, 0, 1, 0), (5, 0, 0, 1))
        point3f[] points = [(0, 0, 0)]
    }
}
`)
	if len(s.Instances) != 1 {
		t.Fatalf("instances = %d, want 1", len(s.Instances))
	}
	inst := s.Instances[0]

	parent := mgl32.Translate3D(1, 2, 3).
		Mul4(mgl32.HomogRotate3DZ(math.Pi / 2)).
		Mul4(mgl32.Scale3D(2, 2, 2))
	local := mgl32.Translate3D(5, 0, 0)
	want := parent.Mul4(local)

	if !mat32(inst).ApproxEqualThreshold(want, matrixEpsilon) {
		t.Errorf("world transform = %v\nwant %v", inst.Transform, want)
	}
	// scale (5,0,0) -> (10,0,0), rotate -> (0,10,0), translate -> (1,12,3)
	if got := translationOf(inst); !approxVec(got, [3]float32{1, 12, 3}) {
		t.Errorf("translation = %v, want (1, 12, 3)", got)
	}
	if inst.Transform[3] != [4]float32{0, 0, 0, 1} {
		t.Errorf("bottom row = %v, want (0, 0, 0, 1)", inst.Transform[3])
	}
}

func TestFlatten_ResetXformStack(t *testing.T) {
	s := flatten(t, `#usda 1.0
def Xform "World"
{
    double3 xformOp:translate = (10, 0, 0)
    uniform token[] xformOpOrder = ["xformOp:translate"]

    def Mesh "M"
    {
        double3 xformOp:translate = (1, 0, 0)
        uniform token[] xformOpOrder = ["!resetXformStack!", "xformOp:translate"]
    }
}
`)
	if got := translationOf(s.Instances[0]); got != [3]float32{1, 0, 0} {
		t.Errorf("translation = %v, want parent transform discarded", got)
	}
}

func TestFlatten_SkipsClassAndInactivePrims(t *testing.T) {
	s := flatten(t, `#usda 1.0
class "Protos"
{
    def Mesh "M" {}
}
def Mesh "Off" (active = false) {}
def Scope "Geo"
{
    def Mesh "On" {}
}
`)
	if len(s.Meshes) != 1 || s.Meshes[0].Path != "/Geo/On" {
		t.Errorf("meshes = %+v, want only /Geo/On", s.Meshes)
	}
}

func TestFlatten_MeshMemoization(t *testing.T) {
	s := flatten(t, `#usda 1.0
class "Protos"
{
    def Mesh "M"
    {
        point3f[] points = [(0, 0, 0), (1, 0, 0), (0, 1, 0)]
        int[] faceVertexCounts = [3]
        int[] faceVertexIndices = [0, 1, 2]
    }
}

def PointInstancer "Inst"
{
    int[] protoIndices = [0, 0]
    point3f[] positions = [(1, 0, 0), (2, 0, 0)]
    rel prototypes = </Protos/M>
}
`)
	if len(s.Meshes) != 1 {
		t.Fatalf("meshes = %d, want 1", len(s.Meshes))
	}
	if len(s.Instances) != 2 {
		t.Fatalf("instances = %d, want 2", len(s.Instances))
	}
	for i, inst := range s.Instances {
		if inst.MeshIndex != 0 {
			t.Errorf("instance %d mesh index = %d, want 0", i, inst.MeshIndex)
		}
	}
	if translationOf(s.Instances[0]) != [3]float32{1, 0, 0} || translationOf(s.Instances[1]) != [3]float32{2, 0, 0} {
		t.Errorf("instance translations = %v, %v", translationOf(s.Instances[0]), translationOf(s.Instances[1]))
	}
}

func TestFlatten_MeshOrderIsFirstEncounter(t *testing.T) {
	src := `#usda 1.0
def Scope "A"
{
    def Mesh "First" {}
    def Scope "Nested"
    {
        def Mesh "Second" {}
    }
}
def Mesh "Third" {}
`
	s := flatten(t, src)
	want := []string{"/A/First", "/A/Nested/Second", "/Third"}
	if len(s.Meshes) != len(want) {
		t.Fatalf("meshes = %d, want %d", len(s.Meshes), len(want))
	}
	for i, p := range want {
		if s.Meshes[i].Path != p {
			t.Errorf("mesh %d = %s, want %s", i, s.Meshes[i].Path, p)
		}
	}

	// A second run over the same stage yields identical output.
	if again := flatten(t, src); !reflect.DeepEqual(s, again) {
		t.Error("flattening is not deterministic")
	}
}

const instancerLayer = `#usda 1.0
def Xform "World"
{
    double3 xformOp:translate = (0, 0, 100)
    uniform token[] xformOpOrder = ["xformOp:translate"]

    def PointInstancer "Inst"
    {
        int[] protoIndices = [0, 1, 0]
        point3f[] positions = [(1, 0, 0), (0, 2, 0), (0, 0, 3)]
        float3[] scales = [(1, 1, 1), (2, 2, 2)]
        quath[] orientations = [(1, 0, 0, 0), (0, 0, 0, 0), (0.7071068, 0, 0, 0.7071068)]
        rel prototypes = [</World/Inst/Protos/A>, </World/Inst/Protos/B>]

        def Scope "Protos"
        {
            def Mesh "A"
            {
                point3f[] points = [(0, 0, 0)]
            }
            def Mesh "B" {}
        }
    }
}
`

func TestFlatten_InstancerExpansion(t *testing.T) {
	s := flatten(t, instancerLayer)

	if len(s.Meshes) != 2 {
		t.Fatalf("meshes = %d, want 2 (prototypes are not traversed as children)", len(s.Meshes))
	}
	if len(s.Instances) != 3 {
		t.Fatalf("instances = %d, want 3", len(s.Instances))
	}

	// Slot-major order: slot 0 gets points 0 and 2, slot 1 gets point 1.
	tests := []struct {
		mesh        int
		translation [3]float32
	}{
		{0, [3]float32{1, 0, 100}},
		{0, [3]float32{0, 0, 103}},
		{1, [3]float32{0, 2, 100}},
	}
	for i, tt := range tests {
		inst := s.Instances[i]
		if s.Meshes[inst.MeshIndex].Path != s.Meshes[tt.mesh].Path {
			t.Errorf("instance %d mesh = %s, want %s", i, s.Meshes[inst.MeshIndex].Path, s.Meshes[tt.mesh].Path)
		}
		if got := translationOf(inst); !approxVec(got, tt.translation) {
			t.Errorf("instance %d translation = %v, want %v", i, got, tt.translation)
		}
	}

	// Point 2: 90 degrees about Z, unit scale from the short scales array.
	if x := axisX(s.Instances[1]); !approxVec(x, [3]float32{0, 1, 0}) {
		t.Errorf("rotated X axis = %v, want (0, 1, 0)", x)
	}
	// Point 1: degenerate orientation becomes identity, scale 2.
	if x := axisX(s.Instances[2]); !approxVec(x, [3]float32{2, 0, 0}) {
		t.Errorf("scaled X axis = %v, want (2, 0, 0)", x)
	}
}

func TestFlatten_InstancerEdgeCases(t *testing.T) {
	tests := []struct {
		name          string
		body          string
		wantInstances int
	}{
		{
			name: "missing prototype is skipped",
			body: `int[] protoIndices = [0, 1]
                   rel prototypes = [</Nowhere>, </Protos/M>]`,
			wantInstances: 1,
		},
		{
			name:          "no prototypes relationship",
			body:          `int[] protoIndices = [0, 0]`,
			wantInstances: 0,
		},
		{
			name: "indices outside the slot range",
			body: `int[] protoIndices = [-1, 5, 0]
                   rel prototypes = </Protos/M>`,
			wantInstances: 1,
		},
		{
			name: "no per-point arrays beyond indices",
			body: `int[] protoIndices = [0, 0, 0]
                   rel prototypes = </Protos/M>`,
			wantInstances: 3,
		},
		{
			name: "no protoIndices",
			body: `point3f[] positions = [(1, 0, 0)]
                   rel prototypes = </Protos/M>`,
			wantInstances: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := flatten(t, "#usda 1.0\nclass \"Protos\" { def Mesh \"M\" {} }\n"+
				"def PointInstancer \"Inst\"\n{\n"+tt.body+"\n}\n")
			if len(s.Instances) != tt.wantInstances {
				t.Errorf("instances = %d, want %d", len(s.Instances), tt.wantInstances)
			}
			for i, inst := range s.Instances {
				if mat32(inst) != mgl32.Ident4() {
					t.Errorf("instance %d = %v, want identity from default TRS", i, inst.Transform)
				}
			}
		})
	}
}

func TestComposeTRS_MatchesReference(t *testing.T) {
	pos := [3]float32{1, -2.5, 3.25}
	scale := [3]float32{2, 3, 0.5}
	// Deliberately not unit length.
	rot := mgl64.Quat{W: 0.9, V: mgl64.Vec3{0.1, 0.2, 0.3}}

	got := mat32(MeshInstance{Transform: toRows(composeTRS(pos, rot, scale))})

	want := mgl32.Translate3D(pos[0], pos[1], pos[2]).
		Mul4(mgl32.Quat{W: 0.9, V: mgl32.Vec3{0.1, 0.2, 0.3}}.Normalize().Mat4()).
		Mul4(mgl32.Scale3D(scale[0], scale[1], scale[2]))
	if !got.ApproxEqualThreshold(want, matrixEpsilon) {
		t.Errorf("composeTRS = %v\nwant %v", got, want)
	}
}

func TestComposeTRS_DegenerateRotation(t *testing.T) {
	tests := []struct {
		name string
		rot  mgl64.Quat
	}{
		{"zero", mgl64.Quat{}},
		{"tiny", mgl64.Quat{W: 1e-4, V: mgl64.Vec3{1e-5, 0, 0}}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m := composeTRS([3]float32{1, 2, 3}, tt.rot, [3]float32{1, 1, 1})
			for i, v := range m {
				if math.IsNaN(v) || math.IsInf(v, 0) {
					t.Fatalf("element %d is %v", i, v)
				}
			}
			if !m.ApproxEqualThreshold(mgl64.Translate3D(1, 2, 3), 1e-12) {
				t.Errorf("degenerate rotation should be identity, got %v", m)
			}
		})
	}
}

func TestDecodeOrientations(t *testing.T) {
	tests := []struct {
		name  string
		value any
		want  int // -1 means nil
	}{
		{"quatf", []usd.Quatf{{W: 1}, {W: 0, X: 1}}, 2},
		{"quatd", []usd.Quatd{{W: 1}}, 1},
		{"quath", []usd.Quath{{W: usd.HalfFromFloat32(1)}}, 1},
		{"wrong type", []usd.Vec3f{{0, 0, 0}}, -1},
		{"declared without value", nil, -1},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			prim := usd.NewStage().DefinePrim("/I", usd.TypePointInstancer)
			attr := prim.SetAttribute(usd.AttrOrientations, "", tt.value)

			got := decodeOrientations(attr)
			if tt.want < 0 {
				if got != nil {
					t.Errorf("got %v, want nil", got)
				}
				return
			}
			if len(got) != tt.want {
				t.Fatalf("len = %d, want %d", len(got), tt.want)
			}
			if got[0].W != 1 {
				t.Errorf("first quaternion W = %v, want 1", got[0].W)
			}
		})
	}

	if decodeOrientations(nil) != nil {
		t.Error("absent attribute should decode to nil")
	}
}

func TestFlatten_CyclicInstancing(t *testing.T) {
	src := `#usda 1.0
def Xform "World"
{
    def PointInstancer "Inst"
    {
        int[] protoIndices = [0]
        rel prototypes = </World>
    }
}
`
	stage := parseStage(t, src)

	_, err := Flatten(stage, DefaultOptions())
	if !errors.Is(err, ErrCyclicInstancing) {
		t.Errorf("guarded run: got %v, want ErrCyclicInstancing", err)
	}

	_, err = Flatten(stage, Options{MaxDepth: 16, DetectCycles: false})
	if !errors.Is(err, ErrMaxDepthExceeded) {
		t.Errorf("unguarded run: got %v, want ErrMaxDepthExceeded", err)
	}
}

func TestFlatten_UnselectedCyclicSlotIsIgnored(t *testing.T) {
	// Inner lists its own enclosing prototype in slot 0, but no point
	// selects that slot.
	s := flatten(t, `#usda 1.0
class "Protos"
{
    def Xform "Group"
    {
        def PointInstancer "Inner"
        {
            int[] protoIndices = [1]
            rel prototypes = [</Protos/Group>, </Protos/M>]
        }
    }
    def Mesh "M" {}
}
def PointInstancer "Outer"
{
    int[] protoIndices = [0]
    rel prototypes = </Protos/Group>
}
`)
	if len(s.Instances) != 1 || s.Meshes[0].Path != "/Protos/M" {
		t.Errorf("instances = %d meshes = %v, want one instance of /Protos/M", len(s.Instances), s.Meshes)
	}
}

func TestFlatten_RepeatedPrototypeIsNotACycle(t *testing.T) {
	// The same prototype under two sibling instancers is fine.
	s := flatten(t, `#usda 1.0
class "Protos" { def Mesh "M" {} }
def PointInstancer "A"
{
    int[] protoIndices = [0]
    rel prototypes = </Protos/M>
}
def PointInstancer "B"
{
    int[] protoIndices = [0]
    rel prototypes = </Protos/M>
}
`)
	if len(s.Instances) != 2 || len(s.Meshes) != 1 {
		t.Errorf("instances = %d meshes = %d, want 2 and 1", len(s.Instances), len(s.Meshes))
	}
}

func TestFlatten_MaxDepth(t *testing.T) {
	stage := usd.NewStage()
	path := usd.RootPath
	for i := 0; i < 10; i++ {
		path = path.AppendChild("L")
		stage.DefinePrim(path, usd.TypeXform)
	}
	stage.DefinePrim(path.AppendChild("M"), usd.TypeMesh)

	tests := []struct {
		name     string
		maxDepth int
		wantErr  error
	}{
		{"unlimited", 0, nil},
		{"deep enough", 11, nil},
		{"too shallow", 5, ErrMaxDepthExceeded},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := Flatten(stage, Options{MaxDepth: tt.maxDepth, DetectCycles: true})
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("got %v, want %v", err, tt.wantErr)
			}
			if err == nil && len(s.Instances) != 1 {
				t.Errorf("instances = %d, want 1", len(s.Instances))
			}
		})
	}
}

func TestFetchStage(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "scene.usda")
	if err := os.WriteFile(path, []byte(instancerLayer), 0o644); err != nil {
		t.Fatal(err)
	}

	s, err := FetchStage(path, DefaultOptions())
	if err != nil {
		t.Fatalf("FetchStage: %v", err)
	}
	if len(s.Instances) != 3 {
		t.Errorf("instances = %d, want 3", len(s.Instances))
	}

	if _, err := FetchStage(filepath.Join(dir, "missing.usda"), DefaultOptions()); !errors.Is(err, os.ErrNotExist) {
		t.Errorf("missing file: got %v", err)
	}
}
