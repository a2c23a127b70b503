package usd

import (
	"testing"

	"github.com/go-gl/mathgl/mgl64"
)

const xformEpsilon = 1e-9

func xformPrim(t *testing.T, ops map[string]any, order ...string) *Prim {
	t.Helper()
	stage := NewStage()
	p := stage.DefinePrim("/X", TypeXform)
	for name, v := range ops {
		p.SetAttribute(name, "", v)
	}
	if order != nil {
		tokens := make([]Token, len(order))
		for i, o := range order {
			tokens[i] = Token(o)
		}
		p.SetAttribute(AttrXformOpOrder, "token[]", tokens)
	}
	return p
}

func TestLocalTransform(t *testing.T) {
	translated := IdentityMatrix4d()
	translated[3] = [4]float64{5, 6, 7, 1}

	tests := []struct {
		name  string
		ops   map[string]any
		order []string
		point mgl64.Vec3
		want  mgl64.Vec3
	}{
		{
			name:  "translate",
			ops:   map[string]any{"xformOp:translate": Vec3d{1, 2, 3}},
			order: []string{"xformOp:translate"},
			point: mgl64.Vec3{0, 0, 0},
			want:  mgl64.Vec3{1, 2, 3},
		},
		{
			name: "translate then scale applies scale first",
			ops: map[string]any{
				"xformOp:translate": Vec3d{1, 2, 3},
				"xformOp:scale":     Vec3f{2, 2, 2},
			},
			order: []string{"xformOp:translate", "xformOp:scale"},
			point: mgl64.Vec3{1, 0, 0},
			want:  mgl64.Vec3{3, 2, 3},
		},
		{
			name:  "rotateZ degrees",
			ops:   map[string]any{"xformOp:rotateZ": float32(90)},
			order: []string{"xformOp:rotateZ"},
			point: mgl64.Vec3{1, 0, 0},
			want:  mgl64.Vec3{0, 1, 0},
		},
		{
			name:  "rotateXYZ applies X first",
			ops:   map[string]any{"xformOp:rotateXYZ": Vec3f{90, 0, 90}},
			order: []string{"xformOp:rotateXYZ"},
			point: mgl64.Vec3{0, 1, 0},
			// X: (0,1,0) -> (0,0,1); Z leaves it.
			want: mgl64.Vec3{0, 0, 1},
		},
		{
			name:  "orient",
			ops:   map[string]any{"xformOp:orient": Quatf{W: 0.70710677, Z: 0.70710677}},
			order: []string{"xformOp:orient"},
			point: mgl64.Vec3{1, 0, 0},
			want:  mgl64.Vec3{0, 1, 0},
		},
		{
			name:  "matrix is transposed into column convention",
			ops:   map[string]any{AttrTransform: translated},
			order: []string{AttrTransform},
			point: mgl64.Vec3{1, 1, 1},
			want:  mgl64.Vec3{6, 7, 8},
		},
		{
			name:  "inverted op",
			ops:   map[string]any{"xformOp:translate": Vec3d{1, 2, 3}},
			order: []string{"!invert!xformOp:translate"},
			point: mgl64.Vec3{0, 0, 0},
			want:  mgl64.Vec3{-1, -2, -3},
		},
		{
			name:  "suffixed op",
			ops:   map[string]any{"xformOp:translate:pivot": Vec3f{0, 0, 4}},
			order: []string{"xformOp:translate:pivot"},
			point: mgl64.Vec3{0, 0, 0},
			want:  mgl64.Vec3{0, 0, 4},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := LocalTransform(xformPrim(t, tt.ops, tt.order...))
			if !ok {
				t.Fatal("LocalTransform reported no transform")
			}
			got := mgl64.TransformCoordinate(tt.point, m)
			if !got.ApproxEqualThreshold(tt.want, xformEpsilon) {
				t.Errorf("transformed %v = %v, want %v", tt.point, got, tt.want)
			}
		})
	}
}

func TestLocalTransform_Unresolvable(t *testing.T) {
	tests := []struct {
		name  string
		ops   map[string]any
		order []string
	}{
		{"no order", map[string]any{"xformOp:translate": Vec3d{1, 2, 3}}, nil},
		{"missing op", nil, []string{"xformOp:translate"}},
		{"wrong value type", map[string]any{"xformOp:translate": float32(1)}, []string{"xformOp:translate"}},
		{"unknown op", map[string]any{"xformOp:shear": Vec3f{}}, []string{"xformOp:shear"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, ok := LocalTransform(xformPrim(t, tt.ops, tt.order...))
			if ok {
				t.Error("expected LocalTransform to fail")
			}
			if m != mgl64.Ident4() {
				t.Error("failed LocalTransform should return identity")
			}
		})
	}
}

func TestResetsXformStack(t *testing.T) {
	p := xformPrim(t, map[string]any{"xformOp:translate": Vec3d{1, 0, 0}},
		"!resetXformStack!", "xformOp:translate")

	if !ResetsXformStack(p) {
		t.Error("expected reset")
	}
	m, ok := LocalTransform(p)
	if !ok || m.At(0, 3) != 1 {
		t.Errorf("reset marker should be skipped, got ok=%v m=%v", ok, m)
	}
	if ResetsXformStack(xformPrim(t, nil)) {
		t.Error("prim without order should not reset")
	}
}
