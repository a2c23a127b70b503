package usd

import (
	"strings"

	"github.com/go-gl/mathgl/mgl64"
)

const (
	opInvertPrefix    = "!invert!"
	opResetXformStack = "!resetXformStack!"
)

// LocalTransform composes the prim's xformOpOrder into one local matrix.
//
// The result is in column-vector convention (translation in the last column),
// i.e. op0 * op1 * ... * opN, so it can be post-multiplied onto a parent
// world matrix directly. It reports false when no xformOpOrder is authored or
// when any listed op is missing or holds an unusable value.
func LocalTransform(p *Prim) (mgl64.Mat4, bool) {
	order, err := GetAttribute[[]Token](p, AttrXformOpOrder)
	if err != nil {
		return mgl64.Ident4(), false
	}

	m := mgl64.Ident4()
	for _, tok := range order {
		name := string(tok)
		if name == opResetXformStack {
			continue
		}
		invert := strings.HasPrefix(name, opInvertPrefix)
		name = strings.TrimPrefix(name, opInvertPrefix)

		op, ok := xformOpMatrix(p.Attribute(name), opKind(name))
		if !ok {
			return mgl64.Ident4(), false
		}
		if invert {
			op = op.Inv()
		}
		m = m.Mul4(op)
	}
	return m, true
}

// ResetsXformStack reports whether the prim discards its parent's transform.
func ResetsXformStack(p *Prim) bool {
	order, err := GetAttribute[[]Token](p, AttrXformOpOrder)
	if err != nil || len(order) == 0 {
		return false
	}
	return order[0] == opResetXformStack
}

// opKind extracts the op type from "xformOp:<type>[:<suffix>]".
func opKind(name string) string {
	parts := strings.SplitN(name, ":", 3)
	if len(parts) < 2 || parts[0] != "xformOp" {
		return ""
	}
	return parts[1]
}

func xformOpMatrix(attr *Attribute, kind string) (mgl64.Mat4, bool) {
	if attr == nil || attr.Value == nil {
		return mgl64.Mat4{}, false
	}

	switch kind {
	case "translate":
		if v, ok := vec3(attr.Value); ok {
			return mgl64.Translate3D(v[0], v[1], v[2]), true
		}
	case "scale":
		if v, ok := vec3(attr.Value); ok {
			return mgl64.Scale3D(v[0], v[1], v[2]), true
		}
	case "rotateX":
		if a, ok := scalar(attr.Value); ok {
			return mgl64.HomogRotate3DX(mgl64.DegToRad(a)), true
		}
	case "rotateY":
		if a, ok := scalar(attr.Value); ok {
			return mgl64.HomogRotate3DY(mgl64.DegToRad(a)), true
		}
	case "rotateZ":
		if a, ok := scalar(attr.Value); ok {
			return mgl64.HomogRotate3DZ(mgl64.DegToRad(a)), true
		}
	case "rotateXYZ", "rotateXZY", "rotateYXZ", "rotateYZX", "rotateZXY", "rotateZYX":
		if v, ok := vec3(attr.Value); ok {
			return eulerMatrix(strings.TrimPrefix(kind, "rotate"), v), true
		}
	case "orient":
		if q, ok := quat(attr.Value); ok {
			return q.Normalize().Mat4(), true
		}
	case "transform":
		if m, ok := attr.Value.(Matrix4d); ok {
			return m.Mat4().Transpose(), true
		}
	}
	return mgl64.Mat4{}, false
}

// eulerMatrix builds a rotation from per-axis angles in degrees. The first
// axis in order is applied first, so it ends up rightmost in the product.
func eulerMatrix(order string, deg mgl64.Vec3) mgl64.Mat4 {
	m := mgl64.Ident4()
	for _, axis := range order {
		var r mgl64.Mat4
		switch axis {
		case 'X':
			r = mgl64.HomogRotate3DX(mgl64.DegToRad(deg[0]))
		case 'Y':
			r = mgl64.HomogRotate3DY(mgl64.DegToRad(deg[1]))
		case 'Z':
			r = mgl64.HomogRotate3DZ(mgl64.DegToRad(deg[2]))
		}
		m = r.Mul4(m)
	}
	return m
}
