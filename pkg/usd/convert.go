package usd

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
)

var errShape = errors.New("value does not match declared type")

// convertValue types a parsed value according to the declared attribute type.
// Unsupported types and malformed values become Unresolved rather than
// failing the whole layer.
func convertValue(typeName string, n node) any {
	base, isArray := strings.CutSuffix(typeName, "[]")

	var (
		v   any
		err error
	)
	switch base {
	case "bool":
		v, err = typed(n, isArray, toBool)
	case "int", "uint", "uchar":
		v, err = typed(n, isArray, toInt32)
	case "int64", "uint64":
		v, err = typed(n, isArray, toInt64)
	case "half":
		v, err = typed(n, isArray, toHalf)
	case "float":
		v, err = typed(n, isArray, toFloat32)
	case "double", "timecode":
		v, err = typed(n, isArray, parseFloat)
	case "string":
		v, err = typed(n, isArray, toString)
	case "token":
		v, err = typed(n, isArray, toToken)
	case "asset":
		v, err = typed(n, isArray, toAsset)
	case "float2", "half2", "double2", "texCoord2f", "texCoord2h", "texCoord2d":
		v, err = typed(n, isArray, toVec2f)
	case "float3", "half3", "point3f", "point3h", "normal3f", "normal3h",
		"vector3f", "vector3h", "color3f", "color3h", "texCoord3f", "texCoord3h":
		v, err = typed(n, isArray, toVec3f)
	case "double3", "point3d", "normal3d", "vector3d", "color3d", "texCoord3d":
		v, err = typed(n, isArray, toVec3d)
	case "quatf":
		v, err = typed(n, isArray, toQuatf)
	case "quatd":
		v, err = typed(n, isArray, toQuatd)
	case "quath":
		v, err = typed(n, isArray, toQuath)
	case "matrix4d", "frame4d":
		v, err = typed(n, isArray, toMatrix4d)
	default:
		return Unresolved{TypeName: typeName, Reason: "unsupported type"}
	}
	if err != nil {
		return Unresolved{TypeName: typeName, Reason: fmt.Sprintf("line %d: %v", n.line, err)}
	}
	return v
}

// typed converts a scalar node, or a list node element-wise when the declared
// type is an array. The concrete result is T or []T.
func typed[T any](n node, isArray bool, conv func(node) (T, error)) (any, error) {
	if !isArray {
		return conv(n)
	}
	if n.kind != nodeList {
		return nil, errShape
	}
	out := make([]T, len(n.items))
	for i, it := range n.items {
		v, err := conv(it)
		if err != nil {
			return nil, fmt.Errorf("element %d: %w", i, err)
		}
		out[i] = v
	}
	return out, nil
}

func parseFloat(n node) (float64, error) {
	if n.kind != nodeNumber && n.kind != nodeIdent {
		return 0, errShape
	}
	f, err := strconv.ParseFloat(n.text, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errShape, n.text)
	}
	return f, nil
}

func toFloat32(n node) (float32, error) {
	f, err := parseFloat(n)
	return float32(f), err
}

func toHalf(n node) (Half, error) {
	f, err := parseFloat(n)
	return HalfFromFloat32(float32(f)), err
}

func toInt64(n node) (int64, error) {
	if n.kind != nodeNumber {
		return 0, errShape
	}
	i, err := strconv.ParseInt(n.text, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errShape, n.text)
	}
	return i, nil
}

func toInt32(n node) (int32, error) {
	if n.kind != nodeNumber {
		return 0, errShape
	}
	i, err := strconv.ParseInt(n.text, 10, 32)
	if err != nil {
		return 0, fmt.Errorf("%w: %q", errShape, n.text)
	}
	return int32(i), nil
}

func toBool(n node) (bool, error) {
	switch {
	case n.is(nodeIdent, "true"), n.is(nodeNumber, "1"):
		return true, nil
	case n.is(nodeIdent, "false"), n.is(nodeNumber, "0"):
		return false, nil
	}
	return false, errShape
}

func toString(n node) (string, error) {
	if n.kind != nodeString {
		return "", errShape
	}
	return n.text, nil
}

func toToken(n node) (Token, error) {
	if n.kind != nodeString && n.kind != nodeIdent {
		return "", errShape
	}
	return Token(n.text), nil
}

func toAsset(n node) (Asset, error) {
	if n.kind != nodeAsset {
		return "", errShape
	}
	return Asset(n.text), nil
}

// tuple checks the node is a tuple of exactly size items and converts each.
func tuple[T any](n node, size int, conv func(node) (T, error)) ([]T, error) {
	if n.kind != nodeTuple || len(n.items) != size {
		return nil, errShape
	}
	out := make([]T, size)
	for i, it := range n.items {
		v, err := conv(it)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

func toVec2f(n node) (Vec2f, error) {
	c, err := tuple(n, 2, toFloat32)
	if err != nil {
		return Vec2f{}, err
	}
	return Vec2f{c[0], c[1]}, nil
}

func toVec3f(n node) (Vec3f, error) {
	c, err := tuple(n, 3, toFloat32)
	if err != nil {
		return Vec3f{}, err
	}
	return Vec3f{c[0], c[1], c[2]}, nil
}

func toVec3d(n node) (Vec3d, error) {
	c, err := tuple(n, 3, parseFloat)
	if err != nil {
		return Vec3d{}, err
	}
	return Vec3d{c[0], c[1], c[2]}, nil
}

// Quaternion literals are written real part first: (w, x, y, z).

func toQuatf(n node) (Quatf, error) {
	c, err := tuple(n, 4, toFloat32)
	if err != nil {
		return Quatf{}, err
	}
	return Quatf{W: c[0], X: c[1], Y: c[2], Z: c[3]}, nil
}

func toQuatd(n node) (Quatd, error) {
	c, err := tuple(n, 4, parseFloat)
	if err != nil {
		return Quatd{}, err
	}
	return Quatd{W: c[0], X: c[1], Y: c[2], Z: c[3]}, nil
}

func toQuath(n node) (Quath, error) {
	c, err := tuple(n, 4, toHalf)
	if err != nil {
		return Quath{}, err
	}
	return Quath{W: c[0], X: c[1], Y: c[2], Z: c[3]}, nil
}

func toMatrix4d(n node) (Matrix4d, error) {
	rows, err := tuple(n, 4, func(r node) ([]float64, error) {
		return tuple(r, 4, parseFloat)
	})
	if err != nil {
		return Matrix4d{}, err
	}
	var m Matrix4d
	for r := 0; r < 4; r++ {
		copy(m[r][:], rows[r])
	}
	return m, nil
}
