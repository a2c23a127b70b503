package usd

import (
	"fmt"
	"math"

	"github.com/go-gl/mathgl/mgl64"
)

// Token is an interned identifier value (USD "token").
type Token string

// Asset is an asset path value (USD "asset", written @path@).
type Asset string

// Vec2f is a single-precision 2-vector (float2, texCoord2f).
type Vec2f [2]float32

// Vec3f is a single-precision 3-vector (float3, point3f, normal3f, vector3f, color3f).
type Vec3f [3]float32

// Vec3d is a double-precision 3-vector (double3, point3d, vector3d).
type Vec3d [3]float64

// Quatf is a single-precision quaternion.
type Quatf struct {
	W, X, Y, Z float32
}

// Quatd is a double-precision quaternion.
type Quatd struct {
	W, X, Y, Z float64
}

// Quath is a half-precision quaternion.
type Quath struct {
	W, X, Y, Z Half
}

// Matrix4d is a 4x4 double matrix in authored (row-major, row-vector) layout:
// the translation lives in the last row.
type Matrix4d [4][4]float64

// IdentityMatrix4d returns the identity matrix.
func IdentityMatrix4d() Matrix4d {
	return Matrix4d{{1, 0, 0, 0}, {0, 1, 0, 0}, {0, 0, 1, 0}, {0, 0, 0, 1}}
}

// Mat4 copies the matrix into an mgl64.Mat4 element-for-element, so that
// At(r, c) == m[r][c]. No convention change is applied: callers working in
// column-vector math must transpose the result.
func (m Matrix4d) Mat4() mgl64.Mat4 {
	return mgl64.Mat4FromRows(mgl64.Vec4(m[0]), mgl64.Vec4(m[1]), mgl64.Vec4(m[2]), mgl64.Vec4(m[3]))
}

// Quat converts to a double-precision quaternion.
func (q Quatf) Quat() mgl64.Quat {
	return mgl64.Quat{W: float64(q.W), V: mgl64.Vec3{float64(q.X), float64(q.Y), float64(q.Z)}}
}

// Quat converts to a double-precision quaternion.
func (q Quatd) Quat() mgl64.Quat {
	return mgl64.Quat{W: q.W, V: mgl64.Vec3{q.X, q.Y, q.Z}}
}

// Quat converts to a double-precision quaternion.
func (q Quath) Quat() mgl64.Quat {
	return mgl64.Quat{
		W: float64(q.W.Float32()),
		V: mgl64.Vec3{float64(q.X.Float32()), float64(q.Y.Float32()), float64(q.Z.Float32())},
	}
}

// Half is an IEEE 754 binary16 value.
type Half uint16

// Float32 widens the half to single precision. The conversion is exact.
func (h Half) Float32() float32 {
	sign := uint32(h>>15) << 31
	exp := uint32(h>>10) & 0x1f
	mant := uint32(h) & 0x3ff

	switch {
	case exp == 0 && mant == 0:
		return math.Float32frombits(sign)
	case exp == 0:
		// Subnormal: renormalize into a float32 normal.
		e := uint32(127 - 14)
		for mant&0x400 == 0 {
			mant <<= 1
			e--
		}
		mant &= 0x3ff
		return math.Float32frombits(sign | e<<23 | mant<<13)
	case exp == 0x1f:
		return math.Float32frombits(sign | 0xff<<23 | mant<<13)
	default:
		return math.Float32frombits(sign | (exp+127-15)<<23 | mant<<13)
	}
}

// HalfFromFloat32 narrows f to half precision, rounding to nearest even.
// Values beyond the half range become infinities.
func HalfFromFloat32(f float32) Half {
	b := math.Float32bits(f)
	sign := uint16(b>>16) & 0x8000
	exp := int32(b>>23) & 0xff
	mant := b & 0x7fffff

	if exp == 0xff {
		if mant != 0 {
			return Half(sign | 0x7e00)
		}
		return Half(sign | 0x7c00)
	}

	e := exp - 127 + 15
	if e >= 0x1f {
		return Half(sign | 0x7c00)
	}
	if e <= 0 {
		if e < -10 {
			return Half(sign)
		}
		mant |= 0x800000
		shift := uint32(14 - e)
		h := mant >> shift
		rem := mant & (1<<shift - 1)
		mid := uint32(1) << (shift - 1)
		if rem > mid || (rem == mid && h&1 == 1) {
			h++
		}
		return Half(sign | uint16(h))
	}

	h := uint32(e)<<10 | mant>>13
	rem := mant & 0x1fff
	if rem > 0x1000 || (rem == 0x1000 && h&1 == 1) {
		h++ // a carry into the exponent rounds up to the next binade or infinity
	}
	return Half(sign | uint16(h))
}

// String formats the half as its float value.
func (h Half) String() string {
	return fmt.Sprintf("%g", h.Float32())
}

// vec3 widens any authored 3-component vector value to double precision.
func vec3(v any) (mgl64.Vec3, bool) {
	switch t := v.(type) {
	case Vec3f:
		return mgl64.Vec3{float64(t[0]), float64(t[1]), float64(t[2])}, true
	case Vec3d:
		return mgl64.Vec3(t), true
	default:
		return mgl64.Vec3{}, false
	}
}

// scalar widens any authored scalar float value to double precision.
func scalar(v any) (float64, bool) {
	switch t := v.(type) {
	case float32:
		return float64(t), true
	case float64:
		return t, true
	case Half:
		return float64(t.Float32()), true
	default:
		return 0, false
	}
}

// quat converts any authored quaternion value to double precision.
func quat(v any) (mgl64.Quat, bool) {
	switch t := v.(type) {
	case Quatf:
		return t.Quat(), true
	case Quatd:
		return t.Quat(), true
	case Quath:
		return t.Quat(), true
	default:
		return mgl64.Quat{}, false
	}
}
