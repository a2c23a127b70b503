package scene

import (
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/Faultbox/usdflat/internal/logger"
	"github.com/Faultbox/usdflat/pkg/usd"
)

const (
	primvarNormals = "normals"
	primvarST      = "st"
)

// ExtractMesh reads the geometry of a Mesh prim. No read is fatal: absent or
// malformed attributes degrade to empty or absent fields, so a partially
// authored mesh still yields a (possibly empty) MeshData.
func ExtractMesh(prim *usd.Prim) MeshData {
	m := MeshData{Path: string(prim.Path())}

	if ds, err := usd.GetAttribute[bool](prim, usd.AttrDoubleSided); err == nil {
		m.DoubleSided = ds
	} else {
		logUnreadable(prim, usd.AttrDoubleSided, err)
	}

	var err error
	if m.Positions, err = readVec3s(prim.Attribute(usd.AttrPoints)); err != nil {
		logUnreadable(prim, usd.AttrPoints, err)
	}
	if m.FaceVertexCounts, err = readInts(prim.Attribute(usd.AttrFaceVertexCounts)); err != nil {
		logUnreadable(prim, usd.AttrFaceVertexCounts, err)
	}
	if m.FaceVertexIndices, err = readInts(prim.Attribute(usd.AttrFaceVertexIndices)); err != nil {
		logUnreadable(prim, usd.AttrFaceVertexIndices, err)
	}

	extractNormals(prim, &m)

	if st := prim.Primvar(primvarST); st != nil {
		if m.UVs, err = readVec2s(st); err != nil {
			logUnreadable(prim, st.Name, err)
		}
	}

	logger.Debug("extracted mesh",
		zap.String("path", m.Path),
		zap.Int("points", len(m.Positions)),
		zap.Int("faces", len(m.FaceVertexCounts)),
		zap.Bool("normals", m.HasNormals()),
		zap.Stringer("normal_interpolation", m.Interpolation()),
		zap.Bool("uvs", m.HasUVs()),
	)
	return m
}

// extractNormals prefers the schema "normals" attribute and falls back to the
// "primvars:normals" primvar. Interpolation and indices are read from
// whichever attribute supplied the values.
func extractNormals(prim *usd.Prim, m *MeshData) {
	attr := prim.Attribute(usd.AttrNormals)
	normals, err := readVec3s(attr)
	if err != nil || len(normals) == 0 {
		attr = prim.Primvar(primvarNormals)
		if normals, err = readVec3s(attr); err != nil {
			logUnreadable(prim, usd.PrimvarPrefix+primvarNormals, err)
			return
		}
	}
	m.Normals = normals

	interp := InterpolationUnknown
	if tok, err := usd.MetadataToken(attr, usd.MetaInterpolation); err == nil {
		interp = ClassifyInterpolation(string(tok))
	}
	m.NormalInterpolation = &interp

	// An empty index array means the values are used directly.
	indices := attr.Name + usd.IndicesSuffix
	if idx, err := readInts(prim.Attribute(indices)); err != nil {
		logUnreadable(prim, indices, err)
	} else if len(idx) > 0 {
		m.NormalIndices = idx
	}
}

// logUnreadable records a failed optional read. Plain absence is expected
// and stays silent.
func logUnreadable(prim *usd.Prim, name string, err error) {
	if errors.Is(err, usd.ErrAttributeNotFound) {
		return
	}
	logger.Debug("attribute unreadable, using default",
		zap.String("prim", string(prim.Path())),
		zap.String("attribute", name),
		zap.Error(err),
	)
}

// readVec3s reads a 3-vector array of either precision.
func readVec3s(attr *usd.Attribute) ([][3]float32, error) {
	if v, err := usd.Get[[]usd.Vec3f](attr); err == nil {
		out := make([][3]float32, len(v))
		for i := range v {
			out[i] = v[i]
		}
		return out, nil
	}
	v, err := usd.Get[[]usd.Vec3d](attr)
	if err != nil {
		return nil, err
	}
	out := make([][3]float32, len(v))
	for i, p := range v {
		out[i] = [3]float32{float32(p[0]), float32(p[1]), float32(p[2])}
	}
	return out, nil
}

func readVec2s(attr *usd.Attribute) ([][2]float32, error) {
	v, err := usd.Get[[]usd.Vec2f](attr)
	if err != nil {
		return nil, err
	}
	out := make([][2]float32, len(v))
	for i := range v {
		out[i] = v[i]
	}
	return out, nil
}

// readInts reads an integer array widened to int.
func readInts(attr *usd.Attribute) ([]int, error) {
	if attr == nil {
		return nil, usd.ErrAttributeNotFound
	}
	switch v := attr.Value.(type) {
	case []int32:
		out := make([]int, len(v))
		for i, x := range v {
			out[i] = int(x)
		}
		return out, nil
	case []int64:
		out := make([]int, len(v))
		for i, x := range v {
			out[i] = int(x)
		}
		return out, nil
	case nil:
		return nil, fmt.Errorf("%w: %s", usd.ErrNoValue, attr.Name)
	default:
		return nil, fmt.Errorf("%w: %s holds %s", usd.ErrTypeMismatch, attr.Name, attr.TypeName)
	}
}
