// Package usd reads Universal Scene Description layers.
//
// Only the human-readable USDA encoding is supported, either as a loose
// .usda file or as the root layer of a .usdz package. Composition arcs
// (references, payloads, variants, inherits) are not resolved: the stage is
// exactly what the root layer authors.
package usd

import (
	"errors"
	"strings"
)

// Lookup errors. Absence and type mismatch are reported distinctly so callers
// can treat both as non-fatal while still telling them apart.
var (
	ErrAttributeNotFound = errors.New("attribute not found")
	ErrNoValue           = errors.New("attribute has no authored value")
	ErrTypeMismatch      = errors.New("attribute value type mismatch")
	ErrMetadataNotFound  = errors.New("metadata not found")
)

// Reader errors.
var (
	ErrInvalidUSDAHeader = errors.New("invalid USDA header: expected '#usda 1.0'")
	ErrSyntax            = errors.New("USDA syntax error")
	ErrUnsupportedFormat = errors.New("unsupported stage format")
	ErrNoRootLayer       = errors.New("usdz package has no usda root layer")
)

// Schema type names.
const (
	TypeMesh           = "Mesh"
	TypePointInstancer = "PointInstancer"
	TypeXform          = "Xform"
	TypeScope          = "Scope"
)

// Property names used by the geometry schemas.
const (
	AttrPoints            = "points"
	AttrFaceVertexCounts  = "faceVertexCounts"
	AttrFaceVertexIndices = "faceVertexIndices"
	AttrNormals           = "normals"
	AttrDoubleSided       = "doubleSided"
	AttrXformOpOrder      = "xformOpOrder"
	AttrTransform         = "xformOp:transform"

	AttrProtoIndices = "protoIndices"
	AttrPositions    = "positions"
	AttrScales       = "scales"
	AttrOrientations = "orientations"
	RelPrototypes    = "prototypes"

	MetaInterpolation = "interpolation"

	PrimvarPrefix = "primvars:"
	IndicesSuffix = ":indices"
)

// Path is an absolute prim path such as "/World/Geo/Mesh".
type Path string

// RootPath is the path of the pseudo-root.
const RootPath Path = "/"

// IsAbsolute reports whether the path starts at the pseudo-root.
func (p Path) IsAbsolute() bool {
	return strings.HasPrefix(string(p), "/")
}

// Name returns the last path element.
func (p Path) Name() string {
	if p == RootPath {
		return ""
	}
	s := string(p)
	return s[strings.LastIndexByte(s, '/')+1:]
}

// Parent returns the parent path. The parent of a top-level prim is RootPath.
func (p Path) Parent() Path {
	s := string(p)
	i := strings.LastIndexByte(s, '/')
	if i <= 0 {
		return RootPath
	}
	return Path(s[:i])
}

// AppendChild returns the path of a child prim.
func (p Path) AppendChild(name string) Path {
	if p == RootPath {
		return Path("/" + name)
	}
	return Path(string(p) + "/" + name)
}

// Resolve turns a relative target path into an absolute one anchored at p.
func (p Path) Resolve(target Path) Path {
	if target.IsAbsolute() {
		return target
	}
	base := p
	rest := string(target)
	for {
		switch {
		case strings.HasPrefix(rest, "../"):
			base = base.Parent()
			rest = rest[3:]
			continue
		case rest == "..":
			return base.Parent()
		case strings.HasPrefix(rest, "./"):
			rest = rest[2:]
			continue
		}
		break
	}
	if rest == "" || rest == "." {
		return base
	}
	for _, elem := range strings.Split(rest, "/") {
		base = base.AppendChild(elem)
	}
	return base
}

// String returns the path text.
func (p Path) String() string {
	return string(p)
}
