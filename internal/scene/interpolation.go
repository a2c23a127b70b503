package scene

// Interpolation tokens as authored in the interpolation metadata.
const (
	tokenVertex      = "vertex"
	tokenVarying     = "varying"
	tokenFaceVarying = "faceVarying"
	tokenUniform     = "uniform"
	tokenConstant    = "constant"
)

// ClassifyInterpolation maps an interpolation token to its enum value.
// Matching is exact; anything else, including "", is InterpolationUnknown.
func ClassifyInterpolation(token string) PrimvarInterpolation {
	switch token {
	case tokenVertex:
		return InterpolationVertex
	case tokenVarying:
		return InterpolationVarying
	case tokenFaceVarying:
		return InterpolationFaceVarying
	case tokenUniform:
		return InterpolationUniform
	case tokenConstant:
		return InterpolationConstant
	default:
		return InterpolationUnknown
	}
}

// String returns the authored token, or "unknown".
func (p PrimvarInterpolation) String() string {
	switch p {
	case InterpolationVertex:
		return tokenVertex
	case InterpolationVarying:
		return tokenVarying
	case InterpolationFaceVarying:
		return tokenFaceVarying
	case InterpolationUniform:
		return tokenUniform
	case InterpolationConstant:
		return tokenConstant
	default:
		return "unknown"
	}
}
