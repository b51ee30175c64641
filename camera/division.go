package camera

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// divisionModel is the one parameter division undistortion model: an
// undistorted normalized point u relates to its distorted observation d by
// u = d / (1 + k * |d|²).
type divisionModel struct{}

func (m *divisionModel) Kind() ModelKind { return DivisionUndistortion }

func (m *divisionModel) NumParams() int { return ParamDistortion + 1 }

func (m *divisionModel) DistortionNames() []string {
	return []string{"div_undist_distortion"}
}

func (m *divisionModel) Seed(width, height int) []float64 {
	return seedCommon(make([]float64, m.NumParams()), width, height)
}

func (m *divisionModel) ProjectCamera(params []float64, pt r3.Vector) (r2.Point, bool) {
	if pt.Z < minProjectionDepth {
		return r2.Point{}, false
	}
	x, y := pt.X/pt.Z, pt.Y/pt.Z
	xd, yd, ok := DistortDivision(params[ParamDistortion], x, y)
	if !ok {
		return r2.Point{}, false
	}
	return pixelFromNormalized(params, xd, yd), true
}

func (m *divisionModel) Unproject(params []float64, px r2.Point) (r3.Vector, bool) {
	xd, yd := normalizedFromPixel(params, px)
	r2n := xd*xd + yd*yd
	s := 1 + params[ParamDistortion]*r2n
	if math.Abs(s) < 1e-12 {
		return r3.Vector{}, false
	}
	return r3.Vector{X: xd / s, Y: yd / s, Z: 1}, true
}

func (m *divisionModel) FocalSubset() []int {
	return []int{ParamFocalLength, ParamDistortion}
}

func (m *divisionModel) FullSubset() []int {
	return []int{ParamFocalLength, ParamAspectRatio, ParamPrincipalPointX, ParamPrincipalPointY}
}

// DistortDivision maps an undistorted normalized point to its distorted
// observation under the division model, solving k*ru*rd² - rd + ru = 0 for the
// distorted radius. It is exported for reuse by the pose initializer's shared
// radial estimation routine.
func DistortDivision(k, x, y float64) (float64, float64, bool) {
	if k == 0 {
		return x, y, true
	}
	ru2 := x*x + y*y
	if ru2 < 1e-18 {
		return x, y, true
	}
	disc := 1 - 4*k*ru2
	if disc < 0 {
		return 0, 0, false
	}
	// rd/ru, taking the root continuous with the undistorted solution at k=0
	scale := 2 / (1 + math.Sqrt(disc))
	return x * scale, y * scale, true
}
