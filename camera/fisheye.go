package camera

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// fisheyeModel is the Kannala-Brandt model: the image radius is a polynomial
// in the incidence angle theta.
type fisheyeModel struct{}

func (m *fisheyeModel) Kind() ModelKind { return Fisheye }

func (m *fisheyeModel) NumParams() int { return ParamDistortion + 4 }

func (m *fisheyeModel) DistortionNames() []string {
	return []string{
		"radial_distortion_1", "radial_distortion_2",
		"radial_distortion_3", "radial_distortion_4",
	}
}

func (m *fisheyeModel) Seed(width, height int) []float64 {
	return seedCommon(make([]float64, m.NumParams()), width, height)
}

func (m *fisheyeModel) ProjectCamera(params []float64, pt r3.Vector) (r2.Point, bool) {
	r := math.Hypot(pt.X, pt.Y)
	if r < 1e-12 {
		if pt.Z < minProjectionDepth {
			return r2.Point{}, false
		}
		return r2.Point{X: params[ParamPrincipalPointX], Y: params[ParamPrincipalPointY]}, true
	}
	theta := math.Atan2(r, pt.Z)
	if theta <= 0 {
		return r2.Point{}, false
	}
	thetaD := m.thetaPolynomial(params, theta)
	return pixelFromNormalized(params, thetaD*pt.X/r, thetaD*pt.Y/r), true
}

func (m *fisheyeModel) Unproject(params []float64, px r2.Point) (r3.Vector, bool) {
	mx, my := normalizedFromPixel(params, px)
	rd := math.Hypot(mx, my)
	if rd < 1e-12 {
		return r3.Vector{Z: 1}, true
	}
	// Newton iteration for theta such that thetaPolynomial(theta) = rd
	theta := rd
	const step = 1e-7
	for i := 0; i < 20; i++ {
		f := m.thetaPolynomial(params, theta) - rd
		if math.Abs(f) < 1e-12 {
			break
		}
		df := (m.thetaPolynomial(params, theta+step) - m.thetaPolynomial(params, theta)) / step
		if math.Abs(df) < 1e-15 {
			return r3.Vector{}, false
		}
		theta -= f / df
	}
	s := math.Sin(theta)
	dir := r3.Vector{X: s * mx / rd, Y: s * my / rd, Z: math.Cos(theta)}
	if dir.Z < minProjectionDepth {
		return dir, true
	}
	return dir.Mul(1 / dir.Z), true
}

func (m *fisheyeModel) FocalSubset() []int {
	return []int{
		ParamFocalLength, ParamDistortion, ParamDistortion + 1,
		ParamDistortion + 2, ParamDistortion + 3,
	}
}

func (m *fisheyeModel) FullSubset() []int {
	return []int{ParamFocalLength, ParamAspectRatio, ParamPrincipalPointX, ParamPrincipalPointY}
}

func (m *fisheyeModel) thetaPolynomial(params []float64, theta float64) float64 {
	t2 := theta * theta
	return theta * (1 +
		params[ParamDistortion]*t2 +
		params[ParamDistortion+1]*t2*t2 +
		params[ParamDistortion+2]*t2*t2*t2 +
		params[ParamDistortion+3]*t2*t2*t2*t2)
}
