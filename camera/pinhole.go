package camera

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// minProjectionDepth is the closest depth (in world units) at which a point is
// still considered in front of the camera.
const minProjectionDepth = 1e-9

type pinholeModel struct{}

func (m *pinholeModel) Kind() ModelKind { return Pinhole }

func (m *pinholeModel) NumParams() int { return ParamDistortion + 2 }

func (m *pinholeModel) DistortionNames() []string {
	return []string{"radial_distortion_1", "radial_distortion_2"}
}

func (m *pinholeModel) Seed(width, height int) []float64 {
	return seedCommon(make([]float64, m.NumParams()), width, height)
}

func (m *pinholeModel) ProjectCamera(params []float64, pt r3.Vector) (r2.Point, bool) {
	if pt.Z < minProjectionDepth {
		return r2.Point{}, false
	}
	x, y := pt.X/pt.Z, pt.Y/pt.Z
	r2n := x*x + y*y
	d := 1 + params[ParamDistortion]*r2n + params[ParamDistortion+1]*r2n*r2n
	return pixelFromNormalized(params, x*d, y*d), true
}

func (m *pinholeModel) Unproject(params []float64, px r2.Point) (r3.Vector, bool) {
	x, y := normalizedFromPixel(params, px)
	xu, yu, ok := invertRadial(x, y, func(xd, yd float64) (float64, float64) {
		r2n := xd*xd + yd*yd
		d := 1 + params[ParamDistortion]*r2n + params[ParamDistortion+1]*r2n*r2n
		return xd * d, yd * d
	})
	return r3.Vector{X: xu, Y: yu, Z: 1}, ok
}

func (m *pinholeModel) FocalSubset() []int {
	// the pinhole radial terms stay frozen until the full phase
	return []int{ParamFocalLength}
}

func (m *pinholeModel) FullSubset() []int {
	return []int{
		ParamFocalLength, ParamAspectRatio, ParamPrincipalPointX, ParamPrincipalPointY,
		ParamDistortion, ParamDistortion + 1,
	}
}

type radialTangentialModel struct{}

func (m *radialTangentialModel) Kind() ModelKind { return PinholeRadialTangential }

func (m *radialTangentialModel) NumParams() int { return ParamDistortion + 5 }

func (m *radialTangentialModel) DistortionNames() []string {
	return []string{
		"radial_distortion_1", "radial_distortion_2", "radial_distortion_3",
		"tangential_distortion_1", "tangential_distortion_2",
	}
}

func (m *radialTangentialModel) Seed(width, height int) []float64 {
	return seedCommon(make([]float64, m.NumParams()), width, height)
}

func (m *radialTangentialModel) ProjectCamera(params []float64, pt r3.Vector) (r2.Point, bool) {
	if pt.Z < minProjectionDepth {
		return r2.Point{}, false
	}
	x, y := pt.X/pt.Z, pt.Y/pt.Z
	xd, yd := brownConrady(params, x, y)
	return pixelFromNormalized(params, xd, yd), true
}

func (m *radialTangentialModel) Unproject(params []float64, px r2.Point) (r3.Vector, bool) {
	x, y := normalizedFromPixel(params, px)
	xu, yu, ok := invertRadial(x, y, func(xd, yd float64) (float64, float64) {
		return brownConrady(params, xd, yd)
	})
	return r3.Vector{X: xu, Y: yu, Z: 1}, ok
}

func (m *radialTangentialModel) FocalSubset() []int {
	return []int{ParamFocalLength, ParamDistortion, ParamDistortion + 1, ParamDistortion + 2}
}

func (m *radialTangentialModel) FullSubset() []int {
	return []int{
		ParamFocalLength, ParamAspectRatio, ParamPrincipalPointX, ParamPrincipalPointY,
		ParamDistortion + 3, ParamDistortion + 4,
	}
}

// brownConrady applies the forward Brown-Conrady distortion to a normalized
// image point:
//
//	x_d = x * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*t1*x*y + t2*(r² + 2*x²)
//	y_d = y * (1 + k1*r² + k2*r⁴ + k3*r⁶) + 2*t2*x*y + t1*(r² + 2*y²)
func brownConrady(params []float64, x, y float64) (float64, float64) {
	k1, k2, k3 := params[ParamDistortion], params[ParamDistortion+1], params[ParamDistortion+2]
	t1, t2 := params[ParamDistortion+3], params[ParamDistortion+4]
	r2n := x*x + y*y
	rad := 1 + k1*r2n + k2*r2n*r2n + k3*r2n*r2n*r2n
	xd := x*rad + 2*t1*x*y + t2*(r2n+2*x*x)
	yd := y*rad + 2*t2*x*y + t1*(r2n+2*y*y)
	return xd, yd
}

// invertRadial inverts a forward distortion map by Newton iteration on a
// numerically differentiated 2x2 Jacobian, starting from the distorted point.
func invertRadial(xd, yd float64, forward func(x, y float64) (float64, float64)) (float64, float64, bool) {
	const (
		maxIterations = 20
		tolerance     = 1e-12
		step          = 1e-7
	)
	xu, yu := xd, yd
	for i := 0; i < maxIterations; i++ {
		fx, fy := forward(xu, yu)
		errX, errY := fx-xd, fy-yd
		if errX*errX+errY*errY < tolerance {
			return xu, yu, true
		}
		fxx, fyx := forward(xu+step, yu)
		fxy, fyy := forward(xu, yu+step)
		j00, j10 := (fxx-fx)/step, (fyx-fy)/step
		j01, j11 := (fxy-fx)/step, (fyy-fy)/step
		det := j00*j11 - j01*j10
		if math.Abs(det) < 1e-15 {
			return xu, yu, false
		}
		xu -= (j11*errX - j01*errY) / det
		yu -= (-j10*errX + j00*errY) / det
	}
	return xu, yu, true
}

// pixelFromNormalized applies focal length, aspect ratio and principal point
// to a distorted normalized point.
func pixelFromNormalized(params []float64, x, y float64) r2.Point {
	f := params[ParamFocalLength]
	return r2.Point{
		X: f*x + params[ParamPrincipalPointX],
		Y: f*params[ParamAspectRatio]*y + params[ParamPrincipalPointY],
	}
}

// normalizedFromPixel removes focal length, aspect ratio and principal point
// from a pixel, producing a distorted normalized point.
func normalizedFromPixel(params []float64, px r2.Point) (float64, float64) {
	f := params[ParamFocalLength]
	return (px.X - params[ParamPrincipalPointX]) / f,
		(px.Y - params[ParamPrincipalPointY]) / (f * params[ParamAspectRatio])
}
