package camera

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
)

// doubleSphereModel projects through two unit spheres offset by xi followed by
// a pinhole shifted by alpha. The shape parameters are seeded mildly away from
// the degenerate pinhole configuration so the first optimization step does not
// start on a singular Jacobian.
type doubleSphereModel struct{}

func (m *doubleSphereModel) Kind() ModelKind { return DoubleSphere }

func (m *doubleSphereModel) NumParams() int { return ParamDistortion + 2 }

func (m *doubleSphereModel) DistortionNames() []string {
	return []string{"xi", "alpha"}
}

func (m *doubleSphereModel) Seed(width, height int) []float64 {
	params := seedCommon(make([]float64, m.NumParams()), width, height)
	params[ParamDistortion] = -0.25 // xi
	params[ParamDistortion+1] = 0.5 // alpha
	return params
}

func (m *doubleSphereModel) ProjectCamera(params []float64, pt r3.Vector) (r2.Point, bool) {
	xi, alpha := params[ParamDistortion], params[ParamDistortion+1]
	d1 := pt.Norm()
	zShifted := xi*d1 + pt.Z
	d2 := math.Sqrt(pt.X*pt.X + pt.Y*pt.Y + zShifted*zShifted)
	denom := alpha*d2 + (1-alpha)*zShifted
	if denom < minProjectionDepth {
		return r2.Point{}, false
	}
	// field of view check
	w1 := alpha / (1 - alpha)
	if alpha > 0.5 {
		w1 = (1 - alpha) / alpha
	}
	w2 := (w1 + xi) / math.Sqrt(2*w1*xi+xi*xi+1)
	if pt.Z <= -w2*d1 {
		return r2.Point{}, false
	}
	return pixelFromNormalized(params, pt.X/denom, pt.Y/denom), true
}

func (m *doubleSphereModel) Unproject(params []float64, px r2.Point) (r3.Vector, bool) {
	xi, alpha := params[ParamDistortion], params[ParamDistortion+1]
	mx, my := normalizedFromPixel(params, px)
	r2n := mx*mx + my*my
	if alpha > 0.5 && r2n > 1/(2*alpha-1) {
		return r3.Vector{}, false
	}
	mz := (1 - alpha*alpha*r2n) / (alpha*math.Sqrt(1-(2*alpha-1)*r2n) + 1 - alpha)
	norm2 := mz*mz + r2n
	scale := (mz*xi + math.Sqrt(mz*mz+(1-xi*xi)*r2n)) / norm2
	dir := r3.Vector{X: scale * mx, Y: scale * my, Z: scale*mz - xi}
	if math.Abs(dir.Z) < 1e-12 {
		return dir, true
	}
	return dir.Mul(1 / dir.Z), true
}

func (m *doubleSphereModel) FocalSubset() []int {
	return []int{ParamFocalLength, ParamDistortion, ParamDistortion + 1}
}

func (m *doubleSphereModel) FullSubset() []int {
	return []int{ParamFocalLength, ParamAspectRatio, ParamPrincipalPointX, ParamPrincipalPointY}
}

// extendedUnifiedModel generalizes the unified camera model with an ellipsoid
// shape parameter beta.
type extendedUnifiedModel struct{}

func (m *extendedUnifiedModel) Kind() ModelKind { return ExtendedUnified }

func (m *extendedUnifiedModel) NumParams() int { return ParamDistortion + 2 }

func (m *extendedUnifiedModel) DistortionNames() []string {
	return []string{"alpha", "beta"}
}

func (m *extendedUnifiedModel) Seed(width, height int) []float64 {
	params := seedCommon(make([]float64, m.NumParams()), width, height)
	params[ParamDistortion] = 0.5   // alpha
	params[ParamDistortion+1] = 1.0 // beta
	return params
}

func (m *extendedUnifiedModel) ProjectCamera(params []float64, pt r3.Vector) (r2.Point, bool) {
	alpha, beta := params[ParamDistortion], params[ParamDistortion+1]
	d := math.Sqrt(beta*(pt.X*pt.X+pt.Y*pt.Y) + pt.Z*pt.Z)
	denom := alpha*d + (1-alpha)*pt.Z
	if denom < minProjectionDepth {
		return r2.Point{}, false
	}
	w := alpha / (1 - alpha)
	if alpha > 0.5 {
		w = (1 - alpha) / alpha
	}
	if pt.Z <= -w*d {
		return r2.Point{}, false
	}
	return pixelFromNormalized(params, pt.X/denom, pt.Y/denom), true
}

func (m *extendedUnifiedModel) Unproject(params []float64, px r2.Point) (r3.Vector, bool) {
	alpha, beta := params[ParamDistortion], params[ParamDistortion+1]
	mx, my := normalizedFromPixel(params, px)
	r2n := mx*mx + my*my
	gamma := 1 - alpha
	disc := 1 - (alpha*alpha-gamma*gamma)*beta*r2n
	if disc < 0 {
		return r3.Vector{}, false
	}
	mz := (1 - beta*alpha*alpha*r2n) / (alpha*math.Sqrt(disc) + gamma)
	if math.Abs(mz) < 1e-12 {
		return r3.Vector{X: mx, Y: my, Z: mz}, true
	}
	return r3.Vector{X: mx / mz, Y: my / mz, Z: 1}, true
}

func (m *extendedUnifiedModel) FocalSubset() []int {
	return []int{ParamFocalLength, ParamDistortion, ParamDistortion + 1}
}

func (m *extendedUnifiedModel) FullSubset() []int {
	return []int{ParamFocalLength, ParamAspectRatio, ParamPrincipalPointX, ParamPrincipalPointY}
}
