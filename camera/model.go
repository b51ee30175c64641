// Package camera implements the lens models used for calibration: a closed set
// of model kinds, each carrying its own parameter layout, projection function
// and, where defined, a back-projection.
//
// Every model shares the first four parameters (focal length, aspect ratio,
// principal point x/y); the remaining slots hold model specific distortion
// coefficients.
package camera

import (
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/rennybird/Vilota/spatialmath"
)

// ModelKind enumerates the supported lens models.
type ModelKind int

const (
	// Pinhole is a perspective camera with two radial distortion terms.
	Pinhole ModelKind = iota
	// PinholeRadialTangential is a pinhole camera with three radial and two
	// tangential (Brown-Conrady) distortion terms.
	PinholeRadialTangential
	// DivisionUndistortion is Fitzgibbon's one parameter division model.
	DivisionUndistortion
	// DoubleSphere is the Usenko double sphere model for very wide lenses.
	DoubleSphere
	// ExtendedUnified is the extended unified camera model.
	ExtendedUnified
	// Fisheye is the Kannala-Brandt fisheye model with four radial terms.
	Fisheye
)

// Shared parameter vector layout. Distortion coefficients start at ParamDistortion.
const (
	ParamFocalLength = iota
	ParamAspectRatio
	ParamPrincipalPointX
	ParamPrincipalPointY
	ParamDistortion
)

// modelNames are the wire names of the camera models, used in configuration
// and calibration files.
var modelNames = map[ModelKind]string{
	Pinhole:                 "PINHOLE",
	PinholeRadialTangential: "PINHOLE_RADIAL_TANGENTIAL",
	DivisionUndistortion:    "DIVISION_UNDISTORTION",
	DoubleSphere:            "DOUBLE_SPHERE",
	ExtendedUnified:         "EXTENDED_UNIFIED",
	Fisheye:                 "FISHEYE",
}

func (k ModelKind) String() string {
	if name, ok := modelNames[k]; ok {
		return name
	}
	return "UNKNOWN"
}

// ParseModelKind returns the ModelKind for a wire name.
func ParseModelKind(name string) (ModelKind, error) {
	for kind, n := range modelNames {
		if n == name {
			return kind, nil
		}
	}
	return 0, errors.Errorf("do not know camera model %q", name)
}

// Model is one lens model of the closed set. A Model is stateless; all
// parameters are passed in as a vector laid out per the Param* constants.
type Model interface {
	// Kind returns the model kind of this variant.
	Kind() ModelKind
	// NumParams returns the length of the parameter vector for this model.
	NumParams() int
	// DistortionNames returns the wire names of the distortion coefficients,
	// in parameter vector order.
	DistortionNames() []string
	// Seed returns a default parameter vector for an image of the given size:
	// principal point at the image center, unit aspect ratio, and distortion
	// coefficients chosen so the model is well conditioned near identity.
	// The focal length slot is a coarse guess that callers are expected to
	// overwrite with an estimate.
	Seed(width, height int) []float64
	// ProjectCamera maps a point in the camera frame to a pixel. The second
	// return is false when the point cannot be imaged (behind the camera or
	// outside the model's valid domain).
	ProjectCamera(params []float64, pt r3.Vector) (r2.Point, bool)
	// Unproject maps a pixel to a ray direction in the camera frame with unit
	// depth where the model admits an inverse.
	Unproject(params []float64, px r2.Point) (r3.Vector, bool)
	// FocalSubset returns the parameter indexes refined together with camera
	// poses in the first optimization phase.
	FocalSubset() []int
	// FullSubset returns the parameter indexes refined in the full
	// optimization phase.
	FullSubset() []int
}

// NewModel returns the Model variant for the given kind.
func NewModel(kind ModelKind) (Model, error) {
	switch kind {
	case Pinhole:
		return &pinholeModel{}, nil
	case PinholeRadialTangential:
		return &radialTangentialModel{}, nil
	case DivisionUndistortion:
		return &divisionModel{}, nil
	case DoubleSphere:
		return &doubleSphereModel{}, nil
	case ExtendedUnified:
		return &extendedUnifiedModel{}, nil
	case Fisheye:
		return &fisheyeModel{}, nil
	default:
		return nil, errors.Errorf("do not know how to build camera model %d", kind)
	}
}

// PrincipalPointSubset returns the parameter indexes refined in the principal
// point phase; it is the same for every model.
func PrincipalPointSubset() []int {
	return []int{ParamPrincipalPointX, ParamPrincipalPointY}
}

// Project maps a world point through a view pose to a pixel. The pose follows
// the world-to-camera convention x_cam = R * (X - p).
func Project(m Model, params []float64, rot *spatialmath.RotationMatrix, pos, world r3.Vector) (r2.Point, bool) {
	return m.ProjectCamera(params, rot.Mul(world.Sub(pos)))
}

// seedCommon fills the shared parameter prefix: a coarse focal guess, unit
// aspect ratio and the principal point at the image center.
func seedCommon(params []float64, width, height int) []float64 {
	f := float64(width)
	if height > width {
		f = float64(height)
	}
	params[ParamFocalLength] = 0.9 * f
	params[ParamAspectRatio] = 1.0
	params[ParamPrincipalPointX] = float64(width) / 2.0
	params[ParamPrincipalPointY] = float64(height) / 2.0
	return params
}
