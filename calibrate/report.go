package calibrate

import (
	"github.com/pkg/errors"

	"github.com/rennybird/Vilota/camera"
	"github.com/rennybird/Vilota/dataset"
)

// Result summarizes the calibrated intrinsics of one group together with the
// aggregate reprojection error. Persistence belongs to the scene package.
type Result struct {
	Kind            camera.ModelKind
	Width           int
	Height          int
	FPS             float64
	FocalLength     float64
	AspectRatio     float64
	PrincipalPointX float64
	PrincipalPointY float64
	// Distortion holds the model specific coefficients in parameter vector
	// order; DistortionNames gives their wire names.
	Distortion      []float64
	DistortionNames []string
	RMSError        float64
	NumViews        int
}

// Report reads the post-optimization dataset and summarizes the shared camera
// parameters of the given group. It performs no mutation.
func Report(ds *dataset.Dataset, group dataset.GroupID, fps float64) (Result, error) {
	ids := ds.ViewIDs()
	if len(ids) == 0 {
		return Result{}, errors.New("dataset has no views to report on")
	}
	v := ds.View(ids[0])
	model, err := camera.NewModel(v.Kind)
	if err != nil {
		return Result{}, err
	}
	params := ds.Intrinsics(group)
	if len(params) != model.NumParams() {
		return Result{}, errors.Errorf("intrinsics vector has length %d, model %v needs %d",
			len(params), v.Kind, model.NumParams())
	}
	rms, err := AggregateRMS(ds)
	if err != nil {
		return Result{}, err
	}
	distortion := append([]float64{}, params[camera.ParamDistortion:]...)
	return Result{
		Kind:            v.Kind,
		Width:           v.Width,
		Height:          v.Height,
		FPS:             fps,
		FocalLength:     params[camera.ParamFocalLength],
		AspectRatio:     params[camera.ParamAspectRatio],
		PrincipalPointX: params[camera.ParamPrincipalPointX],
		PrincipalPointY: params[camera.ParamPrincipalPointY],
		Distortion:      distortion,
		DistortionNames: model.DistortionNames(),
		RMSError:        rms,
		NumViews:        ds.NumViews(),
	}, nil
}

// Params reassembles the full parameter vector of a result, in the camera
// package's layout.
func (r Result) Params() []float64 {
	params := make([]float64, camera.ParamDistortion+len(r.Distortion))
	params[camera.ParamFocalLength] = r.FocalLength
	params[camera.ParamAspectRatio] = r.AspectRatio
	params[camera.ParamPrincipalPointX] = r.PrincipalPointX
	params[camera.ParamPrincipalPointY] = r.PrincipalPointY
	copy(params[camera.ParamDistortion:], r.Distortion)
	return params
}
