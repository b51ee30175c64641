package scene

import (
	"encoding/json"
	"io"

	"github.com/pkg/errors"

	"github.com/rennybird/Vilota/calibrate"
	"github.com/rennybird/Vilota/camera"
)

// calibrationFile is the on-disk calibration result. Intrinsics are keyed by
// their wire names, which vary per camera model.
type calibrationFile struct {
	IntrinsicType    string             `json:"intrinsic_type"`
	ImageWidth       int                `json:"image_width"`
	ImageHeight      int                `json:"image_height"`
	FPS              float64            `json:"fps"`
	NumViews         int                `json:"num_views"`
	FinalReprojError float64            `json:"final_reproj_error"`
	Intrinsics       map[string]float64 `json:"intrinsics"`
}

// WriteCalibration serializes a calibration result to w as JSON.
func WriteCalibration(w io.Writer, result calibrate.Result) error {
	if len(result.Distortion) != len(result.DistortionNames) {
		return errors.Errorf("result has %d distortion values but %d names",
			len(result.Distortion), len(result.DistortionNames))
	}
	intr := map[string]float64{
		"focal_length":   result.FocalLength,
		"aspect_ratio":   result.AspectRatio,
		"principal_pt_x": result.PrincipalPointX,
		"principal_pt_y": result.PrincipalPointY,
	}
	for i, name := range result.DistortionNames {
		intr[name] = result.Distortion[i]
	}
	file := calibrationFile{
		IntrinsicType:    result.Kind.String(),
		ImageWidth:       result.Width,
		ImageHeight:      result.Height,
		FPS:              result.FPS,
		NumViews:         result.NumViews,
		FinalReprojError: result.RMSError,
		Intrinsics:       intr,
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", " ")
	return enc.Encode(&file)
}

// ReadCalibration parses a calibration result written by WriteCalibration,
// reproducing the parameter vector and model kind exactly.
func ReadCalibration(r io.Reader) (calibrate.Result, error) {
	var file calibrationFile
	if err := json.NewDecoder(r).Decode(&file); err != nil {
		return calibrate.Result{}, errors.Wrap(err, "error parsing calibration JSON")
	}
	kind, err := camera.ParseModelKind(file.IntrinsicType)
	if err != nil {
		return calibrate.Result{}, err
	}
	model, err := camera.NewModel(kind)
	if err != nil {
		return calibrate.Result{}, err
	}
	result := calibrate.Result{
		Kind:            kind,
		Width:           file.ImageWidth,
		Height:          file.ImageHeight,
		FPS:             file.FPS,
		NumViews:        file.NumViews,
		RMSError:        file.FinalReprojError,
		DistortionNames: model.DistortionNames(),
	}
	for key, dst := range map[string]*float64{
		"focal_length":   &result.FocalLength,
		"aspect_ratio":   &result.AspectRatio,
		"principal_pt_x": &result.PrincipalPointX,
		"principal_pt_y": &result.PrincipalPointY,
	} {
		val, ok := file.Intrinsics[key]
		if !ok {
			return calibrate.Result{}, errors.Errorf("calibration file is missing %q", key)
		}
		*dst = val
	}
	result.Distortion = make([]float64, len(result.DistortionNames))
	for i, name := range result.DistortionNames {
		val, ok := file.Intrinsics[name]
		if !ok {
			return calibrate.Result{}, errors.Errorf("calibration file is missing %q for model %s", name, kind)
		}
		result.Distortion[i] = val
	}
	return result, nil
}
