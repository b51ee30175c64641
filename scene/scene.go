// Package scene implements the file facing edges of the calibration core: the
// scene description read path, the calibration result write/read round trip,
// and a point cloud export of camera positions for visualization.
package scene

import (
	"encoding/json"
	"io"
	"os"
	"strconv"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	viamutils "go.viam.com/utils"

	"github.com/rennybird/Vilota/calibrate"
	"github.com/rennybird/Vilota/dataset"
)

// Scene is an on-disk scene description: frame metadata plus the detected
// target corners per timestamp. View keys are microsecond timestamps encoded
// as strings; board point keys are string encoded integer ids.
type Scene struct {
	ImageWidth  int                     `json:"image_width"`
	ImageHeight int                     `json:"image_height"`
	CameraFPS   float64                 `json:"camera_fps"`
	ScenePoints map[string][]float64    `json:"scene_pts"`
	Views       map[string]rawSceneView `json:"views"`
}

type rawSceneView struct {
	ImagePoints map[string][]float64 `json:"image_points"`
}

// ReadScene parses a scene description from r.
func ReadScene(r io.Reader) (*Scene, error) {
	var sc Scene
	if err := json.NewDecoder(r).Decode(&sc); err != nil {
		return nil, errors.Wrap(err, "error parsing scene JSON")
	}
	if sc.ImageWidth <= 0 || sc.ImageHeight <= 0 {
		return nil, errors.Errorf("invalid image size (%d, %d)", sc.ImageWidth, sc.ImageHeight)
	}
	return &sc, nil
}

// ReadSceneFile parses a scene description from a file path.
func ReadSceneFile(path string) (*Scene, error) {
	//nolint:gosec
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.Wrap(err, "error opening scene file")
	}
	defer viamutils.UncheckedErrorFunc(f.Close)
	return ReadScene(f)
}

// BoardPoints returns the target's 3D points keyed by their integer ids.
func (sc *Scene) BoardPoints() (map[dataset.PointID]r3.Vector, error) {
	out := make(map[dataset.PointID]r3.Vector, len(sc.ScenePoints))
	for key, coords := range sc.ScenePoints {
		id, err := strconv.Atoi(key)
		if err != nil {
			return nil, errors.Wrapf(err, "scene point id %q is not an integer", key)
		}
		if len(coords) != 3 {
			return nil, errors.Errorf("scene point %q has %d coordinates, need 3", key, len(coords))
		}
		out[dataset.PointID(id)] = r3.Vector{X: coords[0], Y: coords[1], Z: coords[2]}
	}
	return out, nil
}

// Batches converts the scene's views into observation batches with timestamps
// in seconds. Ordering is left to the ingestion controller.
func (sc *Scene) Batches() ([]calibrate.Batch, error) {
	batches := make([]calibrate.Batch, 0, len(sc.Views))
	for key, view := range sc.Views {
		tsMicros, err := strconv.ParseInt(key, 10, 64)
		if err != nil {
			return nil, errors.Wrapf(err, "view timestamp %q is not an integer", key)
		}
		batch := calibrate.Batch{
			Timestamp: float64(tsMicros) * 1e-6,
			Corners:   make(map[dataset.PointID]r2.Point, len(view.ImagePoints)),
		}
		for ptKey, px := range view.ImagePoints {
			id, err := strconv.Atoi(ptKey)
			if err != nil {
				return nil, errors.Wrapf(err, "board point id %q is not an integer", ptKey)
			}
			if len(px) != 2 {
				return nil, errors.Errorf("image point %q has %d coordinates, need 2", ptKey, len(px))
			}
			batch.Corners[dataset.PointID(id)] = r2.Point{X: px[0], Y: px[1]}
		}
		batches = append(batches, batch)
	}
	return batches, nil
}

// Populate adds the scene's board points to a dataset.
func (sc *Scene) Populate(ds *dataset.Dataset) error {
	points, err := sc.BoardPoints()
	if err != nil {
		return err
	}
	for id, pos := range points {
		if err := ds.AddBoardPoint(id, pos); err != nil {
			return err
		}
	}
	return nil
}
