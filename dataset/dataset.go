// Package dataset holds the in-memory calibration graph: views of the target,
// the 3D board points, and the 2D observations connecting them. The dataset is
// built once during ingestion and then owned exclusively by the optimizer.
package dataset

import (
	"sort"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"

	"github.com/rennybird/Vilota/camera"
	"github.com/rennybird/Vilota/spatialmath"
)

// ViewID identifies one observed frame.
type ViewID uint32

// PointID identifies one board point; ids follow the target's physical layout.
type PointID int

// GroupID identifies a set of views sharing one intrinsics vector.
type GroupID uint32

// DefaultGroup is the intrinsics group used by single camera calibration.
const DefaultGroup GroupID = 0

// View is one observed frame of the calibration target. The pose follows the
// world-to-camera convention x_cam = R * (X - p).
type View struct {
	ID        ViewID
	Timestamp float64 // seconds
	Width     int
	Height    int
	Rotation  *spatialmath.RotationMatrix
	Position  r3.Vector
	Kind      camera.ModelKind
	Estimated bool
	Group     GroupID
}

// BoardPoint is one 3D point of the calibration target, stored homogeneous so
// the optimizer's board refinement phase stays well conditioned for points far
// from the origin.
type BoardPoint struct {
	ID    PointID
	Point [4]float64
}

// Position returns the dehomogenized 3D coordinate.
func (bp *BoardPoint) Position() r3.Vector {
	w := bp.Point[3]
	return r3.Vector{X: bp.Point[0] / w, Y: bp.Point[1] / w, Z: bp.Point[2] / w}
}

// Dataset owns the views, board points, observations, and the per-group shared
// intrinsics vectors. It is not safe for concurrent mutation.
type Dataset struct {
	views        map[ViewID]*View
	points       map[PointID]*BoardPoint
	observations map[ViewID]map[PointID]r2.Point
	intrinsics   map[GroupID][]float64
	nextView     ViewID
}

// New returns an empty dataset.
func New() *Dataset {
	return &Dataset{
		views:        map[ViewID]*View{},
		points:       map[PointID]*BoardPoint{},
		observations: map[ViewID]map[PointID]r2.Point{},
		intrinsics:   map[GroupID][]float64{},
	}
}

// AddBoardPoint inserts one target point. Adding the same id twice is an error.
func (ds *Dataset) AddBoardPoint(id PointID, pos r3.Vector) error {
	if _, ok := ds.points[id]; ok {
		return errors.Errorf("board point %d already exists", id)
	}
	ds.points[id] = &BoardPoint{ID: id, Point: [4]float64{pos.X, pos.Y, pos.Z, 1}}
	return nil
}

// BoardPoint returns the target point with the given id, or nil.
func (ds *Dataset) BoardPoint(id PointID) *BoardPoint {
	return ds.points[id]
}

// PointIDs returns the board point ids in ascending order.
func (ds *Dataset) PointIDs() []PointID {
	ids := make([]PointID, 0, len(ds.points))
	for id := range ds.points {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NumPoints returns the number of board points.
func (ds *Dataset) NumPoints() int { return len(ds.points) }

// AddView inserts a new estimated view with the given pose and frame metadata
// and returns its id. The first view of an intrinsics group seeds the group's
// shared parameter vector from the model defaults plus the supplied focal
// length and leading distortion term.
func (ds *Dataset) AddView(
	rot *spatialmath.RotationMatrix,
	pos r3.Vector,
	focalLength, distortion float64,
	width, height int,
	timestamp float64,
	kind camera.ModelKind,
	group GroupID,
) (ViewID, error) {
	model, err := camera.NewModel(kind)
	if err != nil {
		return 0, err
	}
	if _, ok := ds.intrinsics[group]; !ok {
		params := model.Seed(width, height)
		params[camera.ParamFocalLength] = focalLength
		if kind == camera.DivisionUndistortion {
			params[camera.ParamDistortion] = distortion
		}
		ds.intrinsics[group] = params
	}
	id := ds.nextView
	ds.nextView++
	ds.views[id] = &View{
		ID:        id,
		Timestamp: timestamp,
		Width:     width,
		Height:    height,
		Rotation:  rot,
		Position:  pos,
		Kind:      kind,
		Estimated: true,
		Group:     group,
	}
	ds.observations[id] = map[PointID]r2.Point{}
	return id, nil
}

// View returns the view with the given id, or nil.
func (ds *Dataset) View(id ViewID) *View {
	return ds.views[id]
}

// ViewIDs returns all view ids in ascending order.
func (ds *Dataset) ViewIDs() []ViewID {
	ids := make([]ViewID, 0, len(ds.views))
	for id := range ds.views {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}

// NumViews returns the number of views currently in the dataset.
func (ds *Dataset) NumViews() int { return len(ds.views) }

// RemoveView deletes a view and all of its observations. Removing an unknown
// id is a no-op.
func (ds *Dataset) RemoveView(id ViewID) {
	delete(ds.views, id)
	delete(ds.observations, id)
}

// AddObservation records the observed pixel of a board point in a view. Both
// endpoints must already exist and a (view, point) pair may only be observed
// once.
func (ds *Dataset) AddObservation(viewID ViewID, pointID PointID, pixel r2.Point) error {
	if _, ok := ds.views[viewID]; !ok {
		return errors.Errorf("view %d does not exist", viewID)
	}
	if _, ok := ds.points[pointID]; !ok {
		return errors.Errorf("board point %d does not exist", pointID)
	}
	obs := ds.observations[viewID]
	if _, ok := obs[pointID]; ok {
		return errors.Errorf("view %d already observes board point %d", viewID, pointID)
	}
	obs[pointID] = pixel
	return nil
}

// Observations returns the observation map of one view, keyed by board point
// id. The returned map is owned by the dataset.
func (ds *Dataset) Observations(id ViewID) map[PointID]r2.Point {
	return ds.observations[id]
}

// Intrinsics returns the shared parameter vector of an intrinsics group. The
// returned slice is owned by the dataset; the optimizer mutates it in place.
func (ds *Dataset) Intrinsics(group GroupID) []float64 {
	return ds.intrinsics[group]
}

// SetIntrinsics replaces the shared parameter vector of a group. The length
// must match the parameter count of the views' model kind.
func (ds *Dataset) SetIntrinsics(group GroupID, params []float64) error {
	for _, v := range ds.views {
		if v.Group != group {
			continue
		}
		model, err := camera.NewModel(v.Kind)
		if err != nil {
			return err
		}
		if model.NumParams() != len(params) {
			return errors.Errorf("parameter vector has length %d, model %v needs %d",
				len(params), v.Kind, model.NumParams())
		}
		break
	}
	ds.intrinsics[group] = params
	return nil
}

// SetBoardPoint overwrites the homogeneous coordinate of a board point; used
// only by the optimizer's board refinement phase.
func (ds *Dataset) SetBoardPoint(id PointID, point [4]float64) error {
	bp, ok := ds.points[id]
	if !ok {
		return errors.Errorf("board point %d does not exist", id)
	}
	bp.Point = point
	return nil
}
