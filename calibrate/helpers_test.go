package calibrate

import (
	"math"
	"testing"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/rennybird/Vilota/camera"
	"github.com/rennybird/Vilota/dataset"
	"github.com/rennybird/Vilota/spatialmath"
)

const (
	testWidth  = 1920
	testHeight = 1080
	testFocal  = 800.0
)

// boardCenter is the middle of the synthetic 9x7 target used across tests.
var boardCenter = r3.Vector{X: 0.16, Y: 0.12}

// truePinholeParams returns the ground truth intrinsics of the synthetic
// camera: 800px focal, unit aspect, centered principal point, no distortion.
func truePinholeParams() []float64 {
	return []float64{testFocal, 1, testWidth / 2.0, testHeight / 2.0, 0, 0}
}

// addBoard fills the dataset with a 9x7 planar grid, 0.04m spacing, on z=0.
func addBoard(t *testing.T, ds *dataset.Dataset) []dataset.PointID {
	t.Helper()
	ids := make([]dataset.PointID, 0, 63)
	for row := 0; row < 7; row++ {
		for col := 0; col < 9; col++ {
			id := dataset.PointID(row*9 + col)
			err := ds.AddBoardPoint(id, r3.Vector{X: 0.04 * float64(col), Y: 0.04 * float64(row)})
			test.That(t, err, test.ShouldBeNil)
			ids = append(ids, id)
		}
	}
	return ids
}

// lookAt builds the world-to-camera rotation of a camera at pos aimed at
// target.
func lookAt(pos, target r3.Vector) *spatialmath.RotationMatrix {
	forward := target.Sub(pos).Normalize()
	up := r3.Vector{Y: 1}
	right := up.Cross(forward).Normalize()
	camUp := forward.Cross(right)
	rot, err := spatialmath.NewRotationMatrix([]float64{
		right.X, right.Y, right.Z,
		camUp.X, camUp.Y, camUp.Z,
		forward.X, forward.Y, forward.Z,
	})
	if err != nil {
		panic(err)
	}
	return rot
}

// ringPositions spreads n camera positions over an orbit in front of the
// board; for small n the spacing is wide enough that deduplication keeps all
// of them.
func ringPositions(n int) []r3.Vector {
	out := make([]r3.Vector, 0, n)
	for i := 0; i < n; i++ {
		theta := 2 * math.Pi * float64(i) / float64(n)
		out = append(out, r3.Vector{
			X: boardCenter.X + 0.25*math.Sin(theta),
			Y: boardCenter.Y + 0.15*math.Cos(1.3*theta),
			Z: -0.5 - 0.1*math.Sin(0.7*theta),
		})
	}
	return out
}

// renderBatch projects every board point through the true pinhole camera at
// the given position and returns one frame of detections.
func renderBatch(t *testing.T, ds *dataset.Dataset, pos r3.Vector, timestamp float64) Batch {
	t.Helper()
	model, err := camera.NewModel(camera.Pinhole)
	test.That(t, err, test.ShouldBeNil)
	rot := lookAt(pos, boardCenter)
	params := truePinholeParams()
	corners := map[dataset.PointID]r2.Point{}
	for _, id := range ds.PointIDs() {
		px, ok := camera.Project(model, params, rot, pos, ds.BoardPoint(id).Position())
		test.That(t, ok, test.ShouldBeTrue)
		corners[id] = px
	}
	return Batch{Timestamp: timestamp, Corners: corners}
}

// addExactView inserts one view with its ground truth pose and exact
// observations, returning the view id.
func addExactView(t *testing.T, ds *dataset.Dataset, pos r3.Vector, timestamp float64) dataset.ViewID {
	t.Helper()
	rot := lookAt(pos, boardCenter)
	id, err := ds.AddView(rot, pos, testFocal, 0, testWidth, testHeight, timestamp, camera.Pinhole, dataset.DefaultGroup)
	test.That(t, err, test.ShouldBeNil)
	model, err := camera.NewModel(camera.Pinhole)
	test.That(t, err, test.ShouldBeNil)
	params := truePinholeParams()
	for _, pid := range ds.PointIDs() {
		px, ok := camera.Project(model, params, rot, pos, ds.BoardPoint(pid).Position())
		test.That(t, ok, test.ShouldBeTrue)
		test.That(t, ds.AddObservation(id, pid, px), test.ShouldBeNil)
	}
	return id
}

// corruptView shifts every observation of a view by 8px with alternating
// signs, which no pose adjustment can absorb.
func corruptView(t *testing.T, ds *dataset.Dataset, id dataset.ViewID) {
	t.Helper()
	obs := ds.Observations(id)
	for pid := range obs {
		px := obs[pid]
		if pid%2 == 0 {
			px.X += 8
			px.Y -= 8
		} else {
			px.X -= 8
			px.Y += 8
		}
		obs[pid] = px
	}
}
