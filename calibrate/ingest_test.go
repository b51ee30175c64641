package calibrate

import (
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/rennybird/Vilota/camera"
	"github.com/rennybird/Vilota/dataset"
)

func TestIngestAcceptsAndRecoversPose(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ds := dataset.New()
	addBoard(t, ds)

	truePos := r3.Vector{X: 0.05, Y: -0.03, Z: -0.6}
	batch := renderBatch(t, ds, truePos, 0.5)

	stats, err := Ingest(ds, []Batch{batch}, DefaultIngestConfig(testWidth, testHeight, camera.Pinhole), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats.Accepted, test.ShouldEqual, 1)
	test.That(t, ds.NumViews(), test.ShouldEqual, 1)

	id := ds.ViewIDs()[0]
	v := ds.View(id)
	test.That(t, v.Position.Sub(truePos).Norm(), test.ShouldBeLessThan, 1e-3)
	test.That(t, v.Timestamp, test.ShouldEqual, 0.5)
	test.That(t, v.Kind, test.ShouldEqual, camera.Pinhole)
	// observations keep their original pixel coordinates
	test.That(t, ds.Observations(id), test.ShouldHaveLength, len(batch.Corners))
	test.That(t, ds.Observations(id)[0], test.ShouldResemble, batch.Corners[0])

	// the group seed comes from the first accepted view's focal estimate
	params := ds.Intrinsics(dataset.DefaultGroup)
	test.That(t, params[camera.ParamFocalLength], test.ShouldAlmostEqual, testFocal, 0.5)
	test.That(t, params[camera.ParamPrincipalPointX], test.ShouldEqual, testWidth/2.0)
	test.That(t, params[camera.ParamPrincipalPointY], test.ShouldEqual, testHeight/2.0)
}

func TestIngestDeduplicatesNearbyViewpoints(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ds := dataset.New()
	addBoard(t, ds)

	pos := r3.Vector{X: 0.05, Y: -0.03, Z: -0.6}
	near := pos.Add(r3.Vector{X: 0.0005})
	far := pos.Add(r3.Vector{X: 0.05})
	batches := []Batch{
		renderBatch(t, ds, pos, 0.0),
		renderBatch(t, ds, near, 0.1),
		renderBatch(t, ds, far, 0.2),
	}

	cfg := DefaultIngestConfig(testWidth, testHeight, camera.Pinhole)
	test.That(t, cfg.GridSize, test.ShouldEqual, 0.01)
	stats, err := Ingest(ds, batches, cfg, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats.Attempted, test.ShouldEqual, 3)
	test.That(t, stats.Deduplicated, test.ShouldEqual, 1)
	test.That(t, stats.Accepted, test.ShouldEqual, 2)
	test.That(t, ds.NumViews(), test.ShouldEqual, 2)
}

func TestIngestProcessesInTimestampOrder(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ds := dataset.New()
	addBoard(t, ds)

	pos := r3.Vector{X: 0.05, Y: -0.03, Z: -0.6}
	near := pos.Add(r3.Vector{X: 0.0005})
	// the earlier frame wins the dedup race even when supplied second
	batches := []Batch{
		renderBatch(t, ds, near, 1.0),
		renderBatch(t, ds, pos, 0.0),
	}

	stats, err := Ingest(ds, batches, DefaultIngestConfig(testWidth, testHeight, camera.Pinhole), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats.Accepted, test.ShouldEqual, 1)
	test.That(t, ds.View(ds.ViewIDs()[0]).Timestamp, test.ShouldEqual, 0.0)
}

func TestIngestSkipsDegenerateFrames(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ds := dataset.New()
	addBoard(t, ds)

	full := renderBatch(t, ds, r3.Vector{X: 0.05, Y: -0.03, Z: -0.6}, 0.0)
	sparse := Batch{Timestamp: 0.1, Corners: map[dataset.PointID]r2.Point{}}
	for _, id := range []dataset.PointID{0, 1, 2} {
		sparse.Corners[id] = full.Corners[id]
	}

	stats, err := Ingest(ds, []Batch{full, sparse}, DefaultIngestConfig(testWidth, testHeight, camera.Pinhole), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats.Degenerate, test.ShouldEqual, 1)
	test.That(t, stats.Accepted, test.ShouldEqual, 1)
}

func TestIngestIgnoresUnknownPointIDs(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ds := dataset.New()
	addBoard(t, ds)

	batch := renderBatch(t, ds, r3.Vector{X: 0.05, Y: -0.03, Z: -0.6}, 0.0)
	// detections with no matching board point contribute nothing
	batch.Corners[dataset.PointID(999)] = batch.Corners[0]

	stats, err := Ingest(ds, []Batch{batch}, DefaultIngestConfig(testWidth, testHeight, camera.Pinhole), logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, stats.Accepted, test.ShouldEqual, 1)
	test.That(t, ds.Observations(ds.ViewIDs()[0]), test.ShouldHaveLength, 63)
}
