package calibrate

import (
	"math"
	"testing"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r3"
	"go.viam.com/test"

	"github.com/rennybird/Vilota/dataset"
)

func TestHuber(t *testing.T) {
	// quadratic inside the width, linear outside, continuous at the knee
	test.That(t, huber(1, 1.345), test.ShouldEqual, 1)
	w2 := 1.345 * 1.345
	test.That(t, huber(w2, 1.345), test.ShouldAlmostEqual, w2, 1e-12)
	test.That(t, huber(100, 1.345), test.ShouldAlmostEqual, 2*1.345*10-w2, 1e-12)
	test.That(t, huber(100, 1.345), test.ShouldBeLessThan, 100)
}

func TestViewRMS(t *testing.T) {
	ds := dataset.New()
	addBoard(t, ds)
	id := addExactView(t, ds, r3.Vector{X: 0.05, Y: -0.03, Z: -0.6}, 0)

	rms, err := ViewRMS(ds, id)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rms, test.ShouldBeLessThan, 1e-9)

	corruptView(t, ds, id)
	rms, err = ViewRMS(ds, id)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rms, test.ShouldAlmostEqual, 8*math.Sqrt2, 1e-9)

	_, err = ViewRMS(ds, id+100)
	test.That(t, err, test.ShouldNotBeNil)
}

func TestViewRMSUnprojectable(t *testing.T) {
	ds := dataset.New()
	addBoard(t, ds)
	id := addExactView(t, ds, r3.Vector{X: 0.05, Y: -0.03, Z: -0.6}, 0)

	// move the view behind the board so every point falls behind the camera
	v := ds.View(id)
	v.Position = r3.Vector{X: 0.05, Y: -0.03, Z: 0.6}
	rms, err := ViewRMS(ds, id)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.IsInf(rms, 1), test.ShouldBeTrue)
}

func TestPruneViews(t *testing.T) {
	logger := golog.NewTestLogger(t)
	ds := dataset.New()
	addBoard(t, ds)

	positions := ringPositions(12)
	ids := make([]dataset.ViewID, 0, len(positions))
	for i, pos := range positions {
		ids = append(ids, addExactView(t, ds, pos, float64(i)))
	}
	corruptView(t, ds, ids[2])
	corruptView(t, ds, ids[7])

	removed, err := PruneViews(ds, 5.0, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldHaveLength, 2)
	test.That(t, removed, test.ShouldContain, ids[2])
	test.That(t, removed, test.ShouldContain, ids[7])
	test.That(t, ds.NumViews(), test.ShouldEqual, 10)

	// a second sweep at the same threshold removes nothing
	removed, err = PruneViews(ds, 5.0, logger)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, removed, test.ShouldHaveLength, 0)
}

func TestAggregateRMS(t *testing.T) {
	ds := dataset.New()
	_, err := AggregateRMS(ds)
	test.That(t, err, test.ShouldNotBeNil)

	addBoard(t, ds)
	for i, pos := range ringPositions(4) {
		addExactView(t, ds, pos, float64(i))
	}
	rms, err := AggregateRMS(ds)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rms, test.ShouldBeLessThan, 1e-9)
}

func TestStageProblemLayout(t *testing.T) {
	ds := dataset.New()
	addBoard(t, ds)
	for i, pos := range ringPositions(3) {
		addExactView(t, ds, pos, float64(i))
	}

	opts := DefaultOptions()
	prob, err := newStageProblem(ds, opts, true, []int{0, 4, 5}, false)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, prob.dim(), test.ShouldEqual, 3*6+3)
	test.That(t, prob.obs, test.ShouldHaveLength, 3*63)

	seed := prob.seed()
	test.That(t, seed, test.ShouldHaveLength, prob.dim())
	// the dataset holds the exact solution, so the seed cost is negligible
	test.That(t, prob.cost(seed), test.ShouldBeLessThan, 1e-12)

	prob, err = newStageProblem(ds, opts, false, nil, true)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, prob.dim(), test.ShouldEqual, 4*63)
}
