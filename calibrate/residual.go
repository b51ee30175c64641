package calibrate

import (
	"math"
	"runtime"
	"sync"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	viamutils "go.viam.com/utils"
	"gonum.org/v1/gonum/floats"

	"github.com/rennybird/Vilota/camera"
	"github.com/rennybird/Vilota/dataset"
	"github.com/rennybird/Vilota/spatialmath"
)

// unprojectablePenalty is the residual charged for an observation whose board
// point cannot be imaged under the current parameters; it keeps the objective
// finite while pushing the solver back into the valid domain.
const unprojectablePenalty = 1e4

// obsRef is one flattened observation: an index into the problem's view slice,
// an index into its board point slice, and the observed pixel.
type obsRef struct {
	view  int
	point int
	pixel r2.Point
}

// stageProblem is one stage's joint minimization: the free parameter selection
// plus a flattened, read-only snapshot of the dataset taken when the stage
// starts. The solver's parameter vector is laid out as
// [pose blocks][free intrinsics][homogeneous point blocks].
type stageProblem struct {
	model          camera.Model
	posesFree      bool
	intrinsicsFree []int
	pointsFree     bool

	viewIDs    []dataset.ViewID
	pointIDs   []dataset.PointID
	obs        []obsRef
	basePoses  [][6]float64 // axis-angle then position per view
	baseParams []float64
	basePoints [][4]float64

	lossWidth float64
	workers   int
}

// stageState is a decoded parameter vector: everything cost evaluation needs,
// rebuilt once per objective call and read concurrently by the workers.
type stageState struct {
	rotations []*spatialmath.RotationMatrix
	positions []r3.Vector
	params    []float64
	points    []r3.Vector
}

func newStageProblem(
	ds *dataset.Dataset,
	opts Options,
	posesFree bool,
	intrinsicsFree []int,
	pointsFree bool,
) (*stageProblem, error) {
	viewIDs := ds.ViewIDs()
	if len(viewIDs) == 0 {
		return nil, errors.New("dataset has no views")
	}
	kind := ds.View(viewIDs[0]).Kind
	model, err := camera.NewModel(kind)
	if err != nil {
		return nil, err
	}
	params := ds.Intrinsics(opts.Group)
	if len(params) != model.NumParams() {
		return nil, errors.Errorf("intrinsics vector has length %d, model %v needs %d",
			len(params), kind, model.NumParams())
	}

	workers := opts.Workers
	if workers <= 0 {
		workers = runtime.NumCPU()
	}
	prob := &stageProblem{
		model:          model,
		posesFree:      posesFree,
		intrinsicsFree: intrinsicsFree,
		pointsFree:     pointsFree,
		viewIDs:        viewIDs,
		pointIDs:       ds.PointIDs(),
		baseParams:     append([]float64{}, params...),
		lossWidth:      opts.LossWidth,
		workers:        workers,
	}

	pointIdx := make(map[dataset.PointID]int, len(prob.pointIDs))
	for i, id := range prob.pointIDs {
		pointIdx[id] = i
		prob.basePoints = append(prob.basePoints, ds.BoardPoint(id).Point)
	}
	for vi, id := range viewIDs {
		v := ds.View(id)
		aa := v.Rotation.AxisAngle()
		prob.basePoses = append(prob.basePoses, [6]float64{
			aa.X, aa.Y, aa.Z, v.Position.X, v.Position.Y, v.Position.Z,
		})
		for pid, pixel := range ds.Observations(id) {
			prob.obs = append(prob.obs, obsRef{view: vi, point: pointIdx[pid], pixel: pixel})
		}
	}
	return prob, nil
}

// dim returns the solver's parameter vector length for this stage.
func (p *stageProblem) dim() int {
	n := len(p.intrinsicsFree)
	if p.posesFree {
		n += 6 * len(p.viewIDs)
	}
	if p.pointsFree {
		n += 4 * len(p.pointIDs)
	}
	return n
}

// seed returns the initial parameter vector from the dataset snapshot.
func (p *stageProblem) seed() []float64 {
	x := make([]float64, 0, p.dim())
	if p.posesFree {
		for _, pose := range p.basePoses {
			x = append(x, pose[:]...)
		}
	}
	for _, idx := range p.intrinsicsFree {
		x = append(x, p.baseParams[idx])
	}
	if p.pointsFree {
		for _, pt := range p.basePoints {
			x = append(x, pt[:]...)
		}
	}
	return x
}

// decode expands a solver vector into poses, intrinsics and board points,
// substituting the frozen snapshot values for parameters the stage holds
// constant.
func (p *stageProblem) decode(x []float64) *stageState {
	st := &stageState{
		rotations: make([]*spatialmath.RotationMatrix, len(p.viewIDs)),
		positions: make([]r3.Vector, len(p.viewIDs)),
		params:    append([]float64{}, p.baseParams...),
		points:    make([]r3.Vector, len(p.pointIDs)),
	}
	at := 0
	for i, base := range p.basePoses {
		pose := base
		if p.posesFree {
			copy(pose[:], x[at:at+6])
			at += 6
		}
		st.rotations[i] = spatialmath.NewRotationMatrixFromAxisAngle(r3.Vector{X: pose[0], Y: pose[1], Z: pose[2]})
		st.positions[i] = r3.Vector{X: pose[3], Y: pose[4], Z: pose[5]}
	}
	for _, idx := range p.intrinsicsFree {
		st.params[idx] = x[at]
		at++
	}
	for i, base := range p.basePoints {
		pt := base
		if p.pointsFree {
			copy(pt[:], x[at:at+4])
			at += 4
		}
		w := pt[3]
		if math.Abs(w) < 1e-15 {
			w = 1e-15
		}
		st.points[i] = r3.Vector{X: pt[0] / w, Y: pt[1] / w, Z: pt[2] / w}
	}
	return st
}

// cost evaluates the robust reprojection objective, data-parallel over
// observation chunks.
func (p *stageProblem) cost(x []float64) float64 {
	st := p.decode(x)
	workers := p.workers
	if workers > len(p.obs) {
		workers = 1
	}
	sums := make([]float64, workers)
	chunk := (len(p.obs) + workers - 1) / workers
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		start := w * chunk
		end := start + chunk
		if end > len(p.obs) {
			end = len(p.obs)
		}
		if start >= end {
			continue
		}
		w := w
		obs := p.obs[start:end]
		wg.Add(1)
		viamutils.PanicCapturingGo(func() {
			defer wg.Done()
			sum := 0.0
			for _, o := range obs {
				cam := st.rotations[o.view].Mul(st.points[o.point].Sub(st.positions[o.view]))
				px, ok := p.model.ProjectCamera(st.params, cam)
				if !ok {
					sum += huber(unprojectablePenalty*unprojectablePenalty, p.lossWidth)
					continue
				}
				dx, dy := px.X-o.pixel.X, px.Y-o.pixel.Y
				sum += huber(dx*dx+dy*dy, p.lossWidth)
			}
			sums[w] = sum
		})
	}
	wg.Wait()
	return floats.Sum(sums)
}

// writeBack stores the optimized vector into the dataset.
func (p *stageProblem) writeBack(ds *dataset.Dataset, opts Options, x []float64) error {
	st := p.decode(x)
	at := 0
	for i, id := range p.viewIDs {
		v := ds.View(id)
		if v == nil {
			continue
		}
		v.Rotation = st.rotations[i]
		v.Position = st.positions[i]
	}
	if p.posesFree {
		at += 6 * len(p.viewIDs)
	}
	if err := ds.SetIntrinsics(opts.Group, st.params); err != nil {
		return err
	}
	at += len(p.intrinsicsFree)
	if p.pointsFree {
		for _, id := range p.pointIDs {
			pt := [4]float64{}
			copy(pt[:], x[at:at+4])
			at += 4
			if err := ds.SetBoardPoint(id, pt); err != nil {
				return err
			}
		}
	}
	return nil
}

// huber is the robust loss on a squared residual norm s with width w:
// quadratic inside the width, linear outside.
func huber(s, w float64) float64 {
	w2 := w * w
	if s <= w2 {
		return s
	}
	return 2*w*math.Sqrt(s) - w2
}

// ViewRMS returns the mean Euclidean reprojection error in pixels of one
// view's observations under the dataset's current parameters. Observations
// whose board point cannot be imaged push the error to +Inf.
func ViewRMS(ds *dataset.Dataset, id dataset.ViewID) (float64, error) {
	v := ds.View(id)
	if v == nil {
		return 0, errors.Errorf("view %d does not exist", id)
	}
	model, err := camera.NewModel(v.Kind)
	if err != nil {
		return 0, err
	}
	params := ds.Intrinsics(v.Group)
	obs := ds.Observations(id)
	if len(obs) == 0 {
		return 0, nil
	}
	sum := 0.0
	for pid, pixel := range obs {
		px, ok := camera.Project(model, params, v.Rotation, v.Position, ds.BoardPoint(pid).Position())
		if !ok {
			return math.Inf(1), nil
		}
		sum += math.Hypot(px.X-pixel.X, px.Y-pixel.Y)
	}
	return sum / float64(len(obs)), nil
}

// AggregateRMS returns the mean of per-view RMS errors over all views.
func AggregateRMS(ds *dataset.Dataset) (float64, error) {
	ids := ds.ViewIDs()
	if len(ids) == 0 {
		return 0, errors.New("dataset has no views")
	}
	sum := 0.0
	for _, id := range ids {
		rms, err := ViewRMS(ds, id)
		if err != nil {
			return 0, err
		}
		sum += rms
	}
	return sum / float64(len(ids)), nil
}
