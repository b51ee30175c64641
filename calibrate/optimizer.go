package calibrate

import (
	"fmt"
	"context"
	"math"

	"github.com/edaniels/golog"
	"github.com/go-nlopt/nlopt"
	"github.com/pkg/errors"
	"go.uber.org/multierr"
	viamutils "go.viam.com/utils"

	"github.com/rennybird/Vilota/camera"
	"github.com/rennybird/Vilota/dataset"
)

// ErrInsufficientViews is returned when fewer valid views remain than the
// configured minimum, before calibration starts or after a pruning step.
var ErrInsufficientViews = errors.New("not enough views for proper calibration")

const (
	stageFtol = 1e-12
	stageXtol = 1e-12
	// gradientJump is the relative finite-difference step for the solver's
	// gradient; chosen to stay above float64 rounding noise on pixel-scale
	// residuals.
	gradientJump = 1e-7
)

// Summary reports per-stage diagnostics of one calibration run.
type Summary struct {
	ViewsBefore    int
	ViewsAfter     int
	StageRMS       []float64
	PrunedPerStage []int
}

// Calibrate runs the staged joint optimization over the dataset in place:
//
//  1. poses, focal length and (non-pinhole) radial distortion with a robust
//     loss and the principal point held fixed, then a coarse pruning sweep;
//  2. principal point only;
//  3. everything the model frees in its full phase, then a fine pruning sweep;
//  4. optionally board points on a homogeneous parameterization, followed by
//     one more full pass.
//
// The minimum view gate is checked up front and after each pruning step; a
// gate failure up front leaves the dataset untouched. Each stage is one
// blocking nlopt minimization.
func Calibrate(ctx context.Context, ds *dataset.Dataset, opts Options, logger golog.Logger) (Summary, error) {
	summary := Summary{ViewsBefore: ds.NumViews(), ViewsAfter: ds.NumViews()}
	// at least one view is always needed, whatever the configured gate says
	minViews := opts.MinViews
	if minViews < 1 {
		minViews = 1
	}
	if ds.NumViews() < minViews {
		return summary, errors.Wrapf(ErrInsufficientViews, "%d views, need %d", ds.NumViews(), minViews)
	}
	opts.MinViews = minViews
	logger.Infof("using %d views for camera calibration", ds.NumViews())

	viewIDs := ds.ViewIDs()
	model, err := modelForViews(ds, viewIDs)
	if err != nil {
		return summary, err
	}

	// 1. focal length and radial distortion, principal point fixed
	logger.Info("adjusting focal length and radial distortion")
	if err := runStage(ctx, ds, opts, true, model.FocalSubset(), false, logger); err != nil {
		return summary, err
	}
	if err := recordStage(ds, opts, &summary, logger, opts.CoarsePruneThreshold); err != nil {
		return summary, err
	}

	// 2. principal point, everything else fixed
	logger.Info("adjusting principal point")
	if err := runStage(ctx, ds, opts, false, camera.PrincipalPointSubset(), false, logger); err != nil {
		return summary, err
	}
	if err := recordStage(ds, opts, &summary, logger, 0); err != nil {
		return summary, err
	}

	// 3. full adjustment
	logger.Info("adjusting all parameters")
	if err := runStage(ctx, ds, opts, true, model.FullSubset(), false, logger); err != nil {
		return summary, err
	}
	if err := recordStage(ds, opts, &summary, logger, opts.FinePruneThreshold); err != nil {
		return summary, err
	}

	// 4. optional board point refinement plus one more full pass
	if opts.OptimizeBoardPoints {
		logger.Info("adjusting board points")
		if err := runStage(ctx, ds, opts, false, nil, true, logger); err != nil {
			return summary, err
		}
		if err := runStage(ctx, ds, opts, true, model.FullSubset(), false, logger); err != nil {
			return summary, err
		}
		if err := recordStage(ds, opts, &summary, logger, 0); err != nil {
			return summary, err
		}
	}

	summary.ViewsAfter = ds.NumViews()
	return summary, nil
}

// modelForViews returns the lens model shared by the given views.
func modelForViews(ds *dataset.Dataset, viewIDs []dataset.ViewID) (camera.Model, error) {
	kind := ds.View(viewIDs[0]).Kind
	for _, id := range viewIDs[1:] {
		if ds.View(id).Kind != kind {
			return nil, errors.Errorf("views %d and %d disagree on camera model", viewIDs[0], id)
		}
	}
	return camera.NewModel(kind)
}

// recordStage appends the stage's aggregate RMS to the summary, optionally
// prunes, and re-checks the minimum view gate.
func recordStage(ds *dataset.Dataset, opts Options, summary *Summary, logger golog.Logger, pruneThreshold float64) error {
	pruned := 0
	if pruneThreshold > 0 {
		removed, err := PruneViews(ds, pruneThreshold, logger)
		if err != nil {
			return err
		}
		pruned = len(removed)
	}
	rms, err := AggregateRMS(ds)
	if err != nil {
		return err
	}
	summary.StageRMS = append(summary.StageRMS, rms)
	summary.PrunedPerStage = append(summary.PrunedPerStage, pruned)
	summary.ViewsAfter = ds.NumViews()
	logger.Infow("stage finished", "rms_reproj_error", rms, "pruned", pruned, "views", ds.NumViews())
	if ds.NumViews() < opts.MinViews {
		return errors.Wrapf(ErrInsufficientViews, "%d views left, need %d", ds.NumViews(), opts.MinViews)
	}
	return nil
}

type optimizeReturn struct {
	solution []float64
	score    float64
	err      error
}

// runStage performs one joint minimization over the stage's free parameters
// and writes the refined values back into the dataset. The solver call is a
// single blocking step; a configured stage timeout force-stops it and fails
// the stage.
func runStage(
	ctx context.Context,
	ds *dataset.Dataset,
	opts Options,
	posesFree bool,
	intrinsicsFree []int,
	pointsFree bool,
	logger golog.Logger,
) error {
	prob, err := newStageProblem(ds, opts, posesFree, intrinsicsFree, pointsFree)
	if err != nil {
		return err
	}
	if len(prob.obs) == 0 {
		return errors.New("no observations to optimize over")
	}

	if opts.StageTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.StageTimeout)
		defer cancel()
	}

	opt, err := nlopt.NewNLopt(nlopt.LD_LBFGS, uint(prob.dim()))
	if err != nil {
		return errors.Wrap(err, "nlopt creation error")
	}
	defer opt.Destroy()

	evaluations := 0
	// gradient is mutated in place per the nlopt contract
	objective := func(x, gradient []float64) float64 {
		evaluations++
		cost := prob.cost(x)
		println("DBG eval", evaluations, "cost:", fmt.Sprint(cost), "dim:", len(x), "gradlen:", len(gradient))
		if len(gradient) > 0 {
			for i := range gradient {
				jump := gradientJump * math.Max(1, math.Abs(x[i]))
				old := x[i]
				x[i] = old + jump
				gradient[i] = (prob.cost(x) - cost) / jump
				x[i] = old
			}
		}
		return cost
	}

	err = multierr.Combine(
		opt.SetFtolRel(stageFtol),
		opt.SetFtolAbs(stageFtol),
		opt.SetXtolRel(stageXtol),
		opt.SetMaxEval(opts.MaxEvaluations),
		opt.SetMinObjective(objective),
	)
	if err != nil {
		return err
	}

	solveChan := make(chan *optimizeReturn, 1)
	viamutils.PanicCapturingGo(func() {
		solution, score, optErr := opt.Optimize(prob.seed())
		solveChan <- &optimizeReturn{solution, score, optErr}
	})

	var result *optimizeReturn
	select {
	case <-ctx.Done():
		err = multierr.Combine(ctx.Err(), opt.ForceStop())
		<-solveChan
		return err
	case result = <-solveChan:
	}
	if result.err != nil && result.solution == nil {
		return errors.Wrap(result.err, "stage optimization failed")
	}
	logger.Debugw("stage optimization converged", "cost", result.score, "evaluations", evaluations)
	return prob.writeBack(ds, opts, result.solution)
}
