// Package calibrate drives the calibration pipeline: view ingestion with
// robust pose initialization and viewpoint deduplication, the staged joint
// optimization of poses and intrinsics, reprojection-error view pruning, and
// result reporting.
package calibrate

import (
	"time"

	"github.com/rennybird/Vilota/camera"
	"github.com/rennybird/Vilota/dataset"
	"github.com/rennybird/Vilota/pose"
)

// Options configures the staged optimizer.
type Options struct {
	// MinViews is the fewest views the dataset may hold; checked before
	// calibration starts and after every pruning step.
	MinViews int `json:"min_views"`
	// LossWidth is the Huber width in pixels used to down-weight residual
	// outliers during every stage.
	LossWidth float64 `json:"loss_width"`
	// CoarsePruneThreshold removes views by RMS reprojection error after the
	// focal and radial stage.
	CoarsePruneThreshold float64 `json:"coarse_prune_threshold"`
	// FinePruneThreshold removes views after the full stage.
	FinePruneThreshold float64 `json:"fine_prune_threshold"`
	// OptimizeBoardPoints enables the optional board point refinement stage.
	OptimizeBoardPoints bool `json:"optimize_board_points"`
	// MaxEvaluations bounds the solver's objective evaluations per stage.
	MaxEvaluations int `json:"max_evaluations"`
	// StageTimeout aborts a stage that runs past the deadline; zero disables.
	StageTimeout time.Duration `json:"-"`
	// Workers sizes the residual evaluation pool; zero means all CPUs.
	Workers int `json:"workers"`
	// Group selects the intrinsics group being calibrated.
	Group dataset.GroupID `json:"group"`
}

// DefaultOptions returns the staged optimizer defaults.
func DefaultOptions() Options {
	return Options{
		MinViews:             10,
		LossWidth:            1.345,
		CoarsePruneThreshold: 5.0,
		FinePruneThreshold:   2.0,
		MaxEvaluations:       4000,
		Group:                dataset.DefaultGroup,
	}
}

// IngestConfig configures view ingestion.
type IngestConfig struct {
	Width  int     `json:"image_width"`
	Height int     `json:"image_height"`
	FPS    float64 `json:"camera_fps"`
	// GridSize is the minimum Euclidean distance between accepted camera
	// positions; closer candidates are skipped as duplicate viewpoints.
	GridSize float64 `json:"grid_size"`
	// MinCorrespondences is the fewest 2D-3D matches a frame needs before
	// pose initialization is attempted.
	MinCorrespondences int `json:"min_correspondences"`
	// Kind is the lens model every ingested view is created with.
	Kind camera.ModelKind `json:"-"`
	// Ransac configures the pose initializer. A non-positive ErrorThreshold
	// is replaced by 0.3% of the image height.
	Ransac pose.Config `json:"ransac"`
	// Group is the intrinsics group new views join.
	Group dataset.GroupID `json:"group"`
	// Seed seeds the robust estimator's sampler for reproducible runs.
	Seed int64 `json:"seed"`
}

// DefaultIngestConfig returns ingestion defaults for the given image size.
func DefaultIngestConfig(width, height int, kind camera.ModelKind) IngestConfig {
	cfg := IngestConfig{
		Width:              width,
		Height:             height,
		GridSize:           0.01,
		MinCorrespondences: pose.MinCorrespondences,
		Kind:               kind,
		Ransac:             pose.DefaultConfig(),
		Group:              dataset.DefaultGroup,
		Seed:               1,
	}
	cfg.Ransac.ErrorThreshold = 0.003 * float64(height)
	return cfg
}
