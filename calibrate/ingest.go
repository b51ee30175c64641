package calibrate

import (
	"math/rand"
	"sort"

	"github.com/edaniels/golog"
	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/rennybird/Vilota/dataset"
	"github.com/rennybird/Vilota/pose"
)

// Batch is one frame's worth of target detections: the observed pixel of each
// detected board point, keyed by the point's stable id.
type Batch struct {
	Timestamp float64 // seconds
	Corners   map[dataset.PointID]r2.Point
}

// IngestStats counts per-frame outcomes during ingestion.
type IngestStats struct {
	Attempted    int
	Degenerate   int
	InitFailed   int
	Deduplicated int
	Accepted     int
}

// Ingest consumes an observation stream in timestamp order, initializes a pose
// for each frame, skips frames whose estimated position falls within GridSize
// of an already accepted view, and inserts the survivors into the dataset.
// Per-frame failures are logged and skipped, never fatal.
func Ingest(ds *dataset.Dataset, batches []Batch, cfg IngestConfig, logger golog.Logger) (IngestStats, error) {
	stats := IngestStats{}
	threshold := cfg.Ransac.ErrorThreshold
	if threshold <= 0 {
		threshold = 0.003 * float64(cfg.Height)
	}
	ransac := cfg.Ransac
	ransac.ErrorThreshold = threshold

	minCorrs := cfg.MinCorrespondences
	if minCorrs < pose.MinCorrespondences {
		minCorrs = pose.MinCorrespondences
	}

	ordered := make([]Batch, len(batches))
	copy(ordered, batches)
	sort.SliceStable(ordered, func(i, j int) bool { return ordered[i].Timestamp < ordered[j].Timestamp })

	//nolint:gosec
	rnd := rand.New(rand.NewSource(cfg.Seed))
	px := float64(cfg.Width) / 2.0
	py := float64(cfg.Height) / 2.0

	var accepted []r3.Vector
	for _, batch := range ordered {
		stats.Attempted++

		pointIDs := make([]dataset.PointID, 0, len(batch.Corners))
		corrs := make([]pose.Correspondence, 0, len(batch.Corners))
		for id, pixel := range batch.Corners {
			bp := ds.BoardPoint(id)
			if bp == nil {
				continue
			}
			pointIDs = append(pointIDs, id)
			corrs = append(corrs, pose.Correspondence{
				Pixel: r2.Point{X: pixel.X - px, Y: pixel.Y - py},
				World: bp.Position(),
			})
		}
		if len(corrs) < minCorrs {
			stats.Degenerate++
			logger.Debugw("skipping frame with too few correspondences",
				"timestamp", batch.Timestamp, "correspondences", len(corrs))
			continue
		}

		est := pose.EstimatePose(corrs, ransac, cfg.Kind, rnd)
		if !est.OK {
			stats.InitFailed++
			logger.Debugw("pose initialization found no consensus",
				"timestamp", batch.Timestamp, "iterations", est.Iterations)
			continue
		}

		duplicate := false
		for _, p := range accepted {
			if est.Position.Sub(p).Norm() < cfg.GridSize {
				duplicate = true
				break
			}
		}
		if duplicate {
			stats.Deduplicated++
			continue
		}
		accepted = append(accepted, est.Position)

		viewID, err := ds.AddView(
			est.Rotation, est.Position, est.FocalLength, est.RadialDistortion,
			cfg.Width, cfg.Height, batch.Timestamp, cfg.Kind, cfg.Group)
		if err != nil {
			return stats, err
		}
		for _, id := range pointIDs {
			if err := ds.AddObservation(viewID, id, batch.Corners[id]); err != nil {
				return stats, err
			}
		}
		stats.Accepted++
		if stats.Attempted%100 == 0 {
			logger.Infof("ingested %d/%d frames, accepted %d", stats.Attempted, len(ordered), stats.Accepted)
		}
	}

	logger.Infow("ingestion finished",
		"attempted", stats.Attempted,
		"degenerate", stats.Degenerate,
		"init_failed", stats.InitFailed,
		"deduplicated", stats.Deduplicated,
		"accepted", stats.Accepted)
	return stats, nil
}
