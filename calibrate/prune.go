package calibrate

import (
	"github.com/edaniels/golog"

	"github.com/rennybird/Vilota/dataset"
)

// PruneViews removes every view whose RMS reprojection error under the current
// parameters exceeds maxError, and returns the removed ids. It is a one-shot
// sweep: condemned ids are collected first, then deleted, so the dataset is
// never mutated while being iterated.
func PruneViews(ds *dataset.Dataset, maxError float64, logger golog.Logger) ([]dataset.ViewID, error) {
	condemned := map[dataset.ViewID]float64{}
	for _, id := range ds.ViewIDs() {
		rms, err := ViewRMS(ds, id)
		if err != nil {
			return nil, err
		}
		if rms > maxError {
			condemned[id] = rms
		}
	}
	removed := make([]dataset.ViewID, 0, len(condemned))
	for id, rms := range condemned {
		ds.RemoveView(id)
		removed = append(removed, id)
		logger.Infow("removed view", "view", id, "rms_reproj_error", rms)
	}
	return removed, nil
}
