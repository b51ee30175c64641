// Package pose estimates an initial camera pose, focal length and, for
// non-pinhole lens models, a single radial distortion term from one frame's
// 2D-3D correspondences using random sample consensus over a planar
// homography minimal solver.
package pose

import (
	"math"
	"math/rand"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"

	"github.com/rennybird/Vilota/camera"
	"github.com/rennybird/Vilota/spatialmath"
)

// MinCorrespondences is the smallest correspondence set a pose can be
// estimated from; it is also the RANSAC minimal sample size.
const MinCorrespondences = 4

// Config holds the robust estimation parameters.
type Config struct {
	// FailureProbability bounds the chance that no all-inlier sample is ever
	// drawn; it controls the adaptive iteration count.
	FailureProbability float64 `json:"failure_probability"`
	MinIterations      int     `json:"min_iterations"`
	MaxIterations      int     `json:"max_iterations"`
	// ErrorThreshold is the inlier reprojection threshold in pixels.
	ErrorThreshold float64 `json:"error_thresh"`
	// UseMLE enables a final refit of the model on the full inlier set.
	UseMLE bool `json:"use_mle"`
}

// DefaultConfig returns the estimation defaults; callers typically override
// ErrorThreshold to 0.3% of the image height.
func DefaultConfig() Config {
	return Config{
		FailureProbability: 0.001,
		MinIterations:      5,
		MaxIterations:      1000,
		ErrorThreshold:     3.0,
		UseMLE:             true,
	}
}

// Correspondence pairs one observed pixel, recentered by subtracting the
// principal point, with its 3D board point.
type Correspondence struct {
	Pixel r2.Point
	World r3.Vector
}

// Estimate is the result of robust pose initialization for one frame.
type Estimate struct {
	OK               bool
	Rotation         *spatialmath.RotationMatrix
	Position         r3.Vector
	FocalLength      float64
	RadialDistortion float64
	Inliers          int
	Iterations       int
}

type candidate struct {
	rot     *spatialmath.RotationMatrix
	pos     r3.Vector
	focal   float64
	inliers []int
}

// EstimatePose searches minimal correspondence subsets for the camera pose and
// focal length with the largest consensus under cfg.ErrorThreshold. Pinhole
// family kinds are solved without distortion terms; all other kinds share one
// approximate routine that additionally fits a single division-model radial
// term on the winning inlier set, since closed-form exact initializers do not
// exist for every kind.
func EstimatePose(corrs []Correspondence, cfg Config, kind camera.ModelKind, rnd *rand.Rand) Estimate {
	if len(corrs) < MinCorrespondences {
		return Estimate{}
	}

	best := candidate{}
	maxIter := cfg.MaxIterations
	iterations := 0
	for iterations < maxIter {
		iterations++
		sample := sampleIndices(len(corrs), MinCorrespondences, rnd)
		minimal := make([]Correspondence, MinCorrespondences)
		for i, idx := range sample {
			minimal[i] = corrs[idx]
		}
		cand, err := solve(minimal, corrs, 0, cfg.ErrorThreshold)
		if err != nil {
			continue
		}
		if len(cand.inliers) > len(best.inliers) {
			best = cand
			// shrink the iteration budget as the inlier ratio improves
			w := float64(len(best.inliers)) / float64(len(corrs))
			if needed := adaptiveIterations(cfg.FailureProbability, w, MinCorrespondences); needed < maxIter {
				maxIter = needed
			}
			if maxIter < cfg.MinIterations {
				maxIter = cfg.MinIterations
			}
		}
	}
	if len(best.inliers) < MinCorrespondences {
		return Estimate{Iterations: iterations}
	}

	if cfg.UseMLE {
		inlierSet := make([]Correspondence, len(best.inliers))
		for i, idx := range best.inliers {
			inlierSet[i] = corrs[idx]
		}
		if refined, err := solve(inlierSet, corrs, 0, cfg.ErrorThreshold); err == nil &&
			len(refined.inliers) >= len(best.inliers) {
			best = refined
		}
	}

	radial := 0.0
	if kind != camera.Pinhole && kind != camera.PinholeRadialTangential {
		radial = searchRadial(corrs, best)
	}

	return Estimate{
		OK:               true,
		Rotation:         best.rot,
		Position:         best.pos,
		FocalLength:      best.focal,
		RadialDistortion: radial,
		Inliers:          len(best.inliers),
		Iterations:       iterations,
	}
}

// solve fits a homography to fitSet, recovers focal length and pose, and
// scores inliers over the full correspondence set.
func solve(fitSet, all []Correspondence, radial, threshold float64) (candidate, error) {
	h, err := fitHomography(fitSet)
	if err != nil {
		return candidate{}, err
	}
	focal, err := focalFromHomography(h)
	if err != nil {
		return candidate{}, err
	}
	rot, pos, err := poseFromHomography(h, focal, fitSet)
	if err != nil {
		return candidate{}, err
	}
	cand := candidate{rot: rot, pos: pos, focal: focal}
	for i, c := range all {
		if reprojectionError(c, rot, pos, focal, radial) < threshold {
			cand.inliers = append(cand.inliers, i)
		}
	}
	return cand, nil
}

// reprojectionError projects one board point with a recentered pinhole plus
// optional division radial term and returns the pixel distance to the
// observation. Points behind the camera score +Inf.
func reprojectionError(c Correspondence, rot *spatialmath.RotationMatrix, pos r3.Vector, focal, radial float64) float64 {
	cam := rot.Mul(c.World.Sub(pos))
	if cam.Z < 1e-9 {
		return math.Inf(1)
	}
	x, y := cam.X/cam.Z, cam.Y/cam.Z
	xd, yd, ok := camera.DistortDivision(radial, x, y)
	if !ok {
		return math.Inf(1)
	}
	return math.Hypot(focal*xd-c.Pixel.X, focal*yd-c.Pixel.Y)
}

// searchRadial grid-searches the single division-model radial term that
// minimizes the mean reprojection error of the winning consensus set, then
// refines the grid twice around the best cell.
func searchRadial(corrs []Correspondence, best candidate) float64 {
	lo, hi := -2.0, 0.5
	bestK := 0.0
	for round := 0; round < 3; round++ {
		const steps = 40
		bestErr := math.Inf(1)
		width := (hi - lo) / steps
		for i := 0; i <= steps; i++ {
			k := lo + float64(i)*width
			sum := 0.0
			for _, idx := range best.inliers {
				sum += reprojectionError(corrs[idx], best.rot, best.pos, best.focal, k)
			}
			if sum < bestErr {
				bestErr = sum
				bestK = k
			}
		}
		lo, hi = bestK-width, bestK+width
	}
	return bestK
}

// adaptiveIterations returns the RANSAC trial count needed so the probability
// of never drawing an all-inlier sample stays below failProb:
// n = log(failProb) / log(1 - w^s).
func adaptiveIterations(failProb, inlierRatio float64, sampleSize int) int {
	if inlierRatio <= 0 {
		return math.MaxInt32
	}
	if inlierRatio >= 1 {
		return 1
	}
	denom := math.Log(1 - math.Pow(inlierRatio, float64(sampleSize)))
	if denom >= 0 {
		return math.MaxInt32
	}
	return int(math.Ceil(math.Log(failProb) / denom))
}

// sampleIndices draws n distinct indices in [0, total).
func sampleIndices(total, n int, rnd *rand.Rand) []int {
	picked := make(map[int]bool, n)
	out := make([]int, 0, n)
	for len(out) < n {
		idx := rnd.Intn(total)
		if picked[idx] {
			continue
		}
		picked[idx] = true
		out = append(out, idx)
	}
	return out
}
