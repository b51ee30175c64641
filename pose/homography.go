package pose

import (
	"math"

	"github.com/golang/geo/r2"
	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"

	"github.com/rennybird/Vilota/spatialmath"
)

// fitHomography computes the 3x3 homography mapping planar board coordinates
// (X, Y) to recentered pixels using the normalized DLT, per Multiple View
// Geometry Alg 4.2. Needs at least 4 correspondences.
func fitHomography(corrs []Correspondence) (*mat.Dense, error) {
	if len(corrs) < MinCorrespondences {
		return nil, errors.Errorf("need at least %d correspondences, got %d", MinCorrespondences, len(corrs))
	}
	world := make([]r2.Point, len(corrs))
	pixels := make([]r2.Point, len(corrs))
	for i, c := range corrs {
		world[i] = r2.Point{X: c.World.X, Y: c.World.Y}
		pixels[i] = c.Pixel
	}
	worldNorm, t1 := normalizePoints(world)
	pixelsNorm, t2 := normalizePoints(pixels)

	a := mat.NewDense(2*len(corrs), 9, nil)
	for i := range corrs {
		w := worldNorm[i]
		p := pixelsNorm[i]
		a.SetRow(2*i, []float64{-w.X, -w.Y, -1, 0, 0, 0, p.X * w.X, p.X * w.Y, p.X})
		a.SetRow(2*i+1, []float64{0, 0, 0, -w.X, -w.Y, -1, p.Y * w.X, p.Y * w.Y, p.Y})
	}

	var svd mat.SVD
	if ok := svd.Factorize(a, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize DLT system")
	}
	var v mat.Dense
	svd.VTo(&v)
	h := mat.NewDense(3, 3, nil)
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			h.Set(i, j, v.At(3*i+j, 8))
		}
	}

	// denormalize: H = T2^-1 @ Hn @ T1
	var t2inv mat.Dense
	if err := t2inv.Inverse(t2); err != nil {
		return nil, errors.Wrap(err, "pixel normalization transform is singular")
	}
	h.Mul(&t2inv, h)
	h.Mul(h, t1)
	if math.Abs(h.At(2, 2)) > 1e-12 {
		h.Scale(1/h.At(2, 2), h)
	}
	return h, nil
}

// normalizePoints translates points to their centroid and scales them so the
// mean distance from the origin is sqrt(2), returning the applied transform.
func normalizePoints(pts []r2.Point) ([]r2.Point, *mat.Dense) {
	n := float64(len(pts))
	mu := r2.Point{}
	for _, pt := range pts {
		mu.X += pt.X
		mu.Y += pt.Y
	}
	mu = mu.Mul(1 / n)
	d := 0.0
	for _, pt := range pts {
		d += math.Hypot(pt.X-mu.X, pt.Y-mu.Y) / n
	}
	if d < 1e-12 {
		d = 1
	}
	scale := math.Sqrt2 / d
	t := mat.NewDense(3, 3, []float64{
		scale, 0, -scale * mu.X,
		0, scale, -scale * mu.Y,
		0, 0, 1,
	})
	out := make([]r2.Point, len(pts))
	for i, pt := range pts {
		out[i] = r2.Point{X: scale * (pt.X - mu.X), Y: scale * (pt.Y - mu.Y)}
	}
	return out, t
}

// focalFromHomography recovers the focal length from the two orthonormality
// constraints on the first two columns of K^-1 * H, assuming the pixels were
// recentered on the principal point and unit aspect ratio.
func focalFromHomography(h *mat.Dense) (float64, error) {
	a := r3.Vector{X: h.At(0, 0), Y: h.At(1, 0), Z: h.At(2, 0)}
	b := r3.Vector{X: h.At(0, 1), Y: h.At(1, 1), Z: h.At(2, 1)}

	// both constraints are linear in x = 1/f²:
	//   (a1*b1 + a2*b2) x = -a3*b3
	//   (a1²+a2²-b1²-b2²) x = -(a3²-b3²)
	c1 := a.X*b.X + a.Y*b.Y
	d1 := -a.Z * b.Z
	c2 := a.X*a.X + a.Y*a.Y - b.X*b.X - b.Y*b.Y
	d2 := -(a.Z*a.Z - b.Z*b.Z)

	denom := c1*c1 + c2*c2
	if denom < 1e-18 {
		return 0, errors.New("degenerate homography, cannot recover focal length")
	}
	x := (c1*d1 + c2*d2) / denom
	if x <= 0 {
		return 0, errors.New("homography implies imaginary focal length")
	}
	return 1 / math.Sqrt(x), nil
}

// poseFromHomography extracts the world-to-camera rotation and the camera
// position from a homography and a focal length, enforcing that the board
// centroid lies in front of the camera.
func poseFromHomography(h *mat.Dense, focal float64, corrs []Correspondence) (*spatialmath.RotationMatrix, r3.Vector, error) {
	m1 := r3.Vector{X: h.At(0, 0) / focal, Y: h.At(1, 0) / focal, Z: h.At(2, 0)}
	m2 := r3.Vector{X: h.At(0, 1) / focal, Y: h.At(1, 1) / focal, Z: h.At(2, 1)}
	m3 := r3.Vector{X: h.At(0, 2) / focal, Y: h.At(1, 2) / focal, Z: h.At(2, 2)}
	scale := 2 / (m1.Norm() + m2.Norm())
	if math.IsInf(scale, 0) || math.IsNaN(scale) {
		return nil, r3.Vector{}, errors.New("degenerate homography columns")
	}
	r1 := m1.Mul(scale)
	r2col := m2.Mul(scale)
	t := m3.Mul(scale)

	centroid := r3.Vector{}
	for _, c := range corrs {
		centroid = centroid.Add(c.World)
	}
	centroid = centroid.Mul(1 / float64(len(corrs)))
	if r1.Mul(centroid.X).Add(r2col.Mul(centroid.Y)).Add(t).Z < 0 {
		r1 = r1.Mul(-1)
		r2col = r2col.Mul(-1)
		t = t.Mul(-1)
	}
	r3col := r1.Cross(r2col)

	approx := mat.NewDense(3, 3, []float64{
		r1.X, r2col.X, r3col.X,
		r1.Y, r2col.Y, r3col.Y,
		r1.Z, r2col.Z, r3col.Z,
	})
	rot, err := spatialmath.ClosestRotation(approx)
	if err != nil {
		return nil, r3.Vector{}, err
	}
	// x_cam = R.X + t  =>  position p with x_cam = R (X - p) is p = -R^T t
	pos := rot.Transpose().Mul(t).Mul(-1)
	return rot, pos, nil
}
