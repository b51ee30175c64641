package spatialmath

import (
	"math"
	"testing"

	"github.com/golang/geo/r3"
	"go.viam.com/test"
	"gonum.org/v1/gonum/mat"
)

func TestNewRotationMatrix(t *testing.T) {
	_, err := NewRotationMatrix([]float64{1, 0, 0})
	test.That(t, err, test.ShouldNotBeNil)
	test.That(t, err.Error(), test.ShouldContainSubstring, "need exactly 9")

	rm, err := NewRotationMatrix([]float64{1, 0, 0, 0, 1, 0, 0, 0, 1})
	test.That(t, err, test.ShouldBeNil)
	test.That(t, rm.At(0, 0), test.ShouldEqual, 1)
	test.That(t, rm.At(0, 1), test.ShouldEqual, 0)
}

func TestAxisAngleRoundTrip(t *testing.T) {
	for _, aa := range []r3.Vector{
		{X: 0.3, Y: -0.2, Z: 0.9},
		{X: 0.001, Y: 0, Z: 0},
		{X: 0, Y: 0, Z: 0},
		{X: 2.5, Y: 1.1, Z: -0.4},
	} {
		rm := NewRotationMatrixFromAxisAngle(aa)
		back := rm.AxisAngle()
		test.That(t, back.X, test.ShouldAlmostEqual, aa.X, 1e-9)
		test.That(t, back.Y, test.ShouldAlmostEqual, aa.Y, 1e-9)
		test.That(t, back.Z, test.ShouldAlmostEqual, aa.Z, 1e-9)
	}
}

func TestRotationApply(t *testing.T) {
	// quarter turn about z maps x onto y
	rm := NewRotationMatrixFromAxisAngle(r3.Vector{Z: math.Pi / 2})
	got := rm.Mul(r3.Vector{X: 1})
	test.That(t, got.X, test.ShouldAlmostEqual, 0, 1e-12)
	test.That(t, got.Y, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, got.Z, test.ShouldAlmostEqual, 0, 1e-12)

	// transpose undoes the rotation
	back := rm.Transpose().Mul(got)
	test.That(t, back.X, test.ShouldAlmostEqual, 1, 1e-12)
	test.That(t, back.Y, test.ShouldAlmostEqual, 0, 1e-12)
}

func TestClosestRotation(t *testing.T) {
	rm := NewRotationMatrixFromAxisAngle(r3.Vector{X: 0.4, Y: -0.1, Z: 0.2})
	noisy := rm.Matrix()
	noisy.Set(0, 1, noisy.At(0, 1)+1e-4)
	noisy.Set(2, 0, noisy.At(2, 0)-1e-4)

	fixed, err := ClosestRotation(noisy)
	test.That(t, err, test.ShouldBeNil)
	test.That(t, math.Abs(mat.Det(fixed.Matrix())), test.ShouldAlmostEqual, 1, 1e-9)
	test.That(t, OrientationAlmostEqual(fixed, rm, 1e-3), test.ShouldBeTrue)
}
