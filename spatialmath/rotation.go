// Package spatialmath defines the spatial types used to express camera poses,
// and the conversions between rotation parameterizations needed by estimation
// and optimization code.
package spatialmath

import (
	"math"

	"github.com/golang/geo/r3"
	"github.com/pkg/errors"
	"gonum.org/v1/gonum/mat"
)

// RotationMatrix is a 3x3 matrix in row major order.
type RotationMatrix struct {
	mm [9]float64
}

// NewRotationMatrix creates the rotation matrix from a slice of floats in row major order.
func NewRotationMatrix(m []float64) (*RotationMatrix, error) {
	if len(m) != 9 {
		return nil, errors.Errorf("input slice has %d elements, need exactly 9", len(m))
	}
	mm := [9]float64{m[0], m[1], m[2], m[3], m[4], m[5], m[6], m[7], m[8]}
	return &RotationMatrix{mm}, nil
}

// NewZeroRotationMatrix returns the identity rotation.
func NewZeroRotationMatrix() *RotationMatrix {
	return &RotationMatrix{[9]float64{1, 0, 0, 0, 1, 0, 0, 0, 1}}
}

// At returns the float corresponding to the given row and column.
func (rm *RotationMatrix) At(row, col int) float64 {
	return rm.mm[3*row+col]
}

// Row returns the a r3.Vector representing the given row.
func (rm *RotationMatrix) Row(row int) r3.Vector {
	return r3.Vector{X: rm.mm[3*row], Y: rm.mm[3*row+1], Z: rm.mm[3*row+2]}
}

// Mul returns the product of the rotation matrix with an r3 vector.
func (rm *RotationMatrix) Mul(v r3.Vector) r3.Vector {
	return r3.Vector{
		X: rm.mm[0]*v.X + rm.mm[1]*v.Y + rm.mm[2]*v.Z,
		Y: rm.mm[3]*v.X + rm.mm[4]*v.Y + rm.mm[5]*v.Z,
		Z: rm.mm[6]*v.X + rm.mm[7]*v.Y + rm.mm[8]*v.Z,
	}
}

// Transpose returns the transpose of the rotation matrix, which for rotations
// is also the inverse.
func (rm *RotationMatrix) Transpose() *RotationMatrix {
	m := rm.mm
	return &RotationMatrix{[9]float64{m[0], m[3], m[6], m[1], m[4], m[7], m[2], m[5], m[8]}}
}

// MatMul returns the matrix product rm * other.
func (rm *RotationMatrix) MatMul(other *RotationMatrix) *RotationMatrix {
	out := [9]float64{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			sum := 0.0
			for k := 0; k < 3; k++ {
				sum += rm.At(i, k) * other.At(k, j)
			}
			out[3*i+j] = sum
		}
	}
	return &RotationMatrix{out}
}

// Matrix returns the rotation as a gonum dense matrix.
func (rm *RotationMatrix) Matrix() *mat.Dense {
	m := make([]float64, 9)
	copy(m, rm.mm[:])
	return mat.NewDense(3, 3, m)
}

// Raw returns a copy of the underlying row major floats.
func (rm *RotationMatrix) Raw() []float64 {
	out := make([]float64, 9)
	copy(out, rm.mm[:])
	return out
}

// AxisAngle returns the rotation as a compact axis-angle vector whose
// direction is the rotation axis and whose norm is the angle in radians.
func (rm *RotationMatrix) AxisAngle() r3.Vector {
	tr := rm.mm[0] + rm.mm[4] + rm.mm[8]
	cosTheta := (tr - 1) / 2
	if cosTheta > 1 {
		cosTheta = 1
	} else if cosTheta < -1 {
		cosTheta = -1
	}
	theta := math.Acos(cosTheta)
	if theta < 1e-12 {
		return r3.Vector{}
	}
	axis := r3.Vector{
		X: rm.At(2, 1) - rm.At(1, 2),
		Y: rm.At(0, 2) - rm.At(2, 0),
		Z: rm.At(1, 0) - rm.At(0, 1),
	}
	sinTheta := math.Sin(theta)
	if math.Abs(sinTheta) < 1e-9 {
		// theta near pi, recover the axis from the diagonal
		ax := math.Sqrt(math.Max(0, (rm.At(0, 0)+1)/2))
		ay := math.Sqrt(math.Max(0, (rm.At(1, 1)+1)/2))
		az := math.Sqrt(math.Max(0, (rm.At(2, 2)+1)/2))
		if rm.At(0, 1) < 0 {
			ay = -ay
		}
		if rm.At(0, 2) < 0 {
			az = -az
		}
		return r3.Vector{X: ax, Y: ay, Z: az}.Mul(theta)
	}
	return axis.Mul(theta / (2 * sinTheta))
}

// NewRotationMatrixFromAxisAngle builds a rotation matrix from a compact
// axis-angle vector using the Rodrigues formula.
func NewRotationMatrixFromAxisAngle(aa r3.Vector) *RotationMatrix {
	theta := aa.Norm()
	if theta < 1e-12 {
		return NewZeroRotationMatrix()
	}
	k := aa.Mul(1 / theta)
	c := math.Cos(theta)
	s := math.Sin(theta)
	oc := 1 - c
	return &RotationMatrix{[9]float64{
		c + k.X*k.X*oc, k.X*k.Y*oc - k.Z*s, k.X*k.Z*oc + k.Y*s,
		k.Y*k.X*oc + k.Z*s, c + k.Y*k.Y*oc, k.Y*k.Z*oc - k.X*s,
		k.Z*k.X*oc - k.Y*s, k.Z*k.Y*oc + k.X*s, c + k.Z*k.Z*oc,
	}}
}

// NewRotationMatrixFromDense converts a gonum 3x3 dense matrix into a RotationMatrix.
func NewRotationMatrixFromDense(m *mat.Dense) (*RotationMatrix, error) {
	r, c := m.Dims()
	if r != 3 || c != 3 {
		return nil, errors.Errorf("matrix is %dx%d, need 3x3", r, c)
	}
	mm := [9]float64{}
	for i := 0; i < 3; i++ {
		for j := 0; j < 3; j++ {
			mm[3*i+j] = m.At(i, j)
		}
	}
	return &RotationMatrix{mm}, nil
}

// ClosestRotation projects an arbitrary 3x3 matrix onto the closest true
// rotation in the Frobenius sense via SVD, fixing the determinant sign.
func ClosestRotation(m *mat.Dense) (*RotationMatrix, error) {
	var svd mat.SVD
	if ok := svd.Factorize(m, mat.SVDFull); !ok {
		return nil, errors.New("failed to factorize matrix")
	}
	var u, v, r mat.Dense
	svd.UTo(&u)
	svd.VTo(&v)
	r.Mul(&u, v.T())
	if mat.Det(&r) < 0 {
		// flip the last column of U
		for i := 0; i < 3; i++ {
			u.Set(i, 2, -u.At(i, 2))
		}
		r.Mul(&u, v.T())
	}
	return NewRotationMatrixFromDense(&r)
}

// OrientationAlmostEqual returns whether two rotations are within the given
// angular tolerance (radians) of each other.
func OrientationAlmostEqual(a, b *RotationMatrix, tol float64) bool {
	diff := a.MatMul(b.Transpose())
	return diff.AxisAngle().Norm() < tol
}
