// Package linalg_test contains unit tests for the local dense backend.
package linalg_test

import (
	"math"
	"testing"

	"github.com/katalvlaran/hsvd/linalg"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

const tol = 1e-12

// TestThinSVD_Diagonal verifies that the thin SVD of a diagonal matrix
// recovers its entries, sorted descending, with orthonormal U.
func TestThinSVD_Diagonal(t *testing.T) {
	m := mat.NewDense(4, 3, nil)
	m.Set(0, 0, 3)
	m.Set(1, 1, 5)
	m.Set(2, 2, 1)

	u, sigma, err := linalg.ThinSVD(m)
	require.NoError(t, err)

	require.Len(t, sigma, 3)
	assert.InDelta(t, 5, sigma[0], tol)
	assert.InDelta(t, 3, sigma[1], tol)
	assert.InDelta(t, 1, sigma[2], tol)

	rows, cols := u.Dims()
	assert.Equal(t, 4, rows)
	assert.Equal(t, 3, cols)

	var gram mat.Dense
	gram.Mul(u.T(), u)
	for i := 0; i < cols; i++ {
		for j := 0; j < cols; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			assert.InDelta(t, want, gram.At(i, j), tol, "UᵀU must be the identity")
		}
	}
}

// TestThinSVD_ReconstructsRankOne checks the spectrum of a rank-1 matrix
// u·vᵀ: σ[0] must equal ‖u‖·‖v‖ (= ‖M‖_F) and the remaining singular
// value must vanish. U is not inspected.
func TestThinSVD_ReconstructsRankOne(t *testing.T) {
	u := []float64{1, 2, 3}
	v := []float64{4, 5}
	m := mat.NewDense(3, 2, nil)
	for i, ui := range u {
		for j, vj := range v {
			m.Set(i, j, ui*vj)
		}
	}

	_, sigma, err := linalg.ThinSVD(m)
	require.NoError(t, err)

	normU := math.Sqrt(1 + 4 + 9)
	normV := math.Sqrt(16 + 25)
	assert.InDelta(t, normU*normV, sigma[0], tol)
	assert.InDelta(t, 0, sigma[1], tol)
}

// TestTailNormSquared exercises the in-range, boundary, and clamped
// index cases of the tolerance-rank tail sum.
func TestTailNormSquared(t *testing.T) {
	sigma := []float64{3, 2, 1}

	assert.InDelta(t, 14, linalg.TailNormSquared(sigma, 0), tol)
	assert.InDelta(t, 5, linalg.TailNormSquared(sigma, 1), tol)
	assert.InDelta(t, 1, linalg.TailNormSquared(sigma, 2), tol)
	assert.Zero(t, linalg.TailNormSquared(sigma, 3), "k == len is the empty tail")
	assert.Zero(t, linalg.TailNormSquared(sigma, 7), "k beyond len clamps to the empty tail")
	assert.InDelta(t, 14, linalg.TailNormSquared(sigma, -1), tol, "negative k clamps to the full sum")
}

// TestDiag builds a diagonal matrix and checks both diagonal and
// off-diagonal entries.
func TestDiag(t *testing.T) {
	d := linalg.Diag([]float64{2, 7})

	rows, cols := d.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 2, cols)
	assert.Equal(t, 2.0, d.At(0, 0))
	assert.Equal(t, 7.0, d.At(1, 1))
	assert.Zero(t, d.At(0, 1))
	assert.Zero(t, d.At(1, 0))
}

// TestFrobeniusNorm compares against the hand-computed sum of squares.
func TestFrobeniusNorm(t *testing.T) {
	m := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	assert.InDelta(t, math.Sqrt(30), linalg.FrobeniusNorm(m), tol)
}

// TestColNorms compares per-column Euclidean norms against hand values.
func TestColNorms(t *testing.T) {
	m := mat.NewDense(2, 3, []float64{
		3, 0, 1,
		4, 0, 1,
	})

	norms := linalg.ColNorms(m)
	require.Len(t, norms, 3)
	assert.InDelta(t, 5, norms[0], tol)
	assert.Zero(t, norms[1])
	assert.InDelta(t, math.Sqrt(2), norms[2], tol)
}

// TestMatMul sanity-checks the allocation-and-multiply helper.
func TestMatMul(t *testing.T) {
	a := mat.NewDense(2, 2, []float64{1, 2, 3, 4})
	b := mat.NewDense(2, 1, []float64{5, 6})

	prod := linalg.MatMul(a, b)
	rows, cols := prod.Dims()
	require.Equal(t, 2, rows)
	require.Equal(t, 1, cols)
	assert.InDelta(t, 17, prod.At(0, 0), tol)
	assert.InDelta(t, 39, prod.At(1, 0), tol)
}

// TestNewOnDevice allocates a zeroed matrix regardless of the device tag.
func TestNewOnDevice(t *testing.T) {
	m := linalg.NewOnDevice(2, 3, "gpu:0")
	rows, cols := m.Dims()
	assert.Equal(t, 2, rows)
	assert.Equal(t, 3, cols)
	assert.Zero(t, mat.Norm(m, 2))
}
