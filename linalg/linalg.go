// Package linalg is the local dense-matrix backend consumed by the rest of
// hsvd: thin SVD, matrix multiply, diagonal construction, and the norms
// the truncator and reconstruction steps need. It wraps
// gonum.org/v1/gonum/mat the way the corpus's own retrieved reference
// (gonum's mat.SVD) shows — no hand-rolled decomposition lives here.
package linalg

import (
	"errors"
	"math"

	"gonum.org/v1/gonum/mat"
)

// ErrSVDFailed indicates gonum's SVD factorization did not converge.
// A diverging local SVD is fatal and aborts the whole SPMD job; there
// is no partial recovery.
var ErrSVDFailed = errors.New("linalg: svd factorization failed")

// ThinSVD computes the economy-size SVD of m (shape r×c): M = U Σ Vᵀ.
// Only U (r×min(r,c)) and the singular values are returned — V is never
// needed by the hierarchical reduction and is recomputed once, at the
// very end, by the reconstruct package.
func ThinSVD(m *mat.Dense) (u *mat.Dense, sigma []float64, err error) {
	var svd mat.SVD
	ok := svd.Factorize(m, mat.SVDThin)
	if !ok {
		return nil, nil, ErrSVDFailed
	}

	var uThin mat.Dense
	svd.UTo(&uThin)
	return &uThin, svd.Values(nil), nil
}

// MatMul returns a*b as a freshly allocated *mat.Dense.
func MatMul(a, b mat.Matrix) *mat.Dense {
	ar, _ := a.Dims()
	_, bc := b.Dims()
	out := mat.NewDense(ar, bc, nil)
	out.Mul(a, b)
	return out
}

// Diag builds a square diagonal matrix from v.
func Diag(v []float64) *mat.Dense {
	n := len(v)
	out := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		out.Set(i, i, v[i])
	}
	return out
}

// FrobeniusNorm returns ‖m‖_F = sqrt(Σ m_ij²). mat.Norm(m, 2) is the
// Frobenius norm for a general dense matrix, not the spectral norm.
func FrobeniusNorm(m mat.Matrix) float64 {
	return mat.Norm(m, 2)
}

// ColNorms returns the Euclidean (2-)norm of each column of m.
func ColNorms(m *mat.Dense) []float64 {
	_, c := m.Dims()
	out := make([]float64, c)
	for j := 0; j < c; j++ {
		col := mat.Col(nil, j, m)
		var sumSq float64
		for _, v := range col {
			sumSq += v * v
		}
		out[j] = math.Sqrt(sumSq)
	}
	return out
}

// TailNormSquared returns ‖σ[k:]‖² for a singular-value slice σ,
// treating an out-of-range k as the empty (zero-length) tail.
func TailNormSquared(sigma []float64, k int) float64 {
	if k < 0 {
		k = 0
	}
	if k > len(sigma) {
		k = len(sigma)
	}
	var sumSq float64
	for _, v := range sigma[k:] {
		sumSq += v * v
	}
	return sumSq
}

// NewOnDevice allocates an r×c zero matrix. Only host memory is
// targeted, so the device tag is ignored; the call shape survives so a
// GPU-backed mat.Matrix implementation could be substituted without
// touching callers.
func NewOnDevice(r, c int, _ string) *mat.Dense {
	return mat.NewDense(r, c, nil)
}
