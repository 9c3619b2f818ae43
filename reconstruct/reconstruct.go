// Package reconstruct recovers sigma and V from the driver's final U
// and assembles the transpose/full-aware return shape the public API
// exposes.
package reconstruct

import (
	"math"

	"github.com/katalvlaran/hsvd/dmatrix"
	"gonum.org/v1/gonum/mat"
)

// Output bundles everything a public entry point may return. Sigma and V
// are nil unless the caller asked for the full decomposition.
type Output struct {
	U      dmatrix.DistMatrix
	Sigma  []float64
	V      dmatrix.DistMatrix
	RelErr float64
}

// Build assembles the user-facing result from workingA (the matrix the
// driver actually reduced — A itself, or A^T if the input was row-split)
// and driverU (the orthonormal survivor factor). When transposeFlag and
// full are both set the roles swap: the V recovered here is returned as
// U, and the driver's own U is returned as V, because everything the
// driver computed was computed in transposed coordinates.
func Build(workingA, driverU dmatrix.DistMatrix, relErr float64, transposeFlag, full bool) Output {
	if !transposeFlag && !full {
		return Output{U: driverU, RelErr: relErr}
	}

	vRaw, sigma := reconstructV(workingA, driverU)

	switch {
	case transposeFlag && full:
		return Output{U: vRaw, Sigma: sigma, V: driverU, RelErr: relErr}
	case transposeFlag && !full:
		return Output{U: vRaw, RelErr: relErr}
	default: // !transposeFlag && full
		return Output{U: driverU, Sigma: sigma, V: vRaw, RelErr: relErr}
	}
}

// reconstructV computes V := A^T U and sigma := ‖A^T U‖_col, scaling V's
// columns by 1/sigma where sigma is positive. A^T U needs no
// communication (workingA.T() is already a cheap local transpose view
// and U is replicated), but the per-column norms of V sum contributions
// spread across every rank's row-block, so they do require one
// distributed reduction.
func reconstructV(workingA, driverU dmatrix.DistMatrix) (dmatrix.DistMatrix, []float64) {
	vRaw := workingA.T().MatMul(driverU)
	sigma := distributedColNorms(vRaw)
	scaled := scaleColumns(vRaw.Local(), sigma)
	return dmatrix.WithLocal(vRaw, scaled), sigma
}

// distributedColNorms returns, for every column of v (spread row-wise
// across ranks), sqrt(Σ_rank ‖local column block‖²): each rank's local
// sum-of-squares vector is sent to rank 0, summed, and broadcast back —
// the same gather-to-root-then-broadcast shape dmatrix.VectorNorm uses,
// generalized from a scalar to a length-r vector.
func distributedColNorms(v dmatrix.DistMatrix) []float64 {
	local := v.Local()
	rows, cols := local.Dims()

	localSumSq := make([]float64, cols)
	for j := 0; j < cols; j++ {
		var s float64
		for i := 0; i < rows; i++ {
			x := local.At(i, j)
			s += x * x
		}
		localSumSq[j] = s
	}

	c := v.Comm()
	p, rank := c.Size(), c.Rank()
	const colNormTagBase = 4 // distinct from VectorNorm's base (3) and transport's [0,3p) ranges

	total := append([]float64(nil), localSumSq...)
	if rank != 0 {
		if err := c.Send(localSumSq, 0, colNormTagBase*p+rank); err != nil {
			// Same policy as dmatrix.VectorNorm: no error return on this
			// path, and a transport failure means the job is going down.
			panic(err)
		}
	} else {
		for src := 1; src < p; src++ {
			buf := make([]float64, cols)
			if err := c.Recv(buf, src, colNormTagBase*p+src); err != nil {
				panic(err)
			}
			for j := range total {
				total[j] += buf[j]
			}
		}
	}

	req := c.IbcastFloat64(total, 0)
	req.Wait()

	sigma := make([]float64, cols)
	for j, s := range total {
		sigma[j] = math.Sqrt(s)
	}
	return sigma
}

// scaleColumns returns a copy of local with column j divided by sigma[j]
// wherever sigma[j] > 0, left untouched otherwise.
func scaleColumns(local *mat.Dense, sigma []float64) *mat.Dense {
	rows, cols := local.Dims()
	out := mat.NewDense(rows, cols, nil)
	out.Copy(local)
	for j := 0; j < cols; j++ {
		if sigma[j] <= 0 {
			continue
		}
		for i := 0; i < rows; i++ {
			out.Set(i, j, out.At(i, j)/sigma[j])
		}
	}
	return out
}
