// Package truncator computes a truncated local SVD with rank, tolerance,
// and noise-floor caps plus a safety shift. It returns plain data and a
// Clamped diagnostic flag instead of logging anything itself: whether and
// how a Clamped result is reported is the caller's policy (see driver,
// which owns the silent/warningsOff flags).
package truncator

import (
	"fmt"

	"github.com/katalvlaran/hsvd/dmatrix"
	"github.com/katalvlaran/hsvd/linalg"
	"gonum.org/v1/gonum/mat"
)

// Result is the outcome of one local truncated SVD.
type Result struct {
	// U is the retained left-factor, shape (m, k_ret).
	U *mat.Dense
	// Sigma holds the retained singular values, length k_ret.
	Sigma []float64
	// ErrSquared is ‖σ_f[k*:]‖², the tail at the base (pre-safetyshift)
	// rank. The safety shift buys accuracy without inflating the
	// reported error.
	ErrSquared float64
	// Clamped reports that the ideal tolerance rank was cut short by
	// maxrank: a non-fatal, diagnostic condition.
	Clamped bool
	// Degenerate reports that every singular value was below the noise
	// floor.
	Degenerate bool
}

// Truncate computes the truncated SVD of m (shape r×c) for the given
// level/procID (carried through only for diagnostic messages upstream),
// capping the retained rank at maxrank, at an ideal-tolerance rank
// derived from loctol when non-nil, and at the per-dtype noise floor,
// then widening the returned (but not the reported-error) rank by
// safetyshift.
func Truncate(level, procID int, m *mat.Dense, maxrank int, loctol *float64, safetyshift int, dtype dmatrix.DType) (Result, error) {
	u, sigma, err := linalg.ThinSVD(m)
	if err != nil {
		return Result{}, fmt.Errorf("truncator: level %d proc %d: %w", level, procID, err)
	}

	c := len(sigma)
	noise := dtype.NoiseFloor()

	kNoise := 0
	for i, s := range sigma {
		if s >= noise {
			kNoise = i + 1
		}
	}
	if kNoise == 0 {
		// Degenerate: every singular value is numerical noise.
		rows, _ := m.Dims()
		zeroU := mat.NewDense(rows, 1, nil)
		return Result{
			U:          zeroU,
			Sigma:      []float64{0},
			ErrSquared: linalg.TailNormSquared(sigma, 0),
			Degenerate: true,
		}, nil
	}

	kBase := min(maxrank, kNoise)
	clamped := false
	if loctol != nil {
		kTol := idealToleranceRank(sigma, *loctol)
		clamped = kTol > maxrank
		kBase = min(kBase, kTol)
	}

	kRet := min(c, kBase+safetyshift)
	errSq := linalg.TailNormSquared(sigma, kBase)

	if kRet == 0 {
		// A tolerance loose enough to discard everything. Same zero-factor
		// shape as the noise-floor case so downstream consumers never see
		// a zero-width matrix.
		rows, _ := m.Dims()
		return Result{
			U:          mat.NewDense(rows, 1, nil),
			Sigma:      []float64{0},
			ErrSquared: errSq,
			Clamped:    clamped,
		}, nil
	}

	uRet := mat.NewDense(u.RawMatrix().Rows, kRet, nil)
	uRet.Copy(u.Slice(0, u.RawMatrix().Rows, 0, kRet))

	return Result{
		U:          uRet,
		Sigma:      append([]float64(nil), sigma[:kRet]...),
		ErrSquared: errSq,
		Clamped:    clamped,
	}, nil
}

// idealToleranceRank returns the smallest k in [0,c] with ‖σ[k:]‖² <
// loctol², where σ[c:] is the empty tail.
func idealToleranceRank(sigma []float64, loctol float64) int {
	bound := loctol * loctol
	c := len(sigma)
	for k := 0; k <= c; k++ {
		if linalg.TailNormSquared(sigma, k) < bound {
			return k
		}
	}
	return c
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
