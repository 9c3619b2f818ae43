// Package hsvd_test drives the full reduction end to end over the
// in-process simulator: the six canonical scenarios plus the quantified
// invariants (orthonormality, a-posteriori error consistency, tolerance
// compliance, rank monotonicity).
package hsvd_test

import (
	"math"
	"math/rand"
	"sync"
	"testing"

	"github.com/katalvlaran/hsvd"
	"github.com/katalvlaran/hsvd/comm"
	"github.com/katalvlaran/hsvd/dmatrix"
	"github.com/katalvlaran/hsvd/gates"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

// runColSplit runs body on every simulated rank with the global matrix
// column-split across them, and returns rank 0's result.
func runColSplit(t *testing.T, world int, global *mat.Dense, body func(a dmatrix.DistMatrix) (hsvd.Result, error)) hsvd.Result {
	t.Helper()
	var (
		mu  sync.Mutex
		out hsvd.Result
	)
	err := comm.RunWorld(world, func(c comm.Communicator) error {
		a := dmatrix.NewColSplit(c, global, dmatrix.Float64)
		res, err := body(a)
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			mu.Lock()
			out = res
			mu.Unlock()
		}
		return nil
	})
	require.NoError(t, err)
	return out
}

// identity returns I_n.
func identity(n int) *mat.Dense {
	m := mat.NewDense(n, n, nil)
	for i := 0; i < n; i++ {
		m.Set(i, i, 1)
	}
	return m
}

// randomLowRank returns a seeded rows×cols matrix of exact rank r.
func randomLowRank(rows, cols, r int, seed int64) *mat.Dense {
	rng := rand.New(rand.NewSource(seed))
	left := mat.NewDense(rows, r, nil)
	right := mat.NewDense(r, cols, nil)
	for i := 0; i < rows; i++ {
		for j := 0; j < r; j++ {
			left.Set(i, j, rng.NormFloat64())
		}
	}
	for i := 0; i < r; i++ {
		for j := 0; j < cols; j++ {
			right.Set(i, j, rng.NormFloat64())
		}
	}
	out := mat.NewDense(rows, cols, nil)
	out.Mul(left, right)
	return out
}

// requireOrthonormal asserts ‖UᵀU − I_r‖_F within the machine-precision
// bound 10·ε·r.
func requireOrthonormal(t *testing.T, u *mat.Dense) {
	t.Helper()
	_, r := u.Dims()
	var gram mat.Dense
	gram.Mul(u.T(), u)

	var devSq float64
	for i := 0; i < r; i++ {
		for j := 0; j < r; j++ {
			want := 0.0
			if i == j {
				want = 1.0
			}
			d := gram.At(i, j) - want
			devSq += d * d
		}
	}
	bound := 10 * 2.220446049250313e-16 * float64(r)
	assert.LessOrEqual(t, math.Sqrt(devSq), bound, "UᵀU must be the identity to machine precision")
}

// TestIdentity16Over4Ranks is the canonical identity scenario: rank cap 8
// with no safety shift discards exactly half the unit spectrum.
func TestIdentity16Over4Ranks(t *testing.T) {
	res := runColSplit(t, 4, identity(16), func(a dmatrix.DistMatrix) (hsvd.Result, error) {
		return hsvd.HSVDRank(a, 8, hsvd.WithSafetyShift(0), hsvd.WithFull())
	})

	u := res.U.Local()
	rows, cols := u.Dims()
	require.Equal(t, 16, rows)
	require.Equal(t, 8, cols)
	requireOrthonormal(t, u)

	require.Len(t, res.Sigma, 8)
	for i, s := range res.Sigma {
		assert.InDelta(t, 1, s, 1e-12, "sigma[%d]", i)
	}

	assert.InDelta(t, math.Sqrt(8)/math.Sqrt(16), res.RelErr, 1e-12)
}

// TestRankOneMatrix recovers the single singular triplet of A = u·vᵀ
// essentially exactly.
func TestRankOneMatrix(t *testing.T) {
	const m, n = 100, 64
	rng := rand.New(rand.NewSource(7))
	uVec := make([]float64, m)
	vVec := make([]float64, n)
	for i := range uVec {
		uVec[i] = rng.NormFloat64()
	}
	for j := range vVec {
		vVec[j] = rng.NormFloat64()
	}
	global := mat.NewDense(m, n, nil)
	for i := 0; i < m; i++ {
		for j := 0; j < n; j++ {
			global.Set(i, j, uVec[i]*vVec[j])
		}
	}

	res := runColSplit(t, 4, global, func(a dmatrix.DistMatrix) (hsvd.Result, error) {
		return hsvd.HSVDRank(a, 1, hsvd.WithFull())
	})

	u := res.U.Local()
	rows, cols := u.Dims()
	require.Equal(t, m, rows)
	require.Equal(t, 1, cols)

	// U must be a unit vector parallel to uVec.
	normU := math.Sqrt(floats(uVec))
	var dot float64
	for i := 0; i < m; i++ {
		dot += u.At(i, 0) * uVec[i] / normU
	}
	assert.InDelta(t, 1, math.Abs(dot), 1e-10)

	normV := math.Sqrt(floats(vVec))
	require.Len(t, res.Sigma, 1)
	assert.InDelta(t, normU*normV, res.Sigma[0], 1e-9)

	assert.Less(t, res.RelErr, 1e-12)
}

func floats(v []float64) float64 {
	var s float64
	for _, x := range v {
		s += x * x
	}
	return s
}

// TestRowSplitTransposes feeds a row-split matrix through the tolerance
// mode: the algorithm transposes internally and returns the left factor
// in the caller's coordinates.
func TestRowSplitTransposes(t *testing.T) {
	const m, n = 8, 200
	global := randomLowRank(m, n, 5, 11)

	var (
		mu  sync.Mutex
		out hsvd.Result
	)
	err := comm.RunWorld(4, func(c comm.Communicator) error {
		a := dmatrix.NewRowSplit(c, global, dmatrix.Float64)
		res, err := hsvd.HSVDRtol(a, 1e-3)
		if err != nil {
			return err
		}
		if c.Rank() == 0 {
			mu.Lock()
			out = res
			mu.Unlock()
		}
		return nil
	})
	require.NoError(t, err)

	// The returned factor lives in A's original coordinates: m rows.
	gm, gn := out.U.Shape()
	assert.Equal(t, m, gm)
	assert.LessOrEqual(t, gn, m)
	assert.Nil(t, out.Sigma)
	assert.Nil(t, out.V)
	assert.LessOrEqual(t, out.RelErr, 1e-3)
}

// TestSingleProcess reduces level 0 straight to the exact truncated SVD.
func TestSingleProcess(t *testing.T) {
	global := randomLowRank(8, 5, 5, 3)

	res := runColSplit(t, 1, global, func(a dmatrix.DistMatrix) (hsvd.Result, error) {
		return hsvd.HSVDRank(a, 3, hsvd.WithFull())
	})

	u := res.U.Local()
	_, cols := u.Dims()
	require.Equal(t, 3, cols)
	requireOrthonormal(t, u)

	// Compare against the sequential SVD's tail.
	var svd mat.SVD
	require.True(t, svd.Factorize(global, mat.SVDThin))
	sigma := svd.Values(nil)
	var tailSq float64
	for _, s := range sigma[3:] {
		tailSq += s * s
	}
	wantRelErr := math.Sqrt(tailSq) / mat.Norm(global, 2)
	assert.InDelta(t, wantRelErr, res.RelErr, 1e-10)

	for i := 0; i < 3; i++ {
		assert.InDelta(t, sigma[i], res.Sigma[i], 1e-9, "sigma[%d]", i)
	}
}

// TestOversubscriptionFailsAtGate rejects an infeasible merge cap before
// any communication begins.
func TestOversubscriptionFailsAtGate(t *testing.T) {
	err := comm.RunWorld(2, func(c comm.Communicator) error {
		a := dmatrix.NewColSplit(c, identity(8), dmatrix.Float64)
		_, err := hsvd.HSVDRank(a, 5, hsvd.WithMaxMergeDim(3), hsvd.WithSafetyShift(5))
		if err == nil {
			return assert.AnError
		}
		return nil
	})
	require.NoError(t, err)

	// The same rejection, observed directly at the gate.
	res := runColSplitErr(t, identity(8), 5, 3)
	assert.ErrorIs(t, res, gates.ErrInconsistentParams)
}

func runColSplitErr(t *testing.T, global *mat.Dense, maxrank, maxmergedim int) error {
	t.Helper()
	var (
		mu  sync.Mutex
		got error
	)
	err := comm.RunWorld(1, func(c comm.Communicator) error {
		a := dmatrix.NewColSplit(c, global, dmatrix.Float64)
		_, err := hsvd.HSVDRank(a, maxrank, hsvd.WithMaxMergeDim(maxmergedim))
		mu.Lock()
		got = err
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)
	return got
}

// TestNoiseFloorDegenerate handles an all-noise matrix in-band: a zero
// factor on every rank, a bounded error estimate, and no crash.
func TestNoiseFloorDegenerate(t *testing.T) {
	global := mat.NewDense(16, 16, nil)
	for i := 0; i < 16; i++ {
		for j := 0; j < 16; j++ {
			global.Set(i, j, 1e-20)
		}
	}

	var mu sync.Mutex
	results := make(map[int]hsvd.Result)

	err := comm.RunWorld(4, func(c comm.Communicator) error {
		a := dmatrix.NewColSplit(c, global, dmatrix.Float64)
		res, err := hsvd.HSVDRank(a, 2)
		if err != nil {
			return err
		}
		mu.Lock()
		results[c.Rank()] = res
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	for rank, res := range results {
		u := res.U.Local()
		rows, cols := u.Dims()
		assert.Equal(t, 16, rows, "rank %d", rank)
		assert.Equal(t, 1, cols, "rank %d", rank)
		assert.Zero(t, mat.Norm(u, 2), "rank %d: degenerate factor must be zero", rank)
		assert.LessOrEqual(t, res.RelErr, 1+1e-9, "rank %d", rank)
	}
}

// TestReportedErrorMatchesResidual verifies the a-posteriori estimate
// against the actual Frobenius residual of U·diag(σ)·Vᵀ.
func TestReportedErrorMatchesResidual(t *testing.T) {
	const m, n, world = 60, 40, 4
	global := randomLowRank(m, n, 30, 5)
	normA := mat.Norm(global, 2)

	var mu sync.Mutex
	var relErr float64
	residSq := make([]float64, world)

	err := comm.RunWorld(world, func(c comm.Communicator) error {
		a := dmatrix.NewColSplit(c, global, dmatrix.Float64)
		res, err := hsvd.HSVDRank(a, 12, hsvd.WithFull())
		if err != nil {
			return err
		}

		// Local residual of this rank's column block: Aᵖ − U·diag(σ)·Vᵖᵀ,
		// where Vᵖ is this rank's row block of V.
		approx := res.U.Local() // m × r
		vLocal := res.V.Local() // n_p × r
		sigma := res.Sigma

		aLocal := a.Local()
		rows, cols := aLocal.Dims()
		var sq float64
		for i := 0; i < rows; i++ {
			for j := 0; j < cols; j++ {
				var rec float64
				for k, s := range sigma {
					rec += approx.At(i, k) * s * vLocal.At(j, k)
				}
				d := aLocal.At(i, j) - rec
				sq += d * d
			}
		}

		mu.Lock()
		residSq[c.Rank()] = sq
		if c.Rank() == 0 {
			relErr = res.RelErr
		}
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	var totalSq float64
	for _, sq := range residSq {
		totalSq += sq
	}
	actual := math.Sqrt(totalSq) / normA

	assert.LessOrEqual(t, actual, relErr*(1+1e-6),
		"the reported estimate must bound the actual residual")
}

// TestToleranceModeHonorsRtol keeps the reported error within rtol when
// no rank cap interferes.
func TestToleranceModeHonorsRtol(t *testing.T) {
	global := randomLowRank(60, 40, 40, 17)

	for _, rtol := range []float64{1e-1, 1e-2, 1e-4} {
		res := runColSplit(t, 4, global, func(a dmatrix.DistMatrix) (hsvd.Result, error) {
			return hsvd.HSVDRtol(a, rtol)
		})
		assert.LessOrEqual(t, res.RelErr, rtol, "rtol=%g", rtol)
	}
}

// TestRankMonotonicity never worsens the error estimate as the rank cap
// grows.
func TestRankMonotonicity(t *testing.T) {
	global := randomLowRank(50, 32, 32, 23)

	prev := math.Inf(1)
	for _, maxrank := range []int{1, 2, 4, 8, 16} {
		res := runColSplit(t, 4, global, func(a dmatrix.DistMatrix) (hsvd.Result, error) {
			return hsvd.HSVDRank(a, maxrank, hsvd.WithSafetyShift(0))
		})
		assert.LessOrEqual(t, res.RelErr, prev+1e-15, "maxrank=%d", maxrank)
		prev = res.RelErr
	}
}

// TestExactRankRoundTrip reproduces a matrix of exact rank r ≤ maxrank
// to within the noise floor.
func TestExactRankRoundTrip(t *testing.T) {
	global := randomLowRank(40, 24, 6, 29)

	res := runColSplit(t, 4, global, func(a dmatrix.DistMatrix) (hsvd.Result, error) {
		return hsvd.HSVDRank(a, 10)
	})

	requireOrthonormal(t, res.U.Local())
	assert.Less(t, res.RelErr, 1e-12)
}

// TestExpertForm drives the driver with a hand-assembled config through
// the ungated entry point.
func TestExpertForm(t *testing.T) {
	global := randomLowRank(30, 16, 4, 31)

	cfg := gates.Config{
		MaxRank:     6,
		MaxMergeDim: 32,
		SafetyShift: 2,
		Silent:      true,
		WarningsOff: true,
	}
	res := runColSplit(t, 4, global, func(a dmatrix.DistMatrix) (hsvd.Result, error) {
		return hsvd.HSVD(a, cfg)
	})

	requireOrthonormal(t, res.U.Local())
	assert.Less(t, res.RelErr, 1e-12)
}

// TestReplicatedResultAgreesAcrossRanks checks every rank receives the
// same broadcast factor and estimate.
func TestReplicatedResultAgreesAcrossRanks(t *testing.T) {
	global := randomLowRank(24, 16, 8, 37)

	var mu sync.Mutex
	results := make(map[int]hsvd.Result)

	err := comm.RunWorld(4, func(c comm.Communicator) error {
		a := dmatrix.NewColSplit(c, global, dmatrix.Float64)
		res, err := hsvd.HSVDRank(a, 8)
		if err != nil {
			return err
		}
		mu.Lock()
		results[c.Rank()] = res
		mu.Unlock()
		return nil
	})
	require.NoError(t, err)

	base := results[0]
	for rank := 1; rank < 4; rank++ {
		res := results[rank]
		assert.Equal(t, base.RelErr, res.RelErr, "rank %d", rank)
		assert.True(t, mat.EqualApprox(base.U.Local(), res.U.Local(), 0), "rank %d factor", rank)
	}
}
