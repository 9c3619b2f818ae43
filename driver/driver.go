// Package driver orchestrates the hierarchical reduction end to end:
// transpose handling for row-split input, the global Frobenius norm,
// the 0-th-level seed SVD, the level loop over scheduler plans and
// transport merges, the final broadcast of the surviving factor, and
// dispatch into reconstruct for the user-facing return shape.
package driver

import (
	"errors"
	"fmt"
	"math"

	"github.com/katalvlaran/hsvd/comm"
	"github.com/katalvlaran/hsvd/dmatrix"
	"github.com/katalvlaran/hsvd/gates"
	"github.com/katalvlaran/hsvd/logsink"
	"github.com/katalvlaran/hsvd/reconstruct"
	"github.com/katalvlaran/hsvd/scheduler"
	"github.com/katalvlaran/hsvd/transport"
	"github.com/katalvlaran/hsvd/truncator"
	"gonum.org/v1/gonum/mat"
)

// ErrNoProgress indicates a level produced no merges at all while more
// than one node remained active. The scheduler's feasibility guard makes
// this unreachable for gate-validated configs; it exists so a bug in a
// hand-assembled expert Config surfaces as an error instead of a hang.
var ErrNoProgress = errors.New("driver: level produced no merges")

// Run reduces a to a low-rank factorization under cfg and returns the
// assembled user-facing output. The caller must have validated cfg
// through a gate, or accepts gate-free expert semantics.
//
// Every rank of a's communicator must call Run with the same cfg; the
// control flow is symmetric SPMD and all ranks participate in every
// width publication and in the final broadcast.
func Run(a dmatrix.DistMatrix, cfg gates.Config, sink logsink.Sink) (reconstruct.Output, error) {
	working := a
	transposed := false
	if a.Split() == dmatrix.SplitRows {
		working = a.T()
		transposed = true
	}

	c := working.Comm()
	p := c.Size()

	// Fail fast, before any communication, when no two post-truncate
	// factors could ever share a parent. Guards the expert entry point;
	// the gates have already enforced this for theirs.
	if p > 1 {
		if err := scheduler.CheckFeasible(cfg.MaxMergeDim, cfg.MaxRank, cfg.SafetyShift); err != nil {
			return reconstruct.Output{}, err
		}
	}

	normA := working.VectorNorm()

	var loctol *float64
	if cfg.Rtol != nil {
		// Worst-case per-node budget under a binary tree.
		lt := normA * (*cfg.Rtol) / math.Sqrt(float64(2*p-1))
		loctol = &lt
	}

	u, errSq, err := reduce(working, cfg, loctol, sink)
	if err != nil {
		return reconstruct.Output{}, err
	}

	relErr := 0.0
	if normA > 0 {
		relErr = math.Sqrt(errSq) / normA
	}

	uDist := dmatrix.NewReplicated(c, u, working.DType())
	return reconstruct.Build(working, uDist, relErr, transposed, cfg.Full), nil
}

// reduce runs the level loop on the (column-split or replicated) working
// matrix and returns the surviving orthonormal factor, replicated to
// every rank, plus the accumulated squared truncation error.
func reduce(working dmatrix.DistMatrix, cfg gates.Config, loctol *float64, sink logsink.Sink) (*mat.Dense, float64, error) {
	c := working.Comm()
	p, rank := c.Size(), c.Rank()
	m, _ := working.Shape()

	// Level 0: seed every rank with a truncated SVD of its own block.
	// With a single process this is already the final level, so the
	// safety shift is dropped and the factor stays orthonormal.
	shift := cfg.SafetyShift
	if p == 1 {
		shift = 0
	}
	res, err := truncator.Truncate(0, rank, working.Local(), cfg.MaxRank, loctol, shift, working.DType())
	if err != nil {
		return nil, 0, err
	}
	reportClamp(res, 0, rank, cfg, sink)
	if p == 1 {
		return res.U, res.ErrSquared, nil
	}

	factor := scaleBySigma(res.U, res.Sigma)
	errSq := res.ErrSquared

	active := make([]int, p)
	for i := range active {
		active[i] = i
	}
	iAmActive := true

	for level := 1; ; level++ {
		localWidth := 0
		if iAmActive {
			_, localWidth = factor.Dims()
		}
		widths := transport.PublishWidths(c, localWidth)

		next, sendTo, recvFrom := scheduler.Plan(active, widths, cfg.MaxMergeDim, cfg.NoOfMerges)
		if len(next) == len(active) && len(active) > 1 {
			return nil, 0, fmt.Errorf("driver: level %d, active set %v: %w", level, active, ErrNoProgress)
		}
		final := len(next) == 1

		if !cfg.Silent && rank == 0 {
			sink.Infof("hsvd level %d: active=%v widths=%v next=%v", level, active, activeWidths(active, widths), next)
		}

		if iAmActive {
			if parent, isChild := sendTo[rank]; isChild {
				if err := transport.SendFactor(c, factor, errSq, parent); err != nil {
					return nil, 0, err
				}
				factor = nil
				iAmActive = false
			} else {
				concat, mergedErrSq, err := transport.ReceiveAndConcat(c, factor, errSq, recvFrom[rank], m, widths)
				if err != nil {
					return nil, 0, err
				}

				shift := cfg.SafetyShift
				if final {
					shift = 0
				}
				res, err := truncator.Truncate(level, rank, concat, cfg.MaxRank, loctol, shift, working.DType())
				if err != nil {
					return nil, 0, err
				}
				reportClamp(res, level, rank, cfg, sink)

				errSq = mergedErrSq + res.ErrSquared
				if final {
					factor = res.U
				} else {
					factor = scaleBySigma(res.U, res.Sigma)
				}
			}
		}

		active = next
		if final {
			break
		}
	}

	// Rank 0 is the survivor by the scheduler's ordering rule; replicate
	// its factor and error to every rank.
	return broadcastFactor(c, factor, errSq, m)
}

// scaleBySigma returns U·diag(σ) so that concatenations carry
// singular-value magnitude forward between levels.
func scaleBySigma(u *mat.Dense, sigma []float64) *mat.Dense {
	rows, cols := u.Dims()
	out := mat.NewDense(rows, cols, nil)
	for j := 0; j < cols; j++ {
		for i := 0; i < rows; i++ {
			out.Set(i, j, u.At(i, j)*sigma[j])
		}
	}
	return out
}

// broadcastFactor ships the survivor's factor shape, payload, and
// accumulated squared error from rank 0 to every rank.
func broadcastFactor(c comm.Communicator, factor *mat.Dense, errSq float64, rows int) (*mat.Dense, float64, error) {
	width := 0
	if c.Rank() == 0 {
		_, width = factor.Dims()
	}
	width = int(c.BcastFloat(float64(width), 0))
	errSq = c.BcastFloat(errSq, 0)

	buf := make([]float64, rows*width)
	if c.Rank() == 0 {
		for i := 0; i < rows; i++ {
			for j := 0; j < width; j++ {
				buf[i*width+j] = factor.At(i, j)
			}
		}
	}
	req := c.IbcastFloat64(buf, 0)
	req.Wait()

	return mat.NewDense(rows, width, buf), errSq, nil
}

// reportClamp routes the non-fatal precision-clamp diagnostic through
// the sink. Either opt-in surfaces it: a caller who asked for per-level
// reports (silent=false) or an expert who left warnings on.
func reportClamp(res truncator.Result, level, rank int, cfg gates.Config, sink logsink.Sink) {
	if res.Clamped && (!cfg.Silent || !cfg.WarningsOff) {
		sink.Warnf("hsvd level %d proc %d: ideal tolerance rank clamped by maxrank=%d, loss of desired precision likely", level, rank, cfg.MaxRank)
	}
}

// activeWidths projects the published widths map onto the active set, in
// active-set order, for the per-level report line.
func activeWidths(active []int, widths map[int]int) []int {
	out := make([]int, len(active))
	for i, r := range active {
		out[i] = widths[r]
	}
	return out
}
