package gates

import (
	"fmt"

	"github.com/katalvlaran/hsvd/dmatrix"
)

func validateShape(a dmatrix.DistMatrix) error {
	m, n := a.Shape()
	if m <= 0 || n <= 0 {
		return fmt.Errorf("gates: shape (%d, %d): %w", m, n, ErrBadShape)
	}
	if s := a.Split(); s != dmatrix.SplitRows && s != dmatrix.SplitCols {
		return fmt.Errorf("gates: split=%d: %w", s, dmatrix.ErrBadSplit)
	}
	if d := a.DType(); d != dmatrix.Float32 && d != dmatrix.Float64 {
		return fmt.Errorf("gates: dtype=%d: %w", d, ErrUnsupportedDType)
	}
	return nil
}

// maxLocalWidth returns the widest local factor any rank starts with:
// the full column count n when A is row-split (every rank already holds
// every column), or the largest per-rank column share when A is
// column-split.
func maxLocalWidth(a dmatrix.DistMatrix) int {
	_, n := a.Shape()
	if a.Split() != dmatrix.SplitCols {
		return n
	}
	w := 0
	for _, local := range a.LShapeMap() {
		w = maxInt(w, local)
	}
	return w
}

// Rank is the rank-truncated gate: requires a positive maxrank; if
// maxmergedim is not supplied, derives it from the widest local column
// share and the post-truncate width bound.
func Rank(a dmatrix.DistMatrix, maxrank int, maxmergedim *int, safetyshift int, full, silent bool) (Config, error) {
	if err := validateShape(a); err != nil {
		return Config{}, err
	}
	if maxrank <= 0 {
		return Config{}, fmt.Errorf("gates: maxrank=%d: %w", maxrank, ErrNonPositiveRank)
	}

	minViable := 2*(maxrank+safetyshift) + 1
	mmd := 0
	if maxmergedim != nil {
		if *maxmergedim < minViable {
			return Config{}, fmt.Errorf("gates: maxmergedim=%d < %d: %w", *maxmergedim, minViable, ErrInconsistentParams)
		}
		mmd = *maxmergedim
	} else {
		mmd = maxInt(maxLocalWidth(a), minViable)
	}

	return Config{
		MaxRank:     maxrank,
		MaxMergeDim: mmd,
		SafetyShift: safetyshift,
		Full:        full,
		Silent:      silent,
		WarningsOff: true, // the gated entry points always run the core with warnings off
	}, nil
}

// Tolerance is the tolerance-truncated gate: accepts any
// combination of maxrank, maxmergedim, noOfMerges, deriving whichever
// are missing, and defaulting to a binary merging tree with no rank cap
// when none are given.
func Tolerance(a dmatrix.DistMatrix, rtol float64, maxrank, maxmergedim *int, safetyshift int, noOfMerges *int, full, silent bool) (Config, error) {
	if err := validateShape(a); err != nil {
		return Config{}, err
	}

	localWidth := maxLocalWidth(a)
	mr, mmd := maxrank, maxmergedim

	if mmd != nil && mr == nil {
		derived := localWidth/2 - safetyshift
		if derived <= 0 {
			return Config{}, fmt.Errorf("gates: local width=%d, safetyshift=%d: %w", localWidth, safetyshift, ErrSafetyShiftTooLarge)
		}
		mr = &derived
	}

	if mmd == nil && mr != nil {
		derived := maxInt(localWidth, 2*(*mr+safetyshift)+1)
		mmd = &derived
	}

	if mmd != nil && mr != nil {
		minViable := 2*(*mr+safetyshift) + 1
		if *mmd < minViable {
			return Config{}, fmt.Errorf("gates: maxmergedim=%d < %d: %w", *mmd, minViable, ErrInconsistentParams)
		}
	}

	if mmd == nil && mr == nil {
		if noOfMerges == nil {
			two := 2
			noOfMerges = &two
		}
		_, n := a.Shape()
		derivedMmd := 2*(n+safetyshift) + 1
		mmd = &derivedMmd
		mr = &n
	}

	if noOfMerges != nil && *noOfMerges < 2 {
		return Config{}, fmt.Errorf("gates: noOfMerges=%d: %w", *noOfMerges, ErrNoOfMergesTooSmall)
	}

	return Config{
		MaxRank:     *mr,
		MaxMergeDim: *mmd,
		Rtol:        &rtol,
		SafetyShift: safetyshift,
		NoOfMerges:  noOfMerges,
		Full:        full,
		Silent:      silent,
		WarningsOff: true, // the gated entry points always run the core with warnings off
	}, nil
}
