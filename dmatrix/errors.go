package dmatrix

import "errors"

// Sentinel errors for the dmatrix package. Every message carries a
// "dmatrix: " prefix for easy grepping; callers branch with errors.Is,
// never on message text.
var (
	// ErrNotTwoD indicates the caller supplied something other than a
	// 2-D buffer.
	ErrNotTwoD = errors.New("dmatrix: input is not 2-dimensional")

	// ErrUnsupportedDType indicates a dtype outside {Float32, Float64}.
	ErrUnsupportedDType = errors.New("dmatrix: unsupported element type")

	// ErrBadSplit indicates a split axis outside {SplitRows, SplitCols}.
	ErrBadSplit = errors.New("dmatrix: split must be 0 or 1")

	// ErrShapeMismatch indicates the sum of a per-rank shape map does
	// not equal the matrix's declared global extent along the split
	// axis.
	ErrShapeMismatch = errors.New("dmatrix: lshape map does not sum to global extent")
)
