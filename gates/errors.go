// Package gates validates hsvd's public entry-point parameters and
// fills in defaults. Every validation failure is a package-level
// sentinel error, wrapped with %w context at the point it's detected;
// callers branch on it with errors.Is.
package gates

import "errors"

// ErrBadShape indicates A has a non-positive extent along either axis.
var ErrBadShape = errors.New("gates: matrix has non-positive shape")

// ErrUnsupportedDType indicates A's element type is neither Float32 nor
// Float64.
var ErrUnsupportedDType = errors.New("gates: unsupported element type")

// ErrNonPositiveRank indicates maxrank <= 0 at the rank gate.
var ErrNonPositiveRank = errors.New("gates: maxrank must be positive")

// ErrSafetyShiftTooLarge indicates the tolerance gate's derived maxrank
// (floor(localWidth/2) - safetyshift) was not positive.
var ErrSafetyShiftTooLarge = errors.New("gates: safetyshift too large for derived maxrank")

// ErrInconsistentParams indicates an explicit maxmergedim that cannot
// admit two children under the post-truncate width bound, surfaced at
// the gate rather than the scheduler whenever the caller supplied
// maxmergedim (the maxrank it is checked against may be supplied or
// derived).
var ErrInconsistentParams = errors.New("gates: maxmergedim too small for maxrank and safetyshift")

// ErrNoOfMergesTooSmall indicates noOfMerges < 2.
var ErrNoOfMergesTooSmall = errors.New("gates: noOfMerges must be >= 2")
