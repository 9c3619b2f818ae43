// Package hsvd computes a distributed hierarchical truncated singular
// value decomposition (hSVD) of a dense matrix partitioned column-wise
// across a group of cooperating processes.
//
// Given a tall A split along its second axis so that each of P ranks
// holds a contiguous column block, hsvd produces A ≈ U·diag(σ)·Vᵀ with
// orthonormal U by a tree-structured reduction: every rank seeds itself
// with a truncated SVD of its own block, then a level loop repeatedly
// groups neighbouring factors under parent ranks, concatenates them, and
// re-truncates, until a single node survives. Two user-facing modes:
//
//   - HSVDRank — retain at most a target rank r
//   - HSVDRtol — retain enough to keep the relative Frobenius error
//     below rtol
//
// plus HSVD, the expert form taking the fully-assembled parameter union
// with no defaults filled in. All three return U and an a-posteriori
// relative error estimate; with WithFull (Config.Full for HSVD) they
// also return σ and V.
//
// The algorithm is SPMD: every rank of the matrix's communicator calls
// the same entry point with the same arguments. Every rank receives the
// same error estimate and the same replicated copy of the factor the
// reduction computed; the factor recovered from it (V, or U for
// row-split input) comes back partitioned across the ranks. Row-split
// input is handled by an internal transpose, with U/V roles swapped back
// on return.
//
// Subpackages, leaves first:
//
//	linalg/       local dense backend over gonum (thin SVD, matmul, norms)
//	comm/         the Communicator interface + an in-process SPMD simulator
//	dmatrix/      the distributed dense-array container
//	truncator/    one local truncated SVD with rank/tolerance/noise caps
//	scheduler/    per-level parent assignment under the merge-width cap
//	transport/    child→parent factor shipment and concatenation
//	driver/       the level loop, finalization broadcast
//	reconstruct/  σ and V recovery from the final U
//	gates/        parameter validation and defaulting
//	logsink/      the diagnostics seam (zerolog-backed by default)
//
// cmd/hsvdctl drives the library over the in-process simulator from the
// command line, for experimentation on a single host.
package hsvd
