// Package dmatrix is the distributed dense-array container hsvd
// consumes: shape/partition metadata, each rank's local buffer, a cheap
// transpose view, and the handful of distributed operations
// (VectorNorm, MatMul, Diag) the hierarchical reduction needs.
package dmatrix

import (
	"math"

	"github.com/katalvlaran/hsvd/comm"
	"github.com/katalvlaran/hsvd/linalg"
	"gonum.org/v1/gonum/mat"
)

// DType is the element type of a DistMatrix.
type DType int

const (
	// Float64 is the default, full-precision element type.
	Float64 DType = iota
	// Float32 selects the looser noise floor (1e-7) used by LocalTruncator.
	Float32
)

// NoiseFloor returns the per-dtype threshold below which a singular
// value is treated as numerical zero.
func (d DType) NoiseFloor() float64 {
	if d == Float32 {
		return 1e-7
	}
	return 1e-14
}

// Split axis values. SplitReplicated marks a matrix with an identical
// copy of the full buffer on every rank.
const (
	SplitRows       = 0
	SplitCols       = 1
	SplitReplicated = -1
)

// DistMatrix is the container surface the algorithm consumes: shape,
// split axis, per-rank local shape map, the local dense buffer, the
// owning communicator, element type, a cheap transpose view, and the
// distributed operations (VectorNorm, MatMul, Diag) it needs.
type DistMatrix interface {
	// Shape returns the global (m, n) dimensions.
	Shape() (m, n int)
	// Split returns SplitRows, SplitCols, or SplitReplicated.
	Split() int
	// LShapeMap returns, for every rank, its local extent along the
	// split axis (ignored/identical-n for SplitReplicated).
	LShapeMap() map[int]int
	// Local returns this rank's local buffer. Callers treat it as
	// read-only; operations that change local values return a new
	// DistMatrix instead (see WithLocal).
	Local() *mat.Dense
	// Comm returns the communicator this matrix is partitioned over.
	Comm() comm.Communicator
	// DType returns the element type.
	DType() DType
	// T returns a transposed view: shape and split axis flipped, local
	// buffer materialized as the local transpose.
	T() DistMatrix
	// VectorNorm returns the global Frobenius norm ‖A‖_F.
	VectorNorm() float64
	// MatMul returns this * other, where other must be SplitReplicated
	// (the only combination the hierarchical reduction ever forms: a
	// split factor times a fully-broadcast U).
	MatMul(other DistMatrix) DistMatrix
	// Diag builds a local diagonal matrix from v; it does not depend on
	// this matrix's own data or partitioning, only on its element type.
	Diag(v []float64) *mat.Dense
}

type distMatrix struct {
	m, n   int
	split  int
	local  *mat.Dense
	c      comm.Communicator
	dtype  DType
	lshape map[int]int
}

// NewLocal wraps a local buffer already distributed over comm under the
// given global shape, split axis, and per-rank shape map. The caller
// (typically the frontend gate or a test fixture) is responsible for
// ensuring lshape sums to the relevant global dimension.
func NewLocal(c comm.Communicator, m, n, split int, local *mat.Dense, dtype DType, lshape map[int]int) DistMatrix {
	return &distMatrix{m: m, n: n, split: split, local: local, c: c, dtype: dtype, lshape: lshape}
}

// NewReplicated wraps local as an identical copy held by every rank.
func NewReplicated(c comm.Communicator, local *mat.Dense, dtype DType) DistMatrix {
	r, cc := local.Dims()
	lshape := make(map[int]int, c.Size())
	for p := 0; p < c.Size(); p++ {
		lshape[p] = cc
	}
	return &distMatrix{m: r, n: cc, split: SplitReplicated, local: local, c: c, dtype: dtype, lshape: lshape}
}

// WithLocal returns a copy of d with its local buffer replaced by
// newLocal, keeping shape, split axis, communicator, dtype, and shape
// map unchanged. Used where a distributed operation's output keeps the
// same partitioning as its input but a different local value (e.g.
// reconstruct's column-scaled V).
func WithLocal(d DistMatrix, newLocal *mat.Dense) DistMatrix {
	src := d.(*distMatrix)
	lshape := make(map[int]int, len(src.lshape))
	for k, v := range src.lshape {
		lshape[k] = v
	}
	return &distMatrix{m: src.m, n: src.n, split: src.split, local: newLocal, c: src.c, dtype: src.dtype, lshape: lshape}
}

func (d *distMatrix) Shape() (int, int)       { return d.m, d.n }
func (d *distMatrix) Split() int              { return d.split }
func (d *distMatrix) LShapeMap() map[int]int  { return d.lshape }
func (d *distMatrix) Local() *mat.Dense       { return d.local }
func (d *distMatrix) Comm() comm.Communicator { return d.c }
func (d *distMatrix) DType() DType            { return d.dtype }

func (d *distMatrix) Diag(v []float64) *mat.Dense { return linalg.Diag(v) }

// T returns a transposed view. The flip costs no communication and no
// reshaping of the partition, but the local buffer itself is
// materialized eagerly: gonum's mat.Dense needs a concrete backing
// array before it can be fed back into SVD or Mul, so a lazy mat.Matrix
// view would just be copied on first use anyway.
func (d *distMatrix) T() DistMatrix {
	r, c := d.local.Dims()
	t := mat.NewDense(c, r, nil)
	t.Copy(d.local.T())

	newSplit := d.split
	switch d.split {
	case SplitRows:
		newSplit = SplitCols
	case SplitCols:
		newSplit = SplitRows
	}

	lshape := make(map[int]int, len(d.lshape))
	for k, v := range d.lshape {
		lshape[k] = v
	}
	return &distMatrix{m: d.n, n: d.m, split: newSplit, local: t, c: d.c, dtype: d.dtype, lshape: lshape}
}

// VectorNorm returns the global Frobenius norm. A SplitReplicated matrix
// already holds the whole array on every rank, so no reduction is taken —
// summing identical local norms across ranks would overcount. The
// communicator has no all-reduce, so a partitioned matrix reduces in two
// steps: every non-root rank ships its local squared norm to rank 0 with
// a point-to-point send, rank 0 sums, and the total is broadcast back
// out with BcastFloat.
func (d *distMatrix) VectorNorm() float64 {
	localSq := localFrobeniusSq(d.local)
	if d.split == SplitReplicated {
		return math.Sqrt(localSq)
	}

	c := d.Comm()
	p, rank := c.Size(), c.Rank()
	const normTagBase = 3 // offset multiple of p, kept clear of transport's [0,p) and [2p,3p) tag ranges

	total := localSq
	if rank != 0 {
		if err := c.Send([]float64{localSq}, 0, normTagBase*p+rank); err != nil {
			// VectorNorm has no error return; a transport failure here
			// means the job is going down anyway (aborted world), so it
			// surfaces the same way a failed collective does.
			panic(err)
		}
	} else {
		for src := 1; src < p; src++ {
			buf := make([]float64, 1)
			if err := c.Recv(buf, src, normTagBase*p+src); err != nil {
				panic(err)
			}
			total += buf[0]
		}
	}
	total = c.BcastFloat(total, 0)
	return math.Sqrt(total)
}

func localFrobeniusSq(m *mat.Dense) float64 {
	n := linalg.FrobeniusNorm(m)
	return n * n
}

// MatMul returns this*other. The only call pattern the hierarchical
// reduction issues is Aᵀ (split) times the final, fully-replicated U, so
// the local product needs no communication: every rank already holds
// everything it needs to compute its own block of the result.
func (d *distMatrix) MatMul(other DistMatrix) DistMatrix {
	prod := linalg.MatMul(d.local, other.Local())
	_, cols := prod.Dims()

	globalRows := 0
	lshape := make(map[int]int, len(d.lshape))
	for k, v := range d.lshape {
		lshape[k] = v
		globalRows += v
	}
	return &distMatrix{m: globalRows, n: cols, split: d.split, local: prod, c: d.c, dtype: d.dtype, lshape: lshape}
}
