package dmatrix

import (
	"github.com/katalvlaran/hsvd/comm"
	"gonum.org/v1/gonum/mat"
)

// BlockShares splits an extent of n into p contiguous shares, the first
// n%p of them one element wider — the standard balanced block
// distribution. Shares may be zero when p > n.
func BlockShares(n, p int) []int {
	shares := make([]int, p)
	base, extra := n/p, n%p
	for i := range shares {
		shares[i] = base
		if i < extra {
			shares[i]++
		}
	}
	return shares
}

// NewColSplit wraps the calling rank's contiguous column block of a
// globally-known dense matrix as a column-split DistMatrix. Every rank
// passes the same global buffer; each keeps only its own block. Intended
// for single-host runs over the in-process simulator (cmd/hsvdctl) and
// for test fixtures — a production caller whose data is already
// distributed wraps its local block with NewLocal instead.
//
// Requires n >= Size(): every rank must get at least one column (a
// gonum Dense cannot carry a zero extent).
func NewColSplit(c comm.Communicator, global *mat.Dense, dtype DType) DistMatrix {
	m, n := global.Dims()
	p, rank := c.Size(), c.Rank()
	if n < p {
		panic("dmatrix: NewColSplit needs at least one column per rank")
	}
	shares := BlockShares(n, p)

	offset := 0
	for r := 0; r < rank; r++ {
		offset += shares[r]
	}

	local := mat.NewDense(m, shares[rank], nil)
	local.Copy(global.Slice(0, m, offset, offset+shares[rank]))

	lshape := make(map[int]int, p)
	for r, s := range shares {
		lshape[r] = s
	}
	return NewLocal(c, m, n, SplitCols, local, dtype, lshape)
}

// NewRowSplit is the row-axis counterpart of NewColSplit; requires
// m >= Size().
func NewRowSplit(c comm.Communicator, global *mat.Dense, dtype DType) DistMatrix {
	m, n := global.Dims()
	p, rank := c.Size(), c.Rank()
	if m < p {
		panic("dmatrix: NewRowSplit needs at least one row per rank")
	}
	shares := BlockShares(m, p)

	offset := 0
	for r := 0; r < rank; r++ {
		offset += shares[r]
	}

	local := mat.NewDense(shares[rank], n, nil)
	local.Copy(global.Slice(offset, offset+shares[rank], 0, n))

	lshape := make(map[int]int, p)
	for r, s := range shares {
		lshape[r] = s
	}
	return NewLocal(c, m, n, SplitRows, local, dtype, lshape)
}
