// Package transport moves local factors and accumulated squared errors
// between children and parents during one level of the reduction. Tag
// discipline (tag c for a factor, tag 2P+c for its error scalar) is
// owned entirely here so scheduler and driver never have to reason
// about wire framing.
package transport

import (
	"fmt"

	"github.com/katalvlaran/hsvd/comm"
	"gonum.org/v1/gonum/mat"
)

// errorTag returns the tag used for child c's accumulated-error scalar,
// offset by 2*worldSize so it can never collide with a factor tag (which
// ranges over [0, worldSize)).
func errorTag(worldSize, child int) int {
	return 2*worldSize + child
}

// SendFactor ships this rank's local factor u and accumulated squared
// error errSq to dest, under this rank's global-rank tag (for the
// factor) and the corresponding error tag. u is flattened row-major —
// the layout gonum's mat.NewDense already expects on the receiving end.
func SendFactor(c comm.Communicator, u *mat.Dense, errSq float64, dest int) error {
	rows, cols := u.Dims()
	buf := make([]float64, rows*cols)
	for i := 0; i < rows; i++ {
		for j := 0; j < cols; j++ {
			buf[i*cols+j] = u.At(i, j)
		}
	}

	rank := c.Rank()
	if err := c.Send(buf, dest, rank); err != nil {
		return fmt.Errorf("transport: send factor from %d to %d: %w", rank, dest, err)
	}
	if err := c.Send([]float64{errSq}, dest, errorTag(c.Size(), rank)); err != nil {
		return fmt.Errorf("transport: send error scalar from %d to %d: %w", rank, dest, err)
	}
	return nil
}

// RecvFactor receives the (rows, width) factor and error scalar sent by
// src. The caller must already know width from the published widths map
// so it can preallocate the receive buffer with the exact shape.
func RecvFactor(c comm.Communicator, src, rows, width int) (*mat.Dense, float64, error) {
	buf := make([]float64, rows*width)
	if err := c.Recv(buf, src, src); err != nil {
		return nil, 0, fmt.Errorf("transport: recv factor from %d: %w", src, err)
	}
	errBuf := make([]float64, 1)
	if err := c.Recv(errBuf, src, errorTag(c.Size(), src)); err != nil {
		return nil, 0, fmt.Errorf("transport: recv error scalar from %d: %w", src, err)
	}
	return mat.NewDense(rows, width, buf), errBuf[0], nil
}

// ReceiveAndConcat blocks until every rank in children (already ordered
// ascending, as scheduler.Plan builds recvFrom) has shipped its factor
// and error scalar, then concatenates the parent's own block and all
// received blocks column-wise, own block first, children in ascending
// rank order, and sums every accumulated error into one scalar.
func ReceiveAndConcat(c comm.Communicator, own *mat.Dense, ownErrSq float64, children []int, rows int, widths map[int]int) (*mat.Dense, float64, error) {
	blocks := []*mat.Dense{own}
	totalErrSq := ownErrSq
	totalCols := cols(own)

	for _, child := range children {
		u, errSq, err := RecvFactor(c, child, rows, widths[child])
		if err != nil {
			return nil, 0, err
		}
		blocks = append(blocks, u)
		totalErrSq += errSq
		totalCols += cols(u)
	}

	concat := mat.NewDense(rows, totalCols, nil)
	colOffset := 0
	for _, b := range blocks {
		bc := cols(b)
		view := concat.Slice(0, rows, colOffset, colOffset+bc).(*mat.Dense)
		view.Copy(b)
		colOffset += bc
	}

	return concat, totalErrSq, nil
}

func cols(m *mat.Dense) int {
	_, c := m.Dims()
	return c
}

// PublishWidths broadcasts every rank's current local factor width to
// every other rank, one BcastFloat per rank in ascending order, so
// parents can preallocate exact receive shapes. The caller passes its
// own current width;
// ranks outside activeSet should pass 0 — their value is never used as
// a root value by anyone downstream of this call.
func PublishWidths(c comm.Communicator, localWidth int) map[int]int {
	widths := make(map[int]int, c.Size())
	for root := 0; root < c.Size(); root++ {
		v := 0.0
		if c.Rank() == root {
			v = float64(localWidth)
		}
		widths[root] = int(c.BcastFloat(v, root))
	}
	return widths
}
