// Package comm specifies the communicator surface the hsvd algorithm
// consumes (rank/size, point-to-point send/receive, scalar and array
// broadcasts) and ships one concrete implementation: LocalWorld, an
// in-process SPMD simulator built on goroutines and channels.
//
// Communicator is defined as an interface precisely so a real MPI binding
// could stand in for LocalWorld without any change to driver, transport,
// scheduler, or truncator.
package comm

import "errors"

// ErrSend indicates a point-to-point send could not be completed — the
// destination rank is outside the world, or the world was aborted while
// the transfer was still blocked. Transport failures are fatal and are
// never retried: callers propagate it, wrapped with %w context.
var ErrSend = errors.New("comm: send failed")

// ErrRecv indicates a point-to-point receive could not be completed:
// the source rank is outside the world, the payload length disagrees
// with the caller's buffer, or the world was aborted mid-wait.
var ErrRecv = errors.New("comm: recv failed")

// ErrAborted indicates the world was torn down while a call was still
// blocked — one rank failed, and the whole SPMD job goes down with it.
// Point-to-point calls return it wrapped in ErrSend/ErrRecv; blocked
// collective calls, which have no error return, panic with it (RunWorld
// recovers that panic into the rank's error).
var ErrAborted = errors.New("comm: world aborted")

// Request represents an outstanding non-blocking broadcast. Wait blocks
// until the broadcast has been delivered into the buffer passed to
// IbcastFloat64; on an aborted world it panics with ErrAborted.
type Request interface {
	Wait()
}

// Communicator is the minimal MPI-style surface the hsvd algorithm needs:
// rank/size discovery, blocking point-to-point transfer, a blocking scalar
// broadcast, and a non-blocking in-place array broadcast.
//
// Tag discipline is the caller's responsibility (see transport package);
// Communicator implementations only need to pair a Send with the Recv
// that names the same (dest, src, tag) triple.
type Communicator interface {
	// Size returns the fixed number of cooperating processes.
	Size() int
	// Rank returns this process's rank in [0, Size()).
	Rank() int
	// Send blocks until buf has been handed off to dest under tag.
	Send(buf []float64, dest, tag int) error
	// Recv blocks until a buffer sent to (this rank, tag) by src arrives,
	// then copies it into buf. len(buf) must match the sender's length.
	Recv(buf []float64, src, tag int) error
	// BcastFloat blocks until every process has agreed on root's value.
	// Non-root callers' v argument is ignored.
	BcastFloat(v float64, root int) float64
	// IbcastFloat64 starts an in-place array broadcast of buf from root
	// and returns immediately; Wait() on the result blocks until the
	// broadcast value has been copied into buf on every rank.
	IbcastFloat64(buf []float64, root int) Request
}
