package comm

import (
	"errors"
	"fmt"
	"sync"
)

// LocalWorld hosts Size() logical ranks as peers inside a single Go process,
// each one a goroutine the caller spawns and hands a Rank(p) Communicator
// view. Point-to-point transfers use one buffered channel per (dest, src,
// tag) triple; collectives rendezvous on a per-rank call sequence number,
// which lines up across ranks because every rank in this algorithm issues
// the same sequence of collective calls (symmetric SPMD control flow).
//
// A failure on one rank must take the whole job down, the way MPI_Abort
// does: Abort closes a world-wide signal that every blocked Send, Recv,
// and collective call observes, so no rank is left parked waiting for an
// arrival that will never come. RunWorld wires this up automatically.
type LocalWorld struct {
	size int

	mu  sync.Mutex
	p2p map[p2pKey]chan []float64

	collMu sync.Mutex
	coll   map[int]*collectiveState

	abortOnce sync.Once
	abort     chan struct{}
}

type p2pKey struct {
	dest, src, tag int
}

// NewLocalWorld returns a world for size logical ranks. size must be >= 1.
func NewLocalWorld(size int) *LocalWorld {
	if size < 1 {
		panic("comm: NewLocalWorld requires size >= 1")
	}
	return &LocalWorld{
		size:  size,
		p2p:   make(map[p2pKey]chan []float64),
		coll:  make(map[int]*collectiveState),
		abort: make(chan struct{}),
	}
}

// Size returns the number of logical ranks in the world.
func (w *LocalWorld) Size() int { return w.size }

// Rank returns a Communicator view scoped to logical rank r.
func (w *LocalWorld) Rank(r int) Communicator {
	if r < 0 || r >= w.size {
		panic(fmt.Sprintf("comm: rank %d out of range [0,%d)", r, w.size))
	}
	return &rankComm{w: w, rank: r}
}

// Abort tears the world down: every rank blocked in Send or Recv gets an
// ErrSend/ErrRecv-wrapped error, and every rank blocked in a collective
// call panics with ErrAborted (collectives have no error return to
// deliver it through). RunWorld recovers that panic and records it as
// the rank's error. Abort is idempotent and safe to call from any rank.
func (w *LocalWorld) Abort() {
	w.abortOnce.Do(func() { close(w.abort) })
}

func (w *LocalWorld) channel(key p2pKey) chan []float64 {
	w.mu.Lock()
	defer w.mu.Unlock()
	ch, ok := w.p2p[key]
	if !ok {
		ch = make(chan []float64, 1)
		w.p2p[key] = ch
	}
	return ch
}

// collectiveState rendezvous-es every rank's call to the Nth collective
// operation this world has issued. The root's value wins; everyone else
// blocks on done until the last arrival closes it, or until the world is
// aborted.
type collectiveState struct {
	mu      sync.Mutex
	arrived int
	want    int
	value   []float64
	done    chan struct{}
}

func newCollectiveState(want int) *collectiveState {
	return &collectiveState{want: want, done: make(chan struct{})}
}

func (c *collectiveState) rendezvous(isRoot bool, value []float64, abort <-chan struct{}) ([]float64, error) {
	c.mu.Lock()
	if isRoot {
		c.value = append([]float64(nil), value...)
	}
	c.arrived++
	last := c.arrived == c.want
	c.mu.Unlock()

	if last {
		close(c.done)
	} else {
		select {
		case <-c.done:
		case <-abort:
			return nil, ErrAborted
		}
	}
	return c.value, nil
}

func (w *LocalWorld) collective(seq int) *collectiveState {
	w.collMu.Lock()
	defer w.collMu.Unlock()
	st, ok := w.coll[seq]
	if !ok {
		st = newCollectiveState(w.size)
		w.coll[seq] = st
	}
	return st
}

// rankComm is the Communicator view of a single logical rank within a
// LocalWorld. Its collective-call counter is mutated only by the goroutine
// that owns this rank, so it needs no lock of its own.
type rankComm struct {
	w       *LocalWorld
	rank    int
	collSeq int
}

func (r *rankComm) Size() int { return r.w.size }
func (r *rankComm) Rank() int { return r.rank }

func (r *rankComm) Send(buf []float64, dest, tag int) error {
	if dest < 0 || dest >= r.w.size {
		return fmt.Errorf("comm: send to rank %d tag %d: destination out of range [0,%d): %w",
			dest, tag, r.w.size, ErrSend)
	}
	ch := r.w.channel(p2pKey{dest: dest, src: r.rank, tag: tag})
	cp := append([]float64(nil), buf...)
	select {
	case ch <- cp:
		return nil
	case <-r.w.abort:
		return fmt.Errorf("comm: send to rank %d tag %d: %w: %w", dest, tag, ErrAborted, ErrSend)
	}
}

func (r *rankComm) Recv(buf []float64, src, tag int) error {
	if src < 0 || src >= r.w.size {
		return fmt.Errorf("comm: recv from rank %d tag %d: source out of range [0,%d): %w",
			src, tag, r.w.size, ErrRecv)
	}
	ch := r.w.channel(p2pKey{dest: r.rank, src: src, tag: tag})
	var data []float64
	select {
	case data = <-ch:
	case <-r.w.abort:
		return fmt.Errorf("comm: recv from rank %d tag %d: %w: %w", src, tag, ErrAborted, ErrRecv)
	}
	if len(data) != len(buf) {
		return fmt.Errorf("comm: recv from rank %d tag %d: got %d floats, want %d: %w",
			src, tag, len(data), len(buf), ErrRecv)
	}
	copy(buf, data)
	return nil
}

func (r *rankComm) BcastFloat(v float64, root int) float64 {
	st := r.w.collective(r.nextSeq())
	out, err := st.rendezvous(r.rank == root, []float64{v}, r.w.abort)
	if err != nil {
		panic(err)
	}
	return out[0]
}

func (r *rankComm) IbcastFloat64(buf []float64, root int) Request {
	st := r.w.collective(r.nextSeq())
	isRoot := r.rank == root
	snapshot := append([]float64(nil), buf...)
	req := &localRequest{done: make(chan struct{})}
	go func() {
		defer close(req.done)
		out, err := st.rendezvous(isRoot, snapshot, r.w.abort)
		if err != nil {
			req.err = err
			return
		}
		copy(buf, out)
	}()
	return req
}

func (r *rankComm) nextSeq() int {
	s := r.collSeq
	r.collSeq++
	return s
}

// localRequest's err is written before done closes and read only after
// Wait observes the close, so it needs no lock.
type localRequest struct {
	done chan struct{}
	err  error
}

func (r *localRequest) Wait() {
	<-r.done
	if r.err != nil {
		panic(r.err)
	}
}

// RunWorld hosts size logical ranks as goroutines, handing each one its
// own Communicator view, and blocks until every rank's body returns.
// The per-rank errors are joined into one; a non-nil result means the
// SPMD job as a whole failed — a failure on one rank is a process-wide
// abort, there is no partial recovery.
//
// When a body returns an error, RunWorld aborts the world so every other
// rank parked in a Send, Recv, or collective call is unblocked: blocked
// point-to-point calls return transport errors, and blocked collectives
// panic with ErrAborted, which RunWorld recovers and records as that
// rank's error.
func RunWorld(size int, body func(c Communicator) error) error {
	w := NewLocalWorld(size)
	errs := make([]error, size)

	var wg sync.WaitGroup
	for r := 0; r < size; r++ {
		wg.Add(1)
		go func(r int) {
			defer wg.Done()
			defer func() {
				rec := recover()
				if rec == nil {
					return
				}
				if err, ok := rec.(error); ok && errors.Is(err, ErrAborted) {
					errs[r] = err
					return
				}
				panic(rec)
			}()
			if err := body(w.Rank(r)); err != nil {
				errs[r] = err
				w.Abort()
			}
		}(r)
	}
	wg.Wait()

	return errors.Join(errs...)
}
