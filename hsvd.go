package hsvd

import (
	"github.com/katalvlaran/hsvd/dmatrix"
	"github.com/katalvlaran/hsvd/driver"
	"github.com/katalvlaran/hsvd/gates"
	"github.com/katalvlaran/hsvd/logsink"
	"github.com/katalvlaran/hsvd/reconstruct"
)

// Result bundles what an entry point returns. Sigma and V are populated
// only when the full decomposition was requested; RelErr is the
// a-posteriori estimate sqrt(Σe²)/‖A‖_F. When the input was row-split
// the U/V roles are already swapped back into the caller's coordinates.
type Result struct {
	U      dmatrix.DistMatrix
	Sigma  []float64
	V      dmatrix.DistMatrix
	RelErr float64
}

// Option mutates the optional-parameter set of HSVDRank and HSVDRtol.
type Option func(*options)

type options struct {
	full        bool
	maxrank     *int
	maxmergedim *int
	safetyshift int
	noOfMerges  *int
	silent      bool
	sink        logsink.Sink
}

func defaultOptions() options {
	return options{safetyshift: 5, silent: true, sink: logsink.Nop{}}
}

// WithFull requests σ and V in addition to U.
func WithFull() Option { return func(o *options) { o.full = true } }

// WithMaxRank caps the retained rank of the tolerance-truncated mode.
func WithMaxRank(r int) Option { return func(o *options) { o.maxrank = &r } }

// WithMaxMergeDim caps the total column width a parent may accumulate
// before re-truncating.
func WithMaxMergeDim(d int) Option { return func(o *options) { o.maxmergedim = &d } }

// WithSafetyShift sets the number of extra columns retained beyond the
// base rank at each interior truncation. Default 5.
func WithSafetyShift(s int) Option { return func(o *options) { o.safetyshift = s } }

// WithNoOfMerges caps the number of children (parent included) merged
// into one node per level; must be at least 2. Only HSVDRtol passes it
// on; HSVDRank ignores it.
func WithNoOfMerges(n int) Option { return func(o *options) { o.noOfMerges = &n } }

// WithSilent controls the per-level active-set/width report emitted on
// rank 0. Entry points default to silent.
func WithSilent(silent bool) Option { return func(o *options) { o.silent = silent } }

// WithSink routes diagnostics to a caller-supplied sink instead of the
// default (logsink.Nop when silent, a console zerolog sink otherwise).
func WithSink(s logsink.Sink) Option { return func(o *options) { o.sink = s } }

// HSVDRank computes a rank-truncated hierarchical SVD retaining at most
// maxrank singular triplets.
func HSVDRank(a dmatrix.DistMatrix, maxrank int, opts ...Option) (Result, error) {
	o := apply(opts)
	cfg, err := gates.Rank(a, maxrank, o.maxmergedim, o.safetyshift, o.full, o.silent)
	if err != nil {
		return Result{}, err
	}
	return run(a, cfg, o)
}

// HSVDRtol computes a tolerance-truncated hierarchical SVD whose reported
// relative Frobenius error does not exceed rtol (absent a rank cap).
func HSVDRtol(a dmatrix.DistMatrix, rtol float64, opts ...Option) (Result, error) {
	o := apply(opts)
	cfg, err := gates.Tolerance(a, rtol, o.maxrank, o.maxmergedim, o.safetyshift, o.noOfMerges, o.full, o.silent)
	if err != nil {
		return Result{}, err
	}
	return run(a, cfg, o)
}

// HSVD is the expert form: cfg is consumed as-is, with no defaults
// filled in and no gate applied beyond what the caller already ran.
// Clamp notices obey cfg.WarningsOff as well as cfg.Silent; the two gated
// entry points always set WarningsOff, so there the notices follow the
// silent setting alone.
func HSVD(a dmatrix.DistMatrix, cfg gates.Config, opts ...Option) (Result, error) {
	o := apply(opts)
	return run(a, cfg, o)
}

func apply(opts []Option) options {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func run(a dmatrix.DistMatrix, cfg gates.Config, o options) (Result, error) {
	sink := o.sink
	if _, isNop := sink.(logsink.Nop); isNop && !cfg.Silent {
		sink = logsink.NewZerolog()
	}

	out, err := driver.Run(a, cfg, sink)
	if err != nil {
		return Result{}, err
	}
	return fromOutput(out), nil
}

func fromOutput(out reconstruct.Output) Result {
	return Result{U: out.U, Sigma: out.Sigma, V: out.V, RelErr: out.RelErr}
}
