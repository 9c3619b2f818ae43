// Package logsink provides the single logging seam used across the hsvd
// module. No package below the public API calls a global logger directly;
// everything goes through a Sink passed in at construction time, so tests can
// swap in a recording sink and callers can swap in zerolog, slog, or silence.
package logsink

import (
	"fmt"
	"os"

	"github.com/rs/zerolog"
)

// Sink receives leveled, pre-formatted diagnostic lines from the hsvd
// algorithm: per-level active-set/width reports (Infof) and non-fatal
// precision-clamp notices (Warnf). Implementations must not block the
// caller for long; the driver emits per-level reports from rank 0 only and
// clamp notices from whichever rank ran the clamped truncation (see driver
// package).
type Sink interface {
	Infof(format string, args ...any)
	Warnf(format string, args ...any)
}

// Nop discards every message. It is the default when a caller asks for
// silent=true and never wires a Sink explicitly.
type Nop struct{}

// Infof implements Sink.
func (Nop) Infof(string, ...any) {}

// Warnf implements Sink.
func (Nop) Warnf(string, ...any) {}

// Zerolog adapts a github.com/rs/zerolog.Logger to the Sink interface.
type Zerolog struct {
	L zerolog.Logger
}

// NewZerolog returns a Zerolog sink writing to stderr in console form.
func NewZerolog() Zerolog {
	return Zerolog{L: zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()}
}

// Infof implements Sink.
func (z Zerolog) Infof(format string, args ...any) {
	z.L.Info().Msg(fmt.Sprintf(format, args...))
}

// Warnf implements Sink.
func (z Zerolog) Warnf(format string, args ...any) {
	z.L.Warn().Msg(fmt.Sprintf(format, args...))
}
