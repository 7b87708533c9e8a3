// Package progress reports search progress after every round.
package progress

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"sync"

	"github.com/latebit/wikihop/internal/search"
)

// DefaultFile is the progress file written in the working directory.
const DefaultFile = "output.txt"

// Message formats the per-round progress line. The duration is that of the
// last round.
func Message(st search.Stats) string {
	return fmt.Sprintf("We have checked %d links, nothing found %d, process ended in %.3f seconds.",
		st.Pages, st.Rounds, st.RoundTime.Seconds())
}

// FileSink rewrites a progress file after each round and mirrors the line to
// an optional writer and the logger. Failures are logged and never reach the
// search.
type FileSink struct {
	path   string
	out    io.Writer
	logger *slog.Logger

	mu     sync.Mutex
	failed bool
}

// NewFileSink creates a sink writing to path. An empty path disables the file,
// a nil out disables echoing, and a nil logger means slog.Default().
func NewFileSink(path string, out io.Writer, logger *slog.Logger) *FileSink {
	if logger == nil {
		logger = slog.Default()
	}
	return &FileSink{path: path, out: out, logger: logger}
}

// Report records one round. It has the signature of search.Options.OnRound.
func (s *FileSink) Report(st search.Stats) {
	msg := Message(st)

	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info("progress",
		"rounds", st.Rounds, "pages", st.Pages, "frontier", st.Frontier,
		"round_time", st.RoundTime, "elapsed", st.Elapsed)

	if s.out != nil {
		fmt.Fprintln(s.out, msg)
	}
	if s.path == "" {
		return
	}
	if err := os.WriteFile(s.path, []byte(msg+"\n"), 0o644); err != nil {
		// Warn once; the file is usually unwritable for the whole run.
		if !s.failed {
			s.logger.Warn("progress file write failed", "path", s.path, "error", err)
			s.failed = true
		}
		return
	}
	s.failed = false
}

// Chain returns a round callback that calls every non-nil fn in order.
func Chain(fns ...func(search.Stats)) func(search.Stats) {
	return func(st search.Stats) {
		for _, fn := range fns {
			if fn != nil {
				fn(st)
			}
		}
	}
}
