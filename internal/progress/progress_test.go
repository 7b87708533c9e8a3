package progress

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/latebit/wikihop/internal/logging"
	"github.com/latebit/wikihop/internal/search"
)

func TestMessage(t *testing.T) {
	got := Message(search.Stats{Rounds: 3, Pages: 70, RoundTime: 1500 * time.Millisecond})
	want := "We have checked 70 links, nothing found 3, process ended in 1.500 seconds."
	if got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}

func TestFileSinkRewritesFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), DefaultFile)
	var out bytes.Buffer
	sink := NewFileSink(path, &out, logging.Discard())

	sink.Report(search.Stats{Rounds: 1, Pages: 1})
	sink.Report(search.Stats{Rounds: 2, Pages: 33})

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read progress file: %v", err)
	}
	if got := strings.TrimSpace(string(data)); !strings.HasPrefix(got, "We have checked 33 links, nothing found 2,") {
		t.Errorf("progress file = %q, want only the latest round", got)
	}
	if lines := strings.Count(out.String(), "\n"); lines != 2 {
		t.Errorf("echoed %d lines, want 2", lines)
	}
}

func TestFileSinkWriteFailureIsNotFatal(t *testing.T) {
	var logs bytes.Buffer
	path := filepath.Join(t.TempDir(), "missing", "dir", DefaultFile)
	sink := NewFileSink(path, nil, logging.New("text", "warn", &logs))

	sink.Report(search.Stats{Rounds: 1})
	sink.Report(search.Stats{Rounds: 2})

	if n := strings.Count(logs.String(), "progress file write failed"); n != 1 {
		t.Errorf("logged %d write failures, want 1:\n%s", n, logs.String())
	}
}

func TestFileSinkWithoutFile(t *testing.T) {
	var out bytes.Buffer
	sink := NewFileSink("", &out, logging.Discard())
	sink.Report(search.Stats{Rounds: 1, Pages: 1})

	if !strings.HasPrefix(out.String(), "We have checked 1 links") {
		t.Errorf("echo = %q", out.String())
	}
}

func TestChain(t *testing.T) {
	var calls []int
	fn := Chain(
		func(st search.Stats) { calls = append(calls, st.Rounds) },
		nil,
		func(st search.Stats) { calls = append(calls, st.Rounds*10) },
	)
	fn(search.Stats{Rounds: 2})

	if len(calls) != 2 || calls[0] != 2 || calls[1] != 20 {
		t.Errorf("calls = %v, want [2 20]", calls)
	}
}
