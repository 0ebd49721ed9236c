package ingest

import (
	"log/slog"
	"time"

	"github.com/openmined/watchd/internal/pause"
)

// Option configures a Thread.
type Option func(*Thread)

// WithBatchLimit caps how many events one handoff may carry. Values below 1
// are ignored.
func WithBatchLimit(n int) Option {
	return func(t *Thread) {
		if n > 0 {
			t.batchLimit = n
		}
	}
}

// WithWaitTimeout sets the longest single WaitNotify block.
func WithWaitTimeout(d time.Duration) Option {
	return func(t *Thread) {
		if d > 0 {
			t.waitTimeout = d
		}
	}
}

// WithGate installs the checkpoint consulted before each drain.
func WithGate(g pause.Gate) Option {
	return func(t *Thread) {
		if g != nil {
			t.gate = g
		}
	}
}

// WithFlushOnStop hands off a partially drained batch when the thread stops
// instead of dropping it.
func WithFlushOnStop(flush bool) Option {
	return func(t *Thread) {
		t.flushOnStop = flush
	}
}

// WithLogger sets the parent logger. A nil logger keeps slog.Default.
func WithLogger(l *slog.Logger) Option {
	return func(t *Thread) {
		if l != nil {
			t.log = l
		}
	}
}
