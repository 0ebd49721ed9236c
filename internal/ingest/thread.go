// Package ingest runs the notify thread of a watched root: it drains the
// kernel notification backend as fast as possible and hands bounded batches
// of raw events to the root's pending collection.
//
// Kernel notification queues drop events silently when they overflow, so the
// loop does no filesystem IO of its own. Everything expensive happens on the
// consumer side of the pending collection.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/openmined/watchd/internal/change"
	"github.com/openmined/watchd/internal/pause"
	"github.com/openmined/watchd/internal/queue"
	"github.com/openmined/watchd/internal/root"
	"github.com/openmined/watchd/internal/watcher"
)

const (
	// DefaultBatchLimit bounds a single handoff to the consumer.
	DefaultBatchLimit = 1024
	// DefaultWaitTimeout is how long one WaitNotify call may block. The wait is
	// also interrupted by context cancellation, so this only bounds how often
	// an idle thread wakes up.
	DefaultWaitTimeout = 24 * time.Hour
)

var (
	ErrStartFailed    = errors.New("watcher start failed")
	ErrAlreadyStarted = errors.New("notify thread already started")
)

// Thread moves events from a watcher into a pending collection. It runs once.
type Thread struct {
	root    *root.Root
	watcher watcher.Watcher
	pending *queue.Pending[change.Event]

	gate        pause.Gate
	batchLimit  int
	waitTimeout time.Duration
	flushOnStop bool
	log         *slog.Logger

	state   atomic.Int32
	started atomic.Bool
	running chan struct{}

	statsMu sync.Mutex
	stats   Stats
}

// New creates a notify thread for r. pending is shared with the consumer.
func New(r *root.Root, w watcher.Watcher, pending *queue.Pending[change.Event], opts ...Option) *Thread {
	t := &Thread{
		root:        r,
		watcher:     w,
		pending:     pending,
		gate:        pause.Open,
		batchLimit:  DefaultBatchLimit,
		waitTimeout: DefaultWaitTimeout,
		log:         slog.Default(),
		running:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(t)
	}
	t.log = t.log.With("component", "notify", "root", r.Path())
	t.state.Store(int32(StateCreated))
	return t
}

// Run blocks until ctx is done or the watcher fails to start. A start failure
// is recorded on the root, which is then cancelled; the returned error wraps
// ErrStartFailed. A stop observed in the middle of a drain drops the events
// collected so far unless the thread flushes on stop.
func (t *Thread) Run(ctx context.Context) error {
	if !t.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}
	defer t.setState(StateTerminated)

	t.setState(StateStarting)
	if err := t.watcher.Start(ctx, t.root); err != nil {
		t.setState(StateFailed)
		reason := err.Error()
		if reason == "" {
			reason = ErrStartFailed.Error()
		}
		t.root.SetFailureReason(reason)
		t.log.Error("failed to start root, cancelling watch", "reason", reason)
		t.root.Cancel()
		return fmt.Errorf("%w: %s: %w", ErrStartFailed, t.root.Path(), err)
	}

	// readiness: anyone waiting on the collection now knows the watcher is up
	t.pending.Ping()
	t.setState(StateRunning)
	close(t.running)
	t.log.Debug("notify thread running", "batch_limit", t.batchLimit)

	batch := change.NewBatch(t.batchLimit)
	for ctx.Err() == nil {
		if !t.watcher.WaitNotify(ctx, t.waitTimeout) {
			continue
		}

		if err := t.gate.Wait(ctx); err != nil {
			break
		}

		if stopped := t.drain(ctx, batch); stopped {
			break
		}
		t.handoff(batch)
	}

	t.setState(StateStopping)
	if batch.Len() > 0 {
		if t.flushOnStop {
			t.handoff(batch)
		} else {
			dropped := batch.Reset()
			t.statsMu.Lock()
			t.stats.DroppedOnStop += uint64(dropped)
			t.statsMu.Unlock()
			t.log.Debug("dropping unflushed batch on stop", "events", dropped)
		}
	}
	t.log.Debug("notify thread stopped")
	return nil
}

// drain fills batch until it is full or the watcher has nothing ready. It
// reports true when ctx ended mid-drain.
func (t *Thread) drain(ctx context.Context, batch *change.Batch) bool {
	for {
		if ctx.Err() != nil {
			return true
		}
		if !t.watcher.ConsumeNotify(t.root, batch) {
			return false
		}
		if batch.Len() >= t.batchLimit {
			return false
		}
		if ctx.Err() != nil {
			return true
		}
		if !t.watcher.WaitNotify(ctx, 0) {
			return false
		}
	}
}

func (t *Thread) handoff(batch *change.Batch) {
	n := batch.Len()
	if n == 0 {
		return
	}
	t.pending.PushBatch(batch.Events())

	t.statsMu.Lock()
	t.stats.Handoffs++
	t.stats.Events += uint64(n)
	t.stats.LargestHandoff = max(t.stats.LargestHandoff, n)
	t.statsMu.Unlock()
}

func (t *Thread) setState(s State) {
	t.state.Store(int32(s))
}

// State returns the current lifecycle state.
func (t *Thread) State() State {
	return State(t.state.Load())
}

// Running is closed once the watcher has started. It stays open when the
// start fails.
func (t *Thread) Running() <-chan struct{} {
	return t.running
}

// Stats returns a snapshot of the handoff counters.
func (t *Thread) Stats() Stats {
	t.statsMu.Lock()
	defer t.statsMu.Unlock()
	return t.stats
}

// BatchLimit is the most events one handoff carries.
func (t *Thread) BatchLimit() int {
	return t.batchLimit
}
