package watchmgr

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/openmined/watchd/internal/change"
	"github.com/openmined/watchd/internal/cookie"
	"github.com/openmined/watchd/internal/ingest"
	"github.com/openmined/watchd/internal/queue"
	"github.com/openmined/watchd/internal/root"
	"github.com/openmined/watchd/internal/view"
	"github.com/openmined/watchd/internal/watcher"
	"golang.org/x/sync/errgroup"
)

// Watch is one running root: its notify thread, view and cookies.
type Watch struct {
	root    *root.Root
	backend watcher.Watcher
	pending *queue.Pending[change.Event]
	thread  *ingest.Thread
	view    *view.View
	cookies *cookie.Sync
	log     *slog.Logger

	startedAt time.Time
	cancel    context.CancelFunc
	stopOnce  sync.Once
	// done is closed after both goroutines returned and the backend closed
	done chan struct{}
	err  error
}

// Info is a point in time description of a watch.
type Info struct {
	Path          string       `json:"path"`
	State         string       `json:"state"`
	FailureReason string       `json:"failure_reason,omitempty"`
	Tick          uint64       `json:"tick"`
	Files         int          `json:"files"`
	Recrawls      int          `json:"recrawls"`
	Warning       string       `json:"warning,omitempty"`
	Pending       int          `json:"pending"`
	BatchLimit    int          `json:"batch_limit"`
	Stats         ingest.Stats `json:"stats"`
	StartedAt     time.Time    `json:"started_at"`
}

func (m *Manager) newWatch(r *root.Root) (*Watch, error) {
	log := m.log.With("root", r.Path())

	backend, err := watcher.New(m.cfg.Backend, watcher.Options{Logger: log})
	if err != nil {
		return nil, err
	}

	pending := queue.NewPending[change.Event]()
	cookies := cookie.New(r.Path())

	thread := ingest.New(r, backend, pending,
		ingest.WithBatchLimit(m.cfg.BatchLimit),
		ingest.WithWaitTimeout(m.cfg.WaitTimeout),
		ingest.WithGate(m.pauser),
		ingest.WithFlushOnStop(m.cfg.FlushOnStop),
		ingest.WithLogger(m.log),
	)

	path := r.Path()
	viewOpts := []view.Option{
		view.WithSettle(m.cfg.Settle),
		view.WithMaxSettle(m.cfg.MaxSettle),
		view.WithLogger(m.log),
		view.WithOnSettle(func(tick uint64, changed []view.FileState) {
			m.settled(path, tick, changed)
		}),
	}

	return &Watch{
		root:    r,
		backend: backend,
		pending: pending,
		thread:  thread,
		view:    view.New(r, pending, cookies, viewOpts...),
		cookies: cookies,
		log:     log,
		done:    make(chan struct{}),
	}, nil
}

func (w *Watch) start(parent context.Context) {
	ctx, cancel := context.WithCancel(parent)
	w.cancel = cancel
	w.startedAt = time.Now()

	eg, egCtx := errgroup.WithContext(ctx)

	eg.Go(func() error {
		return w.thread.Run(egCtx)
	})

	eg.Go(func() error {
		return w.view.Run(egCtx)
	})

	// a cancelled root takes the whole watch down
	eg.Go(func() error {
		select {
		case <-w.root.Done():
			cancel()
		case <-egCtx.Done():
		}
		return nil
	})

	go func() {
		w.err = eg.Wait()
		if err := w.backend.Close(); err != nil {
			w.log.Warn("backend close", "error", err)
		}
		w.cookies.AbortAll()
		cancel()
		if w.err != nil {
			w.log.Error("watch stopped", "error", w.err)
		}
		close(w.done)
	}()
}

func (w *Watch) stop() {
	w.stopOnce.Do(func() {
		w.root.Cancel()
		if w.cancel != nil {
			w.cancel()
		}
	})
	<-w.done
}

// Err is the reason the watch ended, once Done is closed.
func (w *Watch) Err() error {
	select {
	case <-w.done:
		return w.err
	default:
		return nil
	}
}

// Done is closed once the watch has fully stopped.
func (w *Watch) Done() <-chan struct{} {
	return w.done
}

func (w *Watch) Root() *root.Root {
	return w.root
}

func (w *Watch) View() *view.View {
	return w.view
}

func (w *Watch) Thread() *ingest.Thread {
	return w.thread
}

func (w *Watch) Info() Info {
	state := w.thread.State().String()
	if w.root.Cancelled() {
		state = "cancelled"
	}
	return Info{
		Path:          w.root.Path(),
		State:         state,
		FailureReason: w.root.FailureReason(),
		Tick:          w.view.Tick(),
		Files:         len(w.view.Files()),
		Recrawls:      w.view.RecrawlCount(),
		Warning:       w.view.Warning(),
		Pending:       w.pending.Len(),
		BatchLimit:    w.thread.BatchLimit(),
		Stats:         w.thread.Stats(),
		StartedAt:     w.startedAt,
	}
}
