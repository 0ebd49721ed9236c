// Package view is the consumer side of a watched root. It crawls the root
// once, then keeps an in-memory picture of it current by draining the pending
// collection the notify thread feeds.
package view

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/openmined/watchd/internal/change"
	"github.com/openmined/watchd/internal/cookie"
	"github.com/openmined/watchd/internal/queue"
	"github.com/openmined/watchd/internal/root"
)

const (
	DefaultSettle     = 20 * time.Millisecond
	DefaultMaxSettle  = time.Minute
	defaultRecentSize = 512
)

var (
	ErrAlreadyStarted = errors.New("view already started")
	ErrBadPattern     = errors.New("bad glob pattern")
)

// FileState is what the view knows about one path. Deleted paths are kept
// with Exists unset so that Since can report them.
type FileState struct {
	Name    string    `json:"name"`
	Exists  bool      `json:"exists"`
	Dir     bool      `json:"dir"`
	Size    int64     `json:"size"`
	ModTime time.Time `json:"mtime"`
	Tick    uint64    `json:"tick"`
}

// SettleFunc receives the files that changed since the previous settle.
type SettleFunc func(tick uint64, changed []FileState)

type View struct {
	root    *root.Root
	pending *queue.Pending[change.Event]
	cookies *cookie.Sync

	settle    time.Duration
	maxSettle time.Duration
	onSettle  SettleFunc
	log       *slog.Logger

	mu            sync.RWMutex
	files         map[string]*FileState
	tick          uint64
	lastSettled   uint64
	recrawls      int
	warning       string
	recrawlReason string

	recent     *lru.Cache[string, uint64]
	recentSize int

	ready     chan struct{}
	readyOnce sync.Once
	started   atomic.Bool
}

func New(r *root.Root, pending *queue.Pending[change.Event], cookies *cookie.Sync, opts ...Option) *View {
	v := &View{
		root:       r,
		pending:    pending,
		cookies:    cookies,
		settle:     DefaultSettle,
		maxSettle:  DefaultMaxSettle,
		log:        slog.Default(),
		files:      make(map[string]*FileState),
		recentSize: defaultRecentSize,
		ready:      make(chan struct{}),
	}
	for _, opt := range opts {
		opt(v)
	}
	v.maxSettle = max(v.maxSettle, v.settle)
	v.recent, _ = lru.New[string, uint64](v.recentSize)
	v.log = v.log.With("component", "view", "root", r.Path())
	return v
}

// Run waits for the notify thread's readiness ping, crawls the root and then
// applies pending changes until ctx is done. Crawling before the watcher is up
// would miss files created in between.
func (v *View) Run(ctx context.Context) error {
	if !v.started.CompareAndSwap(false, true) {
		return ErrAlreadyStarted
	}

	if err := v.waitForWatcher(ctx); err != nil {
		return nil
	}

	start := time.Now()
	v.fullCrawl()
	v.readyOnce.Do(func() { close(v.ready) })
	// the crawl saw everything, including whatever a cookie was waiting for
	v.cookies.NotifyAll()
	v.log.Info("initial crawl complete", "files", v.count(), "took", time.Since(start))

	timeout := v.settle
	for {
		events, pinged, err := v.pending.WaitAndDrain(ctx, timeout)
		if err != nil {
			return nil
		}

		if reason := v.takeRecrawl(); reason != "" {
			v.recrawl(reason)
			timeout = v.settle
			continue
		}

		if len(events) > 0 {
			v.process(events)
			timeout = v.settle
			continue
		}
		if pinged {
			continue
		}

		v.settled()
		timeout = min(timeout*2, v.maxSettle)
	}
}

// waitForWatcher consumes the first ping on the pending collection. Events
// handed off with or after it stay queued for the loop.
func (v *View) waitForWatcher(ctx context.Context) error {
	for {
		pinged, err := v.pending.Wait(ctx, v.maxSettle)
		if err != nil {
			return err
		}
		if pinged {
			return nil
		}
	}
}

// WaitUntilReady blocks until the initial crawl has completed.
func (v *View) WaitUntilReady(ctx context.Context) error {
	select {
	case <-v.ready:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// ScheduleRecrawl asks the running view to rebuild itself from disk.
func (v *View) ScheduleRecrawl(reason string) {
	v.mu.Lock()
	v.recrawlReason = reason
	v.mu.Unlock()
	v.pending.Ping()
}

func (v *View) Root() *root.Root {
	return v.root
}

func (v *View) Tick() uint64 {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.tick
}

func (v *View) RecrawlCount() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.recrawls
}

// Warning is set once the view had to recrawl.
func (v *View) Warning() string {
	v.mu.RLock()
	defer v.mu.RUnlock()
	return v.warning
}

// Files returns every existing path, sorted by name.
func (v *View) Files() []FileState {
	return v.collect(func(f *FileState) bool { return f.Exists })
}

// Glob returns existing paths matching a doublestar pattern relative to the root.
func (v *View) Glob(pattern string) ([]FileState, error) {
	if !doublestar.ValidatePattern(pattern) {
		return nil, fmt.Errorf("%w: %q", ErrBadPattern, pattern)
	}
	return v.collect(func(f *FileState) bool {
		if !f.Exists {
			return false
		}
		ok, _ := doublestar.Match(pattern, f.Name)
		return ok
	}), nil
}

// Since returns the paths, deleted ones included, that changed after tick.
func (v *View) Since(tick uint64) []FileState {
	return v.collect(func(f *FileState) bool { return f.Tick > tick })
}

// Recent returns up to n of the most recently changed paths, newest first.
func (v *View) Recent(n int) []FileState {
	keys := v.recent.Keys()
	slices.Reverse(keys)
	if n > 0 && len(keys) > n {
		keys = keys[:n]
	}

	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]FileState, 0, len(keys))
	for _, name := range keys {
		if f, ok := v.files[name]; ok {
			out = append(out, *f)
		}
	}
	return out
}

func (v *View) collect(keep func(*FileState) bool) []FileState {
	v.mu.RLock()
	defer v.mu.RUnlock()
	out := make([]FileState, 0)
	for _, f := range v.files {
		if keep(f) {
			out = append(out, *f)
		}
	}
	slices.SortFunc(out, func(a, b FileState) int { return strings.Compare(a.Name, b.Name) })
	return out
}

func (v *View) count() int {
	v.mu.RLock()
	defer v.mu.RUnlock()
	n := 0
	for _, f := range v.files {
		if f.Exists {
			n++
		}
	}
	return n
}

func (v *View) takeRecrawl() string {
	v.mu.Lock()
	defer v.mu.Unlock()
	reason := v.recrawlReason
	v.recrawlReason = ""
	return reason
}

func (v *View) settled() {
	v.mu.Lock()
	if v.tick == v.lastSettled {
		v.mu.Unlock()
		return
	}
	since, tick := v.lastSettled, v.tick
	v.lastSettled = tick
	v.mu.Unlock()

	v.log.Debug("settled", "tick", tick)
	if v.onSettle != nil {
		v.onSettle(tick, v.Since(since))
	}
}
