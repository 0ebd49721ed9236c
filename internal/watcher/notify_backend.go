package watcher

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/openmined/watchd/internal/change"
	"github.com/openmined/watchd/internal/root"
	"github.com/rjeczalik/notify"
)

// NotifyBackend watches a root recursively through rjeczalik/notify
// (inotify, FSEvents, kqueue or ReadDirectoryChangesW underneath).
type NotifyBackend struct {
	bufferSize int
	log        *slog.Logger

	mu       sync.Mutex
	events   chan notify.EventInfo
	held     notify.EventInfo
	overflow bool
	stopped  bool
}

func NewNotifyBackend(opts Options) *NotifyBackend {
	opts = opts.withDefaults()
	return &NotifyBackend{
		bufferSize: opts.BufferSize,
		log:        opts.Logger,
	}
}

func (b *NotifyBackend) Start(ctx context.Context, r *root.Root) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	events := make(chan notify.EventInfo, b.bufferSize)
	recursivePath := filepath.Join(r.Path(), "...")
	if err := notify.Watch(recursivePath, events, notify.All); err != nil {
		notify.Stop(events)
		return fmt.Errorf("notify watch %s: %w", r.Path(), err)
	}

	b.events = events
	b.stopped = false
	b.log.Debug("notify backend started", "root", r.Path(), "buffer", b.bufferSize)
	return nil
}

func (b *NotifyBackend) WaitNotify(ctx context.Context, timeout time.Duration) bool {
	b.mu.Lock()
	if b.held != nil || b.checkOverflowLocked() {
		b.mu.Unlock()
		return true
	}
	events := b.events
	b.mu.Unlock()

	if events == nil {
		return false
	}

	var ev notify.EventInfo
	var ok bool
	if timeout <= 0 {
		select {
		case ev, ok = <-events:
		default:
			return false
		}
	} else {
		fired, stop := waitTimer(timeout)
		defer stop()
		select {
		case ev, ok = <-events:
		case <-fired:
			return false
		case <-ctx.Done():
			return false
		}
	}
	if !ok {
		return false
	}

	b.mu.Lock()
	b.held = ev
	b.mu.Unlock()
	return true
}

func (b *NotifyBackend) ConsumeNotify(r *root.Root, batch *change.Batch) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if batch.Full() {
		return false
	}

	if b.checkOverflowLocked() {
		batch.Add(change.Event{Path: r.Path(), Kind: change.Overflow, Time: time.Now()})
		b.overflow = false
		return true
	}

	ev := b.held
	b.held = nil
	if ev == nil {
		select {
		case ev = <-b.events:
		default:
		}
	}
	if ev == nil {
		return false
	}

	if r.ShouldIgnore(ev.Path()) {
		return true
	}
	return batch.Add(change.Event{
		Path: ev.Path(),
		Kind: notifyKind(ev.Event()),
		Time: time.Now(),
	})
}

// checkOverflowLocked must run before anything is received: notify drops on a
// full channel rather than blocking, so a full buffer means events may already
// be gone. The buffered and held events are discarded, the recrawl covers them.
func (b *NotifyBackend) checkOverflowLocked() bool {
	if b.overflow {
		return true
	}
	if b.events == nil || cap(b.events) == 0 || len(b.events) < cap(b.events) {
		return false
	}

	dropped := b.discardBufferedLocked()
	if b.held != nil {
		b.held = nil
		dropped++
	}
	b.overflow = true
	b.log.Warn("notify backend overflow, recrawl required", "discarded", dropped)
	return true
}

func (b *NotifyBackend) discardBufferedLocked() int {
	n := 0
	for {
		select {
		case <-b.events:
			n++
		default:
			return n
		}
	}
}

func (b *NotifyBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.events != nil && !b.stopped {
		notify.Stop(b.events)
		b.stopped = true
	}
	return nil
}

func notifyKind(e notify.Event) change.Kind {
	switch {
	case e&notify.Create != 0:
		return change.Create
	case e&notify.Remove != 0:
		return change.Remove
	case e&notify.Rename != 0:
		return change.Rename
	case e&notify.Write != 0:
		return change.Write
	default:
		return change.Unknown
	}
}
