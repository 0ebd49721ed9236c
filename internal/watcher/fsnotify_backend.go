package watcher

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/openmined/watchd/internal/change"
	"github.com/openmined/watchd/internal/root"
)

// FSNotifyBackend watches every directory of a root individually with
// fsnotify and adds watches for directories as they appear.
type FSNotifyBackend struct {
	log *slog.Logger

	mu       sync.Mutex
	fw       *fsnotify.Watcher
	held     *fsnotify.Event
	overflow bool
	watched  int
}

func NewFSNotifyBackend(opts Options) *FSNotifyBackend {
	opts = opts.withDefaults()
	return &FSNotifyBackend{
		log: opts.Logger,
	}
}

func (b *FSNotifyBackend) Start(ctx context.Context, r *root.Root) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("fsnotify init: %w", err)
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.fw = fw
	if err := b.addTreeLocked(r, r.Path()); err != nil {
		fw.Close()
		b.fw = nil
		return err
	}

	b.log.Debug("fsnotify backend started", "root", r.Path(), "dirs", b.watched)
	return nil
}

func (b *FSNotifyBackend) addTreeLocked(r *root.Root, dir string) error {
	return filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			// the top level must be watchable, anything below may vanish under us
			if path == dir {
				return fmt.Errorf("fsnotify walk %s: %w", path, err)
			}
			return nil
		}
		if !d.IsDir() {
			return nil
		}
		if path != r.Path() && r.ShouldIgnore(path) {
			return filepath.SkipDir
		}
		if err := b.fw.Add(path); err != nil {
			if path == dir {
				return fmt.Errorf("fsnotify add %s: %w", path, err)
			}
			b.log.Warn("fsnotify add failed", "path", path, "error", err)
			return nil
		}
		b.watched++
		return nil
	})
}

func (b *FSNotifyBackend) WaitNotify(ctx context.Context, timeout time.Duration) bool {
	b.mu.Lock()
	if b.held != nil || b.overflow {
		b.mu.Unlock()
		return true
	}
	fw := b.fw
	b.mu.Unlock()

	if fw == nil {
		return false
	}

	var fired <-chan time.Time
	if timeout > 0 {
		var stop func() bool
		fired, stop = waitTimer(timeout)
		defer stop()
	}

	for {
		var ev fsnotify.Event
		var ok bool
		if timeout <= 0 {
			select {
			case ev, ok = <-fw.Events:
			case err, errOk := <-fw.Errors:
				if errOk && b.noteError(err) {
					return true
				}
				return false
			default:
				return false
			}
		} else {
			select {
			case ev, ok = <-fw.Events:
			case err, errOk := <-fw.Errors:
				if !errOk {
					return false
				}
				if b.noteError(err) {
					return true
				}
				continue
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
		b.held = &ev
		b.mu.Unlock()
		return true
	}
}

// noteError records overflow errors and reports whether one occurred.
func (b *FSNotifyBackend) noteError(err error) bool {
	if errors.Is(err, fsnotify.ErrEventOverflow) {
		b.mu.Lock()
		b.overflow = true
		b.mu.Unlock()
		b.log.Warn("fsnotify queue overflow, recrawl required")
		return true
	}
	b.log.Warn("fsnotify error", "error", err)
	return false
}

func (b *FSNotifyBackend) ConsumeNotify(r *root.Root, batch *change.Batch) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if batch.Full() || b.fw == nil {
		return false
	}

	if b.overflow {
		batch.Add(change.Event{Path: r.Path(), Kind: change.Overflow, Time: time.Now()})
		b.overflow = false
		return true
	}

	var ev fsnotify.Event
	if b.held != nil {
		ev = *b.held
		b.held = nil
	} else {
		select {
		case e, ok := <-b.fw.Events:
			if !ok {
				return false
			}
			ev = e
		default:
			return false
		}
	}

	if r.ShouldIgnore(ev.Name) {
		return true
	}

	kind := fsnotifyKind(ev.Op)
	if kind == change.Create {
		// new directories need their own watch; files created inside before the
		// watch lands are picked up when the consumer crawls the directory
		if info, err := statDir(ev.Name); err == nil && info {
			if err := b.addTreeLocked(r, ev.Name); err != nil {
				b.log.Warn("fsnotify watch new dir", "path", ev.Name, "error", err)
			}
		}
	}

	return batch.Add(change.Event{Path: ev.Name, Kind: kind, Time: time.Now()})
}

func (b *FSNotifyBackend) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.fw == nil {
		return nil
	}
	err := b.fw.Close()
	b.fw = nil
	return err
}

func fsnotifyKind(op fsnotify.Op) change.Kind {
	switch {
	case op.Has(fsnotify.Create):
		return change.Create
	case op.Has(fsnotify.Remove):
		return change.Remove
	case op.Has(fsnotify.Rename):
		return change.Rename
	case op.Has(fsnotify.Write):
		return change.Write
	case op.Has(fsnotify.Chmod):
		return change.Attrib
	default:
		return change.Unknown
	}
}
