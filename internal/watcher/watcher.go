// Package watcher contains the kernel notification backends a notify thread
// drains. A backend buffers raw notifications between WaitNotify and
// ConsumeNotify; the notify thread decides how many of them make one batch.
package watcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"time"

	"github.com/openmined/watchd/internal/change"
	"github.com/openmined/watchd/internal/root"
)

const (
	BackendNotify   = "notify"
	BackendFSNotify = "fsnotify"

	// notify backends never block on send, the buffer absorbs bursts until the
	// notify thread drains it
	defaultBufferSize = 4096
)

var (
	ErrUnknownBackend = errors.New("unknown watcher backend")
	ErrNotStarted     = errors.New("watcher not started")
)

// Watcher is a platform specific source of change events for a single root.
type Watcher interface {
	// Start begins observing the root. The returned error text is recorded as
	// the root's failure reason.
	Start(ctx context.Context, r *root.Root) error
	// WaitNotify blocks until events are available, timeout elapses or ctx is
	// done. A zero timeout never blocks.
	WaitNotify(ctx context.Context, timeout time.Duration) bool
	// ConsumeNotify moves available events into batch. It returns false when
	// nothing was immediately available or the batch is full.
	ConsumeNotify(r *root.Root, batch *change.Batch) bool
	// Close releases kernel resources. It is safe to call more than once.
	Close() error
}

type Options struct {
	Logger     *slog.Logger
	BufferSize int
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = slog.Default()
	}
	if o.BufferSize <= 0 {
		o.BufferSize = defaultBufferSize
	}
	return o
}

// New returns the backend registered under name.
func New(name string, opts Options) (Watcher, error) {
	switch name {
	case BackendNotify, "":
		return NewNotifyBackend(opts), nil
	case BackendFSNotify:
		return NewFSNotifyBackend(opts), nil
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnknownBackend, name)
	}
}

// Backends lists the names accepted by New.
func Backends() []string {
	return []string{BackendNotify, BackendFSNotify}
}

// waitTimer returns a channel that fires after timeout; a stop func must be
// deferred by the caller.
func waitTimer(timeout time.Duration) (<-chan time.Time, func() bool) {
	timer := time.NewTimer(timeout)
	return timer.C, timer.Stop
}

func statDir(path string) (bool, error) {
	info, err := os.Lstat(path)
	if err != nil {
		return false, err
	}
	return info.IsDir(), nil
}
