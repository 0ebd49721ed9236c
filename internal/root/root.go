package root

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"sync"

	"github.com/openmined/watchd/internal/utils"
)

var (
	ErrNotADirectory = errors.New("root is not a directory")
)

// Root is one watched subtree. The notify thread only holds a reference; the
// watch manager owns its lifetime.
type Root struct {
	path   string
	ignore *IgnoreList

	mu            sync.RWMutex
	failureReason string
	cancelOnce    sync.Once
	cancelled     chan struct{}
}

type Option func(*Root)

// WithIgnoreGlobs adds doublestar patterns, relative to the root, whose
// matches are never reported.
func WithIgnoreGlobs(globs ...string) Option {
	return func(r *Root) {
		r.ignore.AddGlobs(globs...)
	}
}

// New resolves path and returns an unwatched root for it.
func New(path string, opts ...Option) (*Root, error) {
	abs, err := utils.ResolvePath(path)
	if err != nil {
		return nil, fmt.Errorf("resolve root %q: %w", path, err)
	}
	// the kernel reports resolved paths; keep ours comparable
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		abs = resolved
	}
	if !utils.DirExists(abs) {
		return nil, fmt.Errorf("%w: %s", ErrNotADirectory, abs)
	}

	r := &Root{
		path:      abs,
		ignore:    NewIgnoreList(abs),
		cancelled: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(r)
	}
	r.ignore.Load()
	return r, nil
}

func (r *Root) Path() string {
	return r.path
}

// Rel returns p relative to the root using forward slashes, or false when p
// is outside of it.
func (r *Root) Rel(p string) (string, bool) {
	rel, err := filepath.Rel(r.path, p)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", false
	}
	return filepath.ToSlash(rel), true
}

func (r *Root) Ignore() *IgnoreList {
	return r.ignore
}

// ShouldIgnore reports whether an absolute path under the root is excluded.
func (r *Root) ShouldIgnore(p string) bool {
	rel, ok := r.Rel(p)
	if !ok {
		return true
	}
	if rel == "." {
		return false
	}
	return r.ignore.ShouldIgnore(rel)
}

func (r *Root) FailureReason() string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.failureReason
}

func (r *Root) SetFailureReason(reason string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.failureReason = reason
}

// Cancel moves the root to its terminal unwatched state. It returns true only
// for the call that caused the cancellation.
func (r *Root) Cancel() bool {
	caused := false
	r.cancelOnce.Do(func() {
		caused = true
		close(r.cancelled)
	})
	return caused
}

func (r *Root) Cancelled() bool {
	select {
	case <-r.cancelled:
		return true
	default:
		return false
	}
}

// Done is closed once the root is cancelled.
func (r *Root) Done() <-chan struct{} {
	return r.cancelled
}
