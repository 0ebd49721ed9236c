// Package cookie implements sync-to-now for a watched root: touch a uniquely
// named file and wait until the consumer observes it coming back through the
// notification pipeline. Once it does, every change made before the touch has
// been seen as well.
package cookie

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Prefix marks cookie files. They never show up in a view.
const Prefix = ".watchd-cookie-"

var (
	ErrSyncTimeout = errors.New("timed out waiting for cookie")
	ErrAborted     = errors.New("cookie sync aborted by recrawl")
)

type Sync struct {
	dir string

	mu      sync.Mutex
	waiters map[string]chan error
}

// New creates cookies in dir, which must be inside the watched root.
func New(dir string) *Sync {
	return &Sync{
		dir:     dir,
		waiters: make(map[string]chan error),
	}
}

func (s *Sync) Dir() string {
	return s.dir
}

// IsCookie reports whether path names a cookie file.
func IsCookie(path string) bool {
	return strings.HasPrefix(filepath.Base(path), Prefix)
}

// SyncToNow writes a cookie and waits until it has been observed.
func (s *Sync) SyncToNow(ctx context.Context, timeout time.Duration) error {
	path := filepath.Join(s.dir, Prefix+uuid.NewString())
	result := make(chan error, 1)

	s.mu.Lock()
	s.waiters[path] = result
	s.mu.Unlock()

	defer func() {
		s.mu.Lock()
		delete(s.waiters, path)
		s.mu.Unlock()
		os.Remove(path)
	}()

	if err := os.WriteFile(path, nil, 0o600); err != nil {
		return fmt.Errorf("write cookie %s: %w", path, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case err := <-result:
		return err
	case <-timer.C:
		return fmt.Errorf("%w %s after %s", ErrSyncTimeout, filepath.Base(path), timeout)
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Notify resolves the waiter for path, if any.
func (s *Sync) Notify(path string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if ch, ok := s.waiters[path]; ok {
		ch <- nil
		delete(s.waiters, path)
	}
}

// NotifyAll resolves every outstanding cookie successfully. Used after an
// initial crawl, which by definition saw everything.
func (s *Sync) NotifyAll() {
	s.resolveAll(nil)
}

// AbortAll fails every outstanding cookie with ErrAborted.
func (s *Sync) AbortAll() {
	s.resolveAll(ErrAborted)
}

// Outstanding returns the number of unresolved cookies.
func (s *Sync) Outstanding() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.waiters)
}

func (s *Sync) resolveAll(err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for path, ch := range s.waiters {
		ch <- err
		delete(s.waiters, path)
	}
}
