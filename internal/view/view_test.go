package view

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/openmined/watchd/internal/change"
	"github.com/openmined/watchd/internal/cookie"
	"github.com/openmined/watchd/internal/queue"
	"github.com/openmined/watchd/internal/root"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type harness struct {
	root    *root.Root
	pending *queue.Pending[change.Event]
	cookies *cookie.Sync
	view    *View
}

func newHarness(t *testing.T, setup func(dir string), opts ...Option) *harness {
	t.Helper()
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	if setup != nil {
		setup(dir)
	}

	r, err := root.New(dir, root.WithIgnoreGlobs("**/*.tmp"))
	require.NoError(t, err)

	h := &harness{
		root:    r,
		pending: queue.NewPending[change.Event](),
		cookies: cookie.New(r.Path()),
	}
	h.view = New(r, h.pending, h.cookies, append([]Option{WithSettle(5 * time.Millisecond)}, opts...)...)

	ctx, cancel := context.WithCancel(t.Context())
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		assert.NoError(t, h.view.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})

	// stands in for the notify thread announcing its watcher is up
	h.pending.Ping()
	require.NoError(t, h.view.WaitUntilReady(t.Context()))
	return h
}

func (h *harness) push(events ...change.Event) {
	h.pending.PushBatch(&events)
}

func (h *harness) path(rel string) string {
	return filepath.Join(h.root.Path(), filepath.FromSlash(rel))
}

func names(files []FileState) []string {
	out := make([]string, 0, len(files))
	for _, f := range files {
		out = append(out, f.Name)
	}
	return out
}

func write(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func TestView_InitialCrawl(t *testing.T) {
	h := newHarness(t, func(dir string) {
		write(t, filepath.Join(dir, "a.txt"), "a")
		write(t, filepath.Join(dir, "sub", "b.txt"), "bb")
		write(t, filepath.Join(dir, "skip.tmp"), "x")
		write(t, filepath.Join(dir, ".git", "HEAD"), "ref")
	})

	assert.Equal(t, []string{"a.txt", "sub", "sub/b.txt"}, names(h.view.Files()))
	assert.Equal(t, uint64(1), h.view.Tick())
	assert.Empty(t, h.view.Warning())
}

func TestView_AppliesEvents(t *testing.T) {
	h := newHarness(t, nil)
	before := h.view.Tick()

	write(t, h.path("new.txt"), "hello")
	h.push(change.Event{Path: h.path("new.txt"), Kind: change.Create})

	require.Eventually(t, func() bool {
		return len(h.view.Since(before)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	got := h.view.Since(before)[0]
	assert.Equal(t, "new.txt", got.Name)
	assert.True(t, got.Exists)
	assert.Equal(t, int64(5), got.Size)
}

func TestView_Deletes(t *testing.T) {
	h := newHarness(t, func(dir string) {
		write(t, filepath.Join(dir, "d", "one.txt"), "1")
		write(t, filepath.Join(dir, "d", "two.txt"), "2")
	})
	before := h.view.Tick()

	require.NoError(t, os.RemoveAll(h.path("d")))
	h.push(change.Event{Path: h.path("d"), Kind: change.Remove})

	require.Eventually(t, func() bool {
		return len(h.view.Files()) == 0
	}, 2*time.Second, 5*time.Millisecond)

	changed := h.view.Since(before)
	assert.Equal(t, []string{"d", "d/one.txt", "d/two.txt"}, names(changed))
	for _, f := range changed {
		assert.False(t, f.Exists, f.Name)
	}
}

func TestView_NewDirectoryIsCrawled(t *testing.T) {
	h := newHarness(t, nil)

	write(t, h.path("moved/in/deep.txt"), "x")
	h.push(change.Event{Path: h.path("moved"), Kind: change.Rename})

	require.Eventually(t, func() bool {
		return len(h.view.Files()) == 3
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"moved", "moved/in", "moved/in/deep.txt"}, names(h.view.Files()))
}

func TestView_IgnoredAndForeignPaths(t *testing.T) {
	h := newHarness(t, nil)
	before := h.view.Tick()

	write(t, h.path("junk.tmp"), "x")
	write(t, h.path("keep.txt"), "x")
	h.push(
		change.Event{Path: h.path("junk.tmp"), Kind: change.Create},
		change.Event{Path: "/somewhere/else", Kind: change.Create},
		change.Event{Path: h.path("keep.txt"), Kind: change.Create},
	)

	require.Eventually(t, func() bool {
		return len(h.view.Since(before)) > 0
	}, 2*time.Second, 5*time.Millisecond)
	assert.Equal(t, []string{"keep.txt"}, names(h.view.Since(before)))
}

func TestView_OverflowRecrawls(t *testing.T) {
	h := newHarness(t, nil)

	// changed on disk without an event, only a recrawl finds it
	write(t, h.path("missed.txt"), "x")
	h.push(change.Event{Path: h.root.Path(), Kind: change.Overflow})

	require.Eventually(t, func() bool {
		return h.view.RecrawlCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, h.view.Warning(), "overflowed")
	assert.Equal(t, []string{"missed.txt"}, names(h.view.Files()))
}

func TestView_ScheduleRecrawl(t *testing.T) {
	h := newHarness(t, nil)

	h.view.ScheduleRecrawl("requested by test")
	require.Eventually(t, func() bool {
		return h.view.RecrawlCount() == 1
	}, 2*time.Second, 5*time.Millisecond)
	assert.Contains(t, h.view.Warning(), "requested by test")
}

func TestView_CookieResolvesSync(t *testing.T) {
	h := newHarness(t, nil)

	go func() {
		deadline := time.Now().Add(2 * time.Second)
		for time.Now().Before(deadline) {
			entries, _ := os.ReadDir(h.root.Path())
			for _, e := range entries {
				if cookie.IsCookie(e.Name()) {
					h.push(change.Event{Path: h.path(e.Name()), Kind: change.Create})
					return
				}
			}
			time.Sleep(5 * time.Millisecond)
		}
	}()

	require.NoError(t, h.cookies.SyncToNow(t.Context(), 2*time.Second))
	assert.Empty(t, h.view.Files(), "cookies never enter the view")
}

func TestView_OnSettle(t *testing.T) {
	var mu sync.Mutex
	var settled [][]string

	h := newHarness(t, nil, WithOnSettle(func(_ uint64, changed []FileState) {
		mu.Lock()
		defer mu.Unlock()
		settled = append(settled, names(changed))
	}))

	// the initial crawl settles first
	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(settled) == 1
	}, 2*time.Second, 5*time.Millisecond)

	write(t, h.path("x.txt"), "x")
	h.push(change.Event{Path: h.path("x.txt"), Kind: change.Write})

	require.Eventually(t, func() bool {
		mu.Lock()
		defer mu.Unlock()
		return len(settled) == 2
	}, 2*time.Second, 5*time.Millisecond)

	mu.Lock()
	defer mu.Unlock()
	assert.Equal(t, []string{"x.txt"}, settled[1])
}

func TestView_GlobAndRecent(t *testing.T) {
	h := newHarness(t, func(dir string) {
		write(t, filepath.Join(dir, "src", "main.go"), "package main")
		write(t, filepath.Join(dir, "src", "lib", "lib.go"), "package lib")
		write(t, filepath.Join(dir, "README.md"), "# hi")
	})

	matches, err := h.view.Glob("**/*.go")
	require.NoError(t, err)
	assert.Equal(t, []string{"src/lib/lib.go", "src/main.go"}, names(matches))

	_, err = h.view.Glob("[")
	assert.ErrorIs(t, err, ErrBadPattern)

	before := h.view.Tick()
	write(t, h.path("README.md"), "# changed")
	h.push(change.Event{Path: h.path("README.md"), Kind: change.Write})
	require.Eventually(t, func() bool {
		return len(h.view.Since(before)) == 1
	}, 2*time.Second, 5*time.Millisecond)

	recent := h.view.Recent(1)
	require.Len(t, recent, 1)
	assert.Equal(t, "README.md", recent[0].Name)
}

func TestView_RootRemovedCancelsRoot(t *testing.T) {
	h := newHarness(t, nil)

	require.NoError(t, os.RemoveAll(h.root.Path()))
	h.push(change.Event{Path: h.root.Path(), Kind: change.Remove})

	select {
	case <-h.root.Done():
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "root was not cancelled")
	}
	assert.NotEmpty(t, h.root.FailureReason())
}

func TestView_RunOnce(t *testing.T) {
	h := newHarness(t, nil)
	assert.ErrorIs(t, h.view.Run(t.Context()), ErrAlreadyStarted)
}

func TestView_CrawlWaitsForWatcher(t *testing.T) {
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	r, err := root.New(dir)
	require.NoError(t, err)

	pending := queue.NewPending[change.Event]()
	v := New(r, pending, cookie.New(r.Path()), WithSettle(5*time.Millisecond))

	ctx, cancel := context.WithCancel(t.Context())
	finished := make(chan struct{})
	go func() {
		defer close(finished)
		assert.NoError(t, v.Run(ctx))
	}()
	t.Cleanup(func() {
		cancel()
		<-finished
	})

	waitCtx, waitCancel := context.WithTimeout(t.Context(), 100*time.Millisecond)
	defer waitCancel()
	assert.ErrorIs(t, v.WaitUntilReady(waitCtx), context.DeadlineExceeded)
	assert.Zero(t, v.Tick())

	// created while the watcher was still starting, with no event for it
	write(t, filepath.Join(dir, "gap.txt"), "x")
	pending.Ping()

	require.NoError(t, v.WaitUntilReady(t.Context()))
	assert.Equal(t, []string{"gap.txt"}, names(v.Files()))
}
