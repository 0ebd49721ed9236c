package watcher

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/openmined/watchd/internal/change"
	"github.com/openmined/watchd/internal/root"
	"github.com/rjeczalik/notify"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestRoot(t *testing.T, opts ...root.Option) *root.Root {
	t.Helper()
	// macos is funny =)
	// tmpdir lives in /var/folders but it's actually symlink to /private/var/folders
	dir, err := filepath.EvalSymlinks(t.TempDir())
	require.NoError(t, err)
	r, err := root.New(dir, opts...)
	require.NoError(t, err)
	return r
}

// collect drains the backend until path shows up or the deadline passes.
func collect(t *testing.T, w Watcher, r *root.Root, path string) []change.Event {
	t.Helper()
	var seen []change.Event
	deadline := time.Now().Add(3 * time.Second)
	for time.Now().Before(deadline) {
		if !w.WaitNotify(t.Context(), 100*time.Millisecond) {
			continue
		}
		batch := change.NewBatch(64)
		for w.ConsumeNotify(r, batch) {
			if !w.WaitNotify(t.Context(), 0) {
				break
			}
		}
		seen = append(seen, *batch.Events()...)
		for _, ev := range seen {
			if ev.Path == path {
				return seen
			}
		}
	}
	return seen
}

func hasPath(events []change.Event, path string) bool {
	for _, ev := range events {
		if ev.Path == path {
			return true
		}
	}
	return false
}

func TestNew_Backends(t *testing.T) {
	for _, name := range Backends() {
		w, err := New(name, Options{})
		require.NoError(t, err, name)
		assert.NotNil(t, w)
	}

	w, err := New("", Options{})
	require.NoError(t, err)
	assert.IsType(t, &NotifyBackend{}, w)

	_, err = New("polling", Options{})
	assert.ErrorIs(t, err, ErrUnknownBackend)
}

func TestBackends_ReportWrites(t *testing.T) {
	for _, name := range Backends() {
		t.Run(name, func(t *testing.T) {
			r := newTestRoot(t)
			w, err := New(name, Options{BufferSize: 128})
			require.NoError(t, err)
			require.NoError(t, w.Start(t.Context(), r))
			defer w.Close()

			testFile := filepath.Join(r.Path(), "test.txt")
			require.NoError(t, os.WriteFile(testFile, []byte("hello world"), 0o644))

			events := collect(t, w, r, testFile)
			assert.True(t, hasPath(events, testFile), "expected event for %s, got %v", testFile, events)
		})
	}
}

func TestBackends_DropIgnoredPaths(t *testing.T) {
	for _, name := range Backends() {
		t.Run(name, func(t *testing.T) {
			r := newTestRoot(t, root.WithIgnoreGlobs("**/*.tmp"))
			w, err := New(name, Options{})
			require.NoError(t, err)
			require.NoError(t, w.Start(t.Context(), r))
			defer w.Close()

			ignored := filepath.Join(r.Path(), "scratch.tmp")
			kept := filepath.Join(r.Path(), "kept.txt")
			require.NoError(t, os.WriteFile(ignored, []byte("x"), 0o644))
			require.NoError(t, os.WriteFile(kept, []byte("x"), 0o644))

			events := collect(t, w, r, kept)
			assert.True(t, hasPath(events, kept))
			assert.False(t, hasPath(events, ignored))
		})
	}
}

func TestBackends_StartFailsForMissingRoot(t *testing.T) {
	for _, name := range Backends() {
		t.Run(name, func(t *testing.T) {
			r := newTestRoot(t)
			require.NoError(t, os.Remove(r.Path()))

			w, err := New(name, Options{})
			require.NoError(t, err)
			err = w.Start(t.Context(), r)
			assert.Error(t, err)
			assert.NotEmpty(t, err.Error())
			assert.NoError(t, w.Close())
		})
	}
}

func TestBackends_WaitNotifyHonoursContext(t *testing.T) {
	for _, name := range Backends() {
		t.Run(name, func(t *testing.T) {
			r := newTestRoot(t)
			w, err := New(name, Options{})
			require.NoError(t, err)
			require.NoError(t, w.Start(t.Context(), r))
			defer w.Close()

			ctx, cancel := context.WithCancel(t.Context())
			done := make(chan bool, 1)
			go func() { done <- w.WaitNotify(ctx, time.Hour) }()

			cancel()
			select {
			case got := <-done:
				assert.False(t, got)
			case <-time.After(2 * time.Second):
				assert.FailNow(t, "WaitNotify ignored cancellation")
			}
		})
	}
}

func TestBackends_ProbeWithoutEvents(t *testing.T) {
	for _, name := range Backends() {
		t.Run(name, func(t *testing.T) {
			r := newTestRoot(t)
			w, err := New(name, Options{})
			require.NoError(t, err)

			// before Start nothing is available
			assert.False(t, w.WaitNotify(t.Context(), 0))
			assert.False(t, w.ConsumeNotify(r, change.NewBatch(1)))

			require.NoError(t, w.Start(t.Context(), r))
			defer w.Close()
			assert.False(t, w.ConsumeNotify(r, change.NewBatch(1)))
		})
	}
}

func TestNotifyBackend_OverflowBecomesRecrawlEvent(t *testing.T) {
	r := newTestRoot(t)
	w := NewNotifyBackend(Options{BufferSize: 4})
	require.NoError(t, w.Start(t.Context(), r))
	defer w.Close()

	for i := 0; i < 32; i++ {
		require.NoError(t, os.WriteFile(filepath.Join(r.Path(), "f"+string(rune('a'+i%26))+".txt"), []byte{byte(i)}, 0o644))
	}

	sawOverflow := false
	deadline := time.Now().Add(3 * time.Second)
	for !sawOverflow && time.Now().Before(deadline) {
		if !w.WaitNotify(t.Context(), 100*time.Millisecond) {
			continue
		}
		batch := change.NewBatch(64)
		for w.ConsumeNotify(r, batch) {
		}
		for _, ev := range *batch.Events() {
			if ev.Kind == change.Overflow {
				sawOverflow = true
				assert.Equal(t, r.Path(), ev.Path)
			}
		}
	}
	assert.True(t, sawOverflow, "a saturated buffer must surface as an overflow event")
}

type fakeEventInfo struct {
	path string
}

func (e fakeEventInfo) Event() notify.Event { return notify.Write }
func (e fakeEventInfo) Path() string        { return e.path }
func (e fakeEventInfo) Sys() any            { return nil }

func TestNotifyBackend_FullBufferReportsOverflowFirst(t *testing.T) {
	r := newTestRoot(t)
	w := NewNotifyBackend(Options{BufferSize: 2})

	// a full channel is what notify leaves behind after dropping events
	events := make(chan notify.EventInfo, 2)
	events <- fakeEventInfo{path: filepath.Join(r.Path(), "a")}
	events <- fakeEventInfo{path: filepath.Join(r.Path(), "b")}
	w.events = events

	require.True(t, w.WaitNotify(t.Context(), time.Second))
	batch := change.NewBatch(64)
	for w.ConsumeNotify(r, batch) {
		if !w.WaitNotify(t.Context(), 0) {
			break
		}
	}

	got := *batch.Events()
	require.Len(t, got, 1)
	assert.Equal(t, change.Overflow, got[0].Kind)
	assert.Equal(t, r.Path(), got[0].Path)
	assert.Empty(t, events)

	assert.False(t, w.WaitNotify(t.Context(), 0))
}

func TestNotifyBackend_OverflowDetectedAfterHeldEvent(t *testing.T) {
	r := newTestRoot(t)
	w := NewNotifyBackend(Options{BufferSize: 2})

	events := make(chan notify.EventInfo, 2)
	events <- fakeEventInfo{path: filepath.Join(r.Path(), "a")}
	w.events = events

	// the held event frees a slot, then the buffer fills up behind it
	require.True(t, w.WaitNotify(t.Context(), time.Second))
	events <- fakeEventInfo{path: filepath.Join(r.Path(), "b")}
	events <- fakeEventInfo{path: filepath.Join(r.Path(), "c")}

	batch := change.NewBatch(64)
	require.True(t, w.ConsumeNotify(r, batch))
	got := *batch.Events()
	require.Len(t, got, 1)
	assert.Equal(t, change.Overflow, got[0].Kind)
}
