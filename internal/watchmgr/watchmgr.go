// Package watchmgr owns the set of watched roots. Each watch runs a notify
// thread feeding a view through a pending collection; all notify threads share
// one pause controller.
package watchmgr

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/openmined/watchd/internal/config"
	"github.com/openmined/watchd/internal/pause"
	"github.com/openmined/watchd/internal/root"
	"github.com/openmined/watchd/internal/utils"
	"github.com/openmined/watchd/internal/view"
)

var (
	ErrAlreadyWatched = errors.New("root is already watched")
	ErrRootNotWatched = errors.New("root is not watched")
	ErrManagerClosed  = errors.New("watch manager closed")
)

// SettleFunc is told about every settled batch of every root.
type SettleFunc func(root string, tick uint64, changed []view.FileState)

type Manager struct {
	cfg      *config.Config
	pauser   *pause.Controller
	onSettle SettleFunc
	hub      *hub
	log      *slog.Logger

	// base outlives any single request; Close cancels it
	base   context.Context
	cancel context.CancelFunc

	// startMu serializes Watch so a root is never started twice
	startMu sync.Mutex

	mu      sync.RWMutex
	watches map[string]*Watch
	closed  bool
}

type Option func(*Manager)

func WithSettleFunc(fn SettleFunc) Option {
	return func(m *Manager) {
		m.onSettle = fn
	}
}

func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// New creates a manager. A nil controller gets a private one.
func New(cfg *config.Config, pauser *pause.Controller, opts ...Option) *Manager {
	if pauser == nil {
		pauser = pause.NewController()
	}
	base, cancel := context.WithCancel(context.Background())
	m := &Manager{
		cfg:     cfg,
		pauser:  pauser,
		hub:     newHub(),
		log:     slog.Default(),
		base:    base,
		cancel:  cancel,
		watches: make(map[string]*Watch),
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// Watch starts watching path and returns once the watcher is up and the
// initial crawl is complete. A start failure returns an error wrapping
// ingest.ErrStartFailed and leaves nothing registered.
func (m *Manager) Watch(ctx context.Context, path string) (*Watch, error) {
	m.startMu.Lock()
	defer m.startMu.Unlock()

	r, err := root.New(path, root.WithIgnoreGlobs(m.cfg.Ignore...))
	if err != nil {
		return nil, err
	}

	m.mu.RLock()
	closed := m.closed
	existing, found := m.watches[r.Path()]
	m.mu.RUnlock()
	if closed {
		return nil, ErrManagerClosed
	}
	if found && !existing.root.Cancelled() {
		return nil, fmt.Errorf("%w: %s", ErrAlreadyWatched, r.Path())
	}
	if found {
		// a dead watch is replaced
		existing.stop()
	}

	w, err := m.newWatch(r)
	if err != nil {
		return nil, err
	}
	w.start(m.base)

	select {
	case <-w.thread.Running():
	case <-w.done:
		return nil, w.Err()
	case <-ctx.Done():
		w.stop()
		return nil, ctx.Err()
	}

	if err := w.view.WaitUntilReady(ctx); err != nil {
		w.stop()
		return nil, err
	}

	m.mu.Lock()
	m.watches[r.Path()] = w
	m.mu.Unlock()

	m.log.Info("watching root", "root", r.Path(), "backend", m.cfg.Backend)
	return w, nil
}

// Unwatch stops watching path and forgets it.
func (m *Manager) Unwatch(path string) error {
	key := m.key(path)

	m.mu.Lock()
	w, ok := m.watches[key]
	delete(m.watches, key)
	m.mu.Unlock()

	if !ok {
		return fmt.Errorf("%w: %s", ErrRootNotWatched, key)
	}
	w.stop()
	m.hub.closeRoot(key)
	m.log.Info("unwatched root", "root", key)
	return nil
}

// UnwatchAll stops every watch.
func (m *Manager) UnwatchAll() {
	m.mu.Lock()
	watches := m.watches
	m.watches = make(map[string]*Watch)
	m.mu.Unlock()

	var wg sync.WaitGroup
	for _, w := range watches {
		wg.Add(1)
		go func() {
			defer wg.Done()
			w.stop()
		}()
	}
	wg.Wait()
}

// Close stops every watch and refuses new ones.
func (m *Manager) Close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()

	m.UnwatchAll()
	m.hub.closeAll()
	m.cancel()
}

// Get returns the live watch for path.
func (m *Manager) Get(path string) (*Watch, error) {
	key := m.key(path)

	m.mu.RLock()
	w, ok := m.watches[key]
	m.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrRootNotWatched, key)
	}
	return w, nil
}

// List describes every registered watch, cancelled ones included, by path.
func (m *Manager) List() []Info {
	m.mu.RLock()
	infos := make([]Info, 0, len(m.watches))
	for _, w := range m.watches {
		infos = append(infos, w.Info())
	}
	m.mu.RUnlock()

	slices.SortFunc(infos, func(a, b Info) int { return strings.Compare(a.Path, b.Path) })
	return infos
}

// SyncToNow waits until every change made to path before the call is visible
// in its view, and returns the view's tick.
func (m *Manager) SyncToNow(ctx context.Context, path string, timeout time.Duration) (uint64, error) {
	w, err := m.Get(path)
	if err != nil {
		return 0, err
	}
	if timeout <= 0 {
		timeout = m.cfg.SyncTimeout
	}
	if err := w.cookies.SyncToNow(ctx, timeout); err != nil {
		return 0, err
	}
	return w.view.Tick(), nil
}

func (m *Manager) Recrawl(path, reason string) error {
	w, err := m.Get(path)
	if err != nil {
		return err
	}
	w.view.ScheduleRecrawl(reason)
	return nil
}

// Subscribe streams the settled batches of a watched root.
func (m *Manager) Subscribe(path string) (*Subscription, error) {
	w, err := m.Get(path)
	if err != nil {
		return nil, err
	}
	return m.hub.add(w.Root().Path()), nil
}

// Subscribers counts open subscriptions across all roots.
func (m *Manager) Subscribers() int {
	return m.hub.len()
}

// settled fans a settled batch out to the settle func and subscribers.
func (m *Manager) settled(root string, tick uint64, changed []view.FileState) {
	if m.onSettle != nil {
		m.onSettle(root, tick, changed)
	}
	m.hub.publish(Notification{Root: root, Tick: tick, Files: changed})
}

// Pause holds every notify thread before its next drain.
func (m *Manager) Pause() {
	m.pauser.Pause()
	m.log.Info("notify threads paused")
}

func (m *Manager) Unpause() {
	m.pauser.Unpause()
	m.log.Info("notify threads unpaused")
}

func (m *Manager) Paused() bool {
	return m.pauser.Paused()
}

// key maps a user supplied path to the registry key. Roots are registered by
// resolved path, but an unwatch may name a directory that no longer exists.
func (m *Manager) key(path string) string {
	abs, err := utils.ResolvePath(path)
	if err != nil {
		return path
	}
	if resolved, err := filepath.EvalSymlinks(abs); err == nil {
		return resolved
	}
	return abs
}
