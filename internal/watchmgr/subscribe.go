package watchmgr

import (
	"sync"
	"sync/atomic"

	"github.com/openmined/watchd/internal/view"
)

const subscriptionBuffer = 64

// Notification is one settled batch of one root.
type Notification struct {
	Root  string           `json:"root"`
	Tick  uint64           `json:"tick"`
	Files []view.FileState `json:"files"`
}

// Subscription receives the settled batches of one root until it is closed
// or the root is unwatched, at which point Notifications is closed.
type Subscription struct {
	id      uint64
	root    string
	ch      chan Notification
	dropped atomic.Uint64
	hub     *hub
}

func (s *Subscription) Notifications() <-chan Notification {
	return s.ch
}

// Dropped counts batches lost because the subscriber fell behind.
func (s *Subscription) Dropped() uint64 {
	return s.dropped.Load()
}

func (s *Subscription) Root() string {
	return s.root
}

func (s *Subscription) Close() {
	s.hub.remove(s.id)
}

type hub struct {
	mu   sync.Mutex
	next uint64
	subs map[uint64]*Subscription
}

func newHub() *hub {
	return &hub{subs: make(map[uint64]*Subscription)}
}

func (h *hub) add(root string) *Subscription {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	s := &Subscription{
		id:   h.next,
		root: root,
		ch:   make(chan Notification, subscriptionBuffer),
		hub:  h,
	}
	h.subs[s.id] = s
	return s
}

func (h *hub) remove(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if s, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(s.ch)
	}
}

// closeRoot ends every subscription of root.
func (h *hub) closeRoot(root string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		if s.root == root {
			delete(h.subs, id)
			close(s.ch)
		}
	}
}

func (h *hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for id, s := range h.subs {
		delete(h.subs, id)
		close(s.ch)
	}
}

// publish never blocks the view; a full subscriber loses the batch.
func (h *hub) len() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}

func (h *hub) publish(n Notification) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, s := range h.subs {
		if s.root != n.Root {
			continue
		}
		select {
		case s.ch <- n:
		default:
			s.dropped.Add(1)
		}
	}
}
