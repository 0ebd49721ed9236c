package queue

import (
	"context"
	"sync"
	"time"
)

// Pending is an ordered handoff collection between producer goroutines (the
// notify threads) and a single consumer. Appends and pings happen under one
// mutex, so a waiting consumer can never miss a wakeup that accompanies data.
type Pending[T any] struct {
	mu     sync.Mutex
	items  []T
	pinged bool
	// wake is closed on ping and replaced by the next waiter that consumes it
	wake chan struct{}
}

// NewPending creates an empty collection.
func NewPending[T any]() *Pending[T] {
	return &Pending[T]{
		wake: make(chan struct{}),
	}
}

// Locked is an exclusive handle on a Pending collection. It must be released
// with Unlock; no other goroutine observes the collection in between.
type Locked[T any] struct {
	p *Pending[T]
}

// Lock acquires the collection for exclusive access.
func (p *Pending[T]) Lock() *Locked[T] {
	p.mu.Lock()
	return &Locked[T]{p: p}
}

// Unlock releases the handle. The handle must not be used afterwards.
func (l *Locked[T]) Unlock() {
	p := l.p
	l.p = nil
	p.mu.Unlock()
}

// Len returns the number of pending entries.
func (l *Locked[T]) Len() int {
	return len(l.p.items)
}

// Append moves every entry of other, in order, after the current contents.
// other is left empty but keeps its capacity.
func (l *Locked[T]) Append(other *[]T) {
	if other == nil || len(*other) == 0 {
		return
	}
	l.p.items = append(l.p.items, *other...)
	clear(*other)
	*other = (*other)[:0]
}

// Ping wakes a goroutine waiting on the collection.
func (l *Locked[T]) Ping() {
	l.p.pingLocked()
}

// Drain removes and returns all entries in FIFO order.
func (l *Locked[T]) Drain() []T {
	items := l.p.items
	l.p.items = nil
	return items
}

// PushBatch appends other and pings in a single critical section.
func (p *Pending[T]) PushBatch(other *[]T) {
	l := p.Lock()
	defer l.Unlock()
	l.Append(other)
	l.Ping()
}

// Ping wakes a waiting consumer without adding entries.
func (p *Pending[T]) Ping() {
	l := p.Lock()
	defer l.Unlock()
	l.Ping()
}

// Len returns a consistent snapshot of the collection size.
func (p *Pending[T]) Len() int {
	l := p.Lock()
	defer l.Unlock()
	return l.Len()
}

// Wait blocks until the collection is pinged, timeout elapses or ctx is done.
// It reports whether a ping was consumed. A ping that happened before Wait was
// called is returned immediately. A non-positive timeout only checks for a
// pending ping.
func (p *Pending[T]) Wait(ctx context.Context, timeout time.Duration) (bool, error) {
	p.mu.Lock()
	if p.pinged {
		p.consumePingLocked()
		p.mu.Unlock()
		return true, nil
	}
	wake := p.wake
	p.mu.Unlock()

	if timeout <= 0 {
		return false, ctx.Err()
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()

	select {
	case <-wake:
	case <-timer.C:
	case <-ctx.Done():
		return false, ctx.Err()
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.pinged {
		return false, nil
	}
	p.consumePingLocked()
	return true, nil
}

// WaitAndDrain waits like Wait and then takes every pending entry, even when
// the wait timed out without a ping.
func (p *Pending[T]) WaitAndDrain(ctx context.Context, timeout time.Duration) ([]T, bool, error) {
	pinged, err := p.Wait(ctx, timeout)
	if err != nil {
		return nil, pinged, err
	}

	l := p.Lock()
	defer l.Unlock()
	return l.Drain(), pinged, nil
}

func (p *Pending[T]) pingLocked() {
	if p.pinged {
		return
	}
	p.pinged = true
	close(p.wake)
}

func (p *Pending[T]) consumePingLocked() {
	p.pinged = false
	p.wake = make(chan struct{})
}
