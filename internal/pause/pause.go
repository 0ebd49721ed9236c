// Package pause provides the checkpoint notify threads pass through before
// draining events. Production code uses Open; tests and the debug endpoints
// share a Controller to freeze every notify thread at a known point.
package pause

import (
	"context"
	"sync"
	"sync/atomic"
)

// Gate is consulted by a notify thread after events become available and
// before they are drained.
type Gate interface {
	// Wait returns nil once the caller may proceed, or ctx.Err() if ctx ends
	// while the caller is held.
	Wait(ctx context.Context) error
}

// Open is a Gate that never blocks.
var Open Gate = openGate{}

type openGate struct{}

func (openGate) Wait(context.Context) error { return nil }

// Controller is a Gate that can be paused and unpaused. A single Controller
// is shared by every notify thread that should be paused together.
type Controller struct {
	paused  atomic.Bool
	mu      sync.Mutex
	release chan struct{}
	waiting int
}

// NewController returns an unpaused controller.
func NewController() *Controller {
	return &Controller{
		release: make(chan struct{}),
	}
}

// Pause makes subsequent Wait calls block. Pausing twice is a no-op.
func (c *Controller) Pause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.paused.Store(true)
}

// Unpause releases every goroutine blocked in Wait.
func (c *Controller) Unpause() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.paused.Load() {
		return
	}
	c.paused.Store(false)
	close(c.release)
	c.release = make(chan struct{})
}

// Paused reports the current flag.
func (c *Controller) Paused() bool {
	return c.paused.Load()
}

// Waiting returns how many goroutines are currently held at the checkpoint.
func (c *Controller) Waiting() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.waiting
}

func (c *Controller) Wait(ctx context.Context) error {
	// optimistic check; the flag is re-read under the lock below
	if !c.paused.Load() {
		return nil
	}

	c.mu.Lock()
	if !c.paused.Load() {
		c.mu.Unlock()
		return nil
	}
	release := c.release
	c.waiting++
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.waiting--
		c.mu.Unlock()
	}()

	select {
	case <-release:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
