package queue

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPending_PushBatchAppendsInOrder(t *testing.T) {
	p := NewPending[string]()

	first := []string{"a", "b"}
	second := []string{"c"}
	p.PushBatch(&first)
	p.PushBatch(&second)

	assert.Empty(t, first, "source batch must be emptied")
	assert.Empty(t, second)
	assert.Equal(t, 3, p.Len())

	l := p.Lock()
	items := l.Drain()
	l.Unlock()
	assert.Equal(t, []string{"a", "b", "c"}, items)
	assert.Equal(t, 0, p.Len())
}

func TestPending_AppendNilAndEmpty(t *testing.T) {
	p := NewPending[int]()
	l := p.Lock()
	l.Append(nil)
	empty := []int{}
	l.Append(&empty)
	assert.Equal(t, 0, l.Len())
	l.Unlock()
}

func TestPending_PingBeforeWaitIsNotLost(t *testing.T) {
	p := NewPending[int]()
	p.Ping()

	pinged, err := p.Wait(t.Context(), 0)
	require.NoError(t, err)
	assert.True(t, pinged)

	// the ping was consumed
	pinged, err = p.Wait(t.Context(), 0)
	require.NoError(t, err)
	assert.False(t, pinged)
}

func TestPending_WaitTimesOut(t *testing.T) {
	p := NewPending[int]()

	start := time.Now()
	pinged, err := p.Wait(t.Context(), 20*time.Millisecond)
	require.NoError(t, err)
	assert.False(t, pinged)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestPending_WaitCancelled(t *testing.T) {
	p := NewPending[int]()
	ctx, cancel := context.WithCancel(t.Context())

	done := make(chan error, 1)
	go func() {
		_, err := p.Wait(ctx, time.Hour)
		done <- err
	}()

	cancel()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "wait did not return after cancel")
	}
}

func TestPending_PushWakesWaiter(t *testing.T) {
	p := NewPending[int]()

	got := make(chan []int, 1)
	go func() {
		items, pinged, err := p.WaitAndDrain(t.Context(), time.Hour)
		if err != nil || !pinged {
			got <- nil
			return
		}
		got <- items
	}()

	batch := []int{1, 2, 3}
	p.PushBatch(&batch)

	select {
	case items := <-got:
		assert.Equal(t, []int{1, 2, 3}, items)
	case <-time.After(2 * time.Second):
		assert.FailNow(t, "waiter was not woken by PushBatch")
	}
}

func TestPending_ConcurrentProducersNoLostWakeup(t *testing.T) {
	const producers = 8
	const perProducer = 200

	p := NewPending[int]()
	var wg sync.WaitGroup
	for i := 0; i < producers; i++ {
		wg.Add(1)
		go func(base int) {
			defer wg.Done()
			for j := 0; j < perProducer; j++ {
				batch := []int{base*perProducer + j}
				p.PushBatch(&batch)
			}
		}(i)
	}

	allDone := make(chan struct{})
	go func() {
		wg.Wait()
		close(allDone)
	}()

	seen := make(map[int]bool)
	lastPerProducer := make(map[int]int)
	deadline := time.After(5 * time.Second)
	for len(seen) < producers*perProducer {
		select {
		case <-deadline:
			require.FailNow(t, "consumer starved", "saw %d events", len(seen))
		default:
		}
		items, _, err := p.WaitAndDrain(t.Context(), 50*time.Millisecond)
		require.NoError(t, err)
		for _, v := range items {
			producer := v / perProducer
			if last, ok := lastPerProducer[producer]; ok {
				assert.Greater(t, v, last, "per-producer order must be preserved")
			}
			lastPerProducer[producer] = v
			seen[v] = true
		}
	}

	<-allDone
	assert.Equal(t, 0, p.Len())
}
