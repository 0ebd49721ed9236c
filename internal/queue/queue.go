package queue

import (
	"container/heap"
	"sync"
)

type entry[T any] struct {
	value    T
	priority int
	// seq breaks priority ties in insertion order
	seq uint64
}

// entries is a min-heap on (priority, seq).
type entries[T any] []entry[T]

func (e entries[T]) Len() int { return len(e) }

func (e entries[T]) Less(i, j int) bool {
	if e[i].priority != e[j].priority {
		return e[i].priority < e[j].priority
	}
	return e[i].seq < e[j].seq
}

func (e entries[T]) Swap(i, j int) { e[i], e[j] = e[j], e[i] }

func (e *entries[T]) Push(x any) { *e = append(*e, x.(entry[T])) }

func (e *entries[T]) Pop() any {
	old := *e
	last := old[len(old)-1]
	old[len(old)-1] = entry[T]{}
	*e = old[:len(old)-1]
	return last
}

// PriorityQueue is a mutex-guarded min-priority queue. Lower priorities come
// out first; equal priorities come out in insertion order.
type PriorityQueue[T any] struct {
	mu   sync.Mutex
	heap entries[T]
	seq  uint64
}

func NewPriorityQueue[T any]() *PriorityQueue[T] {
	return &PriorityQueue[T]{}
}

func (pq *PriorityQueue[T]) Len() int {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return len(pq.heap)
}

func (pq *PriorityQueue[T]) Enqueue(value T, priority int) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	pq.seq++
	heap.Push(&pq.heap, entry[T]{value: value, priority: priority, seq: pq.seq})
}

// Dequeue removes the lowest priority value. ok is false when empty.
func (pq *PriorityQueue[T]) Dequeue() (value T, ok bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if len(pq.heap) == 0 {
		return value, false
	}
	return heap.Pop(&pq.heap).(entry[T]).value, true
}

func (pq *PriorityQueue[T]) Peek() (value T, ok bool) {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	if len(pq.heap) == 0 {
		return value, false
	}
	return pq.heap[0].value, true
}

// DequeueAll empties the queue in priority order under a single lock, so a
// concurrent Enqueue lands either entirely before or entirely after the drain.
func (pq *PriorityQueue[T]) DequeueAll() []T {
	pq.mu.Lock()
	defer pq.mu.Unlock()
	values := make([]T, 0, len(pq.heap))
	for len(pq.heap) > 0 {
		values = append(values, heap.Pop(&pq.heap).(entry[T]).value)
	}
	return values
}
