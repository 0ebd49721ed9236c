package change

// Batch is the notify thread's local batch. It is owned by a single goroutine
// for one drain cycle and has a hard capacity so no handoff exceeds the limit.
type Batch struct {
	events []Event
	limit  int
}

// NewBatch returns an empty batch that holds at most limit events.
// A non-positive limit is treated as 1.
func NewBatch(limit int) *Batch {
	if limit <= 0 {
		limit = 1
	}
	return &Batch{
		events: make([]Event, 0, min(limit, 256)),
		limit:  limit,
	}
}

// Add appends ev and reports whether it was accepted. A full batch refuses the
// event; the caller keeps it for the next cycle.
func (b *Batch) Add(ev Event) bool {
	if len(b.events) >= b.limit {
		return false
	}
	b.events = append(b.events, ev)
	return true
}

func (b *Batch) Len() int {
	return len(b.events)
}

func (b *Batch) Limit() int {
	return b.limit
}

// Full reports whether the batch reached its limit.
func (b *Batch) Full() bool {
	return len(b.events) >= b.limit
}

// Events exposes the backing slice. Handing it to queue.Pending.PushBatch
// transfers its contents and leaves the batch empty.
func (b *Batch) Events() *[]Event {
	return &b.events
}

// Reset drops the contents and returns how many events were discarded.
func (b *Batch) Reset() int {
	n := len(b.events)
	clear(b.events)
	b.events = b.events[:0]
	return n
}
