package events

import "sync"

const DefaultCapacity = 1000

// Ring keeps the most recent events up to a fixed capacity. The oldest
// event is overwritten once the ring is full.
type Ring struct {
	mu    sync.RWMutex
	buf   []Event
	next  int
	count int
}

func NewRing(capacity int) *Ring {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &Ring{buf: make([]Event, capacity)}
}

func (r *Ring) Add(e Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.buf[r.next] = e
	r.next = (r.next + 1) % len(r.buf)
	if r.count < len(r.buf) {
		r.count++
	}
}

func (r *Ring) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.count
}

// Newest returns up to limit events starting offset entries back from the
// most recent one, newest first.
func (r *Ring) Newest(offset, limit int) []Event {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if offset < 0 {
		offset = 0
	}
	if offset >= r.count || limit <= 0 {
		return []Event{}
	}
	n := r.count - offset
	if n > limit {
		n = limit
	}

	out := make([]Event, 0, n)
	size := len(r.buf)
	for i := 0; i < n; i++ {
		idx := (r.next - 1 - offset - i + 2*size) % size
		out = append(out, r.buf[idx])
	}
	return out
}
