package events

import (
	"context"
	"sort"
	"sync"
	"time"
)

// DefaultMemoryLimit caps the events kept by the in-memory repository.
const DefaultMemoryLimit = 50000

type memoryRepo struct {
	mu     sync.RWMutex
	events []Event
	limit  int
}

// NewMemoryRepo returns a Repository kept in process memory. Once limit
// events are stored the oldest are discarded.
func NewMemoryRepo(limit int) Repository {
	if limit <= 0 {
		limit = DefaultMemoryLimit
	}
	return &memoryRepo{limit: limit}
}

func (r *memoryRepo) Create(_ context.Context, e *Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, *e)
	if over := len(r.events) - r.limit; over > 0 {
		r.events = append([]Event(nil), r.events[over:]...)
	}
	return nil
}

// each calls fn for every stored event inside w whose name is in names.
// A nil names matches every event. The caller holds the read lock.
func (r *memoryRepo) each(w Window, names []string, fn func(e *Event)) {
	allowed := make(map[string]bool, len(names))
	for _, n := range names {
		allowed[n] = true
	}
	for i := range r.events {
		e := &r.events[i]
		if e.Timestamp.Before(w.From) || !e.Timestamp.Before(w.To) {
			continue
		}
		if names != nil && !allowed[e.Name] {
			continue
		}
		fn(e)
	}
}

type cellKey struct{ a, b string }

type cell struct {
	events   int
	sessions map[string]bool
}

func (c *cell) add(sessionID string) {
	c.events++
	if sessionID != "" {
		c.sessions[sessionID] = true
	}
}

func (r *memoryRepo) CountFunnel(_ context.Context, w Window, groupBy string, names []string) ([]Count, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cells := make(map[cellKey]*cell)
	r.each(w, names, func(e *Event) {
		k := cellKey{groupOf(groupBy, e.UTM), e.Name}
		c, ok := cells[k]
		if !ok {
			c = &cell{sessions: make(map[string]bool)}
			cells[k] = c
		}
		c.add(e.SessionID)
	})

	out := make([]Count, 0, len(cells))
	for k, c := range cells {
		out = append(out, Count{Group: k.a, Event: k.b, StepCount: StepCount{Events: c.events, Sessions: len(c.sessions)}})
	}
	return out, nil
}

func (r *memoryRepo) SumRevenue(_ context.Context, w Window, groupBy string) ([]RevenueRow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	sums := make(map[string]*RevenueRow)
	var order []string
	r.each(w, []string{BookingConfirmed}, func(e *Event) {
		g := groupOf(groupBy, e.UTM)
		row, ok := sums[g]
		if !ok {
			row = &RevenueRow{Group: g}
			sums[g] = row
			order = append(order, g)
		}
		row.GMV += amount(e.Properties["agreedPrice"])
		row.PlatformFee += amount(e.Properties["platformFee"])
		row.DoctorEarnings += amount(e.Properties["doctorEarnings"])
	})

	sort.Strings(order)
	out := make([]RevenueRow, 0, len(order))
	for _, g := range order {
		out = append(out, *sums[g])
	}
	return out, nil
}

func (r *memoryRepo) CountDaily(_ context.Context, w Window, names []string) ([]DayCount, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	cells := make(map[cellKey]*cell)
	r.each(w, names, func(e *Event) {
		k := cellKey{e.Timestamp.UTC().Format(dayLayout), e.Name}
		c, ok := cells[k]
		if !ok {
			c = &cell{sessions: make(map[string]bool)}
			cells[k] = c
		}
		c.add(e.SessionID)
	})

	out := make([]DayCount, 0, len(cells))
	for k, c := range cells {
		out = append(out, DayCount{Day: k.a, Event: k.b, StepCount: StepCount{Events: c.events, Sessions: len(c.sessions)}})
	}
	return out, nil
}

func (r *memoryRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	kept := r.events[:0]
	for _, e := range r.events {
		if e.Timestamp.Before(cutoff) {
			continue
		}
		kept = append(kept, e)
	}
	n := len(r.events) - len(kept)
	r.events = kept
	return n, nil
}
