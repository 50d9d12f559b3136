package auction

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/telemed/telemed/pkg/pagination"
)

type memoryRepo struct {
	mu           sync.RWMutex
	bids         map[string]*Bid
	appointments map[string]*Appointment
}

// NewMemoryRepo returns a Repository kept in process memory.
func NewMemoryRepo() Repository {
	return &memoryRepo{
		bids:         make(map[string]*Bid),
		appointments: make(map[string]*Appointment),
	}
}

func (r *memoryRepo) CreateBid(_ context.Context, b *Bid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.bids[b.ID]; ok {
		return fmt.Errorf("bid %s already exists", b.ID)
	}
	cp := *b
	r.bids[b.ID] = &cp
	return nil
}

func (r *memoryRepo) GetBid(_ context.Context, id string) (*Bid, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	b, ok := r.bids[id]
	if !ok {
		return nil, fmt.Errorf("bid %s: %w", id, ErrNotFound)
	}
	cp := *b
	return &cp, nil
}

func (r *memoryRepo) ListByPatient(_ context.Context, patientID string, limit, offset int) ([]*Bid, int, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var matched []*Bid
	for _, b := range r.bids {
		if patientID == "" || b.PatientID == patientID {
			cp := *b
			matched = append(matched, &cp)
		}
	}
	sort.Slice(matched, func(i, j int) bool {
		if matched[i].CreatedAt.Equal(matched[j].CreatedAt) {
			return matched[i].ID > matched[j].ID
		}
		return matched[i].CreatedAt.After(matched[j].CreatedAt)
	})

	total := len(matched)
	start, end := pagination.Params{Limit: limit, Offset: offset}.Window(total)
	return matched[start:end], total, nil
}

// open returns the stored bid when it exists and is still open. The caller
// holds the write lock.
func (r *memoryRepo) open(id string) (*Bid, error) {
	cur, ok := r.bids[id]
	if !ok {
		return nil, fmt.Errorf("bid %s: %w", id, ErrNotFound)
	}
	if cur.Closed() {
		return nil, fmt.Errorf("bid %s is %s: %w", id, cur.Status, conflict("bid_closed"))
	}
	return cur, nil
}

func (r *memoryRepo) UpdateBid(_ context.Context, id string, fn MutateFunc) (*Bid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, err := r.open(id)
	if err != nil {
		return nil, err
	}
	next := *cur
	if err := fn(&next); err != nil {
		return nil, err
	}
	r.bids[id] = &next
	out := next
	return &out, nil
}

func (r *memoryRepo) Accept(_ context.Context, id string, fn BookFunc) (*Bid, *Appointment, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, err := r.open(id)
	if err != nil {
		return nil, nil, err
	}
	next := *cur
	appt, err := fn(&next)
	if err != nil {
		return nil, nil, err
	}
	stored := *appt
	r.bids[id] = &next
	r.appointments[id] = &stored
	b := next
	return &b, appt, nil
}

func (r *memoryRepo) GetAppointment(_ context.Context, bidID string) (*Appointment, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.appointments[bidID]
	if !ok {
		return nil, fmt.Errorf("appointment for bid %s: %w", bidID, ErrNotFound)
	}
	cp := *a
	return &cp, nil
}

func (r *memoryRepo) ExpireCreatedBefore(_ context.Context, cutoff, now time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, b := range r.bids {
		if !b.Closed() && b.CreatedAt.Before(cutoff) {
			b.Status = StatusExpired
			b.UpdatedAt = now
			n++
		}
	}
	return n, nil
}
