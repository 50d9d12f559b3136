package triage

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type memoryRepo struct {
	mu    sync.RWMutex
	items map[string]*Triage
}

// NewMemoryRepo returns a Repository kept in process memory.
func NewMemoryRepo() Repository {
	return &memoryRepo{items: make(map[string]*Triage)}
}

func (r *memoryRepo) Create(_ context.Context, t *Triage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[t.ID]; ok {
		return fmt.Errorf("triage %s already exists", t.ID)
	}
	cp := *t
	r.items[t.ID] = &cp
	return nil
}

func (r *memoryRepo) GetByID(_ context.Context, id string) (*Triage, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.items[id]
	if !ok {
		return nil, fmt.Errorf("triage %s: %w", id, ErrNotFound)
	}
	cp := *t
	return &cp, nil
}

func (r *memoryRepo) Update(_ context.Context, t *Triage) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.items[t.ID]; !ok {
		return fmt.Errorf("triage %s: %w", t.ID, ErrNotFound)
	}
	cp := *t
	r.items[t.ID] = &cp
	return nil
}

func (r *memoryRepo) DeleteCreatedBefore(_ context.Context, cutoff time.Time) (int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for id, t := range r.items {
		if t.CreatedAt.Before(cutoff) {
			delete(r.items, id)
			n++
		}
	}
	return n, nil
}
