package triage

import (
	"context"
	"time"
)

type Repository interface {
	Create(ctx context.Context, t *Triage) error
	GetByID(ctx context.Context, id string) (*Triage, error)
	Update(ctx context.Context, t *Triage) error
	// DeleteCreatedBefore removes triages older than cutoff and returns how
	// many were removed.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
