package auction

import (
	"context"
	"time"
)

// MutateFunc changes a bid in place. Returning an error aborts the write.
type MutateFunc func(b *Bid) error

// BookFunc marks a bid accepted in place and returns the appointment to
// store with it.
type BookFunc func(b *Bid) (*Appointment, error)

type Repository interface {
	CreateBid(ctx context.Context, b *Bid) error
	GetBid(ctx context.Context, id string) (*Bid, error)
	ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Bid, int, error)
	// UpdateBid applies fn to the current stored bid and persists the result
	// without any concurrent write in between. Closed bids fail with
	// ErrConflict before fn runs.
	UpdateBid(ctx context.Context, id string, fn MutateFunc) (*Bid, error)
	// Accept applies fn to the current stored bid and stores the bid and
	// the returned appointment atomically. Closed bids fail with ErrConflict.
	Accept(ctx context.Context, id string, fn BookFunc) (*Bid, *Appointment, error)
	GetAppointment(ctx context.Context, bidID string) (*Appointment, error)
	// ExpireCreatedBefore marks open bids created before cutoff as expired.
	ExpireCreatedBefore(ctx context.Context, cutoff, now time.Time) (int, error)
}
