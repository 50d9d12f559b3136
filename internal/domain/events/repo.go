package events

import (
	"context"
	"time"
)

// Repository stores tracked events and answers the funnel aggregations.
type Repository interface {
	Create(ctx context.Context, e *Event) error
	// CountFunnel counts events and distinct sessions per group and event
	// name inside w, restricted to names.
	CountFunnel(ctx context.Context, w Window, groupBy string, names []string) ([]Count, error)
	// SumRevenue sums agreedPrice, platformFee and doctorEarnings of
	// booking_confirmed events per group inside w.
	SumRevenue(ctx context.Context, w Window, groupBy string) ([]RevenueRow, error)
	// CountDaily counts events and distinct sessions per UTC day and event
	// name inside w, restricted to names.
	CountDaily(ctx context.Context, w Window, names []string) ([]DayCount, error)
	// DeleteCreatedBefore removes events older than cutoff.
	DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error)
}
