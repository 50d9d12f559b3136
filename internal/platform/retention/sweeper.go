// Package retention runs periodic cleanup jobs: expiring stale bids and
// purging old triages.
package retention

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"
)

// Task is one cleanup job. Run returns the number of affected records.
type Task struct {
	Name string
	Run  func(ctx context.Context) (int, error)
}

// Sweeper runs its tasks every interval.
type Sweeper struct {
	tasks    []Task
	interval time.Duration
	logger   zerolog.Logger
}

func NewSweeper(interval time.Duration, logger zerolog.Logger, tasks ...Task) *Sweeper {
	if interval <= 0 {
		interval = 5 * time.Minute
	}
	return &Sweeper{tasks: tasks, interval: interval, logger: logger}
}

// SweepOnce runs every task concurrently and returns the affected count per
// successful task. A failing task does not cancel the others; all task
// errors are joined.
func (s *Sweeper) SweepOnce(ctx context.Context) (map[string]int, error) {
	var (
		mu      sync.Mutex
		results = make(map[string]int, len(s.tasks))
		errs    []error
	)

	var g errgroup.Group
	for _, t := range s.tasks {
		t := t
		g.Go(func() error {
			n, err := t.Run(ctx)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("%s: %w", t.Name, err))
				return nil
			}
			results[t.Name] = n
			return nil
		})
	}
	_ = g.Wait()
	return results, errors.Join(errs...)
}

// Run sweeps immediately and then on every tick until ctx is cancelled.
// Sweep errors are logged, never returned.
func (s *Sweeper) Run(ctx context.Context) error {
	s.logger.Info().Dur("interval", s.interval).Int("tasks", len(s.tasks)).Msg("retention sweeper started")

	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()

	for {
		s.sweep(ctx)
		select {
		case <-ctx.Done():
			s.logger.Info().Msg("retention sweeper stopped")
			return nil
		case <-ticker.C:
		}
	}
}

func (s *Sweeper) sweep(ctx context.Context) {
	results, err := s.SweepOnce(ctx)
	if err != nil && ctx.Err() == nil {
		s.logger.Error().Err(err).Msg("retention sweep failed")
	}
	for name, n := range results {
		if n > 0 {
			s.logger.Info().Str("task", name).Int("affected", n).Msg("retention sweep")
		}
	}
}
