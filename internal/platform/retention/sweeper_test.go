package retention

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
)

func TestSweepOnce(t *testing.T) {
	s := NewSweeper(time.Minute, zerolog.Nop(),
		Task{Name: "bids", Run: func(context.Context) (int, error) { return 3, nil }},
		Task{Name: "triages", Run: func(context.Context) (int, error) { return 0, nil }},
	)

	got, err := s.SweepOnce(context.Background())
	if err != nil {
		t.Fatalf("SweepOnce: %v", err)
	}
	if got["bids"] != 3 || got["triages"] != 0 || len(got) != 2 {
		t.Errorf("unexpected results %v", got)
	}
}

func TestSweepOnce_Error(t *testing.T) {
	boom := errors.New("boom")
	s := NewSweeper(time.Minute, zerolog.Nop(),
		Task{Name: "bids", Run: func(context.Context) (int, error) { return 1, nil }},
		Task{Name: "triages", Run: func(context.Context) (int, error) { return 0, boom }},
	)

	_, err := s.SweepOnce(context.Background())
	if !errors.Is(err, boom) {
		t.Fatalf("expected boom, got %v", err)
	}
	if err.Error() != "triages: boom" {
		t.Errorf("expected task name in error, got %q", err.Error())
	}
}

func TestSweepOnce_FailureDoesNotCancelSiblings(t *testing.T) {
	s := NewSweeper(time.Minute, zerolog.Nop(),
		Task{Name: "expire_bids", Run: func(context.Context) (int, error) {
			return 0, errors.New("db down")
		}},
		Task{Name: "purge_triages", Run: func(ctx context.Context) (int, error) {
			select {
			case <-ctx.Done():
				return 0, ctx.Err()
			case <-time.After(50 * time.Millisecond):
				return 4, nil
			}
		}},
	)

	got, err := s.SweepOnce(context.Background())
	if err == nil || err.Error() != "expire_bids: db down" {
		t.Fatalf("expected only the failing task's error, got %v", err)
	}
	if got["purge_triages"] != 4 {
		t.Errorf("expected purge_triages to complete, got %v", got)
	}
	if _, ok := got["expire_bids"]; ok {
		t.Errorf("failed task should have no result, got %v", got)
	}
}

func TestSweepOnce_JoinsErrors(t *testing.T) {
	first, second := errors.New("first"), errors.New("second")
	s := NewSweeper(time.Minute, zerolog.Nop(),
		Task{Name: "a", Run: func(context.Context) (int, error) { return 0, first }},
		Task{Name: "b", Run: func(context.Context) (int, error) { return 0, second }},
	)

	_, err := s.SweepOnce(context.Background())
	if !errors.Is(err, first) || !errors.Is(err, second) {
		t.Errorf("expected both errors, got %v", err)
	}
}

func TestRun_TicksUntilCancelled(t *testing.T) {
	var runs atomic.Int32
	s := NewSweeper(10*time.Millisecond, zerolog.Nop(),
		Task{Name: "count", Run: func(context.Context) (int, error) {
			runs.Add(1)
			return 1, nil
		}},
	)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- s.Run(ctx) }()

	deadline := time.After(2 * time.Second)
	for runs.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("expected at least 3 sweeps, got %d", runs.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run returned %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Run did not stop after cancel")
	}
}

func TestNewSweeper_DefaultInterval(t *testing.T) {
	s := NewSweeper(0, zerolog.Nop())
	if s.interval != 5*time.Minute {
		t.Errorf("expected default interval, got %s", s.interval)
	}
}
