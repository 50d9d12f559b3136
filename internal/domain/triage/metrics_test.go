package triage

import (
	"math"
	"sync"
	"testing"
	"time"
)

func TestMetrics_RecordTriage(t *testing.T) {
	m := NewMetrics()
	m.RecordTriage("Neurologia")
	m.RecordTriage("Pneumologia")

	s := m.Snapshot(time.Now())
	if s.Today.Triages != 2 {
		t.Errorf("expected 2 triages, got %d", s.Today.Triages)
	}
	if s.Specialties["Neurologia"] != 19 {
		t.Errorf("expected Neurologia 19, got %d", s.Specialties["Neurologia"])
	}
	if s.Specialties[SpecialtyOther] != 11 {
		t.Errorf("expected Outros 11, got %d", s.Specialties[SpecialtyOther])
	}
	if _, ok := s.Specialties["Pneumologia"]; ok {
		t.Error("unknown specialties must not get their own bucket")
	}
}

func TestMetrics_PrecisionBounds(t *testing.T) {
	m := NewMetrics()
	m.RecordValidation(ValidationAgree)
	if p := m.Snapshot(time.Now()).Today.Precision; math.Abs(p-0.851) > 1e-9 {
		t.Errorf("expected 0.851 after agree, got %v", p)
	}

	for i := 0; i < 500; i++ {
		m.RecordValidation(ValidationAgree)
	}
	if p := m.Snapshot(time.Now()).Today.Precision; p != 0.99 {
		t.Errorf("expected precision capped at 0.99, got %v", p)
	}

	for i := 0; i < 500; i++ {
		m.RecordValidation(ValidationAdjust)
	}
	if p := m.Snapshot(time.Now()).Today.Precision; p != 0.50 {
		t.Errorf("expected precision floored at 0.50, got %v", p)
	}
}

func TestMetrics_AverageMinutes(t *testing.T) {
	tests := []struct {
		triages int
		want    float64
	}{
		{0, 4.2},
		{10, 4.0},
		{33, 3.5},
		{500, 1.5},
	}
	for _, tt := range tests {
		m := NewMetrics()
		for i := 0; i < tt.triages; i++ {
			m.RecordTriage(SpecialtyGeneral)
		}
		if got := m.Snapshot(time.Now()).Today.AvgMinutes; got != tt.want {
			t.Errorf("%d triages: avg minutes = %v, want %v", tt.triages, got, tt.want)
		}
	}
}

func TestMetrics_SnapshotIsCopy(t *testing.T) {
	m := NewMetrics()
	s := m.Snapshot(time.Now())
	s.Specialties["Neurologia"] = 1000
	if m.Snapshot(time.Now()).Specialties["Neurologia"] == 1000 {
		t.Error("snapshot must not alias internal state")
	}
}

func TestMetrics_Concurrent(t *testing.T) {
	m := NewMetrics()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			m.RecordTriage("Cardiologia")
			m.RecordValidation(ValidationAgree)
			_ = m.Snapshot(time.Now())
		}()
	}
	wg.Wait()
	if got := m.Snapshot(time.Now()).Today.Triages; got != 50 {
		t.Errorf("expected 50 triages, got %d", got)
	}
}
