package integration

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/telemed/telemed/internal/domain/triage"
)

func TestTriageRepoPG_CreateAndValidate(t *testing.T) {
	ctx := context.Background()
	svc := triage.NewService(triage.NewRepoPG(migratedPool(t, "triage")), nil, nil)

	created, err := svc.Create(ctx, triage.CreateRequest{
		SymptomsText: "Dor no peito com falta de ar",
		Answers:      triage.Answers{"dor_peito": true},
	})
	if err != nil {
		t.Fatalf("Create: %v", err)
	}

	got, err := svc.Get(ctx, created.ID)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Specialty != created.Specialty || got.SymptomsText != created.SymptomsText {
		t.Errorf("payload did not round-trip: %+v", got)
	}
	if !got.Answers.Is("dor_peito") {
		t.Error("expected answers to be stored")
	}

	validated, err := svc.Validate(ctx, triage.ValidateRequest{
		TriageID: created.ID,
		Status:   triage.ValidationAgree,
		DoctorID: "SP-123456",
	})
	if err != nil {
		t.Fatalf("Validate: %v", err)
	}
	if validated.Validation == nil {
		t.Fatal("expected validation to be set")
	}

	got, _ = svc.Get(ctx, created.ID)
	if got.Validation == nil || got.Validation.Status != triage.ValidationAgree {
		t.Errorf("expected stored validation, got %+v", got.Validation)
	}
}

func TestTriageRepoPG_Missing(t *testing.T) {
	ctx := context.Background()
	repo := triage.NewRepoPG(migratedPool(t, "triage"))

	if _, err := repo.GetByID(ctx, "tri_missing"); !errors.Is(err, triage.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	err := repo.Update(ctx, &triage.Triage{ID: "tri_missing", Specialty: "Outros"})
	if !errors.Is(err, triage.ErrNotFound) {
		t.Errorf("expected ErrNotFound on update, got %v", err)
	}
}

func TestTriageRepoPG_DeleteCreatedBefore(t *testing.T) {
	ctx := context.Background()
	repo := triage.NewRepoPG(migratedPool(t, "triage"))

	now := time.Now().UTC()
	for id, at := range map[string]time.Time{
		"tri_old": now.Add(-48 * time.Hour),
		"tri_new": now,
	} {
		if err := repo.Create(ctx, &triage.Triage{ID: id, Specialty: "Clínica Geral", Confidence: 50, CreatedAt: at}); err != nil {
			t.Fatalf("Create %s: %v", id, err)
		}
	}

	n, err := repo.DeleteCreatedBefore(ctx, now.Add(-24*time.Hour))
	if err != nil {
		t.Fatalf("DeleteCreatedBefore: %v", err)
	}
	if n != 1 {
		t.Errorf("expected 1 deleted, got %d", n)
	}
	if _, err := repo.GetByID(ctx, "tri_old"); !errors.Is(err, triage.ErrNotFound) {
		t.Errorf("expected old triage to be gone, got %v", err)
	}
	if _, err := repo.GetByID(ctx, "tri_new"); err != nil {
		t.Errorf("expected new triage to remain, got %v", err)
	}
}
