package triage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/telemed/telemed/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

// The full triage document lives in payload; specialty, confidence and
// created_at are copied into columns for reporting and retention.
type repoPG struct{ pool *pgxpool.Pool }

func NewRepoPG(pool *pgxpool.Pool) Repository {
	return &repoPG{pool: pool}
}

func (r *repoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

func (r *repoPG) Create(ctx context.Context, t *Triage) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode triage: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO triages (id, specialty, confidence, payload, created_at)
		VALUES ($1, $2, $3, $4, $5)`,
		t.ID, t.Specialty, t.Confidence, payload, t.CreatedAt)
	return err
}

func (r *repoPG) GetByID(ctx context.Context, id string) (*Triage, error) {
	var payload []byte
	err := r.conn(ctx).QueryRow(ctx, `SELECT payload FROM triages WHERE id = $1`, id).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("triage %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	var t Triage
	if err := json.Unmarshal(payload, &t); err != nil {
		return nil, fmt.Errorf("decode triage %s: %w", id, err)
	}
	return &t, nil
}

func (r *repoPG) Update(ctx context.Context, t *Triage) error {
	payload, err := json.Marshal(t)
	if err != nil {
		return fmt.Errorf("encode triage: %w", err)
	}
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE triages SET specialty = $2, confidence = $3, payload = $4
		WHERE id = $1`,
		t.ID, t.Specialty, t.Confidence, payload)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("triage %s: %w", t.ID, ErrNotFound)
	}
	return nil
}

func (r *repoPG) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM triages WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
