package auction

import (
	"context"
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

const bidCols = `id, patient_id, specialty, amount_cents, mode, status,
	COALESCE(doctor_id, ''), COALESCE(consultation_id, ''), created_at, updated_at, expires_at`

func (r *repoPG) scanBid(row pgx.Row) (*Bid, error) {
	var b Bid
	err := row.Scan(&b.ID, &b.PatientID, &b.Specialty, &b.AmountCents, &b.Mode, &b.Status,
		&b.DoctorID, &b.ConsultationID, &b.CreatedAt, &b.UpdatedAt, &b.ExpiresAt)
	return &b, err
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func (r *repoPG) CreateBid(ctx context.Context, b *Bid) error {
	_, err := r.conn(ctx).Exec(ctx, `
		INSERT INTO bids (id, patient_id, specialty, amount_cents, mode, status,
			doctor_id, consultation_id, created_at, updated_at, expires_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		b.ID, b.PatientID, b.Specialty, b.AmountCents, b.Mode, b.Status,
		nullable(b.DoctorID), nullable(b.ConsultationID), b.CreatedAt, b.UpdatedAt, b.ExpiresAt)
	return err
}

func (r *repoPG) GetBid(ctx context.Context, id string) (*Bid, error) {
	b, err := r.scanBid(r.conn(ctx).QueryRow(ctx, `SELECT `+bidCols+` FROM bids WHERE id = $1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("bid %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return b, nil
}

func (r *repoPG) ListByPatient(ctx context.Context, patientID string, limit, offset int) ([]*Bid, int, error) {
	var total int
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT COUNT(*) FROM bids WHERE $1 = '' OR patient_id = $1`, patientID).Scan(&total)
	if err != nil {
		return nil, 0, err
	}

	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+bidCols+` FROM bids
		WHERE $1 = '' OR patient_id = $1
		ORDER BY created_at DESC, id DESC
		LIMIT $2 OFFSET $3`, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var items []*Bid
	for rows.Next() {
		b, err := r.scanBid(rows)
		if err != nil {
			return nil, 0, err
		}
		items = append(items, b)
	}
	return items, total, rows.Err()
}

// lockOpen loads the bid with a row lock. It must run inside a transaction.
func (r *repoPG) lockOpen(ctx context.Context, id string) (*Bid, error) {
	b, err := r.scanBid(r.conn(ctx).QueryRow(ctx, `SELECT `+bidCols+` FROM bids WHERE id = $1 FOR UPDATE`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("bid %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	if b.Closed() {
		return nil, fmt.Errorf("bid %s is %s: %w", id, b.Status, conflict("bid_closed"))
	}
	return b, nil
}

func (r *repoPG) writeBid(ctx context.Context, b *Bid) error {
	_, err := r.conn(ctx).Exec(ctx, `
		UPDATE bids SET amount_cents = $2, mode = $3, status = $4, doctor_id = $5,
			consultation_id = $6, updated_at = $7, expires_at = $8
		WHERE id = $1`,
		b.ID, b.AmountCents, b.Mode, b.Status, nullable(b.DoctorID),
		nullable(b.ConsultationID), b.UpdatedAt, b.ExpiresAt)
	return err
}

func (r *repoPG) UpdateBid(ctx context.Context, id string, fn MutateFunc) (*Bid, error) {
	var out *Bid
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		b, err := r.lockOpen(ctx, id)
		if err != nil {
			return err
		}
		if err := fn(b); err != nil {
			return err
		}
		if err := r.writeBid(ctx, b); err != nil {
			return fmt.Errorf("update bid: %w", err)
		}
		out = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *repoPG) Accept(ctx context.Context, id string, fn BookFunc) (*Bid, *Appointment, error) {
	var (
		out  *Bid
		appt *Appointment
	)
	err := db.InTx(ctx, r.pool, func(ctx context.Context) error {
		b, err := r.lockOpen(ctx, id)
		if err != nil {
			return err
		}
		a, err := fn(b)
		if err != nil {
			return err
		}
		if err := r.writeBid(ctx, b); err != nil {
			return fmt.Errorf("update bid: %w", err)
		}
		_, err = r.conn(ctx).Exec(ctx, `
			INSERT INTO appointments (id, bid_id, patient_id, physician_id, consultation_id,
				is_immediate, scheduled_at, created_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
			a.ID, a.BidID, a.PatientID, a.PhysicianID, a.ConsultationID,
			a.IsImmediate, a.ScheduledAt, a.CreatedAt)
		if err != nil {
			return fmt.Errorf("insert appointment: %w", err)
		}
		out, appt = b, a
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return out, appt, nil
}

func (r *repoPG) GetAppointment(ctx context.Context, bidID string) (*Appointment, error) {
	var a Appointment
	err := r.conn(ctx).QueryRow(ctx, `
		SELECT id, bid_id, patient_id, physician_id, consultation_id, is_immediate,
			scheduled_at, created_at
		FROM appointments WHERE bid_id = $1`, bidID).Scan(
		&a.ID, &a.BidID, &a.PatientID, &a.PhysicianID, &a.ConsultationID,
		&a.IsImmediate, &a.ScheduledAt, &a.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, fmt.Errorf("appointment for bid %s: %w", bidID, ErrNotFound)
	}
	if err != nil {
		return nil, err
	}
	return &a, nil
}

func (r *repoPG) ExpireCreatedBefore(ctx context.Context, cutoff, now time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `
		UPDATE bids SET status = 'expired', updated_at = $2
		WHERE created_at < $1 AND status NOT IN ('accepted', 'expired')`, cutoff, now)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
