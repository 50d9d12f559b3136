package events

import (
	"context"
	"encoding/json"
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

// groupExprs maps each grouping to its SQL label expression. Only these
// fixed strings are ever interpolated into queries.
var groupExprs = map[string]string{
	GroupNone:     `'` + labelAll + `'`,
	GroupCampaign: `COALESCE(utm_campaign, '` + labelNoCampaign + `')`,
	GroupSource:   `COALESCE(utm_source, '` + labelNoSource + `')`,
	GroupMedium:   `COALESCE(utm_medium, '` + labelNoMedium + `')`,
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

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func groupExpr(groupBy string) (string, error) {
	expr, ok := groupExprs[groupBy]
	if !ok {
		return "", fmt.Errorf("unknown grouping %q", groupBy)
	}
	return expr, nil
}

func (r *repoPG) Create(ctx context.Context, e *Event) error {
	properties := e.Properties
	if properties == nil {
		properties = map[string]interface{}{}
	}
	props, err := json.Marshal(properties)
	if err != nil {
		return fmt.Errorf("encode event properties: %w", err)
	}
	_, err = r.conn(ctx).Exec(ctx, `
		INSERT INTO telemetry_events (id, event_name, session_id, user_id,
			utm_source, utm_medium, utm_campaign, utm_content, utm_term,
			path, properties, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`,
		e.ID, e.Name, nullable(e.SessionID), nullable(e.UserID),
		nullable(e.UTM.Source), nullable(e.UTM.Medium), nullable(e.UTM.Campaign),
		nullable(e.UTM.Content), nullable(e.UTM.Term),
		nullable(e.Path), props, e.Timestamp)
	return err
}

func (r *repoPG) CountFunnel(ctx context.Context, w Window, groupBy string, names []string) ([]Count, error) {
	expr, err := groupExpr(groupBy)
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+expr+` AS grp, event_name,
			COUNT(*),
			COUNT(DISTINCT session_id) FILTER (WHERE session_id IS NOT NULL)
		FROM telemetry_events
		WHERE created_at >= $1 AND created_at < $2 AND event_name = ANY($3)
		GROUP BY grp, event_name
		ORDER BY grp, event_name`, w.From, w.To, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Count
	for rows.Next() {
		var c Count
		if err := rows.Scan(&c.Group, &c.Event, &c.Events, &c.Sessions); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repoPG) SumRevenue(ctx context.Context, w Window, groupBy string) ([]RevenueRow, error) {
	expr, err := groupExpr(groupBy)
	if err != nil {
		return nil, err
	}
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT `+expr+` AS grp,
			COALESCE(SUM((properties->>'agreedPrice')::numeric), 0)::float8,
			COALESCE(SUM((properties->>'platformFee')::numeric), 0)::float8,
			COALESCE(SUM((properties->>'doctorEarnings')::numeric), 0)::float8
		FROM telemetry_events
		WHERE created_at >= $1 AND created_at < $2 AND event_name = $3
		GROUP BY grp
		ORDER BY grp`, w.From, w.To, BookingConfirmed)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []RevenueRow
	for rows.Next() {
		var rr RevenueRow
		if err := rows.Scan(&rr.Group, &rr.GMV, &rr.PlatformFee, &rr.DoctorEarnings); err != nil {
			return nil, err
		}
		out = append(out, rr)
	}
	return out, rows.Err()
}

func (r *repoPG) CountDaily(ctx context.Context, w Window, names []string) ([]DayCount, error) {
	rows, err := r.conn(ctx).Query(ctx, `
		SELECT to_char(created_at AT TIME ZONE 'UTC', 'YYYY-MM-DD') AS day, event_name,
			COUNT(*),
			COUNT(DISTINCT session_id) FILTER (WHERE session_id IS NOT NULL)
		FROM telemetry_events
		WHERE created_at >= $1 AND created_at < $2 AND event_name = ANY($3)
		GROUP BY day, event_name
		ORDER BY day DESC, event_name`, w.From, w.To, names)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []DayCount
	for rows.Next() {
		var c DayCount
		if err := rows.Scan(&c.Day, &c.Event, &c.Events, &c.Sessions); err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, rows.Err()
}

func (r *repoPG) DeleteCreatedBefore(ctx context.Context, cutoff time.Time) (int, error) {
	tag, err := r.conn(ctx).Exec(ctx, `DELETE FROM telemetry_events WHERE created_at < $1`, cutoff)
	if err != nil {
		return 0, err
	}
	return int(tag.RowsAffected()), nil
}
