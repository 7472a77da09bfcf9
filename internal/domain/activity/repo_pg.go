package activity

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/smilehealth/smilehealth/internal/platform/db"
)

type queryable interface {
	Query(ctx context.Context, sql string, args ...interface{}) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...interface{}) pgx.Row
	Exec(ctx context.Context, sql string, args ...interface{}) (pgconn.CommandTag, error)
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

func (r *RepoPG) conn(ctx context.Context) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return r.pool
}

const entryCols = `id, actor_id, action, target_type, target_id, target_label, details, created_at`

func scanEntry(row pgx.Row) (*Entry, error) {
	var e Entry
	err := row.Scan(
		&e.ID, &e.ActorID, &e.Action, &e.TargetType, &e.TargetID,
		&e.TargetLabel, &e.Details, &e.CreatedAt,
	)
	return &e, err
}

func (r *RepoPG) Create(ctx context.Context, e *Entry) error {
	q := `INSERT INTO activity_log (actor_id, action, target_type, target_id, target_label, details)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at`
	return r.conn(ctx).QueryRow(ctx, q,
		e.ActorID, e.Action, e.TargetType, e.TargetID, e.TargetLabel, e.Details,
	).Scan(&e.ID, &e.CreatedAt)
}

func (r *RepoPG) Search(ctx context.Context, params SearchParams, limit, offset int) ([]*Entry, int, error) {
	var where []string
	var args []interface{}
	arg := func(v interface{}) string {
		args = append(args, v)
		return fmt.Sprintf("$%d", len(args))
	}

	if params.ActorID != uuid.Nil {
		where = append(where, "actor_id = "+arg(params.ActorID))
	}
	if params.Action != "" {
		where = append(where, "action = "+arg(params.Action))
	}
	if params.TargetType != "" {
		where = append(where, "target_type = "+arg(params.TargetType))
	}
	if params.TargetID != uuid.Nil {
		where = append(where, "target_id = "+arg(params.TargetID))
	}

	clause := ""
	if len(where) > 0 {
		clause = " WHERE " + strings.Join(where, " AND ")
	}

	var total int
	countQ := "SELECT COUNT(*) FROM activity_log" + clause
	if err := r.conn(ctx).QueryRow(ctx, countQ, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count activity: %w", err)
	}

	q := fmt.Sprintf("SELECT %s FROM activity_log%s ORDER BY created_at DESC LIMIT %s OFFSET %s",
		entryCols, clause, arg(limit), arg(offset))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("search activity: %w", err)
	}
	defer rows.Close()

	var out []*Entry
	for rows.Next() {
		e, err := scanEntry(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, e)
	}
	return out, total, rows.Err()
}
