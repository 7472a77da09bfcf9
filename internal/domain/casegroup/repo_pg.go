package casegroup

import (
	"context"
	"fmt"

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

const groupCols = `id, name, description, created_by, visibility, created_at, updated_at`

const groupColsG = `g.id, g.name, g.description, g.created_by, g.visibility, g.created_at, g.updated_at`

func scanGroup(row pgx.Row) (*CaseGroup, error) {
	var g CaseGroup
	err := row.Scan(&g.ID, &g.Name, &g.Description, &g.CreatedBy, &g.Visibility, &g.CreatedAt, &g.UpdatedAt)
	return &g, err
}

func (r *RepoPG) Create(ctx context.Context, g *CaseGroup) error {
	q := `INSERT INTO case_group (name, description, created_by, visibility)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at`
	return r.conn(ctx).QueryRow(ctx, q, g.Name, g.Description, g.CreatedBy, g.Visibility).
		Scan(&g.ID, &g.CreatedAt, &g.UpdatedAt)
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*CaseGroup, error) {
	q := fmt.Sprintf("SELECT %s FROM case_group WHERE id = $1", groupCols)
	g, err := scanGroup(r.conn(ctx).QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("case group not found")
		}
		return nil, err
	}
	g.SharedWith, err = r.listShares(ctx, id)
	return g, err
}

func (r *RepoPG) listShares(ctx context.Context, groupID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := r.conn(ctx).Query(ctx, "SELECT user_id FROM case_group_share WHERE group_id = $1", groupID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var ids []uuid.UUID
	for rows.Next() {
		var id uuid.UUID
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

func (r *RepoPG) Update(ctx context.Context, g *CaseGroup) error {
	q := `UPDATE case_group
		SET name = $2, description = $3, visibility = $4, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	return r.conn(ctx).QueryRow(ctx, q, g.ID, g.Name, g.Description, g.Visibility).Scan(&g.UpdatedAt)
}

func (r *RepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, "DELETE FROM case_group WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("case group not found")
	}
	return nil
}

func (r *RepoPG) ListVisible(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*CaseGroup, int, error) {
	where := `WHERE g.created_by = $1
		OR (g.visibility = 'SHARED' AND EXISTS (
			SELECT 1 FROM case_group_share s WHERE s.group_id = g.id AND s.user_id = $1))`

	var total int
	countQ := "SELECT COUNT(*) FROM case_group g " + where
	if err := r.conn(ctx).QueryRow(ctx, countQ, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM case_group g %s ORDER BY g.created_at DESC LIMIT $2 OFFSET $3",
		groupColsG, where)
	return r.list(ctx, q, total, userID, limit, offset)
}

func (r *RepoPG) ListAll(ctx context.Context, limit, offset int) ([]*CaseGroup, int, error) {
	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM case_group").Scan(&total); err != nil {
		return nil, 0, err
	}
	q := fmt.Sprintf("SELECT %s FROM case_group g ORDER BY g.created_at DESC LIMIT $1 OFFSET $2",
		groupColsG)
	return r.list(ctx, q, total, limit, offset)
}

func (r *RepoPG) list(ctx context.Context, q string, total int, args ...interface{}) ([]*CaseGroup, int, error) {
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*CaseGroup
	for rows.Next() {
		g, err := scanGroup(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, g)
	}
	return out, total, rows.Err()
}

func (r *RepoPG) ReplaceShares(ctx context.Context, groupID uuid.UUID, userIDs []uuid.UUID) error {
	if _, err := r.conn(ctx).Exec(ctx, "DELETE FROM case_group_share WHERE group_id = $1", groupID); err != nil {
		return err
	}
	for _, uid := range userIDs {
		_, err := r.conn(ctx).Exec(ctx,
			"INSERT INTO case_group_share (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			groupID, uid)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *RepoPG) ClearShares(ctx context.Context, groupID uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, "DELETE FROM case_group_share WHERE group_id = $1", groupID)
	return err
}
