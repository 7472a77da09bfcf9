package patient

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

func conn(ctx context.Context, pool *pgxpool.Pool) queryable {
	if tx := db.TxFromContext(ctx); tx != nil {
		return tx
	}
	return pool
}

type RepoPG struct {
	pool *pgxpool.Pool
}

func NewRepoPG(pool *pgxpool.Pool) *RepoPG {
	return &RepoPG{pool: pool}
}

const patientCols = `p.id, p.first_name, p.last_name, p.birth_date, p.owner_id, p.group_id,
	p.visibility, p.thumbnail_path, p.created_at, p.updated_at`

func scanPatient(row pgx.Row) (*Patient, error) {
	var p Patient
	err := row.Scan(
		&p.ID, &p.FirstName, &p.LastName, &p.BirthDate, &p.OwnerID, &p.GroupID,
		&p.Visibility, &p.ThumbnailPath, &p.CreatedAt, &p.UpdatedAt,
	)
	return &p, err
}

func (r *RepoPG) Create(ctx context.Context, p *Patient) error {
	q := `INSERT INTO patient (first_name, last_name, birth_date, owner_id, group_id, visibility, thumbnail_path)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at, updated_at`
	return conn(ctx, r.pool).QueryRow(ctx, q,
		p.FirstName, p.LastName, p.BirthDate, p.OwnerID, p.GroupID, p.Visibility, p.ThumbnailPath,
	).Scan(&p.ID, &p.CreatedAt, &p.UpdatedAt)
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Patient, error) {
	q := fmt.Sprintf("SELECT %s FROM patient p WHERE p.id = $1", patientCols)
	p, err := scanPatient(conn(ctx, r.pool).QueryRow(ctx, q, id))
	if err != nil {
		if err == pgx.ErrNoRows {
			return nil, fmt.Errorf("patient not found")
		}
		return nil, err
	}
	p.SharedWith, err = r.listShares(ctx, id)
	return p, err
}

func (r *RepoPG) listShares(ctx context.Context, patientID uuid.UUID) ([]uuid.UUID, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, "SELECT user_id FROM patient_share WHERE patient_id = $1", patientID)
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

func (r *RepoPG) Update(ctx context.Context, p *Patient) error {
	q := `UPDATE patient
		SET first_name = $2, last_name = $3, birth_date = $4, group_id = $5,
			visibility = $6, thumbnail_path = $7, updated_at = NOW()
		WHERE id = $1
		RETURNING updated_at`
	return conn(ctx, r.pool).QueryRow(ctx, q,
		p.ID, p.FirstName, p.LastName, p.BirthDate, p.GroupID, p.Visibility, p.ThumbnailPath,
	).Scan(&p.UpdatedAt)
}

func (r *RepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, "DELETE FROM patient WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("patient not found")
	}
	return nil
}

// visibleWhere is the single-filter visible set: ungrouped records are
// governed by their own visibility, grouped records delegate to the
// parent group's rules.
const visibleWhere = `
	(p.group_id IS NULL AND (
		p.owner_id = $1
		OR p.visibility = 'PUBLIC_ORG'
		OR (p.visibility = 'SHARED' AND EXISTS (
			SELECT 1 FROM patient_share ps WHERE ps.patient_id = p.id AND ps.user_id = $1))
	))
	OR (p.group_id IS NOT NULL AND (
		g.created_by = $1
		OR (g.visibility = 'SHARED' AND EXISTS (
			SELECT 1 FROM case_group_share gs WHERE gs.group_id = g.id AND gs.user_id = $1))
	))`

func (r *RepoPG) ListVisible(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	from := "FROM patient p LEFT JOIN case_group g ON g.id = p.group_id WHERE" + visibleWhere

	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, "SELECT COUNT(DISTINCT p.id) "+from, userID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT DISTINCT %s %s ORDER BY p.created_at DESC, p.id LIMIT $2 OFFSET $3", patientCols, from)
	return r.list(ctx, q, total, userID, limit, offset)
}

func (r *RepoPG) ListAll(ctx context.Context, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, "SELECT COUNT(*) FROM patient").Scan(&total); err != nil {
		return nil, 0, err
	}
	q := fmt.Sprintf("SELECT %s FROM patient p ORDER BY p.created_at DESC LIMIT $1 OFFSET $2", patientCols)
	return r.list(ctx, q, total, limit, offset)
}

func (r *RepoPG) ListByGroup(ctx context.Context, groupID uuid.UUID, limit, offset int) ([]*Patient, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, "SELECT COUNT(*) FROM patient WHERE group_id = $1", groupID).Scan(&total); err != nil {
		return nil, 0, err
	}
	q := fmt.Sprintf("SELECT %s FROM patient p WHERE p.group_id = $1 ORDER BY p.created_at DESC LIMIT $2 OFFSET $3", patientCols)
	return r.list(ctx, q, total, groupID, limit, offset)
}

func (r *RepoPG) list(ctx context.Context, q string, total int, args ...interface{}) ([]*Patient, int, error) {
	rows, err := conn(ctx, r.pool).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Patient
	for rows.Next() {
		p, err := scanPatient(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, p)
	}
	return out, total, rows.Err()
}

func (r *RepoPG) ReplaceShares(ctx context.Context, patientID uuid.UUID, userIDs []uuid.UUID) error {
	if _, err := conn(ctx, r.pool).Exec(ctx, "DELETE FROM patient_share WHERE patient_id = $1", patientID); err != nil {
		return err
	}
	for _, uid := range userIDs {
		_, err := conn(ctx, r.pool).Exec(ctx,
			"INSERT INTO patient_share (patient_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING",
			patientID, uid)
		if err != nil {
			return err
		}
	}
	return nil
}

func (r *RepoPG) ClearShares(ctx context.Context, patientID uuid.UUID) error {
	_, err := conn(ctx, r.pool).Exec(ctx, "DELETE FROM patient_share WHERE patient_id = $1", patientID)
	return err
}

// CountSharedWith excludes PUBLIC_ORG records from the tally, matching
// the established badge semantics.
func (r *RepoPG) CountSharedWith(ctx context.Context, userID uuid.UUID) (int, error) {
	q := `SELECT COUNT(DISTINCT p.id)
		FROM patient p
		LEFT JOIN case_group g ON g.id = p.group_id
		WHERE p.owner_id <> $1 AND (
			(p.group_id IS NULL AND p.visibility = 'SHARED' AND EXISTS (
				SELECT 1 FROM patient_share ps WHERE ps.patient_id = p.id AND ps.user_id = $1))
			OR (p.group_id IS NOT NULL AND g.visibility = 'SHARED' AND EXISTS (
				SELECT 1 FROM case_group_share gs WHERE gs.group_id = g.id AND gs.user_id = $1))
		)`
	var n int
	err := conn(ctx, r.pool).QueryRow(ctx, q, userID).Scan(&n)
	return n, err
}

// -- Comments --

type CommentRepoPG struct {
	pool *pgxpool.Pool
}

func NewCommentRepoPG(pool *pgxpool.Pool) *CommentRepoPG {
	return &CommentRepoPG{pool: pool}
}

const commentCols = `id, patient_id, author_id, body, created_at`

func scanComment(row pgx.Row) (*Comment, error) {
	var c Comment
	err := row.Scan(&c.ID, &c.PatientID, &c.AuthorID, &c.Body, &c.CreatedAt)
	return &c, err
}

func (r *CommentRepoPG) Create(ctx context.Context, c *Comment) error {
	q := `INSERT INTO comment (patient_id, author_id, body)
		VALUES ($1, $2, $3)
		RETURNING id, created_at`
	return conn(ctx, r.pool).QueryRow(ctx, q, c.PatientID, c.AuthorID, c.Body).Scan(&c.ID, &c.CreatedAt)
}

func (r *CommentRepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Comment, error) {
	q := fmt.Sprintf("SELECT %s FROM comment WHERE id = $1", commentCols)
	c, err := scanComment(conn(ctx, r.pool).QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("comment not found")
	}
	return c, err
}

func (r *CommentRepoPG) ListForPatient(ctx context.Context, patientID uuid.UUID, limit, offset int) ([]*Comment, int, error) {
	var total int
	if err := conn(ctx, r.pool).QueryRow(ctx, "SELECT COUNT(*) FROM comment WHERE patient_id = $1", patientID).Scan(&total); err != nil {
		return nil, 0, err
	}

	q := fmt.Sprintf("SELECT %s FROM comment WHERE patient_id = $1 ORDER BY created_at ASC LIMIT $2 OFFSET $3", commentCols)
	rows, err := conn(ctx, r.pool).Query(ctx, q, patientID, limit, offset)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Comment
	for rows.Next() {
		c, err := scanComment(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, c)
	}
	return out, total, rows.Err()
}

func (r *CommentRepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := conn(ctx, r.pool).Exec(ctx, "DELETE FROM comment WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("comment not found")
	}
	return nil
}
