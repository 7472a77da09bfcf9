package media

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

const mediaCols = `id, patient_id, uploaded_by, kind, file_name, path, size, content_type, created_at`

func scanMedia(row pgx.Row) (*Media, error) {
	var m Media
	err := row.Scan(
		&m.ID, &m.PatientID, &m.UploadedBy, &m.Kind, &m.FileName,
		&m.Path, &m.Size, &m.ContentType, &m.CreatedAt,
	)
	return &m, err
}

func (r *RepoPG) Create(ctx context.Context, m *Media) error {
	q := `INSERT INTO media (patient_id, uploaded_by, kind, file_name, path, size, content_type)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING id, created_at`
	return r.conn(ctx).QueryRow(ctx, q,
		m.PatientID, m.UploadedBy, m.Kind, m.FileName, m.Path, m.Size, m.ContentType,
	).Scan(&m.ID, &m.CreatedAt)
}

func (r *RepoPG) GetByID(ctx context.Context, id uuid.UUID) (*Media, error) {
	q := fmt.Sprintf("SELECT %s FROM media WHERE id = $1", mediaCols)
	m, err := scanMedia(r.conn(ctx).QueryRow(ctx, q, id))
	if err == pgx.ErrNoRows {
		return nil, fmt.Errorf("media not found")
	}
	return m, err
}

func (r *RepoPG) ListForPatient(ctx context.Context, patientID uuid.UUID, kind Kind, limit, offset int) ([]*Media, int, error) {
	where := "WHERE patient_id = $1"
	args := []interface{}{patientID}
	if kind != "" {
		args = append(args, kind)
		where += fmt.Sprintf(" AND kind = $%d", len(args))
	}

	var total int
	if err := r.conn(ctx).QueryRow(ctx, "SELECT COUNT(*) FROM media "+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	args = append(args, limit, offset)
	q := fmt.Sprintf("SELECT %s FROM media %s ORDER BY created_at DESC LIMIT $%d OFFSET $%d",
		mediaCols, where, len(args)-1, len(args))
	rows, err := r.conn(ctx).Query(ctx, q, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []*Media
	for rows.Next() {
		m, err := scanMedia(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, m)
	}
	return out, total, rows.Err()
}

// PathsForPatient lists the stored blob paths of every media row tied
// to the patient, so callers can purge storage alongside a cascade.
func (r *RepoPG) PathsForPatient(ctx context.Context, patientID uuid.UUID) ([]string, error) {
	rows, err := r.conn(ctx).Query(ctx, "SELECT path FROM media WHERE patient_id = $1", patientID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (r *RepoPG) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.conn(ctx).Exec(ctx, "DELETE FROM media WHERE id = $1", id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("media not found")
	}
	return nil
}
