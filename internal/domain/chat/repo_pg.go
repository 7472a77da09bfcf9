package chat

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

const messageCols = `id, sender_id, receiver_id, content, read, created_at`

func scanMessage(row pgx.Row) (*Message, error) {
	var m Message
	err := row.Scan(&m.ID, &m.SenderID, &m.ReceiverID, &m.Content, &m.Read, &m.CreatedAt)
	return &m, err
}

func (r *RepoPG) Create(ctx context.Context, m *Message) error {
	q := `INSERT INTO message (sender_id, receiver_id, content, read)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at`
	return r.conn(ctx).QueryRow(ctx, q, m.SenderID, m.ReceiverID, m.Content, m.Read).
		Scan(&m.ID, &m.CreatedAt)
}

func (r *RepoPG) ListBetween(ctx context.Context, a, b uuid.UUID) ([]*Message, error) {
	q := fmt.Sprintf(`SELECT %s FROM message
		WHERE (sender_id = $1 AND receiver_id = $2) OR (sender_id = $2 AND receiver_id = $1)
		ORDER BY created_at ASC, id ASC`, messageCols)
	rows, err := r.conn(ctx).Query(ctx, q, a, b)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*Message
	for rows.Next() {
		m, err := scanMessage(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

func (r *RepoPG) MarkConversationRead(ctx context.Context, receiver, peer uuid.UUID) (int64, error) {
	tag, err := r.conn(ctx).Exec(ctx,
		"UPDATE message SET read = TRUE WHERE receiver_id = $1 AND sender_id = $2 AND read = FALSE",
		receiver, peer)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func (r *RepoPG) MarkRead(ctx context.Context, id uuid.UUID) error {
	_, err := r.conn(ctx).Exec(ctx, "UPDATE message SET read = TRUE WHERE id = $1", id)
	return err
}

func (r *RepoPG) CountUnread(ctx context.Context, receiver uuid.UUID) (int, error) {
	var n int
	err := r.conn(ctx).QueryRow(ctx,
		"SELECT COUNT(*) FROM message WHERE receiver_id = $1 AND read = FALSE", receiver).Scan(&n)
	return n, err
}
