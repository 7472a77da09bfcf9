package db

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

type contextKey string

const txKey contextKey = "db_tx"

// TxFromContext retrieves the active transaction from context, if any.
// Repositories consult this so that multi-row service operations join the
// surrounding transaction instead of running on the pool directly.
func TxFromContext(ctx context.Context) pgx.Tx {
	tx, _ := ctx.Value(txKey).(pgx.Tx)
	return tx
}

// Runner executes a function inside a database transaction. It exists as an
// interface so service tests can substitute a pass-through implementation.
type Runner interface {
	WithTx(ctx context.Context, fn func(ctx context.Context) error) error
}

// PoolRunner runs transactions against a pgx connection pool.
type PoolRunner struct {
	pool *pgxpool.Pool
}

func NewPoolRunner(pool *pgxpool.Pool) *PoolRunner {
	return &PoolRunner{pool: pool}
}

// WithTx begins a transaction, stores it in the context for repositories to
// pick up, and commits if fn returns nil. Any error rolls everything back.
func (r *PoolRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	if TxFromContext(ctx) != nil {
		// Already inside a transaction; join it.
		return fn(ctx)
	}

	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(context.WithValue(ctx, txKey, tx)); err != nil {
		return err
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// PassthroughRunner runs the function without a transaction. Used in tests
// with in-memory repositories.
type PassthroughRunner struct{}

func (PassthroughRunner) WithTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}
