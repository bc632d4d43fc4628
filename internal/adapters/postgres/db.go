package postgres

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var (
	readWrite = pgx.TxOptions{IsoLevel: pgx.ReadCommitted}
	readOnly  = pgx.TxOptions{IsoLevel: pgx.RepeatableRead, AccessMode: pgx.ReadOnly}
)

// DBExecutor runs store callbacks inside pgx transactions. Commit happens
// when fn returns nil; any error or panic rolls back.
type DBExecutor struct {
	pool *pgxpool.Pool
}

func NewDBExecutor(pool *pgxpool.Pool) *DBExecutor {
	return &DBExecutor{pool: pool}
}

func (db *DBExecutor) WithTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, db.pool, readWrite, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
}

// WithReadOnlyTransaction gives fn a repeatable-read snapshot, so a
// multi-statement read sees one consistent view of the table.
func (db *DBExecutor) WithReadOnlyTransaction(ctx context.Context, fn func(ctx context.Context, tx pgx.Tx) error) error {
	return pgx.BeginTxFunc(ctx, db.pool, readOnly, func(tx pgx.Tx) error {
		return fn(ctx, tx)
	})
}
