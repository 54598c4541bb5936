// Package store persists import jobs, products, and row errors in PostgreSQL
// via pgx. It implements the importer storage interfaces and the upload
// ledger.
package store

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/skuflow/skuflow/internal/importer"
)

// DBTX is the interface for database operations.
// Satisfied by both *pgxpool.Pool and pgx.Tx.
type DBTX interface {
	Exec(context.Context, string, ...interface{}) (pgconn.CommandTag, error)
	Query(context.Context, string, ...interface{}) (pgx.Rows, error)
	QueryRow(context.Context, string, ...interface{}) pgx.Row
}

// Store is the PostgreSQL-backed persistence layer.
type Store struct {
	pool *pgxpool.Pool
}

// New creates a Store. The caller owns the pool lifetime.
func New(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// InTx runs fn inside a single database transaction, rolling back when fn
// returns an error. This is the atomicity boundary for a chunk run: product
// writes, row errors, and the cursor update all commit together or not at
// all.
func (s *Store) InTx(ctx context.Context, fn func(importer.Tx) error) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin transaction: %w", err)
	}
	defer tx.Rollback(ctx)

	if err := fn(&queries{db: tx}); err != nil {
		return err
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit transaction: %w", err)
	}
	return nil
}

// queries implements the read and write operations over a pool or
// transaction.
type queries struct {
	db DBTX
}
