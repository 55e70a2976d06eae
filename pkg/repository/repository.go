// Package repository holds the small set of database/sql helpers the stores
// are written against: retried transactions, typed row scanning and
// single-row statements.
package repository

import (
	"context"
	"database/sql"
	"fmt"
)

// maxTxAttempts bounds how often WithTx reruns fn after a serialization
// failure or deadlock.
const maxTxAttempts = 3

// DB is implemented by *sql.DB, *sql.Tx and *sql.Conn.
type DB interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// Scanner is satisfied by *sql.Row and *sql.Rows.
type Scanner interface {
	Scan(dest ...any) error
}

// ScanFunc reads one entity from a row.
type ScanFunc[T any] func(Scanner) (T, error)

// WithTx runs fn inside a transaction and commits when it returns nil.
// fn is rerun from the start, in a new transaction, when Postgres aborts it
// as a serialization failure or deadlock, so it must not have side effects
// outside tx.
func WithTx[T any](ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) (T, error)) (T, error) {
	var (
		zero T
		err  error
	)

	for attempt := 1; attempt <= maxTxAttempts; attempt++ {
		var result T
		result, err = runTx(ctx, db, fn)
		if err == nil {
			return result, nil
		}
		if !Retryable(err) || ctx.Err() != nil {
			return zero, err
		}
	}

	return zero, fmt.Errorf("transaction aborted after %d attempts: %w", maxTxAttempts, err)
}

func runTx[T any](ctx context.Context, db *sql.DB, fn func(tx *sql.Tx) (T, error)) (T, error) {
	var zero T

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		return zero, err
	}
	defer tx.Rollback()

	result, err := fn(tx)
	if err != nil {
		return zero, err
	}

	if err := tx.Commit(); err != nil {
		return zero, err
	}
	return result, nil
}

// Get scans the single row returned by query. A missing row surfaces as
// sql.ErrNoRows.
func Get[T any](ctx context.Context, db DB, query string, args []any, scan ScanFunc[T]) (T, error) {
	return scan(db.QueryRowContext(ctx, query, args...))
}

// Select scans every row returned by query. No rows yields an empty, non-nil slice.
func Select[T any](ctx context.Context, db DB, query string, args []any, scan ScanFunc[T]) ([]T, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	results := make([]T, 0)
	for rows.Next() {
		item, err := scan(rows)
		if err != nil {
			return nil, err
		}
		results = append(results, item)
	}

	return results, rows.Err()
}

// Count runs a single-column count query.
func Count(ctx context.Context, db DB, query string, args []any) (int, error) {
	var n int
	if err := db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, err
	}
	return n, nil
}

// ExecOne runs a statement that must affect exactly one row; zero rows
// surfaces as sql.ErrNoRows.
func ExecOne(ctx context.Context, db DB, query string, args ...any) error {
	result, err := db.ExecContext(ctx, query, args...)
	if err != nil {
		return err
	}

	n, err := result.RowsAffected()
	if err != nil {
		return err
	}

	switch n {
	case 1:
		return nil
	case 0:
		return sql.ErrNoRows
	default:
		return fmt.Errorf("expected one row affected, got %d", n)
	}
}

// ForUpdate appends a row lock clause to a single-row select.
func ForUpdate(query string) string {
	return query + " FOR UPDATE"
}
