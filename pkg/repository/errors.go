package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

const (
	pgUniqueViolation      = "23505"
	pgSerializationFailure = "40001"
	pgDeadlockDetected     = "40P01"
)

// Errors names the domain errors a store reports for missing and
// conflicting rows.
type Errors struct {
	NotFound  error
	Duplicate error
}

// Map translates sql.ErrNoRows and unique violations into the domain
// errors. Any other error is returned as is.
func (e Errors) Map(err error) error {
	if err == nil {
		return nil
	}

	if errors.Is(err, sql.ErrNoRows) && e.NotFound != nil {
		return e.NotFound
	}

	if pgCode(err) == pgUniqueViolation && e.Duplicate != nil {
		return e.Duplicate
	}

	return err
}

// Retryable reports whether Postgres aborted the transaction in a way that
// rerunning it may resolve.
func Retryable(err error) bool {
	switch pgCode(err) {
	case pgSerializationFailure, pgDeadlockDetected:
		return true
	}
	return false
}

func pgCode(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
