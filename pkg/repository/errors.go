package repository

import (
	"database/sql"
	"errors"

	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the stores distinguish.
const (
	UniqueViolation     = "23505"
	ForeignKeyViolation = "23503"
)

// MapError maps sql.ErrNoRows to notFound and unique violations to
// duplicate. Anything else is returned as is.
func MapError(err error, notFound, duplicate error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, sql.ErrNoRows):
		return notFound
	case Violates(err, UniqueViolation):
		return duplicate
	default:
		return err
	}
}

// Violates reports whether err is a PostgreSQL error with the given SQLSTATE.
func Violates(err error, code string) bool {
	var pgErr *pgconn.PgError
	return errors.As(err, &pgErr) && pgErr.Code == code
}
