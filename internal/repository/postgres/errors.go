package postgres

import (
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

// SQLSTATE codes the repositories branch on.
const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
)

// isNoRows reports a query that matched nothing.
func isNoRows(err error) bool {
	return errors.Is(err, pgx.ErrNoRows)
}

// isUniqueViolation reports a unique constraint conflict.
func isUniqueViolation(err error) bool {
	return sqlState(err) == codeUniqueViolation
}

// isForeignKeyViolation reports a write referencing a missing row.
func isForeignKeyViolation(err error) bool {
	return sqlState(err) == codeForeignKeyViolation
}

func sqlState(err error) string {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code
	}
	return ""
}
