package dbkit

import (
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
)

// IsSerializationFailure reports whether err is a Postgres serialization
// failure (SQLSTATE 40001) — the only retryable failure in the Ledger's
// write protocol.
func IsSerializationFailure(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.SerializationFailure
	}
	return false
}

// IsUniqueViolation reports whether err is a unique-constraint violation
// (SQLSTATE 23505) — used by Identity to detect an already-registered email.
func IsUniqueViolation(err error) bool {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code == pgerrcode.UniqueViolation
	}
	return false
}
