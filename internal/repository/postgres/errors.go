package postgres

import (
	"database/sql"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/lib/pq"

	"github.com/therapyassist/therapy-api/internal/repository"
)

const (
	codeForeignKeyViolation = "23503"
	codeUniqueViolation     = "23505"
	codeExclusionViolation  = "23P01"
)

// sqlState extracts the SQLSTATE from either driver's error type.
func sqlState(err error) (code, message string, ok bool) {
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return string(pqErr.Code), pqErr.Message, true
	}
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		return pgErr.Code, pgErr.Message, true
	}
	return "", "", false
}

// wrapErr maps driver errors onto repository sentinels and wraps the rest
// as "failed to <op>".
func wrapErr(op string, err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, sql.ErrNoRows) {
		return repository.ErrNotFound
	}
	if code, msg, ok := sqlState(err); ok {
		switch code {
		case codeUniqueViolation, codeExclusionViolation:
			return fmt.Errorf("failed to %s: %w: %s", op, repository.ErrConflict, msg)
		case codeForeignKeyViolation:
			return fmt.Errorf("failed to %s: %w: %s", op, repository.ErrNotFound, msg)
		}
	}
	return fmt.Errorf("failed to %s: %w", op, err)
}

// requireAffected turns a zero-row mutation into ErrNotFound.
func requireAffected(op string, res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to %s: %w", op, err)
	}
	if n == 0 {
		return repository.ErrNotFound
	}
	return nil
}
