package errors

import (
	"context"
	"database/sql"
	"errors"

	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type pgMapping struct {
	code      ErrorCode
	message   string
	withField bool
}

// pgErrors maps the SQLSTATEs the postgres job store can hit. Anything else is internal.
var pgErrors = map[string]pgMapping{
	pgerrcode.UniqueViolation:      {ErrCodeConflict, "job record already exists", true},
	pgerrcode.SerializationFailure: {ErrCodeConflict, "concurrent job record update", false},
	pgerrcode.DeadlockDetected:     {ErrCodeConflict, "concurrent job record update", false},
	pgerrcode.LockNotAvailable:     {ErrCodeConflict, "concurrent job record update", false},
	pgerrcode.CheckViolation:       {ErrCodeValidation, "job record violates a table constraint", true},
	pgerrcode.NotNullViolation:     {ErrCodeValidation, "job record violates a table constraint", true},
}

// MapDBError turns driver and context errors into AppErrors, keeping err as the cause.
// Errors it does not recognise are returned unchanged.
func MapDBError(err error) error {
	var pgErr *pgconn.PgError
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.DeadlineExceeded):
		return Wrap(err, ErrCodeTimeout, "database operation timed out")
	case errors.Is(err, context.Canceled):
		return Wrap(err, ErrCodeCanceled, "database operation canceled")
	case errors.Is(err, pgx.ErrNoRows), errors.Is(err, sql.ErrNoRows):
		return Wrap(err, ErrCodeNotFound, "job record not found")
	case errors.As(err, &pgErr):
		m, ok := pgErrors[pgErr.Code]
		if !ok {
			return Wrap(pgErr, ErrCodeInternal, "database error")
		}
		appErr := Wrap(pgErr, m.code, m.message)
		if m.withField {
			appErr.Field = pgErr.ColumnName
		}
		return appErr
	default:
		return err
	}
}
