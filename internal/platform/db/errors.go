package db

import (
	"errors"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/genetica/genetica/internal/platform/apperr"
)

const (
	codeUniqueViolation     = "23505"
	codeForeignKeyViolation = "23503"
	codeCheckViolation      = "23514"
)

// IsUniqueViolation reports whether err is a unique violation on the named
// constraint. An empty constraint matches any unique violation.
func IsUniqueViolation(err error, constraint string) bool {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) || pgErr.Code != codeUniqueViolation {
		return false
	}
	return constraint == "" || pgErr.ConstraintName == constraint
}

// TranslateError maps driver errors onto the apperr taxonomy. Errors it does
// not recognise are returned unchanged.
func TranslateError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, pgx.ErrNoRows) {
		return apperr.ErrNotFound
	}

	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case codeUniqueViolation:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, apperr.ErrConflict)
	case codeForeignKeyViolation:
		return fmt.Errorf("%s: %w", pgErr.ConstraintName, apperr.ErrNotFound)
	case codeCheckViolation:
		switch {
		case strings.HasSuffix(pgErr.ConstraintName, "_subject_xor"):
			return apperr.ErrInvalidSubjectBinding
		case pgErr.ConstraintName == "couple_distinct_members":
			return apperr.ErrSelfPairing
		}
		return apperr.Invalid(pgErr.ColumnName, "violates %s", pgErr.ConstraintName)
	}
	return err
}
