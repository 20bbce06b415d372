package db

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/genetica/genetica/internal/platform/apperr"
)

func TestTxFromContext_Empty(t *testing.T) {
	if tx := TxFromContext(context.Background()); tx != nil {
		t.Errorf("expected nil tx, got %v", tx)
	}
	if got := LockClause(context.Background()); got != "" {
		t.Errorf("expected empty lock clause, got %q", got)
	}
}

func TestWithTx_NilKeepsContext(t *testing.T) {
	ctx := context.Background()
	if WithTx(ctx, nil) != ctx {
		t.Error("expected WithTx(nil) to return the same context")
	}
}

func TestTranslateError(t *testing.T) {
	tests := []struct {
		name string
		in   error
		want error
	}{
		{"no rows", pgx.ErrNoRows, apperr.ErrNotFound},
		{"unique", &pgconn.PgError{Code: "23505", ConstraintName: "individual_birth_id_key"}, apperr.ErrConflict},
		{"fk", &pgconn.PgError{Code: "23503", ConstraintName: "individual_record_id_fkey"}, apperr.ErrNotFound},
		{"xor", &pgconn.PgError{Code: "23514", ConstraintName: "personal_history_subject_xor"}, apperr.ErrInvalidSubjectBinding},
		{"self pair", &pgconn.PgError{Code: "23514", ConstraintName: "couple_distinct_members"}, apperr.ErrSelfPairing},
		{"wrapped", fmt.Errorf("insert: %w", &pgconn.PgError{Code: "23505"}), apperr.ErrConflict},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := TranslateError(tt.in); !errors.Is(got, tt.want) {
				t.Errorf("TranslateError() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestTranslateError_CheckViolationIsValidation(t *testing.T) {
	err := TranslateError(&pgconn.PgError{Code: "23514", ConstraintName: "individual_age_check", ColumnName: "age"})
	var ve *apperr.ValidationError
	if !errors.As(err, &ve) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestIsUniqueViolation(t *testing.T) {
	err := &pgconn.PgError{Code: "23505", ConstraintName: "clinical_record_case_number_key"}
	if !IsUniqueViolation(err, "clinical_record_case_number_key") {
		t.Error("expected match on constraint name")
	}
	if !IsUniqueViolation(err, "") {
		t.Error("expected match on any constraint")
	}
	if IsUniqueViolation(err, "other") {
		t.Error("expected no match on different constraint")
	}
	if IsUniqueViolation(errors.New("x"), "") {
		t.Error("expected no match on plain error")
	}
}
