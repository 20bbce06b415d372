package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"
)

var (
	ErrInvalidSubjectBinding = errors.New("record must reference exactly one of individual or couple")
	ErrSelfPairing           = errors.New("a couple requires two distinct individuals")
	ErrDuplicateCaseNumber   = errors.New("case number already in use")
	ErrNotFound              = errors.New("not found")
	ErrForbidden             = errors.New("forbidden")
	ErrConflict              = errors.New("conflict")
	ErrInvalidState          = errors.New("invalid workflow state")
)

// FieldError describes one violated field rule.
type FieldError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// ValidationError collects every field rule violated by a write. Nothing is
// persisted when one is returned.
type ValidationError struct {
	Errors []FieldError `json:"errors"`
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Field+": "+fe.Reason)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

// Add appends a violation.
func (e *ValidationError) Add(field, format string, args ...interface{}) {
	e.Errors = append(e.Errors, FieldError{Field: field, Reason: fmt.Sprintf(format, args...)})
}

// Has reports whether field has at least one violation.
func (e *ValidationError) Has(field string) bool {
	for _, fe := range e.Errors {
		if fe.Field == field {
			return true
		}
	}
	return false
}

// Err returns nil when no violation was recorded, so callers can
// `return v.Err()` at the end of a validation pass.
func (e *ValidationError) Err() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// Merge folds the violations of other into e under a field prefix.
func (e *ValidationError) Merge(prefix string, other error) {
	var ve *ValidationError
	if !errors.As(other, &ve) {
		return
	}
	for _, fe := range ve.Errors {
		if prefix != "" {
			fe.Field = prefix + "." + fe.Field
		}
		e.Errors = append(e.Errors, fe)
	}
}

// Invalid builds a single-field ValidationError.
func Invalid(field, format string, args ...interface{}) error {
	v := &ValidationError{}
	v.Add(field, format, args...)
	return v
}

// NotFound wraps ErrNotFound with the missing entity name.
func NotFound(entity string) error {
	return fmt.Errorf("%s %w", entity, ErrNotFound)
}

// Status maps an error to its HTTP status code.
func Status(err error) int {
	var ve *ValidationError
	switch {
	case err == nil:
		return http.StatusOK
	case errors.As(err, &ve):
		return http.StatusUnprocessableEntity
	case errors.Is(err, ErrInvalidSubjectBinding), errors.Is(err, ErrSelfPairing):
		return http.StatusBadRequest
	case errors.Is(err, ErrDuplicateCaseNumber), errors.Is(err, ErrConflict), errors.Is(err, ErrInvalidState):
		return http.StatusConflict
	case errors.Is(err, ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, ErrForbidden):
		return http.StatusForbidden
	default:
		return http.StatusInternalServerError
	}
}

// HTTPError converts a service error into an echo HTTP error. Validation
// errors keep their per-field list in the response body; a duplicate case
// number is reported as a field error on case_number.
func HTTPError(err error) error {
	status := Status(err)
	var ve *ValidationError
	switch {
	case errors.As(err, &ve):
		return echo.NewHTTPError(status, ve)
	case errors.Is(err, ErrDuplicateCaseNumber):
		return echo.NewHTTPError(status, &ValidationError{
			Errors: []FieldError{{Field: "case_number", Reason: ErrDuplicateCaseNumber.Error()}},
		})
	case status == http.StatusInternalServerError:
		return echo.NewHTTPError(status, "internal server error")
	default:
		return echo.NewHTTPError(status, err.Error())
	}
}
