// Package validate holds the field rules shared by the domain packages. Each
// helper records a violation on a ValidationError and never stops early, so
// one pass reports every bad field.
package validate

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/asaskevich/govalidator"

	"github.com/genetica/genetica/internal/platform/apperr"
)

// Today truncates now to a UTC calendar date.
func Today(now time.Time) time.Time {
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// DateOnly truncates t to its UTC calendar date.
func DateOnly(t time.Time) time.Time {
	return Today(t)
}

func Required(v *apperr.ValidationError, field, s string, max int) {
	if strings.TrimSpace(s) == "" {
		v.Add(field, "is required")
		return
	}
	MaxLen(v, field, &s, max)
}

func MaxLen(v *apperr.ValidationError, field string, s *string, max int) {
	if s != nil && utf8.RuneCountInString(*s) > max {
		v.Add(field, "must be at most %d characters", max)
	}
}

func NotFuture(v *apperr.ValidationError, field string, t *time.Time, today time.Time) {
	if t != nil && DateOnly(*t).After(today) {
		v.Add(field, "must not be in the future")
	}
}

func IntRange(v *apperr.ValidationError, field string, n *int, min, max int) {
	if n != nil && (*n < min || *n > max) {
		v.Add(field, "must be between %d and %d", min, max)
	}
}

func NonNegative(v *apperr.ValidationError, field string, n *int) {
	if n != nil && *n < 0 {
		v.Add(field, "must not be negative")
	}
}

// Between checks min <= f <= max.
func Between(v *apperr.ValidationError, field string, f *float64, min, max float64) {
	if f != nil && (*f < min || *f > max) {
		v.Add(field, "must be between %g and %g", min, max)
	}
}

func OneOf(v *apperr.ValidationError, field string, s *string, allowed ...string) {
	if s == nil {
		return
	}
	for _, a := range allowed {
		if *s == a {
			return
		}
	}
	v.Add(field, "must be one of %s", strings.Join(allowed, ", "))
}

func Email(v *apperr.ValidationError, field string, s *string) {
	if s == nil {
		return
	}
	if !govalidator.StringLength(*s, "3", "255") || !govalidator.IsEmail(*s) {
		v.Add(field, "must be a valid email address")
	}
}

func Phone(v *apperr.ValidationError, field string, s *string) {
	if s == nil {
		return
	}
	digits := strings.NewReplacer(" ", "", "-", "", "+", "", "(", "", ")", "").Replace(*s)
	if !govalidator.IsNumeric(digits) || len(*s) > 20 {
		v.Add(field, "must be a phone number of at most 20 characters")
	}
}
