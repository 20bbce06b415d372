package validate

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/genetica/genetica/internal/platform/apperr"
)

func ptr[T any](v T) *T { return &v }

func TestRules(t *testing.T) {
	today := Today(time.Date(2024, 5, 10, 15, 0, 0, 0, time.UTC))
	v := &apperr.ValidationError{}

	Required(v, "first_names", "  ", 100)
	MaxLen(v, "birth_id", ptr("123456789012345678901"), 20)
	NotFuture(v, "birth_date", ptr(today.AddDate(0, 0, 1)), today)
	NotFuture(v, "union_date", ptr(today.Add(23*time.Hour)), today)
	IntRange(v, "age", ptr(121), 0, 120)
	NonNegative(v, "abortions", ptr(-1))
	Between(v, "birth_weight_kg", ptr(0.05), 0.1, 10)
	OneOf(v, "blood_group", ptr("C"), "A", "B", "AB", "O")
	Email(v, "email", ptr("not-an-email"))
	Phone(v, "phone", ptr("call me"))

	for _, f := range []string{"first_names", "birth_id", "birth_date", "age", "abortions", "birth_weight_kg", "blood_group", "email", "phone"} {
		assert.True(t, v.Has(f), f)
	}
	// same calendar day is not in the future
	assert.False(t, v.Has("union_date"))
}

func TestRules_AcceptValidAndNil(t *testing.T) {
	today := Today(time.Now())
	v := &apperr.ValidationError{}

	Required(v, "first_names", "Ana", 100)
	NotFuture(v, "birth_date", ptr(today), today)
	NotFuture(v, "birth_date", nil, today)
	IntRange(v, "age", ptr(0), 0, 120)
	IntRange(v, "age", ptr(120), 0, 120)
	Between(v, "birth_weight_kg", ptr(10.0), 0.1, 10)
	OneOf(v, "rh_factor", nil, "positive", "negative")
	Email(v, "email", ptr("ana@example.org"))
	Phone(v, "phone", ptr("+58 (212) 555-1234"))

	assert.NoError(t, v.Err())
}
