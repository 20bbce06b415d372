package subject

import (
	"strings"
	"time"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/validate"
)

// Validate checks the merged individual as a whole.
func (i *Individual) Validate(today time.Time) error {
	v := &apperr.ValidationError{}
	validate.Required(v, "first_names", deref(i.FirstNames), 100)
	validate.Required(v, "last_names", deref(i.LastNames), 100)
	validate.Required(v, "birth_id", deref(i.BirthID), 20)
	validate.MaxLen(v, "birth_place", i.BirthPlace, 100)
	validate.NotFuture(v, "birth_date", i.BirthDate, today)
	validate.MaxLen(v, "schooling", i.Schooling, 100)
	validate.MaxLen(v, "occupation", i.Occupation, 100)
	validate.IntRange(v, "age", i.Age, 0, 120)
	validate.Phone(v, "phone", i.Phone)
	validate.Email(v, "email", i.Email)
	validate.OneOf(v, "blood_group", i.BloodGroup, BloodGroups...)
	validate.OneOf(v, "rh_factor", i.RhFactor, RhFactors...)
	if !i.Status.Valid() {
		v.Add("status", "must be one of active, inactive, in_follow_up")
	}
	return v.Err()
}

// Validate checks the merged parent record as a whole.
func (p *ParentInfo) Validate(today time.Time) error {
	v := &apperr.ValidationError{}
	if !p.Kind.Valid() {
		v.Add("kind", "must be father or mother")
	}
	validate.Required(v, "first_names", deref(p.FirstNames), 100)
	validate.Required(v, "last_names", deref(p.LastNames), 100)
	validate.MaxLen(v, "birth_id", p.BirthID, 20)
	validate.MaxLen(v, "birth_place", p.BirthPlace, 100)
	validate.NotFuture(v, "birth_date", p.BirthDate, today)
	validate.MaxLen(v, "schooling", p.Schooling, 100)
	validate.MaxLen(v, "occupation", p.Occupation, 100)
	validate.IntRange(v, "age", p.Age, 0, 120)
	validate.OneOf(v, "blood_group", p.BloodGroup, BloodGroups...)
	validate.OneOf(v, "rh_factor", p.RhFactor, RhFactors...)
	validate.Phone(v, "phone", p.Phone)
	validate.Email(v, "email", p.Email)
	return v.Err()
}

// ValidateParentPair reports father and mother sharing an identification.
func ValidateParentPair(father, mother *ParentInfo) error {
	if father == nil || mother == nil || father.BirthID == nil || mother.BirthID == nil {
		return nil
	}
	if strings.EqualFold(*father.BirthID, *mother.BirthID) {
		return apperr.Invalid("mother.birth_id", "must differ from the father's identification")
	}
	return nil
}
