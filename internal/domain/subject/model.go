package subject

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/platform/apperr"
)

type Kind string

const (
	KindIndividual Kind = "individual"
	KindCouple     Kind = "couple"
)

// Subject is the tagged union Individual(id) | Couple(id) that every case
// record belongs to. The zero value is not a valid subject.
type Subject struct {
	kind Kind
	id   uuid.UUID
}

func OfIndividual(id uuid.UUID) Subject { return Subject{kind: KindIndividual, id: id} }

func OfCouple(id uuid.UUID) Subject { return Subject{kind: KindCouple, id: id} }

func (s Subject) Kind() Kind    { return s.kind }
func (s Subject) ID() uuid.UUID { return s.id }

func (s Subject) Valid() bool {
	return (s.kind == KindIndividual || s.kind == KindCouple) && s.id != uuid.Nil
}

// Individual returns the individual id when s is an individual.
func (s Subject) Individual() (uuid.UUID, bool) {
	return s.id, s.kind == KindIndividual && s.id != uuid.Nil
}

// Couple returns the couple id when s is a couple.
func (s Subject) Couple() (uuid.UUID, bool) {
	return s.id, s.kind == KindCouple && s.id != uuid.Nil
}

func (s Subject) String() string {
	if !s.Valid() {
		return "subject(invalid)"
	}
	return string(s.kind) + ":" + s.id.String()
}

// Binding returns the storage form of s.
func (s Subject) Binding() Binding {
	id := s.id
	switch s.kind {
	case KindIndividual:
		return Binding{IndividualID: &id}
	case KindCouple:
		return Binding{CoupleID: &id}
	}
	return Binding{}
}

func (s Subject) MarshalJSON() ([]byte, error) {
	if !s.Valid() {
		return []byte("null"), nil
	}
	return json.Marshal(struct {
		Kind Kind      `json:"kind"`
		ID   uuid.UUID `json:"id"`
	}{s.kind, s.id})
}

// Binding is the two-column storage form of a Subject. It only exists at the
// persistence boundary; application code works with Subject.
type Binding struct {
	IndividualID *uuid.UUID
	CoupleID     *uuid.UUID
}

// Subject converts the binding back into a Subject, failing with
// ErrInvalidSubjectBinding unless exactly one reference is set.
func (b Binding) Subject() (Subject, error) {
	switch {
	case b.IndividualID != nil && b.CoupleID == nil && *b.IndividualID != uuid.Nil:
		return OfIndividual(*b.IndividualID), nil
	case b.CoupleID != nil && b.IndividualID == nil && *b.CoupleID != uuid.Nil:
		return OfCouple(*b.CoupleID), nil
	}
	return Subject{}, apperr.ErrInvalidSubjectBinding
}

// Column returns the storage column that holds s's reference.
func Column(s Subject) (string, error) {
	switch {
	case !s.Valid():
		return "", apperr.ErrInvalidSubjectBinding
	case s.kind == KindIndividual:
		return "individual_id", nil
	default:
		return "couple_id", nil
	}
}

type Status string

const (
	StatusActive     Status = "active"
	StatusInactive   Status = "inactive"
	StatusInFollowUp Status = "in_follow_up"
)

func (s Status) Valid() bool {
	switch s {
	case StatusActive, StatusInactive, StatusInFollowUp:
		return true
	}
	return false
}

var (
	BloodGroups = []string{"A", "B", "AB", "O"}
	RhFactors   = []string{"positive", "negative"}
)

// IndividualFields are the caller-editable attributes of an Individual.
// Nil fields are left untouched by an upsert; an empty string clears.
type IndividualFields struct {
	FirstNames *string    `json:"first_names,omitempty"`
	LastNames  *string    `json:"last_names,omitempty"`
	BirthID    *string    `json:"birth_id,omitempty"`
	BirthPlace *string    `json:"birth_place,omitempty"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	Schooling  *string    `json:"schooling,omitempty"`
	Occupation *string    `json:"occupation,omitempty"`
	Age        *int       `json:"age,omitempty"`
	Address    *string    `json:"address,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	Email      *string    `json:"email,omitempty"`
	BloodGroup *string    `json:"blood_group,omitempty"`
	RhFactor   *string    `json:"rh_factor,omitempty"`
	PhotoRef   *string    `json:"photo_ref,omitempty"`
}

// Individual is a single patient under study.
type Individual struct {
	ID uuid.UUID `json:"id"`
	IndividualFields
	RecordID  *uuid.UUID `json:"record_id,omitempty"`
	Status    Status     `json:"status"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

func (i *Individual) FullName() string {
	return deref(i.FirstNames) + " " + deref(i.LastNames)
}

// Couple is an unordered pair of distinct individuals, stored with the lower
// id first.
type Couple struct {
	ID        uuid.UUID `json:"id"`
	Member1ID uuid.UUID `json:"member1_id"`
	Member2ID uuid.UUID `json:"member2_id"`
	CreatedAt time.Time `json:"created_at"`
}

func (c *Couple) Members() [2]uuid.UUID {
	return [2]uuid.UUID{c.Member1ID, c.Member2ID}
}

func (c *Couple) Has(id uuid.UUID) bool {
	return c.Member1ID == id || c.Member2ID == id
}

// Other returns the member that is not id.
func (c *Couple) Other(id uuid.UUID) uuid.UUID {
	if c.Member1ID == id {
		return c.Member2ID
	}
	return c.Member1ID
}

// CanonicalPair orders a and b by byte value. Pairing an individual with
// itself fails with ErrSelfPairing.
func CanonicalPair(a, b uuid.UUID) (uuid.UUID, uuid.UUID, error) {
	if a == uuid.Nil || b == uuid.Nil {
		return uuid.Nil, uuid.Nil, fmt.Errorf("couple members are required: %w", apperr.ErrInvalidSubjectBinding)
	}
	switch c := bytes.Compare(a[:], b[:]); {
	case c == 0:
		return uuid.Nil, uuid.Nil, apperr.ErrSelfPairing
	case c > 0:
		return b, a, nil
	}
	return a, b, nil
}

type ParentKind string

const (
	Father ParentKind = "father"
	Mother ParentKind = "mother"
)

func (k ParentKind) Valid() bool { return k == Father || k == Mother }

// ParentFields are the editable attributes of a parent record.
type ParentFields struct {
	FirstNames *string    `json:"first_names,omitempty"`
	LastNames  *string    `json:"last_names,omitempty"`
	BirthID    *string    `json:"birth_id,omitempty"`
	BirthPlace *string    `json:"birth_place,omitempty"`
	BirthDate  *time.Time `json:"birth_date,omitempty"`
	Schooling  *string    `json:"schooling,omitempty"`
	Occupation *string    `json:"occupation,omitempty"`
	Age        *int       `json:"age,omitempty"`
	BloodGroup *string    `json:"blood_group,omitempty"`
	RhFactor   *string    `json:"rh_factor,omitempty"`
	Phone      *string    `json:"phone,omitempty"`
	Email      *string    `json:"email,omitempty"`
	Address    *string    `json:"address,omitempty"`
}

// ParentInfo is the father or mother of an individual.
type ParentInfo struct {
	ID           uuid.UUID  `json:"id"`
	IndividualID uuid.UUID  `json:"individual_id"`
	Kind         ParentKind `json:"kind"`
	ParentFields
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
