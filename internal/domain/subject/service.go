package subject

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/patch"
	"github.com/genetica/genetica/internal/platform/validate"
)

type Service struct {
	individuals IndividualRepository
	couples     CoupleRepository
	parents     ParentRepository
	now         func() time.Time
}

func NewService(ind IndividualRepository, cpl CoupleRepository, par ParentRepository) *Service {
	return &Service{individuals: ind, couples: cpl, parents: par, now: time.Now}
}

func (s *Service) today() time.Time { return validate.Today(s.now()) }

// UpsertIndividual merges fields into the individual with the same birth id,
// creating it when absent. A non-nil recordID links the individual to that
// clinical record.
func (s *Service) UpsertIndividual(ctx context.Context, fields IndividualFields, recordID *uuid.UUID) (*Individual, error) {
	birthID := patch.Text(fields.BirthID)
	if birthID == nil {
		return nil, apperr.Invalid("birth_id", "is required")
	}

	ind, err := s.individuals.GetByBirthID(ctx, *birthID)
	switch {
	case errors.Is(err, apperr.ErrNotFound):
		ind = &Individual{Status: StatusActive}
	case err != nil:
		return nil, err
	}

	patch.Apply(&ind.IndividualFields, fields)
	if recordID != nil {
		id := *recordID
		ind.RecordID = &id
	}
	if err := ind.Validate(s.today()); err != nil {
		return nil, err
	}
	if err := s.individuals.Upsert(ctx, ind); err != nil {
		return nil, err
	}
	return ind, nil
}

func (s *Service) GetIndividual(ctx context.Context, id uuid.UUID) (*Individual, error) {
	return s.individuals.GetByID(ctx, id)
}

func (s *Service) IndividualByBirthID(ctx context.Context, birthID string) (*Individual, error) {
	return s.individuals.GetByBirthID(ctx, birthID)
}

func (s *Service) IndividualsOfRecord(ctx context.Context, recordID uuid.UUID) ([]*Individual, error) {
	return s.individuals.ListByRecord(ctx, recordID)
}

// DetachOthers unlinks from recordID every individual not in keep.
func (s *Service) DetachOthers(ctx context.Context, recordID uuid.UUID, keep ...uuid.UUID) error {
	return s.individuals.DetachFromRecord(ctx, recordID, keep)
}

func (s *Service) SetStatus(ctx context.Context, id uuid.UUID, status Status) (*Individual, error) {
	if !status.Valid() {
		return nil, apperr.Invalid("status", "must be one of active, inactive, in_follow_up")
	}
	if err := s.individuals.SetStatus(ctx, id, status); err != nil {
		return nil, err
	}
	return s.individuals.GetByID(ctx, id)
}

// PairCouple binds two existing individuals into their canonical couple.
// Pairing (a, b) and (b, a) resolves to the same couple.
func (s *Service) PairCouple(ctx context.Context, a, b uuid.UUID) (*Couple, error) {
	m1, m2, err := CanonicalPair(a, b)
	if err != nil {
		return nil, err
	}
	for _, id := range []uuid.UUID{m1, m2} {
		if _, err := s.individuals.GetByID(ctx, id); err != nil {
			return nil, fmt.Errorf("couple member %s: %w", id, err)
		}
	}
	c := &Couple{Member1ID: m1, Member2ID: m2}
	if err := s.couples.Upsert(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) GetCouple(ctx context.Context, id uuid.UUID) (*Couple, error) {
	return s.couples.GetByID(ctx, id)
}

// CoupleOf returns the couple formed by a and b, in either order.
func (s *Service) CoupleOf(ctx context.Context, a, b uuid.UUID) (*Couple, error) {
	m1, m2, err := CanonicalPair(a, b)
	if err != nil {
		return nil, err
	}
	return s.couples.GetByMembers(ctx, m1, m2)
}

// Members resolves the individuals a subject stands for: one for an
// individual, both members for a couple.
func (s *Service) Members(ctx context.Context, subj Subject) ([]*Individual, error) {
	if id, ok := subj.Individual(); ok {
		ind, err := s.individuals.GetByID(ctx, id)
		if err != nil {
			return nil, err
		}
		return []*Individual{ind}, nil
	}
	id, ok := subj.Couple()
	if !ok {
		return nil, apperr.ErrInvalidSubjectBinding
	}
	c, err := s.couples.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	out := make([]*Individual, 0, 2)
	for _, mid := range c.Members() {
		ind, err := s.individuals.GetByID(ctx, mid)
		if err != nil {
			return nil, err
		}
		out = append(out, ind)
	}
	return out, nil
}

// AddParent inserts a parent record; a second record of the same kind for
// the individual fails with apperr.ErrConflict.
func (s *Service) AddParent(ctx context.Context, individualID uuid.UUID, kind ParentKind, fields ParentFields) (*ParentInfo, error) {
	if _, err := s.individuals.GetByID(ctx, individualID); err != nil {
		return nil, err
	}
	p := &ParentInfo{IndividualID: individualID, Kind: kind}
	patch.Apply(&p.ParentFields, fields)
	if err := p.Validate(s.today()); err != nil {
		return nil, err
	}
	if err := s.parents.Create(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// UpsertParents merges father and mother into the stored parent records of
// an individual. Both are validated before either is written; callers wrap
// the call in a transaction to make the pair atomic.
func (s *Service) UpsertParents(ctx context.Context, individualID uuid.UUID, father, mother ParentFields) (*ParentInfo, *ParentInfo, error) {
	if _, err := s.individuals.GetByID(ctx, individualID); err != nil {
		return nil, nil, err
	}

	merged := make(map[ParentKind]*ParentInfo, 2)
	verr := &apperr.ValidationError{}
	for _, in := range []struct {
		kind   ParentKind
		fields ParentFields
	}{{Father, father}, {Mother, mother}} {
		kind := in.kind
		p, err := s.parents.Get(ctx, individualID, kind)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			p = &ParentInfo{IndividualID: individualID, Kind: kind}
		case err != nil:
			return nil, nil, err
		}
		patch.Apply(&p.ParentFields, in.fields)
		verr.Merge(string(kind), p.Validate(s.today()))
		merged[kind] = p
	}
	verr.Merge("", ValidateParentPair(merged[Father], merged[Mother]))
	if err := verr.Err(); err != nil {
		return nil, nil, err
	}

	for _, kind := range []ParentKind{Father, Mother} {
		if err := s.parents.Upsert(ctx, merged[kind]); err != nil {
			return nil, nil, err
		}
	}
	return merged[Father], merged[Mother], nil
}

func (s *Service) Parents(ctx context.Context, individualID uuid.UUID) ([]*ParentInfo, error) {
	return s.parents.ListByIndividual(ctx, individualID)
}
