package clinicalrecord

import (
	"context"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/patch"
	"github.com/genetica/genetica/internal/platform/validate"
)

type Service struct {
	repo Repository
}

func NewService(repo Repository) *Service {
	return &Service{repo: repo}
}

func validateReferral(v *apperr.ValidationError, ref Referral) {
	validate.MaxLen(v, "postgraduate", ref.Postgraduate, 100)
	validate.MaxLen(v, "referring_physician", ref.ReferringPhysician, 100)
	validate.MaxLen(v, "specialty", ref.Specialty, 100)
	validate.MaxLen(v, "referral_center", ref.ReferralCenter, 100)
}

// Open creates a clinical record. The case number must be positive and
// unused; the motive must be one of Motives.
func (s *Service) Open(ctx context.Context, caseNumber int, motive Motive, geneticistID *uuid.UUID, ref Referral) (*ClinicalRecord, error) {
	v := &apperr.ValidationError{}
	if caseNumber <= 0 {
		v.Add("case_number", "must be a positive integer")
	}
	if !motive.Valid() {
		v.Add("motive", "must be one of individual_diagnostic, couple_betrothal, couple_preconception, couple_prenatal")
	}
	rec := &ClinicalRecord{CaseNumber: caseNumber, Motive: motive, GeneticistID: geneticistID}
	patch.Apply(&rec.Referral, ref)
	validateReferral(v, rec.Referral)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if err := s.repo.Create(ctx, rec); err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) GetByCaseNumber(ctx context.Context, caseNumber int) (*ClinicalRecord, error) {
	return s.repo.GetByCaseNumber(ctx, caseNumber)
}

// UpdateReferral merges ref into the stored referral metadata. The case
// number and motive never change.
func (s *Service) UpdateReferral(ctx context.Context, id uuid.UUID, ref Referral) (*ClinicalRecord, error) {
	rec, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(&rec.Referral, ref)
	v := &apperr.ValidationError{}
	validateReferral(v, rec.Referral)
	if err := v.Err(); err != nil {
		return nil, err
	}
	if err := s.repo.UpdateReferral(ctx, id, rec.Referral); err != nil {
		return nil, err
	}
	return rec, nil
}
