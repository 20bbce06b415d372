package clinicalrecord

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create fails with apperr.ErrDuplicateCaseNumber when the case number
	// is taken.
	Create(ctx context.Context, rec *ClinicalRecord) error
	GetByID(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error)
	GetByCaseNumber(ctx context.Context, caseNumber int) (*ClinicalRecord, error)
	UpdateReferral(ctx context.Context, id uuid.UUID, ref Referral) error
}
