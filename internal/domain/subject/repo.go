package subject

import (
	"context"

	"github.com/google/uuid"
)

type IndividualRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Individual, error)
	GetByBirthID(ctx context.Context, birthID string) (*Individual, error)
	ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Individual, error)
	// Upsert inserts ind or updates the row with the same birth id, and
	// writes the stored ID and timestamps back into ind.
	Upsert(ctx context.Context, ind *Individual) error
	// DetachFromRecord clears the record link of every individual of
	// recordID except those in keep.
	DetachFromRecord(ctx context.Context, recordID uuid.UUID, keep []uuid.UUID) error
	SetStatus(ctx context.Context, id uuid.UUID, status Status) error
}

type CoupleRepository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Couple, error)
	// GetByMembers expects canonically ordered members.
	GetByMembers(ctx context.Context, member1, member2 uuid.UUID) (*Couple, error)
	// Upsert stores c or resolves to the existing row for its members.
	Upsert(ctx context.Context, c *Couple) error
}

type ParentRepository interface {
	Get(ctx context.Context, individualID uuid.UUID, kind ParentKind) (*ParentInfo, error)
	ListByIndividual(ctx context.Context, individualID uuid.UUID) ([]*ParentInfo, error)
	// Create fails with apperr.ErrConflict when the kind already exists.
	Create(ctx context.Context, p *ParentInfo) error
	Upsert(ctx context.Context, p *ParentInfo) error
}
