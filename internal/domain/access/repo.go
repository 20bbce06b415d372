package access

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	GetByID(ctx context.Context, id uuid.UUID) (*Profile, error)
	GetByUserID(ctx context.Context, userID string) (*Profile, error)
	// Ensure stores p unless a profile for p.UserID exists, and loads the
	// stored profile into p either way.
	Ensure(ctx context.Context, p *Profile) error
	Update(ctx context.Context, p *Profile) error
	CountReaders(ctx context.Context, geneticistID uuid.UUID) (int, error)
	List(ctx context.Context, limit, offset int) ([]*Profile, int, error)
}
