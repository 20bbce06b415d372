package account

import (
	"context"

	"github.com/google/uuid"
)

type Repository interface {
	// Create fails with apperr.ErrConflict when the email is taken.
	Create(ctx context.Context, u *User) error
	GetByID(ctx context.Context, id uuid.UUID) (*User, error)
	GetByEmail(ctx context.Context, email string) (*User, error)
}
