package account

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/memstore"
)

type MemRepo struct {
	store *memstore.Store
	rows  *memstore.Table[uuid.UUID, User]
}

func NewMemRepo(s *memstore.Store) *MemRepo {
	return &MemRepo{store: s, rows: memstore.NewTable[uuid.UUID, User](s, nil)}
}

func (r *MemRepo) Create(ctx context.Context, u *User) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		if _, taken := r.rows.First(ctx, func(e User) bool { return e.Email == u.Email }); taken {
			return fmt.Errorf("email %s: %w", u.Email, apperr.ErrConflict)
		}
		u.ID = uuid.New()
		u.CreatedAt = time.Now().UTC()
		r.rows.Put(ctx, u.ID, *u)
		return nil
	})
}

func (r *MemRepo) GetByID(ctx context.Context, id uuid.UUID) (*User, error) {
	u, ok := r.rows.Get(ctx, id)
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return &u, nil
}

func (r *MemRepo) GetByEmail(ctx context.Context, email string) (*User, error) {
	u, ok := r.rows.First(ctx, func(e User) bool { return e.Email == email })
	if !ok {
		return nil, apperr.NotFound("user")
	}
	return &u, nil
}
