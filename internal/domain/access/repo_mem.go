package access

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/memstore"
	"github.com/genetica/genetica/internal/platform/patch"
)

type MemRepo struct {
	store *memstore.Store
	rows  *memstore.Table[uuid.UUID, Profile]
}

func NewMemRepo(s *memstore.Store) *MemRepo {
	return &MemRepo{store: s, rows: memstore.NewTable[uuid.UUID, Profile](s, patch.Clone[Profile])}
}

func (r *MemRepo) GetByID(ctx context.Context, id uuid.UUID) (*Profile, error) {
	p, ok := r.rows.Get(ctx, id)
	if !ok {
		return nil, apperr.NotFound("profile")
	}
	return &p, nil
}

func (r *MemRepo) GetByUserID(ctx context.Context, userID string) (*Profile, error) {
	p, ok := r.rows.First(ctx, func(p Profile) bool { return p.UserID == userID })
	if !ok {
		return nil, apperr.NotFound("profile")
	}
	return &p, nil
}

func (r *MemRepo) Ensure(ctx context.Context, p *Profile) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		if existing, ok := r.rows.First(ctx, func(e Profile) bool { return e.UserID == p.UserID }); ok {
			if p.DisplayName != "" && p.DisplayName != existing.DisplayName {
				existing.DisplayName = p.DisplayName
				r.rows.Put(ctx, existing.ID, existing)
			}
			*p = existing
			return nil
		}
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.CreatedAt = time.Now().UTC()
		p.UpdatedAt = p.CreatedAt
		r.rows.Put(ctx, p.ID, *p)
		return nil
	})
}

func (r *MemRepo) Update(ctx context.Context, p *Profile) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		if _, ok := r.rows.Get(ctx, p.ID); !ok {
			return apperr.NotFound("profile")
		}
		p.UpdatedAt = time.Now().UTC()
		r.rows.Put(ctx, p.ID, *p)
		return nil
	})
}

func (r *MemRepo) CountReaders(ctx context.Context, geneticistID uuid.UUID) (int, error) {
	return len(r.rows.Find(ctx, func(p Profile) bool {
		return p.AssociatedGeneticistID != nil && *p.AssociatedGeneticistID == geneticistID
	})), nil
}

func (r *MemRepo) List(ctx context.Context, limit, offset int) ([]*Profile, int, error) {
	all := r.rows.Find(ctx, nil)
	var out []*Profile
	for i := offset; i < len(all) && len(out) < limit; i++ {
		p := all[i]
		out = append(out, &p)
	}
	return out, len(all), nil
}
