package subject

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/memstore"
	"github.com/genetica/genetica/internal/platform/patch"
)

// MemIndividuals is the in-memory IndividualRepository. Writes run inside
// the store's transaction so the birth id lookup and the insert are atomic.
type MemIndividuals struct {
	store *memstore.Store
	rows  *memstore.Table[uuid.UUID, Individual]
}

func NewMemIndividuals(s *memstore.Store) *MemIndividuals {
	return &MemIndividuals{store: s, rows: memstore.NewTable[uuid.UUID, Individual](s, patch.Clone[Individual])}
}

func (r *MemIndividuals) GetByID(ctx context.Context, id uuid.UUID) (*Individual, error) {
	i, ok := r.rows.Get(ctx, id)
	if !ok {
		return nil, apperr.NotFound("individual")
	}
	return &i, nil
}

func (r *MemIndividuals) GetByBirthID(ctx context.Context, birthID string) (*Individual, error) {
	i, ok := r.rows.First(ctx, func(i Individual) bool { return deref(i.BirthID) == birthID })
	if !ok {
		return nil, apperr.NotFound("individual")
	}
	return &i, nil
}

func (r *MemIndividuals) ListByRecord(ctx context.Context, recordID uuid.UUID) ([]*Individual, error) {
	var out []*Individual
	for _, i := range r.rows.Find(ctx, func(i Individual) bool { return i.RecordID != nil && *i.RecordID == recordID }) {
		i := i
		out = append(out, &i)
	}
	return out, nil
}

// All returns every stored individual in insertion order.
func (r *MemIndividuals) All() []Individual {
	return r.rows.Find(context.Background(), nil)
}

func (r *MemIndividuals) Upsert(ctx context.Context, ind *Individual) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		existing, ok := r.rows.First(ctx, func(i Individual) bool { return deref(i.BirthID) == deref(ind.BirthID) })
		if ok {
			ind.ID, ind.CreatedAt = existing.ID, existing.CreatedAt
		} else {
			if ind.ID == uuid.Nil {
				ind.ID = uuid.New()
			}
			ind.CreatedAt = now
		}
		ind.UpdatedAt = now
		r.rows.Put(ctx, ind.ID, *ind)
		return nil
	})
}

func (r *MemIndividuals) DetachFromRecord(ctx context.Context, recordID uuid.UUID, keep []uuid.UUID) error {
	kept := make(map[uuid.UUID]bool, len(keep))
	for _, id := range keep {
		kept[id] = true
	}
	return r.store.InTx(ctx, func(ctx context.Context) error {
		for _, i := range r.rows.Find(ctx, func(i Individual) bool {
			return i.RecordID != nil && *i.RecordID == recordID && !kept[i.ID]
		}) {
			i.RecordID = nil
			i.UpdatedAt = time.Now().UTC()
			r.rows.Put(ctx, i.ID, i)
		}
		return nil
	})
}

func (r *MemIndividuals) SetStatus(ctx context.Context, id uuid.UUID, status Status) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		i, ok := r.rows.Get(ctx, id)
		if !ok {
			return apperr.NotFound("individual")
		}
		i.Status = status
		i.UpdatedAt = time.Now().UTC()
		r.rows.Put(ctx, id, i)
		return nil
	})
}

// MemCouples is the in-memory CoupleRepository.
type MemCouples struct {
	store *memstore.Store
	rows  *memstore.Table[uuid.UUID, Couple]
}

func NewMemCouples(s *memstore.Store) *MemCouples {
	return &MemCouples{store: s, rows: memstore.NewTable[uuid.UUID, Couple](s, nil)}
}

func (r *MemCouples) GetByID(ctx context.Context, id uuid.UUID) (*Couple, error) {
	c, ok := r.rows.Get(ctx, id)
	if !ok {
		return nil, apperr.NotFound("couple")
	}
	return &c, nil
}

func (r *MemCouples) GetByMembers(ctx context.Context, m1, m2 uuid.UUID) (*Couple, error) {
	c, ok := r.rows.First(ctx, func(c Couple) bool { return c.Member1ID == m1 && c.Member2ID == m2 })
	if !ok {
		return nil, apperr.NotFound("couple")
	}
	return &c, nil
}

// All returns every stored couple in insertion order.
func (r *MemCouples) All() []Couple {
	return r.rows.Find(context.Background(), nil)
}

func (r *MemCouples) Upsert(ctx context.Context, c *Couple) error {
	if c.Member1ID == c.Member2ID {
		return apperr.ErrSelfPairing
	}
	return r.store.InTx(ctx, func(ctx context.Context) error {
		if existing, ok := r.rows.First(ctx, func(e Couple) bool {
			return e.Member1ID == c.Member1ID && e.Member2ID == c.Member2ID
		}); ok {
			*c = existing
			return nil
		}
		if c.ID == uuid.Nil {
			c.ID = uuid.New()
		}
		c.CreatedAt = time.Now().UTC()
		r.rows.Put(ctx, c.ID, *c)
		return nil
	})
}

type parentKey struct {
	individualID uuid.UUID
	kind         ParentKind
}

// MemParents is the in-memory ParentRepository, keyed on (individual, kind).
type MemParents struct {
	store *memstore.Store
	rows  *memstore.Table[parentKey, ParentInfo]
}

func NewMemParents(s *memstore.Store) *MemParents {
	return &MemParents{store: s, rows: memstore.NewTable[parentKey, ParentInfo](s, patch.Clone[ParentInfo])}
}

func (r *MemParents) Get(ctx context.Context, individualID uuid.UUID, kind ParentKind) (*ParentInfo, error) {
	p, ok := r.rows.Get(ctx, parentKey{individualID, kind})
	if !ok {
		return nil, apperr.NotFound("parent")
	}
	return &p, nil
}

func (r *MemParents) ListByIndividual(ctx context.Context, individualID uuid.UUID) ([]*ParentInfo, error) {
	var out []*ParentInfo
	for _, p := range r.rows.Find(ctx, func(p ParentInfo) bool { return p.IndividualID == individualID }) {
		p := p
		out = append(out, &p)
	}
	// father sorts before mother, matching ORDER BY kind
	if len(out) == 2 && strings.Compare(string(out[0].Kind), string(out[1].Kind)) > 0 {
		out[0], out[1] = out[1], out[0]
	}
	return out, nil
}

func (r *MemParents) Create(ctx context.Context, p *ParentInfo) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		key := parentKey{p.IndividualID, p.Kind}
		if _, ok := r.rows.Get(ctx, key); ok {
			return fmt.Errorf("create %s: %w", p.Kind, apperr.ErrConflict)
		}
		return r.put(ctx, key, p, nil)
	})
}

func (r *MemParents) Upsert(ctx context.Context, p *ParentInfo) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		key := parentKey{p.IndividualID, p.Kind}
		existing, ok := r.rows.Get(ctx, key)
		if !ok {
			return r.put(ctx, key, p, nil)
		}
		return r.put(ctx, key, p, &existing)
	})
}

func (r *MemParents) put(ctx context.Context, key parentKey, p *ParentInfo, existing *ParentInfo) error {
	now := time.Now().UTC()
	if existing != nil {
		p.ID, p.CreatedAt = existing.ID, existing.CreatedAt
	} else {
		if p.ID == uuid.Nil {
			p.ID = uuid.New()
		}
		p.CreatedAt = now
	}
	p.UpdatedAt = now
	r.rows.Put(ctx, key, *p)
	return nil
}
