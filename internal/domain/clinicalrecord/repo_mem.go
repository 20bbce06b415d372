package clinicalrecord

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/memstore"
	"github.com/genetica/genetica/internal/platform/patch"
)

// MemRepo is the in-memory Repository.
type MemRepo struct {
	store *memstore.Store
	rows  *memstore.Table[uuid.UUID, ClinicalRecord]
}

func NewMemRepo(s *memstore.Store) *MemRepo {
	return &MemRepo{store: s, rows: memstore.NewTable[uuid.UUID, ClinicalRecord](s, patch.Clone[ClinicalRecord])}
}

func (r *MemRepo) Create(ctx context.Context, rec *ClinicalRecord) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		if _, taken := r.rows.First(ctx, func(e ClinicalRecord) bool { return e.CaseNumber == rec.CaseNumber }); taken {
			return fmt.Errorf("case %d: %w", rec.CaseNumber, apperr.ErrDuplicateCaseNumber)
		}
		rec.ID = uuid.New()
		rec.CreatedAt = time.Now().UTC()
		r.rows.Put(ctx, rec.ID, *rec)
		return nil
	})
}

func (r *MemRepo) GetByID(ctx context.Context, id uuid.UUID) (*ClinicalRecord, error) {
	rec, ok := r.rows.Get(ctx, id)
	if !ok {
		return nil, apperr.NotFound("clinical record")
	}
	return &rec, nil
}

func (r *MemRepo) GetByCaseNumber(ctx context.Context, caseNumber int) (*ClinicalRecord, error) {
	rec, ok := r.rows.First(ctx, func(e ClinicalRecord) bool { return e.CaseNumber == caseNumber })
	if !ok {
		return nil, apperr.NotFound("clinical record")
	}
	return &rec, nil
}

func (r *MemRepo) UpdateReferral(ctx context.Context, id uuid.UUID, ref Referral) error {
	return r.store.InTx(ctx, func(ctx context.Context) error {
		rec, ok := r.rows.Get(ctx, id)
		if !ok {
			return apperr.NotFound("clinical record")
		}
		rec.Referral = ref
		r.rows.Put(ctx, id, rec)
		return nil
	})
}

// All returns every record in insertion order.
func (r *MemRepo) All() []ClinicalRecord {
	return r.rows.Find(context.Background(), nil)
}
