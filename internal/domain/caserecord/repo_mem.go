package caserecord

import (
	"context"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/memstore"
	"github.com/genetica/genetica/internal/platform/patch"
)

// NewMemRepositories returns in-memory stores registered with s.
func NewMemRepositories(s *memstore.Store) Repositories {
	return Repositories{
		Family:      newMemStore[FamilyHistory](s, "family history", patch.Clone[FamilyHistory]),
		Personal:    newMemStore[PersonalHistory](s, "personal history", patch.Clone[PersonalHistory]),
		Development: newMemStore[Development](s, "development", patch.Clone[Development]),
		Neonatal:    newMemStore[Neonatal](s, "neonatal period", patch.Clone[Neonatal]),
		Exams:       newMemStore[PhysicalExam](s, "physical exam", patch.Clone[PhysicalExam]),
		Evaluations: &evaluationStoreMem{newMemStore[GeneticEvaluation](s, "genetic evaluation", cloneEvaluation)},
	}
}

type memStore[T any, PT record[T]] struct {
	store  *memstore.Store
	entity string
	rows   *memstore.Table[subject.Subject, T]
}

func newMemStore[T any, PT record[T]](s *memstore.Store, entity string, clone func(T) T) *memStore[T, PT] {
	return &memStore[T, PT]{store: s, entity: entity, rows: memstore.NewTable[subject.Subject, T](s, clone)}
}

func (m *memStore[T, PT]) Get(ctx context.Context, subj subject.Subject) (*T, error) {
	if !subj.Valid() {
		return nil, apperr.ErrInvalidSubjectBinding
	}
	rec, ok := m.rows.Get(ctx, subj)
	if !ok {
		return nil, apperr.NotFound(m.entity)
	}
	return &rec, nil
}

func (m *memStore[T, PT]) Upsert(ctx context.Context, r *T) error {
	b := PT(r).base()
	if !b.Subject.Valid() {
		return apperr.ErrInvalidSubjectBinding
	}
	return m.store.InTx(ctx, func(ctx context.Context) error {
		now := time.Now().UTC()
		if existing, ok := m.rows.Get(ctx, b.Subject); ok {
			eb := PT(&existing).base()
			b.ID, b.CreatedAt = eb.ID, eb.CreatedAt
		} else {
			if b.ID == uuid.Nil {
				b.ID = uuid.New()
			}
			b.CreatedAt = now
		}
		b.UpdatedAt = now
		m.rows.Put(ctx, b.Subject, *r)
		return nil
	})
}

// evaluationStoreMem assigns child ids and keeps the diagnosis order the
// Postgres store reads back.
type evaluationStoreMem struct {
	*memStore[GeneticEvaluation, *GeneticEvaluation]
}

func (m *evaluationStoreMem) Get(ctx context.Context, subj subject.Subject) (*GeneticEvaluation, error) {
	ev, err := m.memStore.Get(ctx, subj)
	if err != nil {
		return nil, err
	}
	sortDiagnoses(ev.Diagnoses)
	return ev, nil
}

func (m *evaluationStoreMem) Upsert(ctx context.Context, ev *GeneticEvaluation) error {
	for i := range ev.Diagnoses {
		if ev.Diagnoses[i].ID == uuid.Nil {
			ev.Diagnoses[i].ID = uuid.New()
		}
	}
	for i := range ev.Plan {
		if ev.Plan[i].ID == uuid.Nil {
			ev.Plan[i].ID = uuid.New()
		}
	}
	for _, d := range ev.Diagnoses {
		if strings.TrimSpace(d.Description) == "" || d.Priority < 0 {
			return apperr.Invalid("diagnoses", "description is required and priority must not be negative")
		}
	}
	return m.memStore.Upsert(ctx, ev)
}

func sortDiagnoses(ds []PresumptiveDiagnosis) {
	sort.SliceStable(ds, func(i, j int) bool {
		if ds[i].Priority != ds[j].Priority {
			return ds[i].Priority < ds[j].Priority
		}
		return ds[i].Position < ds[j].Position
	})
}
