package caserecord

import (
	"context"
	"time"

	"github.com/genetica/genetica/internal/domain/subject"
)

// record is satisfied by a pointer to any case record type.
type record[T any] interface {
	*T
	base() *Base
	Validate(today time.Time) error
}

// Store persists one record type, at most one row per subject.
type Store[T any] interface {
	Get(ctx context.Context, subj subject.Subject) (*T, error)
	// Upsert inserts rec or updates the row of its subject, writing the
	// stored id and timestamps back into rec.
	Upsert(ctx context.Context, rec *T) error
}

// Repositories groups the stores of every record type. The evaluation store
// replaces the diagnosis and plan lists of the row on every upsert.
type Repositories struct {
	Family      Store[FamilyHistory]
	Personal    Store[PersonalHistory]
	Development Store[Development]
	Neonatal    Store[Neonatal]
	Exams       Store[PhysicalExam]
	Evaluations Store[GeneticEvaluation]
}
