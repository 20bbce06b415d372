package caserecord

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/db"
	"github.com/genetica/genetica/internal/platform/patch"
	"github.com/genetica/genetica/internal/platform/validate"
)

// SubjectResolver confirms that a subject exists. subject.Service
// satisfies it.
type SubjectResolver interface {
	Members(ctx context.Context, subj subject.Subject) ([]*subject.Individual, error)
}

type Service struct {
	repos    Repositories
	subjects SubjectResolver
	tx       db.Transactor
	now      func() time.Time
}

func NewService(repos Repositories, subjects SubjectResolver, tx db.Transactor) *Service {
	return &Service{repos: repos, subjects: subjects, tx: tx, now: time.Now}
}

// upsert loads the record of subj, applies merge to it, re-checks the
// subject binding, validates the result and stores it. The read and the
// write share one transaction. A merge error aborts the write.
func upsert[T any, PT record[T]](ctx context.Context, s *Service, store Store[T], subj subject.Subject, merge func(PT) error) (*T, error) {
	if !subj.Valid() {
		return nil, apperr.ErrInvalidSubjectBinding
	}
	var out *T
	err := s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.subjects.Members(ctx, subj); err != nil {
			return err
		}
		rec, err := store.Get(ctx, subj)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
			rec = new(T)
			PT(rec).base().Subject = subj
		case err != nil:
			return err
		}

		if err := merge(PT(rec)); err != nil {
			return err
		}
		bound, err := PT(rec).base().Subject.Binding().Subject()
		if err != nil {
			return err
		}
		if bound != subj {
			return apperr.ErrInvalidSubjectBinding
		}
		if err := PT(rec).Validate(validate.Today(s.now())); err != nil {
			return err
		}
		if err := store.Upsert(ctx, rec); err != nil {
			return err
		}
		out = rec
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func exists[T any](ctx context.Context, store Store[T], subj subject.Subject) (bool, error) {
	_, err := store.Get(ctx, subj)
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, apperr.ErrNotFound):
		return false, nil
	}
	return false, err
}

func (s *Service) UpsertFamilyHistory(ctx context.Context, subj subject.Subject, f FamilyHistoryFields) (*FamilyHistory, error) {
	return upsert(ctx, s, s.repos.Family, subj, func(r *FamilyHistory) error {
		patch.Apply(&r.FamilyHistoryFields, f)
		r.normalize()
		return nil
	})
}

func (s *Service) UpsertPersonalHistory(ctx context.Context, subj subject.Subject, f PersonalHistoryFields) (*PersonalHistory, error) {
	return upsert(ctx, s, s.repos.Personal, subj, func(r *PersonalHistory) error {
		patch.Apply(&r.PersonalHistoryFields, f)
		return nil
	})
}

func (s *Service) UpsertDevelopment(ctx context.Context, subj subject.Subject, f DevelopmentFields) (*Development, error) {
	return upsert(ctx, s, s.repos.Development, subj, func(r *Development) error {
		patch.Apply(&r.DevelopmentFields, f)
		return nil
	})
}

func (s *Service) UpsertNeonatal(ctx context.Context, subj subject.Subject, f NeonatalFields) (*Neonatal, error) {
	return upsert(ctx, s, s.repos.Neonatal, subj, func(r *Neonatal) error {
		patch.Apply(&r.NeonatalFields, f)
		return nil
	})
}

// UpsertPhysicalExam records the exam of one individual. The exam date is
// set when the exam is first stored.
func (s *Service) UpsertPhysicalExam(ctx context.Context, individualID uuid.UUID, f PhysicalExamFields) (*PhysicalExam, error) {
	return upsert(ctx, s, s.repos.Exams, subject.OfIndividual(individualID), func(r *PhysicalExam) error {
		patch.Apply(&r.PhysicalExamFields, f)
		if r.ExamDate == nil {
			today := validate.Today(s.now())
			r.ExamDate = &today
		}
		return nil
	})
}

// UpsertEvaluation merges the evaluation fields and rebuilds both lists from
// in; an omitted list is stored empty. Items without a description or action
// are dropped. A pending plan item may not be written with a past target
// date unless it is already stored unchanged.
func (s *Service) UpsertEvaluation(ctx context.Context, subj subject.Subject, in EvaluationInput) (*GeneticEvaluation, error) {
	return upsert(ctx, s, s.repos.Evaluations, subj, func(r *GeneticEvaluation) error {
		stored := r.Plan
		patch.Apply(&r.EvaluationFields, in.EvaluationFields)

		r.Diagnoses = make([]PresumptiveDiagnosis, 0, len(in.Diagnoses))
		for _, d := range in.Diagnoses {
			desc := strings.TrimSpace(d.Description)
			if desc == "" {
				continue
			}
			r.Diagnoses = append(r.Diagnoses, PresumptiveDiagnosis{
				Description: desc,
				Priority:    d.Priority,
				Position:    len(r.Diagnoses),
			})
		}
		sortDiagnoses(r.Diagnoses)

		r.Plan = make([]StudyPlanItem, 0, len(in.Plan))
		for _, it := range in.Plan {
			action := strings.TrimSpace(it.Action)
			if action == "" {
				continue
			}
			r.Plan = append(r.Plan, StudyPlanItem{
				Action:     action,
				Completed:  it.Completed,
				TargetDate: it.TargetDate,
				Position:   len(r.Plan),
			})
		}
		return checkPlanDates(r.Plan, stored, validate.Today(s.now()))
	})
}

func (s *Service) FamilyHistory(ctx context.Context, subj subject.Subject) (*FamilyHistory, error) {
	return s.repos.Family.Get(ctx, subj)
}

func (s *Service) PersonalHistory(ctx context.Context, subj subject.Subject) (*PersonalHistory, error) {
	return s.repos.Personal.Get(ctx, subj)
}

func (s *Service) Development(ctx context.Context, subj subject.Subject) (*Development, error) {
	return s.repos.Development.Get(ctx, subj)
}

func (s *Service) Neonatal(ctx context.Context, subj subject.Subject) (*Neonatal, error) {
	return s.repos.Neonatal.Get(ctx, subj)
}

func (s *Service) PhysicalExam(ctx context.Context, individualID uuid.UUID) (*PhysicalExam, error) {
	return s.repos.Exams.Get(ctx, subject.OfIndividual(individualID))
}

func (s *Service) Evaluation(ctx context.Context, subj subject.Subject) (*GeneticEvaluation, error) {
	return s.repos.Evaluations.Get(ctx, subj)
}

// Presence reports which subject-level records exist.
type Presence struct {
	FamilyHistory   bool
	PersonalHistory bool
	Development     bool
	Neonatal        bool
	Evaluation      bool
}

func (s *Service) Presence(ctx context.Context, subj subject.Subject) (Presence, error) {
	var p Presence
	var err error
	if p.FamilyHistory, err = exists(ctx, s.repos.Family, subj); err != nil {
		return p, err
	}
	if p.PersonalHistory, err = exists(ctx, s.repos.Personal, subj); err != nil {
		return p, err
	}
	if p.Development, err = exists(ctx, s.repos.Development, subj); err != nil {
		return p, err
	}
	if p.Neonatal, err = exists(ctx, s.repos.Neonatal, subj); err != nil {
		return p, err
	}
	if p.Evaluation, err = exists(ctx, s.repos.Evaluations, subj); err != nil {
		return p, err
	}
	return p, nil
}

// ExamsRecorded reports, per individual, whether a physical exam exists.
func (s *Service) ExamsRecorded(ctx context.Context, individualIDs ...uuid.UUID) (map[uuid.UUID]bool, error) {
	out := make(map[uuid.UUID]bool, len(individualIDs))
	for _, id := range individualIDs {
		ok, err := exists(ctx, s.repos.Exams, subject.OfIndividual(id))
		if err != nil {
			return nil, err
		}
		out[id] = ok
	}
	return out, nil
}
