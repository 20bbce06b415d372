package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/domain/caserecord"
	"github.com/genetica/genetica/internal/domain/clinicalrecord"
	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/db"
	"github.com/genetica/genetica/internal/platform/metrics"
)

// RecordService is the clinical record container.
type RecordService interface {
	Open(ctx context.Context, caseNumber int, motive clinicalrecord.Motive, geneticistID *uuid.UUID, ref clinicalrecord.Referral) (*clinicalrecord.ClinicalRecord, error)
	Get(ctx context.Context, id uuid.UUID) (*clinicalrecord.ClinicalRecord, error)
	UpdateReferral(ctx context.Context, id uuid.UUID, ref clinicalrecord.Referral) (*clinicalrecord.ClinicalRecord, error)
}

// SubjectService manages individuals, couples and parents.
type SubjectService interface {
	UpsertIndividual(ctx context.Context, fields subject.IndividualFields, recordID *uuid.UUID) (*subject.Individual, error)
	GetIndividual(ctx context.Context, id uuid.UUID) (*subject.Individual, error)
	IndividualByBirthID(ctx context.Context, birthID string) (*subject.Individual, error)
	IndividualsOfRecord(ctx context.Context, recordID uuid.UUID) ([]*subject.Individual, error)
	DetachOthers(ctx context.Context, recordID uuid.UUID, keep ...uuid.UUID) error
	SetStatus(ctx context.Context, id uuid.UUID, status subject.Status) (*subject.Individual, error)
	PairCouple(ctx context.Context, a, b uuid.UUID) (*subject.Couple, error)
	CoupleOf(ctx context.Context, a, b uuid.UUID) (*subject.Couple, error)
	UpsertParents(ctx context.Context, individualID uuid.UUID, father, mother subject.ParentFields) (*subject.ParentInfo, *subject.ParentInfo, error)
	Parents(ctx context.Context, individualID uuid.UUID) ([]*subject.ParentInfo, error)
}

// CaseRecordService stores the per-subject case records.
type CaseRecordService interface {
	UpsertFamilyHistory(ctx context.Context, subj subject.Subject, f caserecord.FamilyHistoryFields) (*caserecord.FamilyHistory, error)
	UpsertPersonalHistory(ctx context.Context, subj subject.Subject, f caserecord.PersonalHistoryFields) (*caserecord.PersonalHistory, error)
	UpsertDevelopment(ctx context.Context, subj subject.Subject, f caserecord.DevelopmentFields) (*caserecord.Development, error)
	UpsertNeonatal(ctx context.Context, subj subject.Subject, f caserecord.NeonatalFields) (*caserecord.Neonatal, error)
	UpsertPhysicalExam(ctx context.Context, individualID uuid.UUID, f caserecord.PhysicalExamFields) (*caserecord.PhysicalExam, error)
	UpsertEvaluation(ctx context.Context, subj subject.Subject, in caserecord.EvaluationInput) (*caserecord.GeneticEvaluation, error)
	FamilyHistory(ctx context.Context, subj subject.Subject) (*caserecord.FamilyHistory, error)
	PersonalHistory(ctx context.Context, subj subject.Subject) (*caserecord.PersonalHistory, error)
	Development(ctx context.Context, subj subject.Subject) (*caserecord.Development, error)
	Neonatal(ctx context.Context, subj subject.Subject) (*caserecord.Neonatal, error)
	PhysicalExam(ctx context.Context, individualID uuid.UUID) (*caserecord.PhysicalExam, error)
	Evaluation(ctx context.Context, subj subject.Subject) (*caserecord.GeneticEvaluation, error)
	Presence(ctx context.Context, subj subject.Subject) (caserecord.Presence, error)
	ExamsRecorded(ctx context.Context, individualIDs ...uuid.UUID) (map[uuid.UUID]bool, error)
}

// Engine runs the intake steps of a case on behalf of the actor bound to
// the request context.
type Engine struct {
	records  RecordService
	subjects SubjectService
	cases    CaseRecordService
	tx       db.Transactor
	metrics  *metrics.Metrics
	logger   zerolog.Logger
}

func NewEngine(records RecordService, subjects SubjectService, cases CaseRecordService, tx db.Transactor, m *metrics.Metrics, logger zerolog.Logger) *Engine {
	return &Engine{
		records:  records,
		subjects: subjects,
		cases:    cases,
		tx:       tx,
		metrics:  m,
		logger:   logger.With().Str("component", "workflow").Logger(),
	}
}

// caseState is a loaded case: the record, the subject when established and
// the individuals it stands for.
type caseState struct {
	record   *clinicalrecord.ClinicalRecord
	subject  subject.Subject
	members  []*subject.Individual
	progress Progress
}

func (c *caseState) established() bool { return c.subject.Valid() }

func (c *caseState) memberIDs() []uuid.UUID {
	ids := make([]uuid.UUID, len(c.members))
	for i, m := range c.members {
		ids[i] = m.ID
	}
	return ids
}

// resolveSubject finds the subject linked to rec. An individual case has
// one linked individual; a couple case has two, bound into a couple.
func (e *Engine) resolveSubject(ctx context.Context, rec *clinicalrecord.ClinicalRecord) (subject.Subject, []*subject.Individual, error) {
	members, err := e.subjects.IndividualsOfRecord(ctx, rec.ID)
	if err != nil {
		return subject.Subject{}, nil, err
	}
	switch rec.Motive.SubjectKind() {
	case subject.KindIndividual:
		if len(members) == 1 {
			return subject.OfIndividual(members[0].ID), members, nil
		}
	case subject.KindCouple:
		if len(members) == 2 {
			c, err := e.subjects.CoupleOf(ctx, members[0].ID, members[1].ID)
			switch {
			case err == nil:
				return subject.OfCouple(c.ID), orderMembers(c, members), nil
			case !errors.Is(err, apperr.ErrNotFound):
				return subject.Subject{}, nil, err
			}
		}
	}
	return subject.Subject{}, members, nil
}

// orderMembers returns members in the couple's canonical order.
func orderMembers(c *subject.Couple, members []*subject.Individual) []*subject.Individual {
	if members[0].ID == c.Member1ID {
		return members
	}
	return []*subject.Individual{members[1], members[0]}
}

// facts gathers the observations DeriveState needs for a case.
func (e *Engine) facts(ctx context.Context, rec *clinicalrecord.ClinicalRecord, subj subject.Subject, members []*subject.Individual) (Facts, error) {
	f := Facts{Motive: rec.Motive, SubjectEstablished: subj.Valid()}
	if !f.SubjectEstablished {
		return f, nil
	}
	for _, m := range members {
		f.Members = append(f.Members, m.ID)
	}

	if id, ok := subj.Individual(); ok {
		parents, err := e.subjects.Parents(ctx, id)
		if err != nil {
			return f, err
		}
		kinds := map[subject.ParentKind]bool{}
		for _, p := range parents {
			kinds[p.Kind] = true
		}
		f.ParentsRecorded = kinds[subject.Father] && kinds[subject.Mother]
	}

	presence, err := e.cases.Presence(ctx, subj)
	if err != nil {
		return f, err
	}
	f.PersonalHistory = presence.PersonalHistory
	f.Development = presence.Development
	f.Neonatal = presence.Neonatal
	f.FamilyHistory = presence.FamilyHistory
	f.Evaluation = presence.Evaluation

	if f.Exams, err = e.cases.ExamsRecorded(ctx, f.Members...); err != nil {
		return f, err
	}
	return f, nil
}

func (e *Engine) load(ctx context.Context, recordID uuid.UUID) (*caseState, error) {
	rec, err := e.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	subj, members, err := e.resolveSubject(ctx, rec)
	if err != nil {
		return nil, err
	}
	f, err := e.facts(ctx, rec, subj, members)
	if err != nil {
		return nil, err
	}
	return &caseState{record: rec, subject: subj, members: members, progress: DeriveState(f)}, nil
}

// loadForRead loads a case the actor may read.
func (e *Engine) loadForRead(ctx context.Context, recordID uuid.UUID) (*caseState, error) {
	actor, err := access.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := e.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := actor.AuthorizeRead(rec.GeneticistID); err != nil {
		return nil, err
	}
	return e.load(ctx, recordID)
}

// loadForStep loads a case for a write to step, checking the actor's write
// permission, the motive and the step order.
func (e *Engine) loadForStep(ctx context.Context, recordID uuid.UUID, step Step) (*caseState, error) {
	actor, err := access.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	cs, err := e.load(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := actor.AuthorizeWrite(cs.record.GeneticistID); err != nil {
		return nil, err
	}
	if err := cs.progress.CanEnter(step); err != nil {
		return nil, err
	}
	if step != StepSubjectEstablished && !cs.established() {
		return nil, fmt.Errorf("case %d has no subject: %w", cs.record.CaseNumber, apperr.ErrInvalidState)
	}
	if cs.subject.Kind() == subject.KindCouple {
		if err := e.authorizeCouple(ctx, actor, cs); err != nil {
			return nil, err
		}
	}
	return cs, nil
}

// authorizeCouple requires the actor to own the record of at least one
// couple member.
func (e *Engine) authorizeCouple(ctx context.Context, actor *access.Actor, cs *caseState) error {
	owners := make([]*uuid.UUID, 0, len(cs.members))
	for _, m := range cs.members {
		owner, err := e.ownerOf(ctx, m.RecordID)
		if err != nil {
			return err
		}
		owners = append(owners, owner)
	}
	return actor.AuthorizeCouple(owners...)
}

func (e *Engine) ownerOf(ctx context.Context, recordID *uuid.UUID) (*uuid.UUID, error) {
	if recordID == nil {
		return nil, nil
	}
	rec, err := e.records.Get(ctx, *recordID)
	if err != nil {
		return nil, err
	}
	return rec.GeneticistID, nil
}

// step runs fn for a workflow step, recording its outcome.
func (e *Engine) step(ctx context.Context, step Step, recordID uuid.UUID, fn func(ctx context.Context) error) error {
	err := fn(ctx)
	outcome := outcomeOf(err)
	e.metrics.StepCompleted(string(step), outcome)

	evt := e.logger.Info()
	if err != nil {
		evt = e.logger.Warn().Err(err)
	}
	evt.Str("step", string(step)).
		Str("record_id", recordID.String()).
		Str("outcome", outcome).
		Msg("workflow step")
	return err
}

func outcomeOf(err error) string {
	var verr *apperr.ValidationError
	switch {
	case err == nil:
		return "ok"
	case errors.As(err, &verr):
		return "invalid"
	case errors.Is(err, apperr.ErrForbidden):
		return "forbidden"
	case errors.Is(err, apperr.ErrInvalidState):
		return "out_of_order"
	case errors.Is(err, apperr.ErrNotFound):
		return "not_found"
	case errors.Is(err, apperr.ErrDuplicateCaseNumber), errors.Is(err, apperr.ErrConflict):
		return "conflict"
	}
	return "error"
}
