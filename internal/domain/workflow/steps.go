package workflow

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/domain/caserecord"
	"github.com/genetica/genetica/internal/domain/clinicalrecord"
	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/patch"
)

// OpenRequest opens a clinical record.
type OpenRequest struct {
	CaseNumber int                     `json:"case_number"`
	Motive     clinicalrecord.Motive   `json:"motive"`
	Referral   clinicalrecord.Referral `json:"referral"`
	// GeneticistID assigns the record to a geneticist. Only administrators
	// may set it; a geneticist always owns what they open.
	GeneticistID *uuid.UUID `json:"geneticist_id,omitempty"`
}

// CaseView is a record together with its derived state.
type CaseView struct {
	Record   *clinicalrecord.ClinicalRecord `json:"record"`
	Subject  subject.Subject                `json:"subject"`
	Members  []*subject.Individual          `json:"members"`
	Progress Progress                       `json:"progress"`
}

func (c *caseState) view() *CaseView {
	members := c.members
	if members == nil {
		members = []*subject.Individual{}
	}
	return &CaseView{Record: c.record, Subject: c.subject, Members: members, Progress: c.progress}
}

// OpenRecord opens a new clinical record on behalf of the actor.
func (e *Engine) OpenRecord(ctx context.Context, req OpenRequest) (*CaseView, error) {
	var view *CaseView
	err := e.step(ctx, StepRecordOpened, uuid.Nil, func(ctx context.Context) error {
		actor, err := access.ActorFromContext(ctx)
		if err != nil {
			return err
		}
		if err := actor.AuthorizeCreate(); err != nil {
			return err
		}

		owner := req.GeneticistID
		if actor.Role() == access.RoleGeneticist {
			if owner != nil && *owner != actor.Profile.ID {
				return fmt.Errorf("geneticists open records for themselves: %w", apperr.ErrForbidden)
			}
			id := actor.Profile.ID
			owner = &id
		}

		rec, err := e.records.Open(ctx, req.CaseNumber, req.Motive, owner, req.Referral)
		if err != nil {
			return err
		}
		e.metrics.RecordOpened(string(rec.Motive))
		view = &CaseView{
			Record:   rec,
			Members:  []*subject.Individual{},
			Progress: DeriveState(Facts{Motive: rec.Motive}),
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// State returns the record and its derived workflow state.
func (e *Engine) State(ctx context.Context, recordID uuid.UUID) (*CaseView, error) {
	cs, err := e.loadForRead(ctx, recordID)
	if err != nil {
		return nil, err
	}
	return cs.view(), nil
}

// UpdateReferral edits the referral block of a record.
func (e *Engine) UpdateReferral(ctx context.Context, recordID uuid.UUID, ref clinicalrecord.Referral) (*clinicalrecord.ClinicalRecord, error) {
	actor, err := access.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	rec, err := e.records.Get(ctx, recordID)
	if err != nil {
		return nil, err
	}
	if err := actor.AuthorizeWrite(rec.GeneticistID); err != nil {
		return nil, err
	}
	return e.records.UpdateReferral(ctx, recordID, ref)
}

// inTx runs a write step inside one transaction and returns the state the
// step leaves the case in.
func (e *Engine) inTx(ctx context.Context, recordID uuid.UUID, step Step, fn func(ctx context.Context, cs *caseState) error) (*CaseView, error) {
	var view *CaseView
	err := e.step(ctx, step, recordID, func(ctx context.Context) error {
		return e.tx.InTx(ctx, func(ctx context.Context) error {
			cs, err := e.loadForStep(ctx, recordID, step)
			if err != nil {
				return err
			}
			if err := fn(ctx, cs); err != nil {
				return err
			}
			after, err := e.load(ctx, recordID)
			if err != nil {
				return err
			}
			view = after.view()
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return view, nil
}

// claim upserts an individual by birth id and links it to rec. An
// individual already linked to another record is moved only when the actor
// may write that record.
func (e *Engine) claim(ctx context.Context, rec *clinicalrecord.ClinicalRecord, fields subject.IndividualFields) (*subject.Individual, error) {
	if birthID := patch.Text(fields.BirthID); birthID != nil {
		existing, err := e.subjects.IndividualByBirthID(ctx, *birthID)
		switch {
		case errors.Is(err, apperr.ErrNotFound):
		case err != nil:
			return nil, err
		case existing.RecordID != nil && *existing.RecordID != rec.ID:
			actor, err := access.ActorFromContext(ctx)
			if err != nil {
				return nil, err
			}
			owner, err := e.ownerOf(ctx, existing.RecordID)
			if err != nil && !errors.Is(err, apperr.ErrNotFound) {
				return nil, err
			}
			if err := actor.AuthorizeWrite(owner); err != nil {
				return nil, fmt.Errorf("individual %s belongs to another record: %w", *birthID, err)
			}
		}
	}
	id := rec.ID
	return e.subjects.UpsertIndividual(ctx, fields, &id)
}

// EstablishIndividual sets the subject of an individual diagnostic case.
// Submitting a different birth id replaces the subject.
func (e *Engine) EstablishIndividual(ctx context.Context, recordID uuid.UUID, fields subject.IndividualFields) (*CaseView, error) {
	return e.inTx(ctx, recordID, StepSubjectEstablished, func(ctx context.Context, cs *caseState) error {
		if cs.record.Motive.SubjectKind() != subject.KindIndividual {
			return fmt.Errorf("%s cases need a couple: %w", cs.record.Motive, apperr.ErrInvalidState)
		}
		ind, err := e.claim(ctx, cs.record, fields)
		if err != nil {
			return err
		}
		return e.subjects.DetachOthers(ctx, cs.record.ID, ind.ID)
	})
}

// EstablishCouple sets the subject of a couple case: both members are
// upserted by birth id, linked to the record and paired.
func (e *Engine) EstablishCouple(ctx context.Context, recordID uuid.UUID, members [2]subject.IndividualFields) (*CaseView, error) {
	return e.inTx(ctx, recordID, StepSubjectEstablished, func(ctx context.Context, cs *caseState) error {
		if cs.record.Motive.SubjectKind() != subject.KindCouple {
			return fmt.Errorf("%s cases need an individual: %w", cs.record.Motive, apperr.ErrInvalidState)
		}

		v := &apperr.ValidationError{}
		a := patch.Text(members[0].BirthID)
		b := patch.Text(members[1].BirthID)
		if a == nil {
			v.Add("members[0].birth_id", "is required")
		}
		if b == nil {
			v.Add("members[1].birth_id", "is required")
		}
		if err := v.Err(); err != nil {
			return err
		}
		if *a == *b {
			return apperr.ErrSelfPairing
		}

		var ids [2]uuid.UUID
		for i, f := range members {
			ind, err := e.claim(ctx, cs.record, f)
			if err != nil {
				var ve *apperr.ValidationError
				if errors.As(err, &ve) {
					out := &apperr.ValidationError{}
					out.Merge(fmt.Sprintf("members[%d]", i), ve)
					return out
				}
				return err
			}
			ids[i] = ind.ID
		}
		if _, err := e.subjects.PairCouple(ctx, ids[0], ids[1]); err != nil {
			return err
		}
		return e.subjects.DetachOthers(ctx, cs.record.ID, ids[0], ids[1])
	})
}

// RecordParents writes both parents of the individual under study.
func (e *Engine) RecordParents(ctx context.Context, recordID uuid.UUID, father, mother subject.ParentFields) (*CaseView, error) {
	return e.inTx(ctx, recordID, StepParentsRecorded, func(ctx context.Context, cs *caseState) error {
		id, ok := cs.subject.Individual()
		if !ok {
			return apperr.ErrInvalidSubjectBinding
		}
		_, _, err := e.subjects.UpsertParents(ctx, id, father, mother)
		return err
	})
}

// PersonalHistoryInput is the personal history step: the subject's personal
// history together with its development and neonatal records.
type PersonalHistoryInput struct {
	Personal    caserecord.PersonalHistoryFields `json:"personal"`
	Development caserecord.DevelopmentFields     `json:"development"`
	Neonatal    caserecord.NeonatalFields        `json:"neonatal"`
}

// RecordPersonalHistory writes the three records of the personal history
// step. Violations of all three are reported together and nothing is
// written when any is present.
func (e *Engine) RecordPersonalHistory(ctx context.Context, recordID uuid.UUID, in PersonalHistoryInput) (*CaseView, error) {
	return e.inTx(ctx, recordID, StepPersonalHistoryRecorded, func(ctx context.Context, cs *caseState) error {
		v := &apperr.ValidationError{}
		collect := func(prefix string, err error) error {
			var ve *apperr.ValidationError
			if errors.As(err, &ve) {
				v.Merge(prefix, ve)
				return nil
			}
			return err
		}

		_, err := e.cases.UpsertPersonalHistory(ctx, cs.subject, in.Personal)
		if err = collect("personal", err); err != nil {
			return err
		}
		_, err = e.cases.UpsertDevelopment(ctx, cs.subject, in.Development)
		if err = collect("development", err); err != nil {
			return err
		}
		_, err = e.cases.UpsertNeonatal(ctx, cs.subject, in.Neonatal)
		if err = collect("neonatal", err); err != nil {
			return err
		}
		return v.Err()
	})
}

// RecordPreconceptionHistory writes the family history of the subject.
func (e *Engine) RecordPreconceptionHistory(ctx context.Context, recordID uuid.UUID, f caserecord.FamilyHistoryFields) (*CaseView, error) {
	return e.inTx(ctx, recordID, StepPreconceptionHistoryRecorded, func(ctx context.Context, cs *caseState) error {
		_, err := e.cases.UpsertFamilyHistory(ctx, cs.subject, f)
		return err
	})
}

// RecordPhysicalExam writes the exam of one member. On a couple case the
// step completes once both members have one; until then the returned
// progress lists the member still pending.
func (e *Engine) RecordPhysicalExam(ctx context.Context, recordID, individualID uuid.UUID, f caserecord.PhysicalExamFields) (*CaseView, error) {
	return e.inTx(ctx, recordID, StepPhysicalExamRecorded, func(ctx context.Context, cs *caseState) error {
		member := false
		for _, id := range cs.memberIDs() {
			member = member || id == individualID
		}
		if !member {
			return apperr.Invalid("individual_id", "is not under study in case %d", cs.record.CaseNumber)
		}
		_, err := e.cases.UpsertPhysicalExam(ctx, individualID, f)
		return err
	})
}

// RecordEvaluation writes the genetic evaluation of the subject.
func (e *Engine) RecordEvaluation(ctx context.Context, recordID uuid.UUID, in caserecord.EvaluationInput) (*CaseView, error) {
	return e.inTx(ctx, recordID, StepEvaluationRecorded, func(ctx context.Context, cs *caseState) error {
		_, err := e.cases.UpsertEvaluation(ctx, cs.subject, in)
		return err
	})
}

// Dossier is everything recorded for a case.
type Dossier struct {
	CaseView
	Parents         []*subject.ParentInfo         `json:"parents,omitempty"`
	FamilyHistory   *caserecord.FamilyHistory     `json:"family_history,omitempty"`
	PersonalHistory *caserecord.PersonalHistory   `json:"personal_history,omitempty"`
	Development     *caserecord.Development       `json:"development,omitempty"`
	Neonatal        *caserecord.Neonatal          `json:"neonatal,omitempty"`
	PhysicalExams   []*caserecord.PhysicalExam    `json:"physical_exams,omitempty"`
	Evaluation      *caserecord.GeneticEvaluation `json:"evaluation,omitempty"`
}

// optional turns ErrNotFound into a nil result.
func optional[T any](v *T, err error) (*T, error) {
	if errors.Is(err, apperr.ErrNotFound) {
		return nil, nil
	}
	return v, err
}

// Dossier loads every record of a case concurrently.
func (e *Engine) Dossier(ctx context.Context, recordID uuid.UUID) (*Dossier, error) {
	cs, err := e.loadForRead(ctx, recordID)
	if err != nil {
		return nil, err
	}
	d := &Dossier{CaseView: *cs.view()}
	if !cs.established() {
		return d, nil
	}
	subj := cs.subject

	g, gctx := errgroup.WithContext(ctx)
	if id, ok := subj.Individual(); ok {
		g.Go(func() (err error) {
			d.Parents, err = e.subjects.Parents(gctx, id)
			return err
		})
	}
	g.Go(func() error {
		v, err := e.cases.FamilyHistory(gctx, subj)
		d.FamilyHistory, err = optional(v, err)
		return err
	})
	g.Go(func() error {
		v, err := e.cases.PersonalHistory(gctx, subj)
		d.PersonalHistory, err = optional(v, err)
		return err
	})
	g.Go(func() error {
		v, err := e.cases.Development(gctx, subj)
		d.Development, err = optional(v, err)
		return err
	})
	g.Go(func() error {
		v, err := e.cases.Neonatal(gctx, subj)
		d.Neonatal, err = optional(v, err)
		return err
	})
	g.Go(func() error {
		v, err := e.cases.Evaluation(gctx, subj)
		d.Evaluation, err = optional(v, err)
		return err
	})
	exams := make([]*caserecord.PhysicalExam, len(cs.members))
	for i, id := range cs.memberIDs() {
		i, id := i, id
		g.Go(func() error {
			v, err := e.cases.PhysicalExam(gctx, id)
			exams[i], err = optional(v, err)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	for _, ex := range exams {
		if ex != nil {
			d.PhysicalExams = append(d.PhysicalExams, ex)
		}
	}
	return d, nil
}

// GetIndividual returns an individual whose record the actor may read.
func (e *Engine) GetIndividual(ctx context.Context, id uuid.UUID) (*subject.Individual, error) {
	actor, err := access.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	ind, err := e.subjects.GetIndividual(ctx, id)
	if err != nil {
		return nil, err
	}
	owner, err := e.ownerOf(ctx, ind.RecordID)
	if err != nil {
		return nil, err
	}
	if err := actor.AuthorizeRead(owner); err != nil {
		return nil, err
	}
	return ind, nil
}

// SetIndividualStatus changes the follow-up status of an individual.
func (e *Engine) SetIndividualStatus(ctx context.Context, id uuid.UUID, status subject.Status) (*subject.Individual, error) {
	actor, err := access.ActorFromContext(ctx)
	if err != nil {
		return nil, err
	}
	ind, err := e.subjects.GetIndividual(ctx, id)
	if err != nil {
		return nil, err
	}
	owner, err := e.ownerOf(ctx, ind.RecordID)
	if err != nil {
		return nil, err
	}
	if err := actor.AuthorizeWrite(owner); err != nil {
		return nil, err
	}
	return e.subjects.SetStatus(ctx, id, status)
}
