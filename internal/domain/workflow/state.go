// Package workflow drives a case through its intake steps. The current step
// is never stored: DeriveState computes it from the records that exist, and
// every step may be re-entered to edit what it wrote.
package workflow

import (
	"fmt"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/domain/clinicalrecord"
	"github.com/genetica/genetica/internal/platform/apperr"
)

type Step string

const (
	StepRecordOpened                 Step = "record_opened"
	StepSubjectEstablished           Step = "subject_established"
	StepParentsRecorded              Step = "parents_recorded"
	StepPersonalHistoryRecorded      Step = "personal_history_recorded"
	StepPreconceptionHistoryRecorded Step = "preconception_history_recorded"
	StepPhysicalExamRecorded         Step = "physical_exam_recorded"
	StepEvaluationRecorded           Step = "evaluation_recorded"
)

var (
	individualPath = []Step{
		StepRecordOpened,
		StepSubjectEstablished,
		StepParentsRecorded,
		StepPersonalHistoryRecorded,
		StepPreconceptionHistoryRecorded,
		StepPhysicalExamRecorded,
		StepEvaluationRecorded,
	}
	couplePath = []Step{
		StepRecordOpened,
		StepSubjectEstablished,
		StepPersonalHistoryRecorded,
		StepPreconceptionHistoryRecorded,
		StepPhysicalExamRecorded,
		StepEvaluationRecorded,
	}
)

// Path returns the ordered steps of a case opened with motive. Couple cases
// have no parents step.
func Path(m clinicalrecord.Motive) []Step {
	if m == clinicalrecord.MotiveIndividualDiagnostic {
		return individualPath
	}
	return couplePath
}

// Facts are the observations DeriveState works from.
type Facts struct {
	Motive             clinicalrecord.Motive
	SubjectEstablished bool
	// Members lists the individuals of the subject in a stable order.
	Members         []uuid.UUID
	ParentsRecorded bool
	PersonalHistory bool
	Development     bool
	Neonatal        bool
	FamilyHistory   bool
	Exams           map[uuid.UUID]bool
	Evaluation      bool
}

// Progress is the derived workflow state of a case.
type Progress struct {
	Motive    clinicalrecord.Motive `json:"motive"`
	Path      []Step                `json:"path"`
	Completed []Step                `json:"completed"`
	// Current is the last step of the completed prefix of Path.
	Current Step `json:"current"`
	// Next is the step to fill in, empty once the case is complete.
	Next Step `json:"next,omitempty"`
	// PendingExams lists members still missing a physical exam.
	PendingExams []uuid.UUID `json:"pending_exams,omitempty"`
}

func (f Facts) done(s Step) bool {
	switch s {
	case StepRecordOpened:
		return true
	case StepSubjectEstablished:
		return f.SubjectEstablished
	case StepParentsRecorded:
		return f.SubjectEstablished && f.ParentsRecorded
	case StepPersonalHistoryRecorded:
		return f.SubjectEstablished && f.PersonalHistory && f.Development && f.Neonatal
	case StepPreconceptionHistoryRecorded:
		return f.SubjectEstablished && f.FamilyHistory
	case StepPhysicalExamRecorded:
		return f.SubjectEstablished && len(f.Members) > 0 && len(f.pendingExams()) == 0
	case StepEvaluationRecorded:
		return f.SubjectEstablished && f.Evaluation
	}
	return false
}

func (f Facts) pendingExams() []uuid.UUID {
	var out []uuid.UUID
	for _, id := range f.Members {
		if !f.Exams[id] {
			out = append(out, id)
		}
	}
	return out
}

// DeriveState computes the workflow state from f. Steps count as reached
// only as a contiguous prefix of the path; a later record without its
// predecessors does not advance the case.
func DeriveState(f Facts) Progress {
	path := Path(f.Motive)
	p := Progress{Motive: f.Motive, Path: path, Current: StepRecordOpened}

	prefix := true
	for i, s := range path {
		if !f.done(s) {
			if prefix {
				p.Next = s
			}
			prefix = false
			continue
		}
		p.Completed = append(p.Completed, s)
		if prefix {
			p.Current = path[i]
		}
	}
	if f.SubjectEstablished {
		p.PendingExams = f.pendingExams()
	}
	return p
}

func index(path []Step, s Step) int {
	for i, p := range path {
		if p == s {
			return i
		}
	}
	return -1
}

// CanEnter reports whether step s may be submitted: it must belong to the
// case's path and be either already reached or the next step.
func (p Progress) CanEnter(s Step) error {
	i := index(p.Path, s)
	if i < 0 {
		return fmt.Errorf("%s does not apply to %s cases: %w", s, p.Motive, apperr.ErrInvalidState)
	}
	if i > index(p.Path, p.Current)+1 {
		return fmt.Errorf("%s requires %s first: %w", s, p.Next, apperr.ErrInvalidState)
	}
	return nil
}

// Complete reports whether every step of the path is done.
func (p Progress) Complete() bool {
	return p.Current == p.Path[len(p.Path)-1]
}
