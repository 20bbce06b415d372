// Package report serves the scoped read side of the case store: report
// searches over cases, quick lookups of individuals and summary counts.
// Every query is restricted to the caller's access scope before any other
// filter is applied.
package report

import (
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/domain/clinicalrecord"
	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/platform/apperr"
)

const (
	QuickSearchLimit = 10
	RecentLimit      = 5
)

// Filter narrows a case report. Zero fields do not filter.
type Filter struct {
	Text         string       `json:"text,omitempty"`
	From         *time.Time   `json:"from,omitempty"`
	To           *time.Time   `json:"to,omitempty"`
	Kind         subject.Kind `json:"kind,omitempty"`
	GeneticistID *uuid.UUID   `json:"geneticist_id,omitempty"`
}

func (f *Filter) normalize() {
	f.Text = strings.TrimSpace(f.Text)
}

// Validate checks the date range and kind.
func (f Filter) Validate() error {
	v := &apperr.ValidationError{}
	if f.From != nil && f.To != nil && f.To.Before(*f.From) {
		v.Add("to", "must not be before from")
	}
	if f.Kind != "" && f.Kind != subject.KindIndividual && f.Kind != subject.KindCouple {
		v.Add("kind", "must be individual or couple")
	}
	return v.Err()
}

// toExclusive returns the instant after the last day covered by To.
func (f Filter) toExclusive() *time.Time {
	if f.To == nil {
		return nil
	}
	t := time.Date(f.To.Year(), f.To.Month(), f.To.Day(), 0, 0, 0, 0, f.To.Location()).AddDate(0, 0, 1)
	return &t
}

// Row is one individual under study in one case. Couple cases yield one row
// per member.
type Row struct {
	RecordID       uuid.UUID             `json:"record_id"`
	CaseNumber     int                   `json:"case_number"`
	Motive         clinicalrecord.Motive `json:"motive"`
	Kind           subject.Kind          `json:"kind"`
	GeneticistID   *uuid.UUID            `json:"geneticist_id,omitempty"`
	GeneticistName string                `json:"geneticist_name,omitempty"`
	OpenedAt       time.Time             `json:"opened_at"`
	IndividualID   uuid.UUID             `json:"individual_id"`
	FirstNames     string                `json:"first_names"`
	LastNames      string                `json:"last_names"`
	BirthID        string                `json:"birth_id"`
	Status         subject.Status        `json:"status"`
}

// IndividualHit is a quick-search result.
type IndividualHit struct {
	ID         uuid.UUID      `json:"id"`
	FirstNames string         `json:"first_names"`
	LastNames  string         `json:"last_names"`
	BirthID    string         `json:"birth_id"`
	Status     subject.Status `json:"status"`
	RecordID   *uuid.UUID     `json:"record_id,omitempty"`
	CaseNumber *int           `json:"case_number,omitempty"`
	CreatedAt  time.Time      `json:"created_at"`
}

// Summary counts the cases and individuals visible to the caller.
type Summary struct {
	GeneratedAt         time.Time      `json:"generated_at"`
	Cases               int            `json:"cases"`
	CasesByMotive       map[string]int `json:"cases_by_motive"`
	IndividualsByStatus map[string]int `json:"individuals_by_status"`
}

func newSummary(now time.Time) *Summary {
	s := &Summary{
		GeneratedAt:         now,
		CasesByMotive:       make(map[string]int, len(clinicalrecord.Motives)),
		IndividualsByStatus: make(map[string]int, 3),
	}
	for _, m := range clinicalrecord.Motives {
		s.CasesByMotive[string(m)] = 0
	}
	for _, st := range []subject.Status{subject.StatusActive, subject.StatusInactive, subject.StatusInFollowUp} {
		s.IndividualsByStatus[string(st)] = 0
	}
	return s
}
