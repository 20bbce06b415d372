package report

import (
	"context"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/domain/clinicalrecord"
	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/pkg/pagination"
)

type RecordLister interface {
	All() []clinicalrecord.ClinicalRecord
}

type IndividualLister interface {
	All() []subject.Individual
}

type ProfileGetter interface {
	GetByID(ctx context.Context, id uuid.UUID) (*access.Profile, error)
}

// memSource evaluates report queries over the memory repositories.
type memSource struct {
	records     RecordLister
	individuals IndividualLister
	profiles    ProfileGetter
}

func NewMemSource(records RecordLister, individuals IndividualLister, profiles ProfileGetter) Source {
	return &memSource{records: records, individuals: individuals, profiles: profiles}
}

func matches(text string, ind *subject.Individual, caseNumber *int) bool {
	if text == "" {
		return true
	}
	needle := strings.ToLower(text)
	first, last := strings.ToLower(deref(ind.FirstNames)), strings.ToLower(deref(ind.LastNames))
	for _, hay := range []string{first, last, first + " " + last, strings.ToLower(deref(ind.BirthID))} {
		if strings.Contains(hay, needle) {
			return true
		}
	}
	if n, err := strconv.Atoi(text); err == nil && caseNumber != nil {
		return *caseNumber == n
	}
	return false
}

func deref(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}

func (s *memSource) visibleRecords(scope access.Scope) map[uuid.UUID]clinicalrecord.ClinicalRecord {
	out := make(map[uuid.UUID]clinicalrecord.ClinicalRecord)
	for _, rec := range s.records.All() {
		if scope.Allows(rec.GeneticistID) {
			out[rec.ID] = rec
		}
	}
	return out
}

func (s *memSource) geneticistName(ctx context.Context, id *uuid.UUID, cache map[uuid.UUID]string) string {
	if id == nil {
		return ""
	}
	if name, ok := cache[*id]; ok {
		return name
	}
	name := ""
	if p, err := s.profiles.GetByID(ctx, *id); err == nil {
		name = p.DisplayName
	}
	cache[*id] = name
	return name
}

func (s *memSource) Cases(ctx context.Context, scope access.Scope, f Filter, p pagination.Params) ([]Row, int, error) {
	records := s.visibleRecords(scope)
	to := f.toExclusive()
	names := map[uuid.UUID]string{}

	var rows []Row
	for _, ind := range s.individuals.All() {
		if ind.RecordID == nil {
			continue
		}
		rec, ok := records[*ind.RecordID]
		if !ok {
			continue
		}
		kind := rec.Motive.SubjectKind()
		switch {
		case !matches(f.Text, &ind, &rec.CaseNumber):
			continue
		case f.From != nil && rec.CreatedAt.Before(*f.From):
			continue
		case to != nil && !rec.CreatedAt.Before(*to):
			continue
		case f.Kind != "" && f.Kind != kind:
			continue
		case f.GeneticistID != nil && (rec.GeneticistID == nil || *rec.GeneticistID != *f.GeneticistID):
			continue
		}
		rows = append(rows, Row{
			RecordID:       rec.ID,
			CaseNumber:     rec.CaseNumber,
			Motive:         rec.Motive,
			Kind:           kind,
			GeneticistID:   rec.GeneticistID,
			GeneticistName: s.geneticistName(ctx, rec.GeneticistID, names),
			OpenedAt:       rec.CreatedAt,
			IndividualID:   ind.ID,
			FirstNames:     deref(ind.FirstNames),
			LastNames:      deref(ind.LastNames),
			BirthID:        deref(ind.BirthID),
			Status:         ind.Status,
		})
	}

	sort.SliceStable(rows, func(i, j int) bool {
		a, b := rows[i], rows[j]
		switch {
		case !a.OpenedAt.Equal(b.OpenedAt):
			return a.OpenedAt.After(b.OpenedAt)
		case a.CaseNumber != b.CaseNumber:
			return a.CaseNumber < b.CaseNumber
		case a.LastNames != b.LastNames:
			return a.LastNames < b.LastNames
		case a.FirstNames != b.FirstNames:
			return a.FirstNames < b.FirstNames
		}
		return a.IndividualID.String() < b.IndividualID.String()
	})

	start, end := p.Window(len(rows))
	page := append([]Row{}, rows[start:end]...)
	return page, len(rows), nil
}

func (s *memSource) Individuals(_ context.Context, scope access.Scope, text string, limit int) ([]IndividualHit, error) {
	records := s.visibleRecords(scope)

	var hits []IndividualHit
	for _, ind := range s.individuals.All() {
		var rec *clinicalrecord.ClinicalRecord
		if ind.RecordID != nil {
			if r, ok := records[*ind.RecordID]; ok {
				rec = &r
			}
		}
		if rec == nil && !scope.Unrestricted() {
			continue
		}
		var caseNumber *int
		if rec != nil {
			n := rec.CaseNumber
			caseNumber = &n
		}
		if !matches(text, &ind, caseNumber) {
			continue
		}
		hits = append(hits, IndividualHit{
			ID:         ind.ID,
			FirstNames: deref(ind.FirstNames),
			LastNames:  deref(ind.LastNames),
			BirthID:    deref(ind.BirthID),
			Status:     ind.Status,
			RecordID:   ind.RecordID,
			CaseNumber: caseNumber,
			CreatedAt:  ind.CreatedAt,
		})
	}

	sort.SliceStable(hits, func(i, j int) bool {
		if !hits[i].CreatedAt.Equal(hits[j].CreatedAt) {
			return hits[i].CreatedAt.After(hits[j].CreatedAt)
		}
		return hits[i].ID.String() < hits[j].ID.String()
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	if hits == nil {
		hits = []IndividualHit{}
	}
	return hits, nil
}

func (s *memSource) Summary(_ context.Context, scope access.Scope, now time.Time) (*Summary, error) {
	out := newSummary(now)
	records := s.visibleRecords(scope)
	for _, rec := range records {
		out.CasesByMotive[string(rec.Motive)]++
		out.Cases++
	}
	for _, ind := range s.individuals.All() {
		visible := scope.Unrestricted()
		if ind.RecordID != nil {
			_, ok := records[*ind.RecordID]
			visible = visible || ok
		}
		if visible {
			out.IndividualsByStatus[string(ind.Status)]++
		}
	}
	return out, nil
}
