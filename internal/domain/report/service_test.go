package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/domain/clinicalrecord"
	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/pkg/pagination"
)

type records []clinicalrecord.ClinicalRecord

func (r records) All() []clinicalrecord.ClinicalRecord { return r }

type individuals []subject.Individual

func (i individuals) All() []subject.Individual { return i }

type profiles map[uuid.UUID]*access.Profile

func (p profiles) GetByID(_ context.Context, id uuid.UUID) (*access.Profile, error) {
	if pr, ok := p[id]; ok {
		return pr, nil
	}
	return nil, apperr.NotFound("profile")
}

func ptr[T any](v T) *T { return &v }

var day = time.Date(2024, 5, 10, 12, 0, 0, 0, time.UTC)

type fixture struct {
	svc     *Service
	mora    *access.Profile
	lima    *access.Profile
	records records
	people  individuals
}

func (f *fixture) record(n int, m clinicalrecord.Motive, owner *access.Profile, at time.Time) uuid.UUID {
	rec := clinicalrecord.ClinicalRecord{ID: uuid.New(), CaseNumber: n, Motive: m, CreatedAt: at}
	if owner != nil {
		rec.GeneticistID = &owner.ID
	}
	f.records = append(f.records, rec)
	return rec.ID
}

func (f *fixture) person(first, last, birthID string, recordID *uuid.UUID, at time.Time) {
	f.people = append(f.people, subject.Individual{
		ID:               uuid.New(),
		IndividualFields: subject.IndividualFields{FirstNames: ptr(first), LastNames: ptr(last), BirthID: ptr(birthID)},
		RecordID:         recordID,
		Status:           subject.StatusActive,
		CreatedAt:        at,
	})
}

// newFixture builds four cases: two owned by Mora (one of them a couple),
// one by Lima and one unowned, plus an unlinked individual.
func newFixture() *fixture {
	f := &fixture{
		mora: &access.Profile{ID: uuid.New(), UserID: "mora", DisplayName: "Dr. Mora", Role: access.RoleGeneticist},
		lima: &access.Profile{ID: uuid.New(), UserID: "lima", DisplayName: "Dr. Lima", Role: access.RoleGeneticist},
	}
	r1 := f.record(3, clinicalrecord.MotiveIndividualDiagnostic, f.mora, day)
	r2 := f.record(5, clinicalrecord.MotiveCouplePrenatal, f.mora, day)
	r3 := f.record(7, clinicalrecord.MotiveIndividualDiagnostic, f.lima, day.AddDate(0, 0, 1))
	r4 := f.record(9, clinicalrecord.MotiveCoupleBetrothal, nil, day.AddDate(0, 0, -3))

	f.person("Luis", "Rojas", "V-123", &r1, day)
	f.person("Ana", "Zerpa", "V-100", &r2, day.Add(time.Minute))
	f.person("Pedro", "Blanco", "V-200", &r2, day.Add(2*time.Minute))
	f.person("Eva", "Lima", "V-300", &r3, day.Add(3*time.Minute))
	f.person("Iris", "Paz", "V-400", &r4, day.Add(4*time.Minute))
	f.person("Noel", "Ruiz", "V-500", nil, day.Add(5*time.Minute))

	f.svc = NewService(NewMemSource(f.records, f.people, profiles{f.mora.ID: f.mora, f.lima.ID: f.lima}))
	f.svc.now = func() time.Time { return day }
	return f
}

func as(p *access.Profile) context.Context {
	return access.WithActor(context.Background(), access.NewActor(p))
}

func admin() context.Context {
	return as(&access.Profile{ID: uuid.New(), UserID: "root", Role: access.RoleAdministrator})
}

var firstPage = pagination.Params{Limit: 20}

func caseNumbers(rows []Row) []int {
	out := make([]int, len(rows))
	for i, r := range rows {
		out[i] = r.CaseNumber
	}
	return out
}

func TestSearch_OrderAndCoupleRows(t *testing.T) {
	f := newFixture()
	rows, total, err := f.svc.Search(admin(), Filter{}, firstPage)
	require.NoError(t, err)

	assert.Equal(t, 5, total)
	assert.Equal(t, []int{7, 3, 5, 5, 9}, caseNumbers(rows))

	couple := rows[2:4]
	assert.Equal(t, subject.KindCouple, couple[0].Kind)
	assert.Equal(t, "Blanco", couple[0].LastNames)
	assert.Equal(t, "Zerpa", couple[1].LastNames)
	assert.Equal(t, "Dr. Mora", couple[0].GeneticistName)
}

func TestSearch_ScopedByRole(t *testing.T) {
	f := newFixture()

	rows, _, err := f.svc.Search(as(f.mora), Filter{}, firstPage)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 5}, caseNumbers(rows))

	reader := &access.Profile{ID: uuid.New(), Role: access.RoleReader, AssociatedGeneticistID: &f.lima.ID}
	rows, _, err = f.svc.Search(as(reader), Filter{}, firstPage)
	require.NoError(t, err)
	assert.Equal(t, []int{7}, caseNumbers(rows))

	orphan := &access.Profile{ID: uuid.New(), Role: access.RoleReader}
	rows, total, err := f.svc.Search(as(orphan), Filter{}, firstPage)
	require.NoError(t, err)
	assert.Empty(t, rows)
	assert.Zero(t, total)

	_, _, err = f.svc.Search(context.Background(), Filter{}, firstPage)
	assert.ErrorIs(t, err, apperr.ErrForbidden)
}

func TestSearch_Filters(t *testing.T) {
	f := newFixture()
	ctx := admin()

	tests := []struct {
		name   string
		filter Filter
		want   []int
	}{
		{"birth id", Filter{Text: "v-12"}, []int{3}},
		{"full name", Filter{Text: "pedro blanco"}, []int{5}},
		{"case number", Filter{Text: "9"}, []int{9}},
		{"couples", Filter{Kind: subject.KindCouple}, []int{5, 5, 9}},
		{"individuals", Filter{Kind: subject.KindIndividual}, []int{7, 3}},
		{"geneticist", Filter{GeneticistID: &f.lima.ID}, []int{7}},
		{"to is inclusive", Filter{To: ptr(time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC))}, []int{3, 5, 5, 9}},
		{"from", Filter{From: ptr(day.AddDate(0, 0, 1))}, []int{7}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rows, _, err := f.svc.Search(ctx, tt.filter, firstPage)
			require.NoError(t, err)
			assert.Equal(t, tt.want, caseNumbers(rows))
		})
	}
}

func TestSearch_RejectsInvertedRange(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.Search(admin(), Filter{From: ptr(day), To: ptr(day.AddDate(0, 0, -1)), Kind: "group"}, firstPage)
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("to"))
	assert.True(t, verr.Has("kind"))
}

func TestSearch_Pagination(t *testing.T) {
	f := newFixture()
	rows, total, err := f.svc.Search(admin(), Filter{}, pagination.Params{Limit: 2, Offset: 2})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Equal(t, []int{5, 5}, caseNumbers(rows))

	rows, total, err = f.svc.Search(admin(), Filter{}, pagination.Params{Limit: 2, Offset: 10})
	require.NoError(t, err)
	assert.Equal(t, 5, total)
	assert.Empty(t, rows)
}

func TestQuickSearchAndRecent(t *testing.T) {
	f := newFixture()

	hits, err := f.svc.QuickSearch(as(f.mora), "  ")
	require.NoError(t, err)
	assert.Empty(t, hits)

	hits, err = f.svc.QuickSearch(as(f.mora), "v-")
	require.NoError(t, err)
	require.Len(t, hits, 3)
	assert.Equal(t, "Blanco", hits[0].LastNames)
	assert.Equal(t, 5, *hits[0].CaseNumber)

	hits, err = f.svc.QuickSearch(admin(), "ruiz")
	require.NoError(t, err)
	require.Len(t, hits, 1)
	assert.Nil(t, hits[0].RecordID)

	recent, err := f.svc.Recent(admin())
	require.NoError(t, err)
	require.Len(t, recent, RecentLimit)
	assert.Equal(t, "Noel", recent[0].FirstNames)

	for i := 0; i < 12; i++ {
		f.person("Many", "Perez", fmt.Sprintf("E-%d", i), nil, day)
	}
	f.svc = NewService(NewMemSource(f.records, f.people, profiles{}))
	hits, err = f.svc.QuickSearch(admin(), "perez")
	require.NoError(t, err)
	assert.Len(t, hits, QuickSearchLimit)
}

func TestSummary(t *testing.T) {
	f := newFixture()

	s, err := f.svc.Summary(admin())
	require.NoError(t, err)
	assert.Equal(t, 4, s.Cases)
	assert.Equal(t, 2, s.CasesByMotive["individual_diagnostic"])
	assert.Equal(t, 6, s.IndividualsByStatus["active"])
	assert.Equal(t, 0, s.IndividualsByStatus["inactive"])

	s, err = f.svc.Summary(as(f.mora))
	require.NoError(t, err)
	assert.Equal(t, 2, s.Cases)
	assert.Equal(t, 3, s.IndividualsByStatus["active"])

	s, err = f.svc.Summary(as(&access.Profile{ID: uuid.New(), Role: access.RoleReader}))
	require.NoError(t, err)
	assert.Zero(t, s.Cases)
	assert.Equal(t, day, s.GeneratedAt)
}

func TestHandler_Cases(t *testing.T) {
	f := newFixture()
	ctx := as(f.mora)

	e := echo.New()
	api := e.Group("/api/v1", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(ctx))
			return next(c)
		}
	})
	NewHandler(f.svc).RegisterRoutes(api)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/cases?kind=couple&limit=1", nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Data    []Row `json:"data"`
		Total   int   `json:"total"`
		HasMore bool  `json:"has_more"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, 2, resp.Total)
	assert.Len(t, resp.Data, 1)
	assert.True(t, resp.HasMore)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/reports/cases?from=10/05/2024", nil))
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/individuals/recent", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	var hits []IndividualHit
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &hits))
	assert.Len(t, hits, 3)
}
