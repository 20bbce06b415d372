//go:build integration

package integration

import (
	"context"
	"fmt"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/domain/caserecord"
	"github.com/genetica/genetica/internal/domain/clinicalrecord"
	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/domain/workflow"
)

func countRows(t *testing.T, query string, args ...interface{}) int {
	t.Helper()
	var n int
	require.NoError(t, globalPool.QueryRow(context.Background(), query, args...).Scan(&n))
	return n
}

func TestCaseRecords_ConcurrentUpsertsConverge(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	// Each subject starts without a row, so both writers race the insert.
	for round := 0; round < 5; round++ {
		ind, err := f.subjects.UpsertIndividual(ctx, person(fmt.Sprintf("V-9%02d", round), "Ana", "Rojas"), nil)
		require.NoError(t, err)
		subj := subject.OfIndividual(ind.ID)

		var g errgroup.Group
		for _, pregnancies := range []int{1, 2} {
			pregnancies := pregnancies
			g.Go(func() error {
				_, err := f.cases.UpsertPersonalHistory(ctx, subj, caserecord.PersonalHistoryFields{Pregnancies: ptr(pregnancies)})
				return err
			})
		}
		require.NoError(t, g.Wait())

		assert.Equal(t, 1, countRows(t, `SELECT count(*) FROM personal_history WHERE individual_id = $1`, ind.ID))
		got, err := f.cases.PersonalHistory(ctx, subj)
		require.NoError(t, err)
		require.NotNil(t, got.Pregnancies)
		assert.Contains(t, []int{1, 2}, *got.Pregnancies)
	}
}

func TestWorkflow_ConcurrentEvaluationsConverge(t *testing.T) {
	f := newFixture(t)
	ctx, _ := f.as(t, "dr-mora", access.RoleGeneticist, nil)
	e := f.engine

	id := open(t, ctx, e, 6001, clinicalrecord.MotiveIndividualDiagnostic).Record.ID
	view, err := e.EstablishIndividual(ctx, id, person("V-600", "Luis", "Rojas"))
	require.NoError(t, err)
	memberID := view.Members[0].ID
	_, err = e.RecordParents(ctx, id, parent("José"), parent("María"))
	require.NoError(t, err)
	_, err = e.RecordPersonalHistory(ctx, id, workflow.PersonalHistoryInput{})
	require.NoError(t, err)
	_, err = e.RecordPreconceptionHistory(ctx, id, caserecord.FamilyHistoryFields{})
	require.NoError(t, err)
	_, err = e.RecordPhysicalExam(ctx, id, memberID, caserecord.PhysicalExamFields{})
	require.NoError(t, err)

	writers := map[string][]caserecord.DiagnosisInput{
		"a": {{Description: "a: Down syndrome"}, {Description: "a: Turner syndrome", Priority: 1}},
		"b": {{Description: "b: Noonan syndrome"}, {Description: "b: Marfan syndrome", Priority: 1}, {Description: "b: Prader-Willi", Priority: 2}},
	}
	var g errgroup.Group
	for _, diagnoses := range writers {
		diagnoses := diagnoses
		g.Go(func() error {
			_, err := e.RecordEvaluation(ctx, id, caserecord.EvaluationInput{Diagnoses: diagnoses})
			return err
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, countRows(t, `SELECT count(*) FROM genetic_evaluation WHERE individual_id = $1`, memberID))

	d, err := e.Dossier(ctx, id)
	require.NoError(t, err)
	require.NotNil(t, d.Evaluation)
	require.NotEmpty(t, d.Evaluation.Diagnoses)

	// The surviving list belongs entirely to one writer.
	winner := strings.SplitN(d.Evaluation.Diagnoses[0].Description, ":", 2)[0]
	require.Contains(t, writers, winner)
	require.Len(t, d.Evaluation.Diagnoses, len(writers[winner]))
	for _, dg := range d.Evaluation.Diagnoses {
		assert.True(t, strings.HasPrefix(dg.Description, winner+":"), dg.Description)
	}
	assert.Equal(t, len(writers[winner]), countRows(t,
		`SELECT count(*) FROM presumptive_diagnosis WHERE evaluation_id = $1`, d.Evaluation.ID))
}
