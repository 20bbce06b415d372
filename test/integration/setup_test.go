//go:build integration

package integration

import (
	"context"
	"fmt"
	"os"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/domain/account"
	"github.com/genetica/genetica/internal/domain/caserecord"
	"github.com/genetica/genetica/internal/domain/clinicalrecord"
	"github.com/genetica/genetica/internal/domain/report"
	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/domain/workflow"
	"github.com/genetica/genetica/internal/platform/auth"
	"github.com/genetica/genetica/internal/platform/db"
	"github.com/genetica/genetica/internal/platform/metrics"
	"github.com/genetica/genetica/migrations"
)

// globalPool is the package-level test database, initialized once in TestMain.
var globalPool *pgxpool.Pool

func TestMain(m *testing.M) {
	ctx := context.Background()

	pool, cleanup, err := setupPostgresContainer(ctx)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to setup postgres container: %v\n", err)
		os.Exit(1)
	}

	globalPool = pool
	code := m.Run()
	cleanup()
	os.Exit(code)
}

// setupPostgresContainer starts postgres:16-alpine and applies the embedded
// schema.
func setupPostgresContainer(ctx context.Context) (*pgxpool.Pool, func(), error) {
	container, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("genetica"),
		tcpostgres.WithUsername("testuser"),
		tcpostgres.WithPassword("testpass"),
		tcpostgres.BasicWaitStrategies(),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("start postgres container: %w", err)
	}
	terminate := func() { _ = container.Terminate(context.Background()) }

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		terminate()
		return nil, nil, fmt.Errorf("connection string: %w", err)
	}

	pool, err := db.NewPool(ctx, connStr, 10, 1)
	if err != nil {
		terminate()
		return nil, nil, err
	}

	if _, err := db.NewMigrator(pool, migrations.FS).Up(ctx); err != nil {
		pool.Close()
		terminate()
		return nil, nil, fmt.Errorf("migrate: %w", err)
	}

	return pool, func() {
		pool.Close()
		terminate()
	}, nil
}

var tables = []string{
	"study_plan_item", "presumptive_diagnosis", "genetic_evaluation", "physical_exam",
	"neonatal_period", "development", "personal_history", "family_history", "parent_info",
	"couple", "individual", "clinical_record", "geneticist_profile", "app_user",
}

// resetDB empties every table so each test starts from a clean schema.
func resetDB(t *testing.T) {
	t.Helper()
	_, err := globalPool.Exec(context.Background(), "TRUNCATE "+strings.Join(tables, ", ")+" RESTART IDENTITY CASCADE")
	require.NoError(t, err)
}

type fixture struct {
	subjects *subject.Service
	cases    *caserecord.Service
	access   *access.Service
	accounts *account.Service
	engine   *workflow.Engine
	reports  *report.Service
	metrics  *metrics.Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	resetDB(t)

	pool := globalPool
	tx := db.NewTransactor(pool)
	m := metrics.New(prometheus.NewRegistry())
	logger := zerolog.Nop()

	subjects := subject.NewService(subject.NewIndividualRepoPG(pool), subject.NewCoupleRepoPG(pool), subject.NewParentRepoPG(pool))
	cases := caserecord.NewService(caserecord.NewPGRepositories(pool), subjects, tx)
	records := clinicalrecord.NewService(clinicalrecord.NewRepoPG(pool))
	acc := access.NewService(access.NewRepoPG(pool), tx, logger)
	issuer := auth.NewIssuer([]byte("integration-signing-key-0123456789"), "genetica", "", time.Hour)

	return &fixture{
		subjects: subjects,
		cases:    cases,
		access:   acc,
		accounts: account.NewService(account.NewRepoPG(pool), acc, issuer, tx, m, logger),
		engine:   workflow.NewEngine(records, subjects, cases, tx, m, logger),
		reports:  report.NewService(report.NewPGSource(pool)),
		metrics:  m,
	}
}

// as returns a context acting as userID with role. Readers are associated
// with assoc.
func (f *fixture) as(t *testing.T, userID string, role access.Role, assoc *access.Profile) (context.Context, *access.Profile) {
	t.Helper()
	ctx := context.Background()
	p, err := f.access.EnsureProfile(ctx, userID, userID)
	require.NoError(t, err)
	if role != p.Role {
		var assocID *uuid.UUID
		if assoc != nil {
			assocID = &assoc.ID
		}
		p, err = f.access.ChangeRole(ctx, p.ID, role, assocID)
		require.NoError(t, err)
	}
	return access.WithActor(ctx, access.NewActor(p)), p
}

func ptr[T any](v T) *T { return &v }

func person(birthID, first, last string) subject.IndividualFields {
	return subject.IndividualFields{
		FirstNames: ptr(first),
		LastNames:  ptr(last),
		BirthID:    ptr(birthID),
		BirthDate:  ptr(time.Date(1990, 3, 14, 0, 0, 0, 0, time.UTC)),
	}
}

func parent(first string) subject.ParentFields {
	return subject.ParentFields{FirstNames: ptr(first), LastNames: ptr("Pérez")}
}
