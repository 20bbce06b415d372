package main

import (
	"context"
	crypto_rand "crypto/rand"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/labstack/echo/v4"
	echomw "github.com/labstack/echo/v4/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/genetica/genetica/internal/config"
	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/domain/account"
	"github.com/genetica/genetica/internal/domain/caserecord"
	"github.com/genetica/genetica/internal/domain/clinicalrecord"
	"github.com/genetica/genetica/internal/domain/report"
	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/domain/workflow"
	"github.com/genetica/genetica/internal/platform/auth"
	"github.com/genetica/genetica/internal/platform/db"
	"github.com/genetica/genetica/internal/platform/memstore"
	"github.com/genetica/genetica/internal/platform/metrics"
	"github.com/genetica/genetica/internal/platform/middleware"
)

// services is the wired application for one storage backend.
type services struct {
	backend    string
	pinger     db.Pinger
	pool       *pgxpool.Pool
	metrics    *metrics.Metrics
	signingKey []byte

	access   *access.Service
	accounts *account.Service
	engine   *workflow.Engine
	reports  *report.Service
}

func (s *services) Close() {
	if s.pool != nil {
		s.pool.Close()
	}
}

// resolveSigningKey returns the HS256 key for password logins. Development
// servers without a configured key get a random one; elsewhere an empty key
// disables password logins and leaves JWKS verification only. The second
// return value is true when a random key was generated.
func resolveSigningKey(configured string, dev bool) ([]byte, bool, error) {
	if configured != "" {
		return []byte(configured), false, nil
	}
	if !dev {
		return nil, false, nil
	}
	key := make([]byte, 32)
	if _, err := crypto_rand.Read(key); err != nil {
		return nil, false, fmt.Errorf("generate signing key: %w", err)
	}
	return key, true, nil
}

// newServices wires repositories and services for the configured backend.
// reg may be nil, in which case metrics are recorded but not exported.
func newServices(ctx context.Context, cfg *config.Config, logger zerolog.Logger, reg prometheus.Registerer) (*services, error) {
	key, random, err := resolveSigningKey(cfg.AuthSigningKey, cfg.IsDev())
	if err != nil {
		return nil, err
	}
	if random {
		logger.Warn().Msg("AUTH_SIGNING_KEY not set; issued tokens will not survive a restart")
	}

	s := &services{backend: cfg.StorageBackend, metrics: metrics.New(reg), signingKey: key}

	var (
		tx          db.Transactor
		profiles    access.Repository
		users       account.Repository
		records     clinicalrecord.Repository
		individuals subject.IndividualRepository
		couples     subject.CoupleRepository
		parents     subject.ParentRepository
		caseRepos   caserecord.Repositories
		source      report.Source
	)

	switch cfg.StorageBackend {
	case config.BackendMemory:
		st := memstore.New()
		profileRepo := access.NewMemRepo(st)
		recordRepo := clinicalrecord.NewMemRepo(st)
		individualRepo := subject.NewMemIndividuals(st)

		tx = st
		s.pinger = st
		profiles = profileRepo
		users = account.NewMemRepo(st)
		records = recordRepo
		individuals = individualRepo
		couples = subject.NewMemCouples(st)
		parents = subject.NewMemParents(st)
		caseRepos = caserecord.NewMemRepositories(st)
		source = report.NewMemSource(recordRepo, individualRepo, profileRepo)

	case config.BackendPostgres:
		pool, err := db.NewPool(ctx, cfg.DatabaseURL, cfg.DBMaxConns, cfg.DBMinConns)
		if err != nil {
			return nil, err
		}
		if cfg.AutoMigrate {
			n, err := db.NewMigrator(pool, migrationFiles(cfg.MigrationsDir)).Up(ctx)
			if err != nil {
				pool.Close()
				return nil, err
			}
			logger.Info().Int("applied", n).Msg("migrations up to date")
		}

		s.pool = pool
		s.pinger = pool
		tx = db.NewTransactor(pool)
		profiles = access.NewRepoPG(pool)
		users = account.NewRepoPG(pool)
		records = clinicalrecord.NewRepoPG(pool)
		individuals = subject.NewIndividualRepoPG(pool)
		couples = subject.NewCoupleRepoPG(pool)
		parents = subject.NewParentRepoPG(pool)
		caseRepos = caserecord.NewPGRepositories(pool)
		source = report.NewPGSource(pool)

	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.StorageBackend)
	}

	subjectSvc := subject.NewService(individuals, couples, parents)
	caseSvc := caserecord.NewService(caseRepos, subjectSvc, tx)
	recordSvc := clinicalrecord.NewService(records)
	issuer := auth.NewIssuer(key, cfg.AuthIssuer, cfg.AuthAudience, cfg.TokenTTL)

	s.access = access.NewService(profiles, tx, logger)
	s.accounts = account.NewService(users, s.access, issuer, tx, s.metrics, logger)
	s.engine = workflow.NewEngine(recordSvc, subjectSvc, caseSvc, tx, s.metrics, logger)
	s.reports = report.NewService(source)
	return s, nil
}

// newServer builds the echo instance with middleware and routes.
func newServer(cfg *config.Config, s *services, logger zerolog.Logger, gatherer prometheus.Gatherer) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.HidePort = true

	// Global middleware
	e.Use(middleware.Recovery(logger))
	e.Use(middleware.RequestID())
	e.Use(middleware.Logger(logger))
	e.Use(middleware.SecurityHeaders())
	e.Use(middleware.Metrics(s.metrics))
	e.Use(echomw.BodyLimit(cfg.BodyLimit))
	e.Use(echomw.CORSWithConfig(echomw.CORSConfig{
		AllowOrigins: cfg.CORSOrigins,
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodPut, http.MethodPatch},
		AllowHeaders: []string{"Authorization", "Content-Type", "X-Request-ID"},
	}))

	// Auth middleware
	jwtAuth := auth.JWTMiddleware(auth.JWTConfig{
		Issuer:     cfg.AuthIssuer,
		Audience:   cfg.AuthAudience,
		JWKSURL:    cfg.AuthJWKSURL,
		SigningKey: s.signingKey,
		Skipper:    auth.AuthSkipper,
	})
	if cfg.IsDev() {
		e.Use(auth.DevAuthMiddleware(cfg.DevUserID, jwtAuth))
	} else {
		e.Use(jwtAuth)
	}

	// Audit middleware
	e.Use(middleware.Audit(logger))

	e.GET("/health", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{
			"status":  "ok",
			"version": "0.1.0",
		})
	})
	e.GET("/health/db", db.HealthHandler(s.backend, s.pinger))
	if gatherer != nil {
		e.GET("/metrics", echo.WrapHandler(promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{})))
	}

	v1 := e.Group("/api/v1")
	api := v1.Group("", access.Middleware(s.access))

	account.NewHandler(s.accounts).RegisterRoutes(v1, api)
	access.NewHandler(s.access).RegisterRoutes(api)
	workflow.NewHandler(s.engine).RegisterRoutes(api)
	report.NewHandler(s.reports).RegisterRoutes(api)

	return e
}

func runServer(cfg *config.Config, logger zerolog.Logger) error {
	ctx := context.Background()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	s, err := newServices(ctx, cfg, logger, reg)
	if err != nil {
		return err
	}
	defer s.Close()
	logger.Info().Str("backend", s.backend).Msg("storage ready")

	if err := s.access.BootstrapAdmins(ctx, cfg.BootstrapAdmins); err != nil {
		return err
	}

	e := newServer(cfg, s, logger, reg)

	// Graceful shutdown
	errCh := make(chan error, 1)
	go func() {
		addr := ":" + cfg.Port
		logger.Info().Str("addr", addr).Msg("starting server")
		if err := e.Start(addr); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	select {
	case <-quit:
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	}

	logger.Info().Msg("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	logger.Info().Msg("server stopped")
	return nil
}
