package account

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/auth"
	"github.com/genetica/genetica/internal/platform/memstore"
	"github.com/genetica/genetica/internal/platform/metrics"
)

var signingKey = []byte("test-signing-key-0123456789abcdef")

type fixture struct {
	svc     *Service
	access  *access.Service
	metrics *metrics.Metrics
}

func newFixture() *fixture {
	st := memstore.New()
	acc := access.NewService(access.NewMemRepo(st), st, zerolog.Nop())
	m := metrics.New(prometheus.NewRegistry())
	svc := NewService(NewMemRepo(st), acc, auth.NewIssuer(signingKey, "genetica", "", time.Hour), st, m, zerolog.Nop())
	svc.cost = bcrypt.MinCost
	return &fixture{svc: svc, access: acc, metrics: m}
}

func TestCreateUser_Validation(t *testing.T) {
	f := newFixture()
	_, _, err := f.svc.CreateUser(context.Background(), NewUser{Email: "not-an-email", Password: "short", Role: "owner"})
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))
	assert.True(t, verr.Has("email"))
	assert.True(t, verr.Has("password"))
	assert.True(t, verr.Has("role"))
}

func TestCreateUser_DuplicateEmail(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	_, _, err := f.svc.CreateUser(ctx, NewUser{Email: "mora@example.org", Password: "s3cret-pass"})
	require.NoError(t, err)
	_, _, err = f.svc.CreateUser(ctx, NewUser{Email: " MORA@example.org ", Password: "s3cret-pass"})
	assert.ErrorIs(t, err, apperr.ErrConflict)
}

func TestCreateUser_ReaderNeedsGeneticist(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	_, g, err := f.svc.CreateUser(ctx, NewUser{Email: "mora@example.org", Password: "s3cret-pass", DisplayName: "Dr. Mora"})
	require.NoError(t, err)
	assert.Equal(t, access.RoleGeneticist, g.Role)

	_, _, err = f.svc.CreateUser(ctx, NewUser{Email: "student@example.org", Password: "s3cret-pass", Role: access.RoleReader})
	var verr *apperr.ValidationError
	require.True(t, errors.As(err, &verr))

	// The failed attempt left no account behind.
	_, _, err = f.svc.CreateUser(ctx, NewUser{
		Email: "student@example.org", Password: "s3cret-pass", Role: access.RoleReader, AssociatedGeneticistID: &g.ID,
	})
	require.NoError(t, err)
}

func TestLogin(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	u, p, err := f.svc.CreateUser(ctx, NewUser{Email: "mora@example.org", Password: "s3cret-pass", DisplayName: "Dr. Mora"})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "mora@example.org", "wrong-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "nobody@example.org", "s3cret-pass")
	assert.ErrorIs(t, err, ErrInvalidCredentials)

	tok, err := f.svc.Login(ctx, "Mora@Example.org", "s3cret-pass")
	require.NoError(t, err)
	assert.Equal(t, "Bearer", tok.TokenType)
	assert.Equal(t, p.ID, tok.Profile.ID)
	assert.Equal(t, 2.0, testutil.ToFloat64(f.metrics.LoginAttempts.WithLabelValues("failed")))
	assert.Equal(t, 1.0, testutil.ToFloat64(f.metrics.LoginAttempts.WithLabelValues("ok")))

	// The token authenticates as the user.
	e := echo.New()
	e.Use(auth.JWTMiddleware(auth.JWTConfig{Issuer: "genetica", SigningKey: signingKey}))
	e.GET("/whoami", func(c echo.Context) error {
		return c.String(http.StatusOK, auth.UserIDFromContext(c.Request().Context()))
	})
	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("Authorization", "Bearer "+tok.AccessToken)
	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, u.Subject(), rec.Body.String())
}

const seedYAML = `
users:
  - email: admin@example.org
    password: admin-pass-1
    display_name: Admin
    role: administrator
  - email: mora@example.org
    password: mora-pass-1
    display_name: Dr. Mora
  - email: student@example.org
    password: student-pass-1
    role: reader
    associated_geneticist: mora@example.org
`

func TestSeed_IsIdempotent(t *testing.T) {
	f := newFixture()
	ctx := context.Background()

	n, err := f.svc.Seed(ctx, strings.NewReader(seedYAML))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	n, err = f.svc.Seed(ctx, strings.NewReader(seedYAML))
	require.NoError(t, err)
	assert.Zero(t, n)

	tok, err := f.svc.Login(ctx, "student@example.org", "student-pass-1")
	require.NoError(t, err)
	assert.Equal(t, access.RoleReader, tok.Profile.Role)
	require.NotNil(t, tok.Profile.AssociatedGeneticistID)

	mora, err := f.svc.Login(ctx, "mora@example.org", "mora-pass-1")
	require.NoError(t, err)
	assert.Equal(t, mora.Profile.ID, *tok.Profile.AssociatedGeneticistID)
}

func TestSeed_UnknownGeneticist(t *testing.T) {
	f := newFixture()
	_, err := f.svc.Seed(context.Background(), strings.NewReader(`
users:
  - email: student@example.org
    password: student-pass-1
    role: reader
    associated_geneticist: ghost@example.org
`))
	assert.ErrorIs(t, err, apperr.ErrNotFound)
}

func TestHandler_LoginAndCreateUser(t *testing.T) {
	f := newFixture()
	ctx := context.Background()
	admin, _, err := f.svc.CreateUser(ctx, NewUser{Email: "admin@example.org", Password: "admin-pass-1", Role: access.RoleAdministrator})
	require.NoError(t, err)

	e := echo.New()
	public := e.Group("/api/v1")
	api := public.Group("", func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			c.SetRequest(c.Request().WithContext(context.WithValue(c.Request().Context(), auth.UserIDKey, admin.Subject())))
			return next(c)
		}
	}, access.Middleware(f.access))
	NewHandler(f.svc).RegisterRoutes(public, api)

	post := func(path, body string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(body))
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
		rec := httptest.NewRecorder()
		e.ServeHTTP(rec, req)
		return rec
	}

	rec := post("/api/v1/auth/login", `{"email":"admin@example.org","password":"nope-nope"}`)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = post("/api/v1/auth/login", `{"email":"admin@example.org","password":"admin-pass-1"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	var tok Token
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &tok))
	assert.NotEmpty(t, tok.AccessToken)

	rec = post("/api/v1/users", `{"email":"mora@example.org","password":"mora-pass-1","display_name":"Dr. Mora"}`)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.NotContains(t, rec.Body.String(), "password")
}
