package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/rs/zerolog"

	"github.com/genetica/genetica/internal/platform/auth"
	"github.com/genetica/genetica/internal/platform/metrics"
)

func TestRequestID_GeneratesNew(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		rid := c.Get(RequestIDKey).(string)
		if rid == "" {
			t.Error("expected request_id to be generated")
		}
		return c.String(http.StatusOK, "ok")
	}

	if err := RequestID()(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Header().Get(RequestIDHeader) == "" {
		t.Error("expected X-Request-ID response header")
	}
}

func TestRequestID_PreservesExisting(t *testing.T) {
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set(RequestIDHeader, "my-custom-id")
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		if rid := c.Get(RequestIDKey).(string); rid != "my-custom-id" {
			t.Errorf("expected my-custom-id, got %s", rid)
		}
		return c.String(http.StatusOK, "ok")
	}

	RequestID()(handler)(c)

	if got := rec.Header().Get(RequestIDHeader); got != "my-custom-id" {
		t.Errorf("expected my-custom-id in response header, got %s", got)
	}
}

func TestLogger_LogsRequest(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/test", nil)
	req = req.WithContext(context.WithValue(req.Context(), auth.UserIDKey, "user-1"))
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.Set(RequestIDKey, "req-1")

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	if err := Logger(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if line["request_id"] != "req-1" || line["user_id"] != "user-1" {
		t.Errorf("unexpected log fields: %v", line)
	}
	if line["status"] != float64(200) {
		t.Errorf("expected status 200, got %v", line["status"])
	}
}

func TestLogger_SeesIdentityBoundDownstream(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), httptest.NewRecorder())

	handler := func(c echo.Context) error {
		ctx := context.WithValue(c.Request().Context(), auth.UserIDKey, "user-2")
		c.SetRequest(c.Request().WithContext(ctx))
		return c.NoContent(http.StatusNoContent)
	}
	if err := Logger(zerolog.New(&buf))(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if line["user_id"] != "user-2" {
		t.Errorf("expected user-2, got %v", line["user_id"])
	}
}

func TestLogger_UsesHTTPErrorStatus(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/x", nil), httptest.NewRecorder())

	handler := func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusForbidden, "forbidden")
	}
	Logger(logger)(handler)(c)

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if line["level"] != "warn" || line["status"] != float64(403) {
		t.Errorf("unexpected log line: %v", line)
	}
}

func TestRecovery_CatchesPanic(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	req := httptest.NewRequest(http.MethodGet, "/panic", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)

	handler := func(c echo.Context) error {
		panic("test panic")
	}

	err := Recovery(logger)(handler)(c)
	if err == nil {
		t.Fatal("expected error from recovered panic")
	}
	httpErr, ok := err.(*echo.HTTPError)
	if !ok {
		t.Fatalf("expected echo.HTTPError, got %T", err)
	}
	if httpErr.Code != http.StatusInternalServerError {
		t.Errorf("expected 500, got %d", httpErr.Code)
	}
}

func TestRecovery_PassesThrough(t *testing.T) {
	logger := zerolog.New(os.Stderr).With().Logger()
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/ok", nil), httptest.NewRecorder())

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}

	if err := Recovery(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
}

func TestAudit_LogsCaseAccess(t *testing.T) {
	var buf bytes.Buffer
	logger := zerolog.New(&buf)
	e := echo.New()
	req := httptest.NewRequest(http.MethodPut, "/api/v1/records/abc/parents", nil)
	rec := httptest.NewRecorder()
	c := e.NewContext(req, rec)
	c.SetParamNames("id")
	c.SetParamValues("abc")

	handler := func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	}
	if err := Audit(logger)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	var line map[string]interface{}
	if err := json.Unmarshal(buf.Bytes(), &line); err != nil {
		t.Fatalf("expected JSON log line: %v", err)
	}
	if line["resource"] != "records" || line["resource_id"] != "abc" || line["action"] != "update" {
		t.Errorf("unexpected audit line: %v", line)
	}
}

func TestAudit_SkipsNonAPIPaths(t *testing.T) {
	var buf bytes.Buffer
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), httptest.NewRecorder())

	Audit(zerolog.New(&buf))(func(c echo.Context) error { return nil })(c)

	if buf.Len() != 0 {
		t.Errorf("expected no audit output, got %s", buf.String())
	}
}

func TestSecurityHeaders(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)

	SecurityHeaders()(func(c echo.Context) error { return nil })(c)

	for _, h := range []string{"X-Content-Type-Options", "X-Frame-Options", "Cache-Control"} {
		if rec.Header().Get(h) == "" {
			t.Errorf("expected %s header", h)
		}
	}
}

func TestMetrics_ObservesRoutePattern(t *testing.T) {
	m := metrics.New(prometheus.NewRegistry())
	e := echo.New()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/records/123", nil), httptest.NewRecorder())
	c.SetPath("/api/v1/records/:id")

	handler := func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	}
	if err := Metrics(m)(handler)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if n := testutil.CollectAndCount(m.RequestDuration); n != 1 {
		t.Errorf("expected 1 series, got %d", n)
	}
}
