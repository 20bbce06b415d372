package middleware

import (
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"

	"github.com/genetica/genetica/internal/platform/auth"
)

// AuditEntry describes one access to case data.
type AuditEntry struct {
	UserID     string
	Resource   string
	ResourceID string
	Action     string // read, create, update
	Method     string
	Path       string
	RemoteIP   string
	RequestID  string
	StatusCode int
	Timestamp  time.Time
}

// Audit logs every request under /api/v1 that touches case data. Listing
// endpoints are logged with an empty ResourceID.
func Audit(logger zerolog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			if !strings.HasPrefix(req.URL.Path, "/api/v1/") {
				return next(c)
			}

			err := next(c)

			entry := AuditEntry{
				UserID:     auth.UserIDFromContext(c.Request().Context()),
				Resource:   resourceFromPath(req.URL.Path),
				ResourceID: c.Param("id"),
				Action:     actionFor(req.Method),
				Method:     req.Method,
				Path:       req.URL.Path,
				RemoteIP:   c.RealIP(),
				StatusCode: c.Response().Status,
				Timestamp:  time.Now().UTC(),
			}
			entry.RequestID, _ = c.Get(RequestIDKey).(string)
			if he, ok := err.(*echo.HTTPError); ok {
				entry.StatusCode = he.Code
			}

			logger.Info().
				Str("type", "case_access").
				Str("request_id", entry.RequestID).
				Str("user_id", entry.UserID).
				Str("resource", entry.Resource).
				Str("resource_id", entry.ResourceID).
				Str("action", entry.Action).
				Str("method", entry.Method).
				Str("path", entry.Path).
				Str("remote_ip", entry.RemoteIP).
				Int("status", entry.StatusCode).
				Time("at", entry.Timestamp).
				Msg("audit")

			return err
		}
	}
}

func actionFor(method string) string {
	switch method {
	case http.MethodPost:
		return "create"
	case http.MethodPut, http.MethodPatch:
		return "update"
	default:
		return "read"
	}
}

// resourceFromPath returns the first segment after /api/v1/.
func resourceFromPath(path string) string {
	rest := strings.TrimPrefix(path, "/api/v1/")
	seg, _, _ := strings.Cut(rest, "/")
	if seg == "" {
		return "unknown"
	}
	return seg
}
