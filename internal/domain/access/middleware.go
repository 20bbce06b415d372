package access

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/internal/platform/auth"
)

// ActorKey is the echo context key holding the request's *Actor.
const ActorKey = "actor"

// Middleware ensures the profile of the authenticated identity and binds
// the resulting actor to the request context.
func Middleware(svc *Service) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			ctx := c.Request().Context()
			userID := auth.UserIDFromContext(ctx)
			if userID == "" {
				return echo.NewHTTPError(http.StatusUnauthorized, "authentication required")
			}
			actor, err := svc.ActorFor(ctx, userID, auth.UserNameFromContext(ctx))
			if err != nil {
				return apperr.HTTPError(err)
			}
			c.SetRequest(c.Request().WithContext(WithActor(ctx, actor)))
			c.Set(ActorKey, actor)
			return next(c)
		}
	}
}

// RequireRole rejects requests whose actor holds none of roles.
func RequireRole(roles ...Role) echo.MiddlewareFunc {
	allowed := make(map[Role]bool, len(roles))
	for _, r := range roles {
		allowed[r] = true
	}
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			actor, err := ActorFromContext(c.Request().Context())
			if err != nil {
				return apperr.HTTPError(err)
			}
			if !allowed[actor.Role()] {
				return echo.NewHTTPError(http.StatusForbidden, "insufficient role")
			}
			return next(c)
		}
	}
}
