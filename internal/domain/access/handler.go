package access

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/genetica/genetica/internal/platform/apperr"
	"github.com/genetica/genetica/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.GET("/profiles/me", h.Me)

	admin := api.Group("/profiles", RequireRole(RoleAdministrator))
	admin.GET("", h.List)
	admin.GET("/:id", h.Get)
	admin.PUT("/:id/role", h.ChangeRole)
}

func (h *Handler) Me(c echo.Context) error {
	actor, err := ActorFromContext(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, actor.Profile)
}

func (h *Handler) List(c echo.Context) error {
	pg := pagination.FromContext(c)
	items, total, err := h.svc.Profiles(c.Request().Context(), pg.Limit, pg.Offset)
	if err != nil {
		return apperr.HTTPError(err)
	}
	if items == nil {
		items = []*Profile{}
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(items, total, pg))
}

func (h *Handler) Get(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.Profile(c.Request().Context(), id)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}

type changeRoleRequest struct {
	Role                   Role       `json:"role"`
	AssociatedGeneticistID *uuid.UUID `json:"associated_geneticist_id"`
}

func (h *Handler) ChangeRole(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req changeRoleRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.svc.ChangeRole(c.Request().Context(), id, req.Role, req.AssociatedGeneticistID)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, p)
}
