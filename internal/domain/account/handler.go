package account

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/genetica/genetica/internal/domain/access"
	"github.com/genetica/genetica/internal/platform/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

// RegisterRoutes registers login on public, which carries no actor, and
// user administration on api.
func (h *Handler) RegisterRoutes(public, api *echo.Group) {
	public.POST("/auth/login", h.Login)
	api.POST("/users", h.CreateUser, access.RequireRole(access.RoleAdministrator))
}

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func (h *Handler) Login(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	token, err := h.svc.Login(c.Request().Context(), req.Email, req.Password)
	if errors.Is(err, ErrInvalidCredentials) {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, token)
}

type createUserResponse struct {
	User    *User           `json:"user"`
	Profile *access.Profile `json:"profile"`
}

func (h *Handler) CreateUser(c echo.Context) error {
	var req NewUser
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	u, p, err := h.svc.CreateUser(c.Request().Context(), req)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusCreated, createUserResponse{User: u, Profile: p})
}
