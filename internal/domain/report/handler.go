package report

import (
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/genetica/genetica/internal/domain/subject"
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
	api.GET("/reports/cases", h.Cases)
	api.GET("/reports/summary", h.Summary)
	api.GET("/individuals/search", h.QuickSearch)
	api.GET("/individuals/recent", h.Recent)
}

func parseDate(v *apperr.ValidationError, field, raw string) *time.Time {
	if raw == "" {
		return nil
	}
	t, err := time.Parse("2006-01-02", raw)
	if err != nil {
		v.Add(field, "must be a date in YYYY-MM-DD format")
		return nil
	}
	return &t
}

// filterFromQuery reads ?text=&from=&to=&kind=&geneticist_id=.
func filterFromQuery(c echo.Context) (Filter, error) {
	v := &apperr.ValidationError{}
	f := Filter{
		Text: c.QueryParam("text"),
		From: parseDate(v, "from", c.QueryParam("from")),
		To:   parseDate(v, "to", c.QueryParam("to")),
		Kind: subject.Kind(c.QueryParam("kind")),
	}
	if raw := c.QueryParam("geneticist_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			v.Add("geneticist_id", "must be a uuid")
		} else {
			f.GeneticistID = &id
		}
	}
	return f, v.Err()
}

func (h *Handler) Cases(c echo.Context) error {
	f, err := filterFromQuery(c)
	if err != nil {
		return apperr.HTTPError(err)
	}
	pg := pagination.FromContext(c)
	rows, total, err := h.svc.Search(c.Request().Context(), f, pg)
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, pagination.NewResponse(rows, total, pg))
}

func (h *Handler) Summary(c echo.Context) error {
	s, err := h.svc.Summary(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, s)
}

func (h *Handler) QuickSearch(c echo.Context) error {
	hits, err := h.svc.QuickSearch(c.Request().Context(), c.QueryParam("q"))
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, hits)
}

func (h *Handler) Recent(c echo.Context) error {
	hits, err := h.svc.Recent(c.Request().Context())
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(http.StatusOK, hits)
}
