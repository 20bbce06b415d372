package workflow

import (
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/genetica/genetica/internal/domain/caserecord"
	"github.com/genetica/genetica/internal/domain/clinicalrecord"
	"github.com/genetica/genetica/internal/domain/subject"
	"github.com/genetica/genetica/internal/platform/apperr"
)

// Handler exposes the case workflow over HTTP.
type Handler struct {
	engine *Engine
}

func NewHandler(engine *Engine) *Handler {
	return &Handler{engine: engine}
}

// RegisterRoutes registers the workflow routes. The group must already bind
// the request actor.
func (h *Handler) RegisterRoutes(api *echo.Group) {
	api.POST("/records", h.Open)
	api.GET("/records/:id", h.State)
	api.GET("/records/:id/state", h.State)
	api.GET("/records/:id/dossier", h.Dossier)
	api.PATCH("/records/:id/referral", h.UpdateReferral)

	api.PUT("/records/:id/individual", h.EstablishIndividual)
	api.PUT("/records/:id/couple", h.EstablishCouple)
	api.PUT("/records/:id/parents", h.RecordParents)
	api.PUT("/records/:id/personal-history", h.RecordPersonalHistory)
	api.PUT("/records/:id/preconception-history", h.RecordPreconceptionHistory)
	api.PUT("/records/:id/physical-exams/:individual_id", h.RecordPhysicalExam)
	api.PUT("/records/:id/evaluation", h.RecordEvaluation)

	api.GET("/individuals/:id", h.GetIndividual)
	api.PATCH("/individuals/:id/status", h.SetIndividualStatus)
}

func parseID(c echo.Context, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Param(name))
	if err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// bindRecord parses the record id and decodes the body into body.
func bindRecord(c echo.Context, body interface{}) (uuid.UUID, error) {
	id, err := parseID(c, "id")
	if err != nil {
		return uuid.Nil, err
	}
	if err := c.Bind(body); err != nil {
		return uuid.Nil, echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	return id, nil
}

func respond(c echo.Context, status int, v interface{}, err error) error {
	if err != nil {
		return apperr.HTTPError(err)
	}
	return c.JSON(status, v)
}

func (h *Handler) Open(c echo.Context) error {
	var req OpenRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	view, err := h.engine.OpenRecord(c.Request().Context(), req)
	return respond(c, http.StatusCreated, view, err)
}

func (h *Handler) State(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	view, err := h.engine.State(c.Request().Context(), id)
	return respond(c, http.StatusOK, view, err)
}

func (h *Handler) Dossier(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	d, err := h.engine.Dossier(c.Request().Context(), id)
	return respond(c, http.StatusOK, d, err)
}

func (h *Handler) UpdateReferral(c echo.Context) error {
	var ref clinicalrecord.Referral
	id, err := bindRecord(c, &ref)
	if err != nil {
		return err
	}
	rec, err := h.engine.UpdateReferral(c.Request().Context(), id, ref)
	return respond(c, http.StatusOK, rec, err)
}

func (h *Handler) EstablishIndividual(c echo.Context) error {
	var f subject.IndividualFields
	id, err := bindRecord(c, &f)
	if err != nil {
		return err
	}
	view, err := h.engine.EstablishIndividual(c.Request().Context(), id, f)
	return respond(c, http.StatusOK, view, err)
}

type coupleRequest struct {
	Members [2]subject.IndividualFields `json:"members"`
}

func (h *Handler) EstablishCouple(c echo.Context) error {
	var req coupleRequest
	id, err := bindRecord(c, &req)
	if err != nil {
		return err
	}
	view, err := h.engine.EstablishCouple(c.Request().Context(), id, req.Members)
	return respond(c, http.StatusOK, view, err)
}

type parentsRequest struct {
	Father subject.ParentFields `json:"father"`
	Mother subject.ParentFields `json:"mother"`
}

func (h *Handler) RecordParents(c echo.Context) error {
	var req parentsRequest
	id, err := bindRecord(c, &req)
	if err != nil {
		return err
	}
	view, err := h.engine.RecordParents(c.Request().Context(), id, req.Father, req.Mother)
	return respond(c, http.StatusOK, view, err)
}

func (h *Handler) RecordPersonalHistory(c echo.Context) error {
	var in PersonalHistoryInput
	id, err := bindRecord(c, &in)
	if err != nil {
		return err
	}
	view, err := h.engine.RecordPersonalHistory(c.Request().Context(), id, in)
	return respond(c, http.StatusOK, view, err)
}

func (h *Handler) RecordPreconceptionHistory(c echo.Context) error {
	var f caserecord.FamilyHistoryFields
	id, err := bindRecord(c, &f)
	if err != nil {
		return err
	}
	view, err := h.engine.RecordPreconceptionHistory(c.Request().Context(), id, f)
	return respond(c, http.StatusOK, view, err)
}

func (h *Handler) RecordPhysicalExam(c echo.Context) error {
	individualID, err := parseID(c, "individual_id")
	if err != nil {
		return err
	}
	var f caserecord.PhysicalExamFields
	id, err := bindRecord(c, &f)
	if err != nil {
		return err
	}
	view, err := h.engine.RecordPhysicalExam(c.Request().Context(), id, individualID, f)
	return respond(c, http.StatusOK, view, err)
}

func (h *Handler) RecordEvaluation(c echo.Context) error {
	var in caserecord.EvaluationInput
	id, err := bindRecord(c, &in)
	if err != nil {
		return err
	}
	view, err := h.engine.RecordEvaluation(c.Request().Context(), id, in)
	return respond(c, http.StatusOK, view, err)
}

func (h *Handler) GetIndividual(c echo.Context) error {
	id, err := parseID(c, "id")
	if err != nil {
		return err
	}
	ind, err := h.engine.GetIndividual(c.Request().Context(), id)
	return respond(c, http.StatusOK, ind, err)
}

type statusRequest struct {
	Status subject.Status `json:"status"`
}

func (h *Handler) SetIndividualStatus(c echo.Context) error {
	var req statusRequest
	id, err := bindRecord(c, &req)
	if err != nil {
		return err
	}
	ind, err := h.engine.SetIndividualStatus(c.Request().Context(), id, req.Status)
	return respond(c, http.StatusOK, ind, err)
}
