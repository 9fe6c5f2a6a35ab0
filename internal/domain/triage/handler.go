package triage

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kalims/queue-engine/internal/domain/queue"
	"github.com/kalims/queue-engine/internal/platform/auth"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	g := api.Group("", auth.RequireRole("admin", "doctor", "nurse"))
	g.POST("/triage", h.ProcessTriage)
	g.GET("/triage/records", h.ListRecords)
	g.GET("/triage/records/:visitId", h.GetRecord)
}

type triageRequest struct {
	VisitID  uuid.UUID  `json:"visit_id"`
	Notes    string     `json:"notes"`
	Vitals   VitalSigns `json:"vitals"`
	Symptoms Symptoms   `json:"symptoms"`
	Offline  bool       `json:"offline"`
}

func (h *Handler) ProcessTriage(c echo.Context) error {
	var req triageRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	result, err := h.svc.ProcessTriage(c.Request().Context(), TriageInput{
		VisitID:  req.VisitID,
		Notes:    req.Notes,
		Vitals:   req.Vitals,
		Symptoms: req.Symptoms,
		Offline:  req.Offline,
	})
	if err != nil {
		return triageError(err)
	}
	return c.JSON(http.StatusOK, result)
}

func (h *Handler) GetRecord(c echo.Context) error {
	visitID, err := uuid.Parse(c.Param("visitId"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid visit id")
	}
	rec, err := h.svc.RecordForVisit(c.Request().Context(), visitID)
	if err != nil {
		return triageError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) ListRecords(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	recs, err := h.svc.RecentRecords(c.Request().Context(), limit)
	if err != nil {
		return triageError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"records": recs, "count": len(recs)})
}

func triageError(err error) error {
	var ve *queue.ValidationError
	var de *queue.DependencyError
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "no active visit found")
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.As(err, &de):
		if de.Timeout {
			return echo.NewHTTPError(http.StatusGatewayTimeout, "triage scoring timed out")
		}
		return echo.NewHTTPError(http.StatusBadGateway, de.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
