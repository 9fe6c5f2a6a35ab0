package registry

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
	desk := api.Group("", auth.RequireRole("admin", "nurse", "receptionist"))
	desk.POST("/patients", h.RegisterPatient)
	desk.POST("/checkin", h.CheckIn)
	desk.PATCH("/visits/:id/close", h.CloseVisit)

	read := api.Group("", auth.RequireRole("admin", "doctor", "nurse", "receptionist"))
	read.GET("/patients", h.ListPatients)
	read.GET("/patients/:id", h.GetPatient)
	read.GET("/categories", h.ListCategories)
	read.GET("/vulnerability-factors", h.ListFactors)
	read.GET("/staff", h.ListStaff)
	read.GET("/visits/:id", h.GetVisit)

	api.PATCH("/staff/:id/availability", h.SetAvailability, auth.RequireRole("admin", "doctor", "nurse"))
}

func (h *Handler) RegisterPatient(c echo.Context) error {
	var in RegisterPatientInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	p, err := h.svc.RegisterPatient(c.Request().Context(), in)
	if err != nil {
		return registryError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

func (h *Handler) GetPatient(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	p, err := h.svc.GetPatient(c.Request().Context(), id)
	if err != nil {
		return registryError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func (h *Handler) ListPatients(c echo.Context) error {
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	offset, _ := strconv.Atoi(c.QueryParam("offset"))
	items, total, err := h.svc.ListPatients(c.Request().Context(), limit, offset)
	if err != nil {
		return registryError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"patients": items, "total": total})
}

func (h *Handler) ListCategories(c echo.Context) error {
	items, err := h.svc.ListCategories(c.Request().Context())
	if err != nil {
		return registryError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"categories": items})
}

func (h *Handler) ListFactors(c echo.Context) error {
	items, err := h.svc.ListVulnerabilityFactors(c.Request().Context())
	if err != nil {
		return registryError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"vulnerability_factors": items})
}

func (h *Handler) ListStaff(c echo.Context) error {
	items, err := h.svc.ListStaff(c.Request().Context())
	if err != nil {
		return registryError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"staff": items})
}

type availabilityRequest struct {
	Available bool `json:"available"`
}

func (h *Handler) SetAvailability(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req availabilityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	if err := h.svc.SetStaffAvailability(c.Request().Context(), id, req.Available); err != nil {
		return registryError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"id": id, "available": req.Available})
}

func (h *Handler) CheckIn(c echo.Context) error {
	var in CheckInInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	res, err := h.svc.CheckIn(c.Request().Context(), in)
	if err != nil {
		return registryError(err)
	}
	return c.JSON(http.StatusCreated, res)
}

func (h *Handler) GetVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	v, err := h.svc.GetVisit(c.Request().Context(), id)
	if err != nil {
		return registryError(err)
	}
	return c.JSON(http.StatusOK, v)
}

type closeVisitRequest struct {
	Status string `json:"status"`
}

func (h *Handler) CloseVisit(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req closeVisitRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	v, err := h.svc.CloseVisit(c.Request().Context(), id, req.Status)
	if err != nil {
		return registryError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func registryError(err error) error {
	var ve *queue.ValidationError
	var de *queue.DependencyError
	switch {
	case errors.Is(err, queue.ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "not found")
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.As(err, &de):
		if de.Timeout {
			return echo.NewHTTPError(http.StatusGatewayTimeout, de.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, de.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
