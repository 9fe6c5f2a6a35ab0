package queue

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/kalims/queue-engine/internal/platform/auth"
)

type Handler struct {
	svc      *Service
	registry Registry
}

func NewHandler(svc *Service, registry Registry) *Handler {
	return &Handler{svc: svc, registry: registry}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	readGroup := api.Group("", auth.RequireRole("admin", "doctor", "nurse", "receptionist"))
	readGroup.GET("/queues/:type", h.GetQueue)
	readGroup.GET("/queues/stats", h.GetStats)
	readGroup.GET("/entries/:id/position", h.GetPosition)

	writeGroup := api.Group("", auth.RequireRole("admin", "nurse", "receptionist"))
	writeGroup.POST("/queues/:type/entries", h.Enqueue)
	writeGroup.PATCH("/entries/:id/status", h.UpdateStatus)

	clinical := api.Group("", auth.RequireRole("admin", "doctor", "nurse"))
	clinical.PATCH("/entries/:id/priority", h.UpdatePriority)
}

type enqueueRequest struct {
	VisitID       uuid.UUID `json:"visit_id"`
	PatientID     uuid.UUID `json:"patient_id"`
	IsAppointment bool      `json:"is_appointment"`
}

func (h *Handler) Enqueue(c echo.Context) error {
	qt := Type(c.Param("type"))
	if !qt.Valid() {
		return echo.NewHTTPError(http.StatusBadRequest, "unknown queue type")
	}
	var req enqueueRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}

	pc, err := h.registry.PatientContext(c.Request().Context(), req.PatientID)
	if err != nil {
		if errors.Is(err, ErrNotFound) {
			return echo.NewHTTPError(http.StatusNotFound, "patient not found")
		}
		return httpError(err)
	}

	entry, err := h.svc.Enqueue(c.Request().Context(), EnqueueRequest{
		VisitID:             req.VisitID,
		PatientID:           req.PatientID,
		QueueType:           qt,
		IsAppointment:       req.IsAppointment,
		CategoryName:        pc.CategoryName,
		CategoryWeight:      pc.CategoryWeight,
		VulnerabilityBoosts: pc.Boosts,
	})
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusCreated, entry)
}

func (h *Handler) GetQueue(c echo.Context) error {
	qt := Type(c.Param("type"))
	snap, err := h.svc.Snapshot(c.Request().Context(), qt)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{
		"queue_type": qt,
		"entries":    snap,
		"count":      len(snap),
	})
}

func (h *Handler) GetStats(c echo.Context) error {
	stats, err := h.svc.Stats(c.Request().Context())
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, echo.Map{"queues": stats})
}

func (h *Handler) GetPosition(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	pos, err := h.svc.GetPosition(c.Request().Context(), id)
	if err != nil {
		return httpError(err)
	}
	resp := echo.Map{"entry_id": id}
	if pos > 0 {
		resp["position"] = pos
	} else {
		resp["position"] = nil
	}
	return c.JSON(http.StatusOK, resp)
}

type statusRequest struct {
	Status   Status     `json:"status"`
	DoctorID *uuid.UUID `json:"doctor_id,omitempty"`
}

func (h *Handler) UpdateStatus(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.Transition(c.Request().Context(), id, req.Status, req.DoctorID)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

type priorityRequest struct {
	PriorityScore float64  `json:"priority_score"`
	CriticalFlags []string `json:"critical_flags"`
}

func (h *Handler) UpdatePriority(c echo.Context) error {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid id")
	}
	var req priorityRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	}
	entry, err := h.svc.UpdatePriority(c.Request().Context(), id, req.PriorityScore, req.CriticalFlags)
	if err != nil {
		return httpError(err)
	}
	return c.JSON(http.StatusOK, entry)
}

// httpError maps domain errors onto HTTP statuses.
func httpError(err error) error {
	var ve *ValidationError
	var te *InvalidTransitionError
	var de *DependencyError
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, "entry not found")
	case errors.As(err, &ve):
		return echo.NewHTTPError(http.StatusBadRequest, ve.Error())
	case errors.As(err, &te):
		return echo.NewHTTPError(http.StatusConflict, te.Error())
	case errors.As(err, &de):
		if de.Timeout {
			return echo.NewHTTPError(http.StatusGatewayTimeout, de.Error())
		}
		return echo.NewHTTPError(http.StatusBadGateway, de.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
