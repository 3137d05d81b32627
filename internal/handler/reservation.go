package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lab-equipment-reservation/internal/model"
	"github.com/iliyamo/lab-equipment-reservation/internal/service"
)

// ReservationHandler exposes the requester side of the lifecycle.  All
// methods assume JWTAuth has already authenticated the caller.
type ReservationHandler struct {
	Svc *service.ReservationService
}

// NewReservationHandler panics if svc is nil.
func NewReservationHandler(svc *service.ReservationService) *ReservationHandler {
	if svc == nil {
		panic("nil service passed to NewReservationHandler")
	}
	return &ReservationHandler{Svc: svc}
}

type createRequest struct {
	EquipmentID string    `json:"equipment_id"`
	StartTime   time.Time `json:"start_time"`
	EndTime     time.Time `json:"end_time"`
	Purpose     string    `json:"purpose"`
	Notes       string    `json:"notes"`
}

type updateRequest struct {
	model.UpdateInput
	EquipmentID *string `json:"equipment_id"`
}

// Create handles POST /v1/reservations.  The owner is always the
// authenticated caller; a user_id in the body is ignored.
func (h *ReservationHandler) Create(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body createRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	agg, err := h.Svc.Create(c.Request().Context(), model.CreateInput{
		UserID:      userID,
		EquipmentID: strings.TrimSpace(body.EquipmentID),
		StartTime:   body.StartTime,
		EndTime:     body.EndTime,
		Purpose:     body.Purpose,
		Notes:       body.Notes,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusCreated, agg)
}

// List handles GET /v1/reservations.  Query parameters: user_id,
// equipment_id, status, start_date, end_date, page, limit.  user_id is
// only honoured for lab managers.
func (h *ReservationHandler) List(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return unauthorized(c)
	}
	f := model.Filter{
		UserID:      strings.TrimSpace(c.QueryParam("user_id")),
		EquipmentID: strings.TrimSpace(c.QueryParam("equipment_id")),
		Status:      model.Status(strings.TrimSpace(c.QueryParam("status"))),
	}
	for _, p := range []struct {
		name string
		dst  **time.Time
	}{{"start_date", &f.StartDate}, {"end_date", &f.EndDate}} {
		raw := c.QueryParam(p.name)
		if raw == "" {
			continue
		}
		t, err := parseTime(raw)
		if err != nil {
			return badRequest(c, "invalid "+p.name)
		}
		*p.dst = &t
	}
	if f.Page, err = intParam(c, "page"); err != nil {
		return badRequest(c, "invalid page")
	}
	if f.Limit, err = intParam(c, "limit"); err != nil {
		return badRequest(c, "invalid limit")
	}

	page, err := h.Svc.List(c.Request().Context(), who, f)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, page)
}

// Get handles GET /v1/reservations/:id.
func (h *ReservationHandler) Get(c echo.Context) error {
	who, err := caller(c)
	if err != nil {
		return unauthorized(c)
	}
	agg, err := h.Svc.Get(c.Request().Context(), c.Param("id"), who)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, agg)
}

// Update handles PATCH and PUT /v1/reservations/:id.  Both are partial:
// omitted fields keep their value.  Equipment cannot be changed.
func (h *ReservationHandler) Update(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body updateRequest
	if err := c.Bind(&body); err != nil {
		return badRequest(c, "invalid request body")
	}
	if body.EquipmentID != nil {
		return badRequest(c, "equipment_id cannot be changed")
	}
	agg, err := h.Svc.Update(c.Request().Context(), c.Param("id"), userID, body.UpdateInput)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, agg)
}

// Cancel handles POST /v1/reservations/:id/cancel and its DELETE alias.
// The reservation is kept with status canceled.
func (h *ReservationHandler) Cancel(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	agg, err := h.Svc.Cancel(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, agg)
}

// StartUsage handles POST /v1/reservations/:id/usage/start.
func (h *ReservationHandler) StartUsage(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	agg, err := h.Svc.StartUsage(c.Request().Context(), c.Param("id"), userID)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, agg)
}

// EndUsage handles POST /v1/reservations/:id/usage/end.  The body is
// optional: {data_volume, telemetry, notes}.
func (h *ReservationHandler) EndUsage(c echo.Context) error {
	userID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body model.EndUsageInput
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	agg, err := h.Svc.EndUsage(c.Request().Context(), c.Param("id"), userID, body)
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, agg)
}

func intParam(c echo.Context, name string) (int, error) {
	raw := strings.TrimSpace(c.QueryParam(name))
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
