package handler

import (
	"net/http"
	"strings"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lab-equipment-reservation/internal/middleware"
	"github.com/iliyamo/lab-equipment-reservation/internal/model"
	"github.com/iliyamo/lab-equipment-reservation/internal/service"
)

// ApprovalHandler serves the lab-manager decision endpoints.  RequireRole
// guards the routes; the service re-checks the capability.
type ApprovalHandler struct {
	Svc *service.ReservationService
}

func NewApprovalHandler(svc *service.ReservationService) *ApprovalHandler {
	if svc == nil {
		panic("nil service passed to NewApprovalHandler")
	}
	return &ApprovalHandler{Svc: svc}
}

type decisionRequest struct {
	Decision string `json:"decision"`
	Comments string `json:"comments"`
}

// Approve handles POST /v1/reservations/:id/approve.
func (h *ApprovalHandler) Approve(c echo.Context) error {
	return h.decide(c, model.ApprovalApproved)
}

// Reject handles POST /v1/reservations/:id/reject.
func (h *ApprovalHandler) Reject(c echo.Context) error {
	return h.decide(c, model.ApprovalRejected)
}

// Decide handles POST /v1/reservations/:id/approval with an explicit
// {"decision": "approved"|"rejected"} body.
func (h *ApprovalHandler) Decide(c echo.Context) error {
	return h.decide(c, "")
}

// decide applies fixed, or the body's decision when fixed is empty.
func (h *ApprovalHandler) decide(c echo.Context, fixed model.ApprovalStatus) error {
	approverID, err := getUserID(c)
	if err != nil {
		return unauthorized(c)
	}
	var body decisionRequest
	if c.Request().ContentLength != 0 {
		if err := c.Bind(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}
	decision := fixed
	if decision == "" {
		decision = model.ApprovalStatus(strings.ToLower(strings.TrimSpace(body.Decision)))
	}
	agg, err := h.Svc.Approve(c.Request().Context(), service.ApproveInput{
		ReservationID: c.Param("id"),
		ApproverID:    approverID,
		CanApprove:    middleware.CanApprove(c),
		Decision:      decision,
		Comments:      body.Comments,
	})
	if err != nil {
		return writeError(c, err)
	}
	return c.JSON(http.StatusOK, agg)
}
