package router

// Lab-manager decision routes.  They share the /v1 prefix with the
// requester routes but sit in their own group so the stricter role check
// only applies here.

import (
    "github.com/labstack/echo/v4"

    "github.com/iliyamo/lab-equipment-reservation/internal/handler"
    "github.com/iliyamo/lab-equipment-reservation/internal/middleware"
    "github.com/iliyamo/lab-equipment-reservation/internal/utils"
)

// RegisterApprovals registers the approve/reject endpoints.  They require a
// JWT with the LAB_MANAGER role.
func RegisterApprovals(e *echo.Echo, h *handler.ApprovalHandler, jwtSecret string, extra ...echo.MiddlewareFunc) {
    mws := []echo.MiddlewareFunc{
        middleware.JWTAuth(jwtSecret),
        middleware.RequireRole(utils.RoleLabManager),
    }
    g := e.Group("/v1", append(mws, extra...)...)

    g.POST("/reservations/:id/approve", h.Approve)
    g.POST("/reservations/:id/reject", h.Reject)
    g.POST("/reservations/:id/approval", h.Decide)
}
