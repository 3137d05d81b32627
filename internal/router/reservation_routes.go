package router

import (
	"github.com/labstack/echo/v4"

	"github.com/iliyamo/lab-equipment-reservation/internal/handler"
	"github.com/iliyamo/lab-equipment-reservation/internal/middleware"
	"github.com/iliyamo/lab-equipment-reservation/internal/utils"
)

// RegisterReservations registers the requester endpoints under /v1.  All
// routes require a valid JWT carrying a researcher or lab-manager role.
// extra runs after authentication (rate limiting, response cache), so it
// can key on the caller.
func RegisterReservations(e *echo.Echo, h *handler.ReservationHandler, jwtSecret string, extra ...echo.MiddlewareFunc) {
	mws := []echo.MiddlewareFunc{
		middleware.JWTAuth(jwtSecret),
		middleware.RequireRole(utils.RoleResearcher, utils.RoleLabManager),
	}
	g := e.Group("/v1", append(mws, extra...)...)

	g.POST("/reservations", h.Create)
	g.GET("/reservations", h.List)
	g.GET("/reservations/:id", h.Get)
	g.PATCH("/reservations/:id", h.Update)
	g.PUT("/reservations/:id", h.Update)
	g.POST("/reservations/:id/cancel", h.Cancel)
	// DELETE cancels; reservations are never removed
	g.DELETE("/reservations/:id", h.Cancel)
	g.POST("/reservations/:id/usage/start", h.StartUsage)
	g.POST("/reservations/:id/usage/end", h.EndUsage)
}
