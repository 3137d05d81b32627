package middleware // middleware provides shared request processing for handlers

import (
    "net/http"

    "github.com/labstack/echo/v4"

    "github.com/iliyamo/lab-equipment-reservation/internal/utils"
)

// ApproverRoles are the roles that carry the lab-manager capability.
var ApproverRoles = []string{utils.RoleLabManager}

// RequireRole returns a middleware function that enforces that the
// authenticated user has one of the specified roles.  It assumes JWTAuth
// has already stored the role under "role".  Requests with a missing or
// unlisted role are aborted with 403 Forbidden.
func RequireRole(roles ...string) echo.MiddlewareFunc {
    allowed := make(map[string]bool, len(roles))
    for _, r := range roles {
        allowed[r] = true
    }
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            role, ok := c.Get(ContextRole).(string)
            if !ok || !allowed[role] {
                return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden", "code": "forbidden"})
            }
            return next(c)
        }
    }
}

// HasRole reports whether the authenticated caller holds one of roles.
func HasRole(c echo.Context, roles ...string) bool {
    role, ok := c.Get(ContextRole).(string)
    if !ok {
        return false
    }
    for _, r := range roles {
        if r == role {
            return true
        }
    }
    return false
}

// CanApprove is the single capability check for approving or rejecting
// reservations.
func CanApprove(c echo.Context) bool {
    return HasRole(c, ApproverRoles...)
}
