package middleware

// identity.go holds the caller lookup shared by the rate limiter and the
// response cache.  Both need a stable per-caller key even on routes where
// JWTAuth did not run, so anonymous callers map to "anon".

import (
    "github.com/golang-jwt/jwt/v5"
    "github.com/labstack/echo/v4"
)

// UserID returns the authenticated caller's id, or "" when JWTAuth did not
// authenticate the request.
func UserID(c echo.Context) string {
    if s, ok := c.Get(ContextUserID).(string); ok && s != "" {
        return s
    }
    if tok, ok := c.Get(ContextToken).(*jwt.Token); ok {
        if cl, ok := tok.Claims.(jwt.MapClaims); ok {
            return subjectString(cl["sub"])
        }
    }
    return ""
}

func callerKey(c echo.Context) string {
    if id := UserID(c); id != "" {
        return id
    }
    return "anon"
}
