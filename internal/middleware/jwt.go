package middleware // declare the middleware package; contains reusable HTTP middleware functions

import (
    "net/http"
    "strconv"
    "strings"

    "github.com/golang-jwt/jwt/v5" // JWT library for parsing and validating tokens
    "github.com/labstack/echo/v4"  // Echo framework used for defining middleware and handlers
)

// Context keys populated by JWTAuth.
const (
    ContextUserID = "user_id"
    ContextRole   = "role"
    ContextToken  = "user"
)

// JWTAuth returns an Echo middleware that validates an HS256 Bearer access
// token and stores the caller's identity in the request context: the
// subject under "user_id" (always a non-empty string), the role claim
// under "role" and the parsed token under "user".  Tokens without a usable
// subject are rejected, so handlers behind this middleware can trust the
// identity they read.
func JWTAuth(secret string) echo.MiddlewareFunc {
    return func(next echo.HandlerFunc) echo.HandlerFunc {
        return func(c echo.Context) error {
            auth := c.Request().Header.Get("Authorization")
            if !strings.HasPrefix(auth, "Bearer ") {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "missing bearer token"})
            }
            raw := strings.TrimSpace(strings.TrimPrefix(auth, "Bearer "))

            tok, err := jwt.Parse(raw, func(t *jwt.Token) (interface{}, error) {
                return []byte(secret), nil
            }, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
            if err != nil || !tok.Valid {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid token"})
            }

            claims, ok := tok.Claims.(jwt.MapClaims)
            if !ok {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }
            sub := subjectString(claims["sub"])
            if sub == "" {
                return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid claims"})
            }
            role, _ := claims["role"].(string)

            c.Set(ContextUserID, sub)
            c.Set(ContextRole, role)
            c.Set(ContextToken, tok)
            return next(c)
        }
    }
}

// subjectString normalises the sub claim.  Identity providers disagree on
// whether user ids are strings or numbers; JSON numbers decode as float64.
func subjectString(v interface{}) string {
    switch t := v.(type) {
    case string:
        return strings.TrimSpace(t)
    case float64:
        if t == float64(uint64(t)) {
            return strconv.FormatUint(uint64(t), 10)
        }
    }
    return ""
}
