package handler // handler defines http handlers

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/gommon/log"

	"github.com/iliyamo/lab-equipment-reservation/internal/middleware"
	"github.com/iliyamo/lab-equipment-reservation/internal/model"
	"github.com/iliyamo/lab-equipment-reservation/internal/service"
)

var errNoUser = errors.New("invalid user_id in context")

var handlerLog = log.New("http")

// getUserID extracts the authenticated user id stored by JWTAuth.
func getUserID(c echo.Context) (string, error) {
	if id := middleware.UserID(c); id != "" {
		return id, nil
	}
	return "", errNoUser
}

// caller builds the service identity for the current request.
func caller(c echo.Context) (service.Caller, error) {
	id, err := getUserID(c)
	if err != nil {
		return service.Caller{}, err
	}
	return service.Caller{UserID: id, CanApprove: middleware.CanApprove(c)}, nil
}

func unauthorized(c echo.Context) error {
	return c.JSON(http.StatusUnauthorized, echo.Map{"error": "unauthorized"})
}

func badRequest(c echo.Context, msg string) error {
	return c.JSON(http.StatusBadRequest, echo.Map{"error": msg, "code": string(model.KindValidation)})
}

// statusFor maps an error kind to its HTTP status.  The two 409 kinds stay
// distinguishable through the "code" field of the body.
func statusFor(kind model.Kind) int {
	switch kind {
	case model.KindValidation:
		return http.StatusBadRequest
	case model.KindNotFound:
		return http.StatusNotFound
	case model.KindForbidden:
		return http.StatusForbidden
	case model.KindConflict, model.KindInvalidState:
		return http.StatusConflict
	case model.KindUnavailable:
		return http.StatusServiceUnavailable
	}
	return http.StatusInternalServerError
}

// writeError renders a service error.  Errors without a kind are logged and
// hidden behind a generic message.
func writeError(c echo.Context, err error) error {
	kind := model.KindOf(err)
	status := statusFor(kind)
	if status == http.StatusInternalServerError {
		handlerLog.Errorf("%s %s: %v", c.Request().Method, c.Path(), err)
		return c.JSON(status, echo.Map{"error": "internal error", "code": "internal"})
	}
	msg := err.Error()
	var me *model.Error
	if errors.As(err, &me) {
		msg = me.Message
	}
	return c.JSON(status, echo.Map{"error": msg, "code": string(kind)})
}

// parseTime accepts RFC 3339 timestamps and bare YYYY-MM-DD dates (UTC
// midnight).
func parseTime(raw string) (time.Time, error) {
	raw = strings.TrimSpace(raw)
	if t, err := time.Parse(time.RFC3339, raw); err == nil {
		return t.UTC(), nil
	}
	return time.ParseInLocation("2006-01-02", raw, time.UTC)
}
