package handler // handler defines the HTTP handlers of the booking API

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/cinema-booking/internal/logging"
	"github.com/iliyamo/cinema-booking/internal/service"
)

// respondError maps a service error onto a status code and body.  Business
// failures carry their message; anything unrecognised is logged and hidden
// behind a generic 500.
func respondError(c echo.Context, err error) error {
	var (
		conflict *service.ConflictError
		invalid  *service.ValidationError
	)
	switch {
	case errors.As(err, &conflict):
		return c.JSON(http.StatusConflict, echo.Map{"error": "seats unavailable", "unavailable": conflict.SeatIDs})
	case errors.As(err, &invalid):
		return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": invalid.Message, "code": invalid.Code})
	case errors.Is(err, service.ErrExpired):
		return c.JSON(http.StatusGone, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "not found"})
	case errors.Is(err, service.ErrForbidden):
		return c.JSON(http.StatusForbidden, echo.Map{"error": "forbidden"})
	case errors.Is(err, service.ErrIllegalTransition):
		return c.JSON(http.StatusConflict, echo.Map{"error": err.Error()})
	case errors.Is(err, service.ErrInvalidSignature),
		errors.Is(err, service.ErrMalformedCallback),
		errors.Is(err, service.ErrAmountMismatch):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": err.Error()})
	}
	logging.FromContext(c.Request().Context()).WithError(err).Error("request failed")
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
