// Package handler exposes the HTTP endpoints.  Handlers translate
// repository and service errors into status codes with an
// {"error": "..."} body.
package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/workshop-booking/internal/middleware"
	"github.com/iliyamo/workshop-booking/internal/repository"
	"github.com/iliyamo/workshop-booking/internal/service"
)

const requestTimeout = 5 * time.Second

var errNoUser = errors.New("invalid user_id in context")

// getUserID returns the caller set by the JWT middleware.
func getUserID(c echo.Context) (uint64, error) {
	id, ok := middleware.UserID(c)
	if !ok {
		return 0, errNoUser
	}
	return id, nil
}

// paramID parses a positive numeric path parameter.
func paramID(c echo.Context, name string) (uint64, bool) {
	id, err := strconv.ParseUint(c.Param(name), 10, 64)
	return id, err == nil && id > 0
}

func withTimeout(c echo.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(c.Request().Context(), requestTimeout)
}

// bookingError maps a booking-path error to a status and client message.
// Unknown errors are integration failures.
func bookingError(err error) (int, string) {
	switch {
	case errors.Is(err, repository.ErrSessionFull):
		return http.StatusBadRequest, "Session is fully booked"
	case errors.Is(err, repository.ErrAlreadyRegistered):
		return http.StatusBadRequest, "User already registered"
	case errors.Is(err, repository.ErrUserNotFound):
		return http.StatusBadRequest, "User not found"
	case errors.Is(err, service.ErrPaymentRequired):
		return http.StatusBadRequest, "Workshop requires payment"
	case errors.Is(err, service.ErrFreeSession):
		return http.StatusBadRequest, "Workshop is free, use free registration"
	case errors.Is(err, service.ErrPriceRequired):
		return http.StatusBadRequest, "price_ref required"
	case errors.Is(err, service.ErrPriceMismatch):
		return http.StatusBadRequest, "price_ref does not match session"
	case errors.Is(err, service.ErrWorkshopMismatch):
		return http.StatusBadRequest, "Session does not belong to workshop"
	case errors.Is(err, repository.ErrSessionNotFound):
		return http.StatusNotFound, "Session not found"
	case errors.Is(err, repository.ErrWorkshopNotFound):
		return http.StatusNotFound, "Workshop not found"
	case errors.Is(err, repository.ErrCheckoutOpen):
		return http.StatusConflict, "Checkout already in progress"
	case errors.Is(err, service.ErrProvider):
		return http.StatusBadGateway, "Unable to create checkout session"
	default:
		return http.StatusInternalServerError, "Internal Server Error"
	}
}
