package handler

import (
	"context"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-booking/internal/service"
)

// Registrar is the booking entry point used by RegistrationHandler.
type Registrar interface {
	RegisterFree(ctx context.Context, in service.RegisterInput) (*service.Registration, error)
	StartCheckout(ctx context.Context, in service.RegisterInput) (*service.Registration, error)
}

// RegistrationHandler serves the free registration and checkout endpoints.
type RegistrationHandler struct {
	svc Registrar
}

func NewRegistrationHandler(svc Registrar) *RegistrationHandler {
	return &RegistrationHandler{svc: svc}
}

// bookingReq accepts snake_case and the camelCase names older clients send.
type bookingReq struct {
	WorkshopID      uint64 `json:"workshop_id"`
	SessionID       uint64 `json:"session_id"`
	PriceRef        string `json:"price_ref"`
	WorkshopIDCamel uint64 `json:"workshopId"`
	SessionIDCamel  uint64 `json:"sessionId"`
	PriceRefCamel   string `json:"priceId"`
}

func (r bookingReq) input(userID uint64) service.RegisterInput {
	in := service.RegisterInput{WorkshopID: r.WorkshopID, SessionID: r.SessionID, PriceRef: r.PriceRef, UserID: userID}
	if in.WorkshopID == 0 {
		in.WorkshopID = r.WorkshopIDCamel
	}
	if in.SessionID == 0 {
		in.SessionID = r.SessionIDCamel
	}
	if in.PriceRef == "" {
		in.PriceRef = r.PriceRefCamel
	}
	return in
}

// RegisterFree handles POST /registration/free.
func (h *RegistrationHandler) RegisterFree(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "User not authenticated"})
	}
	var req bookingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	in := req.input(uid)
	if in.SessionID == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "session_id required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	reg, err := h.svc.RegisterFree(ctx, in)
	if err != nil {
		status, msg := bookingError(err)
		if status >= http.StatusInternalServerError {
			logrus.WithError(err).WithField("session_id", in.SessionID).Error("free registration failed")
		}
		return c.JSON(status, echo.Map{"error": msg})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"message":     "Registration successful",
		"session_id":  reg.SessionID,
		"payment_ref": reg.PaymentRef,
	})
}

// CreateCheckout handles POST /checkout/create.
func (h *RegistrationHandler) CreateCheckout(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "User not authenticated"})
	}
	var req bookingReq
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid body"})
	}
	in := req.input(uid)
	if in.SessionID == 0 || in.PriceRef == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Invalid request data."})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	reg, err := h.svc.StartCheckout(ctx, in)
	if err != nil {
		status, msg := bookingError(err)
		if status >= http.StatusInternalServerError {
			logrus.WithError(err).WithField("session_id", in.SessionID).Error("checkout creation failed")
		}
		return c.JSON(status, echo.Map{"error": msg})
	}
	return c.JSON(http.StatusOK, echo.Map{"redirect_url": reg.RedirectURL})
}
