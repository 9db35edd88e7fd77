package handler

import (
	"context"
	"io"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/workshop-booking/internal/service"
)

// maxWebhookBody bounds the payload read before signature verification.
const maxWebhookBody = 1 << 16

// WebhookProcessor applies a signed provider delivery.
type WebhookProcessor interface {
	HandleWebhook(ctx context.Context, payload []byte, signature string) (service.Outcome, error)
}

type WebhookHandler struct {
	svc WebhookProcessor
}

func NewWebhookHandler(svc WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{svc: svc}
}

// Payment handles POST /webhooks/payment.  Every verified delivery is
// acknowledged with 200 so the provider stops retrying; storage failures
// return 500 so it retries later.
func (h *WebhookHandler) Payment(c echo.Context) error {
	sig := c.Request().Header.Get("Stripe-Signature")
	if sig == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "missing signature"})
	}
	payload, err := io.ReadAll(io.LimitReader(c.Request().Body, maxWebhookBody+1))
	if err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "unreadable body"})
	}
	if len(payload) > maxWebhookBody {
		return c.JSON(http.StatusRequestEntityTooLarge, echo.Map{"error": "payload too large"})
	}

	// Errors are logged by the service; only the outcome decides the status.
	out, _ := h.svc.HandleWebhook(c.Request().Context(), payload, sig)
	switch out {
	case service.OutcomeRejected:
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "Webhook Error: invalid signature"})
	case service.OutcomeFailed:
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "settlement failed"})
	}
	return c.JSON(http.StatusOK, echo.Map{"received": true, "outcome": out.String()})
}
