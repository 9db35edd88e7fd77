package handler

import (
	"net/http"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/workshop-booking/internal/repository"
)

// MeHandler serves the caller's bookings.
type MeHandler struct {
	SessionRepo  *repository.SessionRepo
	PurchaseRepo *repository.PurchaseRepo
	now          func() time.Time
}

func NewMeHandler(s *repository.SessionRepo, p *repository.PurchaseRepo) *MeHandler {
	return &MeHandler{SessionRepo: s, PurchaseRepo: p, now: time.Now}
}

type upcomingItem struct {
	PublicSession
	WorkshopID uint64 `json:"workshop_id"`
}

type purchaseItem struct {
	ID          uint64    `json:"id"`
	WorkshopID  uint64    `json:"workshop_id"`
	SessionID   *uint64   `json:"session_id,omitempty"`
	PaymentRef  string    `json:"payment_ref"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Status      string    `json:"status"`
	PurchasedAt time.Time `json:"purchased_at"`
}

// Upcoming handles GET /v1/me/upcoming.
func (h *MeHandler) Upcoming(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "User not authenticated"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	sessions, err := h.SessionRepo.ListUpcomingForUser(ctx, uid, h.now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list sessions"})
	}
	items := make([]upcomingItem, 0, len(sessions))
	for _, s := range sessions {
		items = append(items, upcomingItem{PublicSession: toPublicSession(s), WorkshopID: s.WorkshopID})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// Purchases handles GET /v1/me/purchases.
func (h *MeHandler) Purchases(c echo.Context) error {
	uid, err := getUserID(c)
	if err != nil {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "User not authenticated"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	purchases, err := h.PurchaseRepo.ListByUser(ctx, uid)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list purchases"})
	}
	items := make([]purchaseItem, 0, len(purchases))
	for _, p := range purchases {
		items = append(items, purchaseItem{
			ID:          p.ID,
			WorkshopID:  p.WorkshopID,
			SessionID:   p.SessionID,
			PaymentRef:  p.PaymentRef,
			AmountCents: p.AmountCents,
			Currency:    p.Currency,
			Status:      p.Status,
			PurchasedAt: p.PurchasedAt,
		})
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}
