package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"

	"github.com/iliyamo/workshop-booking/internal/model"
	"github.com/iliyamo/workshop-booking/internal/repository"
)

// CatalogHandler serves the public workshop catalogue.  Responses carry
// availability as read at request time; booking never relies on them.
type CatalogHandler struct {
	WorkshopRepo *repository.WorkshopRepo
	SessionRepo  *repository.SessionRepo
}

func NewCatalogHandler(w *repository.WorkshopRepo, s *repository.SessionRepo) *CatalogHandler {
	return &CatalogHandler{WorkshopRepo: w, SessionRepo: s}
}

// PublicSession is a session as shown to browsing visitors.
type PublicSession struct {
	ID        uint64    `json:"id"`
	StartsAt  time.Time `json:"starts_at"`
	Location  string    `json:"location"`
	Capacity  uint32    `json:"capacity"`
	Available int       `json:"available"`
	PriceRef  string    `json:"price_ref,omitempty"`
}

// PublicWorkshop is a catalogue entry without audit timestamps.
type PublicWorkshop struct {
	ID               uint64          `json:"id"`
	Title            string          `json:"title"`
	Organiser        string          `json:"organiser,omitempty"`
	ShortDescription string          `json:"short_description"`
	FullDescription  string          `json:"full_description,omitempty"`
	ImageURL         string          `json:"image_url,omitempty"`
	Duration         string          `json:"duration,omitempty"`
	Category         string          `json:"category"`
	PriceCents       uint32          `json:"price_cents"`
	Price            string          `json:"price"`
	Free             bool            `json:"is_free"`
	Website          string          `json:"website,omitempty"`
	Sessions         []PublicSession `json:"sessions"`
}

// formatCents renders minor units as a two-decimal amount.
func formatCents(c uint32) string {
	return fmt.Sprintf("%d.%02d", c/100, c%100)
}

func toPublicSession(s model.Session) PublicSession {
	avail := s.Availability()
	if avail < 0 {
		avail = 0
	}
	return PublicSession{
		ID:        s.ID,
		StartsAt:  s.StartsAt,
		Location:  s.Location,
		Capacity:  s.Capacity,
		Available: avail,
		PriceRef:  s.PriceRef,
	}
}

func toPublicWorkshop(w model.Workshop, sessions []model.Session, full bool) PublicWorkshop {
	pw := PublicWorkshop{
		ID:               w.ID,
		Title:            w.Title,
		Organiser:        w.Organiser,
		ShortDescription: w.ShortDescription,
		ImageURL:         w.ImageURL,
		Duration:         w.Duration,
		Category:         w.Category,
		PriceCents:       w.PriceCents,
		Price:            formatCents(w.PriceCents),
		Free:             w.IsFree(),
		Website:          w.Website,
		Sessions:         make([]PublicSession, 0, len(sessions)),
	}
	if full {
		pw.FullDescription = w.FullDescription
	}
	for _, s := range sessions {
		pw.Sessions = append(pw.Sessions, toPublicSession(s))
	}
	return pw
}

// ListWorkshops handles GET /v1/workshops?category=...
func (h *CatalogHandler) ListWorkshops(c echo.Context) error {
	ctx, cancel := withTimeout(c)
	defer cancel()

	category := strings.TrimSpace(c.QueryParam("category"))
	workshops, err := h.WorkshopRepo.List(ctx, category)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list workshops"})
	}
	items := make([]PublicWorkshop, 0, len(workshops))
	for _, w := range workshops {
		sessions, err := h.SessionRepo.ListByWorkshop(ctx, w.ID)
		if err != nil {
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list sessions"})
		}
		items = append(items, toPublicWorkshop(w, sessions, false))
	}
	return c.JSON(http.StatusOK, echo.Map{"items": items})
}

// GetWorkshop handles GET /v1/workshops/:id
func (h *CatalogHandler) GetWorkshop(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	w, err := h.WorkshopRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrWorkshopNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "workshop not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load workshop"})
	}
	sessions, err := h.SessionRepo.ListByWorkshop(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list sessions"})
	}
	return c.JSON(http.StatusOK, toPublicWorkshop(*w, sessions, true))
}

// SearchSessions handles GET /v1/search/sessions.
// time: "upcoming" (default), "open" (upcoming with places left), "any"
func (h *CatalogHandler) SearchSessions(c echo.Context) error {
	timeFilter := strings.ToLower(strings.TrimSpace(c.QueryParam("time")))
	if timeFilter == "" {
		timeFilter = "upcoming"
	}
	page, _ := strconv.Atoi(c.QueryParam("page"))
	if page < 1 {
		page = 1
	}
	ps, _ := strconv.Atoi(c.QueryParam("page_size"))
	if ps < 1 {
		ps = 20
	}
	if ps > 100 {
		ps = 100
	}

	q := repository.SessionSearchQuery{
		Title:      strings.TrimSpace(c.QueryParam("title")),
		Category:   strings.TrimSpace(c.QueryParam("category")),
		Location:   strings.TrimSpace(c.QueryParam("location")),
		TimeFilter: timeFilter,
		Page:       page,
		PageSize:   ps,
	}
	ctx, cancel := withTimeout(c)
	defer cancel()
	items, total, err := h.SessionRepo.SearchUpcoming(ctx, q, time.Now())
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to search sessions"})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"data":      items,
		"total":     total,
		"page":      page,
		"page_size": ps,
	})
}
