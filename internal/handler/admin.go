package handler

import (
	"context"
	"database/sql"
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-booking/internal/model"
	"github.com/iliyamo/workshop-booking/internal/repository"
)

// AdminHandler manages the catalogue.  A workshop and its sessions are
// written in one transaction.
type AdminHandler struct {
	WorkshopRepo *repository.WorkshopRepo
	SessionRepo  *repository.SessionRepo
}

func NewAdminHandler(w *repository.WorkshopRepo, s *repository.SessionRepo) *AdminHandler {
	return &AdminHandler{WorkshopRepo: w, SessionRepo: s}
}

type sessionBody struct {
	ID       uint64 `json:"id"`
	StartsAt string `json:"starts_at"`
	Location string `json:"location"`
	Capacity int64  `json:"capacity"`
	PriceRef string `json:"price_ref"`
}

type workshopBody struct {
	Title            string        `json:"title"`
	Organiser        string        `json:"organiser"`
	ShortDescription string        `json:"short_description"`
	FullDescription  string        `json:"full_description"`
	ImageURL         string        `json:"image_url"`
	Duration         string        `json:"duration"`
	Category         string        `json:"category"`
	PriceCents       int64         `json:"price_cents"`
	Website          string        `json:"website"`
	Sessions         []sessionBody `json:"sessions"`
}

// validate converts the body into models.  The returned message is empty
// when the body is acceptable.
func (b workshopBody) validate() (*model.Workshop, []model.Session, string) {
	title := strings.TrimSpace(b.Title)
	if title == "" {
		return nil, nil, "title is required"
	}
	if b.PriceCents < 0 || b.PriceCents > int64(^uint32(0)) {
		return nil, nil, "price_cents must be a non-negative amount"
	}
	w := &model.Workshop{
		Title:            title,
		Organiser:        strings.TrimSpace(b.Organiser),
		ShortDescription: strings.TrimSpace(b.ShortDescription),
		FullDescription:  b.FullDescription,
		ImageURL:         strings.TrimSpace(b.ImageURL),
		Duration:         strings.TrimSpace(b.Duration),
		Category:         strings.TrimSpace(b.Category),
		PriceCents:       uint32(b.PriceCents),
		Website:          strings.TrimSpace(b.Website),
	}
	sessions := make([]model.Session, 0, len(b.Sessions))
	for _, sb := range b.Sessions {
		startsAt, err := time.Parse(time.RFC3339, strings.TrimSpace(sb.StartsAt))
		if err != nil {
			return nil, nil, "invalid starts_at format"
		}
		if sb.Capacity < 1 || sb.Capacity > int64(^uint32(0)) {
			return nil, nil, "capacity must be at least 1"
		}
		sessions = append(sessions, model.Session{
			ID:       sb.ID,
			StartsAt: startsAt.UTC(),
			Location: strings.TrimSpace(sb.Location),
			Capacity: uint32(sb.Capacity),
			PriceRef: strings.TrimSpace(sb.PriceRef),
		})
	}
	return w, sessions, ""
}

// CreateWorkshop handles POST /v1/admin/workshops.
func (h *AdminHandler) CreateWorkshop(c echo.Context) error {
	var body workshopBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	w, sessions, msg := body.validate()
	if msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	if len(sessions) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "at least one session is required"})
	}

	ctx, cancel := withTimeout(c)
	defer cancel()
	err := h.inTx(ctx, func(tx *sql.Tx) error {
		if err := h.WorkshopRepo.CreateTx(ctx, tx, w); err != nil {
			return err
		}
		for i := range sessions {
			sessions[i].ID = 0
			sessions[i].WorkshopID = w.ID
			if err := h.SessionRepo.CreateTx(ctx, tx, &sessions[i]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		logrus.WithError(err).Error("create workshop failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not create workshop"})
	}
	return c.JSON(http.StatusCreated, toPublicWorkshop(*w, sessions, true))
}

// UpdateWorkshop handles PUT /v1/admin/workshops/:id.  Sessions carrying an
// id are edited in place; the rest are added.
func (h *AdminHandler) UpdateWorkshop(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	var body workshopBody
	if err := c.Bind(&body); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	w, sessions, msg := body.validate()
	if msg != "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": msg})
	}
	w.ID = id

	ctx, cancel := withTimeout(c)
	defer cancel()
	err := h.inTx(ctx, func(tx *sql.Tx) error {
		if err := h.WorkshopRepo.UpdateTx(ctx, tx, w); err != nil {
			return err
		}
		for i := range sessions {
			sessions[i].WorkshopID = id
			var err error
			if sessions[i].ID != 0 {
				err = h.SessionRepo.UpdateTx(ctx, tx, &sessions[i])
			} else {
				err = h.SessionRepo.CreateTx(ctx, tx, &sessions[i])
			}
			if err != nil {
				return err
			}
		}
		return nil
	})
	switch {
	case errors.Is(err, repository.ErrWorkshopNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "workshop not found"})
	case errors.Is(err, repository.ErrSessionNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
	case errors.Is(err, repository.ErrCapacityBelowParticipants):
		return c.JSON(http.StatusConflict, echo.Map{"error": "capacity below current participants"})
	case err != nil:
		logrus.WithError(err).WithField("workshop_id", id).Error("update workshop failed")
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "could not update workshop"})
	}

	fresh, err := h.SessionRepo.ListByWorkshop(ctx, id)
	if err != nil {
		return c.JSON(http.StatusOK, toPublicWorkshop(*w, sessions, true))
	}
	return c.JSON(http.StatusOK, toPublicWorkshop(*w, fresh, true))
}

// ListParticipants handles GET /v1/admin/sessions/:id/participants.
func (h *AdminHandler) ListParticipants(c echo.Context) error {
	id, ok := paramID(c, "id")
	if !ok {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid id"})
	}
	ctx, cancel := withTimeout(c)
	defer cancel()

	s, err := h.SessionRepo.GetByID(ctx, id)
	if err != nil {
		if errors.Is(err, repository.ErrSessionNotFound) {
			return c.JSON(http.StatusNotFound, echo.Map{"error": "session not found"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to load session"})
	}
	participants, err := h.SessionRepo.ListParticipants(ctx, id)
	if err != nil {
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to list participants"})
	}
	type item struct {
		UserID       uint64    `json:"user_id"`
		Email        string    `json:"email"`
		RegisteredAt time.Time `json:"registered_at"`
	}
	items := make([]item, 0, len(participants))
	for _, p := range participants {
		items = append(items, item{UserID: p.UserID, Email: p.Email, RegisteredAt: p.CreatedAt})
	}
	return c.JSON(http.StatusOK, echo.Map{
		"session_id":        s.ID,
		"capacity":          s.Capacity,
		"participant_count": s.ParticipantCount,
		"participants":      items,
	})
}

// inTx runs fn in a transaction, committing only when it returns nil.
func (h *AdminHandler) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	tx, err := h.WorkshopRepo.DB().BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()
	if err := fn(tx); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return err
	}
	committed = true
	return nil
}
