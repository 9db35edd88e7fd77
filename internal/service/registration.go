package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-booking/internal/model"
	"github.com/iliyamo/workshop-booking/internal/payment"
	"github.com/iliyamo/workshop-booking/internal/queue"
	"github.com/iliyamo/workshop-booking/internal/repository"
)

var (
	ErrPaymentRequired  = errors.New("workshop requires payment")
	ErrFreeSession      = errors.New("workshop is free, no checkout needed")
	ErrPriceRequired    = errors.New("price reference required")
	ErrPriceMismatch    = errors.New("price reference does not match session")
	ErrWorkshopMismatch = errors.New("session does not belong to workshop")
	ErrProvider         = errors.New("payment provider unavailable")
)

// RegistrationKind tells the caller what happened to a booking request.
type RegistrationKind int

const (
	// RegistrationAdmitted means the user is now a participant.
	RegistrationAdmitted RegistrationKind = iota + 1
	// RegistrationCheckout means payment must be completed at RedirectURL.
	RegistrationCheckout
)

// RegisterInput is a booking request from an authenticated user.
type RegisterInput struct {
	WorkshopID uint64 // optional; checked against the session's workshop when set
	SessionID  uint64
	UserID     uint64
	Email      string
	PriceRef   string
}

// Registration is the result of a successful booking request.
type Registration struct {
	Kind        RegistrationKind
	WorkshopID  uint64
	SessionID   uint64
	PaymentRef  string // free registrations only
	RedirectURL string // checkout only
	Resumed     bool   // an already open checkout was returned
}

// RegistrationService decides between the free and paid booking paths.
type RegistrationService struct {
	db          *sql.DB
	sessions    SessionStore
	workshops   WorkshopStore
	purchases   PurchaseStore
	intents     IntentStore
	users       UserStore
	gateway     payment.Gateway
	publisher   Publisher
	currency    string
	checkoutTTL time.Duration
	now         func() time.Time
}

// RegistrationDeps bundles the collaborators of RegistrationService.
type RegistrationDeps struct {
	DB          *sql.DB
	Sessions    SessionStore
	Workshops   WorkshopStore
	Purchases   PurchaseStore
	Intents     IntentStore
	Users       UserStore
	Gateway     payment.Gateway
	Publisher   Publisher
	Currency    string
	CheckoutTTL time.Duration
}

func NewRegistrationService(d RegistrationDeps) *RegistrationService {
	if d.Currency == "" {
		d.Currency = model.DefaultCurrency
	}
	if d.CheckoutTTL <= 0 {
		d.CheckoutTTL = 30 * time.Minute
	}
	return &RegistrationService{
		db:          d.DB,
		sessions:    d.Sessions,
		workshops:   d.Workshops,
		purchases:   d.Purchases,
		intents:     d.Intents,
		users:       d.Users,
		gateway:     d.Gateway,
		publisher:   d.Publisher,
		currency:    d.Currency,
		checkoutTTL: d.CheckoutTTL,
		now:         func() time.Time { return time.Now().UTC() },
	}
}

// Register books a place: free workshops admit the user immediately,
// paid ones open a provider checkout and return its URL.
func (s *RegistrationService) Register(ctx context.Context, in RegisterInput) (*Registration, error) {
	sess, ws, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	if ws.IsFree() {
		return s.admitFree(ctx, in, sess)
	}
	return s.checkout(ctx, in, sess)
}

// RegisterFree is Register restricted to free workshops.
func (s *RegistrationService) RegisterFree(ctx context.Context, in RegisterInput) (*Registration, error) {
	sess, ws, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	if !ws.IsFree() {
		return nil, ErrPaymentRequired
	}
	return s.admitFree(ctx, in, sess)
}

// StartCheckout is Register restricted to paid workshops.
func (s *RegistrationService) StartCheckout(ctx context.Context, in RegisterInput) (*Registration, error) {
	if strings.TrimSpace(in.PriceRef) == "" {
		return nil, ErrPriceRequired
	}
	sess, ws, err := s.prepare(ctx, in)
	if err != nil {
		return nil, err
	}
	if ws.IsFree() {
		return nil, ErrFreeSession
	}
	return s.checkout(ctx, in, sess)
}

// prepare runs the read-side checks shared by both paths.  They give fast,
// friendly answers only; AdmitTx re-checks capacity and membership
// atomically.
func (s *RegistrationService) prepare(ctx context.Context, in RegisterInput) (*model.Session, *model.Workshop, error) {
	sess, err := s.sessions.GetByID(ctx, in.SessionID)
	if err != nil {
		return nil, nil, err
	}
	if in.WorkshopID != 0 && in.WorkshopID != sess.WorkshopID {
		return nil, nil, ErrWorkshopMismatch
	}
	ws, err := s.workshops.GetByID(ctx, sess.WorkshopID)
	if err != nil {
		return nil, nil, err
	}
	if sess.Availability() <= 0 {
		return nil, nil, repository.ErrSessionFull
	}
	registered, err := s.sessions.IsRegistered(ctx, sess.ID, in.UserID)
	if err != nil {
		return nil, nil, err
	}
	if registered {
		return nil, nil, repository.ErrAlreadyRegistered
	}
	return sess, ws, nil
}

// FreePaymentRef builds the reference recorded for a free registration.
func FreePaymentRef(sessionID uint64) string {
	return fmt.Sprintf("FREE_%d_%s", sessionID, uuid.NewString())
}

// admitFree admits the user and records the free purchase in one
// transaction, so neither write survives without the other.
func (s *RegistrationService) admitFree(ctx context.Context, in RegisterInput, sess *model.Session) (*Registration, error) {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("begin free registration: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	if err := s.sessions.AdmitTx(ctx, tx, sess.ID, in.UserID); err != nil {
		return nil, err
	}
	sid := sess.ID
	p := &model.Purchase{
		UserID:      in.UserID,
		WorkshopID:  sess.WorkshopID,
		SessionID:   &sid,
		PaymentRef:  FreePaymentRef(sess.ID),
		AmountCents: 0,
		Currency:    s.currency,
		Status:      model.PurchaseFree,
		PurchasedAt: s.now(),
	}
	if err := s.purchases.CreateTx(ctx, tx, p); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("commit free registration: %w", err)
	}
	committed = true

	logrus.WithFields(logrus.Fields{
		"user_id": in.UserID, "session_id": sess.ID, "payment_ref": p.PaymentRef,
	}).Info("free registration admitted")
	if err := publish(ctx, s.publisher, queue.RegistrationConfirmedEvent{
		UserID: in.UserID, WorkshopID: sess.WorkshopID, SessionID: sess.ID,
		PaymentRef: p.PaymentRef, Currency: p.Currency, Source: "free", ConfirmedAt: p.PurchasedAt,
	}); err != nil {
		logrus.WithError(err).Warn("publish registration event failed")
	}
	return &Registration{Kind: RegistrationAdmitted, WorkshopID: sess.WorkshopID, SessionID: sess.ID, PaymentRef: p.PaymentRef}, nil
}

// checkout opens a provider checkout.  No capacity is held while the user
// pays; the intent only stops the same user from opening a second checkout
// for the session before the first one expires.
func (s *RegistrationService) checkout(ctx context.Context, in RegisterInput, sess *model.Session) (*Registration, error) {
	priceRef := strings.TrimSpace(in.PriceRef)
	switch {
	case sess.PriceRef != "" && priceRef != "" && priceRef != sess.PriceRef:
		return nil, ErrPriceMismatch
	case sess.PriceRef != "":
		priceRef = sess.PriceRef
	case priceRef == "":
		return nil, ErrPriceRequired
	}

	email := in.Email
	if email == "" {
		u, err := s.users.GetByID(ctx, in.UserID)
		if err != nil {
			return nil, err
		}
		email = u.Email
	}

	intent := &model.CheckoutIntent{
		UserID:     in.UserID,
		WorkshopID: sess.WorkshopID,
		SessionID:  sess.ID,
		ExpiresAt:  payment.CheckoutExpiry(s.now(), s.checkoutTTL),
	}
	if err := s.intents.Claim(ctx, intent); err != nil {
		if errors.Is(err, repository.ErrCheckoutOpen) {
			return s.resume(ctx, in.UserID, sess)
		}
		return nil, err
	}

	co, err := s.gateway.CreateCheckout(ctx, payment.CheckoutRequest{
		PriceRef:      priceRef,
		CustomerEmail: email,
		WorkshopID:    sess.WorkshopID,
		SessionID:     sess.ID,
		UserID:        in.UserID,
		ExpiresAt:     intent.ExpiresAt,
	})
	if err != nil {
		if rerr := s.intents.Release(ctx, intent.ID); rerr != nil {
			logrus.WithError(rerr).WithField("intent_id", intent.ID).Warn("release checkout intent failed")
		}
		logrus.WithError(err).WithField("session_id", sess.ID).Error("create provider checkout failed")
		return nil, fmt.Errorf("%w: %v", ErrProvider, err)
	}
	if err := s.intents.Attach(ctx, intent.ID, co.ProviderSessionID, co.URL); err != nil {
		// the checkout still works; the intent just expires instead of completing
		logrus.WithError(err).WithField("intent_id", intent.ID).Warn("attach checkout to intent failed")
	}
	return &Registration{Kind: RegistrationCheckout, WorkshopID: sess.WorkshopID, SessionID: sess.ID, RedirectURL: co.URL}, nil
}

func (s *RegistrationService) resume(ctx context.Context, userID uint64, sess *model.Session) (*Registration, error) {
	open, err := s.intents.FindOpen(ctx, userID, sess.ID)
	if err != nil {
		if errors.Is(err, repository.ErrIntentNotFound) {
			// closed between claim and lookup
			return nil, repository.ErrCheckoutOpen
		}
		return nil, err
	}
	if open.CheckoutURL == "" {
		return nil, repository.ErrCheckoutOpen
	}
	return &Registration{
		Kind: RegistrationCheckout, WorkshopID: sess.WorkshopID, SessionID: sess.ID,
		RedirectURL: open.CheckoutURL, Resumed: true,
	}, nil
}
