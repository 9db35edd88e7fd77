package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/iliyamo/workshop-booking/internal/model"
	"github.com/iliyamo/workshop-booking/internal/payment"
	"github.com/iliyamo/workshop-booking/internal/queue"
	"github.com/iliyamo/workshop-booking/internal/repository"
)

// Outcome is the terminal state of one webhook delivery.
type Outcome int

const (
	// OutcomeFailed means a storage error; the provider should retry.
	OutcomeFailed Outcome = iota
	// OutcomeRejected means the signature did not verify.
	OutcomeRejected
	// OutcomeIgnored means the event is authentic but not acted on.
	OutcomeIgnored
	// OutcomeAlreadySettled means the payment reference was seen before.
	OutcomeAlreadySettled
	// OutcomeSettled means the purchase was recorded and the user is a participant.
	OutcomeSettled
	// OutcomeSettledUnadmitted means the purchase was recorded but the
	// session had no place left (or no longer exists).  Needs a refund.
	OutcomeSettledUnadmitted
)

func (o Outcome) String() string {
	switch o {
	case OutcomeRejected:
		return "rejected"
	case OutcomeIgnored:
		return "ignored"
	case OutcomeAlreadySettled:
		return "already_settled"
	case OutcomeSettled:
		return "settled"
	case OutcomeSettledUnadmitted:
		return "settled_unadmitted"
	default:
		return "failed"
	}
}

// SettlementService turns verified checkout completions into purchases and
// admissions.  It is safe under at-least-once delivery: the unique payment
// reference makes the purchase insert the single commit point.
type SettlementService struct {
	db        *sql.DB
	verifier  payment.Verifier
	dedup     EventDeduper
	sessions  SessionStore
	purchases PurchaseStore
	intents   IntentStore
	publisher Publisher
	now       func() time.Time
}

// SettlementDeps bundles the collaborators of SettlementService.  Dedup
// and Publisher may be nil.
type SettlementDeps struct {
	DB        *sql.DB
	Verifier  payment.Verifier
	Dedup     EventDeduper
	Sessions  SessionStore
	Purchases PurchaseStore
	Intents   IntentStore
	Publisher Publisher
}

func NewSettlementService(d SettlementDeps) *SettlementService {
	return &SettlementService{
		db:        d.DB,
		verifier:  d.Verifier,
		dedup:     d.Dedup,
		sessions:  d.Sessions,
		purchases: d.Purchases,
		intents:   d.Intents,
		publisher: d.Publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

// HandleWebhook verifies and applies one provider delivery.  A non-nil
// error accompanies only OutcomeRejected and OutcomeFailed.
func (s *SettlementService) HandleWebhook(ctx context.Context, payload []byte, signature string) (Outcome, error) {
	ev, err := s.verifier.ParseEvent(payload, signature)
	switch {
	case errors.Is(err, payment.ErrMalformedEvent):
		// authentic but unusable; retrying will not fix it
		logrus.WithError(err).Error("webhook: malformed checkout event")
		return OutcomeIgnored, nil
	case err != nil:
		logrus.WithError(err).Warn("webhook: signature rejected")
		return OutcomeRejected, err
	}

	log := logrus.WithFields(logrus.Fields{"event_id": ev.ID, "event_type": ev.Type})
	if ev.Kind != payment.KindCheckoutCompleted {
		log.Debug("webhook: unhandled event type")
		return OutcomeIgnored, nil
	}

	if s.dedup != nil {
		first, derr := s.dedup.Claim(ctx, ev.ID)
		if derr != nil {
			log.WithError(derr).Warn("webhook: dedup unavailable, falling back to database")
		}
		if !first {
			// the marker is a hint; only a stored purchase proves settlement
			if _, ferr := s.purchases.FindByReference(ctx, ev.Checkout.PaymentRef); ferr == nil {
				log.Info("webhook: event already processed")
				return OutcomeAlreadySettled, nil
			}
			log.Warn("webhook: dedup marker without purchase, settling")
		}
	}

	out, err := s.settle(ctx, ev.Checkout)
	if err != nil {
		if s.dedup != nil {
			s.releaseMarker(ctx, ev.ID, log)
		}
		log.WithError(err).Error("webhook: settlement failed")
		return OutcomeFailed, err
	}
	log.WithField("outcome", out.String()).Info("webhook: processed")
	return out, nil
}

// releaseMarker drops the dedup key so a provider retry is not filtered.
// It outlives the request context, which is often the reason settle failed.
func (s *SettlementService) releaseMarker(ctx context.Context, eventID string, log *logrus.Entry) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	if err := s.dedup.Release(rctx, eventID); err != nil {
		log.WithError(err).Warn("webhook: dedup release failed")
	}
}

func (s *SettlementService) settle(ctx context.Context, c *payment.CheckoutCompleted) (Outcome, error) {
	log := logrus.WithFields(logrus.Fields{
		"payment_ref": c.PaymentRef, "user_id": c.UserID, "session_id": c.SessionID,
	})
	if _, err := s.purchases.FindByReference(ctx, c.PaymentRef); err == nil {
		return OutcomeAlreadySettled, nil
	} else if !errors.Is(err, repository.ErrPurchaseNotFound) {
		return OutcomeFailed, err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return OutcomeFailed, fmt.Errorf("begin settlement: %w", err)
	}
	committed := false
	defer func() {
		if !committed {
			_ = tx.Rollback()
		}
	}()

	sid := c.SessionID
	p := &model.Purchase{
		UserID:      c.UserID,
		WorkshopID:  c.WorkshopID,
		SessionID:   &sid,
		PaymentRef:  c.PaymentRef,
		AmountCents: c.AmountCents,
		Currency:    c.Currency,
		Status:      model.PurchaseSucceeded,
		PurchasedAt: s.now(),
	}
	if err := s.purchases.CreateTx(ctx, tx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicateReference) {
			// a concurrent delivery committed first
			return OutcomeAlreadySettled, nil
		}
		return OutcomeFailed, err
	}
	if _, err := s.intents.CompleteTx(ctx, tx, c.ProviderSessionID); err != nil {
		return OutcomeFailed, err
	}

	outcome := OutcomeSettled
	admitErr := s.sessions.AdmitTx(ctx, tx, c.SessionID, c.UserID)
	switch {
	case admitErr == nil, errors.Is(admitErr, repository.ErrAlreadyRegistered):
	case errors.Is(admitErr, repository.ErrSessionFull),
		errors.Is(admitErr, repository.ErrSessionNotFound),
		errors.Is(admitErr, repository.ErrUserNotFound):
		outcome = OutcomeSettledUnadmitted
	default:
		return OutcomeFailed, admitErr
	}

	if err := tx.Commit(); err != nil {
		return OutcomeFailed, fmt.Errorf("commit settlement: %w", err)
	}
	committed = true

	if outcome == OutcomeSettledUnadmitted {
		log.WithError(admitErr).WithField("amount_cents", c.AmountCents).
			Error("payment recorded but participant not admitted; manual refund required")
		return outcome, nil
	}
	if admitErr == nil {
		if err := publish(ctx, s.publisher, queue.RegistrationConfirmedEvent{
			UserID: c.UserID, WorkshopID: c.WorkshopID, SessionID: c.SessionID,
			PaymentRef: c.PaymentRef, AmountCents: c.AmountCents, Currency: p.Currency,
			Source: "checkout", ConfirmedAt: p.PurchasedAt,
		}); err != nil {
			log.WithError(err).Warn("publish registration event failed")
		}
	}
	return outcome, nil
}
