package payment

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/stripe/stripe-go/v76"
	"github.com/stripe/stripe-go/v76/checkout/session"
	"github.com/stripe/stripe-go/v76/webhook"
)

const eventCheckoutCompleted = "checkout.session.completed"

// Stripe checkout sessions must expire between 30 minutes and 24 hours out.
const (
	minCheckoutTTL = 30 * time.Minute
	maxCheckoutTTL = 24 * time.Hour
)

// Metadata keys attached to every checkout so the webhook can route the
// payment back to a session.
const (
	metaWorkshopID = "workshopId"
	metaSessionID  = "sessionId"
	metaUserID     = "userId"
)

// StripeConfig holds the provider credentials and redirect targets.
type StripeConfig struct {
	SecretKey     string
	WebhookSecret string
	SuccessURL    string
	CancelURL     string
	MethodTypes   []string
}

// Stripe implements Gateway and Verifier on top of Stripe Checkout.
type Stripe struct {
	cfg      StripeConfig
	sessions *session.Client
}

// NewStripe builds a Stripe adapter using the default API backend.
func NewStripe(cfg StripeConfig) *Stripe {
	if len(cfg.MethodTypes) == 0 {
		cfg.MethodTypes = []string{"card", "paynow"}
	}
	return &Stripe{
		cfg:      cfg,
		sessions: &session.Client{B: stripe.GetBackend(stripe.APIBackend), Key: cfg.SecretKey},
	}
}

// CreateCheckout opens a one-item payment-mode checkout.
func (s *Stripe) CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error) {
	params := &stripe.CheckoutSessionParams{
		Mode:               stripe.String(string(stripe.CheckoutSessionModePayment)),
		PaymentMethodTypes: stripe.StringSlice(s.cfg.MethodTypes),
		LineItems: []*stripe.CheckoutSessionLineItemParams{
			{Price: stripe.String(req.PriceRef), Quantity: stripe.Int64(1)},
		},
		SuccessURL: stripe.String(s.cfg.SuccessURL),
		CancelURL:  stripe.String(s.cfg.CancelURL),
	}
	params.Context = ctx
	if req.CustomerEmail != "" {
		params.CustomerEmail = stripe.String(req.CustomerEmail)
	}
	// callers bound the expiry with CheckoutExpiry so the stored intent and
	// the provider session agree; it is forwarded unchanged
	if !req.ExpiresAt.IsZero() {
		params.ExpiresAt = stripe.Int64(req.ExpiresAt.Unix())
	}
	params.AddMetadata(metaWorkshopID, strconv.FormatUint(req.WorkshopID, 10))
	params.AddMetadata(metaSessionID, strconv.FormatUint(req.SessionID, 10))
	params.AddMetadata(metaUserID, strconv.FormatUint(req.UserID, 10))

	cs, err := s.sessions.New(params)
	if err != nil {
		return nil, fmt.Errorf("stripe checkout: %w", err)
	}
	return &Checkout{ProviderSessionID: cs.ID, URL: cs.URL}, nil
}

// CheckoutExpiry returns now+ttl bounded to the window the provider
// accepts for a checkout session.  A non-positive ttl yields the zero time,
// which leaves the provider default in place.
func CheckoutExpiry(now time.Time, ttl time.Duration) time.Time {
	if ttl <= 0 {
		return time.Time{}
	}
	return clampExpiry(now.Add(ttl), now).Truncate(time.Second)
}

func clampExpiry(exp, now time.Time) time.Time {
	if exp.IsZero() {
		return exp
	}
	// leave a minute of slack for clock skew and request latency
	if lo := now.Add(minCheckoutTTL + time.Minute); exp.Before(lo) {
		return lo
	}
	if hi := now.Add(maxCheckoutTTL - time.Minute); exp.After(hi) {
		return hi
	}
	return exp
}

// ParseEvent verifies the Stripe-Signature header and decodes the event.
func (s *Stripe) ParseEvent(payload []byte, signature string) (*Event, error) {
	if strings.TrimSpace(signature) == "" {
		return nil, ErrInvalidSignature
	}
	ev, err := webhook.ConstructEventWithOptions(payload, signature, s.cfg.WebhookSecret,
		webhook.ConstructEventOptions{IgnoreAPIVersionMismatch: true})
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidSignature, err)
	}
	out := &Event{ID: ev.ID, Type: string(ev.Type), Kind: KindUnhandled}
	if out.Type != eventCheckoutCompleted {
		return out, nil
	}
	if ev.Data == nil {
		return nil, fmt.Errorf("%w: no data", ErrMalformedEvent)
	}
	var cs stripe.CheckoutSession
	if err := json.Unmarshal(ev.Data.Raw, &cs); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedEvent, err)
	}
	done, err := checkoutCompleted(&cs)
	if err != nil {
		return nil, err
	}
	out.Kind = KindCheckoutCompleted
	out.Checkout = done
	return out, nil
}

func checkoutCompleted(cs *stripe.CheckoutSession) (*CheckoutCompleted, error) {
	ids := make(map[string]uint64, 3)
	for _, k := range []string{metaWorkshopID, metaSessionID, metaUserID} {
		v, err := strconv.ParseUint(cs.Metadata[k], 10, 64)
		if err != nil || v == 0 {
			return nil, fmt.Errorf("%w: metadata %s=%q", ErrMalformedEvent, k, cs.Metadata[k])
		}
		ids[k] = v
	}
	ref := cs.ID
	if cs.PaymentIntent != nil && cs.PaymentIntent.ID != "" {
		ref = cs.PaymentIntent.ID
	}
	if ref == "" {
		return nil, fmt.Errorf("%w: no payment reference", ErrMalformedEvent)
	}
	return &CheckoutCompleted{
		ProviderSessionID: cs.ID,
		PaymentRef:        ref,
		AmountCents:       cs.AmountTotal,
		Currency:          strings.ToUpper(string(cs.Currency)),
		WorkshopID:        ids[metaWorkshopID],
		SessionID:         ids[metaSessionID],
		UserID:            ids[metaUserID],
	}, nil
}
