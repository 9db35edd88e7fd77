// Package payment adapts the external payment provider.  It creates hosted
// checkouts and turns signed webhook deliveries into a closed set of
// events the settlement service understands.
package payment

import (
	"context"
	"errors"
	"time"
)

var (
	// ErrInvalidSignature means the delivery could not be authenticated.
	// Nothing in it may be trusted.
	ErrInvalidSignature = errors.New("invalid webhook signature")
	// ErrMalformedEvent means the delivery was authentic but lacked the
	// fields needed to settle it.
	ErrMalformedEvent = errors.New("malformed payment event")
)

// Kind enumerates the events the service acts on.
type Kind int

const (
	KindUnhandled Kind = iota
	KindCheckoutCompleted
)

func (k Kind) String() string {
	switch k {
	case KindCheckoutCompleted:
		return "checkout_completed"
	default:
		return "unhandled"
	}
}

// Event is a verified provider notification.  Checkout is set only for
// KindCheckoutCompleted.
type Event struct {
	ID       string
	Type     string
	Kind     Kind
	Checkout *CheckoutCompleted
}

// CheckoutCompleted carries what settlement needs from a paid checkout.
type CheckoutCompleted struct {
	ProviderSessionID string
	PaymentRef        string
	AmountCents       int64
	Currency          string
	WorkshopID        uint64
	SessionID         uint64
	UserID            uint64
}

// CheckoutRequest describes a hosted checkout for one session place.
type CheckoutRequest struct {
	PriceRef      string
	CustomerEmail string
	WorkshopID    uint64
	SessionID     uint64
	UserID        uint64
	ExpiresAt     time.Time
}

// Checkout is the provider's answer to a CheckoutRequest.
type Checkout struct {
	ProviderSessionID string
	URL               string
}

// Gateway opens checkouts with the provider.
type Gateway interface {
	CreateCheckout(ctx context.Context, req CheckoutRequest) (*Checkout, error)
}

// Verifier authenticates and decodes webhook deliveries.
type Verifier interface {
	ParseEvent(payload []byte, signature string) (*Event, error)
}
