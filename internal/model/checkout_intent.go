package model

import "time"

// Checkout intent statuses.
const (
	CheckoutOpen      = "open"
	CheckoutCompleted = "completed"
	CheckoutExpired   = "expired"
)

// CheckoutIntent records a checkout that was opened with the payment
// provider but not yet settled.  It does not hold a place in the session;
// capacity is only consumed when the settlement webhook admits the user.
// While open, OpenKey is "<user_id>:<session_id>" and carries a unique
// index so a user cannot open two checkouts for the same session.
//
// Fields:
//  ID                – primary key identifier.
//  UserID            – user paying.
//  WorkshopID        – workshop of the session.
//  SessionID         – session being bought.
//  ProviderSessionID – provider checkout session id, empty until created.
//  CheckoutURL       – provider hosted checkout URL, empty until created.
//  Status            – open, completed or expired.
//  ExpiresAt         – when an unfinished checkout is considered abandoned.
type CheckoutIntent struct {
	ID                uint64    // checkout_intents.id
	UserID            uint64    // checkout_intents.user_id
	WorkshopID        uint64    // checkout_intents.workshop_id
	SessionID         uint64    // checkout_intents.session_id
	ProviderSessionID string    // checkout_intents.provider_session_id
	CheckoutURL       string    // checkout_intents.checkout_url
	Status            string    // checkout_intents.status
	ExpiresAt         time.Time // checkout_intents.expires_at
	CreatedAt         time.Time // checkout_intents.created_at
}
