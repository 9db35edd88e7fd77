package model

import "time"

// Purchase statuses.  Records are written once with their final status;
// there are no transitions in this system.
const (
	PurchasePending   = "pending"
	PurchaseSucceeded = "succeeded"
	PurchaseFree      = "free"
)

// DefaultCurrency is used for free registrations and when the provider
// omits the currency.
const DefaultCurrency = "SGD"

// Purchase is the durable proof of one registration event, free or paid.
// PaymentRef is globally unique and acts as the idempotency key: the
// provider's payment intent id for paid purchases, or a synthesized
// FREE_ token for free ones.
//
// Fields:
//  ID          – primary key identifier.
//  UserID      – purchasing user.
//  WorkshopID  – workshop bought.
//  SessionID   – session the purchase admits to (nullable for legacy rows).
//  PaymentRef  – unique payment reference.
//  AmountCents – amount paid in minor units (0 for free).
//  Currency    – ISO currency code, stored upper case.
//  Status      – pending, succeeded or free.
//  PurchasedAt – when the purchase was recorded.
type Purchase struct {
	ID          uint64    // purchases.id
	UserID      uint64    // purchases.user_id
	WorkshopID  uint64    // purchases.workshop_id
	SessionID   *uint64   // purchases.session_id (nullable)
	PaymentRef  string    // purchases.payment_ref
	AmountCents int64     // purchases.amount_cents
	Currency    string    // purchases.currency
	Status      string    // purchases.status
	PurchasedAt time.Time // purchases.purchased_at
}
