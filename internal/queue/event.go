// Package queue carries registration notifications over RabbitMQ.
package queue

import "time"

// RegistrationQueue is the durable queue registration events are sent to.
const RegistrationQueue = "registration.confirmed"

// RegistrationConfirmedEvent is published after a user is admitted to a
// session, whether through the free path or payment settlement.  It holds
// enough for consumers to notify or log without reading the database.
type RegistrationConfirmedEvent struct {
	UserID      uint64    `json:"user_id"`
	WorkshopID  uint64    `json:"workshop_id"`
	SessionID   uint64    `json:"session_id"`
	PaymentRef  string    `json:"payment_ref"`
	AmountCents int64     `json:"amount_cents"`
	Currency    string    `json:"currency"`
	Source      string    `json:"source"` // "free" or "checkout"
	ConfirmedAt time.Time `json:"confirmed_at"`
}
