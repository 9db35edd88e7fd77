// Package service holds the booking core: registration for free and paid
// sessions, and settlement of provider payment events.
package service

import (
	"context"
	"database/sql"
	"time"

	"github.com/iliyamo/workshop-booking/internal/model"
	"github.com/iliyamo/workshop-booking/internal/queue"
)

// SessionStore is the capacity ledger as seen by the services.
type SessionStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Session, error)
	IsRegistered(ctx context.Context, sessionID, userID uint64) (bool, error)
	AdmitTx(ctx context.Context, tx *sql.Tx, sessionID, userID uint64) error
}

type WorkshopStore interface {
	GetByID(ctx context.Context, id uint64) (*model.Workshop, error)
}

type PurchaseStore interface {
	FindByReference(ctx context.Context, ref string) (*model.Purchase, error)
	CreateTx(ctx context.Context, tx *sql.Tx, p *model.Purchase) error
}

type IntentStore interface {
	Claim(ctx context.Context, in *model.CheckoutIntent) error
	FindOpen(ctx context.Context, userID, sessionID uint64) (*model.CheckoutIntent, error)
	Attach(ctx context.Context, id uint64, providerSessionID, url string) error
	Release(ctx context.Context, id uint64) error
	CompleteTx(ctx context.Context, tx *sql.Tx, providerSessionID string) (bool, error)
}

type UserStore interface {
	GetByID(ctx context.Context, id uint64) (*model.User, error)
}

// Publisher announces admissions.  Publishing is best effort.
type Publisher interface {
	PublishRegistration(ctx context.Context, ev queue.RegistrationConfirmedEvent) error
}

// EventDeduper is a non-authoritative filter for redelivered provider events.
type EventDeduper interface {
	Claim(ctx context.Context, eventID string) (bool, error)
	Release(ctx context.Context, eventID string) error
}

const (
	publishTimeout = 5 * time.Second
	releaseTimeout = 2 * time.Second
)

// publish sends ev on a context detached from the request so a client
// disconnect does not drop the notification.
func publish(ctx context.Context, p Publisher, ev queue.RegistrationConfirmedEvent) error {
	if p == nil {
		return nil
	}
	pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), publishTimeout)
	defer cancel()
	return p.PublishRegistration(pctx, ev)
}
