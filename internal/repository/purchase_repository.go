package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/workshop-booking/internal/model"
)

// PurchaseRepo is the purchase record store.  Rows are written once and
// never updated.  The unique index on payment_ref is the idempotency key
// for settlement: inserting an existing reference fails with
// ErrDuplicateReference instead of producing a second record.
type PurchaseRepo struct {
	db *sql.DB
}

// NewPurchaseRepo returns a PurchaseRepo bound to the given database.
func NewPurchaseRepo(db *sql.DB) *PurchaseRepo { return &PurchaseRepo{db: db} }

const purchaseColumns = `id, user_id, workshop_id, session_id, payment_ref, amount_cents, currency, status, purchased_at`

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func scanPurchase(row rowScanner) (*model.Purchase, error) {
	var (
		p         model.Purchase
		sessionID sql.NullInt64
	)
	if err := row.Scan(&p.ID, &p.UserID, &p.WorkshopID, &sessionID, &p.PaymentRef,
		&p.AmountCents, &p.Currency, &p.Status, &p.PurchasedAt); err != nil {
		return nil, err
	}
	if sessionID.Valid {
		id := uint64(sessionID.Int64)
		p.SessionID = &id
	}
	return &p, nil
}

// FindByReference returns the purchase recorded under ref or
// ErrPurchaseNotFound.
func (r *PurchaseRepo) FindByReference(ctx context.Context, ref string) (*model.Purchase, error) {
	p, err := scanPurchase(r.db.QueryRowContext(ctx,
		`SELECT `+purchaseColumns+` FROM purchases WHERE payment_ref = ?`, ref))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrPurchaseNotFound
		}
		return nil, fmt.Errorf("find purchase: %w", err)
	}
	return p, nil
}

// Create inserts a purchase outside of any transaction.
func (r *PurchaseRepo) Create(ctx context.Context, p *model.Purchase) error {
	return r.create(ctx, r.db, p)
}

// CreateTx inserts a purchase inside the caller's transaction.  A
// duplicate reference returns ErrDuplicateReference; MySQL rolls back only
// the failed statement, but callers treat the whole attempt as settled and
// roll the transaction back.
func (r *PurchaseRepo) CreateTx(ctx context.Context, tx *sql.Tx, p *model.Purchase) error {
	return r.create(ctx, tx, p)
}

func (r *PurchaseRepo) create(ctx context.Context, ex execer, p *model.Purchase) error {
	if p.PaymentRef == "" {
		return errors.New("purchase: empty payment reference")
	}
	if p.Currency == "" {
		p.Currency = model.DefaultCurrency
	}
	if p.PurchasedAt.IsZero() {
		p.PurchasedAt = time.Now().UTC()
	}
	const q = `INSERT INTO purchases (user_id, workshop_id, session_id, payment_ref, amount_cents, currency, status, purchased_at)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := ex.ExecContext(ctx, q, p.UserID, p.WorkshopID, p.SessionID, p.PaymentRef,
		p.AmountCents, p.Currency, p.Status, p.PurchasedAt)
	if err != nil {
		if isDuplicateKey(err) {
			return ErrDuplicateReference
		}
		return fmt.Errorf("insert purchase: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	p.ID = uint64(id)
	return nil
}

// ListByUser returns a user's purchases, newest first.
func (r *PurchaseRepo) ListByUser(ctx context.Context, userID uint64) ([]model.Purchase, error) {
	return r.list(ctx, `SELECT `+purchaseColumns+` FROM purchases WHERE user_id = ? ORDER BY purchased_at DESC, id DESC`, userID)
}

// ListUnadmitted returns settled or free purchases older than the cutoff
// whose user is not on the roster of the purchased session.  These are
// payments taken for a place that was never granted (overselling, or a
// session removed after checkout) and need manual follow-up.
func (r *PurchaseRepo) ListUnadmitted(ctx context.Context, olderThan time.Time) ([]model.Purchase, error) {
	const q = `SELECT p.id, p.user_id, p.workshop_id, p.session_id, p.payment_ref, p.amount_cents, p.currency, p.status, p.purchased_at
               FROM purchases p
               WHERE p.session_id IS NOT NULL
                 AND p.status IN ('succeeded', 'free')
                 AND p.purchased_at <= ?
                 AND NOT EXISTS (SELECT 1 FROM session_participants sp
                                 WHERE sp.session_id = p.session_id AND sp.user_id = p.user_id)
               ORDER BY p.id`
	return r.list(ctx, q, olderThan.UTC())
}

func (r *PurchaseRepo) list(ctx context.Context, q string, args ...any) ([]model.Purchase, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list purchases: %w", err)
	}
	defer rows.Close()
	out := []model.Purchase{}
	for rows.Next() {
		p, err := scanPurchase(rows)
		if err != nil {
			return nil, fmt.Errorf("scan purchase: %w", err)
		}
		out = append(out, *p)
	}
	return out, rows.Err()
}
