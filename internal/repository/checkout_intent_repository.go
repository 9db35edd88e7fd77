package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/workshop-booking/internal/model"
)

// CheckoutIntentRepo tracks checkouts opened with the payment provider.
// An intent claims the unique open_key for its user and session, which is
// what stops a double-submitted checkout from creating two provider
// sessions (and two charges) for the same place.  Intents never consume
// session capacity.
type CheckoutIntentRepo struct {
	db *sql.DB
}

// NewCheckoutIntentRepo returns a CheckoutIntentRepo bound to the given database.
func NewCheckoutIntentRepo(db *sql.DB) *CheckoutIntentRepo { return &CheckoutIntentRepo{db: db} }

// OpenKey is the value of the unique open_key column while an intent is open.
func OpenKey(userID, sessionID uint64) string { return fmt.Sprintf("%d:%d", userID, sessionID) }

// Claim closes any expired intent for the same user and session and then
// inserts a new open one.  ErrCheckoutOpen means an unexpired intent
// already exists; the caller can load it with FindOpen.
func (r *CheckoutIntentRepo) Claim(ctx context.Context, in *model.CheckoutIntent) error {
	key := OpenKey(in.UserID, in.SessionID)
	now := time.Now().UTC()
	if _, err := r.db.ExecContext(ctx,
		`UPDATE checkout_intents SET status = 'expired', open_key = NULL WHERE open_key = ? AND expires_at <= ?`,
		key, now); err != nil {
		return fmt.Errorf("expire previous checkout: %w", err)
	}
	const q = `INSERT INTO checkout_intents (user_id, workshop_id, session_id, status, open_key, expires_at)
               VALUES (?, ?, ?, 'open', ?, ?)`
	res, err := r.db.ExecContext(ctx, q, in.UserID, in.WorkshopID, in.SessionID, key, in.ExpiresAt.UTC())
	if err != nil {
		if isDuplicateKey(err) {
			return ErrCheckoutOpen
		}
		return fmt.Errorf("insert checkout intent: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	in.ID = uint64(id)
	in.Status = model.CheckoutOpen
	return nil
}

// FindOpen returns the open intent for a user and session.
func (r *CheckoutIntentRepo) FindOpen(ctx context.Context, userID, sessionID uint64) (*model.CheckoutIntent, error) {
	const q = `SELECT id, user_id, workshop_id, session_id, COALESCE(provider_session_id, ''), checkout_url, status, expires_at, created_at
               FROM checkout_intents WHERE open_key = ?`
	var in model.CheckoutIntent
	err := r.db.QueryRowContext(ctx, q, OpenKey(userID, sessionID)).Scan(&in.ID, &in.UserID, &in.WorkshopID,
		&in.SessionID, &in.ProviderSessionID, &in.CheckoutURL, &in.Status, &in.ExpiresAt, &in.CreatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrIntentNotFound
		}
		return nil, fmt.Errorf("find checkout intent: %w", err)
	}
	return &in, nil
}

// Attach stores the provider checkout id and hosted URL on an intent.
func (r *CheckoutIntentRepo) Attach(ctx context.Context, id uint64, providerSessionID, url string) error {
	_, err := r.db.ExecContext(ctx,
		`UPDATE checkout_intents SET provider_session_id = ?, checkout_url = ? WHERE id = ?`,
		providerSessionID, url, id)
	if err != nil {
		return fmt.Errorf("attach checkout: %w", err)
	}
	return nil
}

// Release deletes an open intent whose provider checkout could not be created.
func (r *CheckoutIntentRepo) Release(ctx context.Context, id uint64) error {
	_, err := r.db.ExecContext(ctx, `DELETE FROM checkout_intents WHERE id = ? AND status = 'open'`, id)
	return err
}

// CompleteTx marks the intent for a provider checkout as completed inside
// the settlement transaction.  It reports whether an open intent matched;
// events for checkouts created elsewhere simply match nothing.
func (r *CheckoutIntentRepo) CompleteTx(ctx context.Context, tx *sql.Tx, providerSessionID string) (bool, error) {
	if providerSessionID == "" {
		return false, nil
	}
	res, err := tx.ExecContext(ctx,
		`UPDATE checkout_intents SET status = 'completed', open_key = NULL WHERE provider_session_id = ? AND status <> 'completed'`,
		providerSessionID)
	if err != nil {
		return false, fmt.Errorf("complete checkout: %w", err)
	}
	n, _ := res.RowsAffected()
	return n > 0, nil
}

// ExpireStale closes every open intent whose expiry has passed and returns
// how many were closed.
func (r *CheckoutIntentRepo) ExpireStale(ctx context.Context, now time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx,
		`UPDATE checkout_intents SET status = 'expired', open_key = NULL WHERE status = 'open' AND expires_at <= ?`,
		now.UTC())
	if err != nil {
		return 0, fmt.Errorf("expire checkouts: %w", err)
	}
	return res.RowsAffected()
}
