package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/iliyamo/workshop-booking/internal/model"
)

// SessionRepo is the capacity ledger.  It owns the sessions table and the
// session_participants roster.  AdmitTx is the only code path that adds
// participants, and it does so with a conditional UPDATE so two concurrent
// admissions can never both take the last place.
type SessionRepo struct {
	db *sql.DB
}

// NewSessionRepo returns a SessionRepo bound to the given database.
func NewSessionRepo(db *sql.DB) *SessionRepo { return &SessionRepo{db: db} }

// DB exposes the underlying handle so callers can open a transaction that
// spans the ledger and the purchase store.
func (r *SessionRepo) DB() *sql.DB { return r.db }

const sessionColumns = `id, workshop_id, starts_at, location, capacity, price_ref, participant_count, created_at, updated_at`

type rowScanner interface {
	Scan(dest ...any) error
}

func scanSession(row rowScanner) (*model.Session, error) {
	var s model.Session
	if err := row.Scan(&s.ID, &s.WorkshopID, &s.StartsAt, &s.Location, &s.Capacity,
		&s.PriceRef, &s.ParticipantCount, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	return &s, nil
}

// GetByID loads a session.  It returns ErrSessionNotFound when no row matches.
func (r *SessionRepo) GetByID(ctx context.Context, id uint64) (*model.Session, error) {
	s, err := scanSession(r.db.QueryRowContext(ctx,
		`SELECT `+sessionColumns+` FROM sessions WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrSessionNotFound
		}
		return nil, fmt.Errorf("get session: %w", err)
	}
	return s, nil
}

// ListByWorkshop returns the sessions of a workshop ordered by start time.
func (r *SessionRepo) ListByWorkshop(ctx context.Context, workshopID uint64) ([]model.Session, error) {
	return r.list(ctx, `SELECT `+sessionColumns+` FROM sessions WHERE workshop_id = ? ORDER BY starts_at, id`, workshopID)
}

// ListUpcomingForUser returns the sessions starting after now that the user
// has been admitted to.
func (r *SessionRepo) ListUpcomingForUser(ctx context.Context, userID uint64, now time.Time) ([]model.Session, error) {
	const q = `SELECT s.id, s.workshop_id, s.starts_at, s.location, s.capacity, s.price_ref, s.participant_count, s.created_at, s.updated_at
               FROM sessions s
               JOIN session_participants p ON p.session_id = s.id
               WHERE p.user_id = ? AND s.starts_at > ?
               ORDER BY s.starts_at, s.id`
	return r.list(ctx, q, userID, now.UTC())
}

func (r *SessionRepo) list(ctx context.Context, q string, args ...any) ([]model.Session, error) {
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list sessions: %w", err)
	}
	defer rows.Close()
	out := []model.Session{}
	for rows.Next() {
		s, err := scanSession(rows)
		if err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		out = append(out, *s)
	}
	return out, rows.Err()
}

// IsRegistered reports whether the user is already a participant.
func (r *SessionRepo) IsRegistered(ctx context.Context, sessionID, userID uint64) (bool, error) {
	var ok bool
	err := r.db.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM session_participants WHERE session_id = ? AND user_id = ?)`,
		sessionID, userID).Scan(&ok)
	if err != nil {
		return false, fmt.Errorf("check participant: %w", err)
	}
	return ok, nil
}

// ListParticipants returns the roster of a session with participant emails.
func (r *SessionRepo) ListParticipants(ctx context.Context, sessionID uint64) ([]model.Participant, error) {
	const q = `SELECT p.session_id, p.user_id, u.email, p.created_at
               FROM session_participants p
               JOIN users u ON u.id = p.user_id
               WHERE p.session_id = ?
               ORDER BY p.created_at, p.user_id`
	rows, err := r.db.QueryContext(ctx, q, sessionID)
	if err != nil {
		return nil, fmt.Errorf("list participants: %w", err)
	}
	defer rows.Close()
	out := []model.Participant{}
	for rows.Next() {
		var p model.Participant
		if err := rows.Scan(&p.SessionID, &p.UserID, &p.Email, &p.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan participant: %w", err)
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// Admit adds the user to the session in its own transaction.
func (r *SessionRepo) Admit(ctx context.Context, sessionID, userID uint64) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin admit: %w", err)
	}
	if err := r.AdmitTx(ctx, tx, sessionID, userID); err != nil {
		_ = tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit admit: %w", err)
	}
	return nil
}

// AdmitTx appends the user to the session roster inside the caller's
// transaction.  The count is raised by a single conditional UPDATE that
// only matches while a place is free; InnoDB's row lock on the session
// serialises concurrent callers.  A user already on the roster is caught by
// the participants primary key and the increment is undone.
//
// It returns ErrSessionNotFound, ErrSessionFull or ErrAlreadyRegistered
// when the admission is refused.  In those cases nothing has been written
// in tx, so the caller may continue the transaction.  Any other error
// leaves tx in an unknown state and it must be rolled back.
func (r *SessionRepo) AdmitTx(ctx context.Context, tx *sql.Tx, sessionID, userID uint64) error {
	// no roster subquery here: its shared gap locks deadlock against the
	// participant insert of a concurrent admit
	const inc = `UPDATE sessions SET participant_count = participant_count + 1
                 WHERE id = ? AND participant_count < capacity`
	res, err := tx.ExecContext(ctx, inc, sessionID)
	if err != nil {
		return fmt.Errorf("admit: reserve place: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("admit: rows affected: %w", err)
	}
	if n == 0 {
		return r.refusal(ctx, tx, sessionID, userID)
	}

	_, err = tx.ExecContext(ctx,
		`INSERT INTO session_participants (session_id, user_id) VALUES (?, ?)`, sessionID, userID)
	if err == nil {
		return nil
	}
	if !isDuplicateKey(err) && !isMissingParent(err) {
		return fmt.Errorf("admit: insert participant: %w", err)
	}
	// undo the increment so the sentinel contract above holds
	if _, uerr := tx.ExecContext(ctx,
		`UPDATE sessions SET participant_count = participant_count - 1 WHERE id = ?`, sessionID); uerr != nil {
		return fmt.Errorf("admit: release place: %w", uerr)
	}
	if isMissingParent(err) {
		return ErrUserNotFound
	}
	return ErrAlreadyRegistered
}

// refusal explains why the conditional UPDATE matched no row.
func (r *SessionRepo) refusal(ctx context.Context, tx *sql.Tx, sessionID, userID uint64) error {
	const q = `SELECT s.capacity, s.participant_count,
                      EXISTS(SELECT 1 FROM session_participants p WHERE p.session_id = s.id AND p.user_id = ?)
               FROM sessions s WHERE s.id = ?`
	var (
		capacity, count uint32
		registered      bool
	)
	err := tx.QueryRowContext(ctx, q, userID, sessionID).Scan(&capacity, &count, &registered)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrSessionNotFound
	case err != nil:
		return fmt.Errorf("admit: diagnose: %w", err)
	case registered:
		return ErrAlreadyRegistered
	case count >= capacity:
		return ErrSessionFull
	}
	// counts never decrease, so a free place here means the row changed
	// under a weaker isolation level than expected
	return fmt.Errorf("admit: session %d changed during admission", sessionID)
}

// CreateTx inserts a session for a workshop and assigns the generated ID.
func (r *SessionRepo) CreateTx(ctx context.Context, tx *sql.Tx, s *model.Session) error {
	const q = `INSERT INTO sessions (workshop_id, starts_at, location, capacity, price_ref) VALUES (?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, s.WorkshopID, s.StartsAt.UTC(), s.Location, s.Capacity, s.PriceRef)
	if err != nil {
		if isMissingParent(err) {
			return ErrWorkshopNotFound
		}
		return fmt.Errorf("insert session: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	s.ID = uint64(id)
	return nil
}

// UpdateTx edits schedule, location, capacity and price reference of a
// session belonging to the given workshop.  Capacity may never drop below
// the number of participants already admitted.
func (r *SessionRepo) UpdateTx(ctx context.Context, tx *sql.Tx, s *model.Session) error {
	const q = `UPDATE sessions SET starts_at = ?, location = ?, capacity = ?, price_ref = ?
               WHERE id = ? AND workshop_id = ? AND participant_count <= ?`
	res, err := tx.ExecContext(ctx, q, s.StartsAt.UTC(), s.Location, s.Capacity, s.PriceRef, s.ID, s.WorkshopID, s.Capacity)
	if err != nil {
		return fmt.Errorf("update session: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	// zero rows also means "nothing changed" with MySQL's default affected-rows semantics
	var count uint32
	err = tx.QueryRowContext(ctx,
		`SELECT participant_count FROM sessions WHERE id = ? AND workshop_id = ?`, s.ID, s.WorkshopID).Scan(&count)
	switch {
	case errors.Is(err, sql.ErrNoRows):
		return ErrSessionNotFound
	case err != nil:
		return fmt.Errorf("update session: %w", err)
	case count > s.Capacity:
		return ErrCapacityBelowParticipants
	}
	return nil
}
