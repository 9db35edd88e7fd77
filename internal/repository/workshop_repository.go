package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/iliyamo/workshop-booking/internal/model"
)

// WorkshopRepo manages the workshop catalogue.  It is written to by the
// admin endpoints only; the booking flow reads it to decide between the
// free and paid branches.
type WorkshopRepo struct {
	db *sql.DB
}

// NewWorkshopRepo constructs a WorkshopRepo with the given DB handle.
func NewWorkshopRepo(db *sql.DB) *WorkshopRepo { return &WorkshopRepo{db: db} }

// DB exposes the underlying handle for multi-table transactions.
func (r *WorkshopRepo) DB() *sql.DB { return r.db }

const workshopColumns = `id, title, organiser, short_description, full_description, image_url, duration, category, price_cents, website, created_at, updated_at`

func scanWorkshop(row rowScanner) (*model.Workshop, error) {
	var w model.Workshop
	if err := row.Scan(&w.ID, &w.Title, &w.Organiser, &w.ShortDescription, &w.FullDescription,
		&w.ImageURL, &w.Duration, &w.Category, &w.PriceCents, &w.Website, &w.CreatedAt, &w.UpdatedAt); err != nil {
		return nil, err
	}
	return &w, nil
}

// GetByID loads a workshop together with its session IDs.
func (r *WorkshopRepo) GetByID(ctx context.Context, id uint64) (*model.Workshop, error) {
	w, err := scanWorkshop(r.db.QueryRowContext(ctx,
		`SELECT `+workshopColumns+` FROM workshops WHERE id = ?`, id))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrWorkshopNotFound
		}
		return nil, fmt.Errorf("get workshop: %w", err)
	}
	ids, err := r.sessionIDs(ctx, id)
	if err != nil {
		return nil, err
	}
	w.SessionIDs = ids
	return w, nil
}

func (r *WorkshopRepo) sessionIDs(ctx context.Context, workshopID uint64) ([]uint64, error) {
	rows, err := r.db.QueryContext(ctx,
		`SELECT id FROM sessions WHERE workshop_id = ? ORDER BY starts_at, id`, workshopID)
	if err != nil {
		return nil, fmt.Errorf("list session ids: %w", err)
	}
	defer rows.Close()
	ids := []uint64{}
	for rows.Next() {
		var id uint64
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// List returns every workshop, optionally filtered by category.  Session
// IDs are not populated; callers needing sessions use SessionRepo.
func (r *WorkshopRepo) List(ctx context.Context, category string) ([]model.Workshop, error) {
	q := `SELECT ` + workshopColumns + ` FROM workshops`
	var args []any
	if category != "" {
		q += ` WHERE category = ?`
		args = append(args, category)
	}
	q += ` ORDER BY id`
	rows, err := r.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("list workshops: %w", err)
	}
	defer rows.Close()
	out := []model.Workshop{}
	for rows.Next() {
		w, err := scanWorkshop(rows)
		if err != nil {
			return nil, fmt.Errorf("scan workshop: %w", err)
		}
		out = append(out, *w)
	}
	return out, rows.Err()
}

// CreateTx inserts a workshop inside the caller's transaction and assigns
// the generated ID.
func (r *WorkshopRepo) CreateTx(ctx context.Context, tx *sql.Tx, w *model.Workshop) error {
	const q = `INSERT INTO workshops (title, organiser, short_description, full_description, image_url, duration, category, price_cents, website)
               VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := tx.ExecContext(ctx, q, w.Title, w.Organiser, w.ShortDescription, w.FullDescription,
		w.ImageURL, w.Duration, w.Category, w.PriceCents, w.Website)
	if err != nil {
		return fmt.Errorf("insert workshop: %w", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return err
	}
	w.ID = uint64(id)
	return nil
}

// UpdateTx overwrites the editable fields of a workshop.  It returns
// ErrWorkshopNotFound when the row does not exist.
func (r *WorkshopRepo) UpdateTx(ctx context.Context, tx *sql.Tx, w *model.Workshop) error {
	const q = `UPDATE workshops SET title = ?, organiser = ?, short_description = ?, full_description = ?,
                   image_url = ?, duration = ?, category = ?, price_cents = ?, website = ?
               WHERE id = ?`
	res, err := tx.ExecContext(ctx, q, w.Title, w.Organiser, w.ShortDescription, w.FullDescription,
		w.ImageURL, w.Duration, w.Category, w.PriceCents, w.Website, w.ID)
	if err != nil {
		return fmt.Errorf("update workshop: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		return nil
	}
	var one int
	err = tx.QueryRowContext(ctx, `SELECT 1 FROM workshops WHERE id = ?`, w.ID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return ErrWorkshopNotFound
	}
	return err
}
