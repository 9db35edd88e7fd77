package repository

import (
	"context"
	"fmt"
	"strings"
	"time"
)

// SessionSearchQuery defines filters & pagination for searching sessions.
type SessionSearchQuery struct {
	Title      string
	Category   string
	Location   string
	TimeFilter string // "upcoming" (default), "open" (upcoming with places left), "any"
	Page       int
	PageSize   int
}

type SessionSearchRow struct {
	SessionID  uint64    `json:"session_id"`
	WorkshopID uint64    `json:"workshop_id"`
	Title      string    `json:"title"`
	Category   string    `json:"category"`
	Location   string    `json:"location"`
	StartsAt   time.Time `json:"starts_at"`
	Capacity   uint32    `json:"capacity"`
	Available  int       `json:"available"`
	PriceCents uint32    `json:"price_cents"`
}

// SearchUpcoming lists sessions joined with their workshop, ordered by
// start time, together with the total number of matches.
func (r *SessionRepo) SearchUpcoming(ctx context.Context, q SessionSearchQuery, now time.Time) ([]SessionSearchRow, int64, error) {
	where := []string{}
	args := []any{}

	switch strings.ToLower(q.TimeFilter) {
	case "any":
	case "open":
		where = append(where, "s.starts_at >= ?", "s.participant_count < s.capacity")
		args = append(args, now.UTC())
	default:
		where = append(where, "s.starts_at >= ?")
		args = append(args, now.UTC())
	}
	if q.Title != "" {
		where = append(where, "LOWER(w.title) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Title)+"%")
	}
	if q.Category != "" {
		where = append(where, "w.category = ?")
		args = append(args, q.Category)
	}
	if q.Location != "" {
		where = append(where, "LOWER(s.location) LIKE ?")
		args = append(args, "%"+strings.ToLower(q.Location)+"%")
	}

	cond := "1=1"
	if len(where) > 0 {
		cond = strings.Join(where, " AND ")
	}

	var total int64
	countSQL := `SELECT COUNT(*)
		FROM sessions s
		JOIN workshops w ON w.id = s.workshop_id
		WHERE ` + cond
	if err := r.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count sessions: %w", err)
	}

	limit := q.PageSize
	offset := (q.Page - 1) * q.PageSize
	dataSQL := `SELECT s.id, w.id, w.title, w.category, s.location, s.starts_at, s.capacity, s.participant_count, w.price_cents
		FROM sessions s
		JOIN workshops w ON w.id = s.workshop_id
		WHERE ` + cond + `
		ORDER BY s.starts_at ASC, s.id ASC
		LIMIT ? OFFSET ?`
	argsData := append(append([]any{}, args...), limit, offset)

	rows, err := r.db.QueryContext(ctx, dataSQL, argsData...)
	if err != nil {
		return nil, 0, fmt.Errorf("search sessions: %w", err)
	}
	defer rows.Close()

	out := make([]SessionSearchRow, 0, limit)
	for rows.Next() {
		var d SessionSearchRow
		var count uint32
		if err := rows.Scan(&d.SessionID, &d.WorkshopID, &d.Title, &d.Category, &d.Location,
			&d.StartsAt, &d.Capacity, &count, &d.PriceCents); err != nil {
			return nil, 0, err
		}
		if d.Available = int(d.Capacity) - int(count); d.Available < 0 {
			d.Available = 0
		}
		out = append(out, d)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, err
	}
	return out, total, nil
}
