package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRepo_SearchUpcomingOpen(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	cond := "s.starts_at >= ? AND s.participant_count < s.capacity AND LOWER(w.title) LIKE ? AND w.category = ?"
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)") + `[\s\S]*` + regexp.QuoteMeta(cond)).
		WithArgs(now, "%go%", "coding").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))
	mock.ExpectQuery(regexp.QuoteMeta(cond) + `[\s\S]*LIMIT \? OFFSET \?`).
		WithArgs(now, "%go%", "coding", 2, 2).
		WillReturnRows(sqlmock.NewRows([]string{"s.id", "w.id", "title", "category", "location", "starts_at", "capacity", "participant_count", "price_cents"}).
			AddRow(11, 3, "Go basics", "coding", "Room A", now.Add(time.Hour), 10, 12, 0))

	rows, total, err := repo.SearchUpcoming(context.Background(), SessionSearchQuery{
		Title: "Go", Category: "coding", TimeFilter: "open", Page: 2, PageSize: 2,
	}, now)

	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
	require.Len(t, rows, 1)
	assert.Equal(t, uint64(11), rows[0].SessionID)
	assert.Equal(t, 0, rows[0].Available)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_SearchAnyHasNoTimeFilter(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1")).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery(regexp.QuoteMeta("WHERE 1=1")).
		WithArgs(20, 0).
		WillReturnRows(sqlmock.NewRows([]string{"s.id"}))

	rows, total, err := repo.SearchUpcoming(context.Background(), SessionSearchQuery{TimeFilter: "any", Page: 1, PageSize: 20}, time.Now())
	require.NoError(t, err)
	assert.Zero(t, total)
	assert.Empty(t, rows)
	require.NoError(t, mock.ExpectationsWereMet())
}
