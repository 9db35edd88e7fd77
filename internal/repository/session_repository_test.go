package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/workshop-booking/internal/model"
)

func newMock(t *testing.T) (*sql.DB, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db, mock
}

var (
	admitInc      = regexp.QuoteMeta("UPDATE sessions SET participant_count = participant_count + 1")
	admitInsert   = regexp.QuoteMeta("INSERT INTO session_participants (session_id, user_id)")
	admitDec      = regexp.QuoteMeta("UPDATE sessions SET participant_count = participant_count - 1")
	admitDiagnose = regexp.QuoteMeta("SELECT s.capacity, s.participant_count")
)

func TestSessionRepo_GetByID(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)
	now := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = ?")).
		WithArgs(uint64(7)).
		WillReturnRows(sqlmock.NewRows([]string{"id", "workshop_id", "starts_at", "location", "capacity", "price_ref", "participant_count", "created_at", "updated_at"}).
			AddRow(7, 3, now, "Room A", 10, "price_123", 4, now, now))

	s, err := repo.GetByID(context.Background(), 7)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), s.WorkshopID)
	assert.Equal(t, 6, s.Availability())
	assert.Equal(t, "price_123", s.PriceRef)
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_GetByIDNotFound(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectQuery(regexp.QuoteMeta("FROM sessions WHERE id = ?")).
		WithArgs(uint64(99)).
		WillReturnError(sql.ErrNoRows)

	_, err := repo.GetByID(context.Background(), 99)
	assert.ErrorIs(t, err, ErrSessionNotFound)
}

func TestSessionRepo_Admit(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(admitInc).WithArgs(uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(admitInsert).WithArgs(uint64(1), uint64(42)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	require.NoError(t, repo.Admit(context.Background(), 1, 42))
	require.NoError(t, mock.ExpectationsWereMet())
}

// The place is reserved by one conditional statement guarded only by the
// capacity check, before the roster insert.
func TestSessionRepo_AdmitTxReservesWithSingleGuardedUpdate(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	guarded := `^UPDATE sessions SET participant_count = participant_count \+ 1\s+WHERE id = \? AND participant_count < capacity$`
	mock.ExpectBegin()
	mock.ExpectExec(guarded).WithArgs(uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(admitInsert).WithArgs(uint64(1), uint64(42)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	require.NoError(t, repo.AdmitTx(context.Background(), tx, 1, 42))
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_AdmitRefusals(t *testing.T) {
	cases := []struct {
		name    string
		rows    *sqlmock.Rows
		rowErr  error
		wantErr error
	}{
		{
			name:    "full",
			rows:    sqlmock.NewRows([]string{"capacity", "participant_count", "registered"}).AddRow(2, 2, false),
			wantErr: ErrSessionFull,
		},
		{
			name:    "already registered",
			rows:    sqlmock.NewRows([]string{"capacity", "participant_count", "registered"}).AddRow(2, 2, true),
			wantErr: ErrAlreadyRegistered,
		},
		{
			name:    "missing session",
			rowErr:  sql.ErrNoRows,
			wantErr: ErrSessionNotFound,
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			db, mock := newMock(t)
			repo := NewSessionRepo(db)

			mock.ExpectBegin()
			mock.ExpectExec(admitInc).WillReturnResult(sqlmock.NewResult(0, 0))
			q := mock.ExpectQuery(admitDiagnose).WithArgs(uint64(42), uint64(1))
			if tc.rowErr != nil {
				q.WillReturnError(tc.rowErr)
			} else {
				q.WillReturnRows(tc.rows)
			}
			mock.ExpectRollback()

			err := repo.Admit(context.Background(), 1, 42)
			assert.ErrorIs(t, err, tc.wantErr)
			require.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestSessionRepo_AdmitTxCompensatesDuplicateInsert(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(admitInc).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(admitInsert).WillReturnError(&mysql.MySQLError{Number: 1062, Message: "Duplicate entry"})
	mock.ExpectExec(admitDec).WithArgs(uint64(1)).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	tx, err := db.Begin()
	require.NoError(t, err)
	err = repo.AdmitTx(context.Background(), tx, 1, 42)
	assert.ErrorIs(t, err, ErrAlreadyRegistered)
	// the transaction is still usable after a sentinel refusal
	require.NoError(t, tx.Commit())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_AdmitTxUnknownUser(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(admitInc).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec(admitInsert).WillReturnError(&mysql.MySQLError{Number: 1452, Message: "foreign key"})
	mock.ExpectExec(admitDec).WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	assert.ErrorIs(t, repo.AdmitTx(context.Background(), tx, 1, 42), ErrUserNotFound)
	require.NoError(t, tx.Rollback())
	require.NoError(t, mock.ExpectationsWereMet())
}

func TestSessionRepo_UpdateTxCapacityBelowParticipants(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)

	mock.ExpectBegin()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE sessions SET starts_at = ?")).WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectQuery(regexp.QuoteMeta("SELECT participant_count FROM sessions")).
		WithArgs(uint64(5), uint64(2)).
		WillReturnRows(sqlmock.NewRows([]string{"participant_count"}).AddRow(8))
	mock.ExpectRollback()

	tx, err := db.Begin()
	require.NoError(t, err)
	err = repo.UpdateTx(context.Background(), tx, &model.Session{ID: 5, WorkshopID: 2, Capacity: 4, Location: "Hall"})
	assert.ErrorIs(t, err, ErrCapacityBelowParticipants)
	require.NoError(t, tx.Rollback())
}

func TestSessionRepo_ListParticipants(t *testing.T) {
	db, mock := newMock(t)
	repo := NewSessionRepo(db)
	now := time.Now().UTC()

	mock.ExpectQuery(regexp.QuoteMeta("FROM session_participants")).
		WithArgs(uint64(1)).
		WillReturnRows(sqlmock.NewRows([]string{"session_id", "user_id", "email", "created_at"}).
			AddRow(1, 10, "a@example.com", now).
			AddRow(1, 11, "b@example.com", now))

	ps, err := repo.ListParticipants(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, ps, 2)
	assert.Equal(t, "b@example.com", ps[1].Email)
}
