package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/workshop-booking/internal/database"
	"github.com/iliyamo/workshop-booking/internal/model"
)

// openMySQL returns a migrated database from TEST_MYSQL_DSN or skips.
// The DSN must include parseTime=true, for example
//
//	TEST_MYSQL_DSN='root:root@tcp(127.0.0.1:3306)/workshop_test?parseTime=true' go test ./internal/repository/...
//
// The ordering of the admit statements is also pinned by the sqlmock tests
// in session_repository_test.go, which run without a database.
func openMySQL(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_MYSQL_DSN")
	if dsn == "" {
		t.Skip("TEST_MYSQL_DSN not set")
	}
	db, err := sql.Open("mysql", dsn)
	require.NoError(t, err)
	db.SetMaxOpenConns(32)
	t.Cleanup(func() { _ = db.Close() })
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	require.NoError(t, database.Migrate(ctx, db))
	return db
}

func seedSession(t *testing.T, db *sql.DB, capacity uint32) *model.Session {
	t.Helper()
	ctx := context.Background()
	tx, err := db.BeginTx(ctx, nil)
	require.NoError(t, err)
	w := &model.Workshop{Title: "ledger " + uuid.NewString(), ShortDescription: "-", FullDescription: "-"}
	require.NoError(t, NewWorkshopRepo(db).CreateTx(ctx, tx, w))
	s := &model.Session{WorkshopID: w.ID, StartsAt: time.Now().Add(48 * time.Hour), Location: "Room", Capacity: capacity}
	require.NoError(t, NewSessionRepo(db).CreateTx(ctx, tx, s))
	require.NoError(t, tx.Commit())
	return s
}

func seedUsers(t *testing.T, db *sql.DB, n int) []uint64 {
	t.Helper()
	users := NewUserRepo(db)
	tag := uuid.NewString()[:8]
	ids := make([]uint64, n)
	for i := range ids {
		id, err := users.Create(context.Background(), fmt.Sprintf("u%d-%s@ledger.test", i, tag), "password1", model.RoleUser, 4)
		require.NoError(t, err)
		ids[i] = id
	}
	return ids
}

func TestAdmitConcurrentNeverOverfills(t *testing.T) {
	db := openMySQL(t)
	const capacity, contenders = 5, 40
	s := seedSession(t, db, capacity)
	users := seedUsers(t, db, contenders)
	repo := NewSessionRepo(db)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted int
		full     int
	)
	for _, uid := range users {
		wg.Add(1)
		go func(uid uint64) {
			defer wg.Done()
			err := repo.Admit(context.Background(), s.ID, uid)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				admitted++
			case errors.Is(err, ErrSessionFull):
				full++
			default:
				t.Errorf("unexpected admit error: %v", err)
			}
		}(uid)
	}
	wg.Wait()

	assert.Equal(t, capacity, admitted)
	assert.Equal(t, contenders-capacity, full)

	got, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(capacity), got.ParticipantCount)
	roster, err := repo.ListParticipants(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Len(t, roster, capacity)
}

func TestAdmitSameUserConcurrentlyOnce(t *testing.T) {
	db := openMySQL(t)
	s := seedSession(t, db, 10)
	uid := seedUsers(t, db, 1)[0]
	repo := NewSessionRepo(db)

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- repo.Admit(context.Background(), s.ID, uid)
		}()
	}
	wg.Wait()
	close(errs)

	ok := 0
	for err := range errs {
		if err == nil {
			ok++
			continue
		}
		assert.ErrorIs(t, err, ErrAlreadyRegistered)
	}
	assert.Equal(t, 1, ok)
	got, err := repo.GetByID(context.Background(), s.ID)
	require.NoError(t, err)
	assert.Equal(t, uint32(1), got.ParticipantCount)
}

func TestAdmitConcurrentAcrossSessions(t *testing.T) {
	db := openMySQL(t)
	const capacity, perSession = 3, 12
	sessions := []*model.Session{seedSession(t, db, capacity), seedSession(t, db, capacity)}
	users := seedUsers(t, db, perSession)
	repo := NewSessionRepo(db)

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		admitted = map[uint64]int{}
	)
	for _, s := range sessions {
		for _, uid := range users {
			wg.Add(1)
			go func(sid, uid uint64) {
				defer wg.Done()
				err := repo.Admit(context.Background(), sid, uid)
				mu.Lock()
				defer mu.Unlock()
				switch {
				case err == nil:
					admitted[sid]++
				case errors.Is(err, ErrSessionFull):
				default:
					// a deadlock victim would surface here
					t.Errorf("unexpected admit error: %v", err)
				}
			}(s.ID, uid)
		}
	}
	wg.Wait()

	for _, s := range sessions {
		assert.Equal(t, capacity, admitted[s.ID])
		got, err := repo.GetByID(context.Background(), s.ID)
		require.NoError(t, err)
		assert.Equal(t, uint32(capacity), got.ParticipantCount)
	}
}
