package repository

import (
	"context"
	"errors"
	"regexp"
	"sync"
	"testing"

	"github.com/WBHankins93/messaging-app/internal/db/dbtest"
	"github.com/WBHankins93/messaging-app/internal/models"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgerrcode"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newMockPostgres(t *testing.T) (*gorm.DB, sqlmock.Sqlmock) {
	t.Helper()
	sqlDB, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = sqlDB.Close() })

	gdb, err := gorm.Open(postgres.New(postgres.Config{Conn: sqlDB}), &gorm.Config{
		Logger:                 logger.Default.LogMode(logger.Silent),
		SkipDefaultTransaction: true,
	})
	require.NoError(t, err)
	return gdb, mock
}

func TestUserRepository_CreateAndFind(t *testing.T) {
	repo := NewUserRepository(dbtest.New(t))
	ctx := context.Background()

	created, err := repo.Create(ctx, "alice", "hash", false)
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.False(t, created.IsAdmin)

	found, err := repo.FindByUsername(ctx, "alice")
	require.NoError(t, err)
	assert.Equal(t, created.ID, found.ID)
	assert.Equal(t, "hash", found.HashedPassword)
}

func TestUserRepository_CreateAdmin(t *testing.T) {
	repo := NewUserRepository(dbtest.New(t))

	_, err := repo.Create(context.Background(), "root", "hash", true)
	require.NoError(t, err)

	found, err := repo.FindByUsername(context.Background(), "root")
	require.NoError(t, err)
	assert.True(t, found.IsAdmin)
}

func TestUserRepository_DuplicateUsername(t *testing.T) {
	gdb := dbtest.New(t)
	repo := NewUserRepository(gdb)
	ctx := context.Background()

	_, err := repo.Create(ctx, "alice", "hash1", false)
	require.NoError(t, err)

	_, err = repo.Create(ctx, "alice", "hash2", false)
	require.ErrorIs(t, err, ErrDuplicateUsername)

	var count int64
	require.NoError(t, gdb.Model(&models.User{}).Where("username = ?", "alice").Count(&count).Error)
	assert.Equal(t, int64(1), count)
}

func TestUserRepository_UsernameIsCaseSensitive(t *testing.T) {
	repo := NewUserRepository(dbtest.New(t))
	ctx := context.Background()

	_, err := repo.Create(ctx, "alice", "hash", false)
	require.NoError(t, err)
	_, err = repo.Create(ctx, "Alice", "hash", false)
	require.NoError(t, err)

	_, err = repo.FindByUsername(ctx, "ALICE")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_ConcurrentCreate(t *testing.T) {
	gdb := dbtest.New(t)
	repo := NewUserRepository(gdb)

	const workers = 8
	var (
		wg        sync.WaitGroup
		mu        sync.Mutex
		succeeded int
		dups      int
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := repo.Create(context.Background(), "race", "hash", false)
			mu.Lock()
			defer mu.Unlock()
			switch {
			case err == nil:
				succeeded++
			case errors.Is(err, ErrDuplicateUsername):
				dups++
			default:
				t.Errorf("Create() unexpected error = %v", err)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, workers-1, dups)
}

func TestUserRepository_FindMissing(t *testing.T) {
	repo := NewUserRepository(dbtest.New(t))

	_, err := repo.FindByUsername(context.Background(), "ghost")
	assert.ErrorIs(t, err, ErrUserNotFound)
}

func TestUserRepository_ListUsernames(t *testing.T) {
	repo := NewUserRepository(dbtest.New(t))
	ctx := context.Background()

	for _, name := range []string{"carol", "alice", "bob"} {
		_, err := repo.Create(ctx, name, "hash", false)
		require.NoError(t, err)
	}

	names, err := repo.ListUsernames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"carol", "alice", "bob"}, names)
}

func TestUserRepository_UsernamesByIDs(t *testing.T) {
	repo := NewUserRepository(dbtest.New(t))
	ctx := context.Background()

	a, err := repo.Create(ctx, "alice", "hash", false)
	require.NoError(t, err)
	b, err := repo.Create(ctx, "bob", "hash", false)
	require.NoError(t, err)

	names, err := repo.UsernamesByIDs(ctx, []uint{a.ID, b.ID, 999})
	require.NoError(t, err)
	assert.Equal(t, map[uint]string{a.ID: "alice", b.ID: "bob"}, names)

	empty, err := repo.UsernamesByIDs(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestUserRepository_PostgresUniqueViolation(t *testing.T) {
	gdb, mock := newMockPostgres(t)
	repo := NewUserRepository(gdb)

	mock.ExpectQuery(regexp.QuoteMeta(`INSERT INTO "users"`)).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.UniqueViolation})

	_, err := repo.Create(context.Background(), "alice", "hash", false)
	assert.ErrorIs(t, err, ErrDuplicateUsername)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestUserRepository_PostgresUnavailable(t *testing.T) {
	gdb, mock := newMockPostgres(t)
	repo := NewUserRepository(gdb)

	mock.ExpectQuery(regexp.QuoteMeta(`SELECT * FROM "users"`)).
		WillReturnError(&pgconn.PgError{Code: pgerrcode.ConnectionFailure})

	_, err := repo.FindByUsername(context.Background(), "alice")
	assert.ErrorIs(t, err, ErrPersistence)
	assert.NotErrorIs(t, err, ErrUserNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
