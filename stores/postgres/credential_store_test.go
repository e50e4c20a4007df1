package postgres

import (
	"context"
	"database/sql"
	"errors"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/pressly/goose/v3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	gk "github.com/panyam/gatekeep"
)

const (
	selectByEmailQ = `(?s)^SELECT\s+id,\s*email,\s*password_hash,\s*created_at\s+FROM\s+users\s+WHERE\s+email\s*=\s*\$1\s*$`
	selectByIDQ    = `(?s)^SELECT\s+id,\s*email,\s*password_hash,\s*created_at\s+FROM\s+users\s+WHERE\s+id\s*=\s*\$1\s*$`
	insertUserQ    = `(?s)^INSERT\s+INTO\s+users\s*\(id,\s*email,\s*password_hash\).*ON\s+CONFLICT\s+\(email\)\s+DO\s+NOTHING\s+RETURNING\s+created_at\s*$`
)

func newStoreWithMock(t *testing.T) (*CredentialStore, sqlmock.Sqlmock) {
	t.Helper()
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewCredentialStore(db), mock
}

func TestFindByEmail_Found(t *testing.T) {
	store, mock := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(selectByEmailQ).
		WithArgs("alice@example.com").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
			AddRow("u-1", "alice@example.com", "hash", now))

	u, err := store.FindByEmail(context.Background(), "alice@example.com")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "u-1", u.ID)
	assert.Equal(t, "hash", u.PasswordHash)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestFindByEmail_NotFound(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(selectByEmailQ).
		WithArgs("bob@example.com").
		WillReturnError(sql.ErrNoRows)

	u, err := store.FindByEmail(context.Background(), "bob@example.com")
	assert.NoError(t, err)
	assert.Nil(t, u)
}

func TestFindByEmail_DBError(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(selectByEmailQ).
		WithArgs("alice@example.com").
		WillReturnError(errors.New("db down"))

	_, err := store.FindByEmail(context.Background(), "alice@example.com")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "db down")
}

func TestGetUserByID(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(selectByIDQ).
		WithArgs("u-1").
		WillReturnRows(sqlmock.NewRows([]string{"id", "email", "password_hash", "created_at"}).
			AddRow("u-1", "alice@example.com", "hash", time.Now()))

	u, err := store.GetUserByID(context.Background(), "u-1")
	require.NoError(t, err)
	require.NotNil(t, u)
	assert.Equal(t, "alice@example.com", u.Email)

	// empty ids never hit the database
	u, err = store.GetUserByID(context.Background(), "")
	assert.NoError(t, err)
	assert.Nil(t, u)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestCreateUser_Success(t *testing.T) {
	store, mock := newStoreWithMock(t)
	now := time.Now().UTC()

	mock.ExpectQuery(insertUserQ).
		WithArgs(sqlmock.AnyArg(), "carol@example.com", gk.FederatedOnlyPassword).
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}).AddRow(now))

	u, err := store.CreateUser(context.Background(), "carol@example.com", gk.FederatedOnlyPassword)
	require.NoError(t, err)
	assert.NotEmpty(t, u.ID)
	assert.Equal(t, now, u.CreatedAt)
	assert.True(t, u.IsFederatedOnly())
}

func TestCreateUser_ConflictNoRows(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(insertUserQ).
		WithArgs(sqlmock.AnyArg(), "carol@example.com", "h").
		WillReturnRows(sqlmock.NewRows([]string{"created_at"}))

	_, err := store.CreateUser(context.Background(), "carol@example.com", "h")
	assert.True(t, errors.Is(err, gk.ErrEmailTaken))
}

func TestCreateUser_UniqueViolation(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(insertUserQ).
		WithArgs(sqlmock.AnyArg(), "carol@example.com", "h").
		WillReturnError(&pgconn.PgError{Code: "23505", Message: "duplicate key value"})

	_, err := store.CreateUser(context.Background(), "carol@example.com", "h")
	assert.True(t, errors.Is(err, gk.ErrEmailTaken))
}

func TestCreateUser_DBError(t *testing.T) {
	store, mock := newStoreWithMock(t)

	mock.ExpectQuery(insertUserQ).
		WithArgs(sqlmock.AnyArg(), "carol@example.com", "h").
		WillReturnError(errors.New("connection reset"))

	_, err := store.CreateUser(context.Background(), "carol@example.com", "h")
	require.Error(t, err)
	assert.False(t, errors.Is(err, gk.ErrEmailTaken))
}

func TestRunMigrations_UsesSeam(t *testing.T) {
	db, _, err := sqlmock.New()
	require.NoError(t, err)
	defer db.Close()

	orig := gooseUpContext
	defer func() { gooseUpContext = orig }()

	called := false
	gooseUpContext = func(ctx context.Context, got *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		called = true
		assert.Same(t, db, got)
		assert.Equal(t, ".", dir)
		return nil
	}
	require.NoError(t, RunMigrations(context.Background(), db))
	assert.True(t, called)

	gooseUpContext = func(ctx context.Context, got *sql.DB, dir string, opts ...goose.OptionsFunc) error {
		return errors.New("boom")
	}
	assert.Error(t, RunMigrations(context.Background(), db))
}
